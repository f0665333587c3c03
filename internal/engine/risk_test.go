package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

// stubScorer is a canned risk model for tests.
type stubScorer struct {
	score      float64
	confidence float64
	err        error
	block      bool // block until the context expires
}

func (s *stubScorer) Predict(ctx context.Context, _ map[string]float64) (float64, float64, error) {
	if s.block {
		<-ctx.Done()
		return 0, 0, ctx.Err()
	}
	return s.score, s.confidence, s.err
}

func recentWithScores(scores ...float64) []PerformanceEvent {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	events := make([]PerformanceEvent, len(scores))
	for i, score := range scores {
		events[i] = PerformanceEvent{
			EventID:    "e" + string(rune('a'+i)),
			Score:      score,
			OccurredAt: base.Add(time.Duration(i) * time.Hour),
		}
	}
	return events
}

func TestAssessUsesModelScore(t *testing.T) {
	p := NewRiskPredictor(&stubScorer{score: 0.3, confidence: 0.9}, Config{})
	ra := p.Assess(context.Background(), NeutralProfile("s1"), recentWithScores(0.8, 0.9))

	if ra.Degraded {
		t.Fatalf("Degraded = true (%s), want model result", ra.DegradedReason)
	}
	if ra.Score != 0.3 {
		t.Errorf("Score = %v, want 0.3", ra.Score)
	}
	if ra.Confidence != ConfidenceHigh {
		t.Errorf("Confidence = %s, want %s", ra.Confidence, ConfidenceHigh)
	}
	if ra.Band != RiskLow {
		t.Errorf("Band = %s, want %s", ra.Band, RiskLow)
	}
}

func TestAssessNilScorerFallsBackToHeuristic(t *testing.T) {
	p := NewRiskPredictor(nil, Config{})
	ra := p.Assess(context.Background(), NeutralProfile("s1"), recentWithScores(0.25, 0.25, 0.25, 0.25))

	if !ra.Degraded {
		t.Fatal("Degraded = false, want heuristic fallback")
	}
	if ra.Confidence != ConfidenceLow {
		t.Errorf("Confidence = %s, want %s", ra.Confidence, ConfidenceLow)
	}
	// Heuristic risk is one minus average recent correctness.
	if !almostEqual(ra.Score, 0.75) {
		t.Errorf("Score = %v, want 0.75", ra.Score)
	}
	if ra.Band != RiskHigh {
		t.Errorf("Band = %s, want %s", ra.Band, RiskHigh)
	}
}

func TestAssessLowConfidenceFallsBack(t *testing.T) {
	p := NewRiskPredictor(&stubScorer{score: 0.1, confidence: 0.2}, Config{})
	ra := p.Assess(context.Background(), NeutralProfile("s1"), recentWithScores(0.5, 0.5))

	if !ra.Degraded {
		t.Fatal("Degraded = false, want fallback below the confidence floor")
	}
	if !almostEqual(ra.Score, 0.5) {
		t.Errorf("Score = %v, want heuristic 0.5, not the model's 0.1", ra.Score)
	}
}

func TestAssessScorerError(t *testing.T) {
	p := NewRiskPredictor(&stubScorer{err: errors.New("model offline")}, Config{})
	ra := p.Assess(context.Background(), NeutralProfile("s1"), recentWithScores(1, 1))

	if !ra.Degraded {
		t.Fatal("Degraded = false, want fallback on scorer error")
	}
	if !almostEqual(ra.Score, 0) {
		t.Errorf("Score = %v, want 0 for all-correct history", ra.Score)
	}
	if ra.Band != RiskLow {
		t.Errorf("Band = %s, want %s", ra.Band, RiskLow)
	}
}

func TestAssessScorerTimeout(t *testing.T) {
	p := NewRiskPredictor(&stubScorer{block: true}, Config{ScoringTimeout: 20 * time.Millisecond})
	start := time.Now()
	ra := p.Assess(context.Background(), NeutralProfile("s1"), recentWithScores(0.5))

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Assess blocked for %v, timeout not applied", elapsed)
	}
	if !ra.Degraded {
		t.Fatal("Degraded = false, want timeout fallback")
	}
}

func TestAssessClampsModelOutput(t *testing.T) {
	p := NewRiskPredictor(&stubScorer{score: 1.7, confidence: 0.9}, Config{})
	ra := p.Assess(context.Background(), NeutralProfile("s1"), nil)
	if ra.Score != 1 {
		t.Errorf("Score = %v, want clamped to 1", ra.Score)
	}
}

func TestExtractFeatures(t *testing.T) {
	p := NewRiskPredictor(nil, Config{})
	profile := NeutralProfile("s1")
	profile.Mastery = map[string]float64{"algebra": 0.2, "geometry": 0.8}
	profile.Pace = PaceSlow

	features := p.extractFeatures(profile, recentWithScores(1, 1, 0, 0))

	if !almostEqual(features["mastery_mean"], 0.5) {
		t.Errorf("mastery_mean = %v, want 0.5", features["mastery_mean"])
	}
	if !almostEqual(features["mastery_variance"], 0.09) {
		t.Errorf("mastery_variance = %v, want 0.09", features["mastery_variance"])
	}
	if !almostEqual(features["avg_correctness"], 0.5) {
		t.Errorf("avg_correctness = %v, want 0.5", features["avg_correctness"])
	}
	if !almostEqual(features["correctness_trend"], -1) {
		t.Errorf("correctness_trend = %v, want -1", features["correctness_trend"])
	}
	if !almostEqual(features["pace_factor"], 0.25) {
		t.Errorf("pace_factor = %v, want 0.25", features["pace_factor"])
	}
}

func TestRiskBands(t *testing.T) {
	tests := []struct {
		score float64
		want  RiskBand
	}{
		{0.1, RiskLow},
		{0.39, RiskLow},
		{0.4, RiskMedium},
		{0.7, RiskHigh},
		{0.85, RiskCritical},
		{1, RiskCritical},
	}
	for _, tt := range tests {
		if got := riskBand(tt.score); got != tt.want {
			t.Errorf("riskBand(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestInterventionsEscalateWithBand(t *testing.T) {
	if got := interventionsFor(RiskLow); got != nil {
		t.Errorf("interventionsFor(low) = %v, want none", got)
	}
	critical := interventionsFor(RiskCritical)
	found := false
	for _, iv := range critical {
		if iv == "notify_instructor" {
			found = true
		}
	}
	if !found {
		t.Errorf("interventionsFor(critical) = %v, want notify_instructor included", critical)
	}
}

func TestTrendSlope(t *testing.T) {
	rising := []RiskAssessment{{Score: 0.2}, {Score: 0.4}, {Score: 0.6}}
	if got := TrendSlope(rising); !almostEqual(got, 0.2) {
		t.Errorf("TrendSlope(rising) = %v, want 0.2", got)
	}
	if got := TrendSlope([]RiskAssessment{{Score: 0.5}}); got != 0 {
		t.Errorf("TrendSlope(single) = %v, want 0", got)
	}
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// Scorer is the injected risk scoring model. The engine treats it as a black
// box: it owns feature extraction and score interpretation, not training.
type Scorer interface {
	// Predict returns a raw risk score and a model confidence, both expected
	// in [0,1]. The engine clamps defensively either way.
	Predict(ctx context.Context, features map[string]float64) (score, confidence float64, err error)
}

// RiskPredictor derives a feature vector from the profile and recent events
// and asks the scoring model for a dropout/performance risk estimate. When
// the model is unavailable, times out, or answers with low confidence, it
// falls back to a correctness heuristic rather than failing the request.
type RiskPredictor struct {
	scorer Scorer
	cfg    Config
	now    func() time.Time
}

// NewRiskPredictor creates a risk predictor. scorer may be nil, in which case
// every assessment uses the heuristic fallback.
func NewRiskPredictor(scorer Scorer, cfg Config) *RiskPredictor {
	return &RiskPredictor{scorer: scorer, cfg: cfg.withDefaults(), now: time.Now}
}

// Assess computes a RiskAssessment for the student. Never returns an error:
// model degradation is absorbed into a degraded assessment.
func (p *RiskPredictor) Assess(ctx context.Context, profile *StudentProfile, recent []PerformanceEvent) RiskAssessment {
	features := p.extractFeatures(profile, recent)

	ra := RiskAssessment{
		StudentID: profile.StudentID,
		Features:  features,
		CreatedAt: p.now(),
	}

	score, confidence, err := p.predict(ctx, features)
	switch {
	case err != nil:
		ra.Score = heuristicRisk(features)
		ra.Confidence = ConfidenceLow
		ra.Degraded = true
		ra.DegradedReason = err.Error()
		slog.Warn("risk model unavailable, using heuristic",
			"student_id", profile.StudentID,
			"error", err,
		)
	case confidence < p.cfg.MinModelConfidence:
		ra.Score = heuristicRisk(features)
		ra.Confidence = ConfidenceLow
		ra.Degraded = true
		ra.DegradedReason = fmt.Sprintf("model confidence %.2f below %.2f", confidence, p.cfg.MinModelConfidence)
	default:
		ra.Score = clamp01(score)
		ra.Confidence = confidenceLevel(confidence)
	}

	ra.Band = riskBand(ra.Score)
	ra.Interventions = interventionsFor(ra.Band)
	return ra
}

// Intervene reports whether the assessment crosses the notification threshold.
func (p *RiskPredictor) Intervene(ra RiskAssessment) bool {
	return ra.Score >= p.cfg.RiskIntervention
}

func (p *RiskPredictor) predict(ctx context.Context, features map[string]float64) (float64, float64, error) {
	if p.scorer == nil {
		return 0, 0, ErrScoringUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.ScoringTimeout)
	defer cancel()

	score, confidence, err := p.scorer.Predict(ctx, features)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, 0, ErrScoringTimeout
		}
		return 0, 0, fmt.Errorf("%w: %v", ErrScoringUnavailable, err)
	}
	return score, confidence, nil
}

// extractFeatures builds the model input from profile and event statistics.
func (p *RiskPredictor) extractFeatures(profile *StudentProfile, recent []PerformanceEvent) map[string]float64 {
	features := map[string]float64{
		"mastery_mean":     0.5,
		"mastery_variance": 0,
		"pace_factor":      paceFactor(profile.Pace),
		"event_count":      float64(len(recent)),
		"avg_correctness":  0.5,
	}

	if len(profile.Mastery) > 0 {
		var sum float64
		for _, m := range profile.Mastery {
			sum += m
		}
		mean := sum / float64(len(profile.Mastery))
		var variance float64
		for _, m := range profile.Mastery {
			variance += (m - mean) * (m - mean)
		}
		features["mastery_mean"] = mean
		features["mastery_variance"] = variance / float64(len(profile.Mastery))
	}

	if len(recent) == 0 {
		return features
	}

	var sumScore, sumHints float64
	for _, ev := range recent {
		sumScore += clamp01(ev.Score)
		sumHints += float64(ev.HintsUsed)
	}
	features["avg_correctness"] = sumScore / float64(len(recent))
	features["hint_rate"] = sumHints / float64(len(recent))

	// Correctness trend: back half minus front half of the recent stream.
	half := len(recent) / 2
	if half > 0 {
		features["correctness_trend"] = halfAvg(recent[half:]) - halfAvg(recent[:half])
	}

	// Completion velocity (events/day) and gap since the last session.
	first, last := recent[0].OccurredAt, recent[len(recent)-1].OccurredAt
	if span := last.Sub(first); span > 0 {
		features["completion_velocity"] = float64(len(recent)) / (span.Hours() / 24)
	}
	features["session_gap_hours"] = p.now().Sub(last).Hours()

	return features
}

// heuristicRisk is the documented fallback: one minus average recent
// correctness.
func heuristicRisk(features map[string]float64) float64 {
	return clamp01(1 - features["avg_correctness"])
}

func paceFactor(pace PacePreference) float64 {
	switch pace {
	case PaceSlow:
		return 0.25
	case PaceFast:
		return 0.75
	default:
		return 0.5
	}
}

func confidenceLevel(c float64) Confidence {
	switch {
	case c >= 0.75:
		return ConfidenceHigh
	case c >= 0.4:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func riskBand(score float64) RiskBand {
	switch {
	case score >= 0.85:
		return RiskCritical
	case score >= 0.7:
		return RiskHigh
	case score >= 0.4:
		return RiskMedium
	default:
		return RiskLow
	}
}

func interventionsFor(band RiskBand) []string {
	switch band {
	case RiskCritical:
		return []string{"schedule_tutor_session", "notify_instructor", "reduce_difficulty"}
	case RiskHigh:
		return []string{"notify_instructor", "suggest_remedial_content"}
	case RiskMedium:
		return []string{"send_encouragement", "suggest_study_plan"}
	default:
		return nil
	}
}

// TrendSlope fits recent risk scores and returns the per-assessment change,
// used by callers rendering risk history.
func TrendSlope(history []RiskAssessment) float64 {
	if len(history) < 2 {
		return 0
	}
	// Least squares over index -> score.
	n := float64(len(history))
	var sumX, sumY, sumXY, sumXX float64
	for i, ra := range history {
		x := float64(i)
		sumX += x
		sumY += ra.Score
		sumXY += x * ra.Score
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 || math.IsNaN(denom) {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

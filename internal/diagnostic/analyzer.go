package diagnostic

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/adaptlearn/engine/internal/engine"
)

// Analyzer converts diagnostic responses into an initial student profile.
type Analyzer struct {
	bank         *Bank
	minQuestions int
	priorWeight  float64
}

// Config holds analyzer tuning.
type Config struct {
	MinQuestions int     // responses required before a profile is derived
	PriorWeight  float64 // pseudo-count weight of the 0.5 mastery prior
}

// NewAnalyzer creates an analyzer over the given question bank.
func NewAnalyzer(bank *Bank, cfg Config) *Analyzer {
	if cfg.MinQuestions == 0 {
		cfg.MinQuestions = 4
	}
	if cfg.PriorWeight == 0 {
		cfg.PriorWeight = 1
	}
	return &Analyzer{
		bank:         bank,
		minQuestions: cfg.MinQuestions,
		priorWeight:  cfg.PriorWeight,
	}
}

// Analyze scores the responses and builds the initial profile. Responses to
// unknown questions are skipped; if fewer than the configured minimum remain,
// engine.ErrInsufficientDiagnosticData is returned so the caller can fall
// back to a neutral profile. The result is deterministic for a fixed input.
func (a *Analyzer) Analyze(studentID string, responses []Response) (*engine.StudentProfile, error) {
	style := engine.StyleVector{}
	type topicAgg struct{ correct, weight float64 }
	topics := map[string]*topicAgg{}
	paceVotes := map[engine.PacePreference]int{}

	scored := 0
	for _, r := range responses {
		q, ok := a.bank.Get(r.QuestionID)
		if !ok {
			slog.Debug("skipping response to unknown question", "question_id", r.QuestionID)
			continue
		}

		score := scorers[q.Kind]
		obs, err := score(q, r)
		if err != nil {
			return nil, fmt.Errorf("scoring diagnostic: %w", err)
		}
		scored++

		if obs.styleWeight > 0 {
			style[obs.style] += obs.styleWeight
		}
		if obs.pace != "" {
			paceVotes[obs.pace]++
		}
		if obs.hasCorrect && obs.topic != "" {
			agg := topics[obs.topic]
			if agg == nil {
				agg = &topicAgg{}
				topics[obs.topic] = agg
			}
			agg.correct += obs.correct * q.weight()
			agg.weight += q.weight()
		}
	}

	if scored < a.minQuestions {
		return nil, fmt.Errorf("%d of %d required answers: %w",
			scored, a.minQuestions, engine.ErrInsufficientDiagnosticData)
	}

	profile := &engine.StudentProfile{
		StudentID: studentID,
		Style:     style.Normalize(),
		Mastery:   make(map[string]float64, len(topics)),
		Pace:      majorityPace(paceVotes),
		State:     engine.StateDiagnosing,
		UpdatedAt: time.Now(),
	}

	// Mastery per topic: fraction correct shrunk toward the 0.5 prior by a
	// pseudo-count, so a single diagnostic item cannot pin mastery to 0 or 1.
	for topic, agg := range topics {
		profile.Mastery[topic] = (agg.correct + 0.5*a.priorWeight) / (agg.weight + a.priorWeight)
	}

	slog.Info("diagnostic analyzed",
		"student_id", studentID,
		"answers", scored,
		"topics", len(topics),
		"dominant_style", profile.Style.Dominant(),
	)
	return profile, nil
}

// majorityPace returns the most voted pace, normal when tied or unvoted.
// Deterministic: slow and fast only win outright majorities of each other.
func majorityPace(votes map[engine.PacePreference]int) engine.PacePreference {
	best := engine.PaceNormal
	bestVotes := votes[engine.PaceNormal]
	for _, p := range []engine.PacePreference{engine.PaceSlow, engine.PaceFast} {
		if votes[p] > bestVotes {
			best = p
			bestVotes = votes[p]
		}
	}
	return best
}

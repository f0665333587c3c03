package engine

import (
	"github.com/adaptlearn/engine/internal/catalog"
)

// PaceController updates topic mastery from performance events and issues
// pacing decisions over a rolling window.
type PaceController struct {
	cfg Config
}

// NewPaceController creates a pace controller with the given tuning.
func NewPaceController(cfg Config) *PaceController {
	return &PaceController{cfg: cfg.withDefaults()}
}

// PaceResult is the outcome of applying one event.
type PaceResult struct {
	Topic        string
	Mastery      float64
	MasteryDelta float64
	Decision     PacingDecision
}

// Apply folds a new event into the student's mastery for the node's topic and
// decides pacing from the rolling window. window holds the most recent events
// for the same student and topic in chronological order, including ev itself.
// The profile is mutated in place; mastery stays clamped to [0,1].
func (c *PaceController) Apply(
	profile *StudentProfile,
	node catalog.ContentNode,
	ev PerformanceEvent,
	window []PerformanceEvent,
) PaceResult {
	old := profile.MasteryOf(node.Topic)

	// EWMA update. The observation weight shrinks when the student needed
	// hints or ran far over the estimated duration: finishing correct after a
	// struggle is weaker evidence of mastery.
	weight := c.cfg.EWMAWeight
	if ev.HintsUsed > 0 {
		weight /= float64(1 + ev.HintsUsed)
	}
	if node.DurationSeconds > 0 && float64(ev.TimeSpent) > c.cfg.OverrunFactor*float64(node.DurationSeconds) {
		weight /= 2
	}

	mastery := clamp01((1-weight)*old + weight*clamp01(ev.Score))
	if profile.Mastery == nil {
		profile.Mastery = map[string]float64{}
	}
	profile.Mastery[node.Topic] = mastery

	return PaceResult{
		Topic:        node.Topic,
		Mastery:      mastery,
		MasteryDelta: mastery - old,
		Decision:     c.decide(mastery-old, node, window),
	}
}

// decide applies the pacing rule over the window: remediate on declining
// mastery or low average correctness, accelerate on high correctness at or
// under the estimated duration, hold otherwise.
func (c *PaceController) decide(masteryDelta float64, node catalog.ContentNode, window []PerformanceEvent) PacingDecision {
	if len(window) == 0 {
		return DecisionHold
	}

	var sumScore, sumTime float64
	for _, ev := range window {
		sumScore += clamp01(ev.Score)
		sumTime += float64(ev.TimeSpent)
	}
	avgScore := sumScore / float64(len(window))
	avgTime := sumTime / float64(len(window))

	// Declining across the window: the back half scores worse than the front
	// half and the latest update pulled mastery down.
	declining := masteryDelta < 0 && len(window) >= 4 &&
		halfAvg(window[len(window)/2:]) < halfAvg(window[:len(window)/2])

	switch {
	case avgScore < c.cfg.RemediateThreshold:
		return DecisionRemediate
	case declining:
		return DecisionRemediate
	case avgScore >= c.cfg.AccelerateThreshold &&
		(node.DurationSeconds == 0 || avgTime <= float64(node.DurationSeconds)):
		return DecisionAccelerate
	default:
		return DecisionHold
	}
}

func halfAvg(events []PerformanceEvent) float64 {
	if len(events) == 0 {
		return 0
	}
	var sum float64
	for _, ev := range events {
		sum += clamp01(ev.Score)
	}
	return sum / float64(len(events))
}

// Window trims events to the configured rolling window size, newest kept.
func (c *PaceController) Window(events []PerformanceEvent) []PerformanceEvent {
	if len(events) > c.cfg.WindowSize {
		events = events[len(events)-c.cfg.WindowSize:]
	}
	return events
}

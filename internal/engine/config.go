package engine

import "time"

// Default tuning values. Every threshold can be overridden through Config so
// deployments can tune pacing without code changes.
const (
	defaultMinDiagnosticQuestions = 4
	defaultMasteryPriorWeight     = 1.0
	defaultWindowSize             = 10
	defaultEWMAWeight             = 0.3
	defaultOverrunFactor          = 1.5
	defaultRemediateThreshold     = 0.5
	defaultAccelerateThreshold    = 0.85
	defaultTargetOffset           = 0.1
	defaultStyleWeight            = 0.3
	defaultSkipMastery            = 0.85
	defaultRegenMasteryDelta      = 0.15
	defaultRiskIntervention       = 0.7
	defaultMinModelConfidence     = 0.4
	defaultScoringTimeout         = 2 * time.Second
	defaultAlertCooldown          = 6 * time.Hour
)

// Config carries every tunable threshold of the decision engine. The zero
// value is usable: unset fields fall back to defaults.
type Config struct {
	// Diagnostic analysis.
	MinDiagnosticQuestions int     // answers required before a profile is derived
	MasteryPriorWeight     float64 // pseudo-count weight of the 0.5 mastery prior

	// Pace control.
	WindowSize          int     // rolling window of events per student+topic
	EWMAWeight          float64 // weight of the newest observation
	OverrunFactor       float64 // time spent beyond factor*estimate counts as struggle
	RemediateThreshold  float64 // window avg correctness below this remediates
	AccelerateThreshold float64 // window avg correctness at or above this accelerates

	// Path generation.
	TargetOffset      float64 // preferred difficulty above current mastery
	StyleWeight       float64 // contribution of style affinity to node ranking
	SkipMastery       float64 // accelerate skips nodes whose topic mastery exceeds this
	RegenMasteryDelta float64 // mastery change that forces path regeneration

	// Risk prediction.
	RiskIntervention   float64       // score at or above this notifies instructors
	MinModelConfidence float64       // model confidence below this falls back to the heuristic
	ScoringTimeout     time.Duration // per-call budget for the scoring model
	AlertCooldown      time.Duration // minimum spacing of alerts per student
}

func (c Config) withDefaults() Config {
	if c.MinDiagnosticQuestions == 0 {
		c.MinDiagnosticQuestions = defaultMinDiagnosticQuestions
	}
	if c.MasteryPriorWeight == 0 {
		c.MasteryPriorWeight = defaultMasteryPriorWeight
	}
	if c.WindowSize == 0 {
		c.WindowSize = defaultWindowSize
	}
	if c.EWMAWeight == 0 {
		c.EWMAWeight = defaultEWMAWeight
	}
	if c.OverrunFactor == 0 {
		c.OverrunFactor = defaultOverrunFactor
	}
	if c.RemediateThreshold == 0 {
		c.RemediateThreshold = defaultRemediateThreshold
	}
	if c.AccelerateThreshold == 0 {
		c.AccelerateThreshold = defaultAccelerateThreshold
	}
	if c.TargetOffset == 0 {
		c.TargetOffset = defaultTargetOffset
	}
	if c.StyleWeight == 0 {
		c.StyleWeight = defaultStyleWeight
	}
	if c.SkipMastery == 0 {
		c.SkipMastery = defaultSkipMastery
	}
	if c.RegenMasteryDelta == 0 {
		c.RegenMasteryDelta = defaultRegenMasteryDelta
	}
	if c.RiskIntervention == 0 {
		c.RiskIntervention = defaultRiskIntervention
	}
	if c.MinModelConfidence == 0 {
		c.MinModelConfidence = defaultMinModelConfidence
	}
	if c.ScoringTimeout == 0 {
		c.ScoringTimeout = defaultScoringTimeout
	}
	if c.AlertCooldown == 0 {
		c.AlertCooldown = defaultAlertCooldown
	}
	return c
}

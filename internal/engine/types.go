// Package engine implements the adaptive learning decision engine: diagnostic
// profiling, personalized path generation, pacing control, risk prediction
// and feedback selection.
package engine

import "time"

// LearningStyle is one of the fixed modality preferences.
type LearningStyle string

const (
	StyleVisual      LearningStyle = "visual"
	StyleAuditory    LearningStyle = "auditory"
	StyleKinesthetic LearningStyle = "kinesthetic"
	StyleReading     LearningStyle = "reading"
)

// Styles lists all learning styles in canonical order.
var Styles = []LearningStyle{StyleVisual, StyleAuditory, StyleKinesthetic, StyleReading}

// StyleVector holds normalized weights over the learning styles.
type StyleVector map[LearningStyle]float64

// Normalize scales the vector so its weights sum to 1. A zero vector becomes
// uniform.
func (v StyleVector) Normalize() StyleVector {
	out := make(StyleVector, len(Styles))
	var sum float64
	for _, s := range Styles {
		sum += v[s]
	}
	if sum <= 0 {
		for _, s := range Styles {
			out[s] = 1.0 / float64(len(Styles))
		}
		return out
	}
	for _, s := range Styles {
		out[s] = v[s] / sum
	}
	return out
}

// Dominant returns the style with the highest weight, lowest style name on
// ties for determinism.
func (v StyleVector) Dominant() LearningStyle {
	best := Styles[0]
	for _, s := range Styles[1:] {
		if v[s] > v[best] {
			best = s
		}
	}
	return best
}

// PacePreference is the student's self-reported or inferred pace.
type PacePreference string

const (
	PaceSlow   PacePreference = "slow"
	PaceNormal PacePreference = "normal"
	PaceFast   PacePreference = "fast"
)

// State is the orchestrator state for a student.
type State string

const (
	StateDiagnosing   State = "diagnosing"
	StatePathActive   State = "path_active"
	StateRemediating  State = "remediating"
	StateAccelerating State = "accelerating"
	StateCompleted    State = "completed"
)

// StudentProfile is the engine-owned model of a student. It is mutated only
// by the diagnostic analyzer and the pace controller.
type StudentProfile struct {
	StudentID string         `json:"student_id"`
	Style     StyleVector    `json:"style"`
	Mastery   map[string]float64 `json:"mastery"` // topic -> mastery in [0,1]
	Pace      PacePreference `json:"pace"`
	State     State          `json:"state"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NeutralProfile returns the default profile used when diagnostic data is
// insufficient: uniform style vector, 0.5 mastery everywhere it is asked for.
func NeutralProfile(studentID string) *StudentProfile {
	return &StudentProfile{
		StudentID: studentID,
		Style:     StyleVector{}.Normalize(),
		Mastery:   map[string]float64{},
		Pace:      PaceNormal,
		State:     StateDiagnosing,
	}
}

// MasteryOf returns the student's mastery for a topic, defaulting to the 0.5
// prior when the topic has never been observed.
func (p *StudentProfile) MasteryOf(topic string) float64 {
	if m, ok := p.Mastery[topic]; ok {
		return m
	}
	return 0.5
}

// Clone returns a deep copy of the profile.
func (p *StudentProfile) Clone() *StudentProfile {
	out := *p
	out.Style = make(StyleVector, len(p.Style))
	for k, v := range p.Style {
		out.Style[k] = v
	}
	out.Mastery = make(map[string]float64, len(p.Mastery))
	for k, v := range p.Mastery {
		out.Mastery[k] = v
	}
	return &out
}

// PathAssignment is one generation of a student's ordered content sequence.
// Assignments are append-only: regeneration writes version+1, never rewrites
// history.
type PathAssignment struct {
	StudentID string    `json:"student_id"`
	CourseID  string    `json:"course_id"`
	NodeIDs   []string  `json:"node_ids"`
	Position  int       `json:"position"` // index of the first not-yet-completed node
	Version   int       `json:"version"`
	Reasons   []string  `json:"reasons,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Completed returns the ids of nodes already completed under this assignment.
func (a *PathAssignment) Completed() []string {
	if a == nil || a.Position <= 0 {
		return nil
	}
	if a.Position > len(a.NodeIDs) {
		return append([]string{}, a.NodeIDs...)
	}
	return append([]string{}, a.NodeIDs[:a.Position]...)
}

// Done reports whether the student has finished every node in the path.
func (a *PathAssignment) Done() bool {
	return a != nil && a.Position >= len(a.NodeIDs)
}

// PerformanceEvent is one observation of a student working a content node.
// Events are immutable and applied at most once, keyed by EventID; Seq is a
// per-student sequence number assigned by the producer.
type PerformanceEvent struct {
	EventID    string    `json:"event_id"`
	StudentID  string    `json:"student_id"`
	CourseID   string    `json:"course_id"`
	NodeID     string    `json:"node_id"`
	Topic      string    `json:"topic,omitempty"` // denormalized from the catalog on apply
	Seq        int64     `json:"seq"`
	Score      float64   `json:"score"` // correctness in [0,1]
	TimeSpent  int       `json:"time_spent_seconds"`
	HintsUsed  int       `json:"hints_used"`
	OccurredAt time.Time `json:"occurred_at"`
}

// DiagnosticResponse is a student's answer to one diagnostic question, as
// delivered by the gateway.
type DiagnosticResponse struct {
	QuestionID     string `json:"question_id"`
	Value          string `json:"value"`        // raw answer text, or scale value
	OptionIndex    int    `json:"option_index"` // selected option for multiple choice, -1 if none
	ElapsedSeconds int    `json:"elapsed_seconds"`
}

// DiagnosticAnalyzer derives an initial profile from diagnostic answers.
// Implemented by the diagnostic package.
type DiagnosticAnalyzer interface {
	Analyze(studentID string, responses []DiagnosticResponse) (*StudentProfile, error)
}

// PacingDecision is the pace controller's recommendation.
type PacingDecision string

const (
	DecisionAccelerate PacingDecision = "accelerate"
	DecisionHold       PacingDecision = "hold"
	DecisionRemediate  PacingDecision = "remediate"
)

// Confidence grades how much a risk assessment can be trusted.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// RiskBand buckets a risk score for reporting and intervention selection.
type RiskBand string

const (
	RiskLow      RiskBand = "low"
	RiskMedium   RiskBand = "medium"
	RiskHigh     RiskBand = "high"
	RiskCritical RiskBand = "critical"
)

// RiskAssessment is a bounded dropout/performance risk estimate. History is
// retained for trend analysis.
type RiskAssessment struct {
	StudentID     string             `json:"student_id"`
	Score         float64            `json:"score"` // in [0,1]
	Band          RiskBand           `json:"band"`
	Confidence    Confidence         `json:"confidence"`
	Features      map[string]float64 `json:"features"`
	Interventions []string           `json:"interventions,omitempty"`
	Degraded      bool               `json:"degraded"`
	DegradedReason string            `json:"degraded_reason,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}

// FeedbackMessage is the selected feedback for a student, with the matched
// rule recorded for auditability.
type FeedbackMessage struct {
	TemplateID string `json:"template_id"`
	Kind       string `json:"kind"`
	Text       string `json:"text"`
	Locale     string `json:"locale"`
	Reason     string `json:"reason"`
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

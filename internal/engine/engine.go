package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/adaptlearn/engine/internal/catalog"
	"github.com/adaptlearn/engine/internal/notify"
)

// Options holds dependencies for the decision engine. Store, Notifier and
// Cooldown default to in-memory implementations; everything else is required.
type Options struct {
	Store    Store
	Catalog  catalog.Provider
	Analyzer DiagnosticAnalyzer
	Scorer   Scorer // may be nil; every assessment then uses the heuristic
	Notifier notify.Notifier
	Cooldown notify.Cooldown
	Config   Config
}

// Engine orchestrates the decision components on each significant event.
// A single student's operations are serialized; different students proceed
// in parallel.
type Engine struct {
	store    Store
	catalog  catalog.Provider
	analyzer DiagnosticAnalyzer
	paths    *PathGenerator
	pace     *PaceController
	risk     *RiskPredictor
	feedback *FeedbackGenerator
	notifier notify.Notifier
	cooldown notify.Cooldown
	cfg      Config

	locks sync.Map // studentID -> *sync.Mutex
}

// New creates the decision engine.
func New(opts Options) (*Engine, error) {
	if opts.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if opts.Analyzer == nil {
		return nil, fmt.Errorf("analyzer is required")
	}

	cfg := opts.Config.withDefaults()
	store := opts.Store
	if store == nil {
		store = NewMemoryStore()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	cooldown := opts.Cooldown
	if cooldown == nil {
		cooldown = notify.NewMemoryCooldown(cfg.AlertCooldown)
	}

	return &Engine{
		store:    store,
		catalog:  opts.Catalog,
		analyzer: opts.Analyzer,
		paths:    NewPathGenerator(cfg),
		pace:     NewPaceController(cfg),
		risk:     NewRiskPredictor(opts.Scorer, cfg),
		feedback: NewFeedbackGenerator(),
		notifier: notifier,
		cooldown: cooldown,
		cfg:      cfg,
	}, nil
}

// lockStudent serializes processing per student. The critical section covers
// one read-modify-write of the profile; different students do not contend.
func (e *Engine) lockStudent(studentID string) func() {
	v, _ := e.locks.LoadOrStore(studentID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// DiagnosticResult is the outcome of SubmitDiagnostic.
type DiagnosticResult struct {
	Profile        *StudentProfile `json:"profile"`
	Path           *PathAssignment `json:"path"`
	Degraded       bool            `json:"degraded"`
	DegradedReason string          `json:"degraded_reason,omitempty"`
}

// SubmitDiagnostic analyzes diagnostic responses, stores the initial profile
// and generates the student's first path for the course. Insufficient
// diagnostic data degrades to a neutral profile instead of failing; a cyclic
// course graph is fatal and leaves no assignment written.
func (e *Engine) SubmitDiagnostic(ctx context.Context, studentID, courseID string, responses []DiagnosticResponse) (*DiagnosticResult, error) {
	unlock := e.lockStudent(studentID)
	defer unlock()

	result := &DiagnosticResult{}

	profile, err := e.analyzer.Analyze(studentID, responses)
	if err != nil {
		if !errors.Is(err, ErrInsufficientDiagnosticData) {
			return nil, fmt.Errorf("analyzing diagnostic: %w", err)
		}
		profile = NeutralProfile(studentID)
		result.Degraded = true
		result.DegradedReason = err.Error()
		slog.Info("diagnostic fallback to neutral profile",
			"student_id", studentID,
			"reason", err,
		)
	}

	graph, err := e.catalog.CourseGraph(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("loading course %s: %w", courseID, err)
	}

	var prev *PathAssignment
	if p, err := e.store.LoadPath(ctx, studentID, courseID); err == nil {
		prev = p
	} else if !errors.Is(err, ErrPathNotFound) {
		return nil, fmt.Errorf("loading path: %w", err)
	}

	path, err := e.generateAndSave(ctx, profile, graph, prev, DecisionHold)
	if err != nil {
		return nil, err
	}

	profile.State = StatePathActive
	if err := e.store.SaveProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("saving profile: %w", err)
	}

	result.Profile = profile
	result.Path = path
	return result, nil
}

// GetCurrentPath returns the student's current assignment for the course,
// generating a first one from the stored (or neutral) profile when none
// exists yet. A cyclic graph surfaces the error with nothing written.
func (e *Engine) GetCurrentPath(ctx context.Context, studentID, courseID string) (*PathAssignment, error) {
	unlock := e.lockStudent(studentID)
	defer unlock()

	path, err := e.store.LoadPath(ctx, studentID, courseID)
	if err == nil {
		return path, nil
	}
	if !errors.Is(err, ErrPathNotFound) {
		return nil, fmt.Errorf("loading path: %w", err)
	}

	profile, err := e.loadOrInitProfile(ctx, studentID)
	if err != nil {
		return nil, err
	}

	graph, err := e.catalog.CourseGraph(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("loading course %s: %w", courseID, err)
	}

	path, err = e.generateAndSave(ctx, profile, graph, nil, DecisionHold)
	if err != nil {
		return nil, err
	}

	profile.State = StatePathActive
	if err := e.store.SaveProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("saving profile: %w", err)
	}
	return path, nil
}

// EventResult is the outcome of RecordEvent.
type EventResult struct {
	Duplicate       bool            `json:"duplicate,omitempty"`
	Topic           string          `json:"topic"`
	Mastery         float64         `json:"mastery"`
	MasteryDelta    float64         `json:"mastery_delta"`
	Decision        PacingDecision  `json:"pacing_decision"`
	Zone            LearningZone    `json:"learning_zone"`
	Feedback        FeedbackMessage `json:"feedback"`
	Risk            RiskAssessment  `json:"risk"`
	PathVersion     int             `json:"path_version"`
	PathRegenerated bool            `json:"path_regenerated"`
	State           State           `json:"state"`
	Degraded        bool            `json:"degraded"`
	DegradedReason  string          `json:"degraded_reason,omitempty"`
}

// RecordEvent applies one performance event: mastery update, pacing decision,
// risk assessment, feedback selection and, when thresholds are crossed, path
// regeneration. Events are applied at most once (event id and per-student
// sequence number); replays are a no-op reported as Duplicate.
func (e *Engine) RecordEvent(ctx context.Context, ev PerformanceEvent, locale string) (*EventResult, error) {
	if ev.EventID == "" || ev.StudentID == "" || ev.CourseID == "" || ev.NodeID == "" {
		return nil, fmt.Errorf("event_id, student_id, course_id and node_id are required: %w", ErrInvalidEvent)
	}

	unlock := e.lockStudent(ev.StudentID)
	defer unlock()

	// Sequence guard: the feed delivers at least once and may reorder. An
	// event at or below the last applied sequence number is a replay.
	if ev.Seq > 0 {
		last, err := e.store.LastSeq(ctx, ev.StudentID)
		if err != nil {
			return nil, fmt.Errorf("checking sequence: %w", err)
		}
		if ev.Seq <= last {
			slog.Debug("ignoring replayed event",
				"student_id", ev.StudentID,
				"event_id", ev.EventID,
				"seq", ev.Seq,
				"last_seq", last,
			)
			return &EventResult{Duplicate: true, Decision: DecisionHold}, nil
		}
	}

	graph, err := e.catalog.CourseGraph(ctx, ev.CourseID)
	if err != nil {
		return nil, fmt.Errorf("loading course %s: %w", ev.CourseID, err)
	}
	node, ok := graph.Node(ev.NodeID)
	if !ok {
		return nil, fmt.Errorf("node %s in course %s: %w", ev.NodeID, ev.CourseID, ErrUnknownNode)
	}
	ev.Topic = node.Topic

	if err := e.store.AppendEvent(ctx, ev); err != nil {
		if errors.Is(err, ErrDuplicateEvent) {
			return &EventResult{Duplicate: true, Decision: DecisionHold}, nil
		}
		return nil, fmt.Errorf("recording event: %w", err)
	}

	result := &EventResult{Topic: node.Topic}

	profile, err := e.loadOrInitProfile(ctx, ev.StudentID)
	if err != nil {
		return nil, err
	}
	if profile.State == StateDiagnosing {
		result.Degraded = true
		result.DegradedReason = "events received before diagnostic completion"
	}

	// Pace control over the rolling window for this topic.
	window, err := e.store.RecentTopicEvents(ctx, ev.StudentID, node.Topic, e.cfg.WindowSize)
	if err != nil {
		return nil, fmt.Errorf("loading event window: %w", err)
	}
	paceRes := e.pace.Apply(profile, node, ev, e.pace.Window(window))
	result.Mastery = paceRes.Mastery
	result.MasteryDelta = paceRes.MasteryDelta
	result.Decision = paceRes.Decision

	path, err := e.applyPathProgress(ctx, profile, graph, ev, paceRes, result)
	if err != nil {
		return nil, err
	}
	if path != nil {
		result.PathVersion = path.Version
	}

	// Risk assessment runs on every cycle; degradation never fails the call.
	recent, err := e.store.RecentEvents(ctx, ev.StudentID, e.cfg.WindowSize)
	if err != nil {
		return nil, fmt.Errorf("loading recent events: %w", err)
	}
	ra := e.risk.Assess(ctx, profile, recent)
	if err := e.store.SaveRisk(ctx, ra); err != nil {
		return nil, fmt.Errorf("saving risk: %w", err)
	}
	if ra.Degraded {
		result.Degraded = true
		result.DegradedReason = ra.DegradedReason
	}
	result.Risk = ra
	e.maybeNotify(ctx, ra)

	result.Zone = ClassifyZone(e.pace.Window(window))
	result.Feedback = e.feedback.Select(ev.Score >= 0.5, profile.Style.Dominant(), ra.Band, node.Topic, locale)

	profile.UpdatedAt = ra.CreatedAt
	if err := e.store.SaveProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("saving profile: %w", err)
	}
	result.State = profile.State

	slog.Info("event applied",
		"student_id", ev.StudentID,
		"node_id", ev.NodeID,
		"topic", node.Topic,
		"mastery", fmt.Sprintf("%.3f", paceRes.Mastery),
		"decision", paceRes.Decision,
		"zone", result.Zone,
		"risk", fmt.Sprintf("%.3f", ra.Score),
	)
	return result, nil
}

// applyPathProgress advances the position past the completed node, decides
// whether regeneration is required, and runs the state machine transitions
// PATH_ACTIVE -> REMEDIATING/ACCELERATING -> PATH_ACTIVE and
// PATH_ACTIVE -> COMPLETED.
func (e *Engine) applyPathProgress(
	ctx context.Context,
	profile *StudentProfile,
	graph *catalog.Graph,
	ev PerformanceEvent,
	paceRes PaceResult,
	result *EventResult,
) (*PathAssignment, error) {
	path, err := e.store.LoadPath(ctx, ev.StudentID, ev.CourseID)
	if err != nil {
		if !errors.Is(err, ErrPathNotFound) {
			return nil, fmt.Errorf("loading path: %w", err)
		}
		path = nil
	}

	// An event on the current node completes it.
	if path != nil && !path.Done() && path.NodeIDs[path.Position] == ev.NodeID {
		path.Position++
		if err := e.store.AdvancePath(ctx, ev.StudentID, ev.CourseID, path.Version, path.Position); err != nil {
			return nil, fmt.Errorf("advancing path: %w", err)
		}
	}

	regen := paceRes.Decision != DecisionHold || e.paths.NeedsRegeneration(paceRes.MasteryDelta)
	if regen {
		switch paceRes.Decision {
		case DecisionRemediate:
			profile.State = StateRemediating
		case DecisionAccelerate:
			profile.State = StateAccelerating
		}
		path, err = e.generateAndSave(ctx, profile, graph, path, paceRes.Decision)
		if err != nil {
			return nil, err
		}
		result.PathRegenerated = true
	}

	// Regeneration done (or not needed): the student is back on an active
	// path, or finished it.
	if path != nil && path.Done() {
		profile.State = StateCompleted
	} else if profile.State != StateDiagnosing {
		profile.State = StatePathActive
	}
	return path, nil
}

// generateAndSave writes the next assignment version, retrying once against
// the latest stored version on a concurrent-regeneration conflict.
func (e *Engine) generateAndSave(
	ctx context.Context,
	profile *StudentProfile,
	graph *catalog.Graph,
	prev *PathAssignment,
	decision PacingDecision,
) (*PathAssignment, error) {
	path, err := e.paths.Generate(profile, graph, prev, decision)
	if err != nil {
		return nil, fmt.Errorf("generating path: %w", err)
	}

	saveErr := e.store.SavePath(ctx, path)
	if saveErr == nil {
		return path, nil
	}
	if !errors.Is(saveErr, ErrStaleGeneration) {
		return nil, fmt.Errorf("saving path: %w", saveErr)
	}

	// Someone else wrote this version concurrently. Retry once on top of the
	// stored latest; a second conflict is surfaced.
	latest, err := e.store.LoadPath(ctx, path.StudentID, path.CourseID)
	if err != nil {
		return nil, fmt.Errorf("reloading path after conflict: %w", err)
	}
	path, err = e.paths.Generate(profile, graph, latest, decision)
	if err != nil {
		return nil, fmt.Errorf("regenerating path: %w", err)
	}
	if err := e.store.SavePath(ctx, path); err != nil {
		return nil, fmt.Errorf("saving path after retry: %w", err)
	}
	return path, nil
}

// GetRisk returns the student's latest risk assessment, computing a fresh one
// when none has been stored yet.
func (e *Engine) GetRisk(ctx context.Context, studentID string) (*RiskAssessment, error) {
	if ra, err := e.store.LatestRisk(ctx, studentID); err != nil {
		return nil, fmt.Errorf("loading risk: %w", err)
	} else if ra != nil {
		return ra, nil
	}

	unlock := e.lockStudent(studentID)
	defer unlock()

	profile, err := e.loadOrInitProfile(ctx, studentID)
	if err != nil {
		return nil, err
	}
	recent, err := e.store.RecentEvents(ctx, studentID, e.cfg.WindowSize)
	if err != nil {
		return nil, fmt.Errorf("loading recent events: %w", err)
	}

	ra := e.risk.Assess(ctx, profile, recent)
	if err := e.store.SaveRisk(ctx, ra); err != nil {
		return nil, fmt.Errorf("saving risk: %w", err)
	}
	return &ra, nil
}

// RiskHistory returns up to limit stored assessments for trend analysis.
func (e *Engine) RiskHistory(ctx context.Context, studentID string, limit int) ([]RiskAssessment, error) {
	return e.store.RiskHistory(ctx, studentID, limit)
}

// loadOrInitProfile loads the student's profile, initializing a neutral one
// on first contact.
func (e *Engine) loadOrInitProfile(ctx context.Context, studentID string) (*StudentProfile, error) {
	profile, err := e.store.LoadProfile(ctx, studentID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, ErrProfileNotFound) {
		return nil, fmt.Errorf("loading profile: %w", err)
	}

	profile = NeutralProfile(studentID)
	if err := e.store.SaveProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("initializing profile: %w", err)
	}
	slog.Info("initialized neutral profile", "student_id", studentID)
	return profile, nil
}

// maybeNotify sends an intervention alert when the score crosses the
// threshold, at most once per cooldown period per student.
func (e *Engine) maybeNotify(ctx context.Context, ra RiskAssessment) {
	if !e.risk.Intervene(ra) {
		return
	}
	allowed, err := e.cooldown.Allow(ctx, ra.StudentID)
	if err != nil {
		slog.Warn("cooldown check failed, suppressing alert", "student_id", ra.StudentID, "error", err)
		return
	}
	if !allowed {
		return
	}
	alert := notify.Alert{
		StudentID:     ra.StudentID,
		Score:         ra.Score,
		Band:          string(ra.Band),
		Interventions: ra.Interventions,
		CreatedAt:     ra.CreatedAt,
	}
	if err := e.notifier.Notify(ctx, alert); err != nil {
		slog.Warn("alert delivery failed", "student_id", ra.StudentID, "error", err)
	}
}

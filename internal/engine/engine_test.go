package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/adaptlearn/engine/internal/catalog"
	"github.com/adaptlearn/engine/internal/notify"
)

// stubCatalog serves prebuilt graphs.
type stubCatalog struct {
	graphs map[string]*catalog.Graph
	errs   map[string]error
}

func (c *stubCatalog) CourseGraph(_ context.Context, courseID string) (*catalog.Graph, error) {
	if err := c.errs[courseID]; err != nil {
		return nil, err
	}
	g, ok := c.graphs[courseID]
	if !ok {
		return nil, fmt.Errorf("course %s: %w", courseID, catalog.ErrCourseNotFound)
	}
	return g, nil
}

// stubAnalyzer returns a canned profile or error.
type stubAnalyzer struct {
	profile *StudentProfile
	err     error
}

func (a *stubAnalyzer) Analyze(studentID string, _ []DiagnosticResponse) (*StudentProfile, error) {
	if a.err != nil {
		return nil, a.err
	}
	p := a.profile.Clone()
	p.StudentID = studentID
	return p, nil
}

func testEngine(t *testing.T, opts Options) (*Engine, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	opts.Store = store
	if opts.Catalog == nil {
		opts.Catalog = &stubCatalog{graphs: map[string]*catalog.Graph{"math-101": testGraph(t)}}
	}
	if opts.Analyzer == nil {
		profile := NeutralProfile("")
		profile.Style = StyleVector{StyleVisual: 0.6, StyleReading: 0.4}
		profile.Mastery = map[string]float64{"algebra": 0.6, "geometry": 0.4}
		opts.Analyzer = &stubAnalyzer{profile: profile}
	}
	e, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e, store
}

func TestSubmitDiagnosticCreatesProfileAndPath(t *testing.T) {
	ctx := context.Background()
	e, store := testEngine(t, Options{})

	res, err := e.SubmitDiagnostic(ctx, "s1", "math-101", nil)
	if err != nil {
		t.Fatalf("SubmitDiagnostic() error = %v", err)
	}
	if res.Degraded {
		t.Errorf("Degraded = true (%s), want a clean analysis", res.DegradedReason)
	}
	if res.Profile.State != StatePathActive {
		t.Errorf("State = %s, want %s", res.Profile.State, StatePathActive)
	}
	if res.Path == nil || res.Path.Version != 1 {
		t.Fatalf("Path = %+v, want version 1", res.Path)
	}

	stored, err := store.LoadPath(ctx, "s1", "math-101")
	if err != nil {
		t.Fatalf("LoadPath() error = %v", err)
	}
	if stored.Version != 1 {
		t.Errorf("stored version = %d, want 1", stored.Version)
	}
}

func TestSubmitDiagnosticInsufficientDataDegrades(t *testing.T) {
	ctx := context.Background()
	e, _ := testEngine(t, Options{
		Analyzer: &stubAnalyzer{err: fmt.Errorf("2 of 4: %w", ErrInsufficientDiagnosticData)},
	})

	res, err := e.SubmitDiagnostic(ctx, "s1", "math-101", nil)
	if err != nil {
		t.Fatalf("SubmitDiagnostic() error = %v", err)
	}
	if !res.Degraded {
		t.Fatal("Degraded = false, want neutral-profile fallback")
	}
	if got := res.Profile.MasteryOf("algebra"); got != 0.5 {
		t.Errorf("neutral mastery = %v, want 0.5", got)
	}
	if res.Path == nil {
		t.Fatal("Path = nil, want a path generated from the neutral profile")
	}
}

func TestSubmitDiagnosticCyclicCourseWritesNothing(t *testing.T) {
	ctx := context.Background()
	e, store := testEngine(t, Options{
		Catalog: &stubCatalog{errs: map[string]error{
			"bad-course": fmt.Errorf("course bad-course: %w", catalog.ErrCyclicPrerequisites),
		}},
	})

	if _, err := e.SubmitDiagnostic(ctx, "s1", "bad-course", nil); err == nil {
		t.Fatal("SubmitDiagnostic() error = nil, want cycle surfaced")
	}
	if _, err := store.LoadPath(ctx, "s1", "bad-course"); err == nil {
		t.Error("a path was written for a cyclic course")
	}
}

func TestGetCurrentPathGeneratesOnFirstCall(t *testing.T) {
	ctx := context.Background()
	e, _ := testEngine(t, Options{})

	first, err := e.GetCurrentPath(ctx, "s1", "math-101")
	if err != nil {
		t.Fatalf("GetCurrentPath() error = %v", err)
	}
	if first.Version != 1 {
		t.Errorf("Version = %d, want 1", first.Version)
	}

	second, err := e.GetCurrentPath(ctx, "s1", "math-101")
	if err != nil {
		t.Fatalf("GetCurrentPath() second call error = %v", err)
	}
	if second.Version != 1 {
		t.Errorf("second call regenerated: version %d, want the stored 1", second.Version)
	}
}

func TestRecordEventUpdatesMasteryAndAdvances(t *testing.T) {
	ctx := context.Background()
	e, store := testEngine(t, Options{})

	if _, err := e.SubmitDiagnostic(ctx, "s1", "math-101", nil); err != nil {
		t.Fatalf("SubmitDiagnostic() error = %v", err)
	}
	path, _ := store.LoadPath(ctx, "s1", "math-101")
	current := path.NodeIDs[0]

	res, err := e.RecordEvent(ctx, PerformanceEvent{
		EventID:    "e1",
		StudentID:  "s1",
		CourseID:   "math-101",
		NodeID:     current,
		Seq:        1,
		Score:      0.7,
		TimeSpent:  250,
		OccurredAt: time.Now(),
	}, "en")
	if err != nil {
		t.Fatalf("RecordEvent() error = %v", err)
	}
	if res.Duplicate {
		t.Fatal("Duplicate = true for a fresh event")
	}
	if res.Feedback.Text == "" {
		t.Error("Feedback.Text is empty")
	}
	if res.Risk.Band == "" {
		t.Error("Risk.Band is empty, want an assessment on every event")
	}

	after, _ := store.LoadPath(ctx, "s1", "math-101")
	if after.Position != 1 {
		t.Errorf("Position = %d, want 1 after completing the current node", after.Position)
	}
}

func TestRecordEventDuplicateIsNoOp(t *testing.T) {
	ctx := context.Background()
	e, store := testEngine(t, Options{})

	if _, err := e.SubmitDiagnostic(ctx, "s1", "math-101", nil); err != nil {
		t.Fatalf("SubmitDiagnostic() error = %v", err)
	}
	path, _ := store.LoadPath(ctx, "s1", "math-101")

	ev := PerformanceEvent{
		EventID:    "e1",
		StudentID:  "s1",
		CourseID:   "math-101",
		NodeID:     path.NodeIDs[0],
		Seq:        1,
		Score:      1,
		OccurredAt: time.Now(),
	}
	first, err := e.RecordEvent(ctx, ev, "en")
	if err != nil {
		t.Fatalf("RecordEvent() error = %v", err)
	}
	profileAfterFirst, _ := store.LoadProfile(ctx, "s1")

	second, err := e.RecordEvent(ctx, ev, "en")
	if err != nil {
		t.Fatalf("RecordEvent(replay) error = %v", err)
	}
	if !second.Duplicate {
		t.Fatal("Duplicate = false on replay")
	}
	if first.Duplicate {
		t.Fatal("Duplicate = true on first delivery")
	}

	profileAfterSecond, _ := store.LoadProfile(ctx, "s1")
	if profileAfterFirst.Mastery["algebra"] != profileAfterSecond.Mastery["algebra"] {
		t.Errorf("mastery changed on replay: %v -> %v",
			profileAfterFirst.Mastery["algebra"], profileAfterSecond.Mastery["algebra"])
	}
}

func TestRecordEventOutOfOrderSeqIgnored(t *testing.T) {
	ctx := context.Background()
	e, store := testEngine(t, Options{})

	if _, err := e.SubmitDiagnostic(ctx, "s1", "math-101", nil); err != nil {
		t.Fatalf("SubmitDiagnostic() error = %v", err)
	}
	path, _ := store.LoadPath(ctx, "s1", "math-101")
	node := path.NodeIDs[0]

	if _, err := e.RecordEvent(ctx, PerformanceEvent{
		EventID: "e5", StudentID: "s1", CourseID: "math-101", NodeID: node, Seq: 5, Score: 0.8,
	}, "en"); err != nil {
		t.Fatalf("RecordEvent(seq 5) error = %v", err)
	}

	res, err := e.RecordEvent(ctx, PerformanceEvent{
		EventID: "e3", StudentID: "s1", CourseID: "math-101", NodeID: node, Seq: 3, Score: 0.1,
	}, "en")
	if err != nil {
		t.Fatalf("RecordEvent(seq 3) error = %v", err)
	}
	if !res.Duplicate {
		t.Error("Duplicate = false for a stale sequence number")
	}
}

func TestRecordEventRemediationRegeneratesPath(t *testing.T) {
	ctx := context.Background()
	e, store := testEngine(t, Options{})

	if _, err := e.SubmitDiagnostic(ctx, "s1", "math-101", nil); err != nil {
		t.Fatalf("SubmitDiagnostic() error = %v", err)
	}
	before, _ := store.LoadPath(ctx, "s1", "math-101")
	node := before.NodeIDs[0]

	// Consecutive failures push average correctness under the remediation
	// threshold.
	var res *EventResult
	var err error
	for i := 1; i <= 3; i++ {
		res, err = e.RecordEvent(ctx, PerformanceEvent{
			EventID:    fmt.Sprintf("e%d", i),
			StudentID:  "s1",
			CourseID:   "math-101",
			NodeID:     node,
			Seq:        int64(i),
			Score:      0,
			TimeSpent:  400,
			OccurredAt: time.Now(),
		}, "en")
		if err != nil {
			t.Fatalf("RecordEvent(%d) error = %v", i, err)
		}
	}

	if res.Decision != DecisionRemediate {
		t.Errorf("Decision = %s, want %s", res.Decision, DecisionRemediate)
	}
	if !res.PathRegenerated {
		t.Error("PathRegenerated = false after remediation decision")
	}

	after, _ := store.LoadPath(ctx, "s1", "math-101")
	if after.Version <= before.Version {
		t.Errorf("version = %d, want above the original %d", after.Version, before.Version)
	}
	history, _ := store.PathHistory(ctx, "s1", "math-101")
	if len(history) < 2 {
		t.Errorf("history length = %d, want the original version retained", len(history))
	}
	if res.State != StatePathActive {
		t.Errorf("State = %s, want %s after regeneration", res.State, StatePathActive)
	}
}

func TestRecordEventCompletesCourse(t *testing.T) {
	ctx := context.Background()
	g, err := catalog.NewGraph("mini", []catalog.ContentNode{
		{ID: "only", Topic: "algebra", Difficulty: 0.5, DurationSeconds: 300},
	})
	if err != nil {
		t.Fatalf("NewGraph() error = %v", err)
	}
	e, _ := testEngine(t, Options{
		Catalog: &stubCatalog{graphs: map[string]*catalog.Graph{"mini": g}},
	})

	if _, err := e.SubmitDiagnostic(ctx, "s1", "mini", nil); err != nil {
		t.Fatalf("SubmitDiagnostic() error = %v", err)
	}

	res, err := e.RecordEvent(ctx, PerformanceEvent{
		EventID: "e1", StudentID: "s1", CourseID: "mini", NodeID: "only",
		Seq: 1, Score: 0.7, TimeSpent: 250, OccurredAt: time.Now(),
	}, "en")
	if err != nil {
		t.Fatalf("RecordEvent() error = %v", err)
	}
	if res.State != StateCompleted {
		t.Errorf("State = %s, want %s", res.State, StateCompleted)
	}
}

func TestRecordEventHighRiskNotifiesOncePerCooldown(t *testing.T) {
	ctx := context.Background()
	notifier := notify.NewMemoryNotifier()
	e, store := testEngine(t, Options{
		Scorer:   &stubScorer{score: 0.9, confidence: 0.9},
		Notifier: notifier,
		Cooldown: notify.NewMemoryCooldown(time.Hour),
	})

	if _, err := e.SubmitDiagnostic(ctx, "s1", "math-101", nil); err != nil {
		t.Fatalf("SubmitDiagnostic() error = %v", err)
	}
	path, _ := store.LoadPath(ctx, "s1", "math-101")
	node := path.NodeIDs[0]

	for i := 1; i <= 3; i++ {
		if _, err := e.RecordEvent(ctx, PerformanceEvent{
			EventID: fmt.Sprintf("e%d", i), StudentID: "s1", CourseID: "math-101",
			NodeID: node, Seq: int64(i), Score: 0.2, OccurredAt: time.Now(),
		}, "en"); err != nil {
			t.Fatalf("RecordEvent(%d) error = %v", i, err)
		}
	}

	alerts := notifier.Alerts()
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want exactly 1 within the cooldown period", len(alerts))
	}
	if alerts[0].StudentID != "s1" || alerts[0].Band != string(RiskCritical) {
		t.Errorf("alert = %+v, want s1 at critical band", alerts[0])
	}
}

func TestRecordEventMissingFields(t *testing.T) {
	e, _ := testEngine(t, Options{})
	if _, err := e.RecordEvent(context.Background(), PerformanceEvent{EventID: "e1"}, "en"); err == nil {
		t.Fatal("RecordEvent() error = nil, want validation failure")
	}
}

func TestGetRiskComputesWhenNoneStored(t *testing.T) {
	ctx := context.Background()
	e, store := testEngine(t, Options{})

	ra, err := e.GetRisk(ctx, "s1")
	if err != nil {
		t.Fatalf("GetRisk() error = %v", err)
	}
	if ra == nil || ra.Band == "" {
		t.Fatalf("GetRisk() = %v, want a fresh assessment", ra)
	}

	stored, err := store.LatestRisk(ctx, "s1")
	if err != nil {
		t.Fatalf("LatestRisk() error = %v", err)
	}
	if stored == nil {
		t.Error("fresh assessment was not persisted")
	}
}

func TestReassessSweepsAllStudents(t *testing.T) {
	ctx := context.Background()
	e, store := testEngine(t, Options{})

	for _, id := range []string{"s1", "s2", "s3"} {
		if err := store.SaveProfile(ctx, NeutralProfile(id)); err != nil {
			t.Fatalf("SaveProfile(%s) error = %v", id, err)
		}
	}

	res, err := e.Reassess(ctx)
	if err != nil {
		t.Fatalf("Reassess() error = %v", err)
	}
	if res.Assessed != 3 {
		t.Errorf("Assessed = %d, want 3", res.Assessed)
	}
	for _, id := range []string{"s1", "s2", "s3"} {
		ra, err := store.LatestRisk(ctx, id)
		if err != nil || ra == nil {
			t.Errorf("LatestRisk(%s) = (%v, %v), want a stored assessment", id, ra, err)
		}
	}
}

func TestReassessStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e, store := testEngine(t, Options{})
	if err := store.SaveProfile(context.Background(), NeutralProfile("s1")); err != nil {
		t.Fatalf("SaveProfile() error = %v", err)
	}

	res, err := e.Reassess(ctx)
	if err == nil {
		t.Fatal("Reassess() error = nil, want context error")
	}
	if res.Assessed != 0 {
		t.Errorf("Assessed = %d, want 0 after immediate cancel", res.Assessed)
	}
}

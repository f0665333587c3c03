package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreProfiles(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.LoadProfile(ctx, "missing"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("LoadProfile() error = %v, want ErrProfileNotFound", err)
	}

	profile := NeutralProfile("s1")
	profile.Mastery["algebra"] = 0.7
	if err := s.SaveProfile(ctx, profile); err != nil {
		t.Fatalf("SaveProfile() error = %v", err)
	}

	// The store must not alias the caller's maps.
	profile.Mastery["algebra"] = 0.1

	got, err := s.LoadProfile(ctx, "s1")
	if err != nil {
		t.Fatalf("LoadProfile() error = %v", err)
	}
	if got.Mastery["algebra"] != 0.7 {
		t.Errorf("mastery = %v, want the value at save time (0.7)", got.Mastery["algebra"])
	}
}

func TestMemoryStorePathVersioning(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.LoadPath(ctx, "s1", "c1"); !errors.Is(err, ErrPathNotFound) {
		t.Fatalf("LoadPath() error = %v, want ErrPathNotFound", err)
	}

	v1 := &PathAssignment{StudentID: "s1", CourseID: "c1", NodeIDs: []string{"a", "b"}, Version: 1}
	if err := s.SavePath(ctx, v1); err != nil {
		t.Fatalf("SavePath(v1) error = %v", err)
	}

	// Re-writing the same version or skipping ahead is a conflict.
	if err := s.SavePath(ctx, v1); !errors.Is(err, ErrStaleGeneration) {
		t.Errorf("SavePath(v1 again) error = %v, want ErrStaleGeneration", err)
	}
	v3 := &PathAssignment{StudentID: "s1", CourseID: "c1", NodeIDs: []string{"a"}, Version: 3}
	if err := s.SavePath(ctx, v3); !errors.Is(err, ErrStaleGeneration) {
		t.Errorf("SavePath(v3) error = %v, want ErrStaleGeneration", err)
	}

	v2 := &PathAssignment{StudentID: "s1", CourseID: "c1", NodeIDs: []string{"a", "b", "c"}, Version: 2}
	if err := s.SavePath(ctx, v2); err != nil {
		t.Fatalf("SavePath(v2) error = %v", err)
	}

	got, err := s.LoadPath(ctx, "s1", "c1")
	if err != nil {
		t.Fatalf("LoadPath() error = %v", err)
	}
	if got.Version != 2 {
		t.Errorf("latest version = %d, want 2", got.Version)
	}

	history, err := s.PathHistory(ctx, "s1", "c1")
	if err != nil {
		t.Fatalf("PathHistory() error = %v", err)
	}
	if len(history) != 2 {
		t.Errorf("history length = %d, want 2 (append-only)", len(history))
	}

	// Other courses are independent.
	other := &PathAssignment{StudentID: "s1", CourseID: "c2", NodeIDs: []string{"x"}, Version: 1}
	if err := s.SavePath(ctx, other); err != nil {
		t.Errorf("SavePath(other course) error = %v", err)
	}
}

func TestMemoryStoreAdvancePath(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	v1 := &PathAssignment{StudentID: "s1", CourseID: "c1", NodeIDs: []string{"a", "b"}, Version: 1}
	if err := s.SavePath(ctx, v1); err != nil {
		t.Fatalf("SavePath() error = %v", err)
	}

	if err := s.AdvancePath(ctx, "s1", "c1", 1, 1); err != nil {
		t.Fatalf("AdvancePath() error = %v", err)
	}
	got, err := s.LoadPath(ctx, "s1", "c1")
	if err != nil {
		t.Fatalf("LoadPath() error = %v", err)
	}
	if got.Position != 1 {
		t.Errorf("Position = %d, want 1", got.Position)
	}

	if err := s.AdvancePath(ctx, "s1", "c1", 9, 1); !errors.Is(err, ErrPathNotFound) {
		t.Errorf("AdvancePath(unknown version) error = %v, want ErrPathNotFound", err)
	}
}

func TestMemoryStoreEvents(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	events := []PerformanceEvent{
		{EventID: "e1", StudentID: "s1", Topic: "algebra", Seq: 1, Score: 0.4, OccurredAt: base},
		{EventID: "e2", StudentID: "s1", Topic: "geometry", Seq: 2, Score: 0.6, OccurredAt: base.Add(time.Minute)},
		{EventID: "e3", StudentID: "s1", Topic: "algebra", Seq: 3, Score: 0.8, OccurredAt: base.Add(2 * time.Minute)},
	}
	for _, ev := range events {
		if err := s.AppendEvent(ctx, ev); err != nil {
			t.Fatalf("AppendEvent(%s) error = %v", ev.EventID, err)
		}
	}

	if err := s.AppendEvent(ctx, events[0]); !errors.Is(err, ErrDuplicateEvent) {
		t.Fatalf("AppendEvent(duplicate) error = %v, want ErrDuplicateEvent", err)
	}

	recent, err := s.RecentEvents(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("RecentEvents() error = %v", err)
	}
	if len(recent) != 2 || recent[0].EventID != "e2" || recent[1].EventID != "e3" {
		t.Errorf("RecentEvents() = %v, want [e2 e3] in order", recent)
	}

	topic, err := s.RecentTopicEvents(ctx, "s1", "algebra", 10)
	if err != nil {
		t.Fatalf("RecentTopicEvents() error = %v", err)
	}
	if len(topic) != 2 || topic[0].EventID != "e1" || topic[1].EventID != "e3" {
		t.Errorf("RecentTopicEvents() = %v, want [e1 e3]", topic)
	}

	last, err := s.LastSeq(ctx, "s1")
	if err != nil {
		t.Fatalf("LastSeq() error = %v", err)
	}
	if last != 3 {
		t.Errorf("LastSeq() = %d, want 3", last)
	}

	if last, _ := s.LastSeq(ctx, "unknown"); last != 0 {
		t.Errorf("LastSeq(unknown) = %d, want 0", last)
	}
}

func TestMemoryStoreRisk(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	got, err := s.LatestRisk(ctx, "s1")
	if err != nil {
		t.Fatalf("LatestRisk() error = %v", err)
	}
	if got != nil {
		t.Fatalf("LatestRisk() = %v, want nil before any assessment", got)
	}

	for i, score := range []float64{0.2, 0.5, 0.9} {
		ra := RiskAssessment{
			StudentID: "s1",
			Score:     score,
			Band:      riskBand(score),
			CreatedAt: time.Date(2026, 3, 1, 9+i, 0, 0, 0, time.UTC),
		}
		if err := s.SaveRisk(ctx, ra); err != nil {
			t.Fatalf("SaveRisk() error = %v", err)
		}
	}

	got, err = s.LatestRisk(ctx, "s1")
	if err != nil {
		t.Fatalf("LatestRisk() error = %v", err)
	}
	if got == nil || got.Score != 0.9 {
		t.Fatalf("LatestRisk() = %v, want the newest assessment", got)
	}

	history, err := s.RiskHistory(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("RiskHistory() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("RiskHistory() length = %d, want 2", len(history))
	}

}

func TestMemoryStoreStudentIDs(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for _, id := range []string{"s2", "s1"} {
		if err := s.SaveProfile(ctx, NeutralProfile(id)); err != nil {
			t.Fatalf("SaveProfile(%s) error = %v", id, err)
		}
	}

	students, err := s.StudentIDs(ctx)
	if err != nil {
		t.Fatalf("StudentIDs() error = %v", err)
	}
	if len(students) != 2 || students[0] != "s1" || students[1] != "s2" {
		t.Errorf("StudentIDs() = %v, want [s1 s2]", students)
	}
}

package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ProfileStore persists student profiles and path assignments.
type ProfileStore interface {
	LoadProfile(ctx context.Context, studentID string) (*StudentProfile, error)
	SaveProfile(ctx context.Context, profile *StudentProfile) error

	// LoadPath returns the current (highest-version) assignment for the
	// student and course, or ErrPathNotFound.
	LoadPath(ctx context.Context, studentID, courseID string) (*PathAssignment, error)
	// SavePath appends a new assignment version. The version must be exactly
	// one above the stored latest; otherwise ErrStaleGeneration is returned
	// and nothing is written.
	SavePath(ctx context.Context, assignment *PathAssignment) error
	PathHistory(ctx context.Context, studentID, courseID string) ([]PathAssignment, error)
	// AdvancePath moves the position index of an existing assignment version.
	// The node sequence itself is never rewritten.
	AdvancePath(ctx context.Context, studentID, courseID string, version, position int) error
}

// EventLog records performance events exactly once per event id.
type EventLog interface {
	// AppendEvent stores the event, or returns ErrDuplicateEvent if the event
	// id was seen before.
	AppendEvent(ctx context.Context, ev PerformanceEvent) error
	// RecentEvents returns up to limit most recent events for the student in
	// chronological order.
	RecentEvents(ctx context.Context, studentID string, limit int) ([]PerformanceEvent, error)
	// RecentTopicEvents is RecentEvents restricted to one topic.
	RecentTopicEvents(ctx context.Context, studentID, topic string, limit int) ([]PerformanceEvent, error)
	// LastSeq returns the highest applied sequence number for the student, 0
	// if none.
	LastSeq(ctx context.Context, studentID string) (int64, error)
}

// RiskStore retains risk assessment history for trend analysis.
type RiskStore interface {
	SaveRisk(ctx context.Context, ra RiskAssessment) error
	LatestRisk(ctx context.Context, studentID string) (*RiskAssessment, error)
	RiskHistory(ctx context.Context, studentID string, limit int) ([]RiskAssessment, error)
}

// Store is the full persistence contract of the engine.
type Store interface {
	ProfileStore
	EventLog
	RiskStore

	// StudentIDs lists every student with a stored profile, for batch jobs.
	StudentIDs(ctx context.Context) ([]string, error)
}

// MemoryStore is an in-memory Store used in tests and single-node setups.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*StudentProfile
	paths    map[string][]PathAssignment // key: studentID + "/" + courseID
	events   map[string][]PerformanceEvent
	seen     map[string]bool // event ids
	lastSeq  map[string]int64
	risks    map[string][]RiskAssessment
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]*StudentProfile),
		paths:    make(map[string][]PathAssignment),
		events:   make(map[string][]PerformanceEvent),
		seen:     make(map[string]bool),
		lastSeq:  make(map[string]int64),
		risks:    make(map[string][]RiskAssessment),
	}
}

func pathKey(studentID, courseID string) string {
	return studentID + "/" + courseID
}

func (s *MemoryStore) LoadProfile(_ context.Context, studentID string) (*StudentProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[studentID]
	if !ok {
		return nil, fmt.Errorf("student %s: %w", studentID, ErrProfileNotFound)
	}
	return p.Clone(), nil
}

func (s *MemoryStore) SaveProfile(_ context.Context, profile *StudentProfile) error {
	if profile.StudentID == "" {
		return fmt.Errorf("student_id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := profile.Clone()
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now()
	}
	s.profiles[profile.StudentID] = cp
	return nil
}

func (s *MemoryStore) LoadPath(_ context.Context, studentID, courseID string) (*PathAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.paths[pathKey(studentID, courseID)]
	if len(history) == 0 {
		return nil, fmt.Errorf("student %s course %s: %w", studentID, courseID, ErrPathNotFound)
	}
	latest := history[len(history)-1]
	return &latest, nil
}

func (s *MemoryStore) SavePath(_ context.Context, assignment *PathAssignment) error {
	if assignment.StudentID == "" || assignment.CourseID == "" {
		return fmt.Errorf("student_id and course_id are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pathKey(assignment.StudentID, assignment.CourseID)
	latest := 0
	if history := s.paths[key]; len(history) > 0 {
		latest = history[len(history)-1].Version
	}
	if assignment.Version != latest+1 {
		return fmt.Errorf("want version %d, got %d: %w", latest+1, assignment.Version, ErrStaleGeneration)
	}

	cp := *assignment
	cp.NodeIDs = append([]string{}, assignment.NodeIDs...)
	cp.Reasons = append([]string{}, assignment.Reasons...)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.paths[key] = append(s.paths[key], cp)
	return nil
}

func (s *MemoryStore) AdvancePath(_ context.Context, studentID, courseID string, version, position int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.paths[pathKey(studentID, courseID)]
	for i := range history {
		if history[i].Version == version {
			history[i].Position = position
			return nil
		}
	}
	return fmt.Errorf("student %s course %s version %d: %w", studentID, courseID, version, ErrPathNotFound)
}

func (s *MemoryStore) PathHistory(_ context.Context, studentID, courseID string) ([]PathAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.paths[pathKey(studentID, courseID)]
	return append([]PathAssignment{}, history...), nil
}

func (s *MemoryStore) AppendEvent(_ context.Context, ev PerformanceEvent) error {
	if ev.EventID == "" || ev.StudentID == "" {
		return fmt.Errorf("event_id and student_id are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seen[ev.EventID] {
		return fmt.Errorf("event %s: %w", ev.EventID, ErrDuplicateEvent)
	}
	s.seen[ev.EventID] = true
	s.events[ev.StudentID] = append(s.events[ev.StudentID], ev)
	if ev.Seq > s.lastSeq[ev.StudentID] {
		s.lastSeq[ev.StudentID] = ev.Seq
	}
	return nil
}

func (s *MemoryStore) RecentEvents(_ context.Context, studentID string, limit int) ([]PerformanceEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tail(s.events[studentID], limit), nil
}

func (s *MemoryStore) RecentTopicEvents(_ context.Context, studentID, topic string, limit int) ([]PerformanceEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var filtered []PerformanceEvent
	for _, ev := range s.events[studentID] {
		if ev.Topic == topic {
			filtered = append(filtered, ev)
		}
	}
	return tail(filtered, limit), nil
}

func (s *MemoryStore) LastSeq(_ context.Context, studentID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeq[studentID], nil
}

func (s *MemoryStore) SaveRisk(_ context.Context, ra RiskAssessment) error {
	if ra.StudentID == "" {
		return fmt.Errorf("student_id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ra.CreatedAt.IsZero() {
		ra.CreatedAt = time.Now()
	}
	s.risks[ra.StudentID] = append(s.risks[ra.StudentID], ra)
	return nil
}

func (s *MemoryStore) LatestRisk(_ context.Context, studentID string) (*RiskAssessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.risks[studentID]
	if len(history) == 0 {
		return nil, nil
	}
	latest := history[len(history)-1]
	return &latest, nil
}

func (s *MemoryStore) RiskHistory(_ context.Context, studentID string, limit int) ([]RiskAssessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.risks[studentID]
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	return append([]RiskAssessment{}, history...), nil
}

func (s *MemoryStore) StudentIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.profiles))
	for id := range s.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func tail(events []PerformanceEvent, limit int) []PerformanceEvent {
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return append([]PerformanceEvent{}, events...)
}

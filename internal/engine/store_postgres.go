package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the engine's tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS student_profiles (
			student_id TEXT PRIMARY KEY,
			style      JSONB NOT NULL,
			mastery    JSONB NOT NULL,
			pace       TEXT NOT NULL,
			state      TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS path_assignments (
			student_id TEXT NOT NULL,
			course_id  TEXT NOT NULL,
			version    INT NOT NULL,
			node_ids   JSONB NOT NULL,
			position   INT NOT NULL,
			reasons    JSONB,
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (student_id, course_id, version)
		)`,
		`CREATE TABLE IF NOT EXISTS performance_events (
			event_id    TEXT PRIMARY KEY,
			student_id  TEXT NOT NULL,
			course_id   TEXT NOT NULL,
			node_id     TEXT NOT NULL,
			topic       TEXT NOT NULL,
			seq         BIGINT NOT NULL,
			score       DOUBLE PRECISION NOT NULL,
			time_spent  INT NOT NULL,
			hints_used  INT NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_student ON performance_events (student_id, occurred_at)`,
		`CREATE TABLE IF NOT EXISTS risk_assessments (
			id              BIGSERIAL PRIMARY KEY,
			student_id      TEXT NOT NULL,
			score           DOUBLE PRECISION NOT NULL,
			band            TEXT NOT NULL,
			confidence      TEXT NOT NULL,
			features        JSONB NOT NULL,
			interventions   JSONB,
			degraded        BOOLEAN NOT NULL,
			degraded_reason TEXT,
			created_at      TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_risk_student ON risk_assessments (student_id, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) LoadProfile(ctx context.Context, studentID string) (*StudentProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var (
		p            StudentProfile
		style, mastery []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT student_id, style, mastery, pace, state, updated_at
		 FROM student_profiles WHERE student_id = $1`,
		studentID,
	).Scan(&p.StudentID, &style, &mastery, &p.Pace, &p.State, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("student %s: %w", studentID, ErrProfileNotFound)
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}

	if err := json.Unmarshal(style, &p.Style); err != nil {
		return nil, fmt.Errorf("decode style: %w", err)
	}
	if err := json.Unmarshal(mastery, &p.Mastery); err != nil {
		return nil, fmt.Errorf("decode mastery: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) SaveProfile(ctx context.Context, profile *StudentProfile) error {
	if profile.StudentID == "" {
		return fmt.Errorf("student_id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	style, err := json.Marshal(profile.Style)
	if err != nil {
		return fmt.Errorf("encode style: %w", err)
	}
	mastery, err := json.Marshal(profile.Mastery)
	if err != nil {
		return fmt.Errorf("encode mastery: %w", err)
	}

	updatedAt := profile.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO student_profiles (student_id, style, mastery, pace, state, updated_at)
		 VALUES ($1, $2::jsonb, $3::jsonb, $4, $5, $6)
		 ON CONFLICT (student_id) DO UPDATE
		 SET style = EXCLUDED.style, mastery = EXCLUDED.mastery,
		     pace = EXCLUDED.pace, state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
		profile.StudentID, string(style), string(mastery), profile.Pace, profile.State, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadPath(ctx context.Context, studentID, courseID string) (*PathAssignment, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	a, err := s.scanPath(s.pool.QueryRow(ctx,
		`SELECT student_id, course_id, version, node_ids, position, reasons, created_at
		 FROM path_assignments
		 WHERE student_id = $1 AND course_id = $2
		 ORDER BY version DESC LIMIT 1`,
		studentID, courseID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("student %s course %s: %w", studentID, courseID, ErrPathNotFound)
		}
		return nil, fmt.Errorf("load path: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) SavePath(ctx context.Context, assignment *PathAssignment) error {
	if assignment.StudentID == "" || assignment.CourseID == "" {
		return fmt.Errorf("student_id and course_id are required")
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	nodeIDs, err := json.Marshal(assignment.NodeIDs)
	if err != nil {
		return fmt.Errorf("encode node ids: %w", err)
	}
	reasons, err := json.Marshal(assignment.Reasons)
	if err != nil {
		return fmt.Errorf("encode reasons: %w", err)
	}

	createdAt := assignment.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	// The version check and the insert run as one statement so concurrent
	// regeneration triggers cannot both write the same version.
	cmd, err := s.pool.Exec(ctx,
		`INSERT INTO path_assignments (student_id, course_id, version, node_ids, position, reasons, created_at)
		 SELECT $1, $2, $3, $4::jsonb, $5, $6::jsonb, $7
		 WHERE $3 = 1 + COALESCE(
		   (SELECT MAX(version) FROM path_assignments WHERE student_id = $1 AND course_id = $2), 0)`,
		assignment.StudentID, assignment.CourseID, assignment.Version,
		string(nodeIDs), assignment.Position, string(reasons), createdAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return fmt.Errorf("version %d: %w", assignment.Version, ErrStaleGeneration)
		}
		return fmt.Errorf("save path: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("version %d: %w", assignment.Version, ErrStaleGeneration)
	}
	return nil
}

func (s *PostgresStore) AdvancePath(ctx context.Context, studentID, courseID string, version, position int) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE path_assignments SET position = $4
		 WHERE student_id = $1 AND course_id = $2 AND version = $3`,
		studentID, courseID, version, position,
	)
	if err != nil {
		return fmt.Errorf("advance path: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("student %s course %s version %d: %w", studentID, courseID, version, ErrPathNotFound)
	}
	return nil
}

func (s *PostgresStore) PathHistory(ctx context.Context, studentID, courseID string) ([]PathAssignment, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT student_id, course_id, version, node_ids, position, reasons, created_at
		 FROM path_assignments
		 WHERE student_id = $1 AND course_id = $2
		 ORDER BY version ASC`,
		studentID, courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("query path history: %w", err)
	}
	defer rows.Close()

	var history []PathAssignment
	for rows.Next() {
		a, err := s.scanPath(rows)
		if err != nil {
			return nil, fmt.Errorf("scan path: %w", err)
		}
		history = append(history, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate paths: %w", err)
	}
	return history, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanPath(row rowScanner) (*PathAssignment, error) {
	var (
		a                PathAssignment
		nodeIDs, reasons []byte
	)
	if err := row.Scan(&a.StudentID, &a.CourseID, &a.Version, &nodeIDs, &a.Position, &reasons, &a.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(nodeIDs, &a.NodeIDs); err != nil {
		return nil, fmt.Errorf("decode node ids: %w", err)
	}
	if len(reasons) > 0 {
		if err := json.Unmarshal(reasons, &a.Reasons); err != nil {
			return nil, fmt.Errorf("decode reasons: %w", err)
		}
	}
	return &a, nil
}

func (s *PostgresStore) AppendEvent(ctx context.Context, ev PerformanceEvent) error {
	if ev.EventID == "" || ev.StudentID == "" {
		return fmt.Errorf("event_id and student_id are required")
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	occurredAt := ev.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	cmd, err := s.pool.Exec(ctx,
		`INSERT INTO performance_events
		   (event_id, student_id, course_id, node_id, topic, seq, score, time_spent, hints_used, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (event_id) DO NOTHING`,
		ev.EventID, ev.StudentID, ev.CourseID, ev.NodeID, ev.Topic,
		ev.Seq, ev.Score, ev.TimeSpent, ev.HintsUsed, occurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("event %s: %w", ev.EventID, ErrDuplicateEvent)
	}
	return nil
}

func (s *PostgresStore) RecentEvents(ctx context.Context, studentID string, limit int) ([]PerformanceEvent, error) {
	return s.queryEvents(ctx,
		`SELECT event_id, student_id, course_id, node_id, topic, seq, score, time_spent, hints_used, occurred_at
		 FROM (
		   SELECT * FROM performance_events
		   WHERE student_id = $1
		   ORDER BY occurred_at DESC LIMIT $2
		 ) recent ORDER BY occurred_at ASC`,
		studentID, limit)
}

func (s *PostgresStore) RecentTopicEvents(ctx context.Context, studentID, topic string, limit int) ([]PerformanceEvent, error) {
	return s.queryEvents(ctx,
		`SELECT event_id, student_id, course_id, node_id, topic, seq, score, time_spent, hints_used, occurred_at
		 FROM (
		   SELECT * FROM performance_events
		   WHERE student_id = $1 AND topic = $3
		   ORDER BY occurred_at DESC LIMIT $2
		 ) recent ORDER BY occurred_at ASC`,
		studentID, limit, topic)
}

func (s *PostgresStore) queryEvents(ctx context.Context, sql string, args ...any) ([]PerformanceEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []PerformanceEvent
	for rows.Next() {
		var ev PerformanceEvent
		if err := rows.Scan(&ev.EventID, &ev.StudentID, &ev.CourseID, &ev.NodeID, &ev.Topic,
			&ev.Seq, &ev.Score, &ev.TimeSpent, &ev.HintsUsed, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func (s *PostgresStore) LastSeq(ctx context.Context, studentID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var seq int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM performance_events WHERE student_id = $1`,
		studentID,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("query last seq: %w", err)
	}
	return seq, nil
}

func (s *PostgresStore) SaveRisk(ctx context.Context, ra RiskAssessment) error {
	if ra.StudentID == "" {
		return fmt.Errorf("student_id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	features, err := json.Marshal(ra.Features)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}
	interventions, err := json.Marshal(ra.Interventions)
	if err != nil {
		return fmt.Errorf("encode interventions: %w", err)
	}

	createdAt := ra.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO risk_assessments
		   (student_id, score, band, confidence, features, interventions, degraded, degraded_reason, created_at)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7, $8, $9)`,
		ra.StudentID, ra.Score, ra.Band, ra.Confidence,
		string(features), string(interventions), ra.Degraded, nullIfEmpty(ra.DegradedReason), createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert risk: %w", err)
	}
	return nil
}

func (s *PostgresStore) LatestRisk(ctx context.Context, studentID string) (*RiskAssessment, error) {
	history, err := s.RiskHistory(ctx, studentID, 1)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, nil
	}
	return &history[0], nil
}

func (s *PostgresStore) RiskHistory(ctx context.Context, studentID string, limit int) ([]RiskAssessment, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT student_id, score, band, confidence, features, interventions, degraded, degraded_reason, created_at
		 FROM (
		   SELECT * FROM risk_assessments
		   WHERE student_id = $1
		   ORDER BY created_at DESC LIMIT $2
		 ) recent ORDER BY created_at ASC`,
		studentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query risk history: %w", err)
	}
	defer rows.Close()

	var history []RiskAssessment
	for rows.Next() {
		var (
			ra                      RiskAssessment
			features, interventions []byte
			reason                  *string
		)
		if err := rows.Scan(&ra.StudentID, &ra.Score, &ra.Band, &ra.Confidence,
			&features, &interventions, &ra.Degraded, &reason, &ra.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan risk: %w", err)
		}
		if err := json.Unmarshal(features, &ra.Features); err != nil {
			return nil, fmt.Errorf("decode features: %w", err)
		}
		if len(interventions) > 0 {
			if err := json.Unmarshal(interventions, &ra.Interventions); err != nil {
				return nil, fmt.Errorf("decode interventions: %w", err)
			}
		}
		if reason != nil {
			ra.DegradedReason = *reason
		}
		history = append(history, ra)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate risks: %w", err)
	}
	return history, nil
}

func (s *PostgresStore) StudentIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT student_id FROM student_profiles ORDER BY student_id`)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan student id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return ids, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ReassessResult summarizes one batch risk sweep.
type ReassessResult struct {
	Assessed int `json:"assessed"`
	Alerted  int `json:"alerted"`
	Failed   int `json:"failed"`
}

// Reassess recomputes risk for every known student. Intended for a periodic
// sweep so risk stays current for students who stopped producing events,
// which is exactly when risk matters most. Cancellation is checked between
// students; a partial sweep returns the context error alongside counts.
func (e *Engine) Reassess(ctx context.Context) (*ReassessResult, error) {
	students, err := e.store.StudentIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing students: %w", err)
	}

	result := &ReassessResult{}
	for _, studentID := range students {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		alerted, err := e.reassessStudent(ctx, studentID)
		if err != nil {
			result.Failed++
			slog.Warn("risk reassessment failed", "student_id", studentID, "error", err)
			continue
		}
		result.Assessed++
		if alerted {
			result.Alerted++
		}
	}

	slog.Info("risk sweep complete",
		"assessed", result.Assessed,
		"alerted", result.Alerted,
		"failed", result.Failed,
	)
	return result, nil
}

func (e *Engine) reassessStudent(ctx context.Context, studentID string) (bool, error) {
	unlock := e.lockStudent(studentID)
	defer unlock()

	profile, err := e.store.LoadProfile(ctx, studentID)
	if err != nil {
		return false, fmt.Errorf("loading profile: %w", err)
	}
	recent, err := e.store.RecentEvents(ctx, studentID, e.cfg.WindowSize)
	if err != nil {
		return false, fmt.Errorf("loading recent events: %w", err)
	}

	ra := e.risk.Assess(ctx, profile, recent)
	if err := e.store.SaveRisk(ctx, ra); err != nil {
		return false, fmt.Errorf("saving risk: %w", err)
	}

	alerted := e.risk.Intervene(ra)
	e.maybeNotify(ctx, ra)
	return alerted, nil
}

// RunSweeper runs Reassess on the given interval until ctx is cancelled.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.Reassess(ctx); err != nil && ctx.Err() == nil {
				slog.Error("risk sweep aborted", "error", err)
			}
		}
	}
}

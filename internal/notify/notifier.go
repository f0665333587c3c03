// Package notify delivers out-of-band risk intervention alerts to
// instructors, with per-student cooldowns to avoid alert storms.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Alert is an instructor-facing risk intervention notification.
type Alert struct {
	StudentID     string    `json:"student_id"`
	Score         float64   `json:"score"`
	Band          string    `json:"band"`
	Interventions []string  `json:"interventions,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Notifier delivers alerts.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// NopNotifier drops all alerts.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Alert) error { return nil }

// MemoryNotifier records alerts for tests.
type MemoryNotifier struct {
	mu     sync.Mutex
	alerts []Alert
}

func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{}
}

func (n *MemoryNotifier) Notify(_ context.Context, alert Alert) error {
	n.mu.Lock()
	n.alerts = append(n.alerts, alert)
	n.mu.Unlock()
	return nil
}

func (n *MemoryNotifier) Alerts() []Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Alert{}, n.alerts...)
}

// Cooldown gates alerts so a student triggers at most one per period.
type Cooldown interface {
	// Allow reports whether an alert may be sent now, and if so starts the
	// cooldown period.
	Allow(ctx context.Context, studentID string) (bool, error)
}

// MemoryCooldown is an in-process cooldown for tests and single-node setups.
type MemoryCooldown struct {
	period time.Duration
	mu     sync.Mutex
	last   map[string]time.Time
	now    func() time.Time
}

func NewMemoryCooldown(period time.Duration) *MemoryCooldown {
	return &MemoryCooldown{
		period: period,
		last:   make(map[string]time.Time),
		now:    time.Now,
	}
}

func (c *MemoryCooldown) Allow(_ context.Context, studentID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if last, ok := c.last[studentID]; ok && now.Sub(last) < c.period {
		return false, nil
	}
	c.last[studentID] = now
	return true, nil
}

// RedisCooldown shares the cooldown across engine instances.
type RedisCooldown struct {
	client *redis.Client
	period time.Duration
}

func NewRedisCooldown(client *redis.Client, period time.Duration) *RedisCooldown {
	return &RedisCooldown{client: client, period: period}
}

func (c *RedisCooldown) Allow(ctx context.Context, studentID string) (bool, error) {
	ok, err := c.client.SetNX(ctx, "risk-alert:"+studentID, 1, c.period).Result()
	if err != nil {
		return false, fmt.Errorf("cooldown check: %w", err)
	}
	return ok, nil
}

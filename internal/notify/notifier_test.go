package notify

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCooldown(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := NewMemoryCooldown(time.Hour)
	c.now = func() time.Time { return now }

	ok, err := c.Allow(ctx, "s1")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !ok {
		t.Fatal("Allow() = false on first alert")
	}

	// Within the period: blocked.
	now = now.Add(30 * time.Minute)
	if ok, _ := c.Allow(ctx, "s1"); ok {
		t.Error("Allow() = true inside the cooldown period")
	}

	// Other students are independent.
	if ok, _ := c.Allow(ctx, "s2"); !ok {
		t.Error("Allow(s2) = false, want independent cooldowns")
	}

	// After the period: allowed again.
	now = now.Add(31 * time.Minute)
	if ok, _ := c.Allow(ctx, "s1"); !ok {
		t.Error("Allow() = false after the cooldown elapsed")
	}
}

func TestMemoryNotifierRecordsAlerts(t *testing.T) {
	n := NewMemoryNotifier()
	alert := Alert{StudentID: "s1", Score: 0.9, Band: "critical"}
	if err := n.Notify(context.Background(), alert); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	alerts := n.Alerts()
	if len(alerts) != 1 || alerts[0].StudentID != "s1" {
		t.Errorf("Alerts() = %v, want the recorded alert", alerts)
	}
}

package cron_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/basket/boxgate/internal/bus"
	"github.com/basket/boxgate/internal/cron"
)

// waitFor polls check at short intervals until it returns true or the
// deadline elapses.
func waitFor(t *testing.T, deadline time.Duration, check func() bool) {
	t.Helper()
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestSchedulerDisabledWhenNoExpr(t *testing.T) {
	s, err := cron.NewScheduler(cron.Config{})
	if err != nil {
		t.Fatalf("empty expr should not error: %v", err)
	}
	if s != nil {
		t.Fatal("empty expr should return a nil scheduler")
	}
	// Nil receivers are safe.
	s.Start(context.Background())
	s.Stop()
}

func TestSchedulerRejectsBadExpr(t *testing.T) {
	_, err := cron.NewScheduler(cron.Config{
		Expr:  "not a cron expr",
		Probe: func(context.Context) (any, error) { return nil, nil },
	})
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSchedulerProbesAndPublishes(t *testing.T) {
	b := bus.New()
	sub := b.Subscribe(bus.TopicHealthProbe)
	defer b.Unsubscribe(sub)

	var calls atomic.Int64
	s, err := cron.NewScheduler(cron.Config{
		Expr: "*/5 * * * *",
		Probe: func(context.Context) (any, error) {
			calls.Add(1)
			return nil, nil
		},
		Bus:      b,
		Interval: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	s.Start(context.Background())
	defer s.Stop()

	// The startup probe fires without waiting for the schedule.
	waitFor(t, 2*time.Second, func() bool { return calls.Load() >= 1 })

	select {
	case msg := <-sub.Ch():
		ev, ok := msg.Payload.(bus.HealthProbeEvent)
		if !ok || !ev.Healthy {
			t.Fatalf("unexpected probe event: %+v", msg.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no health probe event published")
	}
}

func TestSchedulerReportsProbeFailure(t *testing.T) {
	b := bus.New()
	sub := b.Subscribe(bus.TopicHealthProbe)
	defer b.Unsubscribe(sub)

	s, err := cron.NewScheduler(cron.Config{
		Expr: "0 0 * * *",
		Probe: func(context.Context) (any, error) {
			return nil, errors.New("connection refused")
		},
		Bus:      b,
		Interval: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	s.Start(context.Background())
	defer s.Stop()

	select {
	case msg := <-sub.Ch():
		ev, ok := msg.Payload.(bus.HealthProbeEvent)
		if !ok || ev.Healthy {
			t.Fatalf("expected unhealthy probe event, got %+v", msg.Payload)
		}
		if ev.Detail == "" {
			t.Fatal("failure event should carry a detail message")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no health probe event published")
	}
}

func TestNextRunTime(t *testing.T) {
	after := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	next, err := cron.NextRunTime("0 12 * * *", after)
	if err != nil {
		t.Fatalf("next run: %v", err)
	}
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}

	if _, err := cron.NextRunTime("bogus", after); err == nil {
		t.Fatal("expected error for bad expression")
	}
}

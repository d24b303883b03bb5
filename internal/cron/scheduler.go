// Package cron runs boxgate's scheduled maintenance jobs. The only job is
// the periodic upstream health probe; its schedule comes from config as a
// standard cron expression.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/basket/boxgate/internal/bus"
)

// cronParser parses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

const probeTimeout = 10 * time.Second

// Probe checks upstream reachability. sandbox.API.Health satisfies this.
type Probe func(ctx context.Context) (any, error)

// Config holds the dependencies for the maintenance scheduler.
type Config struct {
	Expr     string // cron expression for the health probe; empty disables it
	Probe    Probe
	Bus      *bus.Bus
	Logger   *slog.Logger
	Interval time.Duration // tick granularity; defaults to 30 seconds
}

// Scheduler fires the health probe whenever its cron schedule is due.
type Scheduler struct {
	schedule cronlib.Schedule
	probe    Probe
	bus      *bus.Bus
	logger   *slog.Logger
	interval time.Duration

	nextRun time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler validates the cron expression and builds the scheduler.
// A nil scheduler with a nil error means maintenance is disabled.
func NewScheduler(cfg Config) (*Scheduler, error) {
	if cfg.Expr == "" {
		return nil, nil
	}
	schedule, err := cronParser.Parse(cfg.Expr)
	if err != nil {
		return nil, fmt.Errorf("parse health probe cron %q: %w", cfg.Expr, err)
	}
	if cfg.Probe == nil {
		return nil, fmt.Errorf("health probe cron configured without a probe")
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		schedule: schedule,
		probe:    cfg.Probe,
		bus:      cfg.Bus,
		logger:   logger,
		interval: interval,
	}, nil
}

// Start begins the scheduler loop in a background goroutine. Safe to call
// on a nil receiver (maintenance disabled).
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.nextRun = s.schedule.Next(time.Now())
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("maintenance scheduler started", "next_run", s.nextRun)
}

// Stop cancels the loop and waits for it to exit. Safe on nil.
func (s *Scheduler) Stop() {
	if s == nil {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("maintenance scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Probe once at startup so a bad credential or URL surfaces
	// immediately instead of at the first scheduled run.
	s.fire(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if now.Before(s.nextRun) {
				continue
			}
			s.fire(ctx)
			s.nextRun = s.schedule.Next(now)
		}
	}
}

// fire runs one health probe and reports the outcome.
func (s *Scheduler) fire(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := time.Now()
	_, err := s.probe(probeCtx)
	elapsed := time.Since(start)

	ev := bus.HealthProbeEvent{Healthy: err == nil}
	if err != nil {
		ev.Detail = err.Error()
		s.logger.Warn("upstream health probe failed", "error", err, "elapsed", elapsed)
	} else {
		s.logger.Debug("upstream health probe ok", "elapsed", elapsed)
	}
	if s.bus != nil {
		s.bus.Publish(bus.TopicHealthProbe, ev)
	}
}

// NextRunTime returns the first time the expression fires after the given
// instant. Used by doctor to validate configured schedules.
func NextRunTime(cronExpr string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}

// services/scheduler.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// RunGuard lets at most one distribution run through at a time.
type RunGuard struct {
	running atomic.Bool

	mu      sync.RWMutex
	lastRun *time.Time
}

func NewRunGuard() *RunGuard {
	return &RunGuard{}
}

// TryAcquire flips the guard to running. It never waits.
func (g *RunGuard) TryAcquire() bool {
	return g.running.CompareAndSwap(false, true)
}

// Release records when the run finished and returns the guard to idle.
func (g *RunGuard) Release(finishedAt time.Time) {
	g.mu.Lock()
	t := finishedAt.UTC()
	g.lastRun = &t
	g.mu.Unlock()
	g.running.Store(false)
}

func (g *RunGuard) Running() bool {
	return g.running.Load()
}

func (g *RunGuard) LastRun() *time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.lastRun == nil {
		return nil
	}
	t := *g.lastRun
	return &t
}

type SchedulerConfig struct {
	Hour         int
	Minute       int
	RunOnStartup bool
}

type SchedulerStatus struct {
	Running         bool       `json:"running"`
	Scheduled       bool       `json:"scheduled"`
	LastRunTime     *time.Time `json:"last_run_time"`
	NextRunTime     time.Time  `json:"next_run_time"`
	TimeUntilNext   string     `json:"time_until_next"`
	TimeUntilNextMs int64      `json:"time_until_next_ms"`
}

// Scheduler fires the daily run at a fixed UTC time and serializes it with
// manual triggers through a shared RunGuard.
type Scheduler struct {
	engine *DistributionService
	guard  *RunGuard
	clock  clockwork.Clock
	log    *zap.Logger

	cronExpr     string
	schedule     cron.Schedule
	runOnStartup bool

	mu    sync.Mutex
	sched gocron.Scheduler
}

func NewScheduler(engine *DistributionService, guard *RunGuard, cfg SchedulerConfig, clock clockwork.Clock, log *zap.Logger) (*Scheduler, error) {
	if cfg.Hour < 0 || cfg.Hour > 23 || cfg.Minute < 0 || cfg.Minute > 59 {
		return nil, fmt.Errorf("invalid run time %02d:%02d", cfg.Hour, cfg.Minute)
	}
	cronExpr := fmt.Sprintf("CRON_TZ=UTC %d %d * * *", cfg.Minute, cfg.Hour)
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", cronExpr, err)
	}
	if guard == nil {
		guard = NewRunGuard()
	}
	return &Scheduler{
		engine:       engine,
		guard:        guard,
		clock:        clock,
		log:          log,
		cronExpr:     cronExpr,
		schedule:     schedule,
		runOnStartup: cfg.RunOnStartup,
	}, nil
}

// Start registers the daily job. Scheduled runs keep ctx's values but not
// its cancellation; Stop waits for a run in flight.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sched != nil {
		return nil
	}

	sched, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithClock(s.clock),
	)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.CronJob(s.cronExpr, false),
		gocron.NewTask(func() { s.runScheduled(ctx, "cron") }),
		gocron.WithName("daily-roi-distribution"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("register daily job: %w", err)
	}

	sched.Start()
	s.sched = sched
	s.log.Info("[Scheduler] daily distribution scheduled",
		zap.String("cron", s.cronExpr),
		zap.Time("next_run", s.NextRunAfter(s.clock.Now())))

	if s.runOnStartup {
		go s.runScheduled(ctx, "startup")
	}
	return nil
}

func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sched == nil {
		return nil
	}
	err := s.sched.Shutdown()
	s.sched = nil
	return err
}

func (s *Scheduler) runScheduled(ctx context.Context, trigger string) {
	summary, err := s.TriggerDaily(ctx, DailyRunOptions{ActorID: "scheduler:" + trigger})
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		s.log.Warn("[Scheduler] skipped, run already in progress", zap.String("trigger", trigger))
	case err != nil:
		s.log.Error("[Scheduler] daily run failed", zap.String("trigger", trigger), zap.Error(err))
	default:
		s.log.Info("[Scheduler] daily run complete",
			zap.String("trigger", trigger),
			zap.String("status", string(summary.Status)),
			zap.Int("processed", summary.Processed))
	}
}

// TriggerDaily runs the daily batch now, or fails with ErrAlreadyRunning.
func (s *Scheduler) TriggerDaily(ctx context.Context, opts DailyRunOptions) (*RunSummary, error) {
	if !s.guard.TryAcquire() {
		return nil, ErrAlreadyRunning
	}
	defer func() { s.guard.Release(s.clock.Now()) }()
	return s.engine.RunDaily(ctx, opts)
}

// TriggerBackfill runs a backfill pass now, or fails with ErrAlreadyRunning.
func (s *Scheduler) TriggerBackfill(ctx context.Context, actorID string) (*RunSummary, error) {
	if !s.guard.TryAcquire() {
		return nil, ErrAlreadyRunning
	}
	defer func() { s.guard.Release(s.clock.Now()) }()
	return s.engine.RunBackfill(ctx, actorID)
}

// NextRunAfter is the first scheduled fire time strictly after t.
func (s *Scheduler) NextRunAfter(t time.Time) time.Time {
	return s.schedule.Next(t.UTC()).UTC()
}

func (s *Scheduler) Status() SchedulerStatus {
	now := s.clock.Now().UTC()
	next := s.NextRunAfter(now)
	until := next.Sub(now)

	s.mu.Lock()
	scheduled := s.sched != nil
	s.mu.Unlock()

	return SchedulerStatus{
		Running:         s.guard.Running(),
		Scheduled:       scheduled,
		LastRunTime:     s.guard.LastRun(),
		NextRunTime:     next,
		TimeUntilNext:   until.Round(time.Second).String(),
		TimeUntilNextMs: until.Milliseconds(),
	}
}

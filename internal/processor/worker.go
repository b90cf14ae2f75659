package processor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs a tick every minute.
const DefaultSchedule = "@every 1m"

// Ticker runs one unit of queue work. *Processor implements it.
type Ticker interface {
	Tick(ctx context.Context) (Report, error)
}

// Worker runs ticks on a cron schedule and on demand, one at a time.
type Worker struct {
	proc     Ticker
	schedule cron.Schedule
	spec     string
	sweeps   []sweep
	mu       sync.Mutex
	logger   *slog.Logger
}

// sweep is housekeeping scheduled next to the ticks.
type sweep struct {
	name string
	spec string
	fn   func(ctx context.Context) (int, error)
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewWorker creates a Worker. An empty schedule uses DefaultSchedule.
func NewWorker(proc Ticker, schedule string) (*Worker, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	sched, err := parser.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("parsing schedule %q: %w", schedule, err)
	}
	return &Worker{
		proc:     proc,
		schedule: sched,
		spec:     schedule,
		logger:   slog.Default(),
	}, nil
}

// Interval estimates the time between two scheduled ticks.
func (w *Worker) Interval() time.Duration {
	base := time.Date(2025, time.January, 6, 0, 0, 0, 0, time.UTC)
	first := w.schedule.Next(base)
	return w.schedule.Next(first).Sub(first)
}

// AddSweep schedules fn on spec while Run is active. fn returns the number
// of records it removed. Sweeps added after Run starts are ignored.
func (w *Worker) AddSweep(name, spec string, fn func(ctx context.Context) (int, error)) error {
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("parsing %s sweep schedule %q: %w", name, spec, err)
	}
	w.sweeps = append(w.sweeps, sweep{name: name, spec: spec, fn: fn})
	return nil
}

func (w *Worker) runSweep(ctx context.Context, s sweep) {
	n, err := s.fn(ctx)
	if err != nil {
		w.logger.Error("sweep failed", "sweep", s.name, "error", err)
		return
	}
	if n > 0 {
		w.logger.Info("sweep finished", "sweep", s.name, "removed", n)
	}
}

// Run schedules ticks until ctx is cancelled, then waits for a running tick.
func (w *Worker) Run(ctx context.Context) {
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cronLogger{w.logger}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{w.logger})),
	)
	_, err := c.AddFunc(w.spec, func() {
		if ctx.Err() != nil {
			return
		}
		w.RunOnce(ctx)
	})
	if err != nil {
		w.logger.Error("scheduling processor", "schedule", w.spec, "error", err)
		return
	}
	for _, s := range w.sweeps {
		if _, err := c.AddFunc(s.spec, func() {
			if ctx.Err() != nil {
				return
			}
			w.runSweep(ctx, s)
		}); err != nil {
			w.logger.Error("scheduling sweep", "sweep", s.name, "schedule", s.spec, "error", err)
		}
	}

	w.logger.Info("processor scheduled", "schedule", w.spec)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
}

// RunOnce runs a single tick. Concurrent calls are serialized.
func (w *Worker) RunOnce(ctx context.Context) (Report, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	r, err := w.proc.Tick(ctx)
	if err != nil {
		w.logger.Error("tick failed", "job_id", r.JobID, "error", err)
		return r, err
	}
	if r.Action == ActionIdle {
		w.logger.Debug("tick idle")
		return r, nil
	}
	w.logger.Info("tick finished", "job_id", r.JobID, "action", r.Action, "deleted", r.Deleted, "skipped", r.Skipped)
	return r, nil
}

// cronLogger routes cron's own logging through slog.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

package evolution

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Runner triggers evolution cycles on idle and on a periodic schedule.
// It runs in its own goroutine, communicating with the agent loop only
// through the decisions store.
type Runner struct {
	engine        *Engine
	idleThreshold time.Duration
	schedule      string

	mu       sync.Mutex
	lastWork time.Time
	cron     *cron.Cron
	stop     chan struct{}
	logger   *slog.Logger
}

// NewRunner builds a runner. idleThreshold defaults to 5 minutes;
// schedule is a cron expression, defaulting to hourly.
func NewRunner(engine *Engine, idleThreshold time.Duration, schedule string) *Runner {
	if idleThreshold <= 0 {
		idleThreshold = 5 * time.Minute
	}
	if schedule == "" {
		schedule = "@hourly"
	}
	return &Runner{
		engine:        engine,
		idleThreshold: idleThreshold,
		schedule:      schedule,
		lastWork:      time.Now(),
		stop:          make(chan struct{}),
		logger:        slog.Default().With("component", "evolution"),
	}
}

// NoteActivity resets the idle timer; the chat command calls this after
// every turn, and the idle watcher calls it after each cycle it starts.
func (r *Runner) NoteActivity() {
	r.mu.Lock()
	r.lastWork = time.Now()
	r.mu.Unlock()
}

// Start launches the idle watcher and the cron schedule.
func (r *Runner) Start(ctx context.Context) error {
	r.cron = cron.New()
	if _, err := r.cron.AddFunc(r.schedule, func() { r.runOnce(ctx) }); err != nil {
		return err
	}
	r.cron.Start()

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stop:
				return
			case <-ticker.C:
				r.mu.Lock()
				idle := time.Since(r.lastWork)
				r.mu.Unlock()
				if idle >= r.idleThreshold {
					r.runOnce(ctx)
					r.NoteActivity()
				}
			}
		}
	}()
	return nil
}

// Stop halts the schedule and the idle watcher.
func (r *Runner) Stop() {
	close(r.stop)
	if r.cron != nil {
		r.cron.Stop()
	}
}

func (r *Runner) runOnce(ctx context.Context) {
	if err := r.engine.RunCycle(ctx); err != nil {
		r.logger.Warn("evolution cycle failed", "error", err)
	}
}

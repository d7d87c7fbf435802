package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "pagewatch/pkg/logx"
)

// Config controls the runner.
type Config struct {
	RefreshInterval time.Duration // fixed cache refresh cadence
	Window          Window        // notification pass gate
	MaintenanceAt   string        // "HH:MM" daily store maintenance, "" disables
}

// Runner owns the engine's timers. Both loops are single-threaded and
// cooperative: a refresh never overlaps a refresh, a pass never overlaps a
// pass, and each loop's timer restarts only after its work completes.
type Runner struct {
	cfg Config
	log logx.Logger

	refresh  func(ctx context.Context)
	notify   func(ctx context.Context)
	maintain func(ctx context.Context) error

	gate Gate

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	c       *cron.Cron
	started bool
}

func NewRunner(cfg Config, refresh, notify func(ctx context.Context), maintain func(ctx context.Context) error, log logx.Logger) *Runner {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 5 * time.Minute
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{
		cfg:      cfg,
		log:      log,
		refresh:  refresh,
		notify:   notify,
		maintain: maintain,
	}
}

// Start launches the refresh loop, the minute gate, and the daily
// maintenance schedule. It returns immediately.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	done := make(chan struct{})
	r.done = done

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.refreshLoop(runCtx)
	}()
	go func() {
		defer wg.Done()
		r.minuteLoop(runCtx)
	}()
	go func() {
		wg.Wait()
		close(done)
	}()

	if r.cfg.MaintenanceAt != "" && r.maintain != nil {
		if h, m, err := parseHHMM(r.cfg.MaintenanceAt); err != nil {
			r.log.Warn("invalid maintenance time, skipping daily maintenance",
				logx.String("at", r.cfg.MaintenanceAt), logx.Err(err))
		} else {
			loc := r.cfg.Window.Location
			if loc == nil {
				loc = time.Local
			}
			c := cron.New(cron.WithLocation(loc))
			spec := cronDailySpec(h, m)
			_, err := c.AddFunc(spec, func() {
				if err := r.maintain(runCtx); err != nil {
					r.log.Warn("store maintenance failed", logx.Err(err))
				} else {
					r.log.Debug("store maintenance done")
				}
			})
			if err != nil {
				r.log.Warn("maintenance schedule rejected", logx.String("spec", spec), logx.Err(err))
			} else {
				c.Start()
				r.c = c
			}
		}
	}

	r.log.Info("scheduler started",
		logx.Duration("refresh_interval", r.cfg.RefreshInterval),
		logx.String("window", r.cfg.Window.String()))
}

// Stop cancels both loops and waits for in-flight work to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	done := r.done
	c := r.c
	r.cancel = nil
	r.done = nil
	r.c = nil
	r.started = false
	r.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	r.log.Info("scheduler stopped")
}

// refreshLoop runs an immediate refresh, then re-arms a fixed-interval timer
// only after each refresh completes, so refreshes never overlap.
func (r *Runner) refreshLoop(ctx context.Context) {
	r.refresh(ctx)
	timer := time.NewTimer(r.cfg.RefreshInterval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		r.refresh(ctx)
		timer.Reset(r.cfg.RefreshInterval)
	}
}

// minuteLoop self-reschedules to each minute boundary (computing the
// remaining time rather than using a fixed period, so drift does not
// accumulate) and fires the notification pass when the window matches.
// The gate keeps the pass at most-once per matching minute.
func (r *Runner) minuteLoop(ctx context.Context) {
	timer := time.NewTimer(nextMinuteDelay(time.Now()))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		now := time.Now()
		if r.cfg.Window.Matches(now) && r.gate.TryFire(now) {
			r.notify(ctx)
		}
		timer.Reset(nextMinuteDelay(time.Now()))
	}
}

// boundaryPad lands the wakeup just past the minute boundary so the check
// reads the intended minute even when the timer fires marginally early.
const boundaryPad = 50 * time.Millisecond

func nextMinuteDelay(now time.Time) time.Duration {
	next := now.Truncate(time.Minute).Add(time.Minute)
	return next.Sub(now) + boundaryPad
}

func cronDailySpec(hour, minute int) string {
	return fmt.Sprintf("%d %d * * *", minute, hour)
}

// Package app wires the engine together: store, cache, registry, ledger,
// notifier, scheduler, and the Telegram transport.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pagewatch/internal/cache"
	"pagewatch/internal/config"
	"pagewatch/internal/kv"
	"pagewatch/internal/ledger"
	"pagewatch/internal/notifier"
	"pagewatch/internal/schedule"
	"pagewatch/internal/source"
	"pagewatch/internal/tenant"
	telegram "pagewatch/internal/transport/telegram"
	logx "pagewatch/pkg/logx"
)

type App struct {
	log logx.Logger

	store    kv.Store
	cache    *cache.Cache
	registry *tenant.Registry
	ledger   *ledger.Ledger
	notifier *notifier.Notifier
	src      source.Adapter
	runner   *schedule.Runner
	adapter  *telegram.Adapter

	window schedule.Window
}

// New builds the app from config. Configuration problems are fatal here and
// nowhere else.
func New(cfg *config.Config) (*App, error) {
	log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console || !cfg.Logging.File.Enabled,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	// Store.
	driver := cfg.Storage.Driver
	if driver == "" {
		driver = config.DefaultStorageDriver
	}
	path := cfg.Storage.Path
	if path == "" {
		path = config.DefaultStoragePath
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := kv.Open(kv.Config{Driver: driver, Path: path, BusyTimeout: busy},
		log.With(logx.String("comp", "kv")))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	// Source adapter.
	srcTimeout, err := config.ParseDurationOrDefault("source.timeout", cfg.Source.Timeout, config.DefaultSourceTimeout)
	if err != nil {
		return nil, err
	}
	src, err := source.NewHTTP(source.HTTPConfig{URL: cfg.Source.URL, Timeout: srcTimeout},
		log.With(logx.String("comp", "source")))
	if err != nil {
		return nil, &config.Error{Field: "source.url", Reason: err.Error()}
	}

	// Notification window.
	winStart := orDefault(cfg.Notify.WindowStart, config.DefaultWindowStart)
	winEnd := orDefault(cfg.Notify.WindowEnd, config.DefaultWindowEnd)
	winStep, err := config.ParseDurationOrDefault("notify.window_step", cfg.Notify.WindowStep, config.DefaultWindowStep)
	if err != nil {
		return nil, err
	}
	tz := orDefault(cfg.Notify.Timezone, config.DefaultTimezone)
	window, err := schedule.NewWindow(winStart, winEnd, winStep, tz)
	if err != nil {
		return nil, &config.Error{Field: "notify", Reason: err.Error()}
	}

	chunkSize := cfg.Notify.ChunkSize
	if chunkSize == 0 {
		chunkSize = config.DefaultChunkSize
	}

	// Telegram transport.
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, config.DefaultPollTimeout)
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, &config.Error{Field: "telegram.token", Reason: err.Error()}
	}

	// Engine state.
	cc := cache.New(src, log.With(logx.String("comp", "cache")))
	registry := tenant.NewRegistry(store, log.With(logx.String("comp", "registry")))
	led := ledger.New(store, log.With(logx.String("comp", "ledger")))
	notif := notifier.New(cc, registry, led, adapter, chunkSize, log.With(logx.String("comp", "notifier")))

	refreshInterval, err := config.ParseDurationOrDefault("refresh.interval", cfg.Refresh.Interval, config.DefaultRefreshInterval)
	if err != nil {
		return nil, err
	}

	a := &App{
		log:      log.With(logx.String("comp", "app")),
		store:    store,
		cache:    cc,
		registry: registry,
		ledger:   led,
		notifier: notif,
		src:      src,
		adapter:  adapter,
		window:   window,
	}
	a.runner = schedule.NewRunner(schedule.Config{
		RefreshInterval: refreshInterval,
		Window:          window,
		MaintenanceAt:   cfg.Maintenance.DailyAt,
	}, a.refreshCycle, a.notifyPass, store.Maintain, log.With(logx.String("comp", "schedule")))

	return a, nil
}

// Start loads persisted state and launches polling and the scheduler.
func (a *App) Start(ctx context.Context) error {
	if err := a.registry.Load(ctx); err != nil {
		// Unreadable state is not fatal: the registry starts empty and the
		// command layer rebuilds it.
		a.log.Warn("tenant registry load failed, starting empty", logx.Err(err))
	}
	if err := a.ledger.Load(ctx); err != nil {
		a.log.Warn("dedup ledger load failed, starting empty", logx.Err(err))
	}

	a.adapter.BindCommands(telegram.CommandDeps{
		Registry:   a.registry,
		KnownItems: a.cache.IDs,
		Status:     a.statusText,
	})
	a.adapter.Start(ctx)
	a.runner.Start(ctx)
	a.log.Info("started", logx.String("window", a.window.String()))
	return nil
}

// Stop shuts everything down in reverse order of Start.
func (a *App) Stop(ctx context.Context) error {
	a.runner.Stop()
	a.adapter.Stop(ctx)
	if err := a.store.Close(); err != nil {
		a.log.Warn("store close failed", logx.Err(err))
	}
	a.log.Info("stopped")
	return a.log.Close()
}

// refreshCycle is the scheduler's refresh duty: list remote pages, then
// refresh the cache. A failed listing skips the cycle; stale cache entries
// stay valid.
func (a *App) refreshCycle(ctx context.Context) {
	labels, err := a.src.List(ctx)
	if err != nil {
		a.log.Warn("page listing failed, skipping refresh cycle", logx.Err(err))
		return
	}
	rep := a.cache.RefreshAll(ctx, labels)
	a.log.Info("refresh cycle done",
		logx.Int("refreshed", len(rep.Refreshed)),
		logx.Int("failed", len(rep.Failed)),
		logx.Duration("took", rep.Finished.Sub(rep.Started)))
}

// notifyPass is the scheduler's gated duty.
func (a *App) notifyPass(ctx context.Context) {
	a.notifier.RunOnce(ctx)
}

func (a *App) statusText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "pages cached: %d\n", a.cache.Len())
	fmt.Fprintf(&b, "tenants: %d\n", len(a.registry.ListAll()))
	fmt.Fprintf(&b, "window: %s\n", a.window)
	if t := a.cache.LastRefresh(); !t.IsZero() {
		fmt.Fprintf(&b, "last refresh: %s\n", t.Format(time.RFC3339))
	} else {
		b.WriteString("last refresh: never\n")
	}
	if t := a.notifier.LastPass(); !t.IsZero() {
		fmt.Fprintf(&b, "last pass: %s", t.Format(time.RFC3339))
	} else {
		b.WriteString("last pass: never")
	}
	return b.String()
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// Package notifier computes which (tenant, item) pairs changed and delivers
// chunked notifications, updating the dedup ledger only on confirmed sends.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pagewatch/internal/itemid"
	"pagewatch/internal/kv"
	"pagewatch/internal/ledger"
	"pagewatch/internal/tenant"
	logx "pagewatch/pkg/logx"
)

// Message is one outbound notification unit. The first chunk of a change
// carries EmbedTitle and Mentions; continuation chunks carry Text only.
type Message struct {
	Text       string
	EmbedTitle string
	EmbedBody  string
	Mentions   []string
}

// Sink delivers messages to a channel. Send failures must be returned, not
// swallowed; the notifier isolates them per pair.
type Sink interface {
	Send(ctx context.Context, channelID string, msg Message) error
}

// ContentReader is the cache view the notifier needs.
type ContentReader interface {
	Get(id itemid.ID) string
}

// DeliveryError reports a failed send for one (tenant, item) pair. The ledger
// is not updated, so the same change is retried on the next pass.
type DeliveryError struct {
	TenantID string
	Item     itemid.ID
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s/%s: %v", e.TenantID, e.Item, e.Err)
}
func (e *DeliveryError) Unwrap() error { return e.Err }

// Report summarizes one notification pass.
type Report struct {
	TenantsVisited int
	TenantsSkipped int
	PairsChecked   int
	Delivered      int
	Failures       []*DeliveryError
	Started        time.Time
	Finished       time.Time
}

// Notifier runs notification passes. Passes are serialized by the scheduler;
// the mutex only guards the status snapshot.
type Notifier struct {
	cache     ContentReader
	registry  *tenant.Registry
	ledger    *ledger.Ledger
	sink      Sink
	chunkSize int
	log       logx.Logger

	mu       sync.Mutex
	lastPass time.Time
}

func New(cache ContentReader, registry *tenant.Registry, led *ledger.Ledger, sink Sink, chunkSize int, log logx.Logger) *Notifier {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{
		cache:     cache,
		registry:  registry,
		ledger:    led,
		sink:      sink,
		chunkSize: chunkSize,
		log:       log,
	}
}

// RunOnce visits tenants in registry order and, within a tenant, items in
// watch-set order. All per-pair errors are caught and reported; nothing short
// of context cancellation aborts the pass.
func (n *Notifier) RunOnce(ctx context.Context) Report {
	report := Report{Started: time.Now()}

	for _, cfg := range n.registry.ListAll() {
		if err := ctx.Err(); err != nil {
			break
		}
		if len(cfg.WatchedItems) == 0 {
			report.TenantsSkipped++
			continue
		}
		if cfg.ChannelID == "" {
			// Configured but undeliverable; surface it instead of silence.
			n.log.Warn("tenant has watched items but no channel, skipping",
				logx.String("tenant", cfg.TenantID))
			report.TenantsSkipped++
			continue
		}
		report.TenantsVisited++
		n.runTenant(ctx, cfg, &report)
	}

	report.Finished = time.Now()
	n.mu.Lock()
	n.lastPass = report.Finished
	n.mu.Unlock()

	n.log.Info("notification pass done",
		logx.Int("tenants", report.TenantsVisited),
		logx.Int("skipped", report.TenantsSkipped),
		logx.Int("pairs", report.PairsChecked),
		logx.Int("delivered", report.Delivered),
		logx.Int("failures", len(report.Failures)),
		logx.Duration("took", report.Finished.Sub(report.Started)))
	return report
}

func (n *Notifier) runTenant(ctx context.Context, cfg tenant.Config, report *Report) {
	for _, item := range cfg.WatchedItems {
		if ctx.Err() != nil {
			return
		}
		report.PairsChecked++

		current := n.cache.Get(item)
		if current == "" {
			// No data yet is not a change; never notify, never touch the ledger.
			continue
		}
		last, sentBefore := n.ledger.Get(cfg.TenantID, item)
		if sentBefore && last == current {
			continue
		}

		if err := n.deliver(ctx, cfg, item, current); err != nil {
			derr := &DeliveryError{TenantID: cfg.TenantID, Item: item, Err: err}
			report.Failures = append(report.Failures, derr)
			n.log.Warn("notification delivery failed, will retry next pass",
				logx.String("tenant", cfg.TenantID), logx.String("item", string(item)), logx.Err(err))
			continue
		}
		report.Delivered++

		if err := n.ledger.Set(ctx, cfg.TenantID, item, current); err != nil {
			// Delivery is confirmed; a failed ledger write only risks a
			// duplicate after restart. PersistenceError is warned, not fatal.
			var perr *kv.PersistenceError
			if !errors.As(err, &perr) {
				n.log.Error("ledger update failed",
					logx.String("tenant", cfg.TenantID), logx.String("item", string(item)), logx.Err(err))
			}
		}
	}
}

// deliver sends content as a chunk sequence: the first chunk carries the
// title and role mentions, continuations go out as plain messages.
func (n *Notifier) deliver(ctx context.Context, cfg tenant.Config, item itemid.ID, content string) error {
	chunks := Chunks(content, n.chunkSize)
	mentions := append([]string(nil), cfg.RoleSubscribers[item]...)

	first := Message{
		EmbedTitle: fmt.Sprintf("Page updated: %s", item),
		EmbedBody:  chunks[0],
		Mentions:   mentions,
	}
	if err := n.sink.Send(ctx, cfg.ChannelID, first); err != nil {
		return err
	}
	for _, c := range chunks[1:] {
		if err := n.sink.Send(ctx, cfg.ChannelID, Message{Text: c}); err != nil {
			return err
		}
	}
	return nil
}

// LastPass returns when the last pass finished (zero if never).
func (n *Notifier) LastPass() time.Time {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastPass
}

// Package ledger tracks, per (tenant, item), the content snapshot last
// successfully delivered. It is the comparison oracle that suppresses
// duplicate notifications.
package ledger

import (
	"context"
	"encoding/json"
	"sync"

	"pagewatch/internal/itemid"
	"pagewatch/internal/kv"
	logx "pagewatch/pkg/logx"
)

const namespace = "dedup"

// record is the persisted per-tenant shape.
type record struct {
	TenantID string               `json:"tenantId"`
	Pages    map[itemid.ID]string `json:"pages"`
}

// Ledger stores last-sent snapshots. Absence means "never sent": the first
// observed content for a fresh (tenant, item) pair always counts as a change.
// Entries are written only after a delivery is confirmed.
type Ledger struct {
	store kv.Store
	log   logx.Logger

	mu      sync.Mutex
	tenants map[string]map[itemid.ID]string
}

func New(store kv.Store, log logx.Logger) *Ledger {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Ledger{
		store:   store,
		log:     log,
		tenants: map[string]map[itemid.ID]string{},
	}
}

// Load reads all persisted snapshots. Call once at startup.
func (l *Ledger) Load(ctx context.Context) error {
	keys, err := l.store.Keys(ctx, namespace)
	if err != nil {
		return &kv.PersistenceError{Op: "list dedup records", Err: err}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, k := range keys {
		raw, ok, err := l.store.Get(ctx, namespace, k)
		if err != nil {
			return &kv.PersistenceError{Op: "load dedup record " + k, Err: err}
		}
		if !ok {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			l.log.Warn("skipping unreadable dedup record", logx.String("tenant", k), logx.Err(err))
			continue
		}
		if rec.Pages == nil {
			rec.Pages = map[itemid.ID]string{}
		}
		l.tenants[k] = rec.Pages
	}
	return nil
}

// Get returns the last-sent snapshot for the pair, and whether one exists.
func (l *Ledger) Get(tenantID string, item itemid.ID) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pages, ok := l.tenants[tenantID]
	if !ok {
		return "", false
	}
	v, ok := pages[item]
	return v, ok
}

// Set records content as delivered for the pair and persists immediately.
// Persistence failure surfaces as *kv.PersistenceError; the in-memory entry
// is still updated so the running pass stays deduplicated.
func (l *Ledger) Set(ctx context.Context, tenantID string, item itemid.ID, content string) error {
	l.mu.Lock()
	pages, ok := l.tenants[tenantID]
	if !ok {
		pages = map[itemid.ID]string{}
		l.tenants[tenantID] = pages
	}
	pages[item] = content

	raw, err := json.Marshal(record{TenantID: tenantID, Pages: pages})
	l.mu.Unlock()
	if err != nil {
		return err
	}

	if err := l.store.Set(ctx, namespace, tenantID, string(raw)); err != nil {
		perr := &kv.PersistenceError{Op: "save dedup record " + tenantID, Err: err}
		l.log.Warn("dedup persist failed, in-memory state kept", logx.String("tenant", tenantID), logx.Err(err))
		return perr
	}
	return nil
}

// Package tenant owns per-tenant subscription state: watched items, role
// subscribers, and the delivery channel.
package tenant

import (
	"context"
	"encoding/json"
	"sync"

	"pagewatch/internal/itemid"
	"pagewatch/internal/kv"
	logx "pagewatch/pkg/logx"
)

const namespace = "tenants"

// Config is one tenant's subscription state.
//
// WatchedItems and the per-item role lists are ordered sets: iteration follows
// insertion order so notification passes are deterministic.
// RoleSubscribers keys are independent of WatchedItems; the notifier only
// considers items that are actually watched.
type Config struct {
	TenantID        string                 `json:"tenantId"`
	WatchedItems    []itemid.ID            `json:"watchedItems"`
	RoleSubscribers map[itemid.ID][]string `json:"roleSubscribers"`
	ChannelID       string                 `json:"channelId,omitempty"`
}

func (c *Config) clone() Config {
	out := Config{
		TenantID:  c.TenantID,
		ChannelID: c.ChannelID,
	}
	out.WatchedItems = append([]itemid.ID(nil), c.WatchedItems...)
	if c.RoleSubscribers != nil {
		out.RoleSubscribers = make(map[itemid.ID][]string, len(c.RoleSubscribers))
		for k, v := range c.RoleSubscribers {
			out.RoleSubscribers[k] = append([]string(nil), v...)
		}
	}
	return out
}

// Registry holds all tenant configs in memory and persists each mutation
// synchronously. Persistence failure surfaces as *kv.PersistenceError while
// the in-memory state is still updated; the command layer decides whether to
// warn the user.
type Registry struct {
	store kv.Store
	log   logx.Logger

	mu      sync.Mutex
	byID    map[string]*Config
	ordered []string // tenant ids in first-seen order
}

func NewRegistry(store kv.Store, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{
		store: store,
		log:   log,
		byID:  map[string]*Config{},
	}
}

// Load reads all persisted tenants. Call once at startup, before the
// notifier or command layer run.
func (r *Registry) Load(ctx context.Context) error {
	keys, err := r.store.Keys(ctx, namespace)
	if err != nil {
		return &kv.PersistenceError{Op: "list tenants", Err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		raw, ok, err := r.store.Get(ctx, namespace, k)
		if err != nil {
			return &kv.PersistenceError{Op: "load tenant " + k, Err: err}
		}
		if !ok {
			continue
		}
		var cfg Config
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			r.log.Warn("skipping unreadable tenant record", logx.String("tenant", k), logx.Err(err))
			continue
		}
		cfg.TenantID = k
		r.byID[k] = &cfg
		r.ordered = append(r.ordered, k)
	}
	r.log.Info("tenant registry loaded", logx.Int("tenants", len(r.ordered)))
	return nil
}

// Get returns the tenant's config, or an empty default if absent.
func (r *Registry) Get(tenantID string) Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cfg, ok := r.byID[tenantID]; ok {
		return cfg.clone()
	}
	return Config{TenantID: tenantID}
}

// ListAll returns every tenant in first-seen order.
func (r *Registry) ListAll() []Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Config, 0, len(r.ordered))
	for _, id := range r.ordered {
		out = append(out, r.byID[id].clone())
	}
	return out
}

// SetWatchedItems replaces the tenant's watch set. Order of items is kept;
// duplicates collapse to their first occurrence.
func (r *Registry) SetWatchedItems(ctx context.Context, tenantID string, items []itemid.ID) error {
	r.mu.Lock()
	cfg := r.ensureLocked(tenantID)
	cfg.WatchedItems = dedupOrdered(items)
	raw := r.encodeLocked(cfg)
	r.mu.Unlock()

	return r.persist(ctx, tenantID, raw)
}

// SetRoleSubscribers replaces the role list for one item. Role selection is
// independent of page selection: the item does not need to be watched.
func (r *Registry) SetRoleSubscribers(ctx context.Context, tenantID string, item itemid.ID, roles []string) error {
	r.mu.Lock()
	cfg := r.ensureLocked(tenantID)
	if cfg.RoleSubscribers == nil {
		cfg.RoleSubscribers = map[itemid.ID][]string{}
	}
	if len(roles) == 0 {
		delete(cfg.RoleSubscribers, item)
	} else {
		seen := map[string]bool{}
		kept := make([]string, 0, len(roles))
		for _, role := range roles {
			if role == "" || seen[role] {
				continue
			}
			seen[role] = true
			kept = append(kept, role)
		}
		cfg.RoleSubscribers[item] = kept
	}
	raw := r.encodeLocked(cfg)
	r.mu.Unlock()

	return r.persist(ctx, tenantID, raw)
}

// SetChannel sets the delivery channel. An empty channel disables delivery
// for the tenant (the notifier skips it).
func (r *Registry) SetChannel(ctx context.Context, tenantID, channelID string) error {
	r.mu.Lock()
	cfg := r.ensureLocked(tenantID)
	cfg.ChannelID = channelID
	raw := r.encodeLocked(cfg)
	r.mu.Unlock()

	return r.persist(ctx, tenantID, raw)
}

func (r *Registry) ensureLocked(tenantID string) *Config {
	cfg, ok := r.byID[tenantID]
	if !ok {
		cfg = &Config{TenantID: tenantID}
		r.byID[tenantID] = cfg
		r.ordered = append(r.ordered, tenantID)
	}
	return cfg
}

func (r *Registry) encodeLocked(cfg *Config) string {
	b, err := json.Marshal(cfg)
	if err != nil {
		// Config is plain data; marshal cannot realistically fail.
		r.log.Error("tenant encode failed", logx.String("tenant", cfg.TenantID), logx.Err(err))
		return ""
	}
	return string(b)
}

func (r *Registry) persist(ctx context.Context, tenantID, raw string) error {
	if raw == "" {
		return nil
	}
	if err := r.store.Set(ctx, namespace, tenantID, raw); err != nil {
		perr := &kv.PersistenceError{Op: "save tenant " + tenantID, Err: err}
		r.log.Warn("tenant persist failed, in-memory state kept", logx.String("tenant", tenantID), logx.Err(err))
		return perr
	}
	return nil
}

func dedupOrdered(items []itemid.ID) []itemid.ID {
	seen := map[itemid.ID]bool{}
	out := make([]itemid.ID, 0, len(items))
	for _, it := range items {
		if it == "" || seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}

// Package cache mirrors remote page content keyed by normalized item id.
package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"pagewatch/internal/itemid"
	"pagewatch/internal/source"
	logx "pagewatch/pkg/logx"
)

// Entry is the latest known content for one item. Entries are replaced
// wholesale on each successful refresh, so readers never observe a torn value.
type Entry struct {
	ItemID          itemid.ID
	Content         string
	LastRefreshedAt time.Time
}

// FailedItem records one item whose fetch failed during a refresh.
type FailedItem struct {
	Label string
	ID    itemid.ID
	Err   error
}

// RefreshReport summarizes one refresh cycle.
type RefreshReport struct {
	Refreshed []itemid.ID
	Failed    []FailedItem
	Started   time.Time
	Finished  time.Time
}

// Cache owns the latest known content per item. Refresh cycles are serialized
// by the scheduler; the mutex only protects concurrent readers (status
// commands) against in-progress writes.
type Cache struct {
	src source.Adapter
	log logx.Logger

	mu          sync.RWMutex
	entries     map[itemid.ID]Entry
	lastRefresh time.Time
}

func New(src source.Adapter, log logx.Logger) *Cache {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Cache{
		src:     src,
		log:     log,
		entries: map[itemid.ID]Entry{},
	}
}

// RefreshAll fetches every labeled item in order. A failed fetch leaves the
// previous entry untouched and is recorded in the report; it never aborts the
// remaining items.
func (c *Cache) RefreshAll(ctx context.Context, labels []string) RefreshReport {
	report := RefreshReport{Started: time.Now()}

	for _, label := range labels {
		id := itemid.Normalize(label)
		if id == "" {
			continue
		}

		content, err := c.src.Fetch(ctx, label)
		if err != nil {
			report.Failed = append(report.Failed, FailedItem{Label: label, ID: id, Err: err})
			c.log.Warn("page fetch failed, keeping stale entry",
				logx.String("item", string(id)), logx.Err(err))
			continue
		}

		c.mu.Lock()
		c.entries[id] = Entry{ItemID: id, Content: content, LastRefreshedAt: time.Now()}
		c.mu.Unlock()
		report.Refreshed = append(report.Refreshed, id)
	}

	report.Finished = time.Now()
	c.mu.Lock()
	c.lastRefresh = report.Finished
	c.mu.Unlock()
	return report
}

// Get returns the cached content for id, or "" if never populated.
func (c *Cache) Get(id itemid.ID) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[id].Content
}

// IDs returns all cached item ids in sorted order.
func (c *Cache) IDs() []itemid.ID {
	c.mu.RLock()
	ids := make([]itemid.ID, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len reports how many items have cached content.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// LastRefresh returns when the last refresh cycle finished (zero if never).
func (c *Cache) LastRefresh() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRefresh
}

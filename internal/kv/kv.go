package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	logx "pagewatch/pkg/logx"
)

var ErrClosed = errors.New("kv: store closed")

// Config configures the store.
//
// Driver values:
//   - "file": dependency-free file backend (snapshot + journal)
//   - "sqlite": SQLite database file (optional build tag)
//   - "memory": in-process map (state lost on exit)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the minimal persistence API used by the registry and ledger.
// Values are opaque strings; callers serialize their own records (JSON).
type Store interface {
	Get(ctx context.Context, namespace, key string) (value string, ok bool, err error)
	Set(ctx context.Context, namespace, key, value string) error
	Keys(ctx context.Context, namespace string) ([]string, error)

	// Maintain compacts or prunes backend state. Safe to call at any time;
	// driven daily by the maintenance schedule.
	Maintain(ctx context.Context) error

	Close() error
}

// PersistenceError wraps a store failure that callers treat as non-fatal:
// the in-memory state is still updated and stays authoritative for the run.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("kv %s: %v", e.Op, e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

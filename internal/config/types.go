package config

import (
	"fmt"
	"time"
)

// Config is the full on-disk configuration. Unknown keys are rejected so
// typos surface at startup instead of being silently ignored.
//
// All durations are Go duration strings (e.g. "30s", "5m").
type Config struct {
	Telegram    TelegramConfig    `json:"telegram"`
	Source      SourceConfig      `json:"source"`
	Refresh     RefreshConfig     `json:"refresh,omitempty"`
	Notify      NotifyConfig      `json:"notify,omitempty"`
	Storage     StorageConfig     `json:"storage,omitempty"`
	Logging     LoggingConfig     `json:"logging,omitempty"`
	Maintenance MaintenanceConfig `json:"maintenance,omitempty"`
}

type TelegramConfig struct {
	// Token can be left empty in the file and supplied via PAGEWATCH_TOKEN.
	Token string `json:"token,omitempty"`
	// PollTimeout is the long-poll timeout.
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type SourceConfig struct {
	URL     string `json:"url"`
	Timeout string `json:"timeout,omitempty"`
}

// RefreshConfig controls the cache refresh loop.
type RefreshConfig struct {
	Interval string `json:"interval,omitempty"` // default "5m"
}

// NotifyConfig controls the notification pass window and chunking.
//
// Defaults: every 30 minutes from 15:33 through 22:00 inclusive,
// America/Chicago wall clock, 1900-character chunks.
type NotifyConfig struct {
	WindowStart string `json:"window_start,omitempty"`
	WindowEnd   string `json:"window_end,omitempty"`
	WindowStep  string `json:"window_step,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	ChunkSize   int    `json:"chunk_size,omitempty"`
}

// StorageConfig selects the key-value store backend.
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"` // file | sqlite | memory
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console bool        `json:"console,omitempty"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// MaintenanceConfig controls the daily store compaction job.
type MaintenanceConfig struct {
	DailyAt string `json:"daily_at,omitempty"` // "HH:MM" in notify timezone, "" disables
}

// Error marks configuration missing or malformed at startup. It is the only
// fatal error class; everything at run time is reported and retried on the
// next scheduled pass.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string { return fmt.Sprintf("config %s: %s", e.Field, e.Reason) }

// Defaults applied when fields are omitted.
const (
	DefaultRefreshInterval = 5 * time.Minute
	DefaultWindowStart     = "15:33"
	DefaultWindowEnd       = "22:00"
	DefaultWindowStep      = 30 * time.Minute
	DefaultTimezone        = "America/Chicago"
	DefaultChunkSize       = 1900
	DefaultSourceTimeout   = 15 * time.Second
	DefaultPollTimeout     = 10 * time.Second
	DefaultStorageDriver   = "file"
	DefaultStoragePath     = "./pagewatch_store"
)

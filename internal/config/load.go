package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// TokenEnv overrides telegram.token when set, so the secret can stay out of
// the config file.
const TokenEnv = "PAGEWATCH_TOKEN"

// Load reads, decodes, and validates the config file (YAML or JSON).
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Field: "file", Reason: err.Error()}
	}
	jb, err := coerceToJSONBytes(path, b)
	if err != nil {
		return nil, &Error{Field: "file", Reason: err.Error()}
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, &Error{Field: "file", Reason: err.Error()}
	}
	// Reject trailing tokens (e.g. concatenated JSON).
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, &Error{Field: "file", Reason: "trailing data"}
		}
		return nil, &Error{Field: "file", Reason: err.Error()}
	}

	if env := strings.TrimSpace(os.Getenv(TokenEnv)); env != "" {
		cfg.Telegram.Token = env
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and duration syntax. It returns the first
// problem as a *Error; everything it accepts is safe to run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Source.URL) == "" {
		return &Error{Field: "source.url", Reason: "required"}
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return &Error{Field: "telegram.token", Reason: "required (file or " + TokenEnv + ")"}
	}

	durations := []struct {
		field, raw string
	}{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"source.timeout", c.Source.Timeout},
		{"refresh.interval", c.Refresh.Interval},
		{"notify.window_step", c.Notify.WindowStep},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.field, d.raw); err != nil {
			return &Error{Field: d.field, Reason: err.Error()}
		}
	}
	if c.Notify.ChunkSize < 0 {
		return &Error{Field: "notify.chunk_size", Reason: "must be >= 0"}
	}
	return nil
}

// coerceToJSONBytes converts YAML config to JSON bytes so the strict JSON
// decoder (DisallowUnknownFields) serves both formats.
func coerceToJSONBytes(path string, data []byte) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	v = normalizeYAML(v)

	j, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, nil
}

// normalizeYAML ensures all map keys are strings so the result can be
// JSON-marshaled.
func normalizeYAML(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalizeYAML(v)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = normalizeYAML(v)
		}
		return m
	case []any:
		for i := range x {
			x[i] = normalizeYAML(x[i])
		}
		return x
	default:
		return in
	}
}

package kv

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Memory is an in-process Store. State is lost on exit; intended for tests
// and dry runs.
type Memory struct {
	mu   sync.Mutex
	data map[string]map[string]string

	// FailSets, when true, makes every Set return an error. Tests use this to
	// exercise persistence-failure paths.
	FailSets bool
}

func NewMemory() *Memory {
	return &Memory{data: map[string]map[string]string{}}
}

func (m *Memory) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.data[namespace]
	if !ok {
		return "", false, nil
	}
	v, ok := ns[key]
	return v, ok, nil
}

func (m *Memory) Set(ctx context.Context, namespace, key, value string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSets {
		return errors.New("kv: memory store set failure (injected)")
	}
	if key == "" {
		return errors.New("kv: empty key")
	}
	ns, ok := m.data[namespace]
	if !ok {
		ns = map[string]string{}
		m.data[namespace] = ns
	}
	ns[key] = value
	return nil
}

func (m *Memory) Keys(ctx context.Context, namespace string) ([]string, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.data[namespace]
	if !ok {
		return nil, nil
	}
	keys := make([]string, 0, len(ns))
	for k := range ns {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) Maintain(ctx context.Context) error { _ = ctx; return nil }

func (m *Memory) Close() error { return nil }

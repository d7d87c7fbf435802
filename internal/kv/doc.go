// Package kv provides the persistence layer behind the tenant registry and
// the dedup ledger.
//
// It currently supports:
//   - "file": dependency-free backend (JSON snapshot + JSONL journal)
//   - "sqlite": SQLite database file (optional build tag)
//   - "memory": process-local map, for tests and dry runs
package kv

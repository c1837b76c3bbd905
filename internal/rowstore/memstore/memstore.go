// Package memstore is a pure Go, in-memory contracts.RowStore used by unit
// tests that don't need SQLite. It serializes transactions (one writer at a
// time, like SQLite's default journal mode) rather than offering true
// snapshot isolation, which is sufficient for the claim/cache/blob tables
// cabs keeps.
package memstore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cabshq/cabs/core"
	"github.com/cabshq/cabs/internal/contracts"
)

func marshal(value any) ([]byte, error) { return json.Marshal(value) }

func unmarshal(data []byte, dest any) error { return json.Unmarshal(data, dest) }

// Store is an in-memory RowStore.
type Store struct {
	mu     sync.Mutex
	tables map[string]map[string][]byte
}

// New returns an empty in-memory row store.
func New() *Store {
	return &Store{tables: make(map[string]map[string][]byte)}
}

// Begin acquires the store's single writer lock and returns a transaction
// bound to it. The lock is released by Commit or Rollback.
func (s *Store) Begin(ctx context.Context) (contracts.Tx, error) {
	s.mu.Lock()
	return &tx{
		store:   s,
		writes:  make(map[string]map[string][]byte),
		deletes: make(map[string]map[string]bool),
	}, nil
}

// Close is a no-op: there are no OS resources to release.
func (s *Store) Close() error { return nil }

type tx struct {
	store   *Store
	writes  map[string]map[string][]byte
	deletes map[string]map[string]bool
	done    bool
}

func (t *tx) Get(ctx context.Context, table, key string, dest any) error {
	if t.deletes[table] != nil && t.deletes[table][key] {
		return core.ErrNotFound
	}
	if row, ok := t.writes[table]; ok {
		if data, ok := row[key]; ok {
			return unmarshal(data, dest)
		}
	}
	base := t.store.tables[table]
	if base == nil {
		return core.ErrNotFound
	}
	data, ok := base[key]
	if !ok {
		return core.ErrNotFound
	}
	return unmarshal(data, dest)
}

func (t *tx) Put(ctx context.Context, table, key string, value any) error {
	data, err := marshal(value)
	if err != nil {
		return err
	}
	if t.writes[table] == nil {
		t.writes[table] = make(map[string][]byte)
	}
	t.writes[table][key] = data
	if t.deletes[table] != nil {
		delete(t.deletes[table], key)
	}
	return nil
}

func (t *tx) Delete(ctx context.Context, table, key string) error {
	if t.writes[table] != nil {
		delete(t.writes[table], key)
	}
	if t.deletes[table] == nil {
		t.deletes[table] = make(map[string]bool)
	}
	t.deletes[table][key] = true
	return nil
}

func (t *tx) Scan(ctx context.Context, table string, fn func(key string, value []byte) error) error {
	seen := make(map[string]bool)
	for key, data := range t.writes[table] {
		seen[key] = true
		if err := fn(key, data); err != nil {
			return err
		}
	}
	for key, data := range t.store.tables[table] {
		if seen[key] {
			continue
		}
		if t.deletes[table] != nil && t.deletes[table][key] {
			continue
		}
		if err := fn(key, data); err != nil {
			return err
		}
	}
	return nil
}

func (t *tx) Commit() error {
	if t.done {
		return nil
	}
	defer func() { t.done = true; t.store.mu.Unlock() }()

	for table, rows := range t.writes {
		dst := t.store.tables[table]
		if dst == nil {
			dst = make(map[string][]byte)
			t.store.tables[table] = dst
		}
		for key, data := range rows {
			dst[key] = data
		}
	}
	for table, keys := range t.deletes {
		dst := t.store.tables[table]
		if dst == nil {
			continue
		}
		for key, gone := range keys {
			if gone {
				delete(dst, key)
			}
		}
	}
	return nil
}

func (t *tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.mu.Unlock()
	return nil
}

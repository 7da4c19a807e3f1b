// Package memstore is an in-process counter store for tests and single-instance use.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/quotaward/quotaward/internal/core"
	"github.com/quotaward/quotaward/internal/core/engine"
)

// Store keeps counters in a map guarded by a mutex.
type Store struct {
	mu       sync.Mutex
	counters map[string]core.CounterRecord
}

// New returns an empty store.
func New() *Store {
	return &Store{counters: make(map[string]core.CounterRecord)}
}

// CheckAndIncrement implements engine.CounterStore.
func (s *Store) CheckAndIncrement(ctx context.Context, key core.CounterKey, limit core.Limit, now time.Time) (core.Decision, error) {
	if err := ctx.Err(); err != nil {
		return core.Decision{}, core.NewStorageError("check", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var current *core.CounterRecord
	if rec, ok := s.counters[key.String()]; ok {
		current = &rec
	}
	decision, next := engine.Decide(current, key, limit, now)
	if next != nil {
		s.counters[key.String()] = *next
	}
	return decision, nil
}

// DeleteOlderThan implements engine.CounterStore. Oldest windows go first.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff int64, batch int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, core.NewStorageError("delete", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	type candidate struct {
		key         string
		windowStart int64
	}
	var expired []candidate
	for key, rec := range s.counters {
		if rec.WindowStart < cutoff {
			expired = append(expired, candidate{key: key, windowStart: rec.WindowStart})
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		if expired[i].windowStart != expired[j].windowStart {
			return expired[i].windowStart < expired[j].windowStart
		}
		return expired[i].key < expired[j].key
	})
	if batch > 0 && len(expired) > batch {
		expired = expired[:batch]
	}
	for _, c := range expired {
		delete(s.counters, c.key)
	}
	return len(expired), nil
}

// GetCounter implements engine.CounterReader.
func (s *Store) GetCounter(ctx context.Context, key core.CounterKey) (*core.CounterRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.NewStorageError("get", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.counters[key.String()]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Put stores rec as-is, replacing any existing record for its key.
func (s *Store) Put(rec core.CounterRecord) error {
	scope, err := core.ParseScope(rec.Scope)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[core.CounterKey{Identity: rec.Identity, Scope: scope}.String()] = rec
	return nil
}

// Len returns the number of stored counters.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters)
}

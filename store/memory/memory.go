// Package memory provides an in-process Datastore.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/smallnest/reelgraph/store"
)

// Store keeps records in maps guarded by a mutex.
type Store struct {
	mu      sync.RWMutex
	records map[string]map[string]*store.Record // kind -> id -> record
	keys    map[string]map[string]string        // kind -> natural key -> id
	order   map[string][]string                 // kind -> ids in insertion order
	seq     map[string]int
	now     func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		records: make(map[string]map[string]*store.Record),
		keys:    make(map[string]map[string]string),
		order:   make(map[string][]string),
		seq:     make(map[string]int),
		now:     time.Now,
	}
}

// newID returns the next identifier for kind: its upper-cased initial
// followed by a per-kind counter.
func (s *Store) newID(kind string) string {
	s.seq[kind]++
	return fmt.Sprintf("%s%d", strings.ToUpper(kind[:1]), s.seq[kind])
}

// Upsert implements store.Datastore.
func (s *Store) Upsert(ctx context.Context, kind, key string, payload any) (string, error) {
	if err := store.CheckKey(kind, key); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := store.Encode(payload)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if id, ok := s.keys[kind][key]; ok {
		r := s.records[kind][id]
		r.Payload = append([]byte(nil), data...)
		r.UpdatedAt = now
		return id, nil
	}

	if s.records[kind] == nil {
		s.records[kind] = make(map[string]*store.Record)
		s.keys[kind] = make(map[string]string)
	}
	id := s.newID(kind)
	s.records[kind][id] = &store.Record{
		ID:        id,
		Kind:      kind,
		Key:       key,
		Payload:   append([]byte(nil), data...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.keys[kind][key] = id
	s.order[kind] = append(s.order[kind], id)
	return id, nil
}

// Get implements store.Datastore.
func (s *Store) Get(_ context.Context, kind, id string) (*store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[kind][id]
	if !ok {
		return nil, store.NotFound(kind, id)
	}
	return clone(r), nil
}

// GetByKey implements store.Datastore.
func (s *Store) GetByKey(_ context.Context, kind, key string) (*store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.keys[kind][key]
	if !ok {
		return nil, store.NotFound(kind, key)
	}
	return clone(s.records[kind][id]), nil
}

// List implements store.Datastore.
func (s *Store) List(_ context.Context, kind string) ([]*store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*store.Record, 0, len(s.order[kind]))
	for _, id := range s.order[kind] {
		out = append(out, clone(s.records[kind][id]))
	}
	return out, nil
}

// Len returns the number of records of a kind.
func (s *Store) Len(kind string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records[kind])
}

// Close implements store.Datastore.
func (s *Store) Close() error { return nil }

func clone(r *store.Record) *store.Record {
	c := *r
	c.Payload = append([]byte(nil), r.Payload...)
	return &c
}

var _ store.Datastore = (*Store)(nil)

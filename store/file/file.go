// Package file provides a Datastore that keeps one JSON document per record
// on the local filesystem.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smallnest/reelgraph/store"
)

// Store lays records out as <dir>/<kind>/<id>.json.
type Store struct {
	mu  sync.Mutex
	dir string
}

// New creates a file store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, store.Unavailable("create store directory", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) kindDir(kind string) string {
	return filepath.Join(s.dir, kind)
}

func (s *Store) recordPath(kind, id string) string {
	return filepath.Join(s.kindDir(kind), id+".json")
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

	now := time.Now().UTC()
	rec, err := s.findByKey(kind, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		id, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("failed to generate id: %w", err)
		}
		rec = &store.Record{
			ID:        id.String(),
			Kind:      kind,
			Key:       key,
			CreatedAt: now,
		}
	case err != nil:
		return "", err
	}
	rec.Payload = data
	rec.UpdatedAt = now

	if err := s.write(rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// write stores a record through a temp file and rename.
func (s *Store) write(rec *store.Record) error {
	if err := os.MkdirAll(s.kindDir(rec.Kind), 0o755); err != nil {
		return store.Unavailable("create kind directory", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	tmp, err := os.CreateTemp(s.kindDir(rec.Kind), ".tmp-*")
	if err != nil {
		return store.Unavailable("create temp file", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.recordPath(rec.Kind, rec.ID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

func (s *Store) read(path string) (*store.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec store.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record %s: %w", filepath.Base(path), err)
	}
	return &rec, nil
}

func (s *Store) all(kind string) ([]*store.Record, error) {
	entries, err := os.ReadDir(s.kindDir(kind))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Unavailable("read kind directory", err)
	}

	var out []*store.Record
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		rec, err := s.read(filepath.Join(s.kindDir(kind), e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	// v7 identifiers are time ordered and break timestamp ties
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) findByKey(kind, key string) (*store.Record, error) {
	records, err := s.all(kind)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.Key == key {
			return r, nil
		}
	}
	return nil, store.NotFound(kind, key)
}

// Get implements store.Datastore.
func (s *Store) Get(_ context.Context, kind, id string) (*store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.read(s.recordPath(kind, id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, store.NotFound(kind, id)
	}
	return rec, err
}

// GetByKey implements store.Datastore.
func (s *Store) GetByKey(_ context.Context, kind, key string) (*store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findByKey(kind, key)
}

// List implements store.Datastore.
func (s *Store) List(_ context.Context, kind string) ([]*store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out, err := s.all(kind)
	if out == nil && err == nil {
		out = []*store.Record{}
	}
	return out, err
}

// Close implements store.Datastore.
func (s *Store) Close() error { return nil }

var _ store.Datastore = (*Store)(nil)

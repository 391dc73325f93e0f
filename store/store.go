package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Record kinds written by the workflow.
const (
	KindArticle    = "article"
	KindScript     = "script"
	KindRun        = "run"
	KindCheckpoint = "checkpoint"
	KindProject    = "project"
)

var (
	// ErrNotFound is returned when no record matches.
	ErrNotFound = errors.New("record not found")

	// ErrUnavailable marks failures to reach the backend at all, as opposed
	// to a rejected write.
	ErrUnavailable = errors.New("datastore unavailable")

	// ErrInvalidKey is returned for an empty kind or natural key.
	ErrInvalidKey = errors.New("kind and natural key are required")
)

// Record is one stored payload.
type Record struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Decode unmarshals the record payload into v.
func (r *Record) Decode(v any) error {
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", r.Kind, r.ID, err)
	}
	return nil
}

// Datastore persists payloads keyed by kind and natural key.
type Datastore interface {
	// Upsert stores payload under (kind, key) and returns the record ID.
	// Writing an existing key replaces the payload and keeps the ID.
	Upsert(ctx context.Context, kind, key string, payload any) (string, error)

	// Get returns the record with the given ID.
	Get(ctx context.Context, kind, id string) (*Record, error)

	// GetByKey returns the record with the given natural key.
	GetByKey(ctx context.Context, kind, key string) (*Record, error)

	// List returns all records of a kind, oldest first.
	List(ctx context.Context, kind string) ([]*Record, error)

	// Close releases backend resources.
	Close() error
}

// Encode marshals a payload for storage. Raw JSON is passed through.
func Encode(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case json.RawMessage:
		return p, nil
	case []byte:
		if json.Valid(p) {
			return p, nil
		}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return data, nil
}

// CheckKey validates the addressing arguments of an upsert or lookup.
func CheckKey(kind, key string) error {
	if kind == "" || key == "" {
		return ErrInvalidKey
	}
	return nil
}

// NotFound wraps ErrNotFound with the missing record's address.
func NotFound(kind, ref string) error {
	return fmt.Errorf("%s %s: %w", kind, ref, ErrNotFound)
}

// Unavailable wraps a backend connectivity failure with ErrUnavailable.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

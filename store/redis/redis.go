// Package redis provides a Datastore backed by Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/smallnest/reelgraph/store"
)

// Store implements store.Datastore using Redis.
//
// Keys:
//
//	<prefix>record:<kind>:<id>   JSON record
//	<prefix>key:<kind>:<key>     natural key -> id, claimed with SETNX
//	<prefix>kind:<kind>          sorted set of ids scored by creation sequence
//	<prefix>seq:<kind>           creation counter
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// Options configuration for Redis connection
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // Key prefix, default "reelgraph:"
	TTL      time.Duration // Expiration for records, default 0 (no expiration)
}

// New creates a Redis datastore. The connection is established lazily.
func New(opts Options) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "reelgraph:"
	}

	return &Store{
		client: client,
		prefix: prefix,
		ttl:    opts.TTL,
	}
}

// NewFromURL creates a datastore from a redis:// URL.
func NewFromURL(rawURL string, ttl time.Duration) (*Store, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return &Store{client: redis.NewClient(opts), prefix: "reelgraph:", ttl: ttl}, nil
}

func (s *Store) recordKey(kind, id string) string {
	return fmt.Sprintf("%srecord:%s:%s", s.prefix, kind, id)
}

func (s *Store) naturalKey(kind, key string) string {
	return fmt.Sprintf("%skey:%s:%s", s.prefix, kind, key)
}

func (s *Store) kindKey(kind string) string {
	return fmt.Sprintf("%skind:%s", s.prefix, kind)
}

func (s *Store) seqKey(kind string) string {
	return fmt.Sprintf("%sseq:%s", s.prefix, kind)
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return classify("ping", err)
	}
	return nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Upsert implements store.Datastore.
func (s *Store) Upsert(ctx context.Context, kind, key string, payload any) (string, error) {
	if err := store.CheckKey(kind, key); err != nil {
		return "", err
	}
	data, err := store.Encode(payload)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	created, err := s.client.SetNX(ctx, s.naturalKey(kind, key), id, s.ttl).Result()
	if err != nil {
		return "", classify("claim natural key", err)
	}

	now := time.Now().UTC()
	rec := &store.Record{ID: id, Kind: kind, Key: key, CreatedAt: now}
	if !created {
		id, err = s.client.Get(ctx, s.naturalKey(kind, key)).Result()
		if err != nil {
			return "", classify("resolve natural key", err)
		}
		existing, err := s.Get(ctx, kind, id)
		switch {
		case err == nil:
			rec = existing
		case errors.Is(err, store.ErrNotFound):
			// claimed by a concurrent writer that has not stored its record yet
			rec = &store.Record{ID: id, Kind: kind, Key: key, CreatedAt: now}
		default:
			return "", err
		}
	}
	rec.Payload = data
	rec.UpdatedAt = now

	encoded, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal record: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.recordKey(kind, id), encoded, s.ttl)
	if created {
		seq, err := s.client.Incr(ctx, s.seqKey(kind)).Result()
		if err != nil {
			return "", classify("allocate sequence", err)
		}
		pipe.ZAdd(ctx, s.kindKey(kind), redis.Z{Score: float64(seq), Member: id})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return "", classify("save record", err)
	}

	return id, nil
}

// Get implements store.Datastore.
func (s *Store) Get(ctx context.Context, kind, id string) (*store.Record, error) {
	data, err := s.client.Get(ctx, s.recordKey(kind, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.NotFound(kind, id)
		}
		return nil, classify("load record", err)
	}

	var rec store.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &rec, nil
}

// GetByKey implements store.Datastore.
func (s *Store) GetByKey(ctx context.Context, kind, key string) (*store.Record, error) {
	id, err := s.client.Get(ctx, s.naturalKey(kind, key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.NotFound(kind, key)
		}
		return nil, classify("resolve natural key", err)
	}
	rec, err := s.Get(ctx, kind, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, store.NotFound(kind, key)
	}
	return rec, err
}

// List implements store.Datastore.
func (s *Store) List(ctx context.Context, kind string) ([]*store.Record, error) {
	ids, err := s.client.ZRange(ctx, s.kindKey(kind), 0, -1).Result()
	if err != nil {
		return nil, classify("list "+kind, err)
	}

	records := []*store.Record{}
	if len(ids) == 0 {
		return records, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, s.recordKey(kind, id))
	}

	// MGet returns nil for expired records, which are skipped.
	results, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, classify("fetch records", err)
	}

	for _, result := range results {
		str, ok := result.(string)
		if !ok {
			continue
		}
		var rec store.Record
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record: %w", err)
		}
		records = append(records, &rec)
	}

	return records, nil
}

func classify(op string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return store.Unavailable(op, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

var _ store.Datastore = (*Store)(nil)

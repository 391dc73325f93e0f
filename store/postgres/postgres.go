// Package postgres provides a Datastore backed by PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallnest/reelgraph/store"
)

// DBPool defines the interface for database connection pool
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements store.Datastore using PostgreSQL.
type Store struct {
	pool      DBPool
	tableName string
	newID     func() string
}

// Options configures the Postgres connection.
type Options struct {
	ConnString string
	TableName  string // Default "records"
}

// New creates a Postgres datastore and ensures its schema.
func New(ctx context.Context, opts Options) (*Store, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, store.Unavailable("create connection pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, store.Unavailable("connect", err)
	}

	s := NewWithPool(pool, opts.TableName)
	if err := s.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool creates a store with an existing pool.
// Useful for testing with mocks
func NewWithPool(pool DBPool, tableName string) *Store {
	if tableName == "" {
		tableName = "records"
	}
	return &Store{
		pool:      pool,
		tableName: tableName,
		newID:     uuid.NewString,
	}
}

// InitSchema creates the necessary table if it doesn't exist
func (s *Store) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			natural_key TEXT NOT NULL,
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE (kind, natural_key)
		);
		CREATE INDEX IF NOT EXISTS idx_%s_kind ON %s (kind, created_at);
	`, s.tableName, s.tableName, s.tableName)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return classify("create schema", err)
	}
	return nil
}

// Close closes the connection pool
func (s *Store) Close() error {
	s.pool.Close()
	return nil
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

	query := fmt.Sprintf(`
		INSERT INTO %s (id, kind, natural_key, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (kind, natural_key) DO UPDATE SET
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`, s.tableName)

	now := time.Now().UTC()
	var id string
	err = s.pool.QueryRow(ctx, query, s.newID(), kind, key, []byte(data), now, now).Scan(&id)
	if err != nil {
		return "", classify("upsert "+kind, err)
	}
	return id, nil
}

func (s *Store) getOne(ctx context.Context, column, kind, ref string) (*store.Record, error) {
	query := fmt.Sprintf(`
		SELECT id, kind, natural_key, payload, created_at, updated_at
		FROM %s
		WHERE kind = $1 AND %s = $2
	`, s.tableName, column)

	rec, err := scanRecord(s.pool.QueryRow(ctx, query, kind, ref))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.NotFound(kind, ref)
	}
	if err != nil {
		return nil, classify("load "+kind, err)
	}
	return rec, nil
}

// Get implements store.Datastore.
func (s *Store) Get(ctx context.Context, kind, id string) (*store.Record, error) {
	return s.getOne(ctx, "id", kind, id)
}

// GetByKey implements store.Datastore.
func (s *Store) GetByKey(ctx context.Context, kind, key string) (*store.Record, error) {
	return s.getOne(ctx, "natural_key", kind, key)
}

// List implements store.Datastore.
func (s *Store) List(ctx context.Context, kind string) ([]*store.Record, error) {
	query := fmt.Sprintf(`
		SELECT id, kind, natural_key, payload, created_at, updated_at
		FROM %s
		WHERE kind = $1
		ORDER BY created_at ASC, id ASC
	`, s.tableName)

	rows, err := s.pool.Query(ctx, query, kind)
	if err != nil {
		return nil, classify("list "+kind, err)
	}
	defer rows.Close()

	records := []*store.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", kind, err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s rows: %w", kind, err)
	}

	return records, nil
}

func scanRecord(row pgx.Row) (*store.Record, error) {
	var rec store.Record
	var payload []byte
	if err := row.Scan(&rec.ID, &rec.Kind, &rec.Key, &payload, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Payload = payload
	return &rec, nil
}

// classify marks connection-level failures as store.ErrUnavailable.
func classify(op string, err error) error {
	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || errors.As(err, &netErr) || pgconn.Timeout(err) {
		return store.Unavailable(op, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

var _ store.Datastore = (*Store)(nil)

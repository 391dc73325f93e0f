// Package sqlite provides a Datastore backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/smallnest/reelgraph/store"
)

// Store implements store.Datastore using SQLite.
type Store struct {
	db        *sql.DB
	tableName string
}

// Options configures the SQLite connection.
type Options struct {
	Path      string
	TableName string // Default "records"
}

// New opens the database and creates the schema.
func New(opts Options) (*Store, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, store.Unavailable("open database", err)
	}
	// one writer keeps the upsert and its RETURNING row consistent
	db.SetMaxOpenConns(1)

	tableName := opts.TableName
	if tableName == "" {
		tableName = "records"
	}

	s := &Store{
		db:        db,
		tableName: tableName,
	}

	if err := s.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// InitSchema creates the records table if it doesn't exist.
func (s *Store) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			natural_key TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE (kind, natural_key)
		);
		CREATE INDEX IF NOT EXISTS idx_%s_kind ON %s (kind, created_at);
	`, s.tableName, s.tableName, s.tableName)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return store.Unavailable("create schema", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
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
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (kind, natural_key) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at
		RETURNING id
	`, s.tableName)

	now := time.Now().UTC()
	var id string
	err = s.db.QueryRowContext(ctx, query, uuid.NewString(), kind, key, string(data), now, now).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to upsert %s: %w", kind, err)
	}
	return id, nil
}

func (s *Store) getOne(ctx context.Context, where, kind, ref string) (*store.Record, error) {
	query := fmt.Sprintf(`
		SELECT id, kind, natural_key, payload, created_at, updated_at
		FROM %s
		WHERE kind = ? AND %s = ?
	`, s.tableName, where)

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, kind, ref))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFound(kind, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", kind, err)
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
		WHERE kind = ?
		ORDER BY created_at ASC, rowid ASC
	`, s.tableName)

	rows, err := s.db.QueryContext(ctx, query, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*store.Record, error) {
	var rec store.Record
	var payload string
	if err := row.Scan(&rec.ID, &rec.Kind, &rec.Key, &payload, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Payload = []byte(payload)
	return &rec, nil
}

var _ store.Datastore = (*Store)(nil)

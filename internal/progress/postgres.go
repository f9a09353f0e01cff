package progress

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the DDL for the progress_records table. Run it via
// [PostgresStorage.Migrate] or apply it during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS progress_records (
    key        TEXT PRIMARY KEY,
    data       JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the subset of a pgx connection the storage uses. Both *pgxpool.Pool
// and *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStorage is a [Storage] backed by PostgreSQL. It lets a family keep
// one progress record across several devices.
type PostgresStorage struct {
	db DB
}

var _ Storage = (*PostgresStorage)(nil)

// NewPostgresStorage returns a storage on db. Call [PostgresStorage.Migrate]
// before first use.
func NewPostgresStorage(db DB) *PostgresStorage {
	return &PostgresStorage{db: db}
}

// OpenPostgres connects a pool to dsn and verifies it with a ping.
func OpenPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("progress: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("progress: ping postgres: %w", err)
	}
	return pool, nil
}

// Name implements the metrics label lookup.
func (s *PostgresStorage) Name() string { return "postgres" }

// Migrate creates the progress_records table if it does not exist.
func (s *PostgresStorage) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("progress: migrate: %w", err)
	}
	return nil
}

// Load implements [Storage].
func (s *PostgresStorage) Load(ctx context.Context, key string) ([]byte, error) {
	const query = `SELECT data FROM progress_records WHERE key = $1`

	var data []byte
	if err := s.db.QueryRow(ctx, query, key).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("progress: load %s: %w", key, err)
	}
	return data, nil
}

// Save implements [Storage].
func (s *PostgresStorage) Save(ctx context.Context, key string, data []byte) error {
	const query = `
		INSERT INTO progress_records (key, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE
		SET data = EXCLUDED.data, updated_at = now()`

	if _, err := s.db.Exec(ctx, query, key, data); err != nil {
		return fmt.Errorf("progress: save %s: %w", key, err)
	}
	return nil
}

// Delete implements [Storage].
func (s *PostgresStorage) Delete(ctx context.Context, key string) error {
	const query = `DELETE FROM progress_records WHERE key = $1`

	if _, err := s.db.Exec(ctx, query, key); err != nil {
		return fmt.Errorf("progress: delete %s: %w", key, err)
	}
	return nil
}

// Ping probes the connection when the underlying DB supports it (a pool
// does). Used by the readiness check.
func (s *PostgresStorage) Ping(ctx context.Context) error {
	p, ok := s.db.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	if err := p.Ping(ctx); err != nil {
		return fmt.Errorf("progress: ping postgres: %w", err)
	}
	return nil
}

// Close closes the underlying pool, if any.
func (s *PostgresStorage) Close() error {
	if c, ok := s.db.(interface{ Close() }); ok {
		c.Close()
	}
	return nil
}

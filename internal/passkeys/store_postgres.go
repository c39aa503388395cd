package passkeys

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"idmask/pkg/platform/sentinel"
	"idmask/pkg/requestcontext"
)

//go:embed schema.sql
var schema string

// PostgresStore persists entries in the passkeys table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the passkeys table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create passkeys schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, entry Entry) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO passkeys (key, value, created_at) VALUES ($1, $2, $3) ON CONFLICT (key) DO NOTHING`,
		entry.Key, entry.Value, requestcontext.Now(ctx))
	if err != nil {
		return fmt.Errorf("insert passkey: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("passkey %s: %w", entry.Key, sentinel.ErrConflict)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (Entry, error) {
	entry := Entry{Key: key}
	err := s.pool.QueryRow(ctx, `SELECT value FROM passkeys WHERE key = $1`, key).Scan(&entry.Value)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, fmt.Errorf("passkey %s: %w", key, sentinel.ErrNotFound)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get passkey: %w", err)
	}
	return entry, nil
}

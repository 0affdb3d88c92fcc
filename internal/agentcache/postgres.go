package agentcache

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDurable stores entries in client_agent_cache, one row per client.
type PostgresDurable struct {
	pool *pgxpool.Pool
}

// NewPostgresDurable wraps an existing pool. The caller owns the pool.
func NewPostgresDurable(pool *pgxpool.Pool) *PostgresDurable {
	return &PostgresDurable{pool: pool}
}

// Migrate creates the cache table.
func (d *PostgresDurable) Migrate(ctx context.Context) error {
	_, err := d.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS client_agent_cache (
			client_id TEXT PRIMARY KEY,
			agent_data BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create client_agent_cache: %w", err)
	}
	return nil
}

// Load reads the entry of key.Platform from the client row.
func (d *PostgresDurable) Load(ctx context.Context, key Key) (*Persistable, error) {
	var data []byte
	err := d.pool.QueryRow(ctx,
		`SELECT agent_data FROM client_agent_cache WHERE client_id = $1`, key.ClientID,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cache entry: %w", err)
	}
	return pick(data, key)
}

// Save merges p into the client row. The row is locked for the duration of
// the merge so concurrent saves for other platforms are not lost. A missing
// row is inserted empty first so there is always a row to lock.
func (d *PostgresDurable) Save(ctx context.Context, key Key, p Persistable) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO client_agent_cache (client_id, agent_data)
		VALUES ($1, ''::bytea)
		ON CONFLICT (client_id) DO NOTHING
	`, key.ClientID)
	if err != nil {
		return fmt.Errorf("failed to reserve cache row: %w", err)
	}

	var data []byte
	err = tx.QueryRow(ctx,
		`SELECT agent_data FROM client_agent_cache WHERE client_id = $1 FOR UPDATE`, key.ClientID,
	).Scan(&data)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to lock cache row: %w", err)
	}

	merged, err := merge(data, key, p)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO client_agent_cache (client_id, agent_data, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (client_id) DO UPDATE SET
			agent_data = EXCLUDED.agent_data,
			updated_at = EXCLUDED.updated_at
	`, key.ClientID, merged)
	if err != nil {
		return fmt.Errorf("failed to save cache entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit cache entry: %w", err)
	}
	return nil
}

// pick decodes a client row and returns the entry of key.Platform.
func pick(data []byte, key Key) (*Persistable, error) {
	entries, err := decodeEntries(data)
	if err != nil {
		return nil, err
	}
	p, ok := entries[string(key.Platform)]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// merge sets key.Platform in a client row. An undecodable row is replaced.
func merge(data []byte, key Key, p Persistable) ([]byte, error) {
	entries, err := decodeEntries(data)
	if err != nil {
		entries = clientEntries{}
	}
	entries[string(key.Platform)] = p
	return encodeEntries(entries)
}

var _ Durable = (*PostgresDurable)(nil)

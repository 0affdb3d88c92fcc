package agentcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteDurable stores entries in client_agent_cache using SQLite.
type SQLiteDurable struct {
	db *sql.DB
}

// NewSQLiteDurable wraps an open database. The caller owns db.
func NewSQLiteDurable(db *sql.DB) *SQLiteDurable {
	return &SQLiteDurable{db: db}
}

// Migrate creates the cache table.
func (d *SQLiteDurable) Migrate(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS client_agent_cache (
			client_id TEXT PRIMARY KEY,
			agent_data BLOB NOT NULL,
			updated_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create client_agent_cache: %w", err)
	}
	return nil
}

// Load reads the entry of key.Platform from the client row.
func (d *SQLiteDurable) Load(ctx context.Context, key Key) (*Persistable, error) {
	var data []byte
	err := d.db.QueryRowContext(ctx,
		`SELECT agent_data FROM client_agent_cache WHERE client_id = ?`, key.ClientID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cache entry: %w", err)
	}
	return pick(data, key)
}

// Save merges p into the client row inside a transaction. The transaction
// writes before it reads, so it holds the write lock while merging.
func (d *SQLiteDurable) Save(ctx context.Context, key Key, p Persistable) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO client_agent_cache (client_id, agent_data, updated_at)
		VALUES (?, X'', ?)
		ON CONFLICT (client_id) DO NOTHING
	`, key.ClientID, now)
	if err != nil {
		return fmt.Errorf("failed to reserve cache row: %w", err)
	}

	var data []byte
	err = tx.QueryRowContext(ctx,
		`SELECT agent_data FROM client_agent_cache WHERE client_id = ?`, key.ClientID,
	).Scan(&data)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read cache row: %w", err)
	}

	merged, err := merge(data, key, p)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO client_agent_cache (client_id, agent_data, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (client_id) DO UPDATE SET
			agent_data = excluded.agent_data,
			updated_at = excluded.updated_at
	`, key.ClientID, merged, now)
	if err != nil {
		return fmt.Errorf("failed to save cache entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cache entry: %w", err)
	}
	return nil
}

var _ Durable = (*SQLiteDurable)(nil)

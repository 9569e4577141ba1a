package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"shipyard/internal/store"
)

const clientColumns = "id, name, rate_limit, rate_limit_burst, created_at"

func scanClient(row *sql.Row) (*store.Client, error) {
	var c store.Client
	err := row.Scan(&c.ID, &c.Name, &c.RateLimit, &c.RateLimitBurst, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateClient inserts a new client row.
func (s *Store) CreateClient(ctx context.Context, client *store.Client, hashedKey string) error {
	query := `
		INSERT INTO clients (id, name, api_key_hash, rate_limit, rate_limit_burst, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.db.ExecContext(ctx, query,
		client.ID,
		client.Name,
		hashedKey,
		client.RateLimit,
		client.RateLimitBurst,
		client.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create client %s: %w", client.Name, err)
	}
	return nil
}

// EnsureClient inserts the client if its key hash is new, then returns the stored row.
func (s *Store) EnsureClient(ctx context.Context, client *store.Client, hashedKey string) (*store.Client, error) {
	query := `
		INSERT INTO clients (id, name, api_key_hash, rate_limit, rate_limit_burst, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (api_key_hash) DO NOTHING
	`

	if _, err := s.db.ExecContext(ctx, query,
		client.ID,
		client.Name,
		hashedKey,
		client.RateLimit,
		client.RateLimitBurst,
		client.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to ensure client %s: %w", client.Name, err)
	}
	return s.GetClientByAPIKeyHash(ctx, hashedKey)
}

// GetClientByAPIKeyHash returns the client owning the key hash, or store.ErrNotFound.
func (s *Store) GetClientByAPIKeyHash(ctx context.Context, hash string) (*store.Client, error) {
	query := "SELECT " + clientColumns + " FROM clients WHERE api_key_hash = $1"
	return scanClient(s.db.QueryRowContext(ctx, query, hash))
}

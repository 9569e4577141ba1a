package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx
// This allows us to pass either a connection pool or an active transaction to the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Tx interface {
	DBTransaction
	Commit() error
	Rollback() error
}

// ClientStore handles API clients for authentication.
type ClientStore interface {
	// CreateClient inserts a new client with the hash of its API key.
	CreateClient(ctx context.Context, client *Client, hashedKey string) error

	// EnsureClient inserts the client unless a client with the same key hash exists,
	// and returns the stored client.
	EnsureClient(ctx context.Context, client *Client, hashedKey string) (*Client, error)

	// GetClientByAPIKeyHash returns a client by its API key hash.
	GetClientByAPIKeyHash(ctx context.Context, hash string) (*Client, error)
}

// JobStore handles the persistence of tracked jobs.
type JobStore interface {
	// CreateJob inserts a new job in the queued state.
	CreateJob(ctx context.Context, tx DBTransaction, job *Job) error

	// GetJob returns a job owned by clientID.
	GetJob(ctx context.Context, clientID, id uuid.UUID) (*Job, error)

	// ListJobs returns the newest jobs of a client first.
	ListJobs(ctx context.Context, clientID uuid.UUID, limit int) ([]Job, error)

	// UpdateJobStatus applies a worker's partial update.
	UpdateJobStatus(ctx context.Context, id uuid.UUID, patch StatusPatch) (*Job, error)

	// DeleteJob removes a job owned by clientID.
	DeleteJob(ctx context.Context, clientID, id uuid.UUID) error
}

package handlers

import (
	"context"
	"database/sql"
	"slices"
	"time"

	"shipyard/internal/sink"
	"shipyard/internal/store"
	"shipyard/pkg/api"

	"github.com/google/uuid"
)

// Mock transaction
type mockTx struct {
	committed  bool
	rolledBack bool
}

func (m *mockTx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, nil
}
func (m *mockTx) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return nil, nil
}
func (m *mockTx) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return nil
}

func (m *mockTx) Commit() error {
	m.committed = true
	return nil
}

func (m *mockTx) Rollback() error {
	if !m.committed {
		m.rolledBack = true
	}
	return nil
}

// Mock Store
type mockStore struct {
	// Job Hooks
	beginTxErr   error
	createJobErr error
	getJobResp   *store.Job
	getJobErr    error
	listJobsResp []store.Job
	listJobsErr  error
	updateResp   *store.Job
	updateErr    error
	deleteErr    error
	pingErr      error

	// Client Hooks
	createClientErr error

	// Spies (to verify arguments passed by handlers)
	tx             *mockTx
	createdJob     *store.Job
	capturedLimit  int
	capturedPatch  store.StatusPatch
	capturedClient uuid.UUID
	createdClient  *store.Client
	createdKeyHash string
}

func (m *mockStore) BeginTx(ctx context.Context) (store.Tx, error) {
	if m.beginTxErr != nil {
		return nil, m.beginTxErr
	}
	m.tx = &mockTx{}
	return m.tx, nil
}

func (m *mockStore) Ping(ctx context.Context) error {
	return m.pingErr
}

func (m *mockStore) CreateJob(ctx context.Context, tx store.DBTransaction, job *store.Job) error {
	m.createdJob = job
	return m.createJobErr
}

func (m *mockStore) GetJob(ctx context.Context, clientID, id uuid.UUID) (*store.Job, error) {
	m.capturedClient = clientID
	if m.getJobErr != nil {
		return nil, m.getJobErr
	}
	if m.getJobResp == nil {
		return nil, store.ErrNotFound
	}
	return m.getJobResp, nil
}

func (m *mockStore) ListJobs(ctx context.Context, clientID uuid.UUID, limit int) ([]store.Job, error) {
	m.capturedClient = clientID
	m.capturedLimit = limit
	return m.listJobsResp, m.listJobsErr
}

func (m *mockStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, patch store.StatusPatch) (*store.Job, error) {
	m.capturedPatch = patch
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	if m.updateResp != nil {
		return m.updateResp, nil
	}
	return &store.Job{ID: id, Status: patch.Status}, nil
}

func (m *mockStore) DeleteJob(ctx context.Context, clientID, id uuid.UUID) error {
	m.capturedClient = clientID
	return m.deleteErr
}

func (m *mockStore) CreateClient(ctx context.Context, client *store.Client, hashedKey string) error {
	m.createdClient = client
	m.createdKeyHash = hashedKey
	return m.createClientErr
}

func (m *mockStore) EnsureClient(ctx context.Context, client *store.Client, hashedKey string) (*store.Client, error) {
	return client, nil
}

func (m *mockStore) GetClientByAPIKeyHash(ctx context.Context, hash string) (*store.Client, error) {
	return nil, store.ErrNotFound
}

// Mock queue
type mockQueue struct {
	enqueueErr error
	pingErr    error
	messages   []api.JobMessage
}

func (m *mockQueue) Enqueue(ctx context.Context, msg api.JobMessage) error {
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *mockQueue) Dequeue(ctx context.Context, wait time.Duration) (*api.JobMessage, error) {
	return nil, nil
}

func (m *mockQueue) Len(ctx context.Context) (int64, error) {
	return int64(len(m.messages)), nil
}

func (m *mockQueue) Ping(ctx context.Context) error {
	return m.pingErr
}

// Mock artifact storage keyed by job ID, then relative path.
type mockArtifacts struct {
	files   map[string]map[string]string
	listErr error
	getErr  error
}

func (m *mockArtifacts) List(ctx context.Context, jobID string) ([]string, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var names []string
	for name := range m.files[jobID] {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (m *mockArtifacts) Get(ctx context.Context, jobID, name string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	content, ok := m.files[jobID][name]
	if !ok {
		return nil, sink.ErrNotFound
	}
	return []byte(content), nil
}

package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"shipyard/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

var jobRowColumns = []string{
	"id", "client_id", "repo_url", "status", "error_message", "api_endpoint", "model_s3_path",
	"python_files", "notebooks", "frameworks", "github_repo_url", "deployment_url",
	"github_actions_url", "gitlab_ci_url", "jenkinsfile_url", "image",
	"created_at", "updated_at", "completed_at",
}

func jobRow(id, clientID uuid.UUID, status string, created time.Time, completed any) []driver.Value {
	return []driver.Value{
		id.String(), clientID.String(), "https://github.com/a/b", status, "", "", "s3://bucket/jobs/x",
		3, 1, "pytorch", "", "", "", "", "", "registry/app:latest",
		created, nil, completed,
	}
}

func TestCreateJob_UsesTransaction(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	job := &store.Job{
		ID:        uuid.New(),
		ClientID:  uuid.New(),
		RepoURL:   "https://github.com/a/b",
		Status:    "queued",
		CreatedAt: time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO jobs`).
		WithArgs(job.ID, job.ClientID, job.RepoURL, "queued", job.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := s.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx failed: %v", err)
	}
	if err := s.CreateJob(ctx, tx, job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetJob_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	id, clientID := uuid.New(), uuid.New()
	created := time.Now().Truncate(time.Second)
	completed := created.Add(time.Minute)

	mock.ExpectQuery(`SELECT .* FROM jobs WHERE id = \$1 AND client_id = \$2`).
		WithArgs(id, clientID).
		WillReturnRows(sqlmock.NewRows(jobRowColumns).AddRow(jobRow(id, clientID, "completed", created, completed)...))

	job, err := s.GetJob(context.Background(), clientID, id)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.ID != id || job.Status != "completed" {
		t.Errorf("unexpected job %+v", job)
	}
	if job.SourceFiles != 3 || job.Frameworks != "pytorch" {
		t.Errorf("unexpected metadata %+v", job)
	}
	if job.UpdatedAt != nil {
		t.Error("expected nil UpdatedAt")
	}
	if job.CompletedAt == nil || !job.CompletedAt.Equal(completed) {
		t.Errorf("expected CompletedAt %v, got %v", completed, job.CompletedAt)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT .* FROM jobs WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(jobRowColumns))

	_, err := s.GetJob(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected store.ErrNotFound, got %v", err)
	}
}

func TestListJobs_DefaultLimit(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	clientID := uuid.New()
	now := time.Now()
	rows := sqlmock.NewRows(jobRowColumns).
		AddRow(jobRow(uuid.New(), clientID, "queued", now, nil)...).
		AddRow(jobRow(uuid.New(), clientID, "failed", now.Add(-time.Hour), nil)...)

	mock.ExpectQuery(`SELECT .* FROM jobs WHERE client_id = \$1 ORDER BY created_at DESC LIMIT \$2`).
		WithArgs(clientID, 50).
		WillReturnRows(rows)

	jobs, err := s.ListJobs(context.Background(), clientID, 0)
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(jobs) != 2 || jobs[0].Status != "queued" {
		t.Errorf("unexpected jobs %+v", jobs)
	}
}

func TestListJobs_Empty(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT .* FROM jobs WHERE client_id`).
		WillReturnRows(sqlmock.NewRows(jobRowColumns))

	jobs, err := s.ListJobs(context.Background(), uuid.New(), 10)
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if jobs == nil || len(jobs) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", jobs)
	}
}

func TestUpdateJobStatus_PartialUpdate(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	id := uuid.New()
	files := 3
	now := time.Now()

	mock.ExpectQuery(`UPDATE jobs SET`).
		WithArgs(id, "generating", "", "", "", int64(3), nil, "pytorch", "", "", "", "", "", "", false).
		WillReturnRows(sqlmock.NewRows(jobRowColumns).AddRow(jobRow(id, uuid.New(), "generating", now, nil)...))

	job, err := s.UpdateJobStatus(context.Background(), id, store.StatusPatch{
		Status:      "generating",
		SourceFiles: &files,
		Frameworks:  "pytorch",
	})
	if err != nil {
		t.Fatalf("UpdateJobStatus failed: %v", err)
	}
	if job.Status != "generating" {
		t.Errorf("expected generating, got %s", job.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUpdateJobStatus_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`UPDATE jobs SET`).WillReturnRows(sqlmock.NewRows(jobRowColumns))

	_, err := s.UpdateJobStatus(context.Background(), uuid.New(), store.StatusPatch{Status: "failed", Completed: true})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected store.ErrNotFound, got %v", err)
	}
}

func TestDeleteJob(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	id, clientID := uuid.New(), uuid.New()
	mock.ExpectExec(`DELETE FROM jobs WHERE id = \$1 AND client_id = \$2`).
		WithArgs(id, clientID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM jobs`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.DeleteJob(context.Background(), clientID, id); err != nil {
		t.Fatalf("DeleteJob failed: %v", err)
	}
	if err := s.DeleteJob(context.Background(), clientID, id); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected store.ErrNotFound on second delete, got %v", err)
	}
}

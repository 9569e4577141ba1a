package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"shipyard/internal/store"

	"github.com/google/uuid"
)

const jobColumns = `id, client_id, repo_url, status, error_message, api_endpoint, model_s3_path,
	python_files, notebooks, frameworks, github_repo_url, deployment_url,
	github_actions_url, gitlab_ci_url, jenkinsfile_url, image,
	created_at, updated_at, completed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*store.Job, error) {
	var j store.Job
	err := row.Scan(
		&j.ID, &j.ClientID, &j.RepoURL, &j.Status, &j.ErrorMessage, &j.APIEndpoint, &j.StorageLocator,
		&j.SourceFiles, &j.Notebooks, &j.Frameworks, &j.RepositoryURL, &j.DeploymentURL,
		&j.GitHubActionsURL, &j.GitLabCIURL, &j.JenkinsfileURL, &j.Image,
		&j.CreatedAt, &j.UpdatedAt, &j.CompletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// CreateJob inserts a new job row.
func (s *Store) CreateJob(ctx context.Context, tx store.DBTransaction, job *store.Job) error {
	query := `
		INSERT INTO jobs (id, client_id, repo_url, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	var executor store.DBTransaction = s.db
	if tx != nil {
		executor = tx
	}

	_, err := executor.ExecContext(ctx, query,
		job.ID,
		job.ClientID,
		job.RepoURL,
		job.Status,
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob returns a job visible to clientID, or store.ErrNotFound.
func (s *Store) GetJob(ctx context.Context, clientID, id uuid.UUID) (*store.Job, error) {
	query := "SELECT " + jobColumns + " FROM jobs WHERE id = $1 AND client_id = $2"
	return scanJob(s.db.QueryRowContext(ctx, query, id, clientID))
}

// ListJobs returns up to limit jobs of clientID, newest first.
func (s *Store) ListJobs(ctx context.Context, clientID uuid.UUID, limit int) ([]store.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	query := "SELECT " + jobColumns + " FROM jobs WHERE client_id = $1 ORDER BY created_at DESC LIMIT $2"

	rows, err := s.db.QueryContext(ctx, query, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []store.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

// UpdateJobStatus applies a partial update and returns the stored row.
// Empty text fields and nil counts keep their current value.
func (s *Store) UpdateJobStatus(ctx context.Context, id uuid.UUID, patch store.StatusPatch) (*store.Job, error) {
	query := `
		UPDATE jobs SET
			status             = $2,
			error_message      = COALESCE(NULLIF($3::text, ''), error_message),
			api_endpoint       = COALESCE(NULLIF($4::text, ''), api_endpoint),
			model_s3_path      = COALESCE(NULLIF($5::text, ''), model_s3_path),
			python_files       = COALESCE($6::int, python_files),
			notebooks          = COALESCE($7::int, notebooks),
			frameworks         = COALESCE(NULLIF($8::text, ''), frameworks),
			github_repo_url    = COALESCE(NULLIF($9::text, ''), github_repo_url),
			deployment_url     = COALESCE(NULLIF($10::text, ''), deployment_url),
			github_actions_url = COALESCE(NULLIF($11::text, ''), github_actions_url),
			gitlab_ci_url      = COALESCE(NULLIF($12::text, ''), gitlab_ci_url),
			jenkinsfile_url    = COALESCE(NULLIF($13::text, ''), jenkinsfile_url),
			image              = COALESCE(NULLIF($14::text, ''), image),
			updated_at         = NOW(),
			completed_at       = CASE WHEN $15 THEN NOW() ELSE completed_at END
		WHERE id = $1
		RETURNING ` + jobColumns

	job, err := scanJob(s.db.QueryRowContext(ctx, query,
		id,
		patch.Status,
		patch.ErrorMessage,
		patch.APIEndpoint,
		patch.StorageLocator,
		nullableInt(patch.SourceFiles),
		nullableInt(patch.Notebooks),
		patch.Frameworks,
		patch.RepositoryURL,
		patch.DeploymentURL,
		patch.GitHubActionsURL,
		patch.GitLabCIURL,
		patch.JenkinsfileURL,
		patch.Image,
		patch.Completed,
	))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to update job %s: %w", id, err)
	}
	return job, err
}

// DeleteJob removes a job visible to clientID.
func (s *Store) DeleteJob(ctx context.Context, clientID, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM jobs WHERE id = $1 AND client_id = $2", id, clientID)
	if err != nil {
		return fmt.Errorf("failed to delete job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

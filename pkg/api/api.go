// Package api contains shared JSON request/response structs.
// This package is shared between the CLI, the Controller and the Worker.
package api

import "time"

// Job states as stored by the tracking service and reported by the worker.
const (
	StatusQueued     = "queued"
	StatusAnalyzing  = "analyzing"
	StatusGenerating = "generating"
	StatusBuilding   = "building"
	StatusTraining   = "training"
	StatusDeploying  = "deploying"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ValidStatus reports whether s is a known job state.
func ValidStatus(s string) bool {
	switch s {
	case StatusQueued, StatusAnalyzing, StatusGenerating, StatusBuilding,
		StatusTraining, StatusDeploying, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// TerminalStatus reports whether s ends a job's lifecycle.
func TerminalStatus(s string) bool {
	return s == StatusCompleted || s == StatusFailed
}

// JobMessage is the work item pushed onto the queue.
type JobMessage struct {
	JobID   string `json:"job_id"`
	RepoURL string `json:"repo_url"`
}

// StatusUpdate is the PATCH body sent by the worker on every state change.
// Empty fields are omitted and left untouched by the tracking service.
type StatusUpdate struct {
	Status           string `json:"status"`
	ErrorMessage     string `json:"error_message,omitempty"`
	APIEndpoint      string `json:"api_endpoint,omitempty"`
	StorageLocator   string `json:"model_s3_path,omitempty"`
	SourceFiles      *int   `json:"python_files,omitempty"`
	Notebooks        *int   `json:"notebooks,omitempty"`
	Frameworks       string `json:"frameworks,omitempty"`
	RepositoryURL    string `json:"github_repo_url,omitempty"`
	DeploymentURL    string `json:"deployment_url,omitempty"`
	GitHubActionsURL string `json:"github_actions_url,omitempty"`
	GitLabCIURL      string `json:"gitlab_ci_url,omitempty"`
	JenkinsfileURL   string `json:"jenkinsfile_url,omitempty"`
	Image            string `json:"image,omitempty"`
}

// CreateJobRequest is the request body for submitting a repository.
type CreateJobRequest struct {
	RepoURL string `json:"repo_url"`
}

// JobResponse is the tracking service's view of a job.
type JobResponse struct {
	ID               string     `json:"id"`
	RepoURL          string     `json:"repo_url"`
	Status           string     `json:"status"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	APIEndpoint      string     `json:"api_endpoint,omitempty"`
	StorageLocator   string     `json:"model_s3_path,omitempty"`
	SourceFiles      int        `json:"python_files"`
	Notebooks        int        `json:"notebooks"`
	Frameworks       string     `json:"frameworks,omitempty"`
	RepositoryURL    string     `json:"github_repo_url,omitempty"`
	DeploymentURL    string     `json:"deployment_url,omitempty"`
	GitHubActionsURL string     `json:"github_actions_url,omitempty"`
	GitLabCIURL      string     `json:"gitlab_ci_url,omitempty"`
	JenkinsfileURL   string     `json:"jenkinsfile_url,omitempty"`
	Image            string     `json:"image,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// ListJobsResponse is the response body for listing jobs.
type ListJobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// ArtifactListResponse lists the stored artifact paths of a job.
type ArtifactListResponse struct {
	JobID string   `json:"job_id"`
	Files []string `json:"files"`
}

// CreateClientRequest is the request body for registering an API client.
type CreateClientRequest struct {
	Name           string  `json:"name"`
	RateLimit      float64 `json:"rate_limit,omitempty"`
	RateLimitBurst int     `json:"rate_limit_burst,omitempty"`
}

// CreateClientResponse carries the raw API key. It is returned only once.
type CreateClientResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	APIKey string `json:"api_key"`
}

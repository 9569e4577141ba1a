package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a row does not exist or is not visible to the caller.
var ErrNotFound = errors.New("not found")

// Client is an API consumer authenticated by a hashed key.
// Jobs are scoped to the client that submitted them.
type Client struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
	// RateLimit is requests per second; 0 means unlimited.
	RateLimit      float64
	RateLimitBurst int
}

// Job is the tracking service's record of one pipeline run.
type Job struct {
	ID               uuid.UUID
	ClientID         uuid.UUID
	RepoURL          string
	Status           string
	ErrorMessage     string
	APIEndpoint      string
	StorageLocator   string
	SourceFiles      int
	Notebooks        int
	Frameworks       string
	RepositoryURL    string
	DeploymentURL    string
	GitHubActionsURL string
	GitLabCIURL      string
	JenkinsfileURL   string
	Image            string
	CreatedAt        time.Time
	UpdatedAt        *time.Time
	CompletedAt      *time.Time
}

// StatusPatch is a partial update reported by a worker.
// Empty strings and nil counts leave the stored value unchanged.
type StatusPatch struct {
	Status           string
	ErrorMessage     string
	APIEndpoint      string
	StorageLocator   string
	SourceFiles      *int
	Notebooks        *int
	Frameworks       string
	RepositoryURL    string
	DeploymentURL    string
	GitHubActionsURL string
	GitLabCIURL      string
	JenkinsfileURL   string
	Image            string
	// Completed stamps completed_at.
	Completed bool
}

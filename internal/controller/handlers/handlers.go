// Package handlers contains HTTP handlers for the tracking service API.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"shipyard/internal/logger"
	"shipyard/internal/store"
	"shipyard/pkg/api"
)

// StoreFactory combines the interfaces needed for the controller to function.
type StoreFactory interface {
	BeginTx(ctx context.Context) (store.Tx, error)
	Ping(ctx context.Context) error
	store.JobStore
	store.ClientStore
}

// ArtifactReader reads the artifacts a worker uploaded for a job.
type ArtifactReader interface {
	List(ctx context.Context, jobID string) ([]string, error)
	Get(ctx context.Context, jobID, name string) ([]byte, error)
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	store     StoreFactory
	queue     store.Queue
	artifacts ArtifactReader
	logger    *slog.Logger
}

// New creates a new Handlers instance. artifacts may be nil when no object store is configured.
func New(s StoreFactory, q store.Queue, artifacts ArtifactReader, log *slog.Logger) *Handlers {
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{store: s, queue: q, artifacts: artifacts, logger: log}
}

func (h *Handlers) log(r *http.Request) *slog.Logger {
	return logger.FromContext(r.Context(), h.logger)
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

func toJobResponse(j *store.Job) api.JobResponse {
	return api.JobResponse{
		ID:               j.ID.String(),
		RepoURL:          j.RepoURL,
		Status:           j.Status,
		ErrorMessage:     j.ErrorMessage,
		APIEndpoint:      j.APIEndpoint,
		StorageLocator:   j.StorageLocator,
		SourceFiles:      j.SourceFiles,
		Notebooks:        j.Notebooks,
		Frameworks:       j.Frameworks,
		RepositoryURL:    j.RepositoryURL,
		DeploymentURL:    j.DeploymentURL,
		GitHubActionsURL: j.GitHubActionsURL,
		GitLabCIURL:      j.GitLabCIURL,
		JenkinsfileURL:   j.JenkinsfileURL,
		Image:            j.Image,
		CreatedAt:        j.CreatedAt,
		UpdatedAt:        j.UpdatedAt,
		CompletedAt:      j.CompletedAt,
	}
}

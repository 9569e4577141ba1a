package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"shipyard/internal/controller/middleware"
	"shipyard/internal/store"
	"shipyard/pkg/api"

	"github.com/google/uuid"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// validRepoURL accepts http(s), ssh and scp-style git locators.
func validRepoURL(raw string) bool {
	if strings.HasPrefix(raw, "git@") && strings.Contains(raw, ":") {
		return true
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	switch u.Scheme {
	case "http", "https", "ssh", "git":
		return true
	}
	return false
}

// CreateJob handles POST /api/jobs.
// It records a queued job and pushes it onto the work queue in the same request.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req.RepoURL = strings.TrimSpace(req.RepoURL)
	if !validRepoURL(req.RepoURL) {
		h.httpError(w, "repo_url must be a repository URL", http.StatusBadRequest)
		return
	}

	clientID, ok := middleware.ClientIDFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	job := &store.Job{
		ID:        uuid.New(),
		ClientID:  clientID,
		RepoURL:   req.RepoURL,
		Status:    api.StatusQueued,
		CreatedAt: time.Now().UTC(),
	}

	tx, err := h.store.BeginTx(ctx)
	if err != nil {
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	if err := h.store.CreateJob(ctx, tx, job); err != nil {
		h.log(r).Error("create job failed", "error", err)
		h.httpError(w, "Failed to create job", http.StatusInternalServerError)
		return
	}

	// The row is only committed once the message is on the queue.
	msg := api.JobMessage{JobID: job.ID.String(), RepoURL: job.RepoURL}
	if err := h.queue.Enqueue(ctx, msg); err != nil {
		h.log(r).Error("enqueue failed", "job_id", job.ID, "error", err)
		h.httpError(w, "Failed to enqueue", http.StatusServiceUnavailable)
		return
	}

	if err := tx.Commit(); err != nil {
		h.log(r).Error("commit failed after enqueue", "job_id", job.ID, "error", err)
		h.httpError(w, "Failed to commit transaction", http.StatusInternalServerError)
		return
	}

	h.log(r).Info("job queued", "job_id", job.ID, "repo_url", job.RepoURL)
	h.respondJson(w, http.StatusCreated, toJobResponse(job))
}

// GetJob handles GET /api/jobs/{id}.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.clientJob(w, r)
	if !ok {
		return
	}
	h.respondJson(w, http.StatusOK, toJobResponse(job))
}

// ListJobs handles GET /api/jobs?limit=N, newest first.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxListLimit {
			h.httpError(w, "limit must be between 1 and 200", http.StatusBadRequest)
			return
		}
		limit = n
	}

	clientID, ok := middleware.ClientIDFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	jobs, err := h.store.ListJobs(ctx, clientID, limit)
	if err != nil {
		h.log(r).Error("list jobs failed", "error", err)
		h.httpError(w, "Failed to list jobs", http.StatusInternalServerError)
		return
	}

	resp := api.ListJobsResponse{Jobs: make([]api.JobResponse, 0, len(jobs))}
	for i := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(&jobs[i]))
	}
	h.respondJson(w, http.StatusOK, resp)
}

// DeleteJob handles DELETE /api/jobs/{id}.
// It only removes the record; a worker already processing the job is not interrupted.
func (h *Handlers) DeleteJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid job id", http.StatusBadRequest)
		return
	}
	clientID, ok := middleware.ClientIDFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	err = h.store.DeleteJob(ctx, clientID, jobID)
	if errors.Is(err, store.ErrNotFound) {
		h.httpError(w, "Job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log(r).Error("delete job failed", "job_id", jobID, "error", err)
		h.httpError(w, "Failed to delete job", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateJobStatus handles PATCH /api/jobs/{id}/status (internal).
// Workers report every state change here; empty fields keep their stored values.
func (h *Handlers) UpdateJobStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid job id", http.StatusBadRequest)
		return
	}

	var req api.StatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !api.ValidStatus(req.Status) {
		h.httpError(w, "Unknown status: "+req.Status, http.StatusBadRequest)
		return
	}

	patch := store.StatusPatch{
		Status:           req.Status,
		ErrorMessage:     req.ErrorMessage,
		APIEndpoint:      req.APIEndpoint,
		StorageLocator:   req.StorageLocator,
		SourceFiles:      req.SourceFiles,
		Notebooks:        req.Notebooks,
		Frameworks:       req.Frameworks,
		RepositoryURL:    req.RepositoryURL,
		DeploymentURL:    req.DeploymentURL,
		GitHubActionsURL: req.GitHubActionsURL,
		GitLabCIURL:      req.GitLabCIURL,
		JenkinsfileURL:   req.JenkinsfileURL,
		Image:            req.Image,
		Completed:        api.TerminalStatus(req.Status),
	}

	job, err := h.store.UpdateJobStatus(ctx, jobID, patch)
	if errors.Is(err, store.ErrNotFound) {
		h.httpError(w, "Job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log(r).Error("update job status failed", "job_id", jobID, "error", err)
		h.httpError(w, "Failed to update job", http.StatusInternalServerError)
		return
	}

	h.log(r).Info("job status updated", "job_id", jobID, "status", req.Status)
	h.respondJson(w, http.StatusOK, toJobResponse(job))
}

// clientJob loads the job named by the {id} path value for the authenticated client,
// writing the error response itself when it returns false.
func (h *Handlers) clientJob(w http.ResponseWriter, r *http.Request) (*store.Job, bool) {
	ctx := r.Context()

	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid job id", http.StatusBadRequest)
		return nil, false
	}
	clientID, ok := middleware.ClientIDFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	job, err := h.store.GetJob(ctx, clientID, jobID)
	if errors.Is(err, store.ErrNotFound) {
		h.httpError(w, "Job not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		h.log(r).Error("get job failed", "job_id", jobID, "error", err)
		h.httpError(w, "Failed to load job", http.StatusInternalServerError)
		return nil, false
	}
	return job, true
}

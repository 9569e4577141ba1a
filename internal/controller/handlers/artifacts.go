package handlers

import (
	"archive/zip"
	"errors"
	"mime"
	"net/http"
	"path"
	"strconv"

	"shipyard/internal/sink"
	"shipyard/pkg/api"
)

// ListArtifacts handles GET /api/jobs/{id}/artifacts.
func (h *Handlers) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	job, ok := h.clientJob(w, r)
	if !ok {
		return
	}
	if h.artifacts == nil {
		h.httpError(w, "Artifact storage is not configured", http.StatusNotImplemented)
		return
	}

	files, err := h.artifacts.List(r.Context(), job.ID.String())
	if err != nil {
		h.log(r).Error("list artifacts failed", "job_id", job.ID, "error", err)
		h.httpError(w, "Failed to list artifacts", http.StatusBadGateway)
		return
	}
	if files == nil {
		files = []string{}
	}
	h.respondJson(w, http.StatusOK, api.ArtifactListResponse{JobID: job.ID.String(), Files: files})
}

// GetArtifact handles GET /api/jobs/{id}/artifacts/{name...}.
func (h *Handlers) GetArtifact(w http.ResponseWriter, r *http.Request) {
	job, ok := h.clientJob(w, r)
	if !ok {
		return
	}
	if h.artifacts == nil {
		h.httpError(w, "Artifact storage is not configured", http.StatusNotImplemented)
		return
	}

	name := r.PathValue("name")
	data, err := h.artifacts.Get(r.Context(), job.ID.String(), name)
	if errors.Is(err, sink.ErrNotFound) {
		h.httpError(w, "Artifact not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log(r).Error("get artifact failed", "job_id", job.ID, "name", name, "error", err)
		h.httpError(w, "Failed to read artifact", http.StatusBadGateway)
		return
	}

	ctype := mime.TypeByExtension(path.Ext(name))
	if ctype == "" {
		ctype = "text/plain; charset=utf-8"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// DownloadArtifacts handles GET /api/jobs/{id}/artifacts.zip.
func (h *Handlers) DownloadArtifacts(w http.ResponseWriter, r *http.Request) {
	job, ok := h.clientJob(w, r)
	if !ok {
		return
	}
	if h.artifacts == nil {
		h.httpError(w, "Artifact storage is not configured", http.StatusNotImplemented)
		return
	}

	ctx := r.Context()
	jobID := job.ID.String()
	files, err := h.artifacts.List(ctx, jobID)
	if err != nil {
		h.log(r).Error("list artifacts failed", "job_id", jobID, "error", err)
		h.httpError(w, "Failed to list artifacts", http.StatusBadGateway)
		return
	}
	if len(files) == 0 {
		h.httpError(w, "No artifacts stored for job", http.StatusNotFound)
		return
	}

	// Read everything first so a storage error can still produce a JSON error response.
	contents := make([][]byte, len(files))
	for i, name := range files {
		data, err := h.artifacts.Get(ctx, jobID, name)
		if err != nil {
			h.log(r).Error("get artifact failed", "job_id", jobID, "name", name, "error", err)
			h.httpError(w, "Failed to read artifact", http.StatusBadGateway)
			return
		}
		contents[i] = data
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+jobID+`-artifacts.zip"`)
	w.WriteHeader(http.StatusOK)

	zw := zip.NewWriter(w)
	for i, name := range files {
		f, err := zw.Create(name)
		if err != nil {
			h.log(r).Error("zip entry failed", "job_id", jobID, "name", name, "error", err)
			return
		}
		if _, err := f.Write(contents[i]); err != nil {
			h.log(r).Error("zip write failed", "job_id", jobID, "error", err)
			return
		}
	}
	if err := zw.Close(); err != nil {
		h.log(r).Error("zip close failed", "job_id", jobID, "error", err)
	}
}

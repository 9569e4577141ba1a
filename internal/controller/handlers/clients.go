package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"shipyard/internal/auth"
	"shipyard/internal/store"
	"shipyard/pkg/api"

	"github.com/google/uuid"
)

// CreateClient handles POST /api/clients (internal).
// It generates a new API Key, hashes it for storage, and returns the raw key ONCE.
func (h *Handlers) CreateClient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.CreateClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		h.httpError(w, "name is required", http.StatusBadRequest)
		return
	}
	if req.RateLimit < 0 || req.RateLimitBurst < 0 {
		h.httpError(w, "rate limits must not be negative", http.StatusBadRequest)
		return
	}

	apiKey, err := auth.NewKey()
	if err != nil {
		h.log(r).Error("generate api key failed", "error", err)
		h.httpError(w, "Entropy failure", http.StatusInternalServerError)
		return
	}

	client := &store.Client{
		ID:             uuid.New(),
		Name:           req.Name,
		CreatedAt:      time.Now().UTC(),
		RateLimit:      req.RateLimit,
		RateLimitBurst: req.RateLimitBurst,
	}
	if err := h.store.CreateClient(ctx, client, auth.HashKey(apiKey)); err != nil {
		h.log(r).Error("create client failed", "error", err)
		h.httpError(w, "Failed to create client", http.StatusInternalServerError)
		return
	}

	h.log(r).Info("client created", "client_id", client.ID, "name", client.Name)
	h.respondJson(w, http.StatusCreated, api.CreateClientResponse{
		ID:     client.ID.String(),
		Name:   client.Name,
		APIKey: apiKey,
	})
}

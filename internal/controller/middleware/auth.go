// Package middleware contains HTTP middleware for the controller.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"shipyard/internal/auth"
	"shipyard/internal/store"
	"shipyard/pkg/api"

	"github.com/google/uuid"
)

// clientKey is the context key for the authenticated client.
type clientKey struct{}

// ClientLookup resolves an API key hash to its client.
type ClientLookup interface {
	GetClientByAPIKeyHash(ctx context.Context, hash string) (*store.Client, error)
}

// AuthMiddleware authenticates "Authorization: Bearer <api key>" and stores the client in the
// request context. Every job operation is scoped by the client.
func AuthMiddleware(s ClientLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeError(w, "Missing or invalid authorization header", http.StatusUnauthorized)
				return
			}

			client, err := s.GetClientByAPIKeyHash(r.Context(), auth.HashKey(token))
			if errors.Is(err, store.ErrNotFound) || (err == nil && client == nil) {
				writeError(w, "Invalid API key", http.StatusUnauthorized)
				return
			}
			if err != nil {
				slog.ErrorContext(r.Context(), "client lookup failed", "error", err)
				writeError(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(NewContextWithClient(r.Context(), client)))
		})
	}
}

// NewContextWithClient returns a context carrying client.
func NewContextWithClient(ctx context.Context, client *store.Client) context.Context {
	return context.WithValue(ctx, clientKey{}, client)
}

// ClientFromContext returns the authenticated client.
func ClientFromContext(ctx context.Context) (*store.Client, bool) {
	c, ok := ctx.Value(clientKey{}).(*store.Client)
	return c, ok && c != nil
}

// ClientIDFromContext returns the authenticated client's ID, or uuid.Nil.
func ClientIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	c, ok := ClientFromContext(ctx)
	if !ok {
		return uuid.Nil, false
	}
	return c.ID, true
}

// bearerToken extracts the token of an "Authorization: Bearer <token>" header.
func bearerToken(r *http.Request) (string, bool) {
	parts := strings.Split(r.Header.Get("Authorization"), " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(api.ErrorResponse{
		Error: message,
		Code:  http.StatusText(code),
	})
}

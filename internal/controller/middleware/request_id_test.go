package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"shipyard/internal/logger"
)

func TestRequestLogger_PropagatesCallerID(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	var seen string
	handler := RequestLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if seen != "req-42" {
		t.Errorf("got request id %q in context, want req-42", seen)
	}
	if got := rr.Header().Get(RequestIDHeader); got != "req-42" {
		t.Errorf("got response header %q, want req-42", got)
	}
	logLine := buf.String()
	if !strings.Contains(logLine, `"request_id":"req-42"`) || !strings.Contains(logLine, `"status":201`) {
		t.Errorf("unexpected log line: %s", logLine)
	}
}

func TestRequestLogger_GeneratesID(t *testing.T) {
	base := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	handler := RequestLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if id := rr.Header().Get(RequestIDHeader); len(id) != 36 {
		t.Errorf("expected a generated UUID, got %q", id)
	}
}

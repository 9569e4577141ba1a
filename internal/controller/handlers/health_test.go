package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthz(t *testing.T) {
	h := New(&mockStore{pingErr: errors.New("db down")}, &mockQueue{}, nil, nil)

	rr := httptest.NewRecorder()
	h.Healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	// Liveness does not depend on the database.
	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name     string
		dbErr    error
		queueErr error
		want     int
		message  string
	}{
		{name: "all dependencies reachable", want: http.StatusOK},
		{name: "database down", dbErr: errors.New("db down"), want: http.StatusServiceUnavailable, message: "Database unavailable"},
		{name: "queue down", queueErr: errors.New("redis down"), want: http.StatusServiceUnavailable, message: "Queue unavailable"},
		{name: "database checked first", dbErr: errors.New("db down"), queueErr: errors.New("redis down"), want: http.StatusServiceUnavailable, message: "Database unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(&mockStore{pingErr: tt.dbErr}, &mockQueue{pingErr: tt.queueErr}, nil, nil)

			rr := httptest.NewRecorder()
			h.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rr.Code != tt.want {
				t.Fatalf("got status %d, want %d", rr.Code, tt.want)
			}
			if tt.want != http.StatusOK {
				var body map[string]string
				if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if body["error"] != tt.message {
					t.Errorf("got error %q, want %q", body["error"], tt.message)
				}
				return
			}

			var body readiness
			if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != "ready" || body.Checks["database"] != "ok" || body.Checks["queue"] != "ok" {
				t.Errorf("unexpected readiness body %+v", body)
			}
		})
	}
}

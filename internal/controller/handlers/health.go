package handlers

import (
	"context"
	"net/http"
)

// pinger is implemented by dependencies that can report reachability.
type pinger interface {
	Ping(ctx context.Context) error
}

type check struct {
	name    string
	dep     pinger
	failure string
}

type readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Healthz reports that the process is serving.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	h.respondJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz pings the database, then the queue when it can be pinged. The first failure
// answers 503 naming the dependency.
func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := []check{{"database", h.store, "Database unavailable"}}
	if q, ok := h.queue.(pinger); ok {
		checks = append(checks, check{"queue", q, "Queue unavailable"})
	}

	ready := readiness{Status: "ready", Checks: map[string]string{}}
	for _, c := range checks {
		if err := c.dep.Ping(r.Context()); err != nil {
			h.log(r).Warn("readiness check failed", "dependency", c.name, "error", err)
			h.httpError(w, c.failure, http.StatusServiceUnavailable)
			return
		}
		ready.Checks[c.name] = "ok"
	}
	h.respondJson(w, http.StatusOK, ready)
}

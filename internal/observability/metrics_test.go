package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func scrape(t *testing.T, handler http.Handler) string {
	t.Helper()
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	return rr.Body.String()
}

func TestInitMetrics(t *testing.T) {
	handler, shutdown, err := InitMetrics("shipyard-controller")
	if err != nil {
		t.Fatalf("InitMetrics failed: %v", err)
	}
	defer shutdownWithin(t, shutdown)

	if handler == nil {
		t.Fatal("expected handler to be non-nil")
	}
	if body := scrape(t, handler); body == "" {
		t.Error("handler returned empty body")
	}
}

func TestRegisterQueueDepth(t *testing.T) {
	handler, shutdown, err := InitMetrics("shipyard-controller")
	if err != nil {
		t.Fatalf("InitMetrics failed: %v", err)
	}
	defer shutdownWithin(t, shutdown)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	depth := func(ctx context.Context) (int64, error) { return 7, nil }
	if err := RegisterQueueDepth(otel.Meter("depth-test"), depth, log); err != nil {
		t.Fatalf("RegisterQueueDepth failed: %v", err)
	}

	body := scrape(t, handler)
	if !strings.Contains(body, "shipyard_queue_depth") {
		t.Fatalf("expected shipyard_queue_depth in output, got:\n%s", body)
	}
	if !strings.Contains(body, " 7\n") {
		t.Errorf("expected depth 7 in output, got:\n%s", body)
	}
}

func TestRegisterQueueDepth_ReadErrorKeepsScrape(t *testing.T) {
	handler, shutdown, err := InitMetrics("shipyard-controller")
	if err != nil {
		t.Fatalf("InitMetrics failed: %v", err)
	}
	defer shutdownWithin(t, shutdown)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	depth := func(ctx context.Context) (int64, error) { return 0, errors.New("redis down") }
	if err := RegisterQueueDepth(otel.Meter("depth-test"), depth, log); err != nil {
		t.Fatalf("RegisterQueueDepth failed: %v", err)
	}

	for _, line := range strings.Split(scrape(t, handler), "\n") {
		if strings.HasPrefix(line, "shipyard_queue_depth") {
			t.Errorf("expected no depth sample after a failed read, got %q", line)
		}
	}
}

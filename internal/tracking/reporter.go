// Package tracking reports job state changes to the tracking service.
package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"shipyard/pkg/api"
)

// Reporter sends PATCH /api/jobs/{id}/status requests.
type Reporter struct {
	BaseURL    string
	Secret     string
	HTTPClient *http.Client
}

// NewReporter creates a reporter for the tracking service at baseURL,
// authenticating with the shared internal secret.
func NewReporter(baseURL, secret string) *Reporter {
	return &Reporter{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Secret:  secret,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ReportError is returned when the tracking service rejects an update.
type ReportError struct {
	StatusCode int
	Message    string
}

func (e *ReportError) Error() string {
	return fmt.Sprintf("tracking service error (%d): %s", e.StatusCode, e.Message)
}

// Report sends one state change. Empty fields of update are omitted from the body.
func (r *Reporter) Report(ctx context.Context, jobID string, update api.StatusUpdate) error {
	bodyBytes, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("failed to marshal update: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/jobs/%s/status", r.BaseURL, url.PathEscape(jobID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.Secret != "" {
		req.Header.Set("Authorization", "Bearer "+r.Secret)
	}

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &ReportError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}
	return nil
}

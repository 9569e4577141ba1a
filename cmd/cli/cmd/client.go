package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"shipyard/pkg/api"
)

// JobClient handles API calls to the shipyard tracking service.
type JobClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewJobClient creates a new client with the given base URL and token.
func NewJobClient(baseURL, token string) *JobClient {
	return &JobClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// do sends an authenticated request and returns the response when its status is one of ok.
// The caller closes the body.
func (c *JobClient) do(method, path string, body any, ok ...int) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	if body != nil {
		httpReq.Header.Add("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	for _, code := range ok {
		if resp.StatusCode == code {
			return resp, nil
		}
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
}

// errorMessage extracts the error field of a JSON error body, falling back to the raw text.
func errorMessage(body []byte) string {
	var e api.ErrorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}

func decode[T any](resp *http.Response) (*T, error) {
	defer resp.Body.Close()
	var result T
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &result, nil
}

// CreateJob sends POST /api/jobs to queue a repository.
func (c *JobClient) CreateJob(repoURL string) (*api.JobResponse, error) {
	resp, err := c.do(http.MethodPost, "/api/jobs", api.CreateJobRequest{RepoURL: repoURL}, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	return decode[api.JobResponse](resp)
}

// GetJob sends GET /api/jobs/{id}.
func (c *JobClient) GetJob(jobID string) (*api.JobResponse, error) {
	resp, err := c.do(http.MethodGet, "/api/jobs/"+url.PathEscape(jobID), nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return decode[api.JobResponse](resp)
}

// ListJobs sends GET /api/jobs?limit=N.
func (c *JobClient) ListJobs(limit int) ([]api.JobResponse, error) {
	resp, err := c.do(http.MethodGet, fmt.Sprintf("/api/jobs?limit=%d", limit), nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	result, err := decode[api.ListJobsResponse](resp)
	if err != nil {
		return nil, err
	}
	return result.Jobs, nil
}

// DeleteJob sends DELETE /api/jobs/{id}.
func (c *JobClient) DeleteJob(jobID string) error {
	resp, err := c.do(http.MethodDelete, "/api/jobs/"+url.PathEscape(jobID), nil, http.StatusNoContent)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// ListArtifacts sends GET /api/jobs/{id}/artifacts.
func (c *JobClient) ListArtifacts(jobID string) ([]string, error) {
	resp, err := c.do(http.MethodGet, "/api/jobs/"+url.PathEscape(jobID)+"/artifacts", nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	result, err := decode[api.ArtifactListResponse](resp)
	if err != nil {
		return nil, err
	}
	return result.Files, nil
}

// DownloadArtifacts copies the zip from GET /api/jobs/{id}/artifacts.zip into w.
func (c *JobClient) DownloadArtifacts(jobID string, w io.Writer) (int64, error) {
	resp, err := c.do(http.MethodGet, "/api/jobs/"+url.PathEscape(jobID)+"/artifacts.zip", nil, http.StatusOK)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return io.Copy(w, resp.Body)
}

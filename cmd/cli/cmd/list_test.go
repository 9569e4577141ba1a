package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"shipyard/pkg/api"

	"github.com/spf13/viper"
)

func TestListCommand_Table(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "5" {
			t.Errorf("expected limit=5, got %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(api.ListJobsResponse{Jobs: []api.JobResponse{
			{ID: "job-2", Status: api.StatusBuilding, RepoURL: "https://github.com/a/two", CreatedAt: time.Now()},
			{ID: "job-1", Status: api.StatusFailed, RepoURL: "https://github.com/a/one", CreatedAt: time.Now(),
				ErrorMessage: strings.Repeat("x", 80)},
		}})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	output := execute(t, "list", "--limit", "5")

	if !strings.Contains(output, "JOB ID") {
		t.Errorf("expected table header, got: %s", output)
	}
	if strings.Index(output, "job-2") > strings.Index(output, "job-1") {
		t.Errorf("expected server order to be kept, got: %s", output)
	}
	if strings.Contains(output, strings.Repeat("x", 80)) || !strings.Contains(output, "...") {
		t.Errorf("expected long errors to be truncated, got: %s", output)
	}
}

func TestListCommand_Empty(t *testing.T) {
	resetViper()
	listCmd.Flags().Set("limit", "20")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jobs":[]}`))
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	output := execute(t, "list")

	if !strings.Contains(output, "No jobs found.") {
		t.Errorf("expected empty message, got: %s", output)
	}
}

func TestDeleteCommand(t *testing.T) {
	resetViper()

	deleted := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete && r.URL.Path == "/api/jobs/job-5" {
			deleted = true
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	output := execute(t, "delete", "job-5")

	if !deleted {
		t.Error("expected delete endpoint to be called")
	}
	if !strings.Contains(output, "Job job-5 deleted") {
		t.Errorf("expected confirmation, got: %s", output)
	}
}

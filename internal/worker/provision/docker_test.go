package provision

import (
	"strings"
	"testing"

	"github.com/docker/docker/api/types"
)

func TestReadBuildStream(t *testing.T) {
	stream := `{"stream":"Step 1/3 : FROM python:3.10-slim\n"}
{"stream":"Step 2/3 : COPY . .\n"}
`
	var log strings.Builder
	if err := readBuildStream(strings.NewReader(stream), &log); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(log.String(), "Step 2/3") {
		t.Errorf("expected collected output, got %q", log.String())
	}
}

func TestReadBuildStream_Error(t *testing.T) {
	stream := `{"stream":"Step 1/3 : FROM python:3.10-slim\n"}
{"errorDetail":{"message":"pip install failed"},"error":"pip install failed"}
`
	var log strings.Builder
	err := readBuildStream(strings.NewReader(stream), &log)
	if err == nil || !strings.Contains(err.Error(), "pip install failed") {
		t.Fatalf("expected build error, got %v", err)
	}
	if !strings.Contains(log.String(), "Step 1/3") {
		t.Errorf("expected output before the error to be kept")
	}
}

func TestContainerStatus(t *testing.T) {
	state := func(s types.ContainerState) types.ContainerJSON {
		return types.ContainerJSON{ContainerJSONBase: &types.ContainerJSONBase{State: &s}}
	}

	tests := []struct {
		name string
		info types.ContainerJSON
		want Status
	}{
		{"no state", types.ContainerJSON{}, StatusPending},
		{"created", state(types.ContainerState{Status: "created"}), StatusPending},
		{"running", state(types.ContainerState{Status: "running", Running: true}), StatusRunning},
		{"exit zero", state(types.ContainerState{Status: "exited"}), StatusSucceeded},
		{"exit non-zero", state(types.ContainerState{Status: "exited", ExitCode: 1}), StatusFailed},
		{"dead", state(types.ContainerState{Status: "dead", ExitCode: 137}), StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := containerStatus(tt.info); got != tt.want {
				t.Errorf("containerStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestEnvSlice_Sorted(t *testing.T) {
	got := envSlice(map[string]string{"B": "2", "A": "1"})
	if strings.Join(got, ",") != "A=1,B=2" {
		t.Errorf("unexpected env %v", got)
	}
}

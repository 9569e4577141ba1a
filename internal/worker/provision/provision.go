// Package provision submits build, train and serve workloads and reports their status.
package provision

import (
	"context"
	"errors"
	"time"
)

// Status is the four-state lifecycle of a submitted workload.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Done reports whether s is final.
func (s Status) Done() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Workload identifies what a provisioner runs.
type Workload string

const (
	WorkloadBuild Workload = "build"
	WorkloadTrain Workload = "train"
	WorkloadServe Workload = "serve"
)

// ErrNotReady is returned by Await when the timeout passes before the workload finishes.
var ErrNotReady = errors.New("workload not ready")

// Params describe the workload for one job.
type Params struct {
	ProjectName string
	// Image is the reference built by the build stage and run by train and serve.
	Image string
	// ContextDir is the local staging directory holding the generated artifacts.
	ContextDir string
	// ContextURL is the object-store address of the gzipped artifacts (s3://bucket/key.tar.gz).
	ContextURL string
	Env        map[string]string
	// GPU requests one accelerator for train workloads.
	GPU bool
}

// Handle identifies a submitted workload.
type Handle struct {
	Workload  Workload
	Name      string
	Namespace string
}

// Provisioner runs one kind of workload. A nil handle from Submit means the
// provisioner is not configured and the stage is skipped.
type Provisioner interface {
	Submit(ctx context.Context, jobID string, p Params) (*Handle, error)
	Status(ctx context.Context, h *Handle) (Status, error)
	Logs(ctx context.Context, h *Handle) (string, error)
}

// EndpointResolver is implemented by serve provisioners that expose an address.
// An empty endpoint with ErrNotReady means the address is not assigned yet.
type EndpointResolver interface {
	Endpoint(ctx context.Context, h *Handle) (string, error)
}

// Unconfigured is a Provisioner that always skips.
type Unconfigured struct{}

func (Unconfigured) Submit(context.Context, string, Params) (*Handle, error) { return nil, nil }
func (Unconfigured) Status(context.Context, *Handle) (Status, error)       { return StatusPending, nil }
func (Unconfigured) Logs(context.Context, *Handle) (string, error)         { return "", nil }

// Await polls p every interval until h reaches a final status or timeout elapses.
// On timeout it returns StatusPending and ErrNotReady; status query errors are returned as-is.
func Await(ctx context.Context, p Provisioner, h *Handle, interval, timeout time.Duration) (Status, error) {
	if interval <= 0 {
		interval = time.Second
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		st, err := p.Status(ctx, h)
		if err != nil {
			return st, err
		}
		if st.Done() {
			return st, nil
		}

		select {
		case <-ctx.Done():
			return StatusPending, ctx.Err()
		case <-deadline.C:
			return StatusPending, ErrNotReady
		case <-ticker.C:
		}
	}
}

// AwaitEndpoint polls r until it returns an address or timeout elapses.
func AwaitEndpoint(ctx context.Context, r EndpointResolver, h *Handle, interval, timeout time.Duration) (string, error) {
	if interval <= 0 {
		interval = time.Second
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ep, err := r.Endpoint(ctx, h)
		if err == nil && ep != "" {
			return ep, nil
		}
		if err != nil && !errors.Is(err, ErrNotReady) {
			return "", err
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", ErrNotReady
		case <-ticker.C:
		}
	}
}

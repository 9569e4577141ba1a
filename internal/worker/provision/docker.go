package provision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

// NewDockerClient initializes a client from standard environment variables (DOCKER_HOST, etc.).
func NewDockerClient() (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return cli, nil
}

// DockerBuilder builds the image from the local staging directory.
// Builds run in the background; Status reports their outcome.
type DockerBuilder struct {
	client *client.Client

	mu     sync.Mutex
	builds map[string]*dockerBuild
}

type dockerBuild struct {
	status Status
	log    string
	err    error
}

// NewDockerBuilder creates a builder.
func NewDockerBuilder(cli *client.Client) *DockerBuilder {
	return &DockerBuilder{client: cli, builds: make(map[string]*dockerBuild)}
}

// Submit tars ContextDir and starts the image build.
func (d *DockerBuilder) Submit(ctx context.Context, jobID string, p Params) (*Handle, error) {
	if p.ContextDir == "" || p.Image == "" {
		return nil, nil
	}

	tar, err := archive.TarWithOptions(p.ContextDir, &archive.TarOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to archive build context: %w", err)
	}

	resp, err := d.client.ImageBuild(ctx, tar, types.ImageBuildOptions{
		Tags:       []string{p.Image},
		Dockerfile: "Dockerfile",
		Remove:     true,
	})
	if err != nil {
		tar.Close()
		return nil, fmt.Errorf("failed to start image build: %w", err)
	}

	b := &dockerBuild{status: StatusRunning}
	h := &Handle{Workload: WorkloadBuild, Name: workloadName(WorkloadBuild, jobID)}

	d.mu.Lock()
	d.builds[h.Name] = b
	d.mu.Unlock()

	go func() {
		defer tar.Close()
		defer resp.Body.Close()
		var out strings.Builder
		err := readBuildStream(resp.Body, &out)

		d.mu.Lock()
		defer d.mu.Unlock()
		b.log = out.String()
		if err != nil {
			b.status, b.err = StatusFailed, err
			return
		}
		b.status = StatusSucceeded
	}()

	return h, nil
}

func readBuildStream(r io.Reader, log *strings.Builder) error {
	dec := json.NewDecoder(r)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read build output: %w", err)
		}
		if msg.Error != nil {
			return msg.Error
		}
		log.WriteString(msg.Stream)
	}
}

// Status reports the state of a background build.
func (d *DockerBuilder) Status(_ context.Context, h *Handle) (Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.builds[h.Name]
	if !ok {
		return StatusPending, fmt.Errorf("unknown build %s", h.Name)
	}
	return b.status, nil
}

// Logs returns the build output collected so far.
func (d *DockerBuilder) Logs(_ context.Context, h *Handle) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.builds[h.Name]
	if !ok {
		return "", fmt.Errorf("unknown build %s", h.Name)
	}
	if b.err != nil {
		return b.log + b.err.Error(), nil
	}
	return b.log, nil
}

// dockerContainers runs a workload as a named container.
type dockerContainers struct {
	client   *client.Client
	workload Workload
}

func envSlice(m map[string]string) []string {
	var env []string
	for _, e := range envList(m) {
		env = append(env, e.Name+"="+e.Value)
	}
	return env
}

func (d *dockerContainers) run(ctx context.Context, jobID string, cfg *container.Config, host *container.HostConfig) (*Handle, error) {
	name := workloadName(d.workload, jobID)

	err := d.client.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})
	if err != nil && !client.IsErrNotFound(err) {
		return nil, fmt.Errorf("failed to remove previous container %s: %w", name, err)
	}

	created, err := d.client.ContainerCreate(ctx, cfg, host, nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}
	if err := d.client.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}
	return &Handle{Workload: d.workload, Name: name}, nil
}

func (d *dockerContainers) inspect(ctx context.Context, h *Handle) (types.ContainerJSON, error) {
	info, err := d.client.ContainerInspect(ctx, h.Name)
	if err != nil {
		return types.ContainerJSON{}, fmt.Errorf("inspect container %s: %w", h.Name, err)
	}
	return info, nil
}

// Logs returns the container's combined stdout and stderr.
func (d *dockerContainers) Logs(ctx context.Context, h *Handle) (string, error) {
	rc, err := d.client.ContainerLogs(ctx, h.Name, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", fmt.Errorf("container logs %s: %w", h.Name, err)
	}
	defer rc.Close()

	var out strings.Builder
	if _, err := stdcopy.StdCopy(&out, &out, io.LimitReader(rc, 1<<20)); err != nil {
		return out.String(), fmt.Errorf("read logs: %w", err)
	}
	return out.String(), nil
}

// DockerTrainer runs training_wrapper.py in the built image.
type DockerTrainer struct{ dockerContainers }

// NewDockerTrainer creates a trainer.
func NewDockerTrainer(cli *client.Client) *DockerTrainer {
	return &DockerTrainer{dockerContainers{client: cli, workload: WorkloadTrain}}
}

// Submit starts the training container.
func (t *DockerTrainer) Submit(ctx context.Context, jobID string, p Params) (*Handle, error) {
	if p.Image == "" {
		return nil, nil
	}
	env := envSlice(p.Env)
	env = append(env, "SHIPYARD_JOB_ID="+jobID)
	return t.run(ctx, jobID, &container.Config{
		Image: p.Image,
		Cmd:   []string{"python", "training_wrapper.py"},
		Env:   env,
	}, nil)
}

// Status maps the container state; a non-zero exit code is a failure.
func (t *DockerTrainer) Status(ctx context.Context, h *Handle) (Status, error) {
	info, err := t.inspect(ctx, h)
	if err != nil {
		return StatusPending, err
	}
	return containerStatus(info), nil
}

func containerStatus(info types.ContainerJSON) Status {
	if info.ContainerJSONBase == nil || info.State == nil {
		return StatusPending
	}
	switch {
	case info.State.Running:
		return StatusRunning
	case info.State.Status == "exited" || info.State.Status == "dead":
		if info.State.ExitCode == 0 {
			return StatusSucceeded
		}
		return StatusFailed
	}
	return StatusPending
}

// DockerServer runs the inference service with port 8000 published on the host.
type DockerServer struct {
	dockerContainers
	hostPort string
}

// NewDockerServer creates a serve provisioner publishing on hostPort (default 8000).
func NewDockerServer(cli *client.Client, hostPort string) *DockerServer {
	if hostPort == "" {
		hostPort = "8000"
	}
	return &DockerServer{dockerContainers: dockerContainers{client: cli, workload: WorkloadServe}, hostPort: hostPort}
}

// Submit starts the service container.
func (s *DockerServer) Submit(ctx context.Context, jobID string, p Params) (*Handle, error) {
	if p.Image == "" {
		return nil, nil
	}
	port := nat.Port("8000/tcp")
	return s.run(ctx, jobID, &container.Config{
		Image:        p.Image,
		Env:          envSlice(p.Env),
		ExposedPorts: nat.PortSet{port: struct{}{}},
	}, &container.HostConfig{
		PortBindings:  nat.PortMap{port: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: s.hostPort}}},
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
	})
}

// Status reports succeeded while the service container is running.
func (s *DockerServer) Status(ctx context.Context, h *Handle) (Status, error) {
	info, err := s.inspect(ctx, h)
	if err != nil {
		return StatusPending, err
	}
	switch containerStatus(info) {
	case StatusRunning:
		return StatusSucceeded, nil
	case StatusSucceeded, StatusFailed:
		return StatusFailed, nil
	}
	return StatusPending, nil
}

// Endpoint returns the published host address.
func (s *DockerServer) Endpoint(ctx context.Context, h *Handle) (string, error) {
	info, err := s.inspect(ctx, h)
	if err != nil {
		return "", err
	}
	if info.NetworkSettings != nil {
		if bindings := info.NetworkSettings.Ports[nat.Port("8000/tcp")]; len(bindings) > 0 && bindings[0].HostPort != "" {
			return "http://localhost:" + bindings[0].HostPort, nil
		}
	}
	return "", ErrNotReady
}

var _ EndpointResolver = (*DockerServer)(nil)

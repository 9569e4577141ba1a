// Package worker runs the job pipeline: it consumes queued jobs one at a time and drives each
// through analysis, generation, the optional build/train/deploy stages and the artifact sinks,
// reporting every state change to the tracking service.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"
	"unicode/utf8"

	"shipyard/internal/analyzer"
	"shipyard/internal/generate"
	"shipyard/internal/logger"
	"shipyard/internal/observability"
	"shipyard/internal/sink"
	"shipyard/internal/store"
	"shipyard/internal/worker/provision"
	"shipyard/pkg/api"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Fetcher makes a repository available on local disk.
type Fetcher interface {
	Fetch(ctx context.Context, source, dest string) (string, error)
}

// Analyzer profiles a local repository.
type Analyzer interface {
	Analyze(root string) (analyzer.Profile, error)
}

// Generator produces the fixed artifact set for a profile.
type Generator interface {
	GenerateAll(ctx context.Context, profile analyzer.Profile, p generate.Params) []generate.Artifact
}

// ArtifactStore mirrors the staging directory to object storage. A nil result means skipped.
type ArtifactStore interface {
	Store(ctx context.Context, dir, jobID string) (*sink.StoreResult, error)
}

// ContextStore uploads the staging directory as a build context and returns its address.
type ContextStore interface {
	StoreContext(ctx context.Context, dir, jobID string) (string, error)
}

// Publisher pushes the staging directory to version-control hosting. An empty URL means skipped.
type Publisher interface {
	Publish(ctx context.Context, dir, jobID string, meta sink.PublishMetadata) (string, error)
}

// Reporter delivers status updates to the tracking service.
type Reporter interface {
	Report(ctx context.Context, jobID string, update api.StatusUpdate) error
}

// Config holds configuration for the worker agent.
type Config struct {
	// WorkDir holds repos/{jobID} clones and output/{jobID} staging directories.
	WorkDir     string
	DequeueWait time.Duration
	MaxBackoff  time.Duration // Maximum backoff after queue errors (default: 30s)

	EnableBuild         bool
	EnableTraining      bool
	EnableDeployment    bool
	EnableStorageUpload bool
	EnablePublish       bool

	PollInterval  time.Duration
	BuildTimeout  time.Duration
	TrainTimeout  time.Duration
	DeployTimeout time.Duration

	// Generation is resolved against each job's profile.
	Generation generate.Params
	// Env is passed to train and serve workloads.
	Env map[string]string
}

// Deps are the agent's collaborators. Objects, Context and Publisher may be nil.
type Deps struct {
	Queue     store.Queue
	Fetcher   Fetcher
	Analyzer  Analyzer
	Generator Generator

	Builder provision.Provisioner
	Trainer provision.Provisioner
	Server  provision.Provisioner

	Objects   ArtifactStore
	Context   ContextStore
	Publisher Publisher

	Reporter Reporter
	Metrics  *observability.PipelineMetrics
	Logger   *slog.Logger
}

// Agent is the worker loop. One job is in flight at a time.
type Agent struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
	done   chan struct{}
}

// New creates an agent, applying defaults to unset config values.
func New(cfg Config, deps Deps) *Agent {
	if cfg.WorkDir == "" {
		cfg.WorkDir = filepath.Join(os.TempDir(), "shipyard")
	}
	if cfg.DequeueWait <= 0 {
		cfg.DequeueWait = 5 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.BuildTimeout <= 0 {
		cfg.BuildTimeout = 30 * time.Minute
	}
	if cfg.TrainTimeout <= 0 {
		cfg.TrainTimeout = time.Hour
	}
	if cfg.DeployTimeout <= 0 {
		cfg.DeployTimeout = 10 * time.Minute
	}
	if deps.Builder == nil {
		deps.Builder = provision.Unconfigured{}
	}
	if deps.Trainer == nil {
		deps.Trainer = provision.Unconfigured{}
	}
	if deps.Server == nil {
		deps.Server = provision.Unconfigured{}
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Agent{
		cfg:    cfg,
		deps:   deps,
		logger: log,
		done:   make(chan struct{}),
	}
}

// Run dequeues and processes jobs until ctx is cancelled. A job already dequeued runs to a
// terminal state even after cancellation.
func (a *Agent) Run(ctx context.Context) error {
	defer close(a.done)
	a.logger.Info("worker starting",
		"build", a.cfg.EnableBuild,
		"training", a.cfg.EnableTraining,
		"deployment", a.cfg.EnableDeployment,
		"storage_upload", a.cfg.EnableStorageUpload,
		"publish", a.cfg.EnablePublish,
	)

	var backoff time.Duration
	for {
		if ctx.Err() != nil {
			a.logger.Info("worker stopping")
			return ctx.Err()
		}

		msg, err := a.deps.Queue.Dequeue(ctx, a.cfg.DequeueWait)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			backoff = nextBackoff(backoff, a.cfg.MaxBackoff)
			a.logger.Error("dequeue failed", "error", err, "retry_in", backoff)
			select {
			case <-ctx.Done():
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0
		if msg == nil {
			continue
		}

		a.Process(context.WithoutCancel(ctx), *msg)
	}
}

// Done returns a channel that is closed when the agent has fully stopped.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

func nextBackoff(cur, max time.Duration) time.Duration {
	if cur <= 0 {
		return time.Second
	}
	cur *= 2
	if cur > max {
		cur = max
	}
	return cur
}

// jobRun is the per-job working state that does not belong on Job.
type jobRun struct {
	job        *Job
	log        *slog.Logger
	profile    analyzer.Profile
	params     generate.Params
	repoDir    string
	stagingDir string
	contextURL string
	stored     bool
}

// Process runs one job to a terminal state and returns it. It never returns an error:
// failures end the job in StateFailed and are reported to the tracking service.
func (a *Agent) Process(ctx context.Context, msg api.JobMessage) *Job {
	job := NewJob(strings.TrimSpace(msg.JobID), strings.TrimSpace(msg.RepoURL))
	ctx = logger.WithJobID(ctx, job.ID)
	run := &jobRun{job: job, log: logger.FromContext(ctx, a.logger)}

	tracer := otel.Tracer("shipyard-worker")
	ctx, span := tracer.Start(ctx, "process_job",
		trace.WithAttributes(
			attribute.String("job.id", job.ID),
			attribute.String("job.repository", job.RepositorySource),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	if err := validateMessage(job); err != nil {
		if job.ID == "" {
			run.log.Warn("dropping job message", "error", err)
			job.State = StateFailed
			job.ErrorMessage = err.Error()
			job.History = append(job.History, StateFailed)
			span.SetStatus(codes.Error, err.Error())
			a.deps.Metrics.JobFinished(ctx, string(job.State))
			return job
		}
		a.fail(ctx, run, stageError("validate", KindAnalysis, err))
		span.SetStatus(codes.Error, err.Error())
		a.deps.Metrics.JobFinished(ctx, string(job.State))
		return job
	}

	run.log.Info("processing job", "repository", job.RepositorySource)
	start := time.Now()

	if err := a.pipeline(ctx, run); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.fail(ctx, run, err)
	}
	a.cleanup(run)

	span.SetAttributes(attribute.String("job.state", string(job.State)))
	a.deps.Metrics.JobFinished(ctx, string(job.State))
	run.log.Info("job finished", "state", job.State, "duration", time.Since(start))
	return job
}

func validateMessage(job *Job) error {
	if job.ID == "" {
		return fmt.Errorf("%w: missing job id", ErrInvalidMessage)
	}
	if job.ID != filepath.Base(job.ID) || job.ID == "." || job.ID == ".." {
		return fmt.Errorf("%w: job id %q is not a plain name", ErrInvalidMessage, job.ID)
	}
	if job.RepositorySource == "" {
		return fmt.Errorf("%w: missing repository", ErrInvalidMessage)
	}
	return nil
}

type step struct {
	name string
	fn   func(context.Context, *jobRun) error
}

// pipeline runs every stage in order. Panics are converted to an internal stage error.
func (a *Agent) pipeline(ctx context.Context, run *jobRun) (err error) {
	current := "pipeline"
	defer func() {
		if r := recover(); r != nil {
			run.log.Error("stage panicked", "stage", current, "panic", r, "stack", string(debug.Stack()))
			err = stageError(current, KindInternal, fmt.Errorf("panic: %v", r))
		}
	}()

	steps := []step{
		{"analyze", a.analyze},
		{"generate", a.generate},
	}
	for _, st := range a.provisionStages() {
		if !st.enabled {
			continue
		}
		steps = append(steps, step{st.name, func(ctx context.Context, run *jobRun) error {
			return a.provision(ctx, run, st)
		}})
	}
	steps = append(steps, step{"sinks", a.sinks})

	for _, step := range steps {
		current = step.name
		if err := a.timed(ctx, run, step.name, step.fn); err != nil {
			return err
		}
	}
	current = "complete"
	return a.transition(ctx, run, StateCompleted)
}

// timed runs fn in a child span and records the stage duration.
func (a *Agent) timed(ctx context.Context, run *jobRun, name string, fn func(context.Context, *jobRun) error) error {
	ctx, span := otel.Tracer("shipyard-worker").Start(ctx, "stage."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx, run)
	a.deps.Metrics.StageDone(ctx, name, time.Since(start), err != nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// transition moves the job to the next state and reports it.
func (a *Agent) transition(ctx context.Context, run *jobRun, to State) error {
	from := run.job.State
	if err := run.job.transition(to); err != nil {
		return stageError("transition", KindInternal, err)
	}
	run.log.Info("job state changed", "from", from, "to", to)
	a.report(ctx, run)
	return nil
}

// fail ends the job with err's message. Reporting is best effort.
func (a *Agent) fail(ctx context.Context, run *jobRun, err error) {
	job := run.job
	if job.State.Terminal() {
		run.log.Error("error after terminal state", "state", job.State, "error", err)
		return
	}
	job.ErrorMessage = truncate(err.Error(), MaxErrorMessage)
	_ = job.transition(StateFailed)

	attrs := []any{"error", err}
	var se *StageError
	if errors.As(err, &se) {
		attrs = append(attrs, "stage", se.Stage, "kind", se.Kind)
	}
	run.log.Error("job failed", attrs...)
	a.report(ctx, run)
}

func (a *Agent) report(ctx context.Context, run *jobRun) {
	if a.deps.Reporter == nil {
		return
	}
	if err := a.deps.Reporter.Report(ctx, run.job.ID, run.job.StatusUpdate()); err != nil {
		a.deps.Metrics.ReportFailed(ctx)
		run.log.Warn("status report failed", "state", run.job.State, "error", err)
	}
}

func (a *Agent) analyze(ctx context.Context, run *jobRun) error {
	if err := a.transition(ctx, run, StateAnalyzing); err != nil {
		return err
	}

	run.repoDir = filepath.Join(a.cfg.WorkDir, "repos", run.job.ID)
	root, err := a.deps.Fetcher.Fetch(ctx, run.job.RepositorySource, run.repoDir)
	if err != nil {
		return stageError("fetch", KindAnalysis, err)
	}
	if root != run.repoDir {
		// Local sources are analyzed in place and must not be removed.
		run.repoDir = ""
	}

	profile, err := a.deps.Analyzer.Analyze(root)
	if err != nil {
		return stageError("analyze", KindAnalysis, err)
	}
	run.profile = profile

	md := &run.job.Metadata
	md.Profiled = true
	md.SourceFiles = len(profile.SourceFiles)
	md.Notebooks = len(profile.NotebookFiles)
	md.Frameworks = append([]string(nil), profile.Frameworks...)

	run.log.Info("repository analyzed",
		"source_files", md.SourceFiles,
		"notebooks", md.Notebooks,
		"frameworks", md.Frameworks,
		"entry_points", profile.EntryPoints,
	)
	return nil
}

func (a *Agent) generate(ctx context.Context, run *jobRun) error {
	if err := a.transition(ctx, run, StateGenerating); err != nil {
		return err
	}

	params := a.cfg.Generation
	if params.ProjectName == "" {
		params.ProjectName = analyzer.ProjectName(run.job.RepositorySource)
	}
	run.params = params.Resolve(run.profile)

	for _, art := range a.deps.Generator.GenerateAll(ctx, run.profile, run.params) {
		run.job.Artifacts.Put(art)
	}

	run.stagingDir = filepath.Join(a.cfg.WorkDir, "output", run.job.ID)
	if err := run.job.Artifacts.WriteDir(run.stagingDir); err != nil {
		return stageError("stage artifacts", KindInternal, err)
	}
	run.log.Info("artifacts staged", "count", run.job.Artifacts.Len(), "dir", run.stagingDir)
	return nil
}

// provisionStage gates one provisioner behind one flag.
type provisionStage struct {
	name        string
	state       State
	enabled     bool
	provisioner provision.Provisioner
	timeout     time.Duration
}

func (a *Agent) provisionStages() []provisionStage {
	return []provisionStage{
		{"build", StateBuilding, a.cfg.EnableBuild, a.deps.Builder, a.cfg.BuildTimeout},
		{"train", StateTraining, a.cfg.EnableTraining, a.deps.Trainer, a.cfg.TrainTimeout},
		{"deploy", StateDeploying, a.cfg.EnableDeployment, a.deps.Server, a.cfg.DeployTimeout},
	}
}

func (a *Agent) provision(ctx context.Context, run *jobRun, st provisionStage) error {
	if err := a.transition(ctx, run, st.state); err != nil {
		return err
	}
	if st.state == StateBuilding {
		if err := a.beforeBuild(ctx, run); err != nil {
			return err
		}
	}

	h, err := st.provisioner.Submit(ctx, run.job.ID, a.provisionParams(run))
	if err != nil {
		return stageError(st.name, KindProvisioning, fmt.Errorf("submit: %w", err))
	}
	if h == nil {
		run.log.Info("provisioner not configured, stage skipped", "stage", st.name)
		return nil
	}
	run.log.Info("workload submitted", "stage", st.name, "workload", h.Name, "namespace", h.Namespace)
	if st.state == StateBuilding {
		run.job.Metadata.Image = run.params.Image()
	}

	status, err := provision.Await(ctx, st.provisioner, h, a.cfg.PollInterval, st.timeout)
	switch {
	case errors.Is(err, provision.ErrNotReady):
		run.log.Warn("workload still pending, continuing", "stage", st.name, "workload", h.Name, "timeout", st.timeout)
	case err != nil:
		return stageError(st.name, KindProvisioning, fmt.Errorf("poll %s: %w", h.Name, err))
	case status == provision.StatusFailed:
		logs, logErr := st.provisioner.Logs(ctx, h)
		if logErr != nil {
			run.log.Warn("workload logs unavailable", "workload", h.Name, "error", logErr)
		}
		return stageError(st.name, KindProvisioning, fmt.Errorf("%w: %s%s", ErrWorkloadFailed, h.Name, logTail(logs, 256)))
	default:
		run.log.Info("workload finished", "stage", st.name, "workload", h.Name, "status", status)
	}

	if st.state == StateDeploying {
		return a.resolveEndpoint(ctx, run, st, h)
	}
	return nil
}

func (a *Agent) resolveEndpoint(ctx context.Context, run *jobRun, st provisionStage, h *provision.Handle) error {
	resolver, ok := st.provisioner.(provision.EndpointResolver)
	if !ok {
		return nil
	}
	ep, err := provision.AwaitEndpoint(ctx, resolver, h, a.cfg.PollInterval, st.timeout)
	switch {
	case errors.Is(err, provision.ErrNotReady):
		run.log.Warn("endpoint not assigned yet", "workload", h.Name)
		return nil
	case err != nil:
		return stageError(st.name, KindProvisioning, fmt.Errorf("resolve endpoint: %w", err))
	}
	run.job.Metadata.Endpoint = ep
	run.log.Info("service deployed", "endpoint", ep)
	return nil
}

func (a *Agent) provisionParams(run *jobRun) provision.Params {
	return provision.Params{
		ProjectName: run.params.ProjectName,
		Image:       run.params.Image(),
		ContextDir:  run.stagingDir,
		ContextURL:  run.contextURL,
		Env:         a.cfg.Env,
		GPU:         run.profile.NeedsGPU(),
	}
}

// beforeBuild uploads the build context, and the artifact set when storage upload is on,
// so the build can pull them from the object store.
func (a *Agent) beforeBuild(ctx context.Context, run *jobRun) error {
	if a.deps.Context != nil {
		url, err := a.deps.Context.StoreContext(ctx, run.stagingDir, run.job.ID)
		if err != nil {
			return stageError("upload build context", KindSink, err)
		}
		run.contextURL = url
		run.log.Info("build context uploaded", "url", url)
	}
	if a.cfg.EnableStorageUpload {
		return a.store(ctx, run)
	}
	return nil
}

func (a *Agent) sinks(ctx context.Context, run *jobRun) error {
	if a.cfg.EnableStorageUpload && !run.stored {
		if err := a.store(ctx, run); err != nil {
			return err
		}
	}
	if a.cfg.EnablePublish {
		return a.publish(ctx, run)
	}
	return nil
}

// ciLocators maps artifact kinds to the metadata field carrying their stored URL.
var ciLocators = map[generate.Kind]func(*Metadata, string){
	generate.KindGitHubActions: func(m *Metadata, url string) { m.GitHubActionsURL = url },
	generate.KindGitLabCI:      func(m *Metadata, url string) { m.GitLabCIURL = url },
	generate.KindJenkins:       func(m *Metadata, url string) { m.JenkinsfileURL = url },
}

func (a *Agent) store(ctx context.Context, run *jobRun) error {
	run.stored = true
	if a.deps.Objects == nil {
		run.log.Info("object store not configured, upload skipped")
		return nil
	}
	res, err := a.deps.Objects.Store(ctx, run.stagingDir, run.job.ID)
	if err != nil {
		return stageError("store artifacts", KindSink, err)
	}
	if res == nil {
		run.log.Info("object store skipped upload")
		return nil
	}

	md := &run.job.Metadata
	md.StorageLocator = res.Locator
	for kind, set := range ciLocators {
		art, ok := run.job.Artifacts.Get(kind)
		if !ok {
			continue
		}
		if url, ok := res.URLs[art.Path]; ok {
			set(md, url)
		}
	}
	run.log.Info("artifacts stored", "locator", res.Locator, "objects", len(res.URLs))
	return nil
}

func (a *Agent) publish(ctx context.Context, run *jobRun) error {
	if a.deps.Publisher == nil {
		run.log.Info("publisher not configured, publish skipped")
		return nil
	}
	meta := sink.PublishMetadata{
		ProjectName: run.params.ProjectName,
		Description: "Deployment artifacts for " + run.job.RepositorySource,
		SourceURL:   run.job.RepositorySource,
	}
	url, err := a.deps.Publisher.Publish(ctx, run.stagingDir, run.job.ID, meta)
	if err != nil {
		return stageError("publish artifacts", KindSink, err)
	}
	if url == "" {
		run.log.Info("publisher skipped")
		return nil
	}
	run.job.Metadata.RepositoryURL = url
	run.log.Info("artifacts published", "repository", url)
	return nil
}

// cleanup removes the clone. The staging directory is kept for inspection until the next
// run of the same job replaces it.
func (a *Agent) cleanup(run *jobRun) {
	if run.repoDir == "" {
		return
	}
	if err := os.RemoveAll(run.repoDir); err != nil {
		run.log.Warn("failed to remove clone", "dir", run.repoDir, "error", err)
	}
}

// logTail returns the last n bytes of logs, prefixed for appending to an error message.
func logTail(logs string, n int) string {
	logs = strings.TrimSpace(logs)
	if logs == "" {
		return ""
	}
	if len(logs) > n {
		i := len(logs) - n
		for i < len(logs) && !utf8.RuneStart(logs[i]) {
			i++
		}
		logs = "..." + logs[i:]
	}
	return ": " + logs
}

// Package main is the entry point for the shipyard worker.
// The worker consumes queued jobs and drives each through analysis, generation,
// the enabled provisioning stages and the artifact sinks.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"shipyard/internal/analyzer"
	"shipyard/internal/config"
	"shipyard/internal/generate"
	"shipyard/internal/llm"
	"shipyard/internal/logger"
	"shipyard/internal/observability"
	"shipyard/internal/sink"
	"shipyard/internal/store/redis"
	"shipyard/internal/tracking"
	"shipyard/internal/worker"
	"shipyard/internal/worker/provision"

	"go.opentelemetry.io/otel"
)

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file (default: shipyard.yaml in current directory)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(slog.Default(), "failed to load config", err)
	}
	log := logger.New(cfg.LogLevel).With("service", "shipyard-worker")
	slog.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "shipyard-worker", cfg.OTELEndpoint)
	if err != nil {
		fatal(log, "failed to init tracing", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Warn("failed to shutdown tracer", "error", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics("shipyard-worker")
	if err != nil {
		fatal(log, "failed to init metrics", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Warn("failed to shutdown metrics", "error", err)
		}
	}()
	metrics, err := observability.NewPipelineMetrics(otel.Meter("shipyard-worker"))
	if err != nil {
		fatal(log, "failed to register pipeline metrics", err)
	}

	queue, err := redis.New(ctx, redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Key:      cfg.QueueKey,
	}, log)
	if err != nil {
		fatal(log, "failed to connect to queue", err)
	}
	defer queue.Close()

	backend, err := llm.New(cfg.LLM)
	if err != nil {
		fatal(log, "failed to configure text generation", err)
	}
	if cfg.LLM.Provider == config.ProviderNone {
		log.Info("text generation disabled, every artifact uses its template")
	}

	deps := worker.Deps{
		Queue:     queue,
		Fetcher:   &analyzer.Fetcher{Token: cfg.GitHubToken},
		Analyzer:  analyzer.New(analyzer.Options{FrameworkScanLimit: cfg.Analyzer.FrameworkScanLimit, TreeDepth: cfg.Analyzer.TreeDepth}),
		Generator: generate.NewGenerator(generate.DefaultSpecs(backend), metrics, log),
		Reporter:  tracking.NewReporter(cfg.TrackerURL, cfg.InternalSecret),
		Metrics:   metrics,
		Logger:    log,
	}

	// Sinks. Interfaces are only assigned concrete values so nil checks in the agent hold.
	var objects *sink.ObjectStore
	if cfg.S3Bucket != "" {
		objects, err = sink.NewObjectStore(sink.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Prefix:    cfg.S3Prefix,
		})
		if err != nil {
			fatal(log, "failed to configure object store", err)
		}
		deps.Objects = objects
	}
	if cfg.EnablePublish {
		deps.Publisher = sink.NewPublisher(sink.GitHubConfig{
			Token:   cfg.GitHubToken,
			APIURL:  cfg.GitHubAPIURL,
			Private: cfg.GitHubPrivate,
		})
	}

	if err := selectProvisioners(ctx, cfg, log, objects, &deps); err != nil {
		fatal(log, "failed to configure provisioning", err)
	}

	agent := worker.New(worker.Config{
		WorkDir:             cfg.WorkDir,
		DequeueWait:         cfg.DequeueTimeout,
		MaxBackoff:          cfg.WorkerMaxBackoff,
		EnableBuild:         cfg.EnableBuild,
		EnableTraining:      cfg.EnableTraining,
		EnableDeployment:    cfg.EnableDeployment,
		EnableStorageUpload: cfg.EnableStorageUpload,
		EnablePublish:       cfg.EnablePublish,
		PollInterval:        cfg.ProvisionPollInterval,
		BuildTimeout:        cfg.BuildTimeout,
		TrainTimeout:        cfg.TrainTimeout,
		DeployTimeout:       cfg.DeployTimeout,
		Generation: generate.Params{
			RegistryURL: cfg.RegistryURL,
			Namespace:   cfg.KubernetesNamespace,
			ImageTag:    cfg.ImageTag,
		},
	}, deps)

	go func() {
		if err := agent.Run(ctx); err != nil {
			log.Error("worker loop stopped", "error", err)
		}
	}()

	// Start a dedicated metrics server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		addr := fmt.Sprintf(":%d", cfg.MetricsPort)
		log.Info("worker metrics listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error("metrics server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker, waiting for the current job")
	cancel()

	<-agent.Done()
}

// selectProvisioners wires the build, train and serve backends named by the config.
func selectProvisioners(ctx context.Context, cfg *config.Config, log *slog.Logger, objects *sink.ObjectStore, deps *worker.Deps) error {
	if !cfg.EnableBuild && !cfg.EnableTraining && !cfg.EnableDeployment {
		return nil
	}

	switch cfg.ProvisionerBackend {
	case config.BackendKubernetes:
		clientset, err := provision.NewClientset(log)
		if err != nil {
			return err
		}
		if err := provision.EnsureNamespace(ctx, clientset, cfg.KubernetesNamespace); err != nil {
			return err
		}
		kcfg := provision.KubernetesConfig{
			Namespace:       cfg.KubernetesNamespace,
			ServiceAccount:  cfg.KubernetesServiceAcct,
			CPULimit:        cfg.KubernetesCPULimit,
			MemoryLimit:     cfg.KubernetesMemoryLimit,
			GPULimit:        cfg.KubernetesGPULimit,
			BuilderImage:    cfg.BuilderImage,
			StorageRegion:   cfg.S3Region,
			StorageEndpoint: cfg.S3Endpoint,
		}
		deps.Builder = provision.NewKubernetesBuilder(clientset, kcfg)
		deps.Trainer = provision.NewKubernetesTrainer(clientset, kcfg)
		deps.Server = provision.NewKubernetesServer(clientset, kcfg)
		// Kaniko reads the build context from the object store.
		if objects != nil {
			deps.Context = objects
		}
		log.Info("using kubernetes provisioners", "namespace", cfg.KubernetesNamespace)
	case config.BackendDocker:
		cli, err := provision.NewDockerClient()
		if err != nil {
			return err
		}
		deps.Builder = provision.NewDockerBuilder(cli)
		deps.Trainer = provision.NewDockerTrainer(cli)
		deps.Server = provision.NewDockerServer(cli, "")
		log.Info("using docker provisioners")
	default:
		return fmt.Errorf("unknown provisioner backend %q", cfg.ProvisionerBackend)
	}
	return nil
}

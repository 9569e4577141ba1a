// Package config loads process settings from defaults, an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Provisioner backends.
const (
	BackendKubernetes = "kubernetes"
	BackendDocker     = "docker"
)

// Generation backends.
const (
	ProviderGroq   = "groq"
	ProviderGemini = "gemini"
	ProviderNone   = "none"
)

// Config holds all configuration values for the application.
type Config struct {
	// Queue
	RedisHost      string
	RedisPort      int
	RedisPassword  string
	RedisDB        int
	QueueKey       string
	DequeueTimeout time.Duration

	// Worker loop
	WorkerMaxBackoff time.Duration
	WorkDir          string

	// URL of the tracking service (e.g., "http://localhost:8080")
	TrackerURL     string
	InternalSecret string

	// Stage flags
	EnableBuild         bool
	EnableTraining      bool
	EnableDeployment    bool
	EnableStorageUpload bool
	EnablePublish       bool

	LLM      LLMConfig
	Analyzer AnalyzerConfig

	// Provisioning
	ProvisionerBackend    string
	KubernetesNamespace   string
	KubernetesServiceAcct string
	KubernetesCPULimit    string
	KubernetesMemoryLimit string
	KubernetesGPULimit    string
	RegistryURL           string
	BuilderImage          string
	ImageTag              string
	ProvisionPollInterval time.Duration
	BuildTimeout          time.Duration
	TrainTimeout          time.Duration
	DeployTimeout         time.Duration

	// Object store
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Prefix    string

	// Version-control hosting
	GitHubToken   string
	GitHubAPIURL  string
	GitHubPrivate bool

	// Tracking service
	DatabaseURL  string
	HTTPPort     int
	APIKeys      []string
	APIRateLimit float64
	APIRateBurst int

	// Observability
	OTELEndpoint string
	MetricsPort  int
	LogLevel     string
}

// LLMConfig selects and configures the text-generation backend.
type LLMConfig struct {
	Provider      string
	GroqAPIKey    string
	GroqModel     string
	GroqBaseURL   string
	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string
	Timeout       time.Duration
	// Requests per second allowed against the provider.
	RateLimit float64
}

// AnalyzerConfig bounds the repository scan.
type AnalyzerConfig struct {
	FrameworkScanLimit int
	TreeDepth          int
}

// RedisAddr returns host:port for the queue connection.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// RequireDatabase reports an error when the tracking database is not configured.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return errors.New("database_url is required (env: DATABASE_URL)")
	}
	return nil
}

// keys maps viper keys to their environment variables.
var keys = map[string]string{
	"redis_host":                 "REDIS_HOST",
	"redis_port":                 "REDIS_PORT",
	"redis_password":             "REDIS_PASSWORD",
	"redis_db":                   "REDIS_DB",
	"queue_key":                  "QUEUE_KEY",
	"dequeue_timeout":            "DEQUEUE_TIMEOUT",
	"worker_max_backoff":         "WORKER_MAX_BACKOFF",
	"work_dir":                   "WORK_DIR",
	"tracker_url":                "TRACKER_URL",
	"internal_secret":            "INTERNAL_SECRET",
	"enable_build":               "ENABLE_BUILD",
	"enable_training":            "ENABLE_TRAINING",
	"enable_deployment":          "ENABLE_DEPLOYMENT",
	"enable_storage_upload":      "ENABLE_STORAGE_UPLOAD",
	"enable_publish":             "ENABLE_PUBLISH",
	"llm_provider":               "LLM_PROVIDER",
	"groq_api_key":               "GROQ_API_KEY",
	"groq_model":                 "GROQ_MODEL",
	"groq_base_url":              "GROQ_BASE_URL",
	"gemini_api_key":             "GEMINI_API_KEY",
	"gemini_model":               "GEMINI_MODEL",
	"gemini_base_url":            "GEMINI_BASE_URL",
	"llm_timeout":                "LLM_TIMEOUT",
	"llm_rate_limit":             "LLM_RATE_LIMIT",
	"framework_scan_limit":       "FRAMEWORK_SCAN_LIMIT",
	"tree_depth":                 "TREE_DEPTH",
	"provisioner_backend":        "PROVISIONER_BACKEND",
	"kubernetes_namespace":       "KUBERNETES_NAMESPACE",
	"kubernetes_service_account": "KUBERNETES_SERVICE_ACCOUNT",
	"kubernetes_cpu_limit":       "KUBERNETES_CPU_LIMIT",
	"kubernetes_memory_limit":    "KUBERNETES_MEMORY_LIMIT",
	"kubernetes_gpu_limit":       "KUBERNETES_GPU_LIMIT",
	"registry_url":               "REGISTRY_URL",
	"builder_image":              "BUILDER_IMAGE",
	"image_tag":                  "IMAGE_TAG",
	"provision_poll_interval":    "PROVISION_POLL_INTERVAL",
	"build_timeout":              "BUILD_TIMEOUT",
	"train_timeout":              "TRAIN_TIMEOUT",
	"deploy_timeout":             "DEPLOY_TIMEOUT",
	"s3_bucket":                  "S3_BUCKET",
	"s3_region":                  "S3_REGION",
	"s3_endpoint":                "S3_ENDPOINT",
	"s3_access_key":              "S3_ACCESS_KEY",
	"s3_secret_key":              "S3_SECRET_KEY",
	"s3_prefix":                  "S3_PREFIX",
	"github_token":               "GITHUB_TOKEN",
	"github_api_url":             "GITHUB_API_URL",
	"github_private":             "GITHUB_PRIVATE",
	"database_url":               "DATABASE_URL",
	"http_port":                  "PORT",
	"api_keys":                   "API_KEYS",
	"api_rate_limit":             "API_RATE_LIMIT",
	"api_rate_burst":             "API_RATE_BURST",
	"otel_endpoint":              "OTEL_EXPORTER_OTLP_ENDPOINT",
	"metrics_port":               "METRICS_PORT",
	"log_level":                  "LOG_LEVEL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("redis_host", "localhost")
	v.SetDefault("redis_port", 6379)
	v.SetDefault("redis_db", 0)
	v.SetDefault("queue_key", "shipyard:jobs")
	v.SetDefault("dequeue_timeout", 5*time.Second)
	v.SetDefault("worker_max_backoff", 30*time.Second)
	v.SetDefault("work_dir", "/tmp/shipyard")
	v.SetDefault("tracker_url", "http://localhost:8080")

	v.SetDefault("enable_build", false)
	v.SetDefault("enable_training", false)
	v.SetDefault("enable_deployment", false)
	v.SetDefault("enable_storage_upload", false)
	v.SetDefault("enable_publish", false)

	v.SetDefault("llm_provider", ProviderGroq)
	v.SetDefault("groq_model", "llama-3.3-70b-versatile")
	v.SetDefault("groq_base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("gemini_model", "gemini-1.5-flash")
	v.SetDefault("gemini_base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("llm_timeout", 60*time.Second)
	v.SetDefault("llm_rate_limit", 1.0)

	v.SetDefault("framework_scan_limit", 20)
	v.SetDefault("tree_depth", 3)

	v.SetDefault("provisioner_backend", BackendKubernetes)
	v.SetDefault("kubernetes_namespace", "shipyard")
	v.SetDefault("kubernetes_service_account", "default")
	v.SetDefault("kubernetes_cpu_limit", "2")
	v.SetDefault("kubernetes_memory_limit", "4Gi")
	v.SetDefault("builder_image", "gcr.io/kaniko-project/executor:latest")
	v.SetDefault("image_tag", "latest")
	v.SetDefault("provision_poll_interval", 30*time.Second)
	v.SetDefault("build_timeout", 30*time.Minute)
	v.SetDefault("train_timeout", time.Hour)
	v.SetDefault("deploy_timeout", 5*time.Minute)

	v.SetDefault("s3_region", "us-east-1")
	v.SetDefault("s3_prefix", "jobs")

	v.SetDefault("github_api_url", "https://api.github.com")
	v.SetDefault("github_private", true)

	v.SetDefault("http_port", 8080)
	v.SetDefault("api_rate_limit", 10.0)
	v.SetDefault("api_rate_burst", 20)

	v.SetDefault("otel_endpoint", "localhost:4317")
	v.SetDefault("metrics_port", 9090)
	v.SetDefault("log_level", "info")
}

// Load reads configuration. Values come from defaults, then the YAML file at path
// (or ./shipyard.yaml when path is empty and the file exists), then environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range keys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("shipyard")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := &Config{
		RedisHost:        v.GetString("redis_host"),
		RedisPort:        v.GetInt("redis_port"),
		RedisPassword:    v.GetString("redis_password"),
		RedisDB:          v.GetInt("redis_db"),
		QueueKey:         v.GetString("queue_key"),
		DequeueTimeout:   v.GetDuration("dequeue_timeout"),
		WorkerMaxBackoff: v.GetDuration("worker_max_backoff"),
		WorkDir:          v.GetString("work_dir"),
		TrackerURL:       strings.TrimRight(v.GetString("tracker_url"), "/"),
		InternalSecret:   v.GetString("internal_secret"),

		EnableBuild:         v.GetBool("enable_build"),
		EnableTraining:      v.GetBool("enable_training"),
		EnableDeployment:    v.GetBool("enable_deployment"),
		EnableStorageUpload: v.GetBool("enable_storage_upload"),
		EnablePublish:       v.GetBool("enable_publish"),

		LLM: LLMConfig{
			Provider:      strings.ToLower(v.GetString("llm_provider")),
			GroqAPIKey:    v.GetString("groq_api_key"),
			GroqModel:     v.GetString("groq_model"),
			GroqBaseURL:   v.GetString("groq_base_url"),
			GeminiAPIKey:  v.GetString("gemini_api_key"),
			GeminiModel:   v.GetString("gemini_model"),
			GeminiBaseURL: v.GetString("gemini_base_url"),
			Timeout:       v.GetDuration("llm_timeout"),
			RateLimit:     v.GetFloat64("llm_rate_limit"),
		},
		Analyzer: AnalyzerConfig{
			FrameworkScanLimit: v.GetInt("framework_scan_limit"),
			TreeDepth:          v.GetInt("tree_depth"),
		},

		ProvisionerBackend:    strings.ToLower(v.GetString("provisioner_backend")),
		KubernetesNamespace:   v.GetString("kubernetes_namespace"),
		KubernetesServiceAcct: v.GetString("kubernetes_service_account"),
		KubernetesCPULimit:    v.GetString("kubernetes_cpu_limit"),
		KubernetesMemoryLimit: v.GetString("kubernetes_memory_limit"),
		KubernetesGPULimit:    v.GetString("kubernetes_gpu_limit"),
		RegistryURL:           v.GetString("registry_url"),
		BuilderImage:          v.GetString("builder_image"),
		ImageTag:              v.GetString("image_tag"),
		ProvisionPollInterval: v.GetDuration("provision_poll_interval"),
		BuildTimeout:          v.GetDuration("build_timeout"),
		TrainTimeout:          v.GetDuration("train_timeout"),
		DeployTimeout:         v.GetDuration("deploy_timeout"),

		S3Bucket:    v.GetString("s3_bucket"),
		S3Region:    v.GetString("s3_region"),
		S3Endpoint:  v.GetString("s3_endpoint"),
		S3AccessKey: v.GetString("s3_access_key"),
		S3SecretKey: v.GetString("s3_secret_key"),
		S3Prefix:    strings.Trim(v.GetString("s3_prefix"), "/"),

		GitHubToken:   v.GetString("github_token"),
		GitHubAPIURL:  strings.TrimRight(v.GetString("github_api_url"), "/"),
		GitHubPrivate: v.GetBool("github_private"),

		DatabaseURL:  v.GetString("database_url"),
		HTTPPort:     v.GetInt("http_port"),
		APIKeys:      splitList(v.GetString("api_keys")),
		APIRateLimit: v.GetFloat64("api_rate_limit"),
		APIRateBurst: v.GetInt("api_rate_burst"),

		OTELEndpoint: v.GetString("otel_endpoint"),
		MetricsPort:  v.GetInt("metrics_port"),
		LogLevel:     v.GetString("log_level"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.ProvisionerBackend {
	case BackendKubernetes, BackendDocker:
	default:
		return fmt.Errorf("invalid provisioner_backend %q: must be %q or %q", c.ProvisionerBackend, BackendKubernetes, BackendDocker)
	}

	switch c.LLM.Provider {
	case ProviderGroq, ProviderGemini, ProviderNone:
	default:
		return fmt.Errorf("invalid llm_provider %q", c.LLM.Provider)
	}

	if c.DequeueTimeout <= 0 {
		return errors.New("dequeue_timeout must be positive")
	}
	if c.Analyzer.FrameworkScanLimit < 0 {
		return errors.New("framework_scan_limit must not be negative")
	}
	if c.Analyzer.TreeDepth < 1 {
		return errors.New("tree_depth must be at least 1")
	}

	if c.EnableStorageUpload && (c.S3Bucket == "" || c.S3AccessKey == "" || c.S3SecretKey == "") {
		return errors.New("storage upload enabled: s3_bucket, s3_access_key and s3_secret_key are required")
	}
	if c.EnablePublish && c.GitHubToken == "" {
		return errors.New("publish enabled: github_token is required (env: GITHUB_TOKEN)")
	}
	if c.EnableBuild && c.ProvisionerBackend == BackendKubernetes {
		if c.RegistryURL == "" {
			return errors.New("build enabled: registry_url is required (env: REGISTRY_URL)")
		}
		if c.S3Bucket == "" || c.S3AccessKey == "" || c.S3SecretKey == "" {
			return errors.New("kubernetes build enabled: the build context is read from s3, s3_bucket and credentials are required")
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

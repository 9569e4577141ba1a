package generate

import (
	"context"
	"log/slog"

	"shipyard/internal/analyzer"
	"shipyard/internal/llm"
	"shipyard/internal/observability"
)

// ArtifactSpec binds a kind to its output path and strategy.
type ArtifactSpec struct {
	Kind     Kind
	Path     string
	Strategy *Strategy
}

// Artifact is one generated file.
type Artifact struct {
	Kind    Kind
	Path    string
	Content string
	Source  Source
}

const devopsSystem = "You are an expert DevOps engineer specializing in shipping ML applications to production."

// DefaultSpecs returns the fixed, ordered artifact set, every strategy sharing backend.
func DefaultSpecs(backend llm.Backend) []ArtifactSpec {
	specs := []ArtifactSpec{
		{KindDockerfile, "Dockerfile", &Strategy{
			System: devopsSystem + ` Generate a production-ready Dockerfile that installs dependencies efficiently,
uses an appropriate base image for the detected frameworks, exposes port 8000 and starts the
FastAPI service in app.py with uvicorn.`,
			Instruction: "Generate a Dockerfile for this ML repository:",
			Validate:    DockerfileValidator,
			Template:    "dockerfile.tmpl",
		}},
		{KindRequirements, "requirements.txt", &Strategy{
			System: devopsSystem + ` Generate a pip requirements.txt covering the training code, the detected
ML frameworks and a FastAPI inference service (fastapi, uvicorn, pydantic). One requirement per line.`,
			Instruction: "Generate requirements.txt for this ML repository:",
			Validate:    RequirementsValidator,
			Template:    "requirements.tmpl",
		}},
		{KindService, "app.py", &Strategy{
			System: `You are an expert Python engineer. Generate a FastAPI application (app.py) that loads the
trained model at startup, exposes GET /health and POST /predict, and validates input with pydantic.`,
			Instruction: "Generate the FastAPI inference service for this ML repository:",
			Validate:    All(NonEmpty, Contains("FastAPI")),
			Template:    "service.tmpl",
		}},
		{KindTraining, "training_wrapper.py", &Strategy{
			System: `You are an expert ML engineer. Generate training_wrapper.py: a script with a main() function
that runs the repository's training entry point, records duration and status, and writes
outputs/metrics.json. Exit non-zero on failure.`,
			Instruction: "Generate the training wrapper for this ML repository:",
			Validate:    All(NonEmpty, Contains("def main")),
			Template:    "training.tmpl",
		}},
		{KindGitHubActions, ".github/workflows/train.yml", &Strategy{
			System: devopsSystem + ` Generate a GitHub Actions workflow that sets up Python, installs
requirements.txt, runs training_wrapper.py and uploads outputs/ as an artifact.`,
			Instruction: "Generate a GitHub Actions training workflow for this ML repository:",
			Validate:    YAMLKeys("name", "on", "jobs"),
			Template:    "github_actions.tmpl",
		}},
		{KindDeployWorkflow, ".github/workflows/deploy.yml", &Strategy{
			System: devopsSystem + ` Generate a GitHub Actions workflow that builds and pushes the container
image, then applies the manifests in k8s/ to the cluster with kubectl.`,
			Instruction: "Generate a GitHub Actions deployment workflow for this ML repository:",
			Validate:    YAMLKeys("name", "on", "jobs"),
			Template:    "deploy_workflow.tmpl",
		}},
		{KindGitLabCI, ".gitlab-ci.yml", &Strategy{
			System: devopsSystem + ` Generate a .gitlab-ci.yml with test, train and build stages. The train
stage runs training_wrapper.py and keeps outputs/ as artifacts.`,
			Instruction: "Generate GitLab CI configuration for this ML repository:",
			Validate:    YAMLKeys("stages"),
			Template:    "gitlab_ci.tmpl",
		}},
		{KindJenkins, "Jenkinsfile", &Strategy{
			System: devopsSystem + ` Generate a declarative Jenkinsfile (starting with "pipeline {") with
setup, train and image build stages.`,
			Instruction: "Generate a Jenkinsfile for this ML repository:",
			Validate:    JenkinsfileValidator,
			Template:    "jenkins.tmpl",
		}},
		{KindK8sDeployment, "k8s/deployment.yaml", &Strategy{
			System: `You are an expert Kubernetes engineer. Generate a single apps/v1 Deployment manifest with
resource requests and limits, liveness and readiness probes on GET /health port 8000, and
app labels matching the project name.`,
			Instruction: "Generate the Kubernetes Deployment for this ML API:",
			Validate:    KubernetesKind("Deployment"),
			Template:    "k8s_deployment.tmpl",
		}},
		{KindK8sService, "k8s/service.yaml", &Strategy{
			System: `You are an expert Kubernetes engineer. Generate a single v1 Service manifest of type
LoadBalancer mapping port 80 to container port 8000, selecting pods by the app label.`,
			Instruction: "Generate the Kubernetes Service for this ML API:",
			Validate:    KubernetesKind("Service"),
			Template:    "k8s_service.tmpl",
		}},
	}

	for _, s := range specs {
		s.Strategy.Kind = s.Kind
		s.Strategy.backend = backend
	}
	return specs
}

// Generator runs every spec in order.
type Generator struct {
	specs   []ArtifactSpec
	metrics *observability.PipelineMetrics
	logger  *slog.Logger
}

// NewGenerator creates a Generator. metrics may be nil.
func NewGenerator(specs []ArtifactSpec, metrics *observability.PipelineMetrics, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{specs: specs, metrics: metrics, logger: logger}
}

// Specs returns the configured artifact specs.
func (g *Generator) Specs() []ArtifactSpec {
	return g.specs
}

// GenerateAll produces one artifact per spec, in spec order.
func (g *Generator) GenerateAll(ctx context.Context, profile analyzer.Profile, p Params) []Artifact {
	out := make([]Artifact, 0, len(g.specs))
	for _, spec := range g.specs {
		res := spec.Strategy.Generate(ctx, profile, p)
		if res.Err != nil {
			g.logger.Warn("using fallback template", "kind", spec.Kind, "err", res.Err)
		} else {
			g.logger.Debug("generated artifact", "kind", spec.Kind, "source", res.Source)
		}
		g.metrics.Generated(ctx, string(spec.Kind), string(res.Source))

		out = append(out, Artifact{
			Kind:    spec.Kind,
			Path:    spec.Path,
			Content: res.Content,
			Source:  res.Source,
		})
	}
	return out
}

// Package generate turns a repository profile into deployment artifacts.
//
// Every artifact kind goes through the same chain: ask the backend, extract the
// artifact from the reply, validate it, and fall back to a template rendered from the
// profile when any step fails. The chain never returns an error to its caller.
package generate

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"shipyard/internal/analyzer"
	"shipyard/internal/llm"
)

// Kind identifies an artifact.
type Kind string

const (
	KindDockerfile     Kind = "dockerfile"
	KindRequirements   Kind = "requirements"
	KindService        Kind = "service"
	KindTraining       Kind = "training"
	KindGitHubActions  Kind = "github-actions"
	KindDeployWorkflow Kind = "deploy-workflow"
	KindGitLabCI       Kind = "gitlab-ci"
	KindJenkins        Kind = "jenkins"
	KindK8sDeployment  Kind = "k8s-deployment"
	KindK8sService     Kind = "k8s-service"
)

// Source records whether content came from the backend or from the fallback template.
type Source string

const (
	Primary  Source = "primary"
	Fallback Source = "fallback"
)

var (
	// ErrBackend marks a failed backend call.
	ErrBackend = errors.New("generation backend failed")
	// ErrValidation marks backend output that did not pass the kind's validator.
	ErrValidation = errors.New("generated content invalid")
)

// Result is the outcome of one generation. Content is never empty.
type Result struct {
	Content string
	Source  Source
	// Err is the failure absorbed by the fallback, kept for logging.
	Err error
}

// Params are the deployment settings substituted into prompts and templates.
type Params struct {
	ProjectName   string
	RegistryURL   string
	Namespace     string
	ImageTag      string
	PythonVersion string
	Temperature   float64
	MaxTokens     int
}

// Resolve fills unset fields from profile and the built-in defaults.
func (p Params) Resolve(profile analyzer.Profile) Params {
	if p.ProjectName == "" {
		p.ProjectName = analyzer.ProjectName(profile.Name)
	}
	if p.Namespace == "" {
		p.Namespace = "shipyard"
	}
	if p.ImageTag == "" {
		p.ImageTag = "latest"
	}
	if p.PythonVersion == "" {
		p.PythonVersion = "3.10"
	}
	if p.Temperature == 0 {
		p.Temperature = 0.1
	}
	if p.MaxTokens == 0 {
		p.MaxTokens = 2048
	}
	return p
}

// Image returns the image reference the pipeline builds and deploys.
func (p Params) Image() string {
	name := p.ProjectName + ":" + p.ImageTag
	if p.RegistryURL == "" {
		return name
	}
	return strings.TrimRight(p.RegistryURL, "/") + "/" + name
}

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(
	template.New("").Delims("[[", "]]").ParseFS(templateFS, "templates/*.tmpl"),
)

// Strategy produces one artifact kind.
type Strategy struct {
	Kind        Kind
	System      string
	Instruction string
	Validate    Validator
	Template    string

	backend llm.Backend
}

// Generate runs the backend → extract → validate chain and falls back to the
// kind's template on any failure, including a panicking backend.
func (s *Strategy) Generate(ctx context.Context, profile analyzer.Profile, p Params) (res Result) {
	p = p.Resolve(profile)

	defer func() {
		if r := recover(); r != nil {
			res = s.fallback(profile, p, fmt.Errorf("%w: panic: %v", ErrBackend, r))
		}
	}()

	if s.backend == nil {
		return s.fallback(profile, p, fmt.Errorf("%w: no backend", ErrBackend))
	}

	reply, err := s.backend.Complete(ctx, s.System, s.Prompt(profile, p), llm.Params{
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	})
	if err != nil {
		return s.fallback(profile, p, fmt.Errorf("%w: %w", ErrBackend, err))
	}

	content := Extract(reply)
	validate := s.Validate
	if validate == nil {
		validate = NonEmpty
	}
	if err := validate(content); err != nil {
		return s.fallback(profile, p, fmt.Errorf("%w: %w", ErrValidation, err))
	}
	return Result{Content: content, Source: Primary}
}

// Fallback renders the kind's template without calling the backend.
func (s *Strategy) Fallback(profile analyzer.Profile, p Params) string {
	return s.fallback(profile, p.Resolve(profile), nil).Content
}

func (s *Strategy) fallback(profile analyzer.Profile, p Params, cause error) Result {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, s.Template, newTemplateData(profile, p)); err != nil || buf.Len() == 0 {
		// Templates are static; reaching this means a broken template.
		buf.Reset()
		fmt.Fprintf(&buf, "# %s for %s could not be generated\n", s.Kind, p.ProjectName)
	}
	return Result{Content: buf.String(), Source: Fallback, Err: cause}
}

// Prompt renders the user prompt for profile.
func (s *Strategy) Prompt(profile analyzer.Profile, p Params) string {
	var b strings.Builder
	b.WriteString(s.Instruction)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "**Project Name**: %s\n", p.ProjectName)
	fmt.Fprintf(&b, "**ML Frameworks**: %s\n", listOr(profile.Frameworks, "None detected"))
	fmt.Fprintf(&b, "**Python Version**: %s\n", p.PythonVersion)
	fmt.Fprintf(&b, "**Entry Points**: %s\n", listOr(profile.EntryPoints, "train.py (assumed)"))
	fmt.Fprintf(&b, "**Dependency Files**: %s\n", listOr(profile.DependencyFiles, "requirements.txt (assumed)"))
	fmt.Fprintf(&b, "**Model Files**: %s\n", listOr(profile.ModelFiles, "none"))
	fmt.Fprintf(&b, "**GPU Required**: %t\n", profile.NeedsGPU())
	fmt.Fprintf(&b, "**Container Image**: %s\n", p.Image())
	fmt.Fprintf(&b, "**Namespace**: %s\n", p.Namespace)
	b.WriteString("\n**File Structure**:\n")
	b.WriteString(truncate(profile.Tree, 1000))
	b.WriteString("\n\nOutput ONLY the file content in a single fenced code block, no explanations.")
	return b.String()
}

func listOr(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	return strings.Join(items, ", ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// templateData is what fallback templates see.
type templateData struct {
	ProjectName    string
	Namespace      string
	PythonVersion  string
	Image          string
	RegistryHost   string
	BaseImage      string
	EntryPoint     string
	ModelPath      string
	GPU            bool
	Packages       []string
	FrameworksJSON string
	frameworks     []string
}

func (d templateData) HasFramework(name string) bool {
	for _, f := range d.frameworks {
		if f == name {
			return true
		}
	}
	return false
}

var frameworkPackages = map[string]string{
	"pytorch":      "torch",
	"tensorflow":   "tensorflow",
	"sklearn":      "scikit-learn",
	"keras":        "keras",
	"xgboost":      "xgboost",
	"lightgbm":     "lightgbm",
	"transformers": "transformers",
	"fastai":       "fastai",
}

func newTemplateData(profile analyzer.Profile, p Params) templateData {
	base := "python:" + p.PythonVersion + "-slim"
	switch {
	case profile.HasFramework("pytorch"):
		base = "pytorch/pytorch:2.1.0-cuda11.8-cudnn8-runtime"
	case profile.HasFramework("tensorflow"):
		base = "tensorflow/tensorflow:2.15.0-gpu"
	}

	var pkgs []string
	for _, fw := range profile.Frameworks {
		if pkg, ok := frameworkPackages[fw]; ok {
			pkgs = append(pkgs, pkg)
		}
	}
	if profile.HasFramework("sklearn") || len(profile.ModelFiles) > 0 {
		pkgs = append(pkgs, "joblib")
	}
	sort.Strings(pkgs)

	var modelPath string
	if len(profile.ModelFiles) > 0 {
		modelPath = profile.ModelFiles[0]
	}

	fws := profile.Frameworks
	if fws == nil {
		fws = []string{}
	}
	fwJSON, _ := json.Marshal(fws)

	registryHost := "docker.io"
	if p.RegistryURL != "" {
		registryHost = strings.SplitN(p.RegistryURL, "/", 2)[0]
	}

	return templateData{
		ProjectName:    p.ProjectName,
		Namespace:      p.Namespace,
		PythonVersion:  p.PythonVersion,
		Image:          p.Image(),
		RegistryHost:   registryHost,
		BaseImage:      base,
		EntryPoint:     profile.PrimaryEntryPoint("train.py"),
		ModelPath:      modelPath,
		GPU:            profile.NeedsGPU(),
		Packages:       pkgs,
		FrameworksJSON: string(fwJSON),
		frameworks:     profile.Frameworks,
	}
}

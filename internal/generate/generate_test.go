package generate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"shipyard/internal/analyzer"
	"shipyard/internal/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockBackend struct {
	CompleteFunc func(ctx context.Context, systemPrompt, userPrompt string, p llm.Params) (string, error)
	Calls        int
}

func (m *MockBackend) Complete(ctx context.Context, systemPrompt, userPrompt string, p llm.Params) (string, error) {
	m.Calls++
	return m.CompleteFunc(ctx, systemPrompt, userPrompt, p)
}

func failing() *MockBackend {
	return &MockBackend{CompleteFunc: func(context.Context, string, string, llm.Params) (string, error) {
		return "", errors.New("connection refused")
	}}
}

func replying(reply string) *MockBackend {
	return &MockBackend{CompleteFunc: func(context.Context, string, string, llm.Params) (string, error) {
		return reply, nil
	}}
}

func pytorchProfile() analyzer.Profile {
	return analyzer.Profile{
		Name:            "image-classifier",
		SourceFiles:     []string{"train.py", "model.py"},
		EntryPoints:     []string{"train.py", "model.py"},
		DependencyFiles: []string{"requirements.txt"},
		ModelFiles:      []string{"weights/best.pt"},
		Frameworks:      []string{"pytorch"},
		Tree:            "image-classifier/\n├── train.py\n└── model.py\n",
	}
}

func specFor(t *testing.T, specs []ArtifactSpec, kind Kind) ArtifactSpec {
	t.Helper()
	for _, s := range specs {
		if s.Kind == kind {
			return s
		}
	}
	t.Fatalf("no spec for %s", kind)
	return ArtifactSpec{}
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{"no fence", "  FROM python:3.10\nCMD [\"x\"]\n\n", "FROM python:3.10\nCMD [\"x\"]"},
		{"one fence with info string", "Here you go:\n```dockerfile\nFROM python:3.10\n```\nEnjoy", "FROM python:3.10\n"},
		{"one fence without info string", "```\nstages:\n  - build\n```", "stages:\n  - build\n"},
		{"multiple fences uses first", "```yaml\na: 1\n```\ntext\n```yaml\nb: 2\n```", "a: 1\n"},
		{"unterminated fence", "```python\nprint(1)\n", "print(1)\n"},
		{"empty block", "```\n```", ""},
		{"single line block", "```FROM scratch```", "FROM scratch"},
		{"inner indentation kept", "```\n  indented\n\tx\n```", "  indented\n\tx\n"},
		{"closing fence after code on same line", "```dockerfile\nFROM python:3.10\nCMD [\"x\"]```\ntrailing", "FROM python:3.10\nCMD [\"x\"]"},
		{"indented closing fence", "1. Save this:\n   ```sh\n   make train\n   ```\n2. Run it", "   make train\n"},
		{"indented empty block", "```\n  ```\nafter", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract(tt.response))
		})
	}
}

func TestFallbacks_PassTheirValidators(t *testing.T) {
	profiles := map[string]analyzer.Profile{
		"pytorch": pytorchProfile(),
		"empty":   {Name: "bare"},
		"sklearn": {Name: "tabular", Frameworks: []string{"sklearn", "xgboost"}, ModelFiles: []string{"model.pkl"}},
		"keras":   {Name: "vision", Frameworks: []string{"keras", "tensorflow"}},
	}
	params := Params{RegistryURL: "registry.example.com/team", Namespace: "ml"}

	for name, profile := range profiles {
		for _, spec := range DefaultSpecs(failing()) {
			t.Run(name+"/"+string(spec.Kind), func(t *testing.T) {
				res := spec.Strategy.Generate(context.Background(), profile, params)

				assert.Equal(t, Fallback, res.Source)
				assert.True(t, errors.Is(res.Err, ErrBackend))
				require.NotEmpty(t, strings.TrimSpace(res.Content))
				assert.NoError(t, spec.Strategy.Validate(res.Content))
				assert.NotContains(t, res.Content, "could not be generated")
			})
		}
	}
}

func TestGenerate_UsesTrimmedResponseWithoutFence(t *testing.T) {
	spec := specFor(t, DefaultSpecs(replying("\n\nFROM python:3.11-slim\nCOPY . .\n  ")), KindDockerfile)

	res := spec.Strategy.Generate(context.Background(), pytorchProfile(), Params{})

	assert.Equal(t, Primary, res.Source)
	assert.NoError(t, res.Err)
	assert.Equal(t, "FROM python:3.11-slim\nCOPY . .", res.Content)
}

func TestGenerate_DockerfileStopsAtClosingFence(t *testing.T) {
	reply := "```dockerfile\nFROM python:3.10-slim\nCMD [\"python\", \"app.py\"]```\nThis image runs the app."
	spec := specFor(t, DefaultSpecs(replying(reply)), KindDockerfile)

	res := spec.Strategy.Generate(context.Background(), pytorchProfile(), Params{})

	assert.Equal(t, Primary, res.Source)
	assert.Equal(t, "FROM python:3.10-slim\nCMD [\"python\", \"app.py\"]", res.Content)
	assert.NotContains(t, res.Content, fence)
}

func TestGenerate_ValidationFailureFallsBack(t *testing.T) {
	spec := specFor(t, DefaultSpecs(replying("```yaml\nfoo: bar\n```")), KindGitLabCI)

	res := spec.Strategy.Generate(context.Background(), pytorchProfile(), Params{})

	assert.Equal(t, Fallback, res.Source)
	assert.True(t, errors.Is(res.Err, ErrValidation))
	assert.Equal(t, spec.Strategy.Fallback(pytorchProfile(), Params{}), res.Content)
}

func TestGenerate_EmptyFencedBlockFallsBack(t *testing.T) {
	spec := specFor(t, DefaultSpecs(replying("```dockerfile\n```")), KindDockerfile)

	res := spec.Strategy.Generate(context.Background(), analyzer.Profile{Name: "x"}, Params{})

	assert.Equal(t, Fallback, res.Source)
	assert.Contains(t, res.Content, "FROM python:3.10-slim")
}

func TestGenerate_PanickingBackendFallsBack(t *testing.T) {
	backend := &MockBackend{CompleteFunc: func(context.Context, string, string, llm.Params) (string, error) {
		panic("boom")
	}}
	spec := specFor(t, DefaultSpecs(backend), KindK8sService)

	res := spec.Strategy.Generate(context.Background(), pytorchProfile(), Params{})

	assert.Equal(t, Fallback, res.Source)
	assert.True(t, errors.Is(res.Err, ErrBackend))
	assert.Contains(t, res.Content, "kind: Service")
}

func TestGenerate_NilBackendFallsBack(t *testing.T) {
	spec := specFor(t, DefaultSpecs(nil), KindJenkins)

	res := spec.Strategy.Generate(context.Background(), pytorchProfile(), Params{})

	assert.Equal(t, Fallback, res.Source)
	assert.True(t, strings.HasPrefix(res.Content, "pipeline {"))
}

func TestGenerate_FailureIsolatedToOneKind(t *testing.T) {
	ok := replying("```dockerfile\nFROM python:3.10-slim\nCMD [\"python\", \"train.py\"]\n```")
	specs := DefaultSpecs(ok)
	jenkins := specFor(t, specs, KindJenkins)
	jenkins.Strategy.backend = failing()

	profile := pytorchProfile()
	arts := NewGenerator([]ArtifactSpec{specFor(t, specs, KindDockerfile), jenkins}, nil, nil).
		GenerateAll(context.Background(), profile, Params{})

	require.Len(t, arts, 2)
	assert.Equal(t, Primary, arts[0].Source)
	assert.Equal(t, "FROM python:3.10-slim\nCMD [\"python\", \"train.py\"]\n", arts[0].Content)
	assert.Equal(t, Fallback, arts[1].Source)
	assert.Equal(t, jenkins.Strategy.Fallback(profile, Params{}), arts[1].Content)
}

func TestGenerate_Idempotent(t *testing.T) {
	reply := "Sure!\n```yaml\nname: ci\non: push\njobs:\n  a:\n    runs-on: ubuntu-latest\n```"
	profile := pytorchProfile()

	for _, backend := range []llm.Backend{replying(reply), failing()} {
		spec := specFor(t, DefaultSpecs(backend), KindGitHubActions)
		first := spec.Strategy.Generate(context.Background(), profile, Params{})
		second := spec.Strategy.Generate(context.Background(), profile, Params{})
		assert.Equal(t, first.Content, second.Content)
		assert.Equal(t, first.Source, second.Source)
	}
}

func TestGenerate_PromptCarriesProfile(t *testing.T) {
	var gotSystem, gotUser string
	var gotParams llm.Params
	backend := &MockBackend{CompleteFunc: func(_ context.Context, s, u string, p llm.Params) (string, error) {
		gotSystem, gotUser, gotParams = s, u, p
		return "FROM scratch", nil
	}}
	spec := specFor(t, DefaultSpecs(backend), KindDockerfile)

	profile := pytorchProfile()
	profile.Tree = strings.Repeat("x", 5000)
	spec.Strategy.Generate(context.Background(), profile, Params{RegistryURL: "reg.io/acme"})

	assert.Contains(t, gotSystem, "Dockerfile")
	assert.Contains(t, gotUser, "pytorch")
	assert.Contains(t, gotUser, "train.py, model.py")
	assert.Contains(t, gotUser, "reg.io/acme/image-classifier:latest")
	assert.NotContains(t, gotUser, strings.Repeat("x", 1001))
	assert.Equal(t, 0.1, gotParams.Temperature)
	assert.Equal(t, 2048, gotParams.MaxTokens)
}

func TestDefaultSpecs_FixedOrderAndUniqueKinds(t *testing.T) {
	specs := DefaultSpecs(nil)
	want := []Kind{
		KindDockerfile, KindRequirements, KindService, KindTraining, KindGitHubActions,
		KindDeployWorkflow, KindGitLabCI, KindJenkins, KindK8sDeployment, KindK8sService,
	}

	require.Len(t, specs, len(want))
	paths := map[string]bool{}
	for i, s := range specs {
		assert.Equal(t, want[i], s.Kind)
		assert.Equal(t, s.Kind, s.Strategy.Kind)
		assert.False(t, paths[s.Path], "duplicate path %s", s.Path)
		paths[s.Path] = true
	}
}

func TestGenerateAll_BackendAlwaysFails(t *testing.T) {
	backend := failing()
	arts := NewGenerator(DefaultSpecs(backend), nil, nil).GenerateAll(context.Background(), pytorchProfile(), Params{})

	require.Len(t, arts, 10)
	assert.Equal(t, 10, backend.Calls)
	for _, a := range arts {
		assert.Equal(t, Fallback, a.Source, a.Kind)
		assert.NotEmpty(t, strings.TrimSpace(a.Content), a.Kind)
	}
}

func TestParams_Image(t *testing.T) {
	assert.Equal(t, "app:v1", Params{ProjectName: "app", ImageTag: "v1"}.Image())
	assert.Equal(t, "reg.io/app:v1", Params{ProjectName: "app", ImageTag: "v1", RegistryURL: "reg.io/"}.Image())
}

package worker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"shipyard/internal/generate"
	"shipyard/pkg/api"
)

// Job is the worker's view of one pipeline run. Only the agent mutates it.
type Job struct {
	ID               string
	RepositorySource string
	State            State
	// ErrorMessage is set only when State is StateFailed.
	ErrorMessage string
	Artifacts    ArtifactSet
	Metadata     Metadata
	// History lists every state the job entered, starting with StateQueued.
	History []State
}

// NewJob returns a queued job.
func NewJob(id, source string) *Job {
	return &Job{
		ID:               id,
		RepositorySource: source,
		State:            StateQueued,
		History:          []State{StateQueued},
	}
}

func (j *Job) transition(to State) error {
	if !CanTransition(j.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, to)
	}
	j.State = to
	j.History = append(j.History, to)
	return nil
}

// StatusUpdate builds the report for the job's current state.
func (j *Job) StatusUpdate() api.StatusUpdate {
	u := j.Metadata.statusUpdate()
	u.Status = string(j.State)
	if j.State == StateFailed {
		u.ErrorMessage = j.ErrorMessage
	}
	return u
}

// Metadata collects facts about a job as stages discover them.
type Metadata struct {
	// Profiled is set once the analyzer has run; counts are only reported after that.
	Profiled         bool
	SourceFiles      int
	Notebooks        int
	Frameworks       []string
	StorageLocator   string
	RepositoryURL    string
	Endpoint         string
	GitHubActionsURL string
	GitLabCIURL      string
	JenkinsfileURL   string
	Image            string
}

func (m Metadata) statusUpdate() api.StatusUpdate {
	u := api.StatusUpdate{
		APIEndpoint:      m.Endpoint,
		DeploymentURL:    m.Endpoint,
		StorageLocator:   m.StorageLocator,
		Frameworks:       strings.Join(m.Frameworks, ","),
		RepositoryURL:    m.RepositoryURL,
		GitHubActionsURL: m.GitHubActionsURL,
		GitLabCIURL:      m.GitLabCIURL,
		JenkinsfileURL:   m.JenkinsfileURL,
		Image:            m.Image,
	}
	if m.Profiled {
		sources, notebooks := m.SourceFiles, m.Notebooks
		u.SourceFiles = &sources
		u.Notebooks = &notebooks
	}
	return u
}

// ArtifactSet holds generated artifacts in insertion order, one per kind.
type ArtifactSet struct {
	items []generate.Artifact
	index map[generate.Kind]int
}

// Put adds a, replacing any artifact of the same kind in place.
func (s *ArtifactSet) Put(a generate.Artifact) {
	if s.index == nil {
		s.index = make(map[generate.Kind]int)
	}
	if i, ok := s.index[a.Kind]; ok {
		s.items[i] = a
		return
	}
	s.index[a.Kind] = len(s.items)
	s.items = append(s.items, a)
}

// Get returns the artifact of kind.
func (s *ArtifactSet) Get(kind generate.Kind) (generate.Artifact, bool) {
	i, ok := s.index[kind]
	if !ok {
		return generate.Artifact{}, false
	}
	return s.items[i], true
}

func (s *ArtifactSet) Len() int {
	return len(s.items)
}

// All returns a copy of the artifacts in order.
func (s *ArtifactSet) All() []generate.Artifact {
	out := make([]generate.Artifact, len(s.items))
	copy(out, s.items)
	return out
}

// WriteDir replaces dir with one file per artifact at its relative path.
func (s *ArtifactSet) WriteDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clean staging dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	for _, a := range s.items {
		full := filepath.Join(dir, filepath.FromSlash(a.Path))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return fmt.Errorf("create dir for %s: %w", a.Path, err)
		}
		if err := os.WriteFile(full, []byte(a.Content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", a.Path, err)
		}
	}
	return nil
}

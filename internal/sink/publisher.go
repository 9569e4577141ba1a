package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
)

// GitHubConfig configures the repository publisher.
type GitHubConfig struct {
	Token   string
	APIURL  string
	Private bool
	// AuthorName and AuthorEmail sign the published commit.
	AuthorName  string
	AuthorEmail string
	Client      *http.Client
}

// PublishMetadata describes the repository to create.
type PublishMetadata struct {
	ProjectName string
	Description string
	// SourceURL is the analyzed repository, recorded in the commit message.
	SourceURL string
}

// Publisher creates a GitHub repository and pushes the artifact set to it.
type Publisher struct {
	cfg GitHubConfig
}

// NewPublisher creates a publisher.
func NewPublisher(cfg GitHubConfig) *Publisher {
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.github.com"
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if cfg.AuthorName == "" {
		cfg.AuthorName = "shipyard"
	}
	if cfg.AuthorEmail == "" {
		cfg.AuthorEmail = "shipyard@users.noreply.github.com"
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Publisher{cfg: cfg}
}

type repository struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	CloneURL string `json:"clone_url"`
	HTMLURL  string `json:"html_url"`
}

// RepositoryName is the name of the published repository for a project.
func RepositoryName(project string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(project) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	name := strings.Trim(b.String(), "-")
	if name == "" {
		name = "ml-api"
	}
	name += "-shipyard"
	if len(name) > 100 {
		name = name[:100]
	}
	return name
}

// Publish creates (or reuses) the repository and force-pushes the contents of dir
// as a single commit on main. It returns the repository's HTML URL.
func (p *Publisher) Publish(ctx context.Context, dir, jobID string, meta PublishMetadata) (string, error) {
	name := RepositoryName(meta.ProjectName)
	repo, err := p.createRepository(ctx, name, meta.Description)
	if err != nil {
		return "", err
	}

	msg := "Generated deployment artifacts for job " + jobID
	if meta.SourceURL != "" {
		msg += "\n\nSource: " + meta.SourceURL
	}
	if err := p.push(ctx, dir, repo.CloneURL, msg); err != nil {
		return "", err
	}
	return repo.HTMLURL, nil
}

func (p *Publisher) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.cfg.APIURL+path, r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return p.cfg.Client.Do(req)
}

func decodeRepository(resp *http.Response) (*repository, error) {
	var repo repository
	if err := json.NewDecoder(resp.Body).Decode(&repo); err != nil {
		return nil, fmt.Errorf("decode github response: %w", err)
	}
	if repo.CloneURL == "" {
		return nil, errors.New("github response has no clone_url")
	}
	return &repo, nil
}

func apiError(op string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("github %s: status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(b)))
}

func (p *Publisher) createRepository(ctx context.Context, name, description string) (*repository, error) {
	if description == "" {
		description = "Generated ML deployment"
	}
	resp, err := p.do(ctx, http.MethodPost, "/user/repos", map[string]any{
		"name":        name,
		"description": description,
		"private":     p.cfg.Private,
		"auto_init":   false,
		"has_wiki":    false,
	})
	if err != nil {
		return nil, fmt.Errorf("create repository %s: %w", name, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		return decodeRepository(resp)
	case http.StatusUnprocessableEntity:
		return p.existingRepository(ctx, name)
	}
	return nil, apiError("create repository", resp)
}

func (p *Publisher) existingRepository(ctx context.Context, name string) (*repository, error) {
	resp, err := p.do(ctx, http.MethodGet, "/user", nil)
	if err != nil {
		return nil, fmt.Errorf("get authenticated user: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError("get user", resp)
	}
	var user struct {
		Login string `json:"login"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decode github user: %w", err)
	}

	repoResp, err := p.do(ctx, http.MethodGet, "/repos/"+user.Login+"/"+name, nil)
	if err != nil {
		return nil, fmt.Errorf("get repository %s: %w", name, err)
	}
	defer repoResp.Body.Close()
	if repoResp.StatusCode != http.StatusOK {
		return nil, apiError("get repository", repoResp)
	}
	return decodeRepository(repoResp)
}

// push commits the tree under dir with an in-memory object store, so dir gets no .git directory.
func (p *Publisher) push(ctx context.Context, dir, cloneURL, message string) error {
	repo, err := git.InitWithOptions(memory.NewStorage(), osfs.New(dir), git.InitOptions{
		DefaultBranch: plumbing.Main,
	})
	if err != nil {
		return fmt.Errorf("init repository: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("get worktree: %w", err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("stage all: %w", err)
	}
	if _, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  p.cfg.AuthorName,
			Email: p.cfg.AuthorEmail,
			When:  time.Now(),
		},
	}); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{cloneURL}}); err != nil {
		return fmt.Errorf("add remote: %w", err)
	}

	opts := &git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []gitconfig.RefSpec{"+refs/heads/main:refs/heads/main"},
		Force:      true,
	}
	if strings.HasPrefix(cloneURL, "http://") || strings.HasPrefix(cloneURL, "https://") {
		opts.Auth = &githttp.BasicAuth{Username: "x-access-token", Password: p.cfg.Token}
	}
	if err := repo.PushContext(ctx, opts); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("push: %w", err)
	}
	return nil
}

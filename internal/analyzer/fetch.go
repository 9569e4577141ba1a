package analyzer

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// Fetcher obtains a local copy of a repository.
type Fetcher struct {
	// Token authenticates HTTPS clones of private repositories when set.
	Token string
}

// Fetch makes source available on disk and returns the directory to analyze.
// Local directories (absolute paths or file:// URLs) are used in place.
// Remote sources are shallow-cloned into dest, replacing anything already there.
func (f *Fetcher) Fetch(ctx context.Context, source, dest string) (string, error) {
	if local, ok := localPath(source); ok {
		if _, err := os.Stat(local); err != nil {
			return "", fmt.Errorf("%w: %s", ErrNotFound, local)
		}
		return local, nil
	}

	if err := os.RemoveAll(dest); err != nil {
		return "", fmt.Errorf("clean clone dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create clone parent: %w", err)
	}

	opts := &git.CloneOptions{
		URL:          source,
		Depth:        1,
		SingleBranch: true,
	}
	if f != nil && f.Token != "" {
		opts.Auth = &githttp.BasicAuth{Username: "x-access-token", Password: f.Token}
	}

	if _, err := git.PlainCloneContext(ctx, dest, false, opts); err != nil {
		return "", fmt.Errorf("clone %s: %w", source, err)
	}
	return dest, nil
}

func localPath(source string) (string, bool) {
	if strings.HasPrefix(source, "file://") {
		u, err := url.Parse(source)
		if err != nil {
			return "", false
		}
		return u.Path, true
	}
	if filepath.IsAbs(source) {
		return source, true
	}
	return "", false
}

// ProjectName derives a DNS-safe project name from a repository locator:
// the last path segment, lower-cased, with runs of other characters replaced by '-'
// and trimmed to 50 characters.
func ProjectName(source string) string {
	s := strings.TrimRight(source, "/")
	s = strings.TrimSuffix(s, ".git")
	if i := strings.LastIndexAny(s, "/:"); i >= 0 {
		s = s[i+1:]
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	name := strings.Trim(b.String(), "-")
	if len(name) > 50 {
		name = strings.TrimRight(name[:50], "-")
	}
	if name == "" {
		name = "ml-project"
	}
	return name
}

// Package analyzer scans a checked-out repository and summarizes what it contains.
package analyzer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when the repository path is missing, not a directory, or has no files.
var ErrNotFound = errors.New("repository not found or empty")

// Profile is the structured summary of a scanned repository.
// All paths are slash-separated and relative to the repository root.
type Profile struct {
	Name            string   `json:"name"`
	SourceFiles     []string `json:"source_files"`
	NotebookFiles   []string `json:"notebook_files"`
	DependencyFiles []string `json:"dependency_files"`
	ConfigFiles     []string `json:"config_files"`
	ModelFiles      []string `json:"model_files"`
	DataFiles       []string `json:"data_files"`
	ReadmeFiles     []string `json:"readme_files"`
	EntryPoints     []string `json:"entry_points"`
	Frameworks      []string `json:"frameworks"`
	Tree            string   `json:"tree"`
}

// Category identifies which Profile sequence a file belongs to.
type Category int

const (
	Uncategorized Category = iota
	Source
	Notebook
	Dependency
	Config
	Model
	Data
	Readme
)

var skipDirs = map[string]struct{}{
	".git":          {},
	"__pycache__":   {},
	"node_modules":  {},
	".venv":         {},
	"venv":          {},
	"env":           {},
	".tox":          {},
	".mypy_cache":   {},
	".pytest_cache": {},
}

var dependencyNames = map[string]struct{}{
	"requirements.txt": {},
	"environment.yml":  {},
	"pipfile":          {},
	"pyproject.toml":   {},
	"setup.py":         {},
	"setup.cfg":        {},
}

var configExts = map[string]struct{}{
	".yaml": {}, ".yml": {}, ".json": {}, ".toml": {}, ".ini": {}, ".cfg": {},
}

var modelExts = map[string]struct{}{
	".pth": {}, ".pt": {}, ".h5": {}, ".pkl": {}, ".joblib": {}, ".onnx": {}, ".pb": {}, ".safetensors": {},
}

var dataExts = map[string]struct{}{
	".csv": {}, ".parquet": {}, ".txt": {}, ".xml": {}, ".tsv": {},
}

var entryPointNames = map[string]struct{}{
	"train.py": {}, "main.py": {}, "run.py": {}, "model.py": {},
}

// Classify assigns rel (a slash-separated relative path) to exactly one category.
// Rules are checked in a fixed order and the first match wins.
func Classify(rel string) Category {
	base := path.Base(rel)
	lower := strings.ToLower(base)
	ext := strings.ToLower(path.Ext(base))

	if ext == ".py" && lower != "setup.py" {
		return Source
	}
	if ext == ".ipynb" {
		return Notebook
	}
	if _, ok := dependencyNames[lower]; ok {
		return Dependency
	}
	if _, ok := configExts[ext]; ok {
		return Config
	}
	if _, ok := modelExts[ext]; ok {
		return Model
	}
	if _, ok := dataExts[ext]; ok && inDataDir(rel) {
		return Data
	}
	if strings.HasPrefix(lower, "readme") {
		return Readme
	}
	return Uncategorized
}

func inDataDir(rel string) bool {
	dir := path.Dir(rel)
	if dir == "." {
		return false
	}
	for _, seg := range strings.Split(strings.ToLower(dir), "/") {
		if strings.Contains(seg, "data") {
			return true
		}
	}
	return false
}

// Options bounds the scan.
type Options struct {
	// FrameworkScanLimit is how many source files are read for framework detection.
	FrameworkScanLimit int
	// TreeDepth bounds the rendered directory tree.
	TreeDepth int
}

// Analyzer produces Profiles.
type Analyzer struct {
	opts Options
}

// New creates an Analyzer, applying defaults for unset options.
func New(opts Options) *Analyzer {
	if opts.FrameworkScanLimit <= 0 {
		opts.FrameworkScanLimit = 20
	}
	if opts.TreeDepth <= 0 {
		opts.TreeDepth = 3
	}
	return &Analyzer{opts: opts}
}

// Analyze walks root once and builds its Profile.
func (a *Analyzer) Analyze(root string) (Profile, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, root)
		}
		return Profile{}, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return Profile{}, fmt.Errorf("%w: %s is not a directory", ErrNotFound, root)
	}

	p := Profile{Name: filepath.Base(filepath.Clean(root))}
	files := 0

	err = filepath.WalkDir(root, func(full string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if full != root {
				if _, skip := skipDirs[d.Name()]; skip {
					return fs.SkipDir
				}
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, full)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		files++

		switch Classify(rel) {
		case Source:
			p.SourceFiles = append(p.SourceFiles, rel)
			if _, ok := entryPointNames[strings.ToLower(path.Base(rel))]; ok {
				p.EntryPoints = append(p.EntryPoints, rel)
			}
		case Notebook:
			p.NotebookFiles = append(p.NotebookFiles, rel)
		case Dependency:
			p.DependencyFiles = append(p.DependencyFiles, rel)
		case Config:
			p.ConfigFiles = append(p.ConfigFiles, rel)
		case Model:
			p.ModelFiles = append(p.ModelFiles, rel)
		case Data:
			p.DataFiles = append(p.DataFiles, rel)
		case Readme:
			p.ReadmeFiles = append(p.ReadmeFiles, rel)
		}
		return nil
	})
	if err != nil {
		return Profile{}, fmt.Errorf("walk %s: %w", root, err)
	}
	if files == 0 {
		return Profile{}, fmt.Errorf("%w: %s has no files", ErrNotFound, root)
	}

	p.Frameworks = DetectFrameworks(root, p.SourceFiles, a.opts.FrameworkScanLimit)
	p.Tree = RenderTree(root, a.opts.TreeDepth)
	return p, nil
}

// HasFramework reports whether name was detected.
func (p Profile) HasFramework(name string) bool {
	for _, f := range p.Frameworks {
		if f == name {
			return true
		}
	}
	return false
}

// PrimaryEntryPoint returns the first entry point, or fallback when there is none.
func (p Profile) PrimaryEntryPoint(fallback string) string {
	if len(p.EntryPoints) > 0 {
		return p.EntryPoints[0]
	}
	return fallback
}

// NeedsGPU reports whether a detected framework usually trains on accelerators.
func (p Profile) NeedsGPU() bool {
	return p.HasFramework("pytorch") || p.HasFramework("tensorflow") || p.HasFramework("keras")
}

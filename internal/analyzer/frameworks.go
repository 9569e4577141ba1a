package analyzer

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// frameworkTriggers maps a framework identifier to substrings whose presence marks it as used.
var frameworkTriggers = map[string][]string{
	"tensorflow":   {"tensorflow", "tf."},
	"pytorch":      {"torch", "pytorch"},
	"sklearn":      {"sklearn", "scikit-learn", "from sklearn"},
	"keras":        {"keras"},
	"xgboost":      {"xgboost"},
	"lightgbm":     {"lightgbm"},
	"transformers": {"transformers"},
	"fastai":       {"fastai"},
}

// DetectFrameworks reads at most limit of sources (relative to root) and returns
// the sorted set of frameworks they mention. Unreadable files are skipped.
func DetectFrameworks(root string, sources []string, limit int) []string {
	if limit > len(sources) {
		limit = len(sources)
	}

	found := make(map[string]struct{})
	for _, rel := range sources[:limit] {
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			continue
		}
		text := string(data)
		for name, triggers := range frameworkTriggers {
			if _, ok := found[name]; ok {
				continue
			}
			for _, trig := range triggers {
				if strings.Contains(text, trig) {
					found[name] = struct{}{}
					break
				}
			}
		}
	}

	out := make([]string, 0, len(found))
	for name := range found {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

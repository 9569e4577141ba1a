package analyzer

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const maxTreeEntries = 50

// RenderTree draws the directory structure under root, at most depth levels deep
// and maxTreeEntries entries per directory. Hidden and skipped directories are omitted.
func RenderTree(root string, depth int) string {
	var b strings.Builder
	b.WriteString(filepath.Base(filepath.Clean(root)))
	b.WriteString("/\n")
	renderDir(&b, root, "", 1, depth)
	return b.String()
}

func renderDir(b *strings.Builder, dir, prefix string, level, depth int) {
	if level > depth {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	visible := entries[:0]
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if _, skip := skipDirs[e.Name()]; skip && e.IsDir() {
			continue
		}
		visible = append(visible, e)
	}
	sort.SliceStable(visible, func(i, j int) bool {
		if visible[i].IsDir() != visible[j].IsDir() {
			return visible[i].IsDir()
		}
		return visible[i].Name() < visible[j].Name()
	})

	truncated := 0
	if len(visible) > maxTreeEntries {
		truncated = len(visible) - maxTreeEntries
		visible = visible[:maxTreeEntries]
	}

	for i, e := range visible {
		last := i == len(visible)-1 && truncated == 0
		connector, childPrefix := "├── ", prefix+"│   "
		if last {
			connector, childPrefix = "└── ", prefix+"    "
		}

		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		b.WriteString(prefix + connector + name + "\n")

		if e.IsDir() {
			renderDir(b, filepath.Join(dir, e.Name()), childPrefix, level+1, depth)
		}
	}
	if truncated > 0 {
		b.WriteString(prefix + "└── ... (" + strconv.Itoa(truncated) + " more)\n")
	}
}

package generate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
	"k8s.io/client-go/kubernetes/scheme"
)

// Validator checks extracted text before it is accepted as an artifact.
type Validator func(content string) error

var errEmpty = errors.New("content is empty")

// NonEmpty rejects blank content.
func NonEmpty(content string) error {
	if strings.TrimSpace(content) == "" {
		return errEmpty
	}
	return nil
}

// All runs validators in order and returns the first failure.
func All(validators ...Validator) Validator {
	return func(content string) error {
		for _, v := range validators {
			if err := v(content); err != nil {
				return err
			}
		}
		return nil
	}
}

// Contains requires substr to appear in the content.
func Contains(substr string) Validator {
	return func(content string) error {
		if !strings.Contains(content, substr) {
			return fmt.Errorf("missing %q", substr)
		}
		return nil
	}
}

// DockerfileValidator requires a FROM instruction.
func DockerfileValidator(content string) error {
	if err := NonEmpty(content); err != nil {
		return err
	}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(strings.ToUpper(line), "FROM ") {
			return nil
		}
		if strings.HasPrefix(strings.ToUpper(line), "ARG ") {
			continue
		}
		return fmt.Errorf("first instruction must be FROM, got %q", line)
	}
	return errors.New("no FROM instruction")
}

var requirementLine = regexp.MustCompile(`^(-[a-zA-Z-]+.*|git\+\S+|[A-Za-z0-9][A-Za-z0-9._-]*(\[[A-Za-z0-9_,.-]+\])?\s*([<>=!~]=?\s*[A-Za-z0-9.*+!_-]+\s*,?\s*)*(;.*)?)$`)

// RequirementsValidator requires every non-comment line to look like a pip requirement.
func RequirementsValidator(content string) error {
	if err := NonEmpty(content); err != nil {
		return err
	}
	for i, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if idx := strings.Index(line, " #"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !requirementLine.MatchString(line) {
			return fmt.Errorf("line %d is not a requirement: %q", i+1, line)
		}
	}
	return nil
}

// YAMLKeys requires a YAML mapping document whose top level has every key.
func YAMLKeys(keys ...string) Validator {
	return func(content string) error {
		var doc yaml.Node
		if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
			return fmt.Errorf("invalid yaml: %w", err)
		}
		if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
			return errors.New("yaml document is not a mapping")
		}

		present := make(map[string]struct{})
		root := doc.Content[0]
		for i := 0; i+1 < len(root.Content); i += 2 {
			present[root.Content[i].Value] = struct{}{}
		}
		for _, k := range keys {
			if _, ok := present[k]; !ok {
				return fmt.Errorf("missing top-level key %q", k)
			}
		}
		return nil
	}
}

// KubernetesKind requires a manifest that decodes to the given kind.
func KubernetesKind(kind string) Validator {
	return func(content string) error {
		if err := NonEmpty(content); err != nil {
			return err
		}
		_, gvk, err := scheme.Codecs.UniversalDeserializer().Decode([]byte(content), nil, nil)
		if err != nil {
			return fmt.Errorf("decode manifest: %w", err)
		}
		if gvk.Kind != kind {
			return fmt.Errorf("expected kind %s, got %s", kind, gvk.Kind)
		}
		return nil
	}
}

// JenkinsfileValidator requires a declarative pipeline block.
func JenkinsfileValidator(content string) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errEmpty
	}
	if !strings.HasPrefix(trimmed, "pipeline") || !strings.Contains(trimmed, "{") {
		return errors.New("not a declarative pipeline")
	}
	if groovyBraceDepth(trimmed) != 0 {
		return errors.New("unbalanced braces")
	}
	return nil
}

// groovyBraceDepth returns the brace depth left at the end of src, ignoring braces in
// quoted strings and comments. A closing brace with no opener yields a negative depth.
func groovyBraceDepth(src string) int {
	depth := 0
	for i := 0; i < len(src); i++ {
		switch c := src[i]; {
		case c == '\'' || c == '"':
			quote := src[i : i+1]
			if strings.HasPrefix(src[i:], strings.Repeat(quote, 3)) {
				quote = src[i : i+3]
			}
			i += len(quote)
			for i < len(src) && !strings.HasPrefix(src[i:], quote) {
				if src[i] == '\\' {
					i++
				}
				i++
			}
			i += len(quote) - 1
		case strings.HasPrefix(src[i:], "//"):
			if nl := strings.IndexByte(src[i:], '\n'); nl >= 0 {
				i += nl
			} else {
				i = len(src)
			}
		case strings.HasPrefix(src[i:], "/*"):
			if end := strings.Index(src[i+2:], "*/"); end >= 0 {
				i += end + 3
			} else {
				i = len(src)
			}
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth < 0 {
				return depth
			}
		}
	}
	return depth
}

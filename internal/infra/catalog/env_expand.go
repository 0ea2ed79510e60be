package catalog

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// envExpander rewrites ${VAR} and ${VAR:-fallback} references inside YAML
// scalar values. Mapping keys are never expanded.
type envExpander struct {
	lookup  func(string) (string, bool)
	missing map[string]struct{}
}

// expandConfigEnv returns the document with environment references resolved
// and the sorted names of variables that were unset and had no fallback.
func expandConfigEnv(raw []byte) (string, []string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return "", nil, fmt.Errorf("parse config: %w", err)
	}

	e := &envExpander{lookup: os.LookupEnv, missing: map[string]struct{}{}}
	e.walk(&doc)

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return "", nil, fmt.Errorf("encode expanded config: %w", err)
	}
	return string(out), e.missingNames(), nil
}

func (e *envExpander) walk(node *yaml.Node) {
	switch node.Kind {
	case yaml.ScalarNode:
		e.rewrite(node)
	case yaml.AliasNode:
		if node.Alias != nil {
			e.walk(node.Alias)
		}
	case yaml.MappingNode:
		for i := 1; i < len(node.Content); i += 2 {
			e.walk(node.Content[i])
		}
	default:
		for _, child := range node.Content {
			e.walk(child)
		}
	}
}

// rewrite expands one scalar. A plain scalar is re-typed from its expanded
// text so "port: ${PORT}" still decodes as an int; quoted scalars stay strings.
func (e *envExpander) rewrite(node *yaml.Node) {
	if node.ShortTag() != "!!str" || !strings.Contains(node.Value, "$") {
		return
	}
	value := os.Expand(node.Value, e.resolve)
	if value == node.Value {
		return
	}
	node.Value = value
	node.Tag = "!!str"
	if node.Style == 0 && strings.TrimSpace(value) != "" {
		retyped := yaml.Node{Kind: yaml.ScalarNode, Value: value}
		node.Tag = retyped.ShortTag()
	}
}

func (e *envExpander) resolve(ref string) string {
	name, fallback, hasFallback := strings.Cut(ref, ":-")
	if value, ok := e.lookup(name); ok && (value != "" || !hasFallback) {
		return value
	}
	if hasFallback {
		return fallback
	}
	e.missing[name] = struct{}{}
	return ""
}

func (e *envExpander) missingNames() []string {
	if len(e.missing) == 0 {
		return nil
	}
	names := make([]string, 0, len(e.missing))
	for name := range e.missing {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

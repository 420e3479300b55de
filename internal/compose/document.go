// Package compose implements the project orchestrator (component J):
// document parsing, dependency ordering, container materialization, and
// scaling over internal/containermgr.
package compose

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is the decoded compose file shape, following the teacher's
// `gopkg.in/yaml.v3` usage elsewhere in the pack for structured config.
type Document struct {
	Version  string             `yaml:"version"`
	Services map[string]*Service `yaml:"services"`
	Volumes  map[string]any     `yaml:"volumes"`
	Networks map[string]any     `yaml:"networks"`
}

// Service is one compose service definition.
type Service struct {
	Image         string            `yaml:"image"`
	Build         *BuildSpec        `yaml:"build"`
	CommandRaw    yaml.Node         `yaml:"command"`
	EntrypointRaw yaml.Node         `yaml:"entrypoint"`
	Environment   map[string]string `yaml:"environment"`
	WorkingDir  string            `yaml:"working_dir"`
	User        string            `yaml:"user"`
	Hostname    string            `yaml:"hostname"`
	Privileged  bool              `yaml:"privileged"`
	DependsOn   []string          `yaml:"depends_on"`
	Ports       []string          `yaml:"ports"`
	Volumes     []string          `yaml:"volumes"`
	Labels      map[string]string `yaml:"labels"`
	Deploy      *DeploySpec       `yaml:"deploy"`
}

// BuildSpec names a build context and optional Runefile path/target, used
// by the "build-on-up" expansion.
type BuildSpec struct {
	Context    string `yaml:"context"`
	Dockerfile string `yaml:"dockerfile"`
	Target     string `yaml:"target"`
}

// DeploySpec carries the replica count spec.md §4.J's scaling algorithm
// reads.
type DeploySpec struct {
	Replicas *int `yaml:"replicas"`
}

// Parse decodes a compose document, applying ${VAR}/$VAR/${VAR:-default}
// interpolation against env before YAML decoding — the same order
// docker-compose itself applies.
func Parse(raw []byte, env map[string]string) (*Document, error) {
	interpolated := interpolate(string(raw), env)

	var doc Document
	if err := yaml.Unmarshal([]byte(interpolated), &doc); err != nil {
		return nil, fmt.Errorf("parse compose document: %w", err)
	}
	if len(doc.Services) == 0 {
		return nil, fmt.Errorf("compose document defines no services")
	}
	return &doc, nil
}

// ParseFile reads and parses a compose file from disk, merging the
// process environment with the supplied overrides.
func ParseFile(path string, overrides map[string]string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read compose file %s: %w", path, err)
	}

	env := map[string]string{}
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	for k, v := range overrides {
		env[k] = v
	}
	return Parse(raw, env)
}

var interpolationPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-[^}]*)?\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// interpolate expands ${VAR}, $VAR, and ${VAR:-default} references against
// env, leaving unresolved references with no default as empty strings.
func interpolate(text string, env map[string]string) string {
	return interpolationPattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := interpolationPattern.FindStringSubmatch(match)
		name := groups[1]
		if name == "" {
			name = groups[3]
		}
		if v, ok := env[name]; ok {
			return v
		}
		if strings.HasPrefix(groups[2], ":-") {
			return groups[2][2:]
		}
		return ""
	})
}

// Command returns the service's command in exec form, translating a shell
// string into ["/bin/sh", "-c", <str>] (spec.md §4.J).
func (s *Service) Command() []string {
	return nodeToExecForm(s.CommandRaw)
}

// Entrypoint returns the service's entrypoint in exec form.
func (s *Service) Entrypoint() []string {
	return nodeToExecForm(s.EntrypointRaw)
}

func nodeToExecForm(n yaml.Node) []string {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Value == "" {
			return nil
		}
		return []string{"/bin/sh", "-c", n.Value}
	case yaml.SequenceNode:
		out := make([]string, 0, len(n.Content))
		for _, c := range n.Content {
			out = append(out, c.Value)
		}
		return out
	default:
		return nil
	}
}

// Replicas returns the service's deploy.replicas, defaulting to 1.
func (s *Service) Replicas() int {
	if s.Deploy != nil && s.Deploy.Replicas != nil {
		return *s.Deploy.Replicas
	}
	return 1
}

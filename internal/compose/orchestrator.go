package compose

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/evoker-industries/rune/internal/container"
)

// ContainerOps is the subset of internal/containermgr.Manager the
// orchestrator drives; kept as an interface so dependency-order and
// scaling logic can be tested without a real runtime. internal/swarm's
// task reconciler declares TaskOps, this interface without List (spec.md
// §4.K "shared TaskOps").
type ContainerOps interface {
	Create(cfg container.Config) (*container.Config, error)
	Start(id string) error
	Stop(id string, graceSeconds int) error
	Remove(id string, force bool) error
	List(all bool) []container.Config
}

// Project ties a parsed Document to the container ops driving it and the
// project name compose.md §4.J's naming convention uses.
type Project struct {
	Name     string
	Document *Document
	Ops      ContainerOps

	// containerIDs[service][index-1] = container id, populated as services
	// are started so Scale/Down can find existing containers.
	containerIDs map[string][]string
}

func NewProject(name string, doc *Document, ops ContainerOps) *Project {
	return &Project{Name: name, Document: doc, Ops: ops, containerIDs: map[string][]string{}}
}

func containerName(project, service string, index int) string {
	return fmt.Sprintf("%s-%s-%d", project, service, index)
}

// containerConfig derives a container.Config from a service spec, per
// spec.md §4.J's field-by-field translation.
func containerConfig(project, service string, index int, svc *Service) container.Config {
	labels := map[string]string{}
	for k, v := range svc.Labels {
		labels[k] = v
	}
	labels["com.docker.compose.project"] = project
	labels["com.docker.compose.service"] = service

	volumes := make([]container.VolumeMount, 0, len(svc.Volumes))
	for _, v := range svc.Volumes {
		volumes = append(volumes, parseVolumeSpec(v))
	}

	return container.Config{
		Name:       containerName(project, service, index),
		ImageRef:   svc.Image,
		Cmd:        svc.Command(),
		Entrypoint: svc.Entrypoint(),
		Env:        svc.Environment,
		WorkingDir: svc.WorkingDir,
		User:       svc.User,
		Hostname:   svc.Hostname,
		Privileged: svc.Privileged,
		Volumes:    volumes,
		Labels:     labels,
	}
}

func parseVolumeSpec(spec string) container.VolumeMount {
	// "source:target" or "source:target:ro"
	parts := splitN(spec, ':', 3)
	v := container.VolumeMount{}
	switch len(parts) {
	case 1:
		v.Target = parts[0]
	case 2:
		v.Source, v.Target = parts[0], parts[1]
	case 3:
		v.Source, v.Target = parts[0], parts[1]
		v.ReadOnly = parts[2] == "ro"
	}
	return v
}

func splitN(s string, sep byte, n int) []string {
	var out []string
	start := 0
	for i := 0; i < len(s) && len(out) < n-1; i++ {
		if s[i] == sep {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

// Up brings the whole project up: services at the same DAG depth are
// created and started concurrently via errgroup, while depth levels remain
// a barrier (spec.md §4.J expansion).
func (p *Project) Up(ctx context.Context) error {
	depths, err := dependencyDepths(p.Document.Services)
	if err != nil {
		return err
	}

	maxDepth := 0
	for _, d := range depths {
		if d > maxDepth {
			maxDepth = d
		}
	}

	for depth := 0; depth <= maxDepth; depth++ {
		g, _ := errgroup.WithContext(ctx)
		for name, d := range depths {
			if d != depth {
				continue
			}
			name, svc := name, p.Document.Services[name]
			g.Go(func() error { return p.startService(name, svc) })
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("bring up project %s: %w", p.Name, err)
		}
	}
	return nil
}

func (p *Project) startService(name string, svc *Service) error {
	ids, err := p.createAndStart(name, svc, 1, svc.Replicas())
	if err != nil {
		return err
	}
	p.containerIDs[name] = append(p.containerIDs[name], ids...)
	return nil
}

func (p *Project) createAndStart(service string, svc *Service, from, to int) ([]string, error) {
	ids := make([]string, 0, to-from+1)
	for i := from; i <= to; i++ {
		cfg, err := p.Ops.Create(containerConfig(p.Name, service, i, svc))
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", containerName(p.Name, service, i), err)
		}
		if err := p.Ops.Start(cfg.ID); err != nil {
			return nil, fmt.Errorf("start %s: %w", cfg.Name, err)
		}
		ids = append(ids, cfg.ID)
	}
	return ids, nil
}

// Down stops and removes the whole project in strict reverse dependency
// order, sequentially (spec.md §4.J: shutdown stays sequential).
func (p *Project) Down() error {
	order, err := ShutdownOrder(p.Document.Services)
	if err != nil {
		return err
	}
	for _, name := range order {
		for _, id := range p.containerIDs[name] {
			if err := p.Ops.Stop(id, 10); err != nil {
				return fmt.Errorf("stop %s: %w", id, err)
			}
			if err := p.Ops.Remove(id, true); err != nil {
				return fmt.Errorf("remove %s: %w", id, err)
			}
		}
		delete(p.containerIDs, name)
	}
	return nil
}

// Scale adjusts a service's replica count: growing starts additional
// containers at indices current+1..=target, shrinking pops the tail and
// stops/removes each (spec.md §4.J).
func (p *Project) Scale(service string, target int) error {
	svc, ok := p.Document.Services[service]
	if !ok {
		return fmt.Errorf("no such service: %s", service)
	}
	current := len(p.containerIDs[service])

	if target > current {
		ids, err := p.createAndStart(service, svc, current+1, target)
		if err != nil {
			return err
		}
		p.containerIDs[service] = append(p.containerIDs[service], ids...)
		return nil
	}
	if target < current {
		toRemove := p.containerIDs[service][target:]
		for _, id := range toRemove {
			if err := p.Ops.Stop(id, 10); err != nil {
				return fmt.Errorf("stop %s: %w", id, err)
			}
			if err := p.Ops.Remove(id, true); err != nil {
				return fmt.Errorf("remove %s: %w", id, err)
			}
		}
		p.containerIDs[service] = p.containerIDs[service][:target]
	}
	return nil
}

// dependencyDepths assigns each service the length of its longest
// depends_on chain, used to group same-depth services for concurrent
// startup. Relies on StartOrder to reject cycles first.
func dependencyDepths(services map[string]*Service) (map[string]int, error) {
	if _, err := StartOrder(services); err != nil {
		return nil, err
	}

	depths := map[string]int{}
	var depth func(name string) int
	depth = func(name string) int {
		if d, ok := depths[name]; ok {
			return d
		}
		svc := services[name]
		max := -1
		for _, dep := range svc.DependsOn {
			if d := depth(dep); d > max {
				max = d
			}
		}
		depths[name] = max + 1
		return depths[name]
	}
	for name := range services {
		depth(name)
	}
	return depths, nil
}

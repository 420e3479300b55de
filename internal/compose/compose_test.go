package compose_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/evoker-industries/rune/internal/compose"
	"github.com/evoker-industries/rune/internal/container"
)

func svcMap(depsOf map[string][]string) map[string]*compose.Service {
	out := map[string]*compose.Service{}
	for name, deps := range depsOf {
		out[name] = &compose.Service{DependsOn: deps}
	}
	return out
}

func TestStartOrderRespectsChainedDependencies(t *testing.T) {
	services := svcMap(map[string][]string{
		"web": {"api"},
		"api": {"db"},
		"db":  nil,
	})

	order, err := compose.StartOrder(services)
	if err != nil {
		t.Fatalf("StartOrder() error = %v", err)
	}
	want := []string{"db", "api", "web"}
	if fmt.Sprint(order) != fmt.Sprint(want) {
		t.Fatalf("StartOrder() = %v, want %v", order, want)
	}

	shutdown, err := compose.ShutdownOrder(services)
	if err != nil {
		t.Fatal(err)
	}
	wantShutdown := []string{"web", "api", "db"}
	if fmt.Sprint(shutdown) != fmt.Sprint(wantShutdown) {
		t.Fatalf("ShutdownOrder() = %v, want %v", shutdown, wantShutdown)
	}
}

func TestStartOrderDetectsCircularDependency(t *testing.T) {
	services := svcMap(map[string][]string{
		"a": {"b"},
		"b": {"a"},
	})

	_, err := compose.StartOrder(services)
	if err == nil {
		t.Fatal("expected a circular dependency error")
	}
	if got := err.Error(); !strings.HasPrefix(got, "Circular dependency detected") {
		t.Errorf("error = %q, want prefix %q", got, "Circular dependency detected")
	}
}

func TestParseInterpolatesEnvReferences(t *testing.T) {
	doc, err := compose.Parse([]byte(`
services:
  web:
    image: "nginx:${TAG}"
    environment:
      LEVEL: "${LOG_LEVEL:-info}"
`), map[string]string{"TAG": "1.27"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	web, ok := doc.Services["web"]
	if !ok {
		t.Fatal("expected a web service")
	}
	if web.Image != "nginx:1.27" {
		t.Errorf("Image = %q, want nginx:1.27", web.Image)
	}
}

func TestServiceReplicasDefaultsToOne(t *testing.T) {
	s := &compose.Service{}
	if s.Replicas() != 1 {
		t.Errorf("Replicas() = %d, want 1", s.Replicas())
	}
}

type fakeOps struct {
	created []container.Config
	started []string
	stopped []string
	removed []string
	nextID  int
}

func (f *fakeOps) Create(cfg container.Config) (*container.Config, error) {
	f.nextID++
	cfg.ID = fmt.Sprintf("c%d", f.nextID)
	f.created = append(f.created, cfg)
	return &cfg, nil
}
func (f *fakeOps) Start(id string) error              { f.started = append(f.started, id); return nil }
func (f *fakeOps) Stop(id string, _ int) error         { f.stopped = append(f.stopped, id); return nil }
func (f *fakeOps) Remove(id string, _ bool) error      { f.removed = append(f.removed, id); return nil }
func (f *fakeOps) List(all bool) []container.Config    { return nil }

func TestProjectUpCreatesOneContainerPerService(t *testing.T) {
	doc := &compose.Document{Services: svcMap(map[string][]string{
		"db":  nil,
		"api": {"db"},
	})}
	doc.Services["db"].Image = "postgres:16"
	doc.Services["api"].Image = "app:latest"

	ops := &fakeOps{}
	p := compose.NewProject("demo", doc, ops)
	if err := p.Up(context.Background()); err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if len(ops.created) != 2 || len(ops.started) != 2 {
		t.Fatalf("created=%d started=%d, want 2 and 2", len(ops.created), len(ops.started))
	}
}

func TestProjectScaleUpAddsContainers(t *testing.T) {
	doc := &compose.Document{Services: svcMap(map[string][]string{"web": nil})}
	doc.Services["web"].Image = "app:latest"

	ops := &fakeOps{}
	p := compose.NewProject("demo", doc, ops)
	if err := p.Up(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := p.Scale("web", 3); err != nil {
		t.Fatalf("Scale() error = %v", err)
	}
	if len(ops.created) != 3 {
		t.Fatalf("created = %d, want 3", len(ops.created))
	}
}

func TestProjectScaleDownRemovesTail(t *testing.T) {
	doc := &compose.Document{Services: svcMap(map[string][]string{"web": nil})}
	doc.Services["web"].Image = "app:latest"
	replicas := 3
	doc.Services["web"].Deploy = &compose.DeploySpec{Replicas: &replicas}

	ops := &fakeOps{}
	p := compose.NewProject("demo", doc, ops)
	if err := p.Up(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := p.Scale("web", 1); err != nil {
		t.Fatalf("Scale() error = %v", err)
	}
	if len(ops.removed) != 2 {
		t.Fatalf("removed = %d, want 2", len(ops.removed))
	}
}

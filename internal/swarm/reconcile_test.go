package swarm_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/evoker-industries/rune/internal/container"
	"github.com/evoker-industries/rune/internal/swarm"
)

type fakeTaskOps struct {
	created []container.Config
	started []string
	stopped []string
	removed []string
	nextID  int
}

func (f *fakeTaskOps) Create(cfg container.Config) (*container.Config, error) {
	f.nextID++
	cfg.ID = fmt.Sprintf("c%d", f.nextID)
	f.created = append(f.created, cfg)
	return &cfg, nil
}
func (f *fakeTaskOps) Start(id string) error         { f.started = append(f.started, id); return nil }
func (f *fakeTaskOps) Stop(id string, _ int) error    { f.stopped = append(f.stopped, id); return nil }
func (f *fakeTaskOps) Remove(id string, _ bool) error { f.removed = append(f.removed, id); return nil }

func TestReconcileGrowsToReplicaTarget(t *testing.T) {
	services := swarm.NewServiceManager()
	replicas := 3
	svc, err := services.CreateService("svc1", swarm.Spec{
		Name:     "web",
		Template: swarm.TaskTemplate{Image: "app:latest"},
		Mode:     swarm.Mode{Replicated: &replicas},
	})
	if err != nil {
		t.Fatal(err)
	}

	ops := &fakeTaskOps{}
	r := swarm.NewReconciler(services, ops)
	if err := r.Reconcile(context.Background(), svc.ID); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if len(ops.created) != 3 || len(ops.started) != 3 {
		t.Fatalf("created=%d started=%d, want 3 and 3", len(ops.created), len(ops.started))
	}
	if len(services.TasksForService("svc1")) != 3 {
		t.Fatalf("tasks = %d, want 3", len(services.TasksForService("svc1")))
	}
}

func TestReconcileShrinksToReplicaTarget(t *testing.T) {
	services := swarm.NewServiceManager()
	replicas := 3
	svc, err := services.CreateService("svc1", swarm.Spec{
		Name:     "web",
		Template: swarm.TaskTemplate{Image: "app:latest"},
		Mode:     swarm.Mode{Replicated: &replicas},
	})
	if err != nil {
		t.Fatal(err)
	}

	ops := &fakeTaskOps{}
	r := swarm.NewReconciler(services, ops)
	if err := r.Reconcile(context.Background(), svc.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := services.ScaleService("svc1", 1); err != nil {
		t.Fatal(err)
	}
	if err := r.Reconcile(context.Background(), svc.ID); err != nil {
		t.Fatalf("Reconcile() (shrink) error = %v", err)
	}
	if len(ops.stopped) != 2 || len(ops.removed) != 2 {
		t.Fatalf("stopped=%d removed=%d, want 2 and 2", len(ops.stopped), len(ops.removed))
	}
}

func TestReconcileRejectsNonReplicatedMode(t *testing.T) {
	services := swarm.NewServiceManager()
	svc, err := services.CreateService("svc1", swarm.Spec{Name: "web", Mode: swarm.Mode{Global: true}})
	if err != nil {
		t.Fatal(err)
	}

	r := swarm.NewReconciler(services, &fakeTaskOps{})
	if err := r.Reconcile(context.Background(), svc.ID); err == nil {
		t.Error("expected an error reconciling a non-Replicated service")
	}
}

package swarm

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/evoker-industries/rune/internal/container"
)

// TaskOps is internal/compose.ContainerOps's method set without List, so
// any ContainerOps also satisfies TaskOps; the two packages declare their
// own interfaces rather than sharing a common import (spec.md §4.K).
type TaskOps interface {
	Create(cfg container.Config) (*container.Config, error)
	Start(id string) error
	Stop(id string, graceSeconds int) error
	Remove(id string, force bool) error
}

// Reconciler brings a service's running task set in line with its desired
// replica count, fanning the work out with errgroup the same way
// internal/compose.Project.Up does for same-depth services.
type Reconciler struct {
	Services *ServiceManager
	Ops      TaskOps
}

func NewReconciler(services *ServiceManager, ops TaskOps) *Reconciler {
	return &Reconciler{Services: services, Ops: ops}
}

// Reconcile brings serviceID's task count up or down to its Replicated
// target, creating/starting or stopping/removing containers concurrently.
func (r *Reconciler) Reconcile(ctx context.Context, serviceID string) error {
	svc, err := r.Services.GetService(serviceID)
	if err != nil {
		return err
	}
	if svc.Spec.Mode.Replicated == nil {
		return fmt.Errorf("service %s is not in Replicated mode", serviceID)
	}
	target := *svc.Spec.Mode.Replicated

	tasks := r.Services.TasksForService(serviceID)
	active := make([]*Task, 0, len(tasks))
	for _, t := range tasks {
		if !IsTerminal(t.State) {
			active = append(active, t)
		}
	}

	if len(active) < target {
		return r.growTasks(ctx, svc, target-len(active))
	}
	if len(active) > target {
		return r.shrinkTasks(ctx, active[target:])
	}
	return nil
}

func (r *Reconciler) growTasks(ctx context.Context, svc *Service, count int) error {
	g, _ := errgroup.WithContext(ctx)
	for i := 0; i < count; i++ {
		slot := i
		g.Go(func() error { return r.startOneTask(svc, slot) })
	}
	return g.Wait()
}

func (r *Reconciler) startOneTask(svc *Service, slot int) error {
	slotCopy := slot
	taskID, err := randomHex(8)
	if err != nil {
		return err
	}
	if _, err := r.Services.CreateTask(taskID, svc.ID, &slotCopy); err != nil {
		return fmt.Errorf("create task for service %s: %w", svc.ID, err)
	}

	cfg, err := r.Ops.Create(container.Config{
		Name:     fmt.Sprintf("%s.%d.%s", svc.Spec.Name, slotCopy, taskID[:8]),
		ImageRef: svc.Spec.Template.Image,
		Cmd:      svc.Spec.Template.Cmd,
		Env:      svc.Spec.Template.Env,
	})
	if err != nil {
		return fmt.Errorf("create container for task %s: %w", taskID, err)
	}
	if err := r.Ops.Start(cfg.ID); err != nil {
		return fmt.Errorf("start container for task %s: %w", taskID, err)
	}
	if err := r.Services.RunTask(taskID, cfg.ID); err != nil {
		return err
	}
	return nil
}

func (r *Reconciler) shrinkTasks(ctx context.Context, toRemove []*Task) error {
	g, _ := errgroup.WithContext(ctx)
	for _, t := range toRemove {
		t := t
		g.Go(func() error {
			if t.ContainerStatus.ContainerID == "" {
				return nil
			}
			if err := r.Ops.Stop(t.ContainerStatus.ContainerID, 10); err != nil {
				return fmt.Errorf("stop task %s: %w", t.ID, err)
			}
			return r.Ops.Remove(t.ContainerStatus.ContainerID, true)
		})
	}
	return g.Wait()
}

package swarm_test

import (
	"strings"
	"testing"

	"github.com/evoker-industries/rune/internal/swarm"
)

func TestInitProducesDistinctRoleTokens(t *testing.T) {
	c, err := swarm.Init(swarm.InitConfig{Hostname: "node-a"})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if !strings.HasPrefix(c.WorkerToken, "SWMTKN-1-") {
		t.Errorf("worker token = %q, want SWMTKN-1- prefix", c.WorkerToken)
	}
	if !strings.HasPrefix(c.ManagerToken, "SWMTKN-1-") {
		t.Errorf("manager token = %q, want SWMTKN-1- prefix", c.ManagerToken)
	}
	if !strings.Contains(c.WorkerToken, "-worker-") {
		t.Errorf("worker token = %q, want -worker- segment", c.WorkerToken)
	}
	if !strings.Contains(c.ManagerToken, "-manager-") {
		t.Errorf("manager token = %q, want -manager- segment", c.ManagerToken)
	}

	prefix := c.ID[:8]
	if !strings.Contains(c.WorkerToken, prefix) {
		t.Errorf("worker token missing cluster id prefix %q", prefix)
	}
	if !strings.Contains(c.ManagerToken, prefix) {
		t.Errorf("manager token missing cluster id prefix %q", prefix)
	}
}

func TestParseJoinTokenInfersRole(t *testing.T) {
	c, err := swarm.Init(swarm.InitConfig{Hostname: "node-a"})
	if err != nil {
		t.Fatal(err)
	}

	_, workerRole, err := swarm.ParseJoinToken(c.WorkerToken)
	if err != nil {
		t.Fatal(err)
	}
	if workerRole != swarm.RoleWorker {
		t.Errorf("worker token role = %s, want Worker", workerRole)
	}

	_, managerRole, err := swarm.ParseJoinToken(c.ManagerToken)
	if err != nil {
		t.Fatal(err)
	}
	if managerRole != swarm.RoleManager {
		t.Errorf("manager token role = %s, want Manager", managerRole)
	}
}

func TestJoinAddsNodeWithRoleFromToken(t *testing.T) {
	c, err := swarm.Init(swarm.InitConfig{Hostname: "node-a"})
	if err != nil {
		t.Fatal(err)
	}

	role, err := c.Join(c.WorkerToken, "node-b-id", "node-b")
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if role != swarm.RoleWorker {
		t.Errorf("Join() role = %s, want Worker", role)
	}
	if len(c.Nodes()) != 2 {
		t.Errorf("Nodes() = %d, want 2", len(c.Nodes()))
	}
}

func TestLeaveRefusesToRemoveLastManagerWithoutForce(t *testing.T) {
	c, err := swarm.Init(swarm.InitConfig{Hostname: "node-a"})
	if err != nil {
		t.Fatal(err)
	}
	leaderID := c.Nodes()[0].ID

	if err := c.Leave(leaderID, false); err == nil {
		t.Error("expected an error removing the last manager without force")
	}
	if err := c.Leave(leaderID, true); err != nil {
		t.Errorf("Leave(force) error = %v", err)
	}
}

func TestLockRequiresAutoLockEnabled(t *testing.T) {
	c, err := swarm.Init(swarm.InitConfig{Hostname: "node-a", AutoLock: false})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Lock(); err == nil {
		t.Error("expected error locking a cluster without auto-lock enabled")
	}
}

func TestLockUnlockRoundTrip(t *testing.T) {
	c, err := swarm.Init(swarm.InitConfig{Hostname: "node-a", AutoLock: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Lock(); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if c.State != swarm.ClusterLocked {
		t.Fatalf("State = %s, want Locked", c.State)
	}
	if err := c.Unlock("wrong-key"); err == nil {
		t.Error("expected error unlocking with the wrong key")
	}
	if err := c.Unlock(c.UnlockKey); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if c.State != swarm.ClusterActive {
		t.Fatalf("State after unlock = %s, want Active", c.State)
	}
}

func TestServiceUpdateAndRollback(t *testing.T) {
	m := swarm.NewServiceManager()
	s, err := m.CreateService("svc1", swarm.Spec{Name: "web", Template: swarm.TaskTemplate{Image: "v1"}})
	if err != nil {
		t.Fatal(err)
	}
	if s.Version != 1 {
		t.Fatalf("Version = %d, want 1", s.Version)
	}

	updated, err := m.UpdateService("svc1", swarm.Spec{Name: "web", Template: swarm.TaskTemplate{Image: "v2"}})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Version != 2 || updated.Spec.Template.Image != "v2" {
		t.Fatalf("after update: version=%d image=%s", updated.Version, updated.Spec.Template.Image)
	}
	if updated.PreviousSpec == nil || updated.PreviousSpec.Template.Image != "v1" {
		t.Fatal("expected previous_spec to retain v1")
	}

	rolled, err := m.Rollback("svc1")
	if err != nil {
		t.Fatal(err)
	}
	if rolled.Version != 3 || rolled.Spec.Template.Image != "v1" {
		t.Fatalf("after rollback: version=%d image=%s", rolled.Version, rolled.Spec.Template.Image)
	}
}

func TestTaskLifecycleAssignAndRun(t *testing.T) {
	m := swarm.NewServiceManager()
	if _, err := m.CreateService("svc1", swarm.Spec{Name: "web"}); err != nil {
		t.Fatal(err)
	}
	task, err := m.CreateTask("task1", "svc1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if task.State != swarm.TaskNew {
		t.Fatalf("initial state = %s, want New", task.State)
	}

	if err := m.AssignTask("task1", "node-a"); err != nil {
		t.Fatal(err)
	}
	if err := m.RunTask("task1", "container-1"); err != nil {
		t.Fatal(err)
	}

	tasks := m.TasksForService("svc1")
	if len(tasks) != 1 || tasks[0].State != swarm.TaskRunning {
		t.Fatalf("task state = %v, want Running", tasks)
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := []swarm.TaskState{swarm.TaskComplete, swarm.TaskFailed, swarm.TaskRejected, swarm.TaskRemove, swarm.TaskOrphaned}
	for _, s := range terminal {
		if !swarm.IsTerminal(s) {
			t.Errorf("IsTerminal(%s) = false, want true", s)
		}
	}
	if swarm.IsTerminal(swarm.TaskRunning) {
		t.Error("IsTerminal(Running) = true, want false")
	}
}

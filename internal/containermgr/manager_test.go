package containermgr_test

import (
	"fmt"
	"testing"

	"github.com/evoker-industries/rune/internal/container"
	"github.com/evoker-industries/rune/internal/containermgr"
)

type fakeRuntime struct {
	nextPID   int
	signals   map[int][]int
	paused    map[int]bool
	startErr  error
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{nextPID: 100, signals: map[int][]int{}, paused: map[int]bool{}}
}

func (f *fakeRuntime) Start(cfg *container.Config) (int, error) {
	if f.startErr != nil {
		return 0, f.startErr
	}
	f.nextPID++
	return f.nextPID, nil
}

func (f *fakeRuntime) Signal(pid int, sig int) error {
	f.signals[pid] = append(f.signals[pid], sig)
	return nil
}

func (f *fakeRuntime) Pause(pid int) error   { f.paused[pid] = true; return nil }
func (f *fakeRuntime) Unpause(pid int) error { f.paused[pid] = false; return nil }

func TestCreateAssignsCreatedStatusAndUniqueID(t *testing.T) {
	m := containermgr.New(newFakeRuntime())

	a, err := m.Create(container.Config{ImageRef: "alpine:latest"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if a.Status != container.Created {
		t.Errorf("Status = %s, want Created", a.Status)
	}
	if a.Name == "" {
		t.Error("expected a generated name when none supplied")
	}

	b, err := m.Create(container.Config{ImageRef: "alpine:latest"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if a.ID == b.ID {
		t.Error("expected distinct ids across Create calls")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	rt := newFakeRuntime()
	m := containermgr.New(rt)

	c, err := m.Create(container.Config{ImageRef: "alpine:latest"})
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Start(c.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	got, err := m.Get(c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != container.Running {
		t.Fatalf("Status = %s, want Running", got.Status)
	}
	if got.StartedAt == nil {
		t.Error("expected StartedAt to be set")
	}

	if err := m.Stop(c.ID, 0); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	got, _ = m.Get(c.ID)
	if got.Status != container.Stopped {
		t.Fatalf("Status after Stop = %s, want Stopped", got.Status)
	}
	if got.ExitCode == nil {
		t.Fatal("expected ExitCode to be set after Stop")
	}
	if *got.ExitCode != 143 {
		t.Errorf("ExitCode = %d, want 143", *got.ExitCode)
	}
}

func TestStartRequiresNotRunning(t *testing.T) {
	m := containermgr.New(newFakeRuntime())
	c, _ := m.Create(container.Config{})
	if err := m.Start(c.ID); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(c.ID); err == nil {
		t.Error("expected error starting an already-running container")
	}
}

func TestStartFailureMarksDeadWithExitCode(t *testing.T) {
	rt := newFakeRuntime()
	rt.startErr = fmt.Errorf("exec failed")
	m := containermgr.New(rt)

	c, _ := m.Create(container.Config{})
	if err := m.Start(c.ID); err == nil {
		t.Fatal("expected Start() to return an error")
	}

	got, err := m.Get(c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != container.Dead {
		t.Fatalf("Status = %s, want Dead", got.Status)
	}
	if got.ExitCode == nil {
		t.Fatal("expected ExitCode to be set after a failed Start")
	}
}

func TestStopRequiresRunning(t *testing.T) {
	m := containermgr.New(newFakeRuntime())
	c, _ := m.Create(container.Config{})
	if err := m.Stop(c.ID, 0); err == nil {
		t.Error("expected error stopping a non-running container")
	}
}

func TestKillSetsExitCode137WithoutWaiting(t *testing.T) {
	m := containermgr.New(newFakeRuntime())
	c, _ := m.Create(container.Config{})
	if err := m.Start(c.ID); err != nil {
		t.Fatal(err)
	}
	if err := m.Kill(c.ID); err != nil {
		t.Fatalf("Kill() error = %v", err)
	}
	got, _ := m.Get(c.ID)
	if got.Status != container.Exited {
		t.Fatalf("Status = %s, want Exited", got.Status)
	}
	if got.ExitCode == nil || *got.ExitCode != 137 {
		t.Fatalf("ExitCode = %v, want 137", got.ExitCode)
	}
}

func TestRemoveRequiresNotRunningUnlessForced(t *testing.T) {
	m := containermgr.New(newFakeRuntime())
	c, _ := m.Create(container.Config{})
	if err := m.Start(c.ID); err != nil {
		t.Fatal(err)
	}
	if err := m.Remove(c.ID, false); err == nil {
		t.Error("expected error removing a running container without force")
	}
	if err := m.Remove(c.ID, true); err != nil {
		t.Fatalf("Remove(force) error = %v", err)
	}
	if _, err := m.Get(c.ID); err == nil {
		t.Error("expected container to be gone after force-remove")
	}
}

func TestListAllVsRunningOnly(t *testing.T) {
	m := containermgr.New(newFakeRuntime())
	a, _ := m.Create(container.Config{})
	b, _ := m.Create(container.Config{})
	if err := m.Start(a.ID); err != nil {
		t.Fatal(err)
	}
	_ = b

	running := m.List(false)
	if len(running) != 1 {
		t.Fatalf("List(false) = %d, want 1", len(running))
	}
	all := m.List(true)
	if len(all) != 2 {
		t.Fatalf("List(true) = %d, want 2", len(all))
	}
}

func TestPauseUnpause(t *testing.T) {
	m := containermgr.New(newFakeRuntime())
	c, _ := m.Create(container.Config{})
	if err := m.Start(c.ID); err != nil {
		t.Fatal(err)
	}
	if err := m.Pause(c.ID); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	got, _ := m.Get(c.ID)
	if got.Status != container.Paused {
		t.Fatalf("Status = %s, want Paused", got.Status)
	}
	if err := m.Unpause(c.ID); err != nil {
		t.Fatalf("Unpause() error = %v", err)
	}
	got, _ = m.Get(c.ID)
	if got.Status != container.Running {
		t.Fatalf("Status = %s, want Running", got.Status)
	}
}

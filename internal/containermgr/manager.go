// Package containermgr implements the container lifecycle manager
// (component I): a single RWMutex over an id->Container map, exactly the
// shape spec.md §4.G/§4.I calls for and the same pattern the teacher uses
// for its sandBoxes map in boxer.go, generalized into its own type.
package containermgr

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/goombaio/namegenerator"

	"github.com/evoker-industries/rune/internal/container"
)

// Runtime is the process-level capability the manager drives through;
// internal/runtime.Runtime satisfies it. Kept as an interface so the
// manager's locking and status-transition logic can be tested without
// spawning real namespaces.
type Runtime interface {
	Start(cfg *container.Config) (pid int, err error)
	Signal(pid int, sig int) error
	Pause(pid int) error
	Unpause(pid int) error
}

// ErrNotFound is returned by operations on an unknown id.
type ErrNotFound struct{ ID string }

func (e ErrNotFound) Error() string { return fmt.Sprintf("no such container: %s", e.ID) }

// ErrConflict is returned for disallowed status transitions or id
// collisions.
type ErrConflict struct{ Message string }

func (e ErrConflict) Error() string { return e.Message }

// Manager owns the container table.
type Manager struct {
	mu         sync.RWMutex
	containers map[string]*container.Config
	runtime    Runtime
	namer      namegenerator.Generator
}

func New(runtime Runtime) *Manager {
	return &Manager{
		containers: map[string]*container.Config{},
		runtime:    runtime,
		namer:      namegenerator.NewNameGenerator(time.Now().UnixNano()),
	}
}

func randomID() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Create inserts a new record, which passes through Creating and is
// returned in Created status. Name uniqueness is not
// enforced here — spec.md §4.G/§9 Open Question #5 delegates that check (if
// any) to the HTTP surface, and this manager preserves that as-is.
func (m *Manager) Create(cfg container.Config) (*container.Config, error) {
	id, err := randomID()
	if err != nil {
		return nil, err
	}

	if cfg.Name == "" {
		cfg.Name = m.namer.Generate()
	}
	cfg.ID = id
	cfg.Status = container.Creating
	cfg.CreatedAt = time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.containers[id]; exists {
		// Collision on random id is a bug (spec.md §4.G); retry is the
		// caller's responsibility.
		return nil, ErrConflict{Message: fmt.Sprintf("id collision: %s", id)}
	}
	m.containers[id] = &cfg
	m.transition(&cfg, container.Created)
	return &cfg, nil
}

func (m *Manager) transition(c *container.Config, to container.Status) {
	c.Status = to
}

// Get returns a copy of the container record for id.
func (m *Manager) Get(id string) (container.Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.containers[id]
	if !ok {
		return container.Config{}, ErrNotFound{ID: id}
	}
	return *c, nil
}

// List returns every record, or only Running ones when all is false.
func (m *Manager) List(all bool) []container.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]container.Config, 0, len(m.containers))
	for _, c := range m.containers {
		if all || c.Status == container.Running {
			out = append(out, *c)
		}
	}
	return out
}

func (m *Manager) requireStatus(c *container.Config, want container.Status) error {
	if c.Status != want {
		return ErrConflict{Message: fmt.Sprintf("container %s is %s, not %s", c.ID, c.Status, want)}
	}
	return nil
}

// Start requires not-Running (spec.md §3 lifecycle invariants).
func (m *Manager) Start(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.containers[id]
	if !ok {
		return ErrNotFound{ID: id}
	}
	if c.Status == container.Running {
		return ErrConflict{Message: fmt.Sprintf("container %s already running", id)}
	}
	if !container.CanTransition(c.Status, container.Running) {
		return ErrConflict{Message: fmt.Sprintf("cannot start container %s from %s", id, c.Status)}
	}

	pid, err := m.runtime.Start(c)
	if err != nil {
		now := time.Now()
		exitCode := 1
		c.FinishedAt = &now
		c.ExitCode = &exitCode
		c.Status = container.Dead
		return fmt.Errorf("start container %s: %w", id, err)
	}

	now := time.Now()
	c.PID = pid
	c.StartedAt = &now
	c.Status = container.Running
	return nil
}

// Stop requires Running.
func (m *Manager) Stop(id string, graceSeconds int) error {
	m.mu.Lock()
	c, ok := m.containers[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound{ID: id}
	}
	if err := m.requireStatus(c, container.Running); err != nil {
		m.mu.Unlock()
		return err
	}
	pid := c.PID
	m.mu.Unlock()

	const sigterm = 15
	const sigkill = 9
	if err := m.runtime.Signal(pid, sigterm); err != nil {
		return fmt.Errorf("stop container %s: %w", id, err)
	}

	exitCode := 143 // 128 + SIGTERM
	if graceSeconds > 0 {
		time.Sleep(time.Duration(graceSeconds) * time.Second)
		_ = m.runtime.Signal(pid, sigkill)
		exitCode = 137 // 128 + SIGKILL
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	c.FinishedAt = &now
	c.ExitCode = &exitCode
	c.Status = container.Stopped
	return nil
}

// Kill sends SIGKILL, transitions to Exited with exit_code 137 without
// waiting (spec.md §5 cancellation semantics).
func (m *Manager) Kill(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.containers[id]
	if !ok {
		return ErrNotFound{ID: id}
	}
	if err := m.requireStatus(c, container.Running); err != nil {
		return err
	}

	const sigkill = 9
	if err := m.runtime.Signal(c.PID, sigkill); err != nil {
		return fmt.Errorf("kill container %s: %w", id, err)
	}

	now := time.Now()
	exitCode := 137
	c.FinishedAt = &now
	c.ExitCode = &exitCode
	c.Status = container.Exited
	return nil
}

// Pause requires Running; Unpause requires Paused.
func (m *Manager) Pause(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.containers[id]
	if !ok {
		return ErrNotFound{ID: id}
	}
	if err := m.requireStatus(c, container.Running); err != nil {
		return err
	}
	if err := m.runtime.Pause(c.PID); err != nil {
		return err
	}
	c.Status = container.Paused
	return nil
}

func (m *Manager) Unpause(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.containers[id]
	if !ok {
		return ErrNotFound{ID: id}
	}
	if err := m.requireStatus(c, container.Paused); err != nil {
		return err
	}
	if err := m.runtime.Unpause(c.PID); err != nil {
		return err
	}
	c.Status = container.Running
	return nil
}

// Remove requires not-Running unless forced.
func (m *Manager) Remove(id string, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.containers[id]
	if !ok {
		return ErrNotFound{ID: id}
	}
	if c.Status == container.Running && !force {
		return ErrConflict{Message: fmt.Sprintf("container %s is running; stop or force-remove", id)}
	}

	if c.Status == container.Running && force {
		const sigkill = 9
		_ = m.runtime.Signal(c.PID, sigkill)
	}

	c.Status = container.Removing
	delete(m.containers, id)
	return nil
}

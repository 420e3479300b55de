package swarm

import (
	"fmt"
	"sync"
	"time"
)

// Mode is a service's scheduling mode (spec.md glossary: Service).
type Mode struct {
	Replicated    *int // nil unless mode is Replicated
	Global        bool
	ReplicatedJob *int
	GlobalJob     bool
}

// TaskTemplate is the per-task container spec a service stamps out.
type TaskTemplate struct {
	Image   string
	Cmd     []string
	Env     map[string]string
}

// Spec is a service's declarative desired state.
type Spec struct {
	Name     string
	Template TaskTemplate
	Mode     Mode
}

// UpdateStatus tracks an in-flight rolling update.
type UpdateStatus struct {
	State     string // "updating", "completed", "rollback_started", ...
	StartedAt time.Time
}

// Service is a swarm-managed declarative workload.
type Service struct {
	ID           string
	Spec         Spec
	PreviousSpec *Spec
	Version      int
	UpdateStatus *UpdateStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TaskState is the task lifecycle machine from spec.md §3/§4.K.
type TaskState string

const (
	TaskNew       TaskState = "New"
	TaskPending   TaskState = "Pending"
	TaskAssigned  TaskState = "Assigned"
	TaskAccepted  TaskState = "Accepted"
	TaskPreparing TaskState = "Preparing"
	TaskReady     TaskState = "Ready"
	TaskStarting  TaskState = "Starting"
	TaskRunning   TaskState = "Running"
	TaskComplete  TaskState = "Complete"
	TaskFailed    TaskState = "Failed"
	TaskShutdown  TaskState = "Shutdown"
	TaskRejected  TaskState = "Rejected"
	TaskRemove    TaskState = "Remove"
	TaskOrphaned  TaskState = "Orphaned"
)

// IsTerminal reports whether a task state needs no further reconciliation.
func IsTerminal(s TaskState) bool {
	switch s {
	case TaskComplete, TaskFailed, TaskRejected, TaskRemove, TaskOrphaned:
		return true
	default:
		return false
	}
}

// ContainerStatus is the task's record of the container backing it.
type ContainerStatus struct {
	ContainerID string
	ExitCode    *int
}

// Task is one scheduled instance of a service's template.
type Task struct {
	ID              string
	ServiceID       string
	Slot            *int
	NodeID          string
	State           TaskState
	DesiredState    TaskState
	Version         int
	ContainerStatus ContainerStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ServiceManager owns services and their tasks, mirroring the single-
// RWMutex-over-map shape used throughout the rest of the daemon.
type ServiceManager struct {
	mu       sync.RWMutex
	services map[string]*Service
	tasks    map[string]*Task // keyed by task id
}

func NewServiceManager() *ServiceManager {
	return &ServiceManager{services: map[string]*Service{}, tasks: map[string]*Task{}}
}

// CreateService inserts a new service at version.index = 1 (spec.md §4.K).
func (m *ServiceManager) CreateService(id string, spec Spec) (*Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.services[id]; exists {
		return nil, fmt.Errorf("service %s already exists", id)
	}
	now := time.Now()
	s := &Service{ID: id, Spec: spec, Version: 1, CreatedAt: now, UpdatedAt: now}
	m.services[id] = s
	return s, nil
}

// UpdateService preserves previous_spec, increments version, and attaches
// an UpdateStatus{state: updating}.
func (m *ServiceManager) UpdateService(id string, newSpec Spec) (*Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[id]
	if !ok {
		return nil, fmt.Errorf("no such service: %s", id)
	}
	prev := s.Spec
	s.PreviousSpec = &prev
	s.Spec = newSpec
	s.Version++
	s.UpdateStatus = &UpdateStatus{State: "updating", StartedAt: time.Now()}
	s.UpdatedAt = time.Now()
	return s, nil
}

// Rollback swaps spec and previous_spec, incrementing version again.
func (m *ServiceManager) Rollback(id string) (*Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[id]
	if !ok {
		return nil, fmt.Errorf("no such service: %s", id)
	}
	if s.PreviousSpec == nil {
		return nil, fmt.Errorf("service %s has no previous spec to roll back to", id)
	}
	current := s.Spec
	s.Spec = *s.PreviousSpec
	s.PreviousSpec = &current
	s.Version++
	s.UpdateStatus = &UpdateStatus{State: "rollback_started", StartedAt: time.Now()}
	s.UpdatedAt = time.Now()
	return s, nil
}

// ScaleService rewrites the replica count inside a Replicated mode and
// increments version.
func (m *ServiceManager) ScaleService(id string, replicas int) (*Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[id]
	if !ok {
		return nil, fmt.Errorf("no such service: %s", id)
	}
	if s.Spec.Mode.Replicated == nil {
		return nil, fmt.Errorf("service %s is not in Replicated mode", id)
	}
	s.Spec.Mode.Replicated = &replicas
	s.Version++
	s.UpdatedAt = time.Now()
	return s, nil
}

func (m *ServiceManager) GetService(id string) (*Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.services[id]
	if !ok {
		return nil, fmt.Errorf("no such service: %s", id)
	}
	return s, nil
}

// CreateTask inserts a task in state New, desired state Running.
func (m *ServiceManager) CreateTask(id, serviceID string, slot *int) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.services[serviceID]; !ok {
		return nil, fmt.Errorf("no such service: %s", serviceID)
	}
	now := time.Now()
	t := &Task{
		ID: id, ServiceID: serviceID, Slot: slot,
		State: TaskNew, DesiredState: TaskRunning, Version: 1,
		CreatedAt: now, UpdatedAt: now,
	}
	m.tasks[id] = t
	return t, nil
}

// AssignTask sets node_id and transitions New/Pending -> Assigned.
func (m *ServiceManager) AssignTask(id, nodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("no such task: %s", id)
	}
	if t.State != TaskNew && t.State != TaskPending {
		return fmt.Errorf("task %s is %s, cannot assign", id, t.State)
	}
	t.NodeID = nodeID
	t.State = TaskAssigned
	t.UpdatedAt = time.Now()
	return nil
}

// RunTask sets container_status.container_id and transitions to Running.
func (m *ServiceManager) RunTask(id, containerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("no such task: %s", id)
	}
	t.ContainerStatus.ContainerID = containerID
	t.State = TaskRunning
	t.UpdatedAt = time.Now()
	return nil
}

func (m *ServiceManager) TasksForService(serviceID string) []*Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*Task{}
	for _, t := range m.tasks {
		if t.ServiceID == serviceID {
			out = append(out, t)
		}
	}
	return out
}

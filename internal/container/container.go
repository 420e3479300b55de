// Package container defines the typed container configuration and status
// model (component G). internal/containermgr owns the lifecycle operations
// over this type.
package container

import "time"

// Status is one of the lifecycle states in spec.md §3.
type Status string

const (
	Creating Status = "Creating"
	Created  Status = "Created"
	Running  Status = "Running"
	Paused   Status = "Paused"
	Stopped  Status = "Stopped"
	Exited   Status = "Exited"
	Removing Status = "Removing"
	Dead     Status = "Dead"
)

// transitions is the directed graph from spec.md §3: Creating -> Created ->
// Running <-> Paused; Running -> Stopped/Exited; {Created, Stopped, Exited}
// -> Removing; any -> Dead.
var transitions = map[Status]map[Status]bool{
	Creating: {Created: true, Dead: true},
	Created:  {Running: true, Removing: true, Dead: true},
	Running:  {Paused: true, Stopped: true, Exited: true, Dead: true},
	Paused:   {Running: true, Dead: true},
	Stopped:  {Removing: true, Dead: true},
	Exited:   {Removing: true, Dead: true},
	Removing: {Dead: true},
	Dead:     {},
}

// CanTransition reports whether from -> to is an edge in the lifecycle
// graph.
func CanTransition(from, to Status) bool {
	if to == Dead {
		return true
	}
	return transitions[from][to]
}

// PortBinding maps a container port/protocol to a host port.
type PortBinding struct {
	ContainerPort uint16
	Protocol      string
	HostPort      uint16
	HostIP        string
}

// ResourceLimits mirrors the CgroupConfig fields named in spec.md §4.H.
type ResourceLimits struct {
	MemoryLimitBytes     int64
	MemoryReservation    int64
	MemorySwapBytes      int64
	CPUShares            int64
	CPUQuotaUs           int64
	CPUPeriodUs          int64
	CPUs                 float64
	CpusetCPUs           string
	CpusetMems           string
	PidsLimit            int64
	BlkioWeight          int64
	OOMKillDisable       bool
}

// Config is the container record described in spec.md §3.
type Config struct {
	ID         string
	Name       string
	ImageRef   string
	Cmd        []string
	Entrypoint []string
	Env        map[string]string
	WorkingDir string
	User       string
	Ports      []PortBinding
	Volumes    []VolumeMount
	Labels     map[string]string
	Hostname   string
	NetworkMode string
	Privileged bool
	ReadOnlyRootfs bool
	Resources  ResourceLimits

	Status Status

	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
	ExitCode   *int
	PID        int
}

// VolumeMount binds a host path or named volume into the container.
type VolumeMount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// Package network implements the abstract NetworkDriver and IP allocator
// spec.md §1 calls out: bridge/veth device programming itself is a
// Non-goal, but the IP-allocation and endpoint-lifecycle model is fully
// specified and implemented here.
package network

import (
	"fmt"
	"net"
	"sync"
)

// DriverKind mirrors the teacher's NetworkSvc surface (local/bridge/host/
// none), generalized from banksean-sand's macOS `container network`
// wrapper into an in-process abstraction instead of a CLI shell-out.
type DriverKind string

const (
	DriverBridge DriverKind = "bridge"
	DriverHost   DriverKind = "host"
	DriverNone   DriverKind = "none"
	DriverLocal  DriverKind = "local"
)

// Network is one network record: a name, driver, and subnet.
type Network struct {
	ID     string
	Name   string
	Driver DriverKind
	Subnet string // CIDR, e.g. "172.17.0.0/16"
}

// Endpoint attaches one container to one network with an allocated IP.
type Endpoint struct {
	ContainerID string
	NetworkID   string
	IPAddress   net.IP
}

// Manager owns the network table and one IPAllocator per network,
// following the same RWMutex-over-map shape as internal/containermgr.
type Manager struct {
	mu         sync.RWMutex
	networks   map[string]*Network
	allocators map[string]*IPAllocator
	endpoints  map[string]*Endpoint // keyed by containerID+"/"+networkID
}

func NewManager() *Manager {
	return &Manager{
		networks:   map[string]*Network{},
		allocators: map[string]*IPAllocator{},
		endpoints:  map[string]*Endpoint{},
	}
}

// Create registers a new network and, for driver kinds that need one,
// its IP allocator.
func (m *Manager) Create(id, name string, driver DriverKind, subnet string) (*Network, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.networks[id]; exists {
		return nil, fmt.Errorf("network %s already exists", id)
	}

	n := &Network{ID: id, Name: name, Driver: driver, Subnet: subnet}
	m.networks[id] = n

	if driver == DriverBridge || driver == DriverLocal {
		alloc, err := NewIPAllocator(subnet)
		if err != nil {
			delete(m.networks, id)
			return nil, fmt.Errorf("create allocator for %s: %w", subnet, err)
		}
		m.allocators[id] = alloc
	}
	return n, nil
}

func (m *Manager) Get(id string) (*Network, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.networks[id]
	if !ok {
		return nil, fmt.Errorf("no such network: %s", id)
	}
	return n, nil
}

func (m *Manager) List() []*Network {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Network, 0, len(m.networks))
	for _, n := range m.networks {
		out = append(out, n)
	}
	return out
}

func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.networks[id]; !ok {
		return fmt.Errorf("no such network: %s", id)
	}
	delete(m.networks, id)
	delete(m.allocators, id)
	return nil
}

// Connect allocates an IP for containerID on networkID and records the
// endpoint.
func (m *Manager) Connect(containerID, networkID string) (*Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.networks[networkID]; !ok {
		return nil, fmt.Errorf("no such network: %s", networkID)
	}
	alloc, ok := m.allocators[networkID]
	if !ok {
		return nil, fmt.Errorf("network %s has no address space to allocate from", networkID)
	}
	ip, err := alloc.Allocate()
	if err != nil {
		return nil, fmt.Errorf("allocate address on %s: %w", networkID, err)
	}

	ep := &Endpoint{ContainerID: containerID, NetworkID: networkID, IPAddress: ip}
	m.endpoints[endpointKey(containerID, networkID)] = ep
	return ep, nil
}

// Disconnect releases containerID's address back to networkID's
// allocator.
func (m *Manager) Disconnect(containerID, networkID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := endpointKey(containerID, networkID)
	ep, ok := m.endpoints[key]
	if !ok {
		return fmt.Errorf("container %s is not connected to %s", containerID, networkID)
	}
	if alloc, ok := m.allocators[networkID]; ok {
		alloc.Release(ep.IPAddress)
	}
	delete(m.endpoints, key)
	return nil
}

func endpointKey(containerID, networkID string) string {
	return containerID + "/" + networkID
}

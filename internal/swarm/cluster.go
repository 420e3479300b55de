package swarm

import (
	"fmt"
	"sync"
	"time"
)

// ClusterState is one of the states spec.md §4.K names.
type ClusterState string

const (
	ClusterInactive ClusterState = "Inactive"
	ClusterPending  ClusterState = "Pending"
	ClusterActive   ClusterState = "Active"
	ClusterLocked   ClusterState = "Locked"
	ClusterError    ClusterState = "Error"
)

// NodeState mirrors the glossary's Node record; the node's role is a Role
// (tokens.go).
type NodeState string

const (
	NodeUnknown      NodeState = "Unknown"
	NodeDown         NodeState = "Down"
	NodeReady        NodeState = "Ready"
	NodeDisconnected NodeState = "Disconnected"
)

// Availability is a node's scheduling eligibility.
type Availability string

const (
	AvailabilityActive Availability = "active"
	AvailabilityPause  Availability = "pause"
	AvailabilityDrain  Availability = "drain"
)

// Node is one cluster member.
type Node struct {
	ID           string
	Hostname     string
	Role         Role
	State        NodeState
	Availability Availability
	Labels       map[string]string
	IsLeader     bool
	Version      int
}

// Cluster owns node membership, join/unlock tokens, and state.
type Cluster struct {
	mu sync.RWMutex

	ID          string
	State       ClusterState
	AutoLock    bool
	UnlockKey   string
	WorkerToken string
	ManagerToken string
	UpdatedAt   time.Time

	nodes map[string]*Node
}

// InitConfig configures cluster.init.
type InitConfig struct {
	AutoLock bool
	Hostname string
}

// Init creates a new single-node cluster: a random id, two distinct join
// tokens, and — if auto-lock is requested — an unlock key. The local node
// is added as the initial manager and leader (spec.md §4.K).
func Init(cfg InitConfig) (*Cluster, error) {
	id, err := randomHex(16)
	if err != nil {
		return nil, fmt.Errorf("generate cluster id: %w", err)
	}

	workerToken, err := GenerateJoinToken(id, RoleWorker)
	if err != nil {
		return nil, err
	}
	managerToken, err := GenerateJoinToken(id, RoleManager)
	if err != nil {
		return nil, err
	}

	c := &Cluster{
		ID:           id,
		State:        ClusterActive,
		AutoLock:     cfg.AutoLock,
		WorkerToken:  workerToken,
		ManagerToken: managerToken,
		UpdatedAt:    time.Now(),
		nodes:        map[string]*Node{},
	}

	if cfg.AutoLock {
		key, err := GenerateUnlockKey()
		if err != nil {
			return nil, err
		}
		c.UnlockKey = key
	}

	nodeID, err := randomHex(10)
	if err != nil {
		return nil, err
	}
	c.nodes[nodeID] = &Node{
		ID: nodeID, Hostname: cfg.Hostname, Role: RoleManager,
		State: NodeReady, Availability: AvailabilityActive, IsLeader: true, Version: 1,
	}
	return c, nil
}

// Join adds a node to the cluster, deriving its role from the token.
func (c *Cluster) Join(token, nodeID, hostname string) (Role, error) {
	_, role, err := ParseJoinToken(token)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes[nodeID] = &Node{
		ID: nodeID, Hostname: hostname, Role: role,
		State: NodeReady, Availability: AvailabilityActive, Version: 1,
	}
	c.UpdatedAt = time.Now()
	return role, nil
}

// Leave removes a node, refusing to strand the cluster without a manager
// unless forced.
func (c *Cluster) Leave(nodeID string, force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.nodes[nodeID]
	if !ok {
		return fmt.Errorf("no such node: %s", nodeID)
	}

	if node.Role == RoleManager && !force {
		remaining := 0
		for _, n := range c.nodes {
			if n.ID != nodeID && n.Role == RoleManager {
				remaining++
			}
		}
		if remaining == 0 {
			return fmt.Errorf("cannot remove the last manager without force")
		}
	}
	delete(c.nodes, nodeID)
	c.UpdatedAt = time.Now()
	return nil
}

// RotateToken replaces a role's join token, invalidating all outstanding
// invitations for that role.
func (c *Cluster) RotateToken(role Role) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	token, err := GenerateJoinToken(c.ID, role)
	if err != nil {
		return "", err
	}
	switch role {
	case RoleWorker:
		c.WorkerToken = token
	case RoleManager:
		c.ManagerToken = token
	}
	c.UpdatedAt = time.Now()
	return token, nil
}

// RotateUnlockKey replaces the auto-lock unlock key.
func (c *Cluster) RotateUnlockKey() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, err := GenerateUnlockKey()
	if err != nil {
		return "", err
	}
	c.UnlockKey = key
	c.UpdatedAt = time.Now()
	return key, nil
}

// Lock requires auto-lock to be enabled.
func (c *Cluster) Lock() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.AutoLock {
		return fmt.Errorf("auto-lock is not enabled for this cluster")
	}
	c.State = ClusterLocked
	return nil
}

// Unlock matches key against the stored unlock key and transitions
// Locked -> Active.
func (c *Cluster) Unlock(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State != ClusterLocked {
		return fmt.Errorf("cluster is not locked")
	}
	if key != c.UnlockKey {
		return fmt.Errorf("incorrect unlock key")
	}
	c.State = ClusterActive
	return nil
}

func (c *Cluster) Nodes() []*Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Node, 0, len(c.nodes))
	for _, n := range c.nodes {
		out = append(out, n)
	}
	return out
}

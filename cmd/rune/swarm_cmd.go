package main

import (
	"fmt"
	"os"

	"github.com/evoker-industries/rune/internal/swarm"
)

// SwarmCmd covers cluster bootstrap. Unlike container/image operations,
// cluster membership is not yet daemon-resident (internal/daemon.Deps only
// carries the service-level *swarm.ServiceManager, not *swarm.Cluster), so
// each invocation here operates on a cluster initialized fresh for the
// command's lifetime — enough to exercise token generation and the
// init/join state machine, but not a substitute for a persisted swarm
// control plane.
type SwarmCmd struct {
	Init SwarmInitCmd `cmd:"" help:"initialize a new single-node swarm"`
}

type SwarmInitCmd struct {
	AutoLock bool `help:"require an unlock key after every manager restart"`
}

func (c *SwarmInitCmd) Run(cctx *Context) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	cluster, err := swarm.Init(swarm.InitConfig{AutoLock: c.AutoLock, Hostname: hostname})
	if err != nil {
		return fmt.Errorf("init swarm: %w", err)
	}

	fmt.Printf("Swarm initialized: cluster %s\n", cluster.ID)
	fmt.Printf("Manager join token: %s\n", cluster.ManagerToken)
	fmt.Printf("Worker join token:  %s\n", cluster.WorkerToken)
	if cluster.UnlockKey != "" {
		fmt.Printf("Unlock key: %s\n", cluster.UnlockKey)
	}
	return nil
}

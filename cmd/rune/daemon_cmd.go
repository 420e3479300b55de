package main

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"syscall"
	"time"
)

// DaemonCmd mirrors the teacher's own DaemonCmd shape (cmd/sand/daemon_cmd.go):
// start/stop/restart/status over the same unix-socket client every other
// subcommand uses.
type DaemonCmd struct {
	Action string `arg:"" optional:"" default:"status" enum:"start,stop,restart,status" help:"start, stop, restart, or status (default)"`
}

func (c *DaemonCmd) Run(cctx *Context) error {
	ctx := context.Background()
	switch c.Action {
	case "start":
		return c.start(ctx, cctx)
	case "stop":
		return c.stop(ctx, cctx)
	case "restart":
		if err := c.stop(ctx, cctx); err != nil {
			fmt.Printf("daemon was not stopped: %v\n", err)
		}
		return c.start(ctx, cctx)
	default:
		return c.status(ctx, cctx)
	}
}

func (c *DaemonCmd) status(ctx context.Context, cctx *Context) error {
	if err := cctx.Client.Ping(ctx); err != nil {
		fmt.Println("daemon is not running")
		return nil
	}
	fmt.Println("daemon is running")
	return nil
}

func (c *DaemonCmd) stop(ctx context.Context, cctx *Context) error {
	if err := cctx.Client.Ping(ctx); err != nil {
		fmt.Println("daemon is not running")
		return nil
	}
	// The daemon has no remote shutdown endpoint in spec.md §6's surface
	// (unlike the teacher's /shutdown); stopping it is an operator action
	// (signal the process), which this command cannot do without a PID.
	return fmt.Errorf("stop the daemon process directly (e.g. via its pidfile or process manager)")
}

func (c *DaemonCmd) start(ctx context.Context, cctx *Context) error {
	if err := cctx.Client.Ping(ctx); err == nil {
		fmt.Println("daemon is already running")
		return nil
	}

	cmd := exec.Command("runed", "-data-dir", cctx.DataDir)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		conn, err := net.DialTimeout("unix", cctx.SocketPath, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			fmt.Println("daemon started")
			return nil
		}
	}
	return fmt.Errorf("daemon failed to start")
}

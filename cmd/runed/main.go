// Command runed is the daemon process: it owns the unix socket, the
// container/image/network/volume/swarm state, and re-execs itself under a
// hidden sentinel argv to perform namespace/cgroup setup the normal
// os/exec API cannot express (internal/runtime's self-reexec design).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/evoker-industries/rune/internal/configstore"
	"github.com/evoker-industries/rune/internal/containermgr"
	"github.com/evoker-industries/rune/internal/daemon"
	"github.com/evoker-industries/rune/internal/image"
	"github.com/evoker-industries/rune/internal/network"
	"github.com/evoker-industries/rune/internal/registry/storage"
	"github.com/evoker-industries/rune/internal/runtime"
	"github.com/evoker-industries/rune/internal/swarm"
	"github.com/evoker-industries/rune/internal/volume"
)

func main() {
	// Must run before any flag parsing or daemon setup: this is the
	// re-exec entry point internal/runtime.Start launches the process
	// under, not a normal daemon invocation.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case runtime.ReexecArg:
			runtime.RunInit()
			return
		case runtime.ExecReexecArg:
			runtime.RunExecInit()
			return
		}
	}

	dataDir := flag.String("data-dir", defaultDataDir(), "directory for daemon state (socket, lockfile, images db, volumes, rootfs cache)")
	logLevel := flag.String("log-level", "info", "debug, info, warn, or error")
	flag.Parse()

	initSlog(*logLevel)

	if err := run(*dataDir); err != nil {
		slog.Error("runed exiting", "error", err)
		os.Exit(1)
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/var/lib/rune"
	}
	return filepath.Join(home, ".rune")
}

func initSlog(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func run(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir %s: %w", dataDir, err)
	}

	registryStore := storage.New(filepath.Join(dataDir, "registry"))

	imageStore, err := image.NewStore(filepath.Join(dataDir, "images.db"), registryStore)
	if err != nil {
		return fmt.Errorf("open image store: %w", err)
	}
	defer imageStore.Close()

	rootfsCache := filepath.Join(dataDir, "rootfs")
	rt := runtime.New(func(imageRef string) (string, error) {
		return imageStore.ResolveRootfs(imageRef, registryStore, rootfsCache)
	})

	volumes, err := volume.NewManager(filepath.Join(dataDir, "volumes"))
	if err != nil {
		return fmt.Errorf("open volume manager: %w", err)
	}

	deps := daemon.Deps{
		Containers: containermgr.New(rt),
		Images:     imageStore,
		Networks:   network.NewManager(),
		Volumes:    volumes,
		Configs:    configstore.NewStore(),
		Secrets:    configstore.NewStore(),
		Swarm:      swarm.NewServiceManager(),
	}

	d := daemon.New(dataDir, deps)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return d.Serve(ctx)
}

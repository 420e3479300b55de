// Command rune is the client CLI: it auto-starts runed if not already
// running, then drives it over the daemon's unix socket. Command-tree
// wiring (kong, auto-daemon-start) is grounded directly on the teacher's
// cmd/sand/main.go, with kong-yaml swapped in for kong.JSON and Docker/
// Compose-flavored subcommands in place of sandbox ones.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	kongyaml "github.com/alecthomas/kong-yaml"

	"github.com/evoker-industries/rune/internal/daemonclient"
)

// Context is threaded into every subcommand's Run, mirroring the teacher's
// own Context struct in cmd/sand/main.go.
type Context struct {
	ctx        context.Context
	DataDir    string
	SocketPath string
	Client     *daemonclient.Client
}

type CLI struct {
	DataDir  string `default:"" placeholder:"<dir>" help:"directory for daemon state (socket, lockfile, images db); leave unset to use ~/.rune"`
	LogLevel string `default:"info" placeholder:"<debug|info|warn|error>" help:"logging level"`

	Run      RunCmd      `cmd:"" help:"create and start a container"`
	Ps       PsCmd       `cmd:"" help:"list containers"`
	Stop     StopCmd     `cmd:"" help:"stop a running container"`
	Rm       RmCmd       `cmd:"" help:"remove a container"`
	Images   ImagesCmd   `cmd:"" help:"list images"`
	Build    BuildCmd    `cmd:"" help:"build an image from a build file"`
	Compose  ComposeCmd  `cmd:"" help:"bring up or down a compose project"`
	Swarm    SwarmCmd    `cmd:"" help:"manage swarm cluster membership"`
	Registry RegistryCmd `cmd:"" help:"serve the OCI distribution API"`
	Daemon   DaemonCmd   `cmd:"" help:"start, stop, or check the rune daemon"`
	Version  VersionCmd  `cmd:"" help:"print version information"`
}

const description = `Rune — a small container engine: build, run, and compose containers on Linux.`

func appDataDir(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	dir := filepath.Join(home, ".rune")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create data directory %s: %w", dir, err)
	}
	return dir, nil
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

func main() {
	var cli CLI

	kctx := kong.Parse(&cli,
		kong.Configuration(kongyaml.Loader, ".rune.yaml", "~/.rune.yaml"),
		kong.Description(description))

	initSlog(cli.LogLevel)

	dataDir, err := appDataDir(cli.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	socketPath := filepath.Join(dataDir, "rune.sock")

	// Only container/image operations actually need the daemon; build,
	// compose, swarm, and registry-serve all drive on-disk state or their
	// own HTTP server directly. Daemon/version commands manage the
	// daemon's lifecycle themselves and must not trigger a recursive
	// auto-start.
	cmd := kctx.Command()
	needsDaemon := strings.HasPrefix(cmd, "run") || strings.HasPrefix(cmd, "ps") ||
		strings.HasPrefix(cmd, "stop") || strings.HasPrefix(cmd, "rm") || strings.HasPrefix(cmd, "images")
	if needsDaemon {
		if err := daemonclient.EnsureDaemon(context.Background(), socketPath, func() error {
			return startDaemonDetached(dataDir, cli.LogLevel)
		}); err != nil {
			fmt.Fprintf(os.Stderr, "daemon not running, and failed to start it: %v\n", err)
			os.Exit(1)
		}
	}

	runCtx := &Context{
		ctx:        context.Background(),
		DataDir:    dataDir,
		SocketPath: socketPath,
		Client:     daemonclient.New(socketPath),
	}

	err = kctx.Run(runCtx)
	kctx.FatalIfErrorf(err)
}

// startDaemonDetached launches runed as a background process, matching the
// teacher's EnsureDaemon/restartDaemon pattern of re-execing with
// SysProcAttr.Setpgid to detach from the parent's process group.
func startDaemonDetached(dataDir, logLevel string) error {
	exe, err := exec.LookPath("runed")
	if err != nil {
		exe = filepath.Join(filepath.Dir(os.Args[0]), "runed")
	}

	cmd := exec.Command(exe, "-data-dir", dataDir, "-log-level", logLevel)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	return cmd.Start()
}

// Package daemon implements the daemon HTTP surface (component L):
// unix-socket listener, flock PID lockfile, graceful shutdown, and the
// gorilla/mux route table wiring every other component's operations
// together. Grounded directly on the teacher's Mux/MuxClient
// (mux_server.go/mux_client.go), with routing promoted from a bare
// http.ServeMux to gorilla/mux so /containers/{id}/{action}-shaped routes
// can extract path parameters.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gorilla/mux"

	"github.com/evoker-industries/rune/internal/configstore"
	"github.com/evoker-industries/rune/internal/containermgr"
	"github.com/evoker-industries/rune/internal/image"
	"github.com/evoker-industries/rune/internal/network"
	"github.com/evoker-industries/rune/internal/swarm"
	"github.com/evoker-industries/rune/internal/telemetry"
	"github.com/evoker-industries/rune/internal/volume"
)

const (
	apiPrefix         = "/v1.43"
	defaultSocketFile = "rune.sock"
	defaultLockFile   = "rune.lock"
)

// Deps are every component the daemon's HTTP surface dispatches into.
type Deps struct {
	Containers *containermgr.Manager
	Images     *image.Store
	Networks   *network.Manager
	Volumes    *volume.Manager
	Configs    *configstore.Store
	Secrets    *configstore.Store
	Swarm      *swarm.ServiceManager
}

// Daemon owns the unix-socket listener and lockfile, mirroring the
// teacher's Mux type field-for-field.
type Daemon struct {
	DataDir    string
	SocketPath string

	deps Deps

	listener      net.Listener
	lockFile      *os.File
	shutdown      chan struct{}
	shutdownTrace func(context.Context) error
}

func New(dataDir string, deps Deps) *Daemon {
	return &Daemon{
		DataDir:    dataDir,
		SocketPath: filepath.Join(dataDir, defaultSocketFile),
		deps:       deps,
	}
}

// Serve acquires the lockfile, opens the unix socket, and blocks until
// shutdown (signal or explicit Shutdown call), exactly the shape of the
// teacher's Mux.ServeUnix/startDaemonServer pair.
func (d *Daemon) Serve(ctx context.Context) error {
	lockFilePath := filepath.Join(d.DataDir, defaultLockFile)
	slog.InfoContext(ctx, "daemon starting", "pid", os.Getpid(), "socket", d.SocketPath, "lockfile", lockFilePath)

	lockFile, err := acquireLock(lockFilePath)
	if err != nil {
		return err
	}
	d.lockFile = lockFile

	shutdownTrace, err := telemetry.Setup(ctx, "rune-daemon", os.Getenv)
	if err != nil {
		slog.WarnContext(ctx, "tracing disabled", "error", err)
		shutdownTrace = func(context.Context) error { return nil }
	}
	d.shutdownTrace = shutdownTrace

	os.Remove(d.SocketPath)
	listener, err := net.Listen("unix", d.SocketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", d.SocketPath, err)
	}
	if err := os.Chmod(d.SocketPath, 0o600); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	d.listener = listener
	d.shutdown = make(chan struct{})

	go d.waitForShutdown(ctx)

	server := &http.Server{Handler: d.router()}
	go func() {
		if err := server.Serve(d.listener); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "daemon http server exited", "error", err)
		}
	}()

	<-d.shutdown
	return nil
}

func (d *Daemon) waitForShutdown(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		d.Shutdown(ctx)
	case <-sigChan:
		d.Shutdown(ctx)
	case <-d.shutdown:
	}
}

// Shutdown closes the listener, removes the socket file, and releases the
// lockfile — the same cleanup order as the teacher's Mux.Shutdown.
func (d *Daemon) Shutdown(ctx context.Context) {
	slog.InfoContext(ctx, "daemon shutting down", "pid", os.Getpid())

	if d.listener != nil {
		d.listener.Close()
	}
	os.Remove(d.SocketPath)

	if d.lockFile != nil {
		syscall.Flock(int(d.lockFile.Fd()), syscall.LOCK_UN)
		d.lockFile.Close()
		lockFilePath := filepath.Join(d.DataDir, defaultLockFile)
		if err := os.Remove(lockFilePath); err != nil {
			slog.ErrorContext(ctx, "remove lockfile", "error", err, "path", lockFilePath)
		}
	}

	if d.shutdownTrace != nil {
		if err := d.shutdownTrace(ctx); err != nil {
			slog.ErrorContext(ctx, "shutdown tracer provider", "error", err)
		}
	}

	select {
	case <-d.shutdown:
		// already closed
	default:
		close(d.shutdown)
	}
}

func acquireLock(lockFile string) (*os.File, error) {
	file, err := os.OpenFile(lockFile, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lockfile %s: %w", lockFile, err)
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		return nil, fmt.Errorf("daemon already running: %w", err)
	}
	file.Truncate(0)
	fmt.Fprintf(file, "%d", os.Getpid())
	return file, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"message": err.Error()})
}

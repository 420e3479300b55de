// Package runtime implements the native container runtime (component H):
// namespace creation, cgroup resource control, rootfs pivot, and process
// lifecycle, driven directly through golang.org/x/sys/unix since the
// pivot_root/mount/setns steps below it have no os/exec equivalent
// (spec.md §4.H).
//
// Go cannot safely fork() a running process without exec'ing immediately
// (goroutines and the scheduler do not survive a bare fork), so namespace
// entry and rootfs setup happen in a re-exec'd copy of the daemon binary
// itself: Start launches /proc/self/exe with a hidden "__rune_init__"
// argv[1], clone flags set via SysProcAttr.Cloneflags, and a sync pipe
// passed through ExtraFiles. RunInit (init.go) is that re-exec's entry
// point; it performs the REDESIGNED uid/gid map handshake, mounts, and
// pivot_root before execve-ing the container's real command.
package runtime

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/evoker-industries/rune/internal/container"
)

// ReexecArg is the argv[1] sentinel that tells main() to dispatch into
// RunInit instead of the normal daemon/CLI startup path.
const ReexecArg = "__rune_init__"

// InitPayload is what Start serializes onto the child's spec-carrying file
// descriptor: everything RunInit needs to finish bringing the container
// process up once it is running inside its new namespaces.
type InitPayload struct {
	RootfsPath string              `json:"rootfs_path"`
	Cmd        []string            `json:"cmd"`
	Env        []string            `json:"env"`
	WorkingDir string              `json:"working_dir"`
	Hostname   string              `json:"hostname"`
	UID        int                 `json:"uid"`
	GID        int                 `json:"gid"`
	Mounts     []container.VolumeMount `json:"mounts"`
}

// Runtime spawns and controls container processes. It satisfies both
// internal/containermgr.Runtime and internal/containermgr.ExecRuntime.
type Runtime struct {
	// RootfsResolver returns the prepared, extracted rootfs directory for a
	// container's image reference. Supplied by the daemon wiring layer so
	// this package stays independent of internal/image.
	RootfsResolver func(imageRef string) (string, error)
}

func New(rootfsResolver func(imageRef string) (string, error)) *Runtime {
	return &Runtime{RootfsResolver: rootfsResolver}
}

// Start implements containermgr.Runtime: it brings up a new container
// process in fresh namespaces and returns its host-visible PID.
func (r *Runtime) Start(cfg *container.Config) (int, error) {
	rootfs, err := r.RootfsResolver(cfg.ImageRef)
	if err != nil {
		return 0, fmt.Errorf("resolve rootfs for %s: %w", cfg.ImageRef, err)
	}

	kinds := []NamespaceKind{NamespaceMount, NamespaceUTS, NamespaceIPC, NamespacePID, NamespaceCgroup}
	if !cfg.Privileged {
		kinds = append(kinds, NamespaceNet, NamespaceUser)
	}

	uid, gid, err := resolveUser(cfg.User, rootfs)
	if err != nil {
		return 0, fmt.Errorf("resolve user %q: %w", cfg.User, err)
	}

	payload := InitPayload{
		RootfsPath: rootfs,
		Cmd:        effectiveCmd(cfg),
		Env:        envSlice(cfg.Env),
		WorkingDir: cfg.WorkingDir,
		Hostname:   cfg.Hostname,
		UID:        uid,
		GID:        gid,
		Mounts:     cfg.Volumes,
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal init payload: %w", err)
	}

	syncParent, syncChild, err := os.Pipe()
	if err != nil {
		return 0, fmt.Errorf("create sync pipe: %w", err)
	}
	defer syncParent.Close()

	payloadR, payloadW, err := os.Pipe()
	if err != nil {
		return 0, fmt.Errorf("create payload pipe: %w", err)
	}
	defer payloadR.Close()

	self, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("resolve self executable: %w", err)
	}

	cmd := exec.Command(self, ReexecArg)
	cmd.ExtraFiles = []*os.File{syncChild, payloadR}
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: combinedFlags(kinds),
	}
	if contains(kinds, NamespaceUser) {
		cmd.SysProcAttr.UidMappings = []syscall.SysProcIDMap{{ContainerID: 0, HostID: os.Getuid(), Size: 1}}
		cmd.SysProcAttr.GidMappings = []syscall.SysProcIDMap{{ContainerID: 0, HostID: os.Getgid(), Size: 1}}
		cmd.SysProcAttr.GidMappingsEnableSetgroups = false
	}

	if err := cmd.Start(); err != nil {
		syncChild.Close()
		payloadW.Close()
		return 0, fmt.Errorf("start container init: %w", err)
	}
	syncChild.Close()

	if _, err := payloadW.Write(payloadJSON); err != nil {
		return 0, fmt.Errorf("write init payload: %w", err)
	}
	payloadW.Close()

	// REDESIGNED uid/gid map handshake (spec.md §7): no sleep. With a user
	// namespace, os/exec writes "deny" to setgroups and the uid_map/gid_map
	// from the UidMappings/GidMappings above before the child runs, holding
	// it on its own pipe until they are written. RunInit then blocks reading
	// a byte from the sync pipe; the parent writes that byte here, and the
	// child only proceeds to mount/pivot_root/execve once it reads it.
	if _, err := syncParent.Write([]byte{0}); err != nil {
		return 0, fmt.Errorf("signal init to proceed: %w", err)
	}

	ctl := newCgroupController(cfg.ID)
	if err := ctl.Apply(cfg.Resources); err != nil {
		return 0, fmt.Errorf("apply cgroup limits: %w", err)
	}
	if err := ctl.AddPID(cmd.Process.Pid); err != nil {
		return 0, fmt.Errorf("add pid to cgroup: %w", err)
	}

	registerPID(cmd.Process.Pid, cfg.ID)
	go cmd.Wait()

	return cmd.Process.Pid, nil
}

// writeIDMaps writes a single-entry uid_map/gid_map, mapping the
// container's root (0) onto the daemon's own uid/gid on the host — the
// same single-entry mapping most rootless container runtimes default to.
func writeIDMaps(pid, hostUID, hostGID int) error {
	if err := os.WriteFile(fmt.Sprintf("/proc/%d/setgroups", pid), []byte("deny"), 0o644); err != nil {
		return fmt.Errorf("write setgroups: %w", err)
	}
	uidMap := fmt.Sprintf("0 %d 1\n", hostUID)
	if err := os.WriteFile(fmt.Sprintf("/proc/%d/uid_map", pid), []byte(uidMap), 0o644); err != nil {
		return fmt.Errorf("write uid_map: %w", err)
	}
	gidMap := fmt.Sprintf("0 %d 1\n", hostGID)
	if err := os.WriteFile(fmt.Sprintf("/proc/%d/gid_map", pid), []byte(gidMap), 0o644); err != nil {
		return fmt.Errorf("write gid_map: %w", err)
	}
	return nil
}

// resolveUser parses cfg.User (spec.md §4.H step 6: "Drop to target gid then
// uid") into a concrete uid/gid pair. An empty User leaves the process at
// uid/gid 0 (root inside the user namespace), matching the prior default.
// "uid[:gid]" accepts either numeric ids or names, with names looked up
// against the target rootfs's /etc/passwd and /etc/group so a per-image
// user database is honored rather than the host's.
func resolveUser(user, rootfs string) (uid, gid int, err error) {
	if user == "" {
		return 0, 0, nil
	}

	uidPart, gidPart, hasGID := strings.Cut(user, ":")

	uid, err = lookupUID(uidPart, rootfs)
	if err != nil {
		return 0, 0, err
	}

	if hasGID {
		gid, err = lookupGID(gidPart, rootfs)
		if err != nil {
			return 0, 0, err
		}
		return uid, gid, nil
	}

	// No explicit group: use the primary gid from /etc/passwd if the user
	// was named, else default to a matching gid of 0.
	gid, err = primaryGID(uidPart, rootfs)
	if err != nil {
		return 0, 0, err
	}
	return uid, gid, nil
}

func lookupUID(spec, rootfs string) (int, error) {
	if n, err := strconv.Atoi(spec); err == nil {
		return n, nil
	}
	fields, err := findPasswdEntry(spec, rootfs)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(fields[2])
}

func lookupGID(spec, rootfs string) (int, error) {
	if n, err := strconv.Atoi(spec); err == nil {
		return n, nil
	}
	fields, err := findGroupEntry(spec, rootfs)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(fields[2])
}

func primaryGID(uidSpec, rootfs string) (int, error) {
	if _, err := strconv.Atoi(uidSpec); err == nil {
		return 0, nil
	}
	fields, err := findPasswdEntry(uidSpec, rootfs)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(fields[3])
}

// findPasswdEntry returns the colon-separated fields of the named user's
// line in the container image's /etc/passwd.
func findPasswdEntry(name, rootfs string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(rootfs, "etc/passwd"))
	if err != nil {
		return nil, fmt.Errorf("read /etc/passwd for user %q: %w", name, err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Split(line, ":")
		if len(fields) >= 4 && fields[0] == name {
			return fields, nil
		}
	}
	return nil, fmt.Errorf("no such user %q in image", name)
}

// findGroupEntry returns the colon-separated fields of the named group's
// line in the container image's /etc/group.
func findGroupEntry(name, rootfs string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(rootfs, "etc/group"))
	if err != nil {
		return nil, fmt.Errorf("read /etc/group for group %q: %w", name, err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Split(line, ":")
		if len(fields) >= 3 && fields[0] == name {
			return fields, nil
		}
	}
	return nil, fmt.Errorf("no such group %q in image", name)
}

func effectiveCmd(cfg *container.Config) []string {
	if len(cfg.Entrypoint) > 0 {
		return append(append([]string{}, cfg.Entrypoint...), cfg.Cmd...)
	}
	return cfg.Cmd
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// Signal delivers a Unix signal to the container's host-visible PID.
func (r *Runtime) Signal(pid int, sig int) error {
	if err := unix.Kill(pid, unix.Signal(sig)); err != nil {
		return fmt.Errorf("kill pid %d with signal %d: %w", pid, sig, err)
	}
	return nil
}

func (r *Runtime) Pause(pid int) error {
	return pidContainerID(pid).withController(func(c *cgroupController) error { return c.Freeze() })
}

func (r *Runtime) Unpause(pid int) error {
	return pidContainerID(pid).withController(func(c *cgroupController) error { return c.Thaw() })
}

// cgroupHandle resolves a PID back to the container id its cgroup was
// created under, since Pause/Unpause are only given the PID by
// containermgr.Manager.
type cgroupHandle struct{ id string }

func pidContainerID(pid int) cgroupHandle {
	return cgroupHandle{id: lookupPID(pid)}
}

func (h cgroupHandle) withController(fn func(*cgroupController) error) error {
	if h.id == "" {
		return fmt.Errorf("no cgroup registered for this pid")
	}
	return fn(newCgroupController(h.id))
}

// pidToContainerID is populated by Start so Pause/Unpause/Exec can map a
// bare PID back to the cgroup and rootfs it belong to.
var (
	pidMu           sync.Mutex
	pidToContainerID = map[int]string{}
)

func registerPID(pid int, id string) {
	pidMu.Lock()
	defer pidMu.Unlock()
	pidToContainerID[pid] = id
}

func lookupPID(pid int) string {
	pidMu.Lock()
	defer pidMu.Unlock()
	return pidToContainerID[pid]
}

// Exec implements containermgr.ExecRuntime: it joins an already-running
// container's namespaces via setns and execve's cmd inside them.
func (r *Runtime) Exec(containerID string, cmdArgs []string, env []string, tty bool) (int, *os.File, error) {
	return execInNamespaces(containerID, cmdArgs, env, tty)
}

package runtime

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// RunInit is the entry point for the re-exec'd child created by Start. It
// reads its InitPayload from fd 4 (passed via ExtraFiles), blocks on the
// sync pipe at fd 3 until the parent has finished writing uid/gid maps,
// then finishes namespace setup and execve's the container's command.
//
// Call this from main() when os.Args[1] == ReexecArg, before anything else
// touches the filesystem or network.
func RunInit() {
	const (
		syncFD    = 3
		payloadFD = 4
	)
	syncPipe := os.NewFile(syncFD, "sync")
	payloadPipe := os.NewFile(payloadFD, "payload")

	payloadBytes, err := io.ReadAll(payloadPipe)
	if err != nil {
		fatal(fmt.Errorf("read init payload: %w", err))
	}
	payloadPipe.Close()

	var payload InitPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		fatal(fmt.Errorf("unmarshal init payload: %w", err))
	}

	// Block until the parent has written our uid_map/gid_map (if any) and
	// signals us to proceed. This replaces the buggy fixed sleep the
	// original design used: no wall-clock delay, no race.
	buf := make([]byte, 1)
	if _, err := syncPipe.Read(buf); err != nil {
		fatal(fmt.Errorf("wait for parent sync signal: %w", err))
	}
	syncPipe.Close()

	if payload.Hostname != "" {
		if err := unix.Sethostname([]byte(payload.Hostname)); err != nil {
			fatal(fmt.Errorf("sethostname: %w", err))
		}
	}

	if err := prepareRootfs(payload.RootfsPath, func(msg string) { fmt.Fprintln(os.Stderr, "init:", msg) }); err != nil {
		fatal(fmt.Errorf("prepare rootfs: %w", err))
	}

	for _, v := range payload.Mounts {
		if err := mountVolume(v.Source, v.Target, v.ReadOnly); err != nil {
			fatal(fmt.Errorf("mount volume %s: %w", v.Target, err))
		}
	}

	if payload.WorkingDir != "" {
		if err := unix.Chdir(payload.WorkingDir); err != nil {
			fatal(fmt.Errorf("chdir %s: %w", payload.WorkingDir, err))
		}
	}

	if len(payload.Cmd) == 0 {
		fatal(fmt.Errorf("no command to execve"))
	}
	binPath, err := resolveExecutable(payload.Cmd[0])
	if err != nil {
		fatal(fmt.Errorf("resolve %s: %w", payload.Cmd[0], err))
	}

	// spec.md §4.H step 6: drop to the target gid then uid before execve,
	// in that order, so setuid doesn't strip the privilege setgid needs.
	if err := unix.Setgid(payload.GID); err != nil {
		fatal(fmt.Errorf("setgid %d: %w", payload.GID, err))
	}
	if err := unix.Setuid(payload.UID); err != nil {
		fatal(fmt.Errorf("setuid %d: %w", payload.UID, err))
	}

	if err := syscall.Exec(binPath, payload.Cmd, payload.Env); err != nil {
		fatal(fmt.Errorf("execve %s: %w", binPath, err))
	}
}

func resolveExecutable(name string) (string, error) {
	if name[0] == '/' {
		return name, nil
	}
	for _, dir := range []string{"/usr/local/sbin", "/usr/local/bin", "/usr/sbin", "/usr/bin", "/sbin", "/bin"} {
		candidate := dir + "/" + name
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s not found in container PATH", name)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "rune init:", err)
	os.Exit(127)
}

package runtime

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// ExecReexecArg is the argv[1] sentinel for the setns re-exec path, distinct
// from ReexecArg's namespace-creation path.
const ExecReexecArg = "__rune_exec__"

// execNamespaces are joined in the order the kernel requires: user first
// (or the others' subsequent setns calls fail with EPERM), mount last (so
// it doesn't disturb lookups of the earlier namespace files).
var execNamespaces = []string{"user", "uts", "ipc", "net", "pid", "cgroup", "mnt"}

// ExecPayload is what execInNamespaces hands the setns re-exec over its
// payload pipe.
type ExecPayload struct {
	TargetPID int      `json:"target_pid"`
	Cmd       []string `json:"cmd"`
	Env       []string `json:"env"`
}

// execInNamespaces joins containerID's process's namespaces via setns and
// execve's cmd inside them, mirroring the teacher's pty-vs-pipe exec
// branch. tty allocates a pseudo-terminal via github.com/creack/pty;
// otherwise stdio is plain pipes.
func execInNamespaces(containerID string, cmd []string, env []string, tty bool) (int, *os.File, error) {
	targetPID := containerPID(containerID)
	if targetPID == 0 {
		return 0, nil, fmt.Errorf("container %s has no running process", containerID)
	}

	payload, err := json.Marshal(ExecPayload{TargetPID: targetPID, Cmd: cmd, Env: env})
	if err != nil {
		return 0, nil, fmt.Errorf("marshal exec payload: %w", err)
	}

	payloadR, payloadW, err := os.Pipe()
	if err != nil {
		return 0, nil, fmt.Errorf("create exec payload pipe: %w", err)
	}
	defer payloadR.Close()

	self, err := os.Executable()
	if err != nil {
		return 0, nil, fmt.Errorf("resolve self executable: %w", err)
	}

	ecmd := exec.Command(self, ExecReexecArg)
	ecmd.ExtraFiles = []*os.File{payloadR}

	var ptyMaster *os.File
	if tty {
		ptyMaster, err = pty.Start(ecmd)
		if err != nil {
			payloadW.Close()
			return 0, nil, fmt.Errorf("allocate pty for exec: %w", err)
		}
	} else {
		ecmd.Stdin, ecmd.Stdout, ecmd.Stderr = os.Stdin, os.Stdout, os.Stderr
		if err := ecmd.Start(); err != nil {
			payloadW.Close()
			return 0, nil, fmt.Errorf("start exec: %w", err)
		}
	}

	if _, err := payloadW.Write(payload); err != nil {
		return 0, nil, fmt.Errorf("write exec payload: %w", err)
	}
	payloadW.Close()

	go ecmd.Wait()

	return ecmd.Process.Pid, ptyMaster, nil
}

// containerPID resolves a container id to its host PID by reverse-scanning
// the pid registry Start populates; exec sessions are short-lived enough
// that a linear scan over the running set is not a concern.
func containerPID(containerID string) int {
	pidMu.Lock()
	defer pidMu.Unlock()
	for pid, id := range pidToContainerID {
		if id == containerID {
			return pid
		}
	}
	return 0
}

// RunExecInit is the setns re-exec entry point, invoked from main() when
// os.Args[1] == ExecReexecArg.
func RunExecInit() {
	const payloadFD = 3
	payloadPipe := os.NewFile(payloadFD, "exec-payload")
	payloadBytes, err := io.ReadAll(payloadPipe)
	if err != nil {
		fatal(fmt.Errorf("read exec payload: %w", err))
	}
	payloadPipe.Close()

	var payload ExecPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		fatal(fmt.Errorf("unmarshal exec payload: %w", err))
	}

	for _, ns := range execNamespaces {
		nsPath := fmt.Sprintf("/proc/%d/ns/%s", payload.TargetPID, ns)
		fd, err := unix.Open(nsPath, unix.O_RDONLY, 0)
		if err != nil {
			// Not every namespace kind is necessarily distinct for this
			// container (e.g. host networking); skip what doesn't exist.
			continue
		}
		err = unix.Setns(fd, 0)
		unix.Close(fd)
		if err != nil {
			fatal(fmt.Errorf("setns %s: %w", ns, err))
		}
	}

	if len(payload.Cmd) == 0 {
		fatal(fmt.Errorf("no command to execve"))
	}
	binPath, err := resolveExecutable(payload.Cmd[0])
	if err != nil {
		fatal(fmt.Errorf("resolve %s: %w", payload.Cmd[0], err))
	}
	if err := unix.Exec(binPath, payload.Cmd, payload.Env); err != nil {
		fatal(fmt.Errorf("execve %s: %w", binPath, err))
	}
}

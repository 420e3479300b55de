package containermgr

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// ExecSession represents one additional process started inside an
// already-Running container's namespaces (SPEC_FULL.md §3 expansion). It is
// additive: it does not participate in the container Status graph.
type ExecSession struct {
	ID          string
	ContainerID string
	Cmd         []string
	Env         []string
	TTY         bool
	PID         int
	PTY         *os.File // master side of the pty allocated via creack/pty, nil when TTY is false
}

// ExecRuntime is the setns-capable process spawner exec sessions drive
// through; internal/runtime.Runtime satisfies it. When tty is true the
// implementation allocates a pty via github.com/creack/pty, mirroring the
// teacher's ContainerSvc.Exec pty-vs-pipe branch.
type ExecRuntime interface {
	Exec(containerID string, cmd []string, env []string, tty bool) (pid int, ptyFile *os.File, err error)
}

// ExecManager tracks in-flight exec sessions. Kept separate from Manager's
// container table since exec sessions are not containers.
type ExecManager struct {
	mu       sync.Mutex
	sessions map[string]*ExecSession
	runtime  ExecRuntime
}

func NewExecManager(runtime ExecRuntime) *ExecManager {
	return &ExecManager{sessions: map[string]*ExecSession{}, runtime: runtime}
}

// Start joins containerID's namespaces via setns and execve's cmd, mirroring
// the teacher's ContainerSvc.Exec pty-vs-pipe branch: a pty is allocated
// only when tty is requested.
func (em *ExecManager) Start(id, containerID string, cmd []string, env []string, tty bool) (*ExecSession, error) {
	pid, ptyFile, err := em.runtime.Exec(containerID, cmd, env, tty)
	if err != nil {
		return nil, fmt.Errorf("exec in container %s: %w", containerID, err)
	}

	sess := &ExecSession{ID: id, ContainerID: containerID, Cmd: cmd, Env: env, TTY: tty, PID: pid, PTY: ptyFile}

	em.mu.Lock()
	em.sessions[id] = sess
	em.mu.Unlock()
	return sess, nil
}

func (em *ExecManager) Get(id string) (*ExecSession, bool) {
	em.mu.Lock()
	defer em.mu.Unlock()
	s, ok := em.sessions[id]
	return s, ok
}

func (em *ExecManager) Remove(id string) {
	em.mu.Lock()
	defer em.mu.Unlock()
	if s, ok := em.sessions[id]; ok && s.PTY != nil {
		s.PTY.Close()
	}
	delete(em.sessions, id)
}

// Attach wires stdin/stdout of the session's pty (when present) to the
// given reader/writer, the streaming half of ExecStream's teacher
// counterpart.
func (s *ExecSession) Attach(stdin io.Reader, stdout io.Writer) error {
	if s.PTY == nil {
		return fmt.Errorf("exec session %s has no pty", s.ID)
	}
	go io.Copy(s.PTY, stdin)
	_, err := io.Copy(stdout, s.PTY)
	return err
}

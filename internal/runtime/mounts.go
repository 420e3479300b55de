package runtime

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// mountSpec is one entry of the default container mount table (spec.md
// §4.H "Mount setup and pivot_root").
type mountSpec struct {
	target string
	fstype string
	data   string
	flags  uintptr
}

var defaultMounts = []mountSpec{
	{"/proc", "proc", "", unix.MS_NOSUID | unix.MS_NODEV | unix.MS_NOEXEC},
	{"/sys", "sysfs", "", unix.MS_NOSUID | unix.MS_NODEV | unix.MS_NOEXEC | unix.MS_RDONLY},
	{"/dev", "tmpfs", "size=65536k", unix.MS_NOSUID | unix.MS_NODEV},
	{"/dev/pts", "devpts", "newinstance,ptmxmode=0666,mode=0620", unix.MS_NOSUID | unix.MS_NOEXEC},
	{"/dev/shm", "tmpfs", "", unix.MS_NOSUID | unix.MS_NODEV},
	{"/run", "tmpfs", "", unix.MS_NOSUID | unix.MS_NODEV},
}

var deviceNodes = []string{"null", "zero", "full", "random", "urandom", "tty"}

var deviceSymlinks = map[string]string{
	"fd":     "/proc/self/fd",
	"stdin":  "/proc/self/fd/0",
	"stdout": "/proc/self/fd/1",
	"stderr": "/proc/self/fd/2",
	"ptmx":   "pts/ptmx",
}

// prepareRootfs implements spec.md §4.H's four-step rootfs preparation and
// pivot_root sequence. Called in the child after unshare, before execve.
func prepareRootfs(newRoot string, log func(msg string)) error {
	// Step 1: bind-mount the rootfs onto itself, required precondition for
	// pivot_root.
	if err := unix.Mount(newRoot, newRoot, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("bind-mount rootfs: %w", err)
	}

	// Step 2: default mount table, best-effort.
	for _, m := range defaultMounts {
		target := filepath.Join(newRoot, m.target)
		if err := os.MkdirAll(target, 0o755); err != nil {
			log(fmt.Sprintf("mkdir %s: %v", target, err))
			continue
		}
		if err := unix.Mount(m.fstype, target, m.fstype, m.flags, m.data); err != nil {
			log(fmt.Sprintf("mount %s (%s): %v", target, m.fstype, err))
		}
	}

	// Step 3: canonical device nodes via bind-mounting the host's onto
	// pre-created empty files, plus conventional symlinks.
	for _, name := range deviceNodes {
		hostPath := filepath.Join("/dev", name)
		targetPath := filepath.Join(newRoot, "dev", name)
		if f, err := os.Create(targetPath); err == nil {
			f.Close()
		}
		if err := unix.Mount(hostPath, targetPath, "", unix.MS_BIND, ""); err != nil {
			log(fmt.Sprintf("bind-mount device %s: %v", name, err))
		}
	}
	for link, dest := range deviceSymlinks {
		_ = os.Symlink(dest, filepath.Join(newRoot, "dev", link))
	}

	// Step 4: pivot_root dance.
	oldRoot := filepath.Join(newRoot, ".pivot_root")
	if err := os.MkdirAll(oldRoot, 0o700); err != nil {
		return fmt.Errorf("mkdir pivot_root staging dir: %w", err)
	}
	if err := unix.PivotRoot(newRoot, oldRoot); err != nil {
		return fmt.Errorf("pivot_root: %w", err)
	}
	if err := unix.Chdir("/"); err != nil {
		return fmt.Errorf("chdir /: %w", err)
	}
	if err := unix.Unmount("/.pivot_root", unix.MNT_DETACH); err != nil {
		log(fmt.Sprintf("unmount old root: %v", err))
	}
	if err := os.Remove("/.pivot_root"); err != nil {
		log(fmt.Sprintf("rmdir old root: %v", err))
	}

	return nil
}

// mountVolume implements the read-only bind-mount two-step dance spec.md
// §4.H requires: the kernel needs a remount to apply MS_RDONLY to an
// existing bind mount.
func mountVolume(source, target string, readOnly bool) error {
	if err := unix.Mount(source, target, "", unix.MS_BIND, ""); err != nil {
		return fmt.Errorf("bind-mount volume %s: %w", source, err)
	}
	if readOnly {
		if err := unix.Mount(source, target, "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY, ""); err != nil {
			return fmt.Errorf("remount volume %s read-only: %w", source, err)
		}
	}
	return nil
}

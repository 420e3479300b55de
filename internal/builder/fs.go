// Package builder executes a parsed build file against a context
// filesystem, producing layers and an image config (component D).
package builder

import (
	"io/fs"
	"os"
	"path/filepath"
)

// FS is the callback-based filesystem capability the builder is driven
// through (§9 "Callback-based filesystem adapter" — no global filesystem
// assumption, so the builder can be driven by a host tree or an embedded
// one).
type FS interface {
	ReadFile(path string) ([]byte, bool, error)
	Exists(path string) bool
	ListDir(path string) ([]string, error)
	Stat(path string) (fs.FileInfo, bool, error)
}

// OSFS is the only production implementer: a thin adapter over the host
// filesystem rooted at Root.
type OSFS struct {
	Root string
}

func (o OSFS) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(o.Root, path)
}

func (o OSFS) ReadFile(path string) ([]byte, bool, error) {
	b, err := os.ReadFile(o.resolve(path))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (o OSFS) Exists(path string) bool {
	_, err := os.Stat(o.resolve(path))
	return err == nil
}

func (o OSFS) ListDir(path string) ([]string, error) {
	entries, err := os.ReadDir(o.resolve(path))
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, nil
}

func (o OSFS) Stat(path string) (fs.FileInfo, bool, error) {
	info, err := os.Stat(o.resolve(path))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return info, true, nil
}

package volume_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/evoker-industries/rune/internal/volume"
)

func TestCreateIsIdempotent(t *testing.T) {
	m, err := volume.NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	a, err := m.Create("data", nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.Create("data", nil)
	if err != nil {
		t.Fatal(err)
	}
	if a.MountPoint != b.MountPoint {
		t.Errorf("Create() not idempotent: %s != %s", a.MountPoint, b.MountPoint)
	}
}

func TestRemoveDeletesDirectory(t *testing.T) {
	root := t.TempDir()
	m, err := volume.NewManager(root)
	if err != nil {
		t.Fatal(err)
	}
	v, err := m.Create("data", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Remove("data"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Get("data"); err == nil {
		t.Error("expected volume to be gone after Remove")
	}
	if _, err := os.Stat(filepath.Dir(v.MountPoint)); !os.IsNotExist(err) {
		t.Error("expected volume directory to be removed from disk")
	}
}

func TestResolveMountPrefersNamedVolumeOverPath(t *testing.T) {
	m, err := volume.NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	v, _ := m.Create("data", nil)

	got, err := m.ResolveMount("data")
	if err != nil {
		t.Fatal(err)
	}
	if got != v.MountPoint {
		t.Errorf("ResolveMount(data) = %s, want %s", got, v.MountPoint)
	}

	got2, err := m.ResolveMount("/host/path")
	if err != nil {
		t.Fatal(err)
	}
	if got2 != "/host/path" {
		t.Errorf("ResolveMount(/host/path) = %s, want /host/path", got2)
	}
}

func TestResolveMountRejectsUnknownRelativeName(t *testing.T) {
	m, err := volume.NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.ResolveMount("not-a-volume"); err == nil {
		t.Error("expected error for unknown relative volume reference")
	}
}

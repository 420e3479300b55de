package runtime

import (
	"testing"

	"github.com/evoker-industries/rune/internal/container"
)

func TestCombinedFlagsUnion(t *testing.T) {
	flags := combinedFlags([]NamespaceKind{NamespaceMount, NamespacePID})
	if flags&cloneNewNS == 0 {
		t.Error("expected CLONE_NEWNS bit set")
	}
	if flags&cloneNewPID == 0 {
		t.Error("expected CLONE_NEWPID bit set")
	}
	if flags&cloneNewNet != 0 {
		t.Error("did not expect CLONE_NEWNET bit set")
	}
}

func TestCombinedFlagsEmpty(t *testing.T) {
	if combinedFlags(nil) != 0 {
		t.Error("expected zero flags for an empty selection")
	}
}

func TestContainsHelper(t *testing.T) {
	kinds := []NamespaceKind{NamespaceUser, NamespaceNet}
	if !contains(kinds, NamespaceUser) {
		t.Error("expected NamespaceUser to be found")
	}
	if contains(kinds, NamespacePID) {
		t.Error("did not expect NamespacePID to be found")
	}
}

func TestCPUSharesToWeight(t *testing.T) {
	cases := []struct {
		shares int64
		want   int64
	}{
		{0, 100},
		{1024, 100},
		{2, 1},
		{262144, 10000},
		{512, 50},
	}
	for _, c := range cases {
		got := cpuSharesToWeight(c.shares)
		if got != c.want {
			t.Errorf("cpuSharesToWeight(%d) = %d, want %d", c.shares, got, c.want)
		}
	}
}

func TestDetectCgroupVersionDoesNotPanic(t *testing.T) {
	// Exercises the real filesystem probe; the sandbox this runs in may or
	// may not have a v2 hierarchy mounted, so only assert it returns one of
	// the two known values.
	v := detectCgroupVersion()
	if v != cgroupV1 && v != cgroupV2 {
		t.Errorf("detectCgroupVersion() = %v, want cgroupV1 or cgroupV2", v)
	}
}

func TestCgroupControllerDirsMatchVersion(t *testing.T) {
	c := &cgroupController{version: cgroupV2, id: "abc123"}
	dirs := c.dirs()
	if len(dirs) != 1 {
		t.Fatalf("v2 controller dirs = %d, want 1", len(dirs))
	}

	c1 := &cgroupController{version: cgroupV1, id: "abc123"}
	dirs1 := c1.dirs()
	if len(dirs1) != len(v1Controllers) {
		t.Fatalf("v1 controller dirs = %d, want %d", len(dirs1), len(v1Controllers))
	}
}

func TestResolveExecutableAbsolutePathPassesThrough(t *testing.T) {
	got, err := resolveExecutable("/bin/sh")
	if err != nil {
		t.Fatalf("resolveExecutable() error = %v", err)
	}
	if got != "/bin/sh" {
		t.Errorf("resolveExecutable(/bin/sh) = %s, want /bin/sh", got)
	}
}

func TestEffectiveCmdPrefersEntrypointPlusCmd(t *testing.T) {
	cfg := &container.Config{Entrypoint: []string{"/bin/sh", "-c"}, Cmd: []string{"echo hi"}}
	got := effectiveCmd(cfg)
	want := []string{"/bin/sh", "-c", "echo hi"}
	if len(got) != len(want) {
		t.Fatalf("effectiveCmd() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("effectiveCmd() = %v, want %v", got, want)
		}
	}
}

func TestEffectiveCmdFallsBackToCmdAlone(t *testing.T) {
	cfg := &container.Config{Cmd: []string{"echo", "hi"}}
	got := effectiveCmd(cfg)
	if len(got) != 2 || got[0] != "echo" || got[1] != "hi" {
		t.Fatalf("effectiveCmd() = %v, want [echo hi]", got)
	}
}

// Package runtime implements the native container runtime (component H):
// namespace creation, cgroup resource control, rootfs pivot, and process
// lifecycle. Namespaces come from clone flags on an os/exec re-exec of the
// binary (SysProcAttr.Cloneflags); mounts, pivot_root and setns go through
// golang.org/x/sys/unix (spec.md §4.H).
package runtime

// NamespaceKind is one of the kernel namespace types spec.md §4.H names.
type NamespaceKind string

const (
	NamespaceMount  NamespaceKind = "Mount"
	NamespaceUTS    NamespaceKind = "Uts"
	NamespaceIPC    NamespaceKind = "Ipc"
	NamespaceNet    NamespaceKind = "Net"
	NamespacePID    NamespaceKind = "Pid"
	NamespaceUser   NamespaceKind = "User"
	NamespaceCgroup NamespaceKind = "Cgroup"
)

// cloneFlags are the kernel ABI values named verbatim in spec.md §4.H —
// fixed by the kernel, not configurable.
const (
	cloneNewNS     = 0x00020000
	cloneNewUTS    = 0x04000000
	cloneNewIPC    = 0x08000000
	cloneNewNet    = 0x40000000
	cloneNewPID    = 0x20000000
	cloneNewUser   = 0x10000000
	cloneNewCgroup = 0x02000000
)

var namespaceFlags = map[NamespaceKind]uintptr{
	NamespaceMount:  cloneNewNS,
	NamespaceUTS:    cloneNewUTS,
	NamespaceIPC:    cloneNewIPC,
	NamespaceNet:    cloneNewNet,
	NamespacePID:    cloneNewPID,
	NamespaceUser:   cloneNewUser,
	NamespaceCgroup: cloneNewCgroup,
}

// combinedFlags computes the bitwise-OR of the selected namespace kinds'
// clone flags.
func combinedFlags(kinds []NamespaceKind) uintptr {
	var flags uintptr
	for _, k := range kinds {
		flags |= namespaceFlags[k]
	}
	return flags
}

func contains(kinds []NamespaceKind, k NamespaceKind) bool {
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}

package runtime

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/evoker-industries/rune/internal/container"
)

// cgroupVersion distinguishes the v1 per-controller hierarchy from the v2
// unified hierarchy (spec.md §4.H "Cgroups").
type cgroupVersion int

const (
	cgroupV1 cgroupVersion = 1
	cgroupV2 cgroupVersion = 2
)

const cgroupRoot = "/sys/fs/cgroup"

// detectCgroupVersion distinguishes v1 from v2 the same way every real
// container runtime does: a cgroup.controllers file at the root of
// /sys/fs/cgroup only exists under the v2 unified hierarchy.
func detectCgroupVersion() cgroupVersion {
	if _, err := os.Stat(filepath.Join(cgroupRoot, "cgroup.controllers")); err == nil {
		return cgroupV2
	}
	return cgroupV1
}

// effectiveQuota resolves the container's configured CPU quota/period pair.
// An explicit CPUQuotaUs always wins; otherwise a fractional CPUs count is
// translated via spec.md §4.H's formula: cfs_quota_us = CPUs × cfs_period_us.
func effectiveQuota(limits container.ResourceLimits) (quotaUs, periodUs int64) {
	periodUs = limits.CPUPeriodUs
	if periodUs == 0 {
		periodUs = 100000
	}
	if limits.CPUQuotaUs > 0 {
		return limits.CPUQuotaUs, periodUs
	}
	if limits.CPUs > 0 {
		return int64(limits.CPUs * float64(periodUs)), periodUs
	}
	return 0, periodUs
}

// cpuSharesToWeight translates the legacy v1 cpu.shares range (2-262144,
// default 1024) into the v2 cpu.weight range (1-10000, default 100), per
// spec.md §4.H's explicit formula.
func cpuSharesToWeight(shares int64) int64 {
	if shares <= 0 {
		return 100
	}
	weight := shares * 100 / 1024
	if weight < 1 {
		weight = 1
	}
	if weight > 10000 {
		weight = 10000
	}
	return weight
}

// cgroupController applies and tears down resource limits for one
// container's cgroup, v1 or v2 depending on what the host exposes.
type cgroupController struct {
	version cgroupVersion
	id      string
}

func newCgroupController(id string) *cgroupController {
	return &cgroupController{version: detectCgroupVersion(), id: id}
}

func (c *cgroupController) writeFile(path, value string) error {
	if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Apply creates the container's cgroup directory (or per-controller
// directories, for v1) and writes the configured limits into it.
func (c *cgroupController) Apply(limits container.ResourceLimits) error {
	switch c.version {
	case cgroupV2:
		return c.applyV2(limits)
	default:
		return c.applyV1(limits)
	}
}

func (c *cgroupController) applyV2(limits container.ResourceLimits) error {
	parent := filepath.Join(cgroupRoot, "rune")
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("mkdir cgroup v2 parent dir: %w", err)
	}
	// Best-effort: a parent cgroup with no controllers enabled in its own
	// subtree_control silently ignores every per-controller file this
	// container's directory writes below it.
	_ = c.writeFile(filepath.Join(parent, "cgroup.subtree_control"), "+cpu +memory +pids +io")

	dir := filepath.Join(parent, c.id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir cgroup v2 dir: %w", err)
	}

	if limits.MemoryLimitBytes > 0 {
		if err := c.writeFile(filepath.Join(dir, "memory.max"), strconv.FormatInt(limits.MemoryLimitBytes, 10)); err != nil {
			return err
		}
	}
	if limits.MemoryReservation > 0 {
		if err := c.writeFile(filepath.Join(dir, "memory.low"), strconv.FormatInt(limits.MemoryReservation, 10)); err != nil {
			return err
		}
	}
	if limits.MemorySwapBytes > 0 {
		if err := c.writeFile(filepath.Join(dir, "memory.swap.max"), strconv.FormatInt(limits.MemorySwapBytes, 10)); err != nil {
			return err
		}
	}
	if limits.CPUShares > 0 {
		weight := cpuSharesToWeight(limits.CPUShares)
		if err := c.writeFile(filepath.Join(dir, "cpu.weight"), strconv.FormatInt(weight, 10)); err != nil {
			return err
		}
	}
	if quotaUs, periodUs := effectiveQuota(limits); quotaUs > 0 {
		quota := fmt.Sprintf("%d %d", quotaUs, periodUs)
		if err := c.writeFile(filepath.Join(dir, "cpu.max"), quota); err != nil {
			return err
		}
	}
	if limits.CpusetCPUs != "" {
		if err := c.writeFile(filepath.Join(dir, "cpuset.cpus"), limits.CpusetCPUs); err != nil {
			return err
		}
	}
	if limits.CpusetMems != "" {
		if err := c.writeFile(filepath.Join(dir, "cpuset.mems"), limits.CpusetMems); err != nil {
			return err
		}
	}
	if limits.PidsLimit > 0 {
		if err := c.writeFile(filepath.Join(dir, "pids.max"), strconv.FormatInt(limits.PidsLimit, 10)); err != nil {
			return err
		}
	}
	if limits.BlkioWeight > 0 {
		if err := c.writeFile(filepath.Join(dir, "io.weight"), "default "+strconv.FormatInt(limits.BlkioWeight, 10)); err != nil {
			return err
		}
	}
	// cgroup v2 has no direct equivalent of v1's memory.oom_control
	// oom_kill_disable knob; OOMKillDisable is honored on v1 only, matching
	// what the kernel actually exposes.
	return nil
}

var v1Controllers = []string{"memory", "cpu", "cpuset", "pids", "blkio"}

func (c *cgroupController) applyV1(limits container.ResourceLimits) error {
	for _, ctl := range v1Controllers {
		dir := filepath.Join(cgroupRoot, ctl, "rune", c.id)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir cgroup v1 %s dir: %w", ctl, err)
		}
	}

	memDir := filepath.Join(cgroupRoot, "memory", "rune", c.id)
	if limits.MemoryLimitBytes > 0 {
		if err := c.writeFile(filepath.Join(memDir, "memory.limit_in_bytes"), strconv.FormatInt(limits.MemoryLimitBytes, 10)); err != nil {
			return err
		}
	}
	if limits.MemorySwapBytes > 0 {
		if err := c.writeFile(filepath.Join(memDir, "memory.memsw.limit_in_bytes"), strconv.FormatInt(limits.MemorySwapBytes, 10)); err != nil {
			return err
		}
	}
	if limits.OOMKillDisable {
		if err := c.writeFile(filepath.Join(memDir, "memory.oom_control"), "1"); err != nil {
			return err
		}
	}

	cpuDir := filepath.Join(cgroupRoot, "cpu", "rune", c.id)
	if limits.CPUShares > 0 {
		if err := c.writeFile(filepath.Join(cpuDir, "cpu.shares"), strconv.FormatInt(limits.CPUShares, 10)); err != nil {
			return err
		}
	}
	if quotaUs, periodUs := effectiveQuota(limits); quotaUs > 0 {
		if err := c.writeFile(filepath.Join(cpuDir, "cpu.cfs_period_us"), strconv.FormatInt(periodUs, 10)); err != nil {
			return err
		}
		if err := c.writeFile(filepath.Join(cpuDir, "cpu.cfs_quota_us"), strconv.FormatInt(quotaUs, 10)); err != nil {
			return err
		}
	}

	blkioDir := filepath.Join(cgroupRoot, "blkio", "rune", c.id)
	if limits.BlkioWeight > 0 {
		if err := c.writeFile(filepath.Join(blkioDir, "blkio.weight"), strconv.FormatInt(limits.BlkioWeight, 10)); err != nil {
			return err
		}
	}

	cpusetDir := filepath.Join(cgroupRoot, "cpuset", "rune", c.id)
	if limits.CpusetCPUs != "" {
		if err := c.writeFile(filepath.Join(cpusetDir, "cpuset.cpus"), limits.CpusetCPUs); err != nil {
			return err
		}
	}
	if limits.CpusetMems != "" {
		if err := c.writeFile(filepath.Join(cpusetDir, "cpuset.mems"), limits.CpusetMems); err != nil {
			return err
		}
	}

	pidsDir := filepath.Join(cgroupRoot, "pids", "rune", c.id)
	if limits.PidsLimit > 0 {
		if err := c.writeFile(filepath.Join(pidsDir, "pids.max"), strconv.FormatInt(limits.PidsLimit, 10)); err != nil {
			return err
		}
	}

	return nil
}

// dirs returns every controller directory this container's cgroup has on
// disk, used by AddPID and Remove. The v1 freezer directory used by
// Freeze/Thaw is not among them.
func (c *cgroupController) dirs() []string {
	if c.version == cgroupV2 {
		return []string{filepath.Join(cgroupRoot, "rune", c.id)}
	}
	dirs := make([]string, 0, len(v1Controllers))
	for _, ctl := range v1Controllers {
		dirs = append(dirs, filepath.Join(cgroupRoot, ctl, "rune", c.id))
	}
	return dirs
}

// AddPID writes pid into cgroup.procs for every controller directory,
// placing the process under this container's resource limits.
func (c *cgroupController) AddPID(pid int) error {
	for _, dir := range c.dirs() {
		path := filepath.Join(dir, "cgroup.procs")
		if err := c.writeFile(path, strconv.Itoa(pid)); err != nil {
			return err
		}
	}
	return nil
}

// Freeze and Thaw implement pause/unpause: v2 exposes a single cgroup.freeze
// knob, v1 spreads it across the freezer controller's freezer.state.
func (c *cgroupController) Freeze() error {
	if c.version == cgroupV2 {
		return c.writeFile(filepath.Join(cgroupRoot, "rune", c.id, "cgroup.freeze"), "1")
	}
	dir := filepath.Join(cgroupRoot, "freezer", "rune", c.id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir freezer dir: %w", err)
	}
	return c.writeFile(filepath.Join(dir, "freezer.state"), "FROZEN")
}

func (c *cgroupController) Thaw() error {
	if c.version == cgroupV2 {
		return c.writeFile(filepath.Join(cgroupRoot, "rune", c.id, "cgroup.freeze"), "0")
	}
	dir := filepath.Join(cgroupRoot, "freezer", "rune", c.id)
	return c.writeFile(filepath.Join(dir, "freezer.state"), "THAWED")
}

// Remove deletes the container's cgroup directories. The kernel refuses
// rmdir while cgroup.procs is non-empty, so this is only valid after the
// process has exited.
func (c *cgroupController) Remove() error {
	for _, dir := range c.dirs() {
		if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("rmdir %s: %w", dir, err)
		}
	}
	return nil
}

package main

import (
	"fmt"

	"github.com/evoker-industries/rune/version"
)

// VersionCmd prints local build info directly; it does not query the
// daemon, and `rune daemon status` reports only whether the daemon is
// running.
type VersionCmd struct{}

func (c *VersionCmd) Run(cctx *Context) error {
	v := version.Get()
	fmt.Printf("Git Repository: %s\n", v.GitRepo)
	fmt.Printf("Git Branch: %s\n", v.GitBranch)
	fmt.Printf("Git Commit: %s\n", v.GitCommit)
	fmt.Printf("Build Time: %s\n", v.BuildTime)
	return nil
}

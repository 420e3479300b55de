package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/evoker-industries/rune/internal/compose"
	"github.com/evoker-industries/rune/internal/containermgr"
	"github.com/evoker-industries/rune/internal/runtime"
)

// ComposeCmd operates directly on containermgr (bypassing the daemon HTTP
// surface entirely), the same direct-call shape the teacher's NewCmd uses
// for image builds: the CLI opens the same on-disk state the daemon would,
// rather than round-tripping every service's lifecycle over HTTP.
type ComposeCmd struct {
	Up   ComposeUpCmd   `cmd:"" help:"create and start every service"`
	Down ComposeDownCmd `cmd:"" help:"stop and remove every service"`
}

type ComposeUpCmd struct {
	File    string   `short:"f" default:"compose.yaml" help:"compose file path"`
	Project string   `short:"p" help:"project name; defaults to the compose file's directory name"`
	Env     []string `short:"e" help:"environment overrides in KEY=VALUE form"`
}

func (c *ComposeUpCmd) Run(cctx *Context) error {
	proj, err := newComposeProject(cctx, c.File, c.Project, c.Env)
	if err != nil {
		return err
	}
	return proj.Up(context.Background())
}

type ComposeDownCmd struct {
	File    string `short:"f" default:"compose.yaml" help:"compose file path"`
	Project string `short:"p" help:"project name; defaults to the compose file's directory name"`
}

func (c *ComposeDownCmd) Run(cctx *Context) error {
	proj, err := newComposeProject(cctx, c.File, c.Project, nil)
	if err != nil {
		return err
	}
	return proj.Down()
}

func newComposeProject(cctx *Context, file, project string, envOverrides []string) (*compose.Project, error) {
	env := map[string]string{}
	for _, kv := range envOverrides {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				env[kv[:i]] = kv[i+1:]
				break
			}
		}
	}

	doc, err := compose.ParseFile(file, env)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}

	if project == "" {
		project = "rune"
		if abs, err := filepath.Abs(file); err == nil {
			project = filepath.Base(filepath.Dir(abs))
		}
	}

	mgr := containermgr.New(runtime.New(localRootfsResolver(cctx)))
	return compose.NewProject(project, doc, mgr), nil
}

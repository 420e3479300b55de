package main

import (
	"fmt"

	"github.com/evoker-industries/rune/internal/container"
)

type RunCmd struct {
	Image      string   `arg:"" help:"image reference to run"`
	Cmd        []string `arg:"" optional:"" passthrough:"" help:"command and args to run in the container"`
	Name       string   `help:"container name"`
	Env        []string `short:"e" help:"environment variables in KEY=VALUE form"`
	Volume     []string `short:"v" help:"volume mounts in host:container[:ro] form"`
	Privileged bool     `help:"run without a user namespace"`
	Detach     bool     `short:"d" help:"create the container but do not start it"`
}

func (c *RunCmd) Run(cctx *Context) error {
	env := map[string]string{}
	for _, kv := range c.Env {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				env[kv[:i]] = kv[i+1:]
				break
			}
		}
	}

	volumes := make([]container.VolumeMount, 0, len(c.Volume))
	for _, spec := range c.Volume {
		volumes = append(volumes, parseVolumeFlag(spec))
	}

	cfg := container.Config{
		Name:       c.Name,
		ImageRef:   c.Image,
		Cmd:        c.Cmd,
		Env:        env,
		Volumes:    volumes,
		Privileged: c.Privileged,
	}

	created, err := cctx.Client.CreateContainer(cctx.ctx, cfg)
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	fmt.Println(created.ID)

	if c.Detach {
		return nil
	}
	return cctx.Client.StartContainer(cctx.ctx, created.ID)
}

// parseVolumeFlag parses "host:container[:ro]", the same volume-spec shape
// internal/compose/orchestrator.go's parseVolumeSpec already applies to
// compose service volumes.
func parseVolumeFlag(spec string) container.VolumeMount {
	parts := make([]string, 0, 3)
	start := 0
	for i := 0; i < len(spec) && len(parts) < 2; i++ {
		if spec[i] == ':' {
			parts = append(parts, spec[start:i])
			start = i + 1
		}
	}
	parts = append(parts, spec[start:])

	m := container.VolumeMount{}
	switch len(parts) {
	case 1:
		m.Target = parts[0]
	case 2:
		m.Source, m.Target = parts[0], parts[1]
	default:
		m.Source, m.Target = parts[0], parts[1]
		m.ReadOnly = parts[2] == "ro"
	}
	return m
}

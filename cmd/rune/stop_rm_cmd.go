package main

import "fmt"

type StopCmd struct {
	ID []string `arg:"" help:"container ids to stop"`
}

func (c *StopCmd) Run(cctx *Context) error {
	for _, id := range c.ID {
		if err := cctx.Client.StopContainer(cctx.ctx, id); err != nil {
			return fmt.Errorf("stop %s: %w", id, err)
		}
		fmt.Println(id)
	}
	return nil
}

type RmCmd struct {
	ID    []string `arg:"" help:"container ids to remove"`
	Force bool     `short:"f" help:"force-remove even if running"`
}

func (c *RmCmd) Run(cctx *Context) error {
	for _, id := range c.ID {
		if err := cctx.Client.RemoveContainer(cctx.ctx, id, c.Force); err != nil {
			return fmt.Errorf("remove %s: %w", id, err)
		}
		fmt.Println(id)
	}
	return nil
}

package main

import (
	"fmt"
	"os"
	"text/tabwriter"
)

type PsCmd struct {
	All bool `short:"a" help:"show stopped and exited containers too"`
}

func (c *PsCmd) Run(cctx *Context) error {
	list, err := cctx.Client.ListContainers(cctx.ctx, c.All)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CONTAINER ID\tNAME\tIMAGE\tSTATUS\tCOMMAND")
	for _, c := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\n", c.ID, c.Name, c.ImageRef, c.Status, c.Cmd)
	}
	return w.Flush()
}

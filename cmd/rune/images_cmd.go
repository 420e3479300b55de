package main

import (
	"fmt"
	"os"
	"text/tabwriter"
)

type ImagesCmd struct{}

func (c *ImagesCmd) Run(cctx *Context) error {
	list, err := cctx.Client.ListImages(cctx.ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTAGS\tSIZE")
	for _, img := range list {
		fmt.Fprintf(w, "%v\t%v\t%v\n", img["ID"], img["RepoTags"], img["SizeBytes"])
	}
	return w.Flush()
}

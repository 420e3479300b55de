package main

import (
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/evoker-industries/rune/internal/registry/api"
	"github.com/evoker-industries/rune/internal/registry/storage"
)

type RegistryCmd struct {
	Serve RegistryServeCmd `cmd:"" help:"serve the OCI distribution API over HTTP"`
}

type RegistryServeCmd struct {
	Addr          string `default:":5000" help:"address to listen on"`
	DeleteEnabled bool   `help:"allow manifest/tag deletion"`
}

func (c *RegistryServeCmd) Run(cctx *Context) error {
	store := storage.New(filepath.Join(cctx.DataDir, "registry"))
	server := api.New(store, api.Config{DeleteEnabled: c.DeleteEnabled})

	fmt.Printf("serving OCI registry on %s\n", c.Addr)
	return http.ListenAndServe(c.Addr, server)
}

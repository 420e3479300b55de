package main

import (
	"path/filepath"

	"github.com/evoker-industries/rune/internal/image"
	"github.com/evoker-industries/rune/internal/registry/storage"
)

// localRootfsResolver opens the same on-disk image store and registry blob
// pool the daemon uses, for CLI subcommands (compose) that drive
// containermgr directly rather than through the daemon's HTTP surface.
func localRootfsResolver(cctx *Context) func(imageRef string) (string, error) {
	registryStore := storage.New(filepath.Join(cctx.DataDir, "registry"))
	imageStore, err := image.NewStore(filepath.Join(cctx.DataDir, "images.db"), registryStore)
	if err != nil {
		return func(string) (string, error) { return "", err }
	}

	return func(imageRef string) (string, error) {
		return imageStore.ResolveRootfs(imageRef, registryStore, filepath.Join(cctx.DataDir, "rootfs"))
	}
}

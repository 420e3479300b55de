package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/evoker-industries/rune/internal/builder"
	"github.com/evoker-industries/rune/internal/digest"
	"github.com/evoker-industries/rune/internal/image"
	"github.com/evoker-industries/rune/internal/registry/storage"
)

// BuildCmd builds an image directly against on-disk state, the same way
// the teacher's NewCmd calls sber.EnsureImage directly rather than routing
// image builds through the daemon — only container lifecycle goes through
// the daemon's HTTP surface.
type BuildCmd struct {
	Context string   `arg:"" default:"." help:"build context directory"`
	File    string   `short:"f" help:"explicit build-file path"`
	Tag     []string `short:"t" help:"tags to apply to the built image"`
	Target  string   `help:"target build stage"`
}

func (c *BuildCmd) Run(cctx *Context) error {
	fs := builder.OSFS{Root: c.Context}
	b := builder.New(fs, nil)

	result := b.Build(builder.Request{
		ContextDir:    c.Context,
		BuildFilePath: c.File,
		Target:        c.Target,
		Tags:          c.Tag,
	})

	if !result.Success {
		for _, e := range result.Errors {
			fmt.Println(e)
		}
		return fmt.Errorf("build failed")
	}

	registryStore := storage.New(filepath.Join(cctx.DataDir, "registry"))
	imageStore, err := image.NewStore(filepath.Join(cctx.DataDir, "images.db"), registryStore)
	if err != nil {
		return fmt.Errorf("open image store: %w", err)
	}
	defer imageStore.Close()

	specJSON := result.ImageConfig
	d := digest.CalculateString(result.ImageID)
	img := &image.Image{
		ID:        result.ImageID,
		Digest:    d,
		Spec:      *specJSON,
		RepoTags:  c.Tag,
		CreatedAt: time.Now(),
	}
	if err := imageStore.Store(img); err != nil {
		return fmt.Errorf("store image: %w", err)
	}

	fmt.Println(result.ImageID)
	return nil
}

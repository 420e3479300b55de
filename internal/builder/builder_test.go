package builder_test

import (
	"io/fs"
	"testing"

	"github.com/evoker-industries/rune/internal/builder"
)

type memFS struct {
	files map[string][]byte
}

func (m memFS) ReadFile(path string) ([]byte, bool, error) {
	b, ok := m.files[path]
	return b, ok, nil
}

func (m memFS) Exists(path string) bool {
	_, ok := m.files[path]
	return ok
}

func (m memFS) ListDir(path string) ([]string, error) { return nil, nil }

func (m memFS) Stat(path string) (fs.FileInfo, bool, error) {
	return nil, false, nil
}

func newMemFS(files map[string][]byte) memFS {
	return memFS{files: files}
}

func TestBuildSingleStageEmitsLayerPerContentInstruction(t *testing.T) {
	fs := newMemFS(map[string][]byte{
		"/ctx/Dockerfile": []byte("FROM scratch\nCOPY app.bin /app.bin\nENV FOO=bar\nCMD [\"/app.bin\"]\n"),
		"/ctx/app.bin":    []byte("binary-content"),
	})

	b := builder.New(fs, builder.DiscardSink{})
	res := b.Build(builder.Request{ContextDir: "/ctx"})

	if !res.Success {
		t.Fatalf("Build() failed: %v", res.Errors)
	}
	if len(res.ImageConfig.History) != 3 {
		t.Fatalf("len(History) = %d, want 3 (COPY, ENV, CMD)", len(res.ImageConfig.History))
	}

	// Invariant: for every instruction, either a layer is pushed or the
	// history entry is marked empty_layer — never both, never neither.
	layerCount := 0
	for _, h := range res.ImageConfig.History {
		if !h.EmptyLayer {
			layerCount++
		}
	}
	if layerCount != len(res.Layers) {
		t.Fatalf("non-empty history entries = %d, len(Layers) = %d, want equal", layerCount, len(res.Layers))
	}
	if layerCount != 1 {
		t.Fatalf("expected exactly 1 non-empty layer (COPY), got %d", layerCount)
	}

	if res.ImageConfig.Config.Env[0] != "FOO=bar" {
		t.Errorf("Config.Env = %v", res.ImageConfig.Config.Env)
	}
	if len(res.ImageID) != 12 {
		t.Errorf("ImageID = %q, want length 12", res.ImageID)
	}
}

func TestBuildMissingCopySourceWarnsAndSkips(t *testing.T) {
	fs := newMemFS(map[string][]byte{
		"/ctx/Dockerfile": []byte("FROM scratch\nCOPY missing.txt /missing.txt\n"),
	})

	b := builder.New(fs, builder.DiscardSink{})
	res := b.Build(builder.Request{ContextDir: "/ctx"})

	if !res.Success {
		t.Fatalf("Build() failed: %v", res.Errors)
	}
	found := false
	for _, w := range res.Warnings {
		if w == "Source file not found: missing.txt" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected missing-source warning, got %v", res.Warnings)
	}
	if res.ImageConfig.History[0].EmptyLayer != true {
		t.Error("expected empty_layer history entry for a COPY with no resolvable sources")
	}
}

func TestBuildTargetStageAlwaysProcessesFinalStage(t *testing.T) {
	// §9 Open Question #1: a non-final stage not matching target is
	// skipped, but the final stage is always processed regardless.
	fs := newMemFS(map[string][]byte{
		"/ctx/Dockerfile": []byte("FROM a AS builder\nRUN build-step\n\nFROM b\nRUN final-step\n"),
	})

	b := builder.New(fs, builder.DiscardSink{})
	res := b.Build(builder.Request{ContextDir: "/ctx", Target: "nonexistent-stage"})

	if !res.Success {
		t.Fatalf("Build() failed: %v", res.Errors)
	}
	if len(res.ImageConfig.History) != 1 {
		t.Fatalf("expected only the final stage's 1 instruction, got %d history entries", len(res.ImageConfig.History))
	}
	if res.ImageConfig.History[0].CreatedBy != "RUN final-step" {
		t.Errorf("CreatedBy = %q, want RUN final-step", res.ImageConfig.History[0].CreatedBy)
	}
}

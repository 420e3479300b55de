package builder

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/evoker-industries/rune/internal/buildfile"
	"github.com/evoker-industries/rune/internal/digest"
)

// Layer is an immutable emitted filesystem delta (spec.md §3 Image Layer).
type Layer struct {
	ShortID   string
	Digest    digest.Digest
	SizeBytes int64
	CreatedBy string
	Empty     bool
}

// Request is a build context: root directory, optional explicit build-file
// path, build args, target stage, tags, labels, no-cache flag.
type Request struct {
	ContextDir    string
	BuildFilePath string // explicit override; empty means use the lookup policy
	BuildArgs     map[string]string
	Target        string
	Tags          []string
	Labels        map[string]string
	NoCache       bool
}

// Result is the builder's final output (spec.md §4.D).
type Result struct {
	Success     bool
	ImageID     string
	Layers      []Layer
	ImageConfig *v1.Image
	Errors      []string
	Warnings    []string
}

// RemoteResolver resolves a base image reference by fetching its manifest
// from a remote OCI registry (§4.D expansion — the builder's one
// network-I/O point). When set, the builder calls it for every stage's base
// without consulting a local store first; the resolved digest is not
// recorded, and a failure is only emitted as a Warning event.
type RemoteResolver interface {
	ResolveDigest(ref string) (digest.Digest, error)
}

// Builder executes a parsed build file against fs, reporting progress to
// sink and resolving missing base images through remote.
type Builder struct {
	FS     FS
	Sink   Sink
	Remote RemoteResolver
}

func New(fs FS, sink Sink) *Builder {
	if sink == nil {
		sink = DiscardSink{}
	}
	return &Builder{FS: fs, Sink: sink}
}

// locateBuildFile implements spec.md §4.D's lookup policy.
func (b *Builder) locateBuildFile(req Request) (string, error) {
	if req.BuildFilePath != "" {
		return req.BuildFilePath, nil
	}
	if b.FS.Exists(filepath.Join(req.ContextDir, "Runefile")) {
		return filepath.Join(req.ContextDir, "Runefile"), nil
	}
	return filepath.Join(req.ContextDir, "Dockerfile"), nil
}

// Build runs the algorithm in spec.md §4.D.
func (b *Builder) Build(req Request) Result {
	path, err := b.locateBuildFile(req)
	if err != nil {
		return Result{Errors: []string{err.Error()}}
	}

	raw, ok, err := b.FS.ReadFile(path)
	if err != nil {
		return Result{Errors: []string{err.Error()}}
	}
	if !ok {
		return Result{Errors: []string{fmt.Sprintf("build file not found: %s", path)}}
	}

	file, warnings, err := buildfile.Parse(string(raw))
	if err != nil {
		return Result{Errors: []string{err.Error()}, Warnings: warnings}
	}

	result := Result{Warnings: warnings}
	cfg := v1.ImageConfig{Env: nil, Cmd: nil}
	var history []v1.History
	var layers []Layer
	var diffIDs []digest.Digest

	for si, stage := range file.Stages {
		isLast := si == len(file.Stages)-1
		if req.Target != "" && stage.Name != req.Target && !isLast {
			// Open Question #1 (spec.md §9): the final stage is always
			// processed regardless of target match.
			continue
		}

		baseRef := stage.BaseImage
		if stage.BaseTag != "" {
			baseRef = baseRef + ":" + stage.BaseTag
		} else {
			baseRef = baseRef + ":latest"
		}
		b.Sink.Emit(Event{Kind: StageStart, StageIndex: si, StageName: stage.Name, BaseRef: baseRef})

		if err := b.resolveBase(stage.BaseImage, stage.BaseTag); err != nil {
			b.Sink.Emit(Event{Kind: EventWarning, StageIndex: si, Message: err.Error()})
		}

		for _, instr := range stage.Instructions {
			if instr.Kind == buildfile.From {
				// The stage's base is handled above; FROM is not a build step.
				continue
			}
			b.Sink.Emit(Event{Kind: StepStart, StageIndex: si, InstructionDebug: instr.Debug()})

			layer, emptyLayer, stepWarnings := b.processInstruction(req, instr)
			result.Warnings = append(result.Warnings, stepWarnings...)

			historyEntry := v1.History{
				Created:    ptrTime(time.Now()),
				CreatedBy:  instr.Debug(),
				EmptyLayer: emptyLayer,
			}
			history = append(history, historyEntry)

			var layerID string
			if !emptyLayer {
				layers = append(layers, layer)
				diffIDs = append(diffIDs, layer.Digest)
				layerID = layer.ShortID
			}
			b.applyConfigMutation(&cfg, instr)

			b.Sink.Emit(Event{Kind: StepComplete, StageIndex: si, LayerID: layerID})
		}

		b.Sink.Emit(Event{Kind: StageComplete, StageIndex: si})
	}

	for k, v := range req.Labels {
		if cfg.Labels == nil {
			cfg.Labels = map[string]string{}
		}
		cfg.Labels[k] = v
	}

	rootfsDiffIDs := make([]digest.Digest, len(diffIDs))
	copy(rootfsDiffIDs, diffIDs)

	imgSpec := v1.Image{
		Architecture: "amd64",
		OS:           "linux",
		Config:       cfg,
		RootFS: v1.RootFS{
			Type:    "layers",
			DiffIDs: toOCIDigests(rootfsDiffIDs),
		},
		History: history,
	}

	specJSON, err := json.Marshal(imgSpec)
	if err != nil {
		return Result{Errors: []string{err.Error()}, Warnings: result.Warnings}
	}
	imageDigest := digest.Calculate(specJSON)
	imageID := digest.Short(imageDigest)

	result.Success = true
	result.ImageID = imageID
	result.Layers = layers
	result.ImageConfig = &imgSpec

	b.Sink.Emit(Event{Kind: BuildComplete, ImageID: imageID})
	return result
}

func (b *Builder) resolveBase(image, tag string) error {
	if b.Remote == nil {
		return nil
	}
	ref := image
	if tag != "" {
		ref = image + ":" + tag
	}
	_, err := b.Remote.ResolveDigest(ref)
	return err
}

// processInstruction emits a layer for Run/Copy/Add per spec.md §4.D step 3,
// or marks the instruction empty-layer.
func (b *Builder) processInstruction(req Request, instr buildfile.Instruction) (Layer, bool, []string) {
	var warnings []string

	switch instr.Kind {
	case buildfile.Run:
		cmd := instr.Run.Cmd
		if !instr.Run.Shell {
			cmd = strings.Join(instr.Run.Exec, " ")
		}
		d := digest.CalculateString(cmd)
		return Layer{
			ShortID:   digest.Short(d),
			Digest:    d,
			SizeBytes: int64(len(cmd)),
			CreatedBy: "RUN " + cmd,
		}, false, nil

	case buildfile.Copy, buildfile.Add:
		var content strings.Builder
		for _, src := range instr.Copy.Sources {
			path := src
			if !strings.HasPrefix(src, "/") {
				path = filepath.Join(req.ContextDir, src)
			}
			data, ok, err := b.FS.ReadFile(path)
			if err != nil || !ok {
				if instr.Kind == buildfile.Copy {
					warnings = append(warnings, fmt.Sprintf("Source file not found: %s", src))
				}
				continue
			}
			content.Write(data)
		}

		if content.Len() == 0 {
			return Layer{}, true, warnings
		}

		d := digest.CalculateString(content.String())
		createdBy := fmt.Sprintf("%s %s %s", instr.Kind, strings.Join(instr.Copy.Sources, " "), instr.Copy.Dest)
		return Layer{
			ShortID:   digest.Short(d),
			Digest:    d,
			SizeBytes: int64(content.Len()),
			CreatedBy: createdBy,
		}, false, warnings

	default:
		return Layer{}, true, nil
	}
}

// applyConfigMutation mutates cfg for configuration-only instructions
// (spec.md §4.D step 4).
func (b *Builder) applyConfigMutation(cfg *v1.ImageConfig, instr buildfile.Instruction) {
	switch instr.Kind {
	case buildfile.Env:
		if cfg.Env == nil {
			cfg.Env = []string{}
		}
		cfg.Env = append(cfg.Env, instr.Env.Key+"="+instr.Env.Value)
	case buildfile.Cmd:
		if instr.CmdEnt.Shell {
			cfg.Cmd = []string{instr.CmdEnt.Cmd}
		} else {
			cfg.Cmd = instr.CmdEnt.Exec
		}
	case buildfile.Entrypoint:
		if instr.CmdEnt.Shell {
			cfg.Entrypoint = []string{instr.CmdEnt.Cmd}
		} else {
			cfg.Entrypoint = instr.CmdEnt.Exec
		}
	case buildfile.Workdir:
		cfg.WorkingDir = instr.Simple
	case buildfile.User:
		cfg.User = instr.Simple
	case buildfile.Expose:
		if cfg.ExposedPorts == nil {
			cfg.ExposedPorts = map[string]struct{}{}
		}
		key := strconv.Itoa(int(instr.Expose.Port)) + "/" + instr.Expose.Proto
		cfg.ExposedPorts[key] = struct{}{}
	case buildfile.Volume:
		if cfg.Volumes == nil {
			cfg.Volumes = map[string]struct{}{}
		}
		cfg.Volumes[instr.Simple] = struct{}{}
	case buildfile.Label:
		if cfg.Labels == nil {
			cfg.Labels = map[string]string{}
		}
		for _, pair := range instr.Label.Pairs {
			cfg.Labels[pair.Key] = pair.Value
		}
	case buildfile.Stopsignal:
		cfg.StopSignal = instr.Simple
	}
}

func ptrTime(t time.Time) *time.Time { return &t }

func toOCIDigests(ds []digest.Digest) []digest.Digest { return ds }

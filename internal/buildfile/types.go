// Package buildfile parses the Runefile/Dockerfile dialect into a typed,
// ordered list of build stages. It has no knowledge of how those stages are
// executed; see internal/builder for that.
package buildfile

// InstructionKind tags the variant of a parsed Instruction.
type InstructionKind string

const (
	From        InstructionKind = "FROM"
	Run         InstructionKind = "RUN"
	Copy        InstructionKind = "COPY"
	Add         InstructionKind = "ADD"
	Cmd         InstructionKind = "CMD"
	Entrypoint  InstructionKind = "ENTRYPOINT"
	Env         InstructionKind = "ENV"
	Arg         InstructionKind = "ARG"
	Workdir     InstructionKind = "WORKDIR"
	User        InstructionKind = "USER"
	Expose      InstructionKind = "EXPOSE"
	Volume      InstructionKind = "VOLUME"
	Label       InstructionKind = "LABEL"
	Healthcheck InstructionKind = "HEALTHCHECK"
	Stopsignal  InstructionKind = "STOPSIGNAL"
	Shell       InstructionKind = "SHELL"
	Onbuild     InstructionKind = "ONBUILD"
)

// FromPayload is the argument payload of a FROM instruction.
type FromPayload struct {
	BaseImage string
	BaseTag   string
	Alias     string // stage alias from "AS <alias>", empty if absent
}

// RunPayload carries either the shell form ("RUN <text>") or the exec form
// ("RUN [\"a\",\"b\"]"), recording which form the source used.
type RunPayload struct {
	Shell bool     // true if the source was a single shell string
	Cmd   string   // raw command string, for the shell form
	Exec  []string // argv, for the exec form
}

// CopyPayload is shared by COPY and ADD (ADD never sets From).
type CopyPayload struct {
	From    string // --from=<stage>, empty if absent (COPY only)
	Chown   string // --chown=<spec>, empty if absent
	Chmod   string // --chmod=<perm>, empty if absent
	Sources []string
	Dest    string
}

// CmdEntrypointPayload carries CMD/ENTRYPOINT's shell-vs-exec form, same
// shape as RunPayload but kept distinct since CMD/ENTRYPOINT default to a
// single-element shell array, not a raw string, when exec form is absent.
type CmdEntrypointPayload struct {
	Shell bool
	Cmd   string
	Exec  []string
}

// EnvPayload is one KEY=VALUE or "KEY rest-of-line" pair.
type EnvPayload struct {
	Key   string
	Value string
}

// ArgPayload is "NAME[=DEFAULT]".
type ArgPayload struct {
	Name    string
	Default string
	HasDefault bool
}

// ExposePayload is "PORT[/PROTO]".
type ExposePayload struct {
	Port  uint16
	Proto string // defaults to "tcp"
}

// HealthcheckPayload. Disabled is true for "HEALTHCHECK NONE"; in that case
// all other fields are zero.
type HealthcheckPayload struct {
	Disabled     bool
	Interval     string
	Timeout      string
	StartPeriod  string
	Retries      int
	HasRetries   bool
	Cmd          string
}

// LabelPayload is a set of whitespace-separated k=v pairs, order-preserved.
type LabelPayload struct {
	Pairs []EnvPayload
}

// Instruction is a tagged union over one parsed build-file line (after
// continuation joining). Exactly one of the *Payload fields is meaningful,
// selected by Kind. Raw/Line let callers reconstruct a debug form without
// re-deriving it from the payload.
type Instruction struct {
	Kind InstructionKind
	Line int // 1-indexed source line where this instruction started
	Raw  string // the trimmed instruction argument text, pre-payload-parse

	From        *FromPayload
	Run         *RunPayload
	Copy        *CopyPayload
	CmdEnt      *CmdEntrypointPayload
	Env         *EnvPayload
	Arg         *ArgPayload
	Expose      *ExposePayload
	Healthcheck *HealthcheckPayload
	Label       *LabelPayload
	Shell       []string // SHELL's JSON array
	Simple      string   // WORKDIR/USER/VOLUME/STOPSIGNAL's single argument
}

// Debug renders a short human form similar to what a "history" entry's
// created_by records, e.g. "RUN cargo build" or "COPY . . /app".
func (i Instruction) Debug() string {
	switch i.Kind {
	case Run:
		if i.Run.Shell {
			return "RUN " + i.Run.Cmd
		}
		return "RUN " + i.Raw
	case Copy, Add:
		return string(i.Kind) + " " + i.Raw
	default:
		return string(i.Kind) + " " + i.Raw
	}
}

// Stage is one FROM-delimited segment of a build file. Instructions[0] is
// always this stage's From instruction.
type Stage struct {
	Name         string // alias from "AS <alias>", empty if absent
	BaseImage    string
	BaseTag      string // empty implies "latest"
	Instructions []Instruction
}

// File is the result of a successful parse: a non-empty ordered list of
// stages.
type File struct {
	Stages []Stage
}

// ParseError carries the 1-indexed source line the failure occurred at,
// when applicable (0 when the error isn't line-specific).
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return e.Message
	}
	return e.Message
}

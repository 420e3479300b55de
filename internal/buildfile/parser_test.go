package buildfile_test

import (
	"strings"
	"testing"

	"github.com/evoker-industries/rune/internal/buildfile"
)

func TestParseMultiStageBuild(t *testing.T) {
	input := `FROM rust:1.70 AS builder
WORKDIR /app
COPY . .
RUN cargo build --release

FROM debian:bookworm-slim
COPY --from=builder /app/target/release/myapp /usr/local/bin/
CMD ["myapp"]
`
	f, _, err := buildfile.Parse(input)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(f.Stages) != 2 {
		t.Fatalf("len(Stages) = %d, want 2", len(f.Stages))
	}
	s0 := f.Stages[0]
	if s0.Name != "builder" {
		t.Errorf("Stages[0].Name = %q, want builder", s0.Name)
	}
	if s0.BaseImage != "rust" || s0.BaseTag != "1.70" {
		t.Errorf("Stages[0] base = %q:%q, want rust:1.70", s0.BaseImage, s0.BaseTag)
	}
	if len(s0.Instructions) != 4 {
		t.Errorf("len(Stages[0].Instructions) = %d, want 4 (FROM, WORKDIR, COPY, RUN)", len(s0.Instructions))
	}

	s1 := f.Stages[1]
	if s1.BaseImage != "debian" || s1.BaseTag != "bookworm-slim" {
		t.Errorf("Stages[1] base = %q:%q, want debian:bookworm-slim", s1.BaseImage, s1.BaseTag)
	}
	if len(s1.Instructions) < 2 {
		t.Fatalf("Stages[1] has too few instructions")
	}
	copyInstr := s1.Instructions[1]
	if copyInstr.Kind != buildfile.Copy {
		t.Fatalf("Stages[1].Instructions[1].Kind = %v, want Copy", copyInstr.Kind)
	}
	if copyInstr.Copy.From != "builder" {
		t.Errorf("Copy.From = %q, want builder", copyInstr.Copy.From)
	}
}

func TestParseMultiStageBuildInstructionCount(t *testing.T) {
	input := `FROM rust:1.70 AS builder
WORKDIR /app
COPY . .
RUN cargo build --release
`
	f, _, err := buildfile.Parse(input)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := len(f.Stages[0].Instructions); got != 4 {
		t.Fatalf("len(Instructions) = %d, want 4 (FROM, WORKDIR, COPY, RUN)", got)
	}
	if f.Stages[0].Instructions[0].Kind != buildfile.From {
		t.Errorf("Instructions[0].Kind = %v, want From", f.Stages[0].Instructions[0].Kind)
	}
}

func TestFromStageCountMatchesInstructionCount(t *testing.T) {
	input := "FROM a\nFROM b\nFROM c\n"
	f, _, err := buildfile.Parse(input)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(f.Stages) != 3 {
		t.Fatalf("len(Stages) = %d, want 3", len(f.Stages))
	}
	for i, s := range f.Stages {
		if s.Instructions[0].Kind != buildfile.From {
			t.Errorf("stage %d: first instruction is %v, not From", i, s.Instructions[0].Kind)
		}
	}
}

func TestInstructionBeforeFrom(t *testing.T) {
	_, _, err := buildfile.Parse("RUN echo hi\nFROM scratch\n")
	if err == nil {
		t.Fatal("expected error for instruction before FROM")
	}
	if !strings.Contains(err.Error(), "Instruction before FROM") {
		t.Errorf("error = %v, want mention of Instruction before FROM", err)
	}
}

func TestArgBeforeFromAllowed(t *testing.T) {
	_, _, err := buildfile.Parse("ARG VERSION=1.0\nFROM scratch\n")
	if err != nil {
		t.Fatalf("Parse() error = %v, want ARG before FROM to be allowed", err)
	}
}

func TestNoFromInstructionFound(t *testing.T) {
	_, _, err := buildfile.Parse("# just a comment\n\n")
	if err == nil {
		t.Fatal("expected error for file with zero stages")
	}
	if !strings.Contains(err.Error(), "No FROM instruction found") {
		t.Errorf("error = %v", err)
	}
}

func TestLineContinuation(t *testing.T) {
	input := "FROM scratch\nRUN echo a \\\n    && echo b\n"
	f, _, err := buildfile.Parse(input)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	run := f.Stages[0].Instructions[1]
	if run.Kind != buildfile.Run {
		t.Fatalf("expected RUN instruction")
	}
	if !strings.Contains(run.Run.Cmd, "echo a") || !strings.Contains(run.Run.Cmd, "echo b") {
		t.Errorf("joined continuation = %q", run.Run.Cmd)
	}
}

func TestLineContinuationCrossesBlankAndComment(t *testing.T) {
	// §9 open question #6: continuation buffer persists across an
	// intervening blank line and comment line.
	input := "FROM scratch\nRUN echo a \\\n\n# a comment\n    echo b\n"
	f, _, err := buildfile.Parse(input)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	run := f.Stages[0].Instructions[1]
	if !strings.Contains(run.Run.Cmd, "echo a") || !strings.Contains(run.Run.Cmd, "echo b") {
		t.Errorf("joined continuation across blank/comment = %q", run.Run.Cmd)
	}
}

func TestUnclosedContinuationAtEOF(t *testing.T) {
	_, _, err := buildfile.Parse("FROM scratch\nRUN echo a \\\n")
	if err == nil {
		t.Fatal("expected error for unclosed continuation at EOF")
	}
}

func TestRunExecForm(t *testing.T) {
	f, _, err := buildfile.Parse("FROM scratch\nRUN [\"echo\", \"hi\"]\n")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	run := f.Stages[0].Instructions[1]
	if run.Run.Shell {
		t.Error("expected exec form, got shell form")
	}
	if len(run.Run.Exec) != 2 || run.Run.Exec[0] != "echo" {
		t.Errorf("Run.Exec = %v", run.Run.Exec)
	}
}

func TestExposeDefaultProto(t *testing.T) {
	f, _, err := buildfile.Parse("FROM scratch\nEXPOSE 8080\n")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	exp := f.Stages[0].Instructions[1].Expose
	if exp.Port != 8080 || exp.Proto != "tcp" {
		t.Errorf("Expose = %+v", exp)
	}
}

func TestExposeInvalidPort(t *testing.T) {
	_, _, err := buildfile.Parse("FROM scratch\nEXPOSE notaport\n")
	if err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestHealthcheckNone(t *testing.T) {
	f, _, err := buildfile.Parse("FROM scratch\nHEALTHCHECK NONE\n")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !f.Stages[0].Instructions[1].Healthcheck.Disabled {
		t.Error("expected Disabled = true")
	}
}

func TestHealthcheckWithFlags(t *testing.T) {
	f, _, err := buildfile.Parse("FROM scratch\nHEALTHCHECK --interval=5s --retries=3 CMD curl -f http://localhost/\n")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	hc := f.Stages[0].Instructions[1].Healthcheck
	if hc.Interval != "5s" || hc.Retries != 3 || hc.Cmd != "curl -f http://localhost/" {
		t.Errorf("Healthcheck = %+v", hc)
	}
}

func TestShellRequiresJSONArray(t *testing.T) {
	_, _, err := buildfile.Parse("FROM scratch\nSHELL notjson\n")
	if err == nil {
		t.Fatal("expected error for non-JSON SHELL argument")
	}
}

func TestUnknownInstructionFails(t *testing.T) {
	_, _, err := buildfile.Parse("FROM scratch\nBOGUS foo\n")
	if err == nil {
		t.Fatal("expected error for unknown instruction")
	}
}

func TestCopyFewTokensFailsValidation(t *testing.T) {
	// "COPY with fewer than two non-flag tokens records empty sources and
	// empty destination (no error)" at parse time; validation later fails it.
	_, _, err := buildfile.Parse("FROM scratch\nCOPY onlyone\n")
	if err == nil {
		t.Fatal("expected validation error (empty sources/dest), not a parse-time panic")
	}
}

func TestEnvBothForms(t *testing.T) {
	f, _, err := buildfile.Parse("FROM scratch\nENV A=B\nENV C D E\n")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	e1 := f.Stages[0].Instructions[1].Env
	if e1.Key != "A" || e1.Value != "B" {
		t.Errorf("ENV A=B -> %+v", e1)
	}
	e2 := f.Stages[0].Instructions[2].Env
	if e2.Key != "C" || e2.Value != "D E" {
		t.Errorf("ENV C D E -> %+v", e2)
	}
}

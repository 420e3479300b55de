package buildfile

import (
	"fmt"
	"strings"
)

// validate runs the non-fatal validation pass described in §4.B. Only the
// listed cases are fatal (empty base image, empty COPY/ADD src or dest,
// zero stages already caught by the parser); everything else is a warning.
func validate(f *File) ([]string, error) {
	var warnings []string
	seenNames := map[string]bool{}

	for si, stage := range f.Stages {
		if stage.BaseImage == "" {
			return warnings, &ParseError{Message: fmt.Sprintf("stage %d: empty base image", si)}
		}
		if stage.Name != "" {
			if seenNames[stage.Name] {
				warnings = append(warnings, fmt.Sprintf("stage %d: duplicate stage name %q", si, stage.Name))
			}
			seenNames[stage.Name] = true
		}

		for _, instr := range stage.Instructions {
			switch instr.Kind {
			case Copy, Add:
				if len(instr.Copy.Sources) == 0 || instr.Copy.Dest == "" {
					return warnings, &ParseError{Line: instr.Line, Message: fmt.Sprintf("%s requires source(s) and a destination", instr.Kind)}
				}
			case Expose:
				if instr.Expose.Port == 0 {
					warnings = append(warnings, fmt.Sprintf("line %d: EXPOSE 0 is suspicious", instr.Line))
				}
			case Workdir:
				if !strings.HasPrefix(instr.Simple, "/") && !strings.HasPrefix(instr.Simple, "$") {
					warnings = append(warnings, fmt.Sprintf("line %d: WORKDIR %q should be an absolute path or start with a variable", instr.Line, instr.Simple))
				}
			case InstructionKind("MAINTAINER"):
				warnings = append(warnings, fmt.Sprintf("line %d: MAINTAINER is deprecated", instr.Line))
			}
		}
	}

	return warnings, nil
}

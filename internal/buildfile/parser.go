package buildfile

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Parse tokenizes a Runefile/Dockerfile-dialect text into a File. Warnings
// are non-fatal validation findings (§4.B "Validation pass"); err is nil
// whenever parsing and validation both succeed.
func Parse(text string) (*File, []string, error) {
	p := &parser{lines: splitLines(text)}
	if err := p.run(); err != nil {
		return nil, nil, err
	}
	warnings, err := validate(p.file)
	if err != nil {
		return nil, warnings, err
	}
	return p.file, warnings, nil
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}

type parser struct {
	lines []string
	file  *File

	pending      string
	pendingStart int
	haveSeenFrom bool
	current      *Stage
}

func (p *parser) run() error {
	p.file = &File{}

	for i := 0; i < len(p.lines); i++ {
		lineNum := i + 1
		trimmed := strings.TrimSpace(p.lines[i])

		if p.pending != "" {
			if trimmed == "" || strings.HasPrefix(trimmed, "#") {
				// Continuation buffer persists across blank/comment lines.
				continue
			}
			content, cont := stripContinuation(trimmed)
			if cont {
				p.pending = p.pending + " " + content
				continue
			}
			if err := p.dispatch(p.pending+" "+content, p.pendingStart); err != nil {
				return err
			}
			p.pending = ""
			continue
		}

		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		content, cont := stripContinuation(trimmed)
		if cont {
			p.pending = content
			p.pendingStart = lineNum
			continue
		}
		if err := p.dispatch(content, lineNum); err != nil {
			return err
		}
	}

	if p.pending != "" {
		return &ParseError{Line: p.pendingStart, Message: "unclosed line continuation at EOF"}
	}

	if len(p.file.Stages) == 0 {
		return &ParseError{Message: "No FROM instruction found"}
	}

	return nil
}

// stripContinuation removes a trailing backslash from a trimmed line,
// returning the remainder and whether continuation is in effect.
func stripContinuation(trimmed string) (string, bool) {
	if strings.HasSuffix(trimmed, "\\") {
		return strings.TrimSpace(strings.TrimSuffix(trimmed, "\\")), true
	}
	return trimmed, false
}

func (p *parser) dispatch(line string, lineNum int) error {
	keyword, arg := splitKeyword(line)
	upper := strings.ToUpper(keyword)

	if upper != "FROM" && upper != "ARG" && !p.haveSeenFrom {
		return &ParseError{Line: lineNum, Message: "Instruction before FROM"}
	}

	switch InstructionKind(upper) {
	case From:
		payload, err := parseFrom(arg)
		if err != nil {
			return &ParseError{Line: lineNum, Message: err.Error()}
		}
		p.haveSeenFrom = true
		stage := Stage{Name: payload.Alias, BaseImage: payload.BaseImage, BaseTag: payload.BaseTag}
		instr := Instruction{Kind: From, Line: lineNum, Raw: arg, From: payload}
		stage.Instructions = append(stage.Instructions, instr)
		p.file.Stages = append(p.file.Stages, stage)
		p.current = &p.file.Stages[len(p.file.Stages)-1]
		return nil
	case Run:
		instr := Instruction{Kind: Run, Line: lineNum, Raw: arg, Run: parseRunOrCmd(arg)}
		return p.appendInstr(instr)
	case Copy:
		payload, err := parseCopyOrAdd(arg, true)
		if err != nil {
			return &ParseError{Line: lineNum, Message: err.Error()}
		}
		return p.appendInstr(Instruction{Kind: Copy, Line: lineNum, Raw: arg, Copy: payload})
	case Add:
		payload, err := parseCopyOrAdd(arg, false)
		if err != nil {
			return &ParseError{Line: lineNum, Message: err.Error()}
		}
		return p.appendInstr(Instruction{Kind: Add, Line: lineNum, Raw: arg, Copy: payload})
	case Cmd:
		rc := parseRunOrCmd(arg)
		return p.appendInstr(Instruction{Kind: Cmd, Line: lineNum, Raw: arg, CmdEnt: &CmdEntrypointPayload{Shell: rc.Shell, Cmd: rc.Cmd, Exec: rc.Exec}})
	case Entrypoint:
		rc := parseRunOrCmd(arg)
		return p.appendInstr(Instruction{Kind: Entrypoint, Line: lineNum, Raw: arg, CmdEnt: &CmdEntrypointPayload{Shell: rc.Shell, Cmd: rc.Cmd, Exec: rc.Exec}})
	case Env:
		return p.appendInstr(Instruction{Kind: Env, Line: lineNum, Raw: arg, Env: parseEnv(arg)})
	case Arg:
		instr := Instruction{Kind: Arg, Line: lineNum, Raw: arg, Arg: parseArg(arg)}
		if p.current == nil {
			// Global ARG seen before FROM: accepted, but not recorded in
			// any stage or elsewhere in the File.
			return nil
		}
		return p.appendInstr(instr)
	case Workdir, User, Volume, Stopsignal:
		return p.appendInstr(Instruction{Kind: InstructionKind(upper), Line: lineNum, Raw: arg, Simple: arg})
	case Expose:
		payload, err := parseExpose(arg)
		if err != nil {
			return &ParseError{Line: lineNum, Message: err.Error()}
		}
		return p.appendInstr(Instruction{Kind: Expose, Line: lineNum, Raw: arg, Expose: payload})
	case Label:
		return p.appendInstr(Instruction{Kind: Label, Line: lineNum, Raw: arg, Label: parseLabel(arg)})
	case Healthcheck:
		payload, err := parseHealthcheck(arg)
		if err != nil {
			return &ParseError{Line: lineNum, Message: err.Error()}
		}
		return p.appendInstr(Instruction{Kind: Healthcheck, Line: lineNum, Raw: arg, Healthcheck: payload})
	case Shell:
		arr, err := parseShellArray(arg)
		if err != nil {
			return &ParseError{Line: lineNum, Message: err.Error()}
		}
		return p.appendInstr(Instruction{Kind: Shell, Line: lineNum, Raw: arg, Shell: arr})
	case Onbuild:
		return p.appendInstr(Instruction{Kind: Onbuild, Line: lineNum, Raw: arg, Simple: arg})
	case "MAINTAINER":
		return p.appendInstr(Instruction{Kind: InstructionKind("MAINTAINER"), Line: lineNum, Raw: arg, Simple: arg})
	default:
		return &ParseError{Line: lineNum, Message: "unknown instruction: " + keyword}
	}
}

func (p *parser) appendInstr(instr Instruction) error {
	if p.current == nil {
		return &ParseError{Line: instr.Line, Message: "Instruction before FROM"}
	}
	p.current.Instructions = append(p.current.Instructions, instr)
	return nil
}

func splitKeyword(line string) (keyword, arg string) {
	idx := strings.IndexFunc(line, func(r rune) bool { return r == ' ' || r == '\t' })
	if idx < 0 {
		return line, ""
	}
	return line[:idx], strings.TrimSpace(line[idx+1:])
}

func parseFrom(arg string) (*FromPayload, error) {
	tokens := strings.Fields(arg)
	p := &FromPayload{}
	if len(tokens) == 0 {
		return p, nil
	}
	ref := tokens[0]
	if idx := strings.Index(ref, ":"); idx >= 0 {
		p.BaseImage = ref[:idx]
		p.BaseTag = ref[idx+1:]
	} else {
		p.BaseImage = ref
	}
	if len(tokens) >= 3 && strings.EqualFold(tokens[1], "AS") {
		p.Alias = tokens[2]
	}
	return p, nil
}

func parseRunOrCmd(arg string) *RunPayload {
	trimmed := strings.TrimSpace(arg)
	if strings.HasPrefix(trimmed, "[") {
		var arr []string
		_ = json.Unmarshal([]byte(trimmed), &arr)
		return &RunPayload{Shell: false, Exec: arr}
	}
	return &RunPayload{Shell: true, Cmd: trimmed}
}

func parseCopyOrAdd(arg string, allowFrom bool) (*CopyPayload, error) {
	p := &CopyPayload{}
	tokens := strings.Fields(arg)
	i := 0
	for i < len(tokens) && strings.HasPrefix(tokens[i], "--") {
		flag := tokens[i]
		kv := strings.SplitN(strings.TrimPrefix(flag, "--"), "=", 2)
		if len(kv) != 2 {
			i++
			continue
		}
		switch kv[0] {
		case "from":
			if allowFrom {
				p.From = kv[1]
			}
		case "chown":
			p.Chown = kv[1]
		case "chmod":
			p.Chmod = kv[1]
		}
		i++
	}
	rest := tokens[i:]
	if len(rest) >= 2 {
		p.Dest = rest[len(rest)-1]
		p.Sources = append([]string{}, rest[:len(rest)-1]...)
	}
	return p, nil
}

func parseEnv(arg string) *EnvPayload {
	if idx := strings.Index(arg, "="); idx >= 0 {
		return &EnvPayload{Key: arg[:idx], Value: arg[idx+1:]}
	}
	fields := strings.Fields(arg)
	if len(fields) == 0 {
		return &EnvPayload{}
	}
	key := fields[0]
	rest := strings.TrimSpace(strings.TrimPrefix(arg, key))
	return &EnvPayload{Key: key, Value: rest}
}

func parseArg(arg string) *ArgPayload {
	if idx := strings.Index(arg, "="); idx >= 0 {
		return &ArgPayload{Name: arg[:idx], Default: arg[idx+1:], HasDefault: true}
	}
	return &ArgPayload{Name: arg}
}

func parseExpose(arg string) (*ExposePayload, error) {
	parts := strings.SplitN(arg, "/", 2)
	proto := "tcp"
	if len(parts) == 2 && parts[1] != "" {
		proto = parts[1]
	}
	port, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil {
		return nil, &ParseError{Message: "invalid port number: " + parts[0]}
	}
	return &ExposePayload{Port: uint16(port), Proto: proto}, nil
}

func parseLabel(arg string) *LabelPayload {
	var pairs []EnvPayload
	for _, tok := range strings.Fields(arg) {
		if idx := strings.Index(tok, "="); idx >= 0 {
			pairs = append(pairs, EnvPayload{Key: tok[:idx], Value: tok[idx+1:]})
		} else {
			pairs = append(pairs, EnvPayload{Key: tok})
		}
	}
	return &LabelPayload{Pairs: pairs}
}

func parseHealthcheck(arg string) (*HealthcheckPayload, error) {
	trimmed := strings.TrimSpace(arg)
	if strings.EqualFold(trimmed, "NONE") {
		return &HealthcheckPayload{Disabled: true}, nil
	}

	p := &HealthcheckPayload{}
	rest := trimmed
	for {
		rest = strings.TrimLeft(rest, " \t")
		if rest == "CMD" || strings.HasPrefix(rest, "CMD ") || strings.HasPrefix(rest, "CMD\t") {
			p.Cmd = strings.TrimSpace(strings.TrimPrefix(rest, "CMD"))
			return p, nil
		}
		idx := strings.IndexAny(rest, " \t")
		var tok string
		if idx < 0 {
			tok = rest
			rest = ""
		} else {
			tok = rest[:idx]
			rest = rest[idx+1:]
		}
		if tok == "" {
			break
		}
		if strings.HasPrefix(tok, "--") {
			kv := strings.SplitN(strings.TrimPrefix(tok, "--"), "=", 2)
			if len(kv) == 2 {
				switch kv[0] {
				case "interval":
					p.Interval = kv[1]
				case "timeout":
					p.Timeout = kv[1]
				case "start-period":
					p.StartPeriod = kv[1]
				case "retries":
					if n, err := strconv.Atoi(kv[1]); err == nil {
						p.Retries = n
						p.HasRetries = true
					}
				}
			}
			continue
		}
		if tok == "CMD" {
			p.Cmd = strings.TrimSpace(rest)
			return p, nil
		}
		if rest == "" {
			break
		}
	}
	return nil, &ParseError{Message: "HEALTHCHECK requires CMD or NONE"}
}

func parseShellArray(arg string) ([]string, error) {
	trimmed := strings.TrimSpace(arg)
	if !strings.HasPrefix(trimmed, "[") {
		return nil, &ParseError{Message: "SHELL requires a JSON array"}
	}
	var arr []string
	if err := json.Unmarshal([]byte(trimmed), &arr); err != nil {
		return nil, &ParseError{Message: "SHELL requires a JSON array: " + err.Error()}
	}
	return arr, nil
}

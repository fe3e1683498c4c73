package claro

import (
	"context"
	"strings"
)

// ctlSignal is the explicit control-flow signal carried up the call
// chain instead of a process-wide flag. Each signal is consumed by the
// nearest construct that owns it: loops eat break/continue, call
// frames eat return. A signal that survives to the program driver is
// an interpreter bug.
type ctlSignal int

const (
	sigNone ctlSignal = iota
	sigBreak
	sigContinue
	sigReturn
)

func (s ctlSignal) String() string {
	switch s {
	case sigBreak:
		return "BREAK"
	case sigContinue:
		return "CONTINUE"
	case sigReturn:
		return "RETURN"
	}
	return "NONE"
}

// outcome is the result of dispatching one statement: the index of the
// next line to execute, or a pending control signal that the enclosing
// construct must consume.
type outcome struct {
	next   int
	signal ctlSignal
}

// runRange executes lines [start, end) sequentially, stopping early
// when a statement raises a control signal or an error. The state lock
// is taken around each statement and released between them, so Stop
// and the inspection accessors get a turn even inside a long body.
// Assumes lock is NOT held.
func (b *Interp) runRange(ctx context.Context, fr *frame, start, end int) (ctlSignal, error) {
	idx := start
	for idx < end {
		select {
		case <-ctx.Done():
			return sigNone, ctx.Err()
		default:
		}
		b.mu.Lock()
		out, err := b.execLine(ctx, fr, idx)
		b.mu.Unlock()
		if err != nil {
			return sigNone, err
		}
		if out.signal != sigNone {
			return out.signal, nil
		}
		idx = out.next
	}
	return sigNone, nil
}

// runBody releases the state lock around a block body so the body runs
// with per-statement locking like the top-level driver. Called by the
// compound constructs, which execute under the lock themselves.
// Assumes lock is held on entry and on return.
func (b *Interp) runBody(ctx context.Context, fr *frame, start, end int) (ctlSignal, error) {
	b.mu.Unlock()
	defer b.mu.Lock()
	return b.runRange(ctx, fr, start, end)
}

// execLine dispatches a single statement at idx within the frame and
// returns the next line index. Keyword dispatch is case-insensitive on
// the first token. Assumes lock is held.
func (b *Interp) execLine(ctx context.Context, fr *frame, idx int) (outcome, error) {
	line := fr.lines[idx]
	keyword := keywordOf(line.text)
	args := argsOf(line.text)
	ln := line.num

	switch keyword {
	case "PRINT":
		if args == "" {
			return outcome{}, NewClaroError(ErrCategorySyntax, CodeMissingArgument, b.directMode, ln).WithCommand("PRINT")
		}
		v, err := b.eval(args, fr.env, ln)
		if err != nil {
			return outcome{}, err
		}
		b.emit(v.String())
		return outcome{next: idx + 1}, nil

	case "VARIABLE", "SET":
		name, expr, err := parseAssignment(args, keyword, b.directMode, ln)
		if err != nil {
			return outcome{}, err
		}
		v, err := b.eval(expr, fr.env, ln)
		if err != nil {
			return outcome{}, err
		}
		fr.env[name] = v
		return outcome{next: idx + 1}, nil

	case "STRING":
		name, expr, err := parseAssignment(args, keyword, b.directMode, ln)
		if err != nil {
			return outcome{}, err
		}
		v, err := b.eval(expr, fr.env, ln)
		if err != nil {
			return outcome{}, err
		}
		fr.env[name] = StrValue(v.String())
		return outcome{next: idx + 1}, nil

	case "LIST":
		name, expr, err := parseAssignment(args, keyword, b.directMode, ln)
		if err != nil {
			return outcome{}, err
		}
		v, err := b.eval(expr, fr.env, ln)
		if err != nil {
			return outcome{}, err
		}
		if v.Kind != KindList {
			return outcome{}, NewClaroError(ErrCategoryEvaluation, CodeTypeMismatch, b.directMode, ln).
				WithCommand("LIST").WithDetail("expected a list, got %s", v.KindName())
		}
		fr.env[name] = v
		return outcome{next: idx + 1}, nil

	case "DICT":
		name, expr, err := parseAssignment(args, keyword, b.directMode, ln)
		if err != nil {
			return outcome{}, err
		}
		if !strings.HasPrefix(strings.TrimSpace(expr), "{") {
			expr = "{" + expr + "}"
		}
		v, err := b.eval(expr, fr.env, ln)
		if err != nil {
			return outcome{}, err
		}
		if v.Kind != KindMap {
			return outcome{}, NewClaroError(ErrCategoryEvaluation, CodeTypeMismatch, b.directMode, ln).
				WithCommand("DICT").WithDetail("expected a map, got %s", v.KindName())
		}
		fr.env[name] = v
		return outcome{next: idx + 1}, nil

	case "IF":
		return b.execIf(fr, idx, args)

	case "ELSE":
		// Reached only by falling through a completed true branch; the
		// else body is skipped entirely.
		endIdx, err := findBlockEnd(fr.lines, idx)
		if err != nil {
			return outcome{}, err
		}
		return outcome{next: endIdx + 1}, nil

	case "WHILE":
		return b.execWhile(ctx, fr, idx, args)

	case "FOR":
		return b.execFor(ctx, fr, idx, args)

	case "FUNC":
		return b.execFuncDef(fr, idx, args)

	case "CALL":
		return b.execCall(ctx, fr, idx, args)

	case "RETURN":
		return b.execReturn(fr, idx, args)

	case "TRY":
		return b.execTry(ctx, fr, idx)

	case "BREAK":
		return outcome{next: len(fr.lines), signal: sigBreak}, nil

	case "CONTINUE":
		return outcome{next: len(fr.lines), signal: sigContinue}, nil

	case "INPUT":
		return b.execInput(fr, idx, args)

	case "COMMENT":
		return outcome{next: idx + 1}, nil

	case "IMPORT":
		return b.execImport(ctx, fr, idx, args)

	case "READFILE":
		return b.execReadFile(fr, idx, args)

	case "WRITEFILE":
		return b.execWriteFile(fr, idx, args)

	case "END":
		// Block terminator. Constructs jump over their END, and loop
		// bodies are bounded exclusively, so an executed END simply
		// advances.
		return outcome{next: idx + 1}, nil

	case "EXCEPT", "FINALLY":
		// The try runner executes around its markers, never onto them,
		// so dispatching one means there was no enclosing TRY.
		return outcome{}, NewClaroError(ErrCategorySyntax, CodeInvalidStatement, b.directMode, ln).
			WithCommand(keyword).WithDetail("%s without TRY", keyword)

	default:
		return outcome{}, NewClaroError(ErrCategorySyntax, CodeInvalidStatement, b.directMode, ln).
			WithDetail("unknown keyword %q", keyword)
	}
}

// execIf evaluates the condition and either falls into the block or
// jumps past it to the else body or the END.
func (b *Interp) execIf(fr *frame, idx int, args string) (outcome, error) {
	ln := fr.lines[idx].num
	if args == "" {
		return outcome{}, NewClaroError(ErrCategorySyntax, CodeMissingArgument, b.directMode, ln).WithCommand("IF")
	}
	cond, err := b.eval(args, fr.env, ln)
	if err != nil {
		return outcome{}, err
	}
	if isTruthy(cond) {
		return outcome{next: idx + 1}, nil
	}
	branch, err := findElseOrEnd(fr.lines, idx)
	if err != nil {
		return outcome{}, err
	}
	// Either the first line of the else body, or the line after END.
	return outcome{next: branch + 1}, nil
}

// execInput reads one line from the input collaborator and binds it as
// a string under the given variable name.
func (b *Interp) execInput(fr *frame, idx int, args string) (outcome, error) {
	ln := fr.lines[idx].num
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return outcome{}, NewClaroError(ErrCategorySyntax, CodeMissingArgument, b.directMode, ln).WithCommand("INPUT")
	}
	name := fields[0]
	if !isValidIdent(name) {
		return outcome{}, NewClaroError(ErrCategorySyntax, CodeMissingArgument, b.directMode, ln).
			WithCommand("INPUT").WithDetail("invalid variable name %q", name)
	}
	prompt := unquotePath(strings.TrimSpace(strings.TrimPrefix(args, name)))
	if prompt == "" {
		prompt = "Enter value for " + name + ":"
	}

	reader := b.input
	if reader == nil {
		return outcome{}, NewClaroError(ErrCategoryIO, CodeInputError, b.directMode, ln).
			WithCommand("INPUT").WithDetail("%v", ErrNilInputReader)
	}

	// Reading blocks on the host; release the state lock while waiting.
	b.mu.Unlock()
	text, err := reader(prompt)
	b.mu.Lock()
	if err != nil {
		return outcome{}, NewClaroError(ErrCategoryIO, CodeInputError, b.directMode, ln).
			WithCommand("INPUT").WithDetail("%v", err)
	}
	fr.env[name] = StrValue(strings.TrimSpace(text))
	return outcome{next: idx + 1}, nil
}

// execImport loads a stored script and executes its lines in the
// current environment.
func (b *Interp) execImport(ctx context.Context, fr *frame, idx int, args string) (outcome, error) {
	ln := fr.lines[idx].num
	path := unquotePath(args)
	if path == "" {
		return outcome{}, NewClaroError(ErrCategorySyntax, CodeMissingArgument, b.directMode, ln).WithCommand("IMPORT")
	}
	if b.fs == nil {
		return outcome{}, NewClaroError(ErrCategoryIO, CodeFileError, b.directMode, ln).
			WithCommand("IMPORT").WithDetail("%v", ErrNilFileSystem)
	}
	src, err := b.fs.ReadText(path)
	if err != nil {
		return outcome{}, NewClaroError(ErrCategoryIO, CodeFileError, b.directMode, ln).
			WithCommand("IMPORT").WithDetail("%v", err)
	}
	sub := &frame{lines: parseSource(src), env: fr.env}
	sig, err := b.runBody(ctx, sub, 0, len(sub.lines))
	if err != nil {
		return outcome{}, err
	}
	if sig != sigNone {
		return outcome{}, NewClaroError(ErrCategoryInternal, CodeSignalLeak, b.directMode, ln).
			WithCommand("IMPORT").WithDetail("signal %v escaped imported script %s", sig, path)
	}
	return outcome{next: idx + 1}, nil
}

// execReadFile binds the text content of a stored file to a variable.
func (b *Interp) execReadFile(fr *frame, idx int, args string) (outcome, error) {
	ln := fr.lines[idx].num
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return outcome{}, NewClaroError(ErrCategorySyntax, CodeMissingArgument, b.directMode, ln).WithCommand("READFILE")
	}
	name := fields[0]
	if !isValidIdent(name) {
		return outcome{}, NewClaroError(ErrCategorySyntax, CodeMissingArgument, b.directMode, ln).
			WithCommand("READFILE").WithDetail("invalid variable name %q", name)
	}
	path := unquotePath(strings.TrimSpace(strings.TrimPrefix(args, name)))
	if b.fs == nil {
		return outcome{}, NewClaroError(ErrCategoryIO, CodeFileError, b.directMode, ln).
			WithCommand("READFILE").WithDetail("%v", ErrNilFileSystem)
	}
	content, err := b.fs.ReadText(path)
	if err != nil {
		return outcome{}, NewClaroError(ErrCategoryIO, CodeFileError, b.directMode, ln).
			WithCommand("READFILE").WithDetail("%v", err)
	}
	fr.env[name] = StrValue(content)
	return outcome{next: idx + 1}, nil
}

// execWriteFile writes the display form of an expression to a file.
func (b *Interp) execWriteFile(fr *frame, idx int, args string) (outcome, error) {
	ln := fr.lines[idx].num
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return outcome{}, NewClaroError(ErrCategorySyntax, CodeMissingArgument, b.directMode, ln).WithCommand("WRITEFILE")
	}
	path := unquotePath(fields[0])
	expr := strings.TrimSpace(strings.TrimPrefix(args, fields[0]))
	v, err := b.eval(expr, fr.env, ln)
	if err != nil {
		return outcome{}, err
	}
	if b.fs == nil {
		return outcome{}, NewClaroError(ErrCategoryIO, CodeFileError, b.directMode, ln).
			WithCommand("WRITEFILE").WithDetail("%v", ErrNilFileSystem)
	}
	if err := b.fs.WriteText(path, v.String()); err != nil {
		return outcome{}, NewClaroError(ErrCategoryIO, CodeFileError, b.directMode, ln).
			WithCommand("WRITEFILE").WithDetail("%v", err)
	}
	return outcome{next: idx + 1}, nil
}

// parseAssignment splits "name = expr" (or the legacy "name expr"
// form) and validates the target name.
func parseAssignment(args, command string, directMode bool, ln int) (string, string, error) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return "", "", NewClaroError(ErrCategorySyntax, CodeMissingArgument, directMode, ln).
			WithCommand(command).WithDetail("expected %s name = expression", command)
	}
	name := fields[0]
	if !isValidIdent(name) {
		return "", "", NewClaroError(ErrCategorySyntax, CodeMissingArgument, directMode, ln).
			WithCommand(command).WithDetail("invalid variable name %q", name)
	}
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(args), name))
	if strings.HasPrefix(rest, "=") {
		rest = strings.TrimSpace(rest[1:])
	}
	if rest == "" {
		return "", "", NewClaroError(ErrCategorySyntax, CodeMissingArgument, directMode, ln).
			WithCommand(command).WithDetail("missing value expression")
	}
	return name, rest, nil
}

// isValidIdent reports whether s is a legal variable or function name.
func isValidIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// unquotePath strips optional surrounding quotes from a path argument.
func unquotePath(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

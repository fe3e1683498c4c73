package claro

import (
	"context"
	"strings"
)

// execFuncDef stores a FUNC name [param...] definition. The body lines
// are collected raw up to the matching END and only execute on CALL; a
// redefinition silently overwrites the previous one.
func (b *Interp) execFuncDef(fr *frame, idx int, args string) (outcome, error) {
	ln := fr.lines[idx].num
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return outcome{}, NewClaroError(ErrCategorySyntax, CodeFunctionDefinition, b.directMode, ln).
			WithCommand("FUNC").WithDetail("missing function name")
	}
	name := fields[0]
	if !isValidIdent(name) {
		return outcome{}, NewClaroError(ErrCategorySyntax, CodeFunctionDefinition, b.directMode, ln).
			WithCommand("FUNC").WithDetail("invalid function name %q", name)
	}
	params := fields[1:]
	for _, p := range params {
		if !isValidIdent(p) {
			return outcome{}, NewClaroError(ErrCategorySyntax, CodeFunctionDefinition, b.directMode, ln).
				WithCommand("FUNC").WithDetail("invalid parameter name %q", p)
		}
	}

	endIdx, err := findBlockEnd(fr.lines, idx)
	if err != nil {
		return outcome{}, err
	}

	body := make([]sourceLine, endIdx-idx-1)
	copy(body, fr.lines[idx+1:endIdx])
	b.funcs[name] = &FuncDef{Name: name, Params: params, Body: body}
	claroDebugLog("defined function %s/%d with %d body lines", name, len(params), len(body))

	// Skip the body; it only runs on CALL.
	return outcome{next: endIdx + 1}, nil
}

// execCall invokes a stored function. Arguments are evaluated eagerly
// against the caller's environment; the call runs in a copy of that
// environment which is merged back afterwards, last write wins. Calls
// are deliberately not lexically isolated.
func (b *Interp) execCall(ctx context.Context, fr *frame, idx int, args string) (outcome, error) {
	ln := fr.lines[idx].num
	fields := splitArgs(args)
	if len(fields) == 0 {
		return outcome{}, NewClaroError(ErrCategorySyntax, CodeMissingArgument, b.directMode, ln).WithCommand("CALL")
	}
	name := fields[0]
	def, ok := b.funcs[name]
	if !ok {
		return outcome{}, NewClaroError(ErrCategoryRuntime, CodeUndefinedFunction, b.directMode, ln).
			WithCommand("CALL").WithDetail("%q", name)
	}
	argExprs := fields[1:]
	if len(argExprs) != len(def.Params) {
		return outcome{}, NewClaroError(ErrCategoryRuntime, CodeArityMismatch, b.directMode, ln).
			WithCommand("CALL").WithDetail("%s expects %d arguments, got %d", name, len(def.Params), len(argExprs))
	}
	if b.callDepth >= b.maxCallDepth {
		return outcome{}, NewClaroError(ErrCategoryRuntime, CodeRecursionLimit, b.directMode, ln).
			WithCommand("CALL").WithDetail("depth %d", b.callDepth)
	}

	// Bind parameters over a copy of the caller's environment.
	callEnv := copyEnv(fr.env)
	for i, expr := range argExprs {
		v, err := b.eval(expr, fr.env, ln)
		if err != nil {
			return outcome{}, err
		}
		callEnv[def.Params[i]] = v
	}

	callFrame := &frame{lines: def.Body, env: callEnv}
	b.callDepth++
	sig, err := b.runBody(ctx, callFrame, 0, len(def.Body))
	b.callDepth--
	if err != nil {
		return outcome{}, err
	}
	switch sig {
	case sigNone, sigReturn:
		// RETURN unwinds to exactly here.
	default:
		return outcome{}, NewClaroError(ErrCategoryInternal, CodeSignalLeak, b.directMode, ln).
			WithCommand("CALL").WithDetail("signal %v escaped function %s", sig, name)
	}

	// Merge-out: everything visible at the end of the call, including
	// newly created locals, becomes visible to the caller.
	for k, v := range callEnv {
		fr.env[k] = v
	}
	return outcome{next: idx + 1}, nil
}

// execReturn exits the current function body early. The optional
// expression value is bound under RESULT in the call environment and
// therefore merged back to the caller.
func (b *Interp) execReturn(fr *frame, idx int, args string) (outcome, error) {
	ln := fr.lines[idx].num
	if b.callDepth == 0 {
		return outcome{}, NewClaroError(ErrCategoryRuntime, CodeReturnOutsideFunc, b.directMode, ln).WithCommand("RETURN")
	}
	if args != "" {
		v, err := b.eval(args, fr.env, ln)
		if err != nil {
			return outcome{}, err
		}
		fr.env["RESULT"] = v
	}
	return outcome{next: len(fr.lines), signal: sigReturn}, nil
}

// splitArgs splits a CALL argument list on top-level whitespace,
// keeping quoted strings and bracketed literals intact so expressions
// like [1, 2] or "a b" count as one argument.
func splitArgs(s string) []string {
	var out []string
	var sb strings.Builder
	depth := 0
	inString := false

	flush := func() {
		if sb.Len() > 0 {
			out = append(out, sb.String())
			sb.Reset()
		}
	}

	for _, r := range s {
		switch {
		case inString:
			sb.WriteRune(r)
			if r == '"' {
				inString = false
			}
		case r == '"':
			inString = true
			sb.WriteRune(r)
		case r == '(' || r == '[' || r == '{':
			depth++
			sb.WriteRune(r)
		case r == ')' || r == ']' || r == '}':
			depth--
			sb.WriteRune(r)
		case (r == ' ' || r == '\t') && depth == 0:
			flush()
		default:
			sb.WriteRune(r)
		}
	}
	flush()
	return out
}

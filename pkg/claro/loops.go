package claro

import (
	"context"
	"strings"
)

// execWhile drives a WHILE loop. The condition is re-evaluated before
// every pass, including the first; break and continue signals from the
// body are consumed here and never observed by an outer loop.
func (b *Interp) execWhile(ctx context.Context, fr *frame, idx int, args string) (outcome, error) {
	ln := fr.lines[idx].num
	if args == "" {
		return outcome{}, NewClaroError(ErrCategorySyntax, CodeMissingArgument, b.directMode, ln).WithCommand("WHILE")
	}
	endIdx, err := findBlockEnd(fr.lines, idx)
	if err != nil {
		return outcome{}, err
	}

	for {
		select {
		case <-ctx.Done():
			return outcome{}, ctx.Err()
		default:
		}

		cond, err := b.eval(args, fr.env, ln)
		if err != nil {
			return outcome{}, err
		}
		if !isTruthy(cond) {
			break
		}

		sig, err := b.runBody(ctx, fr, idx+1, endIdx)
		if err != nil {
			return outcome{}, err
		}
		switch sig {
		case sigBreak:
			return outcome{next: endIdx + 1}, nil
		case sigContinue:
			continue
		case sigReturn:
			// Not ours to consume; the enclosing call frame takes it.
			return outcome{next: endIdx + 1, signal: sigReturn}, nil
		}
	}
	return outcome{next: endIdx + 1}, nil
}

// execFor drives a FOR v IN iterable loop. The iterable is evaluated
// once and snapshotted before the first pass; mutations during the
// loop do not affect the remaining iterations.
func (b *Interp) execFor(ctx context.Context, fr *frame, idx int, args string) (outcome, error) {
	ln := fr.lines[idx].num
	name, iterExpr, err := parseForHeader(args, b.directMode, ln)
	if err != nil {
		return outcome{}, err
	}
	endIdx, err := findBlockEnd(fr.lines, idx)
	if err != nil {
		return outcome{}, err
	}

	iterable, err := b.eval(iterExpr, fr.env, ln)
	if err != nil {
		return outcome{}, err
	}
	elements, err := iterate(iterable, b.directMode, ln)
	if err != nil {
		return outcome{}, err
	}

	for _, elem := range elements {
		select {
		case <-ctx.Done():
			return outcome{}, ctx.Err()
		default:
		}

		fr.env[name] = elem
		sig, err := b.runBody(ctx, fr, idx+1, endIdx)
		if err != nil {
			return outcome{}, err
		}
		switch sig {
		case sigBreak:
			return outcome{next: endIdx + 1}, nil
		case sigContinue:
			continue
		case sigReturn:
			return outcome{next: endIdx + 1, signal: sigReturn}, nil
		}
	}
	return outcome{next: endIdx + 1}, nil
}

// parseForHeader splits "var IN expr" with a case-insensitive IN.
func parseForHeader(args string, directMode bool, ln int) (string, string, error) {
	fields := strings.Fields(args)
	if len(fields) < 3 || !strings.EqualFold(fields[1], "IN") {
		return "", "", NewClaroError(ErrCategorySyntax, CodeMissingArgument, directMode, ln).
			WithCommand("FOR").WithDetail("expected FOR var IN iterable")
	}
	name := fields[0]
	if !isValidIdent(name) {
		return "", "", NewClaroError(ErrCategorySyntax, CodeMissingArgument, directMode, ln).
			WithCommand("FOR").WithDetail("invalid loop variable %q", name)
	}
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(args), name))
	rest = strings.TrimSpace(rest[len("IN"):])
	if rest == "" {
		return "", "", NewClaroError(ErrCategorySyntax, CodeMissingArgument, directMode, ln).
			WithCommand("FOR").WithDetail("missing iterable expression")
	}
	return name, rest, nil
}

// iterate snapshots a value into its iteration order. Lists iterate
// elements; strings iterate one-character substrings. Maps have no
// defined order and are rejected.
func iterate(v Value, directMode bool, ln int) ([]Value, error) {
	switch v.Kind {
	case KindList:
		out := make([]Value, len(v.List))
		copy(out, v.List)
		return out, nil
	case KindStr:
		out := make([]Value, 0, len(v.Str))
		for _, r := range v.Str {
			out = append(out, StrValue(string(r)))
		}
		return out, nil
	default:
		return nil, NewClaroError(ErrCategoryEvaluation, CodeNotIterable, directMode, ln).
			WithCommand("FOR").WithDetail("cannot iterate %s", v.KindName())
	}
}

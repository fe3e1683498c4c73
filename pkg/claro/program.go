package claro

import (
	"strings"
)

// sourceLine is one executable program line. Num is the 1-based line
// number in the original source text, kept for diagnostics after
// comments and blank lines have been stripped.
type sourceLine struct {
	text string
	num  int
}

// parseSource splits raw source into executable lines. Blank lines and
// '#' comment lines are removed; the surviving lines keep their
// original 1-based numbers so errors point at the file the user wrote.
func parseSource(src string) []sourceLine {
	src = strings.ReplaceAll(src, "\r\n", "\n")
	src = strings.ReplaceAll(src, "\r", "\n")

	var lines []sourceLine
	for i, raw := range strings.Split(src, "\n") {
		text := strings.TrimSpace(raw)
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		lines = append(lines, sourceLine{text: text, num: i + 1})
	}
	return lines
}

// keywordOf returns the uppercased leading keyword of a line.
func keywordOf(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

// argsOf returns everything after the leading keyword with original
// spacing preserved.
func argsOf(text string) string {
	trimmed := strings.TrimSpace(text)
	idx := strings.IndexAny(trimmed, " \t")
	if idx == -1 {
		return ""
	}
	return strings.TrimSpace(trimmed[idx:])
}

// opensBlock reports whether the keyword starts a nested block for the
// purposes of END matching.
func opensBlock(keyword string) bool {
	switch keyword {
	case "IF", "WHILE", "FOR", "FUNC", "TRY":
		return true
	}
	return false
}

// findBlockEnd scans forward from openIdx and returns the index of the
// matching END, honoring nesting. This is the single block-matching
// routine every construct relies on.
func findBlockEnd(lines []sourceLine, openIdx int) (int, error) {
	depth := 0
	for i := openIdx + 1; i < len(lines); i++ {
		switch kw := keywordOf(lines[i].text); {
		case opensBlock(kw):
			depth++
		case kw == "END":
			if depth == 0 {
				return i, nil
			}
			depth--
		}
	}
	return 0, NewClaroError(ErrCategorySyntax, CodeUnterminatedBlock, false, lines[openIdx].num).
		WithCommand(keywordOf(lines[openIdx].text))
}

// findElseOrEnd is the IF-specific variant of findBlockEnd: an ELSE at
// nesting depth zero matches before the END does.
func findElseOrEnd(lines []sourceLine, openIdx int) (int, error) {
	depth := 0
	for i := openIdx + 1; i < len(lines); i++ {
		switch kw := keywordOf(lines[i].text); {
		case opensBlock(kw):
			depth++
		case kw == "ELSE" && depth == 0:
			return i, nil
		case kw == "END":
			if depth == 0 {
				return i, nil
			}
			depth--
		}
	}
	return 0, NewClaroError(ErrCategorySyntax, CodeUnterminatedBlock, false, lines[openIdx].num).
		WithCommand("IF")
}

// tryRegions are the three sub-ranges of a TRY block. Except and
// finally are empty ranges when the marker is absent. All bounds are
// exclusive on the right.
type tryRegions struct {
	tryStart, tryEnd         int
	exceptStart, exceptEnd   int
	finallyStart, finallyEnd int
	endIdx                   int
}

// splitTry partitions a TRY block into try/except/finally sub-ranges.
func splitTry(lines []sourceLine, openIdx int) (tryRegions, error) {
	endIdx, err := findBlockEnd(lines, openIdx)
	if err != nil {
		return tryRegions{}, err
	}

	exceptIdx, finallyIdx := -1, -1
	depth := 0
	for i := openIdx + 1; i < endIdx; i++ {
		kw := keywordOf(lines[i].text)
		switch {
		case opensBlock(kw):
			depth++
		case kw == "END":
			depth--
		case depth == 0 && kw == "EXCEPT" && exceptIdx == -1:
			exceptIdx = i
		case depth == 0 && kw == "FINALLY" && finallyIdx == -1:
			finallyIdx = i
		}
	}

	r := tryRegions{tryStart: openIdx + 1, endIdx: endIdx}
	switch {
	case exceptIdx != -1 && finallyIdx != -1:
		r.tryEnd = exceptIdx
		r.exceptStart, r.exceptEnd = exceptIdx+1, finallyIdx
		r.finallyStart, r.finallyEnd = finallyIdx+1, endIdx
	case exceptIdx != -1:
		r.tryEnd = exceptIdx
		r.exceptStart, r.exceptEnd = exceptIdx+1, endIdx
	case finallyIdx != -1:
		r.tryEnd = finallyIdx
		r.finallyStart, r.finallyEnd = finallyIdx+1, endIdx
	default:
		r.tryEnd = endIdx
	}
	return r, nil
}

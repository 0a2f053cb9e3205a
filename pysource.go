package forwardedit

import (
	"strings"
)

// ImportInsertionLine returns the 0-based index of the line before which
// the forward import belongs: the first top-level statement after an
// optional module docstring. Comments, blank lines and a "#!" line are
// skipped. String literals are tokenized, so quote characters and "#"
// inside a docstring never end it early. A docstring may be wrapped in
// parentheses and implicitly concatenated across lines.
func ImportInsertionLine(lines []string) int {
	first := nextStatement(lines, 0)
	if first >= len(lines) {
		return first
	}

	ln, col := first, 0
	if first == 0 {
		col = len(lines[0]) - len(strings.TrimPrefix(lines[0], "\ufeff"))
	}

	// Anything but a string expression statement means there is no docstring.
	depth, prev := 0, tokenStart
	for {
		line := lines[ln]
		col = skipBlanks(line, col)
		done := depth == 0 && (prev == tokenString || prev == tokenClose)

		switch {
		case col >= len(line) || line[col] == '#':
			if done {
				return nextStatement(lines, ln+1)
			}
			// Inside parentheses the statement goes on.
			if depth == 0 || ln+1 >= len(lines) {
				return first
			}
			ln, col = ln+1, 0
		case line[col] == '\\' && col == len(line)-1:
			if ln+1 >= len(lines) {
				if done {
					return len(lines)
				}
				return first
			}
			ln, col = ln+1, 0
		case line[col] == ';':
			if done {
				return ln
			}
			return first
		case line[col] == '(':
			if prev != tokenStart && prev != tokenOpen {
				return first
			}
			depth, prev, col = depth+1, tokenOpen, col+1
		case line[col] == ')':
			if depth == 0 || (prev != tokenString && prev != tokenClose) {
				return first
			}
			depth, prev, col = depth-1, tokenClose, col+1
		default:
			if prev == tokenClose {
				return first
			}
			end, endCol, ok := scanStringLiteral(lines, ln, col)
			if !ok {
				return first
			}
			ln, col, prev = end, endCol, tokenString
		}
	}
}

// Kinds of the previous token while matching a docstring statement.
const (
	tokenStart = iota
	tokenOpen
	tokenString
	tokenClose
)

// nextStatement returns the index of the first line at or after i that
// holds code, or len(lines) if there is none.
func nextStatement(lines []string, i int) int {
	for ; i < len(lines); i++ {
		stripped := strings.TrimSpace(strings.TrimPrefix(lines[i], "\ufeff"))
		if stripped == "" || strings.HasPrefix(stripped, "#") {
			continue
		}
		return i
	}
	return len(lines)
}

func indentWidth(line string) int {
	return skipBlanks(line, 0)
}

func skipBlanks(line string, col int) int {
	for col < len(line) && (line[col] == ' ' || line[col] == '\t' || line[col] == '\f') {
		col++
	}
	return col
}

// scanStringLiteral scans a docstring-eligible literal (no b or f prefix)
// starting at lines[ln][col]. It returns the position just past the
// closing quote.
func scanStringLiteral(lines []string, ln, col int) (int, int, bool) {
	line := lines[ln]
	if col < len(line) && strings.ContainsRune("rRuU", rune(line[col])) {
		col++
	}
	if col >= len(line) || (line[col] != '"' && line[col] != '\'') {
		return 0, 0, false
	}

	quote := line[col]
	delim := string(quote)
	if strings.HasPrefix(line[col:], strings.Repeat(delim, 3)) {
		delim = strings.Repeat(delim, 3)
	}
	col += len(delim)
	triple := len(delim) == 3

	for ln < len(lines) {
		line = lines[ln]
		for col < len(line) {
			switch {
			case line[col] == '\\':
				col += 2
			case strings.HasPrefix(line[col:], delim):
				return ln, col + len(delim), true
			default:
				col++
			}
		}
		// A trailing backslash continues a single-quoted string.
		if !triple && !(len(line) > 0 && col == len(line)+1) {
			return 0, 0, false
		}
		ln, col = ln+1, 0
	}
	return 0, 0, false
}

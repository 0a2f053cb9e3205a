package forwardedit

import (
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Marker lines, compared after stripping surrounding whitespace.
const (
	ImportLine               = "from forward import *"
	DelForwardLine           = "del forward"
	DelContinueLine          = "del continue_"
	ForwardDecoratorLine     = "@forward()"
	ContinuationOpenerLine   = "class _____:"
	IgnoreSentinelLine       = "# hey, forward.tools.editor! ignore this file!"
	continuationPlaceholder  = "    ..."
	continuationDecoratorFmt = "@continue_(%s)"
)

// Files containing a line with one of these prefixes are abandoned whole:
// slotted and enum-metaclass classes do not survive the transformation.
var RejectionPrefixes = []string{
	"@dataclass(slots=True)",
	"@enum.global_enum",
	"@enum._simple_enum",
	"@global_enum",
	"@_simple_enum",
	"__slots__ = ",
}

var (
	classNamePattern = regexp.MustCompile(`^class ([_A-Za-z0-9]+)[( :]`)
	lineTerminators  = strings.NewReplacer("\r\n", "\n", "\r", "\n")
)

var linesToStrip = map[string]bool{
	ImportLine:      true,
	DelForwardLine:  true,
	DelContinueLine: true,
}

type scanState int

const (
	stateDetect scanState = iota
	stateInitial
	stateEmitClassDeclaration
	stateLookingForContinuation
)

func (s scanState) String() string {
	switch s {
	case stateDetect:
		return "detect"
	case stateInitial:
		return "initial"
	case stateEmitClassDeclaration:
		return "emit class declaration"
	case stateLookingForContinuation:
		return "looking for continuation"
	}
	return fmt.Sprintf("scanState(%d)", int(s))
}

// SplitLines splits text on "\n", "\r\n" and "\r". A final terminator
// does not produce an empty trailing line.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = lineTerminators.Replace(text)
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}

// IsClassDeclaration reports whether a stripped line has the single-line
// class declaration shape the rewriter understands.
func IsClassDeclaration(stripped string) bool {
	return strings.HasPrefix(stripped, "class ") && strings.HasSuffix(stripped, ":")
}

func hasRejectionPrefix(stripped string) bool {
	for _, prefix := range RejectionPrefixes {
		if strings.HasPrefix(stripped, prefix) {
			return true
		}
	}
	return false
}

// Rewriter adds or removes forward declarations in the text of one file.
type Rewriter struct {
	// Trace receives a line per state transition when set.
	Trace io.Writer
}

func NewRewriter(trace io.Writer) *Rewriter {
	return &Rewriter{Trace: trace}
}

// Rewrite is a pure function of the request. A returned error is always a
// *ShapeError (with no path) or a *ConfigError.
func Rewrite(req RewriteRequest) (RewriteResult, error) {
	return (&Rewriter{}).Rewrite(req)
}

func (rw *Rewriter) Rewrite(req RewriteRequest) (RewriteResult, error) {
	if !req.Mode.Valid() {
		return RewriteResult{}, newConfigError("mode %q not in add, remove, toggle", req.Mode)
	}
	if err := req.Ignore.Validate(); err != nil {
		return RewriteResult{}, err
	}

	p := &pass{
		rw:          rw,
		mode:        req.Mode,
		ignoreLines: req.Ignore.Lines(),
		ignoreNames: req.Ignore.Classes(),
		source:      SplitLines(req.Text),
		state:       stateInitial,
	}
	if req.Mode == ModeToggle {
		p.state = stateDetect
	}
	return p.run()
}

// pass holds the state of one rewrite; it is discarded afterwards.
type pass struct {
	rw           *Rewriter
	mode         Mode
	ignoreLines  map[int]bool
	ignoreNames  map[string]bool
	source       []string
	state        scanState
	lines        []string
	modification int
}

func (p *pass) tracef(format string, args ...interface{}) {
	if p.rw == nil || p.rw.Trace == nil {
		return
	}
	_, _ = fmt.Fprintf(p.rw.Trace, format+"\n", args...)
}

func (p *pass) unmodified(reason SkipReason) RewriteResult {
	p.tracef("  leaving file untouched (%s)", reason)
	return RewriteResult{
		Lines:   append([]string(nil), p.source...),
		Mode:    p.mode,
		Skipped: reason,
	}
}

func (p *pass) setState(s scanState) {
	if p.state != s {
		p.tracef("  state %s -> %s", p.state, s)
	}
	p.state = s
}

func (p *pass) run() (RewriteResult, error) {
	for i, original := range p.source {
		lineNumber := i + 1
		line := strings.TrimRight(original, " \t\f\v")
		stripped := strings.TrimLeft(line, " \t\f\v")

		if stripped == "" {
			p.lines = append(p.lines, original)
			continue
		}
		if stripped == IgnoreSentinelLine {
			return p.unmodified(SkipSentinel), nil
		}
		if hasRejectionPrefix(stripped) {
			p.tracef("  line %d: rejected prefix in %q", lineNumber, stripped)
			return p.unmodified(SkipRejected), nil
		}

		if p.state == stateDetect {
			switch {
			case strings.HasPrefix(stripped, "class "):
				p.mode = ModeAdd
			case stripped == ImportLine:
				p.mode = ModeRemove
				p.modification++
				p.setState(stateInitial)
				continue
			case stripped == ForwardDecoratorLine:
				p.mode = ModeRemove
			}
			if p.mode == ModeToggle {
				p.lines = append(p.lines, original)
				continue
			}
			p.tracef("  line %d: resolved toggle to %s", lineNumber, p.mode)
			p.setState(stateInitial)
		}

		switch p.state {
		case stateInitial:
			if p.mode == ModeRemove {
				p.removeLine(original, stripped)
				continue
			}
			if p.ignoreLines[lineNumber] {
				p.lines = append(p.lines, original)
				continue
			}
			if stripped == ForwardDecoratorLine {
				return p.unmodified(SkipAlreadyForward), nil
			}
			p.addLine(original, line, stripped, lineNumber)

		case stateEmitClassDeclaration:
			if !IsClassDeclaration(stripped) {
				return RewriteResult{}, &ShapeError{
					Line: lineNumber,
					Text: original,
					Msg:  "expected class declaration after " + ForwardDecoratorLine,
				}
			}
			p.lines = append(p.lines, original)
			p.setState(stateLookingForContinuation)

		case stateLookingForContinuation:
			if stripped == ContinuationOpenerLine {
				p.setState(stateInitial)
			}
			p.modification++

		default:
			return RewriteResult{}, &ShapeError{Line: lineNumber, Text: original, Msg: "unhandled line in state " + p.state.String()}
		}
	}

	if p.state == stateEmitClassDeclaration {
		return RewriteResult{}, &ShapeError{
			Line: len(p.source),
			Text: p.source[len(p.source)-1],
			Msg:  "file ends before the class declaration following " + ForwardDecoratorLine,
		}
	}
	if len(p.lines) == 0 {
		return RewriteResult{Mode: p.mode, Skipped: SkipEmpty}, nil
	}

	if p.modification > 0 {
		p.finish()
	}

	return RewriteResult{
		Lines:         p.lines,
		Mode:          p.mode,
		Modifications: p.modification,
	}, nil
}

func (p *pass) removeLine(original, stripped string) {
	switch {
	case stripped == ForwardDecoratorLine:
		p.modification++
		p.setState(stateEmitClassDeclaration)
	case linesToStrip[stripped]:
		p.modification++
	default:
		p.lines = append(p.lines, original)
	}
}

func (p *pass) addLine(original, line, stripped string, lineNumber int) {
	if !IsClassDeclaration(stripped) {
		p.lines = append(p.lines, original)
		return
	}
	match := classNamePattern.FindStringSubmatch(stripped)
	if match == nil {
		p.lines = append(p.lines, original)
		return
	}
	className := match[1]
	if p.ignoreNames[className] {
		p.tracef("  line %d: ignoring class %s", lineNumber, className)
		p.lines = append(p.lines, original)
		return
	}

	indent := line[:len(line)-len(stripped)]
	p.lines = append(p.lines,
		indent+ForwardDecoratorLine,
		original,
		indent+continuationPlaceholder,
		indent+fmt.Sprintf(continuationDecoratorFmt, className),
		indent+ContinuationOpenerLine,
	)
	p.modification += 4
	p.tracef("  line %d: forward-declared class %s", lineNumber, className)
}

func (p *pass) finish() {
	if p.mode == ModeAdd {
		at := ImportInsertionLine(p.source)
		if at > len(p.lines) {
			at = len(p.lines)
		}
		p.lines = append(p.lines[:at], append([]string{ImportLine}, p.lines[at:]...)...)
		p.lines = append(p.lines, "", DelForwardLine, DelContinueLine, "")
		p.modification += 5
		return
	}

	// Drop the two blank lines the add pass appended around the cleanup.
	for range 2 {
		if len(p.lines) > 0 && p.lines[len(p.lines)-1] == "" {
			p.lines = p.lines[:len(p.lines)-1]
			p.modification++
		}
	}
}

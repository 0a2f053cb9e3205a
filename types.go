package forwardedit

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mode selects the direction of a rewrite.
type Mode string

const (
	ModeAdd    Mode = "add"
	ModeRemove Mode = "remove"
	ModeToggle Mode = "toggle"
)

var optionToMode = map[string]Mode{
	"-a": ModeAdd,
	"-r": ModeRemove,
	"-t": ModeToggle,
}

// ParseMode accepts "add", "remove", "toggle" or the short options -a, -r, -t.
func ParseMode(s string) (Mode, error) {
	if m, ok := optionToMode[s]; ok {
		return m, nil
	}
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeAdd, ModeRemove, ModeToggle:
		return m, nil
	}
	return "", newConfigError("mode %q not in add, remove, toggle", s)
}

func (m Mode) Valid() bool {
	return m == ModeAdd || m == ModeRemove || m == ModeToggle
}

// IgnoreEntry is either a 1-based line number or a class name.
type IgnoreEntry struct {
	Line  int
	Class string
}

func IgnoreLine(n int) IgnoreEntry {
	return IgnoreEntry{Line: n}
}

func IgnoreClass(name string) IgnoreEntry {
	return IgnoreEntry{Class: name}
}

func (e IgnoreEntry) IsLine() bool {
	return e.Line > 0
}

func (e IgnoreEntry) String() string {
	if e.IsLine() {
		return strconv.Itoa(e.Line)
	}
	return e.Class
}

func (e IgnoreEntry) validate() error {
	switch {
	case e.Line < 0:
		return newConfigError("invalid ignore line number %d", e.Line)
	case e.Line > 0 && e.Class != "":
		return newConfigError("ignore entry cannot be both line %d and class %q", e.Line, e.Class)
	case e.Line == 0 && strings.TrimSpace(e.Class) == "":
		return newConfigError("empty ignore entry")
	}
	return nil
}

// ParseIgnoreEntry turns an all-digit string into a line number and
// anything else into a class name.
func ParseIgnoreEntry(s string) (IgnoreEntry, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return IgnoreEntry{}, newConfigError("empty ignore entry")
	}
	if isDigits(s) {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return IgnoreEntry{}, newConfigError("invalid ignore line number %q", s)
		}
		return IgnoreLine(n), nil
	}
	return IgnoreClass(s), nil
}

func (e *IgnoreEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return newConfigError("line %d: ignore entry must be a line number or class name", node.Line)
	}
	switch node.Tag {
	case "!!int":
		n, err := strconv.Atoi(node.Value)
		if err != nil || n < 1 {
			return newConfigError("line %d: invalid ignore line number %q", node.Line, node.Value)
		}
		*e = IgnoreLine(n)
	case "!!str":
		if strings.TrimSpace(node.Value) == "" {
			return newConfigError("line %d: empty ignore entry", node.Line)
		}
		*e = IgnoreClass(node.Value)
	default:
		return newConfigError("line %d: ignore entry %q is neither a line number nor a class name", node.Line, node.Value)
	}
	return nil
}

func (e IgnoreEntry) MarshalYAML() (interface{}, error) {
	if e.IsLine() {
		return e.Line, nil
	}
	return e.Class, nil
}

// IgnoreList is consulted only when adding forward declarations.
type IgnoreList []IgnoreEntry

func ParseIgnoreList(values []string) (IgnoreList, error) {
	var list IgnoreList
	for _, v := range values {
		e, err := ParseIgnoreEntry(v)
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, nil
}

func (l IgnoreList) Validate() error {
	for _, e := range l {
		if err := e.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (l IgnoreList) Lines() map[int]bool {
	lines := make(map[int]bool)
	for _, e := range l {
		if e.IsLine() {
			lines[e.Line] = true
		}
	}
	return lines
}

func (l IgnoreList) Classes() map[string]bool {
	classes := make(map[string]bool)
	for _, e := range l {
		if !e.IsLine() {
			classes[e.Class] = true
		}
	}
	return classes
}

func (l IgnoreList) Strings() []string {
	out := make([]string, len(l))
	for i, e := range l {
		out[i] = e.String()
	}
	return out
}

// SkipReason explains why a file was left untouched on purpose.
type SkipReason string

const (
	SkipNone           SkipReason = ""
	SkipSentinel       SkipReason = "sentinel"
	SkipRejected       SkipReason = "rejected"
	SkipAlreadyForward SkipReason = "already-forward"
	SkipEmpty          SkipReason = "empty"
)

type RewriteRequest struct {
	Text   string
	Mode   Mode
	Ignore IgnoreList
}

type RewriteResult struct {
	Lines         []string   `json:"-"`
	Mode          Mode       `json:"mode"`
	Modifications int        `json:"modifications"`
	Skipped       SkipReason `json:"skipped,omitempty"`
}

// Text renders the output lines with "\n" terminators.
func (r RewriteResult) Text() string {
	if len(r.Lines) == 0 {
		return ""
	}
	return strings.Join(r.Lines, "\n") + "\n"
}

type FileEditResult struct {
	Path          string     `json:"path"`
	Mode          Mode       `json:"mode"`
	Modifications int        `json:"modifications"`
	Skipped       SkipReason `json:"skipped,omitempty"`
	Written       bool       `json:"written"`
	Diff          string     `json:"diff,omitempty"`
}

type FileFailure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

type TreeEditResult struct {
	Root             string           `json:"root"`
	Mode             Mode             `json:"mode"`
	ModifiedFiles    int              `json:"modified_files"`
	ModifiedLines    int              `json:"modified_lines"`
	RuntimeInstalled bool             `json:"runtime_installed"`
	Files            []FileEditResult `json:"files,omitempty"`
	Skipped          []FileFailure    `json:"skipped,omitempty"`
	Failed           []FileFailure    `json:"failed,omitempty"`
}

// TreeRunConfig describes one tree edit. Relative paths always use "/".
type TreeRunConfig struct {
	Root           string
	Mode           Mode
	IgnoreDirs     []string
	IgnoreFiles    []string
	IgnoreMap      map[string]IgnoreList
	Verbose        bool
	InstallRuntime bool
	DryRun         bool
	ShowDiff       bool
	Strict         bool
}

func (c TreeRunConfig) Validate() error {
	if c.Root == "" {
		return newConfigError("tree root cannot be empty")
	}
	if !c.Mode.Valid() {
		return newConfigError("mode %q not in add, remove, toggle", c.Mode)
	}
	for path, list := range c.IgnoreMap {
		if err := list.Validate(); err != nil {
			return fmt.Errorf("ignore list for %s: %w", path, err)
		}
	}
	return nil
}

func isDigits(s string) bool {
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return s != ""
}

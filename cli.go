package forwardedit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/pflag"
)

// RunCmdOptions contains options for customizing RunCmd behavior
type RunCmdOptions struct {
	// MCPTransport allows providing a custom transport for MCP server (used for testing)
	MCPTransport *mcp.InMemoryTransport
	// Stdout writer for normal output (defaults to os.Stdout)
	Stdout io.Writer
	// Stderr writer for error and verbose output (defaults to os.Stderr)
	Stderr io.Writer
}

// commandContext holds runtime context for command execution
type commandContext struct {
	stdout  io.Writer
	stderr  io.Writer
	config  *Config
	editor  Editor
	verbose bool
	dryRun  bool
}

func RunCmd(args []string, options *RunCmdOptions) error {
	stdout, stderr := io.Writer(os.Stdout), io.Writer(os.Stderr)
	if options != nil && options.Stdout != nil {
		stdout = options.Stdout
	}
	if options != nil && options.Stderr != nil {
		stderr = options.Stderr
	}

	if len(args) < 1 {
		return ShowHelp(stdout)
	}

	fs := pflag.NewFlagSet(args[0], pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.SetOutput(stderr)

	var (
		help       = fs.BoolP("help", "h", false, "Show help")
		mcpOption  = fs.Bool("mcp", false, "Run as MCP server")
		verbose    = fs.BoolP("verbose", "v", false, "Verbose output")
		dryRun     = fs.Bool("dry-run", false, "Show what would be changed without making changes")
		configFile = fs.String("config", "", "Path to configuration file")
	)

	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	if *help {
		return ShowHelp(stdout)
	}

	if *mcpOption {
		var transport *mcp.InMemoryTransport
		if options != nil && options.MCPTransport != nil {
			transport = options.MCPTransport
		}
		return RunMCPServer(*configFile, transport)
	}

	remaining := fs.Args()
	if len(remaining) == 0 {
		return ShowHelp(stdout)
	}

	config, err := LoadConfig(*configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var trace io.Writer
	if *verbose {
		trace = stderr
	}

	editor, err := NewDefaultEditor(config, trace)
	if err != nil {
		return fmt.Errorf("failed to create editor: %w", err)
	}

	cmdCtx := &commandContext{
		stdout:  stdout,
		stderr:  stderr,
		config:  config,
		editor:  editor,
		verbose: *verbose,
		dryRun:  *dryRun,
	}

	ctx := context.Background()
	switch remaining[0] {
	case "file":
		return editFileCommand(ctx, cmdCtx, remaining[1:])
	case "tree":
		return editTreeCommand(ctx, cmdCtx, remaining[1:])
	case "checkout":
		return editCheckoutCommand(ctx, cmdCtx, remaining[1:])
	case "detect":
		return detectCommand(ctx, cmdCtx, remaining[1:])
	default:
		return fmt.Errorf("unknown command: %s", remaining[0])
	}
}

func ShowHelp(w io.Writer) error {
	help := `forward-edit - Add or remove forward class declarations in Python sources

Converts

    class Foo(Base):
        a = 3

into

    @forward()
    class Foo(Base):
        ...
    @continue_(Foo)
    class _____:
        a = 3

and back. By default the direction is toggled: the first class declaration
or "from forward import *" line found decides it.

Usage:
  forward-edit [OPTIONS] COMMAND [ARGS...]
  forward-edit --mcp           Run as MCP server

Options:
  -h, --help           Show this help message
  -v, --verbose        Trace every file and state change on stderr
  --dry-run            Preview changes without modifying files
  --config FILE        Path to configuration file
  --mcp                Run as MCP server

Commands:
  file       Edit individual Python files
  tree       Edit every Python file under one or more directories
  checkout   Edit the configured subdirectory of a pinned source checkout
  detect     Report which direction toggle would pick for files

Mode flags (file, tree, checkout):
  -a, --add            Add @forward() to class declarations that lack it
  -r, --remove         Remove @forward() declarations
  -t, --toggle         Detect the current state and flip it (default)

Examples:
  forward-edit file -a -i 12 -i Enum enum.py
  forward-edit tree -t -d test -f lib2to3/tests/data/crlf.py -i enum.py:Enum Lib
  forward-edit --dry-run tree --diff -r Lib
  forward-edit checkout ~/src/cpython
  forward-edit detect --json enum.py

A file containing the line "` + IgnoreSentinelLine + `" is never modified.

For more information, visit: https://github.com/thrawn01/forward-edit
`
	_, _ = fmt.Fprint(w, help)
	return nil
}

type modeFlags struct {
	add    *bool
	remove *bool
	toggle *bool
}

func addModeFlags(fs *pflag.FlagSet) modeFlags {
	return modeFlags{
		add:    fs.BoolP("add", "a", false, "Add @forward() declarations"),
		remove: fs.BoolP("remove", "r", false, "Remove @forward() declarations"),
		toggle: fs.BoolP("toggle", "t", false, "Toggle the current state"),
	}
}

func (m modeFlags) resolve(fallback Mode) (Mode, error) {
	var modes []Mode
	if *m.add {
		modes = append(modes, ModeAdd)
	}
	if *m.remove {
		modes = append(modes, ModeRemove)
	}
	if *m.toggle {
		modes = append(modes, ModeToggle)
	}
	switch len(modes) {
	case 0:
		return fallback, nil
	case 1:
		return modes[0], nil
	}
	return "", newConfigError("--add, --remove and --toggle are mutually exclusive")
}

func editFileCommand(ctx context.Context, cmdCtx *commandContext, args []string) error {
	fs := pflag.NewFlagSet("file", pflag.ContinueOnError)
	fs.SetOutput(cmdCtx.stderr)

	modes := addModeFlags(fs)
	ignore := fs.StringArrayP("ignore", "i", nil, "Line number or class name to leave alone (repeatable)")
	showDiff := fs.Bool("diff", false, "Print a unified diff of each change")
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	localDryRun := fs.Bool("dry-run", false, "Show what would be changed without making changes")

	if err := fs.Parse(args); err != nil {
		return err
	}

	mode, err := modes.resolve(cmdCtx.config.Mode)
	if err != nil {
		return err
	}
	ignoreList, err := ParseIgnoreList(*ignore)
	if err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("no files specified")
	}

	dryRun := cmdCtx.dryRun || *localDryRun
	opts := EditOptions{DryRun: dryRun, ShowDiff: *showDiff}

	var results []*FileEditResult
	for _, path := range fs.Args() {
		result, err := cmdCtx.editor.EditFile(ctx, path, mode, ignoreList, opts)
		if err != nil {
			return err
		}
		// A resolved toggle carries over to the following files.
		mode = result.Mode
		results = append(results, result)
	}

	if *jsonOutput {
		return json.NewEncoder(cmdCtx.stdout).Encode(results)
	}

	if dryRun {
		_, _ = fmt.Fprintln(cmdCtx.stdout, "DRY RUN MODE - No files will be modified")
	}
	for _, result := range results {
		printFileResult(cmdCtx.stdout, result, dryRun)
	}
	return nil
}

func editTreeCommand(ctx context.Context, cmdCtx *commandContext, args []string) error {
	fs := pflag.NewFlagSet("tree", pflag.ContinueOnError)
	fs.SetOutput(cmdCtx.stderr)

	modes := addModeFlags(fs)
	ignoreDirs := fs.StringArrayP("ignore-dir", "d", nil, "Relative directory to skip with everything under it (repeatable)")
	ignoreFiles := fs.StringArrayP("ignore-file", "f", nil, "Relative file path to skip (repeatable)")
	ignore := fs.StringArrayP("ignore", "i", nil, "PATH:IGNORE, a line number or class name to leave alone in PATH (repeatable)")
	toggleRuntime := fs.BoolP("runtime", "m", false, "Toggle installing the forward runtime module into each root")
	strict := fs.Bool("strict", false, "Abort the whole run on the first malformed file")
	showDiff := fs.Bool("diff", false, "Print a unified diff of each change")
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	localDryRun := fs.Bool("dry-run", false, "Show what would be changed without making changes")

	if err := fs.Parse(args); err != nil {
		return err
	}

	mode, err := modes.resolve(cmdCtx.config.Mode)
	if err != nil {
		return err
	}
	ignoreMap, err := ParseIgnoreMap(*ignore)
	if err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("no paths specified")
	}

	dryRun := cmdCtx.dryRun || *localDryRun

	var results []*TreeEditResult
	for _, root := range fs.Args() {
		run := cmdCtx.config.TreeRun(root, mode)
		run.IgnoreDirs = append(run.IgnoreDirs, *ignoreDirs...)
		run.IgnoreFiles = append(run.IgnoreFiles, *ignoreFiles...)
		for path, list := range ignoreMap {
			run.IgnoreMap[path] = append(run.IgnoreMap[path], list...)
		}
		run.InstallRuntime = run.InstallRuntime != *toggleRuntime
		run.Strict = run.Strict || *strict
		run.Verbose = cmdCtx.verbose
		run.DryRun = dryRun
		run.ShowDiff = *showDiff

		result, err := cmdCtx.editor.EditTree(ctx, run)
		if err != nil {
			return err
		}
		mode = result.Mode
		results = append(results, result)
	}

	if *jsonOutput {
		return json.NewEncoder(cmdCtx.stdout).Encode(results)
	}

	if dryRun {
		_, _ = fmt.Fprintln(cmdCtx.stdout, "DRY RUN MODE - No files will be modified")
	}
	for _, result := range results {
		printTreeResult(cmdCtx.stdout, result, cmdCtx.verbose)
	}
	return nil
}

func editCheckoutCommand(ctx context.Context, cmdCtx *commandContext, args []string) error {
	fs := pflag.NewFlagSet("checkout", pflag.ContinueOnError)
	fs.SetOutput(cmdCtx.stderr)

	modes := addModeFlags(fs)
	showDiff := fs.Bool("diff", false, "Print a unified diff of each change")
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	localDryRun := fs.Bool("dry-run", false, "Show what would be changed without making changes")

	if err := fs.Parse(args); err != nil {
		return err
	}

	mode, err := modes.resolve(cmdCtx.config.Mode)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("exactly one checkout path is required")
	}

	dryRun := cmdCtx.dryRun || *localDryRun
	result, err := cmdCtx.editor.EditCheckout(ctx, fs.Arg(0), mode, EditOptions{DryRun: dryRun, ShowDiff: *showDiff})
	if err != nil {
		return err
	}

	if *jsonOutput {
		return json.NewEncoder(cmdCtx.stdout).Encode(result)
	}

	if dryRun {
		_, _ = fmt.Fprintln(cmdCtx.stdout, "DRY RUN MODE - No files will be modified")
	}
	printTreeResult(cmdCtx.stdout, result, cmdCtx.verbose)
	return nil
}

func detectCommand(ctx context.Context, cmdCtx *commandContext, args []string) error {
	fs := pflag.NewFlagSet("detect", pflag.ContinueOnError)
	fs.SetOutput(cmdCtx.stderr)

	jsonOutput := fs.Bool("json", false, "Output as JSON")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("no files specified")
	}

	results, err := cmdCtx.editor.DetectModes(ctx, fs.Args())
	if err != nil {
		return err
	}

	if *jsonOutput {
		return json.NewEncoder(cmdCtx.stdout).Encode(results)
	}

	for _, result := range results {
		_, _ = fmt.Fprintf(cmdCtx.stdout, "%s: %s\n", result.Path, describeDetection(result))
	}
	return nil
}

func describeDetection(result FileEditResult) string {
	switch {
	case result.Skipped != SkipNone && result.Skipped != SkipEmpty:
		return fmt.Sprintf("untouched (%s)", result.Skipped)
	case result.Mode == ModeToggle:
		return "no class declarations"
	}
	return fmt.Sprintf("%s (%d modifications)", result.Mode, result.Modifications)
}

// ParseIgnoreMap parses PATH:IGNORE pairs. The entry is split at the last
// colon, so paths may contain colons.
func ParseIgnoreMap(pairs []string) (map[string]IgnoreList, error) {
	ignoreMap := make(map[string]IgnoreList)
	for _, pair := range pairs {
		i := strings.LastIndex(pair, ":")
		if i <= 0 {
			return nil, newConfigError("invalid ignore %q: expected PATH:IGNORE", pair)
		}
		path := strings.TrimSpace(pair[:i])
		entry, err := ParseIgnoreEntry(pair[i+1:])
		if err != nil {
			return nil, fmt.Errorf("invalid ignore %q: %w", pair, err)
		}
		if err := validateRelativePaths("--ignore", []string{path}); err != nil {
			return nil, err
		}
		ignoreMap[path] = append(ignoreMap[path], entry)
	}
	return ignoreMap, nil
}

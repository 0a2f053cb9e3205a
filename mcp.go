package forwardedit

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Parameter structures for MCP tools
type EditFileParams struct {
	Path   string   `json:"path"`
	Mode   string   `json:"mode"`
	Ignore []string `json:"ignore,omitempty"`
	DryRun bool     `json:"dry_run"`
	Diff   bool     `json:"diff"`
}

type EditTreeParams struct {
	Root           string              `json:"root"`
	Mode           string              `json:"mode"`
	IgnoreDirs     []string            `json:"ignore_dirs,omitempty"`
	IgnoreFiles    []string            `json:"ignore_files,omitempty"`
	IgnoreClasses  map[string][]string `json:"ignore_classes,omitempty"`
	InstallRuntime *bool               `json:"install_runtime,omitempty"`
	Strict         bool                `json:"strict"`
	DryRun         bool                `json:"dry_run"`
	Diff           bool                `json:"diff"`
}

type DetectModeParams struct {
	FilePaths []string `json:"file_paths"`
	MaxFiles  *int     `json:"max_files,omitempty"`
}

type RewriteTextParams struct {
	Text   string   `json:"text"`
	Mode   string   `json:"mode"`
	Ignore []string `json:"ignore,omitempty"`
}

type RewriteTextResult struct {
	Text          string     `json:"text"`
	Mode          Mode       `json:"mode"`
	Modifications int        `json:"modifications"`
	Skipped       SkipReason `json:"skipped,omitempty"`
}

// Tool handler functions
func EditFileTool(ctx context.Context, req *mcp.CallToolRequest, args EditFileParams, editor Editor) (*mcp.CallToolResult, any, error) {
	mode, ignore, err := parseModeAndIgnore(args.Mode, args.Ignore)
	if err != nil {
		return nil, nil, err
	}

	result, err := editor.EditFile(ctx, args.Path, mode, ignore, EditOptions{DryRun: args.DryRun, ShowDiff: args.Diff})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to edit file: %w", err)
	}

	return nil, result, nil
}

func EditTreeTool(ctx context.Context, req *mcp.CallToolRequest, args EditTreeParams, editor Editor, config *Config) (*mcp.CallToolResult, any, error) {
	mode, _, err := parseModeAndIgnore(args.Mode, nil)
	if err != nil {
		return nil, nil, err
	}

	run := config.TreeRun(args.Root, mode)
	run.IgnoreDirs = append(run.IgnoreDirs, args.IgnoreDirs...)
	run.IgnoreFiles = append(run.IgnoreFiles, args.IgnoreFiles...)
	for path, values := range args.IgnoreClasses {
		list, err := ParseIgnoreList(values)
		if err != nil {
			return nil, nil, fmt.Errorf("ignore_classes[%s]: %w", path, err)
		}
		run.IgnoreMap[path] = append(run.IgnoreMap[path], list...)
	}
	if args.InstallRuntime != nil {
		run.InstallRuntime = *args.InstallRuntime
	}
	run.Strict = run.Strict || args.Strict
	run.DryRun = args.DryRun
	run.ShowDiff = args.Diff

	result, err := editor.EditTree(ctx, run)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to edit tree: %w", err)
	}

	return nil, result, nil
}

func DetectModeTool(ctx context.Context, req *mcp.CallToolRequest, args DetectModeParams, editor Editor) (*mcp.CallToolResult, any, error) {
	filePaths := args.FilePaths
	if args.MaxFiles != nil && *args.MaxFiles < 0 {
		return nil, nil, newConfigError("max_files must be zero or more, got %d", *args.MaxFiles)
	}
	if args.MaxFiles != nil && len(filePaths) > *args.MaxFiles {
		filePaths = filePaths[:*args.MaxFiles]
	}

	result, err := editor.DetectModes(ctx, filePaths)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to detect modes: %w", err)
	}

	return nil, result, nil
}

func RewriteTextTool(ctx context.Context, req *mcp.CallToolRequest, args RewriteTextParams) (*mcp.CallToolResult, any, error) {
	mode, ignore, err := parseModeAndIgnore(args.Mode, args.Ignore)
	if err != nil {
		return nil, nil, err
	}

	result, err := Rewrite(RewriteRequest{Text: args.Text, Mode: mode, Ignore: ignore})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to rewrite text: %w", err)
	}

	text := args.Text
	if result.Modifications > 0 {
		text = result.Text()
	}
	return nil, RewriteTextResult{
		Text:          text,
		Mode:          result.Mode,
		Modifications: result.Modifications,
		Skipped:       result.Skipped,
	}, nil
}

func parseModeAndIgnore(modeValue string, ignoreValues []string) (Mode, IgnoreList, error) {
	mode := ModeToggle
	if modeValue != "" {
		var err error
		if mode, err = ParseMode(modeValue); err != nil {
			return "", nil, err
		}
	}
	ignore, err := ParseIgnoreList(ignoreValues)
	if err != nil {
		return "", nil, err
	}
	return mode, ignore, nil
}

// RunMCPServer starts the MCP server implementation using the official Go SDK
// If transport is nil, it will use stdio transport
func RunMCPServer(configPath string, transport *mcp.InMemoryTransport) error {
	config, err := LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	editor, err := NewDefaultEditor(config, nil)
	if err != nil {
		return fmt.Errorf("failed to create editor: %w", err)
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "forward-edit",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "edit_file",
		Description: "Add, remove or toggle forward class declarations in one Python file",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args EditFileParams) (*mcp.CallToolResult, any, error) {
		return EditFileTool(ctx, req, args, editor)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "edit_tree",
		Description: "Add, remove or toggle forward class declarations in every Python file under a directory",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args EditTreeParams) (*mcp.CallToolResult, any, error) {
		return EditTreeTool(ctx, req, args, editor, config)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "detect_mode",
		Description: "Report which direction toggle would pick for Python files",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args DetectModeParams) (*mcp.CallToolResult, any, error) {
		return DetectModeTool(ctx, req, args, editor)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "rewrite_text",
		Description: "Rewrite Python source text without touching the filesystem",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args RewriteTextParams) (*mcp.CallToolResult, any, error) {
		return RewriteTextTool(ctx, req, args)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	if transport != nil {
		return server.Run(ctx, transport)
	}
	return server.Run(ctx, &mcp.StdioTransport{})
}

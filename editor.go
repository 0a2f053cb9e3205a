package forwardedit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/djherbis/times"
)

const DefaultFilePermissions = 0644

type Editor interface {
	EditFile(ctx context.Context, filePath string, mode Mode, ignore IgnoreList, opts EditOptions) (*FileEditResult, error)
	EditTree(ctx context.Context, run TreeRunConfig) (*TreeEditResult, error)
	EditCheckout(ctx context.Context, checkoutRoot string, mode Mode, opts EditOptions) (*TreeEditResult, error)
	DetectModes(ctx context.Context, filePaths []string) ([]FileEditResult, error)
}

type EditOptions struct {
	DryRun   bool
	ShowDiff bool
}

type DefaultEditor struct {
	scanner   Scanner
	validator Validator
	rewriter  *Rewriter
	config    *Config
	trace     io.Writer
}

// NewDefaultEditor builds an editor. trace receives verbose progress and
// may be nil.
func NewDefaultEditor(config *Config, trace io.Writer) (*DefaultEditor, error) {
	validator := NewDefaultValidator()
	if err := validator.ValidateConfig(config); err != nil {
		return nil, err
	}

	return &DefaultEditor{
		scanner:   NewFilesystemScanner(config),
		validator: validator,
		rewriter:  NewRewriter(trace),
		config:    config,
		trace:     trace,
	}, nil
}

func (e *DefaultEditor) tracef(format string, args ...interface{}) {
	if e.trace != nil {
		_, _ = fmt.Fprintf(e.trace, format+"\n", args...)
	}
}

func (e *DefaultEditor) EditFile(ctx context.Context, filePath string, mode Mode, ignore IgnoreList, opts EditOptions) (*FileEditResult, error) {
	if !mode.Valid() {
		return nil, newConfigError("mode %q not in add, remove, toggle", mode)
	}
	if err := ignore.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	if err := e.validator.ValidateSourceFile(filePath, e.config.Suffix); err != nil {
		return nil, err
	}
	return e.editFile(ctx, filePath, filepath.Base(filePath), mode, ignore, opts)
}

func (e *DefaultEditor) editFile(ctx context.Context, filePath, displayName string, mode Mode, ignore IgnoreList, opts EditOptions) (*FileEditResult, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	e.tracef("edit %s (mode=%s, ignore=%v)", filePath, mode, ignore.Strings())

	stamp, err := statTimes(filePath)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("%s: %w", filePath, ErrDecode)
	}

	rewritten, err := e.rewriter.Rewrite(RewriteRequest{Text: string(content), Mode: mode, Ignore: ignore})
	if err != nil {
		var shapeErr *ShapeError
		if errors.As(err, &shapeErr) {
			shapeErr.Path = filePath
		}
		return nil, err
	}

	result := &FileEditResult{
		Path:          filePath,
		Mode:          rewritten.Mode,
		Modifications: rewritten.Modifications,
		Skipped:       rewritten.Skipped,
	}
	if rewritten.Modifications == 0 {
		return result, nil
	}

	newText := rewritten.Text()
	if opts.ShowDiff {
		if result.Diff, err = UnifiedDiff(displayName, string(content), newText); err != nil {
			return nil, fmt.Errorf("%s: diff: %w", filePath, err)
		}
	}

	if !opts.DryRun {
		if err := os.WriteFile(filePath, []byte(newText), DefaultFilePermissions); err != nil {
			return nil, err
		}
		if err := stamp.restore(filePath); err != nil {
			return nil, fmt.Errorf("%s: restore timestamps: %w", filePath, err)
		}
		result.Written = true
	}

	e.tracef("  %s: %d modifications (mode=%s)", filePath, result.Modifications, result.Mode)
	return result, nil
}

// treeRun is the state of one EditTree call. behavior starts as the
// requested mode and, when that is toggle, is fixed by the first file
// that resolves it; every later file is edited with that resolved mode.
type treeRun struct {
	behavior Mode
	result   *TreeEditResult
}

func (r *treeRun) carry(resolved Mode) {
	if r.behavior == ModeToggle && resolved != ModeToggle {
		r.behavior = resolved
	}
}

func (e *DefaultEditor) EditTree(ctx context.Context, cfg TreeRunConfig) (*TreeEditResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := e.validator.ValidateRoot(cfg.Root); err != nil {
		return nil, err
	}

	e.tracef("edit tree %s (mode=%s, ignore_dirs=%v, ignore_files=%v, install_runtime=%t)",
		cfg.Root, cfg.Mode, cfg.IgnoreDirs, cfg.IgnoreFiles, cfg.InstallRuntime)

	run := &treeRun{
		behavior: cfg.Mode,
		result:   &TreeEditResult{Root: cfg.Root},
	}
	opts := EditOptions{DryRun: cfg.DryRun, ShowDiff: cfg.ShowDiff}

	if cfg.InstallRuntime && cfg.Mode != ModeRemove {
		installed, err := InstallRuntime(cfg.Root, e.config.RuntimeTemplate, cfg.DryRun)
		if err != nil {
			return nil, err
		}
		if installed {
			e.tracef("  installed %s", RuntimeModulePath)
			run.result.RuntimeInstalled = true
			run.result.ModifiedFiles++
		}
	}

	for file, err := range e.scanner.ScanTree(ctx, cfg.Root, cfg.IgnoreDirs, cfg.IgnoreFiles) {
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.tracef("  failed %s: %v", file.RelPath, err)
			run.result.Failed = append(run.result.Failed, FileFailure{Path: file.RelPath, Error: err.Error()})
			continue
		}
		if file.RelPath == RuntimeModulePath {
			continue
		}

		fileResult, err := e.editFile(ctx, file.Path, file.RelPath, run.behavior, cfg.IgnoreMap[file.RelPath], opts)
		switch {
		case err == nil:
		case errors.Is(err, ErrDecode):
			e.tracef("  skipping %s: %v", file.RelPath, err)
			run.result.Skipped = append(run.result.Skipped, FileFailure{Path: file.RelPath, Error: err.Error()})
			continue
		case IsShapeError(err) && !cfg.Strict:
			e.tracef("  failed %s: %v", file.RelPath, err)
			run.result.Failed = append(run.result.Failed, FileFailure{Path: file.RelPath, Error: err.Error()})
			continue
		default:
			return nil, err
		}

		run.carry(fileResult.Mode)
		fileResult.Path = file.RelPath
		if fileResult.Modifications > 0 {
			run.result.ModifiedFiles++
			run.result.ModifiedLines += fileResult.Modifications
		}
		if fileResult.Modifications > 0 || cfg.Verbose {
			run.result.Files = append(run.result.Files, *fileResult)
		}
	}

	run.result.Mode = run.behavior
	e.tracef("  returning mode=%s, modified_files=%d, modified_lines=%d",
		run.result.Mode, run.result.ModifiedFiles, run.result.ModifiedLines)
	return run.result, nil
}

// EditCheckout edits the configured subdirectory of a pinned checkout.
func (e *DefaultEditor) EditCheckout(ctx context.Context, checkoutRoot string, mode Mode, opts EditOptions) (*TreeEditResult, error) {
	checkout := e.config.Checkout
	if err := e.validator.ValidateCheckout(checkoutRoot, checkout); err != nil {
		return nil, err
	}

	return e.EditTree(ctx, TreeRunConfig{
		Root:           filepath.Join(checkoutRoot, filepath.FromSlash(checkout.Subdir)),
		Mode:           mode,
		IgnoreDirs:     checkout.IgnoreDirs,
		IgnoreFiles:    checkout.IgnoreFiles,
		IgnoreMap:      checkout.IgnoreClasses,
		InstallRuntime: true,
		DryRun:         opts.DryRun,
		ShowDiff:       opts.ShowDiff,
		Strict:         e.config.Strict,
	})
}

// DetectModes reports which mode toggle would resolve to for each file,
// without writing anything.
func (e *DefaultEditor) DetectModes(ctx context.Context, filePaths []string) ([]FileEditResult, error) {
	var results []FileEditResult
	for _, path := range filePaths {
		result, err := e.EditFile(ctx, path, ModeToggle, nil, EditOptions{DryRun: true})
		if err != nil {
			return nil, err
		}
		results = append(results, *result)
	}
	return results, nil
}

type fileTimes struct {
	atime time.Time
	mtime time.Time
}

func statTimes(path string) (fileTimes, error) {
	ts, err := times.Stat(path)
	if err != nil {
		return fileTimes{}, err
	}
	return fileTimes{atime: ts.AccessTime(), mtime: ts.ModTime()}, nil
}

func (t fileTimes) restore(path string) error {
	return os.Chtimes(path, t.atime, t.mtime)
}

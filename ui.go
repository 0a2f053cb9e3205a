package forwardedit

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	headerColor  = color.New(color.FgBlue, color.Bold)
	infoColor    = color.New(color.FgCyan)
	successColor = color.New(color.FgGreen)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
)

func header(w io.Writer, format string, a ...interface{}) {
	_, _ = headerColor.Fprintf(w, format+"\n", a...)
}

func info(w io.Writer, format string, a ...interface{}) {
	_, _ = infoColor.Fprintf(w, format+"\n", a...)
}

func success(w io.Writer, format string, a ...interface{}) {
	_, _ = successColor.Fprintf(w, format+"\n", a...)
}

func warning(w io.Writer, format string, a ...interface{}) {
	_, _ = warningColor.Fprintf(w, format+"\n", a...)
}

func failure(w io.Writer, format string, a ...interface{}) {
	_, _ = errorColor.Fprintf(w, format+"\n", a...)
}

func printFileResult(w io.Writer, result *FileEditResult, dryRun bool) {
	header(w, "%s", result.Path)
	switch {
	case result.Modifications > 0 && dryRun:
		info(w, "    would be modified with %d modifications (mode=%s).", result.Modifications, result.Mode)
	case result.Modifications > 0:
		success(w, "    modified with %d modifications (mode=%s).", result.Modifications, result.Mode)
	case result.Skipped != SkipNone:
		warning(w, "    not modified (%s).", result.Skipped)
	default:
		info(w, "    not modified.")
	}
	if result.Diff != "" {
		_, _ = fmt.Fprint(w, result.Diff)
	}
}

func printTreeResult(w io.Writer, result *TreeEditResult, verbose bool) {
	header(w, "%s", result.Root)
	success(w, "    %d files modified with %d modified lines (mode=%s).", result.ModifiedFiles, result.ModifiedLines, result.Mode)
	if result.RuntimeInstalled {
		info(w, "    installed %s", RuntimeModulePath)
	}
	for _, file := range result.Files {
		if verbose || file.Modifications > 0 {
			_, _ = fmt.Fprintf(w, "  %s: %d\n", file.Path, file.Modifications)
		}
		if file.Diff != "" {
			_, _ = fmt.Fprint(w, file.Diff)
		}
	}
	for _, skipped := range result.Skipped {
		warning(w, "  skipped %s: %s", skipped.Path, skipped.Error)
	}
	for _, failed := range result.Failed {
		failure(w, "  failed %s: %s", failed.Path, failed.Error)
	}
}

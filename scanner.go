package forwardedit

import (
	"context"
	"iter"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// SourceFile is a candidate for rewriting. RelPath is relative to the walk
// root and always uses "/". The root itself is ".".
type SourceFile struct {
	Path    string `json:"path"`
	RelPath string `json:"rel_path"`
}

type Scanner interface {
	ScanTree(ctx context.Context, root string, ignoreDirs, ignoreFiles []string) iter.Seq2[SourceFile, error]
}

type FilesystemScanner struct {
	suffix string
}

func NewFilesystemScanner(config *Config) *FilesystemScanner {
	return &FilesystemScanner{suffix: config.Suffix}
}

// ScanTree yields source files directory by directory: the matching files
// of a directory in lexical order, then each of its subdirectories in
// lexical order. An ignored directory prunes its whole subtree. A directory
// that cannot be read is yielded with its error and the walk goes on.
func (s *FilesystemScanner) ScanTree(ctx context.Context, root string, ignoreDirs, ignoreFiles []string) iter.Seq2[SourceFile, error] {
	return func(yield func(SourceFile, error) bool) {
		walk := treeWalk{
			suffix: s.suffix,
			dirs:   toSet(ignoreDirs),
			files:  toSet(ignoreFiles),
			yield:  yield,
		}
		walk.dir(ctx, root, ".")
	}
}

type treeWalk struct {
	suffix string
	dirs   map[string]bool
	files  map[string]bool
	yield  func(SourceFile, error) bool
}

// dir returns false once the walk must stop.
func (w *treeWalk) dir(ctx context.Context, dirPath, relDir string) bool {
	if err := ctx.Err(); err != nil {
		w.yield(SourceFile{Path: dirPath, RelPath: relDir}, err)
		return false
	}

	// Sorted by name.
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return w.yield(SourceFile{Path: dirPath, RelPath: relDir}, err)
	}

	var subdirs []os.DirEntry
	for _, entry := range entries {
		if entry.IsDir() {
			subdirs = append(subdirs, entry)
			continue
		}
		if !entry.Type().IsRegular() || !strings.HasSuffix(entry.Name(), w.suffix) {
			continue
		}
		relPath := joinRel(relDir, entry.Name())
		if w.files[relPath] {
			continue
		}
		if !w.yield(SourceFile{Path: filepath.Join(dirPath, entry.Name()), RelPath: relPath}, nil) {
			return false
		}
	}

	for _, entry := range subdirs {
		relPath := joinRel(relDir, entry.Name())
		if w.dirs[relPath] {
			continue
		}
		if !w.dir(ctx, filepath.Join(dirPath, entry.Name()), relPath) {
			return false
		}
	}
	return true
}

func joinRel(relDir, name string) string {
	if relDir == "." {
		return name
	}
	return path.Join(relDir, name)
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

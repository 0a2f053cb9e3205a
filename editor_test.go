package forwardedit_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/djherbis/times"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	forwardedit "github.com/thrawn01/forward-edit"
)

const (
	plainClass    = "class A:\n    pass\n"
	forwardClass  = "from forward import *\n@forward()\nclass A:\n    ...\n@continue_(A)\nclass _____:\n    pass\n\ndel forward\ndel continue_\n\n"
	noClasses     = "import os\n\nVALUE = 1\n"
	malformedFile = "@forward()\nx = 1\n"
)

func newEditor(t *testing.T) *forwardedit.DefaultEditor {
	t.Helper()
	editor, err := forwardedit.NewDefaultEditor(forwardedit.DefaultConfig(), nil)
	require.NoError(t, err)
	return editor
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(content)
}

func treeRun(root string, mode forwardedit.Mode) forwardedit.TreeRunConfig {
	return forwardedit.TreeRunConfig{Root: root, Mode: mode, IgnoreMap: map[string]forwardedit.IgnoreList{}}
}

func TestNewDefaultEditorRejectsBadConfig(t *testing.T) {
	config := forwardedit.DefaultConfig()
	config.Mode = "sideways"
	_, err := forwardedit.NewDefaultEditor(config, nil)
	require.Error(t, err)
	assert.True(t, forwardedit.IsConfigError(err))
}

func TestEditFile(t *testing.T) {
	editor := newEditor(t)
	ctx := context.Background()

	t.Run("AddThenRemove", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a.py")
		require.NoError(t, os.WriteFile(path, []byte(plainClass), 0644))

		result, err := editor.EditFile(ctx, path, forwardedit.ModeAdd, nil, forwardedit.EditOptions{})
		require.NoError(t, err)
		assert.Equal(t, 9, result.Modifications)
		assert.Equal(t, forwardedit.ModeAdd, result.Mode)
		assert.True(t, result.Written)
		assert.Equal(t, forwardClass, readFile(t, path))

		result, err = editor.EditFile(ctx, path, forwardedit.ModeToggle, nil, forwardedit.EditOptions{})
		require.NoError(t, err)
		assert.Equal(t, forwardedit.ModeRemove, result.Mode)
		assert.Equal(t, plainClass, readFile(t, path))
	})

	t.Run("IgnoreList", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a.py")
		require.NoError(t, os.WriteFile(path, []byte(plainClass), 0644))

		result, err := editor.EditFile(ctx, path, forwardedit.ModeAdd, forwardedit.IgnoreList{forwardedit.IgnoreClass("A")}, forwardedit.EditOptions{})
		require.NoError(t, err)
		assert.Equal(t, 0, result.Modifications)
		assert.False(t, result.Written)
		assert.Equal(t, plainClass, readFile(t, path))
	})

	t.Run("DryRunWithDiff", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a.py")
		require.NoError(t, os.WriteFile(path, []byte(plainClass), 0644))

		result, err := editor.EditFile(ctx, path, forwardedit.ModeAdd, nil, forwardedit.EditOptions{DryRun: true, ShowDiff: true})
		require.NoError(t, err)
		assert.Equal(t, 9, result.Modifications)
		assert.False(t, result.Written)
		assert.Contains(t, result.Diff, "--- a/a.py")
		assert.Contains(t, result.Diff, "+++ b/a.py")
		assert.Contains(t, result.Diff, "+@forward()")
		assert.Contains(t, result.Diff, "+@continue_(A)")
		assert.Equal(t, plainClass, readFile(t, path))
	})

	t.Run("NotUTF8", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "latin.py")
		require.NoError(t, os.WriteFile(path, []byte("name = '\xe9t\xe9'\n"), 0644))

		_, err := editor.EditFile(ctx, path, forwardedit.ModeAdd, nil, forwardedit.EditOptions{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, forwardedit.ErrDecode))
	})

	t.Run("ShapeErrorCarriesPath", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.py")
		require.NoError(t, os.WriteFile(path, []byte(malformedFile), 0644))

		_, err := editor.EditFile(ctx, path, forwardedit.ModeRemove, nil, forwardedit.EditOptions{})
		var shapeErr *forwardedit.ShapeError
		require.True(t, errors.As(err, &shapeErr))
		assert.Equal(t, path, shapeErr.Path)
		assert.Equal(t, 2, shapeErr.Line)
		assert.Equal(t, malformedFile, readFile(t, path))
	})

	t.Run("InvalidArguments", func(t *testing.T) {
		tempDir := t.TempDir()
		writeTree(t, tempDir, map[string]string{"a.py": plainClass, "a.txt": plainClass})

		_, err := editor.EditFile(ctx, filepath.Join(tempDir, "a.txt"), forwardedit.ModeAdd, nil, forwardedit.EditOptions{})
		assert.True(t, forwardedit.IsConfigError(err))

		_, err = editor.EditFile(ctx, filepath.Join(tempDir, "missing.py"), forwardedit.ModeAdd, nil, forwardedit.EditOptions{})
		assert.True(t, forwardedit.IsConfigError(err))

		_, err = editor.EditFile(ctx, filepath.Join(tempDir, "a.py"), "sideways", nil, forwardedit.EditOptions{})
		assert.True(t, forwardedit.IsConfigError(err))

		_, err = editor.EditFile(ctx, filepath.Join(tempDir, "a.py"), forwardedit.ModeAdd, forwardedit.IgnoreList{forwardedit.IgnoreLine(-2)}, forwardedit.EditOptions{})
		assert.True(t, forwardedit.IsConfigError(err))
		assert.Equal(t, plainClass, readFile(t, filepath.Join(tempDir, "a.py")))
	})

	t.Run("CancelledContext", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a.py")
		require.NoError(t, os.WriteFile(path, []byte(plainClass), 0644))

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := editor.EditFile(cancelled, path, forwardedit.ModeAdd, nil, forwardedit.EditOptions{})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, plainClass, readFile(t, path))
	})
}

func TestEditPreservesTimestamps(t *testing.T) {
	tempDir := t.TempDir()
	writeTree(t, tempDir, map[string]string{
		"a.py":     plainClass,
		"sub/b.py": plainClass,
	})

	atime := time.Date(2001, time.February, 3, 4, 5, 6, 0, time.UTC)
	mtime := time.Date(2002, time.March, 4, 5, 6, 7, 0, time.UTC)
	for _, rel := range []string{"a.py", "sub/b.py"} {
		require.NoError(t, os.Chtimes(filepath.Join(tempDir, filepath.FromSlash(rel)), atime, mtime))
	}

	editor := newEditor(t)
	result, err := editor.EditTree(context.Background(), treeRun(tempDir, forwardedit.ModeAdd))
	require.NoError(t, err)
	assert.Equal(t, 2, result.ModifiedFiles)

	for _, rel := range []string{"a.py", "sub/b.py"} {
		path := filepath.Join(tempDir, filepath.FromSlash(rel))

		// Stat before reading, reading may bump the access time.
		ts, err := times.Stat(path)
		require.NoError(t, err)
		assert.True(t, mtime.Equal(ts.ModTime()), "%s: mtime %v, want %v", rel, ts.ModTime(), mtime)
		assert.True(t, atime.Equal(ts.AccessTime()), "%s: atime %v, want %v", rel, ts.AccessTime(), atime)

		assert.Equal(t, forwardClass, readFile(t, path))
	}
}

// The first file that resolves toggle fixes the mode for the rest of the
// run. b.py looks like a remove candidate on its own, but is edited with
// the add mode carried over from a.py.
func TestEditTreeToggleCarriesFirstResolution(t *testing.T) {
	tempDir := t.TempDir()
	fileB := "from forward import *\n\nclass B:\n    pass\n"
	writeTree(t, tempDir, map[string]string{
		"a.py": plainClass,
		"b.py": fileB,
	})

	alone, err := forwardedit.Rewrite(forwardedit.RewriteRequest{Text: fileB, Mode: forwardedit.ModeToggle})
	require.NoError(t, err)
	require.Equal(t, forwardedit.ModeRemove, alone.Mode)

	editor := newEditor(t)
	result, err := editor.EditTree(context.Background(), treeRun(tempDir, forwardedit.ModeToggle))
	require.NoError(t, err)

	assert.Equal(t, forwardedit.ModeAdd, result.Mode)
	assert.Equal(t, 2, result.ModifiedFiles)
	assert.Equal(t, 18, result.ModifiedLines)
	require.Len(t, result.Files, 2)
	assert.Equal(t, "a.py", result.Files[0].Path)
	assert.Equal(t, "b.py", result.Files[1].Path)
	assert.Equal(t, forwardedit.ModeAdd, result.Files[1].Mode)

	assert.Equal(t, `from forward import *
from forward import *

@forward()
class B:
    ...
@continue_(B)
class _____:
    pass

del forward
del continue_

`, readFile(t, filepath.Join(tempDir, "b.py")))
}

// A directory's own files are edited before its subdirectories, so the
// root-level b.py resolves toggle even though a/ sorts first.
func TestEditTreeToggleResolvedByShallowerFile(t *testing.T) {
	tempDir := t.TempDir()
	writeTree(t, tempDir, map[string]string{
		"a/x.py": "from forward import *\n\nclass X:\n    pass\n",
		"b.py":   plainClass,
	})

	editor := newEditor(t)
	result, err := editor.EditTree(context.Background(), treeRun(tempDir, forwardedit.ModeToggle))
	require.NoError(t, err)

	assert.Equal(t, forwardedit.ModeAdd, result.Mode)
	require.Len(t, result.Files, 2)
	assert.Equal(t, "b.py", result.Files[0].Path)
	assert.Equal(t, "a/x.py", result.Files[1].Path)
	assert.Equal(t, forwardedit.ModeAdd, result.Files[1].Mode)
	assert.Equal(t, forwardClass, readFile(t, filepath.Join(tempDir, "b.py")))
}

func TestEditTreeFileWithoutSignalDoesNotResolveToggle(t *testing.T) {
	tempDir := t.TempDir()
	writeTree(t, tempDir, map[string]string{
		"a.py": noClasses,
		"b.py": forwardClass,
		"c.py": plainClass,
	})

	editor := newEditor(t)
	run := treeRun(tempDir, forwardedit.ModeToggle)
	run.Verbose = true
	result, err := editor.EditTree(context.Background(), run)
	require.NoError(t, err)

	assert.Equal(t, forwardedit.ModeRemove, result.Mode)
	assert.Equal(t, 1, result.ModifiedFiles)
	assert.Equal(t, 9, result.ModifiedLines)
	assert.Len(t, result.Files, 3)
	assert.Equal(t, noClasses, readFile(t, filepath.Join(tempDir, "a.py")))
	assert.Equal(t, plainClass, readFile(t, filepath.Join(tempDir, "b.py")))
	assert.Equal(t, plainClass, readFile(t, filepath.Join(tempDir, "c.py")))
}

func TestEditTreeIgnores(t *testing.T) {
	tempDir := t.TempDir()
	writeTree(t, tempDir, map[string]string{
		"enum.py":          "class Enum(dict):\n    pass\nclass Other:\n    pass\n",
		"test/test_a.py":   plainClass,
		"data/crlf.py":     plainClass,
		"data/keep.py":     plainClass,
		"re/__init__.py":   "class RegexFlag:\n    pass\n",
		"re/_compiler.py":  plainClass,
		"re/_constants.py": noClasses,
	})

	run := treeRun(tempDir, forwardedit.ModeAdd)
	run.IgnoreDirs = []string{"test"}
	run.IgnoreFiles = []string{"data/crlf.py"}
	run.IgnoreMap = map[string]forwardedit.IgnoreList{
		"enum.py":         {forwardedit.IgnoreClass("Enum")},
		"re/__init__.py":  {forwardedit.IgnoreLine(1)},
		"re/_compiler.py": {forwardedit.IgnoreClass("Unrelated")},
	}

	editor := newEditor(t)
	result, err := editor.EditTree(context.Background(), run)
	require.NoError(t, err)

	var modified []string
	for _, file := range result.Files {
		modified = append(modified, file.Path)
	}
	assert.Equal(t, []string{"enum.py", "data/keep.py", "re/_compiler.py"}, modified)
	assert.Equal(t, 3, result.ModifiedFiles)
	assert.Equal(t, 27, result.ModifiedLines)

	assert.Equal(t, plainClass, readFile(t, filepath.Join(tempDir, "test", "test_a.py")))
	assert.Equal(t, plainClass, readFile(t, filepath.Join(tempDir, "data", "crlf.py")))
	assert.Equal(t, "class RegexFlag:\n    pass\n", readFile(t, filepath.Join(tempDir, "re", "__init__.py")))
	assert.Contains(t, readFile(t, filepath.Join(tempDir, "enum.py")), "from forward import *\nclass Enum(dict):\n    pass\n@forward()\nclass Other:\n")
}

func TestEditTreeRuntimeModule(t *testing.T) {
	runtimePath := func(root string) string {
		return filepath.Join(root, filepath.FromSlash(forwardedit.RuntimeModulePath))
	}

	t.Run("InstalledOnAddAndNeverRewritten", func(t *testing.T) {
		tempDir := t.TempDir()
		writeTree(t, tempDir, map[string]string{"a.py": plainClass})

		editor := newEditor(t)
		run := treeRun(tempDir, forwardedit.ModeAdd)
		run.InstallRuntime = true
		result, err := editor.EditTree(context.Background(), run)
		require.NoError(t, err)

		assert.True(t, result.RuntimeInstalled)
		assert.Equal(t, 2, result.ModifiedFiles)
		assert.Equal(t, 9, result.ModifiedLines)
		assert.Equal(t, string(forwardedit.RuntimeTemplate()), readFile(t, runtimePath(tempDir)))

		// Already present, so the second run installs nothing.
		run.Mode = forwardedit.ModeRemove
		result, err = editor.EditTree(context.Background(), run)
		require.NoError(t, err)
		assert.False(t, result.RuntimeInstalled)
		assert.Equal(t, 1, result.ModifiedFiles)
		assert.Equal(t, plainClass, readFile(t, filepath.Join(tempDir, "a.py")))
		assert.Equal(t, string(forwardedit.RuntimeTemplate()), readFile(t, runtimePath(tempDir)))
	})

	t.Run("NotInstalledOnRemove", func(t *testing.T) {
		tempDir := t.TempDir()
		writeTree(t, tempDir, map[string]string{"a.py": forwardClass})

		run := treeRun(tempDir, forwardedit.ModeRemove)
		run.InstallRuntime = true
		result, err := newEditor(t).EditTree(context.Background(), run)
		require.NoError(t, err)

		assert.False(t, result.RuntimeInstalled)
		assert.NoFileExists(t, runtimePath(tempDir))
	})

	t.Run("DryRunWritesNothing", func(t *testing.T) {
		tempDir := t.TempDir()
		writeTree(t, tempDir, map[string]string{"a.py": plainClass})

		run := treeRun(tempDir, forwardedit.ModeToggle)
		run.InstallRuntime = true
		run.DryRun = true
		run.ShowDiff = true
		result, err := newEditor(t).EditTree(context.Background(), run)
		require.NoError(t, err)

		assert.True(t, result.RuntimeInstalled)
		assert.Equal(t, 2, result.ModifiedFiles)
		require.Len(t, result.Files, 1)
		assert.False(t, result.Files[0].Written)
		assert.Contains(t, result.Files[0].Diff, "+from forward import *")
		assert.NoFileExists(t, runtimePath(tempDir))
		assert.Equal(t, plainClass, readFile(t, filepath.Join(tempDir, "a.py")))
	})

	t.Run("CustomTemplate", func(t *testing.T) {
		tempDir := t.TempDir()
		templatePath := filepath.Join(t.TempDir(), "forward.py")
		require.NoError(t, os.WriteFile(templatePath, []byte("def forward(): ...\n"), 0600))
		mtime := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, os.Chtimes(templatePath, mtime, mtime))

		installed, err := forwardedit.InstallRuntime(tempDir, templatePath, false)
		require.NoError(t, err)
		assert.True(t, installed)
		assert.Equal(t, "def forward(): ...\n", readFile(t, runtimePath(tempDir)))

		info, err := os.Stat(runtimePath(tempDir))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
		assert.True(t, mtime.Equal(info.ModTime()))
	})
}

func TestEditTreeMalformedFiles(t *testing.T) {
	setup := func(t *testing.T) string {
		tempDir := t.TempDir()
		writeTree(t, tempDir, map[string]string{
			"bad.py":  malformedFile,
			"good.py": plainClass,
		})
		require.NoError(t, os.WriteFile(filepath.Join(tempDir, "latin.py"), []byte("s = '\xff'\n"), 0644))
		return tempDir
	}

	t.Run("IsolatedByDefault", func(t *testing.T) {
		tempDir := setup(t)
		result, err := newEditor(t).EditTree(context.Background(), treeRun(tempDir, forwardedit.ModeToggle))
		require.NoError(t, err)

		require.Len(t, result.Failed, 1)
		assert.Equal(t, "bad.py", result.Failed[0].Path)
		assert.Contains(t, result.Failed[0].Error, "bad.py:2:")
		require.Len(t, result.Skipped, 1)
		assert.Equal(t, "latin.py", result.Skipped[0].Path)

		// The failed file did not resolve toggle; good.py did.
		assert.Equal(t, forwardedit.ModeAdd, result.Mode)
		assert.Equal(t, 1, result.ModifiedFiles)
		assert.Equal(t, malformedFile, readFile(t, filepath.Join(tempDir, "bad.py")))
		assert.Equal(t, forwardClass, readFile(t, filepath.Join(tempDir, "good.py")))
	})

	t.Run("StrictAbortsRun", func(t *testing.T) {
		tempDir := setup(t)
		run := treeRun(tempDir, forwardedit.ModeToggle)
		run.Strict = true
		_, err := newEditor(t).EditTree(context.Background(), run)
		require.Error(t, err)
		assert.True(t, forwardedit.IsShapeError(err))
		assert.Equal(t, plainClass, readFile(t, filepath.Join(tempDir, "good.py")))
	})
}

func TestEditTreeUnreadableDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}
	tempDir := t.TempDir()
	writeTree(t, tempDir, map[string]string{
		"a.py":        plainClass,
		"locked/b.py": plainClass,
	})
	locked := filepath.Join(tempDir, "locked")
	require.NoError(t, os.Chmod(locked, 0))
	t.Cleanup(func() { _ = os.Chmod(locked, 0755) })

	result, err := newEditor(t).EditTree(context.Background(), treeRun(tempDir, forwardedit.ModeAdd))
	require.NoError(t, err)

	require.Len(t, result.Failed, 1)
	assert.Equal(t, "locked", result.Failed[0].Path)
	assert.Contains(t, result.Failed[0].Error, "permission denied")
	assert.Equal(t, 1, result.ModifiedFiles)
	assert.Equal(t, forwardClass, readFile(t, filepath.Join(tempDir, "a.py")))
}

func TestEditTreeValidation(t *testing.T) {
	editor := newEditor(t)
	tempDir := t.TempDir()
	writeTree(t, tempDir, map[string]string{"a.py": plainClass})

	tests := []struct {
		name string
		run  forwardedit.TreeRunConfig
	}{
		{name: "EmptyRoot", run: treeRun("", forwardedit.ModeAdd)},
		{name: "MissingRoot", run: treeRun(filepath.Join(tempDir, "missing"), forwardedit.ModeAdd)},
		{name: "FileRoot", run: treeRun(filepath.Join(tempDir, "a.py"), forwardedit.ModeAdd)},
		{name: "BadMode", run: treeRun(tempDir, "sideways")},
		{
			name: "BadIgnoreEntry",
			run: forwardedit.TreeRunConfig{
				Root:      tempDir,
				Mode:      forwardedit.ModeAdd,
				IgnoreMap: map[string]forwardedit.IgnoreList{"a.py": {{}}},
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := editor.EditTree(context.Background(), test.run)
			require.Error(t, err)
			assert.True(t, forwardedit.IsConfigError(err))
			assert.Equal(t, plainClass, readFile(t, filepath.Join(tempDir, "a.py")))
		})
	}
}

func TestEditCheckout(t *testing.T) {
	config := forwardedit.DefaultConfig()
	root := newCheckout(t, config.Checkout, config.Checkout.Revision)
	writeTree(t, filepath.Join(root, "Lib"), map[string]string{
		"enum.py":                    "class Enum(dict):\n    pass\nclass Other:\n    pass\n",
		"test/test_enum.py":          plainClass,
		"lib2to3/tests/data/crlf.py": plainClass,
		"json/decoder.py":            plainClass,
	})

	editor, err := forwardedit.NewDefaultEditor(config, nil)
	require.NoError(t, err)

	result, err := editor.EditCheckout(context.Background(), root, forwardedit.ModeToggle, forwardedit.EditOptions{})
	require.NoError(t, err)

	assert.Equal(t, forwardedit.ModeAdd, result.Mode)
	assert.True(t, result.RuntimeInstalled)
	assert.Equal(t, 3, result.ModifiedFiles)
	assert.Equal(t, 18, result.ModifiedLines)
	assert.FileExists(t, filepath.Join(root, "Lib", "forward", "__init__.py"))
	assert.Equal(t, plainClass, readFile(t, filepath.Join(root, "Lib", "test", "test_enum.py")))
	assert.Equal(t, plainClass, readFile(t, filepath.Join(root, "Lib", "lib2to3", "tests", "data", "crlf.py")))
	assert.Equal(t, forwardClass, readFile(t, filepath.Join(root, "Lib", "json", "decoder.py")))

	t.Run("WrongRevision", func(t *testing.T) {
		stale := newCheckout(t, config.Checkout, "deadbeef")
		_, err := editor.EditCheckout(context.Background(), stale, forwardedit.ModeAdd, forwardedit.EditOptions{})
		require.Error(t, err)
		assert.True(t, forwardedit.IsConfigError(err))
	})
}

func TestDetectModes(t *testing.T) {
	tempDir := t.TempDir()
	writeTree(t, tempDir, map[string]string{
		"plain.py":    plainClass,
		"forward.py":  forwardClass,
		"nothing.py":  noClasses,
		"sentinel.py": forwardedit.IgnoreSentinelLine + "\n" + plainClass,
	})

	paths := []string{
		filepath.Join(tempDir, "plain.py"),
		filepath.Join(tempDir, "forward.py"),
		filepath.Join(tempDir, "nothing.py"),
		filepath.Join(tempDir, "sentinel.py"),
	}

	results, err := newEditor(t).DetectModes(context.Background(), paths)
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, forwardedit.ModeAdd, results[0].Mode)
	assert.Equal(t, 9, results[0].Modifications)
	assert.Equal(t, forwardedit.ModeRemove, results[1].Mode)
	assert.Equal(t, forwardedit.ModeToggle, results[2].Mode)
	assert.Equal(t, forwardedit.SkipSentinel, results[3].Skipped)

	for _, result := range results {
		assert.False(t, result.Written)
	}
	assert.Equal(t, plainClass, readFile(t, paths[0]))
	assert.Equal(t, forwardClass, readFile(t, paths[1]))
}

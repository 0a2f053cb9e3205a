package forwardedit

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
)

// RuntimeModulePath is where the runtime support module lives, relative to
// a tree root.
const RuntimeModulePath = "forward/__init__.py"

//go:embed template/forward/__init__.py
var runtimeTemplate []byte

// RuntimeTemplate returns the embedded runtime support module.
func RuntimeTemplate() []byte {
	return append([]byte(nil), runtimeTemplate...)
}

// InstallRuntime copies the runtime support module into root unless one is
// already there. An empty templatePath selects the embedded template.
func InstallRuntime(root, templatePath string, dryRun bool) (bool, error) {
	target := filepath.Join(root, filepath.FromSlash(RuntimeModulePath))
	if info, err := os.Stat(target); err == nil && !info.IsDir() {
		return false, nil
	}

	data := runtimeTemplate
	var mode os.FileMode = DefaultFilePermissions
	if templatePath != "" {
		info, err := os.Stat(templatePath)
		if err != nil {
			return false, fmt.Errorf("runtime template: %w", err)
		}
		if data, err = os.ReadFile(templatePath); err != nil {
			return false, fmt.Errorf("runtime template: %w", err)
		}
		mode = info.Mode().Perm()
	}

	if dryRun {
		return true, nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return false, fmt.Errorf("install runtime module: %w", err)
	}
	if err := os.WriteFile(target, data, mode); err != nil {
		return false, fmt.Errorf("install runtime module: %w", err)
	}

	if templatePath != "" {
		// Keep the template's timestamps, like a metadata-preserving copy.
		if stamp, err := statTimes(templatePath); err == nil {
			_ = stamp.restore(target)
		}
	}
	return true, nil
}

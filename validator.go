package forwardedit

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

type Validator interface {
	ValidateSourceFile(filePath, suffix string) error
	ValidateRoot(root string) error
	ValidateConfig(config *Config) error
	ValidateCheckout(root string, checkout CheckoutConfig) error
}

type DefaultValidator struct{}

func NewDefaultValidator() *DefaultValidator {
	return &DefaultValidator{}
}

func (v *DefaultValidator) ValidateSourceFile(filePath, suffix string) error {
	if filePath == "" {
		return newConfigError("path cannot be empty")
	}
	if !strings.HasSuffix(filePath, suffix) {
		return newConfigError("invalid source file %q: expected %s suffix", filePath, suffix)
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return newConfigError("invalid source file %q: %v", filePath, err)
	}
	if info.IsDir() {
		return newConfigError("invalid source file %q: is a directory", filePath)
	}
	return nil
}

func (v *DefaultValidator) ValidateRoot(root string) error {
	if root == "" {
		return newConfigError("path cannot be empty")
	}

	info, err := os.Stat(root)
	if err != nil {
		return newConfigError("invalid path %q: %v", root, err)
	}
	if !info.IsDir() {
		return newConfigError("invalid path %q: not a directory", root)
	}
	return nil
}

func (v *DefaultValidator) ValidateConfig(config *Config) error {
	if config == nil {
		return newConfigError("config cannot be nil")
	}

	if !strings.HasPrefix(config.Suffix, ".") || len(config.Suffix) < 2 {
		return newConfigError("suffix must look like \".py\", got %q", config.Suffix)
	}

	if !config.Mode.Valid() {
		return newConfigError("mode %q not in add, remove, toggle", config.Mode)
	}

	if err := validateRelativePaths("ignore_dirs", config.IgnoreDirs); err != nil {
		return err
	}
	if err := validateRelativePaths("ignore_files", config.IgnoreFiles); err != nil {
		return err
	}
	for file, list := range config.IgnoreClasses {
		if err := list.Validate(); err != nil {
			return fmt.Errorf("ignore_classes[%s]: %w", file, err)
		}
	}

	checkout := config.Checkout
	if err := validateRelativePaths("checkout.ignore_dirs", checkout.IgnoreDirs); err != nil {
		return err
	}
	if err := validateRelativePaths("checkout.ignore_files", checkout.IgnoreFiles); err != nil {
		return err
	}
	for file, list := range checkout.IgnoreClasses {
		if err := list.Validate(); err != nil {
			return fmt.Errorf("checkout.ignore_classes[%s]: %w", file, err)
		}
	}

	return nil
}

// ValidateCheckout verifies that root looks like the configured checkout
// and, when a revision is pinned, that exactly that revision is checked out.
func (v *DefaultValidator) ValidateCheckout(root string, checkout CheckoutConfig) error {
	if err := v.ValidateRoot(root); err != nil {
		return err
	}

	for _, entry := range checkout.Required {
		if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(entry))); err != nil {
			return newConfigError("bad checkout %q: no %q found", root, entry)
		}
	}

	if checkout.Revision != "" {
		head, err := os.ReadFile(filepath.Join(root, ".git", "HEAD"))
		if err != nil {
			return newConfigError("bad checkout %q: cannot read revision: %v", root, err)
		}
		if revision := strings.TrimSpace(string(head)); revision != checkout.Revision {
			return newConfigError("bad checkout revision in %q: have %s, want %s (run: git checkout %s)",
				root, revision, checkout.Revision, checkout.Revision)
		}
	}

	if checkout.Subdir != "" {
		if err := v.ValidateRoot(filepath.Join(root, filepath.FromSlash(checkout.Subdir))); err != nil {
			return err
		}
	}
	return nil
}

func validateRelativePaths(field string, paths []string) error {
	for _, p := range paths {
		if p == "" {
			return newConfigError("%s: empty path", field)
		}
		if strings.HasPrefix(p, "/") || filepath.IsAbs(p) {
			return newConfigError("%s: path must be relative to root: %s", field, p)
		}
		if path.Clean(p) != p {
			return newConfigError("%s: path must be clean and use \"/\": %s", field, p)
		}
	}
	return nil
}

package forwardedit

import (
	"errors"
	"fmt"
)

// ErrDecode is returned (wrapped with the path) for files that are not UTF-8 text.
var ErrDecode = errors.New("could not decode file as UTF-8 text")

// ConfigError reports a bad mode, ignore entry, path or config file. It is
// always raised before any file is modified.
type ConfigError struct {
	msg string
}

func newConfigError(f string, args ...interface{}) *ConfigError {
	return &ConfigError{fmt.Sprintf(f, args...)}
}

func (e *ConfigError) Error() string {
	return "config: " + e.msg
}

// ShapeError means a file did not have the shape the rewriter emits, e.g.
// "@forward()" not followed by a class declaration.
type ShapeError struct {
	Path string
	Line int
	Text string
	Msg  string
}

func (e *ShapeError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s:%d: %s: %q", e.Path, e.Line, e.Msg, e.Text)
	}
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Msg, e.Text)
}

func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

func IsShapeError(err error) bool {
	var se *ShapeError
	return errors.As(err, &se)
}

// Package errs defines the two error kinds that abort a build step.
package errs

import "fmt"

// PluginError reports a problem with the project inputs the plugin works on:
// malformed homepage HTML, missing <head> or <body>, unparsable locales or
// invalid package metadata.
type PluginError struct {
	Msg string
	Err error // optional underlying cause
}

func (e *PluginError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *PluginError) Unwrap() error {
	return e.Err
}

// IntegrityError is returned while bundling if an expected file is missing
// from the build output or the project.
type IntegrityError struct {
	Path string // the file that should exist
	Msg  string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s (%s should exist)", e.Msg, e.Path)
}

// Pluginf returns a *PluginError with a formatted message.
func Pluginf(format string, args ...any) error {
	return &PluginError{Msg: fmt.Sprintf(format, args...)}
}

// WrapPlugin returns a *PluginError for msg caused by err.
func WrapPlugin(err error, msg string) error {
	return &PluginError{Msg: msg, Err: err}
}

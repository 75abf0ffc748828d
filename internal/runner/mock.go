package runner

import (
	"context"
	"fmt"
	"strings"
)

// Mock is a Runner that records invocations and returns predefined responses.
// It lets callers exercise the build steps without the real tools installed.
type Mock struct {
	// RunFunc is called for every command whose executable is not Missing.
	// A nil RunFunc makes every command succeed with empty output.
	RunFunc func(cmd Command) (Result, error)

	// Missing lists executables that behave as if they were not installed.
	Missing map[string]bool

	// Calls tracks all command invocations, including ones for missing tools.
	Calls []Command
}

// NewMock creates a Mock with the given executables reported as missing.
func NewMock(missing ...string) *Mock {
	m := &Mock{Missing: make(map[string]bool)}
	for _, name := range missing {
		m.Missing[name] = true
	}
	return m
}

// Run records the call and delegates to RunFunc.
func (m *Mock) Run(_ context.Context, cmd Command) (Result, error) {
	m.Calls = append(m.Calls, cmd)

	if m.Missing[cmd.Name] {
		return Result{ExitCode: -1}, fmt.Errorf("%s: %w", cmd.Name, ErrNotFound)
	}
	if m.RunFunc != nil {
		return m.RunFunc(cmd)
	}
	return Result{}, nil
}

// LookPath fails for Missing executables.
func (m *Mock) LookPath(name string) (string, error) {
	if m.Missing[name] {
		return "", fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return "/usr/bin/" + name, nil
}

// CallsTo returns the recorded invocations of the named executable.
func (m *Mock) CallsTo(name string) []Command {
	var calls []Command
	for _, c := range m.Calls {
		if c.Name == name {
			calls = append(calls, c)
		}
	}
	return calls
}

// Lines returns every recorded command line, one per call.
func (m *Mock) Lines() []string {
	lines := make([]string, 0, len(m.Calls))
	for _, c := range m.Calls {
		lines = append(lines, c.String())
	}
	return lines
}

// Fail builds the Result/error pair of a command that exited with code.
func Fail(name string, code int, stdout, stderr string) (Result, error) {
	res := Result{Stdout: stdout, Stderr: stderr, ExitCode: code}
	return res, fmt.Errorf("%s: %w (status %d)", name, ErrExit, code)
}

// HasArg reports whether the command was invoked with arg.
func (c Command) HasArg(arg string) bool {
	for _, a := range c.Args {
		if a == arg || strings.HasPrefix(a, arg+"=") {
			return true
		}
	}
	return false
}

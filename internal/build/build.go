// Package build runs the project's top-level build script and captures the
// outcome of each invocation as an Attempt.
package build

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"ndkfix/internal/config"
	"ndkfix/internal/runner"
)

// ErrNoInterpreter is returned when none of the configured shells is installed.
var ErrNoInterpreter = errors.New("no interpreter available to run the build script")

// Attempt is the captured result of one build invocation.
type Attempt struct {
	Index       int
	Interpreter string
	Stdout      string
	Stderr      string
	ExitCode    int
	Duration    time.Duration
}

// Succeeded reports whether the build exited with status 0.
func (a Attempt) Succeeded() bool {
	return a.ExitCode == 0
}

// ErrorText is the text failure classification works on: the captured
// stderr, or stdout when the script wrote nothing to stderr.
func (a Attempt) ErrorText() string {
	if a.Succeeded() {
		return ""
	}
	if strings.TrimSpace(a.Stderr) != "" {
		return a.Stderr
	}
	return a.Stdout
}

// Tail returns at most the last n bytes of stdout.
func (a Attempt) Tail(n int) string {
	if n <= 0 || len(a.Stdout) <= n {
		return a.Stdout
	}
	return a.Stdout[len(a.Stdout)-n:]
}

// Runner invokes the build script through the first available interpreter.
type Runner struct {
	root         string
	script       string
	interpreters []string

	runner runner.Runner
	log    logrus.FieldLogger
	now    func() time.Time
}

// New creates a build Runner for the project described by cfg.
func New(cfg *config.Config, r runner.Runner, log logrus.FieldLogger) *Runner {
	return &Runner{
		root:         cfg.Root,
		script:       cfg.Build.Script,
		interpreters: cfg.Build.Interpreters,
		runner:       r,
		log:          log,
		now:          time.Now,
	}
}

// Run executes the build script once. A non-zero exit is not an error: it is
// reported through the returned Attempt. When no interpreter is installed
// the Attempt carries ErrNoInterpreter's message as its error text and
// ErrNoInterpreter is returned alongside it.
func (b *Runner) Run(ctx context.Context, index int, env ...string) (Attempt, error) {
	start := b.now()

	for _, interp := range b.interpreters {
		res, err := b.runner.Run(ctx, runner.Command{
			Name: interp,
			Args: []string{scriptArg(interp, b.script)},
			Dir:  b.root,
			Env:  env,
		})
		if errors.Is(err, runner.ErrNotFound) {
			b.log.WithField("interpreter", interp).Warn("Interpreter not available, trying next")
			continue
		}
		if err != nil && !errors.Is(err, runner.ErrExit) {
			return Attempt{}, fmt.Errorf("failed to run build script: %w", err)
		}

		attempt := Attempt{
			Index:       index,
			Interpreter: interp,
			Stdout:      res.Stdout,
			Stderr:      res.Stderr,
			ExitCode:    res.ExitCode,
			Duration:    b.now().Sub(start),
		}
		b.log.WithFields(logrus.Fields{
			"attempt":     index,
			"interpreter": interp,
			"exit":        attempt.ExitCode,
		}).Debug("Build finished")
		return attempt, nil
	}

	return Attempt{
		Index:    index,
		Stderr:   ErrNoInterpreter.Error(),
		ExitCode: -1,
		Duration: b.now().Sub(start),
	}, ErrNoInterpreter
}

// scriptArg formats the script path for interp. PowerShell needs an explicit
// ./ prefix to run a script from the working directory.
func scriptArg(interp, script string) string {
	base := strings.ToLower(strings.TrimSuffix(filepath.Base(interp), ".exe"))
	if (base == "powershell" || base == "pwsh") && !filepath.IsAbs(script) && !strings.HasPrefix(script, ".") {
		return "./" + script
	}
	return script
}

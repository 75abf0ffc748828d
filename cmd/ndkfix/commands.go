package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ndkfix/internal/build"
	"ndkfix/internal/compiler"
	"ndkfix/internal/config"
	"ndkfix/internal/dependency"
	"ndkfix/internal/diagnose"
	"ndkfix/internal/doctor"
	"ndkfix/internal/fixer"
	"ndkfix/internal/trigger"
)

const (
	// successTailBytes is how much build output is echoed after a passing build.
	successTailBytes = 500
	failureTailBytes = 2000
)

func (a *app) builder() *build.Runner {
	return build.New(a.cfg, a.runner, a.log)
}

func (a *app) runFix(cmd *cobra.Command, args []string) error {
	report, err := a.coordinator().Run(cmd.Context())
	return a.finishFix(report, err)
}

func (a *app) finishFix(report *fixer.Report, err error) error {
	if report != nil {
		fmt.Fprintln(a.stdout)
		report.Render(a.stdout)
	}

	if report != nil && report.Success() {
		color.New(color.FgGreen).Fprintln(a.stdout, "\nBuild succeeded")
		if last, ok := report.LastAttempt(); ok {
			a.printTail(last, successTailBytes)
		}
		return nil
	}

	if err != nil {
		color.New(color.FgRed).Fprintf(a.stderr, "\nError: %v\n", err)
	}
	if report != nil && report.Diagnosis != "" {
		color.New(color.FgCyan).Fprintln(a.stdout, "\nAnalysis:")
		fmt.Fprintln(a.stdout, strings.TrimSpace(report.Diagnosis))
	}
	a.printHelp()
	return errReported
}

func (a *app) printHelp() {
	color.New(color.FgRed).Fprintln(a.stderr, "\nBuild could not be repaired automatically.")
	fmt.Fprintln(a.stderr, "  - NDK setup:  NDK_SETUP_GUIDE.md")
	fmt.Fprintln(a.stderr, "  - Usage:      USER_GUIDE.md")
	fmt.Fprintln(a.stderr, "  - Inspect the build output above (run with --verbose for details)")
}

func (a *app) printTail(attempt build.Attempt, n int) {
	tail := strings.TrimSpace(attempt.Tail(n))
	if tail == "" {
		return
	}
	fmt.Fprintln(a.stdout, color.New(color.FgHiBlack).Sprint("----- build output (tail) -----"))
	fmt.Fprintln(a.stdout, tail)
}

// buildOnce runs a single build with the located NDK.
func (a *app) buildOnce(cmd *cobra.Command) (build.Attempt, error) {
	tc, err := a.toolchainLocator().Locate()
	if err != nil {
		return build.Attempt{}, err
	}
	a.log.WithField("ndk", tc.Home).Info("Using NDK")
	return a.builder().Run(cmd.Context(), 0, tc.Env()...)
}

func (a *app) runBuild(cmd *cobra.Command, args []string) error {
	attempt, err := a.buildOnce(cmd)
	if err != nil {
		return err
	}
	if attempt.Succeeded() {
		color.New(color.FgGreen).Fprintf(a.stdout, "Build succeeded (%s)\n", attempt.Interpreter)
		a.printTail(attempt, successTailBytes)
		return nil
	}

	color.New(color.FgRed).Fprintf(a.stderr, "Build failed with exit code %d\n", attempt.ExitCode)
	fmt.Fprintln(a.stderr, tail(attempt.ErrorText(), failureTailBytes))
	return errReported
}

func (a *app) runMonitor(cmd *cobra.Command, args []string) error {
	color.New(color.FgBlue).Fprintln(a.stdout, "Running build...")
	attempt, err := a.buildOnce(cmd)
	if err != nil && !errors.Is(err, build.ErrNoInterpreter) {
		return err
	}
	if err == nil && attempt.Succeeded() {
		color.New(color.FgGreen).Fprintln(a.stdout, "Build succeeded")
		a.printTail(attempt, successTailBytes)
		return nil
	}

	color.New(color.FgYellow).Fprintln(a.stdout, "Build failed, starting automatic repair...")
	return a.runFix(cmd, args)
}

func (a *app) runFetch(cmd *cobra.Command, args []string) error {
	loc := dependency.NewLocator(a.cfg, a.runner, a.log)
	if err := loc.EnsureSource(cmd.Context()); err != nil {
		return err
	}
	if art := loc.Artifact(); art.Exists {
		color.New(color.FgGreen).Fprintf(a.stdout, "Artifact present: %s\n", art.Path)
		return nil
	}
	color.New(color.FgGreen).Fprintf(a.stdout, "Source present: %s\n", a.cfg.SourceDir())
	return nil
}

func (a *app) newCompileCmd() *cobra.Command {
	var force bool
	compileCmd := &cobra.Command{
		Use:   "compile",
		Short: "Cross-compile the dependency from source with CMake",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := a.toolchainLocator().Locate()
			if err != nil {
				return err
			}
			if err := dependency.NewLocator(a.cfg, a.runner, a.log).EnsureSource(cmd.Context()); err != nil {
				return err
			}

			c := compiler.New(a.cfg, a.runner, a.log)
			if force {
				err = c.Compile(cmd.Context(), tc)
			} else {
				err = c.EnsureCompiled(cmd.Context(), tc)
			}
			if err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintf(a.stdout, "Artifact ready: %s\n", strings.Join(c.Destinations(), ", "))
			return nil
		},
	}
	compileCmd.Flags().BoolVarP(&force, "force", "f", false, "Recompile even when the artifact exists")
	return compileCmd
}

func (a *app) runAnalyze(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if len(args) == 1 {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("failed to read build log: %w", err)
	}
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("build log is empty")
	}

	category := a.classifier().Classify(text)
	fmt.Fprintf(a.stdout, "Category: %s\n", color.New(color.FgCyan).Sprint(category))

	client := a.diagnoseClient()
	diagnosis, err := client.Analyze(cmd.Context(), text)
	if errors.Is(err, diagnose.ErrDisabled) {
		color.New(color.FgYellow).Fprintf(a.stdout, "Analysis skipped: set %s to enable it\n", config.EnvAPIKey)
		return nil
	}
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	color.New(color.FgCyan).Fprintf(a.stdout, "\nAnalysis (%s):\n", client.Model())
	fmt.Fprintln(a.stdout, strings.TrimSpace(diagnosis))
	return nil
}

func (a *app) runDoctor(cmd *cobra.Command, args []string) error {
	checks := doctor.New(a.cfg, a.runner, a.toolchainLocator()).Run(cmd.Context())
	doctor.Render(a.stdout, checks)
	if !doctor.Healthy(checks) {
		color.New(color.FgRed).Fprintln(a.stderr, "\nSome required checks failed.")
		return errReported
	}
	color.New(color.FgGreen).Fprintln(a.stdout, "\nReady to build.")
	return nil
}

func (a *app) runTrigger(cmd *cobra.Command, args []string) error {
	tag, err := trigger.New(a.cfg, a.runner, a.log).Fire(cmd.Context())
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(a.stdout, "Pushed %s to %s\n", tag, a.cfg.Trigger.Remote)
	return nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

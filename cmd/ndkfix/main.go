package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"ndkfix/internal/classify"
	"ndkfix/internal/compiler"
	"ndkfix/internal/config"
	"ndkfix/internal/dependency"
	"ndkfix/internal/diagnose"
	"ndkfix/internal/fixer"
	"ndkfix/internal/runner"
	"ndkfix/internal/toolchain"
)

// newRunner is replaced in tests.
var newRunner = func() runner.Runner { return runner.Exec{} }

// errReported marks failures whose details were already printed.
var errReported = errors.New("failed")

type app struct {
	stdout io.Writer
	stderr io.Writer

	// Flags
	root        string
	configFile  string
	logFile     string
	verbose     bool
	maxAttempts int

	cfg      *config.Config
	log      *logrus.Logger
	runner   runner.Runner
	closeLog func()
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr, closeLog: func() {}}
	defer func() { a.closeLog() }()

	rootCmd := a.newRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			color.New(color.FgRed).Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func (a *app) newRootCmd() *cobra.Command {
	var rootCmd = &cobra.Command{
		Use:   "ndkfix",
		Short: "Build an Android NDK project and repair common build failures",
		Long: `ndkfix runs the project's build script and, when it fails, classifies the
error output and applies a fix: rebuilding, recompiling the hooking library
from source, or asking an analysis endpoint for advice.

Example:
  ndkfix --root ./MyModule
  ndkfix doctor
  ndkfix compile --force`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		RunE:              a.runFix,
	}

	rootCmd.PersistentFlags().StringVarP(&a.root, "root", "r", ".", "Project root directory")
	rootCmd.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "Config file (default <root>/"+config.DefaultFileName+")")
	rootCmd.PersistentFlags().StringVar(&a.logFile, "log-file", "", "Also write logs to this file")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().IntVar(&a.maxAttempts, "max-attempts", 0, "Maximum repair iterations (overrides config)")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "fix",
			Short: "Build and repair until the build passes or attempts run out",
			Args:  cobra.NoArgs,
			RunE:  a.runFix,
		},
		&cobra.Command{
			Use:   "build",
			Short: "Run the build script once",
			Args:  cobra.NoArgs,
			RunE:  a.runBuild,
		},
		&cobra.Command{
			Use:   "fetch",
			Short: "Clone the dependency source if neither it nor the artifact exists",
			Args:  cobra.NoArgs,
			RunE:  a.runFetch,
		},
		a.newCompileCmd(),
		&cobra.Command{
			Use:   "analyze [file]",
			Short: "Classify a captured build log and request an analysis",
			Long: `Classify a captured build log and request an analysis.

The log is read from file, or from stdin when no file is given.`,
			Args: cobra.MaximumNArgs(1),
			RunE: a.runAnalyze,
		},
		&cobra.Command{
			Use:   "doctor",
			Short: "Check tools, NDK, dependency and analysis settings",
			Args:  cobra.NoArgs,
			RunE:  a.runDoctor,
		},
		&cobra.Command{
			Use:   "monitor",
			Short: "Build once and only start repairing when the build fails",
			Args:  cobra.NoArgs,
			RunE:  a.runMonitor,
		},
		&cobra.Command{
			Use:   "trigger",
			Short: "Push a build tag to start a remote build",
			Args:  cobra.NoArgs,
			RunE:  a.runTrigger,
		},
	)
	return rootCmd
}

// setup loads configuration and creates the logger and command runner.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.root, a.configFile)
	if err != nil {
		return err
	}
	if a.maxAttempts != 0 {
		cfg.Build.MaxFixAttempts = a.maxAttempts
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	a.cfg = cfg

	log, closeLog, err := setupLogging(a.stderr, a.verbose, a.logFile)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	a.log = log
	a.closeLog = closeLog

	a.runner = withSpinner(newRunner(), a.stderr, a.verbose)
	a.log.WithField("root", cfg.Root).Debug("Configuration loaded")
	return nil
}

func (a *app) toolchainLocator() *toolchain.Locator {
	return toolchain.NewLocator(a.cfg.Toolchain.EnvVars, a.cfg.Toolchain.Candidates)
}

func (a *app) diagnoseClient() *diagnose.Client {
	d := a.cfg.Diagnostic
	return diagnose.NewClient(d.APIKey, d.URL, d.Model, d.Temperature)
}

func (a *app) classifier() *classify.Classifier {
	return classify.Default(a.cfg.Target.ABI, a.cfg.Dependency.Name)
}

func (a *app) coordinator() *fixer.Coordinator {
	return fixer.New(fixer.Deps{
		Dependency: dependency.NewLocator(a.cfg, a.runner, a.log),
		Toolchain:  a.toolchainLocator(),
		Compiler:   compiler.New(a.cfg, a.runner, a.log),
		Builder:    a.builder(),
		Classifier: a.classifier(),
		Analyzer:   a.diagnoseClient(),
	}, a.cfg.Build.MaxFixAttempts, a.log)
}

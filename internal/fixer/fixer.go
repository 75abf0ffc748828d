// Package fixer coordinates a build with bounded, classifier-driven repair.
//
// A run checks the dependency and the NDK, builds once, and on failure enters
// a remedial loop: each iteration classifies the newest error output and
// either rebuilds, recompiles the dependency and rebuilds, or gives up after
// asking the diagnostic endpoint for advice. The loop never runs more than
// MaxAttempts iterations.
package fixer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ndkfix/internal/build"
	"ndkfix/internal/classify"
	"ndkfix/internal/dependency"
	"ndkfix/internal/toolchain"
)

// DefaultMaxAttempts is the remedial iteration cap.
const DefaultMaxAttempts = 3

// ErrPrecondition wraps failures that end a run before the first build.
var ErrPrecondition = errors.New("build precondition not met")

// DependencyLocator makes the dependency source or artifact available.
type DependencyLocator interface {
	EnsureSource(ctx context.Context) error
	Artifact() dependency.Artifact
}

// ToolchainLocator finds the NDK.
type ToolchainLocator interface {
	Locate() (toolchain.Toolchain, error)
}

// ArtifactCompiler builds the dependency from source.
type ArtifactCompiler interface {
	EnsureCompiled(ctx context.Context, tc toolchain.Toolchain) error
	Compile(ctx context.Context, tc toolchain.Toolchain) error
}

// BuildRunner runs the project build once.
type BuildRunner interface {
	Run(ctx context.Context, index int, env ...string) (build.Attempt, error)
}

// Classifier maps error output to a failure category.
type Classifier interface {
	Classify(text string) classify.Category
}

// Analyzer turns error output into a diagnosis.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (string, error)
}

// Deps are the collaborators a Coordinator drives.
type Deps struct {
	Dependency DependencyLocator
	Toolchain  ToolchainLocator
	Compiler   ArtifactCompiler
	Builder    BuildRunner
	Classifier Classifier
	// Analyzer is optional.
	Analyzer Analyzer
}

// Coordinator runs the build-and-repair loop.
type Coordinator struct {
	deps        Deps
	maxAttempts int
	log         logrus.FieldLogger
	newID       func() string
}

// New creates a Coordinator. A non-positive maxAttempts selects
// DefaultMaxAttempts.
func New(deps Deps, maxAttempts int, log logrus.FieldLogger) *Coordinator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Coordinator{
		deps:        deps,
		maxAttempts: maxAttempts,
		log:         log,
		newID:       uuid.NewString,
	}
}

// MaxAttempts returns the remedial iteration cap.
func (c *Coordinator) MaxAttempts() int {
	return c.maxAttempts
}

// Run executes the whole workflow. The returned error is non-nil only when
// the run could not get as far as classifying a build: a missing precondition,
// a build script that could not be started, or cancellation. Every other
// outcome is described by the Report.
func (c *Coordinator) Run(ctx context.Context) (*Report, error) {
	report := &Report{RunID: c.newID(), MaxAttempts: c.maxAttempts}
	log := c.log.WithField("run_id", report.RunID)

	tc, err := c.prepare(ctx, log)
	if err != nil {
		report.Outcome = OutcomePrecondition
		report.Reason = err.Error()
		return report, err
	}
	report.Toolchain = tc

	attempt, err := c.build(ctx, report, tc, 0)
	if err != nil {
		return report, err
	}
	if attempt.Succeeded() {
		report.finish(OutcomeSucceeded, "")
		return report, nil
	}
	log.WithField("exit", attempt.ExitCode).Warn("Build failed, attempting repair")

	for report.Remedial < c.maxAttempts {
		report.Remedial++
		category := c.deps.Classifier.Classify(attempt.ErrorText())
		step := &report.Steps[len(report.Steps)-1]
		step.Category = category

		ilog := log.WithFields(logrus.Fields{
			"iteration": report.Remedial,
			"category":  category.String(),
		})

		switch category {
		case classify.Architecture, classify.Toolchain:
			step.Action = ActionRebuild
			ilog.Info("Rebuilding")

		case classify.Dependency:
			step.Action = ActionRecompile
			ilog.Info("Recompiling dependency before rebuilding")
			if err := c.deps.Compiler.Compile(ctx, tc); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					report.finish(OutcomeAborted, ctxErr.Error())
					return report, ctxErr
				}
				ilog.WithError(err).Error("Dependency recompilation failed")
				report.finish(OutcomeRecompileFailed, err.Error())
				return report, nil
			}

		default:
			step.Action = ActionAnalyze
			ilog.Warn("Unrecognized build error, requesting analysis")
			report.Diagnosis = c.analyze(ctx, ilog, attempt.ErrorText())
			report.finish(OutcomeUnclassified, "unrecognized build error")
			return report, nil
		}

		attempt, err = c.build(ctx, report, tc, report.Remedial)
		if err != nil {
			return report, err
		}
		if attempt.Succeeded() {
			ilog.Info("Build succeeded after repair")
			report.finish(OutcomeSucceeded, "")
			return report, nil
		}
	}

	report.finish(OutcomeExhausted, fmt.Sprintf("build still failing after %d repair attempts", c.maxAttempts))
	return report, nil
}

// prepare checks the dependency and the NDK and compiles the dependency when
// only its source is present.
func (c *Coordinator) prepare(ctx context.Context, log logrus.FieldLogger) (toolchain.Toolchain, error) {
	if err := c.deps.Dependency.EnsureSource(ctx); err != nil {
		return toolchain.Toolchain{}, fmt.Errorf("%w: dependency unavailable: %v", ErrPrecondition, err)
	}

	tc, err := c.deps.Toolchain.Locate()
	if err != nil {
		return toolchain.Toolchain{}, fmt.Errorf("%w: %v", ErrPrecondition, err)
	}
	log.WithFields(logrus.Fields{"ndk": tc.Home, "source": tc.Source}).Info("Using NDK")

	if !c.deps.Dependency.Artifact().Exists {
		if err := c.deps.Compiler.EnsureCompiled(ctx, tc); err != nil {
			return tc, fmt.Errorf("%w: dependency compilation failed: %v", ErrPrecondition, err)
		}
	}
	return tc, nil
}

// build runs the build and records it. A missing interpreter is recorded as
// a failed attempt so it goes through classification like any other failure.
func (c *Coordinator) build(ctx context.Context, report *Report, tc toolchain.Toolchain, index int) (build.Attempt, error) {
	attempt, err := c.deps.Builder.Run(ctx, index, tc.Env()...)
	if err != nil && !errors.Is(err, build.ErrNoInterpreter) {
		report.finish(OutcomeAborted, err.Error())
		return attempt, err
	}
	report.Steps = append(report.Steps, Step{Attempt: attempt})
	return attempt, nil
}

// analyze asks the Analyzer for advice. Failures are logged and swallowed.
func (c *Coordinator) analyze(ctx context.Context, log logrus.FieldLogger, text string) string {
	if c.deps.Analyzer == nil {
		return ""
	}
	diagnosis, err := c.deps.Analyzer.Analyze(ctx, text)
	if err != nil {
		log.WithError(err).Warn("Error analysis unavailable")
		return ""
	}
	return diagnosis
}

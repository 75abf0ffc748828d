// Package dependency makes sure the Dobby library is available to the native
// build, either as a prebuilt archive or as a source checkout to compile.
package dependency

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"ndkfix/internal/config"
	"ndkfix/internal/runner"
)

var (
	// ErrFetchToolMissing is returned when git is not installed.
	ErrFetchToolMissing = errors.New("git is not installed")
	// ErrFetchFailed is returned when the clone exits with a non-zero status.
	ErrFetchFailed = errors.New("failed to fetch dependency source")
)

// Artifact is the prebuilt library and whether it is currently on disk.
type Artifact struct {
	Path   string
	Exists bool
}

// Locator checks for the prebuilt artifact and its source checkout.
type Locator struct {
	artifactPath string
	sourceDir    string
	repoURL      string

	runner runner.Runner
	log    logrus.FieldLogger
}

// NewLocator creates a Locator for the dependency described by cfg.
func NewLocator(cfg *config.Config, r runner.Runner, log logrus.FieldLogger) *Locator {
	return &Locator{
		artifactPath: cfg.ArtifactPath(),
		sourceDir:    cfg.SourceDir(),
		repoURL:      cfg.Dependency.RepoURL,
		runner:       r,
		log:          log,
	}
}

// Artifact reports the prebuilt library record.
func (l *Locator) Artifact() Artifact {
	_, err := os.Stat(l.artifactPath)
	return Artifact{Path: l.artifactPath, Exists: err == nil}
}

// SourcePresent reports whether the source checkout exists.
func (l *Locator) SourcePresent() bool {
	_, err := os.Stat(l.sourceDir)
	return err == nil
}

// EnsureSource returns nil when the artifact or its source is present after
// the call. When neither is, it shallow-clones the upstream repository once.
func (l *Locator) EnsureSource(ctx context.Context) error {
	if a := l.Artifact(); a.Exists {
		l.log.WithField("path", a.Path).Info("Prebuilt dependency found")
		return nil
	}
	l.log.WithField("path", l.artifactPath).Warn("Prebuilt dependency is missing")

	if l.SourcePresent() {
		l.log.WithField("dir", l.sourceDir).Info("Dependency source already checked out")
		return nil
	}

	if _, err := l.runner.LookPath("git"); err != nil {
		return ErrFetchToolMissing
	}

	if err := os.MkdirAll(filepath.Dir(l.sourceDir), 0755); err != nil {
		return fmt.Errorf("failed to create directory for dependency source: %w", err)
	}

	l.log.WithField("repo", l.repoURL).Info("Cloning dependency source")
	res, err := l.runner.Run(ctx, runner.Command{
		Name: "git",
		Args: []string{"clone", "--depth=1", l.repoURL, l.sourceDir},
	})
	if err != nil {
		if errors.Is(err, runner.ErrNotFound) {
			return ErrFetchToolMissing
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v\nOutput: %s", ErrFetchFailed, err, res.Combined())
	}

	l.log.WithField("dir", l.sourceDir).Info("Dependency source downloaded")
	return nil
}

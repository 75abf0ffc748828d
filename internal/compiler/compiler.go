// Package compiler cross-compiles the Dobby static library with the NDK's cmake
// toolchain and installs it where the native build expects it.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"ndkfix/internal/config"
	"ndkfix/internal/runner"
	"ndkfix/internal/toolchain"
)

var (
	ErrSourceMissing    = errors.New("dependency source does not exist")
	ErrNoToolchain      = errors.New("no NDK toolchain configured")
	ErrConfigure        = errors.New("cmake configuration failed")
	ErrBuild            = errors.New("dependency build failed")
	ErrArtifactNotFound = errors.New("compiled artifact not found in build tree")
)

const (
	buildDirName = "build"
	cmakeExec    = "cmake"
)

// Compiler handles configuring, building and installing the dependency.
type Compiler struct {
	sourceDir    string
	artifactName string
	artifactPath string
	libDir       string
	abi          string
	platform     string

	runner runner.Runner
	log    logrus.FieldLogger
}

// New creates a Compiler for the dependency and target described by cfg.
func New(cfg *config.Config, r runner.Runner, log logrus.FieldLogger) *Compiler {
	return &Compiler{
		sourceDir:    cfg.SourceDir(),
		artifactName: cfg.Dependency.ArtifactName,
		artifactPath: cfg.ArtifactPath(),
		libDir:       cfg.LibDir(),
		abi:          cfg.Target.ABI,
		platform:     cfg.Target.Platform,
		runner:       r,
		log:          log,
	}
}

// Destinations lists every path the compiled artifact is copied to.
func (c *Compiler) Destinations() []string {
	return []string{
		filepath.Join(c.libDir, c.artifactName),
		c.artifactPath,
	}
}

// EnsureCompiled compiles the dependency unless the prebuilt artifact exists.
func (c *Compiler) EnsureCompiled(ctx context.Context, tc toolchain.Toolchain) error {
	if _, err := os.Stat(c.artifactPath); err == nil {
		c.log.WithField("path", c.artifactPath).Debug("Dependency already built, skipping compilation")
		return nil
	}
	return c.Compile(ctx, tc)
}

// Compile configures and builds the dependency from source, then copies the
// resulting archive to every destination. Any failing stage fails the whole
// call.
func (c *Compiler) Compile(ctx context.Context, tc toolchain.Toolchain) error {
	if _, err := os.Stat(c.sourceDir); err != nil {
		return fmt.Errorf("%w: %s", ErrSourceMissing, c.sourceDir)
	}
	if tc.Home == "" {
		return ErrNoToolchain
	}

	buildDir := filepath.Join(c.sourceDir, buildDirName)
	if err := os.MkdirAll(buildDir, 0755); err != nil {
		return fmt.Errorf("failed to create build directory: %w", err)
	}

	c.log.WithFields(logrus.Fields{"abi": c.abi, "platform": c.platform}).Info("Configuring dependency")
	if err := c.configure(ctx, tc); err != nil {
		return err
	}

	c.log.Info("Building dependency")
	res, err := c.run(ctx, tc, "--build", buildDirName, "--parallel")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v\nOutput: %s", ErrBuild, err, res.Stderr)
	}

	compiled, err := findArtifact(buildDir, c.artifactName)
	if err != nil {
		return err
	}

	for _, dst := range c.Destinations() {
		if err := copyFile(compiled, dst); err != nil {
			return fmt.Errorf("failed to install %s: %w", dst, err)
		}
		c.log.WithField("path", dst).Info("Installed compiled dependency")
	}
	return nil
}

// configure runs the cmake configuration step, retrying once with the legacy
// -H/-B syntax and an explicit Release build type.
func (c *Compiler) configure(ctx context.Context, tc toolchain.Toolchain) error {
	common := []string{
		"-DCMAKE_TOOLCHAIN_FILE=" + tc.CMakeToolchainFile(),
		"-DANDROID_ABI=" + c.abi,
		"-DANDROID_PLATFORM=" + c.platform,
	}

	primary := append([]string{".", "-B", buildDirName}, common...)
	res, err := c.run(ctx, tc, primary...)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	c.log.WithError(err).Warn("cmake configuration failed, retrying with alternate syntax")
	c.log.Debug(res.Stderr)

	alternate := append([]string{"-H.", "-B" + buildDirName}, common...)
	alternate = append(alternate, "-DCMAKE_BUILD_TYPE=Release")
	res, err = c.run(ctx, tc, alternate...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v\nOutput: %s", ErrConfigure, err, res.Stderr)
	}
	return nil
}

func (c *Compiler) run(ctx context.Context, tc toolchain.Toolchain, args ...string) (runner.Result, error) {
	return c.runner.Run(ctx, runner.Command{
		Name: cmakeExec,
		Args: args,
		Dir:  c.sourceDir,
		Env:  tc.Env(),
	})
}

// findArtifact searches root breadth-first for a regular file called name, so
// the shallowest match wins.
func findArtifact(root, name string) (string, error) {
	queue := []string{root}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() && e.Name() == name {
				return filepath.Join(dir, e.Name()), nil
			}
		}
		for _, e := range entries {
			if e.IsDir() {
				queue = append(queue, filepath.Join(dir, e.Name()))
			}
		}
	}
	return "", fmt.Errorf("%w: %s under %s", ErrArtifactNotFound, name, root)
}

// copyFile overwrites dst with src, creating parent directories.
func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

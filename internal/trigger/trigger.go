// Package trigger starts a remote build by pushing a build tag.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"ndkfix/internal/config"
	"ndkfix/internal/runner"
)

// tagLayout is YYYYMMDDHHMMSS.
const tagLayout = "20060102150405"

var (
	ErrGitMissing = errors.New("git is not installed")
	ErrTag        = errors.New("failed to create tag")
	ErrPush       = errors.New("failed to push tag")
)

// Trigger creates and pushes v<version>-build.<timestamp> tags.
type Trigger struct {
	version string
	remote  string
	root    string
	runner  runner.Runner
	log     logrus.FieldLogger
	now     func() time.Time
}

// New creates a Trigger from the trigger section of cfg.
func New(cfg *config.Config, r runner.Runner, log logrus.FieldLogger) *Trigger {
	return &Trigger{
		version: strings.TrimPrefix(cfg.Trigger.Version, "v"),
		remote:  cfg.Trigger.Remote,
		root:    cfg.Root,
		runner:  r,
		log:     log,
		now:     time.Now,
	}
}

// TagName returns the tag for the current time.
func (t *Trigger) TagName() string {
	return fmt.Sprintf("v%s-build.%s", t.version, t.now().Format(tagLayout))
}

// Fire creates the tag locally and pushes it. It returns the tag name.
func (t *Trigger) Fire(ctx context.Context) (string, error) {
	if _, err := t.runner.LookPath("git"); err != nil {
		return "", ErrGitMissing
	}

	tag := t.TagName()
	log := t.log.WithFields(logrus.Fields{"tag": tag, "remote": t.remote})

	if res, err := t.git(ctx, "tag", tag); err != nil {
		return "", fmt.Errorf("%w %s: %v: %s", ErrTag, tag, err, strings.TrimSpace(res.Combined()))
	}
	log.Info("Created tag")

	if res, err := t.git(ctx, "push", t.remote, tag); err != nil {
		return tag, fmt.Errorf("%w %s: %v: %s", ErrPush, tag, err, strings.TrimSpace(res.Combined()))
	}
	log.Info("Pushed tag, remote build triggered")
	return tag, nil
}

func (t *Trigger) git(ctx context.Context, args ...string) (runner.Result, error) {
	return t.runner.Run(ctx, runner.Command{Name: "git", Args: args, Dir: t.root})
}

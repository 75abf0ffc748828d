// Package doctor reports whether the local machine can run a build.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"ndkfix/internal/config"
	"ndkfix/internal/runner"
	"ndkfix/internal/toolchain"
)

// Status is the result of a single check.
type Status int

const (
	StatusOK Status = iota
	StatusWarn
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusWarn:
		return "warn"
	default:
		return "fail"
	}
}

// Check is one line of the report.
type Check struct {
	Name   string
	Status Status
	Detail string
}

// ToolchainLocator finds the NDK.
type ToolchainLocator interface {
	Locate() (toolchain.Toolchain, error)
}

// Doctor inspects tools, paths and settings.
type Doctor struct {
	cfg       *config.Config
	runner    runner.Runner
	toolchain ToolchainLocator
	goos      string
}

// New creates a Doctor for cfg.
func New(cfg *config.Config, r runner.Runner, tl ToolchainLocator) *Doctor {
	return &Doctor{cfg: cfg, runner: r, toolchain: tl, goos: runtime.GOOS}
}

// Run performs every check in display order.
func (d *Doctor) Run(ctx context.Context) []Check {
	var checks []Check
	checks = append(checks, d.tool(ctx, "git", true))
	checks = append(checks, d.tool(ctx, "make", true))
	// cmake ships inside the Windows NDK bundle.
	checks = append(checks, d.tool(ctx, "cmake", d.goos != "windows"))
	checks = append(checks,
		d.interpreters(),
		d.buildScript(),
		d.ndk(),
		d.dependency(),
		d.diagnostic(),
	)
	return checks
}

func (d *Doctor) tool(ctx context.Context, name string, required bool) Check {
	c := Check{Name: name}
	res, err := d.runner.Run(ctx, runner.Command{Name: name, Args: []string{"--version"}})
	if err != nil {
		c.Status = StatusWarn
		if required {
			c.Status = StatusFail
		}
		if errors.Is(err, runner.ErrNotFound) {
			c.Detail = "not installed"
		} else {
			c.Detail = err.Error()
		}
		return c
	}
	c.Detail = firstLine(res.Stdout)
	return c
}

func (d *Doctor) interpreters() Check {
	c := Check{Name: "interpreter"}
	var found []string
	for _, interp := range d.cfg.Build.Interpreters {
		if _, err := d.runner.LookPath(interp); err == nil {
			found = append(found, interp)
		}
	}
	if len(found) == 0 {
		c.Status = StatusFail
		c.Detail = "none of " + strings.Join(d.cfg.Build.Interpreters, ", ")
		return c
	}
	c.Detail = strings.Join(found, ", ")
	return c
}

func (d *Doctor) buildScript() Check {
	c := Check{Name: "build script"}
	path := d.cfg.Path(d.cfg.Build.Script)
	c.Detail = path
	if _, err := os.Stat(path); err != nil {
		c.Status = StatusFail
		c.Detail = "missing: " + path
	}
	return c
}

func (d *Doctor) ndk() Check {
	c := Check{Name: "ndk"}
	tc, err := d.toolchain.Locate()
	if err != nil {
		c.Status = StatusFail
		c.Detail = err.Error()
		return c
	}
	c.Detail = fmt.Sprintf("%s (%s)", tc.Home, tc.Source)
	return c
}

func (d *Doctor) dependency() Check {
	c := Check{Name: d.cfg.Dependency.Name}
	if _, err := os.Stat(d.cfg.ArtifactPath()); err == nil {
		c.Detail = d.cfg.ArtifactPath()
		return c
	}
	c.Status = StatusWarn
	if _, err := os.Stat(d.cfg.SourceDir()); err == nil {
		c.Detail = "source only, will be compiled"
	} else {
		c.Detail = "not present, will be cloned from " + d.cfg.Dependency.RepoURL
	}
	return c
}

func (d *Doctor) diagnostic() Check {
	c := Check{Name: "error analysis"}
	if d.cfg.Diagnostic.APIKey == "" {
		c.Status = StatusWarn
		c.Detail = config.EnvAPIKey + " not set"
		return c
	}
	c.Detail = d.cfg.Diagnostic.Model
	return c
}

// Healthy reports whether no check failed.
func Healthy(checks []Check) bool {
	for _, c := range checks {
		if c.Status == StatusFail {
			return false
		}
	}
	return true
}

// Render prints checks as a table.
func Render(w io.Writer, checks []Check) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Check", "Status", "Detail"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)

	for _, c := range checks {
		table.Append([]string{c.Name, colorize(c.Status), c.Detail})
	}
	table.Render()
}

func colorize(s Status) string {
	switch s {
	case StatusOK:
		return color.GreenString(s.String())
	case StatusWarn:
		return color.YellowString(s.String())
	default:
		return color.RedString(s.String())
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

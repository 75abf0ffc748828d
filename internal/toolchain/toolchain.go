// Package toolchain finds an installed Android NDK.
//
// Discovery is a best-effort probe: the first configured environment variable
// that is set wins, then a fixed list of conventional install locations is
// checked. A hit is never validated beyond "the directory exists"; a broken NDK
// only shows up once cmake tries to use it.
package toolchain

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when no NDK could be located.
var ErrNotFound = errors.New("android NDK not found")

// Toolchain is a located NDK.
type Toolchain struct {
	// Home is the NDK root directory.
	Home string
	// Source names the environment variable or candidate pattern that matched.
	Source string
}

// CMakeToolchainFile is the NDK's cmake toolchain definition.
func (t Toolchain) CMakeToolchainFile() string {
	return filepath.Join(t.Home, "build", "cmake", "android.toolchain.cmake")
}

// Env renders the toolchain as environment entries for subprocesses.
func (t Toolchain) Env() []string {
	if t.Home == "" {
		return nil
	}
	return []string{"ANDROID_NDK_HOME=" + t.Home}
}

// Locator searches for the NDK. The lookup functions default to the os
// package and can be replaced to make discovery deterministic.
type Locator struct {
	EnvVars    []string
	Candidates []string

	Getenv  func(string) string
	HomeDir func() (string, error)
	Stat    func(string) (fs.FileInfo, error)
	Glob    func(string) ([]string, error)
}

// NewLocator creates a Locator that consults envVars first, then candidates.
// Candidates may start with "~/" and may contain glob patterns.
func NewLocator(envVars, candidates []string) *Locator {
	return &Locator{
		EnvVars:    envVars,
		Candidates: candidates,
		Getenv:     os.Getenv,
		HomeDir:    os.UserHomeDir,
		Stat:       os.Stat,
		Glob:       filepath.Glob,
	}
}

// Locate returns the first NDK installation found.
func (l *Locator) Locate() (Toolchain, error) {
	for _, name := range l.EnvVars {
		value := l.Getenv(name)
		if value == "" {
			continue
		}
		// Only the first non-empty variable is considered.
		if l.exists(value) {
			return Toolchain{Home: value, Source: name}, nil
		}
		break
	}

	for _, candidate := range l.Candidates {
		path, ok := l.expandHome(candidate)
		if !ok {
			continue
		}
		if strings.ContainsAny(path, "*?[") {
			if latest, ok := l.newestMatch(path); ok {
				return Toolchain{Home: latest, Source: candidate}, nil
			}
			continue
		}
		if l.exists(path) {
			return Toolchain{Home: path, Source: candidate}, nil
		}
	}

	return Toolchain{}, fmt.Errorf("%w (set %s)", ErrNotFound, strings.Join(l.EnvVars, " or "))
}

func (l *Locator) exists(path string) bool {
	_, err := l.Stat(path)
	return err == nil
}

func (l *Locator) expandHome(path string) (string, bool) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, true
	}
	home, err := l.HomeDir()
	if err != nil || home == "" {
		return "", false
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), true
}

// newestMatch expands pattern and picks the most recently modified match.
func (l *Locator) newestMatch(pattern string) (string, bool) {
	matches, err := l.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return "", false
	}

	var latest string
	var latestInfo fs.FileInfo
	for _, m := range matches {
		info, err := l.Stat(m)
		if err != nil {
			continue
		}
		if latestInfo == nil || info.ModTime().After(latestInfo.ModTime()) {
			latest, latestInfo = m, info
		}
	}
	return latest, latestInfo != nil
}

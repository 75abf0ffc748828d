// Package config assembles ndkfix settings from built-in defaults, an optional
// ndkfix.yaml file, a .env file and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is looked up in the project root when no --config is given.
const DefaultFileName = "ndkfix.yaml"

// Environment variables consumed by the diagnostic client.
const (
	EnvAPIKey = "SHENGSUAN_API_KEY"
	EnvAPIURL = "SHENGSUAN_API_URL"
	EnvModel  = "SHENGSUAN_MODEL"
)

// Config holds all configuration for a ndkfix run.
type Config struct {
	// Root is the project root every relative path is resolved against.
	Root string `yaml:"-"`

	Dependency Dependency `yaml:"dependency"`
	Target     Target     `yaml:"target"`
	Build      Build      `yaml:"build"`
	Toolchain  Toolchain  `yaml:"toolchain"`
	Diagnostic Diagnostic `yaml:"diagnostic"`
	Trigger    Trigger    `yaml:"trigger"`
}

// Dependency describes the third-party library the native build links against.
type Dependency struct {
	// Name is the substring build errors mention when the library is at fault.
	Name         string `yaml:"name"`
	RepoURL      string `yaml:"repo_url"`
	ArtifactName string `yaml:"artifact_name"`
	ArtifactPath string `yaml:"artifact_path"`
	SourceDir    string `yaml:"source_dir"`
}

// Target is the cross-compilation target of the dependency.
type Target struct {
	ABI      string `yaml:"abi"`
	Platform string `yaml:"platform"`
	LibDir   string `yaml:"lib_dir"`
}

// Build configures the top-level build script and the remedial loop.
type Build struct {
	Script         string   `yaml:"script"`
	Interpreters   []string `yaml:"interpreters"`
	MaxFixAttempts int      `yaml:"max_fix_attempts"`
}

// Toolchain configures NDK discovery.
type Toolchain struct {
	EnvVars    []string `yaml:"env_vars"`
	Candidates []string `yaml:"candidates"`
}

// Diagnostic configures the chat-completion endpoint used for error analysis.
type Diagnostic struct {
	// APIKey only ever comes from the environment.
	APIKey      string  `yaml:"-"`
	URL         string  `yaml:"url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
}

// Trigger configures the remote build tag.
type Trigger struct {
	Version string `yaml:"version"`
	Remote  string `yaml:"remote"`
}

// Default returns the built-in configuration rooted at root.
func Default(root string) *Config {
	if root == "" {
		root = "."
	}
	return &Config{
		Root: root,
		Dependency: Dependency{
			Name:         "dobby",
			RepoURL:      "https://github.com/jmpews/Dobby.git",
			ArtifactName: "libdobby.a",
			ArtifactPath: filepath.Join("jni", "external", "libdobby.a"),
			SourceDir:    filepath.Join("jni", "external", "Dobby"),
		},
		Target: Target{
			ABI:      "arm64-v8a",
			Platform: "android-21",
			LibDir:   filepath.Join("libs", "arm64-v8a"),
		},
		Build: Build{
			Script:         "build.sh",
			Interpreters:   []string{"bash", "powershell"},
			MaxFixAttempts: 3,
		},
		Toolchain: Toolchain{
			EnvVars: []string{"ANDROID_NDK_HOME", "NDK_HOME"},
			Candidates: []string{
				"~/Android/Sdk/ndk",
				"~/Library/Android/sdk/ndk",
				"C:/Android/Sdk/ndk",
				"C:/android-ndk-*",
			},
		},
		Diagnostic: Diagnostic{
			URL:         "https://api.shengsuan.cloud/v1/chat/completions",
			Model:       "deepseek/deepseek-v3.2",
			Temperature: 0.1,
		},
		Trigger: Trigger{
			Version: "1.0.1",
			Remote:  "origin",
		},
	}
}

// Load builds the configuration for the project at root. file may be empty,
// in which case root/ndkfix.yaml is used when present.
func Load(root, file string) (*Config, error) {
	cfg := Default(root)

	explicit := file != ""
	if !explicit {
		file = filepath.Join(cfg.Root, DefaultFileName)
	}
	if err := cfg.readFile(file, explicit); err != nil {
		return nil, err
	}

	envFile := filepath.Join(cfg.Root, ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Diagnostic.APIKey = os.Getenv(EnvAPIKey)
	c.Diagnostic.URL = getEnv(EnvAPIURL, c.Diagnostic.URL)
	c.Diagnostic.Model = getEnv(EnvModel, c.Diagnostic.Model)
	c.Build.MaxFixAttempts = getEnvInt("NDKFIX_MAX_ATTEMPTS", c.Build.MaxFixAttempts)
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	required := []struct{ key, value string }{
		{"dependency.artifact_name", c.Dependency.ArtifactName},
		{"dependency.artifact_path", c.Dependency.ArtifactPath},
		{"dependency.source_dir", c.Dependency.SourceDir},
		{"dependency.repo_url", c.Dependency.RepoURL},
		{"target.abi", c.Target.ABI},
		{"target.platform", c.Target.Platform},
		{"target.lib_dir", c.Target.LibDir},
		{"build.script", c.Build.Script},
		{"diagnostic.url", c.Diagnostic.URL},
		{"diagnostic.model", c.Diagnostic.Model},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s must not be empty", r.key)
		}
	}
	if len(c.Build.Interpreters) == 0 {
		return fmt.Errorf("build.interpreters must list at least one interpreter")
	}
	if c.Build.MaxFixAttempts <= 0 {
		return fmt.Errorf("build.max_fix_attempts must be greater than 0")
	}
	if c.Diagnostic.Temperature < 0 || c.Diagnostic.Temperature > 2 {
		return fmt.Errorf("diagnostic.temperature must be within [0, 2]")
	}
	return nil
}

// Path resolves a configured path against Root.
func (c *Config) Path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// ArtifactPath is the absolute-or-root-relative location of the prebuilt library.
func (c *Config) ArtifactPath() string { return c.Path(c.Dependency.ArtifactPath) }

// SourceDir is where the dependency checkout lives.
func (c *Config) SourceDir() string { return c.Path(c.Dependency.SourceDir) }

// LibDir is the per-architecture output directory.
func (c *Config) LibDir() string { return c.Path(c.Target.LibDir) }

// getEnv gets environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets environment variable as int with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// internal/config/config.go
//
// This package handles configuration and the .adforge directory structure.
// Every project that runs the pipeline gets a .adforge/ folder created in
// its root: config.yaml plus jobs/, logs/, and output/ subdirectories.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// AdforgeDir is the name of the directory created in each project root.
const AdforgeDir = ".adforge"

const defaultConfigYAML = `# adforge project configuration
version: 1

store:
  # file keeps one JSON snapshot per job under .adforge/jobs.
  # postgres stores snapshots as JSONB rows; set database_url.
  backend: file
  database_url: ""

approval:
  # How long a job waits at the approval gate before completing on its own.
  timeout: 72h

matching:
  images_per_variant: 3
  # Concurrency cap for the per-variant image matching fan-out.
  max_parallel: 4

api:
  # Local HTTP API for starting jobs and resolving approvals.
  enabled: false
  host: 127.0.0.1
  port: 8712

# Prometheus /metrics listen address. Empty disables the metrics server.
metrics_addr: ""

# AMQP broker URL for the best-effort campaign side-channel. Empty disables it.
amqp_url: ""
`

// Duration wraps time.Duration so config values read as "72h" or "500ms".
type Duration time.Duration

// UnmarshalYAML parses Go duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// StoreConfig selects a snapshot store backend.
type StoreConfig struct {
	Backend     string `yaml:"backend"`
	DatabaseURL string `yaml:"database_url,omitempty"`
}

// ApprovalConfig governs the approval gate.
type ApprovalConfig struct {
	Timeout Duration `yaml:"timeout"`
}

// MatchingConfig governs the image-matching fan-out.
type MatchingConfig struct {
	ImagesPerVariant int `yaml:"images_per_variant"`
	MaxParallel      int `yaml:"max_parallel"`
}

// APIConfig governs the local HTTP API server.
type APIConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Host    string `yaml:"host,omitempty"`
	Port    int    `yaml:"port,omitempty"`
}

// ProjectConfig models .adforge/config.yaml.
type ProjectConfig struct {
	Version     int            `yaml:"version"`
	Store       StoreConfig    `yaml:"store"`
	Approval    ApprovalConfig `yaml:"approval"`
	Matching    MatchingConfig `yaml:"matching"`
	API         APIConfig      `yaml:"api,omitempty"`
	MetricsAddr string         `yaml:"metrics_addr,omitempty"`
	AMQPURL     string         `yaml:"amqp_url,omitempty"`
}

// Config holds the runtime configuration for one project directory.
type Config struct {
	// ProjectDir is the directory the user ran `adforge` from.
	ProjectDir string

	// AdforgeProjectDir is ProjectDir/.adforge.
	AdforgeProjectDir string

	Project ProjectConfig
}

// InitAdforgeDir creates the .adforge directory structure and writes the
// default config.yaml if none exists.
func InitAdforgeDir(projectDir string) error {
	adforgeDir := filepath.Join(projectDir, AdforgeDir)
	dirs := []string{
		filepath.Join(adforgeDir, "jobs"),
		filepath.Join(adforgeDir, "logs"),
		filepath.Join(adforgeDir, "output"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return ensureProjectConfig(filepath.Join(adforgeDir, "config.yaml"))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: stat %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0o644); err != nil {
		return fmt.Errorf("config: write default config: %w", err)
	}
	return nil
}

// NewConfig loads the project configuration, applying defaults for any
// missing values.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:        projectDir,
		AdforgeProjectDir: filepath.Join(projectDir, AdforgeDir),
		Project:           defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version:  1,
		Store:    StoreConfig{Backend: "file"},
		Approval: ApprovalConfig{Timeout: Duration(72 * time.Hour)},
		Matching: MatchingConfig{ImagesPerVariant: 3, MaxParallel: 4},
	}
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	parsed := defaultProjectConfig()
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	c.Project = parsed
	return nil
}

func (p ProjectConfig) validate() error {
	switch p.Store.Backend {
	case "file":
	case "postgres":
		if p.Store.DatabaseURL == "" {
			return fmt.Errorf("store backend postgres requires database_url")
		}
	default:
		return fmt.Errorf("unknown store backend %q", p.Store.Backend)
	}
	if p.Approval.Timeout <= 0 {
		return fmt.Errorf("approval timeout must be positive")
	}
	if p.Matching.ImagesPerVariant < 1 {
		return fmt.Errorf("images_per_variant must be at least 1")
	}
	if p.Matching.MaxParallel < 1 {
		return fmt.Errorf("matching max_parallel must be at least 1")
	}
	return nil
}

// JobsDir returns the directory holding per-job snapshot files.
func (c *Config) JobsDir() string {
	return filepath.Join(c.AdforgeProjectDir, "jobs")
}

// LogsDir returns the log directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.AdforgeProjectDir, "logs")
}

// OutputDir returns the directory composed ad assets are written to.
func (c *Config) OutputDir() string {
	return filepath.Join(c.AdforgeProjectDir, "output")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.AdforgeProjectDir, "config.yaml")
}

// ApprovalTimeout returns the configured approval gate timeout.
func (c *Config) ApprovalTimeout() time.Duration {
	return time.Duration(c.Project.Approval.Timeout)
}

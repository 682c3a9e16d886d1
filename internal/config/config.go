// Package config provides configuration loading for quorum.
//
// Configuration comes from an optional YAML file inside the project
// (.quorum/config.yaml by default), overridden by QUORUM_* environment
// variables, with defaults applied last for anything left unset.
package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/fyrsmithlabs/quorum/internal/sanitize"
)

// Config holds the complete quorum configuration.
type Config struct {
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Consensus ConsensusConfig `koanf:"consensus"`
	Checks    ChecksConfig    `koanf:"checks"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Server    ServerConfig    `koanf:"server"`
	Events    EventsConfig    `koanf:"events"`
}

// PipelineConfig controls the phase state machine and its on-disk layout.
type PipelineConfig struct {
	StateDir          string   `koanf:"state_dir"`
	ConstitutionFile  string   `koanf:"constitution_file"`
	SkillsDir         string   `koanf:"skills_dir"`
	DeliverablesDir   string   `koanf:"deliverables_dir"`
	MaxRetries        int      `koanf:"max_retries"`
	SnapshotDepth     int      `koanf:"snapshot_depth"`
	RunTimeout        Duration `koanf:"run_timeout"`
	WatchConstitution bool     `koanf:"watch_constitution"`
}

// ConsensusConfig holds the default consensus rules and the reviewer rotation.
type ConsensusConfig struct {
	Threshold       float64          `koanf:"threshold"`
	Quorum          int              `koanf:"quorum"`
	MinReviewers    int              `koanf:"min_reviewers"`
	MaxIterations   int              `koanf:"max_iterations"`
	ReviewerTimeout Duration         `koanf:"reviewer_timeout"`
	Providers       []ProviderConfig `koanf:"providers"`
}

// ProviderConfig binds one reviewer slot to a provider, model and temperature.
type ProviderConfig struct {
	Name        string  `koanf:"name"`
	Model       string  `koanf:"model"`
	Temperature float64 `koanf:"temperature"`
	BaseURL     string  `koanf:"base_url"`
	APIKey      Secret  `koanf:"api_key"`
	// RateLimit is requests per second; zero means unlimited.
	RateLimit float64 `koanf:"rate_limit"`
}

// ChecksConfig holds command overrides and check runner tuning.
type ChecksConfig struct {
	Build     string `koanf:"build"`
	Test      string `koanf:"test"`
	Lint      string `koanf:"lint"`
	Typecheck string `koanf:"typecheck"`
	Migration string `koanf:"migration"`
	Start     string `koanf:"start"`

	Timeouts        map[string]Duration `koanf:"timeouts"`
	PlaceholderDirs []string            `koanf:"placeholder_dirs"`
	// Allowlist maps a file glob to placeholder patterns tolerated in it.
	Allowlist  map[string][]string `koanf:"allowlist"`
	EnvExample string              `koanf:"env_example"`
	EnvFile    string              `koanf:"env_file"`
	Secrets    bool                `koanf:"secrets"`
}

// LoggingConfig is the subset of logging settings exposed in the project file.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig is the subset of OpenTelemetry settings exposed in the project file.
type TelemetryConfig struct {
	Enabled    bool    `koanf:"enabled"`
	Endpoint   string  `koanf:"endpoint"`
	Protocol   string  `koanf:"protocol"`
	Insecure   bool    `koanf:"insecure"`
	SampleRate float64 `koanf:"sample_rate"`
}

// ServerConfig holds the status HTTP server settings.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// EventsConfig controls the NATS pipeline event publisher.
type EventsConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	p := &cfg.Pipeline
	if p.StateDir == "" {
		p.StateDir = ".quorum"
	}
	if p.ConstitutionFile == "" {
		p.ConstitutionFile = "CONSTITUTION.md"
	}
	if p.SkillsDir == "" {
		p.SkillsDir = ".quorum/skills"
	}
	if p.DeliverablesDir == "" {
		p.DeliverablesDir = ".quorum/deliverables"
	}
	if p.MaxRetries == 0 {
		p.MaxRetries = 3
	}
	if p.SnapshotDepth == 0 {
		p.SnapshotDepth = 6
	}
	if p.RunTimeout == 0 {
		p.RunTimeout = Duration(4 * time.Hour)
	}

	c := &cfg.Consensus
	if c.Threshold == 0 {
		c.Threshold = 0.7
	}
	if c.Quorum == 0 {
		c.Quorum = 2
	}
	if c.MinReviewers == 0 {
		c.MinReviewers = 2
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = 3
	}
	if c.ReviewerTimeout == 0 {
		c.ReviewerTimeout = Duration(3 * time.Minute)
	}

	if cfg.Checks.EnvExample == "" {
		cfg.Checks.EnvExample = ".env.example"
	}
	if cfg.Checks.EnvFile == "" {
		cfg.Checks.EnvFile = ".env"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9191
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Events.URL == "" {
		cfg.Events.URL = "nats://127.0.0.1:4222"
	}
	if cfg.Events.SubjectPrefix == "" {
		cfg.Events.SubjectPrefix = "quorum.pipeline"
	}
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if c.Consensus.Threshold < 0 || c.Consensus.Threshold > 1 {
		return fmt.Errorf("%w: consensus.threshold must be within [0,1], got %v", ErrInvalidConfig, c.Consensus.Threshold)
	}
	if c.Consensus.Quorum < 1 {
		return fmt.Errorf("%w: consensus.quorum must be at least 1", ErrInvalidConfig)
	}
	if c.Consensus.MinReviewers < 1 {
		return fmt.Errorf("%w: consensus.min_reviewers must be at least 1", ErrInvalidConfig)
	}
	if c.Consensus.MaxIterations < 1 {
		return fmt.Errorf("%w: consensus.max_iterations must be at least 1", ErrInvalidConfig)
	}
	for i, p := range c.Consensus.Providers {
		if p.Name == "" {
			return fmt.Errorf("%w: consensus.providers[%d].name is required", ErrInvalidConfig, i)
		}
		if p.Temperature < 0 || p.Temperature > 2 {
			return fmt.Errorf("%w: consensus.providers[%d].temperature out of range", ErrInvalidConfig, i)
		}
	}
	if c.Pipeline.MaxRetries < 1 {
		return fmt.Errorf("%w: pipeline.max_retries must be at least 1", ErrInvalidConfig)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port out of range: %d", ErrInvalidConfig, c.Server.Port)
	}
	if err := c.Checks.validatePaths(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: logging.format must be json or console", ErrInvalidConfig)
	}
	switch c.Telemetry.Protocol {
	case "grpc", "http/protobuf":
	default:
		return fmt.Errorf("%w: telemetry.protocol must be grpc or http/protobuf", ErrInvalidConfig)
	}
	return nil
}

// validatePaths rejects scan dirs and env files that would leave the
// project, and allowlist globs that are malformed.
func (c ChecksConfig) validatePaths() error {
	for _, d := range c.PlaceholderDirs {
		if err := sanitize.ValidateRelative(d); err != nil {
			return fmt.Errorf("checks.placeholder_dirs: %w", err)
		}
	}
	for field, p := range map[string]string{"checks.env_example": c.EnvExample, "checks.env_file": c.EnvFile} {
		if err := sanitize.ValidateRelative(p); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}
	if err := sanitize.ValidateGlobPatterns(slices.Sorted(maps.Keys(c.Allowlist))); err != nil {
		return fmt.Errorf("checks.allowlist: %w", err)
	}
	return nil
}

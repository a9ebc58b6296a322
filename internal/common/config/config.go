// Package config provides configuration management for the orchestrator.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for the orchestrator daemon.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Events   EventsConfig   `mapstructure:"events"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	Session  SessionConfig  `mapstructure:"session"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Analyzer AnalyzerConfig `mapstructure:"analyzer"`
	MCP      MCPConfig      `mapstructure:"mcp"`
	Database DatabaseConfig `mapstructure:"database"`
}

// ServerConfig holds HTTP server configuration for the External Command
// Surface (C7).
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// NATSConfig holds NATS messaging configuration, used to mirror the local
// Event Bus (C3) across processes. An empty URL keeps the bus in-memory.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClusterID     string `mapstructure:"clusterId"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// EventsConfig holds event bus namespace configuration.
type EventsConfig struct {
	// Namespace is loaded from configuration but no component reads it: NATS
	// subjects are not prefixed with it and the in-process bus ignores it.
	Namespace string `mapstructure:"namespace"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// WorkspaceConfig configures the Workspace Provisioner (C1).
type WorkspaceConfig struct {
	FetchTimeoutSeconds int    `mapstructure:"fetchTimeoutSeconds"`
	SetupScript         string `mapstructure:"setupScript"`
	CleanupScript       string `mapstructure:"cleanupScript"`
}

// SessionConfig configures the Session Supervisor (C2).
type SessionConfig struct {
	PollIntervalMs int    `mapstructure:"pollIntervalMs"`
	ProductPrefix  string `mapstructure:"productPrefix"`
	RuntimeTag     string `mapstructure:"runtimeTag"`
}

// CLIProfileConfig is one model tag's CLI invocation template: the leading
// command/args and environment variables a Mode Engine fills placeholders
// into per agent, mirroring analyzer.CLIClient's credential-via-env policy.
type CLIProfileConfig struct {
	Command []string `mapstructure:"command"`
	Env     []string `mapstructure:"env"`
}

// EngineConfig configures the Mode Engines (C5): one CLI profile per model
// tag, plus the CLI used to synthesize Ensemble's combined result.
type EngineConfig struct {
	ModelTags  map[string]CLIProfileConfig `mapstructure:"modelTags"`
	Integrator CLIProfileConfig            `mapstructure:"integrator"`
}

// AnalyzerConfig configures the Task Analyzer (C4).
type AnalyzerConfig struct {
	RequestTimeoutSeconds int              `mapstructure:"requestTimeoutSeconds"`
	CLI                   CLIProfileConfig `mapstructure:"cli"`
}

// MCPConfig configures the in-process MCP tool surface exposing the
// External Command Surface's verbs to MCP-capable agents.
type MCPConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// DatabaseConfig selects the Registry's optional durable run-index
// backend. An empty Driver disables the index entirely (the Registry
// falls back to an in-memory-only view of run state); "sqlite3" and
// "pgx" select the two supported backends.
type DatabaseConfig struct {
	Driver      string `mapstructure:"driver"`
	SQLitePath  string `mapstructure:"sqlitePath"`
	PostgresDSN string `mapstructure:"postgresDsn"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// PollInterval returns the session poll interval as a time.Duration.
func (s *SessionConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMs) * time.Millisecond
}

// FetchTimeout returns the workspace fetch timeout as a time.Duration.
func (w *WorkspaceConfig) FetchTimeout() time.Duration {
	return time.Duration(w.FetchTimeoutSeconds) * time.Second
}

// RequestTimeout returns the analyzer LLM request timeout as a time.Duration.
func (a *AnalyzerConfig) RequestTimeout() time.Duration {
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// detectDefaultLogFormat returns the appropriate log format based on environment.
// Returns "json" if running in Kubernetes or other production environments.
// Returns "text" for terminal/development use (human-readable console format).
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("ORC_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clusterId", "orchestrator-cluster")
	v.SetDefault("nats.clientId", "orchestrator-client")
	v.SetDefault("nats.maxReconnects", 10)

	// Events defaults
	v.SetDefault("events.namespace", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")

	// Workspace defaults
	v.SetDefault("workspace.fetchTimeoutSeconds", 30)
	v.SetDefault("workspace.setupScript", "")
	v.SetDefault("workspace.cleanupScript", "")

	// Session defaults
	v.SetDefault("session.pollIntervalMs", 1000)
	v.SetDefault("session.productPrefix", "orc")
	v.SetDefault("session.runtimeTag", "daemon")

	// Engine defaults - one CLI profile per model tag, all pointed at the
	// same non-interactive Claude CLI invocation by default; override per
	// tag to route "thorough" at a stronger model, etc.
	v.SetDefault("engine.modelTags.fast.command", []string{"claude", "-p", "--append-system-prompt", "{{system_prompt}}", "{{task}}"})
	v.SetDefault("engine.modelTags.balanced.command", []string{"claude", "-p", "--append-system-prompt", "{{system_prompt}}", "{{task}}"})
	v.SetDefault("engine.modelTags.thorough.command", []string{"claude", "-p", "--append-system-prompt", "{{system_prompt}}", "{{task}}"})
	v.SetDefault("engine.integrator.command", []string{"claude", "-p", "--output-format", "text"})

	// Analyzer defaults
	v.SetDefault("analyzer.requestTimeoutSeconds", 20)
	v.SetDefault("analyzer.cli.command", []string{"claude", "-p", "--output-format", "json"})

	// MCP tool surface defaults
	v.SetDefault("mcp.enabled", true)
	v.SetDefault("mcp.port", 9090)

	// Database defaults - empty driver means no durable run-index
	v.SetDefault("database.driver", "")
	v.SetDefault("database.sqlitePath", "./orchestrator.db")
	v.SetDefault("database.postgresDsn", "")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix ORC_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory or /etc/orchestrator/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults first
	setDefaults(v)

	// Configure environment variables
	v.SetEnvPrefix("ORC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("logging.level", "ORC_LOG_LEVEL")
	_ = v.BindEnv("events.namespace", "ORC_EVENTS_NAMESPACE")
	_ = v.BindEnv("nats.url", "ORC_NATS_URL")

	// Configure config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/orchestrator/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if cfg.Session.PollIntervalMs <= 0 {
		errs = append(errs, "session.pollIntervalMs must be positive")
	}
	if len(cfg.Engine.ModelTags) == 0 {
		errs = append(errs, "engine.modelTags must configure at least one model tag")
	}

	validDrivers := map[string]bool{"": true, "sqlite3": true, "pgx": true}
	if !validDrivers[cfg.Database.Driver] {
		errs = append(errs, "database.driver must be one of: (empty), sqlite3, pgx")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}

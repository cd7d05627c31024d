// Package config loads agentfleet configuration from defaults, an optional
// config.yaml and AGENTFLEET_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	MCP     MCPConfig     `mapstructure:"mcp"`
	Manager ManagerConfig `mapstructure:"manager"`
	Audit   AuditConfig   `mapstructure:"audit"`
	NATS    NATSConfig    `mapstructure:"nats"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// MCPConfig controls the MCP endpoints mounted next to the REST API.
type MCPConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// ManagerConfig bounds the agent manager.
type ManagerConfig struct {
	MaxAgents       int             `mapstructure:"maxAgents"`
	MaxPerTask      int             `mapstructure:"maxPerTask"`
	SessionsDir     string          `mapstructure:"sessionsDir"`
	StopGracePeriod time.Duration   `mapstructure:"stopGracePeriod"`
	AgentsFile      string          `mapstructure:"agentsFile"` // optional YAML flag table override
	Retention       RetentionConfig `mapstructure:"retention"`
}

// RetentionConfig bounds how many finished agent records are kept in memory.
type RetentionConfig struct {
	MaxRecords    int           `mapstructure:"maxRecords"`
	MaxAge        time.Duration `mapstructure:"maxAge"`
	SweepInterval time.Duration `mapstructure:"sweepInterval"`
}

// AuditConfig selects where agent runs are recorded.
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Driver  string `mapstructure:"driver"` // sqlite or postgres
	DSN     string `mapstructure:"dsn"`    // sqlite path or postgres URL; empty means <sessionsDir>/audit.db
}

// NATSConfig holds NATS messaging configuration.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
	SubjectPrefix string `mapstructure:"subjectPrefix"` // namespaces subjects on a shared server
}

// TracingConfig holds OpenTelemetry exporter settings.
type TracingConfig struct {
	OTLPEndpoint string `mapstructure:"otlpEndpoint"`
	ServiceName  string `mapstructure:"serviceName"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// Addr returns host:port for the HTTP listener.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("AGENTFLEET_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8787)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	v.SetDefault("mcp.enabled", true)
	v.SetDefault("mcp.port", 9797)

	v.SetDefault("manager.maxAgents", 10)
	v.SetDefault("manager.maxPerTask", 5)
	v.SetDefault("manager.sessionsDir", "~/.agentfleet/sessions")
	v.SetDefault("manager.stopGracePeriod", "5s")
	v.SetDefault("manager.agentsFile", "")
	v.SetDefault("manager.retention.maxRecords", 200)
	v.SetDefault("manager.retention.maxAge", "24h")
	v.SetDefault("manager.retention.sweepInterval", "1m")

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.driver", "sqlite")
	v.SetDefault("audit.dsn", "")

	// Empty URL means the in-memory event bus.
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "agentfleet")
	v.SetDefault("nats.maxReconnects", 10)
	v.SetDefault("nats.subjectPrefix", "agentfleet")

	v.SetDefault("tracing.otlpEndpoint", "")
	v.SetDefault("tracing.serviceName", "agentfleet")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stderr")
}

// Load reads configuration from the default locations.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration, searching configPath first when set.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AGENTFLEET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// camelCase keys do not map onto SNAKE_CASE env names automatically.
	_ = v.BindEnv("manager.maxAgents", "AGENTFLEET_MAX_AGENTS")
	_ = v.BindEnv("manager.maxPerTask", "AGENTFLEET_MAX_PER_TASK")
	_ = v.BindEnv("manager.sessionsDir", "AGENTFLEET_SESSIONS_DIR")
	_ = v.BindEnv("manager.agentsFile", "AGENTFLEET_AGENTS_FILE")
	_ = v.BindEnv("tracing.otlpEndpoint", "AGENTFLEET_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.agentfleet")
	v.AddConfigPath("/etc/agentfleet/")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Manager.SessionsDir = ExpandHome(cfg.Manager.SessionsDir)
	cfg.Manager.AgentsFile = ExpandHome(cfg.Manager.AgentsFile)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if cfg.MCP.Enabled && (cfg.MCP.Port <= 0 || cfg.MCP.Port > 65535) {
		errs = append(errs, "mcp.port must be between 1 and 65535")
	}
	if cfg.Manager.MaxAgents <= 0 {
		errs = append(errs, "manager.maxAgents must be positive")
	}
	if cfg.Manager.MaxPerTask <= 0 {
		errs = append(errs, "manager.maxPerTask must be positive")
	}
	if cfg.Manager.StopGracePeriod <= 0 {
		errs = append(errs, "manager.stopGracePeriod must be positive")
	}
	if cfg.Manager.SessionsDir == "" {
		errs = append(errs, "manager.sessionsDir is required")
	}
	if cfg.Manager.Retention.MaxRecords < 0 {
		errs = append(errs, "manager.retention.maxRecords must not be negative")
	}

	switch cfg.Audit.Driver {
	case "sqlite":
	case "postgres":
		if cfg.Audit.Enabled && cfg.Audit.DSN == "" {
			errs = append(errs, "audit.dsn is required for the postgres driver")
		}
	default:
		errs = append(errs, "audit.driver must be one of: sqlite, postgres")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

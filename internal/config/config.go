// Package config loads and validates per-node startup configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
}

// RateLimitConfig configures the optional per-node request rate limiter.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

// ReplicationConfig holds the cluster-wide replication factor.
type ReplicationConfig struct {
	Factor int `yaml:"factor"`
}

// GossipConfig configures the memberlist-backed peer registry.
type GossipConfig struct {
	BindAddr string   `yaml:"bind_addr"`
	BindPort int      `yaml:"bind_port"`
	NodeName string   `yaml:"node_name"`
	Seeds    []string `yaml:"seeds"`
}

// PeerClientConfig configures outbound peer RPCs.
type PeerClientConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
}

// MembershipConfig configures the membership watcher's tick interval.
type MembershipConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
}

// MetricsConfig configures the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

// Config is the complete per-node configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Replication ReplicationConfig `yaml:"replication"`
	Gossip      GossipConfig      `yaml:"gossip"`
	PeerClient  PeerClientConfig  `yaml:"peerClient"`
	Membership  MembershipConfig  `yaml:"membership"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`

	pendingWarnings []string
}

// LoadConfig reads and parses filePath, applies defaults, and validates
// the result.
func LoadConfig(filePath string) (*Config, error) {
	var cfg Config

	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.pendingWarnings = setDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Warnings returns the defaulting warnings produced while loading the
// configuration (e.g. an invalid replication.factor was reset to 2).
func (c *Config) Warnings() []string {
	return c.pendingWarnings
}

func setDefaults(cfg *Config) []string {
	var warnings []string

	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 15 * time.Second
	}

	if cfg.RateLimit.RequestsPerSecond == 0 {
		cfg.RateLimit.RequestsPerSecond = 100
	}
	if cfg.RateLimit.BurstSize == 0 {
		cfg.RateLimit.BurstSize = 200
	}

	// replication.factor must be >= 1; an invalid value defaults to 2
	// with a logged warning, per SPEC_FULL §6.
	if cfg.Replication.Factor < 1 {
		if cfg.Replication.Factor != 0 {
			warnings = append(warnings, fmt.Sprintf(
				"replication.factor=%d is invalid, defaulting to 2", cfg.Replication.Factor))
		}
		cfg.Replication.Factor = 2
	}

	if cfg.Gossip.BindAddr == "" {
		cfg.Gossip.BindAddr = cfg.Server.Host
	}
	if cfg.Gossip.BindPort == 0 {
		cfg.Gossip.BindPort = 7946
	}
	if cfg.Gossip.NodeName == "" {
		cfg.Gossip.NodeName = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	}

	if cfg.PeerClient.Timeout == 0 {
		cfg.PeerClient.Timeout = 5 * time.Second
	}
	if cfg.PeerClient.MaxIdleConns == 0 {
		cfg.PeerClient.MaxIdleConns = 64
	}

	if cfg.Membership.TickInterval == 0 {
		cfg.Membership.TickInterval = 10 * time.Second
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Encoding == "" {
		cfg.Logging.Encoding = "json"
	}

	return warnings
}

// Validate checks invariants that setDefaults cannot repair on its own.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Replication.Factor < 1 {
		return fmt.Errorf("replication.factor must be >= 1")
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the ServiceMap server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Topology  TopologyConfig
	Discovery DiscoveryConfig
}

type ServerConfig struct {
	Port               int
	Env                string
	RateLimitPerMinute int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type TopologyConfig struct {
	CacheTTL time.Duration
}

// DiscoveryConfig configures the external topology provider. Provider sync is
// disabled when BaseURL is empty.
type DiscoveryConfig struct {
	BaseURL  string
	Username string
	Password string
	OrgID    string
	Timeout  time.Duration
}

// Enabled reports whether a topology provider is configured.
func (d DiscoveryConfig) Enabled() bool {
	return d.BaseURL != ""
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:               envInt("SERVICEMAP_PORT", 8080),
			Env:                envString("SERVICEMAP_ENV", "development"),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Topology: TopologyConfig{
			CacheTTL: envDuration("TOPOLOGY_CACHE_TTL", 60*time.Second),
		},
		Discovery: DiscoveryConfig{
			BaseURL:  strings.TrimRight(os.Getenv("DISCOVERY_BASE_URL"), "/"),
			Username: os.Getenv("DISCOVERY_USERNAME"),
			Password: os.Getenv("DISCOVERY_PASSWORD"),
			OrgID:    os.Getenv("DISCOVERY_ORG_ID"),
			Timeout:  envDuration("DISCOVERY_TIMEOUT", 30*time.Second),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVICEMAP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Topology.CacheTTL < 0 {
		return fmt.Errorf("TOPOLOGY_CACHE_TTL must not be negative, got %s", c.Topology.CacheTTL)
	}

	if c.Discovery.Enabled() &&
		!strings.HasPrefix(c.Discovery.BaseURL, "http://") && !strings.HasPrefix(c.Discovery.BaseURL, "https://") {
		return fmt.Errorf("DISCOVERY_BASE_URL must start with http:// or https://, got %q", c.Discovery.BaseURL)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

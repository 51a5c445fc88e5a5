package config

import (
	"fmt"
	"net/netip"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// legacyEnv holds variable names older deployments still set.
type legacyEnv struct {
	DBURL       string `envconfig:"DB_URL"`
	MaxFileSize int64  `envconfig:"UPLOAD_MAX_FILE_SIZE"`
}

// Load reads configuration from environment variables, applies defaults
// for unset values, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}

	sections := []any{&cfg.Server, &cfg.Database, &cfg.Import, &cfg.Rate, &cfg.Security, &cfg.Logging}
	for _, section := range sections {
		if err := envconfig.Process("", section); err != nil {
			return nil, fmt.Errorf("config load: %w", err)
		}
	}

	var legacy legacyEnv
	if err := envconfig.Process("", &legacy); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	if cfg.Database.URL == "" {
		cfg.Database.URL = legacy.DBURL
	}
	if _, set := os.LookupEnv("IMPORT_MAX_FILE_SIZE"); !set && legacy.MaxFileSize > 0 {
		cfg.Import.MaxFileSize = legacy.MaxFileSize
	}

	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
// The returned error lists every problem found, not just the first.
func (c *Config) Validate() error {
	var problems []string
	problems = append(problems, c.Database.problems()...)
	problems = append(problems, c.Server.problems()...)
	problems = append(problems, c.Import.problems()...)
	problems = append(problems, c.Rate.problems()...)
	problems = append(problems, c.Security.problems()...)
	problems = append(problems, c.Logging.problems()...)

	if len(problems) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

func (c DatabaseConfig) problems() (p []string) {
	switch c.Driver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
		if c.URL == "" {
			p = append(p, fmt.Sprintf("DATABASE_URL is required for DB_DRIVER=%s", c.Driver))
		}
	case DriverMemory:
	default:
		p = append(p, fmt.Sprintf("DB_DRIVER (%q) must be one of: postgres, mysql, sqlite, memory", c.Driver))
	}
	if c.MaxConns <= 0 {
		p = append(p, "DB_MAX_CONNS must be positive")
	}
	if c.MinConns < 0 {
		p = append(p, "DB_MIN_CONNS must be non-negative")
	}
	if c.MaxConns < c.MinConns {
		p = append(p, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", c.MaxConns, c.MinConns))
	}
	return p
}

func (c ServerConfig) problems() (p []string) {
	if c.Port <= 0 || c.Port > 65535 {
		p = append(p, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Port))
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.IdleTimeout < 0 || c.RequestTimeout < 0 {
		p = append(p, "SERVER_*_TIMEOUT values must be non-negative")
	}
	if c.ShutdownTimeout <= 0 {
		p = append(p, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	return p
}

func (c ImportConfig) problems() (p []string) {
	positive := []struct {
		name string
		ok   bool
	}{
		{"IMPORT_MAX_FILE_SIZE", c.MaxFileSize > 0},
		{"IMPORT_MAX_CONCURRENT", c.MaxConcurrent > 0},
		{"IMPORT_BATCH_SIZE", c.BatchSize > 0},
		{"IMPORT_MAX_WAIT_TIME", c.MaxWaitTime > 0},
		{"IMPORT_TIMEOUT", c.Timeout > 0},
	}
	for _, v := range positive {
		if !v.ok {
			p = append(p, v.name+" must be positive")
		}
	}
	return p
}

func (c RateLimitConfig) problems() (p []string) {
	if c.Enabled && c.RequestsPerMinute <= 0 {
		p = append(p, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	return p
}

func (c SecurityConfig) problems() (p []string) {
	if c.RequireAPIKey && len(c.APIKeys) == 0 {
		p = append(p, "API_KEYS must be set when REQUIRE_API_KEY is true")
	}
	for _, cidr := range c.TrustedProxies {
		if _, err := netip.ParsePrefix(cidr); err != nil {
			if _, err := netip.ParseAddr(cidr); err != nil {
				p = append(p, fmt.Sprintf("TRUSTED_PROXIES entry %q is not an IP or CIDR", cidr))
			}
		}
	}
	return p
}

func (c LoggingConfig) problems() (p []string) {
	switch strings.ToLower(c.Level) {
	case "debug", "info", "warn", "error":
	default:
		p = append(p, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Level))
	}
	switch strings.ToLower(c.Format) {
	case "text", "json":
	default:
		p = append(p, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Format))
	}
	return p
}

// String returns a representation of the config that is safe to log.
// The database URL is masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Database: {Driver: %q, URL: [MASKED], MaxConns: %d, MinConns: %d}, ",
		c.Database.Driver, c.Database.MaxConns, c.Database.MinConns)
	fmt.Fprintf(&b, "Import: {MaxFileSize: %d, MaxConcurrent: %d, BatchSize: %d, Timeout: %s, UseCopy: %v}, ",
		c.Import.MaxFileSize, c.Import.MaxConcurrent, c.Import.BatchSize, c.Import.Timeout, c.Import.UseCopy)
	fmt.Fprintf(&b, "Rate: {Enabled: %v, RequestsPerMinute: %d}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute)
	fmt.Fprintf(&b, "Security: {TrustedProxies: %v, RequireAPIKey: %v, APIKeys: %d configured}, ",
		c.Security.TrustedProxies, c.Security.RequireAPIKey, len(c.Security.APIKeys))
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}

// Package config provides runtime configuration for all Rudder services.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProxyDir = "proxy"
	TmpDir   = "tmp"
)

// EnvProvider abstracts environment variable access for testing
type EnvProvider interface {
	Getenv(key string) string
	UserHomeDir() (string, error)
}

// DefaultEnvProvider implements EnvProvider using real OS functions
type DefaultEnvProvider struct{}

func (p *DefaultEnvProvider) Getenv(key string) string {
	return os.Getenv(key)
}

func (p *DefaultEnvProvider) UserHomeDir() (string, error) {
	return os.UserHomeDir()
}

// GetDefaultDataDir returns the default Rudder data directory following XDG Base Directory specification
func GetDefaultDataDir() string {
	return getDefaultDataDirWithEnv(&DefaultEnvProvider{})
}

// getDefaultDataDirWithEnv allows dependency injection for testing
func getDefaultDataDirWithEnv(env EnvProvider) string {
	// Use XDG_DATA_HOME if set, otherwise fallback to ~/.local/share
	xdgDataHome := env.Getenv("XDG_DATA_HOME")
	if xdgDataHome != "" {
		return filepath.Join(xdgDataHome, "rudder")
	}

	homeDir, _ := env.UserHomeDir()
	return filepath.Join(homeDir, ".local", "share", "rudder")
}

// Config holds configuration for all services
type Config struct {
	// Core paths
	DataDir        string
	DatabasePath   string
	TmpDir         string
	ProxyRoutesDir string

	// Logging
	LogLevel     string
	ColorEnabled bool

	// Executor
	DockerCommand  string
	SSHCommand     string
	CommandTimeout time.Duration
	Hosts          map[string]string // host name -> ssh destination; empty means local-only

	// HTTP server
	HTTPHost string
	HTTPPort int

	// Health waits
	HealthInterval time.Duration
	HealthTimeout  time.Duration

	// Watcher
	PollInterval time.Duration

	// Protection
	TicketTTL            time.Duration
	CooldownHigh         time.Duration
	CooldownCritical     time.Duration
	BackupMaxAge         time.Duration
	EmergencyMaxDuration time.Duration
	UserTokenKey         string
	AdminTokenKey        string

	// Reverse proxy
	ProxyContainer string

	// Default service images
	DBImage    string
	CacheImage string

	// Environment provider for testing
	env EnvProvider
}

// NewConfigForCLI creates a new configuration for CLI usage with optional data directory override
func NewConfigForCLI(cliDataDir string) (*Config, error) {
	return newConfigWithEnv(&DefaultEnvProvider{}, cliDataDir)
}

// NewConfigForCLIWithEnv creates a new configuration with custom environment provider (for testing)
func NewConfigForCLIWithEnv(env EnvProvider, cliDataDir string) (*Config, error) {
	return newConfigWithEnv(env, cliDataDir)
}

// NewConfigForServer creates a new configuration for server usage.
// This version only uses environment variables and defaults, no CLI overrides.
func NewConfigForServer() (*Config, error) {
	return newConfigWithEnv(&DefaultEnvProvider{}, "")
}

func newConfigWithEnv(env EnvProvider, cliDataDir string) (*Config, error) {
	c := &Config{env: env}

	// Set defaults first
	c.setDefaults()

	// Override with environment variables
	c.loadFromEnv()

	// Override with CLI flags (if provided)
	if cliDataDir != "" {
		c.DataDir = cliDataDir
	}

	// Derive dependent paths
	c.derivePaths()

	// Try to read token keys from .env file as fallback (after data dir is finalized)
	c.readKeysFromEnvFile()

	// Validate
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return c, nil
}

// setDefaults sets sensible default values
func (c *Config) setDefaults() {
	c.DataDir = getDefaultDataDirWithEnv(c.env)
	c.LogLevel = "info"
	c.ColorEnabled = true
	c.DockerCommand = "docker"
	c.SSHCommand = "ssh"
	c.CommandTimeout = 2 * time.Minute
	c.Hosts = map[string]string{}
	c.HTTPHost = "127.0.0.1"
	c.HTTPPort = 8080
	c.HealthInterval = 2 * time.Second
	c.HealthTimeout = 60 * time.Second
	c.PollInterval = 5 * time.Minute
	c.TicketTTL = 10 * time.Minute
	c.CooldownHigh = 6 * time.Hour
	c.CooldownCritical = 24 * time.Hour
	c.BackupMaxAge = 24 * time.Hour
	c.EmergencyMaxDuration = 1 * time.Hour
	c.ProxyContainer = "rudder-proxy"
	c.DBImage = "postgres:16-alpine"
	c.CacheImage = "redis:7-alpine"
	// Token keys have no default - they must be provided explicitly
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	if v := c.env.Getenv("RUDDER_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := c.env.Getenv("RUDDER_DATABASE_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := c.env.Getenv("RUDDER_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := c.env.Getenv("RUDDER_COLOR_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.ColorEnabled = enabled
		}
	}
	if v := c.env.Getenv("RUDDER_DOCKER_COMMAND"); v != "" {
		c.DockerCommand = v
	}
	if v := c.env.Getenv("RUDDER_SSH_COMMAND"); v != "" {
		c.SSHCommand = v
	}
	if v := c.env.Getenv("RUDDER_COMMAND_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.CommandTimeout = d
		}
	}
	if v := c.env.Getenv("RUDDER_HOSTS"); v != "" {
		c.Hosts = parseHosts(v)
	}
	if v := c.env.Getenv("RUDDER_HTTP_HOST"); v != "" {
		c.HTTPHost = v
	}
	if v := c.env.Getenv("RUDDER_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HTTPPort = port
		}
	}
	if v := c.env.Getenv("RUDDER_HEALTH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HealthInterval = d
		}
	}
	if v := c.env.Getenv("RUDDER_HEALTH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HealthTimeout = d
		}
	}
	if v := c.env.Getenv("RUDDER_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.PollInterval = d
		}
	}
	if v := c.env.Getenv("RUDDER_TICKET_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.TicketTTL = d
		}
	}
	if v := c.env.Getenv("RUDDER_COOLDOWN_HIGH"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.CooldownHigh = d
		}
	}
	if v := c.env.Getenv("RUDDER_COOLDOWN_CRITICAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.CooldownCritical = d
		}
	}
	if v := c.env.Getenv("RUDDER_BACKUP_MAX_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.BackupMaxAge = d
		}
	}
	if v := c.env.Getenv("RUDDER_EMERGENCY_MAX_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.EmergencyMaxDuration = d
		}
	}
	if v := c.env.Getenv("RUDDER_USER_KEY"); v != "" {
		c.UserTokenKey = v
	}
	if v := c.env.Getenv("RUDDER_ADMIN_KEY"); v != "" {
		c.AdminTokenKey = v
	}
	if v := c.env.Getenv("RUDDER_PROXY_CONTAINER"); v != "" {
		c.ProxyContainer = v
	}
	if v := c.env.Getenv("RUDDER_PROXY_ROUTES_DIR"); v != "" {
		c.ProxyRoutesDir = v
	}
	if v := c.env.Getenv("RUDDER_DB_IMAGE"); v != "" {
		c.DBImage = v
	}
	if v := c.env.Getenv("RUDDER_CACHE_IMAGE"); v != "" {
		c.CacheImage = v
	}
}

// parseHosts parses "name=ssh-destination" pairs separated by commas,
// e.g. "web1=deploy@10.0.0.5,db1=deploy@10.0.0.6"
func parseHosts(v string) map[string]string {
	hosts := map[string]string{}
	for _, pair := range strings.Split(v, ",") {
		name, dest, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		dest = strings.TrimSpace(dest)
		if name != "" && dest != "" {
			hosts[name] = dest
		}
	}
	return hosts
}

// readKeysFromEnvFile attempts to read token keys from .env file in the data directory
func (c *Config) readKeysFromEnvFile() {
	if c.UserTokenKey != "" && c.AdminTokenKey != "" {
		return
	}

	envFile := filepath.Join(c.DataDir, ".env")
	envVars, err := godotenv.Read(envFile)
	if err != nil {
		// .env file doesn't exist or can't be read, that's okay
		return
	}

	if c.UserTokenKey == "" {
		c.UserTokenKey = envVars["RUDDER_USER_KEY"]
	}
	if c.AdminTokenKey == "" {
		c.AdminTokenKey = envVars["RUDDER_ADMIN_KEY"]
	}
}

// derivePaths calculates dependent paths from the base DataDir
func (c *Config) derivePaths() {
	c.TmpDir = filepath.Join(c.DataDir, TmpDir)

	// Set default database path if not explicitly configured
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(c.DataDir, "rudder.db")
	}
	if c.ProxyRoutesDir == "" {
		c.ProxyRoutesDir = filepath.Join(c.DataDir, ProxyDir)
	}
}

// validate ensures configuration values are valid
func (c *Config) validate() error {
	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warning": true, "error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warning, or error)", c.LogLevel)
	}

	// Validate HTTP port
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d (must be 1-65535)", c.HTTPPort)
	}

	// Validate durations
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("command timeout must be positive, got: %v", c.CommandTimeout)
	}
	if c.HealthInterval <= 0 {
		return fmt.Errorf("health interval must be positive, got: %v", c.HealthInterval)
	}
	if c.HealthTimeout <= c.HealthInterval {
		return fmt.Errorf("health timeout must be longer than the health interval, got: %v <= %v", c.HealthTimeout, c.HealthInterval)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got: %v", c.PollInterval)
	}
	if c.TicketTTL <= 0 {
		return fmt.Errorf("ticket TTL must be positive, got: %v", c.TicketTTL)
	}
	if c.EmergencyMaxDuration <= 0 {
		return fmt.Errorf("emergency max duration must be positive, got: %v", c.EmergencyMaxDuration)
	}

	// Validate Docker command is not empty
	if c.DockerCommand == "" {
		return fmt.Errorf("docker command cannot be empty")
	}

	// Require token keys via environment variables or .env file
	if c.UserTokenKey == "" {
		return fmt.Errorf(
			"user token key is required - set RUDDER_USER_KEY environment variable or ensure .env file exists in data directory (%s); generate one with 'rudder keygen'",
			c.DataDir,
		)
	}
	if c.AdminTokenKey == "" {
		return fmt.Errorf(
			"admin token key is required - set RUDDER_ADMIN_KEY environment variable or ensure .env file exists in data directory (%s); generate one with 'rudder keygen'",
			c.DataDir,
		)
	}
	if c.UserTokenKey == c.AdminTokenKey {
		return fmt.Errorf("user and admin token keys must differ so admin approval stays a distinct credential")
	}

	return nil
}

// GetLogLevel returns the configured log level
func (c *Config) GetLogLevel() string {
	return c.LogLevel
}

// PublicURL returns the public URL for a bound domain
func PublicURL(domain string) string {
	return "https://" + domain
}

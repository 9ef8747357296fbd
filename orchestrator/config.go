package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gosimple/slug"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rudder-cd/rudder/domain"
)

// DeployConfig describes one deployment: the project, the target
// environment, the application image and the optional database and cache
// services. It is usually read from a rudder.yaml next to the project.
type DeployConfig struct {
	Project     string                  `yaml:"project"`
	Environment domain.EnvironmentClass `yaml:"environment"`
	Image       string                  `yaml:"image"`

	// Host names the engine host the deployment runs on. Empty means the
	// local engine; other values resolve through the executor's host map.
	Host string `yaml:"host,omitempty"`

	// SharedNetwork opts out of per-project network isolation
	SharedNetwork bool `yaml:"shared_network,omitempty"`

	// AppPort is the port the application listens on inside its container
	AppPort int `yaml:"app_port,omitempty"`

	// HealthCmd declares the application container's health probe. Without
	// one, the app counts as ready once it is running.
	HealthCmd string `yaml:"health_cmd,omitempty"`

	Database *DatabaseService `yaml:"database,omitempty"`
	Cache    *CacheService    `yaml:"cache,omitempty"`
	Registry *RegistryAuth    `yaml:"registry,omitempty"`

	// Env is injected into the application container. EnvFile, resolved
	// relative to the config file, is merged first; inline entries win.
	Env     map[string]string `yaml:"env,omitempty"`
	EnvFile string            `yaml:"env_file,omitempty"`
}

// DatabaseService requests a PostgreSQL container backed by the project's
// named volume
type DatabaseService struct {
	Image string `yaml:"image,omitempty"`
	Name  string `yaml:"name,omitempty"`
	User  string `yaml:"user,omitempty"`
	// Password is taken from PasswordEnv when set, so the secret can stay
	// out of the file
	Password    string `yaml:"password,omitempty"`
	PasswordEnv string `yaml:"password_env,omitempty"`
}

// CacheService requests a Redis container
type CacheService struct {
	Image string `yaml:"image,omitempty"`
}

// RegistryAuth authenticates the engine against a private image registry
type RegistryAuth struct {
	Server      string `yaml:"server"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password,omitempty"`
	PasswordEnv string `yaml:"password_env,omitempty"`
}

const defaultAppPort = 3000

// LoadDeployConfig reads and validates a deploy config file
func LoadDeployConfig(path string) (*DeployConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read deploy config %s: %w", path, err)
	}

	var cfg DeployConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse deploy config %s: %w", path, err)
	}

	if cfg.EnvFile != "" && !filepath.IsAbs(cfg.EnvFile) {
		cfg.EnvFile = filepath.Join(filepath.Dir(path), cfg.EnvFile)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the config and fills defaults. The image reference is
// rejected here, before anything touches a container.
func (c *DeployConfig) Validate() error {
	c.Project = strings.TrimSpace(c.Project)
	if c.Project == "" {
		return domain.NewValidationError("deploy config needs a project name")
	}
	if !c.Environment.IsValid() {
		return domain.NewValidationError("invalid environment: %q", string(c.Environment))
	}

	normalized, err := validateImageRef(c.Image)
	if err != nil {
		return err
	}
	c.Image = normalized

	if c.AppPort == 0 {
		c.AppPort = defaultAppPort
	}
	if c.AppPort < 1 || c.AppPort > 65535 {
		return domain.NewValidationError("invalid app port: %d", c.AppPort)
	}

	if c.Database != nil {
		if _, err := c.Database.resolvePassword(); err != nil {
			return err
		}
	}
	if c.Registry != nil {
		if strings.TrimSpace(c.Registry.Server) == "" || strings.TrimSpace(c.Registry.Username) == "" {
			return domain.NewValidationError("registry auth needs both a server and a username")
		}
		if _, err := c.Registry.resolvePassword(); err != nil {
			return err
		}
	}
	return nil
}

// networkName returns the network this deployment attaches to
func (c *DeployConfig) networkName(projectName string) string {
	if c.SharedNetwork {
		return domain.SharedNetworkName
	}
	return domain.NetworkName(projectName, c.Environment)
}

// requestedServices lists the services this config asks for, in stage order
func (c *DeployConfig) requestedServices() []domain.ServiceName {
	var names []domain.ServiceName
	if c.Database != nil {
		names = append(names, domain.ServiceDB)
	}
	if c.Cache != nil {
		names = append(names, domain.ServiceCache)
	}
	return append(names, domain.ServiceApp)
}

// runtimeEnv merges the optional env file with inline variables; inline
// entries win
func (c *DeployConfig) runtimeEnv() (map[string]string, error) {
	merged := make(map[string]string)
	if c.EnvFile != "" {
		fromFile, err := godotenv.Read(c.EnvFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read env file %s: %w", c.EnvFile, err)
		}
		for k, v := range fromFile {
			merged[k] = v
		}
	}
	for k, v := range c.Env {
		merged[k] = v
	}
	return merged, nil
}

func (d *DatabaseService) imageOr(fallback string) string {
	if d.Image != "" {
		return d.Image
	}
	return fallback
}

// databaseName defaults to the project slug with hyphens flattened, which
// postgres accepts unquoted
func (d *DatabaseService) databaseName(projectName string) string {
	if d.Name != "" {
		return d.Name
	}
	return strings.ReplaceAll(slug.Make(projectName), "-", "_")
}

func (d *DatabaseService) username(projectName string) string {
	if d.User != "" {
		return d.User
	}
	return strings.ReplaceAll(slug.Make(projectName), "-", "_")
}

func (d *DatabaseService) resolvePassword() (string, error) {
	if d.PasswordEnv != "" {
		password := os.Getenv(d.PasswordEnv)
		if password == "" {
			return "", domain.NewValidationError("database password variable %s is not set", d.PasswordEnv)
		}
		return password, nil
	}
	if d.Password == "" {
		return "", domain.NewValidationError("database service needs a password or password_env")
	}
	return d.Password, nil
}

func (c *CacheService) imageOr(fallback string) string {
	if c.Image != "" {
		return c.Image
	}
	return fallback
}

func (r *RegistryAuth) resolvePassword() (string, error) {
	if r.PasswordEnv != "" {
		password := os.Getenv(r.PasswordEnv)
		if password == "" {
			return "", domain.NewValidationError("registry password variable %s is not set", r.PasswordEnv)
		}
		return password, nil
	}
	if r.Password == "" {
		return "", domain.NewValidationError("registry auth needs a password or password_env")
	}
	return r.Password, nil
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models labelline.yml.
type Config struct {
	Project struct {
		ID string `yaml:"id"`
	} `yaml:"project"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Leases struct {
		// StaleAfterMinutes is how long a claim may sit untouched before the
		// reaper reclaims it.
		StaleAfterMinutes int `yaml:"stale_after_minutes"`
		SweepEverySeconds int `yaml:"sweep_every_seconds"`
		MaxClaimsPerUser  int `yaml:"max_claims_per_user"`
	} `yaml:"leases"`
	Auth struct {
		// JWTSecret signs dev-login tokens; production deployments point the
		// verifier at the identity provider's shared secret instead.
		JWTSecret     string `yaml:"jwt_secret"`
		TokenTTLHours int    `yaml:"token_ttl_hours"`
	} `yaml:"auth"`
}

const (
	defaultAddr              = ":8090"
	defaultBasePath          = "/api/v1"
	defaultStaleAfterMinutes = 30
	defaultSweepEverySeconds = 60
	defaultTokenTTLHours     = 12
)

// Default returns the default Config struct for a project.
func Default(projectID string) *Config {
	var cfg Config
	cfg.Project.ID = projectID
	cfg.Server.Addr = defaultAddr
	cfg.Server.BasePath = defaultBasePath
	cfg.Leases.StaleAfterMinutes = defaultStaleAfterMinutes
	cfg.Leases.SweepEverySeconds = defaultSweepEverySeconds
	cfg.Auth.TokenTTLHours = defaultTokenTTLHours
	return &cfg
}

// Validate ensures the config meets required structure and fills defaults.
func (c *Config) Validate() error {
	if c.Project.ID == "" {
		return fmt.Errorf("config.project.id is required")
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaultAddr
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = defaultBasePath
	}
	if c.Leases.StaleAfterMinutes < 0 {
		return fmt.Errorf("config.leases.stale_after_minutes must not be negative")
	}
	if c.Leases.StaleAfterMinutes == 0 {
		c.Leases.StaleAfterMinutes = defaultStaleAfterMinutes
	}
	if c.Leases.SweepEverySeconds < 0 {
		return fmt.Errorf("config.leases.sweep_every_seconds must not be negative")
	}
	if c.Leases.SweepEverySeconds == 0 {
		c.Leases.SweepEverySeconds = defaultSweepEverySeconds
	}
	if c.Leases.MaxClaimsPerUser < 0 {
		return fmt.Errorf("config.leases.max_claims_per_user must not be negative")
	}
	if c.Auth.TokenTTLHours <= 0 {
		c.Auth.TokenTTLHours = defaultTokenTTLHours
	}
	return nil
}

// StaleAfter returns the stale-claim cutoff as a duration.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.Leases.StaleAfterMinutes) * time.Minute
}

// SweepEvery returns the reaper tick interval.
func (c *Config) SweepEvery() time.Duration {
	return time.Duration(c.Leases.SweepEverySeconds) * time.Second
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "labelline.yml")
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GenerateDefault returns default config YAML.
func GenerateDefault(projectID string) string {
	return fmt.Sprintf(defaultTemplate, projectID)
}

const defaultTemplate = `project:
  id: %s

server:
  addr: ":8090"
  base_path: /api/v1

leases:
  stale_after_minutes: 30
  sweep_every_seconds: 60
  max_claims_per_user: 0

auth:
  jwt_secret: ""
  token_ttl_hours: 12
`

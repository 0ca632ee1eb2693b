// Package config loads Scout's YAML configuration.
//
// Every field has a default, so a missing config file is not an error.
// Environment variables override the file for secrets.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Benny93/scout-go/internal/scheduler"
)

// Environment variables checked for the GitHub key, in order.
const (
	EnvGitHubKey       = "SCOUT_GITHUB_KEY"
	EnvGitHubKeyLegacy = "GITHUB_KEY"
)

// Config is the full configuration.
type Config struct {
	// Concurrency is the default fan-out per transform run; 0 lets each
	// transform choose.
	Concurrency int `yaml:"concurrency" validate:"gte=0,lte=4096"`

	// Workspace is the directory of the persisted snapshot store.
	Workspace string `yaml:"workspace"`

	HTTP   scheduler.Config `yaml:"http"`
	GitHub GitHubConfig     `yaml:"github"`
	Git    scheduler.Config `yaml:"git"`
}

// GitHubConfig configures the GitHub transforms and their scheduler.
type GitHubConfig struct {
	Scheduler scheduler.Config `yaml:"scheduler"`
	BaseURL   string           `yaml:"base_url" validate:"omitempty,url"`
	Key       string           `yaml:"key"`
}

// Default returns the built-in configuration.
func Default() *Config {
	retry := scheduler.DefaultRetryPolicy()
	return &Config{
		Workspace: ".scout",
		HTTP: scheduler.Config{
			MaxConcurrent: 256,
			Timeout:       30 * time.Second,
			Retry:         retry,
		},
		GitHub: GitHubConfig{
			Scheduler: scheduler.Config{
				MaxConcurrent: 1,
				Timeout:       30 * time.Second,
				Retry:         retry,
			},
			BaseURL: "https://api.github.com",
		},
		Git: scheduler.Config{
			MaxConcurrent: 4,
			Timeout:       2 * time.Minute,
			Retry:         retry,
		},
	}
}

// DefaultPath returns $HOME/.scout/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".scout", "config.yaml")
	}
	return filepath.Join(home, ".scout", "config.yaml")
}

// Load reads the file at path over the defaults and applies environment
// overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Marshal encodes the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return data, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	for _, name := range []string{EnvGitHubKey, EnvGitHubKeyLegacy} {
		if v := getenv(name); v != "" {
			c.GitHub.Key = v
			return
		}
	}
}

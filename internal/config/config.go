// Package config loads the server configuration from an optional YAML file
// with SALESWATCH_* environment overrides on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr string `yaml:"listen_addr"` // TCP protocol listener
	HTTPAddr   string `yaml:"http_addr"`   // admin/API listener, empty disables
	DataDir    string `yaml:"data_dir"`

	MaxDays    int `yaml:"max_days"`    // completed days kept on disk
	MemoryDays int `yaml:"memory_days"` // completed days kept in memory, also the cache bound
	Workers    int `yaml:"workers"`

	JWTSecret string `yaml:"jwt_secret"` // guards the admin HTTP endpoints
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr: ":12345",
		HTTPAddr:   ":8080",
		DataDir:    "data",
		MaxDays:    30,
		MemoryDays: 7,
		Workers:    8,
	}
}

// Load reads the YAML file at path (a missing file just means defaults),
// applies environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SALESWATCH_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("SALESWATCH_HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
	if v := os.Getenv("SALESWATCH_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("SALESWATCH_JWT_SECRET"); v != "" {
		c.JWTSecret = v
	}
	for name, dst := range map[string]*int{
		"SALESWATCH_MAX_DAYS":    &c.MaxDays,
		"SALESWATCH_MEMORY_DAYS": &c.MemoryDays,
		"SALESWATCH_WORKERS":     &c.Workers,
	} {
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
}

func (c *Config) validate() error {
	if c.MaxDays < 1 {
		return fmt.Errorf("config: max_days must be >= 1, got %d", c.MaxDays)
	}
	if c.MemoryDays < 1 || c.MemoryDays > c.MaxDays {
		return fmt.Errorf("config: memory_days must be between 1 and max_days, got %d", c.MemoryDays)
	}
	if c.Workers < 1 {
		return fmt.Errorf("config: workers must be >= 1, got %d", c.Workers)
	}
	return nil
}

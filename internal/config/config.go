// Package config loads the server settings from an optional YAML file and
// supplies the built-in defaults when no file is present.
package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v2"
)

// Config holds the tunable server settings.
type Config struct {
	Port       int  `yaml:"port"`
	MaxClients int  `yaml:"max_clients"`
	Verbose    bool `yaml:"verbose"`
}

// Default returns the settings used when no configuration file is given.
func Default() Config {
	return Config{
		Port:       8080,
		MaxClients: 50,
		Verbose:    false,
	}
}

// Load reads path and overlays its values on the defaults, so a partial file
// only overrides the keys it names. An empty path or a file that does not
// exist yields the defaults; an unreadable or invalid file is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	if c.MaxClients < 1 {
		return fmt.Errorf("max clients must be at least 1, got %d", c.MaxClients)
	}
	return nil
}

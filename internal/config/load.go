package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "MUTE_"

// Load builds a configuration from the defaults, an optional YAML file and the
// process environment, in that order of precedence. An empty path skips the file.
// The result is not validated; callers validate after applying flags.
//
// A layer that switches the medium without naming a density resets the
// density to the new medium's reference value.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	before := cfg.Medium
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	var given struct {
		Density *float64 `yaml:"density"`
	}
	if err := yaml.Unmarshal(data, &given); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	rederiveDensity(cfg, before, given.Density != nil)
	return nil
}

// ParseEnv overlays MUTE_* environment variables onto cfg.
func ParseEnv(cfg *Config) error {
	before := cfg.Medium
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	_, given := os.LookupEnv(EnvPrefix + "DENSITY")
	rederiveDensity(cfg, before, given)
	return nil
}

func rederiveDensity(cfg *Config, before Medium, densityGiven bool) {
	if cfg.Medium != before && !densityGiven {
		cfg.Density = DefaultDensity(cfg.Medium)
	}
}

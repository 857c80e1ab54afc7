package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/snow-ghost/autotune/pkg/logging"
	"github.com/snow-ghost/autotune/pkg/tracing"
	"gopkg.in/yaml.v3"
)

// Config is the full configuration of a tuning run
type Config struct {
	Search    SearchConfig    `yaml:"search"`
	Tuner     TunerConfig     `yaml:"tuner"`
	CostModel CostModelConfig `yaml:"cost_model"`
	Logging   logging.Config  `yaml:"logging"`
	Tracing   tracing.Config  `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Records   RecordsConfig   `yaml:"records"`
}

// SearchConfig selects what is tuned and how deep sketches go
type SearchConfig struct {
	Workload string `yaml:"workload" validate:"required"`
	// Path of a YAML workload file; takes precedence over Workload.
	WorkloadFile string `yaml:"workload_file"`
	Target       string `yaml:"target" validate:"required,oneof=cpu host x86 arm gpu nvgpu cuda"`
	Depth        int    `yaml:"depth" validate:"gte=0,lte=64"`
}

// TunerConfig drives the evolutionary search
type TunerConfig struct {
	Population  int    `yaml:"population" validate:"min=1"`
	Generations int    `yaml:"generations" validate:"gte=0"`
	TopK        int    `yaml:"top_k" validate:"min=1,ltefield=Population"`
	Workers     int    `yaml:"workers" validate:"min=1"`
	Seed        uint64 `yaml:"seed"`
	Dedup       bool   `yaml:"dedup"`
}

type CostModelConfig struct {
	CacheSize int `yaml:"cache_size" validate:"gte=0"`
}

type MetricsConfig struct {
	// Address of the /metrics listener; empty disables it.
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

type RecordsConfig struct {
	// Directory of the tuning record store; empty disables saving.
	Dir string `yaml:"dir"`
	// Number of best schedules saved per run.
	Keep int `yaml:"keep" validate:"gte=0"`
}

var validate = validator.New()

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Search: SearchConfig{
			Workload: "matmul",
			Target:   "cpu",
			Depth:    6,
		},
		Tuner: TunerConfig{
			Population:  16,
			Generations: 4,
			TopK:        4,
			Workers:     4,
			Seed:        1,
			Dedup:       true,
		},
		CostModel: CostModelConfig{CacheSize: 4096},
		Records:   RecordsConfig{Keep: 1},
		Logging:   logging.DefaultConfig(),
		Tracing: tracing.Config{
			ServiceName:    "autotune",
			ServiceVersion: "dev",
			Environment:    "local",
		},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// A missing file is not an error; the defaults are used instead.
func Load(path string) (*Config, error) {
	// Check if config path is provided via environment
	if envPath := os.Getenv("AUTOTUNE_CONFIG"); envPath != "" {
		path = envPath
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse YAML config: %w", err)
			}
		}
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromBytes parses data over the defaults without consulting the
// environment
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field constraint
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Package config loads the YAML configuration file, applying defaults and
// environment overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "250ms" parse.
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds everything the run command needs to wire the engine.
type Config struct {
	DBPath        string   `yaml:"db_path"`
	APIPort       int      `yaml:"api_port"`
	AdminKey      string   `yaml:"admin_key"`
	OracleAPIKey  string   `yaml:"oracle_api_key"`
	CycleInterval Duration `yaml:"cycle_interval"`
	Speed         float64  `yaml:"speed"`
	Seed          int64    `yaml:"seed"`

	Needs       []string           `yaml:"needs"`
	Personality map[string]float64 `yaml:"personality"`

	// Policy knobs for the goal system's documented open choices.
	ProgressGain        float64 `yaml:"progress_gain"`
	MaxProgressPerCycle float64 `yaml:"max_progress_per_cycle"`
	MilestoneSetback    float64 `yaml:"milestone_setback"`
}

// Default returns the standard configuration.
func Default() Config {
	return Config{
		DBPath:        "data/mindsim.db",
		APIPort:       8080,
		CycleInterval: Duration(time.Second),
		Speed:         1.0,
		Seed:          42,
		Needs:         []string{"hunger", "rest", "safety", "connection", "meaning"},
		Personality: map[string]float64{
			"openness":          0.7,
			"conscientiousness": 0.6,
			"extraversion":      0.5,
		},
		ProgressGain:        0.5,
		MaxProgressPerCycle: 0.25,
		MilestoneSetback:    0.15,
	}
}

// Load reads a config file over the defaults. A missing path is fine — the
// defaults stand. Secrets in the environment always win:
// ANTHROPIC_API_KEY and MINDSIM_ADMIN_KEY.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		cfg.OracleAPIKey = key
	}
	if key := os.Getenv("MINDSIM_ADMIN_KEY"); key != "" {
		cfg.AdminKey = key
	}

	if len(cfg.Needs) == 0 {
		return cfg, fmt.Errorf("config: needs list must not be empty")
	}
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = Duration(time.Second)
	}
	return cfg, nil
}

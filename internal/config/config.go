// Package config loads the panel server configuration from an optional YAML
// file plus PANEL_* environment overrides. A missing file is not an error;
// the defaults describe a self-contained single-node setup.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownBackend reports a store backend name outside the supported
	// set (memory, file, etcd).
	ErrUnknownBackend = errors.New("unknown store backend")

	// ErrBadTickPeriod reports a zero or negative simulation period.
	ErrBadTickPeriod = errors.New("tick period must be positive")
)

// Store backend names accepted in configuration.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendEtcd   = "etcd"
)

// Duration wraps time.Duration so YAML files can carry "3s" style values.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// StoreConfig selects and parametrizes the snapshot store backend.
type StoreConfig struct {
	Backend       string   `yaml:"backend"`
	Path          string   `yaml:"path"`
	EtcdEndpoints []string `yaml:"etcd_endpoints"`
	EtcdKey       string   `yaml:"etcd_key"`
}

// SimulationConfig controls the two periodic loops and the random source.
type SimulationConfig struct {
	TickPeriod  Duration `yaml:"tick_period"`
	ClockPeriod Duration `yaml:"clock_period"`

	// Seed fixes the random source for reproducible runs; zero means seed
	// from the wall clock.
	Seed int64 `yaml:"seed"`
}

// Config holds the panel server configuration.
type Config struct {
	ListenAddr  string           `yaml:"listen_addr"`
	MetricsAddr string           `yaml:"metrics_addr"`
	Store       StoreConfig      `yaml:"store"`
	Simulation  SimulationConfig `yaml:"simulation"`
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() *Config {
	return &Config{
		ListenAddr:  ":8080",
		MetricsAddr: ":9090",
		Store: StoreConfig{
			Backend:       BackendFile,
			Path:          "panel-state.json",
			EtcdEndpoints: []string{"http://localhost:2379"},
			EtcdKey:       "/panel/state",
		},
		Simulation: SimulationConfig{
			TickPeriod:  Duration(3 * time.Second),
			ClockPeriod: Duration(time.Second),
		},
	}
}

// Load reads the configuration file at path. If the file does not exist the
// defaults are used without error. PANEL_* environment variables override
// both, and the result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Missing file is fine: defaults plus environment cover it.
	default:
		return nil, err
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the cross-field constraints a YAML parse cannot.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendFile, BackendEtcd:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Store.Backend)
	}
	if c.Simulation.TickPeriod <= 0 {
		return fmt.Errorf("%w: tick_period %s", ErrBadTickPeriod, time.Duration(c.Simulation.TickPeriod))
	}
	if c.Simulation.ClockPeriod <= 0 {
		return fmt.Errorf("%w: clock_period %s", ErrBadTickPeriod, time.Duration(c.Simulation.ClockPeriod))
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PANEL_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("PANEL_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("PANEL_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("PANEL_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("PANEL_ETCD_ENDPOINTS"); v != "" {
		cfg.Store.EtcdEndpoints = strings.Split(v, ",")
	}
	if v := os.Getenv("PANEL_ETCD_KEY"); v != "" {
		cfg.Store.EtcdKey = v
	}
	if v := os.Getenv("PANEL_SIM_TICK"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PANEL_SIM_TICK: %w", err)
		}
		cfg.Simulation.TickPeriod = Duration(d)
	}
	if v := os.Getenv("PANEL_CLOCK_TICK"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PANEL_CLOCK_TICK: %w", err)
		}
		cfg.Simulation.ClockPeriod = Duration(d)
	}
	if v := os.Getenv("PANEL_SIM_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("PANEL_SIM_SEED: %w", err)
		}
		cfg.Simulation.Seed = seed
	}
	return nil
}

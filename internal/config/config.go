package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultCellCount = 6
	DefaultSimulator = "./md-simulate"
)

var (
	DefaultDensity     = Range{Start: 0.8, Stop: 1, Count: 1}
	DefaultTemperature = Range{Start: 0.2, Stop: 0.8, Count: 1}
)

var ErrInvalidCellCount = errors.New("config: cell count must be >= 1")

// Config is the resolved sweep configuration. It is built once at startup and
// passed by value into the driver.
type Config struct {
	CellCount       int           `yaml:"cellcount"`
	Density         Range         `yaml:"density"`
	Temperature     Range         `yaml:"temperature"`
	OutputDirectory string        `yaml:"output_directory,omitempty"`
	RemoveData      bool          `yaml:"remove_data"`
	Simulator       string        `yaml:"simulator"`
	HaltOnFailure   bool          `yaml:"halt_on_failure"`
	RunTimeout      time.Duration `yaml:"run_timeout,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		CellCount:   DefaultCellCount,
		Density:     DefaultDensity,
		Temperature: DefaultTemperature,
		Simulator:   DefaultSimulator,
	}
}

// DefaultOutputDirectory is the directory used when none is given.
func DefaultOutputDirectory(cellCount int) string {
	return fmt.Sprintf("test_data_cellcount_%d", cellCount)
}

// ParticleCount is the number of atoms simulated per run (fcc lattice).
func (c Config) ParticleCount() int {
	return 4 * c.CellCount * c.CellCount * c.CellCount
}

// Resolved fills in values derived from other fields.
func (c Config) Resolved() Config {
	if c.OutputDirectory == "" {
		c.OutputDirectory = DefaultOutputDirectory(c.CellCount)
	}
	if c.Simulator == "" {
		c.Simulator = DefaultSimulator
	}
	return c
}

func (c Config) Validate() error {
	if c.CellCount < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidCellCount, c.CellCount)
	}
	if c.Density.Count < 1 {
		return fmt.Errorf("density: %w", ErrRangeCount)
	}
	if c.Temperature.Count < 1 {
		return fmt.Errorf("temperature: %w", ErrRangeCount)
	}
	if c.RunTimeout < 0 {
		return fmt.Errorf("config: negative run timeout %v", c.RunTimeout)
	}
	return nil
}

func Load(path string) (*Config, error) {
	return LoadInto(path, DefaultConfig())
}

// LoadInto reads path on top of base. Keys missing from the file keep the
// values already in base.
func LoadInto(path string, base *Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := *base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

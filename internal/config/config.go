// YAML benchmark config loader with CUE validation and env overrides
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Example selects the files of one benchmark dataset.
type Example struct {
	BasePath         string `yaml:"base_path"`
	Config           string `yaml:"config"`
	SimConfig        string `yaml:"sim_config,omitempty"`
	PopulationToPlot string `yaml:"population_to_plot,omitempty"`
}

// Benchmark is the root configuration of a single benchmark run.
type Benchmark struct {
	Example      string             `yaml:"example"`
	NVP          int                `yaml:"nvp"`
	PresimTime   float64            `yaml:"presimtime"`
	RecordSpikes bool               `yaml:"record_spikes"`
	Rank         int                `yaml:"rank"`
	Seed         uint64             `yaml:"seed"`
	LogPrefix    string             `yaml:"log_prefix"`
	OutputDir    string             `yaml:"output_dir"`
	LogLevel     string             `yaml:"log_level"`
	Examples     map[string]Example `yaml:"examples"`
}

// Default returns the built-in benchmark with both reference datasets.
func Default() *Benchmark {
	return &Benchmark{
		Example:    "GLIF",
		NVP:        1,
		PresimTime: 50,
		Seed:       143202461,
		LogPrefix:  "logfile",
		OutputDir:  ".",
		LogLevel:   "info",
		Examples: map[string]Example{
			"300_pointneurons": {
				BasePath:         "examples/300_pointneurons",
				Config:           "circuit_config.json",
				SimConfig:        "simulation_config.json",
				PopulationToPlot: "internal",
			},
			"GLIF": {
				BasePath:         "benchmark-models/nestsonata/glif_nest_220",
				Config:           "config.json",
				PopulationToPlot: "v1",
			},
		},
	}
}

// Load reads path (if non-empty), validates it against the embedded CUE
// schema and applies environment overrides on top of the defaults.
func Load(path string) (*Benchmark, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := ValidateWithCue(path, data); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Benchmark) error {
	if v := os.Getenv("SONATABENCH_EXAMPLE"); v != "" {
		cfg.Example = v
	}
	if v := os.Getenv("SONATABENCH_NVP"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SONATABENCH_NVP: %w", err)
		}
		cfg.NVP = n
	}
	if v := os.Getenv("SONATABENCH_RANK"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SONATABENCH_RANK: %w", err)
		}
		cfg.Rank = n
	}
	if v := os.Getenv("SONATABENCH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return nil
}

// Validate checks the run parameters and that the selected example exists.
func (c *Benchmark) Validate() error {
	if c.NVP < 1 {
		return fmt.Errorf("nvp must be at least 1, got %d", c.NVP)
	}
	if c.PresimTime < 0 {
		return fmt.Errorf("presimtime must be non-negative, got %v", c.PresimTime)
	}
	if c.Rank < 0 {
		return fmt.Errorf("rank must be non-negative, got %d", c.Rank)
	}
	if c.LogPrefix == "" {
		return fmt.Errorf("log_prefix must not be empty")
	}
	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.LogLevel != "" && !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace)", c.LogLevel)
	}
	_, err := c.Selected()
	return err
}

// Selected returns the example named by c.Example.
func (c *Benchmark) Selected() (Example, error) {
	ex, ok := c.Examples[c.Example]
	if !ok {
		return Example{}, fmt.Errorf("unknown example %q (known: %v)", c.Example, c.ExampleNames())
	}
	if ex.BasePath == "" || ex.Config == "" {
		return Example{}, fmt.Errorf("example %q needs base_path and config", c.Example)
	}
	return ex, nil
}

// ExampleNames lists the configured examples in sorted order.
func (c *Benchmark) ExampleNames() []string {
	names := make([]string, 0, len(c.Examples))
	for n := range c.Examples {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

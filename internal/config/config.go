package config

import (
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"ecokernel/internal/model"
)

const (
	defaultLogEvery = 100
	defaultReplicas = 1
)

// Config captures the runtime knobs for a training run.
type Config struct {
	InputSize    int     `yaml:"input_size"`
	HiddenSize   int     `yaml:"hidden_size"`
	OutputSize   int     `yaml:"output_size"`
	LearningRate float64 `yaml:"learning_rate"`
	Seed         int64   `yaml:"seed"`
	Iterations   int     `yaml:"iterations"`
	LogEvery     int     `yaml:"log_every"`
	Replicas     int     `yaml:"replicas"`
	// Examples is a set file or a directory of them. Empty selects the
	// built-in anchors.
	Examples     string  `yaml:"examples"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	LearningRate float64
	Seed         int64
	Iterations   int
	LogEvery     int
	Replicas     int
	Examples     string
}

// Load reads and validates a Config from YAML.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	defer f.Close()

	cfg, err := parse(f)
	if err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.LearningRate > 0 {
		c.LearningRate = o.LearningRate
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.Iterations > 0 {
		c.Iterations = o.Iterations
	}
	if o.LogEvery > 0 {
		c.LogEvery = o.LogEvery
	}
	if o.Replicas > 0 {
		c.Replicas = o.Replicas
	}
	if o.Examples != "" {
		c.Examples = o.Examples
	}
}

// Validate verifies the config is runnable, filling defaults for unset
// optional values.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.InputSize <= 0 || c.HiddenSize <= 0 || c.OutputSize <= 0 {
		return errors.Errorf("layer sizes must be > 0 (got %d-%d-%d)", c.InputSize, c.HiddenSize, c.OutputSize)
	}
	if c.LearningRate == 0 {
		c.LearningRate = model.DefaultLearningRate
	}
	if !(c.LearningRate > 0) || math.IsInf(c.LearningRate, 1) {
		return errors.Errorf("learning_rate must be > 0 (got %v)", c.LearningRate)
	}
	if c.Iterations <= 0 {
		return errors.Errorf("iterations must be > 0 (got %d)", c.Iterations)
	}
	if c.LogEvery <= 0 {
		c.LogEvery = defaultLogEvery
	}
	if c.Replicas <= 0 {
		c.Replicas = defaultReplicas
	}
	return nil
}

// Topology returns the configured layer sizes.
func (c *Config) Topology() model.Topology {
	return model.Topology{Input: c.InputSize, Hidden: c.HiddenSize, Output: c.OutputSize}
}

func parse(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

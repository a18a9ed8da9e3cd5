// Package config holds the knobs for a training run: YAML file, CLI overrides, validation.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config captures the runtime knobs for a training run.
type Config struct {
	DataDir  string `yaml:"data_dir"`
	Download bool   `yaml:"download"`
	Device   string `yaml:"device"`

	Seed         int64   `yaml:"seed"`
	LearningRate float64 `yaml:"learning_rate"`
	Epochs       int     `yaml:"epochs"`
	BatchSize    int     `yaml:"batch_size"`
	LogEvery     int     `yaml:"log_every"`

	// training samples are [0, TrainSize) of the training file, validation is
	// [TrainSize, TrainSize+ValidSize); ValidSize 0 means "the rest".
	TrainSize int `yaml:"train_size"`
	ValidSize int `yaml:"valid_size"`

	Model ModelConfig `yaml:"model"`
	Plot  PlotConfig  `yaml:"plot"`
}

type ModelConfig struct {
	NumFeatures int    `yaml:"num_features"`
	NumHidden1  int    `yaml:"num_hidden1"`
	NumHidden2  int    `yaml:"num_hidden2"`
	NumClasses  int    `yaml:"num_classes"`
	Activation  string `yaml:"activation"`
}

type PlotConfig struct {
	ResultsDir          string `yaml:"results_dir"` // empty: do not write plot files
	Format              string `yaml:"format"`
	AveragingIterations int    `yaml:"averaging_iterations"`
	Loss                bool   `yaml:"loss"`
	Accuracy            bool   `yaml:"accuracy"`
}

// Overrides captures CLI supplied values. zero values (nil Seed) leave the config alone.
type Overrides struct {
	DataDir      string
	Device       string
	Seed         *int64 // nil when not given; 0 is a valid seed
	LearningRate float64
	Epochs       int
	BatchSize    int
	LogEvery     int
	TrainSize    int
	ResultsDir   string
	Format       string
}

// Default mirrors the reference run: 20 training images, the rest for validation.
func Default() *Config {
	return &Config{
		DataDir:      "data",
		Download:     true,
		Device:       "auto",
		Seed:         123,
		LearningRate: 0.1,
		Epochs:       200,
		BatchSize:    5,
		LogEvery:     50,
		TrainSize:    20,
		Model: ModelConfig{
			NumFeatures: 28 * 28,
			NumHidden1:  50,
			NumHidden2:  20,
			NumClasses:  10,
			Activation:  "relu",
		},
		Plot: PlotConfig{
			Format:              "pdf",
			AveragingIterations: 20,
			Loss:                false,
			Accuracy:            true,
		},
	}
}

// Load reads a YAML file on top of Default and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides updates c using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.DataDir != "" {
		c.DataDir = o.DataDir
	}
	if o.Device != "" {
		c.Device = o.Device
	}
	if o.Seed != nil {
		c.Seed = *o.Seed
	}
	if o.LearningRate > 0 {
		c.LearningRate = o.LearningRate
	}
	if o.Epochs > 0 {
		c.Epochs = o.Epochs
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.LogEvery > 0 {
		c.LogEvery = o.LogEvery
	}
	if o.TrainSize > 0 {
		c.TrainSize = o.TrainSize
	}
	if o.ResultsDir != "" {
		c.Plot.ResultsDir = o.ResultsDir
	}
	if o.Format != "" {
		c.Plot.Format = o.Format
	}
}

// Validate verifies the config is runnable and fills soft defaults.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.DataDir == "" {
		return errors.New("data_dir must be set")
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be > 0 (got %g)", c.LearningRate)
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be > 0 (got %d)", c.Epochs)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.TrainSize <= 0 {
		return fmt.Errorf("train_size must be > 0 (got %d)", c.TrainSize)
	}
	if c.ValidSize < 0 {
		return fmt.Errorf("valid_size must be >= 0 (got %d)", c.ValidSize)
	}
	m := c.Model
	if m.NumFeatures <= 0 || m.NumHidden1 <= 0 || m.NumHidden2 <= 0 || m.NumClasses <= 0 {
		return fmt.Errorf("model dimensions must be > 0 (got %d/%d/%d/%d)", m.NumFeatures, m.NumHidden1, m.NumHidden2, m.NumClasses)
	}
	switch c.Plot.Format {
	case "pdf", "png", "svg", "eps", "jpg", "tiff":
	default:
		return fmt.Errorf("plot format %q is not supported", c.Plot.Format)
	}
	if c.LogEvery <= 0 {
		c.LogEvery = 50
	}
	if c.Plot.AveragingIterations <= 0 {
		c.Plot.AveragingIterations = 20
	}
	return nil
}

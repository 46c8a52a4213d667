package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/model"
	"github.com/san-kum/stockflow/internal/sim"
)

const (
	DefaultModel     = "growth"
	DefaultDataDir   = ".stockflow"
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"
	DefaultRuns      = 10
)

// Config is the run configuration of the command line tools. Zero overrides
// keep the model's own settings.
type Config struct {
	// Model is a sample model name or the path of a YAML model file.
	Model      string  `yaml:"model"`
	Algorithm  string  `yaml:"algorithm,omitempty"`
	TimeStep   float64 `yaml:"time_step,omitempty"`
	TimeLength float64 `yaml:"time_length,omitempty"`
	Seed       *uint64 `yaml:"seed,omitempty"`

	DataDir string    `yaml:"data_dir"`
	Log     LogConfig `yaml:"log"`

	Ensemble EnsembleConfig `yaml:"ensemble"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type EnsembleConfig struct {
	Runs      int    `yaml:"runs"`
	FirstSeed uint64 `yaml:"first_seed"`
	Parallel  int    `yaml:"parallel,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Model:   DefaultModel,
		DataDir: DefaultDataDir,
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Ensemble: EnsembleConfig{
			Runs:      DefaultRuns,
			FirstSeed: 1,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

// LoadModel returns the sample model named by c.Model, or reads it as a
// file path.
func (c *Config) LoadModel() (*model.Model, error) {
	if build, ok := Samples[c.Model]; ok {
		return build(), nil
	}
	return model.Load(c.Model)
}

// Options turns the overrides into build options.
func (c *Config) Options() ([]sim.Option, error) {
	var opts []sim.Option
	if c.Algorithm != "" {
		alg, err := dynamo.ParseAlgorithm(c.Algorithm)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sim.WithAlgorithm(alg))
	}
	if c.TimeStep > 0 {
		opts = append(opts, sim.WithTimeStep(c.TimeStep))
	}
	if c.TimeLength > 0 {
		opts = append(opts, sim.WithTimeLength(c.TimeLength))
	}
	if c.Seed != nil {
		opts = append(opts, sim.WithSeed(*c.Seed))
	}
	return opts, nil
}

// Apply copies the non-zero fields of preset over c, keeping c.Model.
func (c *Config) Apply(preset *Config) {
	if preset.Algorithm != "" {
		c.Algorithm = preset.Algorithm
	}
	if preset.TimeStep > 0 {
		c.TimeStep = preset.TimeStep
	}
	if preset.TimeLength > 0 {
		c.TimeLength = preset.TimeLength
	}
	if preset.Seed != nil {
		seed := *preset.Seed
		c.Seed = &seed
	}
}

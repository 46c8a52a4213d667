// Package automation runs scripted batches of simulations described in YAML
// and saves every run to the store.
package automation

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/stockflow/internal/config"
	"github.com/san-kum/stockflow/internal/experiment"
	"github.com/san-kum/stockflow/internal/optim"
	"github.com/san-kum/stockflow/internal/storage"
)

// Scenario is a named list of runs.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep is one run. Preset is applied before the explicit overrides,
// and Params replace the equations of the named primitives with constants.
type ScenarioStep struct {
	Model      string             `yaml:"model"`
	Preset     string             `yaml:"preset,omitempty"`
	Algorithm  string             `yaml:"algorithm,omitempty"`
	TimeStep   float64            `yaml:"time_step,omitempty"`
	TimeLength float64            `yaml:"time_length,omitempty"`
	Seed       *uint64            `yaml:"seed,omitempty"`
	Params     map[string]float64 `yaml:"params,omitempty"`
}

// StepResult is the stored outcome of one step.
type StepResult struct {
	Step  int
	RunID string
	Meta  storage.RunMetadata
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", scenario.Name)
	}
	return &scenario, nil
}

// Config layers the step over base.
func (s ScenarioStep) Config(base *config.Config) (*config.Config, error) {
	cfg := *base
	cfg.Model = s.Model
	if s.Preset != "" {
		preset := config.GetPreset(s.Model, s.Preset)
		if preset == nil {
			return nil, fmt.Errorf("unknown preset %q for model %q", s.Preset, s.Model)
		}
		cfg.Apply(preset)
	}
	cfg.Apply(&config.Config{
		Algorithm:  s.Algorithm,
		TimeStep:   s.TimeStep,
		TimeLength: s.TimeLength,
		Seed:       s.Seed,
	})
	return &cfg, nil
}

// RunScenario runs the steps in order and saves each result. It stops at
// the first failing step and returns the steps that completed.
func RunScenario(ctx context.Context, scenario *Scenario, base *config.Config, store *storage.Store, log *zap.Logger) ([]StepResult, error) {
	if log == nil {
		log = zap.NewNop()
	}
	results := make([]StepResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		log.Info("running step",
			zap.String("scenario", scenario.Name),
			zap.Int("step", i+1),
			zap.Int("of", len(scenario.Steps)),
			zap.String("model", step.Model))

		cfg, err := step.Config(base)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		m, err := cfg.LoadModel()
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		if len(step.Params) > 0 {
			m = optim.WithParams(m, step.Params)
		}

		exp := experiment.New(cfg, log)
		if err := exp.SetupModel(m); err != nil {
			return results, fmt.Errorf("step %d setup: %w", i+1, err)
		}
		res, err := exp.Run(ctx)
		if err != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}

		meta := exp.Metadata()
		id, err := store.Save(meta, res)
		if err != nil {
			return results, fmt.Errorf("step %d save: %w", i+1, err)
		}
		saved, err := store.Load(id)
		if err != nil {
			return results, fmt.Errorf("step %d save: %w", i+1, err)
		}
		results = append(results, StepResult{Step: i + 1, RunID: id, Meta: *saved})
	}

	return results, nil
}

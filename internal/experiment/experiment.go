// Package experiment ties a run configuration to a built simulation: it
// loads the model, applies overrides, runs it and describes the result for
// storage.
package experiment

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/san-kum/stockflow/internal/config"
	"github.com/san-kum/stockflow/internal/model"
	"github.com/san-kum/stockflow/internal/sim"
	"github.com/san-kum/stockflow/internal/storage"
)

type Experiment struct {
	cfg   *config.Config
	log   *zap.Logger
	model *model.Model
	sim   *sim.Simulation
}

func New(cfg *config.Config, log *zap.Logger) *Experiment {
	if log == nil {
		log = zap.NewNop()
	}
	return &Experiment{cfg: cfg, log: log}
}

// Setup loads and builds the model named by the configuration.
func (e *Experiment) Setup() error {
	m, err := e.cfg.LoadModel()
	if err != nil {
		return err
	}
	return e.SetupModel(m)
}

// SetupModel builds m with the configuration's overrides.
func (e *Experiment) SetupModel(m *model.Model) error {
	opts, err := e.cfg.Options()
	if err != nil {
		return err
	}
	opts = append(opts, sim.WithLogger(e.log))
	s, err := sim.Build(m, opts...)
	if err != nil {
		return err
	}
	e.model, e.sim = m, s
	return nil
}

func (e *Experiment) Run(ctx context.Context) (*sim.Results, error) {
	if e.sim == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	start := time.Now()
	res, err := e.sim.Simulate(ctx)
	if err != nil {
		return nil, err
	}
	e.log.Debug("experiment finished",
		zap.String("model", e.cfg.Model),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("samples", len(res.Times)))
	return res, nil
}

// Ensemble runs the configured number of seeds.
func (e *Experiment) Ensemble(ctx context.Context) (*sim.Ensemble, error) {
	if e.sim == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	ec := e.cfg.Ensemble
	var opts []sim.EnsembleOption
	if ec.Parallel > 0 {
		opts = append(opts, sim.WithParallelism(ec.Parallel))
	}
	return e.sim.RunEnsemble(ctx, ec.Runs, ec.FirstSeed, opts...)
}

// Metadata describes a run of this experiment for the store.
func (e *Experiment) Metadata() storage.RunMetadata {
	ts := e.sim.TimeSettings()
	meta := storage.RunMetadata{
		Model:      e.cfg.Model,
		TimeStep:   ts.Step,
		TimeLength: ts.Length,
		TimeUnits:  ts.Units,
		Algorithm:  string(ts.Algorithm),
	}
	seed := e.sim.Seed()
	meta.Seed = &seed
	return meta
}

// Simulation returns the built simulation for interactive use.
func (e *Experiment) Simulation() *sim.Simulation {
	return e.sim
}

func (e *Experiment) Model() *model.Model {
	return e.model
}

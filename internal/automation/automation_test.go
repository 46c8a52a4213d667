package automation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/san-kum/stockflow/internal/config"
	"github.com/san-kum/stockflow/internal/storage"
)

const scenarioYAML = `
name: growth rates
description: compare growth under two integrators
steps:
  - model: growth
    preset: euler
  - model: growth
    algorithm: rk4
    time_length: 4
    params:
      growth: 10
`

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadScenario(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, scenarioYAML))
	require.NoError(t, err)
	assert.Equal(t, "growth rates", sc.Name)
	require.Len(t, sc.Steps, 2)
	assert.Equal(t, "euler", sc.Steps[0].Preset)
	assert.Equal(t, map[string]float64{"growth": 10}, sc.Steps[1].Params)

	_, err = LoadScenario(writeScenario(t, "name: empty\n"))
	assert.Error(t, err)
}

func TestStepConfig(t *testing.T) {
	base := config.DefaultConfig()
	cfg, err := ScenarioStep{Model: "growth", Preset: "long", TimeLength: 5}.Config(base)
	require.NoError(t, err)
	assert.Equal(t, "rk4", cfg.Algorithm)
	assert.Equal(t, 0.25, cfg.TimeStep)
	assert.Equal(t, 5.0, cfg.TimeLength)
	assert.Equal(t, config.DefaultModel, base.Model)

	_, err = ScenarioStep{Model: "growth", Preset: "missing"}.Config(base)
	assert.Error(t, err)
}

func TestRunScenario(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, scenarioYAML))
	require.NoError(t, err)
	store := storage.New(t.TempDir())
	require.NoError(t, store.Init())

	results, err := RunScenario(context.Background(), sc, config.DefaultConfig(), store, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "euler", results[0].Meta.Algorithm)
	assert.Equal(t, 21, results[0].Meta.Samples)

	// A constant flow of 10 for 4 years on top of 100.
	assert.Equal(t, 41, results[1].Meta.Samples)
	assert.InDelta(t, 140, results[1].Meta.Final["y"], 1e-9)

	runs, err := store.List()
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRunScenario_StopsAtFailure(t *testing.T) {
	sc := &Scenario{Name: "bad", Steps: []ScenarioStep{
		{Model: "growth", TimeLength: 1},
		{Model: "growth", Algorithm: "leapfrog"},
		{Model: "growth"},
	}}
	store := storage.New(t.TempDir())
	require.NoError(t, store.Init())

	results, err := RunScenario(context.Background(), sc, config.DefaultConfig(), store, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 2")
	assert.Len(t, results, 1)
}

package experiment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/san-kum/stockflow/internal/config"
)

func TestExperimentRun(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Apply(config.GetPreset("growth", "rk4"))

	e := New(cfg, zaptest.NewLogger(t))
	_, err := e.Run(context.Background())
	assert.Error(t, err)

	require.NoError(t, e.Setup())
	res, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Times, 21)

	meta := e.Metadata()
	assert.Equal(t, "growth", meta.Model)
	assert.Equal(t, "rk4", meta.Algorithm)
	assert.Equal(t, 0.1, meta.TimeStep)
	assert.Equal(t, "years", meta.TimeUnits)
	require.NotNil(t, meta.Seed)
}

func TestExperimentEnsemble(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Model = "sir_agents"
	cfg.TimeLength = 5
	cfg.Ensemble.Runs = 3
	cfg.Ensemble.FirstSeed = 10

	e := New(cfg, nil)
	require.NoError(t, e.Setup())
	ens, err := e.Ensemble(context.Background())
	require.NoError(t, err)
	require.Len(t, ens.Members, 3)
	assert.Equal(t, uint64(10), ens.Members[0].Seed)
	assert.Equal(t, uint64(12), ens.Members[2].Seed)
}

func TestExperimentSetup_UnknownModel(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Model = "does-not-exist.yaml"
	assert.Error(t, New(cfg, nil).Setup())
}

package config

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/stockflow/internal/sim"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Model != "growth" {
		t.Errorf("expected model growth, got %s", cfg.Model)
	}
	if cfg.Ensemble.Runs <= 0 {
		t.Error("ensemble runs should be positive")
	}
	if cfg.Log.Level == "" {
		t.Error("log level should be set")
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Model = "predator_prey"
	cfg.Seed = seed(9)
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("growth", "rk4")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.TimeStep != 0.1 {
		t.Errorf("expected time step 0.1, got %f", cfg.TimeStep)
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	if cfg := GetPreset("growth", "nonexistent"); cfg != nil {
		t.Error("expected nil for nonexistent preset")
	}
	if cfg := GetPreset("nonexistent", "euler"); cfg != nil {
		t.Error("expected nil for nonexistent model")
	}
}

func TestListPresets(t *testing.T) {
	assert.Equal(t, []string{"euler", "long", "rk4"}, ListPresets("growth"))
	assert.Nil(t, ListPresets("nonexistent"))
}

func TestOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Apply(GetPreset("growth", "rk4"))
	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Len(t, opts, 3)

	cfg.Algorithm = "leapfrog"
	_, err = cfg.Options()
	assert.Error(t, err)
}

func TestSamplesSimulate(t *testing.T) {
	for _, name := range SampleNames() {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Model = name
			m, err := cfg.LoadModel()
			require.NoError(t, err)
			s, err := sim.Build(m)
			require.NoError(t, err)
			res, err := s.Simulate(context.Background())
			require.NoError(t, err)
			assert.NotEmpty(t, res.Times)
		})
	}
}

func TestSamples_PresetsReferToSamples(t *testing.T) {
	for name := range Presets {
		_, ok := Samples[name]
		assert.True(t, ok, name)
	}
}

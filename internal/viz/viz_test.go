package viz

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/stockflow/internal/model"
	"github.com/san-kum/stockflow/internal/sim"
)

func TestSampleRows(t *testing.T) {
	tests := []struct {
		n, rows int
		want    []int
	}{
		{0, 5, nil},
		{3, 0, []int{0, 1, 2}},
		{3, 10, []int{0, 1, 2}},
		{11, 3, []int{0, 5, 10}},
		{5, 1, []int{4}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sampleRows(tt.n, tt.rows), "n=%d rows=%d", tt.n, tt.rows)
	}
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", FormatValue(nil))
	assert.Equal(t, "1.5", FormatValue(1.5))
	assert.Equal(t, "true", FormatValue(true))
	assert.Equal(t, "{1, a}", FormatValue([]any{1.0, "a"}))
}

func TestPlot(t *testing.T) {
	out, err := Plot([]Line{
		{Name: "up", Values: []float64{1, 2, 3, 4}},
		{Name: "gap", Values: []float64{math.NaN(), math.NaN()}},
	}, PlotOptions{Caption: "test"})
	require.NoError(t, err)
	assert.Contains(t, out, "up")
	assert.NotContains(t, out, "gap")

	_, err = Plot(nil, PlotOptions{})
	assert.Error(t, err)
}

func TestSparkline(t *testing.T) {
	assert.Equal(t, strings.Repeat("─", 4), Sparkline(nil, 4))
	assert.Equal(t, "  ", Sparkline([]float64{math.NaN(), math.NaN()}, 4))
	assert.NotEmpty(t, Sparkline([]float64{1, 2, 3}, 2))
}

func TestResultsTable(t *testing.T) {
	s, err := sim.Build(&model.Model{
		Settings: model.Settings{TimeLength: 4, TimeStep: 1, TimeUnits: "years"},
		Primitives: []*model.Primitive{
			{ID: "x", Kind: model.Variable, Name: "Level", Equation: "Time() * 2"},
		},
	})
	require.NoError(t, err)
	res, err := s.Simulate(context.Background())
	require.NoError(t, err)

	out := ResultsTable(res, nil, 2)
	assert.Contains(t, out, "Level")
	assert.Contains(t, out, "8")
}

func TestAgentMap(t *testing.T) {
	out := AgentMap([]sim.AgentInfo{
		{ID: 1, X: 0, Y: 0, Active: []string{"Ill"}, Links: []int{2}},
		{ID: 2, X: 10, Y: 10, Active: []string{"Well"}, Links: []int{1}},
		{ID: 3, X: 5, Y: 2, Active: []string{"Ill"}},
	}, 10, 10, 20, 5)
	assert.Contains(t, out, "3 agents")
	assert.Contains(t, out, "Ill")
	assert.Contains(t, out, "2")
}

func TestCanvas(t *testing.T) {
	c := NewCanvas(2, 1)
	w, h := c.Dots()
	assert.Equal(t, 4, w)
	assert.Equal(t, 4, h)
	c.Set(0, 0)
	c.Set(99, 99)
	assert.Equal(t, rune(brailleBlank|0x1), c.Grid[0][0])
	c.Clear()
	assert.Equal(t, rune(brailleBlank), c.Grid[0][0])
}

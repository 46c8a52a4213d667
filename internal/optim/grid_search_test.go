package optim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/stockflow/internal/model"
)

func tank() *model.Model {
	return &model.Model{
		Settings: model.Settings{TimeLength: 10, TimeStep: 1, TimeUnits: "years"},
		Primitives: []*model.Primitive{
			{ID: "level", Kind: model.Stock, Name: "Level", Equation: "0"},
			{ID: "target", Kind: model.Variable, Name: "Target", Equation: "50"},
			{ID: "inflow", Kind: model.Variable, Name: "Inflow", Equation: "1"},
			{ID: "fill", Kind: model.Flow, Name: "Fill", To: "level", Equation: "[Inflow]"},
			{ID: "gap", Kind: model.Variable, Name: "Gap", Equation: "Abs([Target] - [Level])"},
		},
	}
}

func TestGridSearch(t *testing.T) {
	g := NewGridSearch([]string{"Inflow"}, [][]float64{{1, 3, 5, 7}})
	best, val, trials, err := g.Search(context.Background(), tank(), Objective{Series: "gap", Metric: "final"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"Inflow": 5}, best)
	assert.InDelta(t, 0, val, 1e-12)
	assert.Len(t, trials, 4)
}

func TestGridSearch_Maximize(t *testing.T) {
	g := NewGridSearch([]string{"inflow", "target"}, [][]float64{{1, 2}, {0, 10}})
	best, val, trials, err := g.Search(context.Background(), tank(), Objective{Series: "Level", Metric: "max", Maximize: true})
	require.NoError(t, err)
	assert.Equal(t, 2.0, best["inflow"])
	assert.InDelta(t, 20, val, 1e-12)
	assert.Len(t, trials, 4)
}

func TestGridSearch_Errors(t *testing.T) {
	_, _, _, err := NewGridSearch([]string{"nope"}, [][]float64{{1}}).
		Search(context.Background(), tank(), Objective{Series: "gap", Metric: "final"})
	assert.Error(t, err)

	_, _, _, err = NewGridSearch([]string{"Inflow"}, [][]float64{{1}}).
		Search(context.Background(), tank(), Objective{Series: "gap", Metric: "median"})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, _, err = NewGridSearch([]string{"Inflow"}, [][]float64{{1}}).
		Search(ctx, tank(), Objective{Series: "gap", Metric: "final"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithParams(t *testing.T) {
	base := tank()
	m := WithParams(base, map[string]float64{"Inflow": 2.5})
	assert.Equal(t, "2.5", m.ByID("inflow").Equation)
	assert.Equal(t, "1", base.ByID("inflow").Equation)
}

func TestRange(t *testing.T) {
	r, err := Range(0, 1, 0.25)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.25, 0.5, 0.75, 1}, r)
	_, err = Range(1, 0, 1)
	assert.Error(t, err)
}

package export

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/stockflow/internal/viz"
)

func TestSeriesToSVG(t *testing.T) {
	out, err := SeriesToSVG([]float64{0, 1, 2}, []viz.Line{
		{Name: "a<b", Values: []float64{1, 2, 3}},
		{Name: "gappy", Values: []float64{1, math.NaN(), 3}},
	}, 400, 200)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "<?xml"))
	assert.Contains(t, out, "a&lt;b")
	assert.Equal(t, 2, strings.Count(out, "<path"))
	assert.Equal(t, 3, strings.Count(out, "M"))
}

func TestSeriesToSVG_Errors(t *testing.T) {
	_, err := SeriesToSVG([]float64{0}, nil, 100, 100)
	assert.Error(t, err)
	_, err = SeriesToSVG([]float64{0, 1}, []viz.Line{{Values: []float64{math.NaN(), math.NaN()}}}, 100, 100)
	assert.Error(t, err)
}

func TestCanvasToSVG(t *testing.T) {
	c := viz.NewCanvas(1, 1)
	c.Set(0, 0)
	c.Set(1, 3)
	out := CanvasToSVG(c, 4)
	assert.Equal(t, 2, strings.Count(out, "<circle"))
	assert.Equal(t, "", CanvasToSVG(nil, 1))
}

package analysis

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPhasePortrait(t *testing.T) {
	p := NewPhasePortrait([]float64{1, math.NaN(), 3, 4}, []float64{2, 3, 4})
	assert.Equal(t, []Point{{1, 2}, {3, 4}}, p.Points)
}

func TestNewSection(t *testing.T) {
	zs := []float64{-1, 1, -1, 1}
	xs := []float64{0, 2, 4, 6}
	ys := []float64{10, 10, 20, 20}
	s := NewSection(xs, ys, zs, 0)
	require.Len(t, s.Points, 2)
	assert.Equal(t, Point{1, 10}, s.Points[0])
	assert.Equal(t, Point{5, 20}, s.Points[1])
}

func TestToASCII(t *testing.T) {
	var xs, ys []float64
	for i := 0; i < 100; i++ {
		a := 2 * math.Pi * float64(i) / 100
		xs = append(xs, math.Cos(a))
		ys = append(ys, math.Sin(a))
	}
	out := NewPhasePortrait(xs, ys).ToASCII(40, 20)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, 20)
	assert.Contains(t, out, "◆")
	assert.Contains(t, out, "│")
	assert.Contains(t, out, "─")

	assert.Equal(t, "", (&PhasePortrait2D{}).ToASCII(10, 10))
}

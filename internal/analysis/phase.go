package analysis

import (
	"math"
	"strings"
)

type Point struct{ X, Y float64 }

// PhasePortrait2D is a trajectory in the plane of two series.
type PhasePortrait2D struct {
	Points []Point
}

// NewPhasePortrait pairs xs and ys sample by sample, dropping pairs where
// either value is NaN.
func NewPhasePortrait(xs, ys []float64) *PhasePortrait2D {
	n := min(len(xs), len(ys))
	portrait := &PhasePortrait2D{Points: make([]Point, 0, n)}
	for i := 0; i < n; i++ {
		if math.IsNaN(xs[i]) || math.IsNaN(ys[i]) {
			continue
		}
		portrait.Points = append(portrait.Points, Point{xs[i], ys[i]})
	}
	return portrait
}

// NewSection records (x, y) each time zs crosses level upward, linearly
// interpolating between the samples on either side of the crossing.
func NewSection(xs, ys, zs []float64, level float64) *PhasePortrait2D {
	n := min(len(xs), len(ys), len(zs))
	section := &PhasePortrait2D{}
	for i := 1; i < n; i++ {
		z0, z1 := zs[i-1], zs[i]
		if !(z0 < level && z1 >= level) {
			continue
		}
		f := (level - z0) / (z1 - z0)
		section.Points = append(section.Points, Point{
			X: xs[i-1] + f*(xs[i]-xs[i-1]),
			Y: ys[i-1] + f*(ys[i]-ys[i-1]),
		})
	}
	return section
}

// Bounds returns the extent of the points.
func (p *PhasePortrait2D) Bounds() (minX, maxX, minY, maxY float64) {
	minX, maxX = p.Points[0].X, p.Points[0].X
	minY, maxY = p.Points[0].Y, p.Points[0].Y
	for _, pt := range p.Points {
		minX = math.Min(minX, pt.X)
		maxX = math.Max(maxX, pt.X)
		minY = math.Min(minY, pt.Y)
		maxY = math.Max(maxY, pt.Y)
	}
	return
}

// ToASCII draws the points on a width x height grid with 10% padding. The
// axes are drawn where they cross the visible area.
func (p *PhasePortrait2D) ToASCII(width, height int) string {
	if p == nil || len(p.Points) == 0 {
		return ""
	}

	minX, maxX, minY, maxY := p.Bounds()
	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	maxX += rangeX * 0.1
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeX = maxX - minX
	rangeY = maxY - minY

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = make([]rune, width)
		for j := range canvas[i] {
			canvas[i][j] = ' '
		}
	}

	for i, pt := range p.Points {
		col := int((pt.X - minX) / rangeX * float64(width-1))
		row := height - 1 - int((pt.Y-minY)/rangeY*float64(height-1))
		if row >= 0 && row < height && col >= 0 && col < width {
			if i == 0 {
				canvas[row][col] = '◆'
			} else if canvas[row][col] != '◆' {
				canvas[row][col] = '•'
			}
		}
	}

	if minX <= 0 && maxX >= 0 {
		col := int((0 - minX) / rangeX * float64(width-1))
		for row := 0; row < height; row++ {
			if col >= 0 && col < width && canvas[row][col] == ' ' {
				canvas[row][col] = '│'
			}
		}
	}
	if minY <= 0 && maxY >= 0 {
		row := height - 1 - int((0-minY)/rangeY*float64(height-1))
		for col := 0; col < width; col++ {
			if row >= 0 && row < height && canvas[row][col] == ' ' {
				canvas[row][col] = '─'
			}
		}
	}

	var sb strings.Builder
	for _, row := range canvas {
		sb.WriteString(string(row))
		sb.WriteRune('\n')
	}
	return sb.String()
}

// Package export renders runs as standalone SVG documents.
package export

import (
	"fmt"
	"html"
	"math"
	"strings"

	"github.com/san-kum/stockflow/internal/viz"
)

var palette = []string{"#ff00ff", "#00ffff", "#ffff00", "#00ff88", "#ff8800", "#8888ff"}

// CanvasToSVG converts a Braille canvas, such as an agent map, to dots.
func CanvasToSVG(canvas *viz.Canvas, scale float64) string {
	if canvas == nil {
		return ""
	}

	width := float64(canvas.Width) * scale * 2
	height := float64(canvas.Height) * scale * 4

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
<g fill="#00ffff">
`, width, height, width, height))

	pixelMap := [4][2]int{
		{0x01, 0x08},
		{0x02, 0x10},
		{0x04, 0x20},
		{0x40, 0x80},
	}
	dotRadius := scale * 0.4

	for row := 0; row < canvas.Height; row++ {
		for col := 0; col < canvas.Width; col++ {
			r := canvas.Grid[row][col]
			if r < 0x2800 {
				continue
			}
			pattern := int(r - 0x2800)
			baseX := float64(col) * scale * 2
			baseY := float64(row) * scale * 4

			for dy := 0; dy < 4; dy++ {
				for dx := 0; dx < 2; dx++ {
					if pattern&pixelMap[dy][dx] != 0 {
						cx := baseX + float64(dx)*scale + scale/2
						cy := baseY + float64(dy)*scale + scale/2
						sb.WriteString(fmt.Sprintf("<circle cx=\"%.1f\" cy=\"%.1f\" r=\"%.1f\"/>\n", cx, cy, dotRadius))
					}
				}
			}
		}
	}

	sb.WriteString("</g>\n</svg>")
	return sb.String()
}

// SeriesToSVG draws lines against times on shared axes with a legend.
// NaN samples break a line.
func SeriesToSVG(times []float64, lines []viz.Line, width, height int) (string, error) {
	if len(times) < 2 {
		return "", fmt.Errorf("need at least two samples, got %d", len(times))
	}

	minX, maxX := times[0], times[len(times)-1]
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, l := range lines {
		for _, y := range l.Values {
			if math.IsNaN(y) || math.IsInf(y, 0) {
				continue
			}
			minY = math.Min(minY, y)
			maxY = math.Max(maxY, y)
		}
	}
	if math.IsInf(minY, 1) {
		return "", fmt.Errorf("nothing to plot")
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeY = maxY - minY

	const margin = 40.0
	plotW := float64(width) - 2*margin
	plotH := float64(height) - 2*margin
	project := func(t, y float64) (float64, float64) {
		return margin + (t-minX)/rangeX*plotW, margin + plotH - (y-minY)/rangeY*plotH
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d" font-family="monospace" font-size="11">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
<g stroke="#444466" fill="none">
<rect x="%.0f" y="%.0f" width="%.0f" height="%.0f"/>
</g>
<g fill="#888899">
<text x="%.0f" y="%.0f">%s</text>
<text x="%.0f" y="%.0f" text-anchor="end">%s</text>
<text x="4" y="%.0f">%s</text>
<text x="4" y="%.0f">%s</text>
</g>
`, width, height, width, height,
		margin, margin, plotW, plotH,
		margin, float64(height)-margin/2, fmtNum(minX),
		margin+plotW, float64(height)-margin/2, fmtNum(maxX),
		margin+plotH, fmtNum(minY),
		margin+8, fmtNum(maxY)))

	for i, l := range lines {
		color := palette[i%len(palette)]
		sb.WriteString(fmt.Sprintf(`<path fill="none" stroke="%s" stroke-width="1.5" d="`, color))
		pen := false
		for j, y := range l.Values {
			if j >= len(times) || math.IsNaN(y) || math.IsInf(y, 0) {
				pen = false
				continue
			}
			x, py := project(times[j], y)
			cmd := "L"
			if !pen {
				cmd = "M"
			}
			sb.WriteString(fmt.Sprintf("%s%.1f,%.1f ", cmd, x, py))
			pen = true
		}
		sb.WriteString("\"/>\n")
		sb.WriteString(fmt.Sprintf(`<text x="%.0f" y="%.0f" fill="%s">%s</text>
`, margin+float64(i)*120, margin-10, color, html.EscapeString(l.Name)))
	}

	sb.WriteString("</svg>")
	return sb.String(), nil
}

func fmtNum(x float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", x), "0"), ".")
}

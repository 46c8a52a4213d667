package viz

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
)

// Line is one plotted series.
type Line struct {
	Name   string
	Values []float64
}

type PlotOptions struct {
	Height    int
	Width     int
	Caption   string
	Precision uint
}

func (o PlotOptions) withDefaults() PlotOptions {
	if o.Height <= 0 {
		o.Height = 12
	}
	if o.Width <= 0 {
		o.Width = 80
	}
	if o.Precision == 0 {
		o.Precision = 2
	}
	return o
}

// Plot charts lines on shared axes with a colored legend. Lines with no
// finite values are skipped.
func Plot(lines []Line, opts PlotOptions) (string, error) {
	opts = opts.withDefaults()

	var data [][]float64
	var names []string
	for _, l := range lines {
		if !finite(l.Values) {
			continue
		}
		data = append(data, l.Values)
		names = append(names, l.Name)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("nothing to plot")
	}

	colors := make([]asciigraph.AnsiColor, len(data))
	for i := range colors {
		colors[i] = CurrentTheme.Series[i%len(CurrentTheme.Series)]
	}

	graph := asciigraph.PlotMany(data,
		asciigraph.Height(opts.Height),
		asciigraph.Width(opts.Width),
		asciigraph.Precision(opts.Precision),
		asciigraph.SeriesColors(colors...),
		asciigraph.Caption(opts.Caption),
	)

	legend := make([]string, len(names))
	for i, name := range names {
		legend[i] = colors[i].String() + "■" + asciigraph.Default.String() + " " + name
	}
	return graph + "\n\n" + lipgloss.NewStyle().PaddingLeft(2).Render(strings.Join(legend, "   ")), nil
}

func finite(values []float64) bool {
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			return true
		}
	}
	return false
}

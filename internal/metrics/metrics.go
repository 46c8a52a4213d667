// Package metrics reduces a recorded series to a single number.
package metrics

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/stockflow/internal/sim"
)

// Metric observes the samples of one series in time order.
type Metric interface {
	Name() string
	Observe(t, x float64)
	Value() float64
	Reset()
}

// Evaluate feeds the numeric samples of id to each metric and returns the
// values by metric name. Non-numeric samples are skipped.
func Evaluate(res *sim.Results, id string, ms ...Metric) (map[string]float64, error) {
	series, ok := res.Series[id]
	if !ok {
		if series, ok = res.Lookup(id); !ok {
			return nil, fmt.Errorf("no series named %q", id)
		}
	}
	for _, m := range ms {
		m.Reset()
	}
	for i, v := range series {
		x, ok := v.(float64)
		if !ok {
			if b, isBool := v.(bool); isBool {
				x, ok = 0, true
				if b {
					x = 1
				}
			}
		}
		if !ok {
			continue
		}
		for _, m := range ms {
			m.Observe(res.Times[i], x)
		}
	}
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.Name()] = m.Value()
	}
	return out, nil
}

// Parse builds a metric from its name: "final", "min", "max", "mean",
// "stddev", "integral" or "above:<threshold>".
func Parse(name string) (Metric, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if rest, ok := strings.CutPrefix(name, "above:"); ok {
		threshold, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return nil, fmt.Errorf("metric %q: %w", name, err)
		}
		return NewAbove(threshold), nil
	}
	switch name {
	case "final":
		return &Final{}, nil
	case "min":
		return NewExtremum(false), nil
	case "max":
		return NewExtremum(true), nil
	case "mean":
		return &Moments{name: "mean"}, nil
	case "stddev":
		return &Moments{name: "stddev", spread: true}, nil
	case "integral":
		return &Integral{}, nil
	}
	return nil, fmt.Errorf("unknown metric %q (available: %s)", name, strings.Join(Names(), ", "))
}

func Names() []string {
	names := []string{"final", "min", "max", "mean", "stddev", "integral", "above:<x>"}
	sort.Strings(names)
	return names
}

type Final struct {
	x    float64
	seen bool
}

func (f *Final) Name() string         { return "final" }
func (f *Final) Observe(_, x float64) { f.x, f.seen = x, true }
func (f *Final) Reset()               { f.x, f.seen = 0, false }

func (f *Final) Value() float64 {
	if !f.seen {
		return math.NaN()
	}
	return f.x
}

type Extremum struct {
	max  bool
	x    float64
	seen bool
}

func NewExtremum(max bool) *Extremum { return &Extremum{max: max} }

func (e *Extremum) Name() string {
	if e.max {
		return "max"
	}
	return "min"
}

func (e *Extremum) Observe(_, x float64) {
	if !e.seen || (e.max && x > e.x) || (!e.max && x < e.x) {
		e.x, e.seen = x, true
	}
}

func (e *Extremum) Value() float64 {
	if !e.seen {
		return math.NaN()
	}
	return e.x
}

func (e *Extremum) Reset() { e.x, e.seen = 0, false }

// Moments is the sample mean or standard deviation.
type Moments struct {
	name   string
	spread bool
	xs     []float64
}

func (m *Moments) Name() string         { return m.name }
func (m *Moments) Observe(_, x float64) { m.xs = append(m.xs, x) }
func (m *Moments) Reset()               { m.xs = m.xs[:0] }

func (m *Moments) Value() float64 {
	if len(m.xs) == 0 {
		return math.NaN()
	}
	mean, std := stat.MeanStdDev(m.xs, nil)
	if m.spread {
		if len(m.xs) < 2 {
			return 0
		}
		return std
	}
	return mean
}

// Integral is the trapezoid area under the series.
type Integral struct {
	lastT, lastX float64
	seen         bool
	sum          float64
}

func (g *Integral) Name() string { return "integral" }

func (g *Integral) Observe(t, x float64) {
	if g.seen {
		g.sum += (t - g.lastT) * (x + g.lastX) / 2
	}
	g.lastT, g.lastX, g.seen = t, x, true
}

func (g *Integral) Value() float64 { return g.sum }
func (g *Integral) Reset()         { *g = Integral{} }

// Above is the fraction of samples strictly above a threshold.
type Above struct {
	threshold  float64
	violations int
	samples    int
}

func NewAbove(threshold float64) *Above {
	return &Above{threshold: threshold}
}

func (a *Above) Name() string { return "above:" + strconv.FormatFloat(a.threshold, 'g', -1, 64) }

func (a *Above) Observe(_, x float64) {
	a.samples++
	if x > a.threshold {
		a.violations++
	}
}

func (a *Above) Value() float64 {
	if a.samples == 0 {
		return 0
	}
	return float64(a.violations) / float64(a.samples)
}

func (a *Above) Reset() {
	a.violations = 0
	a.samples = 0
}

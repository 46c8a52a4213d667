// Package optim searches model parameters. A parameter is a top-level
// primitive whose equation is replaced by each candidate value in turn.
package optim

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/san-kum/stockflow/internal/metrics"
	"github.com/san-kum/stockflow/internal/model"
	"github.com/san-kum/stockflow/internal/sim"
)

// Objective names the series and the metric minimized by a search.
type Objective struct {
	Series   string
	Metric   string
	Maximize bool
}

// Trial is one evaluated parameter combination.
type Trial struct {
	Params map[string]float64
	Value  float64
	Err    error
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	opts       []sim.Option
}

func NewGridSearch(params []string, ranges [][]float64, opts ...sim.Option) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges, opts: opts}
}

// Search runs base once per combination of parameter values and returns
// the best parameters, their objective value and every trial in grid order.
// Failed trials are kept with their error and never win.
func (g *GridSearch) Search(ctx context.Context, base *model.Model, obj Objective) (map[string]float64, float64, []Trial, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, 0, nil, fmt.Errorf("%d parameters but %d ranges", len(g.paramNames), len(g.ranges))
	}
	for _, name := range g.paramNames {
		if p := base.ByName(name); p == nil || p.Parent != "" {
			if p = base.ByID(name); p == nil || p.Parent != "" {
				return nil, 0, nil, fmt.Errorf("no top-level primitive named %q", name)
			}
		}
	}
	if _, err := metrics.Parse(obj.Metric); err != nil {
		return nil, 0, nil, err
	}

	best := math.Inf(1)
	var bestParams map[string]float64
	var trials []Trial

	err := g.searchRecursive(ctx, 0, make(map[string]float64), base, obj, &best, &bestParams, &trials)
	if err != nil {
		return nil, 0, trials, err
	}
	if bestParams == nil {
		return nil, 0, trials, fmt.Errorf("every trial failed")
	}
	if obj.Maximize {
		best = -best
	}
	return bestParams, best, trials, nil
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	base *model.Model,
	obj Objective,
	best *float64,
	bestParams *map[string]float64,
	trials *[]Trial,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth == len(g.paramNames) {
		val, err := g.evaluate(ctx, base, current, obj)
		*trials = append(*trials, Trial{Params: current, Value: val, Err: err})
		if err != nil || math.IsNaN(val) {
			return nil
		}

		score := val
		if obj.Maximize {
			score = -val
		}
		if score < *best {
			*best = score
			*bestParams = make(map[string]float64)
			for k, v := range current {
				(*bestParams)[k] = v
			}
		}
		return nil
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		if err := g.searchRecursive(ctx, depth+1, newParams, base, obj, best, bestParams, trials); err != nil {
			return err
		}
	}
	return nil
}

func (g *GridSearch) evaluate(ctx context.Context, base *model.Model, params map[string]float64, obj Objective) (float64, error) {
	s, err := sim.Build(WithParams(base, params), g.opts...)
	if err != nil {
		return math.NaN(), err
	}
	res, err := s.Simulate(ctx)
	if err != nil {
		return math.NaN(), err
	}
	m, err := metrics.Parse(obj.Metric)
	if err != nil {
		return math.NaN(), err
	}
	vals, err := metrics.Evaluate(res, obj.Series, m)
	if err != nil {
		return math.NaN(), err
	}
	return vals[m.Name()], nil
}

// WithParams copies m with the equations of the named primitives replaced
// by constants. Names match ids first, then display names.
func WithParams(m *model.Model, params map[string]float64) *model.Model {
	out := *m
	out.Primitives = make([]*model.Primitive, len(m.Primitives))
	for i, p := range m.Primitives {
		out.Primitives[i] = p
	}
	for name, v := range params {
		p := out.ByID(name)
		if p == nil {
			p = out.ByName(name)
		}
		if p == nil {
			continue
		}
		cp := *p
		cp.Equation = strconv.FormatFloat(v, 'g', -1, 64)
		for i, q := range out.Primitives {
			if q == p {
				out.Primitives[i] = &cp
			}
		}
	}
	return &out
}

// Range is lo, lo+step, ... up to and including hi.
func Range(lo, hi, step float64) ([]float64, error) {
	if step <= 0 || hi < lo {
		return nil, fmt.Errorf("invalid range %g..%g step %g", lo, hi, step)
	}
	n := int(math.Floor((hi-lo)/step+1e-9)) + 1
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	return out, nil
}

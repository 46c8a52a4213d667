package sim

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/eval"
	"github.com/san-kum/stockflow/internal/lang"
	"github.com/san-kum/stockflow/internal/value"
)

func (r *Run) registerHistory() {
	r.interp.Register("Delay", 2, 3, r.fixedDelay)
	r.interp.Register("PastValues", 1, 2, func(c *eval.Call) (value.Value, error) {
		xs, err := r.past(c, 0, 1)
		if err != nil {
			return value.Value{}, err
		}
		return value.List(xs...), nil
	})
	reduce := func(name string, f func([]float64) float64) {
		r.interp.Register(name, 1, 2, func(c *eval.Call) (value.Value, error) {
			xs, err := r.past(c, 0, 1)
			if err != nil {
				return value.Value{}, err
			}
			fs, err := numbers(xs)
			if err != nil {
				return value.Value{}, err
			}
			return value.Num(f(fs)), nil
		})
	}
	reduce("PastMax", func(xs []float64) float64 {
		m := math.Inf(-1)
		for _, x := range xs {
			m = math.Max(m, x)
		}
		return m
	})
	reduce("PastMin", func(xs []float64) float64 {
		m := math.Inf(1)
		for _, x := range xs {
			m = math.Min(m, x)
		}
		return m
	})
	reduce("PastMean", func(xs []float64) float64 { return stat.Mean(xs, nil) })
	reduce("PastMedian", func(xs []float64) float64 {
		s := append([]float64(nil), xs...)
		sort.Float64s(s)
		return stat.Quantile(0.5, stat.LinInterp, s, nil)
	})
	reduce("PastStdDev", func(xs []float64) float64 {
		if len(xs) < 2 {
			return 0
		}
		return stat.StdDev(xs, nil)
	})
	r.interp.Register("PastCorrelation", 2, 3, func(c *eval.Call) (value.Value, error) {
		a, err := r.past(c, 0, 2)
		if err != nil {
			return value.Value{}, err
		}
		b, err := r.past(c, 1, 2)
		if err != nil {
			return value.Value{}, err
		}
		fa, err := numbers(a)
		if err != nil {
			return value.Value{}, err
		}
		fb, err := numbers(b)
		if err != nil {
			return value.Value{}, err
		}
		n := min(len(fa), len(fb))
		if n < 2 {
			return value.Num(0), nil
		}
		return value.Num(stat.Correlation(fa[len(fa)-n:], fb[len(fb)-n:], nil)), nil
	})
}

func numbers(xs []value.Value) ([]float64, error) {
	out := make([]float64, len(xs))
	for i, x := range xs {
		f, err := value.Number(x)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// subject resolves the primitive a history function reads. It must be
// written as a [Primitive] reference.
func (r *Run) subject(c *eval.Call, i int) (*cell, error) {
	ref, ok := c.Node(i).(*lang.PrimRef)
	if !ok {
		return nil, dynamo.Errorf(dynamo.CodeArguments, "The first argument of %s must be a primitive.", c.Name)
	}
	return r.resolve(r.contextOf(c.Scope).inst, ref.Name)
}

// fixedDelay is Delay([X], delay[, init]): the value X had delay time
// units ago, or init before the run started.
func (r *Run) fixedDelay(c *eval.Call) (value.Value, error) {
	src, err := r.subject(c, 0)
	if err != nil {
		return value.Value{}, err
	}
	dv, err := c.Arg(1)
	if err != nil {
		return value.Value{}, err
	}
	d, err := r.magnitude(dv)
	if err != nil {
		return value.Value{}, err
	}
	if d < 0 {
		return value.Value{}, dynamo.Errorf(dynamo.CodeSSD, "The delay of Delay cannot be negative (got %g).", d)
	}
	if d == 0 {
		return r.sampleValue(src)
	}
	target := r.t - d
	eps := 1e-9 * math.Max(1, math.Abs(target))
	if target < r.sim.ts.Start-eps {
		if c.Has(2) {
			return c.Arg(2)
		}
		if len(src.history) > 0 {
			return src.history[0].v, nil
		}
		return r.sampleValue(src)
	}
	h := src.history
	i := sort.Search(len(h), func(i int) bool { return h[i].t > target+eps })
	if i == 0 {
		return r.sampleValue(src)
	}
	return h[i-1].v, nil
}

// past collects the samples of the subject at argument i within the
// optional period at argument p, ending with the current value.
func (r *Run) past(c *eval.Call, i, p int) ([]value.Value, error) {
	src, err := r.subject(c, i)
	if err != nil {
		return nil, err
	}
	from := math.Inf(-1)
	if c.Has(p) {
		pv, err := c.Arg(p)
		if err != nil {
			return nil, err
		}
		d, err := r.magnitude(pv)
		if err != nil {
			return nil, err
		}
		from = r.t - d - 1e-9*math.Max(1, d)
	}
	var out []value.Value
	for _, s := range src.history {
		if s.t >= from && s.t < r.t {
			out = append(out, s.v)
		}
	}
	if !src.busy {
		v, err := r.sampleValue(src)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

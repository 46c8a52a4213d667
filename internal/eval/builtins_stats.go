package eval

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/units"
	"github.com/san-kum/stockflow/internal/value"
)

// flatten expands nested vectors into their leaves.
func flatten(vals []value.Value) []value.Value {
	var out []value.Value
	for _, v := range vals {
		if v.Kind == value.KindVector {
			out = append(out, flatten(v.Vector().Items)...)
			continue
		}
		out = append(out, v)
	}
	return out
}

// spread reads either a single vector argument or a list of scalars.
func spread(c *Call) ([]value.Value, error) {
	args, err := c.Args()
	if err != nil {
		return nil, err
	}
	return flatten(args), nil
}

// magnitudes converts every value into the units of the first one.
func magnitudes(vals []value.Value) ([]float64, *units.Unit, error) {
	out := make([]float64, len(vals))
	var u *units.Unit
	for i, v := range vals {
		f, err := value.Number(v)
		if err != nil {
			return nil, nil, err
		}
		if i == 0 {
			u = v.Unit()
			out[i] = f
			continue
		}
		if units.IsUnitless(u) != units.IsUnitless(v.Unit()) {
			return nil, nil, dynamo.Errorf(dynamo.CodeUnits, "Incompatible units: %s and %s.", u, v.Unit())
		}
		k, ok := units.ConversionFactor(v.Unit(), u)
		if !ok {
			return nil, nil, dynamo.Errorf(dynamo.CodeUnits, "Incompatible units: %s and %s.", u, v.Unit())
		}
		out[i] = f * k
	}
	return out, u, nil
}

func statFn(in *Interp, name string, min int, keepUnits bool, f func([]float64) (float64, error)) {
	in.Register(name, min, -1, func(c *Call) (value.Value, error) {
		vals, err := spread(c)
		if err != nil {
			return value.Value{}, err
		}
		xs, u, err := magnitudes(vals)
		if err != nil {
			return value.Value{}, err
		}
		r, err := f(xs)
		if err != nil {
			return value.Value{}, err
		}
		if keepUnits {
			return value.NumU(r, u), nil
		}
		return value.Num(r), nil
	})
}

func needValues(name string, xs []float64, n int) error {
	if len(xs) < n {
		return argError("%s needs at least %d values, got %d.", name, n, len(xs))
	}
	return nil
}

func registerStats(in *Interp) {
	statFn(in, "Sum", 0, true, func(xs []float64) (float64, error) {
		s := 0.0
		for _, x := range xs {
			s += x
		}
		return s, nil
	})
	statFn(in, "Product", 0, false, func(xs []float64) (float64, error) {
		p := 1.0
		for _, x := range xs {
			p *= x
		}
		return p, nil
	})
	statFn(in, "Max", 1, true, func(xs []float64) (float64, error) {
		if err := needValues("Max", xs, 1); err != nil {
			return 0, err
		}
		m := math.Inf(-1)
		for _, x := range xs {
			m = math.Max(m, x)
		}
		return m, nil
	})
	statFn(in, "Min", 1, true, func(xs []float64) (float64, error) {
		if err := needValues("Min", xs, 1); err != nil {
			return 0, err
		}
		m := math.Inf(1)
		for _, x := range xs {
			m = math.Min(m, x)
		}
		return m, nil
	})
	statFn(in, "Mean", 1, true, func(xs []float64) (float64, error) {
		if err := needValues("Mean", xs, 1); err != nil {
			return 0, err
		}
		return mean(xs), nil
	})
	statFn(in, "Median", 1, true, func(xs []float64) (float64, error) {
		if err := needValues("Median", xs, 1); err != nil {
			return 0, err
		}
		return median(xs), nil
	})
	statFn(in, "StdDev", 1, true, func(xs []float64) (float64, error) {
		if err := needValues("StdDev", xs, 2); err != nil {
			return 0, err
		}
		return stdDev(xs), nil
	})

	in.Register("Count", 1, -1, func(c *Call) (value.Value, error) {
		if c.Len() == 1 {
			v, err := c.Arg(0)
			if err != nil {
				return value.Value{}, err
			}
			if v.Kind == value.KindVector {
				return value.Num(float64(v.Vector().Len())), nil
			}
		}
		return value.Num(float64(c.Len())), nil
	})

	in.Register("Correlation", 2, 2, func(c *Call) (value.Value, error) {
		a, err := c.Vector(0)
		if err != nil {
			return value.Value{}, err
		}
		b, err := c.Vector(1)
		if err != nil {
			return value.Value{}, err
		}
		xs, _, err := magnitudes(flatten(a.Items))
		if err != nil {
			return value.Value{}, err
		}
		ys, _, err := magnitudes(flatten(b.Items))
		if err != nil {
			return value.Value{}, err
		}
		if len(xs) != len(ys) {
			return value.Value{}, argError("Correlation needs vectors of equal length (%d and %d).", len(xs), len(ys))
		}
		if err := needValues("Correlation", xs, 2); err != nil {
			return value.Value{}, err
		}
		return value.Num(correlation(xs, ys)), nil
	})
}

func mean(xs []float64) float64 { return stat.Mean(xs, nil) }

// median averages the two middle values of an even-length sample.
func median(xs []float64) float64 {
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// stdDev is the sample standard deviation.
func stdDev(xs []float64) float64 { return stat.StdDev(xs, nil) }

func correlation(xs, ys []float64) float64 { return stat.Correlation(xs, ys, nil) }

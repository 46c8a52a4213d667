package eval

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/san-kum/stockflow/internal/value"
)

type distribution interface {
	Prob(x float64) float64
	CDF(x float64) float64
	Rand() float64
}

type quantiler interface {
	Quantile(p float64) float64
}

// distSpec describes a parametrized family. defaults holds one entry per
// parameter; NaN marks a required one.
type distSpec struct {
	name     string
	defaults []float64
	build    func(p []float64, src rand.Source) (distribution, error)
	discrete bool
}

var required = math.NaN()

func positive(name string, xs ...float64) error {
	for _, x := range xs {
		if !(x > 0) {
			return argError("%s parameters must be positive, got %g.", name, x)
		}
	}
	return nil
}

var distributions = []distSpec{
	{name: "Normal", defaults: []float64{0, 1}, build: func(p []float64, src rand.Source) (distribution, error) {
		if err := positive("Normal", p[1]); err != nil {
			return nil, err
		}
		return distuv.Normal{Mu: p[0], Sigma: p[1], Src: src}, nil
	}},
	{name: "Lognormal", defaults: []float64{0, 1}, build: func(p []float64, src rand.Source) (distribution, error) {
		if err := positive("Lognormal", p[1]); err != nil {
			return nil, err
		}
		return distuv.LogNormal{Mu: p[0], Sigma: p[1], Src: src}, nil
	}},
	{name: "t", defaults: []float64{required}, build: func(p []float64, src rand.Source) (distribution, error) {
		if err := positive("t", p[0]); err != nil {
			return nil, err
		}
		return distuv.StudentsT{Mu: 0, Sigma: 1, Nu: p[0], Src: src}, nil
	}},
	{name: "F", defaults: []float64{required, required}, build: func(p []float64, src rand.Source) (distribution, error) {
		if err := positive("F", p[0], p[1]); err != nil {
			return nil, err
		}
		return distuv.F{D1: p[0], D2: p[1], Src: src}, nil
	}},
	{name: "ChiSquared", defaults: []float64{required}, build: func(p []float64, src rand.Source) (distribution, error) {
		if err := positive("ChiSquared", p[0]); err != nil {
			return nil, err
		}
		return distuv.ChiSquared{K: p[0], Src: src}, nil
	}},
	{name: "Exponential", defaults: []float64{1}, build: func(p []float64, src rand.Source) (distribution, error) {
		if err := positive("Exponential", p[0]); err != nil {
			return nil, err
		}
		return distuv.Exponential{Rate: p[0], Src: src}, nil
	}},
	{name: "Poisson", defaults: []float64{required}, discrete: true, build: func(p []float64, src rand.Source) (distribution, error) {
		if err := positive("Poisson", p[0]); err != nil {
			return nil, err
		}
		return distuv.Poisson{Lambda: p[0], Src: src}, nil
	}},
	{name: "Binomial", defaults: []float64{required, 0.5}, discrete: true, build: func(p []float64, src rand.Source) (distribution, error) {
		if p[0] < 0 || p[0] != math.Trunc(p[0]) || p[1] < 0 || p[1] > 1 {
			return nil, argError("Binomial needs a whole number of trials and a probability in [0, 1].")
		}
		return distuv.Binomial{N: p[0], P: p[1], Src: src}, nil
	}},
	{name: "Beta", defaults: []float64{required, required}, build: func(p []float64, src rand.Source) (distribution, error) {
		if err := positive("Beta", p[0], p[1]); err != nil {
			return nil, err
		}
		return distuv.Beta{Alpha: p[0], Beta: p[1], Src: src}, nil
	}},
	{name: "Gamma", defaults: []float64{required, 1}, build: func(p []float64, src rand.Source) (distribution, error) {
		if err := positive("Gamma", p[0], p[1]); err != nil {
			return nil, err
		}
		return distuv.Gamma{Alpha: p[0], Beta: p[1], Src: src}, nil
	}},
	{name: "Triangular", defaults: []float64{required, required, required}, build: func(p []float64, src rand.Source) (distribution, error) {
		lo, hi, peak := p[0], p[1], p[2]
		if !(lo < hi) || peak < lo || peak > hi {
			return nil, argError("Triangular needs min < max and min <= peak <= max.")
		}
		return distuv.NewTriangle(lo, hi, peak, src), nil
	}},
}

// params reads the distribution parameters starting at argument offset.
func (d distSpec) params(c *Call, offset int) ([]float64, error) {
	if c.Len()-offset > len(d.defaults) {
		return nil, argError("%s takes at most %d arguments.", c.Name, offset+len(d.defaults))
	}
	p := make([]float64, len(d.defaults))
	for i, def := range d.defaults {
		if !c.Has(offset + i) {
			if math.IsNaN(def) {
				return nil, argError("%s is missing parameter %d.", c.Name, offset+i+1)
			}
			p[i] = def
			continue
		}
		f, err := c.Number(offset + i)
		if err != nil {
			return nil, err
		}
		p[i] = f
	}
	return p, nil
}

func registerDistributions(in *Interp) {
	for _, d := range distributions {
		n := len(d.defaults)
		build := func(c *Call, offset int) (distribution, error) {
			p, err := d.params(c, offset)
			if err != nil {
				return nil, err
			}
			return d.build(p, in.rng)
		}
		pointwise := func(f func(distribution, float64) (float64, error)) Builtin {
			return func(c *Call) (value.Value, error) {
				dist, err := build(c, 1)
				if err != nil {
					return value.Value{}, err
				}
				x, err := c.Arg(0)
				if err != nil {
					return value.Value{}, err
				}
				var ferr error
				out, err := mapNumber(x, false, func(v float64) float64 {
					r, err := f(dist, v)
					if err != nil && ferr == nil {
						ferr = err
					}
					return r
				})
				if err != nil {
					return value.Value{}, err
				}
				return out, ferr
			}
		}

		density := "PDF"
		if d.discrete {
			density = "PMF"
		}
		in.Register(density+d.name, 1, 1+n, pointwise(func(dist distribution, x float64) (float64, error) {
			return dist.Prob(x), nil
		}))
		in.Register("CDF"+d.name, 1, 1+n, pointwise(func(dist distribution, x float64) (float64, error) {
			return dist.CDF(x), nil
		}))
		if !d.discrete {
			in.Register("Inv"+d.name, 1, 1+n, pointwise(func(dist distribution, p float64) (float64, error) {
				if p < 0 || p > 1 {
					return 0, argError("Probabilities must be in [0, 1], got %g.", p)
				}
				return quantile(dist, p), nil
			}))
		}
		in.Register("Rand"+d.name, 0, n, func(c *Call) (value.Value, error) {
			dist, err := build(c, 0)
			if err != nil {
				return value.Value{}, err
			}
			return value.Num(dist.Rand()), nil
		})
	}

	// Short names for the common samplers.
	in.Register("RandExp", 0, 1, func(c *Call) (value.Value, error) {
		rate, err := c.NumberOr(0, 1)
		if err != nil {
			return value.Value{}, err
		}
		if err := positive("RandExp", rate); err != nil {
			return value.Value{}, err
		}
		return value.Num(distuv.Exponential{Rate: rate, Src: in.rng}.Rand()), nil
	})

	in.Register("Rand", 0, 2, func(c *Call) (value.Value, error) {
		lo, err := c.NumberOr(0, 0)
		if err != nil {
			return value.Value{}, err
		}
		hi, err := c.NumberOr(1, 1)
		if err != nil {
			return value.Value{}, err
		}
		return value.Num(lo + (hi-lo)*in.rng.Float64()), nil
	})

	in.Register("RandBoolean", 0, 1, func(c *Call) (value.Value, error) {
		p, err := c.NumberOr(0, 0.5)
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool(in.rng.Float64() < p), nil
	})

	// RandLognormal is parametrized by the mean and standard deviation of
	// the distribution itself rather than of its logarithm.
	in.Register("RandLognormal", 2, 2, func(c *Call) (value.Value, error) {
		m, err := c.Number(0)
		if err != nil {
			return value.Value{}, err
		}
		sd, err := c.Number(1)
		if err != nil {
			return value.Value{}, err
		}
		if err := positive("RandLognormal", m, sd); err != nil {
			return value.Value{}, err
		}
		s2 := math.Log(1 + sd*sd/(m*m))
		d := distuv.LogNormal{Mu: math.Log(m) - s2/2, Sigma: math.Sqrt(s2), Src: in.rng}
		return value.Num(d.Rand()), nil
	})

	in.Register("RandDist", 2, 2, func(c *Call) (value.Value, error) {
		xv, err := c.Vector(0)
		if err != nil {
			return value.Value{}, err
		}
		yv, err := c.Vector(1)
		if err != nil {
			return value.Value{}, err
		}
		xs, _, err := magnitudes(xv.Items)
		if err != nil {
			return value.Value{}, err
		}
		ys, _, err := magnitudes(yv.Items)
		if err != nil {
			return value.Value{}, err
		}
		x, err := samplePiecewise(xs, ys, in.rng.Float64())
		if err != nil {
			return value.Value{}, err
		}
		return value.Num(x), nil
	})

	in.Register("SetRandSeed", 1, 1, func(c *Call) (value.Value, error) {
		s, err := c.Number(0)
		if err != nil {
			return value.Value{}, err
		}
		in.Seed(uint64(int64(s)))
		return value.Num(s), nil
	})
}

// quantile inverts a CDF, by bisection when the family has no closed form.
func quantile(d distribution, p float64) float64 {
	if q, ok := d.(quantiler); ok {
		return q.Quantile(p)
	}
	if p == 0 {
		return 0
	}
	if p == 1 {
		return math.Inf(1)
	}
	lo, hi := 0.0, 1.0
	for d.CDF(hi) < p {
		hi *= 2
	}
	for i := 0; i < 200 && hi-lo > 1e-12*math.Max(1, hi); i++ {
		mid := (lo + hi) / 2
		if d.CDF(mid) < p {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

// samplePiecewise draws from the density that interpolates linearly between
// the points (xs[i], ys[i]), using u in [0, 1).
func samplePiecewise(xs, ys []float64, u float64) (float64, error) {
	if len(xs) != len(ys) || len(xs) < 2 {
		return 0, argError("RandDist needs two vectors of equal length with at least two points.")
	}
	idx := make([]int, len(xs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })
	px := make([]float64, len(xs))
	py := make([]float64, len(xs))
	for i, j := range idx {
		px[i], py[i] = xs[j], ys[j]
		if py[i] < 0 {
			return 0, argError("RandDist densities cannot be negative.")
		}
	}
	areas := make([]float64, len(px)-1)
	total := 0.0
	for i := range areas {
		areas[i] = (px[i+1] - px[i]) * (py[i] + py[i+1]) / 2
		total += areas[i]
	}
	if total <= 0 {
		return 0, argError("RandDist needs a positive total density.")
	}
	target := u * total
	for i, a := range areas {
		if target > a && i < len(areas)-1 {
			target -= a
			continue
		}
		// Solve the trapezoid area from px[i] for the offset w.
		w := px[i+1] - px[i]
		if w == 0 {
			return px[i], nil
		}
		slope := (py[i+1] - py[i]) / w
		if math.Abs(slope) < 1e-15 {
			return px[i] + target/py[i], nil
		}
		disc := py[i]*py[i] + 2*slope*target
		return px[i] + (-py[i]+math.Sqrt(math.Max(disc, 0)))/slope, nil
	}
	return px[len(px)-1], nil
}

package sim

import (
	"math"

	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/eval"
	"github.com/san-kum/stockflow/internal/value"
)

func (r *Run) registerBuiltins() {
	r.registerTime()
	r.registerSSD()
	r.registerHistory()
	r.registerAgents()
}

func (r *Run) timeValue(x float64) value.Value {
	return value.NumU(x, r.sim.timeUnit)
}

func (r *Run) registerTime() {
	ts := r.sim.ts
	constant := func(name string, f func() float64) {
		r.interp.Register(name, 0, 0, func(*eval.Call) (value.Value, error) {
			return r.timeValue(f()), nil
		})
	}
	constant("Time", func() float64 { return r.t })
	constant("TimeStep", func() float64 { return r.sim.root.dt })
	constant("TimeStart", func() float64 { return ts.Start })
	constant("TimeLength", func() float64 { return ts.Length })
	constant("TimeEnd", func() float64 { return ts.End() })

	for _, name := range []string{"Seconds", "Minutes", "Hours", "Days", "Weeks", "Months", "Years"} {
		u := r.sim.registry.MustParse(name)
		r.interp.Register(name, 0, 0, func(*eval.Call) (value.Value, error) {
			v, err := value.Convert(r.timeValue(r.t), u)
			if err != nil {
				return value.Value{}, err
			}
			return v.WithoutUnits(), nil
		})
	}

	r.interp.Register("Step", 1, 2, func(c *eval.Call) (value.Value, error) {
		start, err := r.timeArg(c, 0)
		if err != nil {
			return value.Value{}, err
		}
		return r.height(c, 1, r.t >= start-r.eps())
	})
	r.interp.Register("Pulse", 1, 4, func(c *eval.Call) (value.Value, error) {
		start, err := r.timeArg(c, 0)
		if err != nil {
			return value.Value{}, err
		}
		width, repeat := 0.0, 0.0
		if c.Has(2) {
			if width, err = r.timeArg(c, 2); err != nil {
				return value.Value{}, err
			}
		}
		if c.Has(3) {
			if repeat, err = r.timeArg(c, 3); err != nil {
				return value.Value{}, err
			}
		}
		if width < 0 || repeat < 0 {
			return value.Value{}, dynamo.Errorf(dynamo.CodeArguments, "Pulse width and repeat cannot be negative.")
		}
		on := false
		if r.t >= start-r.eps() {
			at := start
			if repeat > 0 {
				at += math.Floor((r.t-start+r.eps())/repeat) * repeat
			}
			on = r.t < at+math.Max(width, r.sim.tick)-r.eps()
		}
		return r.height(c, 1, on)
	})
	r.interp.Register("Ramp", 2, 3, func(c *eval.Call) (value.Value, error) {
		start, err := r.timeArg(c, 0)
		if err != nil {
			return value.Value{}, err
		}
		finish, err := r.timeArg(c, 1)
		if err != nil {
			return value.Value{}, err
		}
		frac := 0.0
		switch {
		case r.t >= finish:
			frac = 1
		case r.t > start:
			frac = (r.t - start) / (finish - start)
		}
		h := value.Num(1)
		if c.Has(2) {
			if h, err = c.Arg(2); err != nil {
				return value.Value{}, err
			}
		}
		return scale(h, frac)
	})
	r.interp.Register("Seasonal", 0, 1, func(c *eval.Call) (value.Value, error) {
		years := r.sim.registry.MustParse("years")
		peak := 0.0
		if c.Has(0) {
			p, err := r.timeArg(c, 0)
			if err != nil {
				return value.Value{}, err
			}
			peak = p
		}
		v, err := value.Convert(r.timeValue(r.t-peak), years)
		if err != nil {
			return value.Value{}, err
		}
		return value.Num(math.Cos(2 * math.Pi * v.Float())), nil
	})

	r.interp.Register("Stop", 0, 0, func(*eval.Call) (value.Value, error) {
		return value.Value{}, dynamo.ErrStopped
	})
	r.interp.Register("Pause", 0, 0, func(*eval.Call) (value.Value, error) {
		r.pause = true
		return value.Num(0), nil
	})
}

func (r *Run) eps() float64 {
	return 1e-9 * r.sim.tick
}

// timeArg reads argument i as a duration or instant in model time units.
func (r *Run) timeArg(c *eval.Call, i int) (float64, error) {
	v, err := c.Arg(i)
	if err != nil {
		return 0, err
	}
	return r.magnitude(v)
}

// height returns argument i (default 1) when on, else zero in its units.
func (r *Run) height(c *eval.Call, i int, on bool) (value.Value, error) {
	h := value.Num(1)
	if c.Has(i) {
		var err error
		if h, err = c.Arg(i); err != nil {
			return value.Value{}, err
		}
	}
	if on {
		return h, nil
	}
	return scale(h, 0)
}

package sim

import (
	"math"

	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/integrators"
	"github.com/san-kum/stockflow/internal/model"
	"github.com/san-kum/stockflow/internal/units"
	"github.com/san-kum/stockflow/internal/value"
)

// batch is material on a conveyor belt. It entered during [start,
// start+span) and matures linearly over the same span once the delay has
// passed.
type batch struct {
	start    float64
	span     float64
	amount   value.Value
	released float64
}

func axpy(acc, k value.Value, a float64) (value.Value, error) {
	d, err := value.Binary(value.OpMul, k, value.Num(a))
	if err != nil {
		return value.Value{}, err
	}
	return value.Binary(value.OpAdd, acc, d)
}

func scale(v value.Value, a float64) (value.Value, error) {
	return value.Binary(value.OpMul, v, value.Num(a))
}

// initStock seeds a stock from its equation on first use.
func (r *Run) initStock(c *cell) error {
	if c.ready {
		return nil
	}
	if c.busy {
		return dynamo.Errorf(dynamo.CodeCircular, "Circular equation loop identified including the primitives: %s", c.rec.name)
	}
	c.busy = true
	defer func() { c.busy = false }()
	v, err := r.evalIn(c, c.rec.eq)
	if err == nil {
		v, err = r.conform(c, v)
	}
	if err == nil && c.rec.p.NonNegative {
		v, err = mapFloats(v, func(_ int, x float64) float64 { return math.Max(x, 0) })
	}
	if err != nil {
		return attribute(err, c.rec)
	}
	c.level, c.stage, c.ready = v, v, true
	return nil
}

// stockValue is the level seen by equations. Conveyors include the material
// still on the belt.
func (r *Run) stockValue(c *cell) (value.Value, error) {
	if err := r.initStock(c); err != nil {
		return value.Value{}, err
	}
	v := c.stage
	for _, b := range c.belt {
		rest, err := scale(b.amount, 1-b.released)
		if err == nil {
			v, err = value.Binary(value.OpAdd, v, rest)
		}
		if err != nil {
			return value.Value{}, attribute(err, c.rec)
		}
	}
	return v, nil
}

// tick advances the clock by one tick, integrating every clock due at it.
func (r *Run) tick() error {
	insts := r.instances()
	if err := r.evaluate(insts); err != nil {
		return err
	}
	var due []*clock
	for _, cl := range r.sim.clocks {
		if r.ticks%cl.every == 0 {
			due = append(due, cl)
		}
	}
	var moved []*cell
	for _, cl := range due {
		cells, err := r.integrate(cl, insts)
		if err != nil {
			return err
		}
		moved = append(moved, cells...)
	}

	r.epoch++
	if err := r.captureSSD(); err != nil {
		return err
	}
	t0 := r.t
	if err := r.commit(moved, t0); err != nil {
		return err
	}
	r.ticks++
	r.t = r.sim.ts.Start + float64(r.ticks)*r.sim.tick
	r.epoch++
	if err := r.mature(insts); err != nil {
		return err
	}
	r.epoch++
	return r.transitions()
}

// evaluate computes every non-stock primitive of insts at the current time,
// each after the primitives it reads.
func (r *Run) evaluate(insts []*instance) error {
	for _, inst := range insts {
		for _, rec := range r.sim.stepOrder {
			c := inst.cells[rec]
			if c == nil {
				continue
			}
			if _, err := r.value(c); err != nil {
				return err
			}
		}
	}
	return nil
}

// integrate computes the next level of every stock on cl. Other clocks'
// stocks are read at their committed levels.
func (r *Run) integrate(cl *clock, insts []*instance) ([]*cell, error) {
	var cells []*cell
	for _, inst := range insts {
		for _, c := range inst.order {
			if c.rec.kind != model.Stock || c.rec.clock != cl || c.rec.frozen {
				continue
			}
			if err := r.initStock(c); err != nil {
				return nil, err
			}
			c.ks, c.kIn = c.ks[:0], c.kIn[:0]
			cells = append(cells, c)
		}
	}
	if len(cells) == 0 {
		return nil, nil
	}

	tab, dt, t0 := cl.tab, cl.dt, r.t
	defer func() {
		for _, c := range cells {
			c.stage = c.level
		}
		r.t = t0
	}()
	for i := 0; i < tab.Stages(); i++ {
		if i > 0 {
			for _, c := range cells {
				st, err := integrators.Stage(tab, i, c.level, c.ks, dt, axpy)
				if err != nil {
					return nil, attribute(err, c.rec)
				}
				c.stage = st
			}
			r.t = t0 + tab.C[i]*dt
			r.epoch++
		}
		for _, c := range cells {
			net, in, err := r.derivative(c)
			if err != nil {
				return nil, err
			}
			c.ks = append(c.ks, net)
			if c.rec.p.Conveyor {
				c.kIn = append(c.kIn, in)
			}
		}
	}
	for _, c := range cells {
		next, err := integrators.Combine(c.level, c.ks, tab.B, dt, axpy)
		if err != nil {
			return nil, attribute(err, c.rec)
		}
		c.next = next
		if c.rec.p.Conveyor {
			zero, err := scale(c.kIn[0], 0)
			if err == nil {
				c.nextIn, err = integrators.Combine(zero, c.kIn, tab.B, dt, axpy)
			}
			if err != nil {
				return nil, attribute(err, c.rec)
			}
		}
	}
	return cells, nil
}

// derivative is the net change of c per unit of time at the current stage.
// For conveyors net excludes inflows, which are returned separately.
func (r *Run) derivative(c *cell) (net, in value.Value, err error) {
	if err := r.rates(c.inst); err != nil {
		return net, in, err
	}
	zero, err := scale(c.stage, 0)
	if err != nil {
		return net, in, attribute(err, c.rec)
	}
	sum := func(flows []*record) (value.Value, error) {
		acc := zero
		for _, f := range flows {
			fc := c.inst.cells[f]
			a, err := r.amount(fc, fc.rate, c)
			if err != nil {
				return value.Value{}, err
			}
			if acc, err = value.Binary(value.OpAdd, acc, a); err != nil {
				return value.Value{}, attribute(err, f)
			}
		}
		return acc, nil
	}
	if in, err = sum(c.rec.inflows); err != nil {
		return net, in, err
	}
	out, err := sum(c.rec.outflows)
	if err != nil {
		return net, in, err
	}
	if c.rec.p.Conveyor {
		net, err = value.Neg(out)
	} else {
		net, err = value.Binary(value.OpSub, in, out)
	}
	return net, in, attribute(err, c.rec)
}

// amount converts a flow rate into the quantity moved into or out of s over
// one unit of time, in s's units.
func (r *Run) amount(f *cell, rate value.Value, s *cell) (value.Value, error) {
	v := rate
	var err error
	if hasUnits(v) {
		if v, err = value.Binary(value.OpMul, v, value.NumU(1, r.sim.timeUnit)); err != nil {
			return value.Value{}, attribute(err, f.rec)
		}
	}
	if s.rec.units != nil {
		if v, err = value.Convert(v, s.rec.units); err != nil {
			return value.Value{}, attribute(err, f.rec)
		}
	}
	return v, nil
}

func hasUnits(v value.Value) bool {
	switch v.Kind {
	case value.KindNumber:
		return !units.IsUnitless(v.Unit())
	case value.KindVector:
		for _, x := range v.Vector().Items {
			if hasUnits(x) {
				return true
			}
		}
	}
	return false
}

// rates computes the rate every flow of inst actually moves at the current
// epoch. Flows draw on non-negative stocks in declaration order; a flow
// asking for more than the remaining balance is scaled down elementwise.
func (r *Run) rates(inst *instance) error {
	if inst.rated == r.epoch {
		return nil
	}
	bal := map[*cell][]float64{}
	for _, f := range inst.order {
		if f.rec.kind != model.Flow {
			continue
		}
		rate, err := r.value(f)
		if err != nil {
			return err
		}
		if s := r.endpoint(inst, f.rec.from); s != nil {
			if rate, err = r.limit(f, rate, s, 1, bal); err != nil {
				return err
			}
		}
		if s := r.endpoint(inst, f.rec.to); s != nil {
			if rate, err = r.limit(f, rate, s, -1, bal); err != nil {
				return err
			}
		}
		f.rate = rate
	}
	inst.rated = r.epoch
	return nil
}

// endpoint is the non-negative stock cell rec names in inst, or nil.
func (r *Run) endpoint(inst *instance, rec *record) *cell {
	if rec == nil || !rec.p.NonNegative || rec.frozen {
		return nil
	}
	return inst.cells[rec]
}

// limit caps the part of rate that drains s. sign is +1 when s is the
// source of positive rates, -1 when negative rates drain it.
func (r *Run) limit(f *cell, rate value.Value, s *cell, sign float64, bal map[*cell][]float64) (value.Value, error) {
	amt, err := r.amount(f, rate, s)
	if err != nil {
		return value.Value{}, err
	}
	b, ok := bal[s]
	if !ok {
		if err := r.initStock(s); err != nil {
			return value.Value{}, err
		}
		b = leaves(s.stage)
		bal[s] = b
	}
	if len(b) == 0 {
		return rate, nil
	}
	dt := s.rec.clock.dt
	am := leaves(amt)
	factors := make([]float64, len(am))
	changed := false
	for i, a := range am {
		factors[i] = 1
		draw := sign * a * dt
		if draw <= 0 {
			continue
		}
		avail := b[0]
		switch {
		case len(b) == len(am):
			avail = b[i]
		default:
			for _, x := range b {
				avail = math.Min(avail, x)
			}
		}
		avail = math.Max(avail, 0)
		if draw > avail {
			factors[i] = avail / draw
			draw = avail
			changed = true
		}
		if len(b) == len(am) {
			b[i] -= draw
		} else {
			for j := range b {
				b[j] -= draw
			}
		}
	}
	if !changed {
		return rate, nil
	}
	return mapFloats(rate, func(i int, x float64) float64 {
		if i < len(factors) {
			return x * factors[i]
		}
		return x
	})
}

// commit moves the integrated stocks to their next levels and loads conveyor
// belts.
func (r *Run) commit(cells []*cell, t0 float64) error {
	for _, c := range cells {
		v := c.next
		var err error
		if c.rec.p.NonNegative {
			if v, err = mapFloats(v, func(_ int, x float64) float64 { return math.Max(x, 0) }); err != nil {
				return attribute(err, c.rec)
			}
		}
		if err := r.checkConstraints(c, v); err != nil {
			return attribute(err, c.rec)
		}
		c.level, c.stage = v, v
		if c.rec.p.Conveyor {
			c.belt = append(c.belt, batch{start: t0, span: c.rec.clock.dt, amount: c.nextIn})
		}
	}
	return nil
}

// mature releases conveyor material whose delay has elapsed. The delay is
// read at release time, so changing it reschedules material still in
// transit without creating or losing any.
func (r *Run) mature(insts []*instance) error {
	for _, inst := range insts {
		for _, c := range inst.order {
			if !c.rec.p.Conveyor || c.rec.kind != model.Stock || len(c.belt) == 0 {
				continue
			}
			dv, err := r.evalIn(c, c.rec.delay)
			if err != nil {
				return attribute(err, c.rec)
			}
			d, err := r.magnitude(dv)
			if err != nil {
				return attribute(err, c.rec)
			}
			if d < 0 {
				return attribute(dynamo.Errorf(dynamo.CodeConfig, "The delay of conveyor %s cannot be negative (got %g).", c.label(), d), c.rec)
			}
			kept := c.belt[:0]
			for _, b := range c.belt {
				frac := (r.t - (b.start + d)) / b.span
				frac = math.Min(math.Max(frac, 0), 1)
				if frac > 1-1e-9 {
					frac = 1
				}
				if frac > b.released {
					part, err := scale(b.amount, frac-b.released)
					if err == nil {
						c.level, err = value.Binary(value.OpAdd, c.level, part)
					}
					if err != nil {
						return attribute(err, c.rec)
					}
					b.released = frac
				}
				if b.released < 1 {
					kept = append(kept, b)
				}
			}
			c.belt = kept
			c.stage = c.level
		}
	}
	return nil
}

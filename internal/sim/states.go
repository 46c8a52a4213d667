package sim

import (
	"math"

	"go.uber.org/zap"

	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/model"
	"github.com/san-kum/stockflow/internal/value"
)

// maxPasses bounds the cascade of transitions within one instant.
const maxPasses = 1000

// transitions fires every transition and action due at the current time.
// Firing can make further transitions eligible at the same instant, so
// passes repeat until nothing fires. A transition with a source firing twice
// in one instant is a loop.
func (r *Run) transitions() error {
	for _, inst := range r.instances() {
		for _, c := range inst.order {
			c.fired = false
		}
	}
	for pass := 0; ; pass++ {
		if pass >= maxPasses {
			return dynamo.Errorf(dynamo.CodeTransitionLoop, "Transitions kept firing at time %g.", r.t)
		}
		moved := false
		for _, inst := range r.instances() {
			for _, c := range inst.order {
				if inst.agent != nil && inst.agent.removed {
					break
				}
				if c.rec.kind != model.Transition && c.rec.kind != model.Action {
					continue
				}
				fired, err := r.consider(c, pass)
				if err != nil {
					return attribute(err, c.rec)
				}
				if fired {
					moved = true
					r.epoch++
				}
			}
		}
		if !moved {
			return nil
		}
	}
}

// consider arms c when it becomes eligible and fires it when its trigger
// is met.
func (r *Run) consider(c *cell, pass int) (bool, error) {
	rec := c.rec
	var src *cell
	if rec.from != nil {
		src = c.inst.cells[rec.from]
		if err := r.initState(src); err != nil {
			return false, err
		}
		if !src.active {
			c.armed = false
			return false, nil
		}
	}
	if c.spent {
		return false, nil
	}
	if c.fired && rec.from == nil {
		return false, nil
	}
	fresh := !c.armed
	if fresh {
		c.armed = true
		c.armedAt = r.t
		if src != nil {
			c.armedAt = src.since
		}
	}
	if rec.trigger != model.Condition && (fresh || rec.p.Recalculate) {
		v, err := r.evalIn(c, rec.eq)
		if err != nil {
			return false, err
		}
		c.trig = v
	}

	due, err := r.due(c, pass)
	if err != nil || !due {
		return false, err
	}
	if c.fired {
		return false, dynamo.Errorf(dynamo.CodeTransitionLoop, "A fully active transition loop was detected at time %g.", r.t)
	}
	return true, r.fire(c, src)
}

// due decides whether an armed transition fires now.
func (r *Run) due(c *cell, pass int) (bool, error) {
	switch c.rec.trigger {
	case model.Condition:
		v, err := r.evalIn(c, c.rec.eq)
		if err != nil {
			return false, err
		}
		return value.Truthy(v)
	case model.Probability:
		p, err := value.Number(c.trig)
		if err != nil {
			return false, err
		}
		if p < 0 || p > 1 {
			return false, dynamo.Errorf(dynamo.CodeConfig, "The probability of %s must be between 0 and 1 (got %g).", c.label(), p)
		}
		if pass > 0 || c.armedAt >= r.t {
			return false, nil
		}
		chance := 1 - math.Pow(1-p, c.rec.clock.dt)
		return r.interp.Rand().Float64() < chance, nil
	}
	d, err := r.magnitude(c.trig)
	if err != nil {
		return false, err
	}
	if d < 0 {
		return false, dynamo.Errorf(dynamo.CodeConfig, "The timeout of %s cannot be negative (got %g).", c.label(), d)
	}
	return r.t >= c.armedAt+d-1e-9*math.Max(1, math.Abs(d)), nil
}

func (r *Run) fire(c *cell, src *cell) error {
	rec := c.rec
	c.fired, c.armed = true, false
	if rec.kind == model.Action {
		if _, err := r.evalScoped(&evalCtx{inst: c.inst, cell: c}, rec.action, nil); err != nil {
			return err
		}
	} else {
		if src != nil {
			src.active = false
		}
		if rec.to != nil {
			dst := c.inst.cells[rec.to]
			if err := r.initState(dst); err != nil {
				return err
			}
			dst.active, dst.since = true, r.t
		}
	}
	if rec.from == nil {
		if rec.p.Repeat {
			c.armed, c.armedAt = true, r.t
		} else {
			c.spent = true
		}
	}
	r.log.Debug("fired", zap.String("primitive", rec.name), zap.Float64("time", r.t))
	return nil
}

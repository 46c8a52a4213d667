package sim

import (
	"fmt"
	"math"

	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/eval"
	"github.com/san-kum/stockflow/internal/lang"
	"github.com/san-kum/stockflow/internal/model"
	"github.com/san-kum/stockflow/internal/units"
	"github.com/san-kum/stockflow/internal/value"
)

// instance holds the cells of one scope: the top level of the model or one
// agent.
type instance struct {
	agent *Agent
	base  *agentBase
	scope *eval.Scope
	cells map[*record]*cell
	order []*cell
	rated int
}

type sample struct {
	t float64
	v value.Value
}

// cell is the runtime state of one record in one instance.
type cell struct {
	rec  *record
	inst *instance

	val   value.Value
	stamp int
	busy  bool
	ready bool

	// flows: the rate actually moved after non-negative limits
	rate value.Value

	// stocks: level is the committed value, stage the value seen by the
	// current integration stage. Conveyor levels hold matured material only.
	level  value.Value
	stage  value.Value
	ks     []value.Value
	kIn    []value.Value
	next   value.Value
	nextIn value.Value
	belt   []batch

	// states
	active bool
	since  float64

	// transitions and actions
	armed   bool
	armedAt float64
	trig    value.Value
	spent   bool
	fired   bool

	history []sample
}

// evalCtx marks the scope of an equation with the instance it runs in and
// the cell it computes, if any.
type evalCtx struct {
	inst *instance
	cell *cell
}

func (r *Run) newInstance(base *agentBase, a *Agent) *instance {
	in := &instance{agent: a, base: base, scope: eval.NewScope(r.interp.Globals), cells: make(map[*record]*cell), rated: -1}
	recs := r.sim.records
	if base != nil {
		recs = base.records
		in.scope.Define("self", value.Obj(a))
	}
	for _, rec := range recs {
		if base == nil && rec.base != nil {
			continue
		}
		c := &cell{rec: rec, inst: in, stamp: -1}
		in.cells[rec] = c
		in.order = append(in.order, c)
	}
	return in
}

// label names a cell in messages, including its agent.
func (c *cell) label() string {
	if c.inst.agent != nil {
		return fmt.Sprintf("%s (agent %d)", c.rec.name, c.inst.agent.id)
	}
	return c.rec.name
}

// Reference resolves [Name] for the equation being evaluated in sc.
func (r *Run) Reference(sc *eval.Scope, name string) (value.Value, error) {
	c, err := r.resolve(r.contextOf(sc).inst, name)
	if err != nil {
		return value.Value{}, err
	}
	v, err := r.value(c)
	if err != nil {
		return value.Value{}, err
	}
	if v.Kind == value.KindVector {
		return value.Vec(v.Vector().Clone()), nil
	}
	return v, nil
}

// contextOf finds the frame an equation runs in: the scope's own marker,
// else the innermost equation being evaluated, else the top level.
func (r *Run) contextOf(sc *eval.Scope) *evalCtx {
	if sc != nil {
		if ctx, ok := sc.Context().(*evalCtx); ok {
			return ctx
		}
	}
	if n := len(r.stack); n > 0 {
		return r.stack[n-1]
	}
	return &evalCtx{inst: r.root}
}

// resolve maps a primitive name to a cell visible from inst.
func (r *Run) resolve(inst *instance, name string) (*cell, error) {
	rec := r.sim.lookup(name, inst.base, true)
	if rec == nil {
		return nil, dynamo.Errorf(dynamo.CodeReference, "The primitive [%s] does not exist.", name)
	}
	if rec.base != nil && rec.base != inst.base {
		return nil, dynamo.Errorf(dynamo.CodePlaceholder, "[%s] is a placeholder and cannot be used as a direct value in equations.", rec.name)
	}
	if rec.base == nil {
		return r.root.cells[rec], nil
	}
	return inst.cells[rec], nil
}

// cellIn is the cell of rec inside agent a, or at the top level for nil.
func (r *Run) cellIn(a *Agent, rec *record) *cell {
	if a == nil {
		return r.root.cells[rec]
	}
	return a.inst.cells[rec]
}

// value returns the current value of c, evaluating its equation at most
// once per epoch.
func (r *Run) value(c *cell) (value.Value, error) {
	switch c.rec.kind {
	case model.Stock:
		return r.stockValue(c)
	case model.State:
		if err := r.initState(c); err != nil {
			return value.Value{}, err
		}
		return value.Bool(c.active), nil
	case model.Agents:
		return value.Obj(r.pops[c.rec.pop]), nil
	case model.Transition, model.Action:
		return value.Value{}, dynamo.Errorf(dynamo.CodeReference, "[%s] does not have a value.", c.rec.name)
	}
	if c.stamp == r.epoch {
		return c.val, nil
	}
	if c.busy {
		return value.Value{}, dynamo.Errorf(dynamo.CodeCircular, "Circular equation loop identified including the primitives: %s", c.rec.name)
	}
	c.busy = true
	defer func() { c.busy = false }()

	v, err := r.compute(c)
	if err != nil {
		return value.Value{}, attribute(err, c.rec)
	}
	if v, err = r.conform(c, v); err != nil {
		return value.Value{}, attribute(err, c.rec)
	}
	c.val, c.stamp = v, r.epoch
	return v, nil
}

func (r *Run) compute(c *cell) (value.Value, error) {
	switch c.rec.kind {
	case model.Converter:
		return r.converter(c)
	case model.Flow:
		v, err := r.evalIn(c, c.rec.eq)
		if err != nil || !c.rec.p.NonNegative {
			return v, err
		}
		return mapFloats(v, func(_ int, x float64) float64 { return math.Max(x, 0) })
	}
	return r.evalIn(c, c.rec.eq)
}

// evalIn runs blk in a fresh frame of c's instance. An empty equation is 0.
func (r *Run) evalIn(c *cell, blk *lang.Block) (value.Value, error) {
	return r.evalScoped(&evalCtx{inst: c.inst, cell: c}, blk, nil)
}

// evalScoped runs blk for ctx with extra bindings in the frame.
func (r *Run) evalScoped(ctx *evalCtx, blk *lang.Block, extra map[string]value.Value) (value.Value, error) {
	if blk == nil {
		return value.Num(0), nil
	}
	sc := ctx.inst.scope.Child(ctx)
	for k, v := range extra {
		sc.Define(k, v)
	}
	r.stack = append(r.stack, ctx)
	defer func() { r.stack = r.stack[:len(r.stack)-1] }()
	return r.interp.Eval(blk, sc)
}

// initState seeds a state's activity from its equation on first use.
func (r *Run) initState(c *cell) error {
	if c.ready {
		return nil
	}
	if c.busy {
		return dynamo.Errorf(dynamo.CodeCircular, "Circular equation loop identified including the primitives: %s", c.rec.name)
	}
	c.busy = true
	defer func() { c.busy = false }()
	v, err := r.evalIn(c, c.rec.eq)
	if err != nil {
		return attribute(err, c.rec)
	}
	if c.active, err = value.Truthy(v); err != nil {
		return attribute(err, c.rec)
	}
	c.since, c.ready = r.t, true
	return nil
}

func (r *Run) converter(c *cell) (value.Value, error) {
	var in value.Value
	if c.rec.input == nil {
		in = value.Num(r.t)
	} else {
		ic, err := r.resolveRecord(c.inst, c.rec.input)
		if err != nil {
			return value.Value{}, err
		}
		if in, err = r.value(ic); err != nil {
			return value.Value{}, err
		}
	}
	look := c.rec.table.Interpolate
	if c.rec.discrete {
		look = c.rec.table.Discrete
	}
	return mapFloats(in.WithoutUnits(), func(_ int, x float64) float64 { return look(x) })
}

func (r *Run) resolveRecord(inst *instance, rec *record) (*cell, error) {
	if rec.base == nil {
		return r.root.cells[rec], nil
	}
	if c := inst.cells[rec]; c != nil {
		return c, nil
	}
	return nil, dynamo.Errorf(dynamo.CodePlaceholder, "[%s] is a placeholder and cannot be used as a direct value in equations.", rec.name)
}

// conform applies declared units and constraints to a computed value.
func (r *Run) conform(c *cell, v value.Value) (value.Value, error) {
	if c.rec.units != nil {
		if v.Kind == value.KindNumber || v.Kind == value.KindBool || v.Kind == value.KindVector {
			var err error
			if v, err = value.Convert(v, c.rec.units); err != nil {
				return value.Value{}, err
			}
		}
	}
	return v, r.checkConstraints(c, v)
}

func (r *Run) checkConstraints(c *cell, v value.Value) error {
	if c.rec.min == nil && c.rec.max == nil {
		return nil
	}
	for _, x := range leaves(v) {
		if c.rec.min != nil && x < *c.rec.min || c.rec.max != nil && x > *c.rec.max {
			return dynamo.Errorf(dynamo.CodeConstraint, "The value of %s (%g) is outside its allowed range [%s, %s].", c.label(), x, bound(c.rec.min, "-Infinity"), bound(c.rec.max, "Infinity"))
		}
	}
	return nil
}

func bound(b *float64, def string) string {
	if b == nil {
		return def
	}
	return fmt.Sprintf("%g", *b)
}

// mapFloats applies f to every number of v, keeping vector structure and
// units. Booleans count as 0 or 1. i is the running leaf index.
func mapFloats(v value.Value, f func(i int, x float64) float64) (value.Value, error) {
	i := 0
	var walk func(v value.Value) (value.Value, error)
	walk = func(v value.Value) (value.Value, error) {
		switch v.Kind {
		case value.KindNumber:
			out := value.NumU(f(i, v.Float()), v.Unit())
			i++
			return out, nil
		case value.KindBool:
			x := 0.0
			if v.Truth() {
				x = 1
			}
			i++
			return value.Num(f(i-1, x)), nil
		case value.KindVector:
			out, err := v.Vector().MapErr(walk)
			if err != nil {
				return value.Value{}, err
			}
			return value.Vec(out), nil
		}
		return value.Value{}, dynamo.Errorf(dynamo.CodeType, "Expected a Number, got a %s.", value.Describe(v))
	}
	return walk(v)
}

// leaves flattens the numbers of v.
func leaves(v value.Value) []float64 {
	var out []float64
	_, _ = mapFloats(v, func(_ int, x float64) float64 {
		out = append(out, x)
		return x
	})
	return out
}

// magnitude reads a duration argument in model time units.
func (r *Run) magnitude(v value.Value) (float64, error) {
	f, err := value.Number(v)
	if err != nil {
		return 0, err
	}
	if units.IsUnitless(v.Unit()) {
		return f, nil
	}
	k, ok := units.ConversionFactor(v.Unit(), r.sim.timeUnit)
	if !ok {
		return 0, dynamo.Errorf(dynamo.CodeUnits, "Expected a time, got %s.", v.Unit())
	}
	return f * k, nil
}

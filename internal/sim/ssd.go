package sim

import (
	"math"

	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/eval"
	"github.com/san-kum/stockflow/internal/lang"
	"github.com/san-kum/stockflow/internal/value"
)

// ssdKey identifies one smoothing or delay call: the same text in two
// primitives, or in two agents, keeps separate state.
type ssdKey struct {
	inst *instance
	cell *cell
	site lang.Node
}

// ssdState is a chain of first-order lag cells.
type ssdState struct {
	kind  string
	order int
	tau   float64
	cells []value.Value
	keys  []string

	// input last captured at time inputT, integrated on the next advance.
	input  value.Value
	inputT float64
	have   bool
	lastT  float64

	node  lang.Node
	scope *eval.Scope
	ctx   *evalCtx
}

func ssdError(format string, args ...any) error {
	return dynamo.Errorf(dynamo.CodeSSD, format, args...)
}

func (r *Run) registerSSD() {
	r.interp.Register("Smooth", 0, -1, func(c *eval.Call) (value.Value, error) {
		return r.smooth(c, "smooth", 2, 3, false)
	})
	r.interp.Register("SmoothN", 0, -1, func(c *eval.Call) (value.Value, error) {
		return r.smooth(c, "smoothn", 3, 4, true)
	})
	r.interp.Register("Delay1", 0, -1, func(c *eval.Call) (value.Value, error) {
		return r.smooth(c, "delay1", 2, 3, false)
	})
	r.interp.Register("Delay3", 0, -1, func(c *eval.Call) (value.Value, error) {
		return r.smooth(c, "delay3", 2, 3, false)
	})
	r.interp.Register("DelayN", 0, -1, func(c *eval.Call) (value.Value, error) {
		return r.smooth(c, "delayn", 3, 4, true)
	})
}

// ssd evaluates Smooth(x, period[, init]), SmoothN(x, period, order[, init])
// and the material delays Delay1, Delay3 and DelayN. The state advances with
// Euler once per unit of committed time using the input captured at the
// previous time.
func (r *Run) smooth(c *eval.Call, kind string, min, max int, ordered bool) (value.Value, error) {
	if c.Len() < min || c.Len() > max {
		return value.Value{}, ssdError("%s needs %d or %d arguments, got %d.", c.Name, min, max, c.Len())
	}
	period, err := c.Arg(1)
	if err != nil {
		return value.Value{}, err
	}
	tau, err := r.magnitude(period)
	if err != nil {
		return value.Value{}, err
	}
	if tau <= 0 {
		return value.Value{}, ssdError("The period of %s must be greater than 0 (got %g).", c.Name, tau)
	}
	order := 1
	switch kind {
	case "delay3":
		order = 3
	case "smoothn", "delayn":
		n, err := c.Number(2)
		if err != nil {
			return value.Value{}, err
		}
		if n != math.Trunc(n) || n < 1 {
			return value.Value{}, ssdError("The order of %s must be a positive integer (got %g).", c.Name, n)
		}
		order = int(n)
	}
	initArg := 2
	if ordered {
		initArg = 3
	}

	ctx := r.contextOf(c.Scope)
	key := ssdKey{inst: ctx.inst, cell: ctx.cell}
	if c.Site != nil {
		key.site = c.Site
	}
	st := r.ssd[key]
	now := r.now()
	if st == nil {
		x, err := c.Arg(0)
		if err != nil {
			return value.Value{}, err
		}
		seed := x
		if c.Has(initArg) {
			if seed, err = c.Arg(initArg); err != nil {
				return value.Value{}, err
			}
		}
		st = &ssdState{kind: kind, order: order, tau: tau, lastT: now, input: x, inputT: now, have: true, ctx: ctx, scope: c.Scope}
		st.node = c.Node(0)
		if seed.Kind == value.KindVector && seed.Vector().Named() {
			st.keys = append([]string(nil), seed.Vector().Keys...)
		}
		if err := st.checkKeys(x); err != nil {
			return value.Value{}, err
		}
		if err := st.seed(seed); err != nil {
			return value.Value{}, err
		}
		r.ssd[key] = st
		r.ssdList = append(r.ssdList, st)
		return st.output()
	}
	st.tau = tau
	if now > st.lastT {
		if !st.have {
			x, err := c.Arg(0)
			if err != nil {
				return value.Value{}, err
			}
			st.input = x
		}
		if err := st.advance(now - st.lastT); err != nil {
			return value.Value{}, err
		}
		st.lastT, st.have = now, false
	}
	return st.output()
}

// now is the committed simulation time, unaffected by intermediate
// integration stages.
func (r *Run) now() float64 {
	return r.sim.ts.Start + float64(r.ticks)*r.sim.tick
}

func (st *ssdState) stageTau() float64 {
	return st.tau / float64(st.order)
}

func (st *ssdState) material() bool {
	return st.kind == "delay1" || st.kind == "delay3" || st.kind == "delayn"
}

// seed fills every cell of the chain in equilibrium with v.
func (st *ssdState) seed(v value.Value) error {
	cell := v
	if st.material() {
		var err error
		if cell, err = scale(v, st.stageTau()); err != nil {
			return err
		}
	}
	st.cells = make([]value.Value, st.order)
	for i := range st.cells {
		st.cells[i] = cell
	}
	return nil
}

func (st *ssdState) output() (value.Value, error) {
	last := st.cells[len(st.cells)-1]
	if st.material() {
		return scale(last, 1/st.stageTau())
	}
	return last, nil
}

// advance integrates the chain over dt with the captured input.
func (st *ssdState) advance(dt float64) error {
	if err := st.checkKeys(st.input); err != nil {
		return err
	}
	tau := st.stageTau()
	prev := st.input
	next := make([]value.Value, len(st.cells))
	for i, y := range st.cells {
		var d value.Value
		var err error
		if st.material() {
			// inflow prev, outflow y/tau
			var out value.Value
			if out, err = scale(y, 1/tau); err == nil {
				d, err = value.Binary(value.OpSub, prev, out)
			}
			prev = out
		} else {
			if d, err = value.Binary(value.OpSub, prev, y); err == nil {
				d, err = scale(d, 1/tau)
			}
			prev = y
		}
		if err == nil {
			next[i], err = axpy(y, d, dt)
		}
		if err != nil {
			return ssdError("%v", err)
		}
	}
	st.cells = next
	return nil
}

func (st *ssdState) checkKeys(v value.Value) error {
	if st.keys == nil {
		return nil
	}
	if v.Kind != value.KindVector || !v.Vector().Named() || v.Vector().Len() != len(st.keys) {
		return ssdError("The value of %s does not have the same keys as its initial value.", st.kind)
	}
	for _, k := range st.keys {
		if v.Vector().KeyIndex(k) < 0 {
			return ssdError("The value of %s does not have the same keys as its initial value.", st.kind)
		}
	}
	return nil
}

// captureSSD evaluates the input of every smoothing or delay call at the
// current committed time, for use by the next advance.
func (r *Run) captureSSD() error {
	now := r.now()
	for _, st := range r.ssdList {
		if st.node == nil || (st.have && st.inputT == now) {
			continue
		}
		if st.ctx.inst.agent != nil && st.ctx.inst.agent.removed {
			continue
		}
		r.stack = append(r.stack, st.ctx)
		x, err := r.interp.Node(st.node, st.scope)
		r.stack = r.stack[:len(r.stack)-1]
		if err != nil {
			if st.ctx.cell != nil {
				return attribute(err, st.ctx.cell.rec)
			}
			return err
		}
		st.input, st.inputT, st.have = x, now, true
	}
	return nil
}

package sim

import (
	"math"
	"sort"

	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/eval"
	"github.com/san-kum/stockflow/internal/lang"
	"github.com/san-kum/stockflow/internal/model"
	"github.com/san-kum/stockflow/internal/value"
)

func agentError(format string, args ...any) error {
	return dynamo.Errorf(dynamo.CodeArguments, format, args...)
}

func agentList(as []*Agent) value.Value {
	items := make([]value.Value, len(as))
	for i, a := range as {
		items[i] = value.Obj(a)
	}
	return value.List(items...)
}

// population reads argument i as a population.
func (r *Run) population(c *eval.Call, i int) (*Population, error) {
	v, err := c.Arg(i)
	if err != nil {
		return nil, err
	}
	if v.Kind == value.KindObject {
		switch o := v.Object().(type) {
		case *Population:
			return o, nil
		case *Agent:
			return o.pop, nil
		}
	}
	return nil, agentError("Argument %d of %s must be a population of agents, got a %s.", i+1, c.Name, value.Describe(v))
}

// agent reads argument i as a single live agent.
func (r *Run) agent(c *eval.Call, i int) (*Agent, error) {
	v, err := c.Arg(i)
	if err != nil {
		return nil, err
	}
	if v.Kind == value.KindObject {
		if a, ok := v.Object().(*Agent); ok {
			if a.removed {
				return nil, agentError("%s was called with an agent that has been removed.", c.Name)
			}
			return a, nil
		}
	}
	return nil, agentError("Argument %d of %s must be an agent, got a %s.", i+1, c.Name, value.Describe(v))
}

// agentSet reads a population, an agent or a vector of agents. single
// reports whether a lone agent was passed.
func agentSet(v value.Value) (as []*Agent, single bool, ok bool) {
	switch v.Kind {
	case value.KindObject:
		switch o := v.Object().(type) {
		case *Population:
			return append([]*Agent(nil), o.agents...), false, true
		case *Agent:
			return []*Agent{o}, true, true
		}
	case value.KindVector:
		out := make([]*Agent, 0, v.Vector().Len())
		for _, it := range v.Vector().Items {
			a, isAgent := it.Object().(*Agent)
			if it.Kind != value.KindObject || !isAgent {
				return nil, false, false
			}
			out = append(out, a)
		}
		return out, false, true
	}
	return nil, false, false
}

func (r *Run) agents(c *eval.Call, i int) ([]*Agent, bool, error) {
	v, err := c.Arg(i)
	if err != nil {
		return nil, false, err
	}
	as, single, ok := agentSet(v)
	if !ok {
		return nil, false, agentError("Argument %d of %s must be a population or a vector of agents, got a %s.", i+1, c.Name, value.Describe(v))
	}
	return as, single, nil
}

// field resolves the [Primitive] written as argument i inside agent a.
func (r *Run) field(c *eval.Call, i int, a *Agent) (*cell, error) {
	ref, ok := c.Node(i).(*lang.PrimRef)
	if !ok {
		return nil, agentError("Argument %d of %s must be a primitive in the agents.", i+1, c.Name)
	}
	rec := a.pop.base.byName[normName(ref.Name)]
	if rec == nil {
		return nil, dynamo.Errorf(dynamo.CodeReference, "The primitive [%s] is not part of the agent %s.", ref.Name, a.pop.base.folder.Name)
	}
	return a.inst.cells[rec], nil
}

// position reads argument i as an agent's location or a two-number vector.
func (r *Run) position(c *eval.Call, i int) (float64, float64, error) {
	v, err := c.Arg(i)
	if err != nil {
		return 0, 0, err
	}
	if v.Kind == value.KindObject {
		if a, ok := v.Object().(*Agent); ok {
			return a.x, a.y, nil
		}
	}
	x, y, err := pair(v)
	if err != nil {
		return 0, 0, agentError("Argument %d of %s must be an agent or a location vector.", i+1, c.Name)
	}
	return x, y, nil
}

func location(x, y float64) value.Value {
	return value.List(value.Num(x), value.Num(y))
}

func (r *Run) registerAgents() {
	r.registerFinders()
	r.registerValues()
	r.registerNetwork()
	r.registerSpace()
	r.registerPopulation()
	r.wrapSetFns()
}

func (r *Run) registerFinders() {
	r.interp.Register("FindAll", 1, 1, func(c *eval.Call) (value.Value, error) {
		pop, err := r.population(c, 0)
		if err != nil {
			return value.Value{}, err
		}
		return agentList(pop.agents), nil
	})
	byState := func(want bool) eval.Builtin {
		return func(c *eval.Call) (value.Value, error) {
			as, _, err := r.agents(c, 0)
			if err != nil {
				return value.Value{}, err
			}
			var out []*Agent
			for _, a := range as {
				sc, err := r.field(c, 1, a)
				if err != nil {
					return value.Value{}, err
				}
				if sc.rec.kind != model.State {
					return value.Value{}, agentError("[%s] is not a state.", sc.rec.name)
				}
				if err := r.initState(sc); err != nil {
					return value.Value{}, err
				}
				if sc.active == want {
					out = append(out, a)
				}
			}
			return agentList(out), nil
		}
	}
	r.interp.Register("FindState", 2, 2, byState(true))
	r.interp.Register("FindNotState", 2, 2, byState(false))

	r.interp.Register("FindIndex", 2, 2, func(c *eval.Call) (value.Value, error) {
		pop, err := r.population(c, 0)
		if err != nil {
			return value.Value{}, err
		}
		id, err := c.Number(1)
		if err != nil {
			return value.Value{}, err
		}
		for _, a := range pop.agents {
			if float64(a.id) == id {
				return value.Obj(a), nil
			}
		}
		return value.Value{}, agentError("No agent with index %g exists in %s.", id, pop.rec.name)
	})

	r.interp.Register("FindNearby", 3, 3, func(c *eval.Call) (value.Value, error) {
		as, _, err := r.agents(c, 0)
		if err != nil {
			return value.Value{}, err
		}
		tv, _ := c.Arg(1)
		x, y, err := r.position(c, 1)
		if err != nil {
			return value.Value{}, err
		}
		d, err := c.Number(2)
		if err != nil {
			return value.Value{}, err
		}
		var out []*Agent
		for _, a := range as {
			if tv.Kind == value.KindObject && tv.Object() == value.Object(a) {
				continue
			}
			if a.pop.distance(x, y, a.x, a.y) <= d {
				out = append(out, a)
			}
		}
		return agentList(out), nil
	})
	r.interp.Register("FindNearest", 2, 3, func(c *eval.Call) (value.Value, error) {
		return r.rank(c, false)
	})
	r.interp.Register("FindFurthest", 2, 3, func(c *eval.Call) (value.Value, error) {
		return r.rank(c, true)
	})
}

// rank orders agents by distance to a target. Without a count it returns the
// single best agent; ties keep id order.
func (r *Run) rank(c *eval.Call, furthest bool) (value.Value, error) {
	as, _, err := r.agents(c, 0)
	if err != nil {
		return value.Value{}, err
	}
	tv, _ := c.Arg(1)
	x, y, err := r.position(c, 1)
	if err != nil {
		return value.Value{}, err
	}
	cands := as[:0:0]
	for _, a := range as {
		if tv.Kind == value.KindObject && tv.Object() == value.Object(a) {
			continue
		}
		cands = append(cands, a)
	}
	sort.SliceStable(cands, func(i, j int) bool {
		di := cands[i].pop.distance(x, y, cands[i].x, cands[i].y)
		dj := cands[j].pop.distance(x, y, cands[j].x, cands[j].y)
		if furthest {
			return di > dj
		}
		return di < dj
	})
	if !c.Has(2) {
		if len(cands) == 0 {
			return value.Value{}, agentError("%s found no other agents.", c.Name)
		}
		return value.Obj(cands[0]), nil
	}
	n, err := c.Number(2)
	if err != nil {
		return value.Value{}, err
	}
	k := min(max(int(n), 0), len(cands))
	return agentList(cands[:k]), nil
}

func (r *Run) registerValues() {
	r.interp.Register("Value", 2, 2, func(c *eval.Call) (value.Value, error) {
		as, single, err := r.agents(c, 0)
		if err != nil {
			return value.Value{}, err
		}
		items := make([]value.Value, len(as))
		for i, a := range as {
			fc, err := r.field(c, 1, a)
			if err != nil {
				return value.Value{}, err
			}
			if items[i], err = r.sampleValue(fc); err != nil {
				return value.Value{}, err
			}
		}
		if single {
			return items[0], nil
		}
		return value.List(items...), nil
	})
	r.interp.Register("SetValue", 3, 3, func(c *eval.Call) (value.Value, error) {
		as, _, err := r.agents(c, 0)
		if err != nil {
			return value.Value{}, err
		}
		v, err := c.Arg(2)
		if err != nil {
			return value.Value{}, err
		}
		r.epoch++
		for _, a := range as {
			fc, err := r.field(c, 1, a)
			if err != nil {
				return value.Value{}, err
			}
			if err := r.assign(fc, v); err != nil {
				return value.Value{}, err
			}
		}
		r.epoch++
		return v, nil
	})
}

func (r *Run) registerNetwork() {
	r.interp.Register("Connected", 1, 1, func(c *eval.Call) (value.Value, error) {
		a, err := r.agent(c, 0)
		if err != nil {
			return value.Value{}, err
		}
		return agentList(a.neighbors()), nil
	})
	pairwise := func(name string, min, max int, f func(c *eval.Call, a, b *Agent) error) {
		r.interp.Register(name, min, max, func(c *eval.Call) (value.Value, error) {
			a, err := r.agent(c, 0)
			if err != nil {
				return value.Value{}, err
			}
			bs, _, err := r.agents(c, 1)
			if err != nil {
				return value.Value{}, err
			}
			for _, b := range bs {
				if err := f(c, a, b); err != nil {
					return value.Value{}, err
				}
			}
			return value.Num(1), nil
		})
	}
	pairwise("Connect", 2, 3, func(c *eval.Call, a, b *Agent) error {
		w, err := c.NumberOr(2, 1)
		if err != nil {
			return err
		}
		connect(a, b, w)
		return nil
	})
	pairwise("Unconnect", 2, 2, func(_ *eval.Call, a, b *Agent) error {
		unconnect(a, b)
		return nil
	})
	pairwise("SetConnectionWeight", 3, 3, func(c *eval.Call, a, b *Agent) error {
		w, err := c.Number(2)
		if err != nil {
			return err
		}
		if _, ok := a.links[b]; !ok {
			return agentError("Agents %d and %d are not connected.", a.id, b.id)
		}
		connect(a, b, w)
		return nil
	})
	r.interp.Register("ConnectionWeight", 2, 2, func(c *eval.Call) (value.Value, error) {
		a, err := r.agent(c, 0)
		if err != nil {
			return value.Value{}, err
		}
		b, err := r.agent(c, 1)
		if err != nil {
			return value.Value{}, err
		}
		w, ok := a.links[b]
		if !ok {
			return value.Value{}, agentError("Agents %d and %d are not connected.", a.id, b.id)
		}
		return value.Num(w), nil
	})
}

func (r *Run) registerSpace() {
	r.interp.Register("Location", 1, 1, func(c *eval.Call) (value.Value, error) {
		a, err := r.agent(c, 0)
		if err != nil {
			return value.Value{}, err
		}
		return location(a.x, a.y), nil
	})
	r.interp.Register("SetLocation", 2, 2, func(c *eval.Call) (value.Value, error) {
		a, err := r.agent(c, 0)
		if err != nil {
			return value.Value{}, err
		}
		if a.x, a.y, err = r.position(c, 1); err != nil {
			return value.Value{}, err
		}
		a.pop.settle(a)
		r.epoch++
		return location(a.x, a.y), nil
	})
	r.interp.Register("Move", 2, 2, func(c *eval.Call) (value.Value, error) {
		a, err := r.agent(c, 0)
		if err != nil {
			return value.Value{}, err
		}
		v, err := c.Arg(1)
		if err != nil {
			return value.Value{}, err
		}
		dx, dy, err := pair(v)
		if err != nil {
			return value.Value{}, agentError("Move needs a vector of two numbers.")
		}
		a.x += dx
		a.y += dy
		a.pop.settle(a)
		r.epoch++
		return location(a.x, a.y), nil
	})
	r.interp.Register("MoveTowards", 3, 3, func(c *eval.Call) (value.Value, error) {
		a, err := r.agent(c, 0)
		if err != nil {
			return value.Value{}, err
		}
		x, y, err := r.position(c, 1)
		if err != nil {
			return value.Value{}, err
		}
		step, err := c.Number(2)
		if err != nil {
			return value.Value{}, err
		}
		dx, dy := a.pop.delta(a.x, a.y, x, y)
		d := math.Hypot(dx, dy)
		if d > 0 {
			if step > d {
				step = d
			}
			a.x += dx / d * step
			a.y += dy / d * step
			a.pop.settle(a)
		}
		r.epoch++
		return location(a.x, a.y), nil
	})
	r.interp.Register("Distance", 2, 2, func(c *eval.Call) (value.Value, error) {
		ax, ay, err := r.position(c, 0)
		if err != nil {
			return value.Value{}, err
		}
		bx, by, err := r.position(c, 1)
		if err != nil {
			return value.Value{}, err
		}
		if a, err := r.agent(c, 0); err == nil {
			return value.Num(a.pop.distance(ax, ay, bx, by)), nil
		}
		return value.Num(math.Hypot(bx-ax, by-ay)), nil
	})
}

func (r *Run) registerPopulation() {
	r.interp.Register("Add", 1, 2, func(c *eval.Call) (value.Value, error) {
		pop, err := r.population(c, 0)
		if err != nil {
			return value.Value{}, err
		}
		var like *Agent
		if c.Has(1) {
			if like, err = r.agent(c, 1); err != nil {
				return value.Value{}, err
			}
			if like.pop != pop {
				return value.Value{}, agentError("Add can only copy an agent of the same population.")
			}
		}
		a, err := r.add(pop)
		if err != nil {
			return value.Value{}, err
		}
		if like != nil {
			a.copyFrom(like, r.t)
		}
		return value.Obj(a), nil
	})
	r.interp.Register("Remove", 1, 1, func(c *eval.Call) (value.Value, error) {
		as, _, err := r.agents(c, 0)
		if err != nil {
			return value.Value{}, err
		}
		for _, a := range as {
			r.remove(a)
		}
		return value.Num(float64(len(as))), nil
	})
	r.interp.Register("PopulationSize", 1, 1, func(c *eval.Call) (value.Value, error) {
		pop, err := r.population(c, 0)
		if err != nil {
			return value.Value{}, err
		}
		return value.Num(float64(pop.Size())), nil
	})
	r.interp.Register("Width", 1, 1, func(c *eval.Call) (value.Value, error) {
		pop, err := r.population(c, 0)
		if err != nil {
			return value.Value{}, err
		}
		return value.Num(pop.width), nil
	})
	r.interp.Register("Height", 1, 1, func(c *eval.Call) (value.Value, error) {
		pop, err := r.population(c, 0)
		if err != nil {
			return value.Value{}, err
		}
		return value.Num(pop.height), nil
	})
	r.interp.Register("Index", 1, 1, func(c *eval.Call) (value.Value, error) {
		a, err := r.agent(c, 0)
		if err != nil {
			return value.Value{}, err
		}
		return value.Num(float64(a.id)), nil
	})
}

// copyFrom gives a new agent the stock levels and state activity of like.
func (a *Agent) copyFrom(like *Agent, t float64) {
	for rec, src := range like.inst.cells {
		dst := a.inst.cells[rec]
		if !src.ready {
			continue
		}
		switch rec.kind {
		case model.Stock:
			dst.level, dst.stage, dst.ready = src.level, src.stage, true
		case model.State:
			dst.active, dst.since, dst.ready = src.active, t, true
		}
	}
}

// wrapSetFns lets the general vector functions accept populations and
// agents. Join of two agent sets concatenates them; any other Join is the
// string function.
func (r *Run) wrapSetFns() {
	for _, name := range []string{"Count", "Union", "Intersection", "Difference", "Join"} {
		orig, ok := r.interp.Lookup(name)
		if !ok {
			continue
		}
		fn := value.Fn(&value.Function{Name: orig.Name, Impl: orig})
		join := name == "Join"
		r.interp.Register(orig.Name, orig.Min, orig.Max, func(c *eval.Call) (value.Value, error) {
			args, err := c.Args()
			if err != nil {
				return value.Value{}, err
			}
			converted := 0
			for i, v := range args {
				if v.Kind != value.KindObject {
					continue
				}
				if as, _, ok := agentSet(v); ok {
					args[i] = agentList(as)
					converted++
				}
			}
			if join && len(args) == 2 {
				a, _, okA := agentSet(args[0])
				b, _, okB := agentSet(args[1])
				if okA && okB && (converted > 0 || (len(a) > 0 && len(b) > 0)) {
					return agentList(append(a, b...)), nil
				}
			}
			return r.interp.Apply(fn, args...)
		})
	}
}

package sim

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/model"
	"github.com/san-kum/stockflow/internal/value"
)

const (
	defaultWidth  = 200
	defaultHeight = 100

	layoutIterations = 100
)

// Population is the live set of agents instantiated from one agent base.
type Population struct {
	base   *agentBase
	rec    *record
	agents []*Agent
	nextID int

	width, height float64
	wrap          bool
}

func (p *Population) TypeName() string { return "Population" }
func (p *Population) ObjectID() string { return p.rec.name }

// Size is the number of live agents.
func (p *Population) Size() int { return len(p.agents) }

// Agent is one instance of an agent base, with its own cells, location and
// network links.
type Agent struct {
	id      int
	pop     *Population
	inst    *instance
	x, y    float64
	links   map[*Agent]float64
	removed bool
}

func (a *Agent) TypeName() string { return "Agent" }
func (a *Agent) ObjectID() string { return "agent " + a.key() }

func (a *Agent) key() string { return strconv.Itoa(a.id) }

// populate creates the initial agents of base, places them and builds their
// network.
func (r *Run) populate(base *agentBase) error {
	p := base.pop.p
	pop := &Population{base: base, rec: base.pop, width: p.Width, height: p.Height, wrap: p.WrapAround}
	if pop.width <= 0 {
		pop.width = defaultWidth
	}
	if pop.height <= 0 {
		pop.height = defaultHeight
	}
	r.pops[base] = pop
	for i := 0; i < p.Size; i++ {
		r.spawn(pop)
	}
	for i, a := range pop.agents {
		if err := r.place(pop, a, i); err != nil {
			return err
		}
	}
	if err := r.network(pop); err != nil {
		return err
	}
	if strings.EqualFold(p.Placement, "network") {
		r.layout(pop)
	}
	return nil
}

func (r *Run) spawn(pop *Population) *Agent {
	pop.nextID++
	a := &Agent{id: pop.nextID, pop: pop, links: make(map[*Agent]float64)}
	a.inst = r.newInstance(pop.base, a)
	pop.agents = append(pop.agents, a)
	return a
}

// add creates an agent during the run. It is placed with the population's
// strategy and starts with no links.
func (r *Run) add(pop *Population) (*Agent, error) {
	a := r.spawn(pop)
	if err := r.place(pop, a, len(pop.agents)-1); err != nil {
		return nil, err
	}
	r.epoch++
	r.log.Debug("agent added", zap.String("population", pop.rec.name), zap.Int("agent", a.id), zap.Float64("time", r.t))
	return a, nil
}

func (r *Run) remove(a *Agent) {
	if a.removed {
		return
	}
	a.removed = true
	pop := a.pop
	for i, b := range pop.agents {
		if b == a {
			pop.agents = append(pop.agents[:i], pop.agents[i+1:]...)
			break
		}
	}
	for b := range a.links {
		delete(b.links, a)
	}
	a.links = nil
	r.epoch++
	r.log.Debug("agent removed", zap.String("population", pop.rec.name), zap.Int("agent", a.id), zap.Float64("time", r.t))
}

// place positions agent a, the i-th of its population.
func (r *Run) place(pop *Population, a *Agent, i int) error {
	n := len(pop.agents)
	w, h := pop.width, pop.height
	switch strings.ToLower(pop.rec.p.Placement) {
	case "", "random", "network":
		a.x, a.y = r.interp.Rand().Float64()*w, r.interp.Rand().Float64()*h
	case "grid":
		cols := int(math.Ceil(math.Sqrt(float64(n) * w / h)))
		cols = max(cols, 1)
		rows := max(int(math.Ceil(float64(n)/float64(cols))), 1)
		a.x = (float64(i%cols) + 0.5) * w / float64(cols)
		a.y = (float64(i/cols) + 0.5) * h / float64(rows)
	case "ellipse":
		theta := 2 * math.Pi * float64(i) / float64(max(n, 1))
		a.x = w/2 + w/2*math.Cos(theta)
		a.y = h/2 + h/2*math.Sin(theta)
	case "custom":
		v, err := r.evalScoped(&evalCtx{inst: a.inst}, pop.rec.placement, nil)
		if err != nil {
			return attribute(err, pop.rec)
		}
		x, y, err := pair(v)
		if err != nil {
			return attribute(dynamo.Errorf(dynamo.CodePlacement, "The placement function of %s must return a vector of two numbers, got %s.", pop.rec.name, v), pop.rec)
		}
		a.x, a.y = x, y
	default:
		return attribute(dynamo.Errorf(dynamo.CodeConfig, "unknown placement %q", pop.rec.p.Placement), pop.rec)
	}
	return nil
}

// pair reads a two-element numeric vector.
func pair(v value.Value) (float64, float64, error) {
	if v.Kind != value.KindVector || v.Vector().Len() != 2 {
		return 0, 0, dynamo.Errorf(dynamo.CodeType, "Expected a vector of two numbers.")
	}
	x, err := value.Number(v.Vector().At(0))
	if err != nil {
		return 0, 0, err
	}
	y, err := value.Number(v.Vector().At(1))
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

// network links agent pairs for which the network function holds, with a
// and b bound to the two agents.
func (r *Run) network(pop *Population) error {
	switch strings.ToLower(pop.rec.p.Network) {
	case "", "none":
		return nil
	case "custom":
	default:
		return attribute(dynamo.Errorf(dynamo.CodeConfig, "unknown network %q", pop.rec.p.Network), pop.rec)
	}
	for i, a := range pop.agents {
		for _, b := range pop.agents[i+1:] {
			v, err := r.evalScoped(&evalCtx{inst: r.root}, pop.rec.network, map[string]value.Value{
				"a": value.Obj(a),
				"b": value.Obj(b),
			})
			if err != nil {
				return attribute(err, pop.rec)
			}
			ok, err := value.Truthy(v)
			if err != nil {
				return attribute(err, pop.rec)
			}
			if ok {
				connect(a, b, 1)
			}
		}
	}
	return nil
}

func connect(a, b *Agent, w float64) {
	if a == b || a.removed || b.removed {
		return
	}
	a.links[b] = w
	b.links[a] = w
}

func unconnect(a, b *Agent) {
	delete(a.links, b)
	delete(b.links, a)
}

// neighbors lists the agents linked to a in id order.
func (a *Agent) neighbors() []*Agent {
	out := make([]*Agent, 0, len(a.links))
	for b := range a.links {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// layout arranges a population with a force-directed pass: linked agents
// attract, all agents repel.
func (r *Run) layout(pop *Population) {
	n := len(pop.agents)
	if n < 2 {
		return
	}
	w, h := pop.width, pop.height
	k := math.Sqrt(w * h / float64(n))
	temp := w / 10
	dx := make([]float64, n)
	dy := make([]float64, n)
	index := make(map[*Agent]int, n)
	for i, a := range pop.agents {
		index[a] = i
	}
	for it := 0; it < layoutIterations; it++ {
		for i := range dx {
			dx[i], dy[i] = 0, 0
		}
		for i, a := range pop.agents {
			for j := i + 1; j < n; j++ {
				b := pop.agents[j]
				ddx, ddy := a.x-b.x, a.y-b.y
				d := math.Max(math.Hypot(ddx, ddy), 1e-6)
				f := k * k / d
				dx[i] += ddx / d * f
				dy[i] += ddy / d * f
				dx[j] -= ddx / d * f
				dy[j] -= ddy / d * f
			}
			for _, b := range a.neighbors() {
				j := index[b]
				if j <= i {
					continue
				}
				ddx, ddy := a.x-b.x, a.y-b.y
				d := math.Max(math.Hypot(ddx, ddy), 1e-6)
				f := d * d / k
				dx[i] -= ddx / d * f
				dy[i] -= ddy / d * f
				dx[j] += ddx / d * f
				dy[j] += ddy / d * f
			}
		}
		for i, a := range pop.agents {
			d := math.Max(math.Hypot(dx[i], dy[i]), 1e-6)
			step := math.Min(d, temp)
			a.x = math.Min(math.Max(a.x+dx[i]/d*step, 0), w)
			a.y = math.Min(math.Max(a.y+dy[i]/d*step, 0), h)
		}
		temp *= 1 - 1/float64(layoutIterations)
	}
}

// delta is the displacement from a to b, through the edges when the
// population wraps around.
func (p *Population) delta(ax, ay, bx, by float64) (float64, float64) {
	dx, dy := bx-ax, by-ay
	if p.wrap {
		dx -= p.width * math.Round(dx/p.width)
		dy -= p.height * math.Round(dy/p.height)
	}
	return dx, dy
}

func (p *Population) distance(ax, ay, bx, by float64) float64 {
	dx, dy := p.delta(ax, ay, bx, by)
	return math.Hypot(dx, dy)
}

// settle applies wrap-around to a moved agent.
func (p *Population) settle(a *Agent) {
	if !p.wrap {
		return
	}
	a.x = math.Mod(math.Mod(a.x, p.width)+p.width, p.width)
	a.y = math.Mod(math.Mod(a.y, p.height)+p.height, p.height)
}

// AgentInfo is a snapshot of one agent for display.
type AgentInfo struct {
	ID     int
	X, Y   float64
	Active []string
	Links  []int
}

// Agents lists the live agents of the population id.
func (r *Run) Agents(id string) ([]AgentInfo, error) {
	rec := r.sim.byID[r.sim.model.ResolveID(id)]
	if rec == nil || rec.kind != model.Agents {
		e := dynamo.Errorf(dynamo.CodeMissing, "The population %q does not exist.", id)
		e.PrimitiveID = id
		return nil, e
	}
	pop := r.pops[rec.pop]
	out := make([]AgentInfo, 0, len(pop.agents))
	for _, a := range pop.agents {
		info := AgentInfo{ID: a.id, X: a.x, Y: a.y}
		for _, c := range a.inst.order {
			if c.rec.kind == model.State && c.ready && c.active {
				info.Active = append(info.Active, c.rec.name)
			}
		}
		for _, b := range a.neighbors() {
			info.Links = append(info.Links, b.id)
		}
		out = append(out, info)
	}
	return out, nil
}

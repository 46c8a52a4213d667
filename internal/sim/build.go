// Package sim compiles a model into runtime records, orders their equations
// and steps them with the selected integrator.
package sim

import (
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/eval"
	"github.com/san-kum/stockflow/internal/integrators"
	"github.com/san-kum/stockflow/internal/lang"
	"github.com/san-kum/stockflow/internal/model"
	"github.com/san-kum/stockflow/internal/units"
)

// clock is the solver of a folder subtree. The root clock drives sampling.
type clock struct {
	folder *model.Primitive
	tab    integrators.Tableau
	dt     float64
	every  int
}

func (c *clock) label() string {
	if c.folder == nil {
		return "root"
	}
	return c.folder.Label()
}

// record is the compiled form of one primitive, shared by every instance of
// it (agents hold one cell per record).
type record struct {
	p     *model.Primitive
	kind  model.Kind
	id    string
	name  string
	index int

	eq     *lang.Block
	delay  *lang.Block
	action *lang.Block

	units *units.Unit
	min   *float64
	max   *float64

	table    *eval.Table
	discrete bool
	input    *record

	from, to          *record
	inflows, outflows []*record

	trigger model.Trigger

	placement *lang.Block
	network   *lang.Block

	// tracked records keep a history for Delay and the Past functions.
	tracked bool

	base   *agentBase
	pop    *agentBase
	clock  *clock
	frozen bool
}

// agentBase is a folder instantiated once per agent of a population.
type agentBase struct {
	folder  *model.Primitive
	pop     *record
	records []*record
	byName  map[string]*record
}

// Simulation is a compiled model. It is immutable; every Start creates an
// independent run.
type Simulation struct {
	model    *model.Model
	ts       dynamo.TimeSettings
	root     *clock
	clocks   []*clock
	tick     float64
	registry *units.Registry
	timeUnit *units.Unit
	macros   *lang.Block
	seed     uint64
	log      *zap.Logger

	records []*record
	byID    map[string]*record
	byName  map[string]*record
	bases   []*agentBase

	initOrder []*record
	stepOrder []*record
}

func normName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func attribute(err error, rec *record) error {
	return dynamo.Attribute(err, dynamo.CodeType, rec.id, rec.name)
}

// Build validates and compiles m.
func Build(m *model.Model, opts ...Option) (*Simulation, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	settings := m.Settings
	if o.algorithm != "" {
		settings.Algorithm = string(o.algorithm)
	}
	if o.step > 0 {
		settings.TimeStep = o.step
	}
	if o.length > 0 {
		settings.TimeLength = o.length
	}
	ts, err := settings.TimeSettings()
	if err != nil {
		return nil, err
	}

	s := &Simulation{
		model:    m,
		ts:       ts,
		registry: units.NewRegistry(),
		log:      o.logger,
		byID:     make(map[string]*record),
		byName:   make(map[string]*record),
	}
	switch {
	case o.seed != nil:
		s.seed = *o.seed
	case m.Settings.Seed != nil:
		s.seed = *m.Settings.Seed
	}

	for _, cu := range m.Units {
		if err := s.registry.Define(cu.Name, cu.Scale, cu.Target); err != nil {
			return nil, dynamo.Errorf(dynamo.CodeUnits, "invalid unit %q: %v", cu.Name, err)
		}
	}
	s.timeUnit, err = s.registry.Parse(ts.Units)
	if err != nil || !units.IsTime(s.timeUnit) {
		return nil, dynamo.Errorf(dynamo.CodeConfig, "invalid time units %q", ts.Units)
	}
	if s.macros, err = compile(m.Settings.Macros); err != nil {
		return nil, err
	}

	if err := s.compileRecords(); err != nil {
		return nil, err
	}
	if err := s.linkRecords(); err != nil {
		return nil, err
	}
	if err := s.buildClocks(); err != nil {
		return nil, err
	}
	if err := s.resolveOrder(); err != nil {
		return nil, err
	}
	s.markTracked()
	return s, nil
}

func compile(src string) (*lang.Block, error) {
	if strings.TrimSpace(src) == "" {
		return nil, nil
	}
	return eval.Compile(src)
}

func (s *Simulation) compileRecords() error {
	for i, p := range s.model.Primitives {
		switch p.Kind {
		case model.Folder, model.Ghost, model.Link:
			continue
		}
		rec := &record{p: p, kind: p.Kind, id: p.ID, name: p.Label(), index: i, min: p.Min, max: p.Max}
		var err error
		if rec.eq, err = compile(p.Equation); err != nil {
			return attribute(err, rec)
		}
		if p.Kind == model.Stock && p.Conveyor {
			if rec.delay, err = compile(p.Delay); err != nil {
				return attribute(err, rec)
			}
		}
		if p.Kind == model.Action {
			if rec.action, err = compile(p.Action); err != nil {
				return attribute(err, rec)
			}
		}
		if p.Kind == model.Agents {
			if rec.placement, err = compile(p.PlacementFunction); err != nil {
				return attribute(err, rec)
			}
			if rec.network, err = compile(p.NetworkFunction); err != nil {
				return attribute(err, rec)
			}
		}
		if p.Units != "" {
			if rec.units, err = s.registry.Parse(p.Units); err != nil {
				return attribute(dynamo.Errorf(dynamo.CodeUnits, "invalid units %q: %v", p.Units, err), rec)
			}
		}
		if p.Kind == model.Converter {
			xs := make([]float64, len(p.Points))
			ys := make([]float64, len(p.Points))
			for j, pt := range p.Points {
				xs[j], ys[j] = pt.X, pt.Y
			}
			if rec.table, err = eval.NewTable(xs, ys); err != nil {
				return attribute(err, rec)
			}
			switch strings.ToLower(p.Interpolation) {
			case "", "linear":
			case "discrete":
				rec.discrete = true
			default:
				return attribute(dynamo.Errorf(dynamo.CodeConverter, "unknown interpolation %q", p.Interpolation), rec)
			}
		}
		if p.Kind == model.Transition || p.Kind == model.Action {
			rec.trigger = p.Trigger
			switch p.Trigger {
			case model.Timeout, model.Condition, model.Probability:
			case "":
				rec.trigger = model.Timeout
			default:
				return attribute(dynamo.Errorf(dynamo.CodeConfig, "unknown trigger %q", p.Trigger), rec)
			}
		}
		s.records = append(s.records, rec)
		s.byID[rec.id] = rec
	}
	return nil
}

func (s *Simulation) linkRecords() error {
	m := s.model
	for _, rec := range s.records {
		if rec.kind != model.Agents {
			continue
		}
		base := &agentBase{pop: rec, byName: make(map[string]*record)}
		if rec.p.AgentBase != "" {
			base.folder = m.ByID(rec.p.AgentBase)
			for _, b := range s.bases {
				if b.folder == base.folder {
					return attribute(dynamo.Errorf(dynamo.CodeConfig, "agent base %s is used by more than one population", base.folder.Label()), rec)
				}
			}
		}
		rec.pop = base
		s.bases = append(s.bases, base)
	}

	for _, rec := range s.records {
		for _, anc := range m.Ancestors(rec.p) {
			if anc.Frozen {
				rec.frozen = true
			}
			for _, b := range s.bases {
				if b.folder == anc && rec.base == nil {
					rec.base = b
				}
			}
		}
		names := s.byName
		if rec.base != nil {
			rec.base.records = append(rec.base.records, rec)
			names = rec.base.byName
		}
		if key := normName(rec.name); names[key] == nil {
			names[key] = rec
		}
	}
	for _, p := range m.Primitives {
		if p.Kind != model.Ghost {
			continue
		}
		src := s.byID[m.ResolveID(p.ID)]
		if src == nil {
			continue
		}
		names := s.byName
		if src.base != nil {
			names = src.base.byName
		}
		if key := normName(p.Label()); names[key] == nil {
			names[key] = src
		}
	}

	for _, rec := range s.records {
		p := rec.p
		switch rec.kind {
		case model.Flow, model.Transition:
			rec.from = s.byID[m.ResolveID(p.From)]
			rec.to = s.byID[m.ResolveID(p.To)]
			if rec.kind == model.Flow {
				if rec.from != nil {
					rec.from.outflows = append(rec.from.outflows, rec)
				}
				if rec.to != nil {
					rec.to.inflows = append(rec.to.inflows, rec)
				}
			}
			for _, end := range []*record{rec.from, rec.to} {
				if end != nil && end.base != rec.base {
					return attribute(dynamo.Errorf(dynamo.CodeConfig, "%s connects primitives of different agent bases", rec.name), rec)
				}
			}
		case model.Converter:
			rec.input = s.byID[m.ResolveID(p.Input)]
		}
	}
	return nil
}

func (s *Simulation) buildClocks() error {
	tab, err := integrators.For(s.ts.Algorithm)
	if err != nil {
		return err
	}
	s.root = &clock{tab: tab, dt: s.ts.Step}
	s.clocks = []*clock{s.root}
	byFolder := map[*model.Primitive]*clock{}
	for _, p := range s.model.Primitives {
		if p.Kind != model.Folder || p.Solver == nil {
			continue
		}
		c := &clock{folder: p, tab: tab, dt: s.ts.Step}
		if p.Solver.Algorithm != "" {
			alg, err := dynamo.ParseAlgorithm(p.Solver.Algorithm)
			if err != nil {
				return dynamo.Attribute(err, dynamo.CodeConfig, p.ID, p.Label())
			}
			if c.tab, err = integrators.For(alg); err != nil {
				return err
			}
		}
		if p.Solver.TimeStep < 0 {
			return dynamo.Attribute(dynamo.Errorf(dynamo.CodeConfig, "time step must be positive, got %g", p.Solver.TimeStep), dynamo.CodeConfig, p.ID, p.Label())
		}
		if p.Solver.TimeStep > 0 {
			c.dt = p.Solver.TimeStep
		}
		byFolder[p] = c
		s.clocks = append(s.clocks, c)
		s.log.Debug("solver override", zap.String("folder", p.Label()), zap.String("algorithm", c.tab.Name), zap.Float64("time_step", c.dt))
	}

	s.tick = s.root.dt
	for _, c := range s.clocks {
		s.tick = math.Min(s.tick, c.dt)
	}
	for _, c := range s.clocks {
		n := math.Round(c.dt / s.tick)
		if math.Abs(n*s.tick-c.dt) > 1e-9*c.dt {
			err := dynamo.Errorf(dynamo.CodeConfig, "time step %g of %s is not a whole multiple of %g", c.dt, c.label(), s.tick)
			if c.folder != nil {
				return dynamo.Attribute(err, dynamo.CodeConfig, c.folder.ID, c.folder.Label())
			}
			return err
		}
		c.every = int(n)
	}

	for _, rec := range s.records {
		rec.clock = s.root
		for _, anc := range s.model.Ancestors(rec.p) {
			if c, ok := byFolder[anc]; ok {
				rec.clock = c
				break
			}
		}
	}
	return nil
}

// lookup resolves a primitive name as seen from an equation of base (nil for
// the top level). Agent primitives are visible from outside only to the
// aggregation builtins, which pass outside=true.
func (s *Simulation) lookup(name string, base *agentBase, outside bool) *record {
	key := normName(name)
	if base != nil {
		if rec := base.byName[key]; rec != nil {
			return rec
		}
	}
	if rec := s.byName[key]; rec != nil {
		return rec
	}
	if outside {
		for _, b := range s.bases {
			if rec := b.byName[key]; rec != nil {
				return rec
			}
		}
	}
	return nil
}

// Model returns the compiled model.
func (s *Simulation) Model() *model.Model { return s.model }

// Seed is the seed of the run stream.
func (s *Simulation) Seed() uint64 { return s.seed }

// TimeSettings returns the effective clock after overrides.
func (s *Simulation) TimeSettings() dynamo.TimeSettings { return s.ts }

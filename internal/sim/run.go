package sim

import (
	"context"
	"errors"
	"math"

	"go.uber.org/zap"

	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/eval"
	"github.com/san-kum/stockflow/internal/model"
	"github.com/san-kum/stockflow/internal/value"
)

// Run is the mutable state of one simulation: the clock, every cell, the
// populations and the random stream. Runs are independent of each other; a
// single Run is not safe for concurrent use.
type Run struct {
	sim    *Simulation
	interp *eval.Interp
	log    *zap.Logger

	root    *instance
	pops    map[*agentBase]*Population
	stack   []*evalCtx
	ssd     map[ssdKey]*ssdState
	ssdList []*ssdState

	t     float64
	ticks int
	epoch int

	phase   dynamo.Phase
	err     error
	pause   bool
	initial bool

	results *Results
}

// Outcome is the final message of an asynchronous run.
type Outcome struct {
	Results *Results
	Err     *dynamo.Payload
}

// Start creates a run, evaluates the macros and the initial values, fires
// transitions due at the start time and records the first sample.
func (s *Simulation) Start() (*Run, error) {
	r := &Run{
		sim:     s,
		log:     s.log,
		pops:    make(map[*agentBase]*Population),
		ssd:     make(map[ssdKey]*ssdState),
		t:       s.ts.Start,
		phase:   dynamo.Initializing,
		initial: true,
	}
	r.interp = eval.New(eval.WithHost(r), eval.WithUnits(s.registry), eval.WithSeed(s.seed))
	r.registerBuiltins()
	r.results = newResults(s)

	if err := r.initialize(); err != nil {
		r.fail(err)
		return r, r.err
	}
	r.phase = dynamo.Stepping
	r.log.Info("run started",
		zap.String("model", s.model.Name),
		zap.Uint64("seed", s.seed),
		zap.String("algorithm", string(s.ts.Algorithm)),
		zap.Float64("time_step", s.ts.Step))
	r.finishIfDone()
	return r, nil
}

func (r *Run) initialize() error {
	s := r.sim
	if s.macros != nil {
		if _, err := r.interp.Eval(s.macros, r.interp.Globals); err != nil {
			return stopDuringInit(err, "the global macros")
		}
	}
	r.root = r.newInstance(nil, nil)
	for _, base := range s.bases {
		if err := r.populate(base); err != nil {
			return stopDuringInit(err, base.pop.name)
		}
	}
	for _, inst := range r.instances() {
		for _, rec := range s.initOrder {
			c := inst.cells[rec]
			if c == nil {
				continue
			}
			if _, err := r.value(c); err != nil {
				return stopDuringInit(err, rec.name)
			}
		}
	}
	r.initial = false
	if err := r.transitions(); err != nil {
		if errors.Is(err, dynamo.ErrStopped) {
			return stopDuringInit(err, "")
		}
		return err
	}
	return r.record()
}

// stopDuringInit turns a Stop() request into an error: there is no state to
// truncate yet.
func stopDuringInit(err error, where string) error {
	if !errors.Is(err, dynamo.ErrStopped) {
		return err
	}
	e := dynamo.Errorf(dynamo.CodeStop, "Stop() cannot be called during initialization.")
	e.Wrapped = dynamo.ErrStopped
	if p := dynamo.PayloadOf(err); p.PrimitiveID != "" {
		e.PrimitiveID, e.PrimitiveName = p.PrimitiveID, p.PrimitiveName
	} else if where != "" {
		e.Message += " (" + where + ")"
	}
	return e
}

// instances lists the top level followed by every live agent.
func (r *Run) instances() []*instance {
	out := []*instance{r.root}
	for _, base := range r.sim.bases {
		if pop := r.pops[base]; pop != nil {
			for _, a := range pop.agents {
				out = append(out, a.inst)
			}
		}
	}
	return out
}

// Phase reports where the run is in its lifecycle.
func (r *Run) Phase() dynamo.Phase { return r.phase }

// Time is the current simulated time.
func (r *Run) Time() float64 { return r.t }

// Err is the failure that ended the run, if any.
func (r *Run) Err() error { return r.err }

// Results returns the samples recorded so far.
func (r *Run) Results() *Results { return r.results }

// Step advances one root time step. A paused run resumes.
func (r *Run) Step() error {
	switch r.phase {
	case dynamo.Finished:
		return dynamo.ErrFinished
	case dynamo.Failed:
		return r.err
	}
	r.phase = dynamo.Stepping
	r.pause = false
	if err := r.step(); err != nil {
		if errors.Is(err, dynamo.ErrStopped) {
			r.stop()
			return nil
		}
		r.fail(err)
		return r.err
	}
	if r.finishIfDone() {
		return nil
	}
	if r.pause || r.atPauseInterval() {
		r.phase = dynamo.Paused
	}
	return nil
}

func (r *Run) step() error {
	for i := 0; i < r.sim.root.every; i++ {
		if err := r.tick(); err != nil {
			return err
		}
	}
	return r.record()
}

func (r *Run) finishIfDone() bool {
	end := r.sim.ts.End()
	if r.t < end-1e-9*r.sim.ts.Step {
		return false
	}
	r.phase = dynamo.Finished
	r.log.Info("run finished", zap.Float64("time", r.t), zap.Int("samples", len(r.results.Times)))
	return true
}

func (r *Run) atPauseInterval() bool {
	iv := r.sim.ts.PauseInterval
	if iv <= 0 {
		return false
	}
	n := (r.t - r.sim.ts.Start) / iv
	return math.Abs(n-math.Round(n)) < 1e-9*math.Max(1, n)
}

// stop ends the run early on a Stop() request. The current time is kept
// when it was reached but not yet recorded.
func (r *Run) stop() {
	if n := len(r.results.Times); n == 0 || r.results.Times[n-1] < r.t {
		if err := r.record(); err != nil && !errors.Is(err, dynamo.ErrStopped) {
			r.fail(err)
			return
		}
	}
	r.phase = dynamo.Finished
	r.log.Info("run stopped", zap.Float64("time", r.t))
}

func (r *Run) fail(err error) {
	r.phase = dynamo.Failed
	r.err = err
	r.log.Info("run failed", zap.Float64("time", r.t), zap.Error(err))
}

// Simulate runs to completion, ignoring pause points.
func (s *Simulation) Simulate(ctx context.Context) (*Results, error) {
	r, err := s.Start()
	if err != nil {
		return nil, err
	}
	for r.phase != dynamo.Finished {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.Step(); err != nil {
			return nil, err
		}
	}
	return r.results, nil
}

// RunAsync runs in a goroutine, calling onPause whenever the run pauses.
// onPause may inspect and change the run; the run resumes when it returns.
// The channel receives exactly one Outcome.
func (s *Simulation) RunAsync(ctx context.Context, onPause func(*Run)) <-chan Outcome {
	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		r, err := s.Start()
		if err != nil {
			out <- Outcome{Err: dynamo.PayloadOf(err)}
			return
		}
		for r.phase != dynamo.Finished {
			if err := ctx.Err(); err != nil {
				out <- Outcome{Results: r.results, Err: dynamo.PayloadOf(err)}
				return
			}
			if err := r.Step(); err != nil {
				out <- Outcome{Err: dynamo.PayloadOf(err)}
				return
			}
			if r.phase == dynamo.Paused && onPause != nil {
				onPause(r)
			}
		}
		out <- Outcome{Results: r.results}
	}()
	return out
}

// SetValue replaces the current value of a top-level primitive. Stocks take
// a new level, states a new activity; other primitives hold v until the
// next change of time or state.
func (r *Run) SetValue(id string, v value.Value) error {
	rec := r.sim.byID[r.sim.model.ResolveID(id)]
	if rec == nil {
		e := dynamo.Errorf(dynamo.CodeMissing, "The primitive %q does not exist.", id)
		e.PrimitiveID = id
		return e
	}
	if rec.base != nil {
		return attribute(dynamo.Errorf(dynamo.CodePlaceholder, "[%s] is a placeholder and cannot be set directly.", rec.name), rec)
	}
	r.epoch++
	return r.assign(r.root.cells[rec], v)
}

// assign overrides the current value of c. The caller bumps the epoch.
func (r *Run) assign(c *cell, v value.Value) error {
	rec := c.rec
	switch rec.kind {
	case model.Stock:
		return r.setLevel(c, v)
	case model.State:
		return r.setActive(c, v)
	case model.Variable, model.Flow, model.Converter:
		v, err := r.conform(c, v)
		if err != nil {
			return attribute(err, rec)
		}
		c.val, c.stamp = v, r.epoch
		return nil
	}
	return attribute(dynamo.Errorf(dynamo.CodeType, "[%s] does not hold a value.", rec.name), rec)
}

func (r *Run) setLevel(c *cell, v value.Value) error {
	v, err := r.conform(c, v)
	if err != nil {
		return attribute(err, c.rec)
	}
	c.level, c.stage, c.ready = v, v, true
	return nil
}

func (r *Run) setActive(c *cell, v value.Value) error {
	on, err := value.Truthy(v)
	if err != nil {
		return attribute(err, c.rec)
	}
	if on != c.active || !c.ready {
		c.since = r.t
	}
	c.active, c.ready = on, true
	return nil
}

// Value reads the current value of a primitive by id. Agent primitives read
// as a vector keyed by agent id.
func (r *Run) Value(id string) (value.Value, error) {
	rec := r.sim.byID[r.sim.model.ResolveID(id)]
	if rec == nil {
		e := dynamo.Errorf(dynamo.CodeMissing, "The primitive %q does not exist.", id)
		e.PrimitiveID = id
		return value.Value{}, e
	}
	return r.recordValue(rec)
}

// recordValue is the sampled value of rec across its instances.
func (r *Run) recordValue(rec *record) (value.Value, error) {
	if rec.base == nil {
		return r.sampleValue(r.root.cells[rec])
	}
	pop := r.pops[rec.base]
	keys := make([]string, 0, len(pop.agents))
	items := make([]value.Value, 0, len(pop.agents))
	for _, a := range pop.agents {
		v, err := r.sampleValue(a.inst.cells[rec])
		if err != nil {
			return value.Value{}, err
		}
		keys = append(keys, a.key())
		items = append(items, v)
	}
	return value.Vec(value.NewNamed(keys, items)), nil
}

// sampleValue is what the results show for c: flows report the rate
// actually moved, populations their size.
func (r *Run) sampleValue(c *cell) (value.Value, error) {
	switch c.rec.kind {
	case model.Flow:
		if err := r.rates(c.inst); err != nil {
			return value.Value{}, err
		}
		return c.rate, nil
	case model.Agents:
		return value.Num(float64(len(r.pops[c.rec.pop].agents))), nil
	}
	return r.value(c)
}

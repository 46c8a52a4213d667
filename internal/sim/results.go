package sim

import (
	"github.com/san-kum/stockflow/internal/model"
	"github.com/san-kum/stockflow/internal/value"
)

// Results holds the sampled series of a run. Series values are plain Go
// data: float64, bool, string, []any for vectors and map[string]any for
// named vectors.
type Results struct {
	Times  []float64
	Series map[string][]any
	Names  map[string]string
	Kinds  map[string]model.Kind
	Units  map[string]string

	order []*record
}

func newResults(s *Simulation) *Results {
	res := &Results{
		Series: make(map[string][]any),
		Names:  make(map[string]string),
		Kinds:  make(map[string]model.Kind),
		Units:  make(map[string]string),
	}
	for _, rec := range s.records {
		switch rec.kind {
		case model.Transition, model.Action:
			continue
		}
		res.order = append(res.order, rec)
		res.Names[rec.id] = rec.name
		res.Kinds[rec.id] = rec.kind
		if rec.units != nil {
			res.Units[rec.id] = rec.units.String()
		}
	}
	return res
}

// IDs lists the recorded primitives in model order.
func (res *Results) IDs() []string {
	out := make([]string, len(res.order))
	for i, rec := range res.order {
		out[i] = rec.id
	}
	return out
}

// Lookup returns the series of the primitive named name, ignoring case.
func (res *Results) Lookup(name string) ([]any, bool) {
	key := normName(name)
	for _, rec := range res.order {
		if normName(rec.name) == key {
			return res.Series[rec.id], true
		}
	}
	return nil, false
}

// Floats returns the numeric series of id. Booleans read as 0 or 1 and other
// samples as 0.
func (res *Results) Floats(id string) []float64 {
	series := res.Series[id]
	out := make([]float64, len(series))
	for i, v := range series {
		switch x := v.(type) {
		case float64:
			out[i] = x
		case bool:
			if x {
				out[i] = 1
			}
		}
	}
	return out
}

// Last is the final sample of id, or nil.
func (res *Results) Last(id string) any {
	s := res.Series[id]
	if len(s) == 0 {
		return nil
	}
	return s[len(s)-1]
}

// record samples every primitive at the current time and appends to the
// histories read by Delay and the Past functions.
func (r *Run) record() error {
	res := r.results
	for _, rec := range res.order {
		v, err := r.recordValue(rec)
		if err != nil {
			return err
		}
		res.Series[rec.id] = append(res.Series[rec.id], value.Simplify(v))
	}
	res.Times = append(res.Times, r.t)

	for _, inst := range r.instances() {
		for _, c := range inst.order {
			if !c.rec.tracked {
				continue
			}
			v, err := r.sampleValue(c)
			if err != nil {
				return err
			}
			c.history = append(c.history, sample{t: r.t, v: v})
		}
	}
	return nil
}

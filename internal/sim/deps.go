package sim

import (
	"strings"

	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/lang"
	"github.com/san-kum/stockflow/internal/model"
)

// historyFns read state from earlier steps, so references inside their
// arguments never form a same-step dependency.
var historyFns = map[string]bool{
	"delay": true, "delay1": true, "delay3": true, "delayn": true,
	"smooth": true, "smoothn": true,
	"pastvalues": true, "pastmax": true, "pastmin": true, "pastmean": true,
	"pastmedian": true, "paststddev": true, "pastcorrelation": true,
}

// refs lists the primitive names read by blk outside history calls, in
// first-use order.
func refs(blk *lang.Block) []string {
	if blk == nil {
		return nil
	}
	var out []string
	seen := map[string]bool{}
	lang.Inspect(blk, func(n lang.Node) bool {
		switch n := n.(type) {
		case *lang.Call:
			if historyFns[lang.CalleeName(n)] {
				return false
			}
		case *lang.PrimRef:
			if k := normName(n.Name); !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
		return true
	})
	return out
}

// reads is the dependency list of rec. When initial is set, stock and state
// initial values count as reads; during stepping those carry prior-step
// state and are exempt.
func (s *Simulation) reads(rec *record, initial bool) []*record {
	var out []*record
	add := func(q *record) {
		if q == nil || q == rec || exempt(q, initial) {
			return
		}
		for _, x := range out {
			if x == q {
				return
			}
		}
		out = append(out, q)
	}
	blocks := []*lang.Block{rec.eq}
	if rec.kind == model.Stock && rec.delay != nil {
		blocks = append(blocks, rec.delay)
	}
	for _, blk := range blocks {
		for _, name := range refs(blk) {
			add(s.lookup(name, rec.base, true))
		}
	}
	if rec.kind == model.Converter {
		add(rec.input)
	}
	return out
}

func exempt(q *record, initial bool) bool {
	switch q.kind {
	case model.Agents, model.Transition, model.Action:
		return true
	case model.Stock, model.State:
		return !initial
	}
	return false
}

// nodes are the records evaluated in one phase. Transitions and actions
// have no value; they run after the step.
func nodes(recs []*record, initial bool) []*record {
	var out []*record
	for _, r := range recs {
		switch r.kind {
		case model.Agents, model.Transition, model.Action:
			continue
		case model.Stock, model.State:
			if !initial {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

// order sorts recs so that every record follows the records it reads,
// failing on a same-step cycle with the members in discovery order.
func (s *Simulation) order(recs []*record, initial bool) ([]*record, error) {
	const (
		unseen = iota
		visiting
		done
	)
	state := make(map[*record]int, len(recs))
	var stack, out []*record

	var visit func(r *record) error
	visit = func(r *record) error {
		switch state[r] {
		case done:
			return nil
		case visiting:
			return cycleError(stack, r)
		}
		state[r] = visiting
		stack = append(stack, r)
		for _, q := range s.reads(r, initial) {
			if err := visit(q); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[r] = done
		out = append(out, r)
		return nil
	}
	for _, r := range recs {
		if err := visit(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func cycleError(stack []*record, back *record) error {
	start := 0
	for i, r := range stack {
		if r == back {
			start = i
			break
		}
	}
	loop := stack[start:]
	names := make([]string, len(loop))
	for i, r := range loop {
		names[i] = r.name
	}
	err := dynamo.Errorf(dynamo.CodeCircular, "Circular equation loop identified including the primitives: %s", strings.Join(names, ", "))
	err.PrimitiveID, err.PrimitiveName = loop[0].id, loop[0].name
	return err
}

func (s *Simulation) resolveOrder() error {
	var err error
	if s.initOrder, err = s.order(nodes(s.records, true), true); err != nil {
		return err
	}
	s.stepOrder, err = s.order(nodes(s.records, false), false)
	return err
}

// pastFns read a primitive's recorded history rather than its expression.
var pastFns = map[string]bool{
	"delay": true, "pastvalues": true, "pastmax": true, "pastmin": true,
	"pastmean": true, "pastmedian": true, "paststddev": true, "pastcorrelation": true,
}

// markTracked flags every primitive named as the subject of a history
// function so that the run records its samples.
func (s *Simulation) markTracked() {
	scan := func(blk *lang.Block, base *agentBase) {
		if blk == nil {
			return
		}
		lang.Inspect(blk, func(n lang.Node) bool {
			call, ok := n.(*lang.Call)
			if !ok || !pastFns[lang.CalleeName(call)] {
				return true
			}
			for _, a := range call.Args {
				if ref, ok := a.(*lang.PrimRef); ok {
					if rec := s.lookup(ref.Name, base, true); rec != nil {
						rec.tracked = true
					}
				}
			}
			return true
		})
	}
	scan(s.macros, nil)
	for _, rec := range s.records {
		for _, blk := range []*lang.Block{rec.eq, rec.delay, rec.action, rec.placement, rec.network} {
			scan(blk, rec.base)
		}
	}
}

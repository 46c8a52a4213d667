package eval

import (
	"math"

	"github.com/san-kum/stockflow/internal/lang"
	"github.com/san-kum/stockflow/internal/value"
)

// selector is an evaluated index expression.
type selector struct {
	all bool
	v   value.Value
}

func (in *Interp) selectors(nodes []lang.Node, sc *Scope) ([]selector, error) {
	out := make([]selector, len(nodes))
	for i, n := range nodes {
		if _, ok := n.(*lang.Wildcard); ok {
			out[i] = selector{all: true}
			continue
		}
		v, err := in.eval(n, sc)
		if err != nil {
			return nil, err
		}
		out[i] = selector{v: v}
	}
	return out, nil
}

func (in *Interp) index(x value.Value, nodes []lang.Node, sc *Scope) (value.Value, error) {
	sels, err := in.selectors(nodes, sc)
	if err != nil {
		return value.Value{}, err
	}
	return in.selectPath(x, sels)
}

// selectPath applies the first selector to x and the rest to each selected
// element.
func (in *Interp) selectPath(x value.Value, sels []selector) (value.Value, error) {
	if len(sels) == 0 {
		return x, nil
	}
	if x.Kind != value.KindVector {
		return value.Value{}, indexError("Cannot index a %s.", value.Describe(x))
	}
	vec := x.Vector()
	s, rest := sels[0], sels[1:]

	mapRest := func(sub *value.Vector) (value.Value, error) {
		if len(rest) == 0 {
			return value.Vec(sub), nil
		}
		out, err := sub.MapErr(func(e value.Value) (value.Value, error) { return in.selectPath(e, rest) })
		if err != nil {
			return value.Value{}, err
		}
		return value.Vec(out), nil
	}

	if s.all {
		cp := vec.Clone()
		cp.Parent = nil
		return mapRest(cp)
	}
	switch s.v.Kind {
	case value.KindNumber, value.KindString:
		e, err := element(vec, s.v)
		if err != nil {
			return value.Value{}, err
		}
		return in.selectPath(e, rest)
	case value.KindFunction:
		sub := vec
		if len(rest) > 0 {
			mapped, err := mapRest(vec)
			if err != nil {
				return value.Value{}, err
			}
			sub = mapped.Vector()
		}
		return in.Apply(s.v, value.Vec(sub))
	case value.KindVector:
		sub, err := multiSelect(vec, s.v.Vector())
		if err != nil {
			return value.Value{}, err
		}
		return mapRest(sub)
	}
	return value.Value{}, indexError("Cannot index with a %s.", value.Describe(s.v))
}

// element resolves one positional (1-based) or keyed index.
func element(vec *value.Vector, idx value.Value) (value.Value, error) {
	i, err := position(vec, idx)
	if err != nil {
		return value.Value{}, err
	}
	return vec.Items[i], nil
}

func position(vec *value.Vector, idx value.Value) (int, error) {
	if idx.Kind == value.KindString {
		if !vec.Named() {
			return 0, indexError("Cannot use the key %q on a vector without names.", idx.Text())
		}
		i := vec.KeyIndex(idx.Text())
		if i < 0 {
			return 0, indexError("The key %q is not in the vector.", idx.Text())
		}
		return i, nil
	}
	f := idx.Float()
	if f != math.Trunc(f) {
		return 0, indexError("Vector indexes must be integers, got %g.", f)
	}
	if f < 1 || int(f) > vec.Len() {
		return 0, indexError("Index %g is out of range for a vector of length %d.", f, vec.Len())
	}
	return int(f) - 1, nil
}

// multiSelect picks elements by a boolean mask or a list of indexes.
func multiSelect(vec, sel *value.Vector) (*value.Vector, error) {
	out := &value.Vector{}
	keep := func(i int) {
		out.Items = append(out.Items, vec.Items[i])
		if vec.Named() {
			out.Keys = append(out.Keys, vec.Keys[i])
		}
	}
	if sel.Len() > 0 && sel.Items[0].Kind == value.KindBool {
		if sel.Len() != vec.Len() {
			return nil, indexError("A boolean selector needs %d elements, got %d.", vec.Len(), sel.Len())
		}
		for i, b := range sel.Items {
			if b.Kind != value.KindBool {
				return nil, indexError("Cannot mix booleans and indexes in a selector.")
			}
			if b.Truth() {
				keep(i)
			}
		}
		if vec.Named() && out.Keys == nil {
			out.Keys = []string{}
		}
		return out, nil
	}
	for _, idx := range sel.Items {
		if idx.Kind != value.KindNumber && idx.Kind != value.KindString {
			return nil, indexError("Cannot index with a %s.", value.Describe(idx))
		}
		i, err := position(vec, idx)
		if err != nil {
			return nil, err
		}
		keep(i)
	}
	return out, nil
}

// member reads o.name. Functions found on a vector are bound to it.
func (in *Interp) member(x value.Value, name string) (value.Value, error) {
	if x.Kind == value.KindVector && x.Vector().Named() {
		if v, ok := x.Vector().Lookup(name); ok {
			if v.Kind == value.KindFunction {
				return value.Fn(v.Function().Bound(x.Vector())), nil
			}
			return v, nil
		}
		return value.Value{}, indexError("The key %q is not in the vector.", name)
	}
	return value.Value{}, indexError("Cannot read the property %q of a %s.", name, value.Describe(x))
}

// assign stores v at target. Property writes mutate the named vector in place
// (objects are shared); index writes copy the container and rebind it.
func (in *Interp) assign(target lang.Node, v value.Value, sc *Scope) error {
	switch t := target.(type) {
	case *lang.Ident:
		sc.Set(t.Name, v)
		return nil
	case *lang.Member:
		obj, err := in.eval(t.X, sc)
		if err != nil {
			return err
		}
		if obj.Kind != value.KindVector {
			return indexError("Cannot set the property %q of a %s.", t.Name, value.Describe(obj))
		}
		obj.Vector().Set(t.Name, v)
		return nil
	case *lang.Index:
		cur, err := in.eval(t.X, sc)
		if err != nil {
			return err
		}
		sels, err := in.selectors(t.Indices, sc)
		if err != nil {
			return err
		}
		upd, err := setPath(cur, sels, v)
		if err != nil {
			return err
		}
		return in.assign(t.X, upd, sc)
	}
	return typeError("Invalid assignment target.")
}

// setPath returns a copy of x with the element addressed by sels replaced.
func setPath(x value.Value, sels []selector, v value.Value) (value.Value, error) {
	if len(sels) == 0 {
		return v, nil
	}
	if x.Kind != value.KindVector {
		return value.Value{}, indexError("Cannot index a %s.", value.Describe(x))
	}
	cp := x.Vector().Clone()
	s, rest := sels[0], sels[1:]
	if s.all {
		for i := range cp.Items {
			nv, err := setPath(cp.Items[i], rest, v)
			if err != nil {
				return value.Value{}, err
			}
			cp.Items[i] = nv
		}
		return value.Vec(cp), nil
	}
	switch s.v.Kind {
	case value.KindNumber:
		i, err := position(cp, s.v)
		if err != nil {
			return value.Value{}, err
		}
		nv, err := setPath(cp.Items[i], rest, v)
		if err != nil {
			return value.Value{}, err
		}
		cp.Items[i] = nv
		return value.Vec(cp), nil
	case value.KindString:
		cur, ok := cp.Get(s.v.Text())
		if !ok && len(rest) > 0 {
			return value.Value{}, indexError("The key %q is not in the vector.", s.v.Text())
		}
		nv, err := setPath(cur, rest, v)
		if err != nil {
			return value.Value{}, err
		}
		cp.Set(s.v.Text(), nv)
		return value.Vec(cp), nil
	}
	return value.Value{}, indexError("Cannot assign through a %s index.", value.Describe(s.v))
}

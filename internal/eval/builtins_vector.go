package eval

import (
	"math"
	"sort"

	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/lang"
	"github.com/san-kum/stockflow/internal/value"
)

// iterate calls fn(x, key) for every element of vec. When the argument at
// position i is a function, it is applied to each element; otherwise the
// argument's expression is evaluated once per element with x and key bound.
func (c *Call) iterate(vec *value.Vector, i int) (func(x value.Value, k int) (value.Value, error), error) {
	keyOf := func(k int) value.Value {
		if vec.Named() {
			return value.Str(vec.Keys[k])
		}
		return value.Num(float64(k + 1))
	}

	node := c.Node(i)
	if node == nil || isFunctionSyntax(node, c.Scope, c.Interp) {
		f, err := c.Arg(i)
		if err != nil {
			return nil, err
		}
		if f.Kind != value.KindFunction {
			return nil, argError("Argument %d of %s must be a function.", i+1, c.Name)
		}
		return func(x value.Value, k int) (value.Value, error) {
			extra := map[string]value.Value{"key": keyOf(k)}
			if Arity(f) >= 2 {
				return c.Interp.ApplyWith(f, extra, x, keyOf(k))
			}
			if Arity(f) == 0 {
				extra["x"] = x
				return c.Interp.ApplyWith(f, extra)
			}
			return c.Interp.ApplyWith(f, extra, x)
		}, nil
	}
	return func(x value.Value, k int) (value.Value, error) {
		sc := NewScope(c.Scope)
		sc.Define("x", x)
		sc.Define("key", keyOf(k))
		return c.Interp.eval(node, sc)
	}, nil
}

// isFunctionSyntax reports whether n denotes a function value rather than an
// expression over x.
func isFunctionSyntax(n lang.Node, sc *Scope, in *Interp) bool {
	switch n := n.(type) {
	case *lang.FuncLit:
		return true
	case *lang.Ident:
		if v, ok := sc.Get(n.Name); ok {
			return v.Kind == value.KindFunction
		}
		_, ok := in.natives[n.Name]
		return ok
	}
	return false
}

func registerVectors(in *Interp) {
	in.Register("Map", 2, 2, func(c *Call) (value.Value, error) {
		vec, err := c.Vector(0)
		if err != nil {
			return value.Value{}, err
		}
		f, err := c.iterate(vec, 1)
		if err != nil {
			return value.Value{}, err
		}
		out := vec.Clone()
		out.Parent = nil
		for i, x := range vec.Items {
			if out.Items[i], err = f(x, i); err != nil {
				return value.Value{}, err
			}
		}
		return value.Vec(out), nil
	})

	in.Register("Filter", 2, 2, func(c *Call) (value.Value, error) {
		vec, err := c.Vector(0)
		if err != nil {
			return value.Value{}, err
		}
		f, err := c.iterate(vec, 1)
		if err != nil {
			return value.Value{}, err
		}
		out := &value.Vector{}
		if vec.Named() {
			out.Keys = []string{}
		}
		for i, x := range vec.Items {
			keep, err := f(x, i)
			if err != nil {
				return value.Value{}, err
			}
			ok, err := value.Truthy(keep)
			if err != nil {
				return value.Value{}, err
			}
			if ok {
				out.Items = append(out.Items, x)
				if vec.Named() {
					out.Keys = append(out.Keys, vec.Keys[i])
				}
			}
		}
		return value.Vec(out), nil
	})

	in.Register("Repeat", 2, 2, func(c *Call) (value.Value, error) {
		n, err := c.Number(1)
		if err != nil {
			return value.Value{}, err
		}
		if n < 0 || n != math.Trunc(n) {
			return value.Value{}, argError("Repeat needs a whole, non-negative count, got %g.", n)
		}
		items := make([]value.Value, int(n))
		node := c.Node(0)
		for i := range items {
			if node == nil {
				v, err := c.Arg(0)
				if err != nil {
					return value.Value{}, err
				}
				items[i] = v
				continue
			}
			sc := NewScope(c.Scope)
			sc.Define("key", value.Num(float64(i+1)))
			v, err := c.Interp.eval(node, sc)
			if err != nil {
				return value.Value{}, err
			}
			items[i] = v
		}
		return value.List(items...), nil
	})

	in.Register("Select", 2, 2, func(c *Call) (value.Value, error) {
		vec, err := c.Arg(0)
		if err != nil {
			return value.Value{}, err
		}
		sel, err := c.Arg(1)
		if err != nil {
			return value.Value{}, err
		}
		return c.Interp.selectPath(vec, []selector{{v: sel}})
	})

	in.Register("Flatten", 1, 1, func(c *Call) (value.Value, error) {
		vec, err := c.Vector(0)
		if err != nil {
			return value.Value{}, err
		}
		return value.List(flatten(vec.Items)...), nil
	})

	in.Register("Keys", 1, 1, func(c *Call) (value.Value, error) {
		vec, err := c.Vector(0)
		if err != nil {
			return value.Value{}, err
		}
		items := make([]value.Value, vec.Len())
		for i := range vec.Items {
			if vec.Named() {
				items[i] = value.Str(vec.Keys[i])
			} else {
				items[i] = value.Num(float64(i + 1))
			}
		}
		return value.List(items...), nil
	})

	in.Register("Values", 1, 1, func(c *Call) (value.Value, error) {
		vec, err := c.Vector(0)
		if err != nil {
			return value.Value{}, err
		}
		return value.List(append([]value.Value(nil), vec.Items...)...), nil
	})

	in.Register("First", 1, 1, func(c *Call) (value.Value, error) {
		vec, err := c.Vector(0)
		if err != nil {
			return value.Value{}, err
		}
		if vec.Len() == 0 {
			return value.Value{}, indexError("First of an empty vector.")
		}
		return vec.Items[0], nil
	})

	in.Register("Last", 1, 1, func(c *Call) (value.Value, error) {
		vec, err := c.Vector(0)
		if err != nil {
			return value.Value{}, err
		}
		if vec.Len() == 0 {
			return value.Value{}, indexError("Last of an empty vector.")
		}
		return vec.Items[vec.Len()-1], nil
	})

	in.Register("Reverse", 1, 1, func(c *Call) (value.Value, error) {
		vec, err := c.Vector(0)
		if err != nil {
			return value.Value{}, err
		}
		out := vec.Clone()
		out.Parent = nil
		for i, j := 0, out.Len()-1; i < j; i, j = i+1, j-1 {
			out.Items[i], out.Items[j] = out.Items[j], out.Items[i]
			if out.Named() {
				out.Keys[i], out.Keys[j] = out.Keys[j], out.Keys[i]
			}
		}
		return value.Vec(out), nil
	})

	in.Register("Sort", 1, 1, func(c *Call) (value.Value, error) {
		vec, err := c.Vector(0)
		if err != nil {
			return value.Value{}, err
		}
		idx := make([]int, vec.Len())
		for i := range idx {
			idx[i] = i
		}
		var serr error
		sort.SliceStable(idx, func(a, b int) bool {
			lt, err := value.Binary(value.OpLt, vec.Items[idx[a]], vec.Items[idx[b]])
			if err != nil {
				serr = err
				return false
			}
			return lt.Truth()
		})
		if serr != nil {
			return value.Value{}, serr
		}
		return value.Vec(permute(vec, idx)), nil
	})

	in.Register("Unique", 1, 1, func(c *Call) (value.Value, error) {
		vec, err := c.Vector(0)
		if err != nil {
			return value.Value{}, err
		}
		var out []value.Value
		for _, x := range vec.Items {
			if !containsValue(out, x) {
				out = append(out, x)
			}
		}
		return value.List(out...), nil
	})

	setOp := func(name string, keep func(inA, inB bool) bool) {
		in.Register(name, 2, 2, func(c *Call) (value.Value, error) {
			a, err := c.Vector(0)
			if err != nil {
				return value.Value{}, err
			}
			b, err := c.Vector(1)
			if err != nil {
				return value.Value{}, err
			}
			var out []value.Value
			add := func(x value.Value) {
				if !containsValue(out, x) {
					out = append(out, x)
				}
			}
			for _, x := range a.Items {
				if keep(true, containsValue(b.Items, x)) {
					add(x)
				}
			}
			for _, x := range b.Items {
				if keep(containsValue(a.Items, x), true) {
					add(x)
				}
			}
			return value.List(out...), nil
		})
	}
	setOp("Union", func(inA, inB bool) bool { return inA || inB })
	setOp("Intersection", func(inA, inB bool) bool { return inA && inB })
	setOp("Difference", func(inA, inB bool) bool { return inA != inB })

	in.Register("Sample", 2, 3, func(c *Call) (value.Value, error) {
		vec, err := c.Vector(0)
		if err != nil {
			return value.Value{}, err
		}
		n, err := c.Number(1)
		if err != nil {
			return value.Value{}, err
		}
		repeat := false
		if c.Has(2) {
			r, err := c.Arg(2)
			if err != nil {
				return value.Value{}, err
			}
			if repeat, err = value.Truthy(r); err != nil {
				return value.Value{}, err
			}
		}
		count := int(n)
		if count < 0 || (!repeat && count > vec.Len()) {
			return value.Value{}, argError("Cannot sample %d items from a vector of length %d.", count, vec.Len())
		}
		out := make([]value.Value, count)
		if repeat {
			for i := range out {
				out[i] = vec.Items[c.Interp.rng.IntN(vec.Len())]
			}
			return value.List(out...), nil
		}
		perm := c.Interp.rng.Perm(vec.Len())
		for i := range out {
			out[i] = vec.Items[perm[i]]
		}
		return value.List(out...), nil
	})

	in.Register("Shuffle", 1, 1, func(c *Call) (value.Value, error) {
		vec, err := c.Vector(0)
		if err != nil {
			return value.Value{}, err
		}
		return value.Vec(permute(vec, c.Interp.rng.Perm(vec.Len()))), nil
	})

	in.Register("Lookup", 3, 3, func(c *Call) (value.Value, error) {
		x, err := c.Number(0)
		if err != nil {
			return value.Value{}, err
		}
		xv, err := c.Vector(1)
		if err != nil {
			return value.Value{}, err
		}
		yv, err := c.Vector(2)
		if err != nil {
			return value.Value{}, err
		}
		xs, _, err := magnitudes(xv.Items)
		if err != nil {
			return value.Value{}, err
		}
		ys, yu, err := magnitudes(yv.Items)
		if err != nil {
			return value.Value{}, err
		}
		t, err := NewTable(xs, ys)
		if err != nil {
			return value.Value{}, err
		}
		return value.NumU(t.Interpolate(x), yu), nil
	})
}

func containsValue(xs []value.Value, x value.Value) bool {
	for _, y := range xs {
		if value.Identical(x, y) {
			return true
		}
	}
	return false
}

func permute(vec *value.Vector, idx []int) *value.Vector {
	out := &value.Vector{Items: make([]value.Value, len(idx))}
	if vec.Named() {
		out.Keys = make([]string, len(idx))
	}
	for i, j := range idx {
		out.Items[i] = vec.Items[j]
		if vec.Named() {
			out.Keys[i] = vec.Keys[j]
		}
	}
	return out
}

// Table is a piecewise-linear lookup sorted by x.
type Table struct {
	xs, ys []float64
}

// NewTable validates and sorts the points of a lookup table.
func NewTable(xs, ys []float64) (*Table, error) {
	if len(xs) != len(ys) {
		return nil, dynamo.Errorf(dynamo.CodeConverter, "A lookup table needs as many x values as y values (%d and %d).", len(xs), len(ys))
	}
	if len(xs) == 0 {
		return nil, dynamo.Errorf(dynamo.CodeConverter, "A lookup table needs at least one point.")
	}
	idx := make([]int, len(xs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })
	t := &Table{xs: make([]float64, len(xs)), ys: make([]float64, len(xs))}
	for i, j := range idx {
		if math.IsNaN(xs[j]) || math.IsNaN(ys[j]) {
			return nil, dynamo.Errorf(dynamo.CodeConverter, "Lookup table point %d is not a number.", j+1)
		}
		t.xs[i], t.ys[i] = xs[j], ys[j]
	}
	return t, nil
}

// Interpolate evaluates the table at x, clamping outside its domain.
func (t *Table) Interpolate(x float64) float64 {
	n := len(t.xs)
	if x <= t.xs[0] {
		return t.ys[0]
	}
	if x >= t.xs[n-1] {
		return t.ys[n-1]
	}
	i := sort.SearchFloat64s(t.xs, x)
	if t.xs[i] == x {
		return t.ys[i]
	}
	x0, x1 := t.xs[i-1], t.xs[i]
	y0, y1 := t.ys[i-1], t.ys[i]
	return y0 + (y1-y0)*(x-x0)/(x1-x0)
}

// Discrete evaluates the table as a step function: the y of the last point
// at or before x.
func (t *Table) Discrete(x float64) float64 {
	if x <= t.xs[0] {
		return t.ys[0]
	}
	i := sort.Search(len(t.xs), func(i int) bool { return t.xs[i] > x })
	return t.ys[i-1]
}

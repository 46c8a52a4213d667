package eval

import (
	"errors"
	"math"

	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/lang"
	"github.com/san-kum/stockflow/internal/value"
)

var zero = value.Num(0)

// Node evaluates a single expression node. Builtins use it to evaluate lazy
// arguments in a scope of their choosing.
func (in *Interp) Node(n lang.Node, sc *Scope) (value.Value, error) {
	return in.eval(n, sc)
}

func (in *Interp) block(b *lang.Block, sc *Scope) (value.Value, error) {
	if b == nil {
		return zero, nil
	}
	last := zero
	for _, st := range b.Stmts {
		v, err := in.eval(st, sc)
		if err != nil {
			return value.Value{}, err
		}
		last = v
	}
	return last, nil
}

func (in *Interp) eval(n lang.Node, sc *Scope) (value.Value, error) {
	switch n := n.(type) {
	case *lang.NumberLit:
		return value.Num(n.Value), nil
	case *lang.StringLit:
		return value.Str(n.Value), nil
	case *lang.BoolLit:
		return value.Bool(n.Value), nil
	case *lang.VectorLit:
		return in.vectorLit(n, sc)
	case *lang.UnitLit:
		x, err := in.eval(n.X, sc)
		if err != nil {
			return value.Value{}, err
		}
		u, err := in.Units.Parse(n.Units)
		if err != nil {
			return value.Value{}, dynamo.Errorf(dynamo.CodeUnits, "Invalid units %q: %v", n.Units, err)
		}
		return value.WithUnits(x, u)
	case *lang.Ident:
		return in.ident(n.Name, sc)
	case *lang.PrimRef:
		if in.host == nil {
			return value.Value{}, dynamo.Errorf(dynamo.CodeReference, "The primitive [%s] does not exist.", n.Name)
		}
		return in.host.Reference(sc, n.Name)
	case *lang.Binary:
		return in.binary(n, sc)
	case *lang.Unary:
		x, err := in.eval(n.X, sc)
		if err != nil {
			return value.Value{}, err
		}
		if n.Op == lang.NOT {
			return value.Not(x)
		}
		return value.Neg(x)
	case *lang.Call:
		return in.call(n, sc)
	case *lang.Index:
		x, err := in.eval(n.X, sc)
		if err != nil {
			return value.Value{}, err
		}
		return in.index(x, n.Indices, sc)
	case *lang.Member:
		x, err := in.eval(n.X, sc)
		if err != nil {
			return value.Value{}, err
		}
		return in.member(x, n.Name)
	case *lang.Assign:
		v, err := in.eval(n.Value, sc)
		if err != nil {
			return value.Value{}, err
		}
		if err := in.assign(n.Target, v, sc); err != nil {
			return value.Value{}, err
		}
		return v, nil
	case *lang.If:
		for i, c := range n.Conds {
			cv, err := in.eval(c, sc)
			if err != nil {
				return value.Value{}, err
			}
			ok, err := value.Truthy(cv)
			if err != nil {
				return value.Value{}, err
			}
			if ok {
				return in.block(n.Bodies[i], sc)
			}
		}
		return in.block(n.Else, sc)
	case *lang.While:
		return in.while(n, sc)
	case *lang.ForRange:
		return in.forRange(n, sc)
	case *lang.ForIn:
		return in.forIn(n, sc)
	case *lang.FuncLit:
		fn := value.Fn(&value.Function{Name: n.Name, Impl: &Closure{Lit: n, Scope: sc}})
		if n.Name != "" {
			sc.Set(n.Name, fn)
		}
		return fn, nil
	case *lang.Block:
		return in.block(n, sc)
	case *lang.Return:
		v := zero
		if n.X != nil {
			var err error
			if v, err = in.eval(n.X, sc); err != nil {
				return value.Value{}, err
			}
		}
		return value.Value{}, &returnSignal{v: v}
	case *lang.Throw:
		v := zero
		if n.X != nil {
			var err error
			if v, err = in.eval(n.X, sc); err != nil {
				return value.Value{}, err
			}
		}
		return value.Value{}, thrown(v)
	case *lang.Try:
		return in.try(n, sc)
	case *lang.New:
		return in.newObject(n, sc)
	case *lang.Wildcard:
		return value.Value{}, indexError("The * selector is only valid inside an index.")
	}
	return value.Value{}, typeError("Cannot evaluate %T.", n)
}

func (in *Interp) ident(name string, sc *Scope) (value.Value, error) {
	if v, ok := sc.Get(name); ok {
		return v, nil
	}
	if v, ok := in.consts[name]; ok {
		return v, nil
	}
	if nat, ok := in.natives[name]; ok {
		return value.Fn(&value.Function{Name: nat.Name, Impl: nat}), nil
	}
	return value.Value{}, refError(name)
}

func (in *Interp) vectorLit(n *lang.VectorLit, sc *Scope) (value.Value, error) {
	items := make([]value.Value, len(n.Items))
	for i, it := range n.Items {
		v, err := in.eval(it.Value, sc)
		if err != nil {
			return value.Value{}, err
		}
		items[i] = v
	}
	if !n.Named {
		return value.List(items...), nil
	}
	keys := make([]string, len(n.Items))
	for i, it := range n.Items {
		keys[i] = it.Key
	}
	return value.Vec(value.NewNamed(keys, items)), nil
}

var binaryOps = map[lang.TokenType]value.Op{
	lang.PLUS:       value.OpAdd,
	lang.MINUS:      value.OpSub,
	lang.STAR:       value.OpMul,
	lang.SLASH:      value.OpDiv,
	lang.CARET:      value.OpPow,
	lang.PERCENT:    value.OpMod,
	lang.EQ:         value.OpEq,
	lang.NEQ:        value.OpNeq,
	lang.LESS:       value.OpLt,
	lang.LESS_EQ:    value.OpLe,
	lang.GREATER:    value.OpGt,
	lang.GREATER_EQ: value.OpGe,
}

func (in *Interp) binary(n *lang.Binary, sc *Scope) (value.Value, error) {
	l, err := in.eval(n.L, sc)
	if err != nil {
		return value.Value{}, err
	}
	switch n.Op {
	case lang.AND, lang.OR:
		lb, err := value.Truthy(l)
		if err != nil {
			return value.Value{}, err
		}
		if n.Op == lang.AND && !lb {
			return value.Bool(false), nil
		}
		if n.Op == lang.OR && lb {
			return value.Bool(true), nil
		}
		r, err := in.eval(n.R, sc)
		if err != nil {
			return value.Value{}, err
		}
		rb, err := value.Truthy(r)
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool(rb), nil
	}
	r, err := in.eval(n.R, sc)
	if err != nil {
		return value.Value{}, err
	}
	if n.Op == lang.XOR {
		lb, err := value.Truthy(l)
		if err != nil {
			return value.Value{}, err
		}
		rb, err := value.Truthy(r)
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool(lb != rb), nil
	}
	op, ok := binaryOps[n.Op]
	if !ok {
		return value.Value{}, typeError("Unknown operator.")
	}
	return value.Binary(op, l, r)
}

func (in *Interp) while(n *lang.While, sc *Scope) (value.Value, error) {
	last := zero
	for {
		cv, err := in.eval(n.Cond, sc)
		if err != nil {
			return value.Value{}, err
		}
		ok, err := value.Truthy(cv)
		if err != nil {
			return value.Value{}, err
		}
		if !ok {
			return last, nil
		}
		if last, err = in.block(n.Body, sc); err != nil {
			return value.Value{}, err
		}
	}
}

func (in *Interp) forRange(n *lang.ForRange, sc *Scope) (value.Value, error) {
	from, err := in.eval(n.From, sc)
	if err != nil {
		return value.Value{}, err
	}
	to, err := in.eval(n.To, sc)
	if err != nil {
		return value.Value{}, err
	}
	by := value.NumU(1, from.Unit())
	if n.By != nil {
		if by, err = in.eval(n.By, sc); err != nil {
			return value.Value{}, err
		}
	}
	if _, err := value.Number(from); err != nil {
		return value.Value{}, err
	}
	// Express the bound and step in the loop variable's units.
	if to, err = value.Convert(to, from.Unit()); err != nil {
		return value.Value{}, err
	}
	if by, err = value.Convert(by, from.Unit()); err != nil {
		return value.Value{}, err
	}
	step := by.Float()
	if step == 0 {
		return value.Value{}, argError("A for loop step cannot be 0.")
	}
	eps := math.Abs(step) * 1e-10
	last := zero
	for x := from.Float(); (step > 0 && x <= to.Float()+eps) || (step < 0 && x >= to.Float()-eps); x += step {
		sc.Set(n.Var, value.NumU(x, from.Unit()))
		if last, err = in.block(n.Body, sc); err != nil {
			return value.Value{}, err
		}
	}
	return last, nil
}

func (in *Interp) forIn(n *lang.ForIn, sc *Scope) (value.Value, error) {
	it, err := in.eval(n.Iter, sc)
	if err != nil {
		return value.Value{}, err
	}
	if it.Kind != value.KindVector {
		return value.Value{}, typeError("A for-in loop needs a Vector, got a %s.", value.Describe(it))
	}
	last := zero
	for _, x := range it.Vector().Items {
		sc.Set(n.Var, x)
		if last, err = in.block(n.Body, sc); err != nil {
			return value.Value{}, err
		}
	}
	return last, nil
}

func (in *Interp) try(n *lang.Try, sc *Scope) (value.Value, error) {
	v, err := in.block(n.Body, sc)
	if err == nil {
		return v, nil
	}
	var ret *returnSignal
	if errors.As(err, &ret) || errors.Is(err, dynamo.ErrStopped) {
		return value.Value{}, err
	}
	caught := value.Str(err.Error())
	var te *ThrowError
	if errors.As(err, &te) {
		caught = te.Value
	} else {
		var de *dynamo.Error
		if errors.As(err, &de) {
			caught = value.Str(de.Message)
		}
	}
	if n.Var != "" {
		sc.Set(n.Var, caught)
	}
	return in.block(n.Catch, sc)
}

func (in *Interp) newObject(n *lang.New, sc *Scope) (value.Value, error) {
	proto, err := in.eval(n.X, sc)
	if err != nil {
		return value.Value{}, err
	}
	if proto.Kind != value.KindVector || !proto.Vector().Named() {
		return value.Value{}, typeError("new requires a named Vector, got a %s.", value.Describe(proto))
	}
	inst := proto.Vector().Clone()
	inst.Parent = proto.Vector()
	if ctor, ok := inst.Lookup("constructor"); ok && ctor.Kind == value.KindFunction {
		c := in.newCall(sc, nil, "constructor", n.Args, nil)
		if _, err := in.apply(ctor.Function().Bound(inst), c); err != nil {
			return value.Value{}, err
		}
	}
	return value.Vec(inst), nil
}

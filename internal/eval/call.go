package eval

import (
	"errors"

	"github.com/san-kum/stockflow/internal/lang"
	"github.com/san-kum/stockflow/internal/value"
)

// Builtin implements a native function.
type Builtin func(c *Call) (value.Value, error)

// Native is a registered builtin. Max < 0 means variadic.
type Native struct {
	Name     string
	Min, Max int
	Fn       Builtin
}

// Closure is a user function and the frame it was created in.
type Closure struct {
	Lit   *lang.FuncLit
	Scope *Scope
}

// Register installs a builtin under a case-insensitive name.
func (in *Interp) Register(name string, min, max int, fn Builtin) {
	in.natives[key(name)] = &Native{Name: name, Min: min, Max: max, Fn: fn}
}

// Lookup returns the builtin registered under name.
func (in *Interp) Lookup(name string) (*Native, bool) {
	n, ok := in.natives[key(name)]
	return n, ok
}

// Call gives a builtin access to its arguments. Arguments written at the
// call site are evaluated on first access; Node exposes their syntax so
// engine builtins can inspect [Primitive] references.
type Call struct {
	Interp *Interp
	Scope  *Scope
	Site   *lang.Call
	Name   string
	Self   *value.Vector

	nodes []lang.Node
	vals  []value.Value
	done  []bool
	extra map[string]value.Value
}

func (in *Interp) newCall(sc *Scope, site *lang.Call, name string, nodes []lang.Node, vals []value.Value) *Call {
	n := len(nodes)
	if len(vals) > n {
		n = len(vals)
	}
	c := &Call{Interp: in, Scope: sc, Site: site, Name: name, nodes: make([]lang.Node, n), vals: make([]value.Value, n), done: make([]bool, n)}
	copy(c.nodes, nodes)
	for i, v := range vals {
		c.vals[i] = v
		c.done[i] = true
	}
	return c
}

// Len is the number of arguments supplied.
func (c *Call) Len() int { return len(c.vals) }

// Node is the syntax of argument i, or nil when it was passed as a value.
func (c *Call) Node(i int) lang.Node {
	if i < len(c.nodes) {
		return c.nodes[i]
	}
	return nil
}

// Arg evaluates argument i.
func (c *Call) Arg(i int) (value.Value, error) {
	if i >= len(c.vals) {
		return value.Value{}, argError("%s needs at least %d arguments.", c.Name, i+1)
	}
	if !c.done[i] {
		v, err := c.Interp.eval(c.nodes[i], c.Scope)
		if err != nil {
			return value.Value{}, err
		}
		c.vals[i] = v
		c.done[i] = true
	}
	return c.vals[i], nil
}

// Has reports whether argument i was supplied.
func (c *Call) Has(i int) bool { return i < len(c.vals) }

// Args evaluates every argument.
func (c *Call) Args() ([]value.Value, error) {
	out := make([]value.Value, c.Len())
	for i := range out {
		v, err := c.Arg(i)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Number evaluates argument i as a magnitude, ignoring its units.
func (c *Call) Number(i int) (float64, error) {
	v, err := c.Arg(i)
	if err != nil {
		return 0, err
	}
	f, err := value.Number(v)
	if err != nil {
		return 0, argError("Argument %d of %s: %v", i+1, c.Name, err)
	}
	return f, nil
}

// NumberOr is Number with a default for an omitted argument.
func (c *Call) NumberOr(i int, def float64) (float64, error) {
	if !c.Has(i) {
		return def, nil
	}
	return c.Number(i)
}

// Vector evaluates argument i and requires a Vector.
func (c *Call) Vector(i int) (*value.Vector, error) {
	v, err := c.Arg(i)
	if err != nil {
		return nil, err
	}
	if v.Kind != value.KindVector {
		return nil, argError("Argument %d of %s must be a Vector, got a %s.", i+1, c.Name, value.Describe(v))
	}
	return v.Vector(), nil
}

// String evaluates argument i and requires a String.
func (c *Call) String(i int) (string, error) {
	v, err := c.Arg(i)
	if err != nil {
		return "", err
	}
	if v.Kind != value.KindString {
		return "", argError("Argument %d of %s must be a String, got a %s.", i+1, c.Name, value.Describe(v))
	}
	return v.Text(), nil
}

// Position identifies the call site for per-site state; zero when the
// builtin was invoked as a value.
func (c *Call) Position() lang.Pos {
	if c.Site == nil {
		return lang.Pos{}
	}
	return c.Site.Pos
}

func (in *Interp) call(n *lang.Call, sc *Scope) (value.Value, error) {
	switch fn := n.Fn.(type) {
	case *lang.Ident:
		if v, ok := sc.Get(fn.Name); ok {
			return in.invoke(v, in.newCall(sc, n, fn.Name, n.Args, nil))
		}
		if nat, ok := in.natives[fn.Name]; ok {
			return in.native(nat, in.newCall(sc, n, nat.Name, n.Args, nil))
		}
		return value.Value{}, refError(fn.Name)
	case *lang.Member:
		recv, err := in.eval(fn.X, sc)
		if err != nil {
			return value.Value{}, err
		}
		return in.methodCall(recv, fn.Name, n, sc)
	}
	f, err := in.eval(n.Fn, sc)
	if err != nil {
		return value.Value{}, err
	}
	return in.invoke(f, in.newCall(sc, n, "function", n.Args, nil))
}

// methodCall dispatches recv.name(args): a function stored on a named
// vector is called bound to it, otherwise the global function name is called
// with recv as its first argument.
func (in *Interp) methodCall(recv value.Value, name string, n *lang.Call, sc *Scope) (value.Value, error) {
	if recv.Kind == value.KindVector && recv.Vector().Named() {
		if m, ok := recv.Vector().Lookup(name); ok {
			if m.Kind != value.KindFunction {
				return value.Value{}, typeError("%s is not a function.", name)
			}
			return in.invoke(value.Fn(m.Function().Bound(recv.Vector())), in.newCall(sc, n, name, n.Args, nil))
		}
	}
	nodes := append([]lang.Node{nil}, n.Args...)
	c := in.newCall(sc, n, name, nodes, nil)
	c.vals[0], c.done[0] = recv, true
	if v, ok := sc.Get(name); ok && v.Kind == value.KindFunction {
		return in.invoke(v, c)
	}
	if nat, ok := in.natives[key(name)]; ok {
		c.Name = nat.Name
		return in.native(nat, c)
	}
	return value.Value{}, refError(name)
}

func (in *Interp) invoke(f value.Value, c *Call) (value.Value, error) {
	if f.Kind != value.KindFunction {
		return value.Value{}, typeError("%s is not a function.", c.Name)
	}
	return in.apply(f.Function(), c)
}

func (in *Interp) apply(fn *value.Function, c *Call) (value.Value, error) {
	switch impl := fn.Impl.(type) {
	case *Native:
		c.Name = impl.Name
		c.Self = fn.Self
		return in.native(impl, c)
	case *Closure:
		return in.closure(fn, impl, c)
	}
	return value.Value{}, typeError("%s is not callable.", fn.Name)
}

func (in *Interp) native(nat *Native, c *Call) (value.Value, error) {
	if c.Len() < nat.Min || (nat.Max >= 0 && c.Len() > nat.Max) {
		return value.Value{}, arityError(nat, c.Len())
	}
	return nat.Fn(c)
}

func arityError(nat *Native, got int) error {
	switch {
	case nat.Max < 0:
		return argError("%s needs at least %d arguments, got %d.", nat.Name, nat.Min, got)
	case nat.Min == nat.Max:
		return argError("%s needs %d arguments, got %d.", nat.Name, nat.Min, got)
	}
	return argError("%s needs %d to %d arguments, got %d.", nat.Name, nat.Min, nat.Max, got)
}

func (in *Interp) closure(fn *value.Function, cl *Closure, c *Call) (value.Value, error) {
	params := cl.Lit.Params
	if c.Len() > len(params) {
		return value.Value{}, argError("%s takes %d arguments, got %d.", displayName(fn), len(params), c.Len())
	}
	if in.depth >= maxDepth {
		return value.Value{}, typeError("Maximum function call depth exceeded in %s.", displayName(fn))
	}

	frame := NewScope(cl.Scope)
	if fn.Self != nil {
		frame.Define("self", value.Vec(fn.Self))
		if fn.Self.Parent != nil {
			frame.Define("parent", value.Vec(fn.Self.Parent))
		}
	}
	for k, v := range c.extra {
		frame.Define(k, v)
	}
	for i, p := range params {
		if c.Has(i) {
			v, err := c.Arg(i)
			if err != nil {
				return value.Value{}, err
			}
			frame.Define(p.Name, v)
			continue
		}
		if p.Default == nil {
			return value.Value{}, argError("%s is missing argument %q.", displayName(fn), p.Name)
		}
		v, err := in.eval(p.Default, frame)
		if err != nil {
			return value.Value{}, err
		}
		frame.Define(p.Name, v)
	}

	in.depth++
	defer func() { in.depth-- }()
	v, err := in.block(cl.Lit.Body, frame)
	var ret *returnSignal
	if errors.As(err, &ret) {
		return ret.v, nil
	}
	return v, err
}

func displayName(fn *value.Function) string {
	if fn.Name != "" {
		return fn.Name
	}
	return "function"
}

// Apply calls a function value with evaluated arguments.
func (in *Interp) Apply(f value.Value, args ...value.Value) (value.Value, error) {
	return in.invoke(f, in.newCall(in.Globals, nil, "function", nil, args))
}

// ApplyWith is Apply with extra implicit bindings (such as key) visible to a
// user function's body.
func (in *Interp) ApplyWith(f value.Value, extra map[string]value.Value, args ...value.Value) (value.Value, error) {
	c := in.newCall(in.Globals, nil, "function", nil, args)
	c.extra = extra
	return in.invoke(f, c)
}

// Arity reports how many parameters a user function declares, or -1 for a
// builtin.
func Arity(f value.Value) int {
	if f.Kind != value.KindFunction {
		return -1
	}
	if cl, ok := f.Function().Impl.(*Closure); ok {
		return len(cl.Lit.Params)
	}
	return -1
}

// Package eval is a tree-walking interpreter for model equations.
//
// An Interp owns the builtin table, the global scope holding macros, and the
// random stream of one simulation run. It is not safe for concurrent use;
// concurrent runs each build their own Interp.
package eval

import (
	"errors"
	"math/rand/v2"
	"strings"

	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/lang"
	"github.com/san-kum/stockflow/internal/units"
	"github.com/san-kum/stockflow/internal/value"
)

// Host resolves [Primitive] references for the scope being evaluated.
type Host interface {
	Reference(sc *Scope, name string) (value.Value, error)
}

// maxDepth bounds user function recursion.
const maxDepth = 512

// Interp evaluates parsed equations.
type Interp struct {
	Globals *Scope
	Units   *units.Registry

	host    Host
	rng     *rand.Rand
	natives map[string]*Native
	consts  map[string]value.Value
	depth   int
}

// Option configures an Interp.
type Option func(*Interp)

// WithHost installs the primitive resolver.
func WithHost(h Host) Option {
	return func(in *Interp) { in.host = h }
}

// WithUnits shares a unit registry (custom units of the model).
func WithUnits(r *units.Registry) Option {
	return func(in *Interp) { in.Units = r }
}

// WithSeed seeds the random stream.
func WithSeed(seed uint64) Option {
	return func(in *Interp) { in.Seed(seed) }
}

// New returns an interpreter with the standard library installed.
func New(opts ...Option) *Interp {
	in := &Interp{
		Globals: NewScope(nil),
		Units:   units.NewRegistry(),
		natives: make(map[string]*Native),
		consts:  make(map[string]value.Value),
	}
	in.Seed(0)
	registerMath(in)
	registerStats(in)
	registerDistributions(in)
	registerStrings(in)
	registerVectors(in)
	registerLogic(in)
	for _, o := range opts {
		o(in)
	}
	return in
}

// SetHost replaces the primitive resolver.
func (in *Interp) SetHost(h Host) { in.host = h }

// Seed resets the random stream. Identical seeds give identical streams.
func (in *Interp) Seed(seed uint64) {
	in.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Rand is the run's random stream.
func (in *Interp) Rand() *rand.Rand { return in.rng }

// Const defines a named constant visible to every equation.
func (in *Interp) Const(name string, v value.Value) {
	in.consts[strings.ToLower(name)] = v
}

// Compile parses src, wrapping syntax errors with CodeSyntax.
func Compile(src string) (*lang.Block, error) {
	blk, err := lang.Parse(src)
	if err != nil {
		return nil, dynamo.Wrap(dynamo.CodeSyntax, lang.Describe(err, src))
	}
	return blk, nil
}

// Eval runs blk in sc and returns the value of its last statement. A
// top-level return ends evaluation with its value.
func (in *Interp) Eval(blk *lang.Block, sc *Scope) (value.Value, error) {
	v, err := in.block(blk, sc)
	var ret *returnSignal
	if errors.As(err, &ret) {
		return ret.v, nil
	}
	return v, err
}

// EvalString compiles and runs src in a child of the global scope.
func (in *Interp) EvalString(src string) (value.Value, error) {
	blk, err := Compile(src)
	if err != nil {
		return value.Value{}, err
	}
	return in.Eval(blk, NewScope(in.Globals))
}

// DefineMacros runs src directly in the global scope so that its functions
// and variables are visible to every equation.
func (in *Interp) DefineMacros(src string) error {
	if strings.TrimSpace(src) == "" {
		return nil
	}
	blk, err := Compile(src)
	if err != nil {
		return err
	}
	_, err = in.Eval(blk, in.Globals)
	return err
}

// returnSignal unwinds a return statement to the enclosing call.
type returnSignal struct{ v value.Value }

func (r *returnSignal) Error() string { return "return outside of a function" }

// ThrowError carries a user throw out of an equation.
type ThrowError struct {
	Value value.Value
}

func (e *ThrowError) Error() string { return e.Value.String() }

// Thrown converts an escaping throw into a coded error.
func thrown(v value.Value) error {
	return &dynamo.Error{Code: dynamo.CodeThrow, Message: v.String(), Wrapped: &ThrowError{Value: v}}
}

func refError(name string) error {
	return dynamo.Errorf(dynamo.CodeReference, "The variable or function %q does not exist.", name)
}

func argError(format string, args ...any) error {
	return dynamo.Errorf(dynamo.CodeArguments, format, args...)
}

func typeError(format string, args ...any) error {
	return dynamo.Errorf(dynamo.CodeType, format, args...)
}

func indexError(format string, args ...any) error {
	return dynamo.Errorf(dynamo.CodeIndex, format, args...)
}

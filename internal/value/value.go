// Package value defines the runtime values manipulated by model equations.
//
// Value is a closed tagged union: every operator and builtin switches on
// Value.Kind explicitly, so each coercion rule is a visible match arm.
package value

import (
	"sort"
	"strconv"
	"strings"

	"github.com/san-kum/stockflow/internal/units"
)

// Kind enumerates the runtime kinds a Value may hold.
type Kind int

const (
	KindNumber Kind = iota
	KindBool
	KindString
	KindVector
	KindFunction
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "Number"
	case KindBool:
		return "Boolean"
	case KindString:
		return "String"
	case KindVector:
		return "Vector"
	case KindFunction:
		return "Function"
	case KindObject:
		return "Object"
	}
	return "Unknown"
}

// Value is the universal runtime carrier. Only the fields matching Kind are
// meaningful. The zero Value is the unitless number 0.
type Value struct {
	Kind Kind
	num  float64
	unit *units.Unit
	flag bool
	str  string
	vec  *Vector
	fn   *Function
	obj  Object
}

// Object is a host handle carried through equations (agents, populations).
// Objects compare by identity.
type Object interface {
	TypeName() string
	ObjectID() string
}

// Function is a callable value. Impl belongs to the evaluator (a closure or
// a native); Self is the receiver bound by member access, if any.
type Function struct {
	Name string
	Impl any
	Self *Vector
}

// Bound returns a copy of f with its receiver set.
func (f *Function) Bound(self *Vector) *Function {
	cp := *f
	cp.Self = self
	return &cp
}

// Constructors.
func Num(f float64) Value                 { return Value{Kind: KindNumber, num: f} }
func NumU(f float64, u *units.Unit) Value { return Value{Kind: KindNumber, num: f, unit: u} }
func Bool(b bool) Value                   { return Value{Kind: KindBool, flag: b} }
func Str(s string) Value                  { return Value{Kind: KindString, str: s} }
func Vec(v *Vector) Value                 { return Value{Kind: KindVector, vec: v} }
func Fn(f *Function) Value                { return Value{Kind: KindFunction, fn: f} }
func Obj(o Object) Value                  { return Value{Kind: KindObject, obj: o} }

// List builds a positional vector value.
func List(items ...Value) Value { return Vec(&Vector{Items: items}) }

// Floats builds a positional vector of unitless numbers.
func Floats(xs []float64) Value {
	items := make([]Value, len(xs))
	for i, x := range xs {
		items[i] = Num(x)
	}
	return List(items...)
}

// Accessors. They return zero values when Kind does not match.
func (v Value) Float() float64      { return v.num }
func (v Value) Unit() *units.Unit   { return v.unit }
func (v Value) Truth() bool         { return v.flag }
func (v Value) Text() string        { return v.str }
func (v Value) Vector() *Vector     { return v.vec }
func (v Value) Function() *Function { return v.fn }
func (v Value) Object() Object      { return v.obj }

func (v Value) IsNumber() bool { return v.Kind == KindNumber }
func (v Value) IsVector() bool { return v.Kind == KindVector }

// WithoutUnits strips units from a number (and recursively from vectors).
func (v Value) WithoutUnits() Value {
	switch v.Kind {
	case KindNumber:
		return Num(v.num)
	case KindVector:
		return Vec(v.vec.Map(func(x Value) Value { return x.WithoutUnits() }))
	}
	return v
}

// String renders the value the way equations write it.
func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		s := formatNumber(v.num)
		if !units.IsUnitless(v.unit) {
			return "{" + s + " " + v.unit.String() + "}"
		}
		return s
	case KindBool:
		if v.flag {
			return "true"
		}
		return "false"
	case KindString:
		return v.str
	case KindVector:
		return v.vec.String()
	case KindFunction:
		if v.fn.Name != "" {
			return "<function " + v.fn.Name + ">"
		}
		return "<function>"
	case KindObject:
		return "<" + v.obj.TypeName() + " " + v.obj.ObjectID() + ">"
	}
	return "<unknown>"
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Vector is an ordered container. Keys is nil for positional vectors; for
// named vectors Keys[i] labels Items[i] and keys are unique. Parent links an
// object created by new to its prototype.
type Vector struct {
	Items  []Value
	Keys   []string
	Parent *Vector
}

// NewNamed builds a named vector from parallel keys and items.
func NewNamed(keys []string, items []Value) *Vector {
	return &Vector{Keys: keys, Items: items}
}

func (v *Vector) Len() int      { return len(v.Items) }
func (v *Vector) Named() bool    { return v.Keys != nil }
func (v *Vector) At(i int) Value { return v.Items[i] }

// KeyIndex finds key exactly, then case-insensitively. It returns -1 when absent.
func (v *Vector) KeyIndex(key string) int {
	for i, k := range v.Keys {
		if k == key {
			return i
		}
	}
	for i, k := range v.Keys {
		if strings.EqualFold(k, key) {
			return i
		}
	}
	return -1
}

// Get returns the value under key.
func (v *Vector) Get(key string) (Value, bool) {
	if i := v.KeyIndex(key); i >= 0 {
		return v.Items[i], true
	}
	return Value{}, false
}

// Lookup finds key on the vector, then on its prototype. The chain is two
// levels deep: a prototype's own parent is not consulted.
func (v *Vector) Lookup(key string) (Value, bool) {
	if val, ok := v.Get(key); ok {
		return val, true
	}
	if v.Parent != nil {
		return v.Parent.Get(key)
	}
	return Value{}, false
}

// Set replaces the value under key or appends a new key. Setting a key on a
// positional vector turns it into a named one with positional keys "1".."n".
func (v *Vector) Set(key string, val Value) {
	if i := v.KeyIndex(key); i >= 0 {
		v.Items[i] = val
		return
	}
	if v.Keys == nil {
		v.Keys = make([]string, len(v.Items))
		for i := range v.Items {
			v.Keys[i] = strconv.Itoa(i + 1)
		}
	}
	v.Keys = append(v.Keys, key)
	v.Items = append(v.Items, val)
}

// Clone makes a shallow copy (items are shared values, the slices are new).
func (v *Vector) Clone() *Vector {
	cp := &Vector{Items: make([]Value, len(v.Items)), Parent: v.Parent}
	copy(cp.Items, v.Items)
	if v.Keys != nil {
		cp.Keys = make([]string, len(v.Keys))
		copy(cp.Keys, v.Keys)
	}
	return cp
}

// Map applies f to every element, preserving keys.
func (v *Vector) Map(f func(Value) Value) *Vector {
	out := v.Clone()
	for i, x := range out.Items {
		out.Items[i] = f(x)
	}
	return out
}

// MapErr is Map with a fallible function.
func (v *Vector) MapErr(f func(Value) (Value, error)) (*Vector, error) {
	out := v.Clone()
	for i, x := range out.Items {
		y, err := f(x)
		if err != nil {
			return nil, err
		}
		out.Items[i] = y
	}
	return out, nil
}

func (v *Vector) String() string {
	parts := make([]string, len(v.Items))
	for i, x := range v.Items {
		s := x.String()
		if x.Kind == KindString {
			s = strconv.Quote(s)
		}
		if v.Keys != nil {
			s = v.Keys[i] + ": " + s
		}
		parts[i] = s
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Simplify converts a value into plain Go data for result series: numbers
// become float64, named vectors map[string]any, positional vectors []any.
func Simplify(v Value) any {
	switch v.Kind {
	case KindNumber:
		return v.num
	case KindBool:
		return v.flag
	case KindString:
		return v.str
	case KindVector:
		if v.vec.Named() {
			m := make(map[string]any, len(v.vec.Items))
			for i, k := range v.vec.Keys {
				m[k] = Simplify(v.vec.Items[i])
			}
			return m
		}
		out := make([]any, len(v.vec.Items))
		for i, x := range v.vec.Items {
			out[i] = Simplify(x)
		}
		return out
	case KindObject:
		return v.obj.ObjectID()
	}
	return v.String()
}

// Identical reports deep structural equality, used by set algebra. Numbers
// compare by magnitude in base units; objects and functions by identity.
func Identical(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNumber:
		return a.num*a.unit.Scale() == b.num*b.unit.Scale() && units.Compatible(a.unit, b.unit)
	case KindBool:
		return a.flag == b.flag
	case KindString:
		return a.str == b.str
	case KindFunction:
		return a.fn == b.fn
	case KindObject:
		return a.obj == b.obj
	case KindVector:
		if a.vec.Len() != b.vec.Len() || a.vec.Named() != b.vec.Named() {
			return false
		}
		for i := range a.vec.Items {
			if a.vec.Named() && a.vec.Keys[i] != b.vec.Keys[i] {
				return false
			}
			if !Identical(a.vec.Items[i], b.vec.Items[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// SortKeys returns the keys of a named vector in lexical order.
func (v *Vector) SortKeys() []string {
	keys := append([]string(nil), v.Keys...)
	sort.Strings(keys)
	return keys
}

// Describe names the kind of v for error messages.
func Describe(v Value) string {
	if v.Kind == KindObject {
		return v.obj.TypeName()
	}
	return v.Kind.String()
}

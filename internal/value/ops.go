package value

import (
	"math"

	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/units"
)

// Op is an arithmetic or comparison operator.
type Op int

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpPow
	OpMod
	OpEq
	OpNeq
	OpLt
	OpLe
	OpGt
	OpGe
)

var opNames = [...]string{"+", "-", "*", "/", "^", "mod", "=", "<>", "<", "<=", ">", ">="}

func (o Op) String() string { return opNames[o] }

func (o Op) comparison() bool { return o >= OpEq }

// Binary applies op to a and b. Vectors broadcast against scalars and combine
// elementwise with vectors of the same shape.
func Binary(op Op, a, b Value) (Value, error) {
	if a.Kind == KindVector || b.Kind == KindVector {
		return broadcast(op, a, b)
	}
	if op.comparison() {
		return compare(op, a, b)
	}
	return arith(op, a, b)
}

func broadcast(op Op, a, b Value) (Value, error) {
	// Equality between two vectors or a vector and a scalar is elementwise;
	// functions and objects never broadcast.
	if a.Kind != KindVector {
		out, err := b.vec.MapErr(func(x Value) (Value, error) { return Binary(op, a, x) })
		if err != nil {
			return Value{}, err
		}
		return Vec(out), nil
	}
	if b.Kind != KindVector {
		out, err := a.vec.MapErr(func(x Value) (Value, error) { return Binary(op, x, b) })
		if err != nil {
			return Value{}, err
		}
		return Vec(out), nil
	}
	av, bv := a.vec, b.vec
	if av.Named() && bv.Named() {
		if av.Len() != bv.Len() {
			return Value{}, dynamo.Errorf(dynamo.CodeIndex, "Vector keys do not match between %s and %s.", av, bv)
		}
		out := av.Clone()
		out.Parent = nil
		for i, k := range av.Keys {
			j := bv.KeyIndex(k)
			if j < 0 {
				return Value{}, dynamo.Errorf(dynamo.CodeIndex, "Vector keys do not match: key %q is missing.", k)
			}
			r, err := Binary(op, av.Items[i], bv.Items[j])
			if err != nil {
				return Value{}, err
			}
			out.Items[i] = r
		}
		return Vec(out), nil
	}
	if av.Len() != bv.Len() {
		return Value{}, dynamo.Errorf(dynamo.CodeIndex, "Vectors must have equal length (%d and %d).", av.Len(), bv.Len())
	}
	out := av
	if !av.Named() {
		out = bv
	}
	res := out.Clone()
	res.Parent = nil
	for i := range av.Items {
		r, err := Binary(op, av.Items[i], bv.Items[i])
		if err != nil {
			return Value{}, err
		}
		res.Items[i] = r
	}
	return Vec(res), nil
}

func arith(op Op, a, b Value) (Value, error) {
	if op == OpAdd && (a.Kind == KindString || b.Kind == KindString) {
		if a.Kind == KindString || a.Kind == KindNumber || a.Kind == KindBool {
			if b.Kind == KindString || b.Kind == KindNumber || b.Kind == KindBool {
				return Str(a.String() + b.String()), nil
			}
		}
	}
	if err := numeric(a, op); err != nil {
		return Value{}, err
	}
	if err := numeric(b, op); err != nil {
		return Value{}, err
	}

	x, y := a.num, b.num
	switch op {
	case OpAdd, OpSub, OpMod:
		u, y2, err := alignUnits(op, a, b)
		if err != nil {
			return Value{}, err
		}
		y = y2
		switch op {
		case OpAdd:
			return NumU(x+y, u), nil
		case OpSub:
			return NumU(x-y, u), nil
		default:
			return NumU(floorMod(x, y), u), nil
		}
	case OpMul:
		return normalize(x*y, units.Mul(a.unit, b.unit)), nil
	case OpDiv:
		return normalize(x/y, units.Div(a.unit, b.unit)), nil
	case OpPow:
		if !units.IsUnitless(b.unit) {
			return Value{}, dynamo.Errorf(dynamo.CodeUnits, "Exponents must be unitless, got %s.", b.unit)
		}
		return normalize(math.Pow(x, y), units.Pow(a.unit, y)), nil
	}
	return Value{}, dynamo.Errorf(dynamo.CodeType, "Unsupported operator %s.", op)
}

// floorMod keeps the sign of the divisor.
func floorMod(x, y float64) float64 {
	m := math.Mod(x, y)
	if m != 0 && (m < 0) != (y < 0) {
		m += y
	}
	return m
}

func numeric(v Value, op Op) error {
	switch v.Kind {
	case KindNumber:
		return nil
	case KindBool:
		return dynamo.Wrap(dynamo.CodeType, dynamo.ErrBooleanArithmetic)
	}
	return dynamo.Errorf(dynamo.CodeType, "Cannot apply %s to a %s.", op, Describe(v))
}

// alignUnits returns the unit of the result and b's magnitude converted into
// a's unit. Mixing a unitless number with a dimensioned one is an error.
func alignUnits(op Op, a, b Value) (*units.Unit, float64, error) {
	if units.IsUnitless(a.unit) && units.IsUnitless(b.unit) {
		return nil, b.num, nil
	}
	f, ok := units.ConversionFactor(b.unit, a.unit)
	if !ok || units.IsUnitless(a.unit) != units.IsUnitless(b.unit) {
		return nil, 0, dynamo.Errorf(dynamo.CodeUnits, "Incompatible units for %s: %s and %s.", op, a.unit, b.unit)
	}
	return a.unit, b.num * f, nil
}

// normalize folds dimensionless derived units back into the magnitude.
func normalize(x float64, u *units.Unit) Value {
	f, rest := units.Fold(u)
	return NumU(x*f, rest)
}

func compare(op Op, a, b Value) (Value, error) {
	if op == OpEq || op == OpNeq {
		eq, err := equal(a, b)
		if err != nil {
			return Value{}, err
		}
		return Bool(eq == (op == OpEq)), nil
	}
	if a.Kind != KindNumber || b.Kind != KindNumber {
		if a.Kind == KindBool || b.Kind == KindBool {
			return Value{}, dynamo.Wrap(dynamo.CodeType, dynamo.ErrBooleanArithmetic)
		}
		return Value{}, dynamo.Errorf(dynamo.CodeType, "Cannot order a %s and a %s.", Describe(a), Describe(b))
	}
	_, y, err := alignUnits(op, a, b)
	if err != nil {
		return Value{}, err
	}
	x := a.num
	switch op {
	case OpLt:
		return Bool(x < y), nil
	case OpLe:
		return Bool(x <= y), nil
	case OpGt:
		return Bool(x > y), nil
	default:
		return Bool(x >= y), nil
	}
}

func equal(a, b Value) (bool, error) {
	if a.Kind != b.Kind {
		return false, nil
	}
	switch a.Kind {
	case KindNumber:
		_, y, err := alignUnits(OpEq, a, b)
		if err != nil {
			return false, err
		}
		return a.num == y, nil
	case KindBool:
		return a.flag == b.flag, nil
	case KindString:
		return a.str == b.str, nil
	case KindFunction:
		return a.fn == b.fn, nil
	case KindObject:
		return a.obj == b.obj, nil
	}
	return false, nil
}

// Neg negates a number or every element of a vector.
func Neg(v Value) (Value, error) {
	switch v.Kind {
	case KindNumber:
		return NumU(-v.num, v.unit), nil
	case KindVector:
		out, err := v.vec.MapErr(Neg)
		if err != nil {
			return Value{}, err
		}
		return Vec(out), nil
	}
	return Value{}, numeric(v, OpSub)
}

// Truthy interprets v as a condition. Numbers are true when non-zero.
func Truthy(v Value) (bool, error) {
	switch v.Kind {
	case KindBool:
		return v.flag, nil
	case KindNumber:
		return v.num != 0, nil
	}
	return false, dynamo.Errorf(dynamo.CodeType, "Expected a Boolean, got a %s.", Describe(v))
}

// Not negates a condition, elementwise on vectors.
func Not(v Value) (Value, error) {
	if v.Kind == KindVector {
		out, err := v.vec.MapErr(Not)
		if err != nil {
			return Value{}, err
		}
		return Vec(out), nil
	}
	t, err := Truthy(v)
	if err != nil {
		return Value{}, err
	}
	return Bool(!t), nil
}

// Number extracts a unitless magnitude, rejecting booleans and strings.
func Number(v Value) (float64, error) {
	switch v.Kind {
	case KindNumber:
		return v.num, nil
	case KindBool:
		return 0, dynamo.Wrap(dynamo.CodeType, dynamo.ErrBooleanArithmetic)
	}
	return 0, dynamo.Errorf(dynamo.CodeType, "Expected a Number, got a %s.", Describe(v))
}

// WithUnits attaches u to a unitless number, or converts a number that
// already carries compatible units. Vectors convert elementwise; strings,
// booleans and functions cannot carry units.
func WithUnits(v Value, u *units.Unit) (Value, error) {
	switch v.Kind {
	case KindNumber:
		if units.IsUnitless(v.unit) {
			return normalize(v.num, u), nil
		}
		return Convert(v, u)
	case KindVector:
		out, err := v.vec.MapErr(func(x Value) (Value, error) { return WithUnits(x, u) })
		if err != nil {
			return Value{}, err
		}
		return Vec(out), nil
	}
	return Value{}, dynamo.Wrap(dynamo.CodeAddUnits, dynamo.ErrAddUnits)
}

// Convert expresses v in u. A unitless number adopts u; a single boolean
// converts to 0 or 1. Incompatible dimensions are an error.
func Convert(v Value, u *units.Unit) (Value, error) {
	switch v.Kind {
	case KindBool:
		if v.flag {
			return NumU(1, u), nil
		}
		return NumU(0, u), nil
	case KindNumber:
		if units.IsUnitless(v.unit) {
			if units.IsUnitless(u) {
				return Num(v.num), nil
			}
			return NumU(v.num, u), nil
		}
		if units.IsUnitless(u) {
			return Value{}, dynamo.Errorf(dynamo.CodeUnits, "Wrong units generated: expected unitless, got %s.", v.unit)
		}
		f, ok := units.ConversionFactor(v.unit, u)
		if !ok {
			return Value{}, dynamo.Errorf(dynamo.CodeUnits, "Wrong units generated: expected %s, got %s.", u, v.unit)
		}
		return NumU(v.num*f, u), nil
	case KindVector:
		out, err := v.vec.MapErr(func(x Value) (Value, error) { return Convert(x, u) })
		if err != nil {
			return Value{}, err
		}
		return Vec(out), nil
	}
	return v, nil
}

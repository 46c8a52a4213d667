// Package units implements dimensional analysis for model equations.
//
// A Unit is a vector of base dimensions with exponents plus a scale factor to
// the base representation. Two units are compatible when their dimension
// vectors are identical; magnitudes convert by the ratio of their scales.
package units

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Dim is one base dimension raised to an exponent.
type Dim struct {
	Name string
	Exp  float64
}

// Unit is an immutable dimension vector with a scale to base units.
// A nil *Unit means unitless.
type Unit struct {
	dims  []Dim
	scale float64
	label string
}

const expEpsilon = 1e-9

func newUnit(dims map[string]float64, scale float64, label string) *Unit {
	u := &Unit{scale: scale, label: label}
	for name, exp := range dims {
		if math.Abs(exp) > expEpsilon {
			u.dims = append(u.dims, Dim{Name: name, Exp: exp})
		}
	}
	sort.Slice(u.dims, func(i, j int) bool { return u.dims[i].Name < u.dims[j].Name })
	return u
}

func (u *Unit) dimMap() map[string]float64 {
	m := make(map[string]float64, len(u.dims))
	if u == nil {
		return m
	}
	for _, d := range u.dims {
		m[d.Name] = d.Exp
	}
	return m
}

// Dims returns a copy of the dimension vector, sorted by name.
func (u *Unit) Dims() []Dim {
	if u == nil {
		return nil
	}
	out := make([]Dim, len(u.dims))
	copy(out, u.dims)
	return out
}

// Scale is the factor converting a magnitude in u to base units.
func (u *Unit) Scale() float64 {
	if u == nil {
		return 1
	}
	return u.scale
}

// Dimensionless reports whether u has no dimensions (it may still have a scale).
func (u *Unit) Dimensionless() bool {
	return u == nil || len(u.dims) == 0
}

// IsUnitless reports whether u is absent or the identity unit.
func IsUnitless(u *Unit) bool {
	return u == nil || (len(u.dims) == 0 && math.Abs(u.scale-1) < 1e-12)
}

// Compatible reports whether a and b share a dimension vector.
func Compatible(a, b *Unit) bool {
	ad, bd := a.Dims(), b.Dims()
	if len(ad) != len(bd) {
		return false
	}
	for i := range ad {
		if ad[i].Name != bd[i].Name || math.Abs(ad[i].Exp-bd[i].Exp) > expEpsilon {
			return false
		}
	}
	return true
}

// ConversionFactor returns f such that x[from]*f == x[to].
// ok is false when the units are incompatible.
func ConversionFactor(from, to *Unit) (f float64, ok bool) {
	if !Compatible(from, to) {
		return 0, false
	}
	return from.Scale() / to.Scale(), true
}

// Mul combines dimension vectors by summing exponents.
func Mul(a, b *Unit) *Unit {
	if a == nil && b == nil {
		return nil
	}
	m := a.dimMap()
	for _, d := range b.Dims() {
		m[d.Name] += d.Exp
	}
	return newUnit(m, a.Scale()*b.Scale(), joinLabel(a, "*", b))
}

// Div divides a by b.
func Div(a, b *Unit) *Unit {
	if a == nil && b == nil {
		return nil
	}
	m := a.dimMap()
	for _, d := range b.Dims() {
		m[d.Name] -= d.Exp
	}
	return newUnit(m, a.Scale()/b.Scale(), joinLabel(a, "/", b))
}

// Pow scales every exponent by p.
func Pow(a *Unit, p float64) *Unit {
	if a == nil {
		return nil
	}
	m := make(map[string]float64, len(a.dims))
	for _, d := range a.dims {
		m[d.Name] = d.Exp * p
	}
	label := ""
	if a.label != "" {
		label = "(" + a.label + ")^" + strconv.FormatFloat(p, 'g', -1, 64)
	}
	return newUnit(m, math.Pow(a.scale, p), label)
}

// Fold splits a dimensionless unit into a plain factor. Units with dimensions
// are returned unchanged with factor 1.
func Fold(u *Unit) (float64, *Unit) {
	if u == nil {
		return 1, nil
	}
	if len(u.dims) == 0 {
		return u.scale, nil
	}
	return 1, u
}

func joinLabel(a *Unit, op string, b *Unit) string {
	if a == nil || a.label == "" {
		if op == "/" && b != nil && b.label != "" {
			return "1/" + wrap(b.label)
		}
		if b == nil {
			return ""
		}
		return b.label
	}
	if b == nil || b.label == "" {
		return a.label
	}
	return wrap(a.label) + op + wrap(b.label)
}

func wrap(s string) string {
	if strings.ContainsAny(s, "*/^ ") {
		return "(" + s + ")"
	}
	return s
}

// String renders the unit as written, or from its dimensions when derived.
func (u *Unit) String() string {
	if u == nil {
		return "unitless"
	}
	if u.label != "" {
		return u.label
	}
	return u.Canonical()
}

// Canonical renders the base dimension vector, e.g. "meters*seconds^-1".
func (u *Unit) Canonical() string {
	if u == nil || len(u.dims) == 0 {
		return "unitless"
	}
	parts := make([]string, 0, len(u.dims))
	for _, d := range u.dims {
		if d.Exp == 1 {
			parts = append(parts, d.Name)
			continue
		}
		parts = append(parts, d.Name+"^"+strconv.FormatFloat(d.Exp, 'g', -1, 64))
	}
	return strings.Join(parts, "*")
}

// WithLabel returns a copy of u displayed as label.
func (u *Unit) WithLabel(label string) *Unit {
	if u == nil {
		return nil
	}
	cp := *u
	cp.dims = u.Dims()
	cp.label = label
	return &cp
}

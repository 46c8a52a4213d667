package units

import (
	"fmt"
	"strings"
	"sync"
)

type definition struct {
	dims  map[string]float64
	scale float64
}

// Base dimension names.
const (
	TimeDim   = "seconds"
	LengthDim = "meters"
	MassDim   = "grams"
)

const secondsPerYear = 31536000.0

var (
	builtinOnce sync.Once
	builtins    map[string]definition
)

func builtinTable() map[string]definition {
	builtinOnce.Do(func() {
		builtins = make(map[string]definition)
		add := func(dim string, exp, scale float64, names ...string) {
			for _, n := range names {
				builtins[n] = definition{dims: map[string]float64{dim: exp}, scale: scale}
			}
		}
		add(TimeDim, 1, 0.001, "millisecond", "milliseconds")
		add(TimeDim, 1, 1, "second", "seconds")
		add(TimeDim, 1, 60, "minute", "minutes")
		add(TimeDim, 1, 3600, "hour", "hours")
		add(TimeDim, 1, 86400, "day", "days")
		add(TimeDim, 1, 604800, "week", "weeks")
		add(TimeDim, 1, secondsPerYear/12, "month", "months")
		add(TimeDim, 1, secondsPerYear/4, "quarter", "quarters")
		add(TimeDim, 1, secondsPerYear, "year", "years")

		add(LengthDim, 1, 0.001, "millimeter", "millimeters", "millimetre", "millimetres")
		add(LengthDim, 1, 0.01, "centimeter", "centimeters", "centimetre", "centimetres")
		add(LengthDim, 1, 1, "meter", "meters", "metre", "metres")
		add(LengthDim, 1, 1000, "kilometer", "kilometers", "kilometre", "kilometres")
		add(LengthDim, 1, 0.0254, "inch", "inches")
		add(LengthDim, 1, 0.3048, "foot", "feet")
		add(LengthDim, 1, 0.9144, "yard", "yards")
		add(LengthDim, 1, 1609.344, "mile", "miles")

		add(MassDim, 1, 0.001, "milligram", "milligrams")
		add(MassDim, 1, 1, "gram", "grams")
		add(MassDim, 1, 1000, "kilogram", "kilograms")
		add(MassDim, 1, 28.349523125, "ounce", "ounces")
		add(MassDim, 1, 453.59237, "pound", "pounds")
		add(MassDim, 1, 1e6, "tonne", "tonnes")

		add(LengthDim, 2, 4046.8564224, "acre", "acres")
		add(LengthDim, 2, 10000, "hectare", "hectares")
		add(LengthDim, 3, 0.001, "liter", "liters", "litre", "litres")
		add(LengthDim, 3, 0.000001, "milliliter", "milliliters", "millilitre", "millilitres")
		add(LengthDim, 3, 0.003785411784, "gallon", "gallons")
	})
	return builtins
}

// Registry resolves unit names for one simulation run. Custom units declared
// by a model live only in that model's registry.
type Registry struct {
	mu     sync.RWMutex
	custom map[string]definition
	cache  map[string]*Unit
}

// NewRegistry returns a registry holding only the built-in units.
func NewRegistry() *Registry {
	return &Registry{
		custom: make(map[string]definition),
		cache:  make(map[string]*Unit),
	}
}

// Define declares name as scale × target, e.g. Define("dozen", 12, "widgets").
func (r *Registry) Define(name string, scale float64, target string) error {
	key := normalizeName(name)
	if key == "" {
		return fmt.Errorf("custom unit needs a name")
	}
	if scale <= 0 {
		return fmt.Errorf("custom unit %q must have a positive scale, got %g", name, scale)
	}
	t, err := r.Parse(target)
	if err != nil {
		return fmt.Errorf("custom unit %q: %w", name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.custom[key] = definition{dims: t.dimMap(), scale: scale * t.Scale()}
	r.cache = make(map[string]*Unit)
	return nil
}

func (r *Registry) lookup(name string) *Unit {
	key := normalizeName(name)
	r.mu.RLock()
	def, ok := r.custom[key]
	r.mu.RUnlock()
	if !ok {
		def, ok = builtinTable()[key]
	}
	if !ok {
		return newUnit(map[string]float64{key: 1}, 1, key)
	}
	return newUnit(def.dims, def.scale, key)
}

// Parse reads unit text such as "meters/second", "1/pig/pig",
// "kilograms per meter squared" or "(widgets*years)^2".
// Empty text and "unitless" parse to nil.
func (r *Registry) Parse(text string) (*Unit, error) {
	text = strings.TrimSpace(text)
	if text == "" || strings.EqualFold(text, "unitless") {
		return nil, nil
	}
	r.mu.RLock()
	u, ok := r.cache[text]
	r.mu.RUnlock()
	if ok {
		return u, nil
	}
	u, err := parseUnit(r, text)
	if err != nil {
		return nil, err
	}
	if u != nil {
		u = u.WithLabel(strings.ToLower(text))
	}
	r.mu.Lock()
	r.cache[text] = u
	r.mu.Unlock()
	return u, nil
}

// MustParse is Parse for trusted literals.
func (r *Registry) MustParse(text string) *Unit {
	u, err := r.Parse(text)
	if err != nil {
		panic(err)
	}
	return u
}

// IsTime reports whether u measures time.
func IsTime(u *Unit) bool {
	d := u.Dims()
	return len(d) == 1 && d[0].Name == TimeDim && d[0].Exp == 1
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

package units

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Equivalences(t *testing.T) {
	reg := NewRegistry()

	tests := []struct {
		name string
		a, b string
	}{
		{"repeated division", "1/pig/pig", "1/(pig squared)"},
		{"per keyword", "widgets per year", "widgets/years"},
		{"per squared", "meters per second squared", "meters/seconds^2"},
		{"singular plural", "Year", "years"},
		{"case", "KILOGRAMS", "kilogram"},
		{"cubed", "meters cubed", "meters*meters*meters"},
		{"multi-word", "fish units / day", "Fish Units per Day"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := reg.Parse(tt.a)
			require.NoError(t, err)
			b, err := reg.Parse(tt.b)
			require.NoError(t, err)
			assert.True(t, Compatible(a, b), "%s vs %s", a.Canonical(), b.Canonical())
			f, ok := ConversionFactor(a, b)
			require.True(t, ok)
			assert.InDelta(t, 1.0, f, 1e-12)
		})
	}
}

func TestParse_Incompatible(t *testing.T) {
	reg := NewRegistry()
	a := reg.MustParse("meters")
	b := reg.MustParse("seconds")
	assert.False(t, Compatible(a, b))
	_, ok := ConversionFactor(a, b)
	assert.False(t, ok)
}

func TestParse_Errors(t *testing.T) {
	reg := NewRegistry()
	for _, text := range []string{"meters^", "(meters", "meters)", "meters @ 2"} {
		_, err := reg.Parse(text)
		assert.Error(t, err, text)
	}
}

func TestParse_Unitless(t *testing.T) {
	reg := NewRegistry()
	u, err := reg.Parse("  ")
	require.NoError(t, err)
	assert.Nil(t, u)
	u, err = reg.Parse("Unitless")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestConversion_RoundTrip(t *testing.T) {
	reg := NewRegistry()
	pairs := [][2]string{
		{"years", "days"},
		{"miles per hour", "meters/second"},
		{"acres", "feet squared"},
		{"gallons", "liters"},
	}
	for _, p := range pairs {
		x := reg.MustParse(p[0])
		y := reg.MustParse(p[1])
		there, ok := ConversionFactor(x, y)
		require.True(t, ok, "%s -> %s", p[0], p[1])
		back, ok := ConversionFactor(y, x)
		require.True(t, ok)
		v := 123.456
		assert.InDelta(t, v, v*there*back, 1e-9)
	}
}

func TestConversion_Values(t *testing.T) {
	reg := NewRegistry()
	f, ok := ConversionFactor(reg.MustParse("years"), reg.MustParse("months"))
	require.True(t, ok)
	assert.InDelta(t, 12, f, 1e-12)

	f, ok = ConversionFactor(reg.MustParse("kilometers/hour"), reg.MustParse("meters/second"))
	require.True(t, ok)
	assert.InDelta(t, 1/3.6, f, 1e-12)
}

func TestDefineCustom(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Define("Dozen", 12, "eggs"))
	f, ok := ConversionFactor(reg.MustParse("dozen"), reg.MustParse("eggs"))
	require.True(t, ok)
	assert.Equal(t, 12.0, f)

	assert.Error(t, reg.Define("bad", 0, "eggs"))
	assert.Error(t, reg.Define("", 1, "eggs"))
}

func TestAlgebra(t *testing.T) {
	reg := NewRegistry()
	m := reg.MustParse("meters")
	s := reg.MustParse("seconds")

	speed := Div(m, s)
	assert.True(t, Compatible(speed, reg.MustParse("meters/seconds")))

	area := Pow(m, 2)
	assert.True(t, Compatible(area, reg.MustParse("meters squared")))

	back := Mul(speed, s)
	assert.True(t, Compatible(back, m))

	ratio := Div(m, m)
	assert.True(t, ratio.Dimensionless())
	f, folded := Fold(ratio)
	assert.Nil(t, folded)
	assert.Equal(t, 1.0, f)

	km := reg.MustParse("kilometers")
	f, folded = Fold(Div(km, m))
	assert.Nil(t, folded)
	assert.InDelta(t, 1000, f, 1e-9)
}

func TestIsTime(t *testing.T) {
	reg := NewRegistry()
	assert.True(t, IsTime(reg.MustParse("weeks")))
	assert.False(t, IsTime(reg.MustParse("meters")))
	assert.False(t, IsTime(nil))
	assert.True(t, IsUnitless(nil))
	assert.False(t, IsUnitless(reg.MustParse("pigs")))
	assert.False(t, math.IsNaN(reg.MustParse("pigs").Scale()))
}

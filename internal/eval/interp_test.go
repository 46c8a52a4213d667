package eval

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/value"
)

func run(t *testing.T, src string) value.Value {
	t.Helper()
	in := New(WithSeed(1))
	v, err := in.EvalString(src)
	require.NoError(t, err, src)
	return v
}

func runErr(t *testing.T, src string) error {
	t.Helper()
	_, err := New().EvalString(src)
	require.Error(t, err, src)
	return err
}

func TestEval_Arithmetic(t *testing.T) {
	tests := []struct {
		src  string
		want float64
	}{
		{"1 + 2 * 3", 7},
		{"2^3^2", 512},
		{"-2^2", -4},
		{"10 mod 3", 1},
		{"(1 + 2) * 3", 9},
		{"x <- 5\nx * 2", 10},
		{"IfThenElse(1 > 2, 1/0, 4)", 4},
		{"if 2 > 1 then\n 3\nelse\n 4\nend if", 3},
		{"s <- 0\nfor i from 1 to 4\n s <- s + i\nend loop\ns", 10},
		{"s <- 0\nfor i from 10 to 1 by -3\n s <- s + i\nend loop\ns", 22},
		{"s <- 0\nfor v in {2, 4}\n s <- s + v\nend loop\ns", 6},
		{"n <- 0\nwhile n < 5\n n <- n + 2\nend loop\nn", 6},
		{"Round(3.14159, 2)", 3.14},
		{"Log(1000)", 3},
		{"pi > 3 and e < 3", 1},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			v := run(t, tt.src)
			if v.Kind == value.KindBool {
				assert.Equal(t, tt.want == 1, v.Truth())
				return
			}
			assert.InDelta(t, tt.want, v.Float(), 1e-9)
		})
	}
}

func TestEval_EmptyBodiesAreZero(t *testing.T) {
	assert.Equal(t, 0.0, run(t, "if false then\n 1\nend if").Float())
	assert.Equal(t, 0.0, run(t, "f() <- 0\nfunction g()\n return\nend function\ng()").Float())
}

func TestEval_FunctionsAndDefaults(t *testing.T) {
	assert.Equal(t, 15.0, run(t, "f(a, b = 2) <- a * b\nf(3) + f(3, 3)").Float())

	src := `
function fact(n)
  if n <= 1 then
    return 1
  end if
  return n * fact(n - 1)
end function
fact(5)`
	assert.Equal(t, 120.0, run(t, src).Float())

	err := runErr(t, "f(a) <- a\nf(1, 2)")
	assert.Equal(t, dynamo.CodeArguments, dynamo.CodeOf(err))

	err = runErr(t, "f(a) <- a\nf()")
	assert.Equal(t, dynamo.CodeArguments, dynamo.CodeOf(err))
}

func TestEval_ClosuresCaptureScope(t *testing.T) {
	src := `
function makeCounter()
  count <- 0
  function()
    count <- count + 1
  end function
end function
c <- makeCounter()
c()
c()`
	assert.Equal(t, 2.0, run(t, src).Float())
}

func TestEval_AssignmentWritesNearestBinding(t *testing.T) {
	src := `
x <- 1
function setX()
  x <- 5
  y <- 7
end function
setX()
x`
	assert.Equal(t, 5.0, run(t, src).Float())

	err := runErr(t, "function f()\n y <- 7\nend function\nf()\ny")
	assert.Equal(t, dynamo.CodeReference, dynamo.CodeOf(err))
}

func TestEval_IdentifiersAreCaseInsensitive(t *testing.T) {
	assert.Equal(t, 4.0, run(t, "Rate <- 2\nRATE * rate").Float())
	assert.Equal(t, 3.0, run(t, "MAX(1, 3, 2)").Float())
}

func TestEval_Objects(t *testing.T) {
	src := `
Animal <- {name: "generic", speak: function() "I am " + self.name end function}
Dog <- new Animal
Dog.name <- "rex"
Dog.speak()`
	assert.Equal(t, "I am rex", run(t, src).Text())

	src = `
Point <- {x: 0, y: 0, constructor: function(a, b)
  self.x <- a
  self.y <- b
end function}
p <- new Point(3, 4)
p.x + p.y + Point.x`
	assert.Equal(t, 7.0, run(t, src).Float())

	src = `
Base <- {kind: function() "base" end function}
Child <- new Base
Child.describe <- function() "child of " + parent.kind() end function
Child.describe()`
	assert.Equal(t, "child of base", run(t, src).Text())

	err := runErr(t, "new 5")
	assert.Equal(t, dynamo.CodeType, dynamo.CodeOf(err))
}

func TestEval_Indexing(t *testing.T) {
	assert.Equal(t, 20.0, run(t, "{10, 20, 30}{2}").Float())
	assert.Equal(t, 2.0, run(t, "{a: 1, b: 2}{\"b\"}").Float())
	assert.Equal(t, 4.0, run(t, "{{1, 2}, {3, 4}}{2, 2}").Float())
	assert.Equal(t, []any{2.0, 4.0}, value.Simplify(run(t, "{{1, 2}, {3, 4}}{*, 2}")))
	assert.Equal(t, 30.0, run(t, "{10, 30, 20}{max}").Float())
	assert.Equal(t, []any{10.0, 30.0}, value.Simplify(run(t, "{10, 20, 30}{{true, false, true}}")))
	assert.Equal(t, []any{30.0, 10.0}, value.Simplify(run(t, "{10, 20, 30}{{3, 1}}")))
	assert.Equal(t, 60.0, run(t, "{10, 20, 30}{function(v) Sum(v) end function}").Float())

	for _, src := range []string{"{1, 2}{3}", "{1, 2}{1.5}", "{a: 1}{\"z\"}", "5{1}"} {
		err := runErr(t, src)
		assert.Equal(t, dynamo.CodeIndex, dynamo.CodeOf(err), src)
	}
}

func TestEval_IndexAssignmentCopies(t *testing.T) {
	src := `
a <- {1, 2, 3}
b <- a
b{2} <- 20
a{2} + b{2}`
	assert.Equal(t, 22.0, run(t, src).Float())

	v := run(t, "m <- {a: {x: 1}}\nm{\"a\", \"x\"} <- 5\nm")
	assert.Equal(t, map[string]any{"a": map[string]any{"x": 5.0}}, value.Simplify(v))
}

func TestEval_MapFilterImplicitVariables(t *testing.T) {
	assert.Equal(t, []any{1.0, 4.0, 9.0}, value.Simplify(run(t, "Map({1, 2, 3}, x^2)")))
	assert.Equal(t, []any{2.0, 3.0}, value.Simplify(run(t, "Filter({1, 2, 3}, x > 1)")))
	assert.Equal(t, map[string]any{"a": "a1", "b": "b2"}, value.Simplify(run(t, `Map({a: 1, b: 2}, key + x)`)))
	assert.Equal(t, []any{2.0, 4.0}, value.Simplify(run(t, "{1, 2}.Map(function(v) v * 2 end function)")))
	assert.Equal(t, []any{1.0, 2.0, 3.0}, value.Simplify(run(t, "Repeat(key, 3)")))
}

func TestEval_MemberCallFallsBackToGlobals(t *testing.T) {
	assert.Equal(t, 3.0, run(t, `"abc".Length()`).Float())
	assert.Equal(t, 6.0, run(t, "{1, 2, 3}.Sum()").Float())
	assert.Equal(t, "ABC", run(t, `"abc".uppercase()`).Text())
}

func TestEval_TryThrow(t *testing.T) {
	v := run(t, "try\n throw \"boom\"\ncatch err\n \"caught \" + err\nend try")
	assert.Equal(t, "caught boom", v.Text())

	v = run(t, "try\n true + 1\ncatch err\n err\nend try")
	assert.Equal(t, dynamo.ErrBooleanArithmetic.Error(), v.Text())

	err := runErr(t, "throw \"escaped\"")
	assert.Equal(t, dynamo.CodeThrow, dynamo.CodeOf(err))
	var te *ThrowError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "escaped", te.Value.Text())
}

func TestEval_Errors(t *testing.T) {
	tests := []struct {
		src  string
		code dynamo.Code
	}{
		{"1 +", dynamo.CodeSyntax},
		{"true * 2", dynamo.CodeType},
		{"-true", dynamo.CodeType},
		{"missing + 1", dynamo.CodeReference},
		{"[Primitive]", dynamo.CodeReference},
		{"Abs(1, 2)", dynamo.CodeArguments},
		{"{1 meters} + {1 seconds}", dynamo.CodeUnits},
		{"{\"a\" meters}", dynamo.CodeAddUnits},
		{"Assert(1 > 2, \"nope\")", dynamo.CodeAssert},
	}
	for _, tt := range tests {
		err := runErr(t, tt.src)
		assert.Equal(t, tt.code, dynamo.CodeOf(err), tt.src)
	}
	assert.True(t, errors.Is(runErr(t, "true + 1"), dynamo.ErrBooleanArithmetic))
}

func TestEval_Units(t *testing.T) {
	v := run(t, "{1 kilometers} + {500 meters}")
	assert.InDelta(t, 1.5, v.Float(), 1e-12)
	assert.Equal(t, "kilometers", v.Unit().String())

	v = run(t, "ConvertUnits({2 hours}, \"minutes\")")
	assert.InDelta(t, 120, v.Float(), 1e-9)

	v = run(t, "Unitless({3 widgets})")
	assert.Nil(t, v.Unit())

	v = run(t, "{6 meters} / {2 seconds} = {3 meters/second}")
	assert.True(t, v.Truth())
}

type refHost map[string]value.Value

func (h refHost) Reference(sc *Scope, name string) (value.Value, error) {
	if v, ok := h[name]; ok {
		return v, nil
	}
	return value.Value{}, dynamo.Errorf(dynamo.CodeReference, "no %s", name)
}

func TestEval_HostReferences(t *testing.T) {
	in := New(WithHost(refHost{"Population": value.Num(100)}))
	v, err := in.EvalString("[Population] * 0.1")
	require.NoError(t, err)
	assert.InDelta(t, 10.0, v.Float(), 1e-12)
}

func TestEval_Macros(t *testing.T) {
	in := New()
	require.NoError(t, in.DefineMacros("growth <- 0.1\ndouble(x) <- x * 2"))
	v, err := in.EvalString("double(growth)")
	require.NoError(t, err)
	assert.InDelta(t, 0.2, v.Float(), 1e-12)
}

func TestEval_DeterministicRandomStream(t *testing.T) {
	draw := func(seed uint64) []any {
		in := New(WithSeed(seed))
		v, err := in.EvalString("{Rand(), RandNormal(0, 1), RandPoisson(3), RandTriangular(0, 1, 0.5)}")
		require.NoError(t, err)
		return value.Simplify(v).([]any)
	}
	assert.Equal(t, draw(7), draw(7))
	assert.NotEqual(t, draw(7), draw(8))

	in := New()
	a, err := in.EvalString("SetRandSeed(42)\nRand()")
	require.NoError(t, err)
	b, err := in.EvalString("SetRandSeed(42)\nRand()")
	require.NoError(t, err)
	assert.Equal(t, a.Float(), b.Float())
}

package lang

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, src string) *Block {
	t.Helper()
	blk, err := Parse(src)
	require.NoError(t, err, src)
	return blk
}

func single(t *testing.T, src string) Node {
	t.Helper()
	blk := mustParse(t, src)
	require.Len(t, blk.Stmts, 1, src)
	return blk.Stmts[0]
}

func TestLex_Numbers(t *testing.T) {
	tests := []struct {
		src  string
		want float64
	}{
		{"12", 12},
		{"1.5", 1.5},
		{"3.", 3},
		{".25", 0.25},
		{"1e3", 1000},
		{"2.5E-2", 0.025},
	}
	for _, tt := range tests {
		toks, err := Lex(tt.src)
		require.NoError(t, err, tt.src)
		require.Equal(t, NUMBER, toks[0].Type, tt.src)
		assert.Equal(t, tt.want, toks[0].Num, tt.src)
	}
}

func TestLex_StringsAndRefs(t *testing.T) {
	toks, err := Lex(`"a\"b\n" 'c' [My Stock]`)
	require.NoError(t, err)
	assert.Equal(t, "a\"b\n", toks[0].Str)
	assert.Equal(t, "c", toks[1].Str)
	assert.Equal(t, PRIMREF, toks[2].Type)
	assert.Equal(t, "My Stock", toks[2].Str)
}

func TestLex_Comments(t *testing.T) {
	toks, err := Lex("1 // one\n# hash\n/* block\n comment */ 2")
	require.NoError(t, err)
	var nums []float64
	for _, tk := range toks {
		if tk.Type == NUMBER {
			nums = append(nums, tk.Num)
		}
	}
	assert.Equal(t, []float64{1, 2}, nums)
}

func TestLex_Errors(t *testing.T) {
	for _, src := range []string{`"open`, "[open", "/* open", "a & b", "[]", "@"} {
		_, err := Lex(src)
		var se *SyntaxError
		assert.True(t, errors.As(err, &se), src)
	}
}

func TestLex_Unicode(t *testing.T) {
	toks, err := Lex("größe <- 5")
	require.NoError(t, err)
	assert.Equal(t, IDENT, toks[0].Type)
	assert.Equal(t, "größe", toks[0].Str)
}

func TestParse_Precedence(t *testing.T) {
	n := single(t, "1 + 2 * 3 ^ 2")
	b := n.(*Binary)
	assert.Equal(t, PLUS, b.Op)
	mul := b.R.(*Binary)
	assert.Equal(t, STAR, mul.Op)
	assert.Equal(t, CARET, mul.R.(*Binary).Op)

	neg := single(t, "-2^2").(*Unary)
	assert.Equal(t, MINUS, neg.Op)
	assert.Equal(t, CARET, neg.X.(*Binary).Op)

	pow := single(t, "2^3^2").(*Binary)
	assert.IsType(t, &Binary{}, pow.R, "power is right associative")

	cmp := single(t, "not a = b and c").(*Binary)
	assert.Equal(t, AND, cmp.Op)
	assert.Equal(t, NOT, cmp.L.(*Unary).Op)

	mod := single(t, "7 mod 3").(*Binary)
	assert.Equal(t, PERCENT, mod.Op)
}

func TestParse_Vectors(t *testing.T) {
	v := single(t, "{1, 2, {3, 4}}").(*VectorLit)
	assert.False(t, v.Named)
	assert.Len(t, v.Items, 3)

	nv := single(t, `{a: 1, "b c": 2}`).(*VectorLit)
	assert.True(t, nv.Named)
	assert.Equal(t, "a", nv.Items[0].Key)
	assert.Equal(t, "b c", nv.Items[1].Key)

	empty := single(t, "{}").(*VectorLit)
	assert.Empty(t, empty.Items)
}

func TestParse_UnitLiterals(t *testing.T) {
	u := single(t, "{5 meters/second}").(*UnitLit)
	assert.Equal(t, "meters/second", u.Units)
	assert.Equal(t, 5.0, u.X.(*NumberLit).Value)

	u = single(t, "{2*3 1/pig/pig}").(*UnitLit)
	assert.Equal(t, "1/pig/pig", u.Units)

	u = single(t, "{1 widgets per (year squared)}").(*UnitLit)
	assert.Equal(t, "widgets per (year squared)", u.Units)
}

func TestParse_IndexAndMembers(t *testing.T) {
	idx := single(t, "v{2, *}").(*Index)
	require.Len(t, idx.Indices, 2)
	assert.IsType(t, &Wildcard{}, idx.Indices[1])

	m := single(t, "obj.child.fn(1)").(*Call)
	mem := m.Fn.(*Member)
	assert.Equal(t, "fn", mem.Name)
	assert.Equal(t, "child", mem.X.(*Member).Name)
}

func TestParse_Assignment(t *testing.T) {
	a := single(t, "x <- 1").(*Assign)
	assert.Equal(t, "x", a.Target.(*Ident).Name)

	a = single(t, "o.k := 2").(*Assign)
	assert.IsType(t, &Member{}, a.Target)

	fn := single(t, "f(x, y = 2) <- x + y").(*FuncLit)
	assert.Equal(t, "f", fn.Name)
	require.Len(t, fn.Params, 2)
	assert.NotNil(t, fn.Params[1].Default)

	_, err := Parse("1 <- 2")
	assert.Error(t, err)
}

func TestParse_ControlFlow(t *testing.T) {
	src := `
x <- 0
if x > 1 then
  x <- 1
else if x < -1 then
  x <- -1
else
  x <- 0
end if
for i from 1 to 10 by 2
  x <- x + i
end loop
for v in {1, 2}
  x <- x + v
end loop
while x > 0
  x <- x - 1
end loop
try
  throw "boom"
catch err
  x <- err
end try
`
	blk := mustParse(t, src)
	require.Len(t, blk.Stmts, 6)
	ifn := blk.Stmts[1].(*If)
	assert.Len(t, ifn.Conds, 2)
	assert.NotNil(t, ifn.Else)
	assert.IsType(t, &ForRange{}, blk.Stmts[2])
	assert.IsType(t, &ForIn{}, blk.Stmts[3])
	assert.IsType(t, &While{}, blk.Stmts[4])
	tr := blk.Stmts[5].(*Try)
	assert.Equal(t, "err", tr.Var)
}

func TestParse_Functions(t *testing.T) {
	src := `
function Square(x, scale = 1)
  return x^2 * scale
end function
g <- function(a) a + 1 end function
`
	blk := mustParse(t, src)
	require.Len(t, blk.Stmts, 2)
	fn := blk.Stmts[0].(*FuncLit)
	assert.Equal(t, "square", fn.Name)
	assert.Len(t, fn.Params, 2)
	anon := blk.Stmts[1].(*Assign).Value.(*FuncLit)
	assert.Empty(t, anon.Name)
}

func TestParse_NewlinesInsideGroups(t *testing.T) {
	src := "Max(1,\n 2,\n 3) + {1,\n 2}{1} + (4\n + 5)"
	n := single(t, src)
	assert.IsType(t, &Binary{}, n)

	n = single(t, "1 +\n 2")
	assert.IsType(t, &Binary{}, n)
}

func TestParse_EmptyBodies(t *testing.T) {
	blk := mustParse(t, "")
	assert.Empty(t, blk.Stmts)

	ifn := single(t, "if true then\nend if").(*If)
	assert.Empty(t, ifn.Bodies[0].Stmts)

	r := single(t, "return").(*Return)
	assert.Nil(t, r.X)
}

func TestParse_New(t *testing.T) {
	n := single(t, "new Point(1, 2)").(*New)
	assert.Len(t, n.Args, 2)
	n = single(t, "new Shapes.Square").(*New)
	assert.Nil(t, n.Args)
}

func TestParse_ErrorsCarryLocation(t *testing.T) {
	_, err := Parse("x <- 1\nif x then\n 2\n")
	var se *SyntaxError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 4, se.Line)

	desc := Describe(err, "x <- 1\nif x then\n 2\n")
	assert.True(t, strings.Contains(desc.Error(), "^"))
}

func TestInspect_FindsReferences(t *testing.T) {
	blk := mustParse(t, "[A] + Smooth([B], 3) * [C]")
	var refs []string
	Inspect(blk, func(n Node) bool {
		if r, ok := n.(*PrimRef); ok {
			refs = append(refs, r.Name)
		}
		return true
	})
	assert.Equal(t, []string{"A", "B", "C"}, refs)
}

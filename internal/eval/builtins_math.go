package eval

import (
	"math"

	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/units"
	"github.com/san-kum/stockflow/internal/value"
)

// mapNumber applies f to a number or to every number of a vector.
func mapNumber(v value.Value, keepUnits bool, f func(float64) float64) (value.Value, error) {
	switch v.Kind {
	case value.KindNumber:
		if keepUnits {
			return value.NumU(f(v.Float()), v.Unit()), nil
		}
		return value.Num(f(v.Float())), nil
	case value.KindVector:
		out, err := v.Vector().MapErr(func(x value.Value) (value.Value, error) { return mapNumber(x, keepUnits, f) })
		if err != nil {
			return value.Value{}, err
		}
		return value.Vec(out), nil
	}
	_, err := value.Number(v)
	return value.Value{}, err
}

func unaryMath(in *Interp, name string, keepUnits bool, f func(float64) float64) {
	in.Register(name, 1, 1, func(c *Call) (value.Value, error) {
		x, err := c.Arg(0)
		if err != nil {
			return value.Value{}, err
		}
		return mapNumber(x, keepUnits, f)
	})
}

func registerMath(in *Interp) {
	in.Const("pi", value.Num(math.Pi))
	in.Const("e", value.Num(math.E))
	in.Const("phi", value.Num(math.Phi))
	in.Const("infinity", value.Num(math.Inf(1)))

	unaryMath(in, "Abs", true, math.Abs)
	unaryMath(in, "Floor", true, math.Floor)
	unaryMath(in, "Ceiling", true, math.Ceil)
	unaryMath(in, "Sqrt", false, math.Sqrt)
	unaryMath(in, "Exp", false, math.Exp)
	unaryMath(in, "Ln", false, math.Log)
	unaryMath(in, "Sin", false, math.Sin)
	unaryMath(in, "Cos", false, math.Cos)
	unaryMath(in, "Tan", false, math.Tan)
	unaryMath(in, "ArcSin", false, math.Asin)
	unaryMath(in, "ArcCos", false, math.Acos)
	unaryMath(in, "ArcTan", false, math.Atan)
	unaryMath(in, "Sign", false, func(x float64) float64 {
		switch {
		case x > 0:
			return 1
		case x < 0:
			return -1
		}
		return 0
	})
	unaryMath(in, "Logit", false, func(p float64) float64 { return math.Log(p / (1 - p)) })
	unaryMath(in, "Expit", false, func(x float64) float64 { return 1 / (1 + math.Exp(-x)) })
	unaryMath(in, "Factorial", false, func(x float64) float64 {
		g, _ := math.Lgamma(x + 1)
		return math.Round(math.Exp(g))
	})

	in.Register("Log", 1, 2, func(c *Call) (value.Value, error) {
		base, err := c.NumberOr(1, 10)
		if err != nil {
			return value.Value{}, err
		}
		x, err := c.Arg(0)
		if err != nil {
			return value.Value{}, err
		}
		return mapNumber(x, false, func(v float64) float64 { return math.Log(v) / math.Log(base) })
	})

	in.Register("Round", 1, 2, func(c *Call) (value.Value, error) {
		digits, err := c.NumberOr(1, 0)
		if err != nil {
			return value.Value{}, err
		}
		p := math.Pow(10, digits)
		x, err := c.Arg(0)
		if err != nil {
			return value.Value{}, err
		}
		return mapNumber(x, true, func(v float64) float64 { return math.Round(v*p) / p })
	})

	in.Register("Mod", 2, 2, func(c *Call) (value.Value, error) {
		a, err := c.Arg(0)
		if err != nil {
			return value.Value{}, err
		}
		b, err := c.Arg(1)
		if err != nil {
			return value.Value{}, err
		}
		return value.Binary(value.OpMod, a, b)
	})

	in.Register("Unitless", 1, 1, func(c *Call) (value.Value, error) {
		x, err := c.Arg(0)
		if err != nil {
			return value.Value{}, err
		}
		return x.WithoutUnits(), nil
	})

	in.Register("ConvertUnits", 2, 2, func(c *Call) (value.Value, error) {
		x, err := c.Arg(0)
		if err != nil {
			return value.Value{}, err
		}
		text, err := c.String(1)
		if err != nil {
			return value.Value{}, err
		}
		u, err := in.Units.Parse(text)
		if err != nil {
			return value.Value{}, dynamo.Errorf(dynamo.CodeUnits, "Invalid units %q: %v", text, err)
		}
		if units.IsUnitless(x.Unit()) && x.Kind == value.KindNumber {
			return value.Value{}, dynamo.Errorf(dynamo.CodeUnits, "Cannot convert a unitless value to %s.", u)
		}
		return value.Convert(x, u)
	})
}

package eval

import (
	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/value"
)

func registerLogic(in *Interp) {
	// IfThenElse evaluates only the selected branch.
	in.Register("IfThenElse", 3, 3, func(c *Call) (value.Value, error) {
		cond, err := c.Arg(0)
		if err != nil {
			return value.Value{}, err
		}
		ok, err := value.Truthy(cond)
		if err != nil {
			return value.Value{}, err
		}
		if ok {
			return c.Arg(1)
		}
		return c.Arg(2)
	})

	in.Register("Assert", 1, 2, func(c *Call) (value.Value, error) {
		cond, err := c.Arg(0)
		if err != nil {
			return value.Value{}, err
		}
		ok, err := value.Truthy(cond)
		if err != nil {
			return value.Value{}, err
		}
		if ok {
			return value.Bool(true), nil
		}
		msg := "Assertion failed."
		if c.Has(1) {
			m, err := c.Arg(1)
			if err != nil {
				return value.Value{}, err
			}
			msg = m.String()
		}
		return value.Value{}, dynamo.Errorf(dynamo.CodeAssert, "%s", msg)
	})

	in.Register("IsVector", 1, 1, func(c *Call) (value.Value, error) {
		v, err := c.Arg(0)
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool(v.Kind == value.KindVector), nil
	})
}

package eval

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/san-kum/stockflow/internal/value"
)

func registerStrings(in *Interp) {
	in.Register("Length", 1, 1, func(c *Call) (value.Value, error) {
		v, err := c.Arg(0)
		if err != nil {
			return value.Value{}, err
		}
		switch v.Kind {
		case value.KindString:
			return value.Num(float64(utf8.RuneCountInString(v.Text()))), nil
		case value.KindVector:
			return value.Num(float64(v.Vector().Len())), nil
		}
		return value.Value{}, argError("Length needs a String or a Vector, got a %s.", value.Describe(v))
	})

	in.Register("Range", 3, 3, func(c *Call) (value.Value, error) {
		s, err := c.String(0)
		if err != nil {
			return value.Value{}, err
		}
		from, err := c.Number(1)
		if err != nil {
			return value.Value{}, err
		}
		to, err := c.Number(2)
		if err != nil {
			return value.Value{}, err
		}
		r := []rune(s)
		lo, hi := int(from), int(to)
		if lo < 1 || hi > len(r) || lo > hi+1 {
			return value.Value{}, indexError("Range %d to %d is outside a string of length %d.", lo, hi, len(r))
		}
		return value.Str(string(r[lo-1 : hi])), nil
	})

	in.Register("Split", 2, 2, func(c *Call) (value.Value, error) {
		s, err := c.String(0)
		if err != nil {
			return value.Value{}, err
		}
		sep, err := c.String(1)
		if err != nil {
			return value.Value{}, err
		}
		parts := strings.Split(s, sep)
		items := make([]value.Value, len(parts))
		for i, p := range parts {
			items[i] = value.Str(p)
		}
		return value.List(items...), nil
	})

	in.Register("Join", 1, 2, func(c *Call) (value.Value, error) {
		v, err := c.Vector(0)
		if err != nil {
			return value.Value{}, err
		}
		sep := ""
		if c.Has(1) {
			if sep, err = c.String(1); err != nil {
				return value.Value{}, err
			}
		}
		parts := make([]string, v.Len())
		for i, x := range v.Items {
			parts[i] = x.String()
		}
		return value.Str(strings.Join(parts, sep)), nil
	})

	stringMap := func(name string, f func(string) string) {
		in.Register(name, 1, 1, func(c *Call) (value.Value, error) {
			s, err := c.String(0)
			if err != nil {
				return value.Value{}, err
			}
			return value.Str(f(s)), nil
		})
	}
	stringMap("Lowercase", strings.ToLower)
	stringMap("Uppercase", strings.ToUpper)
	stringMap("Trim", strings.TrimSpace)

	in.Register("Replace", 3, 3, func(c *Call) (value.Value, error) {
		s, err := c.String(0)
		if err != nil {
			return value.Value{}, err
		}
		old, err := c.String(1)
		if err != nil {
			return value.Value{}, err
		}
		repl, err := c.String(2)
		if err != nil {
			return value.Value{}, err
		}
		return value.Str(strings.ReplaceAll(s, old, repl)), nil
	})

	// IndexOf and Contains accept a String haystack or a Vector.
	in.Register("IndexOf", 2, 2, func(c *Call) (value.Value, error) {
		hay, err := c.Arg(0)
		if err != nil {
			return value.Value{}, err
		}
		needle, err := c.Arg(1)
		if err != nil {
			return value.Value{}, err
		}
		switch hay.Kind {
		case value.KindString:
			if needle.Kind != value.KindString {
				return value.Value{}, argError("IndexOf on a String needs a String to find.")
			}
			i := strings.Index(hay.Text(), needle.Text())
			if i < 0 {
				return value.Num(0), nil
			}
			return value.Num(float64(utf8.RuneCountInString(hay.Text()[:i]) + 1)), nil
		case value.KindVector:
			for i, x := range hay.Vector().Items {
				if value.Identical(x, needle) {
					return value.Num(float64(i + 1)), nil
				}
			}
			return value.Num(0), nil
		}
		return value.Value{}, argError("IndexOf needs a String or a Vector, got a %s.", value.Describe(hay))
	})

	in.Register("Contains", 2, 2, func(c *Call) (value.Value, error) {
		idx, err := in.natives["indexof"].Fn(c)
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool(idx.Float() > 0), nil
	})

	in.Register("Parse", 1, 1, func(c *Call) (value.Value, error) {
		s, err := c.String(0)
		if err != nil {
			return value.Value{}, err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return value.Value{}, argError("Cannot parse %q as a number.", s)
		}
		return value.Num(f), nil
	})
}

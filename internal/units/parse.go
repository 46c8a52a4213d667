package units

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type unitTokKind int

const (
	utEOF unitTokKind = iota
	utName
	utNumber
	utMul
	utDiv
	utPow
	utLParen
	utRParen
	utSquared
	utCubed
)

type unitTok struct {
	kind unitTokKind
	text string
	num  float64
}

func lexUnit(text string) ([]unitTok, error) {
	var toks []unitTok
	rs := []rune(text)
	for i := 0; i < len(rs); {
		c := rs[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '*':
			toks = append(toks, unitTok{kind: utMul})
			i++
		case c == '/':
			toks = append(toks, unitTok{kind: utDiv})
			i++
		case c == '^':
			toks = append(toks, unitTok{kind: utPow})
			i++
		case c == '(':
			toks = append(toks, unitTok{kind: utLParen})
			i++
		case c == ')':
			toks = append(toks, unitTok{kind: utRParen})
			i++
		case unicode.IsDigit(c) || c == '.' || c == '-':
			j := i + 1
			for j < len(rs) && (unicode.IsDigit(rs[j]) || rs[j] == '.' || rs[j] == 'e' || rs[j] == 'E') {
				j++
			}
			n, err := strconv.ParseFloat(string(rs[i:j]), 64)
			if err != nil {
				return nil, fmt.Errorf("bad number %q in units %q", string(rs[i:j]), text)
			}
			toks = append(toks, unitTok{kind: utNumber, num: n})
			i = j
		case unicode.IsLetter(c) || c == '_' || c == '$' || c == '%':
			j := i + 1
			for j < len(rs) && (unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j]) || rs[j] == '_' || rs[j] == '$' || rs[j] == '%') {
				j++
			}
			word := strings.ToLower(string(rs[i:j]))
			i = j
			switch word {
			case "per":
				toks = append(toks, unitTok{kind: utDiv})
			case "squared":
				toks = append(toks, unitTok{kind: utSquared})
			case "cubed":
				toks = append(toks, unitTok{kind: utCubed})
			default:
				// consecutive words form one multi-word unit name
				if n := len(toks); n > 0 && toks[n-1].kind == utName {
					toks[n-1].text += " " + word
				} else {
					toks = append(toks, unitTok{kind: utName, text: word})
				}
			}
		default:
			return nil, fmt.Errorf("unexpected %q in units %q", string(c), text)
		}
	}
	return append(toks, unitTok{kind: utEOF}), nil
}

type unitParser struct {
	reg  *Registry
	toks []unitTok
	pos  int
	text string
}

func parseUnit(reg *Registry, text string) (*Unit, error) {
	toks, err := lexUnit(text)
	if err != nil {
		return nil, err
	}
	p := &unitParser{reg: reg, toks: toks, text: text}
	u, err := p.expr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != utEOF {
		return nil, fmt.Errorf("unexpected trailing input in units %q", text)
	}
	return u, nil
}

func (p *unitParser) peek() unitTok { return p.toks[p.pos] }

func (p *unitParser) next() unitTok {
	t := p.toks[p.pos]
	if t.kind != utEOF {
		p.pos++
	}
	return t
}

func (p *unitParser) expr() (*Unit, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().kind {
		case utMul:
			p.next()
			right, err := p.term()
			if err != nil {
				return nil, err
			}
			left = Mul(left, right)
		case utDiv:
			p.next()
			right, err := p.term()
			if err != nil {
				return nil, err
			}
			left = Div(orOne(left), right)
		case utName, utNumber, utLParen:
			// implicit multiplication, e.g. "1000 meters"
			right, err := p.term()
			if err != nil {
				return nil, err
			}
			left = Mul(orOne(left), right)
		default:
			return left, nil
		}
	}
}

func (p *unitParser) term() (*Unit, error) {
	base, err := p.factor()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().kind {
		case utPow:
			p.next()
			t := p.next()
			if t.kind != utNumber {
				return nil, fmt.Errorf("expected exponent in units %q", p.text)
			}
			base = Pow(orOne(base), t.num)
		case utSquared:
			p.next()
			base = Pow(orOne(base), 2)
		case utCubed:
			p.next()
			base = Pow(orOne(base), 3)
		default:
			return base, nil
		}
	}
}

func (p *unitParser) factor() (*Unit, error) {
	t := p.next()
	switch t.kind {
	case utName:
		return p.reg.lookup(t.text), nil
	case utNumber:
		return newUnit(nil, t.num, ""), nil
	case utLParen:
		u, err := p.expr()
		if err != nil {
			return nil, err
		}
		if p.next().kind != utRParen {
			return nil, fmt.Errorf("missing ) in units %q", p.text)
		}
		return u, nil
	}
	return nil, fmt.Errorf("malformed units %q", p.text)
}

func orOne(u *Unit) *Unit {
	if u == nil {
		return newUnit(nil, 1, "")
	}
	return u
}

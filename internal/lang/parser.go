package lang

import (
	"fmt"
	"strings"
)

// Parse turns equation text into a *Block. An empty equation parses to an
// empty block, which evaluates to 0.
func Parse(src string) (*Block, error) {
	toks, err := Lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, src: src}
	blk, err := p.block()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.Type != EOF {
		return nil, p.errAt(t, fmt.Sprintf("unexpected '%s'", tokText(t)))
	}
	return blk, nil
}

type parser struct {
	toks []Token
	i    int
	src  string

	// nl is a stack of newline modes: true inside (...) and {...} where
	// newlines are insignificant, false inside statement blocks.
	nl []bool
}

func (p *parser) pushNL(ignore bool) { p.nl = append(p.nl, ignore) }
func (p *parser) popNL()             { p.nl = p.nl[:len(p.nl)-1] }

func (p *parser) ignoringNL() bool {
	return len(p.nl) > 0 && p.nl[len(p.nl)-1]
}

func (p *parser) peek() Token {
	if p.ignoringNL() {
		for p.toks[p.i].Type == NEWLINE {
			p.i++
		}
	}
	return p.toks[p.i]
}

// peekAhead returns the k-th significant token after the current one.
func (p *parser) peekAhead(k int) Token {
	p.peek()
	j := p.i
	for n := 0; n < k; n++ {
		if p.toks[j].Type == EOF {
			return p.toks[j]
		}
		j++
		for p.ignoringNL() && p.toks[j].Type == NEWLINE {
			j++
		}
	}
	return p.toks[j]
}

func (p *parser) next() Token {
	t := p.peek()
	if t.Type != EOF {
		p.i++
	}
	return t
}

func (p *parser) match(tt TokenType) bool {
	if p.peek().Type == tt {
		p.next()
		return true
	}
	return false
}

func (p *parser) need(tt TokenType, context string) (Token, error) {
	t := p.peek()
	if t.Type != tt {
		return t, p.errAt(t, fmt.Sprintf("expected '%s' %s but found '%s'", tt, context, tokText(t)))
	}
	return p.next(), nil
}

func (p *parser) skipNewlines() {
	for p.toks[p.i].Type == NEWLINE {
		p.i++
	}
}

func (p *parser) errAt(t Token, msg string) error {
	return &SyntaxError{Line: t.Line, Col: t.Col, Msg: msg}
}

func tokText(t Token) string {
	if t.Type == EOF || t.Type == NEWLINE {
		return t.Type.String()
	}
	return t.Lexeme
}

func posOf(t Token) Pos { return Pos{Line: t.Line, Col: t.Col} }

func isStop(tt TokenType, stops []TokenType) bool {
	for _, s := range stops {
		if tt == s {
			return true
		}
	}
	return false
}

// block parses newline-separated statements until EOF or one of stops.
func (p *parser) block(stops ...TokenType) (*Block, error) {
	p.pushNL(false)
	defer p.popNL()

	blk := &Block{Pos: posOf(p.peek())}
	for {
		p.skipNewlines()
		t := p.peek()
		if t.Type == EOF || isStop(t.Type, stops) {
			return blk, nil
		}
		stmt, err := p.statement()
		if err != nil {
			return nil, err
		}
		blk.Stmts = append(blk.Stmts, stmt)

		t = p.peek()
		if t.Type == NEWLINE || t.Type == EOF || isStop(t.Type, stops) {
			continue
		}
		return nil, p.errAt(t, fmt.Sprintf("unexpected '%s' after statement", tokText(t)))
	}
}

func (p *parser) endsStatement(t Token) bool {
	switch t.Type {
	case NEWLINE, EOF, END, ELSE, CATCH, RPAREN, RCURLY, COMMA:
		return true
	}
	return false
}

func (p *parser) statement() (Node, error) {
	t := p.peek()
	switch t.Type {
	case RETURN, THROW:
		p.next()
		var x Node
		if !p.endsStatement(p.peek()) {
			var err error
			if x, err = p.expression(0); err != nil {
				return nil, err
			}
		}
		if t.Type == RETURN {
			return &Return{Pos: posOf(t), X: x}, nil
		}
		return &Throw{Pos: posOf(t), X: x}, nil
	}

	x, err := p.expression(0)
	if err != nil {
		return nil, err
	}
	if p.peek().Type != ASSIGN {
		return x, nil
	}
	at := p.next()
	p.skipNewlines()
	val, err := p.expression(0)
	if err != nil {
		return nil, err
	}
	return p.assignment(at, x, val)
}

func (p *parser) assignment(at Token, target, val Node) (Node, error) {
	switch tg := target.(type) {
	case *Ident, *Member, *Index:
		return &Assign{Pos: posOf(at), Target: target, Value: val}, nil
	case *Call:
		// f(x, y=2) <- expr defines a function
		id, ok := tg.Fn.(*Ident)
		if !ok {
			break
		}
		fn := &FuncLit{Pos: tg.Pos, Name: id.Name, Body: &Block{Pos: val.Position(), Stmts: []Node{val}}}
		for _, a := range tg.Args {
			switch a := a.(type) {
			case *Ident:
				fn.Params = append(fn.Params, Param{Name: a.Name})
			case *Binary:
				pid, ok := a.L.(*Ident)
				if a.Op != EQ || !ok {
					return nil, p.errAt(at, "invalid parameter in function definition")
				}
				fn.Params = append(fn.Params, Param{Name: pid.Name, Default: a.R})
			default:
				return nil, p.errAt(at, "invalid parameter in function definition")
			}
		}
		return fn, nil
	}
	return nil, p.errAt(at, "invalid assignment target")
}

// Binding powers; higher binds tighter.
const (
	precOr      = 1
	precAnd     = 2
	precNot     = 3
	precCompare = 4
	precAdd     = 5
	precMul     = 6
	precUnary   = 7
	precPow     = 8
)

func binaryPrec(tt TokenType) int {
	switch tt {
	case OR, XOR:
		return precOr
	case AND:
		return precAnd
	case EQ, NEQ, LESS, LESS_EQ, GREATER, GREATER_EQ:
		return precCompare
	case PLUS, MINUS:
		return precAdd
	case STAR, SLASH, PERCENT, MOD:
		return precMul
	case CARET:
		return precPow
	}
	return -1
}

func (p *parser) expression(minPrec int) (Node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		prec := binaryPrec(t.Type)
		if prec < 0 || prec < minPrec {
			return left, nil
		}
		p.next()
		p.skipNewlines()
		nextMin := prec + 1
		if t.Type == CARET {
			nextMin = prec
		}
		right, err := p.expression(nextMin)
		if err != nil {
			return nil, err
		}
		op := t.Type
		if op == MOD {
			op = PERCENT
		}
		left = &Binary{Pos: posOf(t), Op: op, L: left, R: right}
	}
}

func (p *parser) unary() (Node, error) {
	t := p.peek()
	switch t.Type {
	case NOT:
		p.next()
		x, err := p.expression(precCompare)
		if err != nil {
			return nil, err
		}
		return &Unary{Pos: posOf(t), Op: NOT, X: x}, nil
	case MINUS, PLUS:
		p.next()
		x, err := p.expression(precPow)
		if err != nil {
			return nil, err
		}
		if t.Type == PLUS {
			return x, nil
		}
		return &Unary{Pos: posOf(t), Op: MINUS, X: x}, nil
	}
	x, err := p.primary()
	if err != nil {
		return nil, err
	}
	return p.postfix(x)
}

func (p *parser) postfix(x Node) (Node, error) {
	for {
		t := p.peek()
		switch t.Type {
		case LPAREN:
			p.next()
			args, err := p.list(RPAREN)
			if err != nil {
				return nil, err
			}
			x = &Call{Pos: posOf(t), Fn: x, Args: args}
		case LCURLY:
			p.next()
			idx, err := p.indices()
			if err != nil {
				return nil, err
			}
			x = &Index{Pos: posOf(t), X: x, Indices: idx}
		case PERIOD:
			p.next()
			name, err := p.memberName()
			if err != nil {
				return nil, err
			}
			x = &Member{Pos: posOf(t), X: x, Name: name}
		default:
			return x, nil
		}
	}
}

func (p *parser) memberName() (string, error) {
	t := p.next()
	if t.Type == IDENT {
		return t.Str, nil
	}
	// keywords are valid member names (obj.end, obj.new)
	if _, ok := keywords[strings.ToLower(t.Lexeme)]; ok && t.Lexeme != "" {
		return t.Lexeme, nil
	}
	return "", p.errAt(t, "expected member name after '.'")
}

// list parses comma-separated expressions up to the closing token.
func (p *parser) list(closing TokenType) ([]Node, error) {
	p.pushNL(true)
	defer p.popNL()
	var out []Node
	if p.match(closing) {
		return out, nil
	}
	for {
		e, err := p.expression(0)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		if p.match(COMMA) {
			continue
		}
		if _, err := p.need(closing, "to close the list"); err != nil {
			return nil, err
		}
		return out, nil
	}
}

func (p *parser) indices() ([]Node, error) {
	p.pushNL(true)
	defer p.popNL()
	var out []Node
	for {
		t := p.peek()
		if nt := p.peekAhead(1).Type; t.Type == STAR && (nt == COMMA || nt == RCURLY) {
			p.next()
			out = append(out, &Wildcard{Pos: posOf(t)})
		} else {
			e, err := p.expression(0)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		if p.match(COMMA) {
			continue
		}
		if _, err := p.need(RCURLY, "to close the index"); err != nil {
			return nil, err
		}
		return out, nil
	}
}

func (p *parser) primary() (Node, error) {
	t := p.peek()
	switch t.Type {
	case NUMBER:
		p.next()
		return &NumberLit{Pos: posOf(t), Value: t.Num}, nil
	case STRING:
		p.next()
		return &StringLit{Pos: posOf(t), Value: t.Str}, nil
	case TRUE, FALSE:
		p.next()
		return &BoolLit{Pos: posOf(t), Value: t.Type == TRUE}, nil
	case IDENT:
		p.next()
		return &Ident{Pos: posOf(t), Name: strings.ToLower(t.Str), Raw: t.Str}, nil
	case PRIMREF:
		p.next()
		return &PrimRef{Pos: posOf(t), Name: t.Str}, nil
	case LPAREN:
		p.next()
		p.pushNL(true)
		e, err := p.expression(0)
		if err == nil {
			_, err = p.need(RPAREN, "to close the group")
		}
		p.popNL()
		if err != nil {
			return nil, err
		}
		return e, nil
	case LCURLY:
		return p.vectorOrUnits()
	case FUNCTION:
		return p.function()
	case IF:
		return p.ifExpr()
	case WHILE:
		return p.whileExpr()
	case FOR:
		return p.forExpr()
	case TRY:
		return p.tryExpr()
	case NEW:
		return p.newExpr()
	}
	return nil, p.errAt(t, fmt.Sprintf("unexpected '%s'", tokText(t)))
}

func (p *parser) vectorOrUnits() (Node, error) {
	open := p.next()
	p.pushNL(true)
	defer p.popNL()

	vec := &VectorLit{Pos: posOf(open)}
	if p.match(RCURLY) {
		return vec, nil
	}

	if isKeyTok(p.peek()) && p.peekAhead(1).Type == COLON {
		vec.Named = true
		for {
			kt := p.next()
			if !isKeyTok(kt) {
				return nil, p.errAt(kt, "expected a key in named vector")
			}
			if _, err := p.need(COLON, "after vector key"); err != nil {
				return nil, err
			}
			v, err := p.expression(0)
			if err != nil {
				return nil, err
			}
			key := kt.Str
			if kt.Type != IDENT && kt.Type != STRING {
				key = kt.Lexeme
			}
			vec.Items = append(vec.Items, VectorItem{Key: key, Value: v})
			if p.match(COMMA) {
				continue
			}
			if _, err := p.need(RCURLY, "to close the vector"); err != nil {
				return nil, err
			}
			return vec, nil
		}
	}

	first, err := p.expression(0)
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.Type != COMMA && t.Type != RCURLY {
		return p.unitsTail(open, first)
	}
	vec.Items = append(vec.Items, VectorItem{Value: first})
	for p.match(COMMA) {
		v, err := p.expression(0)
		if err != nil {
			return nil, err
		}
		vec.Items = append(vec.Items, VectorItem{Value: v})
	}
	if _, err := p.need(RCURLY, "to close the vector"); err != nil {
		return nil, err
	}
	return vec, nil
}

// unitsTail captures the raw unit text of {expr units} up to the closing brace.
func (p *parser) unitsTail(open Token, x Node) (Node, error) {
	start := p.peek()
	depth := 0
	for {
		t := p.toks[p.i]
		switch t.Type {
		case EOF:
			return nil, p.errAt(open, "unterminated unit literal")
		case LPAREN:
			depth++
		case RPAREN:
			depth--
		case RCURLY:
			if depth <= 0 {
				units := strings.TrimSpace(p.src[start.Offset:t.Offset])
				p.i++
				return &UnitLit{Pos: posOf(open), X: x, Units: units}, nil
			}
		case LCURLY, COMMA:
			return nil, p.errAt(t, "unexpected '"+tokText(t)+"' in unit literal")
		}
		p.i++
	}
}

func isKeyTok(t Token) bool {
	switch t.Type {
	case IDENT, STRING:
		return true
	}
	_, kw := keywords[strings.ToLower(t.Lexeme)]
	return kw && t.Type != EOF
}

func (p *parser) function() (Node, error) {
	ft := p.next()
	fn := &FuncLit{Pos: posOf(ft)}
	if p.peek().Type == IDENT {
		fn.Name = strings.ToLower(p.next().Str)
	}
	if _, err := p.need(LPAREN, "to open the parameter list"); err != nil {
		return nil, err
	}
	if err := p.params(fn); err != nil {
		return nil, err
	}
	body, err := p.block(END)
	if err != nil {
		return nil, err
	}
	fn.Body = body
	if err := p.closeWith(FUNCTION); err != nil {
		return nil, err
	}
	return fn, nil
}

func (p *parser) params(fn *FuncLit) error {
	p.pushNL(true)
	defer p.popNL()
	if p.match(RPAREN) {
		return nil
	}
	for {
		t, err := p.need(IDENT, "as parameter name")
		if err != nil {
			return err
		}
		prm := Param{Name: strings.ToLower(t.Str)}
		if p.match(EQ) {
			if prm.Default, err = p.expression(0); err != nil {
				return err
			}
		}
		fn.Params = append(fn.Params, prm)
		if p.match(COMMA) {
			continue
		}
		_, err = p.need(RPAREN, "to close the parameter list")
		return err
	}
}

// closeWith consumes "end <kw>".
func (p *parser) closeWith(kw TokenType) error {
	if _, err := p.need(END, fmt.Sprintf("to close '%s'", kw)); err != nil {
		return err
	}
	_, err := p.need(kw, "after 'end'")
	return err
}

func (p *parser) ifExpr() (Node, error) {
	it := p.next()
	n := &If{Pos: posOf(it)}
	for {
		cond, err := p.expression(0)
		if err != nil {
			return nil, err
		}
		if _, err := p.need(THEN, "after if condition"); err != nil {
			return nil, err
		}
		body, err := p.block(ELSE, END)
		if err != nil {
			return nil, err
		}
		n.Conds = append(n.Conds, cond)
		n.Bodies = append(n.Bodies, body)

		if !p.match(ELSE) {
			break
		}
		if p.match(IF) {
			continue
		}
		els, err := p.block(END)
		if err != nil {
			return nil, err
		}
		n.Else = els
		break
	}
	if err := p.closeWith(IF); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *parser) whileExpr() (Node, error) {
	wt := p.next()
	cond, err := p.expression(0)
	if err != nil {
		return nil, err
	}
	body, err := p.block(END)
	if err != nil {
		return nil, err
	}
	if err := p.closeWith(LOOP); err != nil {
		return nil, err
	}
	return &While{Pos: posOf(wt), Cond: cond, Body: body}, nil
}

func (p *parser) forExpr() (Node, error) {
	ft := p.next()
	vt, err := p.need(IDENT, "as loop variable")
	if err != nil {
		return nil, err
	}
	name := strings.ToLower(vt.Str)

	var loop Node
	if p.match(IN) {
		iter, err := p.expression(0)
		if err != nil {
			return nil, err
		}
		fi := &ForIn{Pos: posOf(ft), Var: name, Iter: iter}
		if fi.Body, err = p.block(END); err != nil {
			return nil, err
		}
		loop = fi
	} else {
		if _, err := p.need(FROM, "after loop variable"); err != nil {
			return nil, err
		}
		fr := &ForRange{Pos: posOf(ft), Var: name}
		if fr.From, err = p.expression(0); err != nil {
			return nil, err
		}
		if _, err := p.need(TO, "in for loop"); err != nil {
			return nil, err
		}
		if fr.To, err = p.expression(0); err != nil {
			return nil, err
		}
		if p.match(BY) {
			if fr.By, err = p.expression(0); err != nil {
				return nil, err
			}
		}
		if fr.Body, err = p.block(END); err != nil {
			return nil, err
		}
		loop = fr
	}
	if err := p.closeWith(LOOP); err != nil {
		return nil, err
	}
	return loop, nil
}

func (p *parser) tryExpr() (Node, error) {
	tt := p.next()
	body, err := p.block(CATCH)
	if err != nil {
		return nil, err
	}
	if _, err := p.need(CATCH, "after try block"); err != nil {
		return nil, err
	}
	vt, err := p.need(IDENT, "as catch variable")
	if err != nil {
		return nil, err
	}
	catch, err := p.block(END)
	if err != nil {
		return nil, err
	}
	if err := p.closeWith(TRY); err != nil {
		return nil, err
	}
	return &Try{Pos: posOf(tt), Body: body, Var: strings.ToLower(vt.Str), Catch: catch}, nil
}

func (p *parser) newExpr() (Node, error) {
	nt := p.next()
	x, err := p.primary()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == PERIOD {
		dot := p.next()
		name, err := p.memberName()
		if err != nil {
			return nil, err
		}
		x = &Member{Pos: posOf(dot), X: x, Name: name}
	}
	n := &New{Pos: posOf(nt), X: x}
	if p.match(LPAREN) {
		if n.Args, err = p.list(RPAREN); err != nil {
			return nil, err
		}
	}
	return n, nil
}

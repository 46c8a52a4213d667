package lang

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Lexer scans equation text into tokens.
type Lexer struct {
	src    string
	start  int // start offset of current token
	cur    int // current offset
	line   int // 1-based
	col    int // 1-based column of cur
	tokens []Token

	tokLine int
	tokCol  int
}

// NewLexer creates a new lexer for the given source.
func NewLexer(src string) *Lexer {
	return &Lexer{src: src, line: 1, col: 1}
}

// Lex is a convenience wrapper around NewLexer(src).Scan().
func Lex(src string) ([]Token, error) {
	return NewLexer(src).Scan()
}

func (l *Lexer) isAtEnd() bool { return l.cur >= len(l.src) }

func (l *Lexer) peek() rune {
	if l.isAtEnd() {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.src[l.cur:])
	return r
}

func (l *Lexer) peekN(n int) rune {
	off := l.cur
	for i := 0; i < n; i++ {
		if off >= len(l.src) {
			return 0
		}
		_, w := utf8.DecodeRuneInString(l.src[off:])
		off += w
	}
	if off >= len(l.src) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.src[off:])
	return r
}

func (l *Lexer) advance() rune {
	r, w := utf8.DecodeRuneInString(l.src[l.cur:])
	l.cur += w
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *Lexer) err(msg string) error {
	return &SyntaxError{Line: l.tokLine, Col: l.tokCol, Msg: msg}
}

func (l *Lexer) add(tt TokenType) *Token {
	l.tokens = append(l.tokens, Token{
		Type:   tt,
		Lexeme: l.src[l.start:l.cur],
		Line:   l.tokLine,
		Col:    l.tokCol,
		Offset: l.start,
		End:    l.cur,
	})
	return &l.tokens[len(l.tokens)-1]
}

func isIdentStart(r rune) bool { return unicode.IsLetter(r) || r == '_' }
func isIdentPart(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.Is(unicode.Mn, r)
}
func isDigit(r rune) bool { return r >= '0' && r <= '9' }

// Scan tokenizes the whole source. The final token is always EOF.
func (l *Lexer) Scan() ([]Token, error) {
	for {
		l.skipSpace()
		if err := l.skipComments(); err != nil {
			return nil, err
		}
		l.skipSpace()
		l.start, l.tokLine, l.tokCol = l.cur, l.line, l.col
		if l.isAtEnd() {
			l.add(EOF)
			return l.tokens, nil
		}
		if err := l.scanToken(); err != nil {
			return nil, err
		}
	}
}

func (l *Lexer) skipSpace() {
	for !l.isAtEnd() {
		switch l.peek() {
		case ' ', '\t', '\r', '\f', '\v', '\u00a0':
			l.advance()
		default:
			return
		}
	}
}

func (l *Lexer) skipComments() error {
	for !l.isAtEnd() {
		c := l.peek()
		switch {
		case c == '#' || (c == '/' && l.peekN(1) == '/'):
			for !l.isAtEnd() && l.peek() != '\n' {
				l.advance()
			}
		case c == '/' && l.peekN(1) == '*':
			l.tokLine, l.tokCol = l.line, l.col
			l.advance()
			l.advance()
			for {
				if l.isAtEnd() {
					return l.err("unterminated block comment")
				}
				if l.peek() == '*' && l.peekN(1) == '/' {
					l.advance()
					l.advance()
					break
				}
				l.advance()
			}
		default:
			return nil
		}
		l.skipSpace()
	}
	return nil
}

func (l *Lexer) scanToken() error {
	c := l.advance()
	switch c {
	case '\n', ';':
		l.add(NEWLINE)
	case '(':
		l.add(LPAREN)
	case ')':
		l.add(RPAREN)
	case '{':
		l.add(LCURLY)
	case '}':
		l.add(RCURLY)
	case ',':
		l.add(COMMA)
	case '+':
		l.add(PLUS)
	case '-':
		l.add(MINUS)
	case '*':
		l.add(STAR)
	case '/':
		l.add(SLASH)
	case '^':
		l.add(CARET)
	case '%':
		l.add(PERCENT)
	case ':':
		if l.peek() == '=' {
			l.advance()
			l.add(ASSIGN)
		} else {
			l.add(COLON)
		}
	case '=':
		if l.peek() == '=' {
			l.advance()
		}
		l.add(EQ)
	case '!':
		if l.peek() == '=' {
			l.advance()
			l.add(NEQ)
		} else {
			l.add(NOT)
		}
	case '<':
		switch l.peek() {
		case '-':
			l.advance()
			l.add(ASSIGN)
		case '=':
			l.advance()
			l.add(LESS_EQ)
		case '>':
			l.advance()
			l.add(NEQ)
		default:
			l.add(LESS)
		}
	case '>':
		if l.peek() == '=' {
			l.advance()
			l.add(GREATER_EQ)
		} else {
			l.add(GREATER)
		}
	case '&':
		if l.peek() != '&' {
			return l.err("unexpected '&' (did you mean '&&' or 'and'?)")
		}
		l.advance()
		l.add(AND)
	case '|':
		if l.peek() != '|' {
			return l.err("unexpected '|' (did you mean '||' or 'or'?)")
		}
		l.advance()
		l.add(OR)
	case '"', '\'':
		s, err := l.scanString(c)
		if err != nil {
			return err
		}
		l.add(STRING).Str = s
	case '[':
		name, err := l.scanPrimRef()
		if err != nil {
			return err
		}
		l.add(PRIMREF).Str = name
	case '.':
		if isDigit(l.peek()) {
			return l.scanNumber()
		}
		l.add(PERIOD)
	default:
		switch {
		case isDigit(c):
			return l.scanNumber()
		case isIdentStart(c):
			l.scanIdentifier()
		default:
			return l.err("unexpected character '" + string(c) + "'")
		}
	}
	return nil
}

func (l *Lexer) scanString(quote rune) (string, error) {
	var b strings.Builder
	for {
		if l.isAtEnd() {
			return "", l.err("unterminated string")
		}
		c := l.advance()
		if c == quote {
			return b.String(), nil
		}
		if c != '\\' {
			b.WriteRune(c)
			continue
		}
		if l.isAtEnd() {
			return "", l.err("unterminated string")
		}
		e := l.advance()
		switch e {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\', '"', '\'':
			b.WriteRune(e)
		default:
			b.WriteByte('\\')
			b.WriteRune(e)
		}
	}
}

func (l *Lexer) scanPrimRef() (string, error) {
	begin := l.cur
	for {
		if l.isAtEnd() || l.peek() == '\n' {
			return "", l.err("unterminated primitive reference")
		}
		if l.peek() == ']' {
			name := strings.TrimSpace(l.src[begin:l.cur])
			l.advance()
			if name == "" {
				return "", l.err("empty primitive reference")
			}
			return name, nil
		}
		l.advance()
	}
}

func (l *Lexer) scanNumber() error {
	for isDigit(l.peek()) {
		l.advance()
	}
	if l.peek() == '.' && !isIdentStart(l.peekN(1)) {
		l.advance()
		for isDigit(l.peek()) {
			l.advance()
		}
	}
	if p := l.peek(); p == 'e' || p == 'E' {
		n1 := l.peekN(1)
		if isDigit(n1) || ((n1 == '+' || n1 == '-') && isDigit(l.peekN(2))) {
			l.advance()
			if n1 == '+' || n1 == '-' {
				l.advance()
			}
			for isDigit(l.peek()) {
				l.advance()
			}
		}
	}
	text := strings.TrimSuffix(l.src[l.start:l.cur], ".")
	if strings.HasPrefix(text, ".") {
		text = "0" + text
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return l.err("invalid number '" + l.src[l.start:l.cur] + "'")
	}
	l.add(NUMBER).Num = v
	return nil
}

func (l *Lexer) scanIdentifier() {
	for isIdentPart(l.peek()) {
		l.advance()
	}
	word := l.src[l.start:l.cur]
	if kw, ok := keywords[strings.ToLower(word)]; ok {
		l.add(kw)
		return
	}
	l.add(IDENT).Str = word
}

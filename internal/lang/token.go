package lang

import "fmt"

// TokenType represents the kind of token.
type TokenType int

const (
	// Special
	EOF TokenType = iota
	NEWLINE

	// Literals & references
	NUMBER
	STRING
	IDENT
	PRIMREF // [Name]

	// Punctuation
	LPAREN
	RPAREN
	LCURLY
	RCURLY
	COMMA
	COLON
	PERIOD

	// Operators
	PLUS
	MINUS
	STAR
	SLASH
	CARET
	PERCENT
	EQ  // "=" or "=="
	NEQ // "!=" or "<>"
	LESS
	LESS_EQ
	GREATER
	GREATER_EQ
	ASSIGN // "<-" or ":="

	// Keywords
	IF
	THEN
	ELSE
	END
	FUNCTION
	RETURN
	THROW
	TRY
	CATCH
	WHILE
	FOR
	IN
	FROM
	TO
	BY
	LOOP
	NEW
	AND
	OR
	NOT
	XOR
	MOD
	TRUE
	FALSE
)

var tokenNames = map[TokenType]string{
	EOF: "end of input", NEWLINE: "newline", NUMBER: "number", STRING: "string",
	IDENT: "identifier", PRIMREF: "primitive reference",
	LPAREN: "(", RPAREN: ")", LCURLY: "{", RCURLY: "}", COMMA: ",", COLON: ":", PERIOD: ".",
	PLUS: "+", MINUS: "-", STAR: "*", SLASH: "/", CARET: "^", PERCENT: "%",
	EQ: "=", NEQ: "<>", LESS: "<", LESS_EQ: "<=", GREATER: ">", GREATER_EQ: ">=", ASSIGN: "<-",
	IF: "if", THEN: "then", ELSE: "else", END: "end", FUNCTION: "function", RETURN: "return",
	THROW: "throw", TRY: "try", CATCH: "catch", WHILE: "while", FOR: "for", IN: "in",
	FROM: "from", TO: "to", BY: "by", LOOP: "loop", NEW: "new", AND: "and", OR: "or",
	NOT: "not", XOR: "xor", MOD: "mod", TRUE: "true", FALSE: "false",
}

func (t TokenType) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// keywords are matched case-insensitively.
var keywords = map[string]TokenType{
	"if":       IF,
	"then":     THEN,
	"else":     ELSE,
	"end":      END,
	"function": FUNCTION,
	"return":   RETURN,
	"throw":    THROW,
	"try":      TRY,
	"catch":    CATCH,
	"while":    WHILE,
	"for":      FOR,
	"in":       IN,
	"from":     FROM,
	"to":       TO,
	"by":       BY,
	"loop":     LOOP,
	"new":      NEW,
	"and":      AND,
	"or":       OR,
	"not":      NOT,
	"xor":      XOR,
	"mod":      MOD,
	"true":     TRUE,
	"false":    FALSE,
}

// Token is a lexical token with its parsed literal.
type Token struct {
	Type   TokenType
	Lexeme string  // raw text slice
	Num    float64 // NUMBER
	Str    string  // STRING contents, PRIMREF name
	Line   int     // 1-based
	Col    int     // 1-based
	Offset int     // byte offset into the source
	End    int     // byte offset just past the token
}

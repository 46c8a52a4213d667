package lang

import (
	"errors"
	"fmt"
	"strings"
)

// SyntaxError is a lexer or parser failure at a 1-based line and column.
type SyntaxError struct {
	Line int
	Col  int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at %d:%d: %s", e.Line, e.Col, e.Msg)
}

// Describe renders err with a caret snippet of src when err is a *SyntaxError.
// Any other error is returned unchanged.
//
//	syntax error at 2:7: expected 'then'
//
//	   1 | x <- 1
//	   2 | if x > 0
//	     |       ^
func Describe(err error, src string) error {
	var se *SyntaxError
	if !errors.As(err, &se) {
		return err
	}
	lines := strings.Split(src, "\n")
	line := se.Line
	if line < 1 {
		line = 1
	}
	if line > len(lines) {
		line = len(lines)
	}
	col := se.Col
	if col < 1 {
		col = 1
	}

	var b strings.Builder
	b.WriteString(se.Error())
	b.WriteString("\n\n")
	width := len(fmt.Sprint(line + 1))
	if line > 1 {
		fmt.Fprintf(&b, "  %*d | %s\n", width, line-1, lines[line-2])
	}
	fmt.Fprintf(&b, "  %*d | %s\n", width, line, lines[line-1])
	fmt.Fprintf(&b, "  %s | %s^", strings.Repeat(" ", width), strings.Repeat(" ", col-1))
	return errors.New(b.String())
}

package lang

// Pos is a 1-based source location.
type Pos struct {
	Line int
	Col  int
}

// Node is any AST node. Nodes are immutable after parsing; the engine keys
// per-call-site state (smoothing cells, delays) by node identity.
type Node interface {
	Position() Pos
}

type (
	// NumberLit is a numeric literal.
	NumberLit struct {
		Pos
		Value float64
	}

	// StringLit is a quoted string.
	StringLit struct {
		Pos
		Value string
	}

	// BoolLit is true or false.
	BoolLit struct {
		Pos
		Value bool
	}

	// VectorItem is one element of a vector literal. Key is empty for
	// positional entries.
	VectorItem struct {
		Key   string
		Value Node
	}

	// VectorLit is {a, b} or {k: a, j: b}.
	VectorLit struct {
		Pos
		Items []VectorItem
		Named bool
	}

	// UnitLit is {expr units}.
	UnitLit struct {
		Pos
		X     Node
		Units string
	}

	// Ident is a variable or function name. Name is lower-cased.
	Ident struct {
		Pos
		Name string
		Raw  string
	}

	// PrimRef is a [Primitive Name] reference.
	PrimRef struct {
		Pos
		Name string
	}

	// Wildcard is the * selector inside an index.
	Wildcard struct {
		Pos
	}

	Binary struct {
		Pos
		Op   TokenType
		L, R Node
	}

	Unary struct {
		Pos
		Op TokenType
		X  Node
	}

	Call struct {
		Pos
		Fn   Node
		Args []Node
	}

	Index struct {
		Pos
		X       Node
		Indices []Node
	}

	Member struct {
		Pos
		X    Node
		Name string
	}

	Assign struct {
		Pos
		Target Node
		Value  Node
	}

	// If holds one or more condition/body pairs and an optional else block.
	If struct {
		Pos
		Conds  []Node
		Bodies []*Block
		Else   *Block
	}

	While struct {
		Pos
		Cond Node
		Body *Block
	}

	// ForRange is for x from a to b [by s].
	ForRange struct {
		Pos
		Var          string
		From, To, By Node
		Body         *Block
	}

	// ForIn is for x in v.
	ForIn struct {
		Pos
		Var  string
		Iter Node
		Body *Block
	}

	Param struct {
		Name    string
		Default Node
	}

	// FuncLit is a named or anonymous function. A named literal also binds
	// itself in the defining scope.
	FuncLit struct {
		Pos
		Name   string
		Params []Param
		Body   *Block
	}

	Block struct {
		Pos
		Stmts []Node
	}

	Return struct {
		Pos
		X Node
	}

	Throw struct {
		Pos
		X Node
	}

	Try struct {
		Pos
		Body  *Block
		Var   string
		Catch *Block
	}

	// New is new X or new X(args).
	New struct {
		Pos
		X    Node
		Args []Node
	}
)

func (p Pos) Position() Pos { return p }

// Inspect walks the tree depth-first, calling f for every node. When f returns
// false the children of that node are skipped.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	switch n := n.(type) {
	case *VectorLit:
		for _, it := range n.Items {
			Inspect(it.Value, f)
		}
	case *UnitLit:
		Inspect(n.X, f)
	case *Binary:
		Inspect(n.L, f)
		Inspect(n.R, f)
	case *Unary:
		Inspect(n.X, f)
	case *Call:
		Inspect(n.Fn, f)
		for _, a := range n.Args {
			Inspect(a, f)
		}
	case *Index:
		Inspect(n.X, f)
		for _, a := range n.Indices {
			Inspect(a, f)
		}
	case *Member:
		Inspect(n.X, f)
	case *Assign:
		Inspect(n.Target, f)
		Inspect(n.Value, f)
	case *If:
		for i := range n.Conds {
			Inspect(n.Conds[i], f)
			inspectBlock(n.Bodies[i], f)
		}
		inspectBlock(n.Else, f)
	case *While:
		Inspect(n.Cond, f)
		inspectBlock(n.Body, f)
	case *ForRange:
		Inspect(n.From, f)
		Inspect(n.To, f)
		Inspect(n.By, f)
		inspectBlock(n.Body, f)
	case *ForIn:
		Inspect(n.Iter, f)
		inspectBlock(n.Body, f)
	case *FuncLit:
		for _, p := range n.Params {
			Inspect(p.Default, f)
		}
		inspectBlock(n.Body, f)
	case *Block:
		for _, s := range n.Stmts {
			Inspect(s, f)
		}
	case *Return:
		Inspect(n.X, f)
	case *Throw:
		Inspect(n.X, f)
	case *Try:
		inspectBlock(n.Body, f)
		inspectBlock(n.Catch, f)
	case *New:
		Inspect(n.X, f)
		for _, a := range n.Args {
			Inspect(a, f)
		}
	}
}

func inspectBlock(b *Block, f func(Node) bool) {
	if b != nil {
		Inspect(b, f)
	}
}

// CalleeName returns the lower-cased function name of a call on a plain
// identifier, or "".
func CalleeName(c *Call) string {
	if id, ok := c.Fn.(*Ident); ok {
		return id.Name
	}
	return ""
}

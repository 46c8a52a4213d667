package eval

import (
	"strings"

	"github.com/san-kum/stockflow/internal/value"
)

// Scope is one lexical frame. Closures keep a pointer to the frame they were
// created in; frames are never copied.
type Scope struct {
	parent *Scope
	vars   map[string]value.Value

	// Ctx is opaque host data (for the simulation, the record whose
	// equation is being evaluated). Child frames inherit it.
	Ctx any
}

// NewScope creates a frame under parent, which may be nil.
func NewScope(parent *Scope) *Scope {
	return &Scope{parent: parent, vars: make(map[string]value.Value)}
}

// Child is NewScope(s) carrying ctx.
func (s *Scope) Child(ctx any) *Scope {
	c := NewScope(s)
	c.Ctx = ctx
	return c
}

func key(name string) string { return strings.ToLower(name) }

// Define binds name in this frame, shadowing outer bindings.
func (s *Scope) Define(name string, v value.Value) {
	s.vars[key(name)] = v
}

// Set updates the nearest frame that already binds name, else defines it here.
func (s *Scope) Set(name string, v value.Value) {
	k := key(name)
	for cur := s; cur != nil; cur = cur.parent {
		if _, ok := cur.vars[k]; ok {
			cur.vars[k] = v
			return
		}
	}
	s.vars[k] = v
}

// Get returns the nearest binding of name.
func (s *Scope) Get(name string) (value.Value, bool) {
	k := key(name)
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[k]; ok {
			return v, true
		}
	}
	return value.Value{}, false
}

// Context returns the nearest non-nil Ctx.
func (s *Scope) Context() any {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.Ctx != nil {
			return cur.Ctx
		}
	}
	return nil
}

// Names lists the bindings of this frame only.
func (s *Scope) Names() []string {
	out := make([]string, 0, len(s.vars))
	for k := range s.vars {
		out = append(out, k)
	}
	return out
}

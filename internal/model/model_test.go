package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/stockflow/internal/dynamo"
)

const sample = `
name: population
settings:
  time_start: 0
  time_length: 10
  time_step: 1
  time_units: years
  algorithm: RK4
  seed: 7
units:
  - name: rabbits
    scale: 1
primitives:
  - id: f1
    kind: folder
    name: Herd
    solver:
      time_step: 0.5
  - id: s1
    kind: stock
    name: Rabbits
    parent: f1
    equation: "100"
    units: rabbits
    non_negative: true
  - id: g1
    kind: ghost
    name: Rabbits
    source: s1
  - id: fl1
    kind: flow
    name: Births
    to: g1
    equation: "[Rabbits] * 0.1"
  - id: c1
    kind: converter
    name: Lookup
    input: g1
    points:
      - {x: 0, y: 0}
      - {x: 10, y: 5}
`

func TestParse(t *testing.T) {
	m, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "population", m.Name)
	require.NotNil(t, m.Settings.Seed)
	assert.Equal(t, uint64(7), *m.Settings.Seed)
	assert.Len(t, m.Primitives, 5)
	assert.Equal(t, Stock, m.ByID("s1").Kind)
	assert.Equal(t, 0.5, m.ByID("f1").Solver.TimeStep)
	assert.Len(t, m.ByID("c1").Points, 2)
}

func TestResolveGhosts(t *testing.T) {
	m, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "s1", m.ResolveID("g1"))
	assert.Equal(t, "s1", m.ResolveID("s1"))
	assert.Equal(t, "", m.ResolveID(""))
	assert.Equal(t, m.ByID("s1"), m.ByName("rabbits"))
}

func TestChildrenAndAncestors(t *testing.T) {
	m, err := Parse([]byte(sample))
	require.NoError(t, err)

	kids := m.Children("f1")
	require.Len(t, kids, 1)
	assert.Equal(t, "s1", kids[0].ID)
	assert.Len(t, m.Children(""), 4)

	anc := m.Ancestors(m.ByID("s1"))
	require.Len(t, anc, 1)
	assert.Equal(t, "f1", anc[0].ID)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		prim []*Primitive
		code dynamo.Code
	}{
		{"duplicate id", []*Primitive{{ID: "a", Kind: Variable}, {ID: "a", Kind: Variable}}, dynamo.CodeConfig},
		{"unknown kind", []*Primitive{{ID: "a", Kind: "widget"}}, dynamo.CodeConfig},
		{"flow to variable", []*Primitive{{ID: "v", Kind: Variable}, {ID: "f", Kind: Flow, To: "v"}}, dynamo.CodeConfig},
		{"missing endpoint", []*Primitive{{ID: "f", Kind: Flow, From: "nope"}}, dynamo.CodeConfig},
		{"parent not folder", []*Primitive{{ID: "v", Kind: Variable}, {ID: "w", Kind: Variable, Parent: "v"}}, dynamo.CodeConfig},
		{"empty converter", []*Primitive{{ID: "c", Kind: Converter}}, dynamo.CodeConverter},
		{"orphan ghost", []*Primitive{{ID: "g", Kind: Ghost, Source: "x"}}, dynamo.CodeConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Model{Primitives: tt.prim}
			err := m.Validate()
			require.Error(t, err)
			assert.Equal(t, tt.code, dynamo.CodeOf(err))
		})
	}
}

func TestValidateAttributesPrimitive(t *testing.T) {
	m := &Model{Primitives: []*Primitive{{ID: "c", Name: "Table", Kind: Converter}}}
	p := dynamo.PayloadOf(m.Validate())
	assert.Equal(t, "c", p.PrimitiveID)
	assert.Equal(t, "Table", p.PrimitiveName)
}

func TestTimeSettings(t *testing.T) {
	ts, err := Settings{TimeLength: 10, TimeStep: 1, TimeUnits: "Years", Algorithm: "RK4"}.TimeSettings()
	require.NoError(t, err)
	assert.Equal(t, dynamo.RK4, ts.Algorithm)
	assert.Equal(t, 10.0, ts.End())

	_, err = Settings{TimeLength: 10, TimeStep: 0, TimeUnits: "Years"}.TimeSettings()
	assert.Equal(t, dynamo.CodeConfig, dynamo.CodeOf(err))

	_, err = Settings{TimeLength: 10, TimeStep: 1, TimeUnits: "Years", Algorithm: "leapfrog"}.TimeSettings()
	assert.Equal(t, dynamo.CodeConfig, dynamo.CodeOf(err))
}

func TestLoadSaveRoundTrip(t *testing.T) {
	m, err := Parse([]byte(sample))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, Save(path, m))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, m, got)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, os.IsNotExist(err))
}

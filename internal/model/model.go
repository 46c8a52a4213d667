// Package model is the plain-data form of a stock and flow model: primitives
// with their raw equation text, attributes and containment, read from YAML.
package model

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/stockflow/internal/dynamo"
)

// Kind tags a primitive.
type Kind string

const (
	Stock      Kind = "stock"
	Flow       Kind = "flow"
	Variable   Kind = "variable"
	Converter  Kind = "converter"
	State      Kind = "state"
	Transition Kind = "transition"
	Action     Kind = "action"
	Agents     Kind = "agents"
	Folder     Kind = "folder"
	Ghost      Kind = "ghost"
	Link       Kind = "link"
)

var kinds = map[Kind]bool{
	Stock: true, Flow: true, Variable: true, Converter: true, State: true,
	Transition: true, Action: true, Agents: true, Folder: true, Ghost: true, Link: true,
}

// Trigger selects when a transition or action fires.
type Trigger string

const (
	Timeout     Trigger = "timeout"
	Condition   Trigger = "condition"
	Probability Trigger = "probability"
)

// Model is a complete simulation input.
type Model struct {
	Name       string       `yaml:"name"`
	Settings   Settings     `yaml:"settings"`
	Units      []CustomUnit `yaml:"units,omitempty"`
	Primitives []*Primitive `yaml:"primitives"`
}

// Settings configure the clock and the global environment of a run.
type Settings struct {
	TimeStart     float64 `yaml:"time_start"`
	TimeLength    float64 `yaml:"time_length"`
	TimeStep      float64 `yaml:"time_step"`
	TimeUnits     string  `yaml:"time_units"`
	Algorithm     string  `yaml:"algorithm"`
	PauseInterval float64 `yaml:"pause_interval,omitempty"`
	Macros        string  `yaml:"macros,omitempty"`
	Seed          *uint64 `yaml:"seed,omitempty"`
}

// CustomUnit declares name as scale times target. An empty target makes
// name a new base dimension.
type CustomUnit struct {
	Name   string  `yaml:"name"`
	Scale  float64 `yaml:"scale"`
	Target string  `yaml:"target,omitempty"`
}

// Point is one row of a converter table.
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Solver overrides the clock for the primitives inside a folder.
type Solver struct {
	Algorithm string  `yaml:"algorithm,omitempty"`
	TimeStep  float64 `yaml:"time_step,omitempty"`
}

// Primitive is one node of the model. Which fields matter depends on Kind.
type Primitive struct {
	ID     string `yaml:"id"`
	Kind   Kind   `yaml:"kind"`
	Name   string `yaml:"name"`
	Parent string `yaml:"parent,omitempty"`

	// Equation is the initial value of a stock, the rate of a flow, the value
	// of a variable, the initial activity of a state and the trigger value
	// of a transition or action.
	Equation string   `yaml:"equation,omitempty"`
	Units    string   `yaml:"units,omitempty"`
	Min      *float64 `yaml:"min,omitempty"`
	Max      *float64 `yaml:"max,omitempty"`

	NonNegative bool `yaml:"non_negative,omitempty"`

	// From and To are the endpoints of flows, transitions and links.
	From string `yaml:"from,omitempty"`
	To   string `yaml:"to,omitempty"`

	Conveyor bool   `yaml:"conveyor,omitempty"`
	Delay    string `yaml:"delay,omitempty"`

	Input         string  `yaml:"input,omitempty"`
	Points        []Point `yaml:"points,omitempty"`
	Interpolation string  `yaml:"interpolation,omitempty"`

	Trigger     Trigger `yaml:"trigger,omitempty"`
	Repeat      bool    `yaml:"repeat,omitempty"`
	Recalculate bool    `yaml:"recalculate,omitempty"`
	Action      string  `yaml:"action,omitempty"`

	AgentBase         string  `yaml:"agent_base,omitempty"`
	Size              int     `yaml:"size,omitempty"`
	Placement         string  `yaml:"placement,omitempty"`
	PlacementFunction string  `yaml:"placement_function,omitempty"`
	Network           string  `yaml:"network,omitempty"`
	NetworkFunction   string  `yaml:"network_function,omitempty"`
	Width             float64 `yaml:"width,omitempty"`
	Height            float64 `yaml:"height,omitempty"`
	WrapAround        bool    `yaml:"wrap_around,omitempty"`

	Solver *Solver `yaml:"solver,omitempty"`
	Frozen bool    `yaml:"frozen,omitempty"`

	Source string `yaml:"source,omitempty"`
}

// Label is the display form used in messages.
func (p *Primitive) Label() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

// Load reads and validates a YAML model file.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes and validates a YAML model.
func Parse(data []byte) (*Model, error) {
	var m Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Save writes m as YAML.
func Save(path string, m *Model) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ByID returns the primitive with id, or nil.
func (m *Model) ByID(id string) *Primitive {
	for _, p := range m.Primitives {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// ByName returns the first non-ghost primitive named name, ignoring case.
func (m *Model) ByName(name string) *Primitive {
	for _, p := range m.Primitives {
		if p.Kind != Ghost && strings.EqualFold(p.Name, name) {
			return p
		}
	}
	return nil
}

// Children lists the primitives directly contained in parentID, in
// declaration order. An empty parentID lists the top level.
func (m *Model) Children(parentID string) []*Primitive {
	var out []*Primitive
	for _, p := range m.Primitives {
		if p.Parent == parentID {
			out = append(out, p)
		}
	}
	return out
}

// Ancestors lists the folders containing p, innermost first.
func (m *Model) Ancestors(p *Primitive) []*Primitive {
	var out []*Primitive
	seen := map[string]bool{}
	for cur := m.ByID(p.Parent); cur != nil && !seen[cur.ID]; cur = m.ByID(cur.Parent) {
		seen[cur.ID] = true
		out = append(out, cur)
	}
	return out
}

// Resolve follows a ghost to the primitive it stands for.
func (m *Model) Resolve(p *Primitive) *Primitive {
	for i := 0; p != nil && p.Kind == Ghost && i < len(m.Primitives); i++ {
		p = m.ByID(p.Source)
	}
	return p
}

// ResolveID is Resolve by id; an empty id stays empty.
func (m *Model) ResolveID(id string) string {
	if id == "" {
		return ""
	}
	if p := m.Resolve(m.ByID(id)); p != nil {
		return p.ID
	}
	return id
}

func configError(p *Primitive, format string, args ...any) error {
	e := dynamo.Errorf(dynamo.CodeConfig, format, args...)
	if p != nil {
		e.PrimitiveID, e.PrimitiveName = p.ID, p.Label()
	}
	return e
}

// Validate checks the structure the engine relies on: unique ids, known
// kinds, endpoints and containers that exist and have the right kind.
func (m *Model) Validate() error {
	ids := make(map[string]*Primitive, len(m.Primitives))
	for _, p := range m.Primitives {
		if p.ID == "" {
			return configError(p, "primitive %q has no id", p.Name)
		}
		if ids[p.ID] != nil {
			return configError(p, "duplicate primitive id %q", p.ID)
		}
		if !kinds[p.Kind] {
			return configError(p, "unknown primitive kind %q", p.Kind)
		}
		ids[p.ID] = p
	}
	endpoint := func(p *Primitive, id string, want ...Kind) error {
		if id == "" {
			return nil
		}
		q := m.Resolve(ids[id])
		if q == nil {
			return configError(p, "%s refers to missing primitive %q", p.Label(), id)
		}
		for _, k := range want {
			if q.Kind == k {
				return nil
			}
		}
		return configError(p, "%s cannot connect to the %s %s", p.Label(), q.Kind, q.Label())
	}
	for _, p := range m.Primitives {
		if p.Parent != "" {
			if c := ids[p.Parent]; c == nil || c.Kind != Folder {
				return configError(p, "%s is contained in %q, which is not a folder", p.Label(), p.Parent)
			}
		}
		var err error
		switch p.Kind {
		case Ghost:
			src := ids[p.Source]
			if src == nil || m.Resolve(src) == nil {
				err = configError(p, "ghost %s has no source", p.Label())
			}
		case Flow:
			if err = endpoint(p, p.From, Stock); err == nil {
				err = endpoint(p, p.To, Stock)
			}
		case Transition:
			if err = endpoint(p, p.From, State); err == nil {
				err = endpoint(p, p.To, State)
			}
		case Converter:
			if len(p.Points) == 0 {
				err = dynamo.Errorf(dynamo.CodeConverter, "converter %s has no data", p.Label())
			}
			if err == nil {
				err = endpoint(p, p.Input, Stock, Flow, Variable, Converter, State)
			}
		case Agents:
			if p.AgentBase != "" {
				err = endpoint(p, p.AgentBase, Folder)
			}
			if err == nil && p.Size < 0 {
				err = configError(p, "population %s cannot have a negative size", p.Label())
			}
		}
		if err != nil {
			return dynamo.Attribute(err, dynamo.CodeConfig, p.ID, p.Label())
		}
	}
	return nil
}

// TimeSettings converts the settings into the solver clock.
func (s Settings) TimeSettings() (dynamo.TimeSettings, error) {
	alg, err := dynamo.ParseAlgorithm(s.Algorithm)
	if err != nil {
		return dynamo.TimeSettings{}, err
	}
	ts := dynamo.TimeSettings{
		Start:         s.TimeStart,
		Length:        s.TimeLength,
		Step:          s.TimeStep,
		PauseInterval: s.PauseInterval,
		Units:         s.TimeUnits,
		Algorithm:     alg,
	}
	return ts, ts.Validate()
}

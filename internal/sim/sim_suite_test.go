package sim

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/stockflow/internal/model"
)

func TestSim(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Sim Suite")
}

func newModel(alg string, length, step float64, prims ...*model.Primitive) *model.Model {
	return &model.Model{
		Name: "test",
		Settings: model.Settings{
			TimeLength: length,
			TimeStep:   step,
			TimeUnits:  "years",
			Algorithm:  alg,
		},
		Primitives: prims,
	}
}

func stock(id, eq string) *model.Primitive {
	return &model.Primitive{ID: id, Kind: model.Stock, Name: id, Equation: eq}
}

func flow(id, from, to, eq string) *model.Primitive {
	return &model.Primitive{ID: id, Kind: model.Flow, Name: id, From: from, To: to, Equation: eq}
}

func variable(id, eq string) *model.Primitive {
	return &model.Primitive{ID: id, Kind: model.Variable, Name: id, Equation: eq}
}

func state(id, eq string) *model.Primitive {
	return &model.Primitive{ID: id, Kind: model.State, Name: id, Equation: eq}
}

func transition(id, from, to string, trig model.Trigger, eq string) *model.Primitive {
	return &model.Primitive{ID: id, Kind: model.Transition, Name: id, From: from, To: to, Trigger: trig, Equation: eq}
}

func action(id string, trig model.Trigger, eq, body string) *model.Primitive {
	return &model.Primitive{ID: id, Kind: model.Action, Name: id, Trigger: trig, Equation: eq, Action: body}
}

func folder(id string) *model.Primitive {
	return &model.Primitive{ID: id, Kind: model.Folder, Name: id}
}

func in(parent string, p *model.Primitive) *model.Primitive {
	p.Parent = parent
	return p
}

func simulate(m *model.Model, opts ...Option) (*Results, error) {
	s, err := Build(m, opts...)
	if err != nil {
		return nil, err
	}
	return s.Simulate(context.Background())
}

package config

import (
	"sort"

	"github.com/san-kum/stockflow/internal/model"
)

func seed(s uint64) *uint64 { return &s }

// Presets are named run variants of the sample models.
var Presets = map[string]map[string]*Config{
	"growth": {
		"euler": {Model: "growth", Algorithm: "euler", TimeStep: 0.1, TimeLength: 2},
		"rk4":   {Model: "growth", Algorithm: "rk4", TimeStep: 0.1, TimeLength: 2},
		"long":  {Model: "growth", Algorithm: "rk4", TimeStep: 0.25, TimeLength: 50},
	},
	"predator_prey": {
		"coarse": {Model: "predator_prey", Algorithm: "euler", TimeStep: 0.5, TimeLength: 100},
		"fine":   {Model: "predator_prey", Algorithm: "rk4", TimeStep: 0.05, TimeLength: 100},
	},
	"sir_agents": {
		"outbreak": {Model: "sir_agents", TimeLength: 30, Seed: seed(7)},
		"long":     {Model: "sir_agents", TimeLength: 100, Seed: seed(7)},
	},
	"conveyor": {
		"steady": {Model: "conveyor", TimeLength: 20},
		"fine":   {Model: "conveyor", TimeStep: 0.25, TimeLength: 20},
	},
}

func GetPreset(name, preset string) *Config {
	modelPresets, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg, ok := modelPresets[preset]
	if !ok {
		return nil
	}
	return cfg
}

func ListPresets(name string) []string {
	modelPresets, ok := Presets[name]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for n := range modelPresets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Samples build the bundled example models.
var Samples = map[string]func() *model.Model{
	"growth":        Growth,
	"predator_prey": PredatorPrey,
	"sir_agents":    SIRAgents,
	"conveyor":      Conveyor,
}

func SampleNames() []string {
	names := make([]string, 0, len(Samples))
	for n := range Samples {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Growth is a single stock growing at 4% a year.
func Growth() *model.Model {
	return &model.Model{
		Name: "Exponential growth",
		Settings: model.Settings{
			TimeLength: 20, TimeStep: 0.1, TimeUnits: "years", Algorithm: "euler",
		},
		Primitives: []*model.Primitive{
			{ID: "y", Kind: model.Stock, Name: "Y", Equation: "100"},
			{ID: "growth", Kind: model.Flow, Name: "Growth", To: "y", Equation: "0.04 * [Y]"},
		},
	}
}

// PredatorPrey is the Lotka-Volterra system, circling its equilibrium at
// 30 rabbits and 5 foxes.
func PredatorPrey() *model.Model {
	return &model.Model{
		Name: "Predator and prey",
		Settings: model.Settings{
			TimeLength: 100, TimeStep: 0.1, TimeUnits: "years", Algorithm: "rk4",
		},
		Primitives: []*model.Primitive{
			{ID: "rabbits", Kind: model.Stock, Name: "Rabbits", Equation: "40", NonNegative: true},
			{ID: "foxes", Kind: model.Stock, Name: "Foxes", Equation: "9", NonNegative: true},
			{ID: "births", Kind: model.Flow, Name: "Rabbit Births", To: "rabbits", Equation: "0.1 * [Rabbits]"},
			{ID: "predation", Kind: model.Flow, Name: "Predation", From: "rabbits", Equation: "0.02 * [Rabbits] * [Foxes]"},
			{ID: "fox_births", Kind: model.Flow, Name: "Fox Births", To: "foxes", Equation: "0.01 * [Rabbits] * [Foxes]"},
			{ID: "fox_deaths", Kind: model.Flow, Name: "Fox Deaths", From: "foxes", Equation: "0.3 * [Foxes]"},
			{ID: "ratio", Kind: model.Variable, Name: "Ratio", Equation: "[Rabbits] / Max([Foxes], 1)"},
		},
	}
}

// SIRAgents spreads an infection through a population of 100 agents. Each
// susceptible agent is infected with a chance that grows with the number of
// infected agents and recovers two weeks later.
func SIRAgents() *model.Model {
	return &model.Model{
		Name: "SIR agents",
		Settings: model.Settings{
			TimeLength: 30, TimeStep: 1, TimeUnits: "weeks", Algorithm: "euler", Seed: seed(7),
		},
		Primitives: []*model.Primitive{
			{ID: "person", Kind: model.Folder, Name: "Person"},
			{ID: "people", Kind: model.Agents, Name: "People", AgentBase: "person", Size: 100,
				Placement: "random", Network: "custom", NetworkFunction: "RandBoolean(0.05)", Width: 100, Height: 100},
			{ID: "susceptible", Kind: model.State, Name: "Susceptible", Parent: "person", Equation: "Index(Self) > 3"},
			{ID: "infected", Kind: model.State, Name: "Infected", Parent: "person", Equation: "Index(Self) <= 3"},
			{ID: "recovered", Kind: model.State, Name: "Recovered", Parent: "person", Equation: "false"},
			{ID: "infection", Kind: model.Transition, Name: "Infection", Parent: "person", From: "susceptible", To: "infected",
				Trigger: model.Probability, Recalculate: true, Equation: "Min(1, 0.01 * [Infected Count])"},
			{ID: "recovery", Kind: model.Transition, Name: "Recovery", Parent: "person", From: "infected", To: "recovered",
				Trigger: model.Timeout, Equation: "{2 weeks}"},
			{ID: "infected_count", Kind: model.Variable, Name: "Infected Count", Equation: "Count(FindState([People], [Infected]))"},
			{ID: "recovered_count", Kind: model.Variable, Name: "Recovered Count", Equation: "Count(FindState([People], [Recovered]))"},
		},
	}
}

// Conveyor moves orders through a three week production line.
func Conveyor() *model.Model {
	return &model.Model{
		Name: "Production pipeline",
		Settings: model.Settings{
			TimeLength: 20, TimeStep: 1, TimeUnits: "weeks", Algorithm: "euler",
		},
		Primitives: []*model.Primitive{
			{ID: "backlog", Kind: model.Stock, Name: "Backlog", Equation: "0", NonNegative: true},
			{ID: "wip", Kind: model.Stock, Name: "In Production", Equation: "0", NonNegative: true, Conveyor: true, Delay: "3"},
			{ID: "shipped", Kind: model.Stock, Name: "Shipped", Equation: "0"},
			{ID: "orders", Kind: model.Flow, Name: "Orders", To: "backlog", Equation: "10 + Step({5 weeks}, 5)"},
			{ID: "start", Kind: model.Flow, Name: "Start Work", From: "backlog", To: "wip", Equation: "[Backlog] * 0.5"},
			{ID: "ship", Kind: model.Flow, Name: "Ship", From: "wip", To: "shipped", Equation: "[In Production]"},
		},
	}
}

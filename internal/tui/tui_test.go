package tui

import (
	"bytes"
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/model"
	"github.com/san-kum/stockflow/internal/sim"
)

func counter(t *testing.T) *sim.Simulation {
	t.Helper()
	s, err := sim.Build(&model.Model{
		Name:     "counter",
		Settings: model.Settings{TimeLength: 3, TimeStep: 1, TimeUnits: "years"},
		Primitives: []*model.Primitive{
			{ID: "s", Kind: model.Stock, Name: "S", Equation: "0"},
			{ID: "f", Kind: model.Flow, Name: "F", To: "s", Equation: "1"},
		},
	})
	require.NoError(t, err)
	return s
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m Stepper, keys ...string) Stepper {
	t.Helper()
	for _, k := range keys {
		next, _ := m.Update(key(k))
		m = next.(Stepper)
	}
	return m
}

func TestStepperSteps(t *testing.T) {
	m, err := NewStepper("counter", counter(t), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"s", "f"}, m.ids)

	m = press(t, m, "n", "n")
	assert.Equal(t, 2.0, m.run.Time())
	assert.Equal(t, []float64{0, 1, 2}, m.run.Results().Floats("s"))

	m = press(t, m, "n", "n")
	assert.Equal(t, dynamo.Finished, m.run.Phase())
	assert.NoError(t, m.err)
	assert.Contains(t, m.View(), "finished")
}

func TestStepperViewLayout(t *testing.T) {
	m, err := NewStepper("counter", counter(t), nil)
	require.NoError(t, err)
	view := m.View()
	assert.Contains(t, view, "primitive")
	assert.Contains(t, view, "history")
	assert.Contains(t, view, "◆")
	assert.Less(t, strings.Index(view, "primitive"), strings.Index(view, "◆"))
}

func TestStepperSetsValues(t *testing.T) {
	m, err := NewStepper("counter", counter(t), []string{"s"})
	require.NoError(t, err)

	m = press(t, m, "e", "1", "0", "enter", "n")
	assert.Equal(t, []float64{0, 11}, m.run.Results().Floats("s"))

	m = press(t, m, "e", "x", "enter")
	assert.Contains(t, m.status, "not a number")
}

func TestStepperRestart(t *testing.T) {
	m, err := NewStepper("counter", counter(t), nil)
	require.NoError(t, err)
	m = press(t, m, "n", "r")
	assert.Equal(t, 0.0, m.run.Time())
}

func TestStepperPlays(t *testing.T) {
	m, err := NewStepper("counter", counter(t), nil)
	require.NoError(t, err)
	m = press(t, m, " ")
	require.True(t, m.auto)
	for m.auto {
		next, _ := m.Update(tickMsg{})
		m = next.(Stepper)
	}
	assert.Equal(t, dynamo.Finished, m.run.Phase())
}

func TestWatch(t *testing.T) {
	var buf bytes.Buffer
	res, err := Watch(context.Background(), &buf, "counter", counter(t), nil, 10)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2, 3}, res.Floats("s"))
	assert.Contains(t, buf.String(), "counter")
}

func TestParseInput(t *testing.T) {
	v, err := parseInput(" 2.5 ")
	require.NoError(t, err)
	assert.Equal(t, "2.5", v.String())
	_, err = parseInput("abc")
	assert.Error(t, err)
}

// Package tui drives simulation runs from the terminal: an interactive
// stepper built on bubbletea and a plain live renderer for batch runs.
package tui

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/model"
	"github.com/san-kum/stockflow/internal/sim"
	"github.com/san-kum/stockflow/internal/value"
	"github.com/san-kum/stockflow/internal/viz"
)

const (
	sparkWidth = 32
	maxSpeed   = 64
)

// Stepper is the bubbletea model of an interactive run. The user steps the
// run by hand or lets it play, and can set the value of the selected
// primitive between steps.
type Stepper struct {
	name string
	sim  *sim.Simulation
	run  *sim.Run
	err  error

	ids    []string
	cursor int
	pop    *model.Primitive

	auto  bool
	speed int

	editing bool
	editBuf string
	status  string

	width  int
	height int
}

// NewStepper starts a run of s. The watched primitives are ids, or every
// recorded primitive when ids is empty.
func NewStepper(name string, s *sim.Simulation, ids []string) (Stepper, error) {
	m := Stepper{name: name, sim: s, ids: ids, speed: 1, width: 80, height: 24}
	for _, p := range s.Model().Primitives {
		if p.Kind == model.Agents && p.Parent == "" {
			m.pop = p
			break
		}
	}
	if err := m.restart(); err != nil {
		return m, err
	}
	if len(m.ids) == 0 {
		m.ids = m.run.Results().IDs()
	}
	return m, nil
}

func (m *Stepper) restart() error {
	run, err := m.sim.Start()
	m.run, m.err = run, err
	m.auto = false
	return err
}

func (m Stepper) Init() tea.Cmd { return nil }

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(50*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Stepper) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tickMsg:
		if !m.auto {
			return m, nil
		}
		for i := 0; i < m.speed && m.auto; i++ {
			m.step()
		}
		if m.auto {
			return m, tick()
		}
	}
	return m, nil
}

// step advances the run once. Playing stops when the run pauses, finishes
// or fails.
func (m *Stepper) step() {
	if m.err != nil {
		m.auto = false
		return
	}
	if err := m.run.Step(); err != nil {
		m.auto = false
		if !errors.Is(err, dynamo.ErrFinished) {
			m.err = err
		}
		return
	}
	switch m.run.Phase() {
	case dynamo.Paused:
		m.auto = false
		m.status = fmt.Sprintf("paused at %g", m.run.Time())
	case dynamo.Finished:
		m.auto = false
		m.status = "finished"
	}
}

func (m Stepper) handleKey(msg tea.KeyMsg) (Stepper, tea.Cmd) {
	if m.editing {
		return m.editKey(msg)
	}
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "n", "right", "l":
		m.auto = false
		m.step()
	case " ", "p":
		if m.run.Phase() == dynamo.Finished || m.err != nil {
			return m, nil
		}
		m.auto = !m.auto
		m.status = ""
		if m.auto {
			return m, tick()
		}
	case "r":
		m.status = ""
		_ = m.restart()
		return m, tea.ClearScreen
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.ids)-1 {
			m.cursor++
		}
	case "+", "=":
		m.speed = min(m.speed*2, maxSpeed)
	case "-", "_":
		m.speed = max(m.speed/2, 1)
	case "e", "enter":
		if m.err == nil && m.run.Phase() != dynamo.Finished && len(m.ids) > 0 {
			m.auto = false
			m.editing = true
			m.editBuf = ""
		}
	}
	return m, nil
}

func (m Stepper) editKey(msg tea.KeyMsg) (Stepper, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.editing = false
		id := m.ids[m.cursor]
		v, err := parseInput(m.editBuf)
		if err == nil {
			err = m.run.SetValue(id, v)
		}
		if err != nil {
			m.status = err.Error()
		} else {
			m.status = fmt.Sprintf("set %s to %s", m.run.Results().Names[id], m.editBuf)
		}
		m.editBuf = ""
	case tea.KeyEsc:
		m.editing = false
		m.editBuf = ""
	case tea.KeyBackspace:
		if len(m.editBuf) > 0 {
			m.editBuf = m.editBuf[:len(m.editBuf)-1]
		}
	case tea.KeyRunes:
		m.editBuf += string(msg.Runes)
	}
	return m, nil
}

// parseInput reads a number or a boolean typed by the user.
func parseInput(s string) (value.Value, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "true":
		return value.Bool(true), nil
	case "false":
		return value.Bool(false), nil
	}
	x, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return value.Value{}, fmt.Errorf("not a number or boolean: %q", s)
	}
	return value.Num(x), nil
}

func (m Stepper) View() string {
	var b strings.Builder
	ts := m.sim.TimeSettings()

	status := viz.StatusPaused.Render("○ paused")
	switch {
	case m.err != nil:
		status = viz.StatusFailed.Render("✕ failed")
	case m.run.Phase() == dynamo.Finished:
		status = viz.StatusRunning.Render("● finished")
	case m.auto:
		status = viz.StatusRunning.Render("● running")
	}
	b.WriteString("\n  " + viz.Title.Render(m.name) + "  " + status + "\n")

	progress := 0.0
	if ts.Length > 0 {
		progress = (m.run.Time() - ts.Start) / ts.Length
	}
	b.WriteString(fmt.Sprintf("  %s %s  %s\n\n",
		viz.ProgressBar(progress, 36),
		viz.Subtle.Render(fmt.Sprintf("t=%g/%g %s", m.run.Time(), ts.End(), ts.Units)),
		viz.Subtle.Render(fmt.Sprintf("×%d", m.speed))))

	res := m.run.Results()
	nameWidth := 0
	for _, id := range m.ids {
		nameWidth = max(nameWidth, lipgloss.Width(res.Names[id]))
	}
	header := fmt.Sprintf("%-*s %12s  %s", nameWidth, "primitive", "value", "history")
	b.WriteString("    " + viz.HeaderStyle.Render(header) + "\n")
	for i, id := range m.ids {
		name := fmt.Sprintf("%-*s", nameWidth, res.Names[id])
		val := fmt.Sprintf("%12s", viz.FormatValue(res.Last(id)))
		if m.editing && i == m.cursor {
			val = fmt.Sprintf("%12s", m.editBuf+"▋")
		}
		spark := viz.Sparkline(finiteOrNaN(res, id), sparkWidth)
		if i == m.cursor {
			b.WriteString("  " + viz.Title.Render("▸ ") + viz.MetricLabel.Render(name) + " " + viz.MetricValue.Render(val) + "  " + spark + "\n")
		} else {
			b.WriteString("    " + viz.Subtle.Render(name) + " " + val + "  " + spark + "\n")
		}
	}

	if m.pop != nil {
		if agents, err := m.run.Agents(m.pop.ID); err == nil {
			w, h := m.pop.Width, m.pop.Height
			if w <= 0 || h <= 0 {
				w, h = 200, 100
			}
			cols := max(min(m.width-8, 60), 20)
			b.WriteString("\n" + viz.AgentMap(agents, w, h, cols, max(cols/4, 5)) + "\n")
		}
	}

	if m.err != nil {
		b.WriteString("\n  " + viz.StatusFailed.Render(m.err.Error()) + "\n")
	} else if m.status != "" {
		b.WriteString("\n  " + viz.Subtle.Render(m.status) + "\n")
	}
	b.WriteString("\n  " + viz.Separator(max(min(m.width-4, 72), 20)) + "\n")
	b.WriteString(viz.KeyHint.Render("  n step  space play  ±speed  ↑↓ select  e set value  r restart  q quit") + "\n")
	return b.String()
}

// finiteOrNaN is the numeric history of id with non-numeric samples as NaN.
func finiteOrNaN(res *sim.Results, id string) []float64 {
	series := res.Series[id]
	out := make([]float64, len(series))
	for i, v := range series {
		switch x := v.(type) {
		case float64:
			out[i] = x
		case bool:
			if x {
				out[i] = 1
			}
		default:
			out[i] = math.NaN()
		}
	}
	return out
}

// RunStepper opens the stepper full screen and returns when the user quits.
func RunStepper(name string, s *sim.Simulation, ids []string) error {
	m, err := NewStepper(name, s, ids)
	if err != nil {
		return err
	}
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

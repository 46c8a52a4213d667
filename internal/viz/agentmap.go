package viz

import (
	"fmt"
	"math"

	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/stockflow/internal/sim"
)

// AgentCanvas draws the agents of a population with the given space size on
// a cols x rows canvas. Each agent is a 2x2 dot block; links are lines.
func AgentCanvas(agents []sim.AgentInfo, width, height float64, cols, rows int) *Canvas {
	c := NewCanvas(cols, rows)
	dw, dh := c.Dots()
	if width <= 0 || height <= 0 {
		width, height = 1, 1
	}
	project := func(x, y float64) (int, int) {
		px := int(math.Round(x / width * float64(dw-2)))
		py := int(math.Round(y / height * float64(dh-2)))
		return px, py
	}

	byID := make(map[int]sim.AgentInfo, len(agents))
	for _, a := range agents {
		byID[a.ID] = a
	}
	for _, a := range agents {
		ax, ay := project(a.X, a.Y)
		for _, id := range a.Links {
			if id < a.ID {
				continue
			}
			if b, ok := byID[id]; ok {
				bx, by := project(b.X, b.Y)
				c.DrawLine(ax, ay, bx, by)
			}
		}
	}
	for _, a := range agents {
		px, py := project(a.X, a.Y)
		c.Set(px, py)
		c.Set(px+1, py)
		c.Set(px, py+1)
		c.Set(px+1, py+1)
	}
	return c
}

// AgentMap renders AgentCanvas in a panel with a legend counting the agents
// in each active state.
func AgentMap(agents []sim.AgentInfo, width, height float64, cols, rows int) string {
	c := AgentCanvas(agents, width, height, cols, rows)

	counts := make(map[string]int)
	var order []string
	for _, a := range agents {
		for _, s := range a.Active {
			if counts[s] == 0 {
				order = append(order, s)
			}
			counts[s]++
		}
	}

	legend := MetricLabel.Render(fmt.Sprintf("%d agents", len(agents)))
	for _, s := range order {
		legend += "  " + MetricLabel.Render(s+" ") + MetricValue.Render(fmt.Sprint(counts[s]))
	}
	dots := lipgloss.NewStyle().Foreground(CurrentTheme.Secondary).Render(c.String())
	return Panel.Render(dots + legend)
}

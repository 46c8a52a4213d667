package viz

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/san-kum/stockflow/internal/sim"
	"github.com/san-kum/stockflow/internal/storage"
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(CurrentTheme.Muted)).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Foreground(CurrentTheme.Secondary).Padding(0, 1)
			}
			if col == 0 {
				return lipgloss.NewStyle().Foreground(CurrentTheme.Muted).Padding(0, 1)
			}
			return lipgloss.NewStyle().Foreground(CurrentTheme.Text).Padding(0, 1)
		})
}

// ResultsTable shows ids (all recorded primitives when empty) at no more than
// rows evenly spaced samples. The final sample is always included.
func ResultsTable(res *sim.Results, ids []string, rows int) string {
	if len(ids) == 0 {
		ids = res.IDs()
	}
	headers := []string{"time"}
	for _, id := range ids {
		headers = append(headers, res.Names[id])
	}
	t := newTable(headers...)

	for _, i := range sampleRows(len(res.Times), rows) {
		row := []string{FormatValue(res.Times[i])}
		for _, id := range ids {
			var v any
			if s := res.Series[id]; i < len(s) {
				v = s[i]
			}
			row = append(row, FormatValue(v))
		}
		t.Row(row...)
	}
	return t.String()
}

// RunsTable lists stored runs.
func RunsTable(runs []storage.RunMetadata) string {
	t := newTable("id", "model", "when", "algorithm", "dt", "length", "samples")
	for _, r := range runs {
		t.Row(
			shortID(r.ID),
			r.Model,
			r.Timestamp.Format("2006-01-02 15:04:05"),
			r.Algorithm,
			FormatValue(r.TimeStep),
			FormatValue(r.TimeLength)+" "+r.TimeUnits,
			strconv.Itoa(r.Samples),
		)
	}
	return t.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// FormatValue renders a sample for display.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'g', 6, 64)
	case bool:
		return strconv.FormatBool(x)
	case string:
		return x
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = FormatValue(e)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return fmt.Sprint(v)
}

func sampleRows(n, rows int) []int {
	if n == 0 {
		return nil
	}
	if rows <= 0 || rows >= n {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	if rows == 1 {
		return []int{n - 1}
	}
	out := make([]int, 0, rows)
	for k := 0; k < rows; k++ {
		i := k * (n - 1) / (rows - 1)
		if len(out) == 0 || out[len(out)-1] != i {
			out = append(out, i)
		}
	}
	return out
}

package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/san-kum/stockflow/internal/sim"
)

// ExportData is the JSON form of a run.
type ExportData struct {
	Model  string           `json:"model"`
	Steps  int              `json:"steps"`
	Times  []float64        `json:"times"`
	Names  map[string]string `json:"names"`
	Units  map[string]string `json:"units,omitempty"`
	Series map[string][]any `json:"series"`
}

func ExportJSON(w io.Writer, model string, res *sim.Results) error {
	data := ExportData{
		Model:  model,
		Steps:  len(res.Times),
		Times:  res.Times,
		Names:  res.Names,
		Units:  res.Units,
		Series: res.Series,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// WriteCSV writes one row per sample: the time followed by every recorded
// primitive in model order. Vectors and other non-scalar samples are written
// in their JSON form.
func WriteCSV(w io.Writer, res *sim.Results) error {
	cw := csv.NewWriter(w)
	ids := res.IDs()

	header := append([]string{"time"}, ids...)
	if err := cw.Write(header); err != nil {
		return err
	}

	for i, t := range res.Times {
		row := []string{strconv.FormatFloat(t, 'g', -1, 64)}
		for _, id := range ids {
			cell, err := format(res.Series[id], i)
			if err != nil {
				return fmt.Errorf("%s: %w", id, err)
			}
			row = append(row, cell)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func format(series []any, i int) (string, error) {
	if i >= len(series) {
		return "", nil
	}
	switch x := series[i].(type) {
	case nil:
		return "", nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case bool:
		if x {
			return "1", nil
		}
		return "0", nil
	case string:
		return x, nil
	}
	data, err := json.Marshal(series[i])
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/sim"
	"github.com/san-kum/stockflow/internal/viz"
)

const (
	clearScreen = "\033[2J\033[H"
	hideCursor  = "\033[?25l"
	showCursor  = "\033[?25h"
)

// LiveRenderer redraws the watched primitives of a run at most frameRate
// times a second.
type LiveRenderer struct {
	out       io.Writer
	name      string
	ids       []string
	frameRate int
	lastFrame time.Time
}

func NewLiveRenderer(out io.Writer, name string, ids []string, frameRate int) *LiveRenderer {
	if frameRate <= 0 {
		frameRate = 30
	}
	return &LiveRenderer{out: out, name: name, ids: ids, frameRate: frameRate}
}

// OnStep draws a frame unless the previous one is too recent. force draws
// regardless.
func (r *LiveRenderer) OnStep(run *sim.Run, force bool) {
	if !force && time.Since(r.lastFrame) < time.Second/time.Duration(r.frameRate) {
		return
	}
	r.lastFrame = time.Now()
	fmt.Fprint(r.out, clearScreen+r.frame(run))
}

func (r *LiveRenderer) frame(run *sim.Run) string {
	res := run.Results()
	ids := r.ids
	if len(ids) == 0 {
		ids = res.IDs()
	}

	var b strings.Builder
	b.WriteString(viz.Title.Render(r.name) + "  " + viz.Subtle.Render(fmt.Sprintf("t=%g", run.Time())) + "\n\n")
	for _, id := range ids {
		b.WriteString(fmt.Sprintf("  %-20s %12s  %s\n",
			res.Names[id], viz.FormatValue(res.Last(id)), viz.Sparkline(finiteOrNaN(res, id), sparkWidth)))
	}
	return b.String()
}

// Watch runs s to completion, drawing frames as it goes. Pause points are
// passed over.
func Watch(ctx context.Context, out io.Writer, name string, s *sim.Simulation, ids []string, frameRate int) (*sim.Results, error) {
	r := NewLiveRenderer(out, name, ids, frameRate)
	fmt.Fprint(out, hideCursor)
	defer fmt.Fprint(out, showCursor)

	run, err := s.Start()
	if err != nil {
		return nil, err
	}
	for run.Phase() != dynamo.Finished {
		if err := ctx.Err(); err != nil {
			return run.Results(), err
		}
		if err := run.Step(); err != nil {
			return nil, err
		}
		r.OnStep(run, false)
	}
	r.OnStep(run, true)
	return run.Results(), nil
}

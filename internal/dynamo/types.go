package dynamo

import (
	"fmt"
	"strings"
)

// Algorithm selects the numerical integration scheme.
type Algorithm string

const (
	Euler Algorithm = "euler"
	RK4   Algorithm = "rk4"
)

// ParseAlgorithm accepts the usual spellings ("Euler", "RK4", "runge-kutta").
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "euler":
		return Euler, nil
	case "rk4", "runge-kutta", "rungekutta", "4th order runge-kutta":
		return RK4, nil
	}
	return "", Errorf(CodeConfig, "unknown simulation algorithm %q", s)
}

// Phase is the lifecycle state of a run.
type Phase int

const (
	Initializing Phase = iota
	Stepping
	Paused
	Finished
	Failed
)

func (p Phase) String() string {
	switch p {
	case Initializing:
		return "initializing"
	case Stepping:
		return "stepping"
	case Paused:
		return "paused"
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// TimeSettings holds the clock of a run, in model time units.
type TimeSettings struct {
	Start         float64
	Length        float64
	Step          float64
	PauseInterval float64
	Units         string
	Algorithm     Algorithm
}

// Validate rejects settings the solver cannot step.
func (ts TimeSettings) Validate() error {
	if ts.Step <= 0 {
		return Errorf(CodeConfig, "time step must be positive, got %g", ts.Step)
	}
	if ts.Length <= 0 {
		return Errorf(CodeConfig, "time length must be positive, got %g", ts.Length)
	}
	if ts.PauseInterval < 0 {
		return Errorf(CodeConfig, "pause interval cannot be negative, got %g", ts.PauseInterval)
	}
	if strings.TrimSpace(ts.Units) == "" {
		return Errorf(CodeConfig, "time units must be set")
	}
	return nil
}

// End is the final simulated time.
func (ts TimeSettings) End() float64 {
	return ts.Start + ts.Length
}

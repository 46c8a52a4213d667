package integrators

import (
	"math"
	"testing"

	"github.com/san-kum/stockflow/internal/dynamo"
)

func oscillator(x []float64, t float64) []float64 {
	return []float64{x[1], -x[0]}
}

func TestRK4Accuracy(t *testing.T) {
	integ := NewStepper(RK4)

	x := []float64{1.0, 0.0}
	dt := 0.01
	steps := 100

	for i := 0; i < steps; i++ {
		x = integ.Step(oscillator, x, float64(i)*dt, dt)
	}

	expectedX := math.Cos(float64(steps) * dt)
	expectedV := -math.Sin(float64(steps) * dt)

	if math.Abs(x[0]-expectedX) > 1e-4 {
		t.Errorf("position error too large: got %.6f, expected %.6f", x[0], expectedX)
	}

	if math.Abs(x[1]-expectedV) > 1e-4 {
		t.Errorf("velocity error too large: got %.6f, expected %.6f", x[1], expectedV)
	}
}

func TestExponentialGrowth(t *testing.T) {
	growth := func(x []float64, t float64) []float64 { return []float64{0.04 * x[0]} }

	tests := []struct {
		tab  Tableau
		want float64
	}{
		{Euler, 108.31142}, // 100 * 1.004^20
		{RK4, 108.32871},   // 100 * e^0.08
	}
	for _, tt := range tests {
		t.Run(tt.tab.Name, func(t *testing.T) {
			s := NewStepper(tt.tab)
			x := []float64{100}
			for i := 0; i < 20; i++ {
				x = s.Step(growth, x, float64(i)*0.1, 0.1)
			}
			if math.Abs(x[0]-tt.want)/tt.want > 1e-5 {
				t.Errorf("got %.6f, expected %.6f", x[0], tt.want)
			}
		})
	}
}

func TestCombineMatchesStepper(t *testing.T) {
	// One RK4 step of x' = x from x=1 sampled by hand.
	ks := []float64{1, 1.5, 1.75, 2.75}
	got, err := Combine(1.0, ks, RK4.B, 1, AddFloat)
	if err != nil {
		t.Fatal(err)
	}
	want := NewStepper(RK4).Step(func(x []float64, _ float64) []float64 { return x }, []float64{1}, 0, 1)[0]
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("combine %.12f, stepper %.12f", got, want)
	}

	mid, _ := Stage(RK4, 2, 1.0, ks, 1, AddFloat)
	if mid != 1.75 {
		t.Errorf("stage 2 state = %v, expected 1.75", mid)
	}
}

func TestFor(t *testing.T) {
	if tab, err := For(dynamo.RK4); err != nil || tab.Stages() != 4 {
		t.Errorf("rk4: %v stages, err %v", tab.Stages(), err)
	}
	if tab, err := For(dynamo.Euler); err != nil || tab.Stages() != 1 {
		t.Errorf("euler: %v stages, err %v", tab.Stages(), err)
	}
	if _, err := For("verlet"); dynamo.CodeOf(err) != dynamo.CodeConfig {
		t.Errorf("expected config error, got %v", err)
	}
}

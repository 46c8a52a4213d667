// Package integrators holds the explicit Runge-Kutta schemes the solver can
// step stocks with. A scheme is data (a Butcher tableau); the simulation
// evaluates flows at each stage and blends the samples with Combine.
package integrators

import "github.com/san-kum/stockflow/internal/dynamo"

// Tableau is an explicit Runge-Kutta scheme. Stage i is evaluated at time
// t + C[i]*dt with state x + dt*sum_j A[i][j]*k[j]; the step result is
// x + dt*sum_i B[i]*k[i].
type Tableau struct {
	Name string
	C    []float64
	A    [][]float64
	B    []float64
}

// Stages is the number of derivative samples per step.
func (t Tableau) Stages() int { return len(t.B) }

// For returns the tableau of alg.
func For(alg dynamo.Algorithm) (Tableau, error) {
	switch alg {
	case dynamo.Euler:
		return Euler, nil
	case dynamo.RK4:
		return RK4, nil
	}
	return Tableau{}, dynamo.Errorf(dynamo.CodeConfig, "unknown simulation algorithm %q", alg)
}

// Combine returns x + dt*sum_j w[j]*k[j], skipping zero weights. axpy adds
// a*k to acc; it lets callers blend values that are not plain floats.
func Combine[T any](x T, ks []T, w []float64, dt float64, axpy func(acc, k T, a float64) (T, error)) (T, error) {
	acc := x
	for j, a := range w {
		if a == 0 || j >= len(ks) {
			continue
		}
		var err error
		if acc, err = axpy(acc, ks[j], dt*a); err != nil {
			return acc, err
		}
	}
	return acc, nil
}

// Stage is the state at which stage i samples the derivative.
func Stage[T any](t Tableau, i int, x T, ks []T, dt float64, axpy func(acc, k T, a float64) (T, error)) (T, error) {
	if i == 0 {
		return x, nil
	}
	return Combine(x, ks, t.A[i], dt, axpy)
}

// Derivative is an ODE right-hand side over a flat state.
type Derivative func(x []float64, t float64) []float64

// Stepper advances flat float states, reusing scratch buffers between calls.
type Stepper struct {
	tab     Tableau
	ks      [][]float64
	scratch []float64
}

func NewStepper(t Tableau) *Stepper {
	return &Stepper{tab: t}
}

func (s *Stepper) ensureScratch(n int) {
	if len(s.scratch) != n {
		s.ks = make([][]float64, s.tab.Stages())
		for i := range s.ks {
			s.ks[i] = make([]float64, n)
		}
		s.scratch = make([]float64, n)
	}
}

// Step returns the state after dt.
func (s *Stepper) Step(f Derivative, x []float64, t, dt float64) []float64 {
	n := len(x)
	s.ensureScratch(n)

	for i := 0; i < s.tab.Stages(); i++ {
		copy(s.scratch, x)
		for j, a := range s.tab.A[i] {
			for m := 0; m < n; m++ {
				s.scratch[m] += dt * a * s.ks[j][m]
			}
		}
		copy(s.ks[i], f(s.scratch, t+s.tab.C[i]*dt))
	}

	result := make([]float64, n)
	copy(result, x)
	for i, b := range s.tab.B {
		for m := 0; m < n; m++ {
			result[m] += dt * b * s.ks[i][m]
		}
	}
	return result
}

// AddFloat is the axpy of plain floats.
func AddFloat(acc, k float64, a float64) (float64, error) {
	return acc + a*k, nil
}

package integrators

import "testing"

func BenchmarkEuler(b *testing.B) {
	integrator := NewStepper(Euler)
	x := []float64{1.0, 0.0}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x = integrator.Step(oscillator, x, 0, 0.01)
	}
}

func BenchmarkRK4(b *testing.B) {
	integrator := NewStepper(RK4)
	x := []float64{1.0, 0.0}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x = integrator.Step(oscillator, x, 0, 0.01)
	}
}

func BenchmarkCombine(b *testing.B) {
	ks := []float64{1, 2, 3, 4}
	for i := 0; i < b.N; i++ {
		_, _ = Combine(1.0, ks, RK4.B, 0.01, AddFloat)
	}
}

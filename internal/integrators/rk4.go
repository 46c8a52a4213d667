package integrators

// RK4 is the classical fourth order Runge-Kutta method.
var RK4 = Tableau{
	Name: "rk4",
	C:    []float64{0, 0.5, 0.5, 1},
	A: [][]float64{
		nil,
		{0.5},
		{0, 0.5},
		{0, 0, 1},
	},
	B: []float64{1.0 / 6, 1.0 / 3, 1.0 / 3, 1.0 / 6},
}

package integrators

// Euler is the forward Euler method.
var Euler = Tableau{
	Name: "euler",
	C:    []float64{0},
	A:    [][]float64{nil},
	B:    []float64{1},
}

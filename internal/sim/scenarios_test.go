package sim

import (
	"math"

	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/model"
)

var _ = Describe("Integration", func() {
	growth := func(alg string) *model.Model {
		return newModel(alg, 2, 0.1,
			stock("y", "100"),
			flow("growth", "", "y", "0.04*[y]"),
		)
	}

	DescribeTable("exponential growth at t=2",
		func(alg string, want float64) {
			res, err := simulate(growth(alg))
			Expect(err).NotTo(HaveOccurred())
			ys := res.Floats("y")
			Expect(ys).To(HaveLen(21))
			Expect(res.Times[20]).To(BeNumerically("~", 2, 1e-9))
			Expect(ys[20]).To(BeNumerically("~", want, want*1e-5))
		},
		Entry("Euler", "Euler", 108.3114),
		Entry("RK4", "RK4", 108.3287),
	)

	It("reports flows at the rate they move", func() {
		res, err := simulate(growth("Euler"))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Floats("growth")[0]).To(BeNumerically("~", 4, 1e-12))
	})
})

var _ = Describe("Smoothing", func() {
	It("starts a constant input in equilibrium", func() {
		res, err := simulate(newModel("Euler", 5, 1, variable("s", "Smooth(100, 1)")))
		Expect(err).NotTo(HaveOccurred())
		for _, x := range res.Floats("s") {
			Expect(x).To(BeNumerically("~", 100, 1e-12))
		}
	})

	It("lags a step input", func() {
		res, err := simulate(newModel("Euler", 4, 1,
			variable("x", "IfThenElse(Time() < {1 year}, 0, 10)"),
			variable("s", "Smooth([x], 2)"),
		))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Floats("s")).To(Equal([]float64{0, 0, 5, 7.5, 8.75}))
	})
})

var _ = Describe("Converters", func() {
	table := []model.Point{{X: 1, Y: 1.1}, {X: 1.5, Y: 4}, {X: 2, Y: 4}, {X: 3, Y: 9}, {X: 4, Y: 16}, {X: 100, Y: 200}}
	converter := func(input string) *model.Model {
		return newModel("Euler", 1, 1,
			variable("in", input),
			&model.Primitive{ID: "c", Kind: model.Converter, Name: "c", Input: "in", Points: table},
		)
	}

	DescribeTable("interpolates linearly and clamps outside the table",
		func(input string, want float64) {
			res, err := simulate(converter(input))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Floats("c")[0]).To(BeNumerically("~", want, 1e-9))
		},
		Entry("inside", "60", 16+56.0/96*184),
		Entry("on a point", "3", 9.0),
		Entry("on the last point", "100", 200.0),
		Entry("above", "150", 200.0),
		Entry("below", "0", 1.1),
	)
})

var _ = Describe("States and transitions", func() {
	DescribeTable("timeouts alternate the active state",
		func(alg string) {
			res, err := simulate(newModel(alg, 10, 1,
				state("s", "true"),
				state("s2", "false"),
				transition("t1", "s", "s2", model.Timeout, "2"),
				transition("t2", "s2", "s", model.Timeout, "3"),
			))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Floats("s")).To(Equal([]float64{1, 1, 0, 0, 0, 1, 1, 0, 0, 0, 1}))
			Expect(res.Floats("s2")).To(Equal([]float64{0, 0, 1, 1, 1, 0, 0, 1, 1, 1, 0}))
		},
		Entry("Euler", "Euler"),
		Entry("RK4", "RK4"),
	)

	It("detects transitions that keep firing in one instant", func() {
		_, err := simulate(newModel("Euler", 3, 1,
			state("a", "true"),
			state("b", "false"),
			transition("ab", "a", "b", model.Condition, "true"),
			transition("ba", "b", "a", model.Condition, "true"),
		))
		Expect(dynamo.CodeOf(err)).To(Equal(dynamo.CodeTransitionLoop))
	})

	It("rejects negative timeouts", func() {
		_, err := simulate(newModel("Euler", 3, 1,
			state("a", "true"),
			transition("t", "a", "", model.Timeout, "-1"),
		))
		Expect(dynamo.CodeOf(err)).To(Equal(dynamo.CodeConfig))
	})
})

var _ = Describe("Dependencies", func() {
	It("names both primitives of a same-step cycle", func() {
		_, err := Build(newModel("Euler", 1, 1,
			variable("A", "[B] + 1"),
			variable("B", "[A] + 1"),
		))
		Expect(dynamo.CodeOf(err)).To(Equal(dynamo.CodeCircular))
		Expect(err.Error()).To(ContainSubstring("Circular equation loop identified including the primitives: A, B"))
	})

	It("accepts the same loop through a stock", func() {
		res, err := simulate(newModel("Euler", 3, 1,
			stock("A", "1"),
			variable("B", "[A] + 1"),
			flow("F", "", "A", "[B] * 0.1"),
		))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Floats("A")[1]).To(BeNumerically("~", 1.2, 1e-12))
	})
})

var _ = Describe("Material", func() {
	DescribeTable("is conserved between recirculating stocks",
		func(alg string, conveyor bool) {
			b := stock("B", "0")
			b.NonNegative = true
			if conveyor {
				b.Conveyor, b.Delay = true, "2"
			}
			a := stock("A", "100")
			a.NonNegative = true
			res, err := simulate(newModel(alg, 20, 0.5,
				a, b,
				flow("AB", "A", "B", "[A] * 0.3"),
				flow("BA", "B", "A", "[B] * 0.1"),
			))
			Expect(err).NotTo(HaveOccurred())
			as, bs := res.Floats("A"), res.Floats("B")
			for i := range as {
				Expect(as[i]+bs[i]).To(BeNumerically("~", 100, 1e-9), "t=%g", res.Times[i])
			}
		},
		Entry("Euler", "Euler", false),
		Entry("RK4", "RK4", false),
		Entry("Euler conveyor", "Euler", true),
		Entry("RK4 conveyor", "RK4", true),
	)

	It("clamps a non-negative stock and shows it in the flow", func() {
		s := stock("S", "10")
		s.NonNegative = true
		res, err := simulate(newModel("Euler", 3, 1, s, flow("F", "S", "", "8")))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Floats("S")).To(Equal([]float64{10, 2, 0, 0}))
		Expect(res.Floats("F")).To(Equal([]float64{8, 2, 0, 0}))
	})

	It("releases conveyor material after its delay", func() {
		c := stock("C", "0")
		c.Conveyor, c.Delay = true, "2"
		res, err := simulate(newModel("Euler", 5, 1, c, flow("In", "", "C", "IfThenElse(Time() < {1 year}, 10, 0)")))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Floats("C")).To(Equal([]float64{0, 10, 10, 10, 10, 10}))
	})
})

var _ = Describe("Determinism", func() {
	noisy := func() *model.Model {
		return newModel("RK4", 10, 0.5,
			stock("X", "0"),
			variable("noise", "RandNormal(0, 1)"),
			flow("F", "", "X", "[noise]"),
		)
	}

	It("repeats a seeded run exactly", func() {
		a, err := simulate(noisy(), WithSeed(42))
		Expect(err).NotTo(HaveOccurred())
		b, err := simulate(noisy(), WithSeed(42))
		Expect(err).NotTo(HaveOccurred())
		Expect(cmp.Diff(a.Series, b.Series)).To(BeEmpty())
	})

	It("changes with the seed", func() {
		a, err := simulate(noisy(), WithSeed(1))
		Expect(err).NotTo(HaveOccurred())
		b, err := simulate(noisy(), WithSeed(2))
		Expect(err).NotTo(HaveOccurred())
		Expect(cmp.Diff(a.Series, b.Series)).NotTo(BeEmpty())
	})
})

var _ = Describe("Units", func() {
	It("converts results into declared units and back", func() {
		km := variable("km", "{1500 meters}")
		km.Units = "kilometers"
		m := variable("m", "[km]")
		m.Units = "meters"
		res, err := simulate(newModel("Euler", 1, 1, km, m))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Floats("km")[0]).To(BeNumerically("~", 1.5, 1e-12))
		Expect(res.Floats("m")[0]).To(BeNumerically("~", 1500, 1e-9))
	})

	It("rejects incompatible units", func() {
		v := variable("v", "{3 seconds}")
		v.Units = "meters"
		_, err := simulate(newModel("Euler", 1, 1, v))
		Expect(dynamo.CodeOf(err)).To(Equal(dynamo.CodeUnits))
	})
})

var _ = Describe("Evaluation order", func() {
	ids := func(recs []*record) []string {
		out := make([]string, len(recs))
		for i, r := range recs {
			out[i] = r.id
		}
		return out
	}
	chain := func() *model.Model {
		return newModel("Euler", 2, 1,
			variable("A", "[B] + 1"),
			variable("B", "[C] * 2"),
			variable("C", "1"),
			stock("S", "0"),
			flow("F", "", "S", "[A]"),
			state("on", "true"),
			transition("t", "on", "", model.Timeout, "1"),
			action("halt", model.Condition, "[S] > 100", "Stop()"),
		)
	}

	It("places every read before its reader", func() {
		s, err := Build(chain())
		Expect(err).NotTo(HaveOccurred())
		Expect(ids(s.stepOrder)).To(Equal([]string{"C", "B", "A", "F"}))
		Expect(ids(s.initOrder)).To(Equal([]string{"C", "B", "A", "S", "F", "on"}))
	})

	It("runs models with transitions and actions", func() {
		res, err := simulate(chain())
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Floats("A")).To(Equal([]float64{3, 3, 3}))
		Expect(res.Floats("S")).To(Equal([]float64{0, 3, 6}))
		Expect(res.Floats("on")).To(Equal([]float64{1, 0, 0}))
	})
})

var _ = Describe("Probability triggers", func() {
	DescribeTable("a certain transition fires once per step without looping",
		func(alg string) {
			res, err := simulate(newModel(alg, 4, 1,
				state("a", "true"),
				state("b", "false"),
				transition("ab", "a", "b", model.Probability, "1"),
				transition("ba", "b", "a", model.Probability, "1"),
			))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Floats("a")).To(Equal([]float64{1, 0, 1, 0, 1}))
			Expect(res.Floats("b")).To(Equal([]float64{0, 1, 0, 1, 0}))
		},
		Entry("Euler", "Euler"),
		Entry("RK4", "RK4"),
	)

	It("never fires at probability 0", func() {
		res, err := simulate(newModel("Euler", 4, 1,
			state("a", "true"),
			transition("ab", "a", "", model.Probability, "0"),
		))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Floats("a")).To(Equal([]float64{1, 1, 1, 1, 1}))
	})

	It("rejects probabilities outside [0, 1]", func() {
		_, err := simulate(newModel("Euler", 4, 1,
			state("a", "true"),
			transition("ab", "a", "", model.Probability, "1.5"),
		))
		Expect(dynamo.CodeOf(err)).To(Equal(dynamo.CodeConfig))
	})
})

var _ = Describe("Trigger values", func() {
	timeout := func(recalculate bool) *model.Model {
		t := transition("ab", "a", "b", model.Timeout, "IfThenElse(Time() < {1 year}, 5, 1)")
		t.Recalculate = recalculate
		return newModel("Euler", 6, 1, state("a", "true"), state("b", "false"), t)
	}

	It("keeps the value fixed when the source became active", func() {
		res, err := simulate(timeout(false))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Floats("b")).To(Equal([]float64{0, 0, 0, 0, 0, 1, 1}))
	})

	It("re-evaluates the value every step with recalculate", func() {
		res, err := simulate(timeout(true))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Floats("b")).To(Equal([]float64{0, 1, 1, 1, 1, 1, 1}))
	})
})

var _ = Describe("Actions", func() {
	population := func(trig model.Trigger, eq string, repeat bool) *model.Model {
		a := action("grow", trig, eq, "Add([People])")
		a.Repeat = repeat
		return newModel("Euler", 4, 1,
			folder("person"),
			&model.Primitive{ID: "people", Kind: model.Agents, Name: "People", AgentBase: "person", Size: 2},
			a,
		)
	}

	DescribeTable("fire once unless they repeat",
		func(trig model.Trigger, eq string, repeat bool, want []float64) {
			res, err := simulate(population(trig, eq, repeat))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Floats("people")).To(Equal(want))
		},
		Entry("timeout", model.Timeout, "2", false, []float64{2, 2, 3, 3, 3}),
		Entry("repeating timeout", model.Timeout, "2", true, []float64{2, 2, 3, 3, 4}),
		Entry("certain probability", model.Probability, "1", false, []float64{2, 3, 3, 3, 3}),
		Entry("repeating certain probability", model.Probability, "1", true, []float64{2, 3, 4, 5, 6}),
	)
})

var _ = Describe("Placement", func() {
	place := func(placement string, network string, opts ...Option) []AgentInfo {
		pop := &model.Primitive{ID: "people", Kind: model.Agents, Name: "People", AgentBase: "person",
			Size: 4, Placement: placement, Width: 100, Height: 100}
		if network != "" {
			pop.Network, pop.NetworkFunction = "custom", network
		}
		s, err := Build(newModel("Euler", 1, 1, folder("person"), pop), opts...)
		Expect(err).NotTo(HaveOccurred())
		r, err := s.Start()
		Expect(err).NotTo(HaveOccurred())
		agents, err := r.Agents("people")
		Expect(err).NotTo(HaveOccurred())
		Expect(agents).To(HaveLen(4))
		return agents
	}
	at := func(agents []AgentInfo) [][2]float64 {
		out := make([][2]float64, len(agents))
		for _, a := range agents {
			out[a.ID-1] = [2]float64{a.X, a.Y}
		}
		return out
	}
	approx := cmp.Comparer(func(x, y float64) bool { return math.Abs(x-y) < 1e-9 })

	It("fills a grid row by row", func() {
		got := at(place("grid", ""))
		want := [][2]float64{{25, 25}, {75, 25}, {25, 75}, {75, 75}}
		Expect(cmp.Diff(want, got, approx)).To(BeEmpty())
	})

	It("spaces agents evenly on an ellipse", func() {
		got := at(place("ellipse", ""))
		want := [][2]float64{{100, 50}, {50, 100}, {0, 50}, {50, 0}}
		Expect(cmp.Diff(want, got, approx)).To(BeEmpty())
	})

	It("pulls linked agents together with network placement", func() {
		agents := place("network", "Index(a) = 1 and Index(b) = 2", WithSeed(3))
		pos := at(agents)
		dist := func(i, j int) float64 {
			return math.Hypot(pos[i][0]-pos[j][0], pos[i][1]-pos[j][1])
		}
		var sum float64
		var n int
		for i := 0; i < 4; i++ {
			for j := i + 1; j < 4; j++ {
				if i == 0 && j == 1 {
					continue
				}
				sum += dist(i, j)
				n++
			}
		}
		Expect(dist(0, 1)).To(BeNumerically("<", sum/float64(n)))
		for _, p := range pos {
			Expect(p[0]).To(BeNumerically(">=", 0))
			Expect(p[0]).To(BeNumerically("<=", 100))
			Expect(p[1]).To(BeNumerically(">=", 0))
			Expect(p[1]).To(BeNumerically("<=", 100))
		}
		Expect(agents[0].Links).To(Equal([]int{2}))
		Expect(agents[2].Links).To(BeEmpty())

		Expect(cmp.Diff(pos, at(place("network", "Index(a) = 1 and Index(b) = 2", WithSeed(3))))).To(BeEmpty())
	})
})

var _ = Describe("Macros", func() {
	It("reseeds the run stream with SetRandSeed", func() {
		m := newModel("Euler", 5, 1, stock("X", "0"), flow("F", "", "X", "Rand()"))
		m.Settings.Macros = "SetRandSeed(5)"
		a, err := simulate(m, WithSeed(1))
		Expect(err).NotTo(HaveOccurred())
		b, err := simulate(m, WithSeed(2))
		Expect(err).NotTo(HaveOccurred())
		Expect(cmp.Diff(a.Series, b.Series)).To(BeEmpty())
	})
})

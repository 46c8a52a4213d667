package sim

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/model"
	"github.com/san-kum/stockflow/internal/value"
)

func TestRun_StepAndSetValue(t *testing.T) {
	s, err := Build(newModel("Euler", 3, 1,
		stock("S", "0"),
		variable("rate", "1"),
		flow("F", "", "S", "[rate]"),
	))
	require.NoError(t, err)

	r, err := s.Start()
	require.NoError(t, err)
	assert.Equal(t, dynamo.Stepping, r.Phase())

	require.NoError(t, r.Step())
	v, err := r.Value("S")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.Float())

	require.NoError(t, r.SetValue("S", value.Num(10)))
	require.NoError(t, r.SetValue("rate", value.Num(5)))
	require.NoError(t, r.Step())
	v, err = r.Value("S")
	require.NoError(t, err)
	assert.Equal(t, 15.0, v.Float())

	require.NoError(t, r.Step())
	assert.Equal(t, dynamo.Finished, r.Phase())
	assert.ErrorIs(t, r.Step(), dynamo.ErrFinished)
	assert.Equal(t, []float64{0, 1, 15, 16}, r.Results().Floats("S"))
}

func TestRun_SetValueMissing(t *testing.T) {
	s, err := Build(newModel("Euler", 1, 1, variable("x", "1")))
	require.NoError(t, err)
	r, err := s.Start()
	require.NoError(t, err)

	err = r.SetValue("nope", value.Num(1))
	assert.Equal(t, dynamo.CodeMissing, dynamo.CodeOf(err))
}

func TestRun_StopTruncates(t *testing.T) {
	res, err := simulate(newModel("Euler", 10, 1,
		stock("S", "0"),
		flow("F", "", "S", "1"),
		action("halt", model.Condition, "[S] >= 3", "Stop()"),
	))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2, 3}, res.Times)
}

func TestRun_StopDuringInit(t *testing.T) {
	_, err := simulate(newModel("Euler", 10, 1, variable("x", "Stop()")))
	assert.Equal(t, dynamo.CodeStop, dynamo.CodeOf(err))
}

func TestRun_AsyncPauses(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := newModel("Euler", 10, 1, stock("S", "0"), flow("F", "", "S", "1"))
	m.Settings.PauseInterval = 2
	s, err := Build(m)
	require.NoError(t, err)

	var paused []float64
	out := <-s.RunAsync(context.Background(), func(r *Run) {
		paused = append(paused, r.Time())
	})
	require.Nil(t, out.Err)
	assert.Equal(t, []float64{2, 4, 6, 8}, paused)
	assert.Len(t, out.Results.Times, 11)
}

func TestRun_AsyncReportsPayload(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, err := Build(newModel("Euler", 2, 1, variable("x", "true + 1")))
	require.NoError(t, err)
	out := <-s.RunAsync(context.Background(), nil)
	require.NotNil(t, out.Err)
	assert.Equal(t, "x", out.Err.PrimitiveID)
}

func TestRun_PauseBuiltin(t *testing.T) {
	s, err := Build(newModel("Euler", 5, 1,
		stock("S", "0"),
		flow("F", "", "S", "1"),
		action("hold", model.Condition, "[S] = 2", "Pause()"),
	))
	require.NoError(t, err)
	r, err := s.Start()
	require.NoError(t, err)
	require.NoError(t, r.Step())
	assert.Equal(t, dynamo.Stepping, r.Phase())
	require.NoError(t, r.Step())
	assert.Equal(t, dynamo.Paused, r.Phase())
	require.NoError(t, r.Step())
	assert.Equal(t, dynamo.Stepping, r.Phase())
}

func TestHistory_FixedDelayAndPast(t *testing.T) {
	res, err := simulate(newModel("Euler", 5, 1,
		stock("S", "0"),
		flow("F", "", "S", "1"),
		variable("lag", "Delay([S], 2, -1)"),
		variable("hi", "PastMax([S])"),
		variable("mean", "PastMean([S], 2)"),
	))
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, -1, 0, 1, 2, 3}, res.Floats("lag"))
	assert.Equal(t, []float64{0, 1, 2, 3, 4, 5}, res.Floats("hi"))
	assert.Equal(t, []float64{0, 0.5, 1, 2, 3, 4}, res.Floats("mean"))
}

func TestTime_Functions(t *testing.T) {
	res, err := simulate(newModel("Euler", 4, 1,
		variable("step", "Step({2 years}, 5)"),
		variable("pulse", "Pulse({1 year}, 3, {1 year}, {2 years})"),
		variable("ramp", "Ramp({1 year}, {3 years}, 4)"),
		variable("months", "Months()"),
	))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 5, 5, 5}, res.Floats("step"))
	assert.Equal(t, []float64{0, 3, 0, 3, 0}, res.Floats("pulse"))
	assert.Equal(t, []float64{0, 0, 2, 4, 4}, res.Floats("ramp"))
	assert.InDeltaSlice(t, []float64{0, 12, 24, 36, 48}, res.Floats("months"), 1e-9)
}

func TestSSD_Errors(t *testing.T) {
	tests := []struct {
		name string
		eq   string
	}{
		{"zero period", "Smooth(1, 0)"},
		{"bad order", "SmoothN(1, 2, 1.5)"},
		{"arity", "Delay3(1)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := simulate(newModel("Euler", 2, 1, variable("x", tt.eq)))
			assert.Equal(t, dynamo.CodeSSD, dynamo.CodeOf(err))
		})
	}
}

func TestSSD_MaterialDelay(t *testing.T) {
	res, err := simulate(newModel("Euler", 3, 1,
		variable("x", "IfThenElse(Time() < {1 year}, 0, 10)"),
		variable("d", "Delay1([x], 2)"),
	))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 5, 7.5}, res.Floats("d"))
}

func TestFolderSolverOverride(t *testing.T) {
	f := folder("fast")
	f.Solver = &model.Solver{TimeStep: 0.5}
	res, err := simulate(newModel("Euler", 2, 1,
		f,
		in("fast", stock("S", "1")),
		in("fast", flow("F", "", "S", "[S]")),
	))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2}, res.Times)
	assert.InDeltaSlice(t, []float64{1, 2.25, 5.0625}, res.Floats("S"), 1e-12)
}

func TestConstraint(t *testing.T) {
	s := stock("S", "0")
	hi := 2.0
	s.Max = &hi
	_, err := simulate(newModel("Euler", 5, 1, s, flow("F", "", "S", "1")))
	assert.Equal(t, dynamo.CodeConstraint, dynamo.CodeOf(err))
	assert.Equal(t, "S", dynamo.PayloadOf(err).PrimitiveID)
}

func agentModel(size int, prims ...*model.Primitive) *model.Model {
	pop := &model.Primitive{ID: "people", Kind: model.Agents, Name: "People", AgentBase: "person", Size: size}
	return newModel("Euler", 4, 1, append([]*model.Primitive{folder("person"), pop}, prims...)...)
}

func TestAgents_FindAndCount(t *testing.T) {
	res, err := simulate(agentModel(10,
		in("person", state("sick", "Index(Self) <= 3")),
		variable("ill", "Count(FindState([People], [sick]))"),
		variable("well", "FindNotState([People], [sick]).Count()"),
	))
	require.NoError(t, err)
	assert.Equal(t, 3.0, res.Floats("ill")[0])
	assert.Equal(t, 7.0, res.Floats("well")[0])
	assert.Equal(t, 10.0, res.Floats("people")[0])
}

func TestAgents_PlaceholderMisuse(t *testing.T) {
	_, err := simulate(agentModel(2,
		in("person", variable("age", "30")),
		variable("bad", "[age] + 1"),
	))
	assert.Equal(t, dynamo.CodePlaceholder, dynamo.CodeOf(err))
}

func TestAgents_CustomPlacement(t *testing.T) {
	m := agentModel(3)
	pop := m.ByID("people")
	pop.Placement = "custom"
	pop.PlacementFunction = "{Index(Self), 2 * Index(Self)}"
	s, err := Build(m)
	require.NoError(t, err)
	r, err := s.Start()
	require.NoError(t, err)

	agents, err := r.Agents("people")
	require.NoError(t, err)
	require.Len(t, agents, 3)
	for _, a := range agents {
		assert.Equal(t, float64(a.ID), a.X)
		assert.Equal(t, float64(2*a.ID), a.Y)
	}

	pop.PlacementFunction = "1"
	_, err = simulate(m)
	assert.Equal(t, dynamo.CodePlacement, dynamo.CodeOf(err))
}

func TestAgents_Network(t *testing.T) {
	m := agentModel(5, in("person", variable("degree", "Count(Connected(Self))")))
	pop := m.ByID("people")
	pop.Network = "custom"
	pop.NetworkFunction = "Index(a) + Index(b) <= 5"
	res, err := simulate(m)
	require.NoError(t, err)

	got := res.Last("degree").(map[string]any)
	want := map[string]any{"1": 3.0, "2": 2.0, "3": 2.0, "4": 1.0, "5": 0.0}
	assert.Empty(t, cmp.Diff(want, got))
}

func TestAgents_AddAndRemove(t *testing.T) {
	res, err := simulate(agentModel(3,
		action("grow", model.Timeout, "2", "Add([People])"),
		action("cull", model.Timeout, "3", "Remove(FindIndex([People], 1))"),
	))
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 3, 4, 3, 3}, res.Floats("people"))
}

func TestAgents_Movement(t *testing.T) {
	m := agentModel(2,
		in("person", variable("x", "Location(Self){1}")),
		action("walk", model.Timeout, "1", "FindAll([People]).Map(Move(x, {1, 0}))"),
	)
	pop := m.ByID("people")
	pop.Placement = "custom"
	pop.PlacementFunction = "{10 * Index(Self), 0}"
	pop.Width, pop.Height, pop.WrapAround = 25, 25, true
	res, err := simulate(m)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(map[string]any{"1": 11.0, "2": 21.0}, res.Last("x")))
}

func TestEnsemble_MatchesSingleRuns(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := newModel("Euler", 5, 1, stock("X", "0"), flow("F", "", "X", "Rand()"))
	s, err := Build(m)
	require.NoError(t, err)

	ens, err := s.RunEnsemble(context.Background(), 4, 10, WithParallelism(2))
	require.NoError(t, err)
	require.Len(t, ens.Members, 4)
	for i, mem := range ens.Members {
		assert.Equal(t, uint64(10+i), mem.Seed)
		single, err := simulate(m, WithSeed(mem.Seed))
		require.NoError(t, err)
		assert.Empty(t, cmp.Diff(single.Series, mem.Results.Series))
	}

	band := ens.Band("X")
	require.Len(t, band.Mean, 6)
	assert.Equal(t, 0.0, band.Mean[0])
	for i := range band.Mean {
		assert.LessOrEqual(t, band.Min[i], band.Mean[i])
		assert.GreaterOrEqual(t, band.Max[i], band.Mean[i])
	}
}

func TestEnsemble_Cancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, err := Build(newModel("Euler", 5, 1, variable("x", "1")))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.RunEnsemble(ctx, 3, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

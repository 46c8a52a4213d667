package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/stockflow/internal/model"
	"github.com/san-kum/stockflow/internal/sim"
)

func testResults(t *testing.T) *sim.Results {
	t.Helper()
	m := &model.Model{
		Name:     "test",
		Settings: model.Settings{TimeLength: 2, TimeStep: 1, TimeUnits: "years"},
		Primitives: []*model.Primitive{
			{ID: "s", Kind: model.Stock, Name: "S", Equation: "1"},
			{ID: "f", Kind: model.Flow, Name: "F", To: "s", Equation: "2"},
			{ID: "on", Kind: model.State, Name: "On", Equation: "true"},
			{ID: "v", Kind: model.Variable, Name: "V", Equation: "{1, 2}"},
		},
	}
	s, err := sim.Build(m)
	require.NoError(t, err)
	res, err := s.Simulate(context.Background())
	require.NoError(t, err)
	return res
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	require.NoError(t, st.Init())

	seed := uint64(42)
	runID, err := st.Save(RunMetadata{Model: "test", Seed: &seed, TimeStep: 1, TimeLength: 2, Algorithm: "euler"}, testResults(t))
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	meta, err := st.Load(runID)
	require.NoError(t, err)
	assert.Equal(t, "test", meta.Model)
	require.NotNil(t, meta.Seed)
	assert.Equal(t, uint64(42), *meta.Seed)
	assert.Equal(t, 3, meta.Samples)
	assert.Equal(t, 5.0, meta.Final["s"])
	assert.Equal(t, 1.0, meta.Final["on"])
	assert.NotContains(t, meta.Final, "v")
	assert.Equal(t, "S", meta.Names["s"])

	series, err := st.LoadSeries(runID)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2}, series.Times)
	assert.Equal(t, []string{"s", "f", "on", "v"}, series.Columns)
	assert.Equal(t, []float64{1, 3, 5}, series.Values["s"])
	assert.True(t, math.IsNaN(series.Values["v"][0]))
}

func TestStoreList(t *testing.T) {
	st := New(t.TempDir())
	require.NoError(t, st.Init())

	runs, err := st.List()
	require.NoError(t, err)
	assert.Empty(t, runs)

	_, err = st.Save(RunMetadata{Model: "a"}, testResults(t))
	require.NoError(t, err)
	_, err = st.Save(RunMetadata{Model: "b"}, testResults(t))
	require.NoError(t, err)

	runs, err = st.List()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.False(t, runs[0].Timestamp.Before(runs[1].Timestamp))
}

func TestStoreList_MissingDir(t *testing.T) {
	st := New(filepath.Join(t.TempDir(), "absent"))
	runs, err := st.List()
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestStoreFileStructure(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)
	require.NoError(t, st.Init())

	runID, err := st.Save(RunMetadata{Model: "test"}, testResults(t))
	require.NoError(t, err)

	for _, name := range []string{"metadata.json", "series.csv"} {
		if _, err := os.Stat(filepath.Join(tmpDir, runID, name)); os.IsNotExist(err) {
			t.Errorf("%s not created", name)
		}
	}

	require.NoError(t, st.Delete(runID))
	_, err = os.Stat(filepath.Join(tmpDir, runID))
	assert.True(t, os.IsNotExist(err))
}

func TestStoreRejectsBadIDs(t *testing.T) {
	st := New(t.TempDir())
	_, err := st.Load("../etc")
	assert.Error(t, err)
	_, err = st.LoadSeries("nope")
	assert.Error(t, err)
	assert.Error(t, st.Delete(".."))
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, testResults(t)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "time,s,f,on,v", lines[0])
	assert.Equal(t, `0,1,2,1,"[1,2]"`, lines[1])
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportJSON(&buf, "test", testResults(t)))

	var data ExportData
	require.NoError(t, json.Unmarshal(buf.Bytes(), &data))
	assert.Equal(t, "test", data.Model)
	assert.Equal(t, 3, data.Steps)
	assert.Equal(t, "F", data.Names["f"])
}

func TestStoreResolve(t *testing.T) {
	st := New(t.TempDir())
	require.NoError(t, st.Init())
	runID, err := st.Save(RunMetadata{Model: "test"}, testResults(t))
	require.NoError(t, err)

	got, err := st.Resolve(runID[:8])
	require.NoError(t, err)
	assert.Equal(t, runID, got)

	got, err = st.Resolve(runID)
	require.NoError(t, err)
	assert.Equal(t, runID, got)

	_, err = st.Resolve("zzzz")
	assert.Error(t, err)
}

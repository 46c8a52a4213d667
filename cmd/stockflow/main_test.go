package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParam(t *testing.T) {
	name, vals, err := parseParam("Inflow=1:2:0.5")
	require.NoError(t, err)
	assert.Equal(t, "Inflow", name)
	assert.Equal(t, []float64{1, 1.5, 2}, vals)

	name, vals, err = parseParam("rate=0.1, 0.3")
	require.NoError(t, err)
	assert.Equal(t, "rate", name)
	assert.Equal(t, []float64{0.1, 0.3}, vals)

	for _, bad := range []string{"rate", "=1", "rate=a,b", "rate=1:x:1", "rate=2:1:1"} {
		_, _, err := parseParam(bad)
		assert.Error(t, err, bad)
	}
}

func TestResolveIDs(t *testing.T) {
	names := map[string]string{"s": "Stock", "f": "Flow"}
	order := []string{"s", "f"}

	ids, err := resolveIDs(names, order, []string{"flow", "s"})
	require.NoError(t, err)
	assert.Equal(t, []string{"f", "s"}, ids)

	ids, err = resolveIDs(names, order, nil)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = resolveIDs(names, order, []string{"nope"})
	assert.Error(t, err)
}

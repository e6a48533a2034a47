package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_LimitCross(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "limit_cross.yaml"))
	require.NoError(t, err)

	// go test ./internal/harness -run TestRunWithGolden_LimitCross -update
	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestMarshalTrace_Stable(t *testing.T) {
	trace := []TraceEvent{
		{Type: EventPayment, Height: 7, Payments: map[string]int64{"b": 2, "a": 1}},
	}
	first, err := MarshalTrace("stable", trace)
	require.NoError(t, err)
	for range 5 {
		again, err := MarshalTrace("stable", trace)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Contains(t, string(first), "\"a\": 1,\n        \"b\": 2")
}

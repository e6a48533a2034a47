package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_MinimalScenario(t *testing.T) {
	scenario, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))

	require.Len(t, result.Trace, 1)
	assert.Equal(t, TraceEvent{Type: EventBlock, Height: 240001}, result.Trace[0])
	assert.Equal(t, int64(240001), result.Final.Height())
}

func TestRun_Scenarios(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		t.Run(strings.TrimSuffix(filepath.Base(f), ".yaml"), func(t *testing.T) {
			scenario, err := LoadScenario(f)
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
		})
	}
}

func TestRun_FailingAssertionIsReported(t *testing.T) {
	scenario, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)
	scenario.Assertions = []Assertion{{Type: AssertRollbackCount, Count: 2}}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "2 rollbacks")
}

func TestRun_ForkAtUnknownHeight(t *testing.T) {
	scenario, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)
	scenario.Blocks = append(scenario.Blocks, BlockStep{Fork: 250000})

	_, err = Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fork at unknown height 250000")
}

func TestRun_ReorgTrace(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "reorg_payment_mismatch.yaml"))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)

	var types []string
	for _, e := range result.Trace {
		if e.Type != EventRequest {
			types = append(types, e.Type)
		}
	}
	assert.Equal(t, []string{EventBlock, EventBlock, EventPayment, EventRollback, EventHalt}, types)

	last := result.Trace[len(result.Trace)-1]
	assert.Equal(t, int64(240002), last.Height)
}

func TestRun_ReorgReplayTrace(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "reorg_replay.yaml"))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)

	type step struct {
		Type   string
		Height int64
	}
	var steps []step
	for _, e := range result.Trace {
		if e.Type != EventRequest {
			steps = append(steps, step{e.Type, e.Height})
		}
	}
	// the fork is not seen until the new branch is longer than the old one
	assert.Equal(t, []step{
		{EventBlock, 240001},
		{EventBlock, 240002},
		{EventRollback, 240001},
		{EventBlock, 240002},
		{EventPayment, 240002},
		{EventBlock, 240003},
		{EventBlock, 240004},
	}, steps)
}

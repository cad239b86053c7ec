package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azsmith/grainulator-sub004/internal/engine"
)

func TestRun_TracesCommitAndDispatch(t *testing.T) {
	result, err := Run(&Scenario{
		Name: "trace-commit",
		Steps: []Step{
			{Apply: &BundleSpec{
				BundleID: "b1",
				Mode:     "best_effort",
				Actions: []ActionSpec{
					{ActionID: "a1", Type: "set", Target: "granular.voiceA.grainSize", Value: 120},
				},
			}},
			{Dispatch: true},
		},
	})
	require.NoError(t, err)

	require.Len(t, result.Trace, 2)

	apply := result.Trace[0]
	assert.Equal(t, "apply", apply.Op)
	assert.Equal(t, "b1", apply.BundleID)
	assert.Equal(t, "ok", apply.Status)
	assert.Equal(t, uint64(1), apply.StateVersion)
	require.Len(t, apply.Actions, 1)
	assert.Equal(t, "committed", apply.Actions[0].Status)
	assert.Equal(t, int64(0), apply.Actions[0].AtSample)

	dispatch := result.Trace[1]
	assert.Equal(t, "dispatch", dispatch.Op)
	require.Equal(t, 1, dispatch.Count)
	assert.Equal(t, "granular.voiceA.grainSize", dispatch.Commands[0].Target)
	assert.Equal(t, "120", dispatch.Commands[0].Value)

	require.Len(t, result.Events, 1)
	assert.Contains(t, result.Events[0], "kind=state.changed")
	assert.Equal(t, uint64(1), result.FinalStateVersion)
	assert.Equal(t, []string{"granular.voiceA.grainSize = 120"}, result.FinalState)
}

func TestRun_ValidationFailureIsTraced(t *testing.T) {
	result, err := Run(&Scenario{
		Name: "reject-out-of-range",
		Steps: []Step{
			{Apply: &BundleSpec{
				BundleID: "b1",
				Actions: []ActionSpec{
					{ActionID: "a1", Type: "set", Target: "granular.voiceA.density", Value: 9000},
				},
			}},
		},
	})
	require.NoError(t, err)

	require.Len(t, result.Trace, 1)
	ev := result.Trace[0]
	assert.Equal(t, "failed", ev.Status)
	assert.Equal(t, string(engine.CodeOutOfRange), ev.Error)
	require.Len(t, ev.Actions, 1)
	assert.Equal(t, "failed", ev.Actions[0].Status)

	assert.Equal(t, uint64(0), result.FinalStateVersion)
	assert.Empty(t, result.FinalState)
}

func TestRun_TransportOverride(t *testing.T) {
	result, err := Run(&Scenario{
		Name:      "hi-rate-beat",
		Transport: &TransportSpec{SampleRate: 96000, BPM: 120},
		Steps: []Step{
			{Apply: &BundleSpec{
				BundleID: "b1",
				Mode:     "best_effort",
				Actions: []ActionSpec{
					{ActionID: "a1", Type: "set", Target: "granular.voiceA.grainSize", Value: 90, Anchor: "next_beat"},
				},
			}},
		},
	})
	require.NoError(t, err)

	require.Len(t, result.Trace, 1)
	require.Len(t, result.Trace[0].Actions, 1)
	assert.Equal(t, int64(48000), result.Trace[0].Actions[0].AtSample,
		"one beat at 96kHz/120bpm")
}

func TestRun_LockBlocksWrites(t *testing.T) {
	apply := func(id string) Step {
		return Step{Apply: &BundleSpec{
			BundleID: id,
			Mode:     "best_effort",
			Actions: []ActionSpec{
				{ActionID: "a1", Type: "set", Target: "granular.voiceA.grainSize", Value: 60},
			},
		}}
	}

	result, err := Run(&Scenario{
		Name: "lock-cycle",
		Steps: []Step{
			{Lock: []string{"granular.voiceA"}},
			apply("b1"),
			{Unlock: []string{"granular.voiceA"}},
			apply("b2"),
		},
	})
	require.NoError(t, err)

	require.Len(t, result.Trace, 4)
	assert.Equal(t, "lock", result.Trace[0].Op)
	assert.Equal(t, "failed", result.Trace[1].Status)
	require.Len(t, result.Trace[1].Actions, 1)
	assert.Equal(t, string(engine.CodeModuleLocked), result.Trace[1].Actions[0].Error)
	assert.Equal(t, "unlock", result.Trace[2].Op)
	assert.Equal(t, "ok", result.Trace[3].Status)
	assert.Equal(t, uint64(1), result.FinalStateVersion)
}

func TestRun_RevokeRemovesPendingCommands(t *testing.T) {
	result, err := Run(&Scenario{
		Name: "revoke-pending",
		Steps: []Step{
			{Apply: &BundleSpec{
				BundleID: "b1",
				Mode:     "best_effort",
				Actions: []ActionSpec{
					{ActionID: "a1", Type: "set", Target: "granular.voiceA.grainSize", Value: 60,
						Anchor: "at_transport_position", AtSample: 96000},
				},
			}},
			{Revoke: "b1"},
			{Advance: 96000},
			{Dispatch: true},
		},
	})
	require.NoError(t, err)

	require.Len(t, result.Trace, 4)

	revoke := result.Trace[1]
	assert.Equal(t, "revoke", revoke.Op)
	assert.Equal(t, "ok", revoke.Status)
	assert.Equal(t, 1, revoke.Count)

	dispatch := result.Trace[3]
	assert.Equal(t, "dispatch", dispatch.Op)
	assert.Zero(t, dispatch.Count, "revoked command must not be delivered")
}

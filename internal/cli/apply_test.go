package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const setGrainSizeBundle = `
bundleId: b1
mode: best_effort
actions:
  - actionId: a1
    type: set
    target: granular.voiceA.grainSize
    value: 120
`

func TestApplyCommand_CommitsBundle(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bundle.yaml", setGrainSizeBundle)

	stdout, _, err := execute(t, "apply", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Bundle: b1")
	assert.Contains(t, stdout, "stateVersion: 1")
	assert.Contains(t, stdout, "action a1: committed atSample=0")
	assert.Contains(t, stdout, "dispatched 1 command(s)")
	assert.Contains(t, stdout, "set granular.voiceA.grainSize atSample=0 value=120")
}

func TestApplyCommand_HighRiskNeedsConfirm(t *testing.T) {
	dir := t.TempDir()
	unconfirmed := writeFile(t, dir, "arm.yaml", `
bundleId: b1
actions:
  - actionId: a1
    type: startRecording
    target: granular.voiceA
    mode: live_replace
`)

	stdout, _, err := execute(t, "apply", unconfirmed)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "CONFIRMATION_REQUIRED")

	confirmed := writeFile(t, dir, "arm_confirmed.yaml", `
bundleId: b2
confirm: true
actions:
  - actionId: a1
    type: startRecording
    target: granular.voiceA
    mode: live_replace
`)

	stdout, _, err = execute(t, "apply", confirmed)
	require.NoError(t, err)
	assert.Contains(t, stdout, "stateVersion: 1")
	assert.Contains(t, stdout, "dispatched 1 command(s)")
	assert.Contains(t, stdout, "startRecording granular.voiceA.recording.active atSample=0 value=true mode=live_replace")
}

func TestApplyCommand_RejectedBundle(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.yaml", `
bundleId: b1
mode: best_effort
actions:
  - actionId: a1
    type: set
    target: granular.voiceA.density
    value: 9000
`)

	stdout, _, err := execute(t, "apply", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "ACTION_OUT_OF_RANGE")
}

func TestApplyCommand_ArchivesJournal(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bundle.yaml", setGrainSizeBundle)
	db := filepath.Join(dir, "session.db")

	_, _, err := execute(t, "apply", path, "--db", db)
	require.NoError(t, err)

	stdout, _, err := execute(t, "replay", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Journal verified")
}

func TestApplyCommand_MalformedFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "empty.yaml", "bundleId: b1\n")

	_, _, err := execute(t, "apply", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no actions")
}

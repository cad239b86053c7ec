package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCommand_ListsBuiltin(t *testing.T) {
	stdout, _, err := execute(t, "registry")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Registry: embedded")
	assert.Contains(t, stdout, "granular.voiceA.grainSize")
	assert.Contains(t, stdout, "granular.voiceA.recording.active")
}

func TestRegistryCommand_JSONOutput(t *testing.T) {
	stdout, _, err := execute(t, "registry", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   RegistryResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "embedded", resp.Data.Source)
	assert.NotEmpty(t, resp.Data.Parameters)

	byPath := map[string]DescriptorView{}
	for _, p := range resp.Data.Parameters {
		byPath[p.Path] = p
	}
	grain, ok := byPath["granular.voiceA.grainSize"]
	require.True(t, ok)
	assert.Equal(t, "float", grain.Type)
	assert.Equal(t, "80", grain.Default)
}

func TestRegistryCommand_LoadsOverlayFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "overlay.cue", `
params: {
	"engine.test.gain": {
		type:    "float"
		min:     -1.0
		max:     1.0
		update:  "immediate"
		risk:    "low"
		default: 0.0
	}
}
`)

	stdout, _, err := execute(t, "registry", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "engine.test.gain")
	assert.Contains(t, stdout, path)
}

func TestRegistryCommand_FileNotFound(t *testing.T) {
	_, _, err := execute(t, "registry", "/does/not/exist.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

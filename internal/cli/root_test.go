package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the CLI with the given args and captures its output.
func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

// writeFile drops a test fixture into a temp directory.
func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const setGrainSizeScenario = `
name: set-grain
steps:
  - apply:
      bundleId: b1
      mode: best_effort
      actions:
        - actionId: a1
          type: set
          target: granular.voiceA.grainSize
          value: 120
  - dispatch: true
`

func TestRootCommand_RejectsInvalidFormat(t *testing.T) {
	_, _, err := execute(t, "--format", "xml", "registry")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRootCommand_ListsSubcommands(t *testing.T) {
	stdout, _, err := execute(t, "--help")
	require.NoError(t, err)
	for _, name := range []string{"registry", "run", "apply", "replay", "export"} {
		assert.Contains(t, stdout, name)
	}
}

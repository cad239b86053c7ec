package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azsmith/grainulator-sub004/internal/param"
)

func TestSceneBook_SaveReplacesAndCopies(t *testing.T) {
	book := NewSceneBook()

	values := map[string]param.Value{"granular.voiceA.grainSize": param.Float(80)}
	book.Save("warm", values)

	// Mutating the caller's map must not leak into the stored capture.
	values["granular.voiceA.grainSize"] = param.Float(500)

	stored, ok := book.Lookup("warm")
	require.True(t, ok)
	assert.Equal(t, param.Float(80), stored["granular.voiceA.grainSize"])

	book.Save("warm", map[string]param.Value{"granular.voiceA.density": param.Float(12)})
	stored, ok = book.Lookup("warm")
	require.True(t, ok)
	assert.NotContains(t, stored, "granular.voiceA.grainSize")
}

func TestSceneBook_LookupIsCaseInsensitive(t *testing.T) {
	book := NewSceneBook()
	book.Save("Warm Pad", map[string]param.Value{"granular.voiceA.gain": param.Float(-3)})

	_, ok := book.Lookup("warm pad")
	assert.True(t, ok)
	_, ok = book.Lookup("WARM PAD")
	assert.True(t, ok)
	_, ok = book.Lookup("warm")
	assert.False(t, ok)
}

func TestSceneBook_NormalizesUnicodeNames(t *testing.T) {
	book := NewSceneBook()

	// Precomposed e-acute versus e plus combining acute.
	book.Save("caf\u00e9", map[string]param.Value{"granular.voiceA.gain": param.Float(0)})

	_, ok := book.Lookup("cafe\u0301")
	assert.True(t, ok, "decomposed spelling must find the composed scene")
}

func TestSceneBook_NamesKeepDisplayForm(t *testing.T) {
	book := NewSceneBook()
	book.Save("Warm Pad", nil)
	book.Save("bright", nil)

	assert.Equal(t, []string{"Warm Pad", "bright"}, book.Names())
}

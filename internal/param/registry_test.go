package param

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinRegistryLoads(t *testing.T) {
	reg, err := Builtin()
	require.NoError(t, err)

	// Both voices carry the identical surface.
	for _, voice := range []string{"voiceA", "voiceB"} {
		for _, suffix := range []string{
			"recording.active", "recording.mode", "recording.feedback",
			"buffer.file", "grainSize", "density", "pitch", "position",
			"jitter", "gain",
		} {
			path := "granular." + voice + "." + suffix
			_, ok := reg.Lookup(path)
			assert.True(t, ok, "missing descriptor for %s", path)
		}
	}

	_, ok := reg.Lookup("engine.master.gain")
	assert.True(t, ok)
	_, ok = reg.Lookup("scene.current")
	assert.True(t, ok)
}

func TestBuiltinRegistryDescriptors(t *testing.T) {
	reg, err := Builtin()
	require.NoError(t, err)

	active, ok := reg.Lookup("granular.voiceA.recording.active")
	require.True(t, ok)
	assert.Equal(t, TypeBool, active.Type)
	assert.Equal(t, RiskHigh, active.RiskClass)
	assert.Equal(t, UpdateQuantized, active.SafeUpdateMode)
	assert.Equal(t, Bool(false), active.Default)

	feedback, ok := reg.Lookup("granular.voiceA.recording.feedback")
	require.True(t, ok)
	assert.Equal(t, TypeFloat, feedback.Type)
	assert.Equal(t, RiskMedium, feedback.RiskClass)
	assert.Equal(t, UpdateSmoothed, feedback.SafeUpdateMode)
	assert.Equal(t, 20, feedback.MinSmoothingMs)
	assert.Equal(t, 0.0, feedback.Min)
	assert.Equal(t, 1.0, feedback.Max)

	mode, ok := reg.Lookup("granular.voiceB.recording.mode")
	require.True(t, ok)
	assert.Equal(t, TypeString, mode.Type)
	assert.Equal(t, []string{"live_overdub", "live_replace", "buffer_freeze"}, mode.Enum)
}

func TestDescriptorCheckValue(t *testing.T) {
	reg, err := Builtin()
	require.NoError(t, err)

	feedback, ok := reg.Lookup("granular.voiceA.recording.feedback")
	require.True(t, ok)

	assert.NoError(t, feedback.CheckValue(Float(0.5)))
	assert.NoError(t, feedback.CheckValue(Float(0)))
	assert.NoError(t, feedback.CheckValue(Float(1)))
	// Ints widen to floats.
	assert.NoError(t, feedback.CheckValue(Int(1)))

	assert.Error(t, feedback.CheckValue(Float(1.5)), "above max")
	assert.Error(t, feedback.CheckValue(Float(-0.1)), "below min")
	assert.Error(t, feedback.CheckValue(String("0.5")), "wrong type")
	assert.Error(t, feedback.CheckValue(nil), "nil value")

	mode, ok := reg.Lookup("granular.voiceA.recording.mode")
	require.True(t, ok)
	assert.NoError(t, mode.CheckValue(String("buffer_freeze")))
	assert.Error(t, mode.CheckValue(String("reverse")), "not in enum")
}

func TestRegistryDefaultsSeedEveryPath(t *testing.T) {
	reg, err := Builtin()
	require.NoError(t, err)

	defaults := reg.Defaults()
	assert.Len(t, defaults, reg.Len())
	for path, v := range defaults {
		d, ok := reg.Lookup(path)
		require.True(t, ok)
		assert.NoError(t, d.CheckValue(v), "default for %s must pass its own descriptor", path)
	}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	descs := []Descriptor{
		{Path: "a.b.c", Type: TypeBool, Default: Bool(false), SafeUpdateMode: UpdateImmediate, RiskClass: RiskLow},
		{Path: "a.b.c", Type: TypeBool, Default: Bool(true), SafeUpdateMode: UpdateImmediate, RiskClass: RiskLow},
	}
	_, err := NewRegistry(descs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestNewRegistryRejectsBadDefault(t *testing.T) {
	descs := []Descriptor{
		{Path: "a.b.c", Type: TypeFloat, Min: 0, Max: 1, Default: Float(2), SafeUpdateMode: UpdateImmediate, RiskClass: RiskLow},
	}
	_, err := NewRegistry(descs)
	require.Error(t, err)
}

func TestLoadFileOverlayMerge(t *testing.T) {
	overlay := `
params: {
	"granular.voiceA.grainSize": {
		type:           "float"
		min:            1.0
		max:            1000.0
		unit:           "ms"
		update:         "smoothed"
		minSmoothingMs: 10
		risk:           "low"
		default:        120.0
	}
	"fx.reverb.mix": {
		type:    "float"
		min:     0.0
		max:     1.0
		unit:    "norm"
		update:  "smoothed"
		risk:    "low"
		default: 0.3
	}
}
`
	dir := t.TempDir()
	path := filepath.Join(dir, "overlay.cue")
	require.NoError(t, os.WriteFile(path, []byte(overlay), 0o644))

	base, err := Builtin()
	require.NoError(t, err)
	over, err := LoadFile(path)
	require.NoError(t, err)

	merged, err := Merge(base, over)
	require.NoError(t, err)

	// Override replaces the base descriptor.
	grain, ok := merged.Lookup("granular.voiceA.grainSize")
	require.True(t, ok)
	assert.Equal(t, 1000.0, grain.Max)
	assert.Equal(t, Float(120), grain.Default)

	// Addition appears alongside base entries.
	_, ok = merged.Lookup("fx.reverb.mix")
	assert.True(t, ok)
	_, ok = merged.Lookup("engine.master.gain")
	assert.True(t, ok)
}

func TestLoadFileRejectsBrokenRegistry(t *testing.T) {
	broken := `
params: {
	"x.y": {
		type:    "float"
		min:     1.0
		max:     0.0
		update:  "immediate"
		risk:    "low"
		default: 0.5
	}
}
`
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.cue")
	require.NoError(t, os.WriteFile(path, []byte(broken), 0o644))

	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestModuleOf(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"granular.voiceA.recording.feedback", "granular.voiceA"},
		{"granular.voiceB.gain", "granular.voiceB"},
		{"engine.master.gain", "engine.master"},
		{"scene.current", "scene.current"},
		{"scene", "scene"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ModuleOf(tt.path), "ModuleOf(%q)", tt.path)
	}
}

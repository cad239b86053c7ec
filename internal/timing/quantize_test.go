package timing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azsmith/grainulator-sub004/internal/action"
)

// standard transport: 48kHz, 120bpm, 4/4 -> beat = 24000, bar = 96000.
func transport48k120(sampleTime int64) Transport {
	return Transport{
		SampleRate: 48000,
		SampleTime: sampleTime,
		BPM:        120,
		TimeSigNum: 4,
		TimeSigDen: 4,
		Playing:    true,
	}
}

func TestSamplesPerBeatAndBar(t *testing.T) {
	tr := transport48k120(0)
	assert.Equal(t, 24000.0, tr.SamplesPerBeat())
	assert.Equal(t, 96000.0, tr.SamplesPerBar())

	// 3/4 bar is three beats.
	tr.TimeSigNum = 3
	assert.Equal(t, 72000.0, tr.SamplesPerBar())

	// 6/8: eighth-note pulse, six of them.
	tr.TimeSigNum = 6
	tr.TimeSigDen = 8
	assert.Equal(t, 72000.0, tr.SamplesPerBar())
}

func TestResolveAnchors(t *testing.T) {
	tests := []struct {
		name       string
		sampleTime int64
		spec       action.TimeSpec
		want       int64
	}{
		{"now is the current sample", 1234, action.TimeSpec{Anchor: action.AnchorNow}, 1234},
		{"next beat from zero", 0, action.TimeSpec{Anchor: action.AnchorNextBeat}, 24000},
		{"next bar from zero", 0, action.TimeSpec{Anchor: action.AnchorNextBar}, 96000},
		{"next beat mid-beat", 25000, action.TimeSpec{Anchor: action.AnchorNextBeat}, 48000},
		{"next beat on a boundary is the following beat", 24000, action.TimeSpec{Anchor: action.AnchorNextBeat}, 48000},
		{"next bar mid-bar", 100, action.TimeSpec{Anchor: action.AnchorNextBar}, 96000},
		{"explicit position", 0, action.TimeSpec{Anchor: action.AnchorAtPosition, AtSample: 555000}, 555000},
		{"empty anchor defaults to now", 777, action.TimeSpec{}, 777},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.spec, transport48k120(tt.sampleTime))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.AtSample)
		})
	}
}

func TestResolveQuantization(t *testing.T) {
	tests := []struct {
		name string
		spec action.TimeSpec
		want int64
	}{
		// now=1000, sixteenth grid = 6000 samples -> snap up to 6000.
		{"sixteenth", action.TimeSpec{Anchor: action.AnchorNow, Quantization: action.QuantSixteenth}, 6000},
		// eighth grid = 12000.
		{"eighth", action.TimeSpec{Anchor: action.AnchorNow, Quantization: action.QuantEighth}, 12000},
		// quarter grid = 24000.
		{"quarter", action.TimeSpec{Anchor: action.AnchorNow, Quantization: action.QuantQuarter}, 24000},
		// bar grid = 96000.
		{"bar", action.TimeSpec{Anchor: action.AnchorNow, Quantization: action.QuantBar}, 96000},
		// off leaves the anchor untouched.
		{"off", action.TimeSpec{Anchor: action.AnchorNow, Quantization: action.QuantOff}, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.spec, transport48k120(1000))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.AtSample)
		})
	}
}

func TestResolveQuantizationKeepsOnGridAnchor(t *testing.T) {
	// An anchor already on the grid stays put.
	spec := action.TimeSpec{Anchor: action.AnchorNextBeat, Quantization: action.QuantQuarter}
	got, err := Resolve(spec, transport48k120(0))
	require.NoError(t, err)
	assert.Equal(t, int64(24000), got.AtSample)
}

func TestResolveDuration(t *testing.T) {
	// 2000ms at 48kHz = 96000 samples.
	spec := action.TimeSpec{Anchor: action.AnchorNextBeat, DurationMs: 2000}
	got, err := Resolve(spec, transport48k120(0))
	require.NoError(t, err)
	assert.Equal(t, int64(24000), got.AtSample)
	assert.Equal(t, int64(24000+96000), got.EndSample)

	// Instant actions have EndSample == AtSample.
	got, err = Resolve(action.TimeSpec{Anchor: action.AnchorNow}, transport48k120(42))
	require.NoError(t, err)
	assert.Equal(t, got.AtSample, got.EndSample)
}

func TestResolveRejectsBadTransport(t *testing.T) {
	bad := transport48k120(0)
	bad.BPM = 0
	_, err := Resolve(action.TimeSpec{}, bad)
	require.Error(t, err)

	bad = transport48k120(0)
	bad.SampleRate = 0
	_, err = Resolve(action.TimeSpec{}, bad)
	require.Error(t, err)
}

func TestReResolveFutureBoundaryIsUnchanged(t *testing.T) {
	spec := action.TimeSpec{Anchor: action.AnchorNextBar}
	provisional, err := Resolve(spec, transport48k120(0))
	require.NoError(t, err)

	// Transport has advanced but the boundary is still ahead.
	got, err := ReResolve(spec, provisional, true, transport48k120(50000))
	require.NoError(t, err)
	assert.Equal(t, provisional, got)
}

func TestReResolveStrictFailsOnMissedBoundary(t *testing.T) {
	spec := action.TimeSpec{Anchor: action.AnchorNextBar}
	provisional, err := Resolve(spec, transport48k120(0))
	require.NoError(t, err)
	require.Equal(t, int64(96000), provisional.AtSample)

	// Transport passed the bar line while the caller was thinking.
	_, err = ReResolve(spec, provisional, true, transport48k120(100000))
	require.ErrorIs(t, err, ErrBoundaryMissed)
}

func TestReResolveNonStrictRollsForward(t *testing.T) {
	spec := action.TimeSpec{Anchor: action.AnchorNextBar}
	provisional, err := Resolve(spec, transport48k120(0))
	require.NoError(t, err)

	got, err := ReResolve(spec, provisional, false, transport48k120(100000))
	require.NoError(t, err)
	assert.Equal(t, int64(192000), got.AtSample, "rolls to the following bar")
}

func TestReResolveExplicitPositionRollsToNow(t *testing.T) {
	spec := action.TimeSpec{Anchor: action.AnchorAtPosition, AtSample: 1000}
	provisional := Resolved{AtSample: 1000, EndSample: 1000}

	got, err := ReResolve(spec, provisional, false, transport48k120(48000))
	require.NoError(t, err)
	assert.Equal(t, int64(48000), got.AtSample)
}

package timing

import (
	"fmt"
	"math"

	"github.com/azsmith/grainulator-sub004/internal/action"
)

// Resolved is the outcome of resolving a TimeSpec: absolute sample
// offsets on the transport timeline.
type Resolved struct {
	// AtSample is the absolute start offset.
	AtSample int64

	// EndSample is the absolute end offset for ramps/morphs
	// (AtSample + duration). Equals AtSample for instant actions.
	EndSample int64
}

// ErrBoundaryMissed is returned by ReResolve when a strict action's
// provisional boundary has already elapsed.
var ErrBoundaryMissed = fmt.Errorf("boundary missed")

// Resolve converts a symbolic time spec into absolute sample offsets
// against a transport snapshot.
//
// Algorithm:
//  1. find the anchor boundary: the first matching musical boundary
//     strictly after the current sample time (AnchorNow resolves to the
//     current sample time itself; AnchorAtPosition to the given sample)
//  2. if a quantization grid is set, snap forward to the next grid line
//     at or after the anchor boundary
//
// At validation time the result is provisional; commit calls ReResolve
// against the live transport, because caller latency between the two is
// unbounded.
func Resolve(spec action.TimeSpec, t Transport) (Resolved, error) {
	if err := t.Validate(); err != nil {
		return Resolved{}, err
	}

	anchor := spec.Anchor
	if anchor == "" {
		anchor = action.AnchorNow
	}

	var at int64
	switch anchor {
	case action.AnchorNow:
		at = t.SampleTime
	case action.AnchorNextBeat:
		at = nextBoundary(t.SampleTime, t.SamplesPerBeat())
	case action.AnchorNextBar:
		at = nextBoundary(t.SampleTime, t.SamplesPerBar())
	case action.AnchorAtPosition:
		if spec.AtSample < 0 {
			return Resolved{}, fmt.Errorf("at_transport_position: negative sample %d", spec.AtSample)
		}
		at = spec.AtSample
	default:
		return Resolved{}, fmt.Errorf("unknown anchor %q", anchor)
	}

	if grid := gridSamples(spec.Quantization, t); grid > 0 {
		// Snap to the nearest grid line at or after the anchor point.
		at = snapUp(at, grid)
	}

	end := at
	if spec.DurationMs > 0 {
		end = at + int64(math.Round(float64(spec.DurationMs)*float64(t.SampleRate)/1000.0))
	}
	return Resolved{AtSample: at, EndSample: end}, nil
}

// ReResolve is the commit-time second pass. If the provisional start
// offset has already passed on the live transport, the action either
// fails (strict) or rolls forward to the next equivalent boundary.
func ReResolve(spec action.TimeSpec, provisional Resolved, strict bool, t Transport) (Resolved, error) {
	if err := t.Validate(); err != nil {
		return Resolved{}, err
	}
	if provisional.AtSample >= t.SampleTime {
		return provisional, nil
	}
	if strict {
		return Resolved{}, fmt.Errorf("%w: scheduled for sample %d, transport at %d",
			ErrBoundaryMissed, provisional.AtSample, t.SampleTime)
	}
	// Roll forward: resolve the same spec against the live transport.
	// For an explicit position in the past, roll to the quantization
	// grid if one was requested, otherwise apply immediately.
	rolled := spec
	if spec.Anchor == action.AnchorAtPosition {
		rolled.Anchor = action.AnchorNow
		rolled.AtSample = 0
	}
	return Resolve(rolled, t)
}

// nextBoundary returns the first multiple of period strictly after now.
func nextBoundary(now int64, period float64) int64 {
	if period <= 0 {
		return now
	}
	n := math.Floor(float64(now)/period) + 1
	return int64(math.Round(n * period))
}

// snapUp rounds at up to the next multiple of grid (at itself if it is
// already on the grid).
func snapUp(at int64, grid float64) int64 {
	n := math.Ceil(float64(at) / grid)
	return int64(math.Round(n * grid))
}

// gridSamples converts a quantization setting to a grid period in
// samples. Returns 0 for QuantOff.
func gridSamples(q action.Quantization, t Transport) float64 {
	beat := t.SamplesPerBeat()
	switch q {
	case action.QuantSixteenth:
		return beat / 4.0
	case action.QuantEighth:
		return beat / 2.0
	case action.QuantQuarter:
		return beat
	case action.QuantBar:
		return t.SamplesPerBar()
	default:
		return 0
	}
}

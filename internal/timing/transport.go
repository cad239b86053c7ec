// Package timing resolves symbolic musical time (anchor + quantization)
// against a live transport snapshot into absolute sample offsets.
package timing

import "fmt"

// Transport is a point-in-time snapshot of the audio transport clock.
// Snapshots are plain values; holding one never blocks the provider.
type Transport struct {
	// SampleRate in Hz (e.g. 48000).
	SampleRate int

	// SampleTime is the absolute sample position of the transport.
	SampleTime int64

	// BPM is the current tempo.
	BPM float64

	// TimeSigNum and TimeSigDen form the time signature (e.g. 4/4).
	TimeSigNum int
	TimeSigDen int

	// Playing reports whether the transport is rolling.
	Playing bool
}

// Validate checks that the snapshot can drive timing math.
func (t Transport) Validate() error {
	if t.SampleRate <= 0 {
		return fmt.Errorf("transport: sample rate %d", t.SampleRate)
	}
	if t.BPM <= 0 {
		return fmt.Errorf("transport: bpm %v", t.BPM)
	}
	if t.TimeSigNum <= 0 || t.TimeSigDen <= 0 {
		return fmt.Errorf("transport: time signature %d/%d", t.TimeSigNum, t.TimeSigDen)
	}
	if t.SampleTime < 0 {
		return fmt.Errorf("transport: negative sample time %d", t.SampleTime)
	}
	return nil
}

// SamplesPerBeat returns the length of one beat in samples.
// A beat here is one quarter note regardless of the signature
// denominator; the denominator affects bar length, not beat length.
func (t Transport) SamplesPerBeat() float64 {
	return float64(t.SampleRate) * 60.0 / t.BPM
}

// SamplesPerBar returns the length of one bar in samples.
func (t Transport) SamplesPerBar() float64 {
	return t.SamplesPerBeat() * float64(t.TimeSigNum) * 4.0 / float64(t.TimeSigDen)
}

// Provider supplies transport snapshots to the control domain.
// Snapshot must be callable without blocking; the audio engine side
// typically publishes into an atomic slot that Snapshot reads.
type Provider interface {
	Snapshot() Transport
}

// Package testutil provides deterministic test doubles: a manually
// advanced transport clock, a stepped wall-clock, and a sequential ID
// generator. They make scheduling scenarios reproducible enough for
// golden trace comparison.
package testutil

import (
	"sync"

	"github.com/azsmith/grainulator-sub004/internal/timing"
)

// ManualTransport is a timing.Provider whose position only moves when
// the test says so.
//
// Thread-safety: all methods are safe for concurrent use via internal
// mutex.
type ManualTransport struct {
	mu sync.Mutex
	t  timing.Transport
}

// NewManualTransport creates a transport at sample 0 with the standard
// test profile: 48kHz, 120 BPM, 4/4, playing. One beat is 24000
// samples, one bar 96000.
func NewManualTransport() *ManualTransport {
	return &ManualTransport{
		t: timing.Transport{
			SampleRate: 48000,
			BPM:        120,
			TimeSigNum: 4,
			TimeSigDen: 4,
			Playing:    true,
		},
	}
}

// Snapshot implements timing.Provider.
func (m *ManualTransport) Snapshot() timing.Transport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t
}

// Advance moves the transport forward by n samples.
func (m *ManualTransport) Advance(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.t.SampleTime += n
}

// SeekTo places the transport at an absolute sample position.
func (m *ManualTransport) SeekTo(sample int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.t.SampleTime = sample
}

// SetTempo changes the tempo and time signature.
func (m *ManualTransport) SetTempo(bpm float64, num, den int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.t.BPM = bpm
	m.t.TimeSigNum = num
	m.t.TimeSigDen = den
}

// Set replaces the whole snapshot.
func (m *ManualTransport) Set(t timing.Transport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.t = t
}

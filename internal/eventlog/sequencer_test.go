package eventlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azsmith/grainulator-sub004/internal/action"
)

func appendN(s *Sequencer, n int) {
	for i := 0; i < n; i++ {
		s.Append(Record{
			StateVersion: uint64(i + 1),
			Kind:         KindStateChanged,
			Paths:        []string{"granular.voiceA.gain"},
			Cause:        action.CauseManual,
		})
	}
}

func TestAppendAssignsStrictlyIncreasingSeq(t *testing.T) {
	s := NewSequencer(16)

	for i := 1; i <= 5; i++ {
		rec := s.Append(Record{Kind: KindStateChanged, Cause: action.CauseManual})
		assert.Equal(t, uint64(i), rec.Seq)
	}
	assert.Equal(t, uint64(5), s.LastSeq())
}

func TestSubscribeReplaysAfterSeq(t *testing.T) {
	s := NewSequencer(16)
	appendN(s, 5)

	sub := s.Subscribe(2)
	defer sub.Close()

	for want := uint64(3); want <= 5; want++ {
		notice := <-sub.Events()
		require.NotNil(t, notice.Record, "expected record, got gap")
		assert.Equal(t, want, notice.Record.Seq)
	}
}

func TestSubscribeReceivesLiveAppends(t *testing.T) {
	s := NewSequencer(16)
	sub := s.Subscribe(0)
	defer sub.Close()

	s.Append(Record{Kind: KindRecordingStarted, Cause: action.CauseAI, BundleID: "b1"})

	notice := <-sub.Events()
	require.NotNil(t, notice.Record)
	assert.Equal(t, uint64(1), notice.Record.Seq)
	assert.Equal(t, KindRecordingStarted, notice.Record.Kind)
	assert.Equal(t, "b1", notice.Record.BundleID)
}

func TestSubscribeSignalsGapWhenBufferEvicted(t *testing.T) {
	s := NewSequencer(4)
	appendN(s, 10) // buffer retains seq 7..10

	sub := s.Subscribe(0)
	defer sub.Close()

	first := <-sub.Events()
	require.NotNil(t, first.Gap, "expected explicit gap, not silent resume")
	assert.Equal(t, uint64(1), first.Gap.FromSeq)
	assert.Equal(t, uint64(6), first.Gap.ToSeq)

	next := <-sub.Events()
	require.NotNil(t, next.Record)
	assert.Equal(t, uint64(7), next.Record.Seq)
}

func TestSlowSubscriberGetsGapNotSilentLoss(t *testing.T) {
	s := NewSequencer(1024)
	sub := s.Subscribe(0)
	defer sub.Close()

	// Overflow the subscriber channel without draining it.
	appendN(s, DefaultSubscriberBuffer+10)

	seen := uint64(0)
	gapSeen := false
	drained := 0
	for drained < DefaultSubscriberBuffer+1 {
		select {
		case notice := <-sub.Events():
			drained++
			if notice.Gap != nil {
				gapSeen = true
				assert.Equal(t, seen+1, notice.Gap.FromSeq, "gap starts right after last delivered")
				seen = notice.Gap.ToSeq
				continue
			}
			require.Equal(t, seen+1, notice.Record.Seq, "no silent hole allowed")
			seen = notice.Record.Seq
		default:
			drained = DefaultSubscriberBuffer + 1
		}
	}

	// Keep appending: the pending gap must be delivered before new records.
	appendN(s, 1)
	notice := <-sub.Events()
	if notice.Gap != nil {
		gapSeen = true
		assert.Equal(t, seen+1, notice.Gap.FromSeq)
	}
	assert.True(t, gapSeen, "overflow must surface as an explicit gap")
}

func TestExportRange(t *testing.T) {
	s := NewSequencer(16)
	appendN(s, 8)

	recs, err := s.ExportRange(3, 5)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, uint64(3), recs[0].Seq)
	assert.Equal(t, uint64(5), recs[2].Seq)
}

func TestExportRangeRefusesEvictedRange(t *testing.T) {
	s := NewSequencer(4)
	appendN(s, 10)

	_, err := s.ExportRange(1, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "evicted")

	recs, err := s.ExportRange(7, 10)
	require.NoError(t, err)
	assert.Len(t, recs, 4)
}

func TestCloseStopsDelivery(t *testing.T) {
	s := NewSequencer(16)
	sub := s.Subscribe(0)
	sub.Close()

	_, open := <-sub.Events()
	assert.False(t, open, "channel closes on unsubscribe")

	// Appending after close must not panic.
	appendN(s, 1)
}

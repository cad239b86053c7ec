package delivery

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azsmith/grainulator-sub004/internal/action"
	"github.com/azsmith/grainulator-sub004/internal/param"
)

func cmd(id string, at int64) *Command {
	return &Command{
		ActionID: id,
		BundleID: "b1",
		Target:   "granular.voiceA.gain",
		Type:     action.Set,
		AtSample: at,
		Value:    param.Float(0),
	}
}

func TestQueuePushDequeueFIFO(t *testing.T) {
	q := NewQueue(8)

	require.NoError(t, q.Push(cmd("a1", 100)))
	require.NoError(t, q.Push(cmd("a2", 200)))
	require.NoError(t, q.Push(cmd("a3", 200)))

	got := q.Dequeue()
	require.NotNil(t, got)
	assert.Equal(t, "a1", got.ActionID)

	got = q.Dequeue()
	require.NotNil(t, got)
	assert.Equal(t, "a2", got.ActionID)

	got = q.Dequeue()
	require.NotNil(t, got)
	assert.Equal(t, "a3", got.ActionID)

	assert.Nil(t, q.Dequeue(), "empty ring returns nil")
}

func TestQueueCapacityRoundsToPowerOfTwo(t *testing.T) {
	q := NewQueue(5)
	assert.Equal(t, 8, q.Cap())

	q = NewQueue(0)
	assert.Equal(t, DefaultCapacity, q.Cap())
}

func TestQueueFullReturnsRetryableError(t *testing.T) {
	q := NewQueue(4)
	for i := int64(0); i < 4; i++ {
		require.NoError(t, q.Push(cmd("a", i)))
	}

	err := q.Push(cmd("overflow", 10))
	require.Error(t, err)

	var full *FullError
	require.ErrorAs(t, err, &full)
	assert.Positive(t, full.RetryAfterMs)

	// Contents are unchanged: no drop, no overwrite.
	assert.Equal(t, 4, q.Len())
	got := q.Dequeue()
	require.NotNil(t, got)
	assert.Equal(t, int64(0), got.AtSample)
}

func TestQueueRejectsDecreasingOffsets(t *testing.T) {
	q := NewQueue(8)
	require.NoError(t, q.Push(cmd("a1", 1000)))

	err := q.Push(cmd("a2", 500))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dispatch order")

	// Equal offsets are fine.
	require.NoError(t, q.Push(cmd("a3", 1000)))
}

func TestQueueSkipsRevokedCommands(t *testing.T) {
	q := NewQueue(8)
	victim := cmd("a2", 200)

	require.NoError(t, q.Push(cmd("a1", 100)))
	require.NoError(t, q.Push(victim))
	require.NoError(t, q.Push(cmd("a3", 300)))

	victim.Revoke()

	assert.Equal(t, "a1", q.Dequeue().ActionID)
	got := q.Dequeue()
	require.NotNil(t, got)
	assert.Equal(t, "a3", got.ActionID, "revoked command is skipped")
	assert.Nil(t, q.Dequeue())
}

func TestQueueSingleProducerSingleConsumer(t *testing.T) {
	q := NewQueue(16)
	const total = 10000

	var wg sync.WaitGroup
	wg.Add(2)

	// Producer: monotonically increasing offsets, retry on full.
	go func() {
		defer wg.Done()
		for i := int64(0); i < total; {
			if err := q.Push(cmd("a", i)); err == nil {
				i++
			}
		}
	}()

	// Consumer: drains, asserting non-decreasing offsets.
	var received int64
	go func() {
		defer wg.Done()
		last := int64(-1)
		for received < total {
			c := q.Dequeue()
			if c == nil {
				continue
			}
			if c.AtSample < last {
				t.Errorf("offset went backwards: %d after %d", c.AtSample, last)
				return
			}
			last = c.AtSample
			received++
		}
	}()

	wg.Wait()
	assert.Equal(t, int64(total), received)
}

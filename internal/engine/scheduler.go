package engine

import (
	"container/heap"
	"log/slog"

	"github.com/azsmith/grainulator-sub004/internal/delivery"
	"github.com/azsmith/grainulator-sub004/internal/timing"
)

// pendingCommand pairs a command with its admission stamp so the heap
// order is total: (AtSample asc, admission asc).
type pendingCommand struct {
	cmd       *delivery.Command
	admission uint64
}

type pendingHeap []pendingCommand

func (h pendingHeap) Len() int { return len(h) }
func (h pendingHeap) Less(i, j int) bool {
	if h[i].cmd.AtSample != h[j].cmd.AtSample {
		return h[i].cmd.AtSample < h[j].cmd.AtSample
	}
	return h[i].admission < h[j].admission
}
func (h pendingHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *pendingHeap) Push(x any) {
	*h = append(*h, x.(pendingCommand))
}

func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = pendingCommand{}
	*h = old[:n-1]
	return item
}

// scheduler holds committed commands until they are due, then moves
// them into the delivery ring in sample order.
//
// Dispatch discipline: only commands with AtSample <= the live
// transport position are pushed. Every command resolves at or after
// the transport position of its commit, so pushes are non-decreasing
// across dispatch ticks and the ring's ordering invariant holds.
//
// Thread-safety: commit-loop only. No internal locking.
type scheduler struct {
	pending  pendingHeap
	byBundle map[string][]*delivery.Command
	clock    *Clock

	// lastDispatched is the offset of the most recent push, for
	// diagnostics.
	lastDispatched int64
}

func newScheduler(clock *Clock) *scheduler {
	return &scheduler{
		byBundle:       make(map[string][]*delivery.Command),
		clock:          clock,
		lastDispatched: -1,
	}
}

// add stages a committed command for dispatch.
func (s *scheduler) add(cmd *delivery.Command) {
	heap.Push(&s.pending, pendingCommand{cmd: cmd, admission: s.clock.Next()})
	s.byBundle[cmd.BundleID] = append(s.byBundle[cmd.BundleID], cmd)
}

// pendingLen returns the number of staged, not-yet-dispatched commands.
func (s *scheduler) pendingLen() int {
	return len(s.pending)
}

// dispatch moves due commands into the ring. Returns the number pushed.
// Capacity was reserved at commit time, so a full ring here means the
// consumer stalled; the command stays pending and is retried next tick.
func (s *scheduler) dispatch(t timing.Transport, q *delivery.Queue) int {
	pushed := 0
	for len(s.pending) > 0 {
		top := s.pending[0].cmd
		if top.AtSample > t.SampleTime {
			break
		}
		if err := q.Push(top); err != nil {
			slog.Warn("dispatch stalled, ring full",
				"bundle_id", top.BundleID,
				"action_id", top.ActionID,
				"at_sample", top.AtSample,
			)
			break
		}
		heap.Pop(&s.pending)
		s.lastDispatched = top.AtSample
		pushed++
	}
	s.pruneDispatched(t)
	return pushed
}

// revoke tombstones every live command of a bundle: pending entries are
// removed outright, ring entries are flagged for the consumer to skip.
// Returns how many commands were revoked.
func (s *scheduler) revoke(bundleID string) int {
	cmds, ok := s.byBundle[bundleID]
	if !ok {
		return 0
	}
	delete(s.byBundle, bundleID)

	for _, cmd := range cmds {
		cmd.Revoke()
	}

	// Compact the heap: drop revoked entries in one rebuild.
	kept := s.pending[:0]
	for _, pc := range s.pending {
		if !pc.cmd.Revoked() {
			kept = append(kept, pc)
		}
	}
	s.pending = kept
	heap.Init(&s.pending)

	return len(cmds)
}

// pruneDispatched drops bundle index entries whose commands have all
// been dispatched and lie behind the transport. Revocation is only
// meaningful until dequeue; once the consumer is past a command's
// offset there is nothing left to revoke.
func (s *scheduler) pruneDispatched(t timing.Transport) {
	for bundleID, cmds := range s.byBundle {
		done := true
		for _, cmd := range cmds {
			if cmd.AtSample > t.SampleTime {
				done = false
				break
			}
		}
		if done && s.nonePending(bundleID) {
			delete(s.byBundle, bundleID)
		}
	}
}

func (s *scheduler) nonePending(bundleID string) bool {
	for _, pc := range s.pending {
		if pc.cmd.BundleID == bundleID {
			return false
		}
	}
	return true
}

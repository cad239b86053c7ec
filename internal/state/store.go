// Package state holds the canonical parameter state: a path-addressed
// value tree with a single monotonic version counter.
//
// The store is the only resource shared across all callers. It is
// mutated exclusively through the engine's commit loop; every other
// component works from immutable snapshots.
package state

import (
	"fmt"
	"sort"
	"sync"

	"github.com/azsmith/grainulator-sub004/internal/param"
)

// Store is the canonical state: path -> value plus a global version.
//
// Thread-safety model:
//   - Snapshot(): safe from any goroutine (short read lock)
//   - Commit(): must be called from exactly one goroutine (the engine's
//     commit loop); a second writer would break version monotonicity
//   - Reset(): session teardown only
//
// INVARIANT: every successful Commit increments stateVersion by exactly
// 1. A version regression is fatal (panic) - it means the single-writer
// rule was broken, and continuing would corrupt the event history.
type Store struct {
	mu      sync.RWMutex
	values  map[string]param.Value
	version uint64
}

// NewStore creates a store seeded with the registry defaults at
// version 0.
func NewStore(defaults map[string]param.Value) *Store {
	values := make(map[string]param.Value, len(defaults))
	for path, v := range defaults {
		values[path] = v
	}
	return &Store{values: values}
}

// Version returns the current state version.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Get returns the current committed value for a path.
func (s *Store) Get(path string) (param.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[path]
	return v, ok
}

// Snapshot returns an immutable copy of the full state taken under a
// brief shared lock. Validation and event emission read snapshots, so
// they never observe a half-applied commit.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	values := make(map[string]param.Value, len(s.values))
	for path, v := range s.values {
		values[path] = v
	}
	return Snapshot{values: values, version: s.version}
}

// Commit applies a change set and bumps the version by exactly 1,
// returning the new version. Unknown paths are created; the validator
// is responsible for rejecting paths outside the registry before they
// reach here.
//
// CRITICAL: called only from the engine's commit loop.
func (s *Store) Commit(changes map[string]param.Value) (uint64, error) {
	if len(changes) == 0 {
		return 0, fmt.Errorf("commit with empty change set")
	}
	for path, v := range changes {
		if !param.Finite(v) {
			return 0, fmt.Errorf("commit: non-finite value for %s", path)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.version
	for path, v := range changes {
		s.values[path] = v
	}
	s.version++

	if s.version != prev+1 {
		// Unreachable unless the single-writer invariant was broken.
		panic(fmt.Sprintf("state: version regression: %d -> %d", prev, s.version))
	}
	return s.version, nil
}

// Reset reinstates the defaults and zeroes the version. Explicit
// session teardown only; never called during normal operation.
func (s *Store) Reset(defaults map[string]param.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]param.Value, len(defaults))
	for path, v := range defaults {
		s.values[path] = v
	}
	s.version = 0
}

// Snapshot is an immutable view of the state at one version.
type Snapshot struct {
	values  map[string]param.Value
	version uint64
}

// Version returns the state version this snapshot was taken at.
func (sn Snapshot) Version() uint64 {
	return sn.version
}

// Get returns the value for a path at snapshot time.
func (sn Snapshot) Get(path string) (param.Value, bool) {
	v, ok := sn.values[path]
	return v, ok
}

// Paths returns all paths in the snapshot, sorted.
func (sn Snapshot) Paths() []string {
	paths := make([]string, 0, len(sn.values))
	for path := range sn.values {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// PathsUnder returns the sorted paths with the given prefix segment
// (prefix "granular.voiceA" matches "granular.voiceA.gain" but not
// "granular.voiceAB.gain").
func (sn Snapshot) PathsUnder(prefix string) []string {
	var paths []string
	for path := range sn.values {
		if len(path) > len(prefix) && path[:len(prefix)] == prefix && path[len(prefix)] == '.' {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths
}

// Export returns a plain copy of the snapshot's values for external
// persistence. The caller owns the returned map.
func (sn Snapshot) Export() map[string]param.Value {
	out := make(map[string]param.Value, len(sn.values))
	for path, v := range sn.values {
		out[path] = v
	}
	return out
}

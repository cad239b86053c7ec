package engine

import (
	"strings"
	"sync"

	"github.com/azsmith/grainulator-sub004/internal/param"
)

// lockSet holds the module prefixes an active intent has locked.
// Scheduling against a locked module fails with MODULE_LOCKED.
//
// Thread-safety: safe from any goroutine.
type lockSet struct {
	mu      sync.RWMutex
	modules map[string]bool
}

func newLockSet() *lockSet {
	return &lockSet{modules: make(map[string]bool)}
}

func (l *lockSet) lock(modules []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range modules {
		if m != "" {
			l.modules[m] = true
		}
	}
}

func (l *lockSet) unlock(modules []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range modules {
		delete(l.modules, m)
	}
}

// covering returns the locked module that covers a path, if any.
// A lock on "granular.voiceA" covers every path under it; a lock on
// "granular" covers both voices.
func (l *lockSet) covering(path string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.modules) == 0 {
		return "", false
	}
	if module := param.ModuleOf(path); l.modules[module] {
		return module, true
	}
	if i := strings.IndexByte(path, '.'); i > 0 && l.modules[path[:i]] {
		return path[:i], true
	}
	if l.modules[path] {
		return path, true
	}
	return "", false
}

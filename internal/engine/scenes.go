package engine

import (
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/azsmith/grainulator-sub004/internal/param"
)

// scenePrefix is the subtree captured by saveScene. Everything under it
// is a musical control; state outside it (master section, scene
// bookkeeping) is never part of a scene.
const scenePrefix = "granular"

// recordingActiveSuffix marks the one granular path scenes never carry:
// recalling a scene must not silently arm or disarm recording.
const recordingActiveSuffix = ".recording.active"

// SceneBook holds named captures of the granular parameter subtree.
// Scenes live for the session; persistence is the caller's concern.
//
// Thread-safety: safe from any goroutine.
type SceneBook struct {
	mu     sync.RWMutex
	scenes map[string]sceneEntry
}

// sceneEntry keeps the display name alongside the capture, since the
// map is keyed by the canonical form.
type sceneEntry struct {
	name   string
	values map[string]param.Value
}

// NewSceneBook creates an empty scene book.
func NewSceneBook() *SceneBook {
	return &SceneBook{scenes: make(map[string]sceneEntry)}
}

// sceneKey canonicalizes a scene name: Unicode NFC so composed and
// decomposed spellings of the same name collide, case-folded so recall
// is case-insensitive.
func sceneKey(name string) string {
	return cases.Fold().String(norm.NFC.String(name))
}

// Save stores a capture under a name, replacing any previous capture
// with the same canonical name. The values map is copied.
func (b *SceneBook) Save(name string, values map[string]param.Value) {
	copied := make(map[string]param.Value, len(values))
	for path, v := range values {
		copied[path] = v
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scenes[sceneKey(name)] = sceneEntry{name: name, values: copied}
}

// Lookup returns a copy of the named scene's values.
func (b *SceneBook) Lookup(name string) (map[string]param.Value, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	stored, ok := b.scenes[sceneKey(name)]
	if !ok {
		return nil, false
	}
	copied := make(map[string]param.Value, len(stored.values))
	for path, v := range stored.values {
		copied[path] = v
	}
	return copied, true
}

// Names returns the stored scene display names, sorted.
func (b *SceneBook) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.scenes))
	for _, entry := range b.scenes {
		names = append(names, entry.name)
	}
	sort.Strings(names)
	return names
}

// sceneCapture extracts the scene-worthy values from a working view:
// the granular subtree minus recording arm state.
func sceneCapture(v *view) map[string]param.Value {
	out := make(map[string]param.Value)
	for _, path := range v.pathsUnder(scenePrefix) {
		if strings.HasSuffix(path, recordingActiveSuffix) {
			continue
		}
		if val, ok := v.get(path); ok {
			out[path] = val
		}
	}
	return out
}

package cache

import (
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// Observation is one item of a status snapshot as a viewer sees it.
type Observation struct {
	ID       string
	Terminal bool
}

type viewerState struct {
	mu        sync.Mutex
	dismissed map[string]struct{}
	expiry    map[string]time.Time // itemID -> first terminal observation + grace
	lastSeen  time.Time
}

// ViewerTable holds per-viewer visibility: explicit dismissals and the expiry of
// terminal items. Nothing here touches the underlying records.
type ViewerTable struct {
	viewers cmap.ConcurrentMap[string, *viewerState]
	grace   time.Duration
}

func NewViewerTable(grace time.Duration) *ViewerTable {
	return &ViewerTable{
		viewers: cmap.New[*viewerState](),
		grace:   grace,
	}
}

func (t *ViewerTable) viewer(id string) *viewerState {
	return t.viewers.Upsert(id, nil, func(exist bool, old *viewerState, _ *viewerState) *viewerState {
		if exist {
			return old
		}
		return &viewerState{
			dismissed: make(map[string]struct{}),
			expiry:    make(map[string]time.Time),
		}
	})
}

// Observe applies a snapshot for viewer and returns the ids the viewer should see. A
// terminal item stays visible until grace after this viewer first observed it terminal.
// Entries for items missing from obs are forgotten.
func (t *ViewerTable) Observe(viewer string, obs []Observation, now time.Time) map[string]struct{} {
	v := t.viewer(viewer)
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.observe(obs, now, t.grace)
}

func (v *viewerState) observe(obs []Observation, now time.Time, grace time.Duration) map[string]struct{} {
	present := make(map[string]struct{}, len(obs))
	visible := make(map[string]struct{}, len(obs))
	for _, o := range obs {
		present[o.ID] = struct{}{}
		if _, gone := v.dismissed[o.ID]; gone {
			continue
		}
		if o.Terminal {
			deadline, seen := v.expiry[o.ID]
			if !seen {
				deadline = now.Add(grace)
				v.expiry[o.ID] = deadline
			}
			if !now.Before(deadline) {
				continue
			}
		}
		visible[o.ID] = struct{}{}
	}

	for id := range v.dismissed {
		if _, ok := present[id]; !ok {
			delete(v.dismissed, id)
		}
	}
	for id := range v.expiry {
		if _, ok := present[id]; !ok {
			delete(v.expiry, id)
		}
	}
	v.lastSeen = now
	return visible
}

// Dismiss hides id for viewer. Unknown and repeated ids are accepted.
func (t *ViewerTable) Dismiss(viewer, id string, now time.Time) {
	v := t.viewer(viewer)
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dismissed[id] = struct{}{}
	v.lastSeen = now
}

// DismissAll hides every item of obs that is currently visible to viewer, in one step
// with respect to other calls for the same viewer. It returns how many were hidden.
func (t *ViewerTable) DismissAll(viewer string, obs []Observation, now time.Time) int {
	v := t.viewer(viewer)
	v.mu.Lock()
	defer v.mu.Unlock()

	visible := v.observe(obs, now, t.grace)
	for id := range visible {
		v.dismissed[id] = struct{}{}
	}
	return len(visible)
}

// Purge drops viewers idle for longer than ttl and returns how many were removed.
func (t *ViewerTable) Purge(now time.Time, ttl time.Duration) int {
	removed := 0
	for _, id := range t.viewers.Keys() {
		if t.viewers.RemoveCb(id, func(_ string, v *viewerState, exists bool) bool {
			if !exists {
				return false
			}
			v.mu.Lock()
			defer v.mu.Unlock()
			return now.Sub(v.lastSeen) > ttl
		}) {
			removed++
		}
	}
	return removed
}

// Stats returns counters for the health endpoint.
func (t *ViewerTable) Stats() map[string]interface{} {
	dismissed := 0
	t.viewers.IterCb(func(_ string, v *viewerState) {
		v.mu.Lock()
		dismissed += len(v.dismissed)
		v.mu.Unlock()
	})
	return map[string]interface{}{
		"viewers":   t.viewers.Count(),
		"dismissed": dismissed,
	}
}

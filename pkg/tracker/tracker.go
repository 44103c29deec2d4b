// Package tracker enforces at most one in-flight verification per tab,
// regardless of kind.
package tracker

import (
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/dtnitsch/factcheck-relay/models"
)

type Tracker struct {
	mu       sync.Mutex
	inFlight map[int]models.TrackedRequest
	clock    clockwork.Clock
}

// New returns an empty tracker. A nil clock uses the real clock.
func New(clock clockwork.Clock) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tracker{
		inFlight: make(map[int]models.TrackedRequest),
		clock:    clock,
	}
}

// TryAdmit records a request for tabID and returns true, or returns false
// when the tab already has one in flight.
func (t *Tracker) TryAdmit(tabID int, kind models.Kind) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, busy := t.inFlight[tabID]; busy {
		return false
	}
	t.inFlight[tabID] = models.TrackedRequest{
		TabID:     tabID,
		Kind:      kind,
		StartedAt: t.clock.Now(),
	}
	return true
}

// Release clears the entry for tabID only if it was admitted for kind, so
// a stale release cannot clear a newer request of another kind.
func (t *Tracker) Release(tabID int, kind models.Kind) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if req, ok := t.inFlight[tabID]; ok && req.Kind == kind {
		delete(t.inFlight, tabID)
	}
}

// OnTabClosed clears whatever the tab had in flight.
func (t *Tracker) OnTabClosed(tabID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inFlight, tabID)
}

// InFlight returns the tracked request for tabID, if any.
func (t *Tracker) InFlight(tabID int) (models.TrackedRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, ok := t.inFlight[tabID]
	return req, ok
}

// Len returns the number of tabs with a request in flight.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inFlight)
}

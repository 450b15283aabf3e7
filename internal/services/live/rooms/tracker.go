// Package rooms tracks which connections belong to which activity room.
package rooms

import (
	"cmp"
	"slices"
	"sync"
)

// Change reports a room's member count after a membership update.
type Change struct {
	RoomID string
	Count  int
}

// Tracker maps activity rooms to their member connections. Rooms are created
// on first join and live for the rest of the process. None of its methods
// fail: unknown rooms and connections behave as empty.
type Tracker struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{}
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{rooms: make(map[string]map[string]struct{})}
}

// Join adds the connection to the room and returns the member count.
// Joining twice is a no-op.
func (t *Tracker) Join(roomID, connectionID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	members, ok := t.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		t.rooms[roomID] = members
	}
	members[connectionID] = struct{}{}
	return len(members)
}

// Leave removes the connection from the room and returns the member count.
func (t *Tracker) Leave(roomID, connectionID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	members, ok := t.rooms[roomID]
	if !ok {
		return 0
	}
	delete(members, connectionID)
	return len(members)
}

// Count returns the room's current member count.
func (t *Tracker) Count(roomID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rooms[roomID])
}

// Members returns the room's connections in sorted order.
func (t *Tracker) Members(roomID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	members := make([]string, 0, len(t.rooms[roomID]))
	for connectionID := range t.rooms[roomID] {
		members = append(members, connectionID)
	}
	slices.Sort(members)
	return members
}

// RemoveEverywhere drops the connection from every room it belongs to and
// reports the new count of each affected room, ordered by room id.
func (t *Tracker) RemoveEverywhere(connectionID string) []Change {
	t.mu.Lock()
	defer t.mu.Unlock()

	var changes []Change
	for roomID, members := range t.rooms {
		if _, ok := members[connectionID]; !ok {
			continue
		}
		delete(members, connectionID)
		changes = append(changes, Change{RoomID: roomID, Count: len(members)})
	}
	slices.SortFunc(changes, func(a, b Change) int {
		return cmp.Compare(a.RoomID, b.RoomID)
	})
	return changes
}

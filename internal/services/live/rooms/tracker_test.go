package rooms

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinUsesSetSemantics(t *testing.T) {
	tracker := NewTracker()

	assert.Equal(t, 1, tracker.Join("act1", "conn-a"))
	assert.Equal(t, 2, tracker.Join("act1", "conn-b"))
	assert.Equal(t, 2, tracker.Join("act1", "conn-a"))
	assert.Equal(t, 2, tracker.Count("act1"))
	assert.Equal(t, []string{"conn-a", "conn-b"}, tracker.Members("act1"))
}

func TestLeaveToleratesAbsentMembers(t *testing.T) {
	tracker := NewTracker()

	assert.Equal(t, 0, tracker.Leave("never-created", "conn-a"))
	assert.Equal(t, 0, tracker.Count("never-created"))

	tracker.Join("act1", "conn-a")
	assert.Equal(t, 1, tracker.Leave("act1", "conn-b"))
	assert.Equal(t, 0, tracker.Leave("act1", "conn-a"))
	assert.Equal(t, 0, tracker.Leave("act1", "conn-a"))
	assert.Empty(t, tracker.Members("act1"))
}

func TestCountMatchesDistinctMembersForRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	tracker := NewTracker()
	model := make(map[string]bool)

	for i := 0; i < 500; i++ {
		conn := fmt.Sprintf("conn-%d", rng.IntN(8))
		if rng.IntN(2) == 0 {
			tracker.Join("act1", conn)
			model[conn] = true
		} else {
			tracker.Leave("act1", conn)
			delete(model, conn)
		}
		require.Equal(t, len(model), tracker.Count("act1"), "step %d", i)
	}
}

func TestRemoveEverywhereReportsAffectedRooms(t *testing.T) {
	tracker := NewTracker()
	tracker.Join("act2", "conn-a")
	tracker.Join("act1", "conn-a")
	tracker.Join("act1", "conn-b")
	tracker.Join("act3", "conn-b")

	changes := tracker.RemoveEverywhere("conn-a")

	assert.Equal(t, []Change{
		{RoomID: "act1", Count: 1},
		{RoomID: "act2", Count: 0},
	}, changes)
	assert.Equal(t, []string{"conn-b"}, tracker.Members("act1"))
	assert.Equal(t, 1, tracker.Count("act3"))

	assert.Empty(t, tracker.RemoveEverywhere("conn-a"), "second removal is a no-op")
	assert.Empty(t, tracker.RemoveEverywhere("unknown"))
}

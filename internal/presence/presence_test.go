package presence

import (
	"testing"
	"time"

	"teamchat-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	ada = models.Identity{ID: 1, DisplayName: "Ada"}
	bob = models.Identity{ID: 2, DisplayName: "Bob"}
)

func newTracker(grace time.Duration) *Tracker {
	return New(grace, zap.NewNop().Sugar())
}

func TestJoinIsIdempotent(t *testing.T) {
	tracker := newTracker(0)

	tracker.Join(ada, "conn-1")
	tracker.Join(ada, "conn-1")

	online := tracker.Online()
	require.Len(t, online, 1)
	assert.Equal(t, ada.ID, online[0].IdentityID)
}

func TestSecondConnectionDoesNotDuplicate(t *testing.T) {
	tracker := newTracker(0)

	tracker.Join(ada, "tab-1")
	tracker.Join(ada, "tab-2")
	require.Len(t, tracker.Online(), 1)

	// closing one tab keeps the identity online
	tracker.Leave(ada.ID, "tab-1")
	require.Len(t, tracker.Online(), 1)

	tracker.Leave(ada.ID, "tab-2")
	assert.Empty(t, tracker.Online())
}

func TestJoinThenLeave(t *testing.T) {
	tracker := newTracker(0)

	tracker.Join(ada, "conn-1")
	tracker.Leave(ada.ID, "conn-1")

	assert.Empty(t, tracker.Online())

	// leaving when absent is a no-op
	tracker.Leave(ada.ID, "conn-1")
	assert.Empty(t, tracker.Online())
}

func TestOnlineSnapshotSorted(t *testing.T) {
	tracker := newTracker(0)

	tracker.Join(bob, "c2")
	tracker.Join(ada, "c1")

	online := tracker.Online()
	require.Len(t, online, 2)
	assert.Equal(t, "Ada", online[0].DisplayName)
	assert.Equal(t, "Bob", online[1].DisplayName)
}

func TestDeltasBroadcastToObservers(t *testing.T) {
	tracker := newTracker(0)

	deltas := tracker.Subscribe()
	defer tracker.Unsubscribe(deltas)

	tracker.Join(ada, "conn-1")
	select {
	case delta := <-deltas:
		require.NotNil(t, delta.Joined)
		assert.Equal(t, ada.ID, delta.Joined.IdentityID)
	case <-time.After(time.Second):
		t.Fatal("no joined delta received")
	}

	tracker.Leave(ada.ID, "conn-1")
	select {
	case delta := <-deltas:
		require.NotNil(t, delta.Left)
		assert.Equal(t, ada.ID, delta.Left.IdentityID)
	case <-time.After(time.Second):
		t.Fatal("no left delta received")
	}
}

func TestGraceWindowDelaysDeparture(t *testing.T) {
	tracker := newTracker(50 * time.Millisecond)

	tracker.Join(ada, "conn-1")
	tracker.Leave(ada.ID, "conn-1")

	// still listed inside the grace window
	require.Len(t, tracker.Online(), 1)

	assert.Eventually(t, func() bool {
		return len(tracker.Online()) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestRejoinInsideGraceWindowCancelsDeparture(t *testing.T) {
	tracker := newTracker(50 * time.Millisecond)

	deltas := tracker.Subscribe()
	defer tracker.Unsubscribe(deltas)

	tracker.Join(ada, "conn-1")
	<-deltas // joined

	tracker.Leave(ada.ID, "conn-1")
	tracker.Join(ada, "conn-2")

	time.Sleep(120 * time.Millisecond)
	require.Len(t, tracker.Online(), 1)

	select {
	case delta := <-deltas:
		t.Fatalf("expected no delta after rejoin inside grace window, got %+v", delta)
	default:
	}
}

func TestLeaveNowSkipsGraceWindow(t *testing.T) {
	tracker := newTracker(time.Hour)

	tracker.Join(ada, "conn-1")
	tracker.LeaveNow(ada.ID)

	assert.Empty(t, tracker.Online())
}

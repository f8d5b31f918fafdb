package presence

import (
	"sort"
	"sync"
	"time"

	"teamchat-backend/internal/models"

	"go.uber.org/zap"
)

// Tracker holds the shared "online" scope. It is purely in-memory: a
// process restart reports everyone offline until they reconnect.
//
// One identity may hold several connections (two browser tabs), so the
// online set is keyed by identity with a per-connection refcount:
// duplicate joins collapse instead of double-counting, and an identity
// only goes offline when its last connection is gone.
type Tracker struct {
	mu        sync.Mutex
	grace     time.Duration
	sugar     *zap.SugaredLogger
	online    map[int64]*entry
	observers map[chan models.PresenceDelta]struct{}
}

type entry struct {
	identity  models.Identity
	conns     map[string]struct{}
	departure *time.Timer
}

// New builds a tracker. grace is how long a fully disconnected
// identity stays listed before the Left delta fires; a short window
// keeps brief network blips from flickering the online list.
func New(grace time.Duration, sugar *zap.SugaredLogger) *Tracker {
	return &Tracker{
		grace:     grace,
		sugar:     sugar,
		online:    map[int64]*entry{},
		observers: map[chan models.PresenceDelta]struct{}{},
	}
}

// Join registers a connection for the identity. Idempotent: joining
// twice with the same connection changes nothing, and only the 0 -> 1
// connection transition broadcasts a Joined delta.
func (t *Tracker) Join(principal models.Identity, connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, known := t.online[principal.ID]
	if known {
		if e.departure != nil {
			e.departure.Stop()
			e.departure = nil
		}
		e.identity = principal
		e.conns[connID] = struct{}{}
		return
	}

	t.online[principal.ID] = &entry{
		identity: principal,
		conns:    map[string]struct{}{connID: {}},
	}

	t.sugar.Debugf("Identity %d joined the presence scope", principal.ID)
	joined := entryFor(principal)
	t.broadcastLocked(models.PresenceDelta{Joined: &joined})
}

// Leave drops one connection. Idempotent: leaving when absent is a
// no-op. When the last connection goes, the departure is delayed by
// the grace window and cancelled if the identity rejoins in time.
func (t *Tracker) Leave(identityID int64, connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, known := t.online[identityID]
	if !known {
		return
	}

	delete(e.conns, connID)
	if len(e.conns) > 0 {
		return
	}

	if t.grace <= 0 {
		t.removeLocked(identityID)
		return
	}

	if e.departure != nil {
		e.departure.Stop()
	}
	e.departure = time.AfterFunc(t.grace, func() {
		t.mu.Lock()
		defer t.mu.Unlock()

		current, stillKnown := t.online[identityID]
		if stillKnown && len(current.conns) == 0 {
			t.removeLocked(identityID)
		}
	})
}

// LeaveNow removes the identity immediately, skipping the grace
// window. Used on shutdown.
func (t *Tracker) LeaveNow(identityID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, known := t.online[identityID]; known {
		t.removeLocked(identityID)
	}
}

func (t *Tracker) removeLocked(identityID int64) {
	e := t.online[identityID]
	if e.departure != nil {
		e.departure.Stop()
	}
	delete(t.online, identityID)

	t.sugar.Debugf("Identity %d left the presence scope", identityID)
	left := entryFor(e.identity)
	t.broadcastLocked(models.PresenceDelta{Left: &left})
}

// Online returns a snapshot of the current online set, sorted by
// display name so repeated fetches render stably.
func (t *Tracker) Online() []models.PresenceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]models.PresenceEntry, 0, len(t.online))
	for _, e := range t.online {
		out = append(out, entryFor(e.identity))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].IdentityID < out[j].IdentityID
	})

	return out
}

// Subscribe returns a channel of join/leave deltas. Observers that
// fall behind miss deltas rather than block the tracker; they should
// re-fetch the snapshot when that matters.
func (t *Tracker) Subscribe() chan models.PresenceDelta {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan models.PresenceDelta, 16)
	t.observers[ch] = struct{}{}
	return ch
}

func (t *Tracker) Unsubscribe(ch chan models.PresenceDelta) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.observers[ch]; ok {
		delete(t.observers, ch)
		close(ch)
	}
}

func (t *Tracker) broadcastLocked(delta models.PresenceDelta) {
	for ch := range t.observers {
		select {
		case ch <- delta:
		default:
		}
	}
}

func entryFor(principal models.Identity) models.PresenceEntry {
	return models.PresenceEntry{
		IdentityID:  principal.ID,
		DisplayName: principal.DisplayName,
		AvatarUrl:   principal.AvatarUrl,
	}
}

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"teamchat-backend/internal/apperr"
	"teamchat-backend/internal/models"

	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu sync.Mutex

	messages map[string][]models.Message
	presence []models.PresenceEntry

	gates       map[string]chan struct{}
	lastSinceID int64
	listCalls   int
	appendCalls int
	presenceErr error
	nextID      int64
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		messages: map[string][]models.Message{},
		gates:    map[string]chan struct{}{},
		nextID:   1000,
	}
}

func (f *fakeAPI) seed(target models.Target, bodies ...string) []models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.Message
	for _, body := range bodies {
		f.nextID++
		msg := models.Message{ID: f.nextID, Body: body}
		f.messages[target.Key()] = append(f.messages[target.Key()], msg)
		out = append(out, msg)
	}
	return out
}

// gate makes list calls for the target block until the channel closes.
func (f *fakeAPI) gate(target models.Target) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan struct{})
	f.gates[target.Key()] = ch
	return ch
}

func (f *fakeAPI) ListMessages(ctx context.Context, target models.Target, sinceID int64, limit int) ([]models.Message, error) {
	f.mu.Lock()
	gate := f.gates[target.Key()]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.listCalls++
	f.lastSinceID = sinceID

	var out []models.Message
	for _, msg := range f.messages[target.Key()] {
		if msg.ID > sinceID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (f *fakeAPI) AppendMessage(ctx context.Context, target models.Target, body string) (models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.appendCalls++
	f.nextID++
	msg := models.Message{ID: f.nextID, Body: body}
	f.messages[target.Key()] = append(f.messages[target.Key()], msg)
	return msg, nil
}

func (f *fakeAPI) Presence(ctx context.Context) ([]models.PresenceEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.presenceErr != nil {
		return nil, f.presenceErr
	}
	return f.presence, nil
}

func bodies(msgs []models.Message) []string {
	var out []string
	for _, msg := range msgs {
		out = append(out, msg.Body)
	}
	return out
}

func TestSendWithoutSelectionIsRejected(t *testing.T) {
	api := newFakeAPI()
	sess := New(api, Options{SelfID: 1})

	_, err := sess.Send(context.Background(), "hello")
	require.True(t, apperr.IsValidation(err))
	require.Equal(t, 0, api.appendCalls)
	require.Equal(t, NoSelection, sess.State())
}

func TestSelectChannelLoadsWindow(t *testing.T) {
	api := newFakeAPI()
	api.seed(models.ChannelTarget(1), "first", "second")

	sess := New(api, Options{SelfID: 1})
	sess.SelectChannel(1)

	require.Equal(t, ChannelSelected, sess.State())
	require.Eventually(t, func() bool {
		return len(sess.Window()) == 2
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"first", "second"}, bodies(sess.Window()))
}

func TestSelectSameChannelTwiceLoadsOnce(t *testing.T) {
	api := newFakeAPI()
	api.seed(models.ChannelTarget(1), "only")

	sess := New(api, Options{SelfID: 1})
	sess.SelectChannel(1)
	require.Eventually(t, func() bool {
		return len(sess.Window()) == 1
	}, time.Second, 5*time.Millisecond)

	sess.SelectChannel(1)
	time.Sleep(20 * time.Millisecond)

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Equal(t, 1, api.listCalls)
}

func TestSwitchDuringLoadDiscardsStaleResult(t *testing.T) {
	api := newFakeAPI()
	api.seed(models.ChannelTarget(1), "stale one", "stale two")
	api.seed(models.ChannelTarget(2), "fresh")

	gate := api.gate(models.ChannelTarget(1))

	sess := New(api, Options{SelfID: 1})
	sess.SelectChannel(1)
	sess.SelectChannel(2)

	require.Eventually(t, func() bool {
		return len(sess.Window()) == 1
	}, time.Second, 5*time.Millisecond)

	// the first fetch completes only now, after the switch
	close(gate)
	time.Sleep(50 * time.Millisecond)

	require.Equal(t, []string{"fresh"}, bodies(sess.Window()))
	require.Equal(t, models.ChannelTarget(2), sess.Target())
}

func TestSendAppendsOptimisticallyAndPollDeduplicates(t *testing.T) {
	api := newFakeAPI()
	api.seed(models.ChannelTarget(1), "existing")

	sess := New(api, Options{SelfID: 1})
	sess.SelectChannel(1)
	require.Eventually(t, func() bool {
		return len(sess.Window()) == 1
	}, time.Second, 5*time.Millisecond)

	sent, err := sess.Send(context.Background(), "mine")
	require.NoError(t, err)
	require.Equal(t, []string{"existing", "mine"}, bodies(sess.Window()))

	// the next poll returns the sent message again; it must appear once
	require.NoError(t, sess.Sync(context.Background()))
	window := sess.Window()
	require.Equal(t, []string{"existing", "mine"}, bodies(window))
	require.Equal(t, sent.ID, window[1].ID)
}

func TestSyncFetchesIncrementally(t *testing.T) {
	api := newFakeAPI()
	seeded := api.seed(models.ChannelTarget(1), "one", "two")

	sess := New(api, Options{SelfID: 1})
	sess.SelectChannel(1)
	require.Eventually(t, func() bool {
		return len(sess.Window()) == 2
	}, time.Second, 5*time.Millisecond)

	api.seed(models.ChannelTarget(1), "three")
	require.NoError(t, sess.Sync(context.Background()))

	require.Equal(t, []string{"one", "two", "three"}, bodies(sess.Window()))

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Equal(t, seeded[1].ID, api.lastSinceID)
}

func TestSyncRefreshesPresence(t *testing.T) {
	api := newFakeAPI()
	api.presence = []models.PresenceEntry{
		{IdentityID: 7, DisplayName: "Ada"},
	}

	sess := New(api, Options{SelfID: 1})
	require.NoError(t, sess.Sync(context.Background()))

	presence := sess.Presence()
	require.Len(t, presence, 1)
	require.Equal(t, "Ada", presence[0].DisplayName)
}

func TestConnectionLostAfterConsecutiveFailures(t *testing.T) {
	api := newFakeAPI()
	api.mu.Lock()
	api.presenceErr = errors.New("dial tcp: connection refused")
	api.mu.Unlock()

	sess := New(api, Options{
		SelfID:           1,
		PollInterval:     time.Millisecond,
		MaxBackoff:       2 * time.Millisecond,
		FailureThreshold: 3,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	require.Eventually(t, func() bool {
		return sess.ConnectionLost()
	}, time.Second, 5*time.Millisecond)

	api.mu.Lock()
	api.presenceErr = nil
	api.mu.Unlock()

	require.Eventually(t, func() bool {
		return !sess.ConnectionLost()
	}, time.Second, 5*time.Millisecond)
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	sess := New(newFakeAPI(), Options{
		SelfID:       1,
		PollInterval: 3 * time.Second,
		MaxBackoff:   10 * time.Second,
	})

	err := errors.New("boom")
	interval := sess.recordFailure(err, 3*time.Second)
	require.Equal(t, 6*time.Second, interval)

	interval = sess.recordFailure(err, interval)
	require.Equal(t, 10*time.Second, interval)

	interval = sess.recordFailure(err, interval)
	require.Equal(t, 10*time.Second, interval)

	require.Equal(t, 3*time.Second, sess.recordSuccess())
}

func TestFilterMatchesBodyAndAuthor(t *testing.T) {
	api := newFakeAPI()
	sess := New(api, Options{SelfID: 1})

	sess.mu.Lock()
	sess.state = ChannelSelected
	sess.window = []models.Message{
		{ID: 1, Body: "Deploy finished", Author: models.Identity{DisplayName: "Ada"}},
		{ID: 2, Body: "lunch?", Author: models.Identity{DisplayName: "Grace"}},
		{ID: 3, Body: "redeploy needed", Author: models.Identity{DisplayName: "Ada"}},
	}
	sess.mu.Unlock()

	require.Equal(t, []string{"Deploy finished", "redeploy needed"}, bodies(sess.Filter("DEPLOY")))
	require.Equal(t, []string{"lunch?"}, bodies(sess.Filter("grace")))
	require.Len(t, sess.Filter("  "), 3)
	require.Empty(t, sess.Filter("nobody said this"))
}

func TestDebouncerRunsOnlyLastCall(t *testing.T) {
	debouncer := NewDebouncer(20 * time.Millisecond)

	var mu sync.Mutex
	var got []string
	record := func(s string) func() {
		return func() {
			mu.Lock()
			got = append(got, s)
			mu.Unlock()
		}
	}

	debouncer.Do(record("a"))
	debouncer.Do(record("b"))
	debouncer.Do(record("c"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0] == "c"
	}, time.Second, 5*time.Millisecond)

	debouncer.Do(record("d"))
	debouncer.Stop()
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"c"}, got)
}

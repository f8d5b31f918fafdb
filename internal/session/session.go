package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"teamchat-backend/internal/apperr"
	"teamchat-backend/internal/models"

	"go.uber.org/zap"
)

// Fetcher is the slice of the messaging service the session needs.
// The HTTP client implements it; tests use a scripted fake.
type Fetcher interface {
	ListMessages(ctx context.Context, target models.Target, sinceID int64, limit int) ([]models.Message, error)
	AppendMessage(ctx context.Context, target models.Target, body string) (models.Message, error)
	Presence(ctx context.Context) ([]models.PresenceEntry, error)
}

// State of the conversation selector. Exactly one conversation (or
// none, before the first selection) is active at a time; there is no
// way back to NoSelection once something was selected.
type State int

const (
	NoSelection State = iota
	ChannelSelected
	DirectSelected
)

type Options struct {
	// SelfID is the identity this session acts as; direct targets are
	// resolved against it.
	SelfID int64

	PollInterval     time.Duration
	RequestTimeout   time.Duration
	MaxBackoff       time.Duration
	FailureThreshold int
	WindowLimit      int

	Sugar *zap.SugaredLogger
}

func (o *Options) applyDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = 3 * time.Second
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 10 * time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 5
	}
	if o.WindowLimit <= 0 {
		o.WindowLimit = 100
	}
	if o.Sugar == nil {
		o.Sugar = zap.NewNop().Sugar()
	}
}

// Session is one client's view of the chat: the active conversation,
// its visible message window and the latest presence snapshot. The
// window holds strictly ascending message IDs; the delivery loop only
// appends, and a selection change replaces the window wholesale.
type Session struct {
	api  Fetcher
	opts Options

	mu       sync.Mutex
	state    State
	target   models.Target
	version  uint64
	window   []models.Message
	seen     map[int64]struct{}
	loadErr  error
	presence []models.PresenceEntry

	consecutiveFails int
	connectionLost   bool
}

func New(api Fetcher, opts Options) *Session {
	opts.applyDefaults()

	return &Session{
		api:  api,
		opts: opts,
		seen: map[int64]struct{}{},
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Target() models.Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Window returns a copy of the visible message window.
func (s *Session) Window() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.window))
	copy(out, s.window)
	return out
}

func (s *Session) Presence() []models.PresenceEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.PresenceEntry, len(s.presence))
	copy(out, s.presence)
	return out
}

// LoadError reports whether the initial window load for the current
// selection failed; the UI shows a retry affordance instead of stale
// messages from the previous conversation.
func (s *Session) LoadError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadErr
}

// ConnectionLost reports whether the delivery loop has seen enough
// consecutive transient failures to surface a "connection lost"
// indicator. The loop keeps retrying regardless.
func (s *Session) ConnectionLost() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectionLost
}

// SelectChannel makes the channel the active conversation and kicks
// off a full reload of its window. Selecting the already-active
// channel is a no-op so repeated clicks can't cause a reload storm.
func (s *Session) SelectChannel(channelID int64) {
	s.selectTarget(ChannelSelected, models.ChannelTarget(channelID))
}

// SelectDirect makes the conversation with the peer active.
func (s *Session) SelectDirect(peerID int64) {
	s.selectTarget(DirectSelected, models.DirectTarget(s.opts.SelfID, peerID))
}

func (s *Session) selectTarget(state State, target models.Target) {
	s.mu.Lock()

	if s.state == state && s.target == target {
		s.mu.Unlock()
		return
	}

	s.state = state
	s.target = target
	s.version++
	s.window = nil
	s.seen = map[int64]struct{}{}
	s.loadErr = nil
	version := s.version
	s.mu.Unlock()

	go s.reload(version, target)
}

// Reload re-runs the full window load for the current selection. The
// inline retry affordance calls this after a failed initial load.
func (s *Session) Reload(ctx context.Context) error {
	s.mu.Lock()
	if s.state == NoSelection {
		s.mu.Unlock()
		return nil
	}
	version := s.version
	target := s.target
	s.mu.Unlock()

	return s.fullLoad(ctx, version, target)
}

func (s *Session) reload(version uint64, target models.Target) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout)
	defer cancel()

	if err := s.fullLoad(ctx, version, target); err != nil && !isStale(err) {
		s.opts.Sugar.Debugf("Initial load for %s failed: %v", target.Key(), err)
	}
}

func (s *Session) fullLoad(ctx context.Context, version uint64, target models.Target) error {
	messages, err := s.api.ListMessages(ctx, target, 0, s.opts.WindowLimit)

	s.mu.Lock()
	defer s.mu.Unlock()

	// a result for a conversation that is no longer selected is
	// dropped on the floor, never mixed into the new window
	if version != s.version {
		return apperr.ErrStaleSelection
	}

	if err != nil {
		s.loadErr = err
		return err
	}

	s.loadErr = nil
	s.window = messages
	s.seen = map[int64]struct{}{}
	for _, msg := range messages {
		s.seen[msg.ID] = struct{}{}
	}

	return nil
}

// Send appends a message to the active conversation. In NoSelection
// the send affordance is disabled and the operation is rejected here,
// before anything reaches the store. On success the message is
// optimistically appended to the local window and later deduplicated
// against poll results by ID.
func (s *Session) Send(ctx context.Context, body string) (models.Message, error) {
	s.mu.Lock()
	if s.state == NoSelection {
		s.mu.Unlock()
		return models.Message{}, apperr.Validation("selection", "no conversation selected")
	}
	version := s.version
	target := s.target
	s.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	msg, err := s.api.AppendMessage(reqCtx, target, body)
	if err != nil {
		return models.Message{}, err
	}

	s.mu.Lock()
	if version == s.version {
		s.applyLocked([]models.Message{msg})
	}
	s.mu.Unlock()

	return msg, nil
}

// applyLocked merges fetched or optimistically sent messages into the
// window: duplicates are dropped by ID, everything else is appended,
// and the strictly-ascending-ID invariant is restored if an overlap
// race delivered an older message late.
func (s *Session) applyLocked(batch []models.Message) {
	appended := false
	for _, msg := range batch {
		if _, dup := s.seen[msg.ID]; dup {
			continue
		}
		s.seen[msg.ID] = struct{}{}
		s.window = append(s.window, msg)
		appended = true
	}

	if !appended {
		return
	}

	if !sort.SliceIsSorted(s.window, func(i, j int) bool { return s.window[i].ID < s.window[j].ID }) {
		sort.Slice(s.window, func(i, j int) bool { return s.window[i].ID < s.window[j].ID })
	}
}

func (s *Session) lastIDLocked() int64 {
	if len(s.window) == 0 {
		return 0
	}
	return s.window[len(s.window)-1].ID
}

func isStale(err error) bool {
	return err == apperr.ErrStaleSelection
}

package session

import (
	"strings"
	"sync"
	"time"

	"teamchat-backend/internal/models"
)

// Filter returns the messages of the current window whose body or
// author display name contains the query, case-insensitively. An
// empty or whitespace-only query returns the whole window. Filtering
// is a view over the window; the window itself is untouched.
func (s *Session) Filter(query string) []models.Message {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return s.Window()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Message
	for _, msg := range s.window {
		if strings.Contains(strings.ToLower(msg.Body), query) ||
			strings.Contains(strings.ToLower(msg.Author.DisplayName), query) {
			out = append(out, msg)
		}
	}
	return out
}

// Debouncer coalesces bursts of calls into one: each Do resets the
// timer, and only the last fn runs once the interval passes quietly.
// Keystroke-driven filtering uses it so typing doesn't re-filter on
// every character.
type Debouncer struct {
	mu    sync.Mutex
	after time.Duration
	timer *time.Timer
}

func NewDebouncer(after time.Duration) *Debouncer {
	if after <= 0 {
		after = 300 * time.Millisecond
	}
	return &Debouncer{after: after}
}

func (d *Debouncer) Do(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.after, fn)
}

// Stop cancels any pending call.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

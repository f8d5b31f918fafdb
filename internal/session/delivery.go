package session

import (
	"context"
	"time"

	"teamchat-backend/internal/apperr"
)

// Run drives the polling delivery loop until ctx is canceled. Each
// tick syncs the active conversation incrementally and refreshes the
// presence snapshot. Transient failures back the interval off
// exponentially up to MaxBackoff and, past FailureThreshold in a row,
// raise the connection-lost flag; the first success clears both.
func (s *Session) Run(ctx context.Context) {
	interval := s.opts.PollInterval

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := s.Sync(ctx); err != nil && !isStale(err) {
			interval = s.recordFailure(err, interval)
		} else {
			interval = s.recordSuccess()
		}

		timer.Reset(interval)
	}
}

// Sync performs one delivery tick: an incremental message fetch for
// the active conversation (sinceId = last held message ID) plus a
// presence refresh. With nothing selected only presence is synced.
func (s *Session) Sync(ctx context.Context) error {
	s.mu.Lock()
	state := s.state
	version := s.version
	target := s.target
	sinceID := s.lastIDLocked()
	s.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	if state != NoSelection {
		batch, err := s.api.ListMessages(reqCtx, target, sinceID, s.opts.WindowLimit)
		if err != nil {
			return err
		}

		s.mu.Lock()
		if version != s.version {
			s.mu.Unlock()
			return apperr.ErrStaleSelection
		}
		s.applyLocked(batch)
		s.mu.Unlock()
	}

	entries, err := s.api.Presence(reqCtx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.presence = entries
	s.mu.Unlock()

	return nil
}

func (s *Session) recordFailure(err error, interval time.Duration) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.consecutiveFails++
	if s.consecutiveFails >= s.opts.FailureThreshold && !s.connectionLost {
		s.connectionLost = true
		s.opts.Sugar.Warnf("Connection lost after %d failed polls: %v", s.consecutiveFails, err)
	}

	interval *= 2
	if interval > s.opts.MaxBackoff {
		interval = s.opts.MaxBackoff
	}
	return interval
}

func (s *Session) recordSuccess() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connectionLost {
		s.opts.Sugar.Info("Connection restored")
	}
	s.consecutiveFails = 0
	s.connectionLost = false

	return s.opts.PollInterval
}

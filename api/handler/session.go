package handler

import (
	"context"
	"sync/atomic"

	"github.com/use-agent/browserkit/helper"
	"golang.org/x/sync/semaphore"
)

// Session serializes access to one Helper. The driver behind it controls a
// single page, so concurrent requests queue instead of interleaving.
type Session struct {
	sem     *semaphore.Weighted
	helper  *helper.Helper
	waiting atomic.Int32
}

// NewSession wraps h.
func NewSession(h *helper.Helper) *Session {
	return &Session{sem: semaphore.NewWeighted(1), helper: h}
}

// Do runs fn with exclusive access to the helper. It gives up with ctx's
// error if ctx ends while queued.
func (s *Session) Do(ctx context.Context, fn func(h *helper.Helper) error) error {
	s.waiting.Add(1)
	err := s.sem.Acquire(ctx, 1)
	s.waiting.Add(-1)
	if err != nil {
		return err
	}
	defer s.sem.Release(1)

	return fn(s.helper)
}

// Queued reports how many requests are waiting for the session.
func (s *Session) Queued() int {
	return int(s.waiting.Load())
}

// DriverName reports the backend behind the session.
func (s *Session) DriverName() string {
	return s.helper.Driver().Name()
}

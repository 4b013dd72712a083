package utils

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Session is the lifetime of one unit of work, such as a game. Cancelling
// it cancels everything started under its context.
type Session struct {
	context   context.Context
	cancel    context.CancelFunc
	trace     string
	startTime time.Time
}

func NewSession(ctx context.Context) Session {
	ctx, cancel := context.WithCancel(ctx)
	return Session{
		context:   ctx,
		cancel:    cancel,
		trace:     uuid.NewString(),
		startTime: time.Now(),
	}
}

// Trace uniquely identifies the session across restarts and hosts.
func (s *Session) Trace() string {
	return s.trace
}

func (s *Session) Started() time.Time {
	return s.startTime
}

func (s *Session) Ctx() context.Context {
	return s.context
}

func (s *Session) IsDone() bool {
	return s.context.Err() != nil
}

func (s *Session) Cancel() {
	s.cancel()
}

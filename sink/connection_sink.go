package sink

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"sync"
)

var _ contract.EventSink = (*ConnectionSink)(nil)

// ConnectionSink is the outbound queue of one session.
// The fanout pushes into it, the session write pump drains it.
type ConnectionSink struct {
	id        domain.SessionID
	events    chan event.Event
	done      chan struct{}
	mu        sync.RWMutex
	closed    bool
	cause     error
	closeOnce sync.Once
}

func NewConnectionSink(id domain.SessionID, bufferSize int) *ConnectionSink {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &ConnectionSink{
		id:     id,
		events: make(chan event.Event, bufferSize),
		done:   make(chan struct{}),
	}
}

func (s *ConnectionSink) ID() domain.SessionID { return s.id }

// Consume is called by the fanout and never waits for the reader.
// A full buffer means the client is too slow: the caller decides what to do with it.
func (s *ConnectionSink) Consume(ctx context.Context, e event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.ErrSinkClosed
	}

	select {
	case s.events <- e:
		return nil
	default:
		return errors.ErrSinkFull
	}
}

// Events is drained by the write pump until Done is closed.
func (s *ConnectionSink) Events() <-chan event.Event { return s.events }

func (s *ConnectionSink) Done() <-chan struct{} { return s.done }

// Close is idempotent. Pending events stay readable from Events.
func (s *ConnectionSink) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
	})
}

// Evict closes the sink and keeps cause for the session to report to its peer.
// Only the first close decides the cause.
func (s *ConnectionSink) Evict(cause error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.cause = cause
		s.mu.Unlock()
		close(s.done)
	})
}

// Cause is nil unless the sink was closed by Evict.
func (s *ConnectionSink) Cause() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cause
}

func (s *ConnectionSink) Len() int { return len(s.events) }

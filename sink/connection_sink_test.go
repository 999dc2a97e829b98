package sink

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newSentEvent(conversationID domain.ConversationID, content string) event.MessageSent {
	return event.MessageSent{Message: domain.Message{
		ID:             domain.NewMessageID(),
		ConversationID: conversationID,
		Content:        content,
		Type:           domain.TextMessage,
	}}
}

func TestConnectionSink_Consume_Keeps_Order(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	conversationID := domain.NewConversationID()
	s := NewConnectionSink(domain.NewSessionID(), 3)

	// When three events are consumed
	for _, content := range []string{"a", "b", "c"} {
		req.NoError(s.Consume(ctx, newSentEvent(conversationID, content)))
	}

	// Then they come out in the same order
	for _, expected := range []string{"a", "b", "c"} {
		evt := <-s.Events()
		req.Equal(expected, evt.(event.MessageSent).Message.Content)
	}
}

func TestConnectionSink_Consume_Full_Buffer(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	conversationID := domain.NewConversationID()
	s := NewConnectionSink(domain.NewSessionID(), 1)

	// Given a sink with a full buffer
	req.NoError(s.Consume(ctx, newSentEvent(conversationID, "a")))

	// When another event comes in
	err := s.Consume(ctx, newSentEvent(conversationID, "b"))

	// Then it is rejected without blocking
	req.ErrorIs(err, errors.ErrSinkFull)
	req.Equal(1, s.Len())
}

func TestConnectionSink_Consume_After_Close(t *testing.T) {
	req := require.New(t)
	s := NewConnectionSink(domain.NewSessionID(), 1)

	// Given a closed sink
	s.Close()
	s.Close()

	// Then consuming fails and done is signaled
	err := s.Consume(context.Background(), newSentEvent(domain.NewConversationID(), "a"))
	req.ErrorIs(err, errors.ErrSinkClosed)
	select {
	case <-s.Done():
	default:
		req.Fail("done should be closed")
	}
}

func TestConnectionSink_Consume_Canceled_Context(t *testing.T) {
	req := require.New(t)
	s := NewConnectionSink(domain.NewSessionID(), 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Consume(ctx, newSentEvent(domain.NewConversationID(), "a"))

	req.ErrorIs(err, context.Canceled)
	req.Equal(0, s.Len())
}

func TestConnectionSink_Evict_Keeps_First_Cause(t *testing.T) {
	req := require.New(t)
	s := NewConnectionSink(domain.NewSessionID(), 1)

	// When the sink is evicted then closed again
	s.Evict(errors.ErrConversationNotFound)
	s.Close()
	s.Evict(errors.ErrSinkFull)

	// Then it is done and remembers why it was evicted first
	<-s.Done()
	req.ErrorIs(s.Cause(), errors.ErrConversationNotFound)
	req.ErrorIs(s.Consume(context.Background(), newSentEvent(domain.NewConversationID(), "late")), errors.ErrSinkClosed)
}

func TestConnectionSink_Close_Has_No_Cause(t *testing.T) {
	s := NewConnectionSink(domain.NewSessionID(), 1)
	s.Close()
	require.NoError(t, s.Cause())
}

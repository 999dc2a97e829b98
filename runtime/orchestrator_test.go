package runtime

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/repositories"
	"chat-relay/runtime/workers"
	"chat-relay/sink"
	"chat-relay/storage"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

type relay struct {
	orchestrator  *Orchestrator
	coordinator   *Coordinator
	messages      *repositories.MessageRepository
	conversations repositories.ConversationRepository
	files         *storage.DiskStorage
}

func newRelay(t *testing.T) *relay {
	t.Helper()
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	messages, err := repositories.NewMessageRepository(db, log, lo.ToPtr(50))
	req.NoError(err)
	conversations := repositories.NewConversationRepository(db, log)
	files, err := storage.NewDiskStorage(t.TempDir(), "http://localhost/files", log)
	req.NoError(err)

	registry := NewRegistry()
	fanout := workers.NewEventFanout(log, registry, 64, 50*time.Millisecond)
	coordinator := NewCoordinator(log, messages, conversations, fanout, files, nil, nil)
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	coordinator.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	orchestrator := NewOrchestrator(log, workers.NewSupervisor(log, 10*time.Millisecond), registry, fanout, coordinator, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = orchestrator.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = messages.Close()
		_ = db.Close()
	})

	return &relay{
		orchestrator:  orchestrator,
		coordinator:   coordinator,
		messages:      messages,
		conversations: conversations,
		files:         files,
	}
}

func (r *relay) newConversation(t *testing.T) domain.ConversationID {
	t.Helper()
	conversation := domain.Conversation{
		ID:        domain.NewConversationID(),
		Name:      "general",
		Type:      domain.GroupConversation,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, r.conversations.CreateConversation(conversation))
	return conversation.ID
}

func (r *relay) join(conversationID domain.ConversationID) *sink.ConnectionSink {
	s := sink.NewConnectionSink(domain.NewSessionID(), 8)
	r.orchestrator.RegisterSession(conversationID, s)
	return s
}

func (r *relay) send(ctx context.Context, origin *sink.ConnectionSink, conversationID domain.ConversationID, content string) {
	r.orchestrator.Dispatch(ctx, origin, domain.SendCommand{
		Conversation: conversationID,
		SenderID:     string(origin.ID()),
		Content:      content,
		Type:         domain.TextMessage,
	})
}

func (r *relay) pointer(t *testing.T, conversationID domain.ConversationID) *domain.MessageID {
	t.Helper()
	conversation, err := r.conversations.GetConversation(conversationID)
	require.NoError(t, err)
	return conversation.LastMessageID()
}

func receive(t *testing.T, s *sink.ConnectionSink) event.Event {
	t.Helper()
	select {
	case e := <-s.Events():
		return e
	case <-time.After(time.Second):
		t.Fatalf("session %s received nothing", s.ID())
		return nil
	}
}

func requireSilent(t *testing.T, s *sink.ConnectionSink) {
	t.Helper()
	select {
	case e := <-s.Events():
		t.Fatalf("session %s received unexpected %T", s.ID(), e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestOrchestrator_Send_Reaches_Every_Member_Once(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	r := newRelay(t)
	c1 := r.newConversation(t)
	c2 := r.newConversation(t)

	// Given A and B in C1, and C in C2
	a, b, c := r.join(c1), r.join(c1), r.join(c2)

	// When A sends "hi"
	r.send(ctx, a, c1, "hi")

	// Then A and B both receive the stored message exactly once
	sentToB, ok := receive(t, b).(event.MessageSent)
	req.True(ok)
	req.Equal("hi", sentToB.Message.Content)
	req.Equal(c1, sentToB.Message.ConversationID)
	sentToA, ok := receive(t, a).(event.MessageSent)
	req.True(ok)
	req.Equal(sentToB.Message.ID, sentToA.Message.ID)
	requireSilent(t, b)

	// Then C in another conversation receives nothing
	requireSilent(t, c)

	// Then the pointer and the history both know the message
	req.Equal(&sentToB.Message.ID, r.pointer(t, c1))
	history, _, err := r.messages.GetMessages(c1, nil, 0)
	req.NoError(err)
	req.Len(history, 1)
	req.Equal(sentToB.Message, history[0])
}

func TestOrchestrator_Delete_Moves_Pointer_Back(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	r := newRelay(t)
	c1 := r.newConversation(t)
	a := r.join(c1)

	// Given m1 then m2 in C1
	r.send(ctx, a, c1, "first")
	m1 := receive(t, a).(event.MessageSent).Message
	r.send(ctx, a, c1, "second")
	m2 := receive(t, a).(event.MessageSent).Message
	req.Equal(&m2.ID, r.pointer(t, c1))

	// When m2 is deleted
	r.orchestrator.Dispatch(ctx, a, domain.DeleteCommand{Conversation: c1, MessageID: m2.ID})

	// Then the pointer goes back to m1 and the deletion is broadcast
	req.Equal(event.MessageDeleted{Conversation: c1, MessageID: m2.ID}, receive(t, a))
	req.Equal(&m1.ID, r.pointer(t, c1))

	// When m1 is deleted as well
	r.orchestrator.Dispatch(ctx, a, domain.DeleteCommand{Conversation: c1, MessageID: m1.ID})

	// Then the conversation has no last message anymore
	req.Equal(event.MessageDeleted{Conversation: c1, MessageID: m1.ID}, receive(t, a))
	req.Nil(r.pointer(t, c1))
}

func TestOrchestrator_Delete_Non_Latest_Keeps_Pointer(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	r := newRelay(t)
	c1 := r.newConversation(t)
	a := r.join(c1)

	r.send(ctx, a, c1, "first")
	m1 := receive(t, a).(event.MessageSent).Message
	r.send(ctx, a, c1, "second")
	m2 := receive(t, a).(event.MessageSent).Message

	r.orchestrator.Dispatch(ctx, a, domain.DeleteCommand{Conversation: c1, MessageID: m1.ID})

	req.Equal(event.MessageDeleted{Conversation: c1, MessageID: m1.ID}, receive(t, a))
	req.Equal(&m2.ID, r.pointer(t, c1))
}

func TestOrchestrator_Delete_From_Other_Conversation_Is_Noop(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	r := newRelay(t)
	c1 := r.newConversation(t)
	c2 := r.newConversation(t)
	a, b := r.join(c1), r.join(c2)

	r.send(ctx, a, c1, "hi")
	m1 := receive(t, a).(event.MessageSent).Message

	// When a session bound to C2 tries to delete a message of C1
	r.orchestrator.Dispatch(ctx, b, domain.DeleteCommand{Conversation: c2, MessageID: m1.ID})

	// Then nothing changes and nothing is broadcast
	requireSilent(t, a)
	requireSilent(t, b)
	_, err := r.messages.GetMessage(m1.ID)
	req.NoError(err)
	req.Equal(&m1.ID, r.pointer(t, c1))
}

func TestOrchestrator_Unregistered_Session_Receives_Nothing(t *testing.T) {
	ctx := context.Background()
	r := newRelay(t)
	c1 := r.newConversation(t)
	a, b := r.join(c1), r.join(c1)

	// When B leaves before A sends
	r.orchestrator.UnregisterSession(c1, b.ID())
	r.send(ctx, a, c1, "anyone?")

	// Then only A gets its own message back
	receive(t, a)
	requireSilent(t, b)
}

func TestOrchestrator_Send_To_Unknown_Conversation_Fails_On_Origin_Only(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	r := newRelay(t)
	unknown := domain.NewConversationID()
	a, b := r.join(unknown), r.join(unknown)

	r.send(ctx, a, unknown, "lost")

	// Then the sender learns the conversation is gone, no one else hears about it
	failure, ok := receive(t, a).(event.ActionFailed)
	req.True(ok)
	req.Equal(domain.ActionSend, failure.Action)
	req.Equal("conversation not found", failure.Reason)
	req.Empty(failure.MessageID)
	requireSilent(t, b)

	// And nothing was stored under it
	history, _, err := r.messages.GetMessages(unknown, nil, 10)
	req.NoError(err)
	req.Empty(history)
}

func TestOrchestrator_Delete_Removes_Attachment(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	r := newRelay(t)
	c1 := r.newConversation(t)
	a := r.join(c1)

	url, err := r.files.Upload(ctx, "cat.png", []byte("not really a png"))
	req.NoError(err)
	r.orchestrator.Dispatch(ctx, a, domain.SendCommand{
		Conversation: c1,
		SenderID:     "alice",
		Type:         domain.ImageMessage,
		FileURL:      url,
	})
	m1 := receive(t, a).(event.MessageSent).Message

	r.orchestrator.Dispatch(ctx, a, domain.DeleteCommand{Conversation: c1, MessageID: m1.ID})
	receive(t, a)

	// Then the uploaded file is gone from disk
	entries, err := os.ReadDir(r.files.Dir())
	req.NoError(err)
	req.Empty(lo.Filter(entries, func(e os.DirEntry, _ int) bool {
		return filepath.Ext(e.Name()) == ".png"
	}))
}

func TestOrchestrator_Evict_Conversation_Closes_Its_Members_Only(t *testing.T) {
	req := require.New(t)
	r := newRelay(t)
	c1, c2 := r.newConversation(t), r.newConversation(t)
	a, b := r.join(c1), r.join(c1)
	other := r.join(c2)

	// When the first conversation is evicted
	evicted := r.orchestrator.EvictConversation(c1)

	// Then its members are closed with the reason and left the registry
	req.Equal(2, evicted)
	for _, s := range []*sink.ConnectionSink{a, b} {
		<-s.Done()
		req.ErrorIs(s.Cause(), errors.ErrConversationNotFound)
	}
	req.Empty(r.orchestrator.registry.Members(c1))

	// And the other conversation is untouched
	req.Len(r.orchestrator.registry.Members(c2), 1)
	select {
	case <-other.Done():
		t.Fatal("member of another conversation was evicted")
	default:
	}
	req.Zero(r.orchestrator.EvictConversation(c1))
}

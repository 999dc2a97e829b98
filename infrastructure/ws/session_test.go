package ws

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/sink"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type directory map[domain.ConversationID]domain.Conversation

func (d directory) GetConversation(id domain.ConversationID) (domain.Conversation, error) {
	conversation, ok := d[id]
	if !ok {
		return domain.Conversation{}, fmt.Errorf("%w: %s", errors.ErrConversationNotFound, id)
	}
	return conversation, nil
}

var testConfig = Config{
	ConnectionBufferSize: 4,
	WriteWait:            time.Second,
	PongWait:             time.Minute,
	MaxEnvelopeSize:      4096,
	MaxContentLength:     100,
}

func newServer(t *testing.T, orchestrator contract.IOrchestrator, conversations ConversationLookup) (*httptest.Server, *Handler) {
	t.Helper()
	handler := NewHandler(logs.GetLoggerFromLevel(slog.LevelDebug), orchestrator, conversations, testConfig)
	router := chi.NewRouter()
	router.Get("/ws/{conversationID}", handler.ServeHTTP)
	server := httptest.NewServer(router)
	t.Cleanup(func() {
		handler.Shutdown()
		server.Close()
	})
	return server, handler
}

func dial(t *testing.T, server *httptest.Server, conversationID domain.ConversationID) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/" + string(conversationID)
	return websocket.DefaultDialer.Dial(url, nil)
}

func TestHandler_Refuses_Invalid_Conversation_Id(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	server, _ := newServer(t, mocks.NewMockIOrchestrator(ctrl), directory{})

	_, resp, err := dial(t, server, "not-a-uuid")

	req.Error(err)
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_Refuses_Unknown_Conversation(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	server, _ := newServer(t, mocks.NewMockIOrchestrator(ctrl), directory{})

	_, resp, err := dial(t, server, domain.NewConversationID())

	req.Error(err)
	req.Equal(http.StatusNotFound, resp.StatusCode)
}

func TestSession_Lifecycle(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	orchestrator := mocks.NewMockIOrchestrator(ctrl)
	conversationID := domain.NewConversationID()
	server, _ := newServer(t, orchestrator, directory{conversationID: {ID: conversationID}})

	registered := make(chan contract.EventSink, 1)
	dispatched := make(chan domain.Command, 4)
	unregistered := make(chan domain.SessionID, 1)

	orchestrator.EXPECT().RegisterSession(conversationID, gomock.Any()).
		Do(func(_ domain.ConversationID, s contract.EventSink) { registered <- s })
	orchestrator.EXPECT().Dispatch(gomock.Any(), gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, _ contract.EventSink, cmd domain.Command) { dispatched <- cmd }).
		AnyTimes()
	orchestrator.EXPECT().UnregisterSession(conversationID, gomock.Any()).
		Do(func(_ domain.ConversationID, id domain.SessionID) { unregistered <- id })

	conn, _, err := dial(t, server, conversationID)
	req.NoError(err)
	sessionSink := <-registered

	// Given a malformed envelope, then nothing is dispatched
	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte(`{"content":"no action"}`)))

	// When a valid envelope follows on the same session
	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"send","sender_id":"alice","content":"hi"}`)))

	// Then only the valid one reaches the orchestrator, the session is still open
	select {
	case cmd := <-dispatched:
		req.Equal(domain.SendCommand{Conversation: conversationID, SenderID: "alice", Content: "hi", Type: domain.TextMessage}, cmd)
	case <-time.After(time.Second):
		req.Fail("valid envelope was not dispatched")
	}
	req.Empty(dispatched)

	// When the fanout hands an event to the session
	messageID := domain.NewMessageID()
	req.NoError(sessionSink.Consume(context.Background(), event.MessageDeleted{Conversation: conversationID, MessageID: messageID}))

	// Then the client reads it as an outbound envelope
	var envelope OutboundEnvelope
	req.NoError(conn.SetReadDeadline(time.Now().Add(time.Second)))
	req.NoError(conn.ReadJSON(&envelope))
	req.Equal(OutboundEnvelope{
		Action:         domain.ActionDelete,
		ConversationID: string(conversationID),
		MessageID:      string(messageID),
	}, envelope)

	// When the client goes away
	req.NoError(conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	_ = conn.Close()

	// Then the session leaves the registry
	select {
	case id := <-unregistered:
		req.Equal(sessionSink.ID(), id)
	case <-time.After(time.Second):
		req.Fail("session was not unregistered")
	}
}

func TestSession_Evicted_Sink_Closes_Connection(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	orchestrator := mocks.NewMockIOrchestrator(ctrl)
	conversationID := domain.NewConversationID()
	server, _ := newServer(t, orchestrator, directory{conversationID: {ID: conversationID}})

	registered := make(chan contract.EventSink, 1)
	unregistered := make(chan struct{})
	orchestrator.EXPECT().RegisterSession(conversationID, gomock.Any()).
		Do(func(_ domain.ConversationID, s contract.EventSink) { registered <- s })
	orchestrator.EXPECT().UnregisterSession(conversationID, gomock.Any()).
		Do(func(domain.ConversationID, domain.SessionID) { close(unregistered) })

	conn, _, err := dial(t, server, conversationID)
	req.NoError(err)
	defer conn.Close()

	// When the fanout evicts the session
	(<-registered).Close()

	// Then the client is told to come back later
	req.NoError(conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err = conn.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.CloseTryAgainLater), "got %v", err)

	select {
	case <-unregistered:
	case <-time.After(time.Second):
		req.Fail("session was not unregistered")
	}
}

func TestSession_Conversation_Deleted_Closes_Normally(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	orchestrator := mocks.NewMockIOrchestrator(ctrl)
	conversationID := domain.NewConversationID()
	server, _ := newServer(t, orchestrator, directory{conversationID: {ID: conversationID}})

	registered := make(chan contract.EventSink, 1)
	orchestrator.EXPECT().RegisterSession(conversationID, gomock.Any()).
		Do(func(_ domain.ConversationID, s contract.EventSink) { registered <- s })
	orchestrator.EXPECT().UnregisterSession(conversationID, gomock.Any())

	conn, _, err := dial(t, server, conversationID)
	req.NoError(err)
	defer conn.Close()

	// When the session is evicted because its conversation was deleted
	evicted, ok := (<-registered).(*sink.ConnectionSink)
	req.True(ok)
	evicted.Evict(fmt.Errorf("%w: %s", errors.ErrConversationNotFound, conversationID))

	// Then the client gets a normal closure, not an invitation to retry
	req.NoError(conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err = conn.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestSession_Oversized_Envelope_Closes_With_Too_Big(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	orchestrator := mocks.NewMockIOrchestrator(ctrl)
	conversationID := domain.NewConversationID()
	server, _ := newServer(t, orchestrator, directory{conversationID: {ID: conversationID}})

	registered := make(chan struct{})
	orchestrator.EXPECT().RegisterSession(conversationID, gomock.Any()).
		Do(func(domain.ConversationID, contract.EventSink) { close(registered) })
	orchestrator.EXPECT().UnregisterSession(conversationID, gomock.Any())
	orchestrator.EXPECT().Dispatch(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	conn, _, err := dial(t, server, conversationID)
	req.NoError(err)
	defer conn.Close()
	<-registered

	// When a frame above the envelope size limit is written
	content := strings.Repeat("a", int(testConfig.MaxEnvelopeSize))
	req.NoError(conn.WriteJSON(map[string]string{"action": "send", "sender_id": "alice", "content": content}))

	// Then the transport closes the session instead of dropping the envelope
	req.NoError(conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err = conn.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.CloseMessageTooBig), "got %v", err)
}

func TestHandler_Shutdown_Closes_Sessions(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	orchestrator := mocks.NewMockIOrchestrator(ctrl)
	conversationID := domain.NewConversationID()
	server, handler := newServer(t, orchestrator, directory{conversationID: {ID: conversationID}})

	registered := make(chan struct{})
	orchestrator.EXPECT().RegisterSession(conversationID, gomock.Any()).
		Do(func(domain.ConversationID, contract.EventSink) { close(registered) })
	orchestrator.EXPECT().UnregisterSession(conversationID, gomock.Any())

	conn, _, err := dial(t, server, conversationID)
	req.NoError(err)
	defer conn.Close()
	<-registered

	// When the server shuts down
	handler.Shutdown()

	// Then the client gets a going away close frame
	req.NoError(conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err = conn.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	// Then new connections are refused
	_, resp, err := dial(t, server, conversationID)
	req.Error(err)
	req.Equal(http.StatusServiceUnavailable, resp.StatusCode)
}

func TestState_String(t *testing.T) {
	req := require.New(t)
	req.Equal("connecting", Connecting.String())
	req.Equal("open", Open.String())
	req.Equal("closing", Closing.String())
	req.Equal("closed", Closed.String())
}

package ws

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// ConversationLookup is the part of the directory needed for admission.
type ConversationLookup interface {
	GetConversation(id domain.ConversationID) (domain.Conversation, error)
}

// Handler admits websocket connections on /ws/{conversationID}.
type Handler struct {
	log           *slog.Logger
	orchestrator  contract.IOrchestrator
	conversations ConversationLookup
	decoder       *Decoder
	upgrader      websocket.Upgrader
	cfg           Config
	ctx           context.Context
	cancel        context.CancelFunc
	sessions      sync.WaitGroup
}

func NewHandler(log *slog.Logger, orchestrator contract.IOrchestrator, conversations ConversationLookup, cfg Config) *Handler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		log:           log,
		orchestrator:  orchestrator,
		conversations: conversations,
		decoder:       NewDecoder(cfg.MaxContentLength),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin checks belong to the gateway in front of the relay
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.ctx.Err() != nil {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conversationID, err := domain.ParseConversationID(chi.URLParam(r, "conversationID"))
	if err != nil {
		http.Error(w, err.Error(), errors.MapToHTTPStatus(err))
		return
	}
	if _, err := h.conversations.GetConversation(conversationID); err != nil {
		h.log.Debug("Admission refused", "conversation_id", conversationID, "error", err)
		http.Error(w, err.Error(), errors.MapToHTTPStatus(err))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already answered the client
		h.log.Debug("Upgrade failed", "error", err)
		return
	}

	h.sessions.Add(1)
	defer h.sessions.Done()
	NewSession(h.log, conn, conversationID, auth.UserID(r.Context()), h.orchestrator, h.decoder, h.cfg).Run(h.ctx)
}

// Shutdown closes every open session and waits for their teardown.
func (h *Handler) Shutdown() {
	h.cancel()
	h.sessions.Wait()
}

package rest

import (
	"chat-relay/domain"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
)

const defaultSearchLimit = 20

type MessagesResponse struct {
	Messages   []MessageResponse `json:"messages"`
	NextCursor *string           `json:"next_cursor"`
}

// GetMessages handles GET /conversations/{conversationID}/messages?cursor=&limit=
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	conversationID, err := domain.ParseConversationID(chi.URLParam(r, "conversationID"))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		h.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	var cursor *string
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		cursor = &raw
	}

	messages, next, err := h.chat.GetMessages(conversationID, cursor, limit)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, MessagesResponse{
		Messages:   lo.Map(messages, func(m domain.Message, _ int) MessageResponse { return toMessageResponse(m) }),
		NextCursor: next,
	})
}

// GetMessage handles GET /messages/{messageID}
func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	messageID, err := domain.ParseMessageID(chi.URLParam(r, "messageID"))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	message, err := h.chat.GetMessage(messageID)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, toMessageResponse(message))
}

// Search handles GET /conversations/{conversationID}/search?q=&lang=&limit=
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	conversationID, err := domain.ParseConversationID(chi.URLParam(r, "conversationID"))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	terms := r.URL.Query().Get("q")
	if terms == "" {
		h.Error(w, http.StatusBadRequest, "missing query parameter q")
		return
	}
	limit, err := queryInt(r, "limit", defaultSearchLimit)
	if err != nil {
		h.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	messages, err := h.chat.Search(r.Context(), conversationID, terms, r.URL.Query().Get("lang"), limit)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, MessagesResponse{
		Messages: lo.Map(messages, func(m domain.Message, _ int) MessageResponse { return toMessageResponse(m) }),
	})
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return value, nil
}

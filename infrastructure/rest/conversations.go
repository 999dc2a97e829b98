package rest

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/services"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type CreateConversationRequest struct {
	Name      string `json:"name" validate:"required,max=100"`
	Type      string `json:"type" validate:"omitempty,oneof=private group"`
	AvatarURL string `json:"avatar_url" validate:"omitempty,url"`
	CreatedBy string `json:"created_by" validate:"max=100"`
}

type UpdateConversationRequest struct {
	Name      string `json:"name" validate:"required,max=100"`
	AvatarURL string `json:"avatar_url" validate:"omitempty,url"`
}

// CreateConversation handles POST /conversations
// The authenticated user, when there is one, is the creator.
func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var body CreateConversationRequest
	if err := h.decode(r, &body); err != nil {
		h.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	createdBy := body.CreatedBy
	if userID := auth.UserID(r.Context()); userID != "" {
		createdBy = userID
	}

	conversation, err := h.chat.CreateConversation(services.CreateConversationCommand{
		Name:      body.Name,
		Type:      domain.ConversationType(body.Type),
		AvatarURL: body.AvatarURL,
		CreatedBy: createdBy,
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, toConversationResponse(conversation))
}

// GetConversation handles GET /conversations/{conversationID}
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conversationID, err := domain.ParseConversationID(chi.URLParam(r, "conversationID"))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	conversation, err := h.chat.GetConversation(conversationID)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, toConversationResponse(conversation))
}

// UpdateConversation handles PUT /conversations/{conversationID}
func (h *Handler) UpdateConversation(w http.ResponseWriter, r *http.Request) {
	conversationID, err := domain.ParseConversationID(chi.URLParam(r, "conversationID"))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	var body UpdateConversationRequest
	if err := h.decode(r, &body); err != nil {
		h.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	conversation, err := h.chat.UpdateConversation(conversationID, body.Name, body.AvatarURL)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, toConversationResponse(conversation))
}

// DeleteConversation handles DELETE /conversations/{conversationID}
func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	conversationID, err := domain.ParseConversationID(chi.URLParam(r, "conversationID"))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if err := h.chat.DeleteConversation(r.Context(), conversationID); err != nil {
		h.Fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

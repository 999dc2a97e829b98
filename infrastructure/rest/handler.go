package rest

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	log           *slog.Logger
	chat          services.IChatService
	registry      workers.RegistryStats
	checks        map[string]func(ctx context.Context) error
	validate      *validator.Validate
	maxUploadSize int64
	startedAt     time.Time
}

func NewHandler(
	log *slog.Logger,
	chat services.IChatService,
	registry workers.RegistryStats,
	checks map[string]func(ctx context.Context) error,
	maxUploadSize int64,
) *Handler {
	return &Handler{
		log:           log,
		chat:          chat,
		registry:      registry,
		checks:        checks,
		validate:      validator.New(),
		maxUploadSize: maxUploadSize,
		startedAt:     time.Now(),
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Debug("Unable to write response", "error", err)
	}
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// Fail maps a service error to its status code.
// Internal details are logged, never returned.
func (h *Handler) Fail(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.MapToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", "path", r.URL.Path, "error", err)
		h.Error(w, status, http.StatusText(status))
		return
	}
	h.Error(w, status, err.Error())
}

func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return h.validate.Struct(dst)
}

type MessageResponse struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	Type           string    `json:"type"`
	FileURL        string    `json:"file_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type ConversationResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Type          string    `json:"type"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	CreatedBy     string    `json:"created_by,omitempty"`
	LastMessageID *string   `json:"last_message_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toMessageResponse(m domain.Message) MessageResponse {
	return MessageResponse{
		ID:             string(m.ID),
		ConversationID: string(m.ConversationID),
		SenderID:       m.SenderID,
		Content:        m.Content,
		Type:           string(m.Type),
		FileURL:        m.FileURL,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func toConversationResponse(c domain.Conversation) ConversationResponse {
	var lastMessageID *string
	if id := c.LastMessageID(); id != nil {
		s := string(*id)
		lastMessageID = &s
	}
	return ConversationResponse{
		ID:            string(c.ID),
		Name:          c.Name,
		Type:          string(c.Type),
		AvatarURL:     c.AvatarURL,
		CreatedBy:     c.CreatedBy,
		LastMessageID: lastMessageID,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

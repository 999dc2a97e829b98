package ws

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// InboundEnvelope is what a client writes on the socket.
// The conversation id defaults to the one the session is bound to.
type InboundEnvelope struct {
	Action         string `json:"action" validate:"required"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id" validate:"required_if=Action send"`
	Content        string `json:"content"`
	Type           string `json:"type" validate:"omitempty,oneof=text image file audio video"`
	FileURL        string `json:"file_url" validate:"omitempty,uri"`
	MessageID      string `json:"message_id" validate:"required_if=Action delete"`
}

// OutboundEnvelope mirrors the persisted message for send results,
// and only carries the message id for delete results.
// Error is set on a failure sent back to the originating session.
type OutboundEnvelope struct {
	Action         domain.Action `json:"action"`
	ID             string        `json:"id,omitempty"`
	ConversationID string        `json:"conversation_id"`
	SenderID       string        `json:"sender_id,omitempty"`
	Content        string        `json:"content,omitempty"`
	Type           string        `json:"type,omitempty"`
	FileURL        string        `json:"file_url,omitempty"`
	CreatedAt      *time.Time    `json:"created_at,omitempty"`
	MessageID      string        `json:"message_id,omitempty"`
	Error          string        `json:"error,omitempty"`
}

type Decoder struct {
	validate         *validator.Validate
	maxContentLength int
}

func NewDecoder(maxContentLength int) *Decoder {
	return &Decoder{validate: validator.New(), maxContentLength: maxContentLength}
}

// Decode turns one inbound frame into a command bound to conversationID.
// userID is the authenticated user, empty when authentication is disabled.
func (d *Decoder) Decode(data []byte, conversationID domain.ConversationID, userID string) (domain.Command, error) {
	var envelope InboundEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidEnvelope, err)
	}

	if envelope.ConversationID == "" {
		envelope.ConversationID = string(conversationID)
	}
	if domain.ConversationID(envelope.ConversationID) != conversationID {
		return nil, fmt.Errorf("%w: got %s", errors.ErrConversationMismatch, envelope.ConversationID)
	}

	if userID != "" && envelope.Action == string(domain.ActionSend) {
		if envelope.SenderID == "" {
			envelope.SenderID = userID
		}
		if envelope.SenderID != userID {
			return nil, fmt.Errorf("%w: got %s", errors.ErrSenderMismatch, envelope.SenderID)
		}
	}

	if err := d.validate.Struct(envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidEnvelope, err)
	}

	switch domain.Action(envelope.Action) {
	case domain.ActionSend:
		return d.toSend(envelope, conversationID)
	case domain.ActionDelete:
		messageID, err := domain.ParseMessageID(envelope.MessageID)
		if err != nil {
			return nil, err
		}
		return domain.DeleteCommand{Conversation: conversationID, MessageID: messageID}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownAction, envelope.Action)
	}
}

func (d *Decoder) toSend(envelope InboundEnvelope, conversationID domain.ConversationID) (domain.Command, error) {
	messageType, err := domain.ParseMessageType(envelope.Type)
	if err != nil {
		return nil, err
	}
	if envelope.Content == "" && envelope.FileURL == "" {
		return nil, errors.ErrEmptyMessage
	}
	if d.maxContentLength > 0 && utf8.RuneCountInString(envelope.Content) > d.maxContentLength {
		return nil, fmt.Errorf("%w: max %d characters", errors.ErrContentTooLong, d.maxContentLength)
	}
	return domain.SendCommand{
		Conversation: conversationID,
		SenderID:     envelope.SenderID,
		Content:      envelope.Content,
		Type:         messageType,
		FileURL:      envelope.FileURL,
	}, nil
}

// Encode renders an outbound event as a JSON frame.
func Encode(e event.Event) ([]byte, error) {
	switch e := e.(type) {
	case event.MessageSent:
		createdAt := e.Message.CreatedAt
		return json.Marshal(OutboundEnvelope{
			Action:         domain.ActionSend,
			ID:             string(e.Message.ID),
			ConversationID: string(e.Message.ConversationID),
			SenderID:       e.Message.SenderID,
			Content:        e.Message.Content,
			Type:           string(e.Message.Type),
			FileURL:        e.Message.FileURL,
			CreatedAt:      &createdAt,
		})
	case event.MessageDeleted:
		return json.Marshal(OutboundEnvelope{
			Action:         domain.ActionDelete,
			ConversationID: string(e.Conversation),
			MessageID:      string(e.MessageID),
		})
	case event.ActionFailed:
		return json.Marshal(OutboundEnvelope{
			Action:         e.Action,
			ConversationID: string(e.Conversation),
			MessageID:      string(e.MessageID),
			Error:          e.Reason,
		})
	default:
		return nil, fmt.Errorf("unsupported event %T", e)
	}
}

// dropReason labels a decode failure for the dropped envelopes counter.
func dropReason(err error) string {
	switch {
	case errors.Is(err, errors.ErrConversationMismatch), errors.Is(err, errors.ErrSenderMismatch):
		return "mismatch"
	default:
		return "malformed"
	}
}

package domain

import (
	"chat-relay/errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ConversationID string

type ConversationType string

const (
	PrivateConversation ConversationType = "private"
	GroupConversation   ConversationType = "group"
)

func NewConversationID() ConversationID {
	return ConversationID(uuid.NewString())
}

// ParseConversationID only checks the syntax, existence is not the engine's concern.
func ParseConversationID(raw string) (ConversationID, error) {
	if _, err := uuid.Parse(raw); err != nil {
		return "", fmt.Errorf("%w: conversation id %q", errors.ErrInvalidID, raw)
	}
	return ConversationID(raw), nil
}

func (t ConversationType) IsValid() bool {
	return t == PrivateConversation || t == GroupConversation
}

// Conversation is owned by the directory, the engine only moves its LastMessage pointer.
type Conversation struct {
	ID          ConversationID
	Name        string
	Type        ConversationType
	AvatarURL   string
	CreatedBy   string
	LastMessage *MessageRef
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (c Conversation) LastMessageID() *MessageID {
	if c.LastMessage == nil {
		return nil
	}
	id := c.LastMessage.ID
	return &id
}

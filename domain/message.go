// Package domain contains core concepts of the chat system.
// This file defines Messages and their identifiers.
// Messages are immutable once persisted, they can only be deleted.
package domain

import (
	"chat-relay/errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type MessageID string

type SessionID string

type MessageType string

const (
	TextMessage  MessageType = "text"
	ImageMessage MessageType = "image"
	FileMessage  MessageType = "file"
	AudioMessage MessageType = "audio"
	VideoMessage MessageType = "video"
)

func NewMessageID() MessageID {
	return MessageID(uuid.NewString())
}

func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

func ParseMessageID(raw string) (MessageID, error) {
	if _, err := uuid.Parse(raw); err != nil {
		return "", fmt.Errorf("%w: message id %q", errors.ErrInvalidID, raw)
	}
	return MessageID(raw), nil
}

func (t MessageType) IsValid() bool {
	switch t {
	case TextMessage, ImageMessage, FileMessage, AudioMessage, VideoMessage:
		return true
	default:
		return false
	}
}

// ParseMessageType defaults to text when raw is empty.
func ParseMessageType(raw string) (MessageType, error) {
	if raw == "" {
		return TextMessage, nil
	}
	t := MessageType(raw)
	if !t.IsValid() {
		return "", fmt.Errorf("%w: %q", errors.ErrInvalidMessageType, raw)
	}
	return t, nil
}

// Message represents an immutable chat event.
// Seq is assigned by the store and breaks ties between equal CreatedAt values.
type Message struct {
	ID             MessageID
	ConversationID ConversationID
	SenderID       string
	Content        string
	Type           MessageType
	FileURL        string
	Seq            uint64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Ref returns the ordering reference used by the conversation last-message pointer.
func (m Message) Ref() MessageRef {
	return MessageRef{ID: m.ID, CreatedAt: m.CreatedAt, Seq: m.Seq}
}

// MessageRef is a weak pointer to a message, carrying enough to compare recency.
type MessageRef struct {
	ID        MessageID
	CreatedAt time.Time
	Seq       uint64
}

// After reports whether r is strictly more recent than other.
// Creation time wins, the store sequence breaks ties.
func (r MessageRef) After(other MessageRef) bool {
	if !r.CreatedAt.Equal(other.CreatedAt) {
		return r.CreatedAt.After(other.CreatedAt)
	}
	return r.Seq > other.Seq
}

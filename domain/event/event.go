package event

import (
	"chat-relay/domain"
)

// Event is an outbound unit delivered to the sessions of one conversation.
type Event interface {
	ConversationID() domain.ConversationID
}

// MessageSent carries the fully populated persisted message.
type MessageSent struct {
	Message domain.Message
}

func (e MessageSent) ConversationID() domain.ConversationID {
	return e.Message.ConversationID
}

type MessageDeleted struct {
	Conversation domain.ConversationID
	MessageID    domain.MessageID
}

func (e MessageDeleted) ConversationID() domain.ConversationID {
	return e.Conversation
}

// ActionFailed is never broadcast, it goes back to the originating session only.
// MessageID is set when the message was stored before the failure.
type ActionFailed struct {
	Conversation domain.ConversationID
	Action       domain.Action
	Reason       string
	MessageID    domain.MessageID
}

func (e ActionFailed) ConversationID() domain.ConversationID {
	return e.Conversation
}

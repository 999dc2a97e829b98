//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is the outbound path of one session.
// Consume must not block past ctx: a full or closed sink reports it with an error.
type EventSink interface {
	ID() domain.SessionID
	Consume(ctx context.Context, e event.Event) error
	Close()
}

type IRegistry interface {
	Join(conversationID domain.ConversationID, sink EventSink)
	Leave(conversationID domain.ConversationID, sessionID domain.SessionID)
	Members(conversationID domain.ConversationID) []EventSink
}

type IDispatcher interface {
	Publish(ctx context.Context, e event.Event) error
}

type IOrchestrator interface {
	RegisterSession(conversationID domain.ConversationID, sink EventSink)
	UnregisterSession(conversationID domain.ConversationID, sessionID domain.SessionID)
	Dispatch(ctx context.Context, origin EventSink, cmd domain.Command)
	Start(ctx context.Context) error
	Stop()
}

// FileStorage is the object storage holding message attachments.
type FileStorage interface {
	Upload(ctx context.Context, filename string, data []byte) (string, error)
	Delete(ctx context.Context, fileURL string) error
}

// MessageIndex keeps a searchable copy of message contents.
type MessageIndex interface {
	Index(message domain.Message) error
	Remove(id domain.MessageID) error
	Search(ctx context.Context, conversationID domain.ConversationID, terms, lang string, limit int) ([]domain.MessageID, error)
}

// Censor rewrites forbidden words before a text message is stored.
// It also returns the words that were found.
type Censor interface {
	Censor(original string) (string, []string)
}

// SessionEvictor disconnects every live session bound to a conversation.
// It returns how many sessions were evicted.
type SessionEvictor interface {
	EvictConversation(conversationID domain.ConversationID) int
}

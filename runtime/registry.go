package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"sync"
)

var _ contract.IRegistry = (*Registry)(nil)

type Members map[domain.SessionID]contract.EventSink

// Registry maps each conversation to its live sessions.
// It owns membership only, never message or conversation data.
type Registry struct {
	mu            sync.RWMutex
	conversations map[domain.ConversationID]Members
}

func NewRegistry() *Registry {
	return &Registry{
		conversations: make(map[domain.ConversationID]Members),
	}
}

// Join adds the session sink to the conversation, creating the entry on the fly.
// Joining twice with the same session is a no-op.
func (r *Registry) Join(conversationID domain.ConversationID, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.conversations[conversationID]
	if !ok {
		members = make(Members)
		r.conversations[conversationID] = members
	}
	members[sink.ID()] = sink
}

// Leave removes the session and drops the conversation entry once it is empty,
// so that no dangling empty sets accumulate over time.
// Leaving an unknown session or conversation is a no-op (double disconnect).
func (r *Registry) Leave(conversationID domain.ConversationID, sessionID domain.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.conversations[conversationID]
	if !ok {
		return
	}
	delete(members, sessionID)
	if len(members) == 0 {
		delete(r.conversations, conversationID)
	}
}

// Members returns a point-in-time copy of the sinks of a conversation.
// Callers may iterate it freely while sessions keep joining and leaving.
// Returns nil if the conversation has no live session.
func (r *Registry) Members(conversationID domain.ConversationID) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.conversations[conversationID]
	if !ok {
		return nil
	}
	snapshot := make([]contract.EventSink, 0, len(members))
	for _, sink := range members {
		snapshot = append(snapshot, sink)
	}
	return snapshot
}

// Stats returns the number of live conversations and sessions.
func (r *Registry) Stats() (conversations int, sessions int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, members := range r.conversations {
		sessions += len(members)
	}
	return len(r.conversations), sessions
}

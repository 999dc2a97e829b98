package runtime

import (
	"chat-relay/domain"
	"chat-relay/sink"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_Join_One_Conversation_One_Session(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conversationID := domain.NewConversationID()
	s := sink.NewConnectionSink(domain.NewSessionID(), 1)

	// Given no conversation exists
	req.Empty(registry.conversations)

	// When a session joins a conversation
	registry.Join(conversationID, s)

	// Then the conversation entry is created lazily
	req.Len(registry.conversations, 1)
	req.Len(registry.Members(conversationID), 1)
	req.Contains(registry.Members(conversationID), s)
}

func TestRegistry_Join_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conversationID := domain.NewConversationID()
	s := sink.NewConnectionSink(domain.NewSessionID(), 1)

	// When the same session joins twice
	registry.Join(conversationID, s)
	registry.Join(conversationID, s)

	// Then it is only counted once
	req.Len(registry.Members(conversationID), 1)
}

func TestRegistry_Leave_Last_Session_Removes_Conversation(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conversationID := domain.NewConversationID()
	s := sink.NewConnectionSink(domain.NewSessionID(), 1)

	// Given a session joined a conversation
	registry.Join(conversationID, s)

	// When the session leaves
	registry.Leave(conversationID, s.ID())

	// Then no dangling empty entry is left
	req.Empty(registry.conversations)
	req.Nil(registry.Members(conversationID))
}

func TestRegistry_Leave_One_Of_Multiple_Sessions(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conversationID := domain.NewConversationID()
	s1 := sink.NewConnectionSink(domain.NewSessionID(), 1)
	s2 := sink.NewConnectionSink(domain.NewSessionID(), 1)

	registry.Join(conversationID, s1)
	registry.Join(conversationID, s2)

	// When one session leaves
	registry.Leave(conversationID, s1.ID())

	// Then only the other one is left
	members := registry.Members(conversationID)
	req.Len(members, 1)
	req.Contains(members, s2)
}

func TestRegistry_Leave_Unknown_Is_NoOp(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conversationID := domain.NewConversationID()
	s := sink.NewConnectionSink(domain.NewSessionID(), 1)
	registry.Join(conversationID, s)

	// When leaving twice or leaving an unknown conversation
	registry.Leave(conversationID, s.ID())
	registry.Leave(conversationID, s.ID())
	registry.Leave(domain.NewConversationID(), domain.NewSessionID())

	// Then nothing breaks
	req.Empty(registry.conversations)
}

func TestRegistry_Members_Is_A_Snapshot(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conversationID := domain.NewConversationID()
	s1 := sink.NewConnectionSink(domain.NewSessionID(), 1)
	s2 := sink.NewConnectionSink(domain.NewSessionID(), 1)
	registry.Join(conversationID, s1)
	registry.Join(conversationID, s2)

	// Given a snapshot taken before a session leaves
	snapshot := registry.Members(conversationID)
	registry.Leave(conversationID, s1.ID())

	// Then the snapshot is not mutated
	req.Len(snapshot, 2)
	req.Len(registry.Members(conversationID), 1)
}

func TestRegistry_Members_Are_Isolated_Per_Conversation(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	c1, c2 := domain.NewConversationID(), domain.NewConversationID()
	s1 := sink.NewConnectionSink(domain.NewSessionID(), 1)
	s2 := sink.NewConnectionSink(domain.NewSessionID(), 1)

	registry.Join(c1, s1)
	registry.Join(c2, s2)

	req.Equal(1, len(registry.Members(c1)))
	req.Contains(registry.Members(c1), s1)
	req.NotContains(registry.Members(c1), s2)

	conversations, sessions := registry.Stats()
	req.Equal(2, conversations)
	req.Equal(2, sessions)
}

func TestRegistry_Concurrent_Join_Leave_Members(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conversationID := domain.NewConversationID()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		s := sink.NewConnectionSink(domain.NewSessionID(), 1)
		go func() {
			defer wg.Done()
			registry.Join(conversationID, s)
			registry.Leave(conversationID, s.ID())
		}()
		go func() {
			defer wg.Done()
			for _, member := range registry.Members(conversationID) {
				_ = member.ID()
			}
		}()
	}
	wg.Wait()

	// Then every session left and the entry is gone
	req.Nil(registry.Members(conversationID))
}

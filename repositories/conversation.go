//go:generate go run go.uber.org/mock/mockgen -source=conversation.go -destination=../mocks/mock_conversation_repository.go -package=mocks
package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const maxConflictRetries = 64

type IConversationRepository interface {
	CreateConversation(conversation domain.Conversation) error
	GetConversation(id domain.ConversationID) (domain.Conversation, error)
	UpdateConversation(id domain.ConversationID, name, avatarURL string, at time.Time) (domain.Conversation, error)
	DeleteConversation(id domain.ConversationID) error
	AdvanceLastMessage(id domain.ConversationID, ref domain.MessageRef, at time.Time) error
	ReplaceLastMessage(id domain.ConversationID, deletedID domain.MessageID, ref *domain.MessageRef, at time.Time) error
}

// ConversationRepository is the conversation directory.
// Summaries live under "conversation:{id}".
type ConversationRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewConversationRepository(db *badger.DB, log *slog.Logger) ConversationRepository {
	return ConversationRepository{db: db, log: log}
}

func (c ConversationRepository) CreateConversation(conversation domain.Conversation) error {
	return c.db.Update(func(txn *badger.Txn) error {
		key := conversationKey(conversation.ID)
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("%w: %s", errors.ErrConversationExists, conversation.ID)
		}
		return txn.Set(key, marshalConversation(conversation))
	})
}

func (c ConversationRepository) GetConversation(id domain.ConversationID) (domain.Conversation, error) {
	var conversation domain.Conversation
	err := c.db.View(func(txn *badger.Txn) error {
		found, err := getConversation(txn, id)
		conversation = found
		return err
	})
	return conversation, err
}

func (c ConversationRepository) UpdateConversation(id domain.ConversationID, name, avatarURL string, at time.Time) (domain.Conversation, error) {
	var updated domain.Conversation
	err := c.update(id, func(_ *badger.Txn, conversation *domain.Conversation) error {
		conversation.Name = name
		conversation.AvatarURL = avatarURL
		conversation.UpdatedAt = at
		updated = *conversation
		return nil
	})
	return updated, err
}

func (c ConversationRepository) DeleteConversation(id domain.ConversationID) error {
	return c.db.Update(func(txn *badger.Txn) error {
		if _, err := getConversation(txn, id); err != nil {
			return err
		}
		return txn.Delete(conversationKey(id))
	})
}

// AdvanceLastMessage moves the pointer to ref unless the pointer already
// references a more recent message. Concurrent sends may complete persistence
// in any order, the pointer never goes backwards.
func (c ConversationRepository) AdvanceLastMessage(id domain.ConversationID, ref domain.MessageRef, at time.Time) error {
	return c.update(id, func(_ *badger.Txn, conversation *domain.Conversation) error {
		if conversation.LastMessage == nil || ref.After(*conversation.LastMessage) {
			conversation.LastMessage = &ref
		}
		conversation.UpdatedAt = at
		return nil
	})
}

// ReplaceLastMessage recomputes the pointer after deletedID was removed.
// ref is the latest remaining message as seen by the caller, nil when none remains.
// A pointer moved by a send newer than ref in the meantime is kept.
// The chosen pointer is checked against the store in the same transaction:
// when a concurrent delete already removed it, the timeline is read again.
func (c ConversationRepository) ReplaceLastMessage(id domain.ConversationID, deletedID domain.MessageID, ref *domain.MessageRef, at time.Time) error {
	return c.update(id, func(txn *badger.Txn, conversation *domain.Conversation) error {
		current := conversation.LastMessage
		switch {
		case current == nil, current.ID == deletedID:
			conversation.LastMessage = ref
		case ref != nil && ref.After(*current):
			conversation.LastMessage = ref
		}
		conversation.UpdatedAt = at

		if conversation.LastMessage == nil {
			return nil
		}
		_, err := txn.Get(messageKey(conversation.LastMessage.ID))
		if err == nil {
			return nil
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		latest, err := latestMessage(txn, id)
		if err != nil {
			return err
		}
		conversation.LastMessage = nil
		if latest != nil {
			r := latest.Ref()
			conversation.LastMessage = &r
		}
		return nil
	})
}

// update runs a read-modify-write in a single transaction.
// Badger detects concurrent writers of any key read here at commit time, the loser is replayed.
func (c ConversationRepository) update(id domain.ConversationID, mutate func(txn *badger.Txn, conversation *domain.Conversation) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = c.db.Update(func(txn *badger.Txn) error {
			conversation, err := getConversation(txn, id)
			if err != nil {
				return err
			}
			if err := mutate(txn, &conversation); err != nil {
				return err
			}
			return txn.Set(conversationKey(id), marshalConversation(conversation))
		})
		if err != badger.ErrConflict {
			return err
		}
		c.log.Debug("Conversation update conflict, retrying", "conversation_id", id, "attempt", attempt+1)
	}
	return err
}

func getConversation(txn *badger.Txn, id domain.ConversationID) (domain.Conversation, error) {
	item, err := txn.Get(conversationKey(id))
	if err == badger.ErrKeyNotFound {
		return domain.Conversation{}, fmt.Errorf("%w: %s", errors.ErrConversationNotFound, id)
	}
	if err != nil {
		return domain.Conversation{}, err
	}
	var conversation domain.Conversation
	err = item.Value(func(value []byte) error {
		conversation, err = unmarshalConversation(value)
		return err
	})
	return conversation, err
}

func conversationKey(id domain.ConversationID) []byte {
	return []byte("conversation:" + string(id))
}

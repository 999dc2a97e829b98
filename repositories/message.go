//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

const (
	messageSequenceKey = "sequence:messages"
	sequenceBandwidth  = 1000
	// maxPageSize bounds a history page when LIMIT_MESSAGES is not set
	maxPageSize = 500
)

type IMessageRepository interface {
	NextSeq() (uint64, error)
	StoreMessage(message domain.Message) error
	GetMessage(id domain.MessageID) (domain.Message, error)
	DeleteMessage(id domain.MessageID) error
	LatestMessage(conversationID domain.ConversationID) (*domain.Message, error)
	GetMessages(conversationID domain.ConversationID, cursor *string, limit int) ([]domain.Message, *string, error)
	DeleteConversationMessages(conversationID domain.ConversationID) ([]domain.Message, error)
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	seq           *badger.Sequence
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) (*MessageRepository, error) {
	seq, err := db.GetSequence([]byte(messageSequenceKey), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("unable to lease message sequence: %w", err)
	}
	return &MessageRepository{db: db, log: log, seq: seq, limitMessages: limitMessages}, nil
}

// Close gives back the unused part of the leased sequence range.
func (m *MessageRepository) Close() error {
	return m.seq.Release()
}

// NextSeq returns a process-wide monotonic number used to order messages
// created within the same nanosecond.
func (m *MessageRepository) NextSeq() (uint64, error) {
	return m.seq.Next()
}

// StoreMessage persists a message in BadgerDB under two keys written in one transaction:
//   - "message:{id}" for lookups by identifier
//   - "conversation:{cid}:messages:{nanos19}:{seq20}:{id}" for ordered scans
//
// The zero padding keeps the lexicographical order of keys equal to (created_at, seq).
func (m *MessageRepository) StoreMessage(message domain.Message) error {
	bytes := marshalMessage(message)
	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(messageKey(message.ID), bytes); err != nil {
			return err
		}
		return txn.Set(timelineKey(message), bytes)
	})
}

func (m *MessageRepository) GetMessage(id domain.MessageID) (domain.Message, error) {
	var message domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		found, err := getMessage(txn, id)
		message = found
		return err
	})
	return message, err
}

// DeleteMessage removes both keys of the message atomically.
func (m *MessageRepository) DeleteMessage(id domain.MessageID) error {
	return m.db.Update(func(txn *badger.Txn) error {
		message, err := getMessage(txn, id)
		if err != nil {
			return err
		}
		if err = txn.Delete(messageKey(id)); err != nil {
			return err
		}
		return txn.Delete(timelineKey(message))
	})
}

// pageSize clamps a requested page size to LIMIT_MESSAGES, or to maxPageSize without it.
// A missing or non positive limit asks for the largest page.
func (m *MessageRepository) pageSize(limit int) int {
	largest := maxPageSize
	if m.limitMessages != nil && *m.limitMessages > 0 {
		largest = *m.limitMessages
	}
	if limit <= 0 || limit > largest {
		return largest
	}
	return limit
}

// LatestMessage seeks to the end of the conversation timeline.
// Returns nil when the conversation has no message left.
func (m *MessageRepository) LatestMessage(conversationID domain.ConversationID) (*domain.Message, error) {
	var latest *domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		found, err := latestMessage(txn, conversationID)
		latest = found
		return err
	})
	if err != nil {
		return nil, err
	}
	return latest, nil
}

func latestMessage(txn *badger.Txn, conversationID domain.ConversationID) (*domain.Message, error) {
	prefix := timelinePrefix(conversationID)
	options := badger.DefaultIteratorOptions
	options.Reverse = true
	options.PrefetchSize = 1
	it := txn.NewIterator(options)
	defer it.Close()

	// 0xFF sorts after every digit, so the seek lands on the last key of the prefix
	it.Seek(append(prefix, 0xFF))
	if !it.ValidForPrefix(prefix) {
		return nil, nil
	}
	var latest *domain.Message
	err := it.Item().Value(func(value []byte) error {
		message, err := unmarshalMessage(value)
		if err != nil {
			return err
		}
		latest = &message
		return nil
	})
	return latest, err
}

// GetMessages scans a conversation in ascending creation order.
// The cursor is the timeline suffix of the last message of the previous page,
// a nil returned cursor means there is nothing more to read.
// A non positive limit falls back to the configured limitMessages.
func (m *MessageRepository) GetMessages(conversationID domain.ConversationID, cursor *string, limit int) ([]domain.Message, *string, error) {
	limit = m.pageSize(limit)
	var messages []domain.Message
	var nextCursor *string
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := timelinePrefix(conversationID)
		prefixLen := len(prefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		seekKey := prefix
		if cursor != nil {
			seekKey = append(prefix, []byte(*cursor)...)
		}
		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()[prefixLen:]) == *cursor {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(messages) == limit {
				m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", limit))
				last := string(timelineSuffix(messages[len(messages)-1]))
				nextCursor = &last
				break
			}
			err := it.Item().Value(func(value []byte) error {
				message, err := unmarshalMessage(value)
				if err != nil {
					return err
				}
				messages = append(messages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return messages, nextCursor, nil
}

// DeleteConversationMessages removes every message of a conversation and returns them,
// so that attached files and search entries can be cleaned up by the caller.
func (m *MessageRepository) DeleteConversationMessages(conversationID domain.ConversationID) ([]domain.Message, error) {
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := timelinePrefix(conversationID)
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				message, err := unmarshalMessage(value)
				if err != nil {
					return err
				}
				messages = append(messages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	wb := m.db.NewWriteBatch()
	defer wb.Cancel()
	for _, message := range messages {
		if err = wb.Delete(messageKey(message.ID)); err != nil {
			return nil, err
		}
		if err = wb.Delete(timelineKey(message)); err != nil {
			return nil, err
		}
	}
	if err = wb.Flush(); err != nil {
		return nil, err
	}
	m.log.Debug("Conversation messages deleted", "conversation_id", conversationID, "count", len(messages))
	return messages, nil
}

func getMessage(txn *badger.Txn, id domain.MessageID) (domain.Message, error) {
	item, err := txn.Get(messageKey(id))
	if err == badger.ErrKeyNotFound {
		return domain.Message{}, fmt.Errorf("%w: %s", errors.ErrMessageNotFound, id)
	}
	if err != nil {
		return domain.Message{}, err
	}
	var message domain.Message
	err = item.Value(func(value []byte) error {
		message, err = unmarshalMessage(value)
		return err
	})
	return message, err
}

func messageKey(id domain.MessageID) []byte {
	return []byte("message:" + string(id))
}

func timelinePrefix(conversationID domain.ConversationID) []byte {
	return []byte(fmt.Sprintf("conversation:%s:messages:", conversationID))
}

func timelineKey(message domain.Message) []byte {
	return append(timelinePrefix(message.ConversationID), timelineSuffix(message)...)
}

func timelineSuffix(message domain.Message) []byte {
	return []byte(fmt.Sprintf("%019d:%020d:%s", message.CreatedAt.UnixNano(), message.Seq, message.ID))
}

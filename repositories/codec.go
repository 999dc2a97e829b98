package repositories

import (
	"chat-relay/domain"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Records are stored in the protobuf wire format, field numbers below are frozen.
// Zero values are omitted like proto3 does.
const (
	messageID             protowire.Number = 1
	messageConversationID protowire.Number = 2
	messageSenderID       protowire.Number = 3
	messageContent        protowire.Number = 4
	messageType           protowire.Number = 5
	messageFileURL        protowire.Number = 6
	messageSeq            protowire.Number = 7
	messageCreatedAt      protowire.Number = 8
	messageUpdatedAt      protowire.Number = 9
)

const (
	conversationID            protowire.Number = 1
	conversationName          protowire.Number = 2
	conversationType          protowire.Number = 3
	conversationAvatarURL     protowire.Number = 4
	conversationCreatedBy     protowire.Number = 5
	conversationLastMessageID protowire.Number = 6
	conversationLastCreatedAt protowire.Number = 7
	conversationLastSeq       protowire.Number = 8
	conversationCreatedAt     protowire.Number = 9
	conversationUpdatedAt     protowire.Number = 10
)

func marshalMessage(m domain.Message) []byte {
	var b []byte
	b = appendString(b, messageID, string(m.ID))
	b = appendString(b, messageConversationID, string(m.ConversationID))
	b = appendString(b, messageSenderID, m.SenderID)
	b = appendString(b, messageContent, m.Content)
	b = appendString(b, messageType, string(m.Type))
	b = appendString(b, messageFileURL, m.FileURL)
	b = appendVarint(b, messageSeq, m.Seq)
	b = appendTime(b, messageCreatedAt, m.CreatedAt)
	b = appendTime(b, messageUpdatedAt, m.UpdatedAt)
	return b
}

func unmarshalMessage(b []byte) (domain.Message, error) {
	var m domain.Message
	err := walkFields(b, func(num protowire.Number, s string, v uint64) {
		switch num {
		case messageID:
			m.ID = domain.MessageID(s)
		case messageConversationID:
			m.ConversationID = domain.ConversationID(s)
		case messageSenderID:
			m.SenderID = s
		case messageContent:
			m.Content = s
		case messageType:
			m.Type = domain.MessageType(s)
		case messageFileURL:
			m.FileURL = s
		case messageSeq:
			m.Seq = v
		case messageCreatedAt:
			m.CreatedAt = toTime(v)
		case messageUpdatedAt:
			m.UpdatedAt = toTime(v)
		}
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("unable to decode message: %w", err)
	}
	return m, nil
}

func marshalConversation(c domain.Conversation) []byte {
	var b []byte
	b = appendString(b, conversationID, string(c.ID))
	b = appendString(b, conversationName, c.Name)
	b = appendString(b, conversationType, string(c.Type))
	b = appendString(b, conversationAvatarURL, c.AvatarURL)
	b = appendString(b, conversationCreatedBy, c.CreatedBy)
	if c.LastMessage != nil {
		b = appendString(b, conversationLastMessageID, string(c.LastMessage.ID))
		b = appendTime(b, conversationLastCreatedAt, c.LastMessage.CreatedAt)
		b = appendVarint(b, conversationLastSeq, c.LastMessage.Seq)
	}
	b = appendTime(b, conversationCreatedAt, c.CreatedAt)
	b = appendTime(b, conversationUpdatedAt, c.UpdatedAt)
	return b
}

func unmarshalConversation(b []byte) (domain.Conversation, error) {
	var c domain.Conversation
	var last domain.MessageRef
	err := walkFields(b, func(num protowire.Number, s string, v uint64) {
		switch num {
		case conversationID:
			c.ID = domain.ConversationID(s)
		case conversationName:
			c.Name = s
		case conversationType:
			c.Type = domain.ConversationType(s)
		case conversationAvatarURL:
			c.AvatarURL = s
		case conversationCreatedBy:
			c.CreatedBy = s
		case conversationLastMessageID:
			last.ID = domain.MessageID(s)
		case conversationLastCreatedAt:
			last.CreatedAt = toTime(v)
		case conversationLastSeq:
			last.Seq = v
		case conversationCreatedAt:
			c.CreatedAt = toTime(v)
		case conversationUpdatedAt:
			c.UpdatedAt = toTime(v)
		}
	})
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("unable to decode conversation: %w", err)
	}
	if last.ID != "" {
		c.LastMessage = &last
	}
	return c, nil
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendTime(b []byte, num protowire.Number, t time.Time) []byte {
	if t.IsZero() {
		return b
	}
	return appendVarint(b, num, uint64(t.UnixNano()))
}

func toTime(v uint64) time.Time {
	return time.Unix(0, int64(v)).UTC()
}

// walkFields visits every string and varint field, unknown wire types are skipped.
func walkFields(b []byte, visit func(num protowire.Number, s string, v uint64)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch typ {
		case protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			visit(num, s, 0)
			b = b[n:]
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			visit(num, "", v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

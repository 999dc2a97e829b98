package repositories

import (
	"fmt"
	"strings"
)

// Describe renders a raw badger entry for the debug inspector.
// Unknown keys come back as "RAW" with their size.
func Describe(key string, value []byte) (kind, detail string) {
	switch {
	case strings.HasPrefix(key, "message:"), strings.Contains(key, ":messages:"):
		message, err := unmarshalMessage(value)
		if err != nil {
			return "MESSAGE", "unmarshal failed"
		}
		return "MESSAGE", fmt.Sprintf("%s %s: %s", message.Type, message.SenderID, message.Content)
	case strings.HasPrefix(key, "conversation:"):
		conversation, err := unmarshalConversation(value)
		if err != nil {
			return "CONVERSATION", "unmarshal failed"
		}
		last := "none"
		if id := conversation.LastMessageID(); id != nil {
			last = string(*id)
		}
		return "CONVERSATION", fmt.Sprintf("%s (%s) last=%s", conversation.Name, conversation.Type, last)
	case key == messageSequenceKey:
		return "SEQUENCE", fmt.Sprintf("%d bytes", len(value))
	}
	return "RAW", fmt.Sprintf("%d bytes", len(value))
}

package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/repositories"
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	outcomeOK      = "ok"
	outcomeFailed  = "failed"
	outcomeIgnored = "ignored"
)

// Coordinator turns a decoded command into store writes, a directory update
// and one broadcast event. Failures never reach the other members: they are
// reported to the originating session only.
type Coordinator struct {
	log           *slog.Logger
	messages      repositories.IMessageRepository
	conversations repositories.IConversationRepository
	dispatcher    contract.IDispatcher
	files         contract.FileStorage
	index         contract.MessageIndex
	censor        contract.Censor
	now           func() time.Time
}

// NewCoordinator wires the coordinator. index and censor may be nil.
func NewCoordinator(
	log *slog.Logger,
	messages repositories.IMessageRepository,
	conversations repositories.IConversationRepository,
	dispatcher contract.IDispatcher,
	files contract.FileStorage,
	index contract.MessageIndex,
	censor contract.Censor,
) *Coordinator {
	return &Coordinator{
		log:           log,
		messages:      messages,
		conversations: conversations,
		dispatcher:    dispatcher,
		files:         files,
		index:         index,
		censor:        censor,
		now:           time.Now,
	}
}

// Handle runs one command to completion. It never returns an error:
// a failure is sent back to origin as an ActionFailed event.
func (c *Coordinator) Handle(ctx context.Context, origin contract.EventSink, cmd domain.Command) {
	switch cmd := cmd.(type) {
	case domain.SendCommand:
		message, err := c.Send(ctx, cmd)
		if err != nil {
			c.fail(ctx, origin, cmd, message.ID, err)
			return
		}
		observability.ActionsHandled.WithLabelValues(string(domain.ActionSend), outcomeOK).Inc()
	case domain.DeleteCommand:
		deleted, err := c.Delete(ctx, cmd)
		if err != nil {
			c.fail(ctx, origin, cmd, cmd.MessageID, err)
			return
		}
		outcome := outcomeOK
		if !deleted {
			outcome = outcomeIgnored
		}
		observability.ActionsHandled.WithLabelValues(string(domain.ActionDelete), outcome).Inc()
	default:
		c.log.Error("Unsupported command", "type", fmt.Sprintf("%T", cmd))
	}
}

// Send checks the conversation still exists, stores a new message, moves the
// conversation pointer forward and publishes MessageSent. Only text content is censored.
// The returned message carries its id as soon as it is stored, even when a later
// step fails, unless the conversation was deleted meanwhile and the message removed again.
func (c *Coordinator) Send(ctx context.Context, cmd domain.SendCommand) (domain.Message, error) {
	// A session may outlive its conversation until it is evicted
	if _, err := c.conversations.GetConversation(cmd.Conversation); err != nil {
		if errors.Is(err, errors.ErrConversationNotFound) {
			return domain.Message{}, err
		}
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrDirectoryFailed, err)
	}

	content := cmd.Content
	if c.censor != nil && cmd.Type == domain.TextMessage && content != "" {
		censored, words := c.censor.Censor(content)
		if len(words) > 0 {
			c.log.Info("Message content censored",
				"conversation_id", cmd.Conversation,
				"sender_id", cmd.SenderID,
				"count", len(words))
		}
		content = censored
	}

	seq, err := c.messages.NextSeq()
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreFailed, err)
	}

	now := c.now().UTC()
	message := domain.Message{
		ID:             domain.NewMessageID(),
		ConversationID: cmd.Conversation,
		SenderID:       cmd.SenderID,
		Content:        content,
		Type:           cmd.Type,
		FileURL:        cmd.FileURL,
		Seq:            seq,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := timed("store_message", func() error { return c.messages.StoreMessage(message) }); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreFailed, err)
	}

	err = timed("advance_last_message", func() error {
		return c.conversations.AdvanceLastMessage(message.ConversationID, message.Ref(), now)
	})
	if errors.Is(err, errors.ErrConversationNotFound) {
		// Deleted since the check above, the message must not outlive it
		if err := c.messages.DeleteMessage(message.ID); err != nil {
			c.log.Warn("Unable to remove message of a deleted conversation", "message_id", message.ID, "error", err)
		}
		return domain.Message{}, err
	}
	if err != nil {
		return message, fmt.Errorf("%w: %v", errors.ErrDirectoryFailed, err)
	}

	if err := c.dispatcher.Publish(ctx, event.MessageSent{Message: message}); err != nil {
		return message, fmt.Errorf("%w: %v", errors.ErrPublishFailed, err)
	}

	if c.index != nil {
		if err := c.index.Index(message); err != nil {
			c.log.Warn("Unable to index message", "message_id", message.ID, "error", err)
		}
	}

	return message, nil
}

// Delete removes a message of the command's conversation.
// An unknown id, or one belonging to another conversation, is ignored and reports false.
func (c *Coordinator) Delete(ctx context.Context, cmd domain.DeleteCommand) (bool, error) {
	message, err := c.messages.GetMessage(cmd.MessageID)
	if errors.Is(err, errors.ErrMessageNotFound) {
		c.log.Debug("Delete of unknown message ignored", "message_id", cmd.MessageID)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", errors.ErrStoreFailed, err)
	}
	if message.ConversationID != cmd.Conversation {
		c.log.Warn("Delete of a message from another conversation ignored",
			"message_id", cmd.MessageID,
			"conversation_id", cmd.Conversation,
			"owner_conversation_id", message.ConversationID)
		return false, nil
	}

	// The attachment goes first, a leftover file is better than a dangling URL
	if message.FileURL != "" {
		if err := c.files.Delete(ctx, message.FileURL); err != nil {
			c.log.Warn("Unable to delete attachment", "message_id", message.ID, "file_url", message.FileURL, "error", err)
		}
	}

	err = timed("delete_message", func() error { return c.messages.DeleteMessage(message.ID) })
	if errors.Is(err, errors.ErrMessageNotFound) {
		// Another session won the race
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", errors.ErrStoreFailed, err)
	}

	if c.index != nil {
		if err := c.index.Remove(message.ID); err != nil {
			c.log.Warn("Unable to remove message from index", "message_id", message.ID, "error", err)
		}
	}

	latest, err := c.messages.LatestMessage(message.ConversationID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", errors.ErrDirectoryFailed, err)
	}
	var ref *domain.MessageRef
	if latest != nil {
		r := latest.Ref()
		ref = &r
	}

	err = timed("replace_last_message", func() error {
		return c.conversations.ReplaceLastMessage(message.ConversationID, message.ID, ref, c.now().UTC())
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", errors.ErrDirectoryFailed, err)
	}

	deleted := event.MessageDeleted{Conversation: message.ConversationID, MessageID: message.ID}
	if err := c.dispatcher.Publish(ctx, deleted); err != nil {
		return false, fmt.Errorf("%w: %v", errors.ErrPublishFailed, err)
	}
	return true, nil
}

func (c *Coordinator) fail(ctx context.Context, origin contract.EventSink, cmd domain.Command, messageID domain.MessageID, cause error) {
	observability.ActionsHandled.WithLabelValues(string(cmd.Action()), outcomeFailed).Inc()
	c.log.Error("Action failed",
		"action", cmd.Action(),
		"conversation_id", cmd.ConversationID(),
		"message_id", messageID,
		"error", cause)

	if origin == nil {
		return
	}
	failure := event.ActionFailed{
		Conversation: cmd.ConversationID(),
		Action:       cmd.Action(),
		Reason:       failureReason(cause),
		MessageID:    messageID,
	}
	if err := origin.Consume(ctx, failure); err != nil {
		c.log.Debug("Unable to notify origin", "session_id", origin.ID(), "error", err)
	}
}

// failureReason keeps internal details out of what clients see.
func failureReason(err error) string {
	switch {
	case errors.Is(err, errors.ErrConversationNotFound):
		return "conversation not found"
	case errors.Is(err, errors.ErrStoreFailed):
		return "message store unavailable"
	case errors.Is(err, errors.ErrDirectoryFailed):
		return "conversation update failed"
	case errors.Is(err, errors.ErrPublishFailed):
		return "broadcast unavailable"
	default:
		return "internal error"
	}
}

func timed(operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	observability.StoreLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	return err
}

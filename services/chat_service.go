package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
	"chat-relay/storage"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"
)

// IChatService is the request/response side of the relay: history, directory
// CRUD, search and uploads. Live traffic goes through the orchestrator.
type IChatService interface {
	GetMessages(conversationID domain.ConversationID, cursor *string, limit int) ([]domain.Message, *string, error)
	GetMessage(id domain.MessageID) (domain.Message, error)
	Search(ctx context.Context, conversationID domain.ConversationID, terms, lang string, limit int) ([]domain.Message, error)
	CreateConversation(cmd CreateConversationCommand) (domain.Conversation, error)
	GetConversation(id domain.ConversationID) (domain.Conversation, error)
	UpdateConversation(id domain.ConversationID, name, avatarURL string) (domain.Conversation, error)
	DeleteConversation(ctx context.Context, id domain.ConversationID) error
	Upload(ctx context.Context, filename string, data []byte) (Upload, error)
}

type CreateConversationCommand struct {
	Name      string
	Type      domain.ConversationType
	AvatarURL string
	CreatedBy string
}

type Upload struct {
	URL  string
	Type domain.MessageType
	MIME string
}

type ChatService struct {
	log           *slog.Logger
	messages      repositories.IMessageRepository
	conversations repositories.IConversationRepository
	files         contract.FileStorage
	index         contract.MessageIndex
	evictor       contract.SessionEvictor
	maxUploadSize int64
}

// NewChatService wires the service. index may be nil, search is then disabled.
// evictor may be nil when no live session can be bound to a conversation.
func NewChatService(
	log *slog.Logger,
	messages repositories.IMessageRepository,
	conversations repositories.IConversationRepository,
	files contract.FileStorage,
	index contract.MessageIndex,
	evictor contract.SessionEvictor,
	maxUploadSize int64,
) *ChatService {
	return &ChatService{
		log:           log,
		messages:      messages,
		conversations: conversations,
		files:         files,
		index:         index,
		evictor:       evictor,
		maxUploadSize: maxUploadSize,
	}
}

// GetMessages lists a conversation in ascending creation order.
func (s *ChatService) GetMessages(conversationID domain.ConversationID, cursor *string, limit int) ([]domain.Message, *string, error) {
	if _, err := s.conversations.GetConversation(conversationID); err != nil {
		return nil, nil, err
	}
	return s.messages.GetMessages(conversationID, cursor, limit)
}

func (s *ChatService) GetMessage(id domain.MessageID) (domain.Message, error) {
	return s.messages.GetMessage(id)
}

// Search resolves index hits against the store.
// A hit deleted in the meantime is skipped.
func (s *ChatService) Search(ctx context.Context, conversationID domain.ConversationID, terms, lang string, limit int) ([]domain.Message, error) {
	if s.index == nil {
		return nil, errors.ErrSearchDisabled
	}
	ids, err := s.index.Search(ctx, conversationID, terms, lang, limit)
	if err != nil {
		return nil, fmt.Errorf("unable to search %s: %w", conversationID, err)
	}

	messages := make([]domain.Message, 0, len(ids))
	for _, id := range ids {
		message, err := s.messages.GetMessage(id)
		if errors.Is(err, errors.ErrMessageNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	return messages, nil
}

func (s *ChatService) CreateConversation(cmd CreateConversationCommand) (domain.Conversation, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return domain.Conversation{}, fmt.Errorf("%w: name is required", errors.ErrInvalidConversation)
	}
	conversationType := lo.Ternary(cmd.Type == "", domain.GroupConversation, cmd.Type)
	if !conversationType.IsValid() {
		return domain.Conversation{}, fmt.Errorf("%w: type %q", errors.ErrInvalidConversation, cmd.Type)
	}

	now := time.Now().UTC()
	conversation := domain.Conversation{
		ID:        domain.NewConversationID(),
		Name:      name,
		Type:      conversationType,
		AvatarURL: cmd.AvatarURL,
		CreatedBy: cmd.CreatedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.conversations.CreateConversation(conversation); err != nil {
		return domain.Conversation{}, err
	}
	return conversation, nil
}

func (s *ChatService) GetConversation(id domain.ConversationID) (domain.Conversation, error) {
	return s.conversations.GetConversation(id)
}

func (s *ChatService) UpdateConversation(id domain.ConversationID, name, avatarURL string) (domain.Conversation, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Conversation{}, fmt.Errorf("%w: name is required", errors.ErrInvalidConversation)
	}
	return s.conversations.UpdateConversation(id, strings.TrimSpace(name), avatarURL, time.Now().UTC())
}

// DeleteConversation removes the conversation and everything it owns.
// The directory entry goes first so that no send can store under it anymore,
// then live sessions are evicted and messages removed.
// Attachments and index entries are cleaned up best effort.
func (s *ChatService) DeleteConversation(ctx context.Context, id domain.ConversationID) error {
	if err := s.conversations.DeleteConversation(id); err != nil {
		return err
	}
	if s.evictor != nil {
		s.evictor.EvictConversation(id)
	}

	deleted, err := s.messages.DeleteConversationMessages(id)
	if err != nil {
		return fmt.Errorf("unable to delete messages of %s: %w", id, err)
	}
	for _, message := range deleted {
		if message.FileURL != "" {
			if err := s.files.Delete(ctx, message.FileURL); err != nil {
				s.log.Warn("Unable to delete attachment", "message_id", message.ID, "error", err)
			}
		}
		if s.index != nil {
			if err := s.index.Remove(message.ID); err != nil {
				s.log.Warn("Unable to remove message from index", "message_id", message.ID, "error", err)
			}
		}
	}

	s.log.Info("Conversation deleted", "conversation_id", id, "messages", len(deleted))
	return nil
}

// Upload stores an attachment and tells which message type it should be sent as.
func (s *ChatService) Upload(ctx context.Context, filename string, data []byte) (Upload, error) {
	if s.maxUploadSize > 0 && int64(len(data)) > s.maxUploadSize {
		return Upload{}, fmt.Errorf("%w: %d bytes, max %d", errors.ErrFileTooLarge, len(data), s.maxUploadSize)
	}
	messageType, mime := storage.DetectMessageType(data)
	url, err := s.files.Upload(ctx, filename, data)
	if err != nil {
		return Upload{}, err
	}
	return Upload{URL: url, Type: messageType, MIME: mime}, nil
}

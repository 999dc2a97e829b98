package repositories

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/abadojack/whatlanggo"
	"github.com/blugelabs/bluge"
)

const (
	fieldID             = "_id"
	fieldConversationID = "conversation_id"
	fieldContent        = "content"
	fieldLang           = "lang"
	fieldSenderID       = "sender_id"
	defaultSearchLimit  = 20
	maxSearchLimit      = 100
)

var _ contract.MessageIndex = (*SearchIndex)(nil)

// SearchIndex keeps a full text copy of text messages in bluge.
// Documents are keyed by message id and tagged with the detected language.
type SearchIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewSearchIndex(writer *bluge.Writer, log *slog.Logger) *SearchIndex {
	return &SearchIndex{writer: writer, log: log}
}

// Index is a no-op for messages without text content.
func (s *SearchIndex) Index(message domain.Message) error {
	if strings.TrimSpace(message.Content) == "" {
		return nil
	}
	lang := DetectLang(message.Content)

	doc := bluge.NewDocument(string(message.ID))
	doc.AddField(bluge.NewKeywordField(fieldConversationID, string(message.ConversationID)))
	doc.AddField(bluge.NewKeywordField(fieldSenderID, message.SenderID).StoreValue())
	doc.AddField(bluge.NewTextField(fieldContent, message.Content))
	if lang != "" {
		doc.AddField(bluge.NewKeywordField(fieldLang, lang))
	}
	if err := s.writer.Update(doc.ID(), doc); err != nil {
		return fmt.Errorf("unable to index message %s: %w", message.ID, err)
	}
	return nil
}

func (s *SearchIndex) Remove(id domain.MessageID) error {
	if err := s.writer.Delete(bluge.Identifier(id)); err != nil {
		return fmt.Errorf("unable to remove message %s from index: %w", id, err)
	}
	return nil
}

// Search returns the ids of the best matching messages of one conversation.
// lang is an optional ISO 639-1 filter.
func (s *SearchIndex) Search(ctx context.Context, conversationID domain.ConversationID, terms, lang string, limit int) ([]domain.MessageID, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	limit = min(limit, maxSearchLimit)
	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(string(conversationID)).SetField(fieldConversationID)).
		AddMust(bluge.NewMatchQuery(terms).SetField(fieldContent))
	if lang != "" {
		query.AddMust(bluge.NewTermQuery(strings.ToLower(lang)).SetField(fieldLang))
	}

	reader, err := s.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("unable to open index reader: %w", err)
	}
	defer func() { _ = reader.Close() }()

	matches, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	var ids []domain.MessageID
	match, err := matches.Next()
	for err == nil && match != nil {
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			if field == fieldID {
				ids = append(ids, domain.MessageID(value))
				return false
			}
			return true
		})
		if visitErr != nil {
			return nil, visitErr
		}
		match, err = matches.Next()
	}
	if err != nil {
		return nil, err
	}
	s.log.Debug("Search done", "conversation_id", conversationID, "terms", terms, "hits", len(ids))
	return ids, nil
}

// DetectLang returns the ISO 639-1 code of the content, empty when unsure.
func DetectLang(content string) string {
	info := whatlanggo.Detect(content)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}

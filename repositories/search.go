//go:generate go run go.uber.org/mock/mockgen -source=search.go -destination=../mocks/mock_search_repository.go -package=mocks
package repositories

import (
	"context"
	"log/slog"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
)

type ISearchRepository interface {
	Index(messageID, conversationID uuid.UUID, content string) error
	Search(ctx context.Context, conversationID uuid.UUID, terms string, limit, offset int) ([]uuid.UUID, uint64, error)
}

// SearchRepository maintains the full-text index over message content.
// Indexing is best effort from the coordinator's point of view: a failed
// index write never fails the send that produced the message.
type SearchRepository struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewSearchRepository(writer *bluge.Writer, log *slog.Logger) *SearchRepository {
	return &SearchRepository{writer: writer, log: log}
}

// Index upserts one message document keyed by its id.
func (s *SearchRepository) Index(messageID, conversationID uuid.UUID, content string) error {
	doc := bluge.NewDocument(messageID.String()).
		AddField(bluge.NewKeywordField("conversation_id", conversationID.String())).
		AddField(bluge.NewTextField("content", content))
	return s.writer.Update(doc.ID(), doc)
}

// Search matches terms within one conversation and returns matching
// message ids, strongest match first, plus the total hit count.
func (s *SearchRepository) Search(ctx context.Context, conversationID uuid.UUID, terms string, limit, offset int) ([]uuid.UUID, uint64, error) {
	reader, err := s.writer.Reader()
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			s.log.Warn("Failed to close search reader", "err", err)
		}
	}()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(conversationID.String()).SetField("conversation_id")).
		AddMust(bluge.NewMatchQuery(terms).SetField("content"))

	request := bluge.NewTopNSearch(limit, query).
		SetFrom(offset).
		WithStandardAggregations()

	iterator, err := reader.Search(ctx, request)
	if err != nil {
		return nil, 0, err
	}

	var ids []uuid.UUID
	for {
		match, err := iterator.Next()
		if err != nil {
			return nil, 0, err
		}
		if match == nil {
			break
		}
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				if id, parseErr := uuid.ParseBytes(value); parseErr == nil {
					ids = append(ids, id)
				}
			}
			return true
		})
		if err != nil {
			return nil, 0, err
		}
	}
	return ids, iterator.Aggregations().Count(), nil
}

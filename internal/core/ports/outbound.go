package ports

import (
	"context"

	"github.com/kirillkom/conversational-search/internal/core/domain"
)

// Searcher runs keyword retrieval against the passage index.
type Searcher interface {
	Search(ctx context.Context, query string, numHits int) ([]domain.Hit, error)
}

// QueryRewriter turns a context-dependent utterance into a standalone query.
// Implementations own their conversation history.
type QueryRewriter interface {
	Name() string
	Rewrite(ctx context.Context, utterance string) (string, error)
	// ResetHistory clears conversation history. It is idempotent.
	ResetHistory()
}

// Reranker scores passage texts against a query, one score per text in input order.
type Reranker interface {
	Rerank(ctx context.Context, query string, texts []string) ([]float64, error)
}

// PassageLookup resolves the passage text of a document id.
type PassageLookup interface {
	GetText(ctx context.Context, docID string) (string, error)
}

// RunSink receives the ranked output of each processed turn.
type RunSink interface {
	WriteTurn(ctx context.Context, queryID string, hits []domain.Hit) error
}

// TopicQueue delivers evaluation topics to workers and publishes run entries back.
type TopicQueue interface {
	PublishTopics(ctx context.Context, topics []domain.Topic) error
	SubscribeTopics(ctx context.Context, handler func(context.Context, []domain.Topic) error) error
	PublishRunEntries(ctx context.Context, entries []domain.RunEntry) error
}

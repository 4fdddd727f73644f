package ports

import (
	"context"

	"github.com/kirillkom/conversational-search/internal/core/domain"
)

// TurnRetriever is the inbound contract for one conversation's retrieval.
type TurnRetriever interface {
	Retrieve(ctx context.Context, utterance string) (*domain.Retrieval, error)
	ResetHistory()
}

// SessionService manages interactive conversation sessions.
type SessionService interface {
	Start(ctx context.Context) (domain.SessionInfo, error)
	Retrieve(ctx context.Context, sessionID, utterance string) (*domain.Retrieval, error)
	End(ctx context.Context, sessionID string) (domain.SessionInfo, error)
	Get(ctx context.Context, sessionID string) (domain.SessionInfo, error)
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/conversational-search/internal/core/domain"
	"github.com/kirillkom/conversational-search/internal/core/ports"
)

// ConversationSession groups the turns of one conversation. The first
// Retrieve on an idle session starts the conversation; End clears rewrite
// history and returns the session to idle. Conversation boundaries are not
// detected automatically.
type ConversationSession struct {
	mu        sync.Mutex
	id        string
	retriever ports.TurnRetriever
	state     domain.SessionState
	turns     int
	createdAt time.Time
	updatedAt time.Time
}

func NewConversationSession(id string, retriever ports.TurnRetriever) *ConversationSession {
	now := time.Now().UTC()
	return &ConversationSession{
		id:        id,
		retriever: retriever,
		state:     domain.SessionIdle,
		createdAt: now,
		updatedAt: now,
	}
}

func (s *ConversationSession) Retrieve(ctx context.Context, utterance string) (*domain.Retrieval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == domain.SessionIdle {
		s.state = domain.SessionInProgress
		s.turns = 0
	}
	s.updatedAt = time.Now().UTC()

	result, err := s.retriever.Retrieve(ctx, utterance)
	if err != nil {
		return nil, err
	}
	s.turns++
	return result, nil
}

// End finishes the current conversation and resets rewrite history. The
// returned info describes the conversation that just ended.
func (s *ConversationSession) End() domain.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := s.infoLocked()
	s.retriever.ResetHistory()
	s.state = domain.SessionIdle
	s.turns = 0
	s.updatedAt = time.Now().UTC()
	info.State = domain.SessionIdle
	return info
}

func (s *ConversationSession) Info() domain.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infoLocked()
}

func (s *ConversationSession) infoLocked() domain.SessionInfo {
	return domain.SessionInfo{
		ID:        s.id,
		State:     s.state,
		Turns:     s.turns,
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}
}

// RetrieverFactory builds a retriever with fresh rewrite strategies. Shared
// collaborators (index, reranker model, passage store) are captured by the
// factory and reused across sessions.
type RetrieverFactory func() (ports.TurnRetriever, error)

// SessionRegistry serves interactive conversations, one retriever per session.
type SessionRegistry struct {
	factory     RetrieverFactory
	maxSessions int
	logger      *slog.Logger

	mu       sync.Mutex
	sessions map[string]*ConversationSession
}

var _ ports.SessionService = (*SessionRegistry)(nil)

func NewSessionRegistry(factory RetrieverFactory, maxSessions int, logger *slog.Logger) *SessionRegistry {
	if maxSessions <= 0 {
		maxSessions = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionRegistry{
		factory:     factory,
		maxSessions: maxSessions,
		logger:      logger,
		sessions:    make(map[string]*ConversationSession),
	}
}

func (r *SessionRegistry) Start(_ context.Context) (domain.SessionInfo, error) {
	r.mu.Lock()
	full := len(r.sessions) >= r.maxSessions
	r.mu.Unlock()
	if full {
		return domain.SessionInfo{}, domain.WrapError(domain.ErrTemporary, "start session", fmt.Errorf("session limit %d reached", r.maxSessions))
	}

	retriever, err := r.factory()
	if err != nil {
		return domain.SessionInfo{}, fmt.Errorf("build retriever: %w", err)
	}

	session := NewConversationSession(uuid.NewString(), retriever)
	r.mu.Lock()
	r.sessions[session.id] = session
	r.mu.Unlock()

	r.logger.Info("session_started", "session_id", session.id)
	return session.Info(), nil
}

func (r *SessionRegistry) Retrieve(ctx context.Context, sessionID, utterance string) (*domain.Retrieval, error) {
	if strings.TrimSpace(utterance) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve turn", errors.New("utterance is required"))
	}
	session, err := r.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	result, err := session.Retrieve(ctx, utterance)
	if err != nil {
		r.logger.Warn("session_turn_failed",
			"session_id", sessionID,
			"stage", domain.FailedStage(err),
			"error", err,
		)
		return nil, err
	}
	return result, nil
}

func (r *SessionRegistry) End(_ context.Context, sessionID string) (domain.SessionInfo, error) {
	r.mu.Lock()
	session, ok := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()
	if !ok {
		return domain.SessionInfo{}, domain.WrapError(domain.ErrSessionNotFound, "end session", fmt.Errorf("id=%s", sessionID))
	}

	info := session.End()
	r.logger.Info("session_ended", "session_id", sessionID, "turns", info.Turns)
	return info, nil
}

func (r *SessionRegistry) Get(_ context.Context, sessionID string) (domain.SessionInfo, error) {
	session, err := r.lookup(sessionID)
	if err != nil {
		return domain.SessionInfo{}, err
	}
	return session.Info(), nil
}

// ExpireIdle ends sessions without activity for longer than maxIdle and
// returns how many were removed.
func (r *SessionRegistry) ExpireIdle(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}
	cutoff := time.Now().UTC().Add(-maxIdle)

	r.mu.Lock()
	snapshot := make(map[string]*ConversationSession, len(r.sessions))
	for id, session := range r.sessions {
		snapshot[id] = session
	}
	r.mu.Unlock()

	stale := make([]*ConversationSession, 0)
	for id, session := range snapshot {
		if !session.Info().UpdatedAt.Before(cutoff) {
			continue
		}
		r.mu.Lock()
		if r.sessions[id] == session {
			delete(r.sessions, id)
			stale = append(stale, session)
		}
		r.mu.Unlock()
	}

	for _, session := range stale {
		info := session.End()
		r.logger.Info("session_expired", "session_id", info.ID, "turns", info.Turns)
	}
	return len(stale)
}

func (r *SessionRegistry) lookup(sessionID string) (*ConversationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "lookup session", fmt.Errorf("id=%s", sessionID))
	}
	return session, nil
}

package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/kirillkom/conversational-search/internal/core/domain"
	"github.com/kirillkom/conversational-search/internal/core/ports"
)

// RerankAdapter reorders a hit list by the scores of an external reranker.
// A nil reranker turns Rerank into the identity.
type RerankAdapter struct {
	reranker ports.Reranker
	lookup   ports.PassageLookup
	logger   *slog.Logger
	observer RetrievalObserver
}

func NewRerankAdapter(
	reranker ports.Reranker,
	lookup ports.PassageLookup,
	logger *slog.Logger,
	observer RetrievalObserver,
) *RerankAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RerankAdapter{
		reranker: reranker,
		lookup:   lookup,
		logger:   logger,
		observer: observerOrNoop(observer),
	}
}

func (a *RerankAdapter) Enabled() bool {
	return a != nil && a.reranker != nil
}

type rerankedHit struct {
	hit   domain.Hit
	score float64
}

// Rerank returns the same hits ordered by descending reranker score. Equal
// scores keep their input order. The input slice is left untouched.
func (a *RerankAdapter) Rerank(ctx context.Context, query string, hits []domain.Hit) ([]domain.Hit, error) {
	if !a.Enabled() {
		if a != nil {
			a.logger.Info("rerank_skipped", "reason", "reranker not configured", "hits", len(hits))
			a.observer.RerankSkipped()
		}
		return hits, nil
	}
	if len(hits) == 0 {
		return []domain.Hit{}, nil
	}

	lookupStart := time.Now()
	texts := make([]string, len(hits))
	for i, hit := range hits {
		text, err := a.lookup.GetText(ctx, hit.DocID)
		if err != nil {
			a.observer.ObserveStage(domain.StageLookup, time.Since(lookupStart), err)
			return nil, domain.NewStageError(domain.StageLookup, "", fmt.Errorf("passage %s: %w", hit.DocID, err))
		}
		texts[i] = text
	}
	a.observer.ObserveStage(domain.StageLookup, time.Since(lookupStart), nil)

	rerankStart := time.Now()
	scores, err := a.reranker.Rerank(ctx, query, texts)
	if err == nil && len(scores) != len(hits) {
		err = fmt.Errorf("reranker returned %d scores for %d passages", len(scores), len(hits))
	}
	a.observer.ObserveStage(domain.StageRerank, time.Since(rerankStart), err)
	if err != nil {
		return nil, domain.NewStageError(domain.StageRerank, "", err)
	}

	scored := make([]rerankedHit, len(hits))
	for i, hit := range hits {
		score := scores[i]
		if math.IsNaN(score) {
			score = math.Inf(-1)
		}
		scored[i] = rerankedHit{hit: hit, score: score}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	out := make([]domain.Hit, len(scored))
	for i, s := range scored {
		out[i] = s.hit
	}
	return out, nil
}

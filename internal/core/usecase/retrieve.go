package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/conversational-search/internal/core/domain"
	"github.com/kirillkom/conversational-search/internal/core/ports"
)

const defaultNumHits = 10

// RetrieverOptions configures a ConversationalRetriever. Fusion ordering and
// rerank query selection are independent settings.
type RetrieverOptions struct {
	// NumHits is the number of hits requested per search.
	NumHits int
	// EarlyFusion fuses strategy results before reranking; otherwise every
	// strategy's list is reranked first and the reranked lists are fused.
	EarlyFusion bool
	RRFK        int

	// RerankQueryIndex picks the rewritten query handed to the reranker.
	// Negative values count from the last strategy, -1 being the last one.
	RerankQueryIndex int
	// RerankQueryRewriter, when set, produces the reranker query instead of
	// RerankQueryIndex.
	RerankQueryRewriter ports.QueryRewriter
	// Reranker is optional; nil or disabled skips reranking.
	Reranker *RerankAdapter

	// Parallel runs per-strategy rewrite and search concurrently.
	Parallel bool

	Logger   *slog.Logger
	Observer RetrievalObserver
}

func DefaultRetrieverOptions() RetrieverOptions {
	return RetrieverOptions{
		NumHits:          defaultNumHits,
		EarlyFusion:      true,
		RRFK:             DefaultRRFK,
		RerankQueryIndex: -1,
	}
}

// ConversationalRetriever rewrites one conversational turn with every
// configured strategy, searches each rewrite and merges the results with
// reciprocal rank fusion, reranking before or after fusion.
//
// Rewriter history is owned by the retriever: one retriever serves one
// conversation at a time, and ResetHistory must be called between
// conversations.
type ConversationalRetriever struct {
	searcher  ports.Searcher
	rewriters []ports.QueryRewriter
	reranker  *RerankAdapter

	rerankQueryRewriter ports.QueryRewriter
	rerankQueryIndex    int

	numHits     int
	earlyFusion bool
	rrfK        int
	parallel    bool

	logger   *slog.Logger
	observer RetrievalObserver
}

var _ ports.TurnRetriever = (*ConversationalRetriever)(nil)

func NewConversationalRetriever(
	searcher ports.Searcher,
	rewriters []ports.QueryRewriter,
	opts RetrieverOptions,
) (*ConversationalRetriever, error) {
	const op = "new conversational retriever"

	if searcher == nil {
		return nil, domain.WrapError(domain.ErrInvalidConfig, op, errors.New("searcher is required"))
	}
	if len(rewriters) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidConfig, op, errors.New("at least one rewrite strategy is required"))
	}
	for i, rw := range rewriters {
		if rw == nil {
			return nil, domain.WrapError(domain.ErrInvalidConfig, op, fmt.Errorf("rewrite strategy %d is nil", i))
		}
	}

	rerankIndex := opts.RerankQueryIndex
	if opts.RerankQueryRewriter == nil {
		n := len(rewriters)
		if rerankIndex < -n || rerankIndex >= n {
			return nil, domain.WrapError(domain.ErrInvalidConfig, op, fmt.Errorf(
				"reranker query index %d out of range for %d strategies", opts.RerankQueryIndex, n))
		}
		if rerankIndex < 0 {
			rerankIndex += n
		}
	}
	if opts.Reranker.Enabled() && opts.Reranker.lookup == nil {
		return nil, domain.WrapError(domain.ErrInvalidConfig, op, errors.New("reranker requires a passage lookup"))
	}

	numHits := opts.NumHits
	if numHits <= 0 {
		numHits = defaultNumHits
	}
	rrfK := opts.RRFK
	if rrfK <= 0 {
		rrfK = DefaultRRFK
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ConversationalRetriever{
		searcher:            searcher,
		rewriters:           append([]ports.QueryRewriter(nil), rewriters...),
		reranker:            opts.Reranker,
		rerankQueryRewriter: opts.RerankQueryRewriter,
		rerankQueryIndex:    rerankIndex,
		numHits:             numHits,
		earlyFusion:         opts.EarlyFusion,
		rrfK:                rrfK,
		parallel:            opts.Parallel,
		logger:              logger,
		observer:            observerOrNoop(opts.Observer),
	}, nil
}

// Retrieve returns the ranked hits for one turn of the current conversation.
func (r *ConversationalRetriever) Retrieve(ctx context.Context, utterance string) (*domain.Retrieval, error) {
	start := time.Now()
	result, err := r.retrieve(ctx, utterance)

	hits := 0
	if result != nil {
		hits = len(result.Hits)
	}
	r.observer.ObserveTurn(hits, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("retrieval_turn",
		"strategies", len(r.rewriters),
		"hits", hits,
		"reranked", result.Reranked,
		"early_fusion", r.earlyFusion,
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
	)
	return result, nil
}

func (r *ConversationalRetriever) retrieve(ctx context.Context, utterance string) (*domain.Retrieval, error) {
	runs, err := r.runStrategies(ctx, utterance)
	if err != nil {
		return nil, err
	}

	lists := make([][]domain.Hit, len(runs))
	queries := make([]domain.RewrittenQuery, len(runs))
	for i, run := range runs {
		lists[i] = run.hits
		queries[i] = domain.RewrittenQuery{
			Strategy: r.rewriters[i].Name(),
			Query:    run.query,
			NumHits:  len(run.hits),
		}
	}

	result := &domain.Retrieval{
		Queries:     queries,
		EarlyFusion: r.earlyFusion,
	}

	if !r.reranker.Enabled() {
		result.Hits = FuseRRF(lists, r.rrfK)
		return result, nil
	}

	rerankQuery, err := r.rerankQuery(ctx, utterance, queries)
	if err != nil {
		return nil, err
	}
	result.RerankQuery = rerankQuery
	result.Reranked = true

	if r.earlyFusion {
		result.Hits, err = r.reranker.Rerank(ctx, rerankQuery, FuseRRF(lists, r.rrfK))
		if err != nil {
			return nil, err
		}
		return result, nil
	}

	reranked := make([][]domain.Hit, len(lists))
	for i, hits := range lists {
		reranked[i], err = r.reranker.Rerank(ctx, rerankQuery, hits)
		if err != nil {
			return nil, withStrategy(err, r.rewriters[i].Name())
		}
	}
	result.Hits = FuseRRF(reranked, r.rrfK)
	return result, nil
}

type strategyRun struct {
	query string
	hits  []domain.Hit
}

func (r *ConversationalRetriever) runStrategies(ctx context.Context, utterance string) ([]strategyRun, error) {
	runs := make([]strategyRun, len(r.rewriters))

	if !r.parallel || len(r.rewriters) == 1 {
		for i, rw := range r.rewriters {
			run, err := r.runStrategy(ctx, rw, utterance)
			if err != nil {
				return nil, err
			}
			runs[i] = run
		}
		return runs, nil
	}

	// Each goroutine writes its own slot so fusion input order is the
	// configured strategy order, not completion order.
	g, gctx := errgroup.WithContext(ctx)
	for i, rw := range r.rewriters {
		g.Go(func() error {
			run, err := r.runStrategy(gctx, rw, utterance)
			if err != nil {
				return err
			}
			runs[i] = run
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *ConversationalRetriever) runStrategy(ctx context.Context, rw ports.QueryRewriter, utterance string) (strategyRun, error) {
	start := time.Now()
	query, err := rw.Rewrite(ctx, utterance)
	r.observer.ObserveStage(domain.StageRewrite, time.Since(start), err)
	if err != nil {
		return strategyRun{}, domain.NewStageError(domain.StageRewrite, rw.Name(), err)
	}

	start = time.Now()
	hits, err := r.searcher.Search(ctx, query, r.numHits)
	r.observer.ObserveStage(domain.StageSearch, time.Since(start), err)
	if err != nil {
		return strategyRun{}, domain.NewStageError(domain.StageSearch, rw.Name(), err)
	}
	if hits == nil {
		hits = []domain.Hit{}
	}
	return strategyRun{query: query, hits: hits}, nil
}

func (r *ConversationalRetriever) rerankQuery(ctx context.Context, utterance string, queries []domain.RewrittenQuery) (string, error) {
	if r.rerankQueryRewriter == nil {
		return queries[r.rerankQueryIndex].Query, nil
	}

	start := time.Now()
	query, err := r.rerankQueryRewriter.Rewrite(ctx, utterance)
	r.observer.ObserveStage(domain.StageRewrite, time.Since(start), err)
	if err != nil {
		return "", domain.NewStageError(domain.StageRewrite, r.rerankQueryRewriter.Name(), err)
	}
	return query, nil
}

// ResetHistory clears the history of every strategy, including the
// dedicated reranker query strategy.
func (r *ConversationalRetriever) ResetHistory() {
	for _, rw := range r.rewriters {
		rw.ResetHistory()
	}
	if r.rerankQueryRewriter != nil {
		r.rerankQueryRewriter.ResetHistory()
	}
}

func withStrategy(err error, strategy string) error {
	var stageErr *domain.StageError
	if errors.As(err, &stageErr) && stageErr.Strategy == "" {
		return &domain.StageError{Stage: stageErr.Stage, Strategy: strategy, Err: stageErr.Err}
	}
	return err
}

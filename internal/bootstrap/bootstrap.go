package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/conversational-search/internal/config"
	"github.com/kirillkom/conversational-search/internal/core/domain"
	"github.com/kirillkom/conversational-search/internal/core/ports"
	"github.com/kirillkom/conversational-search/internal/core/usecase"
	rediscache "github.com/kirillkom/conversational-search/internal/infrastructure/cache/redis"
	"github.com/kirillkom/conversational-search/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/conversational-search/internal/infrastructure/queue/nats"
	"github.com/kirillkom/conversational-search/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/conversational-search/internal/infrastructure/resilience"
	"github.com/kirillkom/conversational-search/internal/infrastructure/rewrite"
	"github.com/kirillkom/conversational-search/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/conversational-search/internal/infrastructure/vector/qdrant"
)

type Options struct {
	Logger   *slog.Logger
	Observer usecase.RetrievalObserver
	// Pipeline overrides the pipeline loaded from config.
	Pipeline *config.Pipeline
	// WithQueue connects to NATS; only the worker needs it.
	WithQueue bool
}

type App struct {
	Config   config.Config
	Pipeline config.Pipeline

	Storage      *localfs.Storage
	Queue        *nats.Queue
	NewRetriever usecase.RetrieverFactory

	readyChecks map[string]func(context.Context) error
	closeFn     func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pipeline, err := resolvePipeline(cfg, opts.Pipeline)
	if err != nil {
		return nil, err
	}

	var executor *resilience.Executor
	if cfg.ResilienceEnabled {
		executor = resilience.NewExecutor(resilience.DefaultConfig(), logger)
	}

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	readyChecks := map[string]func(context.Context) error{}

	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, qdrant.Options{
		VectorName: cfg.QdrantVectorName,
		PayloadKey: cfg.QdrantPayloadKey,
		K1:         cfg.BM25K1,
		Executor:   executor,
	})
	readyChecks["qdrant"] = vectorDB.Ready
	var searcher ports.Searcher = vectorDB

	if cfg.RedisURL != "" {
		store, err := rediscache.Connect(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("init search cache: %w", err)
		}
		closers = append(closers, func() { _ = store.Close() })
		readyChecks["redis"] = store.Ping
		ttl := time.Duration(cfg.SearchCacheTTLSeconds) * time.Second
		searcher = rediscache.NewSearchCache(searcher, store, vectorDB.Collection(), ttl, logger)
	}

	collab := Collaborators{Searcher: searcher}

	if pipeline.UsesLLM() || pipeline.Rerank.Enabled {
		llmOpts := ollama.Options{
			Timeout:           time.Duration(cfg.OllamaTimeoutSeconds) * time.Second,
			RequestsPerSecond: cfg.OllamaRPS,
			Burst:             cfg.OllamaBurst,
			Executor:          executor,
		}
		collab.LLM = ollama.New(cfg.OllamaURL, cfg.OllamaModel, llmOpts)
		readyChecks["ollama"] = collab.LLM.Ready

		if pipeline.Rerank.Enabled {
			rerankClient := collab.LLM
			if cfg.OllamaRerankModel != "" && cfg.OllamaRerankModel != cfg.OllamaModel {
				rerankClient = ollama.New(cfg.OllamaURL, cfg.OllamaRerankModel, llmOpts)
			}
			collab.Reranker = ollama.NewReranker(rerankClient)
		}
	}

	if pipeline.Rerank.Enabled {
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		closers = append(closers, func() { _ = db.Close() })
		repo := postgres.NewPassageRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			closeAll()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		readyChecks["postgres"] = repo.Ping
		collab.Lookup = repo
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("init run storage: %w", err)
	}

	var queue *nats.Queue
	if opts.WithQueue {
		queue, err = nats.NewWithOptions(cfg.NATSURL, cfg.NATSTopicsSubject, cfg.NATSResultsSubject, nats.Options{
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		closers = append(closers, queue.Close)
	}

	factory, err := NewRetrieverFactory(pipeline, collab, logger, opts.Observer)
	if err != nil {
		closeAll()
		return nil, err
	}

	logger.Info("pipeline_configured",
		"strategies", len(pipeline.Strategies),
		"num_hits", pipeline.NumHits,
		"early_fusion", pipeline.EarlyFusion,
		"rerank", pipeline.Rerank.Enabled,
		"search_cache", cfg.RedisURL != "",
	)

	return &App{
		Config:       cfg,
		Pipeline:     pipeline,
		Storage:      storage,
		Queue:        queue,
		NewRetriever: factory,
		readyChecks:  readyChecks,
		closeFn:      closeAll,
	}, nil
}

func resolvePipeline(cfg config.Config, override *config.Pipeline) (config.Pipeline, error) {
	if override != nil {
		if err := override.Validate(); err != nil {
			return config.Pipeline{}, err
		}
		return *override, nil
	}
	return config.LoadPipeline(cfg)
}

// Ready checks every external collaborator the pipeline depends on.
func (a *App) Ready(ctx context.Context) error {
	var errs []error
	for name, check := range a.readyChecks {
		if err := check(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// Collaborators are the shared, stateless dependencies of every retriever.
type Collaborators struct {
	Searcher ports.Searcher
	Reranker ports.Reranker
	Lookup   ports.PassageLookup
	LLM      *ollama.Client
}

// NewRetrieverFactory validates the pipeline once and returns a factory that
// builds a retriever with fresh rewriter state on every call.
func NewRetrieverFactory(
	pipeline config.Pipeline,
	collab Collaborators,
	logger *slog.Logger,
	observer usecase.RetrievalObserver,
) (usecase.RetrieverFactory, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var reranker *usecase.RerankAdapter
	if pipeline.Rerank.Enabled {
		if collab.Reranker == nil || collab.Lookup == nil {
			return nil, domain.WrapError(domain.ErrInvalidConfig, "build retriever",
				errors.New("reranking requires a reranker and a passage lookup"))
		}
		reranker = usecase.NewRerankAdapter(collab.Reranker, collab.Lookup, logger, observer)
	}

	factory := func() (ports.TurnRetriever, error) {
		rewriters := make([]ports.QueryRewriter, 0, len(pipeline.Strategies))
		for _, sc := range pipeline.Strategies {
			rw, err := buildRewriter(sc, collab.LLM)
			if err != nil {
				return nil, err
			}
			rewriters = append(rewriters, rw)
		}

		opts := usecase.RetrieverOptions{
			NumHits:          pipeline.NumHits,
			EarlyFusion:      pipeline.EarlyFusion,
			RRFK:             pipeline.RRFK,
			RerankQueryIndex: pipeline.Rerank.QueryIndex,
			Reranker:         reranker,
			Parallel:         pipeline.Parallel,
			Logger:           logger,
			Observer:         observer,
		}
		if pipeline.Rerank.QueryStrategy != nil {
			rw, err := buildRewriter(*pipeline.Rerank.QueryStrategy, collab.LLM)
			if err != nil {
				return nil, err
			}
			opts.RerankQueryRewriter = rw
		}
		return usecase.NewConversationalRetriever(collab.Searcher, rewriters, opts)
	}

	// Fail at startup rather than on the first session.
	if _, err := factory(); err != nil {
		return nil, err
	}
	return factory, nil
}

func buildRewriter(sc config.StrategyConfig, llm *ollama.Client) (ports.QueryRewriter, error) {
	switch sc.Method {
	case config.MethodRaw:
		return rewrite.NewRaw(sc.Name), nil
	case config.MethodConcat:
		return rewrite.NewConcat(sc.Name, sc.Window), nil
	case config.MethodLLM:
		if llm == nil {
			return nil, domain.WrapError(domain.ErrInvalidConfig, "build rewriter",
				fmt.Errorf("strategy %q needs an llm client", sc.Name))
		}
		return ollama.NewRewriter(llm, sc.Name, sc.Window), nil
	default:
		return nil, domain.WrapError(domain.ErrInvalidConfig, "build rewriter",
			fmt.Errorf("unknown method %q", sc.Method))
	}
}

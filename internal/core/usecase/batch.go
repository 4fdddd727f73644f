package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/conversational-search/internal/core/domain"
	"github.com/kirillkom/conversational-search/internal/core/ports"
)

// BatchSummary aggregates one batch run.
type BatchSummary struct {
	Topics   int           `json:"topics"`
	Turns    int           `json:"turns"`
	Failed   int           `json:"failed"`
	Hits     int           `json:"hits"`
	Duration time.Duration `json:"duration"`
}

func (s BatchSummary) SecondsPerQuery() float64 {
	if s.Turns == 0 {
		return 0
	}
	return s.Duration.Seconds() / float64(s.Turns)
}

// BatchRunner replays evaluation topics turn by turn through one retriever
// and writes the ranked output of every turn to a RunSink.
type BatchRunner struct {
	retriever ports.TurnRetriever
	logger    *slog.Logger
}

func NewBatchRunner(retriever ports.TurnRetriever, logger *slog.Logger) *BatchRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchRunner{retriever: retriever, logger: logger}
}

// Run processes topics in order. A failed turn is logged and skipped; sink
// failures and context cancellation abort the run. Rewrite history is reset
// after every topic.
func (b *BatchRunner) Run(ctx context.Context, topics []domain.Topic, sink ports.RunSink) (BatchSummary, error) {
	start := time.Now()
	var summary BatchSummary

	for _, topic := range topics {
		if err := ctx.Err(); err != nil {
			summary.Duration = time.Since(start)
			return summary, err
		}

		topicSummary, err := b.runTopic(ctx, topic, sink)
		summary.Topics++
		summary.Turns += topicSummary.Turns
		summary.Failed += topicSummary.Failed
		summary.Hits += topicSummary.Hits
		if err != nil {
			summary.Duration = time.Since(start)
			return summary, err
		}
	}

	summary.Duration = time.Since(start)
	b.logger.Info("batch_done",
		"topics", summary.Topics,
		"turns", summary.Turns,
		"failed", summary.Failed,
		"seconds_per_query", summary.SecondsPerQuery(),
	)
	return summary, nil
}

func (b *BatchRunner) runTopic(ctx context.Context, topic domain.Topic, sink ports.RunSink) (BatchSummary, error) {
	start := time.Now()
	var summary BatchSummary
	defer b.retriever.ResetHistory()

	for _, turn := range topic.Turns {
		qid := domain.QueryID(topic.Number, turn.Number)
		summary.Turns++

		result, err := b.retriever.Retrieve(ctx, turn.RawUtterance)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return summary, ctxErr
			}
			summary.Failed++
			b.logger.Warn("batch_turn_failed",
				"qid", qid,
				"stage", domain.FailedStage(err),
				"error", err,
			)
			continue
		}

		if err := sink.WriteTurn(ctx, qid, result.Hits); err != nil {
			return summary, fmt.Errorf("write run for %s: %w", qid, err)
		}
		summary.Hits += len(result.Hits)
	}

	summary.Duration = time.Since(start)
	b.logger.Info("batch_topic_done",
		"topic", topic.Number,
		"turns", summary.Turns,
		"failed", summary.Failed,
		"seconds_per_query", summary.SecondsPerQuery(),
	)
	return summary, nil
}

package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/conversational-search/internal/core/domain"
	"github.com/kirillkom/conversational-search/internal/core/ports"
	"github.com/kirillkom/conversational-search/internal/infrastructure/resilience"
)

// Queue carries evaluation topics to workers on one subject and the
// resulting run entries back on another.
type Queue struct {
	conn           *nats.Conn
	topicsSubject  string
	resultsSubject string
	executor       *resilience.Executor
	logger         *slog.Logger
}

var (
	_ ports.TopicQueue = (*Queue)(nil)
	_ ports.RunSink    = (*Queue)(nil)
)

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url, topicsSubject, resultsSubject string) (*Queue, error) {
	return NewWithOptions(url, topicsSubject, resultsSubject, Options{})
}

func NewWithOptions(url, topicsSubject, resultsSubject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("conversational-search"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:           conn,
		topicsSubject:  topicsSubject,
		resultsSubject: resultsSubject,
		executor:       options.ResilienceExecutor,
		logger:         logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishTopics(ctx context.Context, topics []domain.Topic) error {
	payload, err := encodeTopics(topics)
	if err != nil {
		return err
	}
	return q.publish(ctx, q.topicsSubject, payload)
}

func (q *Queue) PublishRunEntries(ctx context.Context, entries []domain.RunEntry) error {
	if len(entries) == 0 {
		return nil
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal run entries: %w", err)
	}
	return q.publish(ctx, q.resultsSubject, payload)
}

// WriteTurn publishes the ranked hits of one turn as run entries.
func (q *Queue) WriteTurn(ctx context.Context, queryID string, hits []domain.Hit) error {
	return q.PublishRunEntries(ctx, domain.RunEntries(queryID, hits))
}

func (q *Queue) publish(ctx context.Context, subject string, payload []byte) error {
	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeTopics hands every topics message to handler until ctx is done,
// then drains the subscription. Workers share the "workers" queue group.
func (q *Queue) SubscribeTopics(ctx context.Context, handler func(context.Context, []domain.Topic) error) error {
	sub, err := q.conn.QueueSubscribe(q.topicsSubject, "workers", func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		topics, err := decodeTopics(msg.Data)
		if err != nil {
			q.logger.Error("topics_message_invalid", "subject", msg.Subject, "bytes", len(msg.Data), "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, topics); err != nil {
			q.logger.Error("topics_handler_failed", "topics", len(topics), "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func encodeTopics(topics []domain.Topic) ([]byte, error) {
	payload, err := json.Marshal(topics)
	if err != nil {
		return nil, fmt.Errorf("marshal topics: %w", err)
	}
	return payload, nil
}

// decodeTopics accepts a topic array or a single topic object.
func decodeTopics(data []byte) ([]domain.Topic, error) {
	var topics []domain.Topic
	if err := json.Unmarshal(data, &topics); err == nil {
		return topics, nil
	}
	var single domain.Topic
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode topics", err)
	}
	return []domain.Topic{single}, nil
}

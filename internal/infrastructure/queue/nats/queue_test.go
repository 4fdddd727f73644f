package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/conversational-search/internal/core/domain"
)

func TestDecodeTopicsAcceptsCAsTArray(t *testing.T) {
	data := []byte(`[{"number":31,"description":"whales","turn":[
		{"number":1,"raw_utterance":"tell me about whales"},
		{"number":2,"raw_utterance":"how big are they"}]}]`)

	topics, err := decodeTopics(data)
	if err != nil {
		t.Fatalf("decodeTopics() error = %v", err)
	}
	if len(topics) != 1 || topics[0].Number != 31 || len(topics[0].Turns) != 2 {
		t.Fatalf("unexpected topics: %+v", topics)
	}
	if topics[0].Turns[1].RawUtterance != "how big are they" {
		t.Fatalf("unexpected utterance: %q", topics[0].Turns[1].RawUtterance)
	}
}

func TestDecodeTopicsAcceptsSingleTopic(t *testing.T) {
	topics, err := decodeTopics([]byte(`{"number":7,"turn":[{"number":1,"raw_utterance":"q"}]}`))
	if err != nil {
		t.Fatalf("decodeTopics() error = %v", err)
	}
	if len(topics) != 1 || topics[0].Number != 7 {
		t.Fatalf("unexpected topics: %+v", topics)
	}
}

func TestDecodeTopicsRejectsGarbage(t *testing.T) {
	if _, err := decodeTopics([]byte("not json")); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestEncodeTopicsRoundTripsThroughDecode(t *testing.T) {
	in := []domain.Topic{{Number: 1, Turns: []domain.Turn{{Number: 1, RawUtterance: "hello"}}}}
	payload, err := encodeTopics(in)
	if err != nil {
		t.Fatalf("encodeTopics() error = %v", err)
	}
	out, err := decodeTopics(payload)
	if err != nil || len(out) != 1 || out[0].Turns[0].RawUtterance != "hello" {
		t.Fatalf("unexpected decode result %+v err=%v", out, err)
	}
}

func TestClassifyNATSError(t *testing.T) {
	cases := []struct {
		name          string
		err           error
		retryable     bool
		recordFailure bool
	}{
		{name: "canceled", err: context.Canceled},
		{name: "no servers", err: fmt.Errorf("nats publish: %w", nats.ErrNoServers), retryable: true, recordFailure: true},
		{name: "max payload", err: nats.ErrMaxPayload},
		{name: "other", err: errors.New("boom"), recordFailure: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyNATSError(tc.err)
			if got.Retryable != tc.retryable || got.RecordFailure != tc.recordFailure {
				t.Fatalf("classifyNATSError() = %+v", got)
			}
		})
	}
}

func TestWrapTemporaryMarksRetryableErrors(t *testing.T) {
	err := wrapTemporaryIfNeeded(fmt.Errorf("nats publish: %w", nats.ErrConnectionClosed))
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if err := wrapTemporaryIfNeeded(errors.New("bad")); domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

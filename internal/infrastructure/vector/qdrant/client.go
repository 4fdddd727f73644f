package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/conversational-search/internal/core/domain"
	"github.com/kirillkom/conversational-search/internal/infrastructure/resilience"
)

const (
	DefaultVectorName = "bm25"
	DefaultPayloadKey = "passage_id"
	DefaultK1         = 0.82
)

type Options struct {
	// VectorName is the named sparse vector holding the lexical index.
	VectorName string
	// PayloadKey is the payload field carrying the passage id.
	PayloadKey string
	K1         float64
	Timeout    time.Duration
	Executor   *resilience.Executor
}

// Client searches a Qdrant collection that stores one sparse BM25 vector per
// passage. Index building happens outside this service.
type Client struct {
	baseURL    string
	collection string
	vectorName string
	payloadKey string
	k1         float64
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, collection string, opts Options) *Client {
	if opts.VectorName == "" {
		opts.VectorName = DefaultVectorName
	}
	if opts.PayloadKey == "" {
		opts.PayloadKey = DefaultPayloadKey
	}
	if opts.K1 <= 0 {
		opts.K1 = DefaultK1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		vectorName: opts.VectorName,
		payloadKey: opts.PayloadKey,
		k1:         opts.K1,
		httpClient: &http.Client{Timeout: opts.Timeout},
		executor:   opts.Executor,
	}
}

func (c *Client) Collection() string {
	return c.collection
}

type queryResponse struct {
	Result struct {
		Points []struct {
			ID      json.RawMessage `json:"id"`
			Score   float64         `json:"score"`
			Payload map[string]any  `json:"payload"`
		} `json:"points"`
	} `json:"result"`
}

// Search returns up to numHits passages ranked by sparse dot product. A
// query without indexable terms yields no hits.
func (c *Client) Search(ctx context.Context, query string, numHits int) ([]domain.Hit, error) {
	vector := encodeSparseQuery(query, c.k1)
	if len(vector.Indices) == 0 || numHits <= 0 {
		return []domain.Hit{}, nil
	}

	reqBody := map[string]any{
		"query":        vector,
		"using":        c.vectorName,
		"limit":        numHits,
		"with_payload": []string{c.payloadKey},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal query body: %w", err)
	}

	resp, err := resilience.Do(ctx, c.executor, "qdrant.query", func(callCtx context.Context) (*queryResponse, error) {
		return c.query(callCtx, body)
	}, classifyQdrantError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("qdrant search", err)
	}

	out := make([]domain.Hit, 0, len(resp.Result.Points))
	for _, p := range resp.Result.Points {
		docID := getStringPayload(p.Payload, c.payloadKey)
		if docID == "" {
			docID = strings.Trim(string(p.ID), `"`)
		}
		out = append(out, domain.Hit{DocID: docID, Score: p.Score})
	}
	return out, nil
}

func (c *Client) query(ctx context.Context, body []byte) (*queryResponse, error) {
	url := fmt.Sprintf("%s/collections/%s/points/query", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant query request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, formatQdrantHTTPError("query", resp)
	}

	var out queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}
	return &out, nil
}

// Ready checks that the collection exists.
func (c *Client) Ready(ctx context.Context) error {
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create collection request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant collection request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return formatQdrantHTTPError("collection", resp)
	}
	return nil
}

func formatQdrantHTTPError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &resilience.HTTPStatusError{
		Service:    "qdrant",
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(body),
	}
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

package ollama

import (
	"context"
	"encoding/json"
	"fmt"
)

// Reranker scores passages against a query with a single judge prompt.
type Reranker struct {
	client *Client
}

func NewReranker(client *Client) *Reranker {
	return &Reranker{client: client}
}

type rerankResponse struct {
	Scores []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	} `json:"scores"`
}

// Rerank returns one score per text, in input order. Passages the model
// leaves out score zero.
func (r *Reranker) Rerank(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return []float64{}, nil
	}

	raw, err := r.client.generateJSON(ctx, buildRerankPrompt(query, texts))
	if err != nil {
		return nil, err
	}

	var resp rerankResponse
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &resp); err != nil {
		return nil, fmt.Errorf("parse rerank json: %w", err)
	}

	scores := make([]float64, len(texts))
	for _, s := range resp.Scores {
		if s.Index < 1 || s.Index > len(texts) {
			continue
		}
		scores[s.Index-1] = s.Score
	}
	return scores, nil
}

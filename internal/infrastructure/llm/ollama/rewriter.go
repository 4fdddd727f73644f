package ollama

import (
	"context"
	"log/slog"
	"strings"
)

// Rewriter turns a conversational utterance into a standalone query with an
// LLM, conditioning on the previous raw utterances of the conversation.
type Rewriter struct {
	client *Client
	name   string
	// window bounds the history passed to the model; zero keeps all turns.
	window  int
	history []string
}

func NewRewriter(client *Client, name string, window int) *Rewriter {
	if strings.TrimSpace(name) == "" {
		name = "llm"
	}
	return &Rewriter{client: client, name: name, window: window}
}

func (r *Rewriter) Name() string {
	return r.name
}

func (r *Rewriter) Rewrite(ctx context.Context, utterance string) (string, error) {
	history := r.history
	if r.window > 0 && len(history) > r.window {
		history = history[len(history)-r.window:]
	}

	rewritten, err := r.client.generateText(ctx, buildRewritePrompt(history, utterance))
	if err != nil {
		return "", err
	}
	r.history = append(r.history, utterance)

	rewritten = strings.Trim(strings.TrimSpace(rewritten), `"`)
	if rewritten == "" {
		slog.Warn("rewrite_empty_output", "strategy", r.name, "model", r.client.Model())
		return utterance, nil
	}
	return rewritten, nil
}

func (r *Rewriter) ResetHistory() {
	r.history = nil
}

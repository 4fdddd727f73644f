// Package rewrite holds the rewrite strategies that need no model: the raw
// utterance and history concatenation.
package rewrite

import (
	"context"
	"strings"
)

// Raw passes the utterance through unchanged. It keeps no history.
type Raw struct {
	name string
}

func NewRaw(name string) *Raw {
	if strings.TrimSpace(name) == "" {
		name = "origin"
	}
	return &Raw{name: name}
}

func (r *Raw) Name() string { return r.name }

func (r *Raw) Rewrite(_ context.Context, utterance string) (string, error) {
	return utterance, nil
}

func (r *Raw) ResetHistory() {}

// Concat prepends the previous utterances of the conversation to the current
// one, keeping at most window of them. A zero window keeps the whole history.
type Concat struct {
	name    string
	window  int
	history []string
}

func NewConcat(name string, window int) *Concat {
	if strings.TrimSpace(name) == "" {
		name = "concat"
	}
	if window < 0 {
		window = 0
	}
	return &Concat{name: name, window: window}
}

func (c *Concat) Name() string { return c.name }

func (c *Concat) Rewrite(_ context.Context, utterance string) (string, error) {
	history := c.history
	if c.window > 0 && len(history) > c.window {
		history = history[len(history)-c.window:]
	}

	parts := make([]string, 0, len(history)+1)
	for _, h := range history {
		if h = strings.TrimSpace(h); h != "" {
			parts = append(parts, h)
		}
	}
	if u := strings.TrimSpace(utterance); u != "" {
		parts = append(parts, u)
	}

	c.history = append(c.history, utterance)
	return strings.Join(parts, " "), nil
}

func (c *Concat) ResetHistory() {
	c.history = nil
}

package ollama

import (
	"fmt"
	"strings"
)

const maxPassageChars = 1500

func buildRewritePrompt(history []string, utterance string) string {
	var b strings.Builder
	b.WriteString(`Rewrite the last question of a conversation into a standalone search query.
Resolve pronouns and omissions from the earlier questions.
Return only the rewritten question, no explanation, no quotes.

`)
	if len(history) > 0 {
		b.WriteString("Earlier questions:\n")
		for i, turn := range history {
			fmt.Fprintf(&b, "%d. %s\n", i+1, turn)
		}
		b.WriteString("\n")
	}
	b.WriteString("Last question:\n")
	b.WriteString(utterance)
	return b.String()
}

func buildRerankPrompt(query string, texts []string) string {
	var b strings.Builder
	b.WriteString(`You are a relevance judge for passage retrieval.
Score how well each passage answers the query on a scale from 0 to 10.
Return strict JSON object {"scores":[{"index":<passage number>,"score":<number>}]} with one entry per passage.
No markdown, no extra keys.

Query:
`)
	b.WriteString(query)
	b.WriteString("\n\nPassages:\n")
	for i, text := range texts {
		if len(text) > maxPassageChars {
			text = text[:maxPassageChars]
		}
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, strings.TrimSpace(text))
	}
	return b.String()
}

package domain

// Hit is one retrieved passage. Rank is implicit from its position in a list.
type Hit struct {
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
}

// RewrittenQuery is the query one rewrite strategy produced for a turn.
type RewrittenQuery struct {
	Strategy string `json:"strategy"`
	Query    string `json:"query"`
	NumHits  int    `json:"num_hits"`
}

// Retrieval is the outcome of one conversational turn.
type Retrieval struct {
	Hits        []Hit            `json:"hits"`
	Queries     []RewrittenQuery `json:"queries"`
	RerankQuery string           `json:"rerank_query,omitempty"`
	Reranked    bool             `json:"reranked"`
	EarlyFusion bool             `json:"early_fusion"`
}

// RunEntry is one line of a ranked run file.
type RunEntry struct {
	QueryID string `json:"qid"`
	DocID   string `json:"doc_id"`
	Rank    int    `json:"rank"`
}

// RunEntries expands a ranked hit list into 1-based run entries.
func RunEntries(queryID string, hits []Hit) []RunEntry {
	out := make([]RunEntry, 0, len(hits))
	for i, hit := range hits {
		out = append(out, RunEntry{QueryID: queryID, DocID: hit.DocID, Rank: i + 1})
	}
	return out
}

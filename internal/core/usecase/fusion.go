package usecase

import (
	"sort"

	"github.com/kirillkom/conversational-search/internal/core/domain"
)

// DefaultRRFK is the reciprocal rank fusion smoothing constant.
const DefaultRRFK = 60

type fusedCandidate struct {
	docID string
	score float64
	order int
}

// FuseRRF combines ranked hit lists with reciprocal rank fusion.
//
// A document at 1-based rank r contributes 1/(k+r) per list it appears in.
// Equal fused scores keep the order in which documents were first seen,
// first list first, then ascending rank.
func FuseRRF(lists [][]domain.Hit, k int) []domain.Hit {
	if k <= 0 {
		k = DefaultRRFK
	}

	size := 0
	for _, hits := range lists {
		size += len(hits)
	}

	acc := make(map[string]*fusedCandidate, size)
	ordered := make([]*fusedCandidate, 0, size)
	addList := func(hits []domain.Hit) {
		seen := make(map[string]struct{}, len(hits))
		for rank, hit := range hits {
			if _, dup := seen[hit.DocID]; dup {
				continue
			}
			seen[hit.DocID] = struct{}{}

			candidate, ok := acc[hit.DocID]
			if !ok {
				candidate = &fusedCandidate{docID: hit.DocID, order: len(ordered)}
				acc[hit.DocID] = candidate
				ordered = append(ordered, candidate)
			}
			candidate.score += 1.0 / float64(k+rank+1)
		}
	}

	for _, hits := range lists {
		addList(hits)
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].score != ordered[j].score {
			return ordered[i].score > ordered[j].score
		}
		return ordered[i].order < ordered[j].order
	})

	out := make([]domain.Hit, 0, len(ordered))
	for _, c := range ordered {
		out = append(out, domain.Hit{DocID: c.docID, Score: c.score})
	}
	return out
}

package qdrant

import "testing"

func TestEncodeSparseQueryDeterministic(t *testing.T) {
	v1 := encodeSparseQuery("How big are blue whales?", DefaultK1)
	v2 := encodeSparseQuery("how BIG are blue whales", DefaultK1)
	if len(v1.Indices) != len(v2.Indices) {
		t.Fatalf("vector sizes mismatch: %d vs %d", len(v1.Indices), len(v2.Indices))
	}
	for i := range v1.Indices {
		if v1.Indices[i] != v2.Indices[i] || v1.Values[i] != v2.Values[i] {
			t.Fatalf("mismatch at %d: %d/%f vs %d/%f", i, v1.Indices[i], v1.Values[i], v2.Indices[i], v2.Values[i])
		}
	}
}

func TestEncodeSparseQuerySortsIndices(t *testing.T) {
	v := encodeSparseQuery("zulu alpha beta gamma", DefaultK1)
	if len(v.Indices) != 4 {
		t.Fatalf("expected 4 terms, got %d", len(v.Indices))
	}
	for i := 1; i < len(v.Indices); i++ {
		if v.Indices[i-1] > v.Indices[i] {
			t.Fatalf("indices not sorted at %d: %d > %d", i, v.Indices[i-1], v.Indices[i])
		}
	}
}

func TestEncodeSparseQuerySaturatesRepeatedTerms(t *testing.T) {
	single := encodeSparseQuery("whale", 1.2)
	repeated := encodeSparseQuery("whale whale whale", 1.2)
	if single.Values[0] != 1 {
		t.Fatalf("expected unit weight for single occurrence, got %f", single.Values[0])
	}
	if repeated.Values[0] <= single.Values[0] || repeated.Values[0] >= 2.2 {
		t.Fatalf("expected saturated weight in (1, k1+1), got %f", repeated.Values[0])
	}
}

func TestEncodeSparseQueryEmptyNoiseInput(t *testing.T) {
	v := encodeSparseQuery("___---!!!", DefaultK1)
	if len(v.Indices) != 0 || len(v.Values) != 0 {
		t.Fatalf("expected empty sparse vector, got %+v", v)
	}
}

func TestTokenizeAlphaNumSplitsOnPunctuation(t *testing.T) {
	tokens := tokenizeAlphaNum("What's CAsT-2019 about?")
	want := []string{"what", "s", "cast", "2019", "about"}
	if len(tokens) != len(want) {
		t.Fatalf("expected %v, got %v", want, tokens)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Fatalf("token %d: expected %q, got %q", i, want[i], tokens[i])
		}
	}
}

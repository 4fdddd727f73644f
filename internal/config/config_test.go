package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kirillkom/conversational-search/internal/core/domain"
)

func TestLoadIncludesRetrievalDefaults(t *testing.T) {
	for _, key := range []string{"RETRIEVAL_NUM_HITS", "RETRIEVAL_RRF_K", "RETRIEVAL_EARLY_FUSION", "RERANK_QUERY_INDEX", "BM25_K1"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.RetrievalNumHits != 10 {
		t.Fatalf("expected default num hits 10, got %d", cfg.RetrievalNumHits)
	}
	if cfg.RetrievalRRFK != 60 {
		t.Fatalf("expected default rrf k 60, got %d", cfg.RetrievalRRFK)
	}
	if !cfg.EarlyFusion {
		t.Fatalf("expected early fusion by default")
	}
	if cfg.RerankQueryIndex != -1 {
		t.Fatalf("expected default rerank query index -1, got %d", cfg.RerankQueryIndex)
	}
	if cfg.BM25K1 != 0.82 {
		t.Fatalf("expected default k1 0.82, got %v", cfg.BM25K1)
	}
}

func TestLoadParsesOverridesAndIgnoresGarbage(t *testing.T) {
	t.Setenv("RETRIEVAL_NUM_HITS", "1000")
	t.Setenv("RETRIEVAL_EARLY_FUSION", "false")
	t.Setenv("OLLAMA_RPS", "2.5")
	t.Setenv("RETRIEVAL_RRF_K", "sixty")

	cfg := Load()
	if cfg.RetrievalNumHits != 1000 {
		t.Fatalf("expected num hits override, got %d", cfg.RetrievalNumHits)
	}
	if cfg.EarlyFusion {
		t.Fatalf("expected late fusion override")
	}
	if cfg.OllamaRPS != 2.5 {
		t.Fatalf("expected rps override, got %v", cfg.OllamaRPS)
	}
	if cfg.RetrievalRRFK != 60 {
		t.Fatalf("expected fallback for unparsable rrf k, got %d", cfg.RetrievalRRFK)
	}
}

func TestDefaultPipelineFusesConcatAndLLM(t *testing.T) {
	t.Setenv("PIPELINE_FILE", "")
	t.Setenv("RERANK_QUERY_METHOD", "")
	p, err := LoadPipeline(Load())
	if err != nil {
		t.Fatalf("LoadPipeline() error = %v", err)
	}
	if len(p.Strategies) != 2 || p.Strategies[0].Method != MethodConcat || p.Strategies[1].Method != MethodLLM {
		t.Fatalf("unexpected default strategies: %+v", p.Strategies)
	}
	if !p.UsesLLM() {
		t.Fatalf("expected default pipeline to use the llm")
	}
}

func TestDefaultPipelineWithDedicatedRerankQuery(t *testing.T) {
	cfg := Load()
	cfg.RerankQueryMethod = MethodConcat
	cfg.RerankQueryIndex = 99

	p := DefaultPipeline(cfg)
	if p.Rerank.QueryStrategy == nil || p.Rerank.QueryStrategy.Method != MethodConcat {
		t.Fatalf("expected dedicated rerank strategy, got %+v", p.Rerank)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("expected dedicated strategy to override index, got %v", err)
	}
}

func TestParsePipelineOverridesBase(t *testing.T) {
	data := []byte(`
num_hits: 1000
early_fusion: false
strategies:
  - name: origin
    method: raw
  - name: t5
    method: llm
    window: 3
rerank:
  enabled: true
  query_index: 0
`)
	base := DefaultPipeline(Load())
	base.RRFK = 42

	p, err := ParsePipeline(data, base)
	if err != nil {
		t.Fatalf("ParsePipeline() error = %v", err)
	}
	if p.NumHits != 1000 || p.EarlyFusion || p.RRFK != 42 {
		t.Fatalf("unexpected pipeline: %+v", p)
	}
	if len(p.Strategies) != 2 || p.Strategies[1].Window != 3 {
		t.Fatalf("expected strategies replaced, got %+v", p.Strategies)
	}
	if !p.Rerank.Enabled || p.Rerank.QueryIndex != 0 {
		t.Fatalf("unexpected rerank config: %+v", p.Rerank)
	}
}

func TestParsePipelineRejectsInvalidDefinitions(t *testing.T) {
	base := DefaultPipeline(Load())
	cases := map[string]string{
		"unknown key":     "strategy: []",
		"unknown method":  "strategies: [{name: a, method: t5}]",
		"duplicate names": "strategies: [{name: a, method: raw}, {name: a, method: concat}]",
		"index range":     "strategies: [{name: a, method: raw}]\nrerank: {query_index: -2}",
		"no strategies":   "strategies: []",
		"negative window": "strategies: [{name: a, method: concat, window: -1}]",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParsePipeline([]byte(doc), base); !domain.IsKind(err, domain.ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoadPipelineReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	if err := os.WriteFile(path, []byte("strategies: [{name: origin, method: raw}]\n"), 0o644); err != nil {
		t.Fatalf("write pipeline: %v", err)
	}
	cfg := Load()
	cfg.PipelineFile = path

	p, err := LoadPipeline(cfg)
	if err != nil {
		t.Fatalf("LoadPipeline() error = %v", err)
	}
	if len(p.Strategies) != 1 || p.UsesLLM() {
		t.Fatalf("unexpected pipeline from file: %+v", p)
	}
}

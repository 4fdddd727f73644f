package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/conversational-search/internal/core/domain"
)

// Rewrite methods understood by the pipeline.
const (
	MethodRaw    = "raw"
	MethodConcat = "concat"
	MethodLLM    = "llm"
)

// Pipeline describes one retrieval configuration: the rewrite strategies,
// fusion and reranking.
type Pipeline struct {
	NumHits     int              `yaml:"num_hits"`
	RRFK        int              `yaml:"rrf_k"`
	EarlyFusion bool             `yaml:"early_fusion"`
	Parallel    bool             `yaml:"parallel"`
	Strategies  []StrategyConfig `yaml:"strategies"`
	Rerank      RerankConfig     `yaml:"rerank"`
}

type StrategyConfig struct {
	Name   string `yaml:"name"`
	Method string `yaml:"method"`
	// Window bounds the history a strategy looks at; zero means all turns.
	Window int `yaml:"window"`
}

type RerankConfig struct {
	Enabled bool `yaml:"enabled"`
	// QueryIndex picks the strategy whose query is reranked against;
	// negative values count from the end.
	QueryIndex    int             `yaml:"query_index"`
	QueryStrategy *StrategyConfig `yaml:"query_strategy"`
}

// DefaultPipeline fuses a history-concatenation strategy with an LLM rewrite
// and, when enabled, reranks against the LLM query.
func DefaultPipeline(cfg Config) Pipeline {
	p := Pipeline{
		NumHits:     cfg.RetrievalNumHits,
		RRFK:        cfg.RetrievalRRFK,
		EarlyFusion: cfg.EarlyFusion,
		Parallel:    cfg.ParallelRewrite,
		Strategies: []StrategyConfig{
			{Name: "concat", Method: MethodConcat, Window: cfg.ConcatWindow},
			{Name: "llm", Method: MethodLLM, Window: cfg.LLMRewriteWindow},
		},
		Rerank: RerankConfig{
			Enabled:    cfg.RerankEnabled,
			QueryIndex: cfg.RerankQueryIndex,
		},
	}
	if method := strings.TrimSpace(cfg.RerankQueryMethod); method != "" {
		p.Rerank.QueryStrategy = &StrategyConfig{Name: "rerank-" + method, Method: method, Window: 1}
	}
	return p
}

// LoadPipeline returns the pipeline from cfg.PipelineFile, falling back to
// DefaultPipeline when no file is configured. Keys absent from the file keep
// their env defaults.
func LoadPipeline(cfg Config) (Pipeline, error) {
	p := DefaultPipeline(cfg)
	if strings.TrimSpace(cfg.PipelineFile) == "" {
		return p, p.Validate()
	}

	data, err := os.ReadFile(cfg.PipelineFile)
	if err != nil {
		return Pipeline{}, fmt.Errorf("read pipeline file: %w", err)
	}
	return ParsePipeline(data, p)
}

// ParsePipeline decodes YAML over base and validates the result.
func ParsePipeline(data []byte, base Pipeline) (Pipeline, error) {
	p := base
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return Pipeline{}, domain.WrapError(domain.ErrInvalidConfig, "parse pipeline", err)
	}
	return p, p.Validate()
}

func (p Pipeline) Validate() error {
	const op = "validate pipeline"

	if len(p.Strategies) == 0 {
		return domain.WrapError(domain.ErrInvalidConfig, op, errors.New("at least one strategy is required"))
	}
	seen := make(map[string]struct{}, len(p.Strategies))
	for i, s := range p.Strategies {
		if err := s.validate(); err != nil {
			return domain.WrapError(domain.ErrInvalidConfig, op, fmt.Errorf("strategy %d: %w", i, err))
		}
		if _, dup := seen[s.Name]; dup {
			return domain.WrapError(domain.ErrInvalidConfig, op, fmt.Errorf("duplicate strategy name %q", s.Name))
		}
		seen[s.Name] = struct{}{}
	}

	if p.Rerank.QueryStrategy != nil {
		if err := p.Rerank.QueryStrategy.validate(); err != nil {
			return domain.WrapError(domain.ErrInvalidConfig, op, fmt.Errorf("rerank query strategy: %w", err))
		}
		return nil
	}
	n := len(p.Strategies)
	if p.Rerank.QueryIndex < -n || p.Rerank.QueryIndex >= n {
		return domain.WrapError(domain.ErrInvalidConfig, op, fmt.Errorf(
			"rerank query index %d out of range for %d strategies", p.Rerank.QueryIndex, n))
	}
	return nil
}

func (s StrategyConfig) validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("name is required")
	}
	switch s.Method {
	case MethodRaw, MethodConcat, MethodLLM:
	default:
		return fmt.Errorf("unknown method %q", s.Method)
	}
	if s.Window < 0 {
		return fmt.Errorf("window must not be negative, got %d", s.Window)
	}
	return nil
}

// UsesLLM reports whether any strategy needs the LLM client.
func (p Pipeline) UsesLLM() bool {
	for _, s := range p.Strategies {
		if s.Method == MethodLLM {
			return true
		}
	}
	return p.Rerank.QueryStrategy != nil && p.Rerank.QueryStrategy.Method == MethodLLM
}

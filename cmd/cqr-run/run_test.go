package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/kirillkom/conversational-search/internal/config"
)

func basePipeline() config.Pipeline {
	return config.Pipeline{
		NumHits:     10,
		RRFK:        60,
		EarlyFusion: true,
		Strategies:  []config.StrategyConfig{{Name: "origin", Method: config.MethodRaw}},
		Rerank:      config.RerankConfig{QueryIndex: -1},
	}
}

func TestApplyFlagsOverridesOnlyChangedFlags(t *testing.T) {
	cmd := runCmd()
	if err := cmd.ParseFlags([]string{"--topics", "t.json", "--early-fusion=false", "--rrf-k", "20"}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	flags := runFlags{
		numHits:     1000,
		rrfK:        20,
		earlyFusion: false,
	}

	p := applyFlags(cmd, flags, basePipeline())
	if p.EarlyFusion {
		t.Fatalf("expected early fusion disabled")
	}
	if p.RRFK != 20 {
		t.Fatalf("expected rrf k 20, got %d", p.RRFK)
	}
	if p.NumHits != 10 {
		t.Fatalf("expected unchanged num hits, got %d", p.NumHits)
	}
	if p.Rerank.Enabled {
		t.Fatalf("expected rerank untouched")
	}
}

func TestRunRequiresTopicsFlag(t *testing.T) {
	cmd := runCmd()
	cmd.SetArgs([]string{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "topics") {
		t.Fatalf("expected missing topics error, got %v", err)
	}
}

func TestVersionPrintsBuildInfo(t *testing.T) {
	var out bytes.Buffer
	cmd := versionCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.HasPrefix(out.String(), "cqr-run "+Version) {
		t.Fatalf("unexpected version output: %q", out.String())
	}
}

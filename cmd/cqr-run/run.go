package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kirillkom/conversational-search/internal/bootstrap"
	"github.com/kirillkom/conversational-search/internal/config"
	"github.com/kirillkom/conversational-search/internal/core/usecase"
	"github.com/kirillkom/conversational-search/internal/observability/logging"
)

const serviceName = "cqr-run"

type runFlags struct {
	topics      string
	output      string
	pipeline    string
	logFormat   string
	numHits     int
	rrfK        int
	rerank      bool
	earlyFusion bool
	parallel    bool
}

func runCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Retrieve every turn of a topics file and write a ranked run",
		Long: `Run reads a CAsT-style topics file, retrieves each turn in order with a
fresh conversation per topic and writes "<qid>\t<doc_id>\t<rank>" lines to
<output>.tsv.

Examples:
  cqr-run run --topics topics.json --output runs/cqr
  cqr-run run --topics topics.json --output runs/late --early-fusion=false --rerank`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runBatch(ctx, cmd, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.topics, "topics", "t", "", "topics JSON file")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "run", "output path without the .tsv suffix")
	cmd.Flags().StringVar(&flags.pipeline, "pipeline", "", "pipeline YAML file (overrides PIPELINE_FILE)")
	cmd.Flags().StringVar(&flags.logFormat, "log-format", "text", "log format (text, json)")
	cmd.Flags().IntVarP(&flags.numHits, "hits", "n", 1000, "hits per search")
	cmd.Flags().IntVar(&flags.rrfK, "rrf-k", usecase.DefaultRRFK, "reciprocal rank fusion constant")
	cmd.Flags().BoolVar(&flags.rerank, "rerank", false, "rerank with the LLM reranker")
	cmd.Flags().BoolVar(&flags.earlyFusion, "early-fusion", true, "fuse before reranking")
	cmd.Flags().BoolVar(&flags.parallel, "parallel", false, "run rewrite strategies concurrently")
	_ = cmd.MarkFlagRequired("topics")

	return cmd
}

func runBatch(ctx context.Context, cmd *cobra.Command, flags runFlags) error {
	cfg := config.Load()
	if flags.pipeline != "" {
		cfg.PipelineFile = flags.pipeline
	}
	logger := logging.New(serviceName, cfg.LogLevel, flags.logFormat, cmd.ErrOrStderr())

	pipeline, err := config.LoadPipeline(cfg)
	if err != nil {
		return err
	}
	pipeline = applyFlags(cmd, flags, pipeline)

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Logger:   logger,
		Pipeline: &pipeline,
	})
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	topicsPath, err := filepath.Abs(flags.topics)
	if err != nil {
		return fmt.Errorf("resolve topics path: %w", err)
	}
	topics, err := app.Storage.LoadTopics(ctx, topicsPath)
	if err != nil {
		return err
	}

	runPath, err := filepath.Abs(strings.TrimSuffix(flags.output, ".tsv") + ".tsv")
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}
	run, err := app.Storage.CreateRun(ctx, runPath)
	if err != nil {
		return err
	}

	retriever, err := app.NewRetriever()
	if err != nil {
		_ = run.Close()
		return err
	}

	summary, runErr := usecase.NewBatchRunner(retriever, logger).Run(ctx, topics, run)
	if err := run.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close run file: %w", err)
	}
	if runErr != nil {
		return runErr
	}

	logger.Info("run_written",
		"path", runPath,
		"topics", summary.Topics,
		"turns", summary.Turns,
		"failed", summary.Failed,
		"lines", run.Lines(),
		"seconds_per_query", summary.SecondsPerQuery(),
	)
	return nil
}

// applyFlags overlays flags the user set explicitly; unset flags leave the
// pipeline from env or file untouched.
func applyFlags(cmd *cobra.Command, flags runFlags, p config.Pipeline) config.Pipeline {
	changed := cmd.Flags().Changed
	if changed("hits") {
		p.NumHits = flags.numHits
	}
	if changed("rrf-k") {
		p.RRFK = flags.rrfK
	}
	if changed("rerank") {
		p.Rerank.Enabled = flags.rerank
	}
	if changed("early-fusion") {
		p.EarlyFusion = flags.earlyFusion
	}
	if changed("parallel") {
		p.Parallel = flags.parallel
	}
	return p
}

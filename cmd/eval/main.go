// Command eval runs a question/ground-truth dataset through the RAG service,
// grades every answer with an LLM judge and writes a CSV or XLSX report.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/WessleyAI/ragchat/engine/app"
	"github.com/WessleyAI/ragchat/engine/eval"
	"github.com/WessleyAI/ragchat/pkg/config"
	"github.com/WessleyAI/ragchat/pkg/ollama"
	"github.com/joho/godotenv"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML config file (defaults to $CONFIG_FILE)")
		dataset    = flag.String("dataset", "", "JSON array of {question, ground_truth}")
		doc        = flag.String("doc", "", "document to ingest into a freshly reset collection first")
		out        = flag.String("out", "results.csv", "report path, .csv or .xlsx")
		judgeModel = flag.String("judge-model", "", "Ollama model for grading (defaults to LLM_MODEL)")
	)
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log := cfg.NewLogger(os.Stderr)
	slog.SetDefault(log)

	if *dataset == "" {
		fmt.Fprintln(os.Stderr, "eval: -dataset is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, log, *dataset, *doc, *out, *judgeModel); err != nil {
		log.Error("eval failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger, dataset, doc, out, judgeModel string) error {
	cases, err := eval.LoadCases(dataset)
	if err != nil {
		return err
	}

	a, err := app.Build(ctx, cfg, log, app.Options{Probe: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if doc != "" {
		raw, err := os.ReadFile(doc)
		if err != nil {
			return err
		}
		if err := a.Collection.Reset(ctx); err != nil {
			return err
		}
		n, err := a.Collection.Ingest(ctx, filepath.Base(doc), raw)
		if err != nil {
			return err
		}
		log.Info("evaluation document ingested", "doc", doc, "chunks", n)
	}

	judgeLLM := a.LLM
	if judgeModel != "" && judgeModel != cfg.LLMModel {
		m, err := ollama.NewLLM(cfg.OllamaBaseURL, judgeModel)
		if err != nil {
			return fmt.Errorf("judge model: %w", err)
		}
		judgeLLM = m
	}

	results, err := eval.Run(ctx, a.RAG, eval.NewJudge(judgeLLM, log), cases, log)
	if err != nil {
		return err
	}
	if err := eval.WriteReport(out, results); err != nil {
		return err
	}

	avg := eval.Average(results)
	log.Info("evaluation complete",
		"cases", len(results),
		"report", out,
		"retrieval_accuracy", avg.RetrievalAccuracy,
		"retrieval_precision", avg.RetrievalPrecision,
		"contextual_accuracy", avg.ContextualAccuracy,
		"contextual_precision", avg.ContextualPrecision,
	)
	return nil
}

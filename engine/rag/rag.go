// Package rag answers questions over the ingested documents with a fixed
// two-node pipeline: retrieve the most similar chunks, then generate an
// answer from them.
package rag

import (
	"context"
	"log/slog"
	"time"

	"github.com/WessleyAI/ragchat/engine/domain"
	"github.com/WessleyAI/ragchat/pkg/fn"
	"github.com/WessleyAI/ragchat/pkg/metrics"
)

// Pipeline states, as logged.
const (
	StateRetrieving = "retrieving"
	StateGenerating = "generating"
	StateDone       = "done"
)

// Options configures the pipeline.
type Options struct {
	TopK int
	// StrictGuards answers greetings and empty contexts without the model.
	StrictGuards bool
}

// DefaultOptions returns the defaults used by the server.
func DefaultOptions() Options {
	return Options{TopK: DefaultTopK, StrictGuards: true}
}

// Service runs the question-answering pipeline.
type Service struct {
	retriever *Retriever
	generator *Generator
	pipeline  fn.Stage[domain.PipelineState, domain.PipelineState]
	logger    *slog.Logger

	answered *metrics.Counter
	failed   *metrics.Counter
	latency  *metrics.Histogram
}

// New creates a Service. reg and logger may be nil.
func New(embed QueryEmbedder, search Searcher, model ChatModel, opts Options, reg *metrics.Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = metrics.New()
	}
	s := &Service{
		retriever: NewRetriever(embed, search, opts.TopK),
		generator: NewGenerator(model, opts.StrictGuards),
		logger:    logger,
		answered:  reg.Counter(metrics.WithLabels("ragchat_ask_total", "result", "ok"), "Questions by result"),
		failed:    reg.Counter(metrics.WithLabels("ragchat_ask_total", "result", "error"), "Questions by result"),
		latency:   reg.Histogram("ragchat_ask_duration_seconds", "End-to-end question latency", nil),
	}
	s.pipeline = fn.Then(
		fn.TracedStage("rag.retrieve", s.retrieveStage()),
		fn.TracedStage("rag.generate", s.generateStage()),
	)
	return s
}

func (s *Service) retrieveStage() fn.Stage[domain.PipelineState, domain.PipelineState] {
	return fn.Lift(func(ctx context.Context, st domain.PipelineState) (domain.PipelineState, error) {
		s.logger.Info("rag stage", "state", StateRetrieving)
		texts, err := s.retriever.Retrieve(ctx, st.Question)
		if err != nil {
			return st, err
		}
		st.Context = texts
		return st, nil
	})
}

func (s *Service) generateStage() fn.Stage[domain.PipelineState, domain.PipelineState] {
	return fn.Lift(func(ctx context.Context, st domain.PipelineState) (domain.PipelineState, error) {
		s.logger.Info("rag stage", "state", StateGenerating, "context_chunks", len(st.Context))
		answer, err := s.generator.Generate(ctx, st.Question, st.Context)
		if err != nil {
			return st, err
		}
		st.Answer = answer
		return st, nil
	})
}

// Ask runs Retrieving → Generating → Done for question. Any node failure
// aborts the run and no partial state is returned.
func (s *Service) Ask(ctx context.Context, question string) (domain.PipelineState, error) {
	if err := domain.ValidateQuestion(question); err != nil {
		s.failed.Inc()
		return domain.PipelineState{}, err
	}

	start := time.Now()
	defer s.latency.Since(start)

	st, err := s.pipeline(ctx, domain.PipelineState{Question: question}).Unwrap()
	if err != nil {
		s.failed.Inc()
		s.logger.Warn("rag pipeline failed", "err", err)
		return domain.PipelineState{}, err
	}
	if st.Context == nil {
		st.Context = []string{}
	}
	s.answered.Inc()
	s.logger.Info("rag stage", "state", StateDone, "duration", time.Since(start))
	return st, nil
}

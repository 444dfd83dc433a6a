// Package app builds the service graph from configuration. Every binary
// under cmd/ calls Build and injects the result into its own front end.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/WessleyAI/ragchat/engine/ingest"
	"github.com/WessleyAI/ragchat/engine/rag"
	"github.com/WessleyAI/ragchat/engine/semantic"
	"github.com/WessleyAI/ragchat/pkg/config"
	"github.com/WessleyAI/ragchat/pkg/fn"
	"github.com/WessleyAI/ragchat/pkg/hashembed"
	"github.com/WessleyAI/ragchat/pkg/metrics"
	"github.com/WessleyAI/ragchat/pkg/ollama"
	"github.com/WessleyAI/ragchat/pkg/resilience"
	"github.com/nats-io/nats.go"
)

// Store is everything the service needs from a vector store backend.
type Store interface {
	ingest.Store
	rag.Searcher
	Collection() string
	Close() error
}

// Embedder serves both document batches and single queries.
type Embedder interface {
	ingest.Embedder
	rag.QueryEmbedder
}

// App is the wired service graph.
type App struct {
	Config     config.Config
	Logger     *slog.Logger
	Metrics    *metrics.Registry
	Store      Store
	Embedder   Embedder
	LLM        ollama.ChatModel
	Collection *ingest.Coordinator
	RAG        *rag.Service
}

// Options carries optional collaborators for Build.
type Options struct {
	// Events receives ingest and reset events when non-nil.
	Events *nats.Conn
	// LLM replaces the Ollama chat model.
	LLM ollama.ChatModel
	// Probe waits for the vector store before returning.
	Probe bool
}

// Build wires store, embedder, model, coordinator and RAG service from cfg.
func Build(ctx context.Context, cfg config.Config, log *slog.Logger, opts Options) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	reg := metrics.New()

	store, err := NewStore(cfg, log)
	if err != nil {
		return nil, err
	}
	if opts.Probe {
		if err := waitForStore(ctx, store, log); err != nil {
			store.Close()
			return nil, err
		}
	}

	embedder := NewEmbedder(cfg, log)

	model := opts.LLM
	if model == nil {
		llm, err := ollama.NewLLM(cfg.OllamaBaseURL, cfg.LLMModel)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("app: llm: %w", err)
		}
		model = ollama.Guarded{Model: llm, Breaker: newBreaker(cfg, "ollama-chat", log)}
	}

	coll := ingest.NewCoordinator(ingest.Deps{
		Embedder: embedder,
		Store:    store,
		Splitter: ingest.Splitter{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap, Strategy: cfg.ChunkStrategy},
		Events:   opts.Events,
		Metrics:  reg,
		Logger:   log,
	})
	svc := rag.New(embedder, store, model, rag.Options{TopK: cfg.TopK, StrictGuards: cfg.StrictGuards}, reg, log)

	log.Info("service wired",
		"vector_backend", cfg.VectorBackend,
		"collection", store.Collection(),
		"embed_backend", cfg.EmbedBackend,
		"llm_model", cfg.LLMModel,
		"chunk_strategy", cfg.ChunkStrategy,
	)
	return &App{
		Config:     cfg,
		Logger:     log,
		Metrics:    reg,
		Store:      store,
		Embedder:   embedder,
		LLM:        model,
		Collection: coll,
		RAG:        svc,
	}, nil
}

// Close releases the store connection.
func (a *App) Close() error {
	return a.Store.Close()
}

// NewStore opens the configured vector store backend.
func NewStore(cfg config.Config, log *slog.Logger) (Store, error) {
	switch cfg.VectorBackend {
	case config.BackendChromem:
		if cfg.ChromemPath == "" {
			log.Warn("chromem store is in memory; the collection is lost on exit")
		}
		store, err := semantic.NewMemoryStore(cfg.ChromemPath, cfg.Collection)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendQdrant, "":
		store, err := semantic.New(cfg.QdrantURL, cfg.Collection, cfg.VectorSize)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("app: unknown vector backend %q", cfg.VectorBackend)
	}
}

// NewEmbedder returns the configured embedding backend.
func NewEmbedder(cfg config.Config, log *slog.Logger) Embedder {
	if cfg.EmbedBackend == config.EmbedHash {
		return hashembed.New(cfg.HashDimensions)
	}
	return ollama.NewEmbedClient(cfg.OllamaBaseURL, cfg.EmbedModel,
		ollama.WithWorkers(cfg.EmbedWorkers),
		ollama.WithRateLimit(cfg.EmbedRateLimit),
		ollama.WithBreaker(newBreaker(cfg, "ollama-embed", log)),
	)
}

// newBreaker returns nil when breaking is disabled; a nil Breaker passes
// every call through.
func newBreaker(cfg config.Config, name string, log *slog.Logger) *resilience.Breaker {
	if cfg.BreakerThreshold <= 0 {
		return nil
	}
	return resilience.NewBreaker(resilience.BreakerOpts{
		Name:          name,
		FailThreshold: cfg.BreakerThreshold,
		Timeout:       cfg.BreakerTimeout,
		OnStateChange: func(name string, from, to resilience.State) {
			log.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

func waitForStore(ctx context.Context, store Store, log *slog.Logger) error {
	opts := fn.StartupRetry
	opts.OnRetry = func(attempt int, err error) {
		log.Warn("vector store not ready", "attempt", attempt, "err", err)
	}
	res := fn.Retry(ctx, opts, func(ctx context.Context) fn.Result[int] {
		n, err := store.Count(ctx)
		return fn.FromPair(n, err)
	})
	n, err := res.Unwrap()
	if err != nil {
		return errors.Join(fmt.Errorf("app: vector store %s not reachable", store.Collection()), err)
	}
	log.Info("vector store ready", "collection", store.Collection(), "records", n)
	return nil
}

// Package ingest turns uploaded files into stored, embedded chunks. Every
// mutation of the collection goes through a Coordinator.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/WessleyAI/ragchat/engine/domain"
	"github.com/WessleyAI/ragchat/engine/semantic"
	"github.com/WessleyAI/ragchat/pkg/fn"
	"github.com/WessleyAI/ragchat/pkg/metrics"
	"github.com/WessleyAI/ragchat/pkg/natsutil"
	"github.com/nats-io/nats.go"
)

// EventsSubject carries ingest and reset notifications.
const EventsSubject = "ragchat.events"

// Event types.
const (
	EventIngestCompleted = "ingest.completed"
	EventCollectionReset = "collection.reset"
)

// Event is published after every successful collection mutation.
type Event struct {
	Type     string    `json:"type"`
	Filename string    `json:"filename,omitempty"`
	Chunks   int       `json:"chunks"`
	At       time.Time `json:"at"`
}

// Embedder computes embeddings for a batch of texts, index-aligned.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Store is the collection the coordinator mutates.
type Store interface {
	Upsert(ctx context.Context, records []semantic.VectorRecord) error
	ResetCollection(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

// Deps holds the external dependencies for the ingestion pipeline.
type Deps struct {
	Embedder Embedder
	Store    Store
	Splitter Splitter
	// Events is optional; nil disables event publication.
	Events  *nats.Conn
	Metrics *metrics.Registry
	Logger  *slog.Logger
}

// Document is a named upload.
type Document struct {
	Filename string
	Raw      []byte
}

type chunkedDoc struct {
	Filename string
	Chunks   []domain.Chunk
}

type embeddedDoc struct {
	chunkedDoc
	Vectors [][]float32
}

// --- Pipeline Stages ---

// NewChunk creates the stage that loads and splits a document.
func NewChunk(s Splitter) fn.Stage[Document, chunkedDoc] {
	return fn.Lift(func(_ context.Context, doc Document) (chunkedDoc, error) {
		chunks, err := s.Split(doc.Raw, doc.Filename)
		if err != nil {
			return chunkedDoc{}, err
		}
		return chunkedDoc{Filename: doc.Filename, Chunks: chunks}, nil
	})
}

// NewEmbed creates the stage that embeds every chunk in one batch.
func NewEmbed(e Embedder) fn.Stage[chunkedDoc, embeddedDoc] {
	return fn.Lift(func(ctx context.Context, doc chunkedDoc) (embeddedDoc, error) {
		texts := make([]string, len(doc.Chunks))
		for i, c := range doc.Chunks {
			texts[i] = c.Text
		}
		vecs, err := e.EmbedBatch(ctx, texts)
		if err != nil {
			return embeddedDoc{}, domain.Wrap("ingest: embed "+doc.Filename, domain.ErrEmbeddingService, err)
		}
		if len(vecs) != len(texts) {
			return embeddedDoc{}, domain.Errorf("ingest: embed "+doc.Filename, domain.ErrEmbeddingService,
				"got %d vectors for %d chunks", len(vecs), len(texts))
		}
		return embeddedDoc{chunkedDoc: doc, Vectors: vecs}, nil
	})
}

// NewStore creates the stage that writes all records in a single upsert.
func NewStore(s Store) fn.Stage[embeddedDoc, int] {
	return fn.Lift(func(ctx context.Context, doc embeddedDoc) (int, error) {
		records := make([]semantic.VectorRecord, len(doc.Chunks))
		for i, c := range doc.Chunks {
			records[i] = semantic.VectorRecord{Vector: doc.Vectors[i], Text: c.Text, Source: c.Source}
		}
		if err := s.Upsert(ctx, records); err != nil {
			return 0, domain.Wrap("ingest: store "+doc.Filename, domain.ErrStoreUnavailable, err)
		}
		return len(records), nil
	})
}

// LoggedTap returns a stage that logs entry and exit of the named stage.
func LoggedTap[T any](name string, log *slog.Logger) fn.Stage[T, T] {
	return fn.Tap(func(_ context.Context, _ T) {
		log.Info("ingest stage enter", "stage", name)
	})
}

// timed wraps stage with enter and exit logging including its duration.
func timed[In, Out any](name string, log *slog.Logger, stage fn.Stage[In, Out]) fn.Stage[In, Out] {
	run := fn.Stage[In, Out](func(ctx context.Context, in In) fn.Result[Out] {
		start := time.Now()
		r := stage(ctx, in)
		log.Info("ingest stage exit", "stage", name, "duration", time.Since(start), "ok", r.IsOk())
		return r
	})
	return fn.Then(LoggedTap[In](name, log), run)
}

// NewPipeline composes chunk → embed → store.
func NewPipeline(deps Deps) fn.Stage[Document, int] {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	chunked := fn.TracedStage("ingest.chunk", timed("chunk", log, NewChunk(deps.Splitter)))
	embedded := fn.TracedStage("ingest.embed", timed("embed", log, NewEmbed(deps.Embedder)))
	stored := fn.TracedStage("ingest.store", timed("store", log, NewStore(deps.Store)))
	return fn.Then(chunked, fn.Then(embedded, stored))
}

// Coordinator serializes ingests and resets so that a reset never
// interleaves with an in-flight ingest.
type Coordinator struct {
	mu       sync.Mutex
	pipeline fn.Stage[Document, int]
	store    Store
	events   *nats.Conn
	log      *slog.Logger

	ingested *metrics.Counter
	failed   *metrics.Counter
	chunks   *metrics.Counter
	resets   *metrics.Counter
}

// NewCoordinator wires the ingestion pipeline around deps.
func NewCoordinator(deps Deps) *Coordinator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Splitter.Size == 0 {
		deps.Splitter = DefaultSplitter()
	}
	reg := deps.Metrics
	if reg == nil {
		reg = metrics.New()
	}
	return &Coordinator{
		pipeline: NewPipeline(deps),
		store:    deps.Store,
		events:   deps.Events,
		log:      deps.Logger,
		ingested: reg.Counter(metrics.WithLabels("ragchat_ingest_total", "result", "ok"), "Ingest requests by result"),
		failed:   reg.Counter(metrics.WithLabels("ragchat_ingest_total", "result", "error"), "Ingest requests by result"),
		chunks:   reg.Counter("ragchat_ingest_chunks_total", "Chunks written to the collection"),
		resets:   reg.Counter("ragchat_reset_total", "Collection resets"),
	}
}

// Ingest splits, embeds and stores one document and returns the number of
// chunks written. Nothing is written unless every chunk was embedded.
func (c *Coordinator) Ingest(ctx context.Context, filename string, raw []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.pipeline(ctx, Document{Filename: filename, Raw: raw}).Unwrap()
	if err != nil {
		c.failed.Inc()
		return 0, err
	}
	c.ingested.Inc()
	c.chunks.Add(int64(n))
	c.log.Info("document ingested", "filename", filename, "chunks", n)
	c.publish(ctx, Event{Type: EventIngestCompleted, Filename: filename, Chunks: n})
	return n, nil
}

// Reset empties the collection.
func (c *Coordinator) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.ResetCollection(ctx); err != nil {
		return domain.Wrap("ingest: reset", domain.ErrStoreUnavailable, err)
	}
	c.resets.Inc()
	c.log.Info("collection reset")
	c.publish(ctx, Event{Type: EventCollectionReset})
	return nil
}

// Count returns the number of stored chunks.
func (c *Coordinator) Count(ctx context.Context) (int, error) {
	n, err := c.store.Count(ctx)
	if err != nil {
		return 0, domain.Wrap("ingest: count", domain.ErrStoreUnavailable, err)
	}
	return n, nil
}

func (c *Coordinator) publish(ctx context.Context, ev Event) {
	if c.events == nil {
		return
	}
	ev.At = time.Now().UTC()
	if err := natsutil.Publish(ctx, c.events, EventsSubject, ev); err != nil {
		c.log.Warn("event publish failed", "type", ev.Type, "err", err)
	}
}

// Message returns the user-facing summary of a successful ingest.
func Message(filename string, chunks int) string {
	return fmt.Sprintf("Ingested %d chunks from %s.", chunks, filename)
}

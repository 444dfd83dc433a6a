// Package server exposes the ingest and question-answering pipelines over HTTP.
package server

import (
	"context"
	"embed"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/WessleyAI/ragchat/engine/domain"
	"github.com/WessleyAI/ragchat/pkg/metrics"
	"github.com/WessleyAI/ragchat/pkg/mid"
	"github.com/go-chi/chi/v5"
)

//go:embed static
var staticFiles embed.FS

// DefaultMaxUploadBytes caps multipart uploads.
const DefaultMaxUploadBytes = 32 << 20

// Asker answers questions.
type Asker interface {
	Ask(ctx context.Context, question string) (domain.PipelineState, error)
}

// Collection ingests documents into, and resets, the shared collection.
type Collection interface {
	Ingest(ctx context.Context, filename string, raw []byte) (int, error)
	Reset(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

// Options configures the HTTP layer.
type Options struct {
	MaxUploadBytes int64
	CORSOrigin     string
	Metrics        *metrics.Registry
	Logger         *slog.Logger
}

// Server holds the HTTP handlers.
type Server struct {
	rag        Asker
	collection Collection
	opts       Options
	logger     *slog.Logger
}

// New creates a Server.
func New(rag Asker, collection Collection, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.CORSOrigin == "" {
		opts.CORSOrigin = "*"
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	return &Server{rag: rag, collection: collection, opts: opts, logger: opts.Logger}
}

// Handler returns the routed handler with the middleware stack applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		mid.Logger(s.logger),
		mid.Recover(s.logger),
		mid.CORS(s.opts.CORSOrigin),
		mid.OTel("ragchat"),
		mid.Metrics(s.opts.Metrics),
	)

	r.Post("/ingest", s.handleIngest)
	r.Post("/ask", s.handleAsk)
	r.Post("/delete_context", s.handleDeleteContext)
	r.Get("/test", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.opts.Metrics.Handler())

	static, _ := fs.Sub(staticFiles, "static")
	r.Handle("/*", http.FileServer(http.FS(static)))
	return r
}

package rag

import (
	"context"

	"github.com/WessleyAI/ragchat/engine/domain"
	"github.com/WessleyAI/ragchat/engine/semantic"
)

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 4

// QueryEmbedder embeds a single question.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher abstracts vector search.
type Searcher interface {
	Search(ctx context.Context, vector []float32, topK int) ([]semantic.SearchResult, error)
}

// Retriever fetches the chunk texts most similar to a question.
type Retriever struct {
	embed  QueryEmbedder
	search Searcher
	topK   int
}

// NewRetriever creates a Retriever returning at most topK texts.
func NewRetriever(embed QueryEmbedder, search Searcher, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{embed: embed, search: search, topK: topK}
}

// Retrieve returns chunk texts in descending similarity order. An empty
// collection yields an empty, non-nil slice.
func (r *Retriever) Retrieve(ctx context.Context, question string) ([]string, error) {
	vec, err := r.embed.Embed(ctx, question)
	if err != nil {
		return nil, domain.Wrap("rag: embed query", domain.ErrEmbeddingService, err)
	}
	results, err := r.search.Search(ctx, vec, r.topK)
	if err != nil {
		return nil, domain.Wrap("rag: search", domain.ErrStoreUnavailable, err)
	}
	texts := make([]string, 0, len(results))
	for _, res := range results {
		texts = append(texts, res.Text)
	}
	return texts, nil
}

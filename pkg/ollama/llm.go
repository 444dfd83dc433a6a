package ollama

import (
	"context"

	"github.com/WessleyAI/ragchat/pkg/resilience"
	"github.com/tmc/langchaingo/llms"
	lcollama "github.com/tmc/langchaingo/llms/ollama"
)

// ChatModel is the part of llms.Model the service needs.
type ChatModel interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// NewLLM returns a langchaingo chat model served by Ollama at baseURL.
func NewLLM(baseURL, model string) (*lcollama.LLM, error) {
	return lcollama.New(lcollama.WithServerURL(baseURL), lcollama.WithModel(model))
}

// Guarded routes every generation call of Model through Breaker.
type Guarded struct {
	Model   ChatModel
	Breaker *resilience.Breaker
}

// GenerateContent implements ChatModel.
func (g Guarded) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var resp *llms.ContentResponse
	err := g.Breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		resp, err = g.Model.GenerateContent(ctx, messages, options...)
		return err
	})
	return resp, err
}

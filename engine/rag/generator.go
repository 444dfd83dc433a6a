package rag

import (
	"context"
	"regexp"
	"strings"

	"github.com/WessleyAI/ragchat/engine/domain"
	"github.com/tmc/langchaingo/llms"
)

// FallbackAnswer is returned when the documents do not contain the answer.
const FallbackAnswer = "I don't know the answer to that based on the uploaded documents."

// GreetingReply answers a bare greeting when strict guards are on.
const GreetingReply = "Hello! How can I help you with your documents today?"

const promptTemplate = `You are an AI assistant that answers questions using the provided context.

Follow these rules:

Rule 1:
If the user message is a greeting such as hi, hello, hey, good morning, good evening or how are you,
reply with a short friendly greeting in your own words.

Rule 2:
If the answer exists in the context, respond using ONLY the context.

Rule 3:
If the context is empty, unrelated to the question, or does not contain the answer, respond with:
"` + FallbackAnswer + `"
You may add one short polite sentence, without adding any facts.

Rule 4:
Keep answers short, natural and conversational. Never invent facts.

Context:
{context}

User:
{question}

Assistant Response:`

// ChatModel is the part of llms.Model the generator needs.
type ChatModel interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Generator renders the prompt and asks the model for an answer.
type Generator struct {
	model  ChatModel
	strict bool
}

// NewGenerator creates a Generator. With strict set, greetings and empty
// contexts are answered without calling the model.
func NewGenerator(model ChatModel, strict bool) *Generator {
	return &Generator{model: model, strict: strict}
}

// Prompt renders the generation prompt for question over the retrieved chunks.
func Prompt(question string, chunks []string) string {
	r := strings.NewReplacer("{context}", strings.Join(chunks, "\n\n"), "{question}", question)
	return r.Replace(promptTemplate)
}

// Generate answers question from the retrieved chunks.
func (g *Generator) Generate(ctx context.Context, question string, chunks []string) (string, error) {
	if g.strict {
		if IsGreeting(question) {
			return GreetingReply, nil
		}
		if len(chunks) == 0 {
			return FallbackAnswer, nil
		}
	}

	msgs := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, Prompt(question, chunks))}
	resp, err := g.model.GenerateContent(ctx, msgs, llms.WithTemperature(0))
	if err != nil {
		return "", domain.Wrap("rag: generate", domain.ErrGenerationService, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", domain.Errorf("rag: generate", domain.ErrGenerationService, "model returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

var greetingRe = regexp.MustCompile(`^(?:(?:hi|hello|hey|good (?:morning|afternoon|evening)|how are you)(?: there)?[\s!.,?]*)+$`)

// IsGreeting reports whether question consists only of greeting phrases.
func IsGreeting(question string) bool {
	q := strings.Join(strings.Fields(strings.ToLower(question)), " ")
	return q != "" && greetingRe.MatchString(q)
}

package eval

import (
	"context"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

const retrievalAccuracyPrompt = `You are a judge evaluating retrieval quality.
Question: {question}
Correct Answer (Ground Truth): {ground_truth}
Retrieved Context: {context}

Does the Retrieved Context contain the information needed to answer the question as per the Ground Truth?
Rate from 1 to 5.
1 = Not at all (context is irrelevant or missing the information)
3 = Partially (some information is there, some is missing)
5 = Fully (all necessary information is present)

Output ONLY the number (1-5).`

const retrievalPrecisionPrompt = `You are a judge evaluating retrieval precision.
Question: {question}
Retrieved Context: {context}

How much of the Retrieved Context is relevant to the Question?
Rate from 1 to 5.
1 = Mostly noise
3 = Mixed, about half relevant
5 = Highly precise, almost all relevant

Output ONLY the number (1-5).`

const contextualAccuracyPrompt = `You are a strict examiner grading an exam.
Question: {question}
Student Answer: {answer}
Correct Answer (Ground Truth): {ground_truth}

Grade the Student Answer from 1 to 5 by how well it matches the Correct Answer.
1 = Completely wrong
3 = Partially correct
5 = Completely correct

Output ONLY the number (1-5).`

const contextualPrecisionPrompt = `You are a judge evaluating whether an answer is relevant to the question.
Question: {question}
Answer: {answer}

Rate relevance from 1 to 5.
1 = Irrelevant or hallucinated
3 = Somewhat relevant
5 = Highly relevant, a direct answer

Output ONLY the number (1-5).`

// Judge scores answers with an LLM at temperature 0.
type Judge struct {
	model ChatModel
	log   *slog.Logger
}

// NewJudge creates a Judge backed by model.
func NewJudge(model ChatModel, log *slog.Logger) *Judge {
	if log == nil {
		log = slog.Default()
	}
	return &Judge{model: model, log: log}
}

// Grade runs the four metric prompts. A failed or unparseable judgement
// scores 0 for that metric.
func (j *Judge) Grade(ctx context.Context, question, answer, groundTruth, contextText string) Scores {
	fill := strings.NewReplacer(
		"{question}", question,
		"{answer}", answer,
		"{ground_truth}", groundTruth,
		"{context}", contextText,
	)
	return Scores{
		RetrievalAccuracy:   j.score(ctx, "retrieval_accuracy", fill.Replace(retrievalAccuracyPrompt)),
		RetrievalPrecision:  j.score(ctx, "retrieval_precision", fill.Replace(retrievalPrecisionPrompt)),
		ContextualAccuracy:  j.score(ctx, "contextual_accuracy", fill.Replace(contextualAccuracyPrompt)),
		ContextualPrecision: j.score(ctx, "contextual_precision", fill.Replace(contextualPrecisionPrompt)),
	}
}

func (j *Judge) score(ctx context.Context, metric, prompt string) int {
	msgs := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}
	resp, err := j.model.GenerateContent(ctx, msgs, llms.WithTemperature(0))
	if err != nil {
		j.log.Warn("eval: judge failed", "metric", metric, "err", err)
		return 0
	}
	if resp == nil || len(resp.Choices) == 0 {
		return 0
	}
	return ParseScore(resp.Choices[0].Content)
}

// ParseScore returns the first digit in s when it is 1-5, otherwise 0.
func ParseScore(s string) int {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			if r >= '1' && r <= '5' {
				return int(r - '0')
			}
			return 0
		}
	}
	return 0
}

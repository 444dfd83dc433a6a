// Package eval grades the question-answering pipeline against a dataset of
// questions with known answers, using an LLM as the judge.
package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/WessleyAI/ragchat/engine/domain"
	"github.com/tmc/langchaingo/llms"
)

// Case is one dataset entry.
type Case struct {
	Question    string `json:"question"`
	GroundTruth string `json:"ground_truth"`
}

// Scores holds the four judge metrics, each 1-5 or 0 when ungradable.
type Scores struct {
	RetrievalAccuracy   int `json:"retrieval_accuracy"`
	RetrievalPrecision  int `json:"retrieval_precision"`
	ContextualAccuracy  int `json:"contextual_accuracy"`
	ContextualPrecision int `json:"contextual_precision"`
}

// Result is a graded case.
type Result struct {
	Case
	Answer  string `json:"answer"`
	Context string `json:"context_retrieved"`
	Scores
}

// Averages are the mean scores over a run.
type Averages struct {
	RetrievalAccuracy   float64
	RetrievalPrecision  float64
	ContextualAccuracy  float64
	ContextualPrecision float64
}

// ErrorAnswer is recorded when the pipeline fails for a case.
const ErrorAnswer = "ERROR"

// Asker is the pipeline under evaluation.
type Asker interface {
	Ask(ctx context.Context, question string) (domain.PipelineState, error)
}

// ChatModel is the judge model.
type ChatModel interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// LoadCases reads a JSON array of cases.
func LoadCases(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("eval: read dataset: %w", err)
	}
	var cases []Case
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("eval: parse dataset %s: %w", path, err)
	}
	return cases, nil
}

// Run asks every case and grades the answer. Pipeline failures are recorded
// as ErrorAnswer with an empty context and still graded.
func Run(ctx context.Context, asker Asker, judge *Judge, cases []Case, log *slog.Logger) ([]Result, error) {
	if log == nil {
		log = slog.Default()
	}
	results := make([]Result, 0, len(cases))
	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		log.Info("eval case", "question", c.Question)

		answer, contextText := ErrorAnswer, ""
		st, err := asker.Ask(ctx, c.Question)
		if err != nil {
			log.Warn("eval: pipeline failed", "question", c.Question, "err", err)
		} else {
			answer, contextText = st.Answer, strings.Join(st.Context, "\n")
		}

		scores := judge.Grade(ctx, c.Question, answer, c.GroundTruth, contextText)
		log.Info("eval scores",
			"retrieval_accuracy", scores.RetrievalAccuracy,
			"retrieval_precision", scores.RetrievalPrecision,
			"contextual_accuracy", scores.ContextualAccuracy,
			"contextual_precision", scores.ContextualPrecision,
		)
		results = append(results, Result{Case: c, Answer: answer, Context: contextText, Scores: scores})
	}
	return results, nil
}

// Average returns the mean of each metric. An empty run averages to zero.
func Average(results []Result) Averages {
	var a Averages
	if len(results) == 0 {
		return a
	}
	for _, r := range results {
		a.RetrievalAccuracy += float64(r.RetrievalAccuracy)
		a.RetrievalPrecision += float64(r.RetrievalPrecision)
		a.ContextualAccuracy += float64(r.ContextualAccuracy)
		a.ContextualPrecision += float64(r.ContextualPrecision)
	}
	n := float64(len(results))
	a.RetrievalAccuracy /= n
	a.RetrievalPrecision /= n
	a.ContextualAccuracy /= n
	a.ContextualPrecision /= n
	return a
}

// Package domain defines the core types, error taxonomy and input validation
// shared by the ingestion and question-answering pipelines.
package domain

// Chunk is a contiguous slice of an ingested document attributed to the
// filename it came from.
type Chunk struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// PipelineState is threaded through the retrieve and generate nodes for a
// single question. It is never persisted.
type PipelineState struct {
	Question string   `json:"question"`
	Context  []string `json:"context"`
	Answer   string   `json:"answer"`
}

// Supported upload extensions, lower-case with the leading dot.
const (
	ExtText = ".txt"
	ExtPDF  = ".pdf"
)

// SupportedExtensions lists every extension the loader accepts.
var SupportedExtensions = []string{ExtText, ExtPDF}

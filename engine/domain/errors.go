package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Every failure surfaced by the engine wraps exactly one of these.
var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrEmptyDocument     = errors.New("empty document")
	ErrDocumentParse     = errors.New("document parse failed")
	ErrEmbeddingService  = errors.New("embedding service error")
	ErrStoreUnavailable  = errors.New("vector store unavailable")
	ErrGenerationService = errors.New("generation service error")
	ErrInvalidQuestion   = errors.New("invalid question")
)

// OpError attaches the failing operation and an error kind to a cause.
// errors.Is matches both the kind and anything in the cause chain.
type OpError struct {
	Op   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Err)
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Wrap returns err tagged with kind, or nil when err is nil. An error that
// already carries kind is returned unchanged.
func Wrap(op string, kind, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}
	return &OpError{Op: op, Kind: kind, Err: err}
}

// Errorf builds an OpError with a formatted cause.
func Errorf(op string, kind error, format string, args ...any) error {
	return &OpError{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// HTTPStatus maps an engine error to the status code reported to clients.
// Extension, empty-document and question failures are the caller's fault.
// Everything else, parse failures included, is ours.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnsupportedFormat),
		errors.Is(err, ErrEmptyDocument),
		errors.Is(err, ErrInvalidQuestion):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/WessleyAI/ragchat/engine/domain"
	"github.com/WessleyAI/ragchat/engine/ingest"
)

// AskRequest is the JSON body for POST /ask.
type AskRequest struct {
	Question string `json:"question"`
}

// AskResponse is the JSON response for POST /ask. Context is never null.
type AskResponse struct {
	Answer  string   `json:"answer"`
	Context []string `json:"context"`
}

// IngestResponse is the JSON response for POST /ingest.
type IngestResponse struct {
	Message  string `json:"message"`
	Chunks   int    `json:"chunks"`
	Filename string `json:"filename"`
}

// ResetMessage is returned by POST /delete_context.
const ResetMessage = "Context deleted. The collection is now empty."

var errNoFile = errors.New(`multipart field "file" is required`)

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	filename, raw, err := readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			s.respondError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
		case domain.HTTPStatus(err) == http.StatusBadRequest:
			s.respondErr(w, err)
		default:
			s.respondError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	n, err := s.collection.Ingest(r.Context(), filename, raw)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, IngestResponse{
		Message:  ingest.Message(filename, n),
		Chunks:   n,
		Filename: filename,
	})
}

// readUpload streams the multipart body to the "file" part. The filename is
// validated before the part content is read.
func readUpload(r *http.Request) (string, []byte, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return "", nil, fmt.Errorf("expected a multipart upload: %w", err)
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return "", nil, errNoFile
		}
		if err != nil {
			return "", nil, err
		}
		if part.FormName() != "file" || part.FileName() == "" {
			part.Close()
			continue
		}
		return readFilePart(part)
	}
}

func readFilePart(part *multipart.Part) (string, []byte, error) {
	defer part.Close()
	filename := filepath.Base(part.FileName())
	if err := domain.ValidateFilename(filename); err != nil {
		return "", nil, err
	}
	raw, err := io.ReadAll(part)
	if err != nil {
		return "", nil, err
	}
	return filename, raw, nil
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	st, err := s.rag.Ask(r.Context(), req.Question)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	chunks := st.Context
	if chunks == nil {
		chunks = []string{}
	}
	s.respondJSON(w, http.StatusOK, AskResponse{Answer: st.Answer, Context: chunks})
}

func (s *Server) handleDeleteContext(w http.ResponseWriter, r *http.Request) {
	if err := s.collection.Reset(r.Context()); err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"message": ResetMessage})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Responses ---

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encode response", "err", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, detail string) {
	s.respondJSON(w, status, map[string]string{"detail": detail})
}

// respondErr maps an engine error to its status code.
func (s *Server) respondErr(w http.ResponseWriter, err error) {
	status := domain.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	}
	s.respondError(w, status, err.Error())
}

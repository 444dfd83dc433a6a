package ingest

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/WessleyAI/ragchat/engine/domain"
	"github.com/ledongthuc/pdf"
)

// Load decodes raw according to the extension of filename.
func Load(raw []byte, filename string) (string, error) {
	if err := domain.ValidateFilename(filename); err != nil {
		return "", err
	}

	var (
		text string
		err  error
	)
	switch domain.Extension(filename) {
	case domain.ExtText:
		if !utf8.Valid(raw) {
			return "", domain.Errorf("ingest: load "+filename, domain.ErrDocumentParse, "text file is not valid UTF-8")
		}
		text = string(raw)
	case domain.ExtPDF:
		text, err = extractPDF(raw)
		if err != nil {
			return "", domain.Wrap("ingest: load "+filename, domain.ErrDocumentParse, err)
		}
	}

	if strings.TrimSpace(text) == "" {
		return "", domain.Errorf("ingest: load "+filename, domain.ErrEmptyDocument, "no extractable text")
	}
	return text, nil
}

func extractPDF(content []byte) (text string, err error) {
	// The pdf reader panics on some malformed xref tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	var buf bytes.Buffer
	numPages := r.NumPage()
	for i := 0; i < numPages; i++ {
		page := r.Page(i + 1)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", i+1, err)
		}
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(pageText)
	}
	return buf.String(), nil
}

package domain

import (
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"
)

// MaxQuestionLength bounds the question size in runes.
const MaxQuestionLength = 4000

// Extension returns the lower-cased extension of filename, including the dot.
func Extension(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// ValidateFilename rejects uploads whose extension has no loader.
func ValidateFilename(filename string) error {
	if strings.TrimSpace(filename) == "" {
		return Errorf("validate filename", ErrUnsupportedFormat, "filename is empty")
	}
	ext := Extension(filename)
	if !slices.Contains(SupportedExtensions, ext) {
		return Errorf("validate filename", ErrUnsupportedFormat,
			"%q: supported extensions are %s", filename, strings.Join(SupportedExtensions, ", "))
	}
	return nil
}

// ValidateQuestion checks a question before it enters the pipeline.
func ValidateQuestion(question string) error {
	text := strings.TrimSpace(question)
	if text == "" {
		return Errorf("validate question", ErrInvalidQuestion, "question is required")
	}
	if n := utf8.RuneCountInString(text); n > MaxQuestionLength {
		return Errorf("validate question", ErrInvalidQuestion, "question is %d characters, limit is %d", n, MaxQuestionLength)
	}
	return nil
}

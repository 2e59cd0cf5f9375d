package http

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"sikdae/internal/services"
	"sikdae/internal/sheets"
	"sikdae/internal/sheets/upload"
)

const maxLabelLength = 100

// sanitizeInput drops control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 {
			return -1
		}
		return r
	}, s)
}

// sanitizeLabel cleans a report label and caps its length in runes.
func sanitizeLabel(s string) string {
	s = sanitizeInput(s)
	if utf8.RuneCountInString(s) <= maxLabelLength {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:maxLabelLength]))
}

// uploadName keeps only the base name of a client supplied filename.
func uploadName(name string) string {
	name = filepath.Base(strings.ReplaceAll(sanitizeInput(name), "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// statusForError maps service and ingestion errors to a response status.
// Unrecognized errors map to fallback.
func statusForError(err error, fallback int) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, services.ErrReportNotFound):
		return http.StatusNotFound
	case errors.Is(err, upload.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, upload.ErrEmptyFile),
		errors.Is(err, upload.ErrSheetNotFound),
		errors.Is(err, sheets.ErrEmptySheet),
		errors.Is(err, sheets.ErrMissingColumn):
		return http.StatusUnprocessableEntity
	default:
		return fallback
	}
}

// Package backend selects the statement source the worker reads queued
// requests from.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"sikdae/internal/config"
	"sikdae/internal/sheets"
	"sikdae/internal/sheets/google"
	"sikdae/internal/sheets/memory"
)

// Type identifies a statement backend.
type Type string

const (
	SheetsBackend Type = config.BackendSheets
	MemoryBackend Type = config.BackendMemory
)

var ErrInvalidType = errors.New("invalid backend type")

// IsValid returns true for the supported backends.
func (t Type) IsValid() bool {
	switch t {
	case SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// Config holds what each backend needs.
type Config struct {
	Type Type

	// Google Sheets
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string

	// Memory, seeded from an xlsx or csv statement when the file exists
	SeedFile string
}

// FromAppConfig converts the application config to backend config.
func FromAppConfig(c *config.Config) (Config, error) {
	if c == nil {
		return Config{}, errors.New("app config is nil")
	}
	t := Type(c.DataBackend)
	if !t.IsValid() {
		return Config{}, fmt.Errorf("%w: %s", ErrInvalidType, c.DataBackend)
	}
	return Config{
		Type:            t,
		SpreadsheetID:   c.GoogleSpreadsheetID,
		SheetName:       c.GoogleSheetName,
		CredentialsJSON: c.GoogleCredentialsJSON,
		CredentialsFile: c.GoogleCredentialsFile,
		SeedFile:        c.SeedFile,
	}, nil
}

// NewOpener builds the configured source. For the sheets backend ctx is
// kept for token refreshes and must outlive the opener.
func NewOpener(ctx context.Context, cfg Config, logger *slog.Logger) (sheets.SheetOpener, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Type {
	case SheetsBackend:
		client, err := google.New(ctx, google.Options{
			SpreadsheetID:   cfg.SpreadsheetID,
			SheetName:       cfg.SheetName,
			CredentialsJSON: cfg.CredentialsJSON,
			CredentialsFile: cfg.CredentialsFile,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize google sheets backend: %w", err)
		}
		logger.Info("Initialized Google Sheets backend", "spreadsheet_id", cfg.SpreadsheetID, "sheet", cfg.SheetName)
		return client, nil
	case MemoryBackend:
		store, err := memory.NewFromFile(cfg.SeedFile)
		if err != nil {
			return nil, fmt.Errorf("initialize memory backend: %w", err)
		}
		logger.Info("Initialized memory backend", "seed_file", cfg.SeedFile)
		return store, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidType, cfg.Type)
	}
}

package backend

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"sikdae/internal/config"
	"sikdae/internal/sheets/google"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestFromAppConfig(t *testing.T) {
	cfg := &config.Config{
		DataBackend:         "memory",
		SeedFile:            "data/may.csv",
		GoogleSpreadsheetID: "sheet-id",
		GoogleSheetName:     "법인카드",
	}
	got, err := FromAppConfig(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Type != MemoryBackend || got.SeedFile != "data/may.csv" || got.SpreadsheetID != "sheet-id" {
		t.Fatalf("unexpected config: %+v", got)
	}

	if _, err := FromAppConfig(&config.Config{DataBackend: "sqlite"}); !errors.Is(err, ErrInvalidType) {
		t.Fatalf("expected ErrInvalidType, got %v", err)
	}
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestNewOpenerMemory(t *testing.T) {
	seed := filepath.Join(t.TempDir(), "may.csv")
	content := "이용일자,이용금액,사용자,사용용도\n2024-05-02,13000,Kim,점심식비\n"
	if err := os.WriteFile(seed, []byte(content), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	opener, err := NewOpener(context.Background(), Config{Type: MemoryBackend, SeedFile: seed}, discard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	records, stats, err := opener.Open("", "").ReadRows(context.Background())
	if err != nil {
		t.Fatalf("ReadRows: %v", err)
	}
	if len(records) != 1 || stats.Accepted != 1 || records[0].Amount != 13000 {
		t.Fatalf("unexpected rows: %+v %+v", records, stats)
	}
}

func TestNewOpenerSheetsWithoutCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	_, err := NewOpener(context.Background(), Config{Type: SheetsBackend, SpreadsheetID: "x"}, discard)
	if !errors.Is(err, google.ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestNewOpenerUnknownType(t *testing.T) {
	if _, err := NewOpener(context.Background(), Config{Type: "sqlite"}, discard); !errors.Is(err, ErrInvalidType) {
		t.Fatalf("expected ErrInvalidType, got %v", err)
	}
}

package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"sikdae/internal/core"
)

func TestStoreReadRowsReturnsCopy(t *testing.T) {
	s := New([]core.ExpenseRecord{{Date: "2024-05-02", Amount: 1000, UserField: "kim", Category: "점심식비"}})

	rows, stats, err := s.ReadRows(context.Background())
	if err != nil || len(rows) != 1 || stats.Accepted != 1 {
		t.Fatalf("unexpected read: rows=%v stats=%+v err=%v", rows, stats, err)
	}
	rows[0].UserField = "changed"

	again, _, _ := s.ReadRows(context.Background())
	if again[0].UserField != "kim" {
		t.Fatalf("store mutated through returned slice: %+v", again[0])
	}
}

func TestStoreOpenNamedSheet(t *testing.T) {
	s := New(nil)
	s.Put("june", []core.ExpenseRecord{{Date: "2024-06-01", Amount: 5000, UserField: "lee", Category: "야근식대"}})

	rows, _, err := s.Open("ignored", "june").ReadRows(context.Background())
	if err != nil || len(rows) != 1 {
		t.Fatalf("unexpected read: rows=%v err=%v", rows, err)
	}
	if _, _, err := s.Open("", "july").ReadRows(context.Background()); !errors.Is(err, ErrSheetNotFound) {
		t.Fatalf("expected ErrSheetNotFound, got %v", err)
	}
}

func TestNewFromFile(t *testing.T) {
	dir := t.TempDir()
	// No file -> empty store
	s, err := NewFromFile(filepath.Join(dir, "seed.csv"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows, _, _ := s.ReadRows(context.Background())
	if len(rows) != 0 {
		t.Fatalf("expected empty store, got %v", rows)
	}

	path := filepath.Join(dir, "seed.csv")
	content := "date,amount,user,category\n2024-05-02,13000,kim,점심식비\n2024-05-02,0,kim,점심식비\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	s, err = NewFromFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows, _, _ = s.ReadRows(context.Background())
	if len(rows) != 1 || rows[0].Amount != 13000 {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestNewFromFileRejectsUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	if _, err := NewFromFile(path); err == nil {
		t.Fatal("expected error for unsupported seed format")
	}
}

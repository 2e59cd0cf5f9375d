package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"sikdae/internal/core"
	ports "sikdae/internal/sheets"
	"sikdae/internal/sheets/upload"
)

var ErrSheetNotFound = errors.New("sheet not found")

// Store keeps statements in memory, keyed by sheet name. The empty name is
// the default sheet.
type Store struct {
	mu     sync.Mutex
	sheets map[string][]core.ExpenseRecord
}

var (
	_ ports.RowReader   = (*Store)(nil)
	_ ports.SheetOpener = (*Store)(nil)
)

func New(records []core.ExpenseRecord) *Store {
	s := &Store{sheets: map[string][]core.ExpenseRecord{}}
	s.Put("", records)
	return s
}

// NewFromFile seeds the default sheet from a csv or xlsx statement. A
// missing file yields an empty store.
func NewFromFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open seed: %w", err)
	}
	defer f.Close()
	records, _, err := upload.Parse(filepath.Base(path), f)
	if err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return New(records), nil
}

// Put replaces the records of a sheet.
func (s *Store) Put(sheet string, records []core.ExpenseRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sheets[sheet] = append([]core.ExpenseRecord(nil), records...)
}

// ReadRows returns a copy of the default sheet.
func (s *Store) ReadRows(ctx context.Context) ([]core.ExpenseRecord, ports.IngestStats, error) {
	return s.read(ctx, "")
}

// Open ignores the spreadsheet id; the store holds a single workbook.
func (s *Store) Open(_ string, sheetName string) ports.RowReader {
	return readerFunc(func(ctx context.Context) ([]core.ExpenseRecord, ports.IngestStats, error) {
		return s.read(ctx, sheetName)
	})
}

func (s *Store) read(ctx context.Context, sheet string) ([]core.ExpenseRecord, ports.IngestStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, ports.IngestStats{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	records, ok := s.sheets[sheet]
	if !ok {
		return nil, ports.IngestStats{}, fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
	}
	out := append([]core.ExpenseRecord(nil), records...)
	return out, ports.IngestStats{Read: len(out), Accepted: len(out)}, nil
}

type readerFunc func(ctx context.Context) ([]core.ExpenseRecord, ports.IngestStats, error)

func (f readerFunc) ReadRows(ctx context.Context) ([]core.ExpenseRecord, ports.IngestStats, error) {
	return f(ctx)
}

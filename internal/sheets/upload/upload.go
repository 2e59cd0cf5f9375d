// Package upload reads card statements uploaded as spreadsheet files.
package upload

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"sikdae/internal/core"
	ports "sikdae/internal/sheets"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrEmptyFile         = errors.New("empty file")
	ErrSheetNotFound     = errors.New("sheet not found")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Format reports the statement format implied by filename, or "" when the
// extension is not supported.
func Format(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return "xlsx"
	case ".csv":
		return "csv"
	default:
		return ""
	}
}

// Parse reads the first sheet of an xlsx file, or a csv file, and converts
// it to expense records.
func Parse(filename string, r io.Reader) ([]core.ExpenseRecord, ports.IngestStats, error) {
	return ParseSheet(filename, r, "")
}

// ParseSheet is Parse with an explicit xlsx sheet name. The name is ignored
// for csv input.
func ParseSheet(filename string, r io.Reader, sheet string) ([]core.ExpenseRecord, ports.IngestStats, error) {
	values, err := ReadValues(filename, r, sheet)
	if err != nil {
		return nil, ports.IngestStats{}, err
	}
	return ports.RowsToRecords(values)
}

// ReadValues returns the raw cell matrix of the statement.
func ReadValues(filename string, r io.Reader, sheet string) ([][]string, error) {
	format := Format(filename)
	if format == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}
	switch format {
	case "xlsx":
		return readXLSX(data, sheet)
	default:
		return readCSV(data)
	}
}

func readXLSX(data []byte, sheet string) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		list := f.GetSheetList()
		if len(list) == 0 {
			return nil, ErrEmptyFile
		}
		sheet = list[0]
	} else if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	return rows, nil
}

func readCSV(data []byte) ([][]string, error) {
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return rows, nil
}

// File is an uploaded statement held in memory.
type File struct {
	Name  string
	Sheet string
	Data  []byte
}

var _ ports.RowReader = (*File)(nil)

// ReadRows implements ports.RowReader.
func (f *File) ReadRows(ctx context.Context) ([]core.ExpenseRecord, ports.IngestStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, ports.IngestStats{}, err
	}
	return ParseSheet(f.Name, bytes.NewReader(f.Data), f.Sheet)
}

// Package export writes analysis reports as spreadsheet-friendly files.
package export

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"sikdae/internal/core"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var (
	summaryHeader = []string{"순위", "사용자", "초과금액"}
	detailHeader  = []string{"이용일자", "사용자", "카드별칭", "사용용도", "가맹점명", "이용금액"}
)

// FileNames lists the archive entries in the order WriteZip writes them.
func FileNames() []string {
	return []string{
		"lunch_summary.csv",
		"dinner_summary.csv",
		"lunch_details.csv",
		"dinner_details.csv",
	}
}

// WriteZip writes the ranked excess tables and the high-spender rows of both
// classes as UTF-8 csv files with a BOM, so spreadsheet tools open the Korean
// headers correctly.
func WriteZip(w io.Writer, report core.Report, modified time.Time) error {
	zw := zip.NewWriter(w)
	entries := []struct {
		name  string
		write func(io.Writer) error
	}{
		{"lunch_summary.csv", func(w io.Writer) error { return WriteSummaryCSV(w, report.Lunch.Excess) }},
		{"dinner_summary.csv", func(w io.Writer) error { return WriteSummaryCSV(w, report.Dinner.Excess) }},
		{"lunch_details.csv", func(w io.Writer) error { return WriteDetailsCSV(w, report.Lunch.HighSpenders) }},
		{"dinner_details.csv", func(w io.Writer) error { return WriteDetailsCSV(w, report.Dinner.HighSpenders) }},
	}
	for _, e := range entries {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: zip.Deflate, Modified: modified})
		if err != nil {
			return fmt.Errorf("create %s: %w", e.name, err)
		}
		if err := e.write(fw); err != nil {
			return fmt.Errorf("write %s: %w", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}
	return nil
}

// WriteSummaryCSV writes one ranked excess table.
func WriteSummaryCSV(w io.Writer, rows []core.ExcessRecord) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(summaryHeader); err != nil {
		return err
	}
	for i, r := range rows {
		rec := []string{strconv.Itoa(i + 1), r.User, strconv.FormatInt(r.Excess, 10)}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteDetailsCSV writes the rows behind flagged days.
func WriteDetailsCSV(w io.Writer, rows []core.NormalizedRecord) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(detailHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Date,
			r.UserField,
			r.CardAlias,
			r.Category,
			r.MerchantName,
			strconv.FormatFloat(r.Amount, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

package export

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"io"
	"strings"
	"testing"
	"time"

	"sikdae/internal/core"
)

func sampleReport() core.Report {
	return core.Report{
		Lunch: core.ClassResult{
			Class:  core.Lunch,
			Excess: []core.ExcessRecord{{User: "kim", Excess: 4000}, {User: "lee", Excess: 1}},
			HighSpenders: []core.NormalizedRecord{
				{Date: "2024-05-02", Amount: 9000, UserField: "Kim", Category: "점심식비", MerchantName: "김밥, 천국"},
				{Date: "2024-05-02", Amount: 7000.5, UserField: "kim", Category: "복리후생비"},
			},
		},
		Dinner: core.ClassResult{Class: core.Dinner, Excess: []core.ExcessRecord{}, HighSpenders: []core.NormalizedRecord{}},
	}
}

func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	if !bytes.HasPrefix(data, utf8BOM) {
		t.Fatalf("missing BOM: %q", data)
	}
	rows, err := csv.NewReader(bytes.NewReader(data[len(utf8BOM):])).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	return rows
}

func TestWriteSummaryCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSummaryCSV(&buf, sampleReport().Lunch.Excess); err != nil {
		t.Fatalf("WriteSummaryCSV: %v", err)
	}
	rows := readCSV(t, buf.Bytes())
	want := [][]string{{"순위", "사용자", "초과금액"}, {"1", "kim", "4000"}, {"2", "lee", "1"}}
	if len(rows) != len(want) {
		t.Fatalf("got %v, want %v", rows, want)
	}
	for i := range want {
		if strings.Join(rows[i], "|") != strings.Join(want[i], "|") {
			t.Errorf("row %d: got %v, want %v", i, rows[i], want[i])
		}
	}
}

func TestWriteDetailsCSVQuotesAndAmounts(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteDetailsCSV(&buf, sampleReport().Lunch.HighSpenders); err != nil {
		t.Fatalf("WriteDetailsCSV: %v", err)
	}
	rows := readCSV(t, buf.Bytes())
	if len(rows) != 3 {
		t.Fatalf("expected header and 2 rows, got %v", rows)
	}
	if rows[1][4] != "김밥, 천국" || rows[1][5] != "9000" || rows[2][5] != "7000.5" {
		t.Fatalf("unexpected rows: %v", rows)
	}
}

func TestWriteZip(t *testing.T) {
	var buf bytes.Buffer
	modified := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	if err := WriteZip(&buf, sampleReport(), modified); err != nil {
		t.Fatalf("WriteZip: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	names := FileNames()
	if len(zr.File) != len(names) {
		t.Fatalf("expected %d entries, got %d", len(names), len(zr.File))
	}
	for i, f := range zr.File {
		if f.Name != names[i] {
			t.Errorf("entry %d: got %s, want %s", i, f.Name, names[i])
		}
	}

	rc, err := zr.File[1].Open()
	if err != nil {
		t.Fatalf("open dinner summary: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if rows := readCSV(t, data); len(rows) != 1 {
		t.Fatalf("empty class should only have a header, got %v", rows)
	}
}

package sheets

import (
	"errors"
	"fmt"
	"strings"

	"sikdae/internal/core"
)

// Column identifies a logical statement column.
type Column string

const (
	ColDate      Column = "date"
	ColAmount    Column = "amount"
	ColUser      Column = "user"
	ColCardAlias Column = "card_alias"
	ColCategory  Column = "category"
	ColMerchant  Column = "merchant"
)

var (
	ErrEmptySheet    = errors.New("sheet has no header row")
	ErrMissingColumn = errors.New("missing required column")
)

// columnAliases lists the header labels used by the card companies' exports
// and the finance team's own sheet. Matching ignores case and whitespace.
var columnAliases = map[Column][]string{
	ColDate:      {"이용일자", "승인일자", "거래일자", "사용일자", "date"},
	ColAmount:    {"이용금액", "승인금액", "금액", "사용금액", "amount"},
	ColUser:      {"사용자", "이용자", "user"},
	ColCardAlias: {"카드별칭", "카드명", "card_alias", "cardalias"},
	ColCategory:  {"사용용도", "계정과목", "용도", "category"},
	ColMerchant:  {"가맹점명", "가맹점", "merchant", "merchant_name"},
}

var requiredColumns = []Column{ColDate, ColAmount, ColUser, ColCategory}

// IngestStats counts what happened to the rows of one statement.
type IngestStats struct {
	Read     int `json:"read"`
	Accepted int `json:"accepted"`
	Skipped  int `json:"skipped"`
}

// HeaderMap maps logical columns to positions in a header row.
type HeaderMap map[Column]int

// ResolveHeader locates every known column in header. It fails when one of
// the required columns (date, amount, user, category) is absent.
func ResolveHeader(header []string) (HeaderMap, error) {
	m := HeaderMap{}
	for i, h := range header {
		label := normalizeHeader(h)
		if label == "" {
			continue
		}
		for col, aliases := range columnAliases {
			if _, done := m[col]; done {
				continue
			}
			for _, a := range aliases {
				if normalizeHeader(a) == label {
					m[col] = i
					break
				}
			}
		}
	}
	missing := make([]string, 0, len(requiredColumns))
	for _, col := range requiredColumns {
		if _, ok := m[col]; !ok {
			missing = append(missing, string(col))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s; got headers=%v", ErrMissingColumn, strings.Join(missing, ","), header)
	}
	return m, nil
}

// Get returns the trimmed value of col in row, or "" when absent.
func (m HeaderMap) Get(row []string, col Column) string {
	idx, ok := m[col]
	if !ok || idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// RowsToRecords converts a values matrix whose first row is the header.
// Rows with an empty date, user or category, or an amount that is not a
// positive number, are skipped and counted.
func RowsToRecords(values [][]string) ([]core.ExpenseRecord, IngestStats, error) {
	var stats IngestStats
	headerIdx := firstNonEmptyRow(values)
	if headerIdx < 0 {
		return nil, stats, ErrEmptySheet
	}
	hm, err := ResolveHeader(values[headerIdx])
	if err != nil {
		return nil, stats, err
	}

	out := make([]core.ExpenseRecord, 0, len(values)-headerIdx-1)
	for _, row := range values[headerIdx+1:] {
		if isBlankRow(row) {
			continue
		}
		stats.Read++
		r, ok := hm.record(row)
		if !ok {
			stats.Skipped++
			continue
		}
		out = append(out, r)
		stats.Accepted++
	}
	return out, stats, nil
}

func (m HeaderMap) record(row []string) (core.ExpenseRecord, bool) {
	r := core.ExpenseRecord{
		Date:         m.Get(row, ColDate),
		UserField:    m.Get(row, ColUser),
		CardAlias:    m.Get(row, ColCardAlias),
		Category:     m.Get(row, ColCategory),
		MerchantName: m.Get(row, ColMerchant),
	}
	if r.Date == "" || r.UserField == "" || r.Category == "" {
		return r, false
	}
	amount, err := core.ParseAmount(m.Get(row, ColAmount))
	if err != nil {
		return r, false
	}
	r.Amount = amount
	return r, true
}

// ToStrings flattens a row of loosely typed cell values.
func ToStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func normalizeHeader(s string) string {
	return core.NormalizeUser(strings.TrimPrefix(s, "\ufeff"))
}

func firstNonEmptyRow(values [][]string) int {
	for i, row := range values {
		if !isBlankRow(row) {
			return i
		}
	}
	return -1
}

func isBlankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

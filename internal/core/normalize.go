package core

import (
	"strings"
	"unicode"
)

// NormalizeRecords expands shared rows into one row per listed user.
//
// A row whose UserField contains delimiter is split into N rows carrying
// Amount/N each; every other field is copied. Rows naming a single user pass
// through untouched. Blank pieces are kept and attributed to the blank name.
// Output order follows input order.
func NormalizeRecords(records []ExpenseRecord, delimiter string) []NormalizedRecord {
	out := make([]NormalizedRecord, 0, len(records))
	for _, r := range records {
		if delimiter == "" || !strings.Contains(r.UserField, delimiter) {
			out = append(out, NormalizedRecord(r))
			continue
		}
		users := strings.Split(r.UserField, delimiter)
		share := r.Amount / float64(len(users))
		for _, u := range users {
			n := NormalizedRecord(r)
			n.UserField = u
			n.Amount = share
			out = append(out, n)
		}
	}
	return out
}

// NormalizeUser lower-cases s and removes every whitespace rune, so that
// "Kim Jeff", "kimjeff" and " KIM JEFF " share one identity.
func NormalizeUser(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}

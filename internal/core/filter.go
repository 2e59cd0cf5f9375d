package core

import "strings"

// FilterMealRecords keeps rows in a lunch or dinner category that were not
// paid with the excluded company card.
func FilterMealRecords(rows []NormalizedRecord, p Policy) []NormalizedRecord {
	excluded := strings.TrimSpace(p.ExcludedCardAlias)
	out := make([]NormalizedRecord, 0, len(rows))
	for _, r := range rows {
		if excluded != "" && strings.TrimSpace(r.CardAlias) == excluded {
			continue
		}
		if _, ok := p.ClassOf(r.Category); !ok {
			continue
		}
		out = append(out, r)
	}
	return out
}

// PartitionByClass splits filtered rows into the lunch and dinner sets.
// Rows outside both classes are dropped, so callers normally pass the output
// of FilterMealRecords.
func PartitionByClass(rows []NormalizedRecord, p Policy) (lunch, dinner []NormalizedRecord) {
	lunch = make([]NormalizedRecord, 0, len(rows))
	dinner = make([]NormalizedRecord, 0)
	for _, r := range rows {
		class, ok := p.ClassOf(r.Category)
		if !ok {
			continue
		}
		switch class {
		case Lunch:
			lunch = append(lunch, r)
		case Dinner:
			dinner = append(dinner, r)
		}
	}
	return lunch, dinner
}

package core

import (
	"math"
	"sort"
)

// Classification is the result of comparing daily totals against the cap.
type Classification struct {
	// Flagged holds the daily totals strictly above the cap.
	Flagged map[DailyUserKey]float64
	// HighSpenders are the rows, in input order, that belong to a flagged day.
	HighSpenders []NormalizedRecord
}

// AggregateDaily sums amounts per date and normalized user.
func AggregateDaily(rows []NormalizedRecord) map[DailyUserKey]float64 {
	totals := make(map[DailyUserKey]float64)
	for _, r := range rows {
		totals[r.Key()] += r.Amount
	}
	return totals
}

// ClassifyThreshold selects the days whose total is strictly greater than
// dailyCap and collects the rows behind them. A total equal to the cap is
// not flagged.
func ClassifyThreshold(totals map[DailyUserKey]float64, rows []NormalizedRecord, dailyCap float64) Classification {
	flagged := make(map[DailyUserKey]float64)
	for k, sum := range totals {
		if sum > dailyCap {
			flagged[k] = sum
		}
	}
	high := make([]NormalizedRecord, 0)
	for _, r := range rows {
		if _, ok := flagged[r.Key()]; ok {
			high = append(high, r)
		}
	}
	return Classification{Flagged: flagged, HighSpenders: high}
}

// SummarizeExcess sums, per user, how far each flagged day went over the cap
// and rounds the monthly total once. The result is sorted by excess
// descending, then by user.
func SummarizeExcess(flagged map[DailyUserKey]float64, dailyCap float64) []ExcessRecord {
	byUser := make(map[string]float64)
	for k, sum := range flagged {
		byUser[k.User] += sum - dailyCap
	}
	out := make([]ExcessRecord, 0, len(byUser))
	for user, excess := range byUser {
		out = append(out, ExcessRecord{User: user, Excess: int64(math.Round(excess))})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Excess != out[j].Excess {
			return out[i].Excess > out[j].Excess
		}
		return out[i].User < out[j].User
	})
	return out
}

package core

import "golang.org/x/sync/errgroup"

// ClassResult is the outcome of the pipeline for one meal class.
type ClassResult struct {
	Class        MealClass
	Rows         int // Rows in this class after filtering
	Excess       []ExcessRecord
	HighSpenders []NormalizedRecord
}

// Report holds the independent lunch and dinner results of one run.
type Report struct {
	Lunch  ClassResult
	Dinner ClassResult
}

// Analyze runs the whole excess-usage pipeline over one batch of records.
// It never fails; empty input yields empty results for both classes.
func Analyze(records []ExpenseRecord, p Policy) Report {
	normalized := NormalizeRecords(records, p.UserDelimiter)
	filtered := FilterMealRecords(normalized, p)
	lunchRows, dinnerRows := PartitionByClass(filtered, p)

	var (
		report Report
		g      errgroup.Group
	)
	g.Go(func() error {
		report.Lunch = analyzeClass(Lunch, lunchRows, p.DailyCap)
		return nil
	})
	g.Go(func() error {
		report.Dinner = analyzeClass(Dinner, dinnerRows, p.DailyCap)
		return nil
	})
	_ = g.Wait() // class stages have no failure path

	return report
}

func analyzeClass(class MealClass, rows []NormalizedRecord, dailyCap float64) ClassResult {
	totals := AggregateDaily(rows)
	c := ClassifyThreshold(totals, rows, dailyCap)
	return ClassResult{
		Class:        class,
		Rows:         len(rows),
		Excess:       SummarizeExcess(c.Flagged, dailyCap),
		HighSpenders: c.HighSpenders,
	}
}

// Class returns the result for the given meal class.
func (r Report) Class(c MealClass) (ClassResult, bool) {
	switch c {
	case Lunch:
		return r.Lunch, true
	case Dinner:
		return r.Dinner, true
	default:
		return ClassResult{}, false
	}
}

// DetailsFor returns the high-spender rows attributed to user, compared by
// normalized identity.
func (c ClassResult) DetailsFor(user string) []NormalizedRecord {
	want := NormalizeUser(user)
	out := make([]NormalizedRecord, 0)
	for _, r := range c.HighSpenders {
		if NormalizeUser(r.UserField) == want {
			out = append(out, r)
		}
	}
	return out
}

// TotalExcess sums the rounded excess of every user in the class.
func (c ClassResult) TotalExcess() int64 {
	var total int64
	for _, e := range c.Excess {
		total += e.Excess
	}
	return total
}

package core

import (
	"sort"
	"time"
)

// UncategorizedLabel buckets counted expenses that carry no category.
const UncategorizedLabel = "Uncategorized"

// Report holds period totals over a permission-filtered movement set.
type Report struct {
	Year       int
	Month      int    // 0 = whole year
	ProjectID  string // "" = all visible projects
	Income     Money
	Expense    Money
	Net        Money
	Count      int
	ByCategory map[string]Money
	Movements  []Movement // chronological ascending
}

// ReportRange returns the inclusive bounds of a reporting period:
// the given month of the year, or the whole calendar year when
// month is zero. The upper bound is the last second of the period.
func ReportRange(year, month int) (from, to time.Time) {
	if month == 0 {
		from = time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		to = time.Date(year, time.December, 31, 23, 59, 59, 0, time.UTC)
		return from, to
	}
	from = time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to = from.AddDate(0, 1, 0).Add(-time.Second)
	return from, to
}

// Summarize folds a movement set into report totals. The magnitude of a
// refunded expense counts as income, not expense, mirroring the credit
// that reimbursed it. Transfer legs are listed but never counted.
func Summarize(ms []Movement) Report {
	r := Report{ByCategory: make(map[string]Money)}

	sorted := make([]Movement, len(ms))
	copy(sorted, ms)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OccurredAt.Before(sorted[j].OccurredAt)
	})

	for _, m := range sorted {
		abs := m.Amount.Abs()
		switch {
		case m.Kind == KindIncome || m.Status == StatusRefunded:
			r.Income = r.Income.Add(abs)
		case m.Kind == KindExpense:
			r.Expense = r.Expense.Add(abs)
			cat := m.Category
			if cat == "" {
				cat = UncategorizedLabel
			}
			r.ByCategory[cat] = r.ByCategory[cat].Add(abs)
		}
	}

	r.Net = r.Income.Sub(r.Expense)
	r.Count = len(sorted)
	r.Movements = sorted
	return r
}

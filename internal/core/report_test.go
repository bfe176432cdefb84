package core

import (
	"testing"
	"time"
)

func mv(id string, day int, kind MovementKind, status MovementStatus, cents int64, category string) Movement {
	return Movement{
		ID:         id,
		OccurredAt: time.Date(2025, time.March, day, 12, 0, 0, 0, time.UTC),
		Kind:       kind,
		Status:     status,
		Amount:     Money{Cents: cents},
		Category:   category,
	}
}

func TestSummarize(t *testing.T) {
	// One salary, one groceries expense, one refunded expense whose
	// magnitude counts as income, and one transfer leg that counts as
	// neither.
	ms := []Movement{
		mv("m3", 20, KindExpense, StatusRefunded, -20000, "Travel"),
		mv("m1", 5, KindIncome, StatusFinalized, 50000, "Salary"),
		mv("m2", 10, KindExpense, StatusFinalized, -10000, "Groceries"),
		mv("m4", 25, KindTransferOut, StatusFinalized, -30000, ""),
	}

	r := Summarize(ms)

	if r.Income.Cents != 70000 {
		t.Errorf("income: expected 70000, got %d", r.Income.Cents)
	}
	if r.Expense.Cents != 10000 {
		t.Errorf("expense: expected 10000, got %d", r.Expense.Cents)
	}
	if r.Net.Cents != 60000 {
		t.Errorf("net: expected 60000, got %d", r.Net.Cents)
	}
	if r.Count != 4 {
		t.Errorf("count: expected 4, got %d", r.Count)
	}

	if r.Net != r.Income.Sub(r.Expense) {
		t.Error("net must equal income minus expense")
	}
	var byCat Money
	for _, v := range r.ByCategory {
		byCat = byCat.Add(v)
	}
	if byCat != r.Expense {
		t.Errorf("category totals must sum to expense: %d vs %d", byCat.Cents, r.Expense.Cents)
	}

	if got := r.ByCategory["Groceries"].Cents; got != 10000 {
		t.Errorf("Groceries: expected 10000, got %d", got)
	}
	if _, ok := r.ByCategory["Travel"]; ok {
		t.Error("refunded expense must not appear in category totals")
	}

	// Chronological ascending regardless of input order.
	for i := 1; i < len(r.Movements); i++ {
		if r.Movements[i].OccurredAt.Before(r.Movements[i-1].OccurredAt) {
			t.Fatalf("movements out of order at %d", i)
		}
	}
	if r.Movements[0].ID != "m1" || r.Movements[3].ID != "m4" {
		t.Errorf("unexpected order: %s ... %s", r.Movements[0].ID, r.Movements[3].ID)
	}
}

func TestSummarizeUncategorized(t *testing.T) {
	r := Summarize([]Movement{
		mv("m1", 1, KindExpense, StatusFinalized, -500, ""),
	})
	if got := r.ByCategory[UncategorizedLabel].Cents; got != 500 {
		t.Errorf("expected 500 under %q, got %d", UncategorizedLabel, got)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	r := Summarize(nil)
	if r.Income.Cents != 0 || r.Expense.Cents != 0 || r.Net.Cents != 0 || r.Count != 0 {
		t.Errorf("empty set should produce zero totals, got %+v", r)
	}
	if r.ByCategory == nil {
		t.Error("ByCategory should be allocated")
	}
}

func TestReportRange(t *testing.T) {
	from, to := ReportRange(2025, 2)
	if !from.Equal(time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected from: %v", from)
	}
	if !to.Equal(time.Date(2025, time.February, 28, 23, 59, 59, 0, time.UTC)) {
		t.Errorf("unexpected to: %v", to)
	}

	// Leap year February.
	_, to = ReportRange(2024, 2)
	if !to.Equal(time.Date(2024, time.February, 29, 23, 59, 59, 0, time.UTC)) {
		t.Errorf("unexpected leap to: %v", to)
	}

	// Whole year.
	from, to = ReportRange(2025, 0)
	if !from.Equal(time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected year from: %v", from)
	}
	if !to.Equal(time.Date(2025, time.December, 31, 23, 59, 59, 0, time.UTC)) {
		t.Errorf("unexpected year to: %v", to)
	}
}

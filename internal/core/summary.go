package core

import "slices"

// Aggregate is the derived summary of one month. It is recomputed on every
// request and never cached.
type Aggregate struct {
	Month      string            `json:"month"`
	Capital    Amount            `json:"capital"`
	TotalSpent Amount            `json:"totalSpent"`
	Remaining  Amount            `json:"remaining"`
	ByDate     map[string]Amount `json:"byDate"`
	ByCategory map[string]Amount `json:"byCategory"`
	Count      int               `json:"count"`

	// Categories lists ByCategory keys in first-seen order.
	Categories []string `json:"-"`
}

// Compute aggregates a month record. Remaining is floored at zero, so an
// overspent month reports nothing left rather than a negative balance.
func Compute(month string, rec MonthRecord) Aggregate {
	agg := Aggregate{
		Month:      month,
		Capital:    rec.Capital,
		ByDate:     make(map[string]Amount),
		ByCategory: make(map[string]Amount),
		Count:      len(rec.Expenses),
	}
	for _, e := range rec.Expenses {
		agg.TotalSpent = agg.TotalSpent.Plus(e.Amount)
		agg.ByDate[e.Date] = agg.ByDate[e.Date].Plus(e.Amount)
		if _, seen := agg.ByCategory[e.Category]; !seen {
			agg.Categories = append(agg.Categories, e.Category)
		}
		agg.ByCategory[e.Category] = agg.ByCategory[e.Category].Plus(e.Amount)
	}
	agg.Remaining = rec.Capital.Minus(agg.TotalSpent).FloorZero()
	return agg
}

// SortedAscending returns a copy of expenses ordered oldest first; equal
// dates keep insertion order.
func SortedAscending(expenses []Expense) []Expense {
	out := make([]Expense, len(expenses))
	copy(out, expenses)
	slices.SortStableFunc(out, func(a, b Expense) int {
		return CompareDates(a.Date, b.Date)
	})
	return out
}

// SortedDescending returns a copy of expenses ordered newest first; equal
// dates keep insertion order.
func SortedDescending(expenses []Expense) []Expense {
	out := make([]Expense, len(expenses))
	copy(out, expenses)
	slices.SortStableFunc(out, func(a, b Expense) int {
		return CompareDates(b.Date, a.Date)
	})
	return out
}

package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO-like layout used for expense dates.
const DateLayout = "2006-01-02"

type (
	// Expense is a single dated spend inside a month.
	Expense struct {
		ID       string `json:"id"`
		Date     string `json:"date"`
		Category string `json:"category"`
		Amount   Amount `json:"amount"`
		Note     string `json:"note"`
	}

	// MonthRecord holds the capital and the expenses logged for one month key.
	MonthRecord struct {
		Capital  Amount    `json:"capital"`
		Expenses []Expense `json:"expenses"`
	}

	// Document is the whole persisted ledger.
	Document struct {
		Months map[string]*MonthRecord `json:"months"`
	}

	// NewExpense is the input for creating an expense.
	NewExpense struct {
		Date     string
		Category string
		Amount   any
		Note     string
	}
)

var (
	ErrMissingMonth    = errors.New("month is required")
	ErrMissingDate     = errors.New("date is required")
	ErrMissingCategory = errors.New("category is required")
	ErrMissingAmount   = errors.New("amount is required")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrNegativeAmount  = errors.New("amount must not be negative")
)

// ValidationError reports a missing or invalid required field.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewDocument returns the empty ledger.
func NewDocument() Document {
	return Document{Months: map[string]*MonthRecord{}}
}

// Normalize repairs nil maps and slices so every present month key maps to a
// usable record.
func (d *Document) Normalize() {
	if d.Months == nil {
		d.Months = map[string]*MonthRecord{}
	}
	for key, rec := range d.Months {
		if rec == nil {
			rec = &MonthRecord{}
			d.Months[key] = rec
		}
		if rec.Expenses == nil {
			rec.Expenses = []Expense{}
		}
	}
}

// Month returns the record for key, or an empty record when absent.
// The returned record is a copy and safe to modify.
func (d Document) Month(key string) MonthRecord {
	rec, ok := d.Months[key]
	if !ok || rec == nil {
		return MonthRecord{Expenses: []Expense{}}
	}
	out := MonthRecord{Capital: rec.Capital, Expenses: make([]Expense, len(rec.Expenses))}
	copy(out.Expenses, rec.Expenses)
	return out
}

// Ensure returns the record for key, creating it lazily.
func (d *Document) Ensure(key string) *MonthRecord {
	d.Normalize()
	rec, ok := d.Months[key]
	if !ok {
		rec = &MonthRecord{Expenses: []Expense{}}
		d.Months[key] = rec
	}
	return rec
}

// ValidateMonth checks that a month key is present.
func ValidateMonth(month string) error {
	if strings.TrimSpace(month) == "" {
		return &ValidationError{Field: "month", Err: ErrMissingMonth}
	}
	return nil
}

// Validate checks presence of the required fields and coerces the amount.
func (n NewExpense) Validate() (Amount, error) {
	if strings.TrimSpace(n.Date) == "" {
		return Zero, &ValidationError{Field: "date", Err: ErrMissingDate}
	}
	if strings.TrimSpace(n.Category) == "" {
		return Zero, &ValidationError{Field: "category", Err: ErrMissingCategory}
	}
	amount, err := ParseAmount(n.Amount)
	if err != nil {
		return Zero, &ValidationError{Field: "amount", Err: err}
	}
	if amount.IsNegative() {
		return Zero, &ValidationError{Field: "amount", Err: ErrNegativeAmount}
	}
	return amount, nil
}

// CompareDates orders two expense dates. Dates in DateLayout are compared as
// calendar days; anything else falls back to string order.
func CompareDates(a, b string) int {
	ta, errA := time.Parse(DateLayout, strings.TrimSpace(a))
	tb, errB := time.Parse(DateLayout, strings.TrimSpace(b))
	if errA == nil && errB == nil {
		return ta.Compare(tb)
	}
	return strings.Compare(a, b)
}

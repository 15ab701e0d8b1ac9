package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"monthbook/internal/core"
	applog "monthbook/internal/log"
)

// LedgerStore persists the whole ledger as one JSON document on disk.
//
// Every mutation is a load-mutate-save sequence executed under mu, so two
// requests in this process can never interleave their writes. Other processes
// writing the same file are not coordinated.
type LedgerStore struct {
	mu    sync.Mutex
	path  string
	newID func() string
	log   *applog.Logger
}

// NewLedgerStore prepares the data directory and seeds an empty document
// when the file does not exist yet.
func NewLedgerStore(path string) (*LedgerStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &LedgerStore{
		path:  path,
		newID: newExpenseID,
		log:   applog.Default(applog.ComponentStorage),
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := s.write(core.NewDocument()); err != nil {
			return nil, fmt.Errorf("initialize data file: %w", err)
		}
	}
	return s, nil
}

// Path returns the document location.
func (s *LedgerStore) Path() string {
	return s.path
}

// Load returns the persisted document. It never fails: a missing or corrupt
// file yields the empty document.
func (s *LedgerStore) Load(ctx context.Context) core.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Save overwrites the whole document.
func (s *LedgerStore) Save(ctx context.Context, doc core.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(doc)
}

// Month returns a copy of one month record; unknown months are empty.
func (s *LedgerStore) Month(ctx context.Context, month string) core.MonthRecord {
	return s.Load(ctx).Month(month)
}

// Months lists the known month keys, newest first.
func (s *LedgerStore) Months(ctx context.Context) []string {
	doc := s.Load(ctx)
	keys := make([]string, 0, len(doc.Months))
	for k := range doc.Months {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	slices.Reverse(keys)
	return keys
}

// SetCapital overwrites the capital of month and returns the stored value.
func (s *LedgerStore) SetCapital(ctx context.Context, month string, capital core.Amount) (core.Amount, error) {
	if err := core.ValidateMonth(month); err != nil {
		return core.Zero, err
	}
	capital = capital.FloorZero()

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load(ctx)
	doc.Ensure(month).Capital = capital
	if err := s.write(doc); err != nil {
		return core.Zero, err
	}
	return capital, nil
}

// AddExpense validates the input, appends a new expense to month and
// returns it. Nothing is written when validation fails.
func (s *LedgerStore) AddExpense(ctx context.Context, month string, in core.NewExpense) (core.Expense, error) {
	if err := core.ValidateMonth(month); err != nil {
		return core.Expense{}, err
	}
	amount, err := in.Validate()
	if err != nil {
		return core.Expense{}, err
	}
	exp := core.Expense{
		ID:       s.newID(),
		Date:     strings.TrimSpace(in.Date),
		Category: strings.TrimSpace(in.Category),
		Amount:   amount,
		Note:     in.Note,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load(ctx)
	rec := doc.Ensure(month)
	rec.Expenses = append(rec.Expenses, exp)
	if err := s.write(doc); err != nil {
		return core.Expense{}, err
	}
	return exp, nil
}

// RemoveExpense drops the expense with id from month and reports how many
// records were removed (0 or 1). A missing month is not created.
func (s *LedgerStore) RemoveExpense(ctx context.Context, month, id string) (int, error) {
	if err := core.ValidateMonth(month); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load(ctx)
	rec, ok := doc.Months[month]
	if !ok {
		return 0, nil
	}
	before := len(rec.Expenses)
	rec.Expenses = slices.DeleteFunc(rec.Expenses, func(e core.Expense) bool {
		return e.ID == id
	})
	removed := before - len(rec.Expenses)
	if removed == 0 {
		return 0, nil
	}
	if err := s.write(doc); err != nil {
		return 0, err
	}
	return removed, nil
}

// ListExpenses returns the expenses of month, newest first.
func (s *LedgerStore) ListExpenses(ctx context.Context, month string) []core.Expense {
	return core.SortedDescending(s.Month(ctx, month).Expenses)
}

func (s *LedgerStore) load(ctx context.Context) core.Document {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.WarnContext(ctx, "Failed to read ledger, using empty document",
				applog.FieldFile, s.path, applog.FieldError, err)
		}
		return core.NewDocument()
	}
	var doc core.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.log.WarnContext(ctx, "Failed to parse ledger, using empty document",
			applog.FieldFile, s.path, applog.FieldError, err)
		return core.NewDocument()
	}
	doc.Normalize()
	return doc
}

// write replaces the file through a temp file and rename so readers never
// observe a half-written document.
func (s *LedgerStore) write(doc core.Document) error {
	doc.Normalize()
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".ledger-*.json")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close ledger: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}

// newExpenseID returns a UUIDv7: a millisecond timestamp followed by random
// bits, so ids sort by creation time.
func newExpenseID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

package services

import (
	"context"
	"fmt"

	"monthbook/internal/amqp"
	"monthbook/internal/core"
	"monthbook/internal/log"
	"monthbook/internal/storage"
)

// EventPublisher announces ledger mutations. *amqp.Client implements it.
type EventPublisher interface {
	PublishLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error
}

// LedgerService applies ledger mutations and announces them.
type LedgerService struct {
	store  *storage.LedgerStore
	events EventPublisher
	log    *log.Logger
}

// NewLedgerService wraps store. events may be nil.
func NewLedgerService(store *storage.LedgerStore, events EventPublisher) *LedgerService {
	return &LedgerService{
		store:  store,
		events: events,
		log:    log.Default(log.ComponentLedger),
	}
}

// SetCapital overwrites the month's capital. A missing amount is rejected;
// non-numeric or negative amounts are stored as zero.
func (s *LedgerService) SetCapital(ctx context.Context, month string, amount any) (core.Amount, error) {
	if err := core.ValidateMonth(month); err != nil {
		return core.Zero, err
	}
	if amount == nil {
		return core.Zero, &core.ValidationError{Field: "amount", Err: core.ErrMissingAmount}
	}

	capital, err := s.store.SetCapital(ctx, month, core.CoerceCapital(amount))
	if err != nil {
		return core.Zero, fmt.Errorf("set capital: %w", err)
	}
	s.log.InfoContext(ctx, "Capital set", log.FieldMonth, month, log.FieldAmount, capital.String())
	s.publish(ctx, amqp.NewLedgerChangedMessage(month, amqp.ChangeCapitalSet, ""))
	return capital, nil
}

// AddExpense validates and appends an expense.
func (s *LedgerService) AddExpense(ctx context.Context, month string, in core.NewExpense) (core.Expense, error) {
	exp, err := s.store.AddExpense(ctx, month, in)
	if err != nil {
		return core.Expense{}, err
	}
	s.log.InfoContext(ctx, "Expense added",
		log.NewFields().WithMonth(month).WithExpense(exp.ID, exp.Category, exp.Amount.String()).ToSlice()...)
	s.publish(ctx, amqp.NewLedgerChangedMessage(month, amqp.ChangeExpenseAdded, exp.ID))
	return exp, nil
}

// RemoveExpense deletes the expense id from month and returns how many
// entries were removed. Removing an unknown id is not an error.
func (s *LedgerService) RemoveExpense(ctx context.Context, month, id string) (int, error) {
	removed, err := s.store.RemoveExpense(ctx, month, id)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.log.InfoContext(ctx, "Expense removed", log.FieldMonth, month, log.FieldExpenseID, id)
		s.publish(ctx, amqp.NewLedgerChangedMessage(month, amqp.ChangeExpenseRemoved, id))
	}
	return removed, nil
}

// ListExpenses returns the month's expenses newest first.
func (s *LedgerService) ListExpenses(ctx context.Context, month string) []core.Expense {
	return s.store.ListExpenses(ctx, month)
}

// Summary computes the month's aggregate.
func (s *LedgerService) Summary(ctx context.Context, month string) core.Aggregate {
	return core.Compute(month, s.store.Month(ctx, month))
}

// Months lists the recorded month keys, newest first.
func (s *LedgerService) Months(ctx context.Context) []string {
	return s.store.Months(ctx)
}

func (s *LedgerService) publish(ctx context.Context, msg *amqp.LedgerChangedMessage) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishLedgerChanged(ctx, msg); err != nil {
		s.log.LogError(ctx, "Failed to publish ledger change", err, log.OpPublish,
			log.NewFields().WithMonth(msg.Month).With("change", string(msg.Change)))
	}
}

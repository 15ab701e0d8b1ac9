package http

import (
	"context"
	"net/http"

	"monthbook/internal/core"
	"monthbook/internal/log"
)

// LedgerAPI is the ledger surface the handlers need. *services.LedgerService
// implements it.
type LedgerAPI interface {
	SetCapital(ctx context.Context, month string, amount any) (core.Amount, error)
	AddExpense(ctx context.Context, month string, in core.NewExpense) (core.Expense, error)
	RemoveExpense(ctx context.Context, month, id string) (int, error)
	ListExpenses(ctx context.Context, month string) []core.Expense
	Summary(ctx context.Context, month string) core.Aggregate
	Months(ctx context.Context) []string
}

type capitalResponse struct {
	OK      bool        `json:"ok"`
	Capital core.Amount `json:"capital"`
}

type removeResponse struct {
	OK      bool `json:"ok"`
	Removed int  `json:"removed"`
}

func (s *Server) handleSetCapital(w http.ResponseWriter, r *http.Request) {
	var req capitalRequest
	if err := bindRequest(w, r, &req); err != nil {
		writeError(w, r, err, log.OpUpdate)
		return
	}
	capital, err := s.ledger.SetCapital(r.Context(), req.Month, req.Amount)
	if err != nil {
		writeError(w, r, err, log.OpUpdate)
		return
	}
	NewJSONResponse().JSON(capitalResponse{OK: true, Capital: capital}).Write(w)
}

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := bindRequest(w, r, &req); err != nil {
		writeError(w, r, err, log.OpCreate)
		return
	}
	exp, err := s.ledger.AddExpense(r.Context(), req.Month, req.toNewExpense())
	if err != nil {
		writeError(w, r, err, log.OpCreate)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).JSON(exp).Write(w)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	list := s.ledger.ListExpenses(r.Context(), sanitizeInput(r.PathValue("month")))
	if list == nil {
		list = []core.Expense{}
	}
	NewJSONResponse().JSON(list).Write(w)
}

func (s *Server) handleRemoveExpense(w http.ResponseWriter, r *http.Request) {
	month := sanitizeInput(r.URL.Query().Get("month"))
	if err := core.ValidateMonth(month); err != nil {
		writeError(w, r, err, log.OpDelete)
		return
	}
	removed, err := s.ledger.RemoveExpense(r.Context(), month, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err, log.OpDelete)
		return
	}
	NewJSONResponse().JSON(removeResponse{OK: true, Removed: removed}).Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	agg := s.ledger.Summary(r.Context(), sanitizeInput(r.PathValue("month")))
	NewJSONResponse().JSON(agg).Write(w)
}

func (s *Server) handleMonths(w http.ResponseWriter, r *http.Request) {
	months := s.ledger.Months(r.Context())
	if months == nil {
		months = []string{}
	}
	NewJSONResponse().JSON(months).Write(w)
}

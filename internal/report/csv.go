package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"monthbook/internal/core"
)

// CSVContentType is the MIME type of CSV exports.
const CSVContentType = "text/csv; charset=utf-8"

// CSVFileName returns the CSV export file name for month.
func CSVFileName(month string) string {
	return strings.TrimSuffix(FileName(month), ".xlsx") + ".csv"
}

// WriteCSV writes the month's expenses oldest first with a
// Date,Category,Amount,Note header. Amounts use a plain dot decimal.
func WriteCSV(w io.Writer, expenses []core.Expense) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Date", "Category", "Amount", "Note"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, e := range core.SortedAscending(expenses) {
		if err := cw.Write([]string{e.Date, e.Category, e.Amount.StringFixed(2), e.Note}); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Package report renders a month of the ledger into a two-sheet spreadsheet
// workbook and publishes it.
package report

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"monthbook/internal/core"
)

const (
	SheetOverview = "Overview"
	SheetDetails  = "Details"

	// ContentType is the MIME type of rendered workbooks.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	currencyFormat = "#,##0.00"
	headerFill     = "EEF2FF"
	borderColor    = "000000"
	minColumnWidth = 10
	columnPadding  = 2
)

// Workbook is a rendered report. Callers must Close it.
type Workbook struct {
	Month string
	file  *excelize.File
}

// WriteTo serializes the workbook as xlsx.
func (w *Workbook) WriteTo(dst io.Writer) (int64, error) {
	return w.file.WriteTo(dst)
}

// SaveAs writes the workbook to path.
func (w *Workbook) SaveAs(path string) error {
	return w.file.SaveAs(path)
}

// Close releases the workbook.
func (w *Workbook) Close() error {
	return w.file.Close()
}

// FileName returns the deterministic report file name for month. Characters
// outside [A-Za-z0-9._-] are replaced so the name is always a single path
// element.
func FileName(month string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, month)
	return "report-" + safe + ".xlsx"
}

type cellStyle struct {
	title    bool
	bold     bool
	header   bool
	currency bool
}

type cell struct {
	value   any
	formula string
	// text is the rendered form used to size the column.
	text  string
	style cellStyle
}

// A nil row renders as a blank spacer row.
type grid struct {
	name string
	rows [][]cell
}

func textCell(s string, style cellStyle) cell {
	return cell{value: s, text: s, style: style}
}

func amountCell(a core.Amount, style cellStyle) cell {
	style.currency = true
	return cell{value: a.Float(), text: a.Fixed(), style: style}
}

// Render builds the Overview and Details sheets for month.
func Render(month string, agg core.Aggregate, expenses []core.Expense) (*Workbook, error) {
	f := excelize.NewFile()
	wb := &Workbook{Month: month, file: f}

	if err := f.SetSheetName("Sheet1", SheetOverview); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetDetails); err != nil {
		f.Close()
		return nil, fmt.Errorf("create details sheet: %w", err)
	}

	w := &sheetWriter{file: f, styles: map[cellStyle]int{}}
	for _, g := range []grid{overviewGrid(month, agg), detailsGrid(expenses)} {
		if err := w.write(g); err != nil {
			f.Close()
			return nil, fmt.Errorf("write %s sheet: %w", g.name, err)
		}
	}

	// The Details total is a formula; ask readers to compute it on open.
	fullCalc := true
	if err := f.SetCalcProps(&excelize.CalcPropsOptions{FullCalcOnLoad: &fullCalc}); err != nil {
		f.Close()
		return nil, fmt.Errorf("set calc props: %w", err)
	}
	f.SetActiveSheet(0)
	return wb, nil
}

func overviewGrid(month string, agg core.Aggregate) grid {
	bold := cellStyle{bold: true}
	g := grid{name: SheetOverview}
	g.rows = append(g.rows,
		[]cell{textCell("Monthly Report: "+month, cellStyle{title: true})},
		nil,
		[]cell{textCell("Capital", bold), amountCell(agg.Capital, bold)},
		[]cell{textCell("Total Spent", bold), amountCell(agg.TotalSpent, bold)},
		[]cell{textCell("Remaining", bold), amountCell(agg.Remaining, bold)},
		nil,
		[]cell{textCell("Category", bold), textCell("Total", bold)},
	)
	for _, name := range agg.Categories {
		g.rows = append(g.rows, []cell{
			textCell(name, cellStyle{}),
			amountCell(agg.ByCategory[name], cellStyle{}),
		})
	}
	return g
}

func detailsGrid(expenses []core.Expense) grid {
	header := cellStyle{bold: true, header: true}
	g := grid{name: SheetDetails}
	g.rows = append(g.rows, []cell{
		textCell("Date", header),
		textCell("Category", header),
		textCell("Amount", header),
		textCell("Note", header),
	})

	total := core.Zero
	for _, e := range core.SortedAscending(expenses) {
		total = total.Plus(e.Amount)
		g.rows = append(g.rows, []cell{
			textCell(e.Date, cellStyle{}),
			textCell(e.Category, cellStyle{}),
			amountCell(e.Amount, cellStyle{}),
			textCell(e.Note, cellStyle{}),
		})
	}

	// Detail rows are 2..n+1 and row n+2 is the spacer; summing through the
	// spacer keeps the range valid when there are no expenses.
	lastRow := len(expenses) + 2
	g.rows = append(g.rows, nil, []cell{
		textCell("Total", cellStyle{bold: true}),
		{},
		{formula: fmt.Sprintf("SUM(C2:C%d)", lastRow), text: total.Fixed(), style: cellStyle{bold: true, currency: true}},
	})
	return g
}

type sheetWriter struct {
	file   *excelize.File
	styles map[cellStyle]int
}

func (w *sheetWriter) write(g grid) error {
	widths := map[int]int{}
	for r, row := range g.rows {
		for c, cl := range row {
			ref, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			switch {
			case cl.formula != "":
				if err := w.file.SetCellFormula(g.name, ref, cl.formula); err != nil {
					return err
				}
			case cl.value != nil:
				if err := w.file.SetCellValue(g.name, ref, cl.value); err != nil {
					return err
				}
			}
			styleID, err := w.style(cl.style)
			if err != nil {
				return err
			}
			if err := w.file.SetCellStyle(g.name, ref, ref, styleID); err != nil {
				return err
			}
			widths[c] = max(widths[c], utf8.RuneCountInString(cl.text))
		}
	}
	for c, longest := range widths {
		name, err := excelize.ColumnNumberToName(c + 1)
		if err != nil {
			return err
		}
		if err := w.file.SetColWidth(g.name, name, name, float64(max(longest, minColumnWidth)+columnPadding)); err != nil {
			return err
		}
	}
	return nil
}

// style returns the style id for s, registering it on first use. Every
// style carries a thin border on all four sides.
func (w *sheetWriter) style(s cellStyle) (int, error) {
	if id, ok := w.styles[s]; ok {
		return id, nil
	}
	st := &excelize.Style{
		Border: []excelize.Border{
			{Type: "left", Color: borderColor, Style: 1},
			{Type: "top", Color: borderColor, Style: 1},
			{Type: "right", Color: borderColor, Style: 1},
			{Type: "bottom", Color: borderColor, Style: 1},
		},
	}
	switch {
	case s.title:
		st.Font = &excelize.Font{Bold: true, Size: 16}
	case s.bold:
		st.Font = &excelize.Font{Bold: true}
	}
	if s.header {
		st.Fill = excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{headerFill}}
	}
	if s.currency {
		format := currencyFormat
		st.CustomNumFmt = &format
	}
	id, err := w.file.NewStyle(st)
	if err != nil {
		return 0, fmt.Errorf("create style: %w", err)
	}
	w.styles[s] = id
	return id, nil
}

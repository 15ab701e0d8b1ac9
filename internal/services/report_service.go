package services

import (
	"context"
	"fmt"
	"io"

	"monthbook/internal/core"
	"monthbook/internal/log"
	"monthbook/internal/report"
	"monthbook/internal/storage"
)

// ReportService turns a month of the ledger into published reports.
type ReportService struct {
	store     *storage.LedgerStore
	publisher *report.Publisher
	exports   *storage.ExportLog
	log       *log.Logger
}

// NewReportService wires the store to the publisher. exports may be nil.
func NewReportService(store *storage.LedgerStore, publisher *report.Publisher, exports *storage.ExportLog) *ReportService {
	return &ReportService{
		store:     store,
		publisher: publisher,
		exports:   exports,
		log:       log.Default(log.ComponentReport),
	}
}

// Export renders and publishes the month's workbook. The caller streams
// pub.LocalPath and then calls Release.
func (s *ReportService) Export(ctx context.Context, month string) (*report.Publication, error) {
	if err := core.ValidateMonth(month); err != nil {
		return nil, err
	}
	rec := s.store.Month(ctx, month)
	agg := core.Compute(month, rec)

	wb, err := report.Render(month, agg, rec.Expenses)
	if err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	defer wb.Close()

	pub, err := s.publisher.Publish(ctx, wb, month)
	if err != nil {
		return nil, fmt.Errorf("publish report: %w", err)
	}
	s.log.InfoContext(ctx, "Report exported",
		log.FieldMonth, month,
		log.FieldFile, pub.FileName,
		"uploads", len(pub.Uploads))
	return pub, nil
}

// Release schedules removal of the publication's local file.
func (s *ReportService) Release(pub *report.Publication) {
	s.publisher.Release(pub)
}

// Mirror exports month and releases the local copy straight away. Used by the
// worker to keep remote copies current, so an enabled target that missed
// the upload is an error wrapping report.ErrUploadFailed.
func (s *ReportService) Mirror(ctx context.Context, month string) (*report.Publication, error) {
	pub, err := s.Export(ctx, month)
	if err != nil {
		return nil, err
	}
	s.Release(pub)
	if err := pub.Err(); err != nil {
		return pub, fmt.Errorf("mirror %s: %w", month, err)
	}
	return pub, nil
}

// WriteCSV writes the month's expenses as CSV.
func (s *ReportService) WriteCSV(ctx context.Context, w io.Writer, month string) error {
	if err := core.ValidateMonth(month); err != nil {
		return err
	}
	return report.WriteCSV(w, s.store.ListExpenses(ctx, month))
}

// History lists recorded uploads of month, newest first. It returns
// storage.ErrExportLogDisabled when no export log is configured.
func (s *ReportService) History(ctx context.Context, month string) ([]storage.ExportRecord, error) {
	if err := core.ValidateMonth(month); err != nil {
		return nil, err
	}
	return s.exports.ListByMonth(ctx, month)
}

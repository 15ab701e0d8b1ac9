package http

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"

	"monthbook/internal/log"
	"monthbook/internal/report"
	"monthbook/internal/storage"
)

// ReportAPI is the reporting surface the handlers need.
// *services.ReportService implements it.
type ReportAPI interface {
	Export(ctx context.Context, month string) (*report.Publication, error)
	Release(pub *report.Publication)
	WriteCSV(ctx context.Context, w io.Writer, month string) error
	History(ctx context.Context, month string) ([]storage.ExportRecord, error)
}

// HeaderUploadLink carries the first remote link of an exported report.
const HeaderUploadLink = "X-Upload-Link"

// utf8BOM lets spreadsheet apps detect the CSV encoding.
const utf8BOM = "\ufeff"

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	month := sanitizeInput(r.PathValue("month"))
	pub, err := s.reports.Export(r.Context(), month)
	if err != nil {
		writeError(w, r, err, log.OpPublish)
		return
	}
	defer s.reports.Release(pub)

	f, err := os.Open(pub.LocalPath)
	if err != nil {
		writeError(w, r, err, log.OpRead)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, r, err, log.OpRead)
		return
	}

	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", attachmentDisposition(pub.FileName))
	w.Header().Set("Cache-Control", "no-store")
	if link := pub.Link(); link != "" {
		w.Header().Set(HeaderUploadLink, link)
	}
	http.ServeContent(w, r, pub.FileName, info.ModTime(), f)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	month := sanitizeInput(r.PathValue("month"))

	var buf bytes.Buffer
	buf.WriteString(utf8BOM)
	if err := s.reports.WriteCSV(r.Context(), &buf, month); err != nil {
		writeError(w, r, err, log.OpRender)
		return
	}

	w.Header().Set("Content-Type", report.CSVContentType)
	w.Header().Set("Content-Disposition", attachmentDisposition(report.CSVFileName(month)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleExportHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.reports.History(r.Context(), sanitizeInput(r.PathValue("month")))
	if err != nil {
		writeError(w, r, err, log.OpList)
		return
	}
	NewJSONResponse().JSON(records).Write(w)
}

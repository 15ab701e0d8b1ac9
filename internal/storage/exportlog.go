package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrExportLogDisabled is returned by a nil *ExportLog.
var ErrExportLogDisabled = errors.New("export log disabled")

// ExportRecord is one successful report upload.
type ExportRecord struct {
	ID        int64     `json:"id"`
	Month     string    `json:"month"`
	FileName  string    `json:"fileName"`
	Target    string    `json:"target"`
	RemoteID  string    `json:"remoteId"`
	Link      string    `json:"link"`
	SizeBytes int64     `json:"sizeBytes"`
	CreatedAt time.Time `json:"createdAt"`
}

// ExportLog keeps the upload history in SQLite. A nil *ExportLog is valid
// and behaves as disabled.
type ExportLog struct {
	db  *sql.DB
	now func() time.Time
}

// NewExportLog opens (or creates) the database at dbPath and migrates it.
func NewExportLog(dbPath string) (*ExportLog, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := migrateExportLog(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate export log: %w", err)
	}

	return &ExportLog{db: db, now: time.Now}, nil
}

// Close releases the database.
func (l *ExportLog) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Record stores rec and returns it with its id and timestamp filled.
func (l *ExportLog) Record(ctx context.Context, rec ExportRecord) (ExportRecord, error) {
	if l == nil {
		return rec, ErrExportLogDisabled
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = l.now().UTC()
	}
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO exports (month, file_name, target, remote_id, link, size_bytes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Month, rec.FileName, rec.Target, rec.RemoteID, rec.Link, rec.SizeBytes, rec.CreatedAt)
	if err != nil {
		return rec, fmt.Errorf("insert export: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return rec, fmt.Errorf("export id: %w", err)
	}
	rec.ID = id
	return rec, nil
}

// ListByMonth returns the uploads of month, newest first.
func (l *ExportLog) ListByMonth(ctx context.Context, month string) ([]ExportRecord, error) {
	if l == nil {
		return nil, ErrExportLogDisabled
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, month, file_name, target, remote_id, link, size_bytes, created_at
		 FROM exports WHERE month = ? ORDER BY created_at DESC, id DESC`, month)
	if err != nil {
		return nil, fmt.Errorf("query exports: %w", err)
	}
	defer rows.Close()

	out := []ExportRecord{}
	for rows.Next() {
		var rec ExportRecord
		if err := rows.Scan(&rec.ID, &rec.Month, &rec.FileName, &rec.Target,
			&rec.RemoteID, &rec.Link, &rec.SizeBytes, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan export: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exports: %w", err)
	}
	return out, nil
}

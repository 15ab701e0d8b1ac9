package services

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monthbook/internal/amqp"
	"monthbook/internal/core"
	"monthbook/internal/report"
	"monthbook/internal/storage"
	"monthbook/internal/upload"
	"monthbook/internal/upload/memory"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []*amqp.LedgerChangedMessage
	err  error
}

func (p *recordingPublisher) PublishLedgerChanged(_ context.Context, msg *amqp.LedgerChangedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return p.err
}

func (p *recordingPublisher) changes() []amqp.ChangeType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.ChangeType, 0, len(p.msgs))
	for _, m := range p.msgs {
		out = append(out, m.Change)
	}
	return out
}

func newStore(t *testing.T) *storage.LedgerStore {
	t.Helper()
	s, err := storage.NewLedgerStore(filepath.Join(t.TempDir(), "data.json"))
	require.NoError(t, err)
	return s
}

func TestLedgerServicePublishesChanges(t *testing.T) {
	events := &recordingPublisher{}
	svc := NewLedgerService(newStore(t), events)
	ctx := context.Background()

	capital, err := svc.SetCapital(ctx, "2025-01", "1000")
	require.NoError(t, err)
	assert.Equal(t, "1000", capital.String())

	exp, err := svc.AddExpense(ctx, "2025-01", core.NewExpense{Date: "2025-01-02", Category: "Food", Amount: float64(25)})
	require.NoError(t, err)

	removed, err := svc.RemoveExpense(ctx, "2025-01", "unknown")
	require.NoError(t, err)
	assert.Zero(t, removed)

	removed, err = svc.RemoveExpense(ctx, "2025-01", exp.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.Equal(t, []amqp.ChangeType{amqp.ChangeCapitalSet, amqp.ChangeExpenseAdded, amqp.ChangeExpenseRemoved}, events.changes())
}

func TestLedgerServiceSetCapitalRules(t *testing.T) {
	svc := NewLedgerService(newStore(t), nil)
	ctx := context.Background()

	_, err := svc.SetCapital(ctx, "2025-01", nil)
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "amount", verr.Field)

	_, err = svc.SetCapital(ctx, "", 10.0)
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "month", verr.Field)

	capital, err := svc.SetCapital(ctx, "2025-01", "abc")
	require.NoError(t, err)
	assert.True(t, capital.IsZero())

	capital, err = svc.SetCapital(ctx, "2025-01", -50.0)
	require.NoError(t, err)
	assert.True(t, capital.IsZero())
}

func TestLedgerServiceIgnoresPublishFailure(t *testing.T) {
	events := &recordingPublisher{err: errors.New("broker down")}
	svc := NewLedgerService(newStore(t), events)

	_, err := svc.AddExpense(context.Background(), "2025-01", core.NewExpense{Date: "2025-01-02", Category: "Food", Amount: "3"})
	require.NoError(t, err)
	assert.Len(t, svc.ListExpenses(context.Background(), "2025-01"), 1)
}

func TestLedgerServiceSummary(t *testing.T) {
	svc := NewLedgerService(newStore(t), nil)
	ctx := context.Background()

	_, err := svc.SetCapital(ctx, "2025-02", 100.0)
	require.NoError(t, err)
	for _, amt := range []string{"60", "70"} {
		_, err := svc.AddExpense(ctx, "2025-02", core.NewExpense{Date: "2025-02-01", Category: "Rent", Amount: amt})
		require.NoError(t, err)
	}

	agg := svc.Summary(ctx, "2025-02")
	assert.Equal(t, "130", agg.TotalSpent.String())
	assert.True(t, agg.Remaining.IsZero())
	assert.Equal(t, 2, agg.Count)
	assert.Equal(t, []string{"2025-02"}, svc.Months(ctx))
}

func newReportService(t *testing.T, exports *storage.ExportLog, uploaders ...upload.Uploader) (*ReportService, *storage.LedgerStore) {
	t.Helper()
	store := newStore(t)
	p, err := report.NewPublisher(report.PublisherConfig{Dir: t.TempDir(), CleanupDelay: 20 * time.Millisecond}, exports, uploaders...)
	require.NoError(t, err)
	return NewReportService(store, p, exports), store
}

func TestReportServiceExport(t *testing.T) {
	exports, err := storage.NewExportLog(filepath.Join(t.TempDir(), "exports.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = exports.Close() })

	drive := memory.New("drive")
	svc, store := newReportService(t, exports, drive)
	ctx := context.Background()

	_, err = store.SetCapital(ctx, "2025-01", core.MustAmount("500"))
	require.NoError(t, err)
	_, err = store.AddExpense(ctx, "2025-01", core.NewExpense{Date: "2025-01-05", Category: "Food", Amount: "20"})
	require.NoError(t, err)

	pub, err := svc.Export(ctx, "2025-01")
	require.NoError(t, err)
	assert.Equal(t, "report-2025-01.xlsx", pub.FileName)
	assert.FileExists(t, pub.LocalPath)
	require.Len(t, pub.Uploads, 1)
	assert.NotEmpty(t, pub.Link())
	assert.Len(t, drive.Objects(), 1)

	history, err := svc.History(ctx, "2025-01")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "drive", history[0].Target)

	svc.Release(pub)
	assert.Eventually(t, func() bool {
		_, err := os.Stat(pub.LocalPath)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReportServiceExportRejectsEmptyMonth(t *testing.T) {
	svc, _ := newReportService(t, nil)
	_, err := svc.Export(context.Background(), " ")
	var verr *core.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestReportServiceMirrorReleases(t *testing.T) {
	s3 := memory.New("s3")
	svc, _ := newReportService(t, nil, s3)

	pub, err := svc.Mirror(context.Background(), "2025-02")
	require.NoError(t, err)
	assert.Len(t, s3.Objects(), 1)
	assert.Eventually(t, func() bool {
		_, err := os.Stat(pub.LocalPath)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReportServiceMirrorReportsFailedTargets(t *testing.T) {
	drive := memory.New("drive").FailWith(errors.New("quota exceeded"))
	s3 := memory.New("s3")
	svc, _ := newReportService(t, nil, drive, s3)

	pub, err := svc.Mirror(context.Background(), "2025-02")
	require.ErrorIs(t, err, report.ErrUploadFailed)
	require.NotNil(t, pub)
	assert.Equal(t, []string{"drive"}, pub.Failed)
	assert.Len(t, s3.Objects(), 1)
	assert.Eventually(t, func() bool {
		_, err := os.Stat(pub.LocalPath)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReportServiceExportIgnoresFailedTargets(t *testing.T) {
	drive := memory.New("drive").FailWith(errors.New("quota exceeded"))
	svc, _ := newReportService(t, nil, drive)

	pub, err := svc.Export(context.Background(), "2025-02")
	require.NoError(t, err)
	assert.Equal(t, []string{"drive"}, pub.Failed)
	svc.Release(pub)
}

func TestReportServiceWriteCSV(t *testing.T) {
	svc, store := newReportService(t, nil)
	ctx := context.Background()
	_, err := store.AddExpense(ctx, "2025-03", core.NewExpense{Date: "2025-03-09", Category: "Gym", Amount: "30"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, svc.WriteCSV(ctx, &buf, "2025-03"))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{"Date,Category,Amount,Note", "2025-03-09,Gym,30.00,"}, lines)
}

func TestReportServiceHistoryDisabled(t *testing.T) {
	svc, _ := newReportService(t, nil)
	_, err := svc.History(context.Background(), "2025-01")
	assert.True(t, errors.Is(err, storage.ErrExportLogDisabled))
}

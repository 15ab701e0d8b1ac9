package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"monthbook/internal/log"
	"monthbook/internal/storage"
	"monthbook/internal/upload"
)

// ErrUploadFailed is returned by Publication.Err when an enabled target
// did not receive the report.
var ErrUploadFailed = errors.New("report upload failed")

const (
	DefaultCleanupDelay  = 8 * time.Second
	DefaultUploadTimeout = 60 * time.Second
)

// PublisherConfig controls where reports are written and how long they live.
type PublisherConfig struct {
	Dir           string
	CleanupDelay  time.Duration
	UploadTimeout time.Duration
}

// Publication is a report written to disk and mirrored to zero or more targets.
// FileName is the download and remote name; LocalPath is unique to this
// publication.
type Publication struct {
	Month     string
	FileName  string
	LocalPath string
	SizeBytes int64
	Uploads   []upload.Result
	// Failed lists the enabled targets whose upload failed.
	Failed []string
}

// Err reports the failed targets as an ErrUploadFailed, or nil.
func (p *Publication) Err() error {
	if len(p.Failed) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUploadFailed, strings.Join(p.Failed, ", "))
}

// Link returns the first remote link, or "" when nothing was uploaded.
func (p *Publication) Link() string {
	for _, u := range p.Uploads {
		if u.Link != "" {
			return u.Link
		}
	}
	return ""
}

// Publisher writes workbooks to a work directory and mirrors them through
// the configured uploaders.
type Publisher struct {
	cfg       PublisherConfig
	uploaders []upload.Uploader
	exports   *storage.ExportLog
	log       *log.Logger
}

// NewPublisher creates the work directory. exports may be nil.
func NewPublisher(cfg PublisherConfig, exports *storage.ExportLog, uploaders ...upload.Uploader) (*Publisher, error) {
	if cfg.Dir == "" {
		return nil, errors.New("report directory is required")
	}
	if cfg.CleanupDelay <= 0 {
		cfg.CleanupDelay = DefaultCleanupDelay
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = DefaultUploadTimeout
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}
	return &Publisher{
		cfg:       cfg,
		uploaders: uploaders,
		exports:   exports,
		log:       log.Default(log.ComponentReport),
	}, nil
}

// Dir is the work directory.
func (p *Publisher) Dir() string { return p.cfg.Dir }

// Publish writes wb to a fresh file named after report-{month}.xlsx and
// uploads it to every enabled target concurrently. All uploads share one
// UploadTimeout deadline. Upload failures are logged and listed in
// Publication.Failed; they never fail the publication.
func (p *Publisher) Publish(ctx context.Context, wb *Workbook, month string) (*Publication, error) {
	name := FileName(month)
	path, size, err := p.write(wb, name)
	if err != nil {
		return nil, err
	}

	pub := &Publication{Month: month, FileName: name, LocalPath: path, SizeBytes: size}
	p.log.DebugContext(ctx, "Report written", log.FieldMonth, month, log.FieldFile, path)

	var enabled []upload.Uploader
	for _, u := range p.uploaders {
		if u.Enabled() {
			enabled = append(enabled, u)
		}
	}
	if len(enabled) == 0 {
		return pub, nil
	}

	uctx, cancel := context.WithTimeout(ctx, p.cfg.UploadTimeout)
	defer cancel()

	obj := upload.Object{Path: path, Name: name, ContentType: ContentType, Month: month}
	results := make([]upload.Result, len(enabled))
	ok := make([]bool, len(enabled))
	var g errgroup.Group
	for i, u := range enabled {
		g.Go(func() error {
			results[i], ok[i] = p.upload(uctx, u, obj)
			return nil
		})
	}
	_ = g.Wait()

	for i, u := range enabled {
		if !ok[i] {
			pub.Failed = append(pub.Failed, u.Target())
			continue
		}
		pub.Uploads = append(pub.Uploads, results[i])
		p.record(ctx, pub, results[i])
	}
	return pub, nil
}

// write saves wb under a unique name in the work directory, so a later
// publication of the same month never touches a file still being served.
func (p *Publisher) write(wb *Workbook, name string) (string, int64, error) {
	f, err := os.CreateTemp(p.cfg.Dir, strings.TrimSuffix(name, ".xlsx")+"-*.xlsx")
	if err != nil {
		return "", 0, fmt.Errorf("create %s: %w", name, err)
	}
	path := f.Name()
	size, err := wb.WriteTo(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("write %s: %w", name, err)
	}
	return path, size, nil
}

func (p *Publisher) upload(ctx context.Context, u upload.Uploader, obj upload.Object) (upload.Result, bool) {
	start := time.Now()
	res, err := u.Upload(ctx, obj)
	if err != nil {
		msg := "Report upload failed"
		if errors.Is(err, upload.ErrUnavailable) {
			msg = "Upload client unavailable, skipping"
		}
		p.log.LogError(ctx, msg, err, log.OpUpload, log.NewFields().
			WithMonth(obj.Month).
			With(log.FieldTarget, u.Target()).
			With(log.FieldFile, obj.Name))
		return upload.Result{}, false
	}
	if res.SizeBytes == 0 {
		if st, err := os.Stat(obj.Path); err == nil {
			res.SizeBytes = st.Size()
		}
	}
	p.log.InfoContext(ctx, "Report uploaded",
		log.FieldMonth, obj.Month,
		log.FieldTarget, u.Target(),
		log.FieldRemoteID, res.RemoteID,
		log.FieldDuration, time.Since(start).Milliseconds())
	return res, true
}

func (p *Publisher) record(ctx context.Context, pub *Publication, res upload.Result) {
	if p.exports == nil {
		return
	}
	_, err := p.exports.Record(ctx, storage.ExportRecord{
		Month:     pub.Month,
		FileName:  pub.FileName,
		Target:    res.Target,
		RemoteID:  res.RemoteID,
		Link:      res.Link,
		SizeBytes: res.SizeBytes,
	})
	if err != nil {
		p.log.WarnContext(ctx, "Failed to record export", log.FieldMonth, pub.Month, log.FieldError, err.Error())
	}
}

// Release schedules removal of the local file after the cleanup delay.
// Removal errors are ignored.
func (p *Publisher) Release(pub *Publication) *time.Timer {
	path := pub.LocalPath
	return time.AfterFunc(p.cfg.CleanupDelay, func() {
		_ = os.Remove(path)
	})
}

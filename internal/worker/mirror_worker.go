// Package worker keeps remote report copies in step with the ledger.
package worker

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"monthbook/internal/amqp"
	"monthbook/internal/log"
	"monthbook/internal/report"
)

// Mirrorer publishes a month's report and releases the local copy.
type Mirrorer interface {
	Mirror(ctx context.Context, month string) (*report.Publication, error)
}

// Config controls batching and retries.
type Config struct {
	// FlushInterval is how often pending months are mirrored (default: 5s)
	FlushInterval time.Duration

	// MaxRetries is how many failed attempts drop a month (default: 3)
	MaxRetries int
}

// DefaultConfig returns the worker defaults.
func DefaultConfig() Config {
	return Config{
		FlushInterval: 5 * time.Second,
		MaxRetries:    3,
	}
}

// MirrorWorker collects changed months from ledger events and mirrors each
// one at most once per flush, however many changes it received.
type MirrorWorker struct {
	reports Mirrorer
	cfg     Config
	log     *log.Logger

	mu      sync.Mutex
	pending map[string]int
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewMirrorWorker returns a stopped worker.
func NewMirrorWorker(reports Mirrorer, cfg Config) *MirrorWorker {
	def := DefaultConfig()
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	return &MirrorWorker{
		reports: reports,
		cfg:     cfg,
		log:     log.Default(log.ComponentWorker),
		pending: map[string]int{},
	}
}

// HandleLedgerChanged queues the message's month for mirroring.
func (w *MirrorWorker) HandleLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
	w.Enqueue(msg.Month)
	w.log.DebugContext(ctx, "Queued month for mirroring",
		log.FieldMonth, msg.Month, "change", msg.Change)
	return nil
}

// Enqueue marks month as needing a fresh remote copy.
func (w *MirrorWorker) Enqueue(months ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, m := range months {
		if _, ok := w.pending[m]; !ok {
			w.pending[m] = 0
		}
	}
}

// Pending returns the queued months in order.
func (w *MirrorWorker) Pending() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.pending))
	for m := range w.pending {
		out = append(out, m)
	}
	slices.Sort(out)
	return out
}

// Start begins the flush loop. Returns an error if already running.
func (w *MirrorWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("mirror worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.runLoop(ctx)

	w.log.InfoContext(ctx, "Mirror worker started",
		"flush_interval", w.cfg.FlushInterval.String(),
		"max_retries", w.cfg.MaxRetries)
	return nil
}

// Stop flushes once more and waits for the loop to exit.
func (w *MirrorWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		w.log.InfoContext(ctx, "Mirror worker stopped gracefully")
	case <-ctx.Done():
		w.log.WarnContext(ctx, "Mirror worker stop timed out")
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	return nil
}

// IsRunning reports whether the flush loop is active.
func (w *MirrorWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *MirrorWorker) runLoop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			w.Flush(context.WithoutCancel(ctx))
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Flush(ctx)
		}
	}
}

// Flush mirrors every pending month once and returns how many succeeded.
// Failed months are retried on later flushes until MaxRetries is reached.
func (w *MirrorWorker) Flush(ctx context.Context) int {
	w.mu.Lock()
	batch := w.pending
	w.pending = map[string]int{}
	w.mu.Unlock()

	months := make([]string, 0, len(batch))
	for m := range batch {
		months = append(months, m)
	}
	slices.Sort(months)

	ok := 0
	for _, month := range months {
		if ctx.Err() != nil {
			w.requeue(month, batch[month])
			continue
		}
		start := time.Now()
		pub, err := w.reports.Mirror(ctx, month)
		if err != nil {
			w.handleFailure(ctx, month, batch[month]+1, err)
			continue
		}
		ok++
		w.log.InfoContext(ctx, "Mirrored report",
			log.FieldMonth, month,
			"uploads", len(pub.Uploads),
			log.FieldDuration, time.Since(start).Milliseconds())
	}
	return ok
}

func (w *MirrorWorker) handleFailure(ctx context.Context, month string, attempts int, err error) {
	if attempts >= w.cfg.MaxRetries {
		w.log.LogError(ctx, "Mirroring failed permanently after max retries", err, log.OpMirror,
			log.NewFields().WithMonth(month).With("attempts", attempts))
		return
	}
	w.log.WarnContext(ctx, "Mirroring failed, will retry",
		log.FieldMonth, month, "attempt", attempts, log.FieldError, err)
	w.requeue(month, attempts)
}

// requeue keeps a newer enqueue (attempt count 0) over the retry count.
func (w *MirrorWorker) requeue(month string, attempts int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.pending[month]; !ok {
		w.pending[month] = attempts
	}
}

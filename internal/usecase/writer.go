package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/discipline/internal/domain"
)

// WriterConfig holds persistence retry settings.
type WriterConfig struct {
	InitialInterval time.Duration // first backoff step
	MaxElapsed      time.Duration // give up one drain pass after this long
	RetryInterval   time.Duration // how often a degraded writer tries again
}

// DefaultWriterConfig returns default writer configuration.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		InitialInterval: 200 * time.Millisecond,
		MaxElapsed:      10 * time.Second,
		RetryInterval:   30 * time.Second,
	}
}

// writeJob is one ledger mutation. Nil fields are skipped.
type writeJob struct {
	record  *domain.PunishmentRecord
	summary *domain.DaySummary
	streak  *domain.StreakState
}

// LedgerWriter persists ledger mutations in order, off the enforcement path.
// Jobs stay queued until the store accepts them; inserts are idempotent so retries are safe.
type LedgerWriter struct {
	config WriterConfig
	store  domain.Store
	logger *zap.Logger

	mu       sync.Mutex
	queue    []writeJob
	degraded bool
	lastErr  string

	drainMu sync.Mutex
	wake    chan struct{}
}

// NewLedgerWriter creates a writer over store.
func NewLedgerWriter(config WriterConfig, store domain.Store, logger *zap.Logger) *LedgerWriter {
	return &LedgerWriter{
		config: config,
		store:  store,
		logger: logger,
		wake:   make(chan struct{}, 1),
	}
}

// enqueue appends a job and nudges the Run loop. Never blocks.
func (w *LedgerWriter) enqueue(job writeJob) {
	w.mu.Lock()
	w.queue = append(w.queue, job)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run drains the queue whenever new jobs arrive or the retry interval passes.
// This blocks until context is canceled.
func (w *LedgerWriter) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.config.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.wake:
		case <-ticker.C:
		}

		if err := w.drain(ctx); err != nil && ctx.Err() == nil {
			w.logger.Warn("ledger persistence degraded", zap.Error(err), zap.Int("pending", w.Pending()))
		}
	}
}

// Flush writes every queued job now. Used on shutdown.
func (w *LedgerWriter) Flush(ctx context.Context) error {
	return w.drain(ctx)
}

// Health reports queue depth and the last persistence error.
func (w *LedgerWriter) Health() domain.LedgerHealth {
	w.mu.Lock()
	defer w.mu.Unlock()
	return domain.LedgerHealth{
		Degraded:     w.degraded,
		PendingWrite: len(w.queue),
		LastError:    w.lastErr,
	}
}

// Pending returns the number of queued jobs.
func (w *LedgerWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

func (w *LedgerWriter) drain(ctx context.Context) error {
	w.drainMu.Lock()
	defer w.drainMu.Unlock()

	for {
		w.mu.Lock()
		if len(w.queue) == 0 {
			w.degraded = false
			w.lastErr = ""
			w.mu.Unlock()
			return nil
		}
		job := w.queue[0]
		w.mu.Unlock()

		if err := w.persist(ctx, job); err != nil {
			w.mu.Lock()
			w.degraded = true
			w.lastErr = err.Error()
			w.mu.Unlock()
			return err
		}

		w.mu.Lock()
		w.queue = w.queue[1:]
		w.mu.Unlock()
	}
}

func (w *LedgerWriter) persist(ctx context.Context, job writeJob) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.config.InitialInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := w.write(ctx, job)
		if errors.Is(err, domain.ErrStoreUnavailable) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(w.config.MaxElapsed))
	return err
}

func (w *LedgerWriter) write(ctx context.Context, job writeJob) error {
	if job.record != nil {
		if err := w.store.SaveRecord(ctx, *job.record); err != nil {
			return fmt.Errorf("save record %s: %w", job.record.ID, err)
		}
	}
	if job.summary != nil {
		if err := w.store.SaveSummary(ctx, *job.summary); err != nil {
			return fmt.Errorf("save summary %s: %w", job.summary.Date, err)
		}
	}
	if job.streak != nil {
		if err := w.store.SaveStreak(ctx, *job.streak); err != nil {
			return fmt.Errorf("save streak: %w", err)
		}
	}
	return nil
}

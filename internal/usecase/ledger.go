package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/discipline/internal/config"
	"github.com/eliteGoblin/focusd/discipline/internal/domain"
)

// DateLayout formats local days.
const DateLayout = "2006-01-02"

// Ledger is the single append point for closed punishment records.
// It keeps the active day's summary and the streak, and hands persistence to a LedgerWriter.
type Ledger struct {
	mu     sync.Mutex
	loc    *time.Location
	writer *LedgerWriter
	logger *zap.Logger

	storeErr error // set when the store could not be opened at all

	seen      map[string]bool
	records   map[string][]domain.PunishmentRecord // by day
	summaries map[string]domain.DaySummary
	streak    domain.StreakState
}

// NewLedger creates an in-memory ledger. writer may be nil.
func NewLedger(loc *time.Location, writer *LedgerWriter, logger *zap.Logger) *Ledger {
	if loc == nil {
		loc = time.Local
	}
	return &Ledger{
		loc:       loc,
		writer:    writer,
		logger:    logger,
		seen:      make(map[string]bool),
		records:   make(map[string][]domain.PunishmentRecord),
		summaries: make(map[string]domain.DaySummary),
	}
}

// Location returns the time zone local days are cut in.
func (l *Ledger) Location() *time.Location {
	return l.loc
}

// Restore loads the streak and the records of now's day from store.
func (l *Ledger) Restore(ctx context.Context, store domain.Store, now time.Time) error {
	streak, err := store.LoadStreak(ctx)
	if err != nil {
		return fmt.Errorf("load streak: %w", err)
	}

	from := l.startOfDay(now)
	recs, err := store.ListRecords(ctx, from, from.AddDate(0, 0, 1))
	if err != nil {
		return fmt.Errorf("load records: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.streak = streak
	for _, r := range recs {
		if l.seen[r.ID] {
			continue
		}
		l.seen[r.ID] = true
		day := l.dayOf(r.ResolvedAt)
		l.records[day] = append(l.records[day], r)
	}
	l.advanceLocked(now)
	day := l.dayOf(now)
	l.summaries[day] = l.summarizeLocked(day)

	l.logger.Info("ledger restored",
		zap.Int("streak", l.streak.Current),
		zap.Int("records_today", len(l.records[day])))
	return nil
}

// Record appends a closed record and recomputes its day's summary.
// Recording the same ID twice is a no-op.
func (l *Ledger) Record(rec domain.PunishmentRecord) domain.DaySummary {
	l.mu.Lock()

	day := l.dayOf(rec.ResolvedAt)
	if l.seen[rec.ID] {
		summary := l.summaries[day]
		l.mu.Unlock()
		l.logger.Debug("duplicate record ignored", zap.String("record", rec.ID))
		return summary
	}
	l.seen[rec.ID] = true

	_, closed := l.advanceLocked(rec.ResolvedAt)
	var closedSummary *domain.DaySummary
	if s, ok := l.summaries[closed]; ok && closed != "" {
		closedSummary = &s
	}
	l.records[day] = append(l.records[day], rec)

	if rec.Outcome.IsFail() {
		l.streak.Current = 0
		l.streak.LastFailDate = domain.Some(day)
		l.streak.TotalFails++
	}

	summary := l.summarizeLocked(day)
	l.summaries[day] = summary
	streak := l.streak
	l.mu.Unlock()

	l.logger.Info("record committed",
		zap.String("record", rec.ID),
		zap.String("outcome", string(rec.Outcome)),
		zap.Float64("score", summary.DisciplineScore),
		zap.Int("streak", streak.Current))

	if l.writer != nil {
		if closedSummary != nil {
			l.writer.enqueue(writeJob{summary: closedSummary})
		}
		l.writer.enqueue(writeJob{record: &rec, summary: &summary, streak: &streak})
	}
	return summary
}

// Rollover closes any day before now's day. A closed day without a fail extends the streak once.
func (l *Ledger) Rollover(now time.Time) {
	l.mu.Lock()
	changed, closed := l.advanceLocked(now)
	if !changed {
		l.mu.Unlock()
		return
	}
	day := l.dayOf(now)
	summary := l.summarizeLocked(day)
	l.summaries[day] = summary
	streak := l.streak
	var closedSummary *domain.DaySummary
	if s, ok := l.summaries[closed]; ok {
		closedSummary = &s
	}
	l.mu.Unlock()

	l.logger.Info("day rolled over",
		zap.String("closed", closed),
		zap.String("day", day),
		zap.Int("streak", streak.Current),
		zap.Int("longest", streak.Longest))

	if l.writer != nil {
		if closedSummary != nil {
			l.writer.enqueue(writeJob{summary: closedSummary})
		}
		l.writer.enqueue(writeJob{summary: &summary, streak: &streak})
	}
}

// advanceLocked moves the active day forward to t's day. Caller holds mu.
func (l *Ledger) advanceLocked(t time.Time) (changed bool, closed string) {
	day := l.dayOf(t)
	if l.streak.LastDay == "" {
		l.streak.LastDay = day
		return true, ""
	}
	if day <= l.streak.LastDay {
		return false, ""
	}

	closed = l.streak.LastDay
	if last, ok := l.streak.LastFailDate.Get(); !ok || last != closed {
		l.streak.Current++
	}
	if l.streak.Current > l.streak.Longest {
		l.streak.Longest = l.streak.Current
	}
	l.streak.LastDay = day
	l.summaries[closed] = l.summarizeLocked(closed)
	return true, closed
}

// summarizeLocked derives a day's summary from its records. Caller holds mu.
func (l *Ledger) summarizeLocked(day string) domain.DaySummary {
	recs := l.records[day]
	s := domain.DaySummary{
		Date:            day,
		TotalViolations: len(recs),
		CurrentStreak:   l.streak.Current,
		LongestStreak:   l.streak.Longest,
	}

	var escapeTotal time.Duration
	byApp := newWeightedKeys[string]()
	byHour := newWeightedKeys[int]()

	for _, r := range recs {
		if r.WasEscaped {
			s.TotalEscapes++
			escapeTotal += r.EscapeTime.OrElse(0)
		}
		if r.Outcome.IsFail() {
			s.TotalFails++
		}
		s.TotalDuration += r.ResolvedAt.Sub(r.PresentedAt)

		ts := r.Violation.Timestamp
		byApp.add(r.Violation.AppID, r.Violation.Elapsed, ts)
		byHour.add(ts.In(l.loc).Hour(), r.Violation.Elapsed, ts)
	}

	if s.TotalEscapes > 0 {
		s.AverageEscapeTime = escapeTotal / time.Duration(s.TotalEscapes)
	}
	if app, ok := byApp.top(); ok {
		s.WorstApp = domain.Some(app)
	}
	if hour, ok := byHour.top(); ok {
		s.PeakWeaknessHour = domain.Some(hour)
	}

	s.DisciplineScore = Score(s.TotalViolations, s.TotalEscapes, s.TotalFails, l.streak.Current)
	return s
}

// Score computes the discipline score in [0,100].
// base is 70·escapes/violations, or 100 on a day without violations.
func Score(violations, escapes, fails, streak int) float64 {
	base := 100.0
	if violations > 0 {
		base = 70.0 * float64(escapes) / float64(violations)
	}
	bonus := float64(min(streak, config.StreakBonusCap)) * config.StreakMultiplier
	score := base + bonus + config.EscapeBonus*float64(escapes) - math.Abs(config.FailPenalty)*float64(fails)
	return math.Max(0, math.Min(100, score))
}

// Summary returns a known day's summary.
func (l *Ledger) Summary(day string) (domain.DaySummary, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.summaries[day]
	return s, ok
}

// Today returns the summary of now's day, computing an empty one if needed.
func (l *Ledger) Today(now time.Time) domain.DaySummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	day := l.dayOf(now)
	if s, ok := l.summaries[day]; ok {
		return s
	}
	return l.summarizeLocked(day)
}

// Streak returns the current streak bookkeeping.
func (l *Ledger) Streak() domain.StreakState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.streak
}

// ViolationsOn returns the violations of a day in record order.
func (l *Ledger) ViolationsOn(day string) []domain.ViolationEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.ViolationEvent, 0, len(l.records[day]))
	for _, r := range l.records[day] {
		out = append(out, r.Violation)
	}
	return out
}

// MarkStoreUnavailable records that the ledger runs in memory because the store could not be opened.
func (l *Ledger) MarkStoreUnavailable(err error) {
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		err = fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	l.mu.Lock()
	l.storeErr = err
	l.mu.Unlock()
	l.logger.Warn("ledger running without persistence", zap.Error(err))
}

// Health reports persistence state. A ledger built without a writer on purpose is never degraded.
func (l *Ledger) Health() domain.LedgerHealth {
	l.mu.Lock()
	storeErr := l.storeErr
	l.mu.Unlock()
	if storeErr != nil {
		return domain.LedgerHealth{Degraded: true, LastError: storeErr.Error()}
	}
	if l.writer == nil {
		return domain.LedgerHealth{}
	}
	return l.writer.Health()
}

// Close flushes pending writes.
func (l *Ledger) Close(ctx context.Context) error {
	if l.writer == nil {
		return nil
	}
	if err := l.writer.Flush(ctx); err != nil {
		return fmt.Errorf("flush ledger: %w", err)
	}
	return nil
}

// Day formats t as a local day.
func (l *Ledger) Day(t time.Time) string {
	return l.dayOf(t)
}

func (l *Ledger) dayOf(t time.Time) string {
	return t.In(l.loc).Format(DateLayout)
}

func (l *Ledger) startOfDay(t time.Time) time.Time {
	y, m, d := t.In(l.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, l.loc)
}

// weightedKeys sums durations per key and picks the heaviest.
// Ties go to the most recent occurrence, then to the smallest key.
type weightedKeys[K string | int] struct {
	total map[K]time.Duration
	last  map[K]time.Time
}

func newWeightedKeys[K string | int]() *weightedKeys[K] {
	return &weightedKeys[K]{total: make(map[K]time.Duration), last: make(map[K]time.Time)}
}

func (w *weightedKeys[K]) add(k K, d time.Duration, at time.Time) {
	w.total[k] += d
	if at.After(w.last[k]) {
		w.last[k] = at
	}
}

func (w *weightedKeys[K]) top() (K, bool) {
	keys := make([]K, 0, len(w.total))
	for k := range w.total {
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		var zero K
		return zero, false
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if w.total[a] != w.total[b] {
			return w.total[a] > w.total[b]
		}
		if !w.last[a].Equal(w.last[b]) {
			return w.last[a].After(w.last[b])
		}
		return a < b
	})
	return keys[0], true
}

package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/discipline/internal/domain"
)

// mockStore implements domain.Store for testing
type mockStore struct {
	mu        sync.Mutex
	records   map[string]domain.PunishmentRecord
	summaries map[string]domain.DaySummary
	streak    domain.StreakState
	saveErr   error
	failLeft  int // fail this many saves, then succeed
	saves     int
}

func newMockStore() *mockStore {
	return &mockStore{
		records:   make(map[string]domain.PunishmentRecord),
		summaries: make(map[string]domain.DaySummary),
	}
}

func (m *mockStore) fail() error {
	m.saves++
	if m.failLeft > 0 {
		m.failLeft--
		return errors.New("disk busy")
	}
	return m.saveErr
}

func (m *mockStore) SaveRecord(ctx context.Context, r domain.PunishmentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	if _, ok := m.records[r.ID]; !ok {
		m.records[r.ID] = r
	}
	return nil
}

func (m *mockStore) ListRecords(ctx context.Context, from, to time.Time) ([]domain.PunishmentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PunishmentRecord
	for _, r := range m.records {
		if !r.ResolvedAt.Before(from) && r.ResolvedAt.Before(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockStore) SaveSummary(ctx context.Context, s domain.DaySummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	m.summaries[s.Date] = s
	return nil
}

func (m *mockStore) GetSummary(ctx context.Context, date string) (*domain.DaySummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.summaries[date]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (m *mockStore) ListSummaries(ctx context.Context, from, to string) ([]domain.DaySummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.DaySummary
	for d, s := range m.summaries {
		if d >= from && d <= to {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockStore) SaveStreak(ctx context.Context, s domain.StreakState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	m.streak = s
	return nil
}

func (m *mockStore) LoadStreak(ctx context.Context) (domain.StreakState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streak, nil
}

func (m *mockStore) SaveBrotherhood(ctx context.Context, s domain.BrotherhoodState) error {
	return nil
}

func (m *mockStore) LoadBrotherhood(ctx context.Context) (*domain.BrotherhoodState, error) {
	return nil, domain.ErrNotFound
}

func (m *mockStore) Close() error { return nil }

func escapedRecord(id, app string, at time.Time, after time.Duration) domain.PunishmentRecord {
	return domain.PunishmentRecord{
		ID:           id,
		Violation:    domain.ViolationEvent{ID: "v-" + id, AppID: app, Timestamp: at, Elapsed: 12 * time.Second},
		PresentedAt:  at,
		ResolvedAt:   at.Add(after),
		Outcome:      domain.OutcomeEscaped,
		WasEscaped:   true,
		EscapeMethod: domain.Some(domain.EscapeVoiceConfession),
		EscapeTime:   domain.Some(after),
	}
}

func failedRecord(id, app string, at time.Time) domain.PunishmentRecord {
	return domain.PunishmentRecord{
		ID:           id,
		Violation:    domain.ViolationEvent{ID: "v-" + id, AppID: app, Timestamp: at, Elapsed: 12 * time.Second},
		PresentedAt:  at,
		ResolvedAt:   at.Add(15 * time.Second),
		Outcome:      domain.OutcomeTimedOut,
		EscapeMethod: domain.Some(domain.EscapeTimeout),
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name                              string
		violations, escapes, fails, streak int
		want                              float64
	}{
		{"clean day", 0, 0, 0, 0, 100},
		{"clean day with streak stays capped", 0, 0, 0, 10, 100},
		{"one escape", 1, 1, 0, 0, 72},
		{"one fail", 1, 0, 1, 0, 0},
		{"mixed with streak", 2, 1, 1, 4, 35 + 6 + 2 - 5},
		{"streak bonus capped", 1, 1, 0, 100, 100},
		{"many fails floor at zero", 10, 0, 10, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Score(tt.violations, tt.escapes, tt.fails, tt.streak), 1e-9)
		})
	}
}

func TestLedger_FailResetsStreak(t *testing.T) {
	l := NewLedger(time.UTC, nil, zap.NewNop())
	l.Rollover(t0)
	l.Rollover(t0.Add(24 * time.Hour))
	l.Rollover(t0.Add(48 * time.Hour))
	require.Equal(t, 2, l.Streak().Current)

	s := l.Record(failedRecord("r1", "tiktok", t0.Add(49*time.Hour)))

	assert.Equal(t, 1, s.TotalViolations)
	assert.Equal(t, 1, s.TotalFails)
	assert.Equal(t, 0, s.CurrentStreak)
	assert.Equal(t, 2, s.LongestStreak)
	last, ok := l.Streak().LastFailDate.Get()
	require.True(t, ok)
	assert.Equal(t, "2024-05-03", last)
	assert.Equal(t, 1, l.Streak().TotalFails)

	// The fail day does not extend the streak when it closes.
	l.Rollover(t0.Add(72 * time.Hour))
	assert.Equal(t, 0, l.Streak().Current)
	l.Rollover(t0.Add(96 * time.Hour))
	assert.Equal(t, 1, l.Streak().Current)
}

func TestLedger_EscapeKeepsStreak(t *testing.T) {
	l := NewLedger(time.UTC, nil, zap.NewNop())
	l.Rollover(t0.Add(-24 * time.Hour))
	l.Rollover(t0)
	require.Equal(t, 1, l.Streak().Current)

	s := l.Record(escapedRecord("r1", "tiktok", t0, 11*time.Second))

	assert.Equal(t, 1, s.TotalEscapes)
	assert.Equal(t, 0, s.TotalFails)
	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 11*time.Second, s.AverageEscapeTime)
	assert.InDelta(t, 70+1.5+2, s.DisciplineScore, 1e-9)
}

func TestLedger_RecordIsIdempotent(t *testing.T) {
	l := NewLedger(time.UTC, nil, zap.NewNop())
	rec := failedRecord("r1", "tiktok", t0)

	l.Record(rec)
	s := l.Record(rec)

	assert.Equal(t, 1, s.TotalViolations)
	assert.Equal(t, 1, l.Streak().TotalFails)
}

func TestLedger_RolloverOncePerBoundary(t *testing.T) {
	l := NewLedger(time.UTC, nil, zap.NewNop())
	l.Rollover(t0)
	l.Rollover(t0.Add(time.Hour))
	assert.Equal(t, 0, l.Streak().Current)

	// Skipping several days still credits once.
	l.Rollover(t0.Add(5 * 24 * time.Hour))
	assert.Equal(t, 1, l.Streak().Current)
	l.Rollover(t0.Add(5*24*time.Hour + time.Minute))
	assert.Equal(t, 1, l.Streak().Current)
	assert.Equal(t, 1, l.Streak().Longest)
}

func TestLedger_WorstAppAndPeakHour(t *testing.T) {
	l := NewLedger(time.UTC, nil, zap.NewNop())
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	rec := func(id, app string, at time.Time, elapsed time.Duration) domain.PunishmentRecord {
		r := escapedRecord(id, app, at, 11*time.Second)
		r.Violation.Elapsed = elapsed
		return r
	}

	l.Record(rec("a", "reddit", base, 20*time.Second))
	l.Record(rec("b", "tiktok", base.Add(2*time.Hour), 10*time.Second))
	s := l.Record(rec("c", "tiktok", base.Add(3*time.Hour), 10*time.Second))

	// reddit 20s at 09h vs tiktok 20s total, tiktok more recent.
	assert.Equal(t, domain.Some("tiktok"), s.WorstApp)
	assert.Equal(t, domain.Some(9), s.PeakWeaknessHour)
}

func TestLedger_EmptyDayHasNoWorstApp(t *testing.T) {
	l := NewLedger(time.UTC, nil, zap.NewNop())

	s := l.Today(t0)
	assert.False(t, s.WorstApp.IsSome())
	assert.False(t, s.PeakWeaknessHour.IsSome())
	assert.Equal(t, 100.0, s.DisciplineScore)
}

func TestLedger_PersistsThroughWriter(t *testing.T) {
	store := newMockStore()
	w := NewLedgerWriter(fastWriterConfig(), store, zap.NewNop())
	l := NewLedger(time.UTC, w, zap.NewNop())

	l.Record(failedRecord("r1", "tiktok", t0))
	require.NoError(t, l.Close(context.Background()))

	assert.Contains(t, store.records, "r1")
	assert.Equal(t, 1, store.summaries["2024-05-01"].TotalFails)
	assert.Equal(t, 1, store.streak.TotalFails)
	assert.False(t, l.Health().Degraded)
}

func TestLedger_Restore(t *testing.T) {
	store := newMockStore()
	store.streak = domain.StreakState{Current: 3, Longest: 5, LastDay: "2024-04-30"}
	store.records["old"] = escapedRecord("old", "reddit", t0.Add(-time.Hour), 12*time.Second)

	l := NewLedger(time.UTC, nil, zap.NewNop())
	require.NoError(t, l.Restore(context.Background(), store, t0))

	assert.Equal(t, 4, l.Streak().Current, "April 30 closed without a fail")
	s := l.Today(t0)
	assert.Equal(t, 1, s.TotalViolations)

	// Restored IDs stay deduplicated.
	s = l.Record(store.records["old"])
	assert.Equal(t, 1, s.TotalViolations)
}

func TestLedger_RestoreKeepsCrossMidnightRecord(t *testing.T) {
	store := newMockStore()
	w := NewLedgerWriter(fastWriterConfig(), store, zap.NewNop())
	live := NewLedger(time.UTC, w, zap.NewNop())

	presented := time.Date(2024, 5, 1, 23, 59, 55, 0, time.UTC)
	live.Rollover(presented)
	live.Record(failedRecord("late", "tiktok", presented))
	require.NoError(t, live.Close(context.Background()))

	now := time.Date(2024, 5, 2, 0, 1, 0, 0, time.UTC)
	require.Equal(t, 1, live.Today(now).TotalViolations)

	restored := NewLedger(time.UTC, nil, zap.NewNop())
	require.NoError(t, restored.Restore(context.Background(), store, now))
	s := restored.Today(now)
	assert.Equal(t, 1, s.TotalViolations)
	assert.Equal(t, 1, s.TotalFails)
}

func TestLedger_RecordAcrossMidnightPersistsClosedDay(t *testing.T) {
	store := newMockStore()
	w := NewLedgerWriter(fastWriterConfig(), store, zap.NewNop())
	l := NewLedger(time.UTC, w, zap.NewNop())

	l.Rollover(t0)
	l.Record(escapedRecord("day1", "reddit", t0, 12*time.Second))

	// Resolved on May 2 before any rollover tick.
	l.Record(failedRecord("day2", "tiktok", time.Date(2024, 5, 2, 0, 0, 30, 0, time.UTC)))
	require.NoError(t, l.Close(context.Background()))

	closed := store.summaries["2024-05-01"]
	assert.Equal(t, 1, closed.TotalViolations)
	assert.Equal(t, 1, closed.CurrentStreak, "closed day credited before the fail")
	assert.Equal(t, 1, closed.LongestStreak)

	assert.Equal(t, 0, store.summaries["2024-05-02"].CurrentStreak)
	assert.Equal(t, 1, store.streak.Longest)
}

func TestLedger_StoreUnavailableIsDegraded(t *testing.T) {
	l := NewLedger(time.UTC, nil, zap.NewNop())
	assert.False(t, l.Health().Degraded)

	l.MarkStoreUnavailable(errors.New("open database: file is not a database"))

	h := l.Health()
	assert.True(t, h.Degraded)
	assert.Contains(t, h.LastError, domain.ErrStoreUnavailable.Error())
	assert.Contains(t, h.LastError, "file is not a database")
}

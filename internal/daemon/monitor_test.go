package daemon

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
	"github.com/eliteGoblin/focusd/discipline/internal/usecase"
	"github.com/eliteGoblin/focusd/discipline/test/fixtures"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// mockSink implements SampleSink for testing
type mockSink struct {
	mu       sync.Mutex
	samples  []domain.Sample
	lockdown time.Time
	err      error
}

func (m *mockSink) Sample(ctx context.Context, s domain.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, s)
	return m.err
}

func (m *mockSink) Status() usecase.EnforcerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return usecase.EnforcerStatus{LockdownUntil: m.lockdown}
}

func (m *mockSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.samples)
}

// mockRoller implements DayRoller for testing
type mockRoller struct {
	mu    sync.Mutex
	calls []time.Time
}

func (m *mockRoller) Rollover(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, now)
}

// mockKiller implements LockdownKiller for testing
type mockKiller struct {
	calls int
	pids  []int
	err   error
}

func (m *mockKiller) KillMonitored(ctx context.Context) ([]int, error) {
	m.calls++
	return m.pids, m.err
}

type monitorHarness struct {
	clock    *fixtures.FakeClock
	observer *fixtures.ScriptedObserver
	sink     *mockSink
	roller   *mockRoller
	killer   *mockKiller
	monitor  *Monitor
}

func newMonitorHarness() *monitorHarness {
	h := &monitorHarness{
		clock:  fixtures.NewFakeClock(t0),
		sink:   &mockSink{},
		roller: &mockRoller{},
		killer: &mockKiller{},
	}
	h.observer = fixtures.NewScriptedObserver(h.clock)
	h.monitor = NewMonitor(DefaultMonitorConfig(), h.observer, h.sink, h.roller, h.killer, h.clock, zap.NewNop())
	return h
}

func TestDefaultMonitorConfig(t *testing.T) {
	assert.Equal(t, time.Second, DefaultMonitorConfig().Interval)
}

func TestMonitor_PollForwardsSample(t *testing.T) {
	h := newMonitorHarness()
	h.observer.SetForeground("tiktok")

	h.monitor.PollOnce(context.Background())

	require.Len(t, h.sink.samples, 1)
	assert.Equal(t, domain.Sample{AppID: "tiktok", At: t0}, h.sink.samples[0])
	assert.Equal(t, []time.Time{t0}, h.roller.calls)
}

func TestMonitor_NothingInFrontEndsWatch(t *testing.T) {
	h := newMonitorHarness()

	h.monitor.PollOnce(context.Background())

	require.Len(t, h.sink.samples, 1)
	assert.Empty(t, h.sink.samples[0].AppID)
}

func TestMonitor_ObserverErrorIsGap(t *testing.T) {
	h := newMonitorHarness()
	h.observer.Fail(errors.New("accessibility revoked"))

	h.monitor.PollOnce(context.Background())
	h.monitor.PollOnce(context.Background())

	assert.Empty(t, h.sink.samples, "gaps cause no transition")
	assert.Equal(t, 2, h.monitor.gaps)
	assert.Len(t, h.roller.calls, 2, "rollover still runs")

	h.observer.SetForeground("reddit")
	h.monitor.PollOnce(context.Background())
	assert.Equal(t, 0, h.monitor.gaps)
	assert.Len(t, h.sink.samples, 1)
}

func TestMonitor_SinkErrorDoesNotStopLoop(t *testing.T) {
	h := newMonitorHarness()
	h.sink.err = errors.New("present failed")
	h.observer.SetForeground("tiktok")

	h.monitor.PollOnce(context.Background())
	h.monitor.PollOnce(context.Background())

	assert.Len(t, h.sink.samples, 2)
}

func TestMonitor_LockdownKillsOnlyInsideWindow(t *testing.T) {
	tests := []struct {
		name     string
		lockdown time.Time
		calls    int
	}{
		{"no lockdown", time.Time{}, 0},
		{"window open", t0.Add(time.Hour), 1},
		{"window closed", t0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newMonitorHarness()
			h.sink.lockdown = tt.lockdown
			h.killer.pids = []int{42}
			h.observer.SetForeground("tiktok")

			h.monitor.PollOnce(context.Background())

			assert.Equal(t, tt.calls, h.killer.calls)
		})
	}
}

func TestMonitor_NilKiller(t *testing.T) {
	h := newMonitorHarness()
	h.monitor.killer = nil
	h.sink.lockdown = t0.Add(time.Hour)

	assert.NotPanics(t, func() { h.monitor.PollOnce(context.Background()) })
}

func TestMonitor_RunStopsOnCancel(t *testing.T) {
	h := newMonitorHarness()
	h.monitor.config.Interval = 5 * time.Millisecond
	h.observer.SetForeground("tiktok")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.monitor.Run(ctx) }()

	assert.Eventually(t, func() bool { return h.sink.count() >= 3 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

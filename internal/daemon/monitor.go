// Package daemon implements the long-running loops: usage monitor, brotherhood sync and the app that runs them.
package daemon

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/discipline/internal/domain"
	"github.com/eliteGoblin/focusd/discipline/internal/usecase"
)

// SampleSink is the enforcement path the monitor feeds.
type SampleSink interface {
	Sample(ctx context.Context, s domain.Sample) error
	Status() usecase.EnforcerStatus
}

// DayRoller closes finished days.
type DayRoller interface {
	Rollover(now time.Time)
}

// LockdownKiller terminates monitored apps while an emergency lockdown is open.
type LockdownKiller interface {
	KillMonitored(ctx context.Context) (killed []int, err error)
}

// MonitorConfig holds usage monitor configuration.
type MonitorConfig struct {
	Interval time.Duration // How often to poll the foreground app
}

// DefaultMonitorConfig returns default monitor configuration.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval: time.Second,
	}
}

// Monitor polls the foreground observer and feeds samples to the enforcer.
// It also rolls the ledger over at day boundaries and, during a lockdown,
// kills monitored apps if a killer is configured.
type Monitor struct {
	config   MonitorConfig
	observer domain.ForegroundObserver
	sink     SampleSink
	roller   DayRoller
	killer   LockdownKiller
	clock    domain.Clock
	logger   *zap.Logger

	gaps int
}

// NewMonitor creates a usage monitor. killer may be nil.
func NewMonitor(
	config MonitorConfig,
	observer domain.ForegroundObserver,
	sink SampleSink,
	roller DayRoller,
	killer LockdownKiller,
	clock domain.Clock,
	logger *zap.Logger,
) *Monitor {
	return &Monitor{
		config:   config,
		observer: observer,
		sink:     sink,
		roller:   roller,
		killer:   killer,
		clock:    clock,
		logger:   logger,
	}
}

// Run starts the monitor loop.
// This blocks until context is canceled.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("usage monitor started", zap.Duration("interval", m.config.Interval))

	m.PollOnce(ctx)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("usage monitor stopping")
			return ctx.Err()

		case <-ticker.C:
			m.PollOnce(ctx)
		}
	}
}

// PollOnce runs one monitor tick.
func (m *Monitor) PollOnce(ctx context.Context) {
	m.roller.Rollover(m.clock.Now())

	sample, ok, err := m.observer.Current(ctx)
	switch {
	case err != nil:
		// Detection gap: hold state, no transition.
		m.gaps++
		if m.gaps == 1 || errors.Is(err, context.DeadlineExceeded) {
			m.logger.Warn("foreground observation failed", zap.Error(err))
		} else {
			m.logger.Debug("foreground observation failed", zap.Error(err), zap.Int("gaps", m.gaps))
		}
		return
	case !ok:
		sample = domain.Sample{At: m.clock.Now()}
	}
	m.gaps = 0

	if err := m.sink.Sample(ctx, sample); err != nil {
		m.logger.Warn("sample rejected", zap.String("app", sample.AppID), zap.Error(err))
	}

	m.enforceLockdown(ctx)
}

// enforceLockdown kills monitored apps while the lockdown window is open.
func (m *Monitor) enforceLockdown(ctx context.Context) {
	if m.killer == nil {
		return
	}
	until := m.sink.Status().LockdownUntil
	if until.IsZero() || !m.clock.Now().Before(until) {
		return
	}

	killed, err := m.killer.KillMonitored(ctx)
	if err != nil {
		m.logger.Warn("lockdown enforcement failed", zap.Error(err))
		return
	}
	if len(killed) > 0 {
		m.logger.Info("lockdown enforcement completed",
			zap.Int("processes_killed", len(killed)),
			zap.Time("until", until))
	}
}

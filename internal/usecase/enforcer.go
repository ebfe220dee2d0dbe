package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/discipline/internal/config"
	"github.com/eliteGoblin/focusd/discipline/internal/domain"
	"github.com/eliteGoblin/focusd/discipline/internal/policy"
)

// ErrNoActivePunishment is returned when an interaction arrives with nothing on screen.
var ErrNoActivePunishment = errors.New("no active punishment")

// EnforcerStatus is a point-in-time view of the enforcement path.
type EnforcerStatus struct {
	Detector      DetectorState
	Active        *domain.ActivePunishment
	Pending       bool
	LockdownUntil time.Time
}

// Enforcer is the single-writer enforcement path:
// samples go to the detector, violations to the selector, punishments to a resolver.
// At most one punishment is active at a time.
type Enforcer struct {
	mu        sync.Mutex
	settings  config.Settings
	zones     []domain.BlackoutZone
	detector  *Detector
	ledger    *Ledger
	presenter domain.Presenter
	clock     domain.Clock
	newID     func() string
	logger    *zap.Logger

	active  *Resolver
	pending *domain.ViolationEvent
	closed  bool
}

// NewEnforcer creates the enforcement path.
func NewEnforcer(
	s config.Settings,
	zones []domain.BlackoutZone,
	detector *Detector,
	ledger *Ledger,
	presenter domain.Presenter,
	clock domain.Clock,
	logger *zap.Logger,
) *Enforcer {
	return &Enforcer{
		settings:  s,
		zones:     zones,
		detector:  detector,
		ledger:    ledger,
		presenter: presenter,
		clock:     clock,
		newID:     uuid.NewString,
		logger:    logger,
	}
}

// Sample feeds one foreground observation. While a punishment is active samples are dropped.
func (e *Enforcer) Sample(ctx context.Context, s domain.Sample) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || e.active != nil {
		return nil
	}

	v := e.detector.Observe(s)
	if v == nil {
		return nil
	}

	err := e.punishLocked(ctx, *v)
	e.detector.Acknowledge()
	return err
}

// Trigger accepts an external violation. It is presented now when idle,
// otherwise held in a single pending slot until the active punishment resolves.
func (e *Enforcer) Trigger(ctx context.Context, v domain.ViolationEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	if v.ID == "" {
		v.ID = e.newID()
	}

	if e.active != nil {
		if e.pending != nil {
			e.logger.Info("pending slot full, violation dropped",
				zap.String("app", v.AppID),
				zap.String("type", string(v.Type)))
			return nil
		}
		e.pending = &v
		e.logger.Info("violation held until current punishment resolves", zap.String("app", v.AppID))
		return nil
	}

	return e.punishLocked(ctx, v)
}

// Interact routes a user interaction to the active resolver.
func (e *Enforcer) Interact(ctx context.Context, i domain.Interaction) (bool, error) {
	e.mu.Lock()
	r := e.active
	e.mu.Unlock()

	if r == nil {
		return false, ErrNoActivePunishment
	}
	return r.Interact(i), nil
}

// Lockdown opens an emergency lockdown window of the configured length starting now.
func (e *Enforcer) Lockdown() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	until := e.clock.Now().Add(e.settings.Lockdown())
	e.detector.SetLockdown(until)
	return until
}

// Status returns the current enforcement state.
func (e *Enforcer) Status() EnforcerStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := EnforcerStatus{
		Detector:      e.detector.State(),
		Pending:       e.pending != nil,
		LockdownUntil: e.detector.LockdownUntil(),
	}
	if e.active != nil {
		snap := e.active.Snapshot()
		st.Active = &snap
	}
	return st
}

// Shutdown aborts the active punishment without recording it and stops accepting work.
func (e *Enforcer) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	if e.active != nil {
		e.active.Abort()
		e.active = nil
	}
	e.pending = nil
}

// punishLocked selects, starts and presents a punishment. Caller holds mu.
func (e *Enforcer) punishLocked(ctx context.Context, v domain.ViolationEvent) error {
	history := e.ledger.ViolationsOn(e.ledger.Day(v.Timestamp))
	spec := policy.Select(v, e.settings, history, e.zones, e.ledger.Location())

	r := NewResolver(ResolverConfigFrom(e.settings), e.clock, e.newID(), v, spec, e.onResolved, e.logger)
	e.active = r
	r.Start()

	e.logger.Info("punishment selected",
		zap.String("app", v.AppID),
		zap.String("violation", string(v.Type)),
		zap.String("punishment", string(spec.Type)),
		zap.Int("intensity", spec.Intensity))

	if err := e.presenter.Present(ctx, r.Snapshot()); err != nil {
		e.logger.Warn("failed to present punishment", zap.Error(err))
		return fmt.Errorf("present punishment: %w", err)
	}
	return nil
}

// onResolved runs without any resolver lock held.
func (e *Enforcer) onResolved(rec domain.PunishmentRecord) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.logger.Warn("dropping resolution after shutdown",
			zap.String("record_id", rec.ID),
			zap.String("outcome", string(rec.Outcome)))
		return
	}
	// Recorded under mu so Shutdown cannot return before the write is queued.
	e.ledger.Record(rec)

	if e.active != nil && e.active.recordID == rec.ID {
		e.active = nil
	}
	if opensLockdown(rec) && !rec.ResolvedAt.Before(e.detector.LockdownUntil()) {
		e.detector.SetLockdown(rec.ResolvedAt.Add(e.settings.Lockdown()))
	}
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()

	ctx := context.Background()
	if err := e.presenter.Withdraw(ctx, rec.ID, rec.Outcome); err != nil {
		e.logger.Warn("failed to withdraw punishment", zap.Error(err))
	}

	if pending != nil {
		if err := e.Trigger(ctx, *pending); err != nil {
			e.logger.Warn("failed to present held violation", zap.Error(err))
		}
	}
}

// opensLockdown reports whether a resolved punishment starts a lockdown window.
// Breaking a lockdown is punished but never extends the window it broke.
func opensLockdown(rec domain.PunishmentRecord) bool {
	return rec.Spec.Type == domain.PunishmentEmergencyLockdown &&
		rec.Violation.Type != domain.ViolationEmergencyLockdownBroken
}

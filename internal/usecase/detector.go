// Package usecase contains application business logic: detection, escape arbitration,
// the discipline ledger and the single-writer enforcement path that ties them together.
package usecase

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/discipline/internal/config"
	"github.com/eliteGoblin/focusd/discipline/internal/domain"
	"github.com/eliteGoblin/focusd/discipline/internal/policy"
)

// DetectorState names the detector's position in its lifecycle.
type DetectorState string

const (
	DetectorIdle     DetectorState = "idle"
	DetectorWatching DetectorState = "watching"
	DetectorViolated DetectorState = "violated"
)

// Detector turns foreground samples into violations.
// Not safe for concurrent use; the Enforcer serializes access.
type Detector struct {
	settings  config.Settings
	monitored map[string]bool
	zones     []domain.BlackoutZone
	loc       *time.Location
	newID     func() string
	logger    *zap.Logger

	state     DetectorState
	app       string
	startedAt time.Time
	last      *domain.ViolationEvent

	countDay      string
	dailyCounts   map[string]int
	lockdownUntil time.Time
}

// NewDetector creates a detector watching the monitored set.
func NewDetector(
	s config.Settings,
	monitored map[string]bool,
	zones []domain.BlackoutZone,
	loc *time.Location,
	logger *zap.Logger,
) *Detector {
	if loc == nil {
		loc = time.Local
	}
	return &Detector{
		settings:    s,
		monitored:   monitored,
		zones:       zones,
		loc:         loc,
		newID:       uuid.NewString,
		logger:      logger,
		state:       DetectorIdle,
		dailyCounts: make(map[string]int),
	}
}

// Observe feeds one sample. It returns a violation at most once per continuous watch.
func (d *Detector) Observe(s domain.Sample) *domain.ViolationEvent {
	if d.state == DetectorViolated {
		return nil
	}

	if !d.monitored[s.AppID] {
		if d.state == DetectorWatching {
			d.logger.Debug("watch ended", zap.String("app", d.app))
		}
		d.state = DetectorIdle
		d.app = ""
		return nil
	}

	if d.state == DetectorIdle || d.app != s.AppID {
		d.state = DetectorWatching
		d.app = s.AppID
		d.startedAt = s.At
		d.logger.Debug("watching app", zap.String("app", s.AppID))
	}

	elapsed := s.At.Sub(d.startedAt)
	if elapsed < 0 {
		elapsed = 0
	}

	if s.At.Before(d.lockdownUntil) {
		return d.fire(domain.ViolationEmergencyLockdownBroken, s.At, elapsed)
	}

	allowed, strict := policy.IsAllowed(s.At.In(d.loc), s.AppID, d.zones)
	if !allowed && strict {
		return d.fire(domain.ViolationBlackout, s.At, elapsed)
	}

	if elapsed < d.settings.Threshold(s.AppID) {
		return nil
	}

	if !allowed {
		return d.fire(domain.ViolationBlackout, s.At, elapsed)
	}

	typ := domain.ViolationThresholdExceeded
	if limit := d.settings.RepeatedUsageLimit; limit > 0 && d.todayCount(s.At, s.AppID) >= limit {
		typ = domain.ViolationRepeatedUsage
	}
	return d.fire(typ, s.At, elapsed)
}

// Acknowledge returns the detector to Idle once the violation has a punishment record.
func (d *Detector) Acknowledge() {
	d.state = DetectorIdle
	d.app = ""
	d.last = nil
}

// SetLockdown makes any monitored sample before until an immediate violation.
func (d *Detector) SetLockdown(until time.Time) {
	d.lockdownUntil = until
	d.logger.Info("emergency lockdown active", zap.Time("until", until))
}

// LockdownUntil returns the end of the current lockdown window, zero when none was set.
func (d *Detector) LockdownUntil() time.Time {
	return d.lockdownUntil
}

// State returns the current detector state.
func (d *Detector) State() DetectorState {
	return d.state
}

// Pending returns the unacknowledged violation, if any.
func (d *Detector) Pending() *domain.ViolationEvent {
	return d.last
}

func (d *Detector) fire(typ domain.ViolationType, at time.Time, elapsed time.Duration) *domain.ViolationEvent {
	v := &domain.ViolationEvent{
		ID:        d.newID(),
		AppID:     d.app,
		Type:      typ,
		Timestamp: at,
		Elapsed:   elapsed,
	}
	d.state = DetectorViolated
	d.last = v
	d.bumpCount(at, d.app)

	d.logger.Info("violation detected",
		zap.String("app", v.AppID),
		zap.String("type", string(v.Type)),
		zap.Duration("elapsed", elapsed))
	return v
}

func (d *Detector) todayCount(at time.Time, app string) int {
	d.rollCounts(at)
	return d.dailyCounts[app]
}

func (d *Detector) bumpCount(at time.Time, app string) {
	d.rollCounts(at)
	d.dailyCounts[app]++
}

func (d *Detector) rollCounts(at time.Time) {
	day := at.In(d.loc).Format(DateLayout)
	if day != d.countDay {
		d.countDay = day
		d.dailyCounts = make(map[string]int)
	}
}

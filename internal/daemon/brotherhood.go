package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/eliteGoblin/focusd/discipline/internal/config"
	"github.com/eliteGoblin/focusd/discipline/internal/domain"
)

// LedgerView is the part of the ledger the partner sync publishes.
type LedgerView interface {
	Today(now time.Time) domain.DaySummary
	Streak() domain.StreakState
}

// ViolationTrigger accepts externally raised violations.
type ViolationTrigger interface {
	Trigger(ctx context.Context, v domain.ViolationEvent) error
}

// BrotherhoodConfig holds partner sync configuration.
type BrotherhoodConfig struct {
	Interval     time.Duration // How often to exchange payloads
	RoundTimeout time.Duration // Upper bound for one exchange
	TriggerEvery time.Duration // Minimum spacing of mutual punishments
	TriggerBurst int
}

// DefaultBrotherhoodConfig returns default brotherhood configuration.
func DefaultBrotherhoodConfig() BrotherhoodConfig {
	return BrotherhoodConfig{
		Interval:     30 * time.Second,
		RoundTimeout: 10 * time.Second,
		TriggerEvery: 5 * time.Minute,
		TriggerBurst: 1,
	}
}

// BrotherhoodConfigFrom derives the sync configuration from settings.
func BrotherhoodConfigFrom(s config.Settings) BrotherhoodConfig {
	c := DefaultBrotherhoodConfig()
	c.Interval = s.Sync()
	if s.Transport.Timeout > 0 && s.Transport.Timeout < c.Interval {
		c.RoundTimeout = s.Transport.Timeout
	} else if c.RoundTimeout > c.Interval {
		c.RoundTimeout = c.Interval
	}
	return c
}

// Brotherhood exchanges discipline state with the paired partner.
// It never blocks enforcement: mutual punishments go through the trigger's pending slot.
type Brotherhood struct {
	config    BrotherhoodConfig
	deviceID  string
	partnerID string
	mutual    bool
	transport domain.PartnerTransport
	ledger    LedgerView
	trigger   ViolationTrigger
	store     domain.Store
	clock     domain.Clock
	limiter   *rate.Limiter
	logger    *zap.Logger

	mu    sync.Mutex
	state domain.BrotherhoodState
}

// NewBrotherhood creates the partner sync loop. store may be nil.
func NewBrotherhood(
	cfg BrotherhoodConfig,
	s config.Settings,
	transport domain.PartnerTransport,
	ledger LedgerView,
	trigger ViolationTrigger,
	store domain.Store,
	clock domain.Clock,
	logger *zap.Logger,
) *Brotherhood {
	return &Brotherhood{
		config:    cfg,
		deviceID:  s.DeviceID,
		partnerID: s.PartnerID,
		mutual:    s.MutualPunishmentEnabled,
		transport: transport,
		ledger:    ledger,
		trigger:   trigger,
		store:     store,
		clock:     clock,
		limiter:   rate.NewLimiter(rate.Every(cfg.TriggerEvery), cfg.TriggerBurst),
		logger:    logger.With(zap.String("partner", s.PartnerID)),
		state: domain.BrotherhoodState{
			PartnerID: s.PartnerID,
			Status:    domain.SyncWaitingForPartner,
		},
	}
}

// Restore loads the persisted link state. A missing state is not an error.
func (b *Brotherhood) Restore(ctx context.Context) error {
	if b.store == nil {
		return nil
	}
	st, err := b.store.LoadBrotherhood(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load brotherhood state: %w", err)
	}
	if st.PartnerID != b.partnerID {
		b.logger.Info("partner changed, discarding stored link state", zap.String("stored", st.PartnerID))
		return nil
	}

	b.mu.Lock()
	b.state = *st
	b.mu.Unlock()
	return nil
}

// Run starts the sync loop.
// This blocks until context is canceled.
func (b *Brotherhood) Run(ctx context.Context) error {
	b.logger.Info("brotherhood sync started", zap.Duration("interval", b.config.Interval))

	b.syncLogged(ctx)

	ticker := time.NewTicker(b.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("brotherhood sync stopping")
			return ctx.Err()

		case <-ticker.C:
			b.syncLogged(ctx)
		}
	}
}

func (b *Brotherhood) syncLogged(ctx context.Context) {
	if err := b.SyncOnce(ctx); err != nil {
		b.logger.Warn("partner sync failed", zap.Error(err))
	}
}

// SyncOnce runs one exchange round.
func (b *Brotherhood) SyncOnce(ctx context.Context) error {
	b.mu.Lock()
	if !b.disconnectedLocked() {
		b.state.Status = domain.SyncSyncing
	}
	b.mu.Unlock()

	mine := b.LocalPayload()

	rctx, cancel := context.WithTimeout(ctx, b.config.RoundTimeout)
	partner, err := b.transport.Exchange(rctx, mine)
	cancel()

	if err == nil && b.partnerID != "" && partner.DeviceID != b.partnerID {
		err = fmt.Errorf("payload from unexpected device %q", partner.DeviceID)
	}

	var trigger *domain.ViolationEvent
	b.mu.Lock()
	switch {
	case errors.Is(err, domain.ErrPartnerUnavailable):
		if !b.disconnectedLocked() {
			b.state.Status = domain.SyncWaitingForPartner
		}
		err = nil
	case err != nil:
		b.state.ConsecutiveSyncFailures++
		b.state.Status = domain.SyncError
		if b.disconnectedLocked() {
			b.state.Status = domain.SyncDisconnected
		}
		err = fmt.Errorf("exchange with partner: %w", err)
	default:
		trigger = b.applyLocked(mine, partner)
	}
	state := b.state
	b.mu.Unlock()

	b.persist(ctx, state)

	if trigger != nil {
		if terr := b.trigger.Trigger(ctx, *trigger); terr != nil {
			b.logger.Warn("failed to hand over mutual punishment", zap.Error(terr))
		}
	}
	return err
}

// disconnectedLocked reports whether the link is down until the next successful round. Caller holds mu.
func (b *Brotherhood) disconnectedLocked() bool {
	return b.state.ConsecutiveSyncFailures >= config.MaxSyncFailures
}

// LocalPayload builds the payload this device publishes.
func (b *Brotherhood) LocalPayload() domain.SyncPayload {
	now := b.clock.Now()
	summary := b.ledger.Today(now)
	streak := b.ledger.Streak()
	return domain.SyncPayload{
		SchemaVersion:   domain.SyncSchemaVersion,
		DeviceID:        b.deviceID,
		DisciplineScore: summary.DisciplineScore,
		Streak:          streak.Current,
		MutualFailures:  streak.TotalFails,
		Timestamp:       now,
	}
}

// applyLocked folds a successful exchange into the link state. Caller holds mu.
func (b *Brotherhood) applyLocked(mine, partner domain.SyncPayload) *domain.ViolationEvent {
	first := !b.state.LastSync.IsSome()
	increased := partner.MutualFailures > b.state.PartnerFails

	b.state.ConsecutiveSyncFailures = 0
	b.state.Status = domain.SyncConnected
	b.state.MyScore = mine.DisciplineScore
	b.state.PartnerScore = partner.DisciplineScore
	b.state.CombinedStreak = min(mine.Streak, partner.Streak)
	b.state.PartnerFails = partner.MutualFailures
	b.state.LastSync = domain.Some(mine.Timestamp)

	if first || !increased || !b.mutual {
		return nil
	}
	if !b.limiter.AllowN(mine.Timestamp, 1) {
		b.logger.Info("mutual punishment rate limited", zap.Int("partner_fails", partner.MutualFailures))
		return nil
	}

	b.state.MutualFailures++
	b.logger.Info("partner failed, triggering mutual punishment",
		zap.Int("partner_fails", partner.MutualFailures),
		zap.Int("mutual_failures", b.state.MutualFailures))
	return &domain.ViolationEvent{
		AppID:     "brotherhood:" + b.partnerID,
		Type:      domain.ViolationBrotherhoodTriggered,
		Timestamp: mine.Timestamp,
	}
}

func (b *Brotherhood) persist(ctx context.Context, state domain.BrotherhoodState) {
	if b.store == nil {
		return
	}
	if err := b.store.SaveBrotherhood(ctx, state); err != nil {
		b.logger.Warn("failed to persist brotherhood state", zap.Error(err))
	}
}

// State returns the current link state.
func (b *Brotherhood) State() domain.BrotherhoodState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

package infra

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/discipline/internal/domain"
	"github.com/eliteGoblin/focusd/discipline/internal/policy"
)

// ProcessObserver approximates the foreground app on desktops:
// the most recently started process that maps to a monitored app is taken to be in front.
type ProcessObserver struct {
	pm        domain.ProcessManager
	catalog   *policy.Catalog
	monitored map[string]bool
	clock     domain.Clock
	logger    *zap.Logger
}

// NewProcessObserver creates a gopsutil-backed observer.
func NewProcessObserver(pm domain.ProcessManager, catalog *policy.Catalog, monitored map[string]bool, clock domain.Clock, logger *zap.Logger) *ProcessObserver {
	return &ProcessObserver{
		pm:        pm,
		catalog:   catalog,
		monitored: monitored,
		clock:     clock,
		logger:    logger,
	}
}

// Current returns the newest running monitored app. ok is false when none runs.
func (o *ProcessObserver) Current(ctx context.Context) (domain.Sample, bool, error) {
	procs, err := o.pm.Running(ctx)
	if err != nil {
		return domain.Sample{}, false, err
	}

	var (
		best  domain.ProcessInfo
		appID string
	)
	for _, p := range procs {
		id, ok := o.catalog.MatchProcess(p.Name)
		if !ok || !o.monitored[id] {
			continue
		}
		if appID == "" || p.CreatedAt > best.CreatedAt || (p.CreatedAt == best.CreatedAt && p.PID > best.PID) {
			best, appID = p, id
		}
	}
	if appID == "" {
		return domain.Sample{}, false, nil
	}

	o.logger.Debug("foreground guess",
		zap.String("app", appID),
		zap.String("process", best.Name),
		zap.Int("pid", best.PID))
	return domain.Sample{AppID: appID, At: o.clock.Now()}, true, nil
}

// PushObserver holds the app last reported by an external agent (mobile client, window hook).
// A report older than ttl is treated as nothing in front.
type PushObserver struct {
	mu      sync.Mutex
	catalog *policy.Catalog
	clock   domain.Clock
	ttl     time.Duration
	app     string
	at      time.Time
}

// NewPushObserver creates an observer fed by Push.
func NewPushObserver(catalog *policy.Catalog, clock domain.Clock, ttl time.Duration) *PushObserver {
	return &PushObserver{catalog: catalog, clock: clock, ttl: ttl}
}

// Push records the app now in front. raw may be an app ID, package or process name.
func (o *PushObserver) Push(raw string) string {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.app = ""
	if raw != "" {
		o.app = o.catalog.Canonical(raw)
	}
	o.at = o.clock.Now()
	return o.app
}

func (o *PushObserver) Current(ctx context.Context) (domain.Sample, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.clock.Now()
	if o.app == "" || now.Sub(o.at) > o.ttl {
		return domain.Sample{}, false, nil
	}
	return domain.Sample{AppID: o.app, At: now}, true, nil
}

var (
	_ domain.ForegroundObserver = (*ProcessObserver)(nil)
	_ domain.ForegroundObserver = (*PushObserver)(nil)
)

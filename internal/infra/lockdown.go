package infra

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/discipline/internal/domain"
	"github.com/eliteGoblin/focusd/discipline/internal/policy"
)

// LockdownEnforcer kills monitored apps while an emergency lockdown is open.
type LockdownEnforcer struct {
	pm        domain.ProcessManager
	catalog   *policy.Catalog
	monitored map[string]bool
	selfPID   int
	logger    *zap.Logger
}

// NewLockdownEnforcer creates a lockdown enforcer.
func NewLockdownEnforcer(pm domain.ProcessManager, catalog *policy.Catalog, monitored map[string]bool, logger *zap.Logger) *LockdownEnforcer {
	return &LockdownEnforcer{
		pm:        pm,
		catalog:   catalog,
		monitored: monitored,
		selfPID:   os.Getpid(),
		logger:    logger,
	}
}

// KillMonitored kills every running process of a monitored app. Kill failures are
// collected and the rest are still attempted.
func (l *LockdownEnforcer) KillMonitored(ctx context.Context) ([]int, error) {
	procs, err := l.pm.Running(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	var (
		killed []int
		errs   []error
	)
	for _, p := range procs {
		if p.PID == l.selfPID {
			continue
		}
		id, ok := l.catalog.MatchProcess(p.Name)
		if !ok || !l.monitored[id] {
			continue
		}
		if err := l.pm.Kill(p.PID); err != nil {
			l.logger.Warn("failed to kill process",
				zap.Int("pid", p.PID),
				zap.String("app", id),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("kill %d: %w", p.PID, err))
			continue
		}
		l.logger.Info("killed process during lockdown",
			zap.Int("pid", p.PID),
			zap.String("app", id))
		killed = append(killed, p.PID)
	}
	return killed, errors.Join(errs...)
}

package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eliteGoblin/focusd/discipline/internal/config"
	"github.com/eliteGoblin/focusd/discipline/internal/domain"
	"github.com/eliteGoblin/focusd/discipline/internal/usecase"
)

// shutdownTimeout bounds the final ledger flush.
const shutdownTimeout = 5 * time.Second

// Task is an extra long-running job run alongside the daemon loops, e.g. the control API.
type Task func(ctx context.Context) error

// Deps are the collaborators the app is assembled from.
type Deps struct {
	Observer  domain.ForegroundObserver
	Presenter domain.Presenter
	Store     domain.Store            // nil runs without persistence
	StoreErr  error                   // why Store is nil, surfaced as degraded health
	Transport domain.PartnerTransport // nil disables partner sync
	Killer    LockdownKiller          // nil disables lockdown process kills
	Clock     domain.Clock
	Monitored map[string]bool
}

// App is the explicit application context: every component is built once here and passed down.
type App struct {
	settings    config.Settings
	clock       domain.Clock
	store       domain.Store
	writer      *usecase.LedgerWriter
	ledger      *usecase.Ledger
	enforcer    *usecase.Enforcer
	monitor     *Monitor
	brotherhood *Brotherhood
	logger      *zap.Logger
}

// NewApp wires the enforcement path, ledger and loops from settings and deps.
func NewApp(s config.Settings, deps Deps, logger *zap.Logger) (*App, error) {
	loc, err := s.Location()
	if err != nil {
		return nil, err
	}
	zones, err := s.Zones()
	if err != nil {
		return nil, err
	}

	a := &App{
		settings: s,
		clock:    deps.Clock,
		store:    deps.Store,
		logger:   logger,
	}

	if deps.Store != nil {
		a.writer = usecase.NewLedgerWriter(usecase.DefaultWriterConfig(), deps.Store, logger.Named("writer"))
	}
	a.ledger = usecase.NewLedger(loc, a.writer, logger.Named("ledger"))
	if deps.Store == nil && deps.StoreErr != nil {
		a.ledger.MarkStoreUnavailable(deps.StoreErr)
	}

	detector := usecase.NewDetector(s, deps.Monitored, zones, loc, logger.Named("detector"))
	a.enforcer = usecase.NewEnforcer(s, zones, detector, a.ledger, deps.Presenter, deps.Clock, logger.Named("enforcer"))

	a.monitor = NewMonitor(
		MonitorConfig{Interval: s.Interval()},
		deps.Observer,
		a.enforcer,
		a.ledger,
		deps.Killer,
		deps.Clock,
		logger.Named("monitor"),
	)

	if s.BrotherhoodEnabled && deps.Transport != nil {
		a.brotherhood = NewBrotherhood(
			BrotherhoodConfigFrom(s),
			s,
			deps.Transport,
			a.ledger,
			a.enforcer,
			deps.Store,
			deps.Clock,
			logger.Named("brotherhood"),
		)
	}
	return a, nil
}

// Restore loads persisted ledger and partner state. Without a store it is a no-op.
func (a *App) Restore(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	if err := a.ledger.Restore(ctx, a.store, a.clock.Now()); err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}
	if a.brotherhood != nil {
		if err := a.brotherhood.Restore(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Run starts every loop and extra task in one group.
// This blocks until context is canceled or a task fails, then shuts down.
func (a *App) Run(ctx context.Context, extra ...Task) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.monitor.Run(gctx) })
	if a.writer != nil {
		g.Go(func() error { return a.writer.Run(gctx) })
	}
	if a.brotherhood != nil {
		g.Go(func() error { return a.brotherhood.Run(gctx) })
	}
	for _, task := range extra {
		g.Go(func() error { return task(gctx) })
	}

	a.logger.Info("discipline daemon started",
		zap.Bool("persistence", a.store != nil),
		zap.Bool("brotherhood", a.brotherhood != nil),
		zap.Int("tasks", len(extra)))

	err := g.Wait()
	a.Shutdown()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown aborts the active punishment, flushes the ledger and closes the store.
func (a *App) Shutdown() {
	a.enforcer.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.ledger.Close(ctx); err != nil {
		a.logger.Error("ledger flush failed on shutdown", zap.Error(err))
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("failed to close store", zap.Error(err))
		}
	}
	a.logger.Info("discipline daemon stopped")
}

// Settings returns the settings the app was built with.
func (a *App) Settings() config.Settings { return a.settings }

// Clock returns the app clock.
func (a *App) Clock() domain.Clock { return a.clock }

// Store returns the persistence store, nil when running without one.
func (a *App) Store() domain.Store { return a.store }

// Ledger returns the discipline ledger.
func (a *App) Ledger() *usecase.Ledger { return a.ledger }

// Enforcer returns the enforcement path.
func (a *App) Enforcer() *usecase.Enforcer { return a.enforcer }

// Brotherhood returns the partner sync loop, nil when disabled.
func (a *App) Brotherhood() *Brotherhood { return a.brotherhood }

// Monitor returns the usage monitor.
func (a *App) Monitor() *Monitor { return a.monitor }

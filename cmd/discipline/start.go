package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/discipline/internal/config"
	"github.com/eliteGoblin/focusd/discipline/internal/daemon"
	"github.com/eliteGoblin/focusd/discipline/internal/domain"
	"github.com/eliteGoblin/focusd/discipline/internal/httpapi"
	"github.com/eliteGoblin/focusd/discipline/internal/infra"
	"github.com/eliteGoblin/focusd/discipline/internal/policy"
)

const (
	observerProcess = "process"
	observerPush    = "push"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the enforcement daemon in the foreground",
	Long: `Runs the usage monitor, the punishment engine, the ledger writer and,
when configured, brotherhood sync and the local control API.

The foreground app is read from the process table (--observer process) or
pushed by an external agent to POST /v1/foreground (--observer push).
Stops on SIGINT or SIGTERM; an active punishment is aborted, not recorded.`,
	RunE: runStart,
}

var observerKind string

func init() {
	startCmd.Flags().StringVar(&observerKind, "observer", observerProcess, "Foreground source: process or push")
}

func runStart(cmd *cobra.Command, args []string) error {
	paths := resolvePaths()
	if err := paths.Ensure(); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	s, err := loadSettings(paths)
	if err != nil {
		return err
	}

	logger := createLogger(paths)
	defer func() { _ = logger.Sync() }()

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	clock := infra.NewSystemClock()
	catalog := policy.NewCatalog()
	monitored := catalog.MonitoredSet(s)
	pm := infra.NewProcessManager()

	var push *infra.PushObserver
	var observer domain.ForegroundObserver
	switch observerKind {
	case observerProcess:
		observer = infra.NewProcessObserver(pm, catalog, monitored, clock, logger.Named("observer"))
	case observerPush:
		if !s.HTTP.Enabled {
			return fmt.Errorf("--observer push needs http.enabled in settings")
		}
		push = infra.NewPushObserver(catalog, clock, 3*s.Interval())
		observer = push
	default:
		return fmt.Errorf("unknown observer %q", observerKind)
	}

	deps := daemon.Deps{
		Observer:  observer,
		Presenter: infra.NewLogPresenter(logger.Named("presenter")),
		Killer:    infra.NewLockdownEnforcer(pm, catalog, monitored, logger.Named("lockdown")),
		Clock:     clock,
		Monitored: monitored,
	}

	// Enforcement runs without a ledger when the store cannot be opened.
	store, err := openStore(ctx, s, paths)
	if err != nil {
		logger.Error("store unavailable, running without persistence", zap.Error(err))
		deps.StoreErr = err
	} else {
		deps.Store = store
	}

	var signer *infra.PayloadSigner
	if s.BrotherhoodEnabled {
		signer, err = infra.NewPayloadSigner(s.Transport.PairingSecret, 2*s.Sync()+time.Minute, clock)
		if err != nil {
			logger.Warn("brotherhood disabled", zap.Error(err))
		} else {
			deps.Transport, err = buildTransport(s, signer)
			if err != nil {
				return err
			}
		}
	}

	app, err := daemon.NewApp(s, deps, logger)
	if err != nil {
		return err
	}
	if err := app.Restore(ctx); err != nil {
		logger.Warn("failed to restore ledger", zap.Error(err))
	}

	var tasks []daemon.Task
	if s.HTTP.Enabled {
		apiDeps := httpapi.Deps{
			Enforcer:  app.Enforcer(),
			Ledger:    app.Ledger(),
			Clock:     clock,
			Store:     deps.Store,
			Signer:    signer,
			PartnerID: s.PartnerID,
		}
		if b := app.Brotherhood(); b != nil {
			apiDeps.Brotherhood = b
		}
		if push != nil {
			apiDeps.Pusher = push
		}
		server := httpapi.NewServer(s.HTTP.Listen, httpapi.NewRouter(apiDeps, logger.Named("http")), logger.Named("http"))
		tasks = append(tasks, server.Run)
	}

	logger.Info("discipline daemon starting",
		zap.String("version", Version),
		zap.String("data_dir", paths.DataDir),
		zap.String("observer", observerKind),
		zap.Int("monitored_apps", len(monitored)),
		zap.Bool("persistence", deps.Store != nil),
		zap.Bool("brotherhood", app.Brotherhood() != nil))

	return app.Run(ctx, tasks...)
}

func openStore(ctx context.Context, s config.Settings, paths infra.DataPaths) (*infra.SQLStore, error) {
	var keys domain.KeyProvider = infra.NewFileKeyProvider(paths.DataDir)
	if s.Storage.KeyPath != "" {
		keys = infra.NewFileKeyProviderAt(s.Storage.KeyPath)
	}
	return infra.OpenStore(ctx, s.Storage.Backend, s.Storage.Path, paths.DataDir, keys)
}

func buildTransport(s config.Settings, signer *infra.PayloadSigner) (domain.PartnerTransport, error) {
	switch s.Transport.Kind {
	case "", "none":
		return nil, nil
	case "http":
		if s.Transport.PeerURL == "" {
			return nil, fmt.Errorf("transport http needs peer_url")
		}
		return infra.NewHTTPTransport(s.Transport.PeerURL, signer), nil
	case "redis":
		if s.Transport.RedisAddr == "" {
			return nil, fmt.Errorf("transport redis needs redis_addr")
		}
		return infra.NewRedisTransport(s.Transport.RedisAddr, s.Transport.RedisPassword, s.Transport.RedisDB,
			s.PartnerID, signer, 3*s.Sync()), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", s.Transport.Kind)
	}
}

// Package httpapi serves the local control API: foreground pushes from an external
// observer, punishment interactions, ledger queries and the partner sync endpoint.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/discipline/internal/domain"
	"github.com/eliteGoblin/focusd/discipline/internal/infra"
	"github.com/eliteGoblin/focusd/discipline/internal/usecase"
)

// Enforcement is the part of the enforcer the API drives.
type Enforcement interface {
	Interact(ctx context.Context, i domain.Interaction) (bool, error)
	Status() usecase.EnforcerStatus
	Lockdown() time.Time
}

// LedgerView answers summary queries for days still in memory.
type LedgerView interface {
	Summary(day string) (domain.DaySummary, bool)
	Today(now time.Time) domain.DaySummary
	Streak() domain.StreakState
	Health() domain.LedgerHealth
}

// BrotherhoodView exposes the partner link.
type BrotherhoodView interface {
	State() domain.BrotherhoodState
	LocalPayload() domain.SyncPayload
}

// Pusher accepts foreground reports.
type Pusher interface {
	Push(raw string) string
}

// Deps are the collaborators behind the routes. Nil optional deps disable their routes.
type Deps struct {
	Enforcer    Enforcement
	Ledger      LedgerView
	Clock       domain.Clock
	Store       domain.Store         // optional, for days no longer in memory
	Brotherhood BrotherhoodView      // optional
	Signer      *infra.PayloadSigner // optional, required for partner sync
	Pusher      Pusher               // optional
	PartnerID   string
}

// Handler holds the route handlers.
type Handler struct {
	deps   Deps
	logger *zap.Logger
}

// NewRouter builds the chi router for the control API.
func NewRouter(deps Deps, logger *zap.Logger) http.Handler {
	h := &Handler{deps: deps, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", h.handleHealth)
		r.Get("/status", h.handleStatus)
		r.Post("/foreground", h.handleForeground)

		r.Get("/punishment/active", h.handleActive)
		r.Post("/punishment/interact", h.handleInteract)
		r.Post("/lockdown", h.handleLockdown)

		r.Get("/summary/{date}", h.handleSummary)

		r.Get("/brotherhood", h.handleBrotherhood)
		r.Post("/brotherhood/sync", h.handleSync)
	})
	return r
}

// requestLogger logs each request with zap.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

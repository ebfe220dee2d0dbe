//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/discipline/internal/config"
	"github.com/eliteGoblin/focusd/discipline/internal/daemon"
	"github.com/eliteGoblin/focusd/discipline/internal/domain"
	"github.com/eliteGoblin/focusd/discipline/internal/httpapi"
	"github.com/eliteGoblin/focusd/discipline/internal/infra"
	"github.com/eliteGoblin/focusd/discipline/internal/policy"
	"github.com/eliteGoblin/focusd/discipline/test/fixtures"
)

const tiktokPackage = "com.zhiliaoapp.musically"

var start = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// stack is a full daemon driven by a fake clock through the control API.
type stack struct {
	dbPath    string
	clock     *fixtures.FakeClock
	presenter *infra.LogPresenter
	app       *daemon.App
	server    *httptest.Server
	shutdown  bool
}

func newStack(dir string) *stack {
	s := config.Default()
	s.Timezone = "UTC"
	s.MonitoredApps = []string{"tiktok"}
	s.DetectionThreshold = 10 * time.Second
	s.PunishmentIntensity = 5
	s.AdaptivePunishmentEnabled = false
	s.MinOverlayTime = 10 * time.Second
	s.OverlayDuration = 15 * time.Second
	s.SpeechConfidenceThreshold = 0.7

	st := &stack{
		dbPath:    filepath.Join(dir, "discipline.db"),
		clock:     fixtures.NewFakeClock(start),
		presenter: infra.NewLogPresenter(zap.NewNop()),
	}

	store, err := infra.NewSQLiteStore(st.dbPath)
	Expect(err).NotTo(HaveOccurred())
	Expect(store.Migrate(context.Background())).To(Succeed())

	catalog := policy.NewCatalog()
	push := infra.NewPushObserver(catalog, st.clock, 3*time.Second)

	st.app, err = daemon.NewApp(s, daemon.Deps{
		Observer:  push,
		Presenter: st.presenter,
		Store:     store,
		Clock:     st.clock,
		Monitored: catalog.MonitoredSet(s),
	}, zap.NewNop())
	Expect(err).NotTo(HaveOccurred())
	Expect(st.app.Restore(context.Background())).To(Succeed())

	st.server = httptest.NewServer(httpapi.NewRouter(httpapi.Deps{
		Enforcer: st.app.Enforcer(),
		Ledger:   st.app.Ledger(),
		Clock:    st.clock,
		Store:    store,
		Pusher:   push,
	}, zap.NewNop()))
	return st
}

func (st *stack) close() {
	st.server.Close()
	if !st.shutdown {
		st.app.Shutdown()
		st.shutdown = true
	}
}

func (st *stack) post(path string, body interface{}) *http.Response {
	var buf bytes.Buffer
	if body != nil {
		Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
	}
	resp, err := http.Post(st.server.URL+path, "application/json", &buf)
	Expect(err).NotTo(HaveOccurred())
	return resp
}

func (st *stack) getJSON(path string, v interface{}) int {
	resp, err := http.Get(st.server.URL + path)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && v != nil {
		Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
	}
	return resp.StatusCode
}

func (st *stack) interact(kind, transcript string, confidence float64) bool {
	resp := st.post("/v1/punishment/interact", map[string]interface{}{
		"kind": kind, "transcript": transcript, "confidence": confidence,
	})
	defer resp.Body.Close()
	Expect(resp.StatusCode).To(Equal(http.StatusOK))
	var out struct {
		Accepted bool `json:"accepted"`
	}
	Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
	return out.Accepted
}

// useApp pushes pkg as the foreground app and polls once per second until a punishment shows.
func (st *stack) useApp(pkg string, limit time.Duration) (domain.ActivePunishment, bool) {
	ctx := context.Background()
	for elapsed := time.Duration(0); elapsed <= limit; elapsed += time.Second {
		resp := st.post("/v1/foreground", map[string]string{"app": pkg})
		resp.Body.Close()
		st.app.Monitor().PollOnce(ctx)
		if p, ok := st.presenter.Showing(); ok {
			return p, true
		}
		st.clock.Advance(time.Second)
	}
	return domain.ActivePunishment{}, false
}

// advanceTo moves the clock to t.
func (st *stack) advanceTo(t time.Time) {
	st.clock.Advance(t.Sub(st.clock.Now()))
}

// reopen shuts the daemon down and reopens its database.
func (st *stack) reopen() *infra.SQLStore {
	st.app.Shutdown()
	st.shutdown = true
	store, err := infra.NewSQLiteStore(st.dbPath)
	Expect(err).NotTo(HaveOccurred())
	return store
}

var _ = Describe("Discipline daemon", func() {
	var st *stack

	BeforeEach(func() {
		st = newStack(GinkgoT().TempDir())
	})

	AfterEach(func() {
		st.close()
	})

	Describe("threshold violation left to time out", func() {
		It("should punish once, record a fail and reset the streak", func() {
			p, ok := st.useApp(tiktokPackage, 20*time.Second)
			Expect(ok).To(BeTrue())
			Expect(p.Violation.Type).To(Equal(domain.ViolationThresholdExceeded))
			Expect(p.Violation.AppID).To(Equal("tiktok"))
			Expect(p.PresentedAt).To(Equal(start.Add(10 * time.Second)))
			Expect(p.Spec.Intensity).To(Equal(5))

			var active httpapi.PunishmentResponse
			Expect(st.getJSON("/v1/punishment/active", &active)).To(Equal(http.StatusOK))
			Expect(active.State).To(Equal("locked"))

			By("denying a dismiss while locked")
			st.advanceTo(p.PresentedAt.Add(5 * time.Second))
			Expect(st.interact("dismiss_requested", "", 0)).To(BeFalse())

			By("letting the overlay expire")
			st.advanceTo(p.PresentedAt.Add(15 * time.Second))
			Expect(st.getJSON("/v1/punishment/active", nil)).To(Equal(http.StatusNoContent))

			var today httpapi.SummaryResponse
			Expect(st.getJSON("/v1/summary/today", &today)).To(Equal(http.StatusOK))
			Expect(today.TotalViolations).To(Equal(1))
			Expect(today.TotalFails).To(Equal(1))
			Expect(today.CurrentStreak).To(Equal(0))

			By("persisting the record and streak")
			store := st.reopen()
			defer store.Close()
			ctx := context.Background()

			records, err := store.ListRecords(ctx, start, start.Add(time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].Outcome).To(Equal(domain.OutcomeTimedOut))
			Expect(records[0].WasEscaped).To(BeFalse())
			Expect(records[0].DeniedEscapes).To(Equal(1))

			streak, err := store.LoadStreak(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(streak.Current).To(Equal(0))
			Expect(streak.TotalFails).To(Equal(1))
		})
	})

	Describe("voice confession escape", func() {
		It("should escape at 11s and keep the streak", func() {
			By("crediting a clean day")
			st.app.Ledger().Rollover(start.Add(24 * time.Hour))
			st.advanceTo(start.Add(24 * time.Hour))
			Expect(st.app.Ledger().Streak().Current).To(Equal(1))

			p, ok := st.useApp(tiktokPackage, 20*time.Second)
			Expect(ok).To(BeTrue())

			By("rejecting a confession below the confidence threshold")
			st.advanceTo(p.PresentedAt.Add(10 * time.Second))
			Expect(st.interact("voice_result", "I choose discipline over addiction", 0.5)).To(BeFalse())

			st.advanceTo(p.PresentedAt.Add(11 * time.Second))
			Expect(st.interact("voice_result", "i choose discipline, over addiction!", 0.9)).To(BeTrue())
			Expect(st.getJSON("/v1/punishment/active", nil)).To(Equal(http.StatusNoContent))

			var today httpapi.SummaryResponse
			Expect(st.getJSON("/v1/summary/today", &today)).To(Equal(http.StatusOK))
			Expect(today.TotalEscapes).To(Equal(1))
			Expect(today.TotalFails).To(Equal(0))
			Expect(today.CurrentStreak).To(Equal(1))

			store := st.reopen()
			defer store.Close()
			records, err := store.ListRecords(context.Background(), start, start.Add(48*time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].EscapeTime).To(Equal(domain.Some(11 * time.Second)))
			Expect(records[0].Attempts).To(HaveLen(2))
		})
	})

	Describe("emergency lockdown", func() {
		It("should punish any monitored app at full intensity", func() {
			resp := st.post("/v1/lockdown", nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			p, ok := st.useApp(tiktokPackage, 0)
			Expect(ok).To(BeTrue(), "fires on the first sample")
			Expect(p.Violation.Type).To(Equal(domain.ViolationEmergencyLockdownBroken))
			Expect(p.Spec.Type).To(Equal(domain.PunishmentEmergencyLockdown))
			Expect(p.Spec.Intensity).To(Equal(10))
		})
	})

	Describe("unmonitored apps", func() {
		It("should never punish", func() {
			_, ok := st.useApp("com.example.notes", 30*time.Second)
			Expect(ok).To(BeFalse())

			var today httpapi.SummaryResponse
			Expect(st.getJSON("/v1/summary/today", &today)).To(Equal(http.StatusOK))
			Expect(today.TotalViolations).To(Equal(0))
			Expect(today.DisciplineScore).To(Equal(100.0))
		})
	})
})

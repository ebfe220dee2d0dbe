package httpapi

import (
	"time"

	"github.com/eliteGoblin/focusd/discipline/internal/domain"
	"github.com/eliteGoblin/focusd/discipline/internal/usecase"
)

type errorResponse struct {
	Error string `json:"error"`
}

type foregroundRequest struct {
	App string `json:"app"`
}

type foregroundResponse struct {
	App string `json:"app"`
}

type interactRequest struct {
	Kind       string  `json:"kind"`
	Transcript string  `json:"transcript,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

type interactResponse struct {
	Accepted bool `json:"accepted"`
}

type lockdownResponse struct {
	Until time.Time `json:"until"`
}

// PunishmentResponse is the API view of the punishment on screen.
type PunishmentResponse struct {
	RecordID    string    `json:"record_id"`
	App         string    `json:"app"`
	Violation   string    `json:"violation"`
	Type        string    `json:"type"`
	Intensity   int       `json:"intensity"`
	Channels    []string  `json:"channels"`
	PresentedAt time.Time `json:"presented_at"`
	State       string    `json:"state"`
}

// SummaryResponse is the API view of a day summary.
type SummaryResponse struct {
	Date             string  `json:"date"`
	TotalViolations  int     `json:"total_violations"`
	TotalEscapes     int     `json:"total_escapes"`
	TotalFails       int     `json:"total_fails"`
	DisciplineScore  float64 `json:"discipline_score"`
	CurrentStreak    int     `json:"current_streak"`
	LongestStreak    int     `json:"longest_streak"`
	WorstApp         *string `json:"worst_app,omitempty"`
	PeakWeaknessHour *int    `json:"peak_weakness_hour,omitempty"`
	TotalDurationSec float64 `json:"total_duration_s"`
	AverageEscapeSec float64 `json:"average_escape_s"`
}

// HealthResponse reports ledger persistence health.
type HealthResponse struct {
	Status       string `json:"status"`
	Degraded     bool   `json:"degraded"`
	PendingWrite int    `json:"pending_writes"`
	LastError    string `json:"last_error,omitempty"`
}

// StatusResponse is the daemon status served at /v1/status.
type StatusResponse struct {
	Detector      string              `json:"detector"`
	Active        *PunishmentResponse `json:"active,omitempty"`
	Pending       bool                `json:"pending"`
	LockdownUntil *time.Time          `json:"lockdown_until,omitempty"`
	Today         SummaryResponse     `json:"today"`
	Health        HealthResponse      `json:"health"`
}

// BrotherhoodResponse is the API view of the partner link.
type BrotherhoodResponse struct {
	PartnerID               string     `json:"partner_id"`
	Status                  string     `json:"status"`
	MyScore                 float64    `json:"my_score"`
	PartnerScore            float64    `json:"partner_score"`
	CombinedStreak          int        `json:"combined_streak"`
	MutualFailures          int        `json:"mutual_failures"`
	ConsecutiveSyncFailures int        `json:"consecutive_sync_failures"`
	LastSync                *time.Time `json:"last_sync,omitempty"`
}

var interactionKinds = map[string]domain.InteractionKind{
	string(domain.InteractionVoiceStart):          domain.InteractionVoiceStart,
	string(domain.InteractionVoiceResult):         domain.InteractionVoiceResult,
	string(domain.InteractionCameraStart):         domain.InteractionCameraStart,
	string(domain.InteractionCameraDwellComplete): domain.InteractionCameraDwellComplete,
	string(domain.InteractionDismissRequested):    domain.InteractionDismissRequested,
	string(domain.InteractionBackPressed):         domain.InteractionBackPressed,
}

func toPunishment(a domain.ActivePunishment) *PunishmentResponse {
	channels := make([]string, 0, len(a.Spec.Channels))
	for _, ch := range a.Spec.Channels {
		channels = append(channels, string(ch))
	}
	return &PunishmentResponse{
		RecordID:    a.RecordID,
		App:         a.Violation.AppID,
		Violation:   string(a.Violation.Type),
		Type:        string(a.Spec.Type),
		Intensity:   a.Spec.Intensity,
		Channels:    channels,
		PresentedAt: a.PresentedAt,
		State:       a.State,
	}
}

// ToSummary converts a day summary to its API view.
func ToSummary(s domain.DaySummary) SummaryResponse {
	out := SummaryResponse{
		Date:             s.Date,
		TotalViolations:  s.TotalViolations,
		TotalEscapes:     s.TotalEscapes,
		TotalFails:       s.TotalFails,
		DisciplineScore:  s.DisciplineScore,
		CurrentStreak:    s.CurrentStreak,
		LongestStreak:    s.LongestStreak,
		TotalDurationSec: s.TotalDuration.Seconds(),
		AverageEscapeSec: s.AverageEscapeTime.Seconds(),
	}
	if app, ok := s.WorstApp.Get(); ok {
		out.WorstApp = &app
	}
	if h, ok := s.PeakWeaknessHour.Get(); ok {
		out.PeakWeaknessHour = &h
	}
	return out
}

func toHealth(h domain.LedgerHealth) HealthResponse {
	out := HealthResponse{Status: "ok", Degraded: h.Degraded, PendingWrite: h.PendingWrite, LastError: h.LastError}
	if h.Degraded {
		out.Status = "degraded"
	}
	return out
}

func toStatus(st usecase.EnforcerStatus, today domain.DaySummary, health domain.LedgerHealth, now time.Time) StatusResponse {
	out := StatusResponse{
		Detector: string(st.Detector),
		Pending:  st.Pending,
		Today:    ToSummary(today),
		Health:   toHealth(health),
	}
	if st.Active != nil {
		out.Active = toPunishment(*st.Active)
	}
	if now.Before(st.LockdownUntil) {
		until := st.LockdownUntil
		out.LockdownUntil = &until
	}
	return out
}

func toBrotherhood(s domain.BrotherhoodState) BrotherhoodResponse {
	out := BrotherhoodResponse{
		PartnerID:               s.PartnerID,
		Status:                  string(s.Status),
		MyScore:                 s.MyScore,
		PartnerScore:            s.PartnerScore,
		CombinedStreak:          s.CombinedStreak,
		MutualFailures:          s.MutualFailures,
		ConsecutiveSyncFailures: s.ConsecutiveSyncFailures,
	}
	if t, ok := s.LastSync.Get(); ok {
		out.LastSync = &t
	}
	return out
}

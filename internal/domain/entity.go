// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "time"

// ViolationType classifies why a violation fired.
type ViolationType string

const (
	ViolationThresholdExceeded       ViolationType = "threshold_exceeded"
	ViolationBlackout                ViolationType = "blackout_violation"
	ViolationRepeatedUsage           ViolationType = "repeated_usage"
	ViolationEmergencyLockdownBroken ViolationType = "emergency_lockdown_broken"
	ViolationBrotherhoodTriggered    ViolationType = "brotherhood_triggered"
)

// PunishmentType is the experience presented for a violation.
type PunishmentType string

const (
	PunishmentOverlayOnly       PunishmentType = "overlay_only"
	PunishmentOverlaySound      PunishmentType = "overlay_sound"
	PunishmentOverlayVibration  PunishmentType = "overlay_vibration"
	PunishmentOverlayFlash      PunishmentType = "overlay_flash"
	PunishmentFullSensory       PunishmentType = "full_sensory"
	PunishmentCameraGuilt       PunishmentType = "camera_guilt"
	PunishmentVoiceConfession   PunishmentType = "voice_confession"
	PunishmentEmergencyLockdown PunishmentType = "emergency_lockdown"
)

// EscapeChannel is a way out of a punishment that policy permits.
type EscapeChannel string

const (
	ChannelVoice   EscapeChannel = "voice"
	ChannelCamera  EscapeChannel = "camera"
	ChannelTimeout EscapeChannel = "timeout"
)

// EscapeMethod records how a punishment ended.
type EscapeMethod string

const (
	EscapeQuickClose        EscapeMethod = "quick_close"
	EscapeVoiceConfession   EscapeMethod = "voice_confession"
	EscapeCameraGuilt       EscapeMethod = "camera_guilt"
	EscapeTimeout           EscapeMethod = "timeout"
	EscapeEmergencyOverride EscapeMethod = "emergency_override"
)

// Outcome is the terminal result of a punishment.
type Outcome string

const (
	OutcomeEscaped  Outcome = "escaped"
	OutcomeFailed   Outcome = "failed"
	OutcomeTimedOut Outcome = "timed_out"
)

// IsFail reports whether the outcome counts against the streak.
func (o Outcome) IsFail() bool {
	return o == OutcomeFailed || o == OutcomeTimedOut
}

// SyncStatus is the brotherhood link state.
type SyncStatus string

const (
	SyncConnected         SyncStatus = "connected"
	SyncDisconnected      SyncStatus = "disconnected"
	SyncSyncing           SyncStatus = "syncing"
	SyncError             SyncStatus = "error"
	SyncWaitingForPartner SyncStatus = "waiting_for_partner"
)

// Sample is one observation of the foreground application.
type Sample struct {
	AppID string
	At    time.Time
}

// ViolationEvent is a detected policy breach. Treat as immutable once created.
type ViolationEvent struct {
	ID        string
	AppID     string
	Type      ViolationType
	Timestamp time.Time
	Elapsed   time.Duration
}

// PunishmentSpec is the selector's decision for one violation.
type PunishmentSpec struct {
	Type      PunishmentType
	Intensity int // 1-10
	Channels  []EscapeChannel
}

// Allows reports whether the channel is permitted for this punishment.
func (s PunishmentSpec) Allows(ch EscapeChannel) bool {
	for _, c := range s.Channels {
		if c == ch {
			return true
		}
	}
	return false
}

// ConfessionAttempt is one evaluated speech result.
type ConfessionAttempt struct {
	RecognizedText string
	Confidence     float64
	ExpectedPhrase string
	IsMatch        bool
	AttemptNumber  int
	Accepted       bool
	At             time.Time
}

// PunishmentRecord is opened when a punishment is presented and closed exactly once by the resolver.
// EscapeTime is set iff WasEscaped.
type PunishmentRecord struct {
	ID            string
	Violation     ViolationEvent
	Spec          PunishmentSpec
	PresentedAt   time.Time
	ResolvedAt    time.Time
	Outcome       Outcome
	WasEscaped    bool
	EscapeMethod  Optional[EscapeMethod]
	EscapeTime    Optional[time.Duration]
	Attempts      []ConfessionAttempt
	DeniedEscapes int
}

// DaySummary holds derived per-day discipline metrics. Never edited by hand.
type DaySummary struct {
	Date              string // YYYY-MM-DD in the ledger's location
	TotalViolations   int
	TotalEscapes      int
	TotalFails        int
	DisciplineScore   float64 // 0-100
	CurrentStreak     int
	LongestStreak     int
	WorstApp          Optional[string]
	PeakWeaknessHour  Optional[int] // 0-23
	TotalDuration     time.Duration
	AverageEscapeTime time.Duration
}

// StreakState is the cross-day streak bookkeeping.
type StreakState struct {
	Current      int
	Longest      int
	LastFailDate Optional[string]
	LastDay      string // last day the ledger observed
	TotalFails   int    // all-time fail count, published to the partner
}

// BlackoutZone restricts apps during a recurring time window.
// A window with start after end wraps past midnight.
type BlackoutZone struct {
	ID          string
	Name        string
	StartHour   int
	StartMinute int
	EndHour     int
	EndMinute   int
	Days        []time.Weekday
	AllowedApps []string
	StrictMode  bool // no app is allowed
	Active      bool
}

// BrotherhoodState is the local view of the partner link.
type BrotherhoodState struct {
	PartnerID               string
	Status                  SyncStatus
	MyScore                 float64
	PartnerScore            float64
	CombinedStreak          int
	MutualFailures          int // partner fails that triggered a local punishment
	ConsecutiveSyncFailures int
	PartnerFails            int // last seen partner cumulative fail count
	LastSync                Optional[time.Time]
}

// SyncPayload is exchanged with the partner every sync round.
type SyncPayload struct {
	SchemaVersion   int
	DeviceID        string
	DisciplineScore float64
	Streak          int
	MutualFailures  int // sender's cumulative fail count
	Timestamp       time.Time
}

// InteractionKind enumerates user interactions reported by the presentation surface.
type InteractionKind string

const (
	InteractionVoiceStart          InteractionKind = "voice_start"
	InteractionVoiceResult         InteractionKind = "voice_result"
	InteractionCameraStart         InteractionKind = "camera_start"
	InteractionCameraDwellComplete InteractionKind = "camera_dwell_complete"
	InteractionDismissRequested    InteractionKind = "dismiss_requested"
	InteractionBackPressed         InteractionKind = "back_pressed"
)

// Interaction is a user action on the presented punishment.
type Interaction struct {
	Kind       InteractionKind
	Transcript string  // VoiceResult only
	Confidence float64 // VoiceResult only
}

// ActivePunishment is what the presentation surface renders.
type ActivePunishment struct {
	RecordID    string
	Violation   ViolationEvent
	Spec        PunishmentSpec
	PresentedAt time.Time
	State       string
}

// LedgerHealth reports whether persistence is keeping up.
type LedgerHealth struct {
	Degraded     bool
	PendingWrite int
	LastError    string
}

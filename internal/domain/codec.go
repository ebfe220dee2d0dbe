package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Schema versions for persisted and exchanged entities.
const (
	RecordSchemaVersion      = 1
	SummarySchemaVersion     = 1
	StreakSchemaVersion      = 1
	BrotherhoodSchemaVersion = 1
	SyncSchemaVersion        = 1
)

// Wire structs are the only types that touch encoding/json. Domain types stay tag-free.

type violationWire struct {
	ID        string `json:"id"`
	AppID     string `json:"app_id"`
	Type      string `json:"type"`
	Timestamp int64  `json:"ts_ms"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

type attemptWire struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Expected   string  `json:"expected"`
	IsMatch    bool    `json:"is_match"`
	Number     int     `json:"n"`
	Accepted   bool    `json:"accepted"`
	At         int64   `json:"at_ms"`
}

type recordWire struct {
	V             int           `json:"v"`
	ID            string        `json:"id"`
	Violation     violationWire `json:"violation"`
	Type          string        `json:"punishment_type"`
	Intensity     int           `json:"intensity"`
	Channels      []string      `json:"channels"`
	PresentedAt   int64         `json:"presented_ms"`
	ResolvedAt    int64         `json:"resolved_ms"`
	Outcome       string        `json:"outcome"`
	WasEscaped    bool          `json:"was_escaped"`
	EscapeMethod  *string       `json:"escape_method,omitempty"`
	EscapeTimeMs  *int64        `json:"escape_time_ms,omitempty"`
	Attempts      []attemptWire `json:"attempts,omitempty"`
	DeniedEscapes int           `json:"denied_escapes"`
}

// EncodeRecord serializes a PunishmentRecord.
func EncodeRecord(r PunishmentRecord) ([]byte, error) {
	w := recordWire{
		V:  RecordSchemaVersion,
		ID: r.ID,
		Violation: violationWire{
			ID:        r.Violation.ID,
			AppID:     r.Violation.AppID,
			Type:      string(r.Violation.Type),
			Timestamp: r.Violation.Timestamp.UnixMilli(),
			ElapsedMs: r.Violation.Elapsed.Milliseconds(),
		},
		Type:          string(r.Spec.Type),
		Intensity:     r.Spec.Intensity,
		PresentedAt:   r.PresentedAt.UnixMilli(),
		ResolvedAt:    r.ResolvedAt.UnixMilli(),
		Outcome:       string(r.Outcome),
		WasEscaped:    r.WasEscaped,
		DeniedEscapes: r.DeniedEscapes,
	}
	for _, ch := range r.Spec.Channels {
		w.Channels = append(w.Channels, string(ch))
	}
	if m, ok := r.EscapeMethod.Get(); ok {
		s := string(m)
		w.EscapeMethod = &s
	}
	if d, ok := r.EscapeTime.Get(); ok {
		ms := d.Milliseconds()
		w.EscapeTimeMs = &ms
	}
	for _, a := range r.Attempts {
		w.Attempts = append(w.Attempts, attemptWire{
			Text:       a.RecognizedText,
			Confidence: a.Confidence,
			Expected:   a.ExpectedPhrase,
			IsMatch:    a.IsMatch,
			Number:     a.AttemptNumber,
			Accepted:   a.Accepted,
			At:         a.At.UnixMilli(),
		})
	}
	return json.Marshal(w)
}

// DecodeRecord parses a PunishmentRecord.
func DecodeRecord(data []byte) (PunishmentRecord, error) {
	var w recordWire
	if err := json.Unmarshal(data, &w); err != nil {
		return PunishmentRecord{}, fmt.Errorf("decode record: %w", err)
	}
	if w.V != RecordSchemaVersion {
		return PunishmentRecord{}, fmt.Errorf("decode record: unsupported schema version %d", w.V)
	}

	r := PunishmentRecord{
		ID: w.ID,
		Violation: ViolationEvent{
			ID:        w.Violation.ID,
			AppID:     w.Violation.AppID,
			Type:      ViolationType(w.Violation.Type),
			Timestamp: time.UnixMilli(w.Violation.Timestamp),
			Elapsed:   time.Duration(w.Violation.ElapsedMs) * time.Millisecond,
		},
		Spec: PunishmentSpec{
			Type:      PunishmentType(w.Type),
			Intensity: w.Intensity,
		},
		PresentedAt:   time.UnixMilli(w.PresentedAt),
		ResolvedAt:    time.UnixMilli(w.ResolvedAt),
		Outcome:       Outcome(w.Outcome),
		WasEscaped:    w.WasEscaped,
		DeniedEscapes: w.DeniedEscapes,
	}
	for _, ch := range w.Channels {
		r.Spec.Channels = append(r.Spec.Channels, EscapeChannel(ch))
	}
	if w.EscapeMethod != nil {
		r.EscapeMethod = Some(EscapeMethod(*w.EscapeMethod))
	}
	if w.EscapeTimeMs != nil {
		r.EscapeTime = Some(time.Duration(*w.EscapeTimeMs) * time.Millisecond)
	}
	for _, a := range w.Attempts {
		r.Attempts = append(r.Attempts, ConfessionAttempt{
			RecognizedText: a.Text,
			Confidence:     a.Confidence,
			ExpectedPhrase: a.Expected,
			IsMatch:        a.IsMatch,
			AttemptNumber:  a.Number,
			Accepted:       a.Accepted,
			At:             time.UnixMilli(a.At),
		})
	}
	return r, nil
}

type summaryWire struct {
	V                int     `json:"v"`
	Date             string  `json:"date"`
	TotalViolations  int     `json:"total_violations"`
	TotalEscapes     int     `json:"total_escapes"`
	TotalFails       int     `json:"total_fails"`
	DisciplineScore  float64 `json:"discipline_score"`
	CurrentStreak    int     `json:"current_streak"`
	LongestStreak    int     `json:"longest_streak"`
	WorstApp         *string `json:"worst_app,omitempty"`
	PeakWeaknessHour *int    `json:"peak_weakness_hour,omitempty"`
	TotalDurationMs  int64   `json:"total_duration_ms"`
	AverageEscapeMs  int64   `json:"average_escape_ms"`
}

// EncodeSummary serializes a DaySummary.
func EncodeSummary(s DaySummary) ([]byte, error) {
	w := summaryWire{
		V:               SummarySchemaVersion,
		Date:            s.Date,
		TotalViolations: s.TotalViolations,
		TotalEscapes:    s.TotalEscapes,
		TotalFails:      s.TotalFails,
		DisciplineScore: s.DisciplineScore,
		CurrentStreak:   s.CurrentStreak,
		LongestStreak:   s.LongestStreak,
		TotalDurationMs: s.TotalDuration.Milliseconds(),
		AverageEscapeMs: s.AverageEscapeTime.Milliseconds(),
	}
	if app, ok := s.WorstApp.Get(); ok {
		w.WorstApp = &app
	}
	if h, ok := s.PeakWeaknessHour.Get(); ok {
		w.PeakWeaknessHour = &h
	}
	return json.Marshal(w)
}

// DecodeSummary parses a DaySummary.
func DecodeSummary(data []byte) (DaySummary, error) {
	var w summaryWire
	if err := json.Unmarshal(data, &w); err != nil {
		return DaySummary{}, fmt.Errorf("decode summary: %w", err)
	}
	if w.V != SummarySchemaVersion {
		return DaySummary{}, fmt.Errorf("decode summary: unsupported schema version %d", w.V)
	}
	s := DaySummary{
		Date:              w.Date,
		TotalViolations:   w.TotalViolations,
		TotalEscapes:      w.TotalEscapes,
		TotalFails:        w.TotalFails,
		DisciplineScore:   w.DisciplineScore,
		CurrentStreak:     w.CurrentStreak,
		LongestStreak:     w.LongestStreak,
		TotalDuration:     time.Duration(w.TotalDurationMs) * time.Millisecond,
		AverageEscapeTime: time.Duration(w.AverageEscapeMs) * time.Millisecond,
	}
	if w.WorstApp != nil {
		s.WorstApp = Some(*w.WorstApp)
	}
	if w.PeakWeaknessHour != nil {
		s.PeakWeaknessHour = Some(*w.PeakWeaknessHour)
	}
	return s, nil
}

type streakWire struct {
	V            int     `json:"v"`
	Current      int     `json:"current"`
	Longest      int     `json:"longest"`
	LastFailDate *string `json:"last_fail_date,omitempty"`
	LastDay      string  `json:"last_day"`
	TotalFails   int     `json:"total_fails"`
}

// EncodeStreak serializes a StreakState.
func EncodeStreak(s StreakState) ([]byte, error) {
	w := streakWire{V: StreakSchemaVersion, Current: s.Current, Longest: s.Longest, LastDay: s.LastDay, TotalFails: s.TotalFails}
	if d, ok := s.LastFailDate.Get(); ok {
		w.LastFailDate = &d
	}
	return json.Marshal(w)
}

// DecodeStreak parses a StreakState.
func DecodeStreak(data []byte) (StreakState, error) {
	var w streakWire
	if err := json.Unmarshal(data, &w); err != nil {
		return StreakState{}, fmt.Errorf("decode streak: %w", err)
	}
	if w.V != StreakSchemaVersion {
		return StreakState{}, fmt.Errorf("decode streak: unsupported schema version %d", w.V)
	}
	s := StreakState{Current: w.Current, Longest: w.Longest, LastDay: w.LastDay, TotalFails: w.TotalFails}
	if w.LastFailDate != nil {
		s.LastFailDate = Some(*w.LastFailDate)
	}
	return s, nil
}

type brotherhoodWire struct {
	V                       int     `json:"v"`
	PartnerID               string  `json:"partner_id"`
	Status                  string  `json:"status"`
	MyScore                 float64 `json:"my_score"`
	PartnerScore            float64 `json:"partner_score"`
	CombinedStreak          int     `json:"combined_streak"`
	MutualFailures          int     `json:"mutual_failures"`
	ConsecutiveSyncFailures int     `json:"consecutive_sync_failures"`
	PartnerFails            int     `json:"partner_fails"`
	LastSync                *int64  `json:"last_sync_ms,omitempty"`
}

// EncodeBrotherhood serializes a BrotherhoodState.
func EncodeBrotherhood(s BrotherhoodState) ([]byte, error) {
	w := brotherhoodWire{
		V:                       BrotherhoodSchemaVersion,
		PartnerID:               s.PartnerID,
		Status:                  string(s.Status),
		MyScore:                 s.MyScore,
		PartnerScore:            s.PartnerScore,
		CombinedStreak:          s.CombinedStreak,
		MutualFailures:          s.MutualFailures,
		ConsecutiveSyncFailures: s.ConsecutiveSyncFailures,
		PartnerFails:            s.PartnerFails,
	}
	if t, ok := s.LastSync.Get(); ok {
		ms := t.UnixMilli()
		w.LastSync = &ms
	}
	return json.Marshal(w)
}

// DecodeBrotherhood parses a BrotherhoodState.
func DecodeBrotherhood(data []byte) (BrotherhoodState, error) {
	var w brotherhoodWire
	if err := json.Unmarshal(data, &w); err != nil {
		return BrotherhoodState{}, fmt.Errorf("decode brotherhood: %w", err)
	}
	if w.V != BrotherhoodSchemaVersion {
		return BrotherhoodState{}, fmt.Errorf("decode brotherhood: unsupported schema version %d", w.V)
	}
	s := BrotherhoodState{
		PartnerID:               w.PartnerID,
		Status:                  SyncStatus(w.Status),
		MyScore:                 w.MyScore,
		PartnerScore:            w.PartnerScore,
		CombinedStreak:          w.CombinedStreak,
		MutualFailures:          w.MutualFailures,
		ConsecutiveSyncFailures: w.ConsecutiveSyncFailures,
		PartnerFails:            w.PartnerFails,
	}
	if w.LastSync != nil {
		s.LastSync = Some(time.UnixMilli(*w.LastSync))
	}
	return s, nil
}

// SyncPayloadWire is the partner wire shape. Exported for signing transports.
type SyncPayloadWire struct {
	V               int     `json:"v"`
	DeviceID        string  `json:"device_id"`
	DisciplineScore float64 `json:"discipline_score"`
	Streak          int     `json:"streak"`
	MutualFailures  int     `json:"mutual_failures"`
	Timestamp       int64   `json:"ts_ms"`
}

// ToWire converts a payload for transmission.
func (p SyncPayload) ToWire() SyncPayloadWire {
	return SyncPayloadWire{
		V:               SyncSchemaVersion,
		DeviceID:        p.DeviceID,
		DisciplineScore: p.DisciplineScore,
		Streak:          p.Streak,
		MutualFailures:  p.MutualFailures,
		Timestamp:       p.Timestamp.UnixMilli(),
	}
}

// FromWire validates and converts a received payload.
func (w SyncPayloadWire) FromWire() (SyncPayload, error) {
	if w.V != SyncSchemaVersion {
		return SyncPayload{}, fmt.Errorf("sync payload: unsupported schema version %d", w.V)
	}
	if w.DeviceID == "" {
		return SyncPayload{}, fmt.Errorf("sync payload: missing device id")
	}
	return SyncPayload{
		SchemaVersion:   w.V,
		DeviceID:        w.DeviceID,
		DisciplineScore: w.DisciplineScore,
		Streak:          w.Streak,
		MutualFailures:  w.MutualFailures,
		Timestamp:       time.UnixMilli(w.Timestamp),
	}, nil
}

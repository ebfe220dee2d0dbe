package policy

import (
	"time"

	"github.com/eliteGoblin/focusd/discipline/internal/config"
	"github.com/eliteGoblin/focusd/discipline/internal/domain"
)

// sensoryLadder orders the lighter punishments by severity.
var sensoryLadder = []struct {
	kind    domain.PunishmentType
	enabled func(config.Settings) bool
}{
	{domain.PunishmentOverlaySound, func(s config.Settings) bool { return s.EnableSoundPunishment }},
	{domain.PunishmentOverlayVibration, func(s config.Settings) bool { return s.EnableVibrationPunishment }},
	{domain.PunishmentOverlayFlash, func(s config.Settings) bool { return s.EnableFlashlightPunishment }},
}

// Select decides the punishment for a violation. It is pure: same inputs, same spec.
// history holds earlier violations; only same-app entries on the same local day in loc count toward escalation.
// Blackout zones are evaluated on loc's wall clock.
func Select(v domain.ViolationEvent, s config.Settings, history []domain.ViolationEvent, zones []domain.BlackoutZone, loc *time.Location) domain.PunishmentSpec {
	if loc == nil {
		loc = time.Local
	}
	spec := domain.PunishmentSpec{
		Intensity: Intensity(v, s, history, loc),
		Channels:  Channels(s),
	}

	if v.Type == domain.ViolationEmergencyLockdownBroken || strictBlackout(v, zones, loc) {
		spec.Type = domain.PunishmentEmergencyLockdown
		spec.Intensity = 10
		return spec
	}

	spec.Type = punishmentType(s, spec.Intensity)
	return spec
}

// Intensity returns the clamped base intensity, escalated per prior same-app violation today when adaptive.
func Intensity(v domain.ViolationEvent, s config.Settings, history []domain.ViolationEvent, loc *time.Location) int {
	intensity := s.Intensity()
	if !s.AdaptivePunishmentEnabled {
		return intensity
	}
	for _, h := range history {
		if h.ID != v.ID && h.AppID == v.AppID && sameDay(h.Timestamp, v.Timestamp, loc) && h.Timestamp.Before(v.Timestamp) {
			intensity += config.AdaptiveStep
		}
	}
	return config.ClampIntensity(intensity)
}

// Channels returns the escape channels policy permits. Timeout is always available.
func Channels(s config.Settings) []domain.EscapeChannel {
	var ch []domain.EscapeChannel
	if s.EnableVoiceConfession {
		ch = append(ch, domain.ChannelVoice)
	}
	if s.EnableCameraGuilt {
		ch = append(ch, domain.ChannelCamera)
	}
	return append(ch, domain.ChannelTimeout)
}

func punishmentType(s config.Settings, intensity int) domain.PunishmentType {
	var enabled []domain.PunishmentType
	for _, step := range sensoryLadder {
		if step.enabled(s) {
			enabled = append(enabled, step.kind)
		}
	}

	if len(enabled) == len(sensoryLadder) && s.EnableCameraGuilt && s.EnableVoiceConfession &&
		intensity >= s.FullSensoryMark() {
		return domain.PunishmentFullSensory
	}

	if len(enabled) > 0 {
		return enabled[(intensity-1)*len(enabled)/10]
	}

	switch {
	case s.EnableVoiceConfession:
		return domain.PunishmentVoiceConfession
	case s.EnableCameraGuilt:
		return domain.PunishmentCameraGuilt
	default:
		return domain.PunishmentOverlayOnly
	}
}

func strictBlackout(v domain.ViolationEvent, zones []domain.BlackoutZone, loc *time.Location) bool {
	if v.Type != domain.ViolationBlackout {
		return false
	}
	allowed, strict := IsAllowed(v.Timestamp.In(loc), v.AppID, zones)
	return !allowed && strict
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

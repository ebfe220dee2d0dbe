package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/eliteGoblin/focusd/discipline/internal/config"
	"github.com/eliteGoblin/focusd/discipline/internal/domain"
)

func violation(id, app string, typ domain.ViolationType, ts time.Time) domain.ViolationEvent {
	return domain.ViolationEvent{ID: id, AppID: app, Type: typ, Timestamp: ts, Elapsed: 12 * time.Second}
}

func allOff() config.Settings {
	s := config.Default()
	s.EnableSoundPunishment = false
	s.EnableVibrationPunishment = false
	s.EnableFlashlightPunishment = false
	s.EnableCameraGuilt = false
	s.EnableVoiceConfession = false
	return s
}

func TestSelect_IntensityNotAdaptive(t *testing.T) {
	s := config.Default()
	s.AdaptivePunishmentEnabled = false
	v := violation("v3", "tiktok", domain.ViolationThresholdExceeded, at(1, 10, 0))
	history := []domain.ViolationEvent{
		violation("v1", "tiktok", domain.ViolationThresholdExceeded, at(1, 8, 0)),
		violation("v2", "tiktok", domain.ViolationThresholdExceeded, at(1, 9, 0)),
	}

	spec := Select(v, s, history, nil, time.UTC)
	assert.Equal(t, 5, spec.Intensity)
}

func TestSelect_AdaptiveEscalation(t *testing.T) {
	s := config.Default()
	s.AdaptivePunishmentEnabled = true
	v := violation("v4", "tiktok", domain.ViolationThresholdExceeded, at(2, 10, 0))
	history := []domain.ViolationEvent{
		violation("v0", "tiktok", domain.ViolationThresholdExceeded, at(1, 23, 0)), // yesterday
		violation("v1", "tiktok", domain.ViolationThresholdExceeded, at(2, 8, 0)),
		violation("v2", "reddit", domain.ViolationThresholdExceeded, at(2, 9, 0)), // other app
		violation("v3", "tiktok", domain.ViolationThresholdExceeded, at(2, 9, 30)),
	}

	assert.Equal(t, 7, Select(v, s, history, nil, time.UTC).Intensity)

	s.PunishmentIntensity = 9
	assert.Equal(t, 10, Select(v, s, history, nil, time.UTC).Intensity, "capped at 10")
}

func TestSelect_ClampsConfiguredIntensity(t *testing.T) {
	s := config.Default()
	s.PunishmentIntensity = 99
	v := violation("v", "tiktok", domain.ViolationThresholdExceeded, at(1, 10, 0))

	assert.Equal(t, 10, Select(v, s, nil, nil, time.UTC).Intensity)
}

func TestSelect_EmergencyLockdown(t *testing.T) {
	s := config.Default()
	s.PunishmentIntensity = 2

	broken := violation("v", "tiktok", domain.ViolationEmergencyLockdownBroken, at(1, 10, 0))
	spec := Select(broken, s, nil, nil, time.UTC)
	assert.Equal(t, domain.PunishmentEmergencyLockdown, spec.Type)
	assert.Equal(t, 10, spec.Intensity)

	strictZone := []domain.BlackoutZone{{StartHour: 9, EndHour: 11, Days: everyDay, Active: true, StrictMode: true}}
	blackout := violation("v", "tiktok", domain.ViolationBlackout, at(1, 10, 0))
	spec = Select(blackout, s, nil, strictZone, time.UTC)
	assert.Equal(t, domain.PunishmentEmergencyLockdown, spec.Type)

	lenient := []domain.BlackoutZone{{StartHour: 9, EndHour: 11, Days: everyDay, Active: true}}
	spec = Select(blackout, s, nil, lenient, time.UTC)
	assert.NotEqual(t, domain.PunishmentEmergencyLockdown, spec.Type)
}

func TestSelect_ZonesUseConfiguredLocation(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skip("tzdata not available")
	}
	s := config.Default()
	strictZone := []domain.BlackoutZone{{StartHour: 22, EndHour: 2, Days: everyDay, Active: true, StrictMode: true}}

	// 14:00 UTC is 23:00 in Tokyo.
	blackout := violation("v", "tiktok", domain.ViolationBlackout, at(1, 14, 0))
	assert.Equal(t, domain.PunishmentEmergencyLockdown, Select(blackout, s, nil, strictZone, tokyo).Type)
	assert.NotEqual(t, domain.PunishmentEmergencyLockdown, Select(blackout, s, nil, strictZone, time.UTC).Type)
}

func TestSelect_AdaptiveUsesLocalDay(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skip("tzdata not available")
	}
	s := config.Default()
	s.AdaptivePunishmentEnabled = true

	// 16:00 UTC on the 1st and 01:00 UTC on the 2nd are both May 2 in Tokyo.
	v := violation("v2", "tiktok", domain.ViolationThresholdExceeded, at(2, 1, 0))
	history := []domain.ViolationEvent{violation("v1", "tiktok", domain.ViolationThresholdExceeded, at(1, 16, 0))}

	assert.Equal(t, 6, Select(v, s, history, nil, tokyo).Intensity)
	assert.Equal(t, 5, Select(v, s, history, nil, time.UTC).Intensity)
}

func TestSelect_PunishmentType(t *testing.T) {
	v := violation("v", "tiktok", domain.ViolationThresholdExceeded, at(1, 10, 0))

	tests := []struct {
		name   string
		mutate func(s *config.Settings)
		want   domain.PunishmentType
	}{
		{
			name: "full sensory at high water mark",
			mutate: func(s *config.Settings) {
				s.EnableFlashlightPunishment = true
				s.PunishmentIntensity = 8
			},
			want: domain.PunishmentFullSensory,
		},
		{
			name: "below high water mark uses ladder",
			mutate: func(s *config.Settings) {
				s.EnableFlashlightPunishment = true
				s.PunishmentIntensity = 7
			},
			want: domain.PunishmentOverlayVibration,
		},
		{
			name:   "low intensity picks lightest enabled",
			mutate: func(s *config.Settings) { s.PunishmentIntensity = 2 },
			want:   domain.PunishmentOverlaySound,
		},
		{
			name:   "high intensity picks heaviest enabled",
			mutate: func(s *config.Settings) { s.PunishmentIntensity = 10 },
			want:   domain.PunishmentOverlayVibration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := config.Default()
			tt.mutate(&s)
			assert.Equal(t, tt.want, Select(v, s, nil, nil, time.UTC).Type)
		})
	}
}

func TestSelect_NoSensoryCapabilities(t *testing.T) {
	v := violation("v", "tiktok", domain.ViolationThresholdExceeded, at(1, 10, 0))

	s := allOff()
	spec := Select(v, s, nil, nil, time.UTC)
	assert.Equal(t, domain.PunishmentOverlayOnly, spec.Type)
	assert.Equal(t, []domain.EscapeChannel{domain.ChannelTimeout}, spec.Channels)

	s.EnableCameraGuilt = true
	spec = Select(v, s, nil, nil, time.UTC)
	assert.Equal(t, domain.PunishmentCameraGuilt, spec.Type)
	assert.Equal(t, []domain.EscapeChannel{domain.ChannelCamera, domain.ChannelTimeout}, spec.Channels)

	s.EnableVoiceConfession = true
	spec = Select(v, s, nil, nil, time.UTC)
	assert.Equal(t, domain.PunishmentVoiceConfession, spec.Type)
	assert.True(t, spec.Allows(domain.ChannelVoice))
}

func TestSelect_IsDeterministic(t *testing.T) {
	s := config.Default()
	s.AdaptivePunishmentEnabled = true
	v := violation("v2", "reddit", domain.ViolationThresholdExceeded, at(1, 10, 0))
	history := []domain.ViolationEvent{violation("v1", "reddit", domain.ViolationThresholdExceeded, at(1, 9, 0))}

	assert.Equal(t, Select(v, s, history, nil, time.UTC), Select(v, s, history, nil, time.UTC))
}

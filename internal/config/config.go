// Package config loads discipline settings from YAML with .env and environment overrides.
// Values are never rejected for being out of range; accessors clamp them at use.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/focusd/discipline/internal/domain"
)

// Fixed policy constants.
const (
	MaxConfessionAttempts = 3
	MaxSyncFailures       = 5
	CameraGuiltDuration   = 5 * time.Second

	StreakMultiplier = 1.5
	EscapeBonus      = 2.0
	FailPenalty      = -5.0
	StreakBonusCap   = 20
	AdaptiveStep     = 1

	DefaultConfessionPhrase = "I choose discipline over addiction"
)

// Clamp ranges applied at use.
const (
	MinDetectionThreshold = 5 * time.Second
	MaxDetectionThreshold = 5 * time.Minute
	MinOverlayDuration    = 5 * time.Second
	MaxOverlayDuration    = 2 * time.Minute
	MinLockdown           = 5 * time.Minute
	MaxLockdown           = 24 * time.Hour
	MinConfidence         = 0.6
	MaxConfidence         = 1.0
)

// Env variable names read after the settings file.
const (
	EnvPairingSecret = "DISCIPLINE_PAIRING_SECRET"
	EnvRedisPassword = "DISCIPLINE_REDIS_PASSWORD"
	EnvRedisAddr     = "DISCIPLINE_REDIS_ADDR"
	EnvPeerURL       = "DISCIPLINE_PEER_URL"
	EnvPartnerID     = "DISCIPLINE_PARTNER_ID"
	EnvDeviceID      = "DISCIPLINE_DEVICE_ID"
	EnvStoreBackend  = "DISCIPLINE_STORE_BACKEND"
	EnvHTTPListen    = "DISCIPLINE_HTTP_LISTEN"
)

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend string `yaml:"backend"` // "sqlcipher" (default) or "sqlite"
	Path    string `yaml:"path"`    // empty means the default data dir
	KeyPath string `yaml:"key_path"`
}

// TransportConfig selects the partner transport.
type TransportConfig struct {
	Kind          string        `yaml:"kind"` // "none", "http" or "redis"
	PeerURL       string        `yaml:"peer_url"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"-"`
	RedisDB       int           `yaml:"redis_db"`
	PairingSecret string        `yaml:"-"`
	Timeout       time.Duration `yaml:"timeout"`
}

// HTTPConfig configures the local control API.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// ZoneConfig is the YAML form of a blackout zone.
type ZoneConfig struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Start       string   `yaml:"start"` // "HH:MM"
	End         string   `yaml:"end"`
	Days        []string `yaml:"days"` // "mon".."sun"; empty means every day
	AllowedApps []string `yaml:"allowed_apps"`
	Strict      bool     `yaml:"strict"`
	Active      *bool    `yaml:"active"`
}

// Settings is the full configuration surface.
type Settings struct {
	DetectionThreshold    time.Duration            `yaml:"detection_threshold"`
	AppSpecificThresholds map[string]time.Duration `yaml:"app_specific_thresholds"`
	DetectionInterval     time.Duration            `yaml:"detection_interval"`
	MonitoredApps         []string                 `yaml:"monitored_apps"`

	PunishmentIntensity        int  `yaml:"punishment_intensity"`
	AdaptivePunishmentEnabled  bool `yaml:"adaptive_punishment_enabled"`
	EnableSoundPunishment      bool `yaml:"enable_sound_punishment"`
	EnableVibrationPunishment  bool `yaml:"enable_vibration_punishment"`
	EnableFlashlightPunishment bool `yaml:"enable_flashlight_punishment"`
	EnableCameraGuilt          bool `yaml:"enable_camera_guilt"`
	EnableVoiceConfession      bool `yaml:"enable_voice_confession"`
	FullSensoryIntensity       int  `yaml:"full_sensory_intensity"`
	RepeatedUsageLimit         int  `yaml:"repeated_usage_limit"` // 0 disables

	OverlayDuration           time.Duration `yaml:"overlay_duration"`
	MinOverlayTime            time.Duration `yaml:"min_overlay_time"`
	ConfessionPhrase          string        `yaml:"confession_phrase"`
	SpeechConfidenceThreshold float64       `yaml:"speech_confidence_threshold"`
	VoiceRecognitionTimeout   time.Duration `yaml:"voice_recognition_timeout"`

	BlackoutZones             []ZoneConfig  `yaml:"blackout_zones"`
	EmergencyLockdownDuration time.Duration `yaml:"emergency_lockdown_duration"`

	BrotherhoodEnabled      bool          `yaml:"brotherhood_enabled"`
	MutualPunishmentEnabled bool          `yaml:"mutual_punishment_enabled"`
	PartnerID               string        `yaml:"partner_id"`
	DeviceID                string        `yaml:"device_id"`
	SyncInterval            time.Duration `yaml:"sync_interval"`

	Timezone  string          `yaml:"timezone"`
	Storage   StorageConfig   `yaml:"storage"`
	Transport TransportConfig `yaml:"transport"`
	HTTP      HTTPConfig      `yaml:"http"`
}

// Default returns the factory settings.
func Default() Settings {
	return Settings{
		DetectionThreshold:         10 * time.Second,
		AppSpecificThresholds:      map[string]time.Duration{},
		DetectionInterval:          time.Second,
		PunishmentIntensity:        5,
		EnableSoundPunishment:      true,
		EnableVibrationPunishment:  true,
		EnableFlashlightPunishment: false,
		EnableCameraGuilt:          true,
		EnableVoiceConfession:      true,
		FullSensoryIntensity:       8,
		RepeatedUsageLimit:         3,
		OverlayDuration:            15 * time.Second,
		MinOverlayTime:             10 * time.Second,
		ConfessionPhrase:           DefaultConfessionPhrase,
		SpeechConfidenceThreshold:  0.7,
		VoiceRecognitionTimeout:    30 * time.Second,
		EmergencyLockdownDuration:  time.Hour,
		MutualPunishmentEnabled:    true,
		SyncInterval:               30 * time.Second,
		Storage:                    StorageConfig{Backend: "sqlcipher"},
		Transport:                  TransportConfig{Kind: "none", Timeout: 10 * time.Second},
		HTTP:                       HTTPConfig{Listen: "127.0.0.1:7431"},
	}
}

// Load reads the YAML file at path over Default, then applies envFile and DISCIPLINE_* variables.
// A missing settings file or .env file is not an error.
func Load(path, envFile string) (Settings, error) {
	s := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return s, fmt.Errorf("read settings %q: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &s); err != nil {
				return s, fmt.Errorf("parse settings %q: %w", path, err)
			}
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return s, fmt.Errorf("load env file %q: %w", envFile, err)
		}
	}
	s.applyEnv()

	if _, err := s.Zones(); err != nil {
		return s, err
	}
	return s, nil
}

func (s *Settings) applyEnv() {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setString(EnvPairingSecret, &s.Transport.PairingSecret)
	setString(EnvRedisPassword, &s.Transport.RedisPassword)
	setString(EnvRedisAddr, &s.Transport.RedisAddr)
	setString(EnvPeerURL, &s.Transport.PeerURL)
	setString(EnvPartnerID, &s.PartnerID)
	setString(EnvDeviceID, &s.DeviceID)
	setString(EnvStoreBackend, &s.Storage.Backend)
	setString(EnvHTTPListen, &s.HTTP.Listen)
}

// Threshold returns the effective dwell threshold for app.
func (s Settings) Threshold(appID string) time.Duration {
	d := s.DetectionThreshold
	if override, ok := s.AppSpecificThresholds[appID]; ok {
		d = override
	}
	return clampDuration(d, MinDetectionThreshold, MaxDetectionThreshold)
}

// Interval returns the monitor sampling period.
func (s Settings) Interval() time.Duration {
	return clampDuration(s.DetectionInterval, 100*time.Millisecond, time.Minute)
}

// Intensity returns the configured punishment intensity in [1,10].
func (s Settings) Intensity() int {
	return ClampIntensity(s.PunishmentIntensity)
}

// FullSensoryMark returns the intensity at which FullSensory is chosen.
func (s Settings) FullSensoryMark() int {
	return ClampIntensity(s.FullSensoryIntensity)
}

// MinOverlay returns the locked period, never longer than the overlay itself.
func (s Settings) MinOverlay() time.Duration {
	return clampDuration(s.MinOverlayTime, 0, MaxOverlayDuration)
}

// Overlay returns the overlay lifetime, at least MinOverlay.
func (s Settings) Overlay() time.Duration {
	d := clampDuration(s.OverlayDuration, MinOverlayDuration, MaxOverlayDuration)
	if m := s.MinOverlay(); d < m {
		d = m
	}
	return d
}

// Confidence returns the speech acceptance threshold.
func (s Settings) Confidence() float64 {
	c := s.SpeechConfidenceThreshold
	if c < MinConfidence {
		return MinConfidence
	}
	if c > MaxConfidence {
		return MaxConfidence
	}
	return c
}

// VoiceTimeout returns the listening window for one confession attempt.
func (s Settings) VoiceTimeout() time.Duration {
	return clampDuration(s.VoiceRecognitionTimeout, time.Second, 2*time.Minute)
}

// Phrase returns the expected confession phrase.
func (s Settings) Phrase() string {
	if strings.TrimSpace(s.ConfessionPhrase) == "" {
		return DefaultConfessionPhrase
	}
	return s.ConfessionPhrase
}

// Lockdown returns the emergency lockdown length.
func (s Settings) Lockdown() time.Duration {
	return clampDuration(s.EmergencyLockdownDuration, MinLockdown, MaxLockdown)
}

// Sync returns the brotherhood sync period.
func (s Settings) Sync() time.Duration {
	return clampDuration(s.SyncInterval, time.Second, time.Hour)
}

// Location returns the time zone used for local days.
func (s Settings) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// Zones converts the configured blackout zones.
func (s Settings) Zones() ([]domain.BlackoutZone, error) {
	zones := make([]domain.BlackoutZone, 0, len(s.BlackoutZones))
	for i, zc := range s.BlackoutZones {
		z, err := zc.toZone()
		if err != nil {
			return nil, fmt.Errorf("blackout zone %d: %w", i, err)
		}
		if z.ID == "" {
			z.ID = "zone-" + strconv.Itoa(i+1)
		}
		zones = append(zones, z)
	}
	return zones, nil
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

func (zc ZoneConfig) toZone() (domain.BlackoutZone, error) {
	sh, sm, err := parseClock(zc.Start)
	if err != nil {
		return domain.BlackoutZone{}, fmt.Errorf("start: %w", err)
	}
	eh, em, err := parseClock(zc.End)
	if err != nil {
		return domain.BlackoutZone{}, fmt.Errorf("end: %w", err)
	}

	z := domain.BlackoutZone{
		ID:          zc.ID,
		Name:        zc.Name,
		StartHour:   sh,
		StartMinute: sm,
		EndHour:     eh,
		EndMinute:   em,
		AllowedApps: zc.AllowedApps,
		StrictMode:  zc.Strict,
		Active:      zc.Active == nil || *zc.Active,
	}
	if len(zc.Days) == 0 {
		for d := time.Sunday; d <= time.Saturday; d++ {
			z.Days = append(z.Days, d)
		}
	}
	for _, name := range zc.Days {
		key := strings.ToLower(strings.TrimSpace(name))
		if len(key) > 3 {
			key = key[:3]
		}
		d, ok := weekdays[key]
		if !ok {
			return domain.BlackoutZone{}, fmt.Errorf("unknown day %q", name)
		}
		z.Days = append(z.Days, d)
	}
	return z, nil
}

// parseClock reads "HH:MM". Out-of-range fields are clamped to 0-23 and 0-59.
func parseClock(v string) (int, int, error) {
	hs, ms, ok := strings.Cut(strings.TrimSpace(v), ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid time %q: want HH:MM", v)
	}
	h, err := strconv.Atoi(strings.TrimSpace(hs))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q: %w", v, err)
	}
	m, err := strconv.Atoi(strings.TrimSpace(ms))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q: %w", v, err)
	}
	return clampInt(h, 0, 23), clampInt(m, 0, 59), nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampIntensity bounds an intensity to [1,10].
func ClampIntensity(i int) int {
	if i < 1 {
		return 1
	}
	if i > 10 {
		return 10
	}
	return i
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

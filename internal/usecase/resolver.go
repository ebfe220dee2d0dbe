package usecase

import (
	"strings"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/eliteGoblin/focusd/discipline/internal/config"
	"github.com/eliteGoblin/focusd/discipline/internal/domain"
)

// ResolverState names the escape arbitration states.
type ResolverState string

const (
	ResolverLocked        ResolverState = "locked"
	ResolverUnlocked      ResolverState = "unlocked"
	ResolverVoiceAttempt  ResolverState = "voice_attempt"
	ResolverCameraAttempt ResolverState = "camera_attempt"
	ResolverResolved      ResolverState = "resolved"
)

// ResolverConfig holds the escape policy for one punishment.
type ResolverConfig struct {
	MinOverlay   time.Duration
	Overlay      time.Duration
	VoiceTimeout time.Duration
	CameraDwell  time.Duration
	Phrase       string
	Confidence   float64
	MaxAttempts  int
}

// ResolverConfigFrom derives the clamped escape policy from settings.
func ResolverConfigFrom(s config.Settings) ResolverConfig {
	return ResolverConfig{
		MinOverlay:   s.MinOverlay(),
		Overlay:      s.Overlay(),
		VoiceTimeout: s.VoiceTimeout(),
		CameraDwell:  config.CameraGuiltDuration,
		Phrase:       s.Phrase(),
		Confidence:   s.Confidence(),
		MaxAttempts:  config.MaxConfessionAttempts,
	}
}

// Resolver arbitrates escape attempts for one presented punishment.
// It owns every timer it schedules and closes the record exactly once.
type Resolver struct {
	mu     sync.Mutex
	cfg    ResolverConfig
	clock  domain.Clock
	logger *zap.Logger

	recordID    string
	violation   domain.ViolationEvent
	spec        domain.PunishmentSpec
	presentedAt time.Time

	state          ResolverState
	attempts       []domain.ConfessionAttempt
	failed         int
	voiceExhausted bool
	denied         int
	cameraStarted  time.Time
	listenSeq      int

	unlockTimer domain.Timer
	expiryTimer domain.Timer
	listenTimer domain.Timer
	dwellTimer  domain.Timer

	record     *domain.PunishmentRecord
	onResolved func(domain.PunishmentRecord)
}

// NewResolver creates a resolver. Call Start once the punishment is on screen.
func NewResolver(
	cfg ResolverConfig,
	clock domain.Clock,
	recordID string,
	v domain.ViolationEvent,
	spec domain.PunishmentSpec,
	onResolved func(domain.PunishmentRecord),
	logger *zap.Logger,
) *Resolver {
	return &Resolver{
		cfg:        cfg,
		clock:      clock,
		recordID:   recordID,
		violation:  v,
		spec:       spec,
		onResolved: onResolved,
		logger:     logger.With(zap.String("record", recordID), zap.String("app", v.AppID)),
		state:      ResolverLocked,
	}
}

// Start marks the presentation time and arms the unlock and expiry timers.
func (r *Resolver) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.presentedAt = r.clock.Now()
	if r.cfg.MinOverlay <= 0 {
		r.state = ResolverUnlocked
	} else {
		r.unlockTimer = r.clock.AfterFunc(r.cfg.MinOverlay, r.unlock)
	}
	r.expiryTimer = r.clock.AfterFunc(r.cfg.Overlay, r.expire)

	r.logger.Info("punishment presented",
		zap.String("type", string(r.spec.Type)),
		zap.Int("intensity", r.spec.Intensity))
}

// Interact applies a user interaction. It returns false when the interaction was denied or ignored.
func (r *Resolver) Interact(i domain.Interaction) bool {
	r.mu.Lock()
	accepted, rec := r.interactLocked(i)
	r.mu.Unlock()

	r.emit(rec)
	return accepted
}

func (r *Resolver) interactLocked(i domain.Interaction) (bool, *domain.PunishmentRecord) {
	if r.state == ResolverResolved {
		return false, nil
	}

	switch i.Kind {
	case domain.InteractionDismissRequested, domain.InteractionBackPressed:
		r.deny(i, "escape not permitted")
		return false, nil
	}

	if r.state == ResolverLocked {
		r.deny(i, "locked")
		return false, nil
	}

	switch i.Kind {
	case domain.InteractionVoiceStart:
		if !r.voiceOpen() || r.state != ResolverUnlocked {
			return false, nil
		}
		r.state = ResolverVoiceAttempt
		r.listenSeq++
		seq := r.listenSeq
		r.listenTimer = r.clock.AfterFunc(r.cfg.VoiceTimeout, func() { r.listenTimeout(seq) })
		return true, nil

	case domain.InteractionVoiceResult:
		if !r.voiceOpen() || (r.state != ResolverUnlocked && r.state != ResolverVoiceAttempt) {
			return false, nil
		}
		return r.evaluateConfession(i.Transcript, i.Confidence)

	case domain.InteractionCameraStart:
		if !r.spec.Allows(domain.ChannelCamera) || r.state != ResolverUnlocked {
			return false, nil
		}
		r.state = ResolverCameraAttempt
		r.cameraStarted = r.clock.Now()
		r.dwellTimer = r.clock.AfterFunc(r.cfg.CameraDwell, r.dwellElapsed)
		return true, nil

	case domain.InteractionCameraDwellComplete:
		if r.state != ResolverCameraAttempt || r.clock.Now().Sub(r.cameraStarted) < r.cfg.CameraDwell {
			return false, nil
		}
		return true, r.resolveLocked(domain.OutcomeEscaped, domain.EscapeCameraGuilt)
	}
	return false, nil
}

func (r *Resolver) evaluateConfession(transcript string, confidence float64) (bool, *domain.PunishmentRecord) {
	if r.listenTimer != nil {
		r.listenTimer.Stop()
		r.listenTimer = nil
	}

	match := PhraseMatches(transcript, r.cfg.Phrase)
	attempt := domain.ConfessionAttempt{
		RecognizedText: transcript,
		Confidence:     confidence,
		ExpectedPhrase: r.cfg.Phrase,
		IsMatch:        match,
		AttemptNumber:  len(r.attempts) + 1,
		Accepted:       match && confidence >= r.cfg.Confidence,
		At:             r.clock.Now(),
	}
	r.attempts = append(r.attempts, attempt)

	if attempt.Accepted {
		return true, r.resolveLocked(domain.OutcomeEscaped, domain.EscapeVoiceConfession)
	}

	r.failAttempt("rejected", zap.Bool("match", match), zap.Float64("confidence", confidence))
	return true, nil
}

// failAttempt counts a failed confession and returns to Unlocked. Caller holds mu.
func (r *Resolver) failAttempt(reason string, fields ...zap.Field) {
	r.failed++
	r.state = ResolverUnlocked
	if r.failed >= r.cfg.MaxAttempts {
		r.voiceExhausted = true
	}
	r.logger.Info("confession failed", append(fields,
		zap.String("reason", reason),
		zap.Int("attempt", r.failed),
		zap.Bool("voice_exhausted", r.voiceExhausted))...)
}

func (r *Resolver) voiceOpen() bool {
	return r.spec.Allows(domain.ChannelVoice) && !r.voiceExhausted
}

func (r *Resolver) deny(i domain.Interaction, reason string) {
	r.denied++
	r.logger.Warn("escape denied",
		zap.String("interaction", string(i.Kind)),
		zap.String("reason", reason),
		zap.Int("denied_total", r.denied))
}

func (r *Resolver) unlock() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == ResolverLocked {
		r.state = ResolverUnlocked
		r.logger.Debug("punishment unlocked")
	}
}

func (r *Resolver) expire() {
	r.mu.Lock()
	var rec *domain.PunishmentRecord
	if r.state != ResolverResolved {
		rec = r.resolveLocked(domain.OutcomeTimedOut, domain.EscapeTimeout)
	}
	r.mu.Unlock()
	r.emit(rec)
}

func (r *Resolver) listenTimeout(seq int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != ResolverVoiceAttempt || seq != r.listenSeq {
		return
	}
	r.listenTimer = nil
	r.attempts = append(r.attempts, domain.ConfessionAttempt{
		ExpectedPhrase: r.cfg.Phrase,
		AttemptNumber:  len(r.attempts) + 1,
		At:             r.clock.Now(),
	})
	r.failAttempt("recognition timeout")
}

func (r *Resolver) dwellElapsed() {
	r.mu.Lock()
	var rec *domain.PunishmentRecord
	if r.state == ResolverCameraAttempt {
		rec = r.resolveLocked(domain.OutcomeEscaped, domain.EscapeCameraGuilt)
	}
	r.mu.Unlock()
	r.emit(rec)
}

// resolveLocked closes the record and stops every timer. Caller holds mu.
func (r *Resolver) resolveLocked(outcome domain.Outcome, method domain.EscapeMethod) *domain.PunishmentRecord {
	r.state = ResolverResolved
	r.stopTimers()

	now := r.clock.Now()
	rec := domain.PunishmentRecord{
		ID:            r.recordID,
		Violation:     r.violation,
		Spec:          r.spec,
		PresentedAt:   r.presentedAt,
		ResolvedAt:    now,
		Outcome:       outcome,
		WasEscaped:    outcome == domain.OutcomeEscaped,
		EscapeMethod:  domain.Some(method),
		Attempts:      append([]domain.ConfessionAttempt(nil), r.attempts...),
		DeniedEscapes: r.denied,
	}
	if rec.WasEscaped {
		rec.EscapeTime = domain.Some(now.Sub(r.presentedAt))
	}
	r.record = &rec

	r.logger.Info("punishment resolved",
		zap.String("outcome", string(outcome)),
		zap.String("method", string(method)),
		zap.Duration("after", now.Sub(r.presentedAt)))
	return &rec
}

func (r *Resolver) stopTimers() {
	for _, t := range []domain.Timer{r.unlockTimer, r.expiryTimer, r.listenTimer, r.dwellTimer} {
		if t != nil {
			t.Stop()
		}
	}
	r.unlockTimer, r.expiryTimer, r.listenTimer, r.dwellTimer = nil, nil, nil, nil
}

func (r *Resolver) emit(rec *domain.PunishmentRecord) {
	if rec != nil && r.onResolved != nil {
		r.onResolved(*rec)
	}
}

// Abort stops all timers without recording an outcome. Used on shutdown.
func (r *Resolver) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == ResolverResolved {
		return
	}
	r.state = ResolverResolved
	r.stopTimers()
	r.logger.Info("punishment aborted")
}

// State returns the current state.
func (r *Resolver) State() ResolverState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Record returns the closed record, or nil while unresolved or after Abort.
func (r *Resolver) Record() *domain.PunishmentRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.record
}

// Snapshot returns the presentation view of this punishment.
func (r *Resolver) Snapshot() domain.ActivePunishment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.ActivePunishment{
		RecordID:    r.recordID,
		Violation:   r.violation,
		Spec:        r.spec,
		PresentedAt: r.presentedAt,
		State:       string(r.state),
	}
}

// PhraseMatches compares a transcript to the expected phrase ignoring case, punctuation and spacing.
func PhraseMatches(transcript, phrase string) bool {
	want := normalizePhrase(phrase)
	return want != "" && normalizePhrase(transcript) == want
}

func normalizePhrase(s string) string {
	s = cases.Fold().String(norm.NFKC.String(s))
	words := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	return strings.Join(words, " ")
}

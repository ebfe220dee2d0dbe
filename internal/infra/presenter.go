package infra

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/discipline/internal/domain"
)

// LogPresenter stands in for a rendering surface on headless hosts.
// It logs each punishment and keeps the one on screen for the control API.
type LogPresenter struct {
	mu      sync.Mutex
	current *domain.ActivePunishment
	logger  *zap.Logger
}

// NewLogPresenter creates a presenter that only logs.
func NewLogPresenter(logger *zap.Logger) *LogPresenter {
	return &LogPresenter{logger: logger}
}

func (p *LogPresenter) Present(ctx context.Context, a domain.ActivePunishment) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = &a
	channels := make([]string, 0, len(a.Spec.Channels))
	for _, ch := range a.Spec.Channels {
		channels = append(channels, string(ch))
	}
	p.logger.Warn("PUNISHMENT",
		zap.String("record", a.RecordID),
		zap.String("app", a.Violation.AppID),
		zap.String("violation", string(a.Violation.Type)),
		zap.String("type", string(a.Spec.Type)),
		zap.Int("intensity", a.Spec.Intensity),
		zap.Strings("escape_channels", channels))
	return nil
}

func (p *LogPresenter) Withdraw(ctx context.Context, recordID string, outcome domain.Outcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil && p.current.RecordID == recordID {
		p.current = nil
	}
	p.logger.Info("punishment withdrawn",
		zap.String("record", recordID),
		zap.String("outcome", string(outcome)))
	return nil
}

// Showing returns the punishment on screen, if any.
func (p *LogPresenter) Showing() (domain.ActivePunishment, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return domain.ActivePunishment{}, false
	}
	return *p.current, true
}

var _ domain.Presenter = (*LogPresenter)(nil)

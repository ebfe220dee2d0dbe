package infra

import (
	"time"

	"github.com/eliteGoblin/focusd/discipline/internal/domain"
)

// SystemClock implements domain.Clock with the wall clock.
type SystemClock struct{}

// NewSystemClock creates the production clock.
func NewSystemClock() SystemClock {
	return SystemClock{}
}

func (SystemClock) Now() time.Time {
	return time.Now()
}

func (SystemClock) AfterFunc(d time.Duration, f func()) domain.Timer {
	return time.AfterFunc(d, f)
}

var _ domain.Clock = SystemClock{}

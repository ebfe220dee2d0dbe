package fixtures

import (
	"context"
	"sync"

	"github.com/eliteGoblin/focusd/discipline/internal/domain"
)

// ScriptedObserver reports whatever app was last set, stamped with the clock's time.
type ScriptedObserver struct {
	mu    sync.Mutex
	clock domain.Clock
	app   string
	err   error
}

// NewScriptedObserver creates an observer with nothing in the foreground.
func NewScriptedObserver(clock domain.Clock) *ScriptedObserver {
	return &ScriptedObserver{clock: clock}
}

// SetForeground changes the reported app. Empty means nothing in front.
func (o *ScriptedObserver) SetForeground(app string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.app = app
	o.err = nil
}

// Fail makes subsequent Current calls return err.
func (o *ScriptedObserver) Fail(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

func (o *ScriptedObserver) Current(ctx context.Context) (domain.Sample, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return domain.Sample{}, false, o.err
	}
	if o.app == "" {
		return domain.Sample{}, false, nil
	}
	return domain.Sample{AppID: o.app, At: o.clock.Now()}, true, nil
}

var _ domain.ForegroundObserver = (*ScriptedObserver)(nil)

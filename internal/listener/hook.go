package listener

import (
	"time"

	hook "github.com/robotn/gohook"
)

// GlobalHook adapts the OS-wide input hook to HookSource.
type GlobalHook struct{}

// Start implements HookSource. All pointer presses are forwarded with
// their button id; button policy lives in the Listener.
func (GlobalHook) Start() (<-chan Click, error) {
	evs := hook.Start()
	out := make(chan Click, 64)
	go func() {
		defer close(out)
		for ev := range evs {
			if ev.Kind != hook.MouseDown {
				continue
			}
			c := Click{X: int(ev.X), Y: int(ev.Y), Button: ev.Button, When: ev.When}
			if c.When.IsZero() {
				c.When = time.Now()
			}
			select {
			case out <- c:
			default:
				// the hook callback must never block the OS input
				// thread; shed on a full buffer instead
			}
		}
	}()
	return out, nil
}

// Stop implements HookSource.
func (GlobalHook) Stop() { hook.End() }

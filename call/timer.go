package call

import (
	"sync"
	"time"
)

// ringTimer is the single cancellable timer the state machine owns.
// It is armed and disarmed only on state transitions; arming replaces
// any previous deadline.
type ringTimer struct {
	mu    sync.Mutex
	timer *time.Timer
}

func (t *ringTimer) Arm(d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(d, fn)
}

func (t *ringTimer) Disarm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

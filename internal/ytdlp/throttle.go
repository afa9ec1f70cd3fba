package ytdlp

import "time"

const DefaultThrottleWindow = 250 * time.Millisecond

// Throttle drops percent updates that repeat the previous integer percent
// within the window. Updates without a percent always pass.
type Throttle struct {
	window  time.Duration
	now     func() time.Time
	lastPct int
	lastAt  time.Time
}

func NewThrottle(window time.Duration) *Throttle {
	return &Throttle{window: window, now: time.Now, lastPct: -1}
}

func (t *Throttle) Allow(percent *float64) bool {
	if percent == nil {
		return true
	}
	now := t.now()
	p := int(*percent)
	if p == t.lastPct && now.Sub(t.lastAt) < t.window {
		return false
	}
	t.lastPct = p
	t.lastAt = now
	return true
}

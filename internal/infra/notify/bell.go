package notify

import (
	"io"
	"os"
	"sync"
	"time"
)

const (
	bell      = "\a"
	chimeStep = 150 * time.Millisecond
)

// Bell plays terminal bell cues: two rings for a finished download, one for
// a failure. It is silent when disabled.
type Bell struct {
	mu      sync.Mutex
	out     io.Writer
	enabled bool
	sleep   func(time.Duration)
}

// NewBell returns a Bell that writes to stderr.
func NewBell(enabled bool) *Bell {
	return NewBellWithWriter(os.Stderr, enabled)
}

func NewBellWithWriter(w io.Writer, enabled bool) *Bell {
	return &Bell{out: w, enabled: enabled, sleep: time.Sleep}
}

func (b *Bell) SetEnabled(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled = enabled
}

func (b *Bell) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

// Notify rings once for failure and twice for success. Write errors are
// ignored; a missing terminal is not worth failing a download over.
func (b *Bell) Notify(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.enabled {
		return
	}
	_, _ = io.WriteString(b.out, bell)
	if success {
		b.sleep(chimeStep)
		_, _ = io.WriteString(b.out, bell)
	}
}

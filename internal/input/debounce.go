package input

import "time"

// Signal debounces a raw boolean input. The stable value only changes after the
// raw line has held a new value for a full debounce window, so contact bounce
// within the window cannot produce more than one stable transition.
type Signal struct {
	window  time.Duration
	lastRaw bool
	flipAt  time.Time
	stable  bool
	primed  bool
}

// NewSignal creates a debouncer with the given settle window.
func NewSignal(window time.Duration) *Signal {
	return &Signal{window: window}
}

// Poll feeds one raw sample and returns the current stable value. The first
// sample seeds the stable value directly so boot state is not treated as a
// transition. Poll never blocks and has no side effects beyond internal state.
func (s *Signal) Poll(raw bool, now time.Time) bool {
	if !s.primed {
		s.primed = true
		s.lastRaw = raw
		s.stable = raw
		s.flipAt = now
		return s.stable
	}

	if raw != s.lastRaw {
		// Raw line moved; restart the settle timer.
		s.lastRaw = raw
		s.flipAt = now
		return s.stable
	}

	if raw != s.stable && now.Sub(s.flipAt) >= s.window {
		s.stable = raw
	}
	return s.stable
}

// Stable returns the last committed value without feeding a new sample.
func (s *Signal) Stable() bool {
	return s.stable
}

// Edge detects transitions on an already-debounced value. Edge detection lives
// with the consumer, not the debouncer, so several independent consumers can
// watch the same signal without stealing each other's edges.
type Edge struct {
	prev   bool
	cur    bool
	primed bool
}

// Update records the stable value for this poll cycle.
func (e *Edge) Update(stable bool) {
	if !e.primed {
		e.primed = true
		e.prev = stable
		e.cur = stable
		return
	}
	e.prev = e.cur
	e.cur = stable
}

// JustRose reports a low-to-high transition on the last Update.
func (e *Edge) JustRose() bool {
	return e.cur && !e.prev
}

// JustFell reports a high-to-low transition on the last Update.
func (e *Edge) JustFell() bool {
	return !e.cur && e.prev
}

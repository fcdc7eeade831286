package input

// Channel is one of the two capture modes the selector dial can point at.
type Channel int

const (
	ChannelAudio Channel = iota
	ChannelColor
)

func (c Channel) String() string {
	switch c {
	case ChannelAudio:
		return "AUDIO"
	case ChannelColor:
		return "COLOR"
	default:
		return "UNKNOWN"
	}
}

// Selector maps a noisy analog dial reading onto a discrete Channel. The
// current channel follows every sample; a "selection changed" notification is
// only raised when the reading moved more than the hysteresis distance since
// the previous sample, which keeps ADC jitter from spamming the state machine.
type Selector struct {
	midpoint   int
	hysteresis int
	last       int
	current    Channel
	primed     bool
}

// NewSelector creates a selector for a dial spanning [0, 2*midpoint). Readings
// below midpoint select ChannelAudio, the rest ChannelColor.
func NewSelector(midpoint, hysteresis int) *Selector {
	return &Selector{midpoint: midpoint, hysteresis: hysteresis}
}

// Sample feeds one raw reading. It always updates the current channel and
// reports whether the movement since the last sample exceeds the hysteresis
// distance. The seeding sample never reports a change.
func (s *Selector) Sample(raw int) bool {
	if raw < s.midpoint {
		s.current = ChannelAudio
	} else {
		s.current = ChannelColor
	}

	if !s.primed {
		s.primed = true
		s.last = raw
		return false
	}

	delta := raw - s.last
	s.last = raw
	if delta < 0 {
		delta = -delta
	}
	return delta > s.hysteresis
}

// Current returns the channel the dial points at as of the latest sample.
func (s *Selector) Current() Channel {
	return s.current
}

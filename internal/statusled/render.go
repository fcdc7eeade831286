// Package statusled translates controller state into the indicator's input
// vocabulary. Render is pure: the same state, progress and clock reading always
// produce the same frame, so tests can assert exact output. Pulsing patterns
// derive their phase from the supplied clock, never from a hidden one.
package statusled

import (
	"math"
	"time"

	"github.com/bottleworks/memorybottle/internal/input"
)

// State is the indicator-facing vocabulary. It is a superset of the controller
// states: the one-shot warning and transfer-outcome signals are states here
// even though the controller never dwells in them.
type State int

const (
	StateIdle State = iota
	StateSelecting
	StateRecording
	StateIncomplete
	StateReady
	StateTransferring
	StateError
	StateWarning        // pour attempted with fewer than two captures
	StateTransferRetry  // transfer failed, retry still permitted
	StateTransferAbort  // transfer abandoned after repeated failures
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateSelecting:
		return "SELECTING"
	case StateRecording:
		return "RECORDING"
	case StateIncomplete:
		return "INCOMPLETE"
	case StateReady:
		return "READY"
	case StateTransferring:
		return "TRANSFERRING"
	case StateError:
		return "ERROR"
	case StateWarning:
		return "WARNING"
	case StateTransferRetry:
		return "TRANSFER_RETRY"
	case StateTransferAbort:
		return "TRANSFER_ABORT"
	default:
		return "UNKNOWN"
	}
}

// Frame is one visual command for the indicator.
type Frame struct {
	State      State
	R, G, B    uint8
	Brightness uint8
}

// Indicator color table.
var (
	colorIdle    = [3]uint8{255, 255, 255}
	colorAudio   = [3]uint8{0, 0, 255}
	colorColor   = [3]uint8{255, 0, 0}
	colorPending = [3]uint8{255, 255, 0}
	colorReady   = [3]uint8{0, 255, 0}
	colorXfer    = [3]uint8{0, 255, 255}
	colorError   = [3]uint8{255, 0, 0}
	colorWarning = [3]uint8{255, 80, 0}
)

// Render computes the frame for a state. channel selects the blue/red hue for
// selecting and recording; progress (0..1) ramps recording brightness; now
// drives the pulse and blink phases.
func Render(state State, channel input.Channel, progress float64, now time.Time) Frame {
	secs := float64(now.UnixMilli()) / 1000.0

	switch state {
	case StateIdle:
		return frame(state, colorIdle, 25)

	case StateSelecting:
		return frame(state, channelColor(channel), 200)

	case StateRecording:
		if progress < 0 {
			progress = 0
		}
		if progress > 1 {
			progress = 1
		}
		return frame(state, channelColor(channel), uint8(55+progress*200))

	case StateIncomplete:
		return frame(state, colorPending, pulse(secs, 3))

	case StateReady:
		return frame(state, colorReady, 200)

	case StateTransferring:
		return frame(state, colorXfer, pulse(secs, 2))

	case StateError:
		if int64(secs*2)%2 == 0 {
			return frame(state, colorError, 255)
		}
		return frame(state, colorError, 0)

	case StateWarning:
		return frame(state, colorWarning, 255)

	case StateTransferRetry:
		return frame(state, colorPending, 255)

	case StateTransferAbort:
		return frame(state, colorError, 100)

	default:
		return frame(state, [3]uint8{0, 0, 0}, 0)
	}
}

func channelColor(c input.Channel) [3]uint8 {
	if c == input.ChannelColor {
		return colorColor
	}
	return colorAudio
}

// pulse maps a sine of the given angular rate onto 0..100 brightness.
func pulse(secs, rate float64) uint8 {
	return uint8((math.Sin(secs*rate) + 1) * 50)
}

func frame(state State, rgb [3]uint8, brightness uint8) Frame {
	return Frame{State: state, R: rgb[0], G: rgb[1], B: rgb[2], Brightness: brightness}
}

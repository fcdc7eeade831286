package statusled

import (
	"testing"
	"time"

	"github.com/bottleworks/memorybottle/internal/input"
)

func TestRender_Deterministic(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	for s := StateIdle; s <= StateTransferAbort; s++ {
		a := Render(s, input.ChannelAudio, 0.5, now)
		b := Render(s, input.ChannelAudio, 0.5, now)
		if a != b {
			t.Errorf("%v: identical inputs produced different frames: %+v vs %+v", s, a, b)
		}
	}
}

func TestRender_ChannelHue(t *testing.T) {
	now := time.Unix(0, 0)

	audio := Render(StateRecording, input.ChannelAudio, 0, now)
	if audio.B != 255 || audio.R != 0 {
		t.Errorf("audio recording frame = %+v, want blue", audio)
	}
	color := Render(StateRecording, input.ChannelColor, 0, now)
	if color.R != 255 || color.B != 0 {
		t.Errorf("color recording frame = %+v, want red", color)
	}
}

func TestRender_RecordingBrightnessTracksProgress(t *testing.T) {
	now := time.Unix(0, 0)

	start := Render(StateRecording, input.ChannelAudio, 0, now)
	end := Render(StateRecording, input.ChannelAudio, 1, now)
	if start.Brightness != 55 {
		t.Errorf("brightness at 0%% = %d, want 55", start.Brightness)
	}
	if end.Brightness != 255 {
		t.Errorf("brightness at 100%% = %d, want 255", end.Brightness)
	}

	// Out-of-range progress is clamped, not wrapped.
	over := Render(StateRecording, input.ChannelAudio, 1.7, now)
	if over.Brightness != 255 {
		t.Errorf("brightness at 170%% = %d, want 255", over.Brightness)
	}
}

func TestRender_PulseDerivesFromSuppliedClock(t *testing.T) {
	t0 := time.UnixMilli(0)
	t1 := time.UnixMilli(523)

	a := Render(StateIncomplete, input.ChannelAudio, 0, t0)
	b := Render(StateIncomplete, input.ChannelAudio, 0, t1)
	if a.Brightness == b.Brightness {
		t.Error("pulse brightness did not move with the supplied clock")
	}

	// Error blink: flips between half-second buckets.
	on := Render(StateError, input.ChannelAudio, 0, time.UnixMilli(0))
	off := Render(StateError, input.ChannelAudio, 0, time.UnixMilli(600))
	if on.Brightness == off.Brightness {
		t.Error("error blink did not alternate across half-second boundaries")
	}
}

func TestRender_DistinctRetryAndAbortSignals(t *testing.T) {
	now := time.Unix(0, 0)
	retry := Render(StateTransferRetry, input.ChannelAudio, 0, now)
	abort := Render(StateTransferAbort, input.ChannelAudio, 0, now)
	if retry == abort {
		t.Error("retry-pending and abandoned signals must be distinguishable")
	}
}

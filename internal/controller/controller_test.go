package controller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bottleworks/memorybottle/internal/ledger"
	"github.com/bottleworks/memorybottle/internal/sensor"
	"github.com/bottleworks/memorybottle/internal/statusled"
	"github.com/bottleworks/memorybottle/internal/wav"
)

// frameLog records every frame pushed to the indicator.
type frameLog struct {
	frames []statusled.Frame
}

func (f *frameLog) Show(fr statusled.Frame) {
	f.frames = append(f.frames, fr)
}

func (f *frameLog) count(s statusled.State) int {
	n := 0
	for _, fr := range f.frames {
		if fr.State == s {
			n++
		}
	}
	return n
}

// fakeUploader scripts transfer outcomes.
type fakeUploader struct {
	errs  []error
	calls int
}

func (u *fakeUploader) Upload(ctx context.Context, audioPath, colorPath string) error {
	u.calls++
	if len(u.errs) == 0 {
		return nil
	}
	err := u.errs[0]
	u.errs = u.errs[1:]
	return err
}

type rig struct {
	c   *Controller
	sim *sensor.Sim
	led *ledger.Ledger
	up  *fakeUploader
	lcd *frameLog
	now time.Time
}

func testConfig() Config {
	return Config{
		RecordingDuration:  300 * time.Millisecond,
		ColorDwell:         100 * time.Millisecond,
		Debounce:           20 * time.Millisecond,
		SelectingTimeout:   500 * time.Millisecond,
		PotChangeThreshold: 200,
		FailureThreshold:   3,
		SampleRate:         16000,
		BlockSamples:       256,
		StatusInterval:     50 * time.Millisecond,
		Interruptible:      true,
	}
}

func newRig(t *testing.T, cfg Config) *rig {
	t.Helper()
	led, err := ledger.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	sim := sensor.NewSim()
	up := &fakeUploader{}
	lcd := &frameLog{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &rig{
		c:   New(cfg, sim, led, up, lcd, log),
		sim: sim,
		led: led,
		up:  up,
		lcd: lcd,
		now: time.Now(),
	}
}

// step advances the clock and polls once.
func (r *rig) step(d time.Duration) {
	r.now = r.now.Add(d)
	r.c.Poll(r.now)
}

// settle polls long enough for a raw change to pass debounce.
func (r *rig) settle() {
	for i := 0; i < 5; i++ {
		r.step(10 * time.Millisecond)
	}
}

// recordAudio runs a full audio session: open cap, let it run out, close cap.
func (r *rig) recordAudio(t *testing.T) {
	t.Helper()
	r.sim.SetDial(100)
	r.settle()
	r.sim.SetLid(true)
	r.settle()
	if r.c.State() != StateRecording {
		t.Fatalf("state after cap open = %v, want RECORDING", r.c.State())
	}
	for i := 0; i < 60 && r.c.State() == StateRecording; i++ {
		r.step(10 * time.Millisecond)
	}
	r.sim.SetLid(false)
	r.settle()
}

// recordColor runs a full color session.
func (r *rig) recordColor(t *testing.T) {
	t.Helper()
	r.sim.SetDial(4000)
	r.settle()
	r.sim.SetLid(true)
	r.settle()
	if r.c.State() != StateRecording {
		t.Fatalf("state after cap open = %v, want RECORDING", r.c.State())
	}
	for i := 0; i < 40 && r.c.State() == StateRecording; i++ {
		r.step(10 * time.Millisecond)
	}
	r.sim.SetLid(false)
	r.settle()
}

func TestController_BothSessionsReachReady(t *testing.T) {
	r := newRig(t, testConfig())

	r.recordAudio(t)
	if r.c.State() != StateIncomplete {
		t.Fatalf("after audio: state = %v, want INCOMPLETE", r.c.State())
	}
	if !r.led.HasAudio() || r.led.HasColor() {
		t.Fatalf("after audio: ledger = audio:%v color:%v", r.led.HasAudio(), r.led.HasColor())
	}

	r.recordColor(t)
	if r.c.State() != StateReady {
		t.Fatalf("after color: state = %v, want READY", r.c.State())
	}
	if !r.led.HasAudio() || !r.led.HasColor() {
		t.Fatalf("after color: ledger = audio:%v color:%v, want both", r.led.HasAudio(), r.led.HasColor())
	}
}

func TestController_DialMovementOpensSelectingAndTimesOut(t *testing.T) {
	r := newRig(t, testConfig())

	r.step(10 * time.Millisecond) // seed
	r.sim.SetDial(3000)
	r.step(10 * time.Millisecond)
	if r.c.State() != StateSelecting {
		t.Fatalf("state after dial turn = %v, want SELECTING", r.c.State())
	}
	if r.c.Selected().String() != "COLOR" {
		t.Errorf("selected = %v, want COLOR", r.c.Selected())
	}

	// Quiet dial: Selecting times out back to Idle.
	for i := 0; i < 60; i++ {
		r.step(10 * time.Millisecond)
	}
	if r.c.State() != StateIdle {
		t.Errorf("state after timeout = %v, want IDLE", r.c.State())
	}

	// The timeout lands on Idle even with a capture on file.
	r.recordAudio(t)
	if r.c.State() != StateIncomplete {
		t.Fatalf("after audio: state = %v, want INCOMPLETE", r.c.State())
	}
	r.sim.SetDial(3000)
	r.settle()
	if r.c.State() != StateSelecting {
		t.Fatalf("state after dial turn = %v, want SELECTING", r.c.State())
	}
	for i := 0; i < 80; i++ {
		r.step(10 * time.Millisecond)
	}
	if r.c.State() != StateIdle {
		t.Errorf("state after timeout with one capture = %v, want IDLE", r.c.State())
	}
	if !r.led.HasAudio() {
		t.Error("timeout must not discard the stored capture")
	}
}

func TestController_SelectorMovementResetsSelectingTimeout(t *testing.T) {
	r := newRig(t, testConfig())

	r.step(10 * time.Millisecond)
	r.sim.SetDial(3000)
	r.step(10 * time.Millisecond)

	// Keep nudging the dial past the hysteresis distance every 400ms; the
	// 500ms timeout must never fire.
	for i := 0; i < 4; i++ {
		for j := 0; j < 40; j++ {
			r.step(10 * time.Millisecond)
		}
		if i%2 == 0 {
			r.sim.SetDial(500)
		} else {
			r.sim.SetDial(3000)
		}
		r.step(10 * time.Millisecond)
		if r.c.State() != StateSelecting {
			t.Fatalf("nudge %d: state = %v, want SELECTING", i, r.c.State())
		}
	}
}

func TestController_AudioAutoStopsAtDurationLimit(t *testing.T) {
	r := newRig(t, testConfig())

	r.sim.SetDial(100)
	r.settle()
	r.sim.SetLid(true)
	r.settle()

	// Cap stays open well past the 300ms limit.
	for i := 0; i < 60; i++ {
		r.step(10 * time.Millisecond)
	}
	if r.c.State() != StateIncomplete {
		t.Fatalf("state = %v, want INCOMPLETE after auto-stop", r.c.State())
	}
	if !r.led.HasAudio() {
		t.Error("hasAudio not set after auto-stopped session")
	}

	h, err := wav.ReadHeader(r.led.AudioPath())
	if err != nil {
		t.Fatalf("audio artifact unreadable: %v", err)
	}
	if h.DataBytes == 0 {
		t.Error("audio artifact has no data")
	}
}

func TestController_ColorImmediateCapClose(t *testing.T) {
	r := newRig(t, testConfig())

	r.sim.SetColor(9, 8, 7)
	r.sim.SetDial(4000)
	r.settle()
	r.sim.SetLid(true)
	r.settle()
	// Close immediately, well before the dwell elapses.
	r.sim.SetLid(false)
	r.settle()

	if !r.led.HasColor() {
		t.Fatal("hasColor not set after immediate cap close")
	}
	if r.c.State() != StateIncomplete {
		t.Errorf("state = %v, want INCOMPLETE", r.c.State())
	}
}

func TestController_RecordingSameChannelTwiceOverwrites(t *testing.T) {
	r := newRig(t, testConfig())

	r.recordAudio(t)
	first, err := wav.ReadHeader(r.led.AudioPath())
	if err != nil {
		t.Fatalf("first artifact unreadable: %v", err)
	}

	r.recordAudio(t)
	if r.led.Count() != 1 {
		t.Errorf("ledger count after re-recording audio = %d, want 1", r.led.Count())
	}
	second, err := wav.ReadHeader(r.led.AudioPath())
	if err != nil {
		t.Fatalf("second artifact unreadable: %v", err)
	}
	// The second session replaced the first; both are standalone valid files.
	if second.DataBytes == 0 || first.DataBytes == 0 {
		t.Error("expected non-empty artifacts from both sessions")
	}
}

func TestController_PourWithIncompleteBottleWarnsOnce(t *testing.T) {
	r := newRig(t, testConfig())

	r.recordAudio(t) // one capture only
	stateBefore := r.c.State()

	// Tilt, then open the cap: a botched pour.
	r.sim.SetTilted(true)
	r.settle()
	r.sim.SetLid(true)
	r.settle()
	for i := 0; i < 10; i++ {
		r.step(10 * time.Millisecond)
	}

	if got := r.lcd.count(statusled.StateWarning); got != 1 {
		t.Errorf("warning signals = %d, want exactly 1", got)
	}
	if r.c.State() != stateBefore {
		t.Errorf("state = %v, want unchanged %v", r.c.State(), stateBefore)
	}
	if r.led.Count() != 1 {
		t.Errorf("ledger count = %d, want unchanged 1", r.led.Count())
	}
}

func TestController_PourGestureTransfersAndClears(t *testing.T) {
	r := newRig(t, testConfig())

	r.recordAudio(t)
	r.recordColor(t)

	r.sim.SetLid(true)
	r.sim.SetTilted(true)
	r.settle()

	if r.up.calls != 1 {
		t.Fatalf("upload calls = %d, want 1", r.up.calls)
	}
	if r.c.State() != StateIdle {
		t.Errorf("state after successful pour = %v, want IDLE", r.c.State())
	}
	if r.led.Count() != 0 {
		t.Errorf("ledger count after pour = %d, want 0", r.led.Count())
	}
}

func TestController_TransferFailureRetriesThenAbandons(t *testing.T) {
	r := newRig(t, testConfig())

	r.up.errs = []error{
		errors.New("collector unreachable"),
		errors.New("collector unreachable"),
		errors.New("collector unreachable"),
	}

	r.recordAudio(t)
	r.recordColor(t)

	// Three separate pour gestures, each one failing.
	for attempt := 1; attempt <= 3; attempt++ {
		r.sim.SetLid(true)
		r.sim.SetTilted(true)
		r.settle()
		r.sim.SetTilted(false)
		r.sim.SetLid(false)
		r.settle()
	}

	if r.up.calls != 3 {
		t.Errorf("upload attempts = %d, want 3", r.up.calls)
	}
	if r.c.State() != StateIdle {
		t.Errorf("state after third failure = %v, want IDLE", r.c.State())
	}
	if r.led.Count() != 0 {
		t.Errorf("ledger count after abandon = %d, want 0 (force-cleared)", r.led.Count())
	}
	if r.c.Failures() != 0 {
		t.Errorf("failure counter = %d, want reset to 0", r.c.Failures())
	}
	if r.lcd.count(statusled.StateTransferRetry) != 2 {
		t.Errorf("retry signals = %d, want 2", r.lcd.count(statusled.StateTransferRetry))
	}
	if r.lcd.count(statusled.StateTransferAbort) != 1 {
		t.Errorf("abandon signals = %d, want 1", r.lcd.count(statusled.StateTransferAbort))
	}
}

func TestController_FewerThanThreeFailuresKeepsReady(t *testing.T) {
	r := newRig(t, testConfig())

	r.up.errs = []error{errors.New("timeout")}

	r.recordAudio(t)
	r.recordColor(t)

	var changes []Snapshot
	r.c.OnChange(func(s Snapshot) { changes = append(changes, s) })

	r.sim.SetLid(true)
	r.sim.SetTilted(true)
	r.settle()
	// Back off the gesture so the next tilt reads as a fresh pour.
	r.sim.SetTilted(false)
	r.settle()

	if r.c.State() != StateReady {
		t.Errorf("state after one failure = %v, want READY", r.c.State())
	}
	if r.led.Count() != 2 {
		t.Errorf("ledger count = %d, want 2 (artifacts kept for retry)", r.led.Count())
	}
	if r.c.Failures() != 1 {
		t.Errorf("failure counter = %d, want 1", r.c.Failures())
	}

	// Watchers see the return to Ready with the bumped failure count, not a
	// feed stuck on TRANSFERRING.
	if len(changes) == 0 {
		t.Fatal("no snapshots delivered for the failed transfer")
	}
	last := changes[len(changes)-1]
	if last.State != "READY" || last.Failures != 1 {
		t.Errorf("last snapshot = %+v, want READY with 1 failure", last)
	}

	// Retrying succeeds and drains everything.
	r.sim.SetTilted(true)
	r.settle()
	if r.c.State() != StateIdle || r.led.Count() != 0 {
		t.Errorf("after retry: state = %v count = %d, want IDLE/0", r.c.State(), r.led.Count())
	}
}

func TestController_BootsFromPersistedLedger(t *testing.T) {
	dir := t.TempDir()
	led, err := ledger.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := led.SetAudio(true); err != nil {
		t.Fatal(err)
	}

	// Power cycle: fresh ledger and controller over the same directory.
	led2, err := ledger.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := New(testConfig(), sensor.NewSim(), led2, &fakeUploader{}, &frameLog{}, log)

	if c.State() != StateIncomplete {
		t.Errorf("boot state with one capture = %v, want INCOMPLETE", c.State())
	}
}

func TestController_ColorSensorFailureIsTerminal(t *testing.T) {
	r := newRig(t, testConfig())

	r.sim.FailColor(errors.New("sensor unavailable"))
	r.sim.SetDial(4000)
	r.settle()
	r.sim.SetLid(true)
	r.settle()
	for i := 0; i < 30 && r.c.State() == StateRecording; i++ {
		r.step(10 * time.Millisecond)
	}

	if r.c.State() != StateError {
		t.Fatalf("state = %v, want ERROR", r.c.State())
	}
	if r.led.HasColor() {
		t.Error("failed session must not mark hasColor")
	}

	// Error is terminal: sensor activity does nothing.
	r.sim.SetLid(false)
	r.settle()
	r.sim.SetLid(true)
	r.settle()
	if r.c.State() != StateError {
		t.Errorf("state left ERROR without a reset: %v", r.c.State())
	}

	// Reset is the way out.
	if err := r.c.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if r.c.State() != StateIdle {
		t.Errorf("state after reset = %v, want IDLE", r.c.State())
	}
}

func TestController_SnapshotReflectsState(t *testing.T) {
	r := newRig(t, testConfig())

	var changes []Snapshot
	r.c.OnChange(func(s Snapshot) { changes = append(changes, s) })

	r.recordAudio(t)
	if len(changes) == 0 {
		t.Fatal("no snapshots delivered")
	}
	last := changes[len(changes)-1]
	if last.State != "INCOMPLETE" || !last.HasAudio {
		t.Errorf("last snapshot = %+v, want INCOMPLETE with audio", last)
	}
}

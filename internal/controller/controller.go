// Package controller owns the bottle's mode and sequences capture and
// transfer sessions. All state lives in the Controller struct and is advanced
// exclusively through Poll, so every transition is unit-testable by feeding
// scripted sensor values and clock readings. Errors never cross the poll
// boundary as panics: session outcomes are values the state machine consumes.
package controller

import (
	"context"
	"log/slog"
	"time"

	"github.com/bottleworks/memorybottle/internal/capture"
	"github.com/bottleworks/memorybottle/internal/input"
	"github.com/bottleworks/memorybottle/internal/ledger"
	"github.com/bottleworks/memorybottle/internal/sensor"
	"github.com/bottleworks/memorybottle/internal/statusled"
)

// State is the controller's mode. Exactly one is active at a time.
type State int

const (
	StateIdle State = iota
	StateSelecting
	StateRecording
	StateIncomplete
	StateReady
	StateTransferring
	StateError
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
	default:
		return "UNKNOWN"
	}
}

// Config holds the recorder tunables, one value per firmware variant knob.
type Config struct {
	RecordingDuration  time.Duration
	ColorDwell         time.Duration
	Debounce           time.Duration
	SelectingTimeout   time.Duration
	PotChangeThreshold int
	FailureThreshold   int
	SampleRate         int
	BlockSamples       int
	StatusInterval     time.Duration
	Interruptible      bool
}

// potMidpoint splits the 12-bit dial range between the two channels.
const potMidpoint = 2048

// Uploader is the transfer dependency.
type Uploader interface {
	Upload(ctx context.Context, audioPath, colorPath string) error
}

// FrameSink receives every rendered indicator frame.
type FrameSink interface {
	Show(f statusled.Frame)
}

// Snapshot is the externally visible controller state, broadcast to the
// harness state feed on every change.
type Snapshot struct {
	State    string  `json:"state"`
	Channel  string  `json:"channel"`
	HasAudio bool    `json:"has_audio"`
	HasColor bool    `json:"has_color"`
	Failures int     `json:"failures"`
	Progress float64 `json:"progress"`
}

// Controller is the recorder state machine.
type Controller struct {
	cfg      Config
	log      *slog.Logger
	sensors  sensor.Bank
	ledger   *ledger.Ledger
	uploader Uploader
	sink     FrameSink
	onChange func(Snapshot)

	state    State
	selected input.Channel

	lid      *input.Signal
	tilt     *input.Signal
	lidEdge  input.Edge
	selector *input.Selector

	selectingSince time.Time
	failCount      int
	lastErr        error
	pourHeld       bool

	audio *capture.AudioSession
	color *capture.ColorSession
}

// New builds a controller. The initial state follows the reloaded ledger so a
// power cycle does not lose capture progress: zero captures boots Idle, one
// boots Incomplete, two boots Ready.
func New(cfg Config, sensors sensor.Bank, led *ledger.Ledger, uploader Uploader, sink FrameSink, log *slog.Logger) *Controller {
	if cfg.BlockSamples <= 0 {
		cfg.BlockSamples = 512
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = 500 * time.Millisecond
	}

	c := &Controller{
		cfg:      cfg,
		log:      log,
		sensors:  sensors,
		ledger:   led,
		uploader: uploader,
		sink:     sink,
		lid:      input.NewSignal(cfg.Debounce),
		tilt:     input.NewSignal(cfg.Debounce),
		selector: input.NewSelector(potMidpoint, cfg.PotChangeThreshold),
	}

	switch led.Count() {
	case 1:
		c.state = StateIncomplete
	case 2:
		c.state = StateReady
	default:
		c.state = StateIdle
	}
	log.Info("controller initialized", "state", c.state, "has_audio", led.HasAudio(), "has_color", led.HasColor())
	return c
}

// OnChange installs a hook invoked after every state transition.
func (c *Controller) OnChange(fn func(Snapshot)) {
	c.onChange = fn
}

// State returns the current mode.
func (c *Controller) State() State {
	return c.state
}

// Selected returns the channel the dial currently points at.
func (c *Controller) Selected() input.Channel {
	return c.selected
}

// Failures returns the consecutive transfer failure count.
func (c *Controller) Failures() int {
	return c.failCount
}

// LastError returns the fault that put the controller into Error, if any.
func (c *Controller) LastError() error {
	return c.lastErr
}

// Snapshot captures the externally visible state.
func (c *Controller) Snapshot(now time.Time) Snapshot {
	return Snapshot{
		State:    c.state.String(),
		Channel:  c.selected.String(),
		HasAudio: c.ledger.HasAudio(),
		HasColor: c.ledger.HasColor(),
		Failures: c.failCount,
		Progress: c.progress(now),
	}
}

// Poll runs one control-loop iteration: sample inputs, update debouncers,
// advance the state machine, render the indicator.
func (c *Controller) Poll(now time.Time) {
	lidOpen := c.lid.Poll(c.sensors.LidOpen(), now)
	c.lidEdge.Update(lidOpen)
	tilted := c.tilt.Poll(c.sensors.Tilted(), now)
	dialMoved := c.selector.Sample(c.sensors.Dial())

	// The selection is frozen while a session owns the artifacts.
	if c.state != StateRecording && c.state != StateTransferring {
		c.selected = c.selector.Current()
	}

	// The pour gesture triggers on its onset, not continuously while held:
	// after a failed transfer the user pours again to retry instead of the
	// loop re-firing every poll.
	pourGesture := lidOpen && tilted
	pourStarted := pourGesture && !c.pourHeld
	c.pourHeld = pourGesture

	prev := c.state

	switch c.state {
	case StateIdle, StateIncomplete:
		c.handleArmed(now, dialMoved, tilted)

	case StateSelecting:
		c.handleSelecting(now, dialMoved, tilted)

	case StateRecording:
		c.handleRecording(now)

	case StateReady:
		c.handleReady(now, pourStarted)

	case StateError:
		// Terminal until reset; the loop keeps running so the indicator keeps
		// blinking the fault pattern.
	}

	c.sink.Show(statusled.Render(c.ledState(), c.selected, c.progress(now), now))

	if c.state != prev {
		c.log.Info("state changed", "from", prev, "to", c.state)
		c.notify(now)
	}
}

// handleArmed covers Idle and Incomplete, which react identically: dial
// movement opens Selecting, a lid-open edge starts a session for the current
// channel (overwriting that channel's prior artifact in Incomplete).
func (c *Controller) handleArmed(now time.Time, dialMoved, tilted bool) {
	if dialMoved {
		c.state = StateSelecting
		c.selectingSince = now
		return
	}
	if c.lidEdge.JustRose() {
		c.startSession(now, tilted)
	}
}

func (c *Controller) handleSelecting(now time.Time, dialMoved, tilted bool) {
	if c.lidEdge.JustRose() {
		c.startSession(now, tilted)
		return
	}
	if dialMoved {
		// Keep the window open while the user is still turning the dial.
		c.selectingSince = now
		return
	}
	if now.Sub(c.selectingSince) >= c.cfg.SelectingTimeout {
		c.state = StateIdle
	}
}

// startSession begins a capture for the selected channel. A lid-open while
// tilted with an incomplete bottle is a botched pour, not a recording: it gets
// one warning signal and no transition.
func (c *Controller) startSession(now time.Time, tilted bool) {
	if tilted && c.ledger.Count() < 2 {
		c.log.Warn("pour attempted with incomplete bottle", "captured", c.ledger.Count())
		c.sink.Show(statusled.Render(statusled.StateWarning, c.selected, 0, now))
		return
	}

	switch c.selected {
	case input.ChannelAudio:
		s, err := capture.StartAudio(c.ledger.AudioPath(), c.sensors, capture.AudioConfig{
			SampleRate:     c.cfg.SampleRate,
			Duration:       c.cfg.RecordingDuration,
			BlockSamples:   c.cfg.BlockSamples,
			Interruptible:  c.cfg.Interruptible,
			StatusInterval: c.cfg.StatusInterval,
		}, c.log, now)
		if err != nil {
			c.fail(err)
			return
		}
		c.audio = s

	case input.ChannelColor:
		c.color = capture.StartColor(c.ledger.ColorPath(), c.sensors, capture.ColorConfig{
			Dwell: c.cfg.ColorDwell,
		}, c.log, now)
	}

	c.state = StateRecording
}

func (c *Controller) handleRecording(now time.Time) {
	lidClosed := c.lidEdge.JustFell()

	var done bool
	var err error
	var mark func(bool) error

	switch {
	case c.audio != nil:
		done, err = c.audio.Tick(now, lidClosed)
		mark = c.ledger.SetAudio
	case c.color != nil:
		done, err = c.color.Tick(now, lidClosed)
		mark = c.ledger.SetColor
	default:
		// No session object means the entry path failed; treat as a fault.
		c.fail(errInternal("recording state without a session"))
		return
	}

	if !done {
		return
	}
	c.audio = nil
	c.color = nil

	if err != nil {
		// A partial or unwritable artifact must never be presented as valid.
		c.fail(err)
		return
	}
	if err := mark(true); err != nil {
		c.fail(err)
		return
	}

	if c.ledger.Count() >= 2 {
		c.state = StateReady
	} else {
		c.state = StateIncomplete
	}
}

func (c *Controller) handleReady(now time.Time, pourStarted bool) {
	if !pourStarted {
		return
	}

	// Pour gesture. The transfer is blocking relative to the loop; show the
	// transferring pattern before committing to the network.
	c.state = StateTransferring
	c.notify(now)
	c.sink.Show(statusled.Render(statusled.StateTransferring, c.selected, 0, now))

	err := c.uploader.Upload(context.Background(), c.ledger.AudioPath(), c.ledger.ColorPath())
	if err == nil {
		c.failCount = 0
		if cerr := c.ledger.Clear(); cerr != nil {
			c.fail(cerr)
			return
		}
		c.log.Info("transfer complete, memory poured")
		c.state = StateIdle
		return
	}

	c.failCount++
	c.log.Warn("transfer failed", "error", err, "attempt", c.failCount, "limit", c.cfg.FailureThreshold)

	if c.failCount >= c.cfg.FailureThreshold {
		// Stop holding data the collector keeps refusing: abandon and reset.
		c.sink.Show(statusled.Render(statusled.StateTransferAbort, c.selected, 0, now))
		if cerr := c.ledger.Clear(); cerr != nil {
			c.fail(cerr)
			return
		}
		c.failCount = 0
		c.log.Warn("transfer abandoned after repeated failures, memory cleared")
		c.state = StateIdle
		return
	}

	c.sink.Show(statusled.Render(statusled.StateTransferRetry, c.selected, 0, now))
	c.state = StateReady
	// Poll's end-of-loop notify only fires on a state change; Ready to Ready
	// would leave watchers stuck on TRANSFERRING with a stale failure count.
	c.notify(now)
}

// Reset clears the ledger and returns to Idle. It is the only way out of
// Error short of a power cycle.
func (c *Controller) Reset() error {
	if err := c.ledger.Clear(); err != nil {
		return err
	}
	c.failCount = 0
	c.lastErr = nil
	c.audio = nil
	c.color = nil
	c.state = StateIdle
	c.log.Info("controller reset")
	return nil
}

// Run drives Poll from a ticker until ctx is canceled.
func (c *Controller) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("control loop stopping")
			return
		case now := <-ticker.C:
			c.Poll(now)
		}
	}
}

func (c *Controller) fail(err error) {
	c.log.Error("entering error state", "error", err)
	c.lastErr = err
	c.audio = nil
	c.color = nil
	c.state = StateError
}

func (c *Controller) progress(now time.Time) float64 {
	switch {
	case c.audio != nil:
		return c.audio.Progress(now)
	case c.color != nil:
		return c.color.Progress(now)
	default:
		return 0
	}
}

func (c *Controller) ledState() statusled.State {
	switch c.state {
	case StateSelecting:
		return statusled.StateSelecting
	case StateRecording:
		return statusled.StateRecording
	case StateIncomplete:
		return statusled.StateIncomplete
	case StateReady:
		return statusled.StateReady
	case StateTransferring:
		return statusled.StateTransferring
	case StateError:
		return statusled.StateError
	default:
		return statusled.StateIdle
	}
}

func (c *Controller) notify(now time.Time) {
	if c.onChange != nil {
		c.onChange(c.Snapshot(now))
	}
}

type errInternal string

func (e errInternal) Error() string { return string(e) }

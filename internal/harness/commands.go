package harness

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bottleworks/memorybottle/internal/controller"
)

// ErrQuit is returned by Execute when the operator asks to exit.
var ErrQuit = errors.New("quit")

// dial presets matching the two channel bands.
const (
	dialMicPreset   = 0
	dialColorPreset = 3000
)

// Execute runs a single operator command against the simulated bottle and
// returns the text to print. Sensor commands change the simulated inputs;
// the control loop picks them up on its next poll.
func (h *Harness) Execute(line string) (string, error) {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(line)))
	if len(parts) == 0 {
		return "", nil
	}

	switch parts[0] {
	case "cap":
		if len(parts) < 2 {
			return "Usage: cap open | cap close", nil
		}
		switch parts[1] {
		case "open":
			h.sim.SetLid(true)
			return "Cap opened", nil
		case "close":
			h.sim.SetLid(false)
			return "Cap closed", nil
		default:
			return fmt.Sprintf("Unknown cap command: %s", parts[1]), nil
		}

	case "tilt":
		h.sim.SetTilted(true)
		return "Bottle tilted", nil

	case "upright":
		h.sim.SetTilted(false)
		return "Bottle upright", nil

	case "pot":
		if len(parts) < 2 {
			return "Usage: pot <0-4095> | pot mic | pot color", nil
		}
		switch parts[1] {
		case "mic":
			h.sim.SetDial(dialMicPreset)
			return "Potentiometer -> microphone", nil
		case "color":
			h.sim.SetDial(dialColorPreset)
			return "Potentiometer -> color sensor", nil
		default:
			v, err := strconv.Atoi(parts[1])
			if err != nil || v < 0 || v > 4095 {
				return fmt.Sprintf("Invalid pot value: %s (want 0-4095)", parts[1]), nil
			}
			h.sim.SetDial(v)
			return fmt.Sprintf("Potentiometer = %d", v), nil
		}

	case "color":
		if len(parts) < 4 {
			return "Usage: color <r> <g> <b>", nil
		}
		rgb := make([]uint8, 3)
		for i, p := range parts[1:4] {
			v, err := strconv.Atoi(p)
			if err != nil || v < 0 || v > 255 {
				return fmt.Sprintf("Invalid RGB value: %s (want 0-255)", p), nil
			}
			rgb[i] = uint8(v)
		}
		h.sim.SetColor(rgb[0], rgb[1], rgb[2])
		return fmt.Sprintf("Color sensor = (%d,%d,%d)", rgb[0], rgb[1], rgb[2]), nil

	case "status":
		return h.statusText(), nil

	case "files":
		return h.filesText(), nil

	case "reset":
		if err := h.ctrl.Reset(); err != nil {
			return "", fmt.Errorf("reset: %w", err)
		}
		h.sim.SetLid(false)
		h.sim.SetTilted(false)
		h.sim.SetDial(0)
		return "System reset complete", nil

	case "transfer":
		// A forced transfer is just the pour gesture injected on the
		// simulated sensors; the state machine does the rest.
		if h.ctrl.State() != controller.StateReady {
			return fmt.Sprintf("Cannot transfer in %s state (need READY with both recordings)", h.ctrl.State()), nil
		}
		h.sim.SetLid(true)
		h.sim.SetTilted(true)
		return "Pour gesture injected (cap open + tilt)", nil

	case "help":
		return helpText, nil

	case "quit", "exit":
		return "Exiting simulator", ErrQuit

	default:
		return fmt.Sprintf("Unknown command: %s (type 'help' for the list)", parts[0]), nil
	}
}

func (h *Harness) statusText() string {
	snap := h.ctrl.Snapshot(time.Now())
	var b strings.Builder
	fmt.Fprintf(&b, "State:           %s\n", snap.State)
	fmt.Fprintf(&b, "Selected sensor: %s\n", snap.Channel)
	fmt.Fprintf(&b, "Cap:             %s\n", onOff(h.sim.LidOpen(), "OPEN", "CLOSED"))
	fmt.Fprintf(&b, "Tilt:            %s\n", onOff(h.sim.Tilted(), "TILTED", "UPRIGHT"))
	fmt.Fprintf(&b, "Pot value:       %d / 4095\n", h.sim.Dial())
	fmt.Fprintf(&b, "Has audio:       %s\n", onOff(snap.HasAudio, "YES", "NO"))
	fmt.Fprintf(&b, "Has color:       %s\n", onOff(snap.HasColor, "YES", "NO"))
	fmt.Fprintf(&b, "Transfer fails:  %d", snap.Failures)
	return b.String()
}

func (h *Harness) filesText() string {
	entries, err := os.ReadDir(h.storageDir)
	if err != nil {
		return fmt.Sprintf("Cannot read storage: %v", err)
	}
	if len(entries) == 0 {
		return "Storage is empty"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Files in %s:", h.storageDir)
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "\n  %-20s %10d bytes", e.Name(), info.Size())
	}
	return b.String()
}

func onOff(v bool, yes, no string) string {
	if v {
		return yes
	}
	return no
}

const helpText = `Sensor commands:
  cap open              Open the cap
  cap close             Close the cap
  tilt                  Tilt the bottle
  upright               Make the bottle upright
  pot <0-4095>          Set the potentiometer
  pot mic               Select the microphone
  pot color             Select the color sensor
  color <r> <g> <b>     Set the color sensor reading

Control commands:
  status                Show state and sensor values
  files                 List stored artifacts
  reset                 Clear memory and return to IDLE
  transfer              Inject a pour gesture (READY only)
  help                  Show this help
  quit / exit           Leave the simulator`

package sensor

import (
	"math"
	"sync"
)

// Sim is an in-memory sensor bank driven by override commands. The harness
// mutates it from the command reader goroutine while the control loop polls
// it, hence the mutex.
type Sim struct {
	mu      sync.Mutex
	lidOpen bool
	tilted  bool
	dial    int
	color   [3]uint8
	colErr  error

	phase float64
	tone  float64 // synthetic mic tone frequency in cycles per sample
}

// NewSim returns a bank in the boot posture: cap on, upright, dial at zero,
// and the simulator's default color reading.
func NewSim() *Sim {
	return &Sim{
		color: [3]uint8{128, 64, 200},
		tone:  440.0 / 16000.0,
	}
}

// SetLid overrides the cap switch.
func (s *Sim) SetLid(open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lidOpen = open
}

// SetTilted overrides the tilt switch.
func (s *Sim) SetTilted(tilted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tilted = tilted
}

// SetDial overrides the potentiometer reading.
func (s *Sim) SetDial(v int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v < 0 {
		v = 0
	}
	if v > 4095 {
		v = 4095
	}
	s.dial = v
}

// SetColor overrides the color sensor reading.
func (s *Sim) SetColor(r, g, b uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.color = [3]uint8{r, g, b}
	s.colErr = nil
}

// FailColor makes ReadColor return err until the next SetColor.
func (s *Sim) FailColor(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.colErr = err
}

func (s *Sim) LidOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lidOpen
}

func (s *Sim) Tilted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tilted
}

func (s *Sim) Dial() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dial
}

// ReadMic synthesizes a 440 Hz tone around the ADC midpoint so recorded
// artifacts contain an audible, verifiable waveform instead of silence.
func (s *Sim) ReadMic() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase += s.tone
	if s.phase >= 1 {
		s.phase -= 1
	}
	return 2048 + int(1024*math.Sin(2*math.Pi*s.phase))
}

func (s *Sim) ReadColor() (uint8, uint8, uint8, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.colErr != nil {
		return 0, 0, 0, s.colErr
	}
	return s.color[0], s.color[1], s.color[2], nil
}

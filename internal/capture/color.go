package capture

import (
	"fmt"
	"log/slog"
	"os"
	"time"
)

// ColorSensor is the color sampling dependency, satisfied by sensor.Bank.
type ColorSensor interface {
	ReadColor() (r, g, b uint8, err error)
}

// ColorConfig holds the tunables of one color session.
type ColorConfig struct {
	// Dwell is how long the session waits before sampling, letting the sensor
	// settle and giving the session a visible duration on the indicator.
	Dwell time.Duration
}

// ColorSession waits out the dwell period and then takes exactly one reading.
type ColorSession struct {
	cfg    ColorConfig
	sensor ColorSensor
	path   string
	log    *slog.Logger
	start  time.Time
	done   bool
}

// StartColor begins a color session writing to path.
func StartColor(path string, sensor ColorSensor, cfg ColorConfig, log *slog.Logger, now time.Time) *ColorSession {
	log.Info("color session started", "path", path, "dwell", cfg.Dwell)
	return &ColorSession{cfg: cfg, sensor: sensor, path: path, log: log, start: now}
}

// Tick advances the session. Closing the lid ends the dwell early; either way
// the sensor is read exactly once, at session end.
func (s *ColorSession) Tick(now time.Time, lidClosed bool) (bool, error) {
	if s.done {
		return true, nil
	}
	if !lidClosed && now.Sub(s.start) < s.cfg.Dwell {
		return false, nil
	}
	s.done = true

	r, g, b, err := s.sensor.ReadColor()
	if err != nil {
		return true, fmt.Errorf("read color sensor: %w", err)
	}
	record := fmt.Sprintf("%d,%d,%d\n", r, g, b)
	if err := os.WriteFile(s.path, []byte(record), 0644); err != nil {
		return true, fmt.Errorf("write color artifact: %w", err)
	}
	s.log.Info("color captured", "r", r, "g", g, "b", b)
	return true, nil
}

// Progress reports dwell elapsed over dwell configured, 0..1.
func (s *ColorSession) Progress(now time.Time) float64 {
	if s.done || s.cfg.Dwell <= 0 {
		return 1
	}
	p := float64(now.Sub(s.start)) / float64(s.cfg.Dwell)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Package capture implements the two bounded recording sessions. Sessions are
// resumable objects with an explicit Tick entry point: the control loop calls
// Tick once per poll and the session catches up on every sample slot that
// elapsed since the previous call, so stop conditions stay responsive without
// a busy-wait inside the session.
package capture

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/bottleworks/memorybottle/internal/wav"
)

// Microphone is the audio sampling dependency, satisfied by sensor.Bank.
type Microphone interface {
	ReadMic() int
}

// AudioConfig holds the tunables of one audio session.
type AudioConfig struct {
	SampleRate     int
	Duration       time.Duration
	BlockSamples   int
	Interruptible  bool
	StatusInterval time.Duration
}

// AudioSession samples the microphone at a fixed rate into a block buffer,
// flushing full blocks to the WAV artifact, and finalizes the container when
// the session ends.
type AudioSession struct {
	cfg AudioConfig
	mic Microphone
	w   *wav.Writer
	log *slog.Logger

	start      time.Time
	nextSample time.Time
	lastStatus time.Time
	period     time.Duration
	block      []int16
	done       bool
}

// StartAudio opens (replacing) the artifact at path and begins a session. A
// storage failure here is an initialization failure for the whole session.
func StartAudio(path string, mic Microphone, cfg AudioConfig, log *slog.Logger, now time.Time) (*AudioSession, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", cfg.SampleRate)
	}
	w, err := wav.Create(path, cfg.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("open audio artifact: %w", err)
	}

	s := &AudioSession{
		cfg:        cfg,
		mic:        mic,
		w:          w,
		log:        log,
		start:      now,
		nextSample: now,
		lastStatus: now,
		period:     time.Second / time.Duration(cfg.SampleRate),
		block:      make([]int16, 0, cfg.BlockSamples),
	}
	log.Info("audio session started", "path", path, "sample_rate", cfg.SampleRate, "duration", cfg.Duration)
	return s, nil
}

// Tick advances the session to now. lidClosed reports whether a lid-closed
// edge was observed since the previous tick; it ends the session early only
// when the session is interruptible. Tick returns done=true once the artifact
// has been finalized, or an error if storage failed (the artifact must then be
// treated as invalid).
func (s *AudioSession) Tick(now time.Time, lidClosed bool) (bool, error) {
	if s.done {
		return true, nil
	}

	if s.cfg.Interruptible && lidClosed {
		s.log.Debug("audio session stopped by lid", "elapsed", now.Sub(s.start))
		return true, s.finalize()
	}
	if now.Sub(s.start) >= s.cfg.Duration {
		s.log.Debug("audio session reached duration limit")
		return true, s.finalize()
	}

	// If the loop stalled far beyond the sample cadence, resynchronize rather
	// than replaying a backlog of identical readings.
	if now.Sub(s.nextSample) > time.Second {
		s.nextSample = now
	}

	for !now.Before(s.nextSample) {
		raw := s.mic.ReadMic()
		s.block = append(s.block, Rescale(raw))
		s.nextSample = s.nextSample.Add(s.period)

		if len(s.block) >= s.cfg.BlockSamples {
			if err := s.flush(); err != nil {
				return true, err
			}
		}
	}

	if now.Sub(s.lastStatus) >= s.cfg.StatusInterval {
		s.lastStatus = now
		s.log.Debug("recording", "progress", fmt.Sprintf("%.0f%%", s.Progress(now)*100), "bytes", s.w.DataBytes())
	}
	return false, nil
}

// Progress reports elapsed time over the configured duration, 0..1.
func (s *AudioSession) Progress(now time.Time) float64 {
	p := float64(now.Sub(s.start)) / float64(s.cfg.Duration)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

func (s *AudioSession) flush() error {
	if len(s.block) == 0 {
		return nil
	}
	if err := s.w.WriteSamples(s.block); err != nil {
		return fmt.Errorf("flush sample block: %w", err)
	}
	s.block = s.block[:0]
	return nil
}

func (s *AudioSession) finalize() error {
	s.done = true
	if err := s.flush(); err != nil {
		s.w.Close()
		return err
	}
	if err := s.w.Close(); err != nil {
		return fmt.Errorf("finalize audio artifact: %w", err)
	}
	s.log.Info("audio session finalized", "bytes", s.w.DataBytes())
	return nil
}

// Rescale converts a raw 12-bit ADC reading centered on 2048 into a signed
// 16-bit sample.
func Rescale(raw int) int16 {
	if raw < 0 {
		raw = 0
	}
	if raw > 4095 {
		raw = 4095
	}
	return int16((raw - 2048) * 16)
}

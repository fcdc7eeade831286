// Package ledger persists which capture channels currently hold valid data.
// The flags survive power cycles: they are reloaded from the storage directory
// at startup so a half-filled bottle stays half-filled.
package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	statusFile = "recordings.txt"
	audioFile  = "audio.wav"
	colorFile  = "color.dat"
)

// Ledger tracks the two channel flags and owns the artifact paths.
type Ledger struct {
	dir      string
	hasAudio bool
	hasColor bool
}

// Open prepares the storage directory and loads any persisted flags.
func Open(dir string) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	l := &Ledger{dir: dir}
	data, err := os.ReadFile(l.statusPath())
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("read recording status: %w", err)
	}

	// Format: audio:<0|1>,color:<0|1>
	line := strings.TrimSpace(string(data))
	l.hasAudio = strings.Contains(line, "audio:1")
	l.hasColor = strings.Contains(line, "color:1")
	return l, nil
}

func (l *Ledger) statusPath() string { return filepath.Join(l.dir, statusFile) }

// AudioPath returns the audio artifact location.
func (l *Ledger) AudioPath() string { return filepath.Join(l.dir, audioFile) }

// ColorPath returns the color artifact location.
func (l *Ledger) ColorPath() string { return filepath.Join(l.dir, colorFile) }

// HasAudio reports whether a completed audio session exists.
func (l *Ledger) HasAudio() bool { return l.hasAudio }

// HasColor reports whether a completed color session exists.
func (l *Ledger) HasColor() bool { return l.hasColor }

// Count returns how many of the two channels hold valid data.
func (l *Ledger) Count() int {
	n := 0
	if l.hasAudio {
		n++
	}
	if l.hasColor {
		n++
	}
	return n
}

// SetAudio records the audio flag and persists the ledger.
func (l *Ledger) SetAudio(v bool) error {
	l.hasAudio = v
	return l.save()
}

// SetColor records the color flag and persists the ledger.
func (l *Ledger) SetColor(v bool) error {
	l.hasColor = v
	return l.save()
}

// Clear drops both flags and deletes the artifact files.
func (l *Ledger) Clear() error {
	l.hasAudio = false
	l.hasColor = false
	if err := os.Remove(l.AudioPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove audio artifact: %w", err)
	}
	if err := os.Remove(l.ColorPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove color artifact: %w", err)
	}
	return l.save()
}

func (l *Ledger) save() error {
	line := fmt.Sprintf("audio:%s,color:%s\n", flag(l.hasAudio), flag(l.hasColor))
	if err := os.WriteFile(l.statusPath(), []byte(line), 0644); err != nil {
		return fmt.Errorf("save recording status: %w", err)
	}
	return nil
}

func flag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

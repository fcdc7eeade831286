// Package wav wraps the go-audio codec for the mono 16-bit PCM files the
// bottle records into and the collector plays back. The container carries the
// total data length, which is unknown until a session ends; the encoder
// patches it when the writer is closed.
package wav

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"
)

const (
	formatPCM     = 1
	numChannels   = 1
	bitsPerSample = 16
)

// Writer streams signed 16-bit samples into a WAV file.
type Writer struct {
	f         *os.File
	enc       *gowav.Encoder
	format    *audio.Format
	dataBytes uint32
	closed    bool
}

// Create opens (or replaces) the file at path. The header goes out
// immediately so an interrupted session still leaves a parseable file.
func Create(path string, sampleRate int) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create wav file: %w", err)
	}

	w := &Writer{
		f:   f,
		enc: gowav.NewEncoder(f, sampleRate, bitsPerSample, numChannels, formatPCM),
		format: &audio.Format{
			NumChannels: numChannels,
			SampleRate:  sampleRate,
		},
	}
	if err := w.enc.Write(&audio.IntBuffer{Format: w.format, Data: []int{}, SourceBitDepth: bitsPerSample}); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write wav header: %w", err)
	}
	return w, nil
}

// WriteSamples appends a block of samples to the data chunk.
func (w *Writer) WriteSamples(samples []int16) error {
	if w.closed {
		return fmt.Errorf("wav writer is closed")
	}
	buf := &audio.IntBuffer{
		Format:         w.format,
		Data:           make([]int, len(samples)),
		SourceBitDepth: bitsPerSample,
	}
	for i, s := range samples {
		buf.Data[i] = int(s)
	}
	if err := w.enc.Write(buf); err != nil {
		return fmt.Errorf("write samples: %w", err)
	}
	w.dataBytes += uint32(2 * len(samples))
	return nil
}

// DataBytes returns the number of sample bytes written so far.
func (w *Writer) DataBytes() uint32 {
	return w.dataBytes
}

// Close finalizes the chunk sizes and closes the file.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.enc.Close(); err != nil {
		w.f.Close()
		return fmt.Errorf("finalize wav file: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("close wav file: %w", err)
	}
	return nil
}

// Header describes a parsed WAV header.
type Header struct {
	Format        uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
	DataBytes     uint32
}

// ReadHeader parses the header of a file produced by Writer.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, fmt.Errorf("open wav file: %w", err)
	}
	defer f.Close()

	d := gowav.NewDecoder(f)
	if err := d.FwdToPCM(); err != nil {
		return Header{}, fmt.Errorf("parse wav file: %w", err)
	}

	return Header{
		Format:        d.WavAudioFormat,
		Channels:      d.NumChans,
		SampleRate:    d.SampleRate,
		BitsPerSample: d.BitDepth,
		DataBytes:     uint32(d.PCMLen()),
	}, nil
}

// WriteSilence writes a complete WAV file holding the given duration of
// silence. The collector uses it to exercise playback without a real capture.
func WriteSilence(path string, sampleRate int, seconds int) error {
	w, err := Create(path, sampleRate)
	if err != nil {
		return err
	}
	silence := make([]int16, sampleRate)
	for i := 0; i < seconds; i++ {
		if err := w.WriteSamples(silence); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}

// Package collector implements the receiving side of a bottle transfer: an
// HTTP server that accepts the recorded memory (audio plus color) and hands
// it to a playback backend.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/bottleworks/memorybottle/internal/wav"
)

const (
	defaultColor    = "128,128,128"
	testColor       = "255,0,255"
	testAudioRate   = 16000
	testAudioLength = 1
)

// Player receives an uploaded memory for playback. Implementations drive
// whatever output hardware is attached; LogPlayer just records the event.
type Player interface {
	Play(audioPath, color string) error
}

// LogPlayer is the default Player. It logs the playback request instead of
// driving speakers or LEDs.
type LogPlayer struct {
	Log *slog.Logger
}

func (p *LogPlayer) Play(audioPath, color string) error {
	info, err := os.Stat(audioPath)
	if err != nil {
		return fmt.Errorf("playback source: %w", err)
	}
	p.Log.Info("Playback requested", "audio", audioPath, "bytes", info.Size(), "color", color)
	return nil
}

type metrics struct {
	uploadsTotal   prometheus.Counter
	uploadFailures prometheus.Counter
	uploadBytes    prometheus.Counter
	playbacksTotal prometheus.Counter
}

func newMetrics(reg *prometheus.Registry) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		uploadsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "memorybottle",
			Name:      "uploads_total",
			Help:      "Total number of accepted memory uploads",
		}),
		uploadFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "memorybottle",
			Name:      "upload_failures_total",
			Help:      "Total number of rejected or failed uploads",
		}),
		uploadBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "memorybottle",
			Name:      "upload_bytes_total",
			Help:      "Total audio bytes received across all uploads",
		}),
		playbacksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "memorybottle",
			Name:      "playbacks_total",
			Help:      "Total number of playback runs, uploads and tests combined",
		}),
	}
}

// Server accepts memory uploads over HTTP and stores them in a spool
// directory, one memory at a time. A new upload overwrites the previous one.
type Server struct {
	addr   string
	dir    string
	log    *slog.Logger
	player Player
	met    *metrics
	reg    *prometheus.Registry

	mu         sync.RWMutex
	lastUpload time.Time
	uploads    int
	playbackOK bool
}

// New creates a collector serving on addr, spooling uploads into dir.
// A nil player defaults to LogPlayer.
func New(addr, dir string, player Player, log *slog.Logger) *Server {
	if player == nil {
		player = &LogPlayer{Log: log}
	}
	reg := prometheus.NewRegistry()
	return &Server{
		addr:   addr,
		dir:    dir,
		log:    log,
		player: player,
		met:    newMetrics(reg),
		reg:    reg,
	}
}

func (s *Server) audioPath() string { return filepath.Join(s.dir, "audio.wav") }
func (s *Server) colorPath() string { return filepath.Join(s.dir, "color.dat") }

// Handler builds the route table. Exposed separately from Run so tests can
// drive the server through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/test-playback", s.handleTestPlayback)
	mux.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create upload directory: %w", err)
	}

	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info("Starting collector server", "addr", s.addr, "upload_dir", s.dir)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	color := r.Header.Get("X-Color-Data")
	if color == "" {
		color = defaultColor
	}
	color = strings.TrimSpace(color)

	audio, err := io.ReadAll(r.Body)
	if err != nil {
		s.met.uploadFailures.Inc()
		writeJSONError(w, http.StatusBadRequest, "Failed to read audio data")
		return
	}
	if len(audio) == 0 {
		s.met.uploadFailures.Inc()
		writeJSONError(w, http.StatusBadRequest, "No audio data")
		return
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.met.uploadFailures.Inc()
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := os.WriteFile(s.audioPath(), audio, 0o644); err != nil {
		s.met.uploadFailures.Inc()
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := os.WriteFile(s.colorPath(), []byte(color), 0o644); err != nil {
		s.met.uploadFailures.Inc()
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.log.Info("Memory received", "audio_bytes", len(audio), "color", color)
	s.met.uploadsTotal.Inc()
	s.met.uploadBytes.Add(float64(len(audio)))

	s.mu.Lock()
	s.lastUpload = time.Now()
	s.uploads++
	s.mu.Unlock()

	s.play(s.audioPath(), color)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "success",
	})
}

// play hands the memory to the playback backend and records the link state
// reported by /status.
func (s *Server) play(audioPath, color string) error {
	err := s.player.Play(audioPath, color)
	s.mu.Lock()
	s.playbackOK = err == nil
	s.mu.Unlock()
	if err != nil {
		s.log.Error("Playback failed", "error", err)
		return err
	}
	s.met.playbacksTotal.Inc()
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.mu.RLock()
	uploads := s.uploads
	last := s.lastUpload
	playbackOK := s.playbackOK
	s.mu.RUnlock()

	response := map[string]interface{}{
		"server":   "running",
		"playback": playbackOK,
		"uploads":  uploads,
	}
	if !last.IsZero() {
		response["last_upload"] = last.UTC().Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleTestPlayback replays the spooled memory without a fresh upload,
// falling back to defaults when the spool is empty.
func (s *Server) handleTestPlayback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	color := testColor
	if raw, err := os.ReadFile(s.colorPath()); err == nil {
		color = strings.TrimSpace(string(raw))
	}

	audioPath := s.audioPath()
	if _, err := os.Stat(audioPath); err != nil {
		s.log.Info("No spooled audio, generating silent test tone", "path", audioPath)
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if err := wav.WriteSilence(audioPath, testAudioRate, testAudioLength); err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	if err := s.play(audioPath, color); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":     "success",
		"message":    "Test playback complete",
		"color":      color,
		"audio_file": audioPath,
	})
}

func writeJSONError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "error",
		"message": msg,
	})
}

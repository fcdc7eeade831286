// Package harness drives the controller against simulated sensors from an
// interactive command prompt, optionally mirroring every state change to a
// WebSocket feed.
package harness

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bottleworks/memorybottle/internal/controller"
	"github.com/bottleworks/memorybottle/internal/sensor"
	"github.com/bottleworks/memorybottle/internal/statusled"
)

// Harness owns the simulated sensor bank, the controller, and the operator
// console. All controller access happens on the Run goroutine; commands
// arrive over a channel from the stdin reader.
type Harness struct {
	sim        *sensor.Sim
	ctrl       *controller.Controller
	storageDir string
	log        *slog.Logger

	in  io.Reader
	out io.Writer

	hub        *Hub
	listenAddr string

	mu   sync.Mutex
	last controller.Snapshot
}

// Options configures optional harness features.
type Options struct {
	// ListenAddr, when set, serves the state feed WebSocket on /ws.
	ListenAddr string
}

func New(sim *sensor.Sim, ctrl *controller.Controller, storageDir string, in io.Reader, out io.Writer, log *slog.Logger, opts Options) *Harness {
	h := &Harness{
		sim:        sim,
		ctrl:       ctrl,
		storageDir: storageDir,
		log:        log,
		in:         in,
		out:        out,
	}
	h.last = ctrl.Snapshot(time.Now())
	if opts.ListenAddr != "" {
		h.listenAddr = opts.ListenAddr
		h.hub = NewHub(log, func() any {
			h.mu.Lock()
			defer h.mu.Unlock()
			return h.last
		})
	}
	ctrl.OnChange(h.onChange)
	return h
}

func (h *Harness) onChange(snap controller.Snapshot) {
	h.mu.Lock()
	h.last = snap
	h.mu.Unlock()
	fmt.Fprintf(h.out, "\n[%s] channel=%s audio=%v color=%v fails=%d\n> ",
		snap.State, snap.Channel, snap.HasAudio, snap.HasColor, snap.Failures)
	if h.hub != nil {
		h.hub.Broadcast("state", snap)
	}
}

// Run polls the controller at interval and services operator commands until
// ctx is cancelled or the operator quits.
func (h *Harness) Run(ctx context.Context, interval time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if h.hub != nil {
		go h.hub.Run(ctx)
		mux := http.NewServeMux()
		mux.Handle("/ws", h.hub)
		srv := &http.Server{Addr: h.listenAddr, Handler: mux}
		go func() {
			h.log.Info("State feed listening", "addr", h.listenAddr, "path", "/ws")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				h.log.Error("State feed server failed", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(h.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		close(lines)
	}()

	fmt.Fprintf(h.out, "Memory Bottle simulator. Type 'help' for commands.\n> ")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// A signal is a normal way to leave the simulator.
			return nil

		case now := <-ticker.C:
			h.ctrl.Poll(now)

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			reply, err := h.Execute(line)
			if errors.Is(err, ErrQuit) {
				fmt.Fprintf(h.out, "%s\n", reply)
				return nil
			}
			if err != nil {
				fmt.Fprintf(h.out, "Error: %v\n> ", err)
				continue
			}
			if reply != "" {
				fmt.Fprintf(h.out, "%s\n> ", reply)
			} else {
				fmt.Fprintf(h.out, "> ")
			}
		}
	}
}

// ConsoleLED renders indicator frames onto the console as a compact
// one-liner so the operator can watch the virtual LED without hardware.
type ConsoleLED struct {
	Out io.Writer

	mu   sync.Mutex
	last statusled.Frame
}

func (l *ConsoleLED) Show(f statusled.Frame) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if f == l.last {
		return
	}
	l.last = f
	fmt.Fprintf(l.Out, "\r[LED %-14s] rgb(%3d,%3d,%3d) @%3d", f.State, f.R, f.G, f.B, f.Brightness)
}

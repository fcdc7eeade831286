package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bottleworks/memorybottle/internal/config"
	"github.com/bottleworks/memorybottle/internal/controller"
	"github.com/bottleworks/memorybottle/internal/harness"
	"github.com/bottleworks/memorybottle/internal/input"
	"github.com/bottleworks/memorybottle/internal/ledger"
	"github.com/bottleworks/memorybottle/internal/sensor"
	"github.com/bottleworks/memorybottle/internal/statusled"
	"github.com/bottleworks/memorybottle/internal/transfer"

	"github.com/spf13/cobra"
)

// pollInterval matches the firmware loop cadence.
const pollInterval = 10 * time.Millisecond

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the recorder loop headless",
	Long: `Run the recorder state machine against the simulated sensor bank,
rendering the status LED to the console. Use simulate for an interactive
session with sensor commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log := slog.Default()
		sink := &harness.ConsoleLED{Out: os.Stdout}

		led, err := ledger.Open(cfg.Storage.Directory)
		if err != nil {
			// Storage is gone; hold the error indicator until told to stop.
			log.Error("storage initialization failed", "dir", cfg.Storage.Directory, "error", err)
			ticker := time.NewTicker(pollInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return fmt.Errorf("open storage %s: %w", cfg.Storage.Directory, err)
				case now := <-ticker.C:
					sink.Show(statusled.Render(statusled.StateError, input.ChannelAudio, 0, now))
				}
			}
		}

		sim := sensor.NewSim()
		uploader := transfer.NewClient(transferConfig(cfg), log)
		ctrl := controller.New(controllerConfig(cfg.Profile), sim, led, uploader, sink, log)

		log.Info("Recorder starting",
			"storage", cfg.Storage.Directory,
			"upload_url", cfg.Server.UploadURL,
			"profile", cfg.ActiveProfile)

		ctrl.Run(ctx, pollInterval)
		return nil
	},
}

// controllerConfig maps the resolved profile onto the control loop tunables.
func controllerConfig(p config.Profile) controller.Config {
	return controller.Config{
		RecordingDuration:  time.Duration(p.RecordingDurationMS) * time.Millisecond,
		ColorDwell:         time.Duration(p.ColorDwellMS) * time.Millisecond,
		Debounce:           time.Duration(p.DebounceMS) * time.Millisecond,
		SelectingTimeout:   time.Duration(p.SelectingTimeoutMS) * time.Millisecond,
		PotChangeThreshold: p.PotChangeThreshold,
		FailureThreshold:   p.FailureThreshold,
		SampleRate:         p.SampleRate,
		Interruptible:      p.InterruptibleRecording,
	}
}

func transferConfig(c *config.Config) transfer.Config {
	return transfer.Config{
		UploadURL:      c.Server.UploadURL,
		ConnectTimeout: time.Duration(c.Server.ConnectTimeoutMS) * time.Millisecond,
		RequestTimeout: time.Duration(c.Server.RequestTimeoutMS) * time.Millisecond,
	}
}

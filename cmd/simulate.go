package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bottleworks/memorybottle/internal/controller"
	"github.com/bottleworks/memorybottle/internal/harness"
	"github.com/bottleworks/memorybottle/internal/ledger"
	"github.com/bottleworks/memorybottle/internal/sensor"
	"github.com/bottleworks/memorybottle/internal/transfer"

	"github.com/spf13/cobra"
)

var simulateListen string

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the recorder with an interactive sensor console",
	Long: `Run the recorder loop with a command prompt for driving the simulated
sensors (cap, tilt, potentiometer, color). Type 'help' at the prompt for the
command list.

With --listen, every state change is also published on a WebSocket feed at
/ws for external dashboards.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log := slog.Default()

		led, err := ledger.Open(cfg.Storage.Directory)
		if err != nil {
			return fmt.Errorf("open storage %s: %w", cfg.Storage.Directory, err)
		}

		sim := sensor.NewSim()
		sink := &harness.ConsoleLED{Out: os.Stdout}
		uploader := transfer.NewClient(transferConfig(cfg), log)
		ctrl := controller.New(controllerConfig(cfg.Profile), sim, led, uploader, sink, log)

		h := harness.New(sim, ctrl, cfg.Storage.Directory, os.Stdin, os.Stdout, log, harness.Options{
			ListenAddr: simulateListen,
		})
		return h.Run(ctx, pollInterval)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateListen, "listen", "", "serve the state feed WebSocket on this address (e.g. :9090)")
}

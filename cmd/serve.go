package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bottleworks/memorybottle/internal/collector"

	"github.com/spf13/cobra"
)

var (
	serveListen    string
	serveUploadDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the collector server",
	Long: `Start the collector that receives poured memories. Each upload carries
the recorded audio in the request body and the color reading in the
X-Color-Data header; both are spooled to the upload directory and handed to
the playback backend.

Prometheus metrics are exposed on /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		addr := cfg.Collector.ListenAddr
		if serveListen != "" {
			addr = serveListen
		}
		dir := cfg.Collector.UploadDir
		if serveUploadDir != "" {
			dir = serveUploadDir
		}

		srv := collector.New(addr, dir, nil, slog.Default())
		return srv.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (overrides config)")
	serveCmd.Flags().StringVar(&serveUploadDir, "upload-dir", "", "upload spool directory (overrides config)")
}

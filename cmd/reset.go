package cmd

import (
	"fmt"
	"log/slog"

	"github.com/bottleworks/memorybottle/internal/ledger"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the stored memory",
	Long:  `Delete any recorded audio and color from storage and reset the ledger.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		led, err := ledger.Open(cfg.Storage.Directory)
		if err != nil {
			return fmt.Errorf("open storage %s: %w", cfg.Storage.Directory, err)
		}
		if led.Count() == 0 {
			fmt.Println("Storage is already empty")
			return nil
		}
		if err := led.Clear(); err != nil {
			return fmt.Errorf("clear storage: %w", err)
		}
		slog.Info("Memory cleared", "dir", cfg.Storage.Directory)
		fmt.Println("Memory cleared")
		return nil
	},
}

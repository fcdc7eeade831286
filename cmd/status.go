package cmd

import (
	"fmt"
	"os"

	"github.com/bottleworks/memorybottle/internal/config"
	"github.com/bottleworks/memorybottle/internal/ledger"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type memoryStatus struct {
	HasAudio   bool   `yaml:"has_audio"`
	HasColor   bool   `yaml:"has_color"`
	AudioBytes int64  `yaml:"audio_bytes,omitempty"`
	ColorData  string `yaml:"color_data,omitempty"`
}

type statusReport struct {
	Config *config.Config `yaml:"config"`
	Memory memoryStatus   `yaml:"memory"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the resolved configuration and stored memory",
	RunE: func(cmd *cobra.Command, args []string) error {
		led, err := ledger.Open(cfg.Storage.Directory)
		if err != nil {
			return fmt.Errorf("open storage %s: %w", cfg.Storage.Directory, err)
		}

		report := statusReport{
			Config: cfg,
			Memory: memoryStatus{
				HasAudio: led.HasAudio(),
				HasColor: led.HasColor(),
			},
		}
		if led.HasAudio() {
			if info, err := os.Stat(led.AudioPath()); err == nil {
				report.Memory.AudioBytes = info.Size()
			}
		}
		if led.HasColor() {
			if raw, err := os.ReadFile(led.ColorPath()); err == nil {
				report.Memory.ColorData = string(raw)
			}
		}

		out, err := yaml.Marshal(report)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

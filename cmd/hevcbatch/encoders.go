package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hevcbatch/internal/config"
	"hevcbatch/internal/ffmpeg"
)

var encodersCmd = &cobra.Command{
	Use:   "encoders",
	Short: "Show which HEVC encoders this host supports",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		ctx := cmd.Context()
		hw := ffmpeg.NewHardwareEncoder(cfg.FFmpegPath)
		sw := ffmpeg.NewSoftwareEncoder(cfg.FFmpegPath)

		fmt.Printf("%-20s %s\n", hw.Name(), availability(hw.Available(ctx)))
		fmt.Printf("%-20s %s\n", sw.Name(), availability(sw.Available(ctx)))
		return nil
	},
}

func availability(ok bool) string {
	if ok {
		return "available"
	}
	return "not available"
}

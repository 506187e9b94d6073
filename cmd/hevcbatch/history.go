package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hevcbatch/internal/config"
	"hevcbatch/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show lifetime conversion totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cfg.HistoryFile == "" {
			fmt.Println("History is disabled (no history_file in config).")
			return nil
		}

		store, err := history.Open(cfg.HistoryFile)
		if err != nil {
			return fmt.Errorf("failed to open history: %w", err)
		}
		defer store.Close()

		totals, err := store.Totals()
		if err != nil {
			return err
		}

		fmt.Printf("Succeeded:   %d\n", totals.Succeeded)
		fmt.Printf("Failed:      %d\n", totals.Failed)
		fmt.Printf("Cancelled:   %d\n", totals.Cancelled)
		fmt.Printf("Space saved: %s\n", FormatBytes(totals.TotalSpaceSaved))
		return nil
	},
}

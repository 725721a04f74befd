package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/maltedev/glb-scraper/internal/database"
	"github.com/maltedev/glb-scraper/internal/models"
)

func statsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show what the ledger has recorded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := database.Open(cmd.Context(), database.Config{
				Driver: cfg.Ledger.Driver,
				Path:   cfg.Ledger.Path,
				DSN:    cfg.Ledger.DSN,
			}, logger)
			if err != nil {
				return fmt.Errorf("failed to open ledger: %w", err)
			}
			defer ledger.Close()

			stats, err := ledger.Stats(cmd.Context())
			if err != nil {
				return err
			}

			renderStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
}

func renderStats(w io.Writer, stats *models.LedgerStats) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"Variants", "Downloaded", "Without model", "Not downloaded"})
	t.AppendRow(table.Row{
		stats.Total,
		stats.Downloaded,
		stats.Missing,
		stats.Total - stats.Downloaded,
	})
	t.Render()
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"whale-alerts/internal/app"
)

var (
	exportDays    int
	exportPNGPath string
	exportCSVPath string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export daily totals and BTC prices as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportDays < 0 {
			return fmt.Errorf("--days must not be negative")
		}

		opts := app.ExportOptions{
			Days:    exportDays,
			PNGPath: exportPNGPath,
			CSVPath: exportCSVPath,
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().IntVar(&exportDays, "days", 0, "Number of most recent days to export (defaults to config)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
}

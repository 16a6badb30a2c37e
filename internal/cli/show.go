package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"whale-alerts/internal/app"
)

var (
	showKind  string
	showLimit int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent alerts, daily aggregates or prices",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit < 0 {
			return fmt.Errorf("--limit must not be negative")
		}

		opts := app.ShowOptions{
			Kind:  showKind,
			Limit: showLimit,
		}

		a := getApp()
		a.Out = cmd.OutOrStdout()
		return a.Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showKind, "kind", app.KindAlerts, "Rows to display: alerts, aggregates or prices")
	showCmd.Flags().IntVar(&showLimit, "limit", 0, "Number of rows to display (0 uses the per-kind default)")
}

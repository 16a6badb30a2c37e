package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ingestion and price loops until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context())
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch the feed once and record new alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		count, err := getApp().Ingest(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "recorded %d new alert(s)\n", count)
		return nil
	},
}

var priceCmd = &cobra.Command{
	Use:   "price",
	Short: "Fetch and store today's BTC reference price once",
	RunE: func(cmd *cobra.Command, args []string) error {
		point, err := getApp().RecordPrice(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", point.Date, point.PriceUSD.String())
		return nil
	},
}

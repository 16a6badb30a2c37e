package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract <text>",
	Short: "Print the amounts found in an announcement text",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		a.Out = cmd.OutOrStdout()
		return a.Extract(strings.Join(args, " "))
	},
}

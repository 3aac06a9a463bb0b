package cli

import (
	"github.com/spf13/cobra"
)

var rateCmd = &cobra.Command{
	Use:   "rate",
	Short: "Print the current fiat/TON exchange rate",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ShowRate(cmd.Context())
	},
}

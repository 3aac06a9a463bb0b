package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tondonate/internal/app"
)

var (
	verifyClaimRef string
	verifyAmount   string
	verifyFrom     string
	verifySince    string
	verifyComment  string
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run a one-shot donation verification",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.VerifyOptions{
			ClaimRef:  verifyClaimRef,
			AmountTon: verifyAmount,
			From:      verifyFrom,
			Comment:   verifyComment,
		}

		if verifySince != "" {
			since, err := time.Parse(time.RFC3339, verifySince)
			if err != nil {
				return fmt.Errorf("invalid --since value: %w", err)
			}
			opts.Since = &since
		}

		return getApp().VerifyOnce(cmd.Context(), opts)
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyClaimRef, "claim", "cli", "Claim reference recorded in the audit trail")
	verifyCmd.Flags().StringVar(&verifyAmount, "amount", "", "Minimum donation amount in TON (defaults to configured minimum)")
	verifyCmd.Flags().StringVar(&verifyFrom, "from", "", "Expected sender address")
	verifyCmd.Flags().StringVar(&verifySince, "since", "", "Lower time bound (RFC3339, defaults to configured lookback)")
	verifyCmd.Flags().StringVar(&verifyComment, "comment", "", "Free-form note stored with the audit record")
}

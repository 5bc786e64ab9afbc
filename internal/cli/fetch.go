package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"rate-ledger/internal/app"
)

var fetchStatic string

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Refresh the rate once and print it",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.FetchOptions{}
		if fetchStatic != "" {
			rate, err := decimal.NewFromString(fetchStatic)
			if err != nil || !rate.IsPositive() {
				return fmt.Errorf("--static must be a positive number")
			}
			opts.Static = &rate
		}
		return getApp().Fetch(cmd.Context(), opts, cmd.OutOrStdout())
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchStatic, "static", "", "Use this rate instead of calling the source (dry run)")
}

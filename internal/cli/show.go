package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"rate-ledger/internal/app"
)

var (
	showName  string
	showFrom  string
	showTo    string
	showLimit int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display archived ledger events",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		from, to, err := parseWindow(showFrom, showTo)
		if err != nil {
			return err
		}

		opts := app.ShowOptions{
			Name:  showName,
			From:  from,
			To:    to,
			Limit: showLimit,
		}
		return getApp().Show(opts, cmd.OutOrStdout())
	},
}

func init() {
	showCmd.Flags().StringVar(&showName, "name", "", "Only show events with this name")
	showCmd.Flags().StringVar(&showFrom, "from", "", "Start timestamp (RFC3339, inclusive)")
	showCmd.Flags().StringVar(&showTo, "to", "", "End timestamp (RFC3339, inclusive)")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of most recent events to display")
}

package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var pruneBefore string

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop archived events older than a cutoff (defaults to ledger.retention)",
	RunE: func(cmd *cobra.Command, args []string) error {
		var cutoff time.Time
		if pruneBefore != "" {
			v, err := time.Parse(time.RFC3339, pruneBefore)
			if err != nil {
				return fmt.Errorf("invalid --before value: %w", err)
			}
			cutoff = v
		}

		removed, err := getApp().Prune(cutoff)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d events\n", removed)
		return nil
	},
}

func init() {
	pruneCmd.Flags().StringVar(&pruneBefore, "before", "", "Cutoff timestamp (RFC3339); older events are removed")
}

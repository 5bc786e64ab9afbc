package cli

import (
	"github.com/spf13/cobra"

	"rate-ledger/internal/app"
)

var (
	exportName      string
	exportFrom      string
	exportTo        string
	exportJSONPath  string
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export archived events as JSON and the rate history as CSV and/or PNG",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, to, err := parseWindow(exportFrom, exportTo)
		if err != nil {
			return err
		}

		opts := app.ExportOptions{
			Name:      exportName,
			From:      from,
			To:        to,
			JSONPath:  exportJSONPath,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		}
		return getApp().Export(opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportName, "name", "", "Only export events with this name (JSON output)")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Start timestamp (RFC3339, inclusive)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "End timestamp (RFC3339, inclusive)")
	exportCmd.Flags().StringVar(&exportJSONPath, "json", "", "Path to write ledger events as JSON")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/jira-worklog/pkg/export"
	"github.com/Sternrassler/jira-worklog/pkg/worklog"
)

var (
	exportMonth  string
	exportFrom   string
	exportTo     string
	exportOutput string
	exportFormat string
)

var exportCmd = &cobra.Command{
	Use:   "export PROJECT",
	Short: "Export the worklog of a project to XLSX or JSON",
	Example: `  worklog-server export ABC --month 2021-03
  worklog-server export ABC --from 2021-03-01 --to 2021-03-15 --format json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := exportQuery(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.aggregator.Worklog(cmd.Context(), q)
		if err != nil {
			return err
		}

		exporter := export.NewExporter(exportOutput)
		var path string
		switch exportFormat {
		case "xlsx":
			path, err = exporter.ExportXLSX(entries, q)
		case "json":
			path, err = exporter.ExportJSON(entries, q)
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d entries written to %s\n", len(entries), path)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportMonth, "month", "m", "", "Month (YYYY-MM)")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "First day (YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "Last day (YYYY-MM-DD)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "reports", "Output directory")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "xlsx", "Output format: xlsx or json")
	exportCmd.MarkFlagsMutuallyExclusive("month", "from")
	exportCmd.MarkFlagsMutuallyExclusive("month", "to")
	exportCmd.MarkFlagsRequiredTogether("from", "to")
}

// exportQuery builds the query from the export flags.
func exportQuery(project string) (worklog.Query, error) {
	if exportFormat != "xlsx" && exportFormat != "json" {
		return worklog.Query{}, fmt.Errorf("unknown format %q (want xlsx or json)", exportFormat)
	}

	q := worklog.Query{ProjectKey: project, MinDate: exportFrom, MaxDate: exportTo}
	if exportMonth != "" {
		var err error
		q.MinDate, q.MaxDate, err = worklog.MonthRange(exportMonth)
		if err != nil {
			return worklog.Query{}, err
		}
	}
	if q.MinDate == "" {
		return worklog.Query{}, fmt.Errorf("either --month or --from/--to is required")
	}
	return q, q.Validate()
}

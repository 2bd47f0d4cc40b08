package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yairfalse/logsentry/internal/config"
	"github.com/yairfalse/logsentry/internal/report"
)

var (
	reportsTarget string
	reportsLimit  int
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List the most recent reports",
	Example: `  logsentry reports                    # Last 10 reports
  logsentry reports --target api       # Only reports for "api"
  logsentry reports --limit 0          # Everything`,
	RunE: runReports,
}

func init() {
	rootCmd.AddCommand(reportsCmd)
	reportsCmd.Flags().StringVarP(&reportsTarget, "target", "t", "", "Only list reports for this container")
	reportsCmd.Flags().IntVarP(&reportsLimit, "limit", "n", config.DefaultListLimit, "Number of reports to list, 0 for all")
}

func runReports(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	catalog := report.NewCatalog(cfg.Reports.Dir)

	var entries []report.Entry
	if reportsTarget != "" {
		entries, err = catalog.ListTarget(reportsTarget, reportsLimit)
	} else {
		entries, err = catalog.List(reportsLimit)
	}
	if err != nil {
		return fmt.Errorf("list reports: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintf(out, "No reports in %s\n", cfg.Reports.Dir)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REPORT\tTARGET\tCREATED\tSIZE")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Name, e.Target, e.CreatedAt.Format("2006-01-02 15:04:05"), e.HumanSize())
	}
	return w.Flush()
}

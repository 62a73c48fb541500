package main

import (
	"os"

	"github.com/spf13/cobra"

	"sonatabench/internal/dashboard"
	"sonatabench/internal/output"
)

var (
	dashboardOut   string
	dashboardTable string
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Write the Grafana dashboard JSON",
	Long:  "dashboard renders the Grafana dashboard for the GreptimeDB results table. GREPTIMEDB_DATASOURCE_UID must be set.",
	RunE: func(cmd *cobra.Command, args []string) error {
		table := dashboardTable
		if table == "" {
			table = os.Getenv("GREPTIMEDB_TABLE")
		}
		if table == "" {
			table = output.DefaultTable
		}
		return dashboard.Render(dashboardOut, dashboard.Options{Table: table})
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardOut, "out", "build", "Output directory")
	dashboardCmd.Flags().StringVar(&dashboardTable, "table", "", "GreptimeDB table (defaults to GREPTIMEDB_TABLE)")
}

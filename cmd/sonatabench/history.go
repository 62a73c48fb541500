package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"sonatabench/internal/bench"
	"sonatabench/internal/history"
	"sonatabench/internal/output"
)

var (
	historyDB    string
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List recorded runs or show one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.Open(historyDB)
		if err != nil {
			return err
		}
		defer store.Close()

		out := cmd.OutOrStdout()
		if len(args) == 1 {
			r, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printRun(out, r)
		}
		runs, err := store.List(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		return printRuns(out, runs)
	},
}

func printRuns(w io.Writer, runs []history.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEXAMPLE\tRANK\tNVP\tSTARTED\tSIMULATE [s]\tCONNECTIONS")
	for _, s := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\t%d\n",
			s.ID, s.Example, s.Rank, s.NVP, s.StartedAt.Format(time.DateTime),
			bench.FormatValue(s.SimulateTime), s.NumConnections)
	}
	return tw.Flush()
}

func printRun(w io.Writer, r bench.Report) error {
	fmt.Fprintf(w, "run %s: %s rank %d nvp %d started %s\n",
		r.ID, r.Example, r.Rank, r.NVP, r.StartedAt.Format(time.RFC3339))
	_, err := fmt.Fprintln(w, output.ResultsTable([]string{r.Example}, []*bench.Results{r.Results}, terminalWidth()))
	return err
}

func init() {
	historyCmd.Flags().StringVar(&historyDB, "db", "sonatabench.db", "SQLite history database")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to list")
}

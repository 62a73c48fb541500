package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sonatabench/internal/bench"
	"sonatabench/internal/logging"
	"sonatabench/internal/output"
)

var (
	publishInput     string
	publishExample   string
	publishRank      int
	publishNVP       int
	publishPrintOnly bool
	publishHistory   string
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish an existing log file",
	Long:  "publish parses a per-rank log file and feeds its results into GreptimeDB, STDOUT or the run history.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if publishInput == "" {
			return fmt.Errorf("input file required")
		}
		report, err := loadReport(publishInput, publishExample, publishRank, publishNVP)
		if err != nil {
			return err
		}
		log := logging.New("info", os.Stderr)
		base, err := baseWriter(publishPrintOnly, log)
		if err != nil {
			return err
		}
		sinks := []output.ReportWriter{base}
		if publishHistory != "" {
			hw, err := output.NewHistoryWriter(publishHistory)
			if err != nil {
				return err
			}
			defer hw.Close()
			sinks = append(sinks, hw)
		}
		return output.NewMultiWriter(sinks...).WriteReport(report)
	},
}

// loadReport wraps the results of a log file in a report. The file's
// modification time stands in for the start of the run.
func loadReport(path, example string, rank, nvp int) (bench.Report, error) {
	info, err := os.Stat(path)
	if err != nil {
		return bench.Report{}, err
	}
	res, err := bench.ParseLogFile(path)
	if err != nil {
		return bench.Report{}, err
	}
	if nvp == 0 {
		if v, ok := res.Get("total_num_virtual_procs"); ok {
			if n, ok := v.(int64); ok {
				nvp = int(n)
			}
		}
	}
	return bench.NewReport(example, rank, nvp, info.ModTime(), res), nil
}

func init() {
	publishCmd.Flags().StringVar(&publishInput, "input", "", "Path to a logfile_<rank>.dat file")
	publishCmd.Flags().StringVar(&publishExample, "example", "", "Example the log file belongs to")
	publishCmd.Flags().IntVar(&publishRank, "rank", 0, "Rank that wrote the log file")
	publishCmd.Flags().IntVar(&publishNVP, "nvp", 0, "Virtual processes of the run (read from the file when 0)")
	publishCmd.Flags().BoolVar(&publishPrintOnly, "print-only", false, "Print results to STDOUT instead of writing to DB")
	publishCmd.Flags().StringVar(&publishHistory, "history", "", "Also record the run in this SQLite database")
	publishCmd.MarkFlagRequired("input")
}

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"sonatabench/internal/bench"
	"sonatabench/internal/output"
)

var reportCmd = &cobra.Command{
	Use:   "report <logfile>...",
	Short: "Render log files as a table",
	Long:  "report shows one column per log file, which makes it easy to compare ranks or runs side by side.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		titles := make([]string, 0, len(args))
		sets := make([]*bench.Results, 0, len(args))
		for _, path := range args {
			res, err := bench.ParseLogFile(path)
			if err != nil {
				return err
			}
			titles = append(titles, filepath.Base(path))
			sets = append(sets, res)
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), output.ResultsTable(titles, sets, terminalWidth()))
		return err
	},
}

// terminalWidth returns the width of stdout, or 120 when it is not a
// terminal.
func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 120
}

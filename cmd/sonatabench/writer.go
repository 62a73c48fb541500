package main

import (
	"log/slog"
	"os"

	"sonatabench/internal/bench"
	"sonatabench/internal/config"
	"sonatabench/internal/output"
	"sonatabench/internal/status"
)

type writerOptions struct {
	cfg         *config.Benchmark
	printOnly   bool
	tui         bool
	historyPath string
	tracker     *status.Tracker
	log         *slog.Logger
}

// writers bundles the sinks of one run.
type writers struct {
	writer   output.ReportWriter
	observer bench.Observer
	tui      *output.TUIWriter
	cleanup  func()
}

// newWriters sets up the report sinks based on flags and env vars. The
// per-rank log file is always written.
func newWriters(o writerOptions) (*writers, error) {
	ws := &writers{cleanup: func() {}}
	var closers []func()

	base, err := baseWriter(o.printOnly, o.log)
	if err != nil {
		return nil, err
	}
	observers := bench.Observers{}
	if o.tui {
		ws.tui = output.NewTUIWriter(o.cfg.Example, o.cfg.NVP)
		base = ws.tui
		observers = append(observers, ws.tui)
		closers = append(closers, func() { ws.tui.Close() })
	}

	sinks := []output.ReportWriter{output.NewFileWriter(o.cfg.OutputDir, o.cfg.LogPrefix), base}
	if o.historyPath != "" {
		hw, err := output.NewHistoryWriter(o.historyPath)
		if err != nil {
			for _, c := range closers {
				c()
			}
			return nil, err
		}
		sinks = append(sinks, hw)
		closers = append(closers, func() { hw.Close() })
	}
	if o.tracker != nil {
		sinks = append(sinks, o.tracker)
		observers = append(observers, o.tracker)
	}

	ws.writer = output.NewMultiWriter(sinks...)
	ws.observer = observers
	ws.cleanup = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return ws, nil
}

// baseWriter chooses STDOUT or GreptimeDB based on printOnly and env vars.
func baseWriter(printOnly bool, log *slog.Logger) (output.ReportWriter, error) {
	endpoint := os.Getenv("GREPTIMEDB_ENDPOINT")
	if printOnly || endpoint == "" {
		return output.NewStdoutWriter(), nil
	}
	return output.NewGreptimeDBWriter(endpoint, os.Getenv("GREPTIMEDB_DATABASE"), os.Getenv("GREPTIMEDB_TABLE"), log)
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sonatabench/internal/bench"
	"sonatabench/internal/config"
	"sonatabench/internal/engine"
	"sonatabench/internal/logging"
	"sonatabench/internal/status"
)

type runOptions struct {
	configPath   string
	example      string
	nvp          int
	presimTime   float64
	recordSpikes bool
	outputDir    string
	logLevel     string
	printOnly    bool
	tui          bool
	historyPath  string
	statusAddr   string
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build and simulate a SONATA example",
	Long:  "run builds the selected example, simulates it and writes the per-rank log file plus any configured sinks.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(runOpts.configPath)
		if err != nil {
			return err
		}
		applyRunFlags(cmd, cfg, runOpts)
		if err := cfg.Validate(); err != nil {
			return err
		}
		ex, err := cfg.Selected()
		if err != nil {
			return err
		}

		logOut, closeLog, err := logDestination(cfg, runOpts.tui)
		if err != nil {
			return err
		}
		defer closeLog()
		log := logging.New(cfg.LogLevel, logOut)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx = logging.NewContext(ctx, log)

		started := time.Now()
		tracker := status.NewTracker(cfg.Example, cfg.NVP, started)
		if runOpts.statusAddr != "" {
			srv := status.NewServer(tracker)
			go func() {
				if err := srv.Start(ctx, runOpts.statusAddr); err != nil {
					log.Error("status server failed", "err", err)
				}
			}()
		}

		ws, err := newWriters(writerOptions{
			cfg:         cfg,
			printOnly:   runOpts.printOnly,
			tui:         runOpts.tui,
			historyPath: runOpts.historyPath,
			tracker:     tracker,
			log:         log,
		})
		if err != nil {
			return err
		}
		defer ws.cleanup()

		k := engine.NewKernel(cfg.Rank)
		defer k.Close()

		log.Info("starting benchmark", "example", cfg.Example, "nvp", cfg.NVP, "rank", cfg.Rank)
		runner := bench.NewRunner(k, bench.ParamsFromConfig(cfg), ws.observer)
		res, err := runner.Run(ctx, ex)
		if err != nil {
			tracker.Fail(err)
			return fmt.Errorf("benchmark %s: %w", cfg.Example, err)
		}
		report := bench.NewReport(cfg.Example, k.Rank(), cfg.NVP, started, res)
		if err := ws.writer.WriteReport(report); err != nil {
			return err
		}
		if ws.tui != nil {
			ws.tui.Wait()
		}
		return nil
	},
}

// applyRunFlags copies explicitly set flags over the loaded configuration.
func applyRunFlags(cmd *cobra.Command, cfg *config.Benchmark, o runOptions) {
	flags := cmd.Flags()
	if flags.Changed("example") {
		cfg.Example = o.example
	}
	if flags.Changed("nvp") {
		cfg.NVP = o.nvp
	}
	if flags.Changed("presimtime") {
		cfg.PresimTime = o.presimTime
	}
	if flags.Changed("record-spikes") {
		cfg.RecordSpikes = o.recordSpikes
	}
	if flags.Changed("output-dir") {
		cfg.OutputDir = o.outputDir
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
}

// logDestination keeps the terminal free for the TUI by logging to a file
// in the output directory instead of stderr.
func logDestination(cfg *config.Benchmark, tui bool) (io.Writer, func(), error) {
	if !tui {
		return os.Stderr, func() {}, nil
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.Create(filepath.Join(cfg.OutputDir, fmt.Sprintf("sonatabench_%d.log", cfg.Rank)))
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runOpts.configPath, "config", "", "Path to benchmark configuration YAML (defaults are used when empty)")
	f.StringVar(&runOpts.example, "example", "", "Example to run (e.g. 300_pointneurons, GLIF)")
	f.IntVar(&runOpts.nvp, "nvp", 1, "Total number of virtual processes")
	f.Float64Var(&runOpts.presimTime, "presimtime", 50, "Presimulation time in ms")
	f.BoolVar(&runOpts.recordSpikes, "record-spikes", false, "Record spikes of population_to_plot")
	f.StringVar(&runOpts.outputDir, "output-dir", ".", "Directory for log and spike files")
	f.StringVar(&runOpts.logLevel, "log-level", "info", "Log level (info, debug, trace)")
	f.BoolVar(&runOpts.printOnly, "print-only", false, "Print results to STDOUT instead of writing to DB")
	f.BoolVar(&runOpts.tui, "tui", false, "Show an interactive progress view")
	f.StringVar(&runOpts.historyPath, "history", "", "SQLite database recording every run")
	f.StringVar(&runOpts.statusAddr, "status-addr", "", "Serve a status page on this address (e.g. :8080)")
}

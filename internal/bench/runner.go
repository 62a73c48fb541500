// Package bench drives a single SONATA benchmark run: it builds the circuit
// in an engine, times each construction and simulation phase and collects
// the measurements together with the engine's kernel status.
package bench

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sonatabench/internal/config"
	"sonatabench/internal/engine"
	"sonatabench/internal/logging"
	"sonatabench/internal/sonata"
)

// ErrUnsupportedSimulator is returned when the circuit targets a simulator
// other than NEST.
var ErrUnsupportedSimulator = errors.New("only target_simulator of type NEST is supported")

// Phase names a timed step of a run.
type Phase string

const (
	PhaseCreate      Phase = "create"
	PhaseEdgeDict    Phase = "edge_dict"
	PhaseConnect     Phase = "connect"
	PhasePresimulate Phase = "presimulate"
	PhaseSimulate    Phase = "simulate"
)

// Phases lists the timed phases in execution order.
var Phases = []Phase{PhaseCreate, PhaseEdgeDict, PhaseConnect, PhasePresimulate, PhaseSimulate}

// Observer is notified around every timed phase.
type Observer interface {
	PhaseStarted(p Phase)
	PhaseFinished(p Phase, elapsed time.Duration)
}

// Params are the run parameters of a benchmark.
type Params struct {
	NVP          int
	PresimTime   float64
	RecordSpikes bool
	Seed         uint64
	// DataPath is where spike recorder files go. Empty means the working
	// directory.
	DataPath string
}

// ParamsFromConfig extracts the run parameters of cfg.
func ParamsFromConfig(cfg *config.Benchmark) Params {
	return Params{
		NVP:          cfg.NVP,
		PresimTime:   cfg.PresimTime,
		RecordSpikes: cfg.RecordSpikes,
		Seed:         cfg.Seed,
		DataPath:     cfg.OutputDir,
	}
}

// Runner executes benchmark runs against an engine.
type Runner struct {
	Engine   engine.Engine
	Params   Params
	Observer Observer

	now func() time.Time
}

// NewRunner creates a Runner. obs may be nil.
func NewRunner(eng engine.Engine, p Params, obs Observer) *Runner {
	return &Runner{Engine: eng, Params: p, Observer: obs}
}

func (r *Runner) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

// timed runs fn as phase p and returns its wall-clock duration.
func (r *Runner) timed(p Phase, fn func() error) (time.Duration, error) {
	if r.Observer != nil {
		r.Observer.PhaseStarted(p)
	}
	start := r.clock()
	err := fn()
	elapsed := r.clock().Sub(start)
	if err != nil {
		return elapsed, fmt.Errorf("%s: %w", p, err)
	}
	if r.Observer != nil {
		r.Observer.PhaseFinished(p, elapsed)
	}
	return elapsed, nil
}

// Run builds and simulates ex and returns the timing and memory
// measurements merged with the final kernel status.
func (r *Runner) Run(ctx context.Context, ex config.Example) (*Results, error) {
	log := logging.FromContext(ctx)
	start := r.clock()
	eng := r.Engine

	eng.ResetKernel()

	conn, err := sonata.NewConnector(ex.BasePath, ex.Config, ex.SimConfig)
	if err != nil {
		return nil, err
	}
	if target := conn.Config.TargetSimulator(); target != "NEST" {
		return nil, fmt.Errorf("%w: got %q", ErrUnsupportedSimulator, target)
	}
	dt, err := conn.Config.DT()
	if err != nil {
		return nil, err
	}
	simtime, err := conn.Config.SimTime()
	if err != nil {
		return nil, err
	}
	if err := eng.SetKernelStatus(engine.KernelParams{
		Resolution:           dt,
		OverwriteFiles:       true,
		TotalNumVirtualProcs: r.Params.NVP,
		RNGSeed:              r.Params.Seed,
		DataPath:             r.Params.DataPath,
	}); err != nil {
		return nil, fmt.Errorf("setting kernel status: %w", err)
	}

	memBase := eng.MemoryThisJob()
	tCreate, err := r.timed(PhaseCreate, func() error { return conn.CreateNodes(eng) })
	if err != nil {
		return nil, err
	}
	memCreate := eng.MemoryThisJob()
	log.Debug("nodes created", "populations", len(conn.NodeCollections), "elapsed", tCreate)

	tDict, err := r.timed(PhaseEdgeDict, conn.CreateEdgeDict)
	if err != nil {
		return nil, err
	}
	log.Debug("edge dictionary built", "edge_files", len(conn.EdgeTypes), "elapsed", tDict)

	tConnect, err := r.timed(PhaseConnect, func() error { return conn.Connect(ctx, eng) })
	if err != nil {
		return nil, err
	}
	memConnect := eng.MemoryThisJob()
	status := eng.KernelStatus()
	log.Info("network built",
		"num_connections", status["num_connections"],
		"network_size", status["network_size"])

	tPresim, err := r.timed(PhasePresimulate, func() error { return eng.Simulate(ctx, r.Params.PresimTime) })
	if err != nil {
		return nil, err
	}

	if r.Params.RecordSpikes {
		if err := r.attachRecorder(conn, ex.PopulationToPlot); err != nil {
			return nil, err
		}
	}

	log.Info("simulating", "simtime_ms", simtime)
	tSim, err := r.timed(PhaseSimulate, func() error { return eng.Simulate(ctx, simtime) })
	if err != nil {
		return nil, err
	}

	res := NewResults()
	res.Set("py_time_presimulate", tPresim.Seconds())
	res.Set("py_time_simulate", tSim.Seconds())
	res.Set("py_time_create", tCreate.Seconds())
	res.Set("py_time_connect", tConnect.Seconds())
	res.Set("base_memory", memBase)
	res.Set("network_memory", memConnect)
	res.Set("init_memory", memCreate)
	status = eng.KernelStatus()
	res.Merge(status)

	log.Info("run finished",
		"total", r.clock().Sub(start),
		"local_spike_counter", status["local_spike_counter"])
	return res, nil
}

func (r *Runner) attachRecorder(conn *sonata.Connector, population string) error {
	nodes, ok := conn.NodeCollections[population]
	if !ok {
		return fmt.Errorf("population_to_plot %q not found in circuit", population)
	}
	rec, err := r.Engine.CreateSpikeRecorder(engine.RecorderParams{RecordTo: "ascii"})
	if err != nil {
		return fmt.Errorf("creating spike recorder: %w", err)
	}
	if err := r.Engine.ConnectRecorder(nodes, rec); err != nil {
		return fmt.Errorf("connecting spike recorder: %w", err)
	}
	return nil
}

// Observers notifies every non-nil observer in order.
type Observers []Observer

// PhaseStarted implements Observer.
func (o Observers) PhaseStarted(p Phase) {
	for _, obs := range o {
		if obs != nil {
			obs.PhaseStarted(p)
		}
	}
}

// PhaseFinished implements Observer.
func (o Observers) PhaseFinished(p Phase, elapsed time.Duration) {
	for _, obs := range o {
		if obs != nil {
			obs.PhaseFinished(p, elapsed)
		}
	}
}

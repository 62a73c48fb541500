package bench

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sonatabench/internal/config"
	"sonatabench/internal/engine"
	"sonatabench/internal/sonata"
)

// mockEngine records the calls made by the runner.
type mockEngine struct {
	calls     []string
	params    engine.KernelParams
	simulated []float64
	nextID    int
	recorded  engine.NodeCollection
}

func (m *mockEngine) ResetKernel() { m.calls = append(m.calls, "ResetKernel"); m.nextID = 0 }

func (m *mockEngine) SetKernelStatus(p engine.KernelParams) error {
	m.calls = append(m.calls, "SetKernelStatus")
	m.params = p
	return nil
}

func (m *mockEngine) Create(model string, n int, _ engine.Params) (engine.NodeCollection, error) {
	m.calls = append(m.calls, "Create")
	ids := make([]int, n)
	for i := range ids {
		m.nextID++
		ids[i] = m.nextID
	}
	return engine.NodeCollection{Model: model, IDs: ids}, nil
}

func (m *mockEngine) Connect(pre, _ []int, _ engine.SynSpec) error {
	m.calls = append(m.calls, "Connect")
	return nil
}

func (m *mockEngine) CreateSpikeRecorder(engine.RecorderParams) (*engine.SpikeRecorder, error) {
	m.calls = append(m.calls, "CreateSpikeRecorder")
	return &engine.SpikeRecorder{}, nil
}

func (m *mockEngine) ConnectRecorder(nodes engine.NodeCollection, _ *engine.SpikeRecorder) error {
	m.calls = append(m.calls, "ConnectRecorder")
	m.recorded = nodes
	return nil
}

func (m *mockEngine) Simulate(_ context.Context, ms float64) error {
	m.calls = append(m.calls, "Simulate")
	m.simulated = append(m.simulated, ms)
	return nil
}

func (m *mockEngine) KernelStatus() map[string]any {
	return map[string]any{"num_connections": 4, "network_size": m.nextID, "resolution": m.params.Resolution}
}

func (m *mockEngine) Rank() int            { return 0 }
func (m *mockEngine) MemoryThisJob() int64 { return 1024 }
func (m *mockEngine) Close() error         { return nil }

func (m *mockEngine) count(call string) int {
	n := 0
	for _, c := range m.calls {
		if c == call {
			n++
		}
	}
	return n
}

type recordingObserver struct {
	started  []Phase
	finished []Phase
}

func (o *recordingObserver) PhaseStarted(p Phase)                { o.started = append(o.started, p) }
func (o *recordingObserver) PhaseFinished(p Phase, _ time.Duration) { o.finished = append(o.finished, p) }

func tiny(simConfig string) config.Example {
	return config.Example{
		BasePath:         filepath.Join("testdata", "tiny"),
		Config:           "circuit_config.json",
		SimConfig:        simConfig,
		PopulationToPlot: "internal",
	}
}

func TestRunRejectsNonNESTBeforeCreate(t *testing.T) {
	m := &mockEngine{}
	r := NewRunner(m, Params{NVP: 1}, nil)
	_, err := r.Run(context.Background(), tiny("sim_neuron.json"))
	if !errors.Is(err, ErrUnsupportedSimulator) {
		t.Fatalf("expected ErrUnsupportedSimulator, got %v", err)
	}
	if !strings.Contains(err.Error(), "NEURON") {
		t.Fatalf("error should name the target simulator: %v", err)
	}
	if n := m.count("Create"); n != 0 {
		t.Fatalf("Create called %d times before the guard failed", n)
	}
	if n := m.count("SetKernelStatus"); n != 0 {
		t.Fatalf("kernel configured before the guard failed")
	}
}

func TestRunSimTimeSelection(t *testing.T) {
	cases := []struct {
		name      string
		simConfig string
		want      float64
		err       error
	}{
		{"tstop wins over duration", "simulation_config.json", 20, nil},
		{"duration fallback", "sim_duration.json", 15, nil},
		{"neither", "sim_notime.json", 0, sonata.ErrNoSimTime},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := &mockEngine{}
			r := NewRunner(m, Params{NVP: 2, PresimTime: 3}, nil)
			_, err := r.Run(context.Background(), tiny(tc.simConfig))
			if !errors.Is(err, tc.err) {
				t.Fatalf("Run error = %v, want %v", err, tc.err)
			}
			if tc.err != nil {
				if m.count("Create") != 0 {
					t.Fatalf("nodes created although the run has no simulation time")
				}
				return
			}
			if len(m.simulated) != 2 || m.simulated[0] != 3 || m.simulated[1] != tc.want {
				t.Fatalf("simulated %v, want [3 %v]", m.simulated, tc.want)
			}
		})
	}
}

func TestRunSequence(t *testing.T) {
	m := &mockEngine{}
	obs := &recordingObserver{}
	r := NewRunner(m, Params{NVP: 4, PresimTime: 5, RecordSpikes: true, Seed: 7}, obs)
	res, err := r.Run(context.Background(), tiny("simulation_config.json"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if m.calls[0] != "ResetKernel" || m.calls[1] != "SetKernelStatus" {
		t.Fatalf("unexpected call order: %v", m.calls)
	}
	p := m.params
	if p.Resolution != 0.1 || p.TotalNumVirtualProcs != 4 || !p.OverwriteFiles || p.RNGSeed != 7 {
		t.Fatalf("unexpected kernel params: %+v", p)
	}
	// The recorder is attached between presimulation and simulation.
	joined := strings.Join(m.calls, ",")
	if !strings.Contains(joined, "Simulate,CreateSpikeRecorder,ConnectRecorder,Simulate") {
		t.Fatalf("recorder not attached between the two Simulate calls: %v", m.calls)
	}
	if m.recorded.Len() != 4 {
		t.Fatalf("recorder connected to %d nodes, want the 4 internal nodes", m.recorded.Len())
	}
	if len(obs.started) != len(Phases) || len(obs.finished) != len(Phases) {
		t.Fatalf("observer saw %v / %v", obs.started, obs.finished)
	}
	for i, ph := range Phases {
		if obs.started[i] != ph || obs.finished[i] != ph {
			t.Fatalf("phase %d = %s/%s, want %s", i, obs.started[i], obs.finished[i], ph)
		}
	}

	wantPrefix := []string{"py_time_presimulate", "py_time_simulate", "py_time_create", "py_time_connect",
		"base_memory", "network_memory", "init_memory"}
	keys := res.Keys()
	for i, k := range wantPrefix {
		if keys[i] != k {
			t.Fatalf("key %d = %s, want %s", i, keys[i], k)
		}
	}
	if v, _ := res.Get("num_connections"); v != 4 {
		t.Fatalf("num_connections = %v", v)
	}
	if res.Len() != len(wantPrefix)+3 {
		t.Fatalf("got %d keys, want %d", res.Len(), len(wantPrefix)+3)
	}
}

func TestRunUnknownPopulationToPlot(t *testing.T) {
	m := &mockEngine{}
	ex := tiny("simulation_config.json")
	ex.PopulationToPlot = "v1"
	r := NewRunner(m, Params{NVP: 1, RecordSpikes: true}, nil)
	if _, err := r.Run(context.Background(), ex); err == nil || !strings.Contains(err.Error(), "v1") {
		t.Fatalf("expected population error, got %v", err)
	}
}

func TestRunWithKernelWritesLogFile(t *testing.T) {
	dir := t.TempDir()
	k := engine.NewKernel(3)
	defer k.Close()
	r := NewRunner(k, Params{NVP: 2, PresimTime: 2, RecordSpikes: true, DataPath: dir}, nil)

	path := filepath.Join(dir, LogFileName("logfile", k.Rank()))
	if filepath.Base(path) != "logfile_3.dat" {
		t.Fatalf("log file name = %s", filepath.Base(path))
	}
	// Running twice must overwrite both the log file and the spike file.
	for i := 0; i < 2; i++ {
		res, err := r.Run(context.Background(), tiny("simulation_config.json"))
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if err := WriteLogFile(path, res); err != nil {
			t.Fatalf("run %d: WriteLogFile: %v", i, err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
		if len(lines) != res.Len() {
			t.Fatalf("run %d: %d lines for %d keys", i, len(lines), res.Len())
		}
		for j, line := range lines {
			key, _, ok := strings.Cut(line, " ")
			if !ok || key != res.Keys()[j] {
				t.Fatalf("line %d = %q, want key %s", j, line, res.Keys()[j])
			}
		}
		if v, _ := res.Get("network_size"); v != 7 {
			t.Fatalf("network_size = %v, want 6 nodes plus the recorder", v)
		}
		if v, _ := res.Get("num_connections"); v != 4 {
			t.Fatalf("num_connections = %v", v)
		}
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "spike_recorder-*-3.dat"))
	if len(matches) != 1 {
		t.Fatalf("expected one spike file, got %v", matches)
	}
}

func TestObserversFanOut(t *testing.T) {
	a, b := &recordingObserver{}, &recordingObserver{}
	obs := Observers{a, nil, b}
	obs.PhaseStarted(PhaseConnect)
	obs.PhaseFinished(PhaseConnect, time.Millisecond)
	for _, o := range []*recordingObserver{a, b} {
		if len(o.started) != 1 || len(o.finished) != 1 || o.finished[0] != PhaseConnect {
			t.Fatalf("observer not notified: %+v", o)
		}
	}
}

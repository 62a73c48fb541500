package engine

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestKernel(t *testing.T, nvp int) *Kernel {
	t.Helper()
	k := NewKernel(0)
	if err := k.SetKernelStatus(KernelParams{Resolution: 0.1, TotalNumVirtualProcs: nvp}); err != nil {
		t.Fatalf("SetKernelStatus: %v", err)
	}
	t.Cleanup(func() { k.Close() })
	return k
}

func TestCreateAssignsContiguousIDs(t *testing.T) {
	k := newTestKernel(t, 3)
	a, err := k.Create("iaf_psc_delta", 4, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	b, err := k.Create("parrot_neuron", 2, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := a.Concat(b).IDs; len(got) != 6 || got[0] != 1 || got[5] != 6 {
		t.Fatalf("unexpected ids %v", got)
	}
	for _, nd := range k.nodes {
		if nd.vp != nd.gid%3 {
			t.Fatalf("node %d on vp %d, want %d", nd.gid, nd.vp, nd.gid%3)
		}
	}
	if n := k.KernelStatus()["network_size"]; n != 6 {
		t.Fatalf("network_size = %v, want 6", n)
	}
}

func TestCreateUnknownModel(t *testing.T) {
	k := newTestKernel(t, 1)
	if _, err := k.Create("hh_psc_alpha", 1, nil); !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("expected ErrUnknownModel, got %v", err)
	}
}

func TestKernelFrozenAfterCreate(t *testing.T) {
	k := newTestKernel(t, 1)
	if _, err := k.Create("iaf_psc_delta", 1, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := k.SetKernelStatus(KernelParams{Resolution: 0.2}); !errors.Is(err, ErrFrozenKernel) {
		t.Fatalf("expected ErrFrozenKernel, got %v", err)
	}
	if err := k.SetKernelStatus(KernelParams{OverwriteFiles: true}); err != nil {
		t.Fatalf("non-structural change rejected: %v", err)
	}
	k.ResetKernel()
	if err := k.SetKernelStatus(KernelParams{Resolution: 0.2}); err != nil {
		t.Fatalf("SetKernelStatus after reset: %v", err)
	}
}

func TestSpikePropagatesWithDelay(t *testing.T) {
	for _, nvp := range []int{1, 2, 4} {
		k := newTestKernel(t, nvp)
		gen, err := k.Create("spike_generator", 1, Params{"spike_times": []float64{1.0}})
		if err != nil {
			t.Fatalf("Create generator: %v", err)
		}
		par, err := k.Create("parrot_neuron", 1, nil)
		if err != nil {
			t.Fatalf("Create parrot: %v", err)
		}
		if err := k.Connect(gen.IDs, par.IDs, SynSpec{Weight: 1, Delay: 1.5}); err != nil {
			t.Fatalf("Connect: %v", err)
		}
		rec, err := k.CreateSpikeRecorder(RecorderParams{})
		if err != nil {
			t.Fatalf("CreateSpikeRecorder: %v", err)
		}
		if err := k.ConnectRecorder(gen.Concat(par), rec); err != nil {
			t.Fatalf("ConnectRecorder: %v", err)
		}
		if err := k.Simulate(context.Background(), 5); err != nil {
			t.Fatalf("Simulate: %v", err)
		}
		ev := rec.Events()
		if len(ev) != 2 {
			t.Fatalf("nvp=%d: expected 2 events, got %v", nvp, ev)
		}
		if ev[0].Sender != 1 || math.Abs(ev[0].TimeMS-1.1) > 1e-9 {
			t.Errorf("nvp=%d: unexpected generator event %+v", nvp, ev[0])
		}
		if ev[1].Sender != 2 || math.Abs(ev[1].TimeMS-2.6) > 1e-9 {
			t.Errorf("nvp=%d: unexpected parrot event %+v", nvp, ev[1])
		}
		st := k.KernelStatus()
		if st["num_connections"] != 1 || st["local_spike_counter"] != int64(2) {
			t.Errorf("nvp=%d: unexpected status %v", nvp, st)
		}
		if math.Abs(st["biological_time"].(float64)-5) > 1e-9 {
			t.Errorf("nvp=%d: biological_time = %v", nvp, st["biological_time"])
		}
	}
}

func TestSplitSimulationMatchesSingleRun(t *testing.T) {
	run := func(chunks ...float64) int64 {
		k := newTestKernel(t, 2)
		nodes, err := k.Create("iaf_psc_delta", 10, Params{"I_e": 500.0})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		pre := nodes.IDs[:9]
		post := nodes.IDs[1:]
		if err := k.Connect(pre, post, SynSpec{Weight: 0.5, Delay: 1}); err != nil {
			t.Fatalf("Connect: %v", err)
		}
		for _, c := range chunks {
			if err := k.Simulate(context.Background(), c); err != nil {
				t.Fatalf("Simulate: %v", err)
			}
		}
		return k.KernelStatus()["local_spike_counter"].(int64)
	}
	single := run(100)
	split := run(33.3, 66.7)
	if single == 0 {
		t.Fatalf("expected driven neurons to spike")
	}
	if single != split {
		t.Fatalf("spike count differs: single=%d split=%d", single, split)
	}
}

func TestConnectRejectsShortDelay(t *testing.T) {
	k := newTestKernel(t, 1)
	n, _ := k.Create("iaf_psc_delta", 2, nil)
	err := k.Connect(n.IDs[:1], n.IDs[1:], SynSpec{Weight: 1, Delay: 0.01})
	if !errors.Is(err, ErrInvalidDelay) {
		t.Fatalf("expected ErrInvalidDelay, got %v", err)
	}
	if err := k.Connect([]int{1}, []int{99}, SynSpec{Weight: 1}); !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("expected ErrUnknownNode, got %v", err)
	}
}

func TestASCIIRecorderOverwrite(t *testing.T) {
	dir := t.TempDir()
	setup := func(overwrite bool) (*Kernel, error) {
		k := NewKernel(0)
		if err := k.SetKernelStatus(KernelParams{Resolution: 0.1, OverwriteFiles: overwrite, DataPath: dir}); err != nil {
			t.Fatalf("SetKernelStatus: %v", err)
		}
		gen, _ := k.Create("spike_generator", 1, Params{"spike_times": []float64{0.5}})
		rec, err := k.CreateSpikeRecorder(RecorderParams{RecordTo: "ascii"})
		if err != nil {
			t.Fatalf("CreateSpikeRecorder: %v", err)
		}
		if err := k.ConnectRecorder(gen, rec); err != nil {
			t.Fatalf("ConnectRecorder: %v", err)
		}
		err = k.Simulate(context.Background(), 1)
		k.Close()
		return k, err
	}

	if _, err := setup(false); err != nil {
		t.Fatalf("first run: %v", err)
	}
	path := filepath.Join(dir, "spike_recorder-2-0.dat")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read recorder file: %v", err)
	}
	if !strings.Contains(string(data), "1\t0.600") {
		t.Fatalf("unexpected recorder output %q", data)
	}
	if _, err := setup(false); !errors.Is(err, ErrFileExists) {
		t.Fatalf("expected ErrFileExists, got %v", err)
	}
	if _, err := setup(true); err != nil {
		t.Fatalf("overwrite run: %v", err)
	}
}

func TestReadVmRSS(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status")
	body := "Name:\tsonatabench\nVmPeak:\t  2000 kB\nVmRSS:\t  1234 kB\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	kib, ok := readVmRSS(path)
	if !ok || kib != 1234 {
		t.Fatalf("readVmRSS = %d, %v", kib, ok)
	}
	if _, ok := readVmRSS(filepath.Join(t.TempDir(), "missing")); ok {
		t.Fatalf("expected failure for missing file")
	}
	if memoryThisJob() <= 0 {
		t.Fatalf("memoryThisJob should be positive")
	}
}

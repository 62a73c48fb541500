// Package engine defines the simulation-engine contract used by the benchmark
// driver and provides Kernel, an in-process point-neuron implementation.
//
// Node ids are 1-based and contiguous per Create call. Times are in
// milliseconds, weights in model units (mV for delta synapses, pA for
// current-based exponential synapses).
package engine

import (
	"context"
	"errors"
)

// Engine is the set of calls the benchmark driver makes into a simulator.
type Engine interface {
	ResetKernel()
	SetKernelStatus(KernelParams) error
	Create(model string, n int, params Params) (NodeCollection, error)
	Connect(pre, post []int, spec SynSpec) error
	CreateSpikeRecorder(RecorderParams) (*SpikeRecorder, error)
	ConnectRecorder(nodes NodeCollection, rec *SpikeRecorder) error
	Simulate(ctx context.Context, ms float64) error
	KernelStatus() map[string]any
	Rank() int
	MemoryThisJob() int64
	Close() error
}

// KernelParams configures the kernel. Zero numeric values leave the current
// setting unchanged.
type KernelParams struct {
	Resolution           float64
	TotalNumVirtualProcs int
	OverwriteFiles       bool
	RNGSeed              uint64
	DataPath             string
	DataPrefix           string
}

// Params holds model parameters. Values are float64 except spike_times,
// which is []float64.
type Params map[string]any

// SynSpec describes the synapses of a one-to-one Connect call. Per-pair
// Weights and Delays take precedence over the scalar fields when set.
type SynSpec struct {
	Model   string
	Weight  float64
	Delay   float64
	Weights []float64
	Delays  []float64
}

// NodeCollection is an ordered set of node ids created by the engine.
type NodeCollection struct {
	Model string
	IDs   []int
}

// Len returns the number of nodes in the collection.
func (c NodeCollection) Len() int { return len(c.IDs) }

// Concat returns a collection holding the ids of c followed by other.
func (c NodeCollection) Concat(other NodeCollection) NodeCollection {
	model := c.Model
	if model != other.Model {
		model = ""
	}
	ids := make([]int, 0, len(c.IDs)+len(other.IDs))
	ids = append(ids, c.IDs...)
	ids = append(ids, other.IDs...)
	return NodeCollection{Model: model, IDs: ids}
}

// RecorderParams configures a spike recorder.
type RecorderParams struct {
	// RecordTo is "memory" (default) or "ascii".
	RecordTo string
	Label    string
}

var (
	ErrUnknownModel   = errors.New("unknown model")
	ErrUnknownNode    = errors.New("unknown node id")
	ErrFrozenKernel   = errors.New("kernel parameter cannot change after nodes were created")
	ErrFileExists     = errors.New("output file exists and overwrite_files is false")
	ErrInvalidDelay   = errors.New("delay must be at least one resolution step")
	ErrLengthMismatch = errors.New("pre and post must have the same length")
)

package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"

	"sonatabench/internal/logging"
)

const (
	defaultResolution = 0.1
	defaultSeed       = 143202461
)

// Kernel is an in-process, multi-threaded point-neuron simulator. Nodes are
// distributed round-robin over virtual processes; each virtual process owns
// its nodes and the synapses targeting them, so updates and spike delivery
// run in parallel without locks. Kernel itself is not safe for concurrent use.
type Kernel struct {
	rank int

	resolution     float64
	nvp            int
	overwriteFiles bool
	seed           uint64
	dataPath       string
	dataPrefix     string

	nodes     []*node
	vps       []*vproc
	recorders []*SpikeRecorder

	numConnections int
	minDelay       int
	maxDelay       int
	ringLen        int
	prepared       bool

	step       int64
	spikeCount int64

	timeCreate   time.Duration
	timeConnect  time.Duration
	timeSimulate time.Duration
}

type node struct {
	gid       int
	vp        int
	model     string
	neuron    neuron
	ring      []float64
	recorders []*SpikeRecorder
}

type synapse struct {
	target *node
	weight float64
	delay  int
}

type vproc struct {
	id     int
	nodes  []*node
	in     map[int][]synapse
	rng    *rand.Rand
	spikes []spikeEvent
}

type spikeEvent struct {
	gid  int
	step int64
}

// NewKernel returns a reset kernel for the given process rank.
func NewKernel(rank int) *Kernel {
	k := &Kernel{rank: rank}
	k.ResetKernel()
	return k
}

// ResetKernel discards all nodes, connections and recorders and restores
// the default kernel parameters.
func (k *Kernel) ResetKernel() {
	k.closeRecorders()
	*k = Kernel{
		rank:       k.rank,
		resolution: defaultResolution,
		nvp:        1,
		seed:       defaultSeed,
	}
	k.initVPs()
}

func (k *Kernel) initVPs() {
	k.vps = make([]*vproc, k.nvp)
	for i := range k.vps {
		k.vps[i] = &vproc{
			id:  i,
			in:  make(map[int][]synapse),
			rng: rand.New(rand.NewPCG(k.seed, uint64(i))),
		}
	}
}

// SetKernelStatus applies p. Resolution and the number of virtual processes
// can only change while the network is empty.
func (k *Kernel) SetKernelStatus(p KernelParams) error {
	if p.Resolution < 0 || p.TotalNumVirtualProcs < 0 {
		return fmt.Errorf("resolution and total_num_virtual_procs must be positive")
	}
	structural := (p.Resolution != 0 && p.Resolution != k.resolution) ||
		(p.TotalNumVirtualProcs != 0 && p.TotalNumVirtualProcs != k.nvp) ||
		(p.RNGSeed != 0 && p.RNGSeed != k.seed)
	if structural && len(k.nodes) > 0 {
		return ErrFrozenKernel
	}
	if p.Resolution != 0 {
		k.resolution = p.Resolution
	}
	if p.TotalNumVirtualProcs != 0 {
		k.nvp = p.TotalNumVirtualProcs
	}
	if p.RNGSeed != 0 {
		k.seed = p.RNGSeed
	}
	if structural {
		k.initVPs()
	}
	k.overwriteFiles = p.OverwriteFiles
	if p.DataPath != "" {
		k.dataPath = p.DataPath
	}
	if p.DataPrefix != "" {
		k.dataPrefix = p.DataPrefix
	}
	return nil
}

// Create adds n nodes of model with identical parameters.
func (k *Kernel) Create(model string, n int, params Params) (NodeCollection, error) {
	start := time.Now()
	defer func() { k.timeCreate += time.Since(start) }()

	if n < 1 {
		return NodeCollection{}, fmt.Errorf("create %s: n must be positive, got %d", model, n)
	}
	coll := NodeCollection{Model: model, IDs: make([]int, 0, n)}
	created := make([]*node, 0, n)
	for i := 0; i < n; i++ {
		nr, err := newNeuron(model, params, k.resolution)
		if err != nil {
			return NodeCollection{}, fmt.Errorf("create %s: %w", model, err)
		}
		gid := len(k.nodes) + len(created) + 1
		created = append(created, &node{gid: gid, vp: gid % k.nvp, model: model, neuron: nr})
		coll.IDs = append(coll.IDs, gid)
	}
	for _, nd := range created {
		k.nodes = append(k.nodes, nd)
		vp := k.vps[nd.vp]
		vp.nodes = append(vp.nodes, nd)
	}
	k.prepared = false
	return coll, nil
}

func (k *Kernel) lookup(gid int) (*node, error) {
	if gid < 1 || gid > len(k.nodes) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNode, gid)
	}
	nd := k.nodes[gid-1]
	if nd == nil {
		return nil, fmt.Errorf("%w: %d is a recorder", ErrUnknownNode, gid)
	}
	return nd, nil
}

// Connect creates one synapse per (pre[i], post[i]) pair.
func (k *Kernel) Connect(pre, post []int, spec SynSpec) error {
	start := time.Now()
	defer func() { k.timeConnect += time.Since(start) }()

	if len(pre) != len(post) {
		return fmt.Errorf("%w: %d != %d", ErrLengthMismatch, len(pre), len(post))
	}
	if spec.Weights != nil && len(spec.Weights) != len(pre) {
		return fmt.Errorf("%w: %d weights for %d pairs", ErrLengthMismatch, len(spec.Weights), len(pre))
	}
	if spec.Delays != nil && len(spec.Delays) != len(pre) {
		return fmt.Errorf("%w: %d delays for %d pairs", ErrLengthMismatch, len(spec.Delays), len(pre))
	}
	if spec.Model != "" && spec.Model != "static_synapse" {
		return fmt.Errorf("%w: synapse %s", ErrUnknownModel, spec.Model)
	}
	for i := range pre {
		if _, err := k.lookup(pre[i]); err != nil {
			return err
		}
		target, err := k.lookup(post[i])
		if err != nil {
			return err
		}
		w, d := spec.Weight, spec.Delay
		if spec.Weights != nil {
			w = spec.Weights[i]
		}
		if spec.Delays != nil {
			d = spec.Delays[i]
		}
		if d == 0 {
			d = 1
		}
		steps := int(math.Round(d / k.resolution))
		if steps < 1 {
			return fmt.Errorf("%w: %v ms at resolution %v ms", ErrInvalidDelay, d, k.resolution)
		}
		vp := k.vps[target.vp]
		vp.in[pre[i]] = append(vp.in[pre[i]], synapse{target: target, weight: w, delay: steps})
		k.numConnections++
		if k.minDelay == 0 || steps < k.minDelay {
			k.minDelay = steps
		}
		if steps > k.maxDelay {
			k.maxDelay = steps
		}
	}
	k.prepared = false
	return nil
}

// prepare sizes ring buffers for the current delay extrema, keeping any
// input already scheduled for future steps.
func (k *Kernel) prepare() {
	if k.prepared {
		return
	}
	if k.minDelay == 0 {
		k.minDelay = int(math.Max(1, math.Round(1/k.resolution)))
		k.maxDelay = k.minDelay
	}
	newLen := k.maxDelay + 1
	for _, nd := range k.nodes {
		if nd == nil {
			continue
		}
		ring := make([]float64, newLen)
		if old := nd.ring; len(old) > 0 {
			for s := k.step; s < k.step+int64(len(old)); s++ {
				ring[s%int64(newLen)] += old[s%int64(len(old))]
			}
		}
		nd.ring = ring
	}
	k.ringLen = newLen
	k.prepared = true
}

// Simulate advances the network by ms, rounded to whole resolution steps.
func (k *Kernel) Simulate(ctx context.Context, ms float64) error {
	if ms < 0 {
		return fmt.Errorf("simulation time must be non-negative, got %v", ms)
	}
	log := logging.FromContext(ctx)
	start := time.Now()
	defer func() { k.timeSimulate += time.Since(start) }()

	k.prepare()
	end := k.step + int64(math.Round(ms/k.resolution))
	for k.step < end {
		if err := ctx.Err(); err != nil {
			return err
		}
		to := min(k.step+int64(k.minDelay), end)
		if err := k.runSlice(k.step, to); err != nil {
			return err
		}
		k.step = to
		log.Log(ctx, logging.LevelTrace, "slice done", "t_ms", float64(to)*k.resolution)
	}
	return k.flushRecorders()
}

func (k *Kernel) runSlice(from, to int64) error {
	var update errgroup.Group
	for _, vp := range k.vps {
		update.Go(func() error {
			vp.spikes = vp.spikes[:0]
			for s := from; s < to; s++ {
				slot := s % int64(k.ringLen)
				for _, nd := range vp.nodes {
					in := nd.ring[slot]
					nd.ring[slot] = 0
					if nd.neuron.update(in, s, vp.rng) {
						vp.spikes = append(vp.spikes, spikeEvent{gid: nd.gid, step: s})
					}
				}
			}
			return nil
		})
	}
	if err := update.Wait(); err != nil {
		return err
	}

	var all []spikeEvent
	for _, vp := range k.vps {
		all = append(all, vp.spikes...)
	}
	k.spikeCount += int64(len(all))
	for _, sp := range all {
		for _, rec := range k.nodes[sp.gid-1].recorders {
			rec.record(sp.gid, float64(sp.step+1)*k.resolution)
		}
	}

	var deliver errgroup.Group
	for _, vp := range k.vps {
		deliver.Go(func() error {
			for _, sp := range all {
				for _, syn := range vp.in[sp.gid] {
					syn.target.ring[(sp.step+int64(syn.delay))%int64(k.ringLen)] += syn.weight
				}
			}
			return nil
		})
	}
	return deliver.Wait()
}

// KernelStatus returns a snapshot of kernel parameters and run statistics.
func (k *Kernel) KernelStatus() map[string]any {
	size := 0
	for _, nd := range k.nodes {
		if nd != nil {
			size++
		}
	}
	size += len(k.recorders)
	minDelay, maxDelay := k.minDelay, k.maxDelay
	if minDelay == 0 {
		d := int(math.Max(1, math.Round(1/k.resolution)))
		minDelay, maxDelay = d, d
	}
	return map[string]any{
		"resolution":                k.resolution,
		"total_num_virtual_procs":   k.nvp,
		"local_num_threads":         k.nvp,
		"num_processes":             1,
		"network_size":              size,
		"num_connections":           k.numConnections,
		"local_spike_counter":       k.spikeCount,
		"biological_time":           float64(k.step) * k.resolution,
		"min_delay":                 float64(minDelay) * k.resolution,
		"max_delay":                 float64(maxDelay) * k.resolution,
		"rng_seed":                  k.seed,
		"overwrite_files":           k.overwriteFiles,
		"data_path":                 k.dataPath,
		"data_prefix":               k.dataPrefix,
		"time_construction_create":  k.timeCreate.Seconds(),
		"time_construction_connect": k.timeConnect.Seconds(),
		"time_simulate":             k.timeSimulate.Seconds(),
	}
}

// Rank returns the process rank used for per-process file names.
func (k *Kernel) Rank() int { return k.rank }

// MemoryThisJob returns the resident memory of this process in KiB.
func (k *Kernel) MemoryThisJob() int64 { return memoryThisJob() }

// Close flushes and closes recorder files.
func (k *Kernel) Close() error {
	err := k.flushRecorders()
	if cerr := k.closeRecorders(); err == nil {
		err = cerr
	}
	return err
}

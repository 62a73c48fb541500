package engine

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// SpikeEvent is one recorded spike.
type SpikeEvent struct {
	Sender int
	TimeMS float64
}

// SpikeRecorder collects spikes of the nodes connected to it. With
// RecordTo "ascii" events are streamed to a per-rank file after every
// Simulate call; otherwise they are kept in memory.
type SpikeRecorder struct {
	GID      int
	Label    string
	RecordTo string

	kernel  *Kernel
	pending []SpikeEvent
	events  []SpikeEvent
	file    *os.File
	w       *bufio.Writer
	nEvents int
}

// CreateSpikeRecorder adds a recorder node.
func (k *Kernel) CreateSpikeRecorder(p RecorderParams) (*SpikeRecorder, error) {
	switch p.RecordTo {
	case "", "memory":
		p.RecordTo = "memory"
	case "ascii":
	default:
		return nil, fmt.Errorf("spike recorder: unsupported record_to %q", p.RecordTo)
	}
	if p.Label == "" {
		p.Label = "spike_recorder"
	}
	k.nodes = append(k.nodes, nil)
	rec := &SpikeRecorder{GID: len(k.nodes), Label: p.Label, RecordTo: p.RecordTo, kernel: k}
	k.recorders = append(k.recorders, rec)
	return rec, nil
}

// ConnectRecorder attaches rec to every node of nodes.
func (k *Kernel) ConnectRecorder(nodes NodeCollection, rec *SpikeRecorder) error {
	if rec == nil || rec.kernel != k {
		return fmt.Errorf("spike recorder does not belong to this kernel")
	}
	for _, gid := range nodes.IDs {
		nd, err := k.lookup(gid)
		if err != nil {
			return err
		}
		nd.recorders = append(nd.recorders, rec)
	}
	return nil
}

// Path returns the file an ascii recorder writes to.
func (r *SpikeRecorder) Path() string {
	name := fmt.Sprintf("%s%s-%d-%d.dat", r.kernel.dataPrefix, r.Label, r.GID, r.kernel.rank)
	return filepath.Join(r.kernel.dataPath, name)
}

// Events returns the spikes recorded in memory mode.
func (r *SpikeRecorder) Events() []SpikeEvent { return r.events }

// NEvents returns the number of spikes recorded so far.
func (r *SpikeRecorder) NEvents() int { return r.nEvents }

func (r *SpikeRecorder) record(gid int, t float64) {
	r.pending = append(r.pending, SpikeEvent{Sender: gid, TimeMS: t})
	r.nEvents++
}

func (r *SpikeRecorder) flush() error {
	if r.RecordTo == "memory" {
		r.events = append(r.events, r.pending...)
		r.pending = r.pending[:0]
		return nil
	}
	if r.file == nil {
		if err := r.open(); err != nil {
			return err
		}
	}
	for _, ev := range r.pending {
		r.w.WriteString(strconv.Itoa(ev.Sender))
		r.w.WriteByte('\t')
		r.w.WriteString(strconv.FormatFloat(ev.TimeMS, 'f', 3, 64))
		r.w.WriteByte('\n')
	}
	r.pending = r.pending[:0]
	return r.w.Flush()
}

func (r *SpikeRecorder) open() error {
	path := r.Path()
	if !r.kernel.overwriteFiles {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrFileExists, path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	r.file = f
	r.w = bufio.NewWriter(f)
	_, err = r.w.WriteString("sender\ttime_ms\n")
	return err
}

func (k *Kernel) flushRecorders() error {
	for _, r := range k.recorders {
		if err := r.flush(); err != nil {
			return fmt.Errorf("spike recorder %d: %w", r.GID, err)
		}
	}
	return nil
}

func (k *Kernel) closeRecorders() error {
	var err error
	for _, r := range k.recorders {
		if r.file == nil {
			continue
		}
		if e := r.w.Flush(); e != nil && err == nil {
			err = e
		}
		if e := r.file.Close(); e != nil && err == nil {
			err = e
		}
		r.file = nil
	}
	return err
}

// Package sonata reads SONATA circuit descriptions and builds them inside an
// engine.Engine.
//
// Circuit and simulation configs are JSON with manifest substitution. Node,
// node-type, edge and edge-type files are space-delimited tables; HDF5 node
// and edge files are rejected with ErrUnsupportedFormat.
package sonata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"sonatabench/internal/engine"
)

const connectBatch = 10000

// Connector builds the network described by a SONATA config.
type Connector struct {
	BasePath string
	Config   Config

	// NodeCollections maps population names to the created nodes, ordered
	// by SONATA node id.
	NodeCollections map[string]engine.NodeCollection
	// EdgeTypes holds one entry per edges file, filled by CreateEdgeDict.
	EdgeTypes []EdgeDict

	gids map[string]map[int]int
}

// EdgeDict describes one edges file and the synapse types it refers to.
type EdgeDict struct {
	EdgesFile string
	Types     map[int]EdgeType
}

// EdgeType is a row of an edge types file.
type EdgeType struct {
	ID            int
	Synapse       string
	Weight        float64
	Delay         float64
	DynamicsParam engine.Params
}

// NewConnector reads config (and simConfig, if non-empty) from basePath.
// Keys of the simulation config override those of the circuit config.
func NewConnector(basePath, config, simConfig string) (*Connector, error) {
	cfg, err := readConfig(filepath.Join(basePath, config))
	if err != nil {
		return nil, err
	}
	if simConfig != "" {
		sim, err := readConfig(filepath.Join(basePath, simConfig))
		if err != nil {
			return nil, err
		}
		if net, ok := sim["network"].(string); ok && cfg.section("networks") == nil {
			circuit, err := readConfig(resolve(basePath, net))
			if err != nil {
				return nil, err
			}
			circuit.merge(cfg)
			cfg = circuit
		}
		cfg.merge(sim)
	}
	return &Connector{
		BasePath:        basePath,
		Config:          cfg,
		NodeCollections: make(map[string]engine.NodeCollection),
		gids:            make(map[string]map[int]int),
	}, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func (c *Connector) path(p string) string { return resolve(c.BasePath, p) }

type nodeType struct {
	model   string
	virtual bool
	params  engine.Params
}

// CreateNodes creates every node population in eng.
func (c *Connector) CreateNodes(eng engine.Engine) error {
	entries, err := c.Config.networkEntries("nodes")
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("circuit config has no networks.nodes entries")
	}
	inputs, err := c.spikeInputs()
	if err != nil {
		return err
	}
	for _, e := range entries {
		types, err := c.readNodeTypes(c.path(e["node_types_file"]))
		if err != nil {
			return err
		}
		if err := c.createNodesFile(eng, c.path(e["nodes_file"]), types, inputs); err != nil {
			return err
		}
	}
	return nil
}

func (c *Connector) readNodeTypes(path string) (map[int]nodeType, error) {
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}
	if err := t.require("node_type_id", "model_type"); err != nil {
		return nil, err
	}
	out := make(map[int]nodeType, len(t.rows))
	for i := range t.rows {
		id, err := t.int(i, "node_type_id")
		if err != nil {
			return nil, err
		}
		nt := nodeType{virtual: t.str(i, "model_type") == "virtual"}
		if nt.virtual {
			nt.model = "spike_generator"
		} else {
			tmpl := t.str(i, "model_template")
			if tmpl == "" {
				return nil, fmt.Errorf("%s: node type %d has no model_template", path, id)
			}
			nt.model = strings.TrimPrefix(tmpl, "nest:")
			nt.params, err = c.dynamicsParams("point_neuron_models_dir", t.str(i, "dynamics_params"))
			if err != nil {
				return nil, fmt.Errorf("node type %d: %w", id, err)
			}
		}
		out[id] = nt
	}
	return out, nil
}

// dynamicsParams loads a JSON parameter file from the given components
// directory.
func (c *Connector) dynamicsParams(dirKey, name string) (engine.Params, error) {
	if name == "" || strings.EqualFold(name, "null") {
		return nil, nil
	}
	path := name
	if !filepath.IsAbs(path) {
		dir := c.Config.component(dirKey)
		if dir == "" {
			dir = c.BasePath
		}
		path = filepath.Join(c.path(dir), name)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dynamics params: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	params := make(engine.Params, len(raw))
	for k, v := range raw {
		if f, ok := v.(float64); ok {
			params[k] = f
		}
	}
	return params, nil
}

type sonataNode struct {
	id       int
	typeID   int
	spikeSet bool
}

func (c *Connector) createNodesFile(eng engine.Engine, path string, types map[int]nodeType, inputs map[string]map[int][]float64) error {
	t, err := readTable(path)
	if err != nil {
		return err
	}
	if err := t.require("node_id", "node_type_id", "population"); err != nil {
		return err
	}
	byPop := make(map[string][]sonataNode)
	for i := range t.rows {
		id, err := t.int(i, "node_id")
		if err != nil {
			return err
		}
		typeID, err := t.int(i, "node_type_id")
		if err != nil {
			return err
		}
		nt, ok := types[typeID]
		if !ok {
			return fmt.Errorf("%s: node %d has unknown node_type_id %d", path, id, typeID)
		}
		pop := t.str(i, "population")
		_, hasSpikes := inputs[pop][id]
		byPop[pop] = append(byPop[pop], sonataNode{id: id, typeID: typeID, spikeSet: hasSpikes && nt.virtual})
	}

	pops := make([]string, 0, len(byPop))
	for p := range byPop {
		pops = append(pops, p)
	}
	sort.Strings(pops)
	for _, pop := range pops {
		if _, dup := c.NodeCollections[pop]; dup {
			return fmt.Errorf("population %q defined twice", pop)
		}
		nodes := byPop[pop]
		sort.Slice(nodes, func(i, j int) bool { return nodes[i].id < nodes[j].id })
		coll, err := c.createPopulation(eng, pop, nodes, types, inputs[pop])
		if err != nil {
			return fmt.Errorf("population %s: %w", pop, err)
		}
		c.NodeCollections[pop] = coll
	}
	return nil
}

// createPopulation creates runs of consecutive nodes sharing a type with a
// single Create call. Virtual nodes with spike input are created one by one.
func (c *Connector) createPopulation(eng engine.Engine, pop string, nodes []sonataNode, types map[int]nodeType, spikes map[int][]float64) (engine.NodeCollection, error) {
	index := make(map[int]int, len(nodes))
	var coll engine.NodeCollection
	for i := 0; i < len(nodes); {
		n := nodes[i]
		if i > 0 && n.id == nodes[i-1].id {
			return engine.NodeCollection{}, fmt.Errorf("duplicate node_id %d", n.id)
		}
		nt := types[n.typeID]
		j := i + 1
		if !n.spikeSet {
			for j < len(nodes) && nodes[j].typeID == n.typeID && !nodes[j].spikeSet && nodes[j].id != nodes[j-1].id {
				j++
			}
		}
		params := nt.params
		if n.spikeSet {
			params = engine.Params{"spike_times": spikes[n.id]}
		}
		created, err := eng.Create(nt.model, j-i, params)
		if err != nil {
			return engine.NodeCollection{}, err
		}
		for k, gid := range created.IDs {
			index[nodes[i+k].id] = gid
		}
		if i == 0 {
			coll = created
		} else {
			coll = coll.Concat(created)
		}
		i = j
	}
	c.gids[pop] = index
	return coll, nil
}

// GID returns the engine node id of a SONATA node, or false.
func (c *Connector) GID(population string, nodeID int) (int, bool) {
	gid, ok := c.gids[population][nodeID]
	return gid, ok
}

// CreateEdgeDict reads the edge type files of every edges entry.
func (c *Connector) CreateEdgeDict() error {
	entries, err := c.Config.networkEntries("edges")
	if err != nil {
		return err
	}
	c.EdgeTypes = c.EdgeTypes[:0]
	for _, e := range entries {
		types, err := c.readEdgeTypes(c.path(e["edge_types_file"]))
		if err != nil {
			return err
		}
		c.EdgeTypes = append(c.EdgeTypes, EdgeDict{EdgesFile: c.path(e["edges_file"]), Types: types})
	}
	return nil
}

func (c *Connector) readEdgeTypes(path string) (map[int]EdgeType, error) {
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}
	if err := t.require("edge_type_id"); err != nil {
		return nil, err
	}
	out := make(map[int]EdgeType, len(t.rows))
	for i := range t.rows {
		id, err := t.int(i, "edge_type_id")
		if err != nil {
			return nil, err
		}
		et := EdgeType{ID: id, Synapse: strings.TrimPrefix(t.str(i, "model_template"), "nest:")}
		if et.Synapse == "" || strings.EqualFold(et.Synapse, "null") {
			et.Synapse = "static_synapse"
		}
		if et.Weight, err = t.float(i, "syn_weight", 1); err != nil {
			return nil, err
		}
		if et.Delay, err = t.float(i, "delay", 1); err != nil {
			return nil, err
		}
		if et.DynamicsParam, err = c.dynamicsParams("synaptic_models_dir", t.str(i, "dynamics_params")); err != nil {
			return nil, fmt.Errorf("edge type %d: %w", id, err)
		}
		out[id] = et
	}
	return out, nil
}

// Connect reads every edges file of the edge dictionary and connects the
// listed pairs one-to-one in eng. Per-edge syn_weight and delay override
// the edge type; the weight is multiplied by nsyns when present.
func (c *Connector) Connect(ctx context.Context, eng engine.Engine) error {
	for _, d := range c.EdgeTypes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.connectFile(eng, d); err != nil {
			return err
		}
	}
	return nil
}

type pending struct {
	pre, post      []int
	weight, delays []float64
}

func (c *Connector) connectFile(eng engine.Engine, d EdgeDict) error {
	t, err := readTable(d.EdgesFile)
	if err != nil {
		return err
	}
	if err := t.require("edge_type_id", "source_population", "source_node_id", "target_population", "target_node_id"); err != nil {
		return err
	}

	batches := make(map[int]*pending)
	flush := func(typeID int) error {
		b := batches[typeID]
		if b == nil || len(b.pre) == 0 {
			return nil
		}
		et := d.Types[typeID]
		spec := engine.SynSpec{Model: et.Synapse, Weights: b.weight, Delays: b.delays}
		if err := eng.Connect(b.pre, b.post, spec); err != nil {
			return fmt.Errorf("%s: edge type %d: %w", d.EdgesFile, typeID, err)
		}
		batches[typeID] = &pending{}
		return nil
	}

	for i := range t.rows {
		typeID, err := t.int(i, "edge_type_id")
		if err != nil {
			return err
		}
		et, ok := d.Types[typeID]
		if !ok {
			return fmt.Errorf("%s:%d: unknown edge_type_id %d", d.EdgesFile, i+2, typeID)
		}
		pre, err := c.endpoint(t, i, "source")
		if err != nil {
			return err
		}
		post, err := c.endpoint(t, i, "target")
		if err != nil {
			return err
		}
		w, err := t.float(i, "syn_weight", et.Weight)
		if err != nil {
			return err
		}
		nsyns, err := t.float(i, "nsyns", 1)
		if err != nil {
			return err
		}
		delay, err := t.float(i, "delay", et.Delay)
		if err != nil {
			return err
		}

		b := batches[typeID]
		if b == nil {
			b = &pending{}
			batches[typeID] = b
		}
		b.pre = append(b.pre, pre)
		b.post = append(b.post, post)
		b.weight = append(b.weight, w*nsyns)
		b.delays = append(b.delays, delay)
		if len(b.pre) >= connectBatch {
			if err := flush(typeID); err != nil {
				return err
			}
		}
	}

	ids := make([]int, 0, len(batches))
	for id := range batches {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if err := flush(id); err != nil {
			return err
		}
	}
	return nil
}

func (c *Connector) endpoint(t *table, row int, side string) (int, error) {
	pop := t.str(row, side+"_population")
	id, err := t.int(row, side+"_node_id")
	if err != nil {
		return 0, err
	}
	gid, ok := c.GID(pop, id)
	if !ok {
		return 0, fmt.Errorf("%s:%d: %s node %s/%d does not exist", t.path, row+2, side, pop, id)
	}
	return gid, nil
}

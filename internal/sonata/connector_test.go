package sonata

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sonatabench/internal/engine"
)

// writeFixture lays out a two-population circuit: three iaf_psc_delta
// neurons in "internal" driven by two virtual nodes in "external".
func writeFixture(t *testing.T, run string) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"circuit_config.json": `{
  "manifest": {"$BASE_DIR": ".", "$NETWORK_DIR": "$BASE_DIR/network", "$COMPONENTS_DIR": "${BASE_DIR}/components"},
  "components": {
    "point_neuron_models_dir": "$COMPONENTS_DIR/cell_models",
    "synaptic_models_dir": "$COMPONENTS_DIR/synaptic_models"
  },
  "networks": {
    "nodes": [
      {"nodes_file": "$NETWORK_DIR/internal_nodes.csv", "node_types_file": "$NETWORK_DIR/internal_node_types.csv"},
      {"nodes_file": "$NETWORK_DIR/external_nodes.csv", "node_types_file": "$NETWORK_DIR/external_node_types.csv"}
    ],
    "edges": [
      {"edges_file": "$NETWORK_DIR/external_internal_edges.csv", "edge_types_file": "$NETWORK_DIR/external_internal_edge_types.csv"},
      {"edges_file": "$NETWORK_DIR/internal_internal_edges.csv", "edge_types_file": "$NETWORK_DIR/internal_internal_edge_types.csv"}
    ]
  }
}`,
		"simulation_config.json": `{
  "manifest": {"$BASE_DIR": ".", "$INPUT_DIR": "$BASE_DIR/inputs"},
  "target_simulator": "NEST",
  "run": ` + run + `,
  "inputs": {
    "external_spikes": {"input_type": "spikes", "module": "csv", "input_file": "$INPUT_DIR/external_spikes.csv", "node_set": "external"}
  }
}`,
		"components/cell_models/iaf.json":        `{"V_th": -55.0, "V_reset": -70.0, "tau_m": 10.0, "C_m": 250.0, "comment": "ignored"}`,
		"components/synaptic_models/static.json": `{}`,
		"network/internal_node_types.csv":        "node_type_id model_type model_template dynamics_params\n100 point_process nest:iaf_psc_delta iaf.json\n101 point_process nest:parrot_neuron NULL\n",
		"network/internal_nodes.csv":             "node_id node_type_id population\n2 100 internal\n0 100 internal\n1 101 internal\n",
		"network/external_node_types.csv":        "node_type_id model_type\n200 virtual\n",
		"network/external_nodes.csv":             "node_id node_type_id population\n0 200 external\n1 200 external\n",
		"network/external_internal_edge_types.csv": "edge_type_id model_template dynamics_params syn_weight delay\n" +
			"1 static_synapse static.json 20.0 1.0\n",
		"network/external_internal_edges.csv": "edge_type_id source_population source_node_id target_population target_node_id nsyns\n" +
			"1 external 0 internal 0 2\n1 external 1 internal 2 1\n",
		"network/internal_internal_edge_types.csv": "edge_type_id,model_template,syn_weight,delay\n2,static_synapse,5.0,2.0\n",
		"network/internal_internal_edges.csv":      "edge_type_id,source_population,source_node_id,target_population,target_node_id,syn_weight\n2,internal,0,internal,1,\n2,internal,2,internal,1,7.5\n",
		"inputs/external_spikes.csv":               "timestamps population node_ids\n1.0 external 0\n3.0 external 0\n2.0 external 1\n",
	}
	for name, body := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestNewConnectorMergesConfigs(t *testing.T) {
	dir := writeFixture(t, `{"tstop": 100.0, "duration": 50.0, "dt": 0.1}`)
	c, err := NewConnector(dir, "circuit_config.json", "simulation_config.json")
	if err != nil {
		t.Fatalf("NewConnector: %v", err)
	}
	if got := c.Config.TargetSimulator(); got != "NEST" {
		t.Fatalf("target_simulator = %q", got)
	}
	dt, err := c.Config.DT()
	if err != nil || dt != 0.1 {
		t.Fatalf("DT() = %v, %v", dt, err)
	}
	simtime, err := c.Config.SimTime()
	if err != nil || simtime != 100 {
		t.Fatalf("SimTime() = %v, %v; tstop must win over duration", simtime, err)
	}
	models := c.Config.component("point_neuron_models_dir")
	if !filepath.IsAbs(models) || !strings.HasSuffix(models, filepath.Join("components", "cell_models")) {
		t.Fatalf("manifest not expanded: %q", models)
	}
}

func TestSimTimeFallbacks(t *testing.T) {
	cases := []struct {
		run  string
		want float64
		err  error
	}{
		{`{"duration": 50.0, "dt": 0.1}`, 50, nil},
		{`{"tstop": 10.0, "dt": 0.1}`, 10, nil},
		{`{"dt": 0.1}`, 0, ErrNoSimTime},
	}
	for _, tc := range cases {
		c, err := NewConnector(writeFixture(t, tc.run), "circuit_config.json", "simulation_config.json")
		if err != nil {
			t.Fatalf("NewConnector: %v", err)
		}
		got, err := c.Config.SimTime()
		if !errors.Is(err, tc.err) || got != tc.want {
			t.Errorf("run %s: SimTime() = %v, %v; want %v, %v", tc.run, got, err, tc.want, tc.err)
		}
	}
}

func TestCreateNodesAndConnect(t *testing.T) {
	dir := writeFixture(t, `{"tstop": 10.0, "dt": 0.1}`)
	c, err := NewConnector(dir, "circuit_config.json", "simulation_config.json")
	if err != nil {
		t.Fatalf("NewConnector: %v", err)
	}
	k := engine.NewKernel(0)
	defer k.Close()
	if err := k.SetKernelStatus(engine.KernelParams{Resolution: 0.1}); err != nil {
		t.Fatalf("SetKernelStatus: %v", err)
	}
	if err := c.CreateNodes(k); err != nil {
		t.Fatalf("CreateNodes: %v", err)
	}
	if got := c.NodeCollections["internal"].Len(); got != 3 {
		t.Fatalf("internal population has %d nodes, want 3", got)
	}
	if got := c.NodeCollections["external"].Len(); got != 2 {
		t.Fatalf("external population has %d nodes, want 2", got)
	}
	// Node ids are ordered by SONATA node_id regardless of file order.
	g0, _ := c.GID("internal", 0)
	g1, _ := c.GID("internal", 1)
	g2, _ := c.GID("internal", 2)
	if !(g0 < g1 && g1 < g2) {
		t.Fatalf("gids not ordered by node_id: %d %d %d", g0, g1, g2)
	}

	if err := c.CreateEdgeDict(); err != nil {
		t.Fatalf("CreateEdgeDict: %v", err)
	}
	if len(c.EdgeTypes) != 2 || c.EdgeTypes[0].Types[1].Weight != 20 || c.EdgeTypes[1].Types[2].Delay != 2 {
		t.Fatalf("unexpected edge dict: %+v", c.EdgeTypes)
	}
	if err := c.Connect(context.Background(), k); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	st := k.KernelStatus()
	if st["num_connections"] != 4 || st["network_size"] != 5 {
		t.Fatalf("unexpected kernel status: %v", st)
	}
	if err := k.Simulate(context.Background(), 10); err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if st := k.KernelStatus(); st["local_spike_counter"].(int64) < 3 {
		t.Fatalf("expected at least the three input spikes, got %v", st["local_spike_counter"])
	}
}

func TestCreateNodesRejectsHDF5(t *testing.T) {
	dir := writeFixture(t, `{"tstop": 10.0, "dt": 0.1}`)
	cfg := `{"networks": {"nodes": [{"nodes_file": "nodes.h5", "node_types_file": "network/external_node_types.csv"}]}}`
	if err := os.WriteFile(filepath.Join(dir, "h5_config.json"), []byte(cfg), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := NewConnector(dir, "h5_config.json", "")
	if err != nil {
		t.Fatalf("NewConnector: %v", err)
	}
	err = c.CreateNodes(engine.NewKernel(0))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestConnectUnknownNode(t *testing.T) {
	dir := writeFixture(t, `{"tstop": 10.0, "dt": 0.1}`)
	bad := "edge_type_id source_population source_node_id target_population target_node_id\n1 external 0 internal 9\n"
	if err := os.WriteFile(filepath.Join(dir, "network/external_internal_edges.csv"), []byte(bad), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := NewConnector(dir, "circuit_config.json", "simulation_config.json")
	if err != nil {
		t.Fatalf("NewConnector: %v", err)
	}
	k := engine.NewKernel(0)
	if err := c.CreateNodes(k); err != nil {
		t.Fatalf("CreateNodes: %v", err)
	}
	if err := c.CreateEdgeDict(); err != nil {
		t.Fatalf("CreateEdgeDict: %v", err)
	}
	if err := c.Connect(context.Background(), k); err == nil || !strings.Contains(err.Error(), "internal/9") {
		t.Fatalf("expected missing node error, got %v", err)
	}
}

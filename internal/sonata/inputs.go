package sonata

import (
	"fmt"
	"sort"
)

// spikeInputs collects spike trains of all "spikes" inputs, keyed by
// population and node id. Input files use the columns
// "timestamps population node_ids".
func (c *Connector) spikeInputs() (map[string]map[int][]float64, error) {
	out := make(map[string]map[int][]float64)
	inputs := c.Config.section("inputs")
	names := make([]string, 0, len(inputs))
	for n := range inputs {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, name := range names {
		in, ok := inputs[name].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("inputs.%s is not an object", name)
		}
		if typ, _ := in["input_type"].(string); typ != "spikes" {
			continue
		}
		file, _ := in["input_file"].(string)
		if file == "" {
			return nil, fmt.Errorf("inputs.%s has no input_file", name)
		}
		t, err := readTable(c.path(file))
		if err != nil {
			return nil, fmt.Errorf("inputs.%s: %w", name, err)
		}
		if err := t.require("timestamps", "population", "node_ids"); err != nil {
			return nil, err
		}
		for i := range t.rows {
			ts, err := t.float(i, "timestamps", -1)
			if err != nil {
				return nil, err
			}
			if ts < 0 {
				return nil, fmt.Errorf("%s:%d: negative or missing timestamp", t.path, i+2)
			}
			id, err := t.int(i, "node_ids")
			if err != nil {
				return nil, err
			}
			pop := t.str(i, "population")
			if out[pop] == nil {
				out[pop] = make(map[int][]float64)
			}
			out[pop][id] = append(out[pop][id], ts)
		}
	}
	return out, nil
}

package sonata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrNoSimTime is returned when run has neither tstop nor duration.
	ErrNoSimTime = errors.New("run section has neither tstop nor duration")
	// ErrUnsupportedFormat is returned for node or edge files the connector
	// cannot read, such as HDF5.
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// Config is the merged circuit and simulation configuration after manifest
// substitution.
type Config map[string]any

func readConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	if err := cfg.expandManifest(dir); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// expandManifest substitutes $VAR and ${VAR} manifest entries in every
// string value. $BASE_DIR defaults to configDir; relative manifest paths
// resolve against configDir.
func (c Config) expandManifest(configDir string) error {
	raw, _ := c["manifest"].(map[string]any)
	vars := map[string]string{"BASE_DIR": configDir, "configdir": configDir}
	for k, v := range raw {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("manifest entry %s is not a string", k)
		}
		vars[strings.TrimPrefix(k, "$")] = s
	}

	// Resolve manifest entries against each other, bounded by the number of
	// entries so cycles terminate.
	names := make([]string, 0, len(vars))
	for k := range vars {
		names = append(names, k)
	}
	sort.Strings(names)
	for range names {
		changed := false
		for _, k := range names {
			if s := substitute(vars[k], vars); s != vars[k] {
				vars[k] = s
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	for _, k := range names {
		if strings.Contains(vars[k], "$") {
			return fmt.Errorf("manifest entry %s does not resolve: %s", k, vars[k])
		}
		if !filepath.IsAbs(vars[k]) {
			vars[k] = filepath.Join(configDir, vars[k])
		}
	}
	vars["BASE_DIR"] = filepath.Clean(vars["BASE_DIR"])

	for k, v := range c {
		if k == "manifest" {
			continue
		}
		c[k] = substituteAll(v, vars)
	}
	return nil
}

func substitute(s string, vars map[string]string) string {
	return os.Expand(s, func(name string) string {
		if v, ok := vars[name]; ok {
			return v
		}
		return "$" + name
	})
}

func substituteAll(v any, vars map[string]string) any {
	switch x := v.(type) {
	case string:
		return substitute(x, vars)
	case map[string]any:
		for k, e := range x {
			x[k] = substituteAll(e, vars)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = substituteAll(e, vars)
		}
		return x
	default:
		return v
	}
}

// merge overlays the top-level keys of other onto c.
func (c Config) merge(other Config) {
	for k, v := range other {
		c[k] = v
	}
}

// TargetSimulator returns the target_simulator entry, or "" if absent.
func (c Config) TargetSimulator() string {
	s, _ := c["target_simulator"].(string)
	return s
}

// Run returns the run section.
func (c Config) Run() map[string]any {
	r, _ := c["run"].(map[string]any)
	return r
}

// DT returns run.dt in milliseconds.
func (c Config) DT() (float64, error) {
	dt, ok := c.Run()["dt"].(float64)
	if !ok {
		return 0, fmt.Errorf("run.dt missing or not a number")
	}
	if dt <= 0 {
		return 0, fmt.Errorf("run.dt must be positive, got %v", dt)
	}
	return dt, nil
}

// SimTime returns run.tstop if present, otherwise run.duration.
func (c Config) SimTime() (float64, error) {
	run := c.Run()
	key := "tstop"
	if _, ok := run[key]; !ok {
		key = "duration"
	}
	raw, ok := run[key]
	if !ok {
		return 0, ErrNoSimTime
	}
	t, ok := raw.(float64)
	if !ok {
		return 0, fmt.Errorf("run.%s is not a number", key)
	}
	return t, nil
}

func (c Config) section(key string) map[string]any {
	m, _ := c[key].(map[string]any)
	return m
}

func (c Config) component(key string) string {
	s, _ := c.section("components")[key].(string)
	return s
}

// networkEntries returns the networks.<kind> list as string maps.
func (c Config) networkEntries(kind string) ([]map[string]string, error) {
	list, _ := c.section("networks")[kind].([]any)
	out := make([]map[string]string, 0, len(list))
	for i, e := range list {
		m, ok := e.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("networks.%s[%d] is not an object", kind, i)
		}
		entry := make(map[string]string, len(m))
		for k, v := range m {
			if s, ok := v.(string); ok {
				entry[k] = s
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

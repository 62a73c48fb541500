// Package dashboard renders the Grafana dashboard for benchmark results
// stored in GreptimeDB.
package dashboard

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

//go:embed templates/*.json.tmpl
var templates embed.FS

// Options are the values substituted into the dashboard templates.
type Options struct {
	// Table is the GreptimeDB table holding the results.
	Table string
}

// Render parses the dashboard templates and writes the rendered dashboards
// to outDir. The datasource uid comes from GREPTIMEDB_DATASOURCE_UID.
func Render(outDir string, opts Options) error {
	if opts.Table == "" {
		return fmt.Errorf("dashboard table name is empty")
	}
	funcMap := template.FuncMap{
		"env": func(key string) (string, error) {
			v := os.Getenv(key)
			if v == "" {
				return "", fmt.Errorf("environment variable %s not set", key)
			}
			return v, nil
		},
	}

	t, err := template.New("dashboards").Funcs(funcMap).ParseFS(templates, "templates/*.json.tmpl")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for _, tpl := range t.Templates() {
		name := tpl.Name()
		if !strings.HasSuffix(name, ".tmpl") {
			continue
		}
		outPath := filepath.Join(outDir, strings.TrimSuffix(name, ".tmpl"))
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		if err := tpl.Execute(f, opts); err != nil {
			f.Close()
			os.Remove(outPath)
			return fmt.Errorf("rendering %s: %w", name, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}

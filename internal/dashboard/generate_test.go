package dashboard

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderMissingEnv(t *testing.T) {
	t.Setenv("GREPTIMEDB_DATASOURCE_UID", "")
	dir := t.TempDir()
	if err := Render(dir, Options{Table: "sonata_benchmark"}); err == nil {
		t.Fatalf("expected error for missing env vars")
	}
	if _, err := os.Stat(filepath.Join(dir, "sonata-benchmark-dashboard.json")); err == nil {
		t.Fatalf("partial dashboard left behind")
	}
}

func TestRenderMissingTable(t *testing.T) {
	t.Setenv("GREPTIMEDB_DATASOURCE_UID", "uid1")
	if err := Render(t.TempDir(), Options{}); err == nil {
		t.Fatalf("expected error for empty table")
	}
}

func TestRenderSuccess(t *testing.T) {
	t.Setenv("GREPTIMEDB_DATASOURCE_UID", "uid1")

	dir := t.TempDir()
	if err := Render(dir, Options{Table: "glif_runs"}); err != nil {
		t.Fatalf("render failed: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "sonata-benchmark-dashboard.json"))
	if err != nil {
		t.Fatalf("read dashboard: %v", err)
	}
	if !strings.Contains(string(b), "uid1") {
		t.Fatalf("greptime uid not rendered")
	}
	if !strings.Contains(string(b), "FROM glif_runs") {
		t.Fatalf("table not rendered")
	}
	var v map[string]any
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("dashboard is not valid JSON: %v", err)
	}
}

package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"sonatabench/internal/bench"
)

func newReport(id string, started time.Time, simTime float64) bench.Report {
	res := bench.NewResults()
	res.Set("py_time_simulate", simTime)
	res.Set("base_memory", int64(4096))
	res.Set("num_connections", 1200)
	res.Set("overwrite_files", true)
	return bench.Report{ID: id, Example: "300_pointneurons", Rank: 0, NVP: 4, StartedAt: started, Results: res}
}

func TestSaveListGet(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := s.Save(ctx, newReport(id, base.Add(time.Duration(i)*time.Hour), float64(i)+0.5)); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}

	list, err := s.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != "c" || list[1].ID != "b" {
		t.Fatalf("List(2) = %+v, want newest first", list)
	}
	if list[0].SimulateTime != 2.5 || list[0].NumConnections != 1200 || list[0].NVP != 4 {
		t.Fatalf("unexpected summary: %+v", list[0])
	}
	all, err := s.List(ctx, 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("List(0) = %d rows, %v", len(all), err)
	}

	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.StartedAt.Equal(base) {
		t.Fatalf("StartedAt = %v, want %v", got.StartedAt, base)
	}
	keys := got.Results.Keys()
	want := []string{"py_time_simulate", "base_memory", "num_connections", "overwrite_files"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v", keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
	}
	if v, _ := got.Results.Get("overwrite_files"); v != true {
		t.Fatalf("overwrite_files = %#v", v)
	}
}

func TestGetUnknown(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveReplacesAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	now := time.Now()
	if err := s.Save(ctx, newReport("x", now, 1)); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, newReport("x", now, 9)); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	list, err := s.List(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].SimulateTime != 9 {
		t.Fatalf("expected a single replaced row, got %+v", list)
	}
}

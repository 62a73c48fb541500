package output

import (
	"context"

	"sonatabench/internal/bench"
	"sonatabench/internal/history"
)

// HistoryWriter records reports in the SQLite run history.
type HistoryWriter struct {
	store *history.Store
}

// NewHistoryWriter opens the history database at path.
func NewHistoryWriter(path string) (*HistoryWriter, error) {
	s, err := history.Open(path)
	if err != nil {
		return nil, err
	}
	return &HistoryWriter{store: s}, nil
}

// WriteReport saves r.
func (w *HistoryWriter) WriteReport(r bench.Report) error {
	return w.store.Save(context.Background(), r)
}

// Close closes the database.
func (w *HistoryWriter) Close() error { return w.store.Close() }

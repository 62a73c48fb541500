package output

import (
	"path/filepath"

	"sonatabench/internal/bench"
)

// FileWriter writes the per-rank "<prefix>_<rank>.dat" log file into Dir.
type FileWriter struct {
	Dir    string
	Prefix string
}

// NewFileWriter creates a FileWriter. An empty prefix means "logfile".
func NewFileWriter(dir, prefix string) *FileWriter {
	if prefix == "" {
		prefix = "logfile"
	}
	return &FileWriter{Dir: dir, Prefix: prefix}
}

// Path returns the log file name used for rank.
func (f *FileWriter) Path(rank int) string {
	return filepath.Join(f.Dir, bench.LogFileName(f.Prefix, rank))
}

// WriteReport replaces the log file of r.Rank.
func (f *FileWriter) WriteReport(r bench.Report) error {
	return bench.WriteLogFile(f.Path(r.Rank), r.Results)
}

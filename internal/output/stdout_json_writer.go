package output

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"sonatabench/internal/bench"
)

// JSONStdoutWriter prints each report as one JSON object per line.
type JSONStdoutWriter struct {
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

type jsonReport struct {
	RunID     string         `json:"run_id"`
	Example   string         `json:"example"`
	Rank      int            `json:"rank"`
	NVP       int            `json:"nvp"`
	StartedAt time.Time      `json:"started_at"`
	Results   *bench.Results `json:"results"`
}

// WriteReport outputs r in JSON format.
func (w *JSONStdoutWriter) WriteReport(r bench.Report) error {
	data, err := json.Marshal(jsonReport{
		RunID:     r.ID,
		Example:   r.Example,
		Rank:      r.Rank,
		NVP:       r.NVP,
		StartedAt: r.StartedAt,
		Results:   r.Results,
	})
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.out.Write(data)
	return err
}

// Package output publishes finished benchmark reports to files, the
// terminal, GreptimeDB and the run history.
package output

import (
	"errors"

	"sonatabench/internal/bench"
)

// ReportWriter receives finished benchmark reports.
type ReportWriter interface {
	WriteReport(r bench.Report) error
}

// MultiWriter fans a report out to several writers.
type MultiWriter struct {
	writers []ReportWriter
}

// NewMultiWriter creates a MultiWriter. Nil writers are skipped.
func NewMultiWriter(ws ...ReportWriter) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range ws {
		if w != nil {
			mw.writers = append(mw.writers, w)
		}
	}
	return mw
}

// WriteReport sends r to every writer. All writers are tried; their errors
// are joined.
func (mw *MultiWriter) WriteReport(r bench.Report) error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.WriteReport(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Writers returns the wrapped writers.
func (mw *MultiWriter) Writers() []ReportWriter { return mw.writers }

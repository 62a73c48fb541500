package output

import (
	"os"

	"golang.org/x/term"
)

// NewStdoutWriter returns a ColorStdoutWriter when stdout is a terminal and
// a JSONStdoutWriter otherwise, so piped output stays machine-readable.
func NewStdoutWriter() ReportWriter {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return NewColorStdoutWriter()
	}
	return NewJSONStdoutWriter()
}

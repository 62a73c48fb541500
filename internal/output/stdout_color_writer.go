package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"sonatabench/internal/bench"
)

const (
	colorReset  = "\x1b[0m"
	colorRed    = "\x1b[31m"
	colorGreen  = "\x1b[32m"
	colorYellow = "\x1b[33m"
	colorBlue   = "\x1b[34m"
	colorCyan   = "\x1b[36m"
	colorGray   = "\x1b[90m"
)

// ColorStdoutWriter prints reports as aligned key/value columns, coloured by
// kind of measurement when colorize is set.
type ColorStdoutWriter struct {
	out      io.Writer
	colorize bool
}

// NewColorStdoutWriter writes to os.Stdout and colours only when it is a
// terminal.
func NewColorStdoutWriter() *ColorStdoutWriter {
	return &ColorStdoutWriter{out: os.Stdout, colorize: term.IsTerminal(int(os.Stdout.Fd()))}
}

func (w *ColorStdoutWriter) paint(color, s string) string {
	if !w.colorize {
		return s
	}
	return color + s + colorReset
}

// keyColor groups keys into timings, memory and everything else.
func keyColor(key string) string {
	switch {
	case strings.HasPrefix(key, "py_time_"), strings.HasPrefix(key, "time_"):
		return colorGreen
	case strings.HasSuffix(key, "_memory"):
		return colorYellow
	case strings.HasPrefix(key, "num_"), key == "network_size", key == "local_spike_counter":
		return colorCyan
	default:
		return colorBlue
	}
}

// WriteReport prints r.
func (w *ColorStdoutWriter) WriteReport(r bench.Report) error {
	fmt.Fprintf(w.out, "%s run=%s example=%s rank=%d nvp=%d\n",
		w.paint(colorGray, "["+r.StartedAt.Format(time.RFC3339)+"]"),
		r.ID, r.Example, r.Rank, r.NVP)
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	for _, k := range r.Results.Keys() {
		v, _ := r.Results.Get(k)
		val := bench.FormatValue(v)
		if b, ok := v.(bool); ok && !b {
			val = w.paint(colorRed, val)
		}
		fmt.Fprintf(tw, "  %s\t%s\n", w.paint(keyColor(k), k), val)
	}
	return tw.Flush()
}

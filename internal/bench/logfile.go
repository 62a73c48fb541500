package bench

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
)

// LogFileName returns the per-process log file name, "<prefix>_<rank>.dat".
func LogFileName(prefix string, rank int) string {
	return fmt.Sprintf("%s_%d.dat", prefix, rank)
}

// WriteLog writes one "<key> <value>" line per result in key order.
func WriteLog(w io.Writer, r *Results) error {
	bw := bufio.NewWriter(w)
	for _, k := range r.keys {
		if _, err := fmt.Fprintf(bw, "%s %s\n", k, FormatValue(r.values[k])); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteLogFile writes r to path, replacing any existing file.
func WriteLogFile(path string, r *Results) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteLog(f, r); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// ParseLog reads "<key> <value>" lines. Values are decoded as bool
// (True/False), int64, float64 or left as strings.
func ParseLog(rd io.Reader) (*Results, error) {
	res := NewResults()
	sc := bufio.NewScanner(rd)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		key, val, ok := strings.Cut(text, " ")
		if !ok || key == "" {
			return nil, fmt.Errorf("line %d: expected \"key value\", got %q", line, text)
		}
		res.Set(key, parseValue(val))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// ParseLogFile reads a log file written by WriteLogFile.
func ParseLogFile(path string) (*Results, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	res, err := ParseLog(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return res, nil
}

func parseValue(s string) any {
	switch s {
	case "True":
		return true
	case "False":
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// FormatValue renders v the way the log file has always shown it: booleans
// as True/False, floats with at least one decimal, lists as "[a, b]".
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case bool:
		if x {
			return "True"
		}
		return "False"
	case string:
		return x
	case float64:
		return formatFloat(x)
	case float32:
		return formatFloat(float64(x))
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		parts := make([]string, rv.Len())
		for i := range parts {
			e := rv.Index(i).Interface()
			if s, ok := e.(string); ok {
				parts[i] = "'" + s + "'"
				continue
			}
			parts[i] = FormatValue(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return fmt.Sprint(v)
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	e := strconv.FormatFloat(f, 'e', -1, 64)
	exp, _ := strconv.Atoi(e[strings.IndexByte(e, 'e')+1:])
	if exp < -4 || exp >= 16 {
		mant, ex, _ := strings.Cut(e, "e")
		sign := ex[0]
		digits := strings.TrimLeft(ex[1:], "0")
		if len(digits) < 2 {
			digits = strings.Repeat("0", 2-len(digits)) + digits
		}
		return mant + "e" + string(sign) + digits
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}

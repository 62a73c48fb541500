package sonata

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// table is a header-indexed text table. SONATA type files are
// space-delimited; comma-separated files are accepted as well.
type table struct {
	path   string
	header map[string]int
	rows   [][]string
}

func readTable(path string) (*table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".h5", ".hdf5":
		return nil, fmt.Errorf("%w: %s (convert to space-delimited CSV)", ErrUnsupportedFormat, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	first, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	first = strings.TrimRight(first, "\r\n")
	if strings.TrimSpace(first) == "" {
		return nil, fmt.Errorf("%s: missing header", path)
	}

	var records [][]string
	if strings.Contains(first, ",") {
		r := csv.NewReader(io.MultiReader(strings.NewReader(first+"\n"), br))
		r.TrimLeadingSpace = true
		records, err = r.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	} else {
		records = append(records, strings.Fields(first))
		sc := bufio.NewScanner(br)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			records = append(records, strings.Fields(line))
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	t := &table{path: path, header: make(map[string]int), rows: records[1:]}
	for i, name := range records[0] {
		t.header[name] = i
	}
	for i, row := range t.rows {
		if len(row) != len(records[0]) {
			return nil, fmt.Errorf("%s:%d: expected %d columns, got %d", path, i+2, len(records[0]), len(row))
		}
	}
	return t, nil
}

func (t *table) has(col string) bool {
	_, ok := t.header[col]
	return ok
}

func (t *table) require(cols ...string) error {
	for _, c := range cols {
		if !t.has(c) {
			return fmt.Errorf("%s: missing column %q", t.path, c)
		}
	}
	return nil
}

func (t *table) str(row int, col string) string {
	i, ok := t.header[col]
	if !ok {
		return ""
	}
	return t.rows[row][i]
}

func (t *table) int(row int, col string) (int, error) {
	v, err := strconv.Atoi(t.str(row, col))
	if err != nil {
		return 0, fmt.Errorf("%s:%d: column %s: %w", t.path, row+2, col, err)
	}
	return v, nil
}

// float returns the column value, or def when the column is absent or
// holds "NULL" or an empty value.
func (t *table) float(row int, col string, def float64) (float64, error) {
	s := t.str(row, col)
	if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "nan") {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s:%d: column %s: %w", t.path, row+2, col, err)
	}
	return v, nil
}

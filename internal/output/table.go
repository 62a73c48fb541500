package output

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/reflow/wordwrap"

	"sonatabench/internal/bench"
)

var (
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	keyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// ResultsTable renders one column per result set, one row per key. Keys
// follow the order of the first set; keys only present in later sets are
// appended. Cells wrap at width/len(sets) columns.
func ResultsTable(titles []string, sets []*bench.Results, width int) string {
	var keys []string
	seen := make(map[string]bool)
	for _, s := range sets {
		for _, k := range s.Keys() {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	cellWidth := 20
	if len(sets) > 0 && (width-32)/len(sets) > cellWidth {
		cellWidth = (width - 32) / len(sets)
	}

	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		row := []string{keyStyle.Render(k)}
		for _, s := range sets {
			cell := ""
			if v, ok := s.Get(k); ok {
				cell = wordwrap.String(bench.FormatValue(v), cellWidth)
			}
			row = append(row, cell)
		}
		rows = append(rows, row)
	}
	headers := append([]string{"key"}, titles...)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.String()
}

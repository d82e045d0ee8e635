// Package formatters renders query results for the operator CLI.
package formatters

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// maxCellWidth caps cell content so a long text_content column does not
// wreck the layout.
const maxCellWidth = 50

// Formatter renders row maps. Column order follows the columns slice,
// not map iteration order.
type Formatter interface {
	Format(columns []string, rows []map[string]any) (string, error)
}

// FormatType names a supported output format.
type FormatType string

const (
	FormatTable FormatType = "table"
	FormatJSON  FormatType = "json"
)

// New returns the formatter for the given format type.
func New(format FormatType) (Formatter, error) {
	switch format {
	case FormatTable:
		return &TableFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("unknown format: %s (supported: table, json)", format)
	}
}

// TableFormatter renders a bordered text table.
type TableFormatter struct{}

func (f *TableFormatter) Format(columns []string, rows []map[string]any) (string, error) {
	if len(rows) == 0 {
		return "(no results)\n", nil
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle()).
		Headers(columns...)

	for _, row := range rows {
		cells := make([]string, len(columns))
		for i, col := range columns {
			cells[i] = truncate(FormatValue(row[col]))
		}
		tbl.Row(cells...)
	}

	return tbl.Render() + "\n", nil
}

// JSONFormatter renders rows as indented JSON.
type JSONFormatter struct{}

func (f *JSONFormatter) Format(_ []string, rows []map[string]any) (string, error) {
	if rows == nil {
		rows = []map[string]any{}
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling rows: %w", err)
	}
	return string(data) + "\n", nil
}

// FormatValue renders one cell. NULL for nil, plain text for strings and
// byte strings, fixed four decimals for floats.
func FormatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case int64:
		return fmt.Sprintf("%d", val)
	case float64:
		return fmt.Sprintf("%.4f", val)
	case bool:
		return fmt.Sprintf("%t", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func truncate(s string) string {
	if len(s) > maxCellWidth {
		return s[:maxCellWidth-3] + "..."
	}
	return s
}

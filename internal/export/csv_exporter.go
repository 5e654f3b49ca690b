package export

import (
	"encoding/csv"
	"fmt"
	"io"
)

// CSVOptions configures CSV export behavior
type CSVOptions struct {
	Delimiter     rune `json:"delimiter"`
	UseCRLF       bool `json:"use_crlf"`
	IncludeHeader bool `json:"include_header"`
}

// DefaultCSVOptions returns default CSV export options
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{
		Delimiter:     ',',
		IncludeHeader: true,
	}
}

// WriteCSV writes the tables one after another, separated by a blank line
// and each preceded by a row holding its name.
func WriteCSV(w io.Writer, tables []Table, options CSVOptions) error {
	writer := csv.NewWriter(w)
	writer.Comma = options.Delimiter
	writer.UseCRLF = options.UseCRLF

	for i, t := range tables {
		if i > 0 {
			if err := writer.Write([]string{}); err != nil {
				return fmt.Errorf("failed to write separator: %w", err)
			}
		}
		if len(tables) > 1 {
			if err := writer.Write([]string{"# " + t.Name}); err != nil {
				return fmt.Errorf("failed to write table name: %w", err)
			}
		}
		if options.IncludeHeader {
			if err := writer.Write(t.Columns); err != nil {
				return fmt.Errorf("failed to write header: %w", err)
			}
		}
		for _, row := range t.Rows {
			record := make([]string, len(row))
			for j, val := range row {
				record[j] = formatValue(val)
			}
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("failed to write row: %w", err)
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

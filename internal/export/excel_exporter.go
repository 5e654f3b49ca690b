package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ExcelOptions configures Excel export behavior
type ExcelOptions struct {
	FreezeHeader bool   `json:"freeze_header"`
	AutoFilter   bool   `json:"auto_filter"`
	AutoWidth    bool   `json:"auto_width"`
	HeaderFill   string `json:"header_fill"`
	HeaderFont   string `json:"header_font"`
}

// DefaultExcelOptions returns default Excel export options
func DefaultExcelOptions() ExcelOptions {
	return ExcelOptions{
		FreezeHeader: true,
		AutoFilter:   true,
		AutoWidth:    true,
		HeaderFill:   "2E7D32",
		HeaderFont:   "FFFFFF",
	}
}

// WriteXLSX writes one sheet per table.
func WriteXLSX(w io.Writer, tables []Table, options ExcelOptions) error {
	file := excelize.NewFile()
	defer file.Close()

	headerStyle, err := file.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: options.HeaderFont},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{options.HeaderFill}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for i, t := range tables {
		sheet := t.Name
		if i == 0 {
			if err := file.SetSheetName("Sheet1", sheet); err != nil {
				return fmt.Errorf("failed to rename sheet: %w", err)
			}
		} else if _, err := file.NewSheet(sheet); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
		}
		if err := writeSheet(file, sheet, t, headerStyle, options); err != nil {
			return err
		}
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSheet(file *excelize.File, sheet string, t Table, headerStyle int, options ExcelOptions) error {
	widths := make([]float64, len(t.Columns))

	for col, name := range t.Columns {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := file.SetCellValue(sheet, cell, name); err != nil {
			return fmt.Errorf("failed to set header: %w", err)
		}
		widths[col] = float64(len(name))
	}
	first, _ := excelize.CoordinatesToCellName(1, 1)
	last, _ := excelize.CoordinatesToCellName(len(t.Columns), 1)
	if err := file.SetCellStyle(sheet, first, last, headerStyle); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for r, row := range t.Rows {
		for col, val := range row {
			cell, _ := excelize.CoordinatesToCellName(col+1, r+2)
			if err := file.SetCellValue(sheet, cell, val); err != nil {
				return fmt.Errorf("failed to set cell value: %w", err)
			}
			if w := float64(len(formatValue(val))); col < len(widths) && w > widths[col] {
				widths[col] = w
			}
		}
	}

	if options.FreezeHeader {
		if err := file.SetPanes(sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			return fmt.Errorf("failed to freeze header: %w", err)
		}
	}
	if options.AutoFilter && len(t.Rows) > 0 {
		if err := file.AutoFilter(sheet, first+":"+last, nil); err != nil {
			return fmt.Errorf("failed to set auto filter: %w", err)
		}
	}
	if options.AutoWidth {
		for col, width := range widths {
			name, _ := excelize.ColumnNumberToName(col + 1)
			// Min width 10, max width 60
			width += 2
			if width < 10 {
				width = 10
			}
			if width > 60 {
				width = 60
			}
			if err := file.SetColWidth(sheet, name, name, width); err != nil {
				return fmt.Errorf("failed to set column width: %w", err)
			}
		}
	}
	return nil
}

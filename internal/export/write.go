package export

import (
	"fmt"
	"io"
)

// Write renders tables in format with default options.
func Write(w io.Writer, format string, tables []Table) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, tables, DefaultCSVOptions())
	case FormatXLSX:
		return WriteXLSX(w, tables, DefaultExcelOptions())
	case FormatPDF:
		return WritePDF(w, tables, DefaultPDFOptions())
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

package export

import (
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// PDFOptions configures PDF generation
type PDFOptions struct {
	Title          string   `json:"title"`
	Orientation    string   `json:"orientation"` // portrait, landscape
	PageSize       string   `json:"page_size"`
	FontFamily     string   `json:"font_family"`
	FontSize       float64  `json:"font_size"`
	HeaderColor    PDFColor `json:"header_color"`
	AlternateRows  bool     `json:"alternate_rows"`
	AlternateColor PDFColor `json:"alternate_color"`
}

// PDFColor represents an RGB color
type PDFColor struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

// DefaultPDFOptions returns default PDF options
func DefaultPDFOptions() PDFOptions {
	return PDFOptions{
		Title:          "Aarna Registry",
		Orientation:    "landscape",
		PageSize:       "A4",
		FontFamily:     "Arial",
		FontSize:       8,
		HeaderColor:    PDFColor{R: 46, G: 125, B: 50},
		AlternateRows:  true,
		AlternateColor: PDFColor{R: 242, G: 242, B: 242},
	}
}

// WritePDF renders every table under a common title.
func WritePDF(w io.Writer, tables []Table, options PDFOptions) error {
	orientation := "P"
	if options.Orientation == "landscape" {
		orientation = "L"
	}
	pdf := gofpdf.New(orientation, "mm", options.PageSize, "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 15)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont(options.FontFamily, "I", options.FontSize)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 8, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AliasNbPages("")
	pdf.AddPage()

	pdf.SetFont(options.FontFamily, "B", 16)
	pdf.CellFormat(0, 10, options.Title, "", 1, "C", false, 0, "")
	pdf.SetFont(options.FontFamily, "", options.FontSize)
	pdf.SetTextColor(128, 128, 128)
	pdf.CellFormat(0, 6, "Generated: "+time.Now().UTC().Format(time.RFC3339), "", 1, "R", false, 0, "")
	pdf.SetTextColor(0, 0, 0)

	for _, t := range tables {
		pdf.Ln(4)
		pdf.SetFont(options.FontFamily, "B", options.FontSize+3)
		pdf.CellFormat(0, 8, t.Name, "", 1, "L", false, 0, "")
		writeTable(pdf, t, options)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to render pdf: %w", err)
	}
	return nil
}

func writeTable(pdf *gofpdf.Fpdf, t Table, options PDFOptions) {
	if len(t.Columns) == 0 {
		return
	}
	left, _, right, _ := pdf.GetMargins()
	pageWidth, _ := pdf.GetPageSize()
	width := (pageWidth - left - right) / float64(len(t.Columns))

	pdf.SetFont(options.FontFamily, "B", options.FontSize)
	pdf.SetFillColor(options.HeaderColor.R, options.HeaderColor.G, options.HeaderColor.B)
	pdf.SetTextColor(255, 255, 255)
	for _, col := range t.Columns {
		pdf.CellFormat(width, 7, col, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont(options.FontFamily, "", options.FontSize)
	pdf.SetTextColor(0, 0, 0)
	for i, row := range t.Rows {
		fill := options.AlternateRows && i%2 == 1
		if fill {
			pdf.SetFillColor(options.AlternateColor.R, options.AlternateColor.G, options.AlternateColor.B)
		}
		for _, val := range row {
			pdf.CellFormat(width, 6, truncate(pdf, formatValue(val), width-2), "1", 0, "L", fill, 0, "")
		}
		pdf.Ln(-1)
	}
	if len(t.Rows) == 0 {
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(width*float64(len(t.Columns)), 6, "No records", "1", 1, "C", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	}
}

// truncate shortens s until it fits in width, marking the cut with "...".
func truncate(pdf *gofpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+"...") > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}

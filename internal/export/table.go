// Package export renders the registry mirror as CSV, Excel and PDF documents.
package export

import (
	"fmt"
	"strconv"

	"github.com/Zorrojurro/project-aarna/internal/registry"
)

// Formats
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"
)

// Table is one titled grid of values.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]interface{}
}

// ProjectsTable lists every mirrored project.
func ProjectsTable(snap registry.Snapshot) Table {
	t := Table{
		Name:    "Projects",
		Columns: []string{"ID", "Name", "Location", "Ecosystem", "Evidence", "Status", "Credits", "Submitter", "Confirmed"},
	}
	for _, p := range snap.Projects {
		t.Rows = append(t.Rows, []interface{}{
			p.ID, p.Name, p.Location, p.EcosystemType, p.EvidenceReference,
			p.Status, p.Credits, p.Submitter, p.Confirmed,
		})
	}
	return t
}

// ListingsTable lists every mirrored listing with its total price.
func ListingsTable(snap registry.Snapshot) Table {
	t := Table{
		Name:    "Listings",
		Columns: []string{"ID", "Seller", "Amount", "Price Per Unit", "Total", "Active", "Confirmed"},
	}
	for _, l := range snap.Listings {
		total, ok := l.TotalPrice()
		var totalCell interface{} = total
		if !ok {
			totalCell = "overflow"
		}
		t.Rows = append(t.Rows, []interface{}{l.ID, l.Seller, l.Amount, l.PricePerUnit, totalCell, l.Active, l.Confirmed})
	}
	return t
}

// SummaryTable holds the registry counters.
func SummaryTable(snap registry.Snapshot) Table {
	return Table{
		Name:    "Summary",
		Columns: []string{"Field", "Value"},
		Rows: [][]interface{}{
			{"App ID", snap.AppID},
			{"Asset ID", snap.AssetID},
			{"Admin", snap.Admin},
			{"Validator", snap.Validator},
			{"Projects", snap.ProjectCount},
			{"Listings", snap.ListingCount},
			{"Total Credits Issued", snap.TotalCreditsIssued},
		},
	}
}

// RegistryTables returns the summary, project and listing tables.
func RegistryTables(snap registry.Snapshot) []Table {
	return []Table{SummaryTable(snap), ProjectsTable(snap), ListingsTable(snap)}
}

func formatValue(val interface{}) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case uint64:
		return strconv.FormatUint(v, 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

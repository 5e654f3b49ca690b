package export

import (
	"bytes"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/Zorrojurro/project-aarna/internal/registry"
	"github.com/Zorrojurro/project-aarna/pkg/workflows"
)

type staticSource registry.Snapshot

func (s staticSource) Snapshot() registry.Snapshot { return registry.Snapshot(s) }

func sampleSnapshot() registry.Snapshot {
	return registry.Snapshot{
		AppID:   7,
		AssetID: 9,
		Projects: []registry.Project{{
			ID:                0,
			Name:              "Sundarbans Mangrove Restoration",
			Location:          "West Bengal, India",
			EcosystemType:     "Mangrove",
			EvidenceReference: "bafy123",
			Status:            workflows.StatusCreditsIssued,
			Credits:           2500,
			Submitter:         "DEV",
			Confirmed:         true,
		}},
		ProjectCount: 1,
		Listings: []registry.Listing{
			{ID: 0, Seller: "DEV", Amount: 100, PricePerUnit: 50, Active: false, Confirmed: true},
			{ID: 1, Seller: "DEV", Amount: 1 << 40, PricePerUnit: 1 << 40, Active: true},
		},
		ListingCount:       2,
		TotalCreditsIssued: 2500,
	}
}

func TestListingsTable_TotalAndOverflow(t *testing.T) {
	table := ListingsTable(sampleSnapshot())
	require.Len(t, table.Rows, 2)
	assert.Equal(t, uint64(5000), table.Rows[0][4])
	assert.Equal(t, "overflow", table.Rows[1][4])
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []Table{ProjectsTable(sampleSnapshot())}, DefaultCSVOptions()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Name", records[0][1])
	assert.Equal(t, []string{
		"0", "Sundarbans Mangrove Restoration", "West Bengal, India", "Mangrove", "bafy123",
		workflows.StatusCreditsIssued, "2500", "DEV", "true",
	}, records[1])
}

func TestWriteCSV_MultipleTablesAreNamed(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultCSVOptions()
	opts.Delimiter = ';'
	require.NoError(t, WriteCSV(&buf, RegistryTables(sampleSnapshot()), opts))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "# Summary\n"))
	assert.Contains(t, out, "# Projects\n")
	assert.Contains(t, out, "# Listings\n")
	assert.Contains(t, out, "Total Credits Issued;2500")
}

func TestWriteXLSX_OneSheetPerTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, RegistryTables(sampleSnapshot()), DefaultExcelOptions()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Summary", "Projects", "Listings"}, f.GetSheetList())
	name, err := f.GetCellValue("Projects", "B2")
	require.NoError(t, err)
	assert.Equal(t, "Sundarbans Mangrove Restoration", name)
}

func TestWritePDF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePDF(&buf, RegistryTables(sampleSnapshot()), DefaultPDFOptions()))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestWrite_UnknownFormat(t *testing.T) {
	assert.Error(t, Write(&bytes.Buffer{}, "docx", nil))
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(staticSource(sampleSnapshot()), zap.NewNop()).RegisterRoutes(router.Group("/api/v1"))

	tests := []struct {
		query       string
		status      int
		contentType string
	}{
		{"", http.StatusOK, "text/csv"},
		{"?format=xlsx", http.StatusOK, contentTypes[FormatXLSX]},
		{"?format=pdf", http.StatusOK, "application/pdf"},
		{"?format=docx", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/export"+tt.query, nil)
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, tt.contentType, w.Header().Get("Content-Type"))
				assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
			}
		})
	}
}

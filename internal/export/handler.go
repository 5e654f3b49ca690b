package export

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Zorrojurro/project-aarna/internal/registry"
)

// SnapshotSource yields the state to export.
type SnapshotSource interface {
	Snapshot() registry.Snapshot
}

// Handler serves registry exports.
type Handler struct {
	source SnapshotSource
	logger *zap.Logger
}

// NewHandler creates a new export handler
func NewHandler(source SnapshotSource, logger *zap.Logger) *Handler {
	return &Handler{source: source, logger: logger}
}

// RegisterRoutes registers export routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/export", h.export)
}

var contentTypes = map[string]string{
	FormatCSV:  "text/csv",
	FormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	FormatPDF:  "application/pdf",
}

// export handles GET /api/v1/export?format=csv|xlsx|pdf
func (h *Handler) export(c *gin.Context) {
	format := c.DefaultQuery("format", FormatCSV)
	contentType, ok := contentTypes[format]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unsupported format %q", format)})
		return
	}

	var buf bytes.Buffer
	if err := Write(&buf, format, RegistryTables(h.source.Snapshot())); err != nil {
		h.logger.Error("Failed to export registry", zap.String("format", format), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export registry"})
		return
	}

	filename := fmt.Sprintf("aarna-registry-%s.%s", time.Now().UTC().Format("20060102-150405"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

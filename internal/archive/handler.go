// Package archive serves evidence uploads and lookups over HTTP.
package archive

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Zorrojurro/project-aarna/pkg/evidence"
	"github.com/Zorrojurro/project-aarna/pkg/storage"
)

// MaxUploadSize bounds a single evidence document.
const MaxUploadSize = 32 << 20

// Handler exposes the evidence archive. store may be nil, in which case only
// reference inspection is served.
type Handler struct {
	store  *storage.ContentStore
	logger *zap.Logger
}

// NewHandler creates a new evidence handler
func NewHandler(store *storage.ContentStore, logger *zap.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// RegisterRoutes registers evidence routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	ev := router.Group("/evidence")
	{
		ev.GET("/:cid/info", h.inspect)
		if h.store != nil {
			ev.POST("", h.upload)
			ev.GET("/:cid", h.download)
			ev.DELETE("/:cid", h.remove)
		}
	}
}

// upload handles POST /api/v1/evidence
func (h *Handler) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize)
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	pinned, err := h.store.PinFile(c.Request.Context(), f)
	if err != nil {
		h.logger.Error("Failed to archive evidence", zap.String("filename", file.Filename), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to archive evidence"})
		return
	}

	h.logger.Info("Evidence archived",
		zap.String("cid", pinned.CID),
		zap.String("filename", file.Filename),
		zap.Int("size", pinned.Size))
	c.JSON(http.StatusCreated, pinned)
}

// download handles GET /api/v1/evidence/:cid
func (h *Handler) download(c *gin.Context) {
	ref := c.Param("cid")
	if _, err := evidence.Inspect(ref); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	data, err := h.store.Fetch(c.Request.Context(), ref)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Evidence not found"})
			return
		}
		h.logger.Error("Failed to fetch evidence", zap.String("cid", ref), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch evidence"})
		return
	}
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}

// remove handles DELETE /api/v1/evidence/:cid
func (h *Handler) remove(c *gin.Context) {
	ref := c.Param("cid")
	if err := h.store.UnpinFile(c.Request.Context(), ref); err != nil {
		h.logger.Error("Failed to remove evidence", zap.String("cid", ref), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to remove evidence"})
		return
	}
	c.Status(http.StatusNoContent)
}

// inspect handles GET /api/v1/evidence/:cid/info
func (h *Handler) inspect(c *gin.Context) {
	info, err := evidence.Inspect(c.Param("cid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, info)
}

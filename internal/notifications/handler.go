package notifications

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Zorrojurro/project-aarna/internal/notifications/websocket"
)

// HistoryReader lists stored notifications.
type HistoryReader interface {
	List(ctx context.Context, operation string, limit int) ([]Record, error)
}

// Handler serves recent and stored notifications and the push socket.
type Handler struct {
	service   *Service
	history   HistoryReader
	wsManager *websocket.Manager
	logger    *zap.Logger
}

// NewHandler creates a new notifications handler. history and wsManager are optional.
func NewHandler(service *Service, history HistoryReader, wsManager *websocket.Manager, logger *zap.Logger) *Handler {
	return &Handler{
		service:   service,
		history:   history,
		wsManager: wsManager,
		logger:    logger,
	}
}

// RegisterRoutes registers notification routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/notifications", h.listRecent)
	if h.history != nil {
		router.GET("/notifications/history", h.listHistory)
	}
	if h.wsManager != nil {
		router.GET("/ws", h.connect)
	}
}

func queryLimit(c *gin.Context, def int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || limit < 0 {
		return def
	}
	return limit
}

// listRecent handles GET /api/v1/notifications
func (h *Handler) listRecent(c *gin.Context) {
	items := h.service.Recent(queryLimit(c, 20))
	c.JSON(http.StatusOK, gin.H{"notifications": items, "count": len(items)})
}

// listHistory handles GET /api/v1/notifications/history
func (h *Handler) listHistory(c *gin.Context) {
	records, err := h.history.List(c.Request.Context(), c.Query("operation"), queryLimit(c, 100))
	if err != nil {
		h.logger.Error("Failed to list notification history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list notification history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": records, "count": len(records)})
}

// connect handles GET /api/v1/ws
func (h *Handler) connect(c *gin.Context) {
	if _, err := h.wsManager.HandleConnection(c.Writer, c.Request); err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
	}
}

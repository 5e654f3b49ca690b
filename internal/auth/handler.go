package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Zorrojurro/project-aarna/internal/session"
)

// Handler connects and disconnects the portal identity.
type Handler struct {
	session      *session.Session
	issuer       *TokenIssuer
	demo         bool
	keystorePath string
	logger       *zap.Logger
}

// NewHandler creates a new session handler. In demo mode identities are
// derived from a label instead of a keystore.
func NewHandler(sess *session.Session, issuer *TokenIssuer, demo bool, keystorePath string, logger *zap.Logger) *Handler {
	return &Handler{
		session:      sess,
		issuer:       issuer,
		demo:         demo,
		keystorePath: keystorePath,
		logger:       logger,
	}
}

// Paths that stay reachable without a token.
const (
	ConnectPath = "/api/v1/session/connect"
)

// RegisterRoutes registers session routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/session/connect", h.connect)
	router.POST("/session/disconnect", h.disconnect)
}

type connectRequest struct {
	Label        string `json:"label"`
	KeystorePath string `json:"keystore_path"`
	Passphrase   string `json:"passphrase"`
}

type connectResponse struct {
	Address   string     `json:"address"`
	Token     string     `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// connect handles POST /api/v1/session/connect
func (h *Handler) connect(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var signer *session.KeySigner
	switch {
	case h.demo && req.Label != "":
		signer = session.DemoSigner(req.Label)
	default:
		path := req.KeystorePath
		if path == "" {
			path = h.keystorePath
		}
		if path == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No keystore configured"})
			return
		}
		var err error
		signer, err = session.LoadKeystore(path, req.Passphrase)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, session.ErrWrongPassphrase) {
				status = http.StatusUnauthorized
			}
			h.logger.Warn("Failed to unlock keystore", zap.Error(err))
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
	}

	h.session.Connect(signer)

	resp := connectResponse{Address: signer.Address()}
	if h.issuer != nil {
		token, expires, err := h.issuer.Issue(signer.Address())
		if err != nil {
			h.logger.Error("Failed to issue session token", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue session token"})
			return
		}
		resp.Token = token
		resp.ExpiresAt = &expires
	}
	c.JSON(http.StatusOK, resp)
}

// disconnect handles POST /api/v1/session/disconnect
func (h *Handler) disconnect(c *gin.Context) {
	h.session.Disconnect()
	c.JSON(http.StatusOK, gin.H{"connected": false})
}

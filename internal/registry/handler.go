package registry

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Zorrojurro/project-aarna/internal/faults"
)

// Handler exposes the registry over HTTP.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new registry handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers registry routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	reg := router.Group("/registry")
	{
		reg.GET("", h.getRegistry)
		reg.POST("/refresh", h.refresh)
		reg.POST("/deploy", h.deploy)
		reg.POST("/validator", h.configureValidator)
		reg.POST("/admin", h.transferAdmin)
		reg.POST("/token", h.mintToken)
	}

	router.POST("/assets/optin", h.optIn)
	router.GET("/balance", h.getBalance)
	router.GET("/session", h.getSession)

	projects := router.Group("/projects")
	{
		projects.GET("", h.listProjects)
		projects.POST("", h.submitProject)
		projects.POST("/:id/approve", h.approveProject)
		projects.POST("/:id/reject", h.rejectProject)
		projects.POST("/:id/issue", h.issueCredits)
	}

	listings := router.Group("/listings")
	{
		listings.GET("", h.listListings)
		listings.POST("", h.listForSale)
		listings.POST("/:id/buy", h.buyListing)
		listings.POST("/:id/cancel", h.cancelListing)
	}
}

type addressRequest struct {
	Address string `json:"address" binding:"required"`
}

type approveRequest struct {
	Credits uint64 `json:"credits" binding:"required"`
}

type listingRequest struct {
	Amount       uint64 `json:"amount" binding:"required"`
	PricePerUnit uint64 `json:"price_per_unit" binding:"required"`
}

// getRegistry handles GET /api/v1/registry
func (h *Handler) getRegistry(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Snapshot())
}

// refresh handles POST /api/v1/registry/refresh
func (h *Handler) refresh(c *gin.Context) {
	if err := h.service.Refresh(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.service.RefreshBalance(c.Request.Context()); err != nil && !errors.Is(err, faults.ErrNoIdentity) {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.service.Snapshot())
}

// deploy handles POST /api/v1/registry/deploy
func (h *Handler) deploy(c *gin.Context) {
	appID, err := h.service.Deploy(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"app_id": appID})
}

// configureValidator handles POST /api/v1/registry/validator
func (h *Handler) configureValidator(c *gin.Context) {
	var req addressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.ConfigureValidator(c.Request.Context(), req.Address); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"validator": req.Address})
}

// transferAdmin handles POST /api/v1/registry/admin
func (h *Handler) transferAdmin(c *gin.Context) {
	var req addressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.TransferAdmin(c.Request.Context(), req.Address); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"admin": req.Address})
}

// mintToken handles POST /api/v1/registry/token
func (h *Handler) mintToken(c *gin.Context) {
	assetID, err := h.service.MintToken(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"asset_id": assetID})
}

// optIn handles POST /api/v1/assets/optin
func (h *Handler) optIn(c *gin.Context) {
	if err := h.service.OptInToAsset(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"asset_id": h.service.Snapshot().AssetID})
}

// getBalance handles GET /api/v1/balance
func (h *Handler) getBalance(c *gin.Context) {
	if c.Query("refresh") == "true" {
		if err := h.service.RefreshBalance(c.Request.Context()); err != nil {
			h.respondError(c, err)
			return
		}
	}
	snap := h.service.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"identity":       snap.Identity,
		"asset_id":       snap.AssetID,
		"token_balance":  snap.TokenBalance,
		"native_balance": snap.NativeBalance,
		"opted_in":       snap.OptedIn,
		"adjustment":     h.service.Adjustments().For(snap.Identity),
	})
}

// getSession handles GET /api/v1/session
func (h *Handler) getSession(c *gin.Context) {
	snap := h.service.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"identity":  snap.Identity,
		"connected": snap.Identity != "",
		"role":      snap.Role,
		"busy":      snap.Busy,
	})
}

// listProjects handles GET /api/v1/projects
func (h *Handler) listProjects(c *gin.Context) {
	snap := h.service.Snapshot()
	status := c.Query("status")
	projects := make([]Project, 0, len(snap.Projects))
	for _, p := range snap.Projects {
		if status == "" || p.Status == status {
			projects = append(projects, p)
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"projects":             projects,
		"project_count":        snap.ProjectCount,
		"total_credits_issued": snap.TotalCreditsIssued,
	})
}

// submitProject handles POST /api/v1/projects
func (h *Handler) submitProject(c *gin.Context) {
	var req ProjectInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := h.service.SubmitProject(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// approveProject handles POST /api/v1/projects/:id/approve
func (h *Handler) approveProject(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.ApproveProject(c.Request.Context(), id, req.Credits); err != nil {
		h.respondError(c, err)
		return
	}
	p, _ := h.service.mirror.Project(id)
	c.JSON(http.StatusOK, p)
}

// rejectProject handles POST /api/v1/projects/:id/reject
func (h *Handler) rejectProject(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	if err := h.service.RejectProject(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	p, _ := h.service.mirror.Project(id)
	c.JSON(http.StatusOK, p)
}

// issueCredits handles POST /api/v1/projects/:id/issue
func (h *Handler) issueCredits(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	issued, err := h.service.IssueCredits(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "issued": issued})
}

// listListings handles GET /api/v1/listings
func (h *Handler) listListings(c *gin.Context) {
	snap := h.service.Snapshot()
	activeOnly := c.Query("active") == "true"
	listings := make([]Listing, 0, len(snap.Listings))
	for _, l := range snap.Listings {
		if !activeOnly || l.Active {
			listings = append(listings, l)
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"listings":      listings,
		"listing_count": snap.ListingCount,
	})
}

// listForSale handles POST /api/v1/listings
func (h *Handler) listForSale(c *gin.Context) {
	var req listingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := h.service.ListForSale(c.Request.Context(), req.Amount, req.PricePerUnit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// buyListing handles POST /api/v1/listings/:id/buy
func (h *Handler) buyListing(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	if err := h.service.BuyListing(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "active": false})
}

// cancelListing handles POST /api/v1/listings/:id/cancel
func (h *Handler) cancelListing(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	if err := h.service.CancelListing(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "active": false})
}

func (h *Handler) pathID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(c *gin.Context, err error) {
	ce := faults.Classify("", err)
	c.JSON(StatusCode(ce.Category), gin.H{
		"error":    ce.Message,
		"category": ce.Category,
		"kind":     ce.Kind(),
	})
}

// StatusCode maps a fault category to an HTTP status.
func StatusCode(category faults.Category) int {
	switch category {
	case faults.CategoryNoIdentity:
		return http.StatusUnauthorized
	case faults.CategoryUnauthorizedAdmin, faults.CategoryUnauthorizedValidator, faults.CategoryNotSeller:
		return http.StatusForbidden
	case faults.CategoryNotFound:
		return http.StatusNotFound
	case faults.CategoryInvalidInput:
		return http.StatusBadRequest
	case faults.CategoryBusy, faults.CategoryInvalidState, faults.CategoryCapacityExceeded,
		faults.CategoryNoRegistry, faults.CategoryMissingAsset:
		return http.StatusConflict
	case faults.CategoryInsufficientPayment, faults.CategoryFunding:
		return http.StatusPaymentRequired
	case faults.CategoryUnconfirmed:
		return http.StatusAccepted
	default:
		return http.StatusBadGateway
	}
}

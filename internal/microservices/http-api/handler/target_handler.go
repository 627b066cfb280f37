package handler

import (
	"errors"
	"net/http"

	"meshhub/internal/export"
	"meshhub/internal/microservices/http-api/dto"
	"meshhub/internal/microservices/http-api/service"

	"github.com/gin-gonic/gin"
)

type TargetHandler struct {
	targetService service.TargetService
}

func NewTargetHandler(targetService service.TargetService) *TargetHandler {
	return &TargetHandler{
		targetService: targetService,
	}
}

// RegisterRoutes registers target and asset routes
func (h *TargetHandler) RegisterRoutes(rg *gin.RouterGroup) {
	target := rg.Group("/target")
	{
		target.GET("", h.Get)            // Summary of the received mesh
		target.POST("/export", h.Export) // Bake the current mesh now
	}
	rg.GET("/assets", h.ListAssets) // Recently exported assets
}

// Get returns the target entity summary
// GET /api/v1/target
func (h *TargetHandler) Get(c *gin.Context) {
	target, err := h.targetService.Target(c.Request.Context())
	if err != nil {
		if errors.Is(err, service.ErrNoTarget) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, target)
}

// Export bakes the target into an asset
// POST /api/v1/target/export
func (h *TargetHandler) Export(c *gin.Context) {
	resp, err := h.targetService.Export(c.Request.Context())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoTarget):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrExportDisabled):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		case errors.Is(err, export.ErrUnchanged),
			errors.Is(err, export.ErrExportThrottled),
			errors.Is(err, export.ErrNoGeometry):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// ListAssets returns recent exports from the registry
// GET /api/v1/assets?limit=N
func (h *TargetHandler) ListAssets(c *gin.Context) {
	var req dto.ListAssetsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	assets, err := h.targetService.RecentAssets(c.Request.Context(), req.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  assets,
		"count": len(assets),
	})
}

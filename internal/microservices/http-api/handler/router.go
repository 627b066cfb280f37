package handler

import (
	"log/slog"
	"net/http"

	"meshhub/internal/microservices/http-api/dto"
	"meshhub/internal/microservices/http-api/middleware"

	"github.com/gin-gonic/gin"
)

// RouterOptions wires the admin API
type RouterOptions struct {
	Target    *TargetHandler
	Listening func() bool  // reports whether the mesh listener is open
	Metrics   http.Handler // nil disables /metrics
	Logger    *slog.Logger
}

// NewRouter builds the admin API engine
func NewRouter(opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if opts.Logger != nil {
		r.Use(middleware.RequestLogger(opts.Logger))
	}

	r.GET("/health", func(c *gin.Context) {
		listening := opts.Listening != nil && opts.Listening()
		c.JSON(http.StatusOK, dto.HealthResponse{
			Status:    "ok",
			Listening: listening,
		})
	})

	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	if opts.Target != nil {
		api := r.Group("/api/v1")
		opts.Target.RegisterRoutes(api)
	}
	return r
}

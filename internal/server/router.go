package server

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/videotube/api/internal/apperr"
	"github.com/videotube/api/internal/auth"
	"github.com/videotube/api/internal/config"
	"github.com/videotube/api/internal/logger"
	"github.com/videotube/api/internal/media"
	"github.com/videotube/api/internal/metrics"
	"github.com/videotube/api/internal/profile"
	"github.com/videotube/api/internal/response"
	"github.com/videotube/api/internal/users"
)

// Dependencies groups the services required by the HTTP router.
type Dependencies struct {
	Config         config.Config
	Logger         *zap.Logger
	Store          users.Store
	ObjectStore    bucketLister
	Stager         *media.Stager
	AuthService    *auth.Service
	ProfileService *profile.Service
}

// NewRouter builds a Gin engine with foundational middleware and routes.
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	if deps.Config.Media.MaxUploadBytes > 0 {
		router.MaxMultipartMemory = deps.Config.Media.MaxUploadBytes
	}

	router.Use(logger.Middleware(deps.Logger))
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		response.Fail(c, apperr.Internal("", fmt.Errorf("panic: %v", recovered)))
	}))
	router.Use(metrics.Middleware())

	router.NoRoute(func(c *gin.Context) {
		response.Fail(c, apperr.NotFound("route not found"))
	})

	registerHealthRoutes(router, deps)
	if path := deps.Config.Metrics.PrometheusPath; path != "" {
		metrics.Register(router, path)
	}

	api := router.Group("/api/v1")
	if deps.AuthService != nil {
		auth.RegisterRoutes(api, deps.AuthService, deps.Stager)

		if deps.ProfileService != nil {
			profile.RegisterRoutes(api, deps.ProfileService, deps.AuthService, deps.Stager)
		}
	}

	return router
}

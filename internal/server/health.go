package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"

	"github.com/videotube/api/internal/logger"
)

const readinessTimeout = 5 * time.Second

// bucketLister is the subset of *minio.Client probed for readiness.
type bucketLister interface {
	ListBuckets(ctx context.Context) ([]minio.BucketInfo, error)
}

func registerHealthRoutes(router *gin.Engine, deps Dependencies) {
	router.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/health/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()

		if deps.Store != nil {
			if err := deps.Store.Ping(ctx); err != nil {
				degraded(c, deps.Config.Store.Driver, err)
				return
			}
		}

		if deps.ObjectStore != nil {
			if _, err := deps.ObjectStore.ListBuckets(ctx); err != nil {
				degraded(c, "minio", err)
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func degraded(c *gin.Context, component string, err error) {
	logger.FromContext(c).Warn("readiness check failed", zap.String("component", component), zap.Error(err))
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"status":    "degraded",
		"component": component,
	})
}

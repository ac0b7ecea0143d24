package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/auth-core/internal/infra/config"
	"github.com/arklim/auth-core/internal/infra/telemetry"
)

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config   *config.AppConfig
	Logger   *zap.Logger
	Metrics  *telemetry.Metrics
	Database DatabaseChecker
	Cache    CacheChecker
}

// Register configures the Gin engine with the operational endpoints: liveness,
// readiness against the backing stores, and the Prometheus scrape target.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config != nil && deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		checks := gin.H{}
		ready := true

		if deps.Database != nil {
			if err := deps.Database.Ping(ctx); err != nil {
				checks["postgres"] = err.Error()
				ready = false
				if deps.Logger != nil {
					deps.Logger.Warn("readiness: postgres unreachable", zap.Error(err))
				}
			} else {
				checks["postgres"] = "ok"
			}
		}

		if deps.Cache != nil {
			if err := deps.Cache.HealthCheck(ctx); err != nil {
				checks["redis"] = err.Error()
				ready = false
				if deps.Logger != nil {
					deps.Logger.Warn("readiness: redis unreachable", zap.Error(err))
				}
			} else {
				checks["redis"] = "ok"
			}
		}

		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"ready": ready, "checks": checks})
	})

	if deps.Metrics != nil {
		handler := promhttp.HandlerFor(deps.Metrics.Registry(), promhttp.HandlerOpts{})
		r.GET("/metrics", gin.WrapH(handler))
	}

	return r
}

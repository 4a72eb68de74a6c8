package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"shudh/internal/middleware"
	"shudh/internal/service"
	"shudh/pkg/redis"
)

const serviceName = "SHUDH Backend API"

type HealthHandler struct {
	service  service.OperationService
	redis    *goredis.Client
	database string
	started  time.Time
}

// NewHealthHandler reports on the database behind service and, when
// redisClient is non-nil, on the cache. database is the dialect name shown
// to clients.
func NewHealthHandler(service service.OperationService, redisClient *goredis.Client, database string) *HealthHandler {
	return &HealthHandler{
		service:  service,
		redis:    redisClient,
		database: database,
		started:  time.Now(),
	}
}

// Root is a liveness probe; it never touches the database.
func (h *HealthHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   serviceName,
		"database":  h.database,
		"uptime":    time.Since(h.started).Round(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Health pings the database and counts operations. Failures are reported
// as "unhealthy" with status 200 so dashboards can render the error.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	count, err := h.checkDatabase(ctx)
	if err != nil {
		middleware.Logger(c).Error("health check failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{
			"status":    "unhealthy",
			"error":     err.Error(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	resp := gin.H{
		"status":        "healthy",
		"database":      h.database,
		"records_count": count,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	}
	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			resp["cache"] = "unavailable"
		} else {
			resp["cache"] = "connected"
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *HealthHandler) checkDatabase(ctx context.Context) (int64, error) {
	if err := h.service.Ping(ctx); err != nil {
		return 0, err
	}
	return h.service.Count(ctx)
}

// Stats aggregates operation statistics with cache server stats.
func (h *HealthHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	stats, err := h.service.Stats(ctx)
	if err != nil {
		middleware.Logger(c).Error("failed to compute stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute stats"})
		return
	}

	resp := gin.H{
		"operations": stats,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	if h.redis != nil {
		redisStats, err := redis.GetStats(ctx, h.redis)
		if err != nil {
			middleware.Logger(c).Warn("failed to read redis stats", zap.Error(err))
		} else {
			resp["redis"] = redisStats
		}
	}
	c.JSON(http.StatusOK, resp)
}

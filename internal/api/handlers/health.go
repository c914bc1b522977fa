package handlers

import (
	"context"
	"net/http"
	"time"

	"companion-api/pkg/cache"
	"companion-api/pkg/database"
	"companion-api/pkg/redis"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
)

// Check reports the health of one dependency
type Check func(ctx context.Context) map[string]any

type HealthHandler struct {
	checks map[string]Check
}

type HealthResponse struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Services  map[string]any `json:"services"`
}

func NewHealthHandler(checks map[string]Check) *HealthHandler {
	return &HealthHandler{checks: checks}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Timestamp: time.Now().UTC(),
		Services:  make(map[string]any, len(h.checks)),
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	overallHealthy := true
	for name, check := range h.checks {
		status := check(ctx)
		response.Services[name] = status
		if healthy, _ := status["healthy"].(bool); !healthy {
			overallHealthy = false
		}
	}

	if overallHealthy {
		response.Status = "healthy"
		c.JSON(http.StatusOK, response)
	} else {
		response.Status = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, response)
	}
}

// MongoCheck pings the database behind db
func MongoCheck(db *mongo.Database) Check {
	return func(ctx context.Context) map[string]any {
		status := map[string]any{"service": "mongodb", "healthy": false}

		if db == nil {
			status["error"] = "Database client not initialized"
			return status
		}

		if err := database.Health(ctx, db); err != nil {
			status["error"] = err.Error()
			return status
		}
		status["healthy"] = true
		status["message"] = "Connected"
		return status
	}
}

// RedisCheck pings Redis and includes pool statistics
func RedisCheck(client *redis.Client) Check {
	return func(ctx context.Context) map[string]any {
		status := map[string]any{"service": "redis", "healthy": false}

		if client == nil {
			status["error"] = "Redis client not initialized"
			return status
		}

		health := client.HealthCheck(ctx)
		status["healthy"] = health.IsConnected
		status["addr"] = health.Addr
		status["responseTime"] = health.ResponseTime.String()
		status["lastPing"] = health.LastPing
		status["connectionStats"] = client.Stats()
		if health.Error != "" {
			status["error"] = health.Error
		}
		return status
	}
}

// CacheCheck pings the Redis instance behind the response cache
func CacheCheck(c *cache.RedisCache) Check {
	return func(ctx context.Context) map[string]any {
		status := map[string]any{"service": "cache", "healthy": false}

		if c == nil {
			status["error"] = "Cache not initialized"
			return status
		}

		status["stats"] = c.Stats()
		if err := c.HealthCheck(ctx); err != nil {
			status["error"] = err.Error()
			return status
		}
		status["healthy"] = true
		return status
	}
}

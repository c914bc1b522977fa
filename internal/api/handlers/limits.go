package handlers

import (
	"net/http"

	"companion-api/pkg/ratelimit"
	"companion-api/pkg/utils"

	"github.com/gin-gonic/gin"
)

// LimitsHandler exposes limiter counters and the configured limit table
type LimitsHandler struct {
	store  *ratelimit.Store
	stats  ratelimit.StatsReader
	config *ratelimit.Config
}

func NewLimitsHandler(store *ratelimit.Store, stats ratelimit.StatsReader, config *ratelimit.Config) *LimitsHandler {
	return &LimitsHandler{store: store, stats: stats, config: config}
}

// LimitInfo describes one named limit
type LimitInfo struct {
	Name   string           `json:"name"`
	Rate   int              `json:"rate"`
	Per    string           `json:"per"`
	Bucket ratelimit.Bucket `json:"bucket"`
}

// Stats returns decision counters plus the number of live buckets
func (h *LimitsHandler) Stats(c *gin.Context) {
	var stats ratelimit.Stats
	if h.stats != nil {
		var err error
		stats, err = h.stats.Snapshot(c.Request.Context())
		if err != nil {
			utils.ErrorResponse(c, http.StatusServiceUnavailable, "Failed to read limiter stats", err)
			return
		}
	}
	if stats.ByRoute == nil {
		stats.ByRoute = map[string]ratelimit.Count{}
	}
	stats.TrackedKeys = h.store.Len()

	utils.SuccessResponse(c, http.StatusOK, "Limiter stats retrieved successfully", stats)
}

// List returns the configured limits sorted by name
func (h *LimitsHandler) List(c *gin.Context) {
	limits := make([]LimitInfo, 0, len(h.config.Limits))
	for _, name := range h.config.Names() {
		l := h.config.Limits[name]
		bucket := l.Bucket
		if bucket == "" {
			bucket = ratelimit.BucketIP
		}
		limits = append(limits, LimitInfo{Name: name, Rate: l.Rate, Per: l.Per.String(), Bucket: bucket})
	}

	utils.SuccessResponse(c, http.StatusOK, "Limits retrieved successfully", gin.H{
		"enabled": h.config.Enabled,
		"limits":  limits,
	})
}

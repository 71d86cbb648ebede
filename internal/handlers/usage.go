package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/novylist/backend/internal/middleware"
	"github.com/novylist/backend/internal/services"
	"github.com/novylist/backend/pkg/response"
)

// UsageHandler serves the per-user usage view and history.
type UsageHandler struct {
	stats *services.UsageStatsService
	costs *services.CostService
}

func NewUsageHandler(stats *services.UsageStatsService, costs *services.CostService) *UsageHandler {
	return &UsageHandler{stats: stats, costs: costs}
}

// GetUsage returns the caller's aggregate usage view.
// GET /api/ai/usage
func (h *UsageHandler) GetUsage(c *gin.Context) {
	userID := strconv.FormatUint(uint64(middleware.GetUserID(c)), 10)
	tier := middleware.GetTier(c)

	response.Success(c, h.stats.GetUserUsageStats(c.Request.Context(), userID, tier))
}

// GetHistory returns the caller's recent cost records, newest first.
// GET /api/ai/usage/history?limit=N
func (h *UsageHandler) GetHistory(c *gin.Context) {
	userID := strconv.FormatUint(uint64(middleware.GetUserID(c)), 10)

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	response.Success(c, h.costs.RecentCosts(c.Request.Context(), userID, limit))
}

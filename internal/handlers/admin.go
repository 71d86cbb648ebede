package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/novylist/backend/internal/services"
	"github.com/novylist/backend/pkg/response"
)

// AdminHandler serves system-wide usage reports and quota administration.
type AdminHandler struct {
	reports    *services.UsageReportService
	rateLimits *services.RateLimitService
	auth       *services.AuthService
}

func NewAdminHandler(reports *services.UsageReportService, rateLimits *services.RateLimitService, auth *services.AuthService) *AdminHandler {
	return &AdminHandler{reports: reports, rateLimits: rateLimits, auth: auth}
}

// GetStats returns aggregated AI usage across all users.
// GET /api/admin/ai/stats?start_date=&end_date=
func (h *AdminHandler) GetStats(c *gin.Context) {
	stats, err := h.reports.GetStats(c.Query("start_date"), c.Query("end_date"))
	if err != nil {
		response.ServerError(c, "failed to load usage stats")
		return
	}
	response.Success(c, stats)
}

// GetFeatureBreakdown returns usage grouped by feature and model.
// GET /api/admin/ai/breakdown?start_date=&end_date=
func (h *AdminHandler) GetFeatureBreakdown(c *gin.Context) {
	rows, err := h.reports.GetFeatureBreakdown(c.Query("start_date"), c.Query("end_date"))
	if err != nil {
		response.ServerError(c, "failed to load usage breakdown")
		return
	}
	response.Success(c, rows)
}

// ResetRateLimit clears a user's AI request window.
// POST /api/admin/users/:id/rate-limit/reset
func (h *AdminHandler) ResetRateLimit(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}

	user, err := h.auth.GetUserByID(uint(id))
	if err != nil {
		response.NotFound(c, "user not found")
		return
	}

	userID := strconv.FormatUint(uint64(user.ID), 10)
	if err := h.rateLimits.Reset(c.Request.Context(), userID, user.SubscriptionTier); err != nil {
		response.ServerError(c, "failed to reset rate limit")
		return
	}

	response.Success(c, gin.H{"user_id": user.ID, "tier": user.SubscriptionTier})
}

type updateTierRequest struct {
	Tier string `json:"tier" binding:"required"`
}

// UpdateTier changes a user's subscription tier.
// PUT /api/admin/users/:id/tier
func (h *AdminHandler) UpdateTier(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}

	var req updateTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	user, err := h.auth.UpdateTier(uint(id), req.Tier)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	response.Success(c, user)
}

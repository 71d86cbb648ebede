package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/novylist/backend/internal/middleware"
	"github.com/novylist/backend/internal/services"
)

// AIHandler fronts the completion orchestrator. Rejections carry the
// structured governance error so the editor can render remaining quota.
type AIHandler struct {
	completion *services.CompletionService
}

func NewAIHandler(completion *services.CompletionService) *AIHandler {
	return &AIHandler{completion: completion}
}

type completeRequest struct {
	FeatureType string                     `json:"feature_type" binding:"required"`
	Prompt      string                     `json:"prompt" binding:"required"`
	Options     services.CompletionOptions `json:"options"`
}

// Complete handles an AI writing request.
// POST /api/ai/complete
func (h *AIHandler) Complete(c *gin.Context) {
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": err.Error(),
			},
		})
		return
	}

	result, err := h.completion.Complete(c.Request.Context(), &services.CompletionRequest{
		UserID:      strconv.FormatUint(uint64(middleware.GetUserID(c)), 10),
		Tier:        middleware.GetTier(c),
		FeatureType: req.FeatureType,
		Prompt:      req.Prompt,
		Options:     req.Options,
	})
	if err != nil {
		status, gerr := governanceStatus(err)
		c.JSON(status, gin.H{"success": false, "error": gerr})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}

// governanceStatus maps governance error codes onto HTTP statuses.
func governanceStatus(err error) (int, *services.GovernanceError) {
	var gerr *services.GovernanceError
	if !errors.As(err, &gerr) {
		gerr = &services.GovernanceError{
			Code:    services.ErrCodeAIServiceError,
			Message: err.Error(),
		}
	}

	switch gerr.Code {
	case services.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests, gerr
	case services.ErrCodeBudgetExceeded, services.ErrCodeTokenBudgetExceeded:
		return http.StatusPaymentRequired, gerr
	default:
		return http.StatusBadGateway, gerr
	}
}

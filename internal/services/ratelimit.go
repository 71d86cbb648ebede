package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/novylist/backend/internal/config"
	"github.com/novylist/backend/internal/store"
	"github.com/novylist/backend/pkg/logger"
)

// rateLimitWindow is the rolling window for AI request quotas. The counter
// key expires 24h after the first request of the window.
const rateLimitWindow = 24 * time.Hour

// RateLimitStatus is the admission decision plus enough detail for the UI
// to render "resets at X" messaging.
type RateLimitStatus struct {
	IsRateLimited bool  `json:"is_rate_limited"`
	Limit         int   `json:"limit"`
	Remaining     int   `json:"remaining"`
	ResetAt       int64 `json:"reset_at"` // epoch seconds
}

// RateLimitService tracks AI requests per user per rolling 24h window.
// Counters live in the shared store; any store failure fails open so an
// infrastructure hiccup never blocks writers.
type RateLimitService struct {
	cfg *config.GovernanceConfig
	st  store.Store
	now func() time.Time
}

func NewRateLimitService(cfg *config.GovernanceConfig, st store.Store) *RateLimitService {
	return &RateLimitService{cfg: cfg, st: st, now: time.Now}
}

func rateLimitKey(tier, userID string) string {
	return fmt.Sprintf("ratelimit:%s:%s", tier, userID)
}

// Check reports the current quota state without consuming a point.
func (s *RateLimitService) Check(ctx context.Context, userID, tier string) *RateLimitStatus {
	limit := s.cfg.Tier(tier).RequestsPerDay
	key := rateLimitKey(tier, userID)

	count := 0
	val, err := s.st.Get(ctx, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// first request of the window
	case err != nil:
		logger.Warn().Err(err).Str("user_id", userID).Msg("rate limit check failed, failing open")
		return s.openStatus(tier)
	default:
		count, _ = strconv.Atoi(val)
	}

	return s.status(ctx, key, tier, limit, count)
}

// Consume counts one request against the window. Called only after a
// successful upstream completion.
func (s *RateLimitService) Consume(ctx context.Context, userID, tier string) *RateLimitStatus {
	limit := s.cfg.Tier(tier).RequestsPerDay
	key := rateLimitKey(tier, userID)

	count, err := s.st.IncrBy(ctx, key, 1)
	if err != nil {
		logger.Warn().Err(err).Str("user_id", userID).Msg("rate limit consume failed, failing open")
		return s.openStatus(tier)
	}
	if count == 1 {
		if err := s.st.Expire(ctx, key, rateLimitWindow); err != nil {
			logger.Warn().Err(err).Str("key", key).Msg("failed to set rate limit window expiry")
		}
	}

	return s.status(ctx, key, tier, limit, int(count))
}

// Reset clears a user's window. Admin operation.
func (s *RateLimitService) Reset(ctx context.Context, userID, tier string) error {
	return s.st.Delete(ctx, rateLimitKey(tier, userID))
}

func (s *RateLimitService) status(ctx context.Context, key, tier string, limit, count int) *RateLimitStatus {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	resetAt := s.now().Add(rateLimitWindow).Unix()
	if ttl, err := s.st.TTL(ctx, key); err == nil && ttl > 0 {
		resetAt = s.now().Add(ttl).Unix()
	}

	return &RateLimitStatus{
		// Premium is tracked but never hard-blocked.
		IsRateLimited: remaining <= 0 && tier != config.TierPremium,
		Limit:         limit,
		Remaining:     remaining,
		ResetAt:       resetAt,
	}
}

// openStatus is the fail-open default: full budget, not limited.
func (s *RateLimitService) openStatus(tier string) *RateLimitStatus {
	limit := s.cfg.Tier(tier).RequestsPerDay
	return &RateLimitStatus{
		IsRateLimited: false,
		Limit:         limit,
		Remaining:     limit,
		ResetAt:       s.now().Add(rateLimitWindow).Unix(),
	}
}

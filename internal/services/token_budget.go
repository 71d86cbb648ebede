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

// tokenBudgetWindow is refreshed from the time of each write, so the
// "monthly" token window rolls rather than following calendar months.
// The cost tracker buckets by UTC calendar month instead; the two windows
// drift apart over time and that drift is part of the contract.
const tokenBudgetWindow = 30 * 24 * time.Hour

// TokenBudgetStatus reports both the total and the per-feature slice of a
// user's monthly token budget. Both ceilings are enforced independently.
type TokenBudgetStatus struct {
	HasSufficientBudget bool   `json:"has_sufficient_budget"`
	TotalBudget         int64  `json:"total_budget"`
	TotalUsed           int64  `json:"total_used"`
	TotalRemaining      int64  `json:"total_remaining"`
	FeatureType         string `json:"feature_type"`
	FeatureBudget       int64  `json:"feature_budget"`
	FeatureUsed         int64  `json:"feature_used"`
	FeatureRemaining    int64  `json:"feature_remaining"`
}

// TokenBudgetService tracks cumulative token consumption per user, per
// feature, per rolling 30-day window.
type TokenBudgetService struct {
	cfg *config.GovernanceConfig
	st  store.Store
}

func NewTokenBudgetService(cfg *config.GovernanceConfig, st store.Store) *TokenBudgetService {
	return &TokenBudgetService{cfg: cfg, st: st}
}

func tokenKey(tier, userID, feature string) string {
	return fmt.Sprintf("tokens:%s:%s:%s", tier, userID, feature)
}

// Check decides whether estimatedTokens fits both the feature slice and the
// total budget. Premium is never blocked; usage is still reported.
func (s *TokenBudgetService) Check(ctx context.Context, userID, tier, feature string, estimatedTokens int64) *TokenBudgetStatus {
	st := s.snapshot(ctx, userID, tier, feature)
	st.HasSufficientBudget = tier == config.TierPremium ||
		(estimatedTokens <= st.FeatureRemaining && estimatedTokens <= st.TotalRemaining)
	return st
}

// Record adds actual token usage to both the feature-scoped and total
// counters. The two writes are sequential, not transactional; a failure
// between them can only over-count, which tightens admission rather than
// loosening it.
func (s *TokenBudgetService) Record(ctx context.Context, userID, tier, feature string, tokensUsed int64) *TokenBudgetStatus {
	s.increment(ctx, tokenKey(tier, userID, feature), tokensUsed)
	s.increment(ctx, tokenKey(tier, userID, "total"), tokensUsed)

	st := s.snapshot(ctx, userID, tier, feature)
	st.HasSufficientBudget = tier == config.TierPremium ||
		(st.FeatureRemaining > 0 && st.TotalRemaining > 0)
	return st
}

func (s *TokenBudgetService) increment(ctx context.Context, key string, tokens int64) {
	if _, err := s.st.IncrBy(ctx, key, tokens); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("token usage increment failed")
		return
	}
	// Every write pushes the window out another 30 days.
	if err := s.st.Expire(ctx, key, tokenBudgetWindow); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("failed to refresh token window expiry")
	}
}

func (s *TokenBudgetService) snapshot(ctx context.Context, userID, tier, feature string) *TokenBudgetStatus {
	totalBudget := s.cfg.Tier(tier).MonthlyTokenBudget
	featureBudget := int64(float64(totalBudget) * s.cfg.FeatureFraction(feature))

	featureUsed := s.usage(ctx, tokenKey(tier, userID, feature))
	totalUsed := s.usage(ctx, tokenKey(tier, userID, "total"))

	return &TokenBudgetStatus{
		TotalBudget:      totalBudget,
		TotalUsed:        totalUsed,
		TotalRemaining:   clampInt64(totalBudget - totalUsed),
		FeatureType:      feature,
		FeatureBudget:    featureBudget,
		FeatureUsed:      featureUsed,
		FeatureRemaining: clampInt64(featureBudget - featureUsed),
	}
}

// usage reads a counter, treating a missing key as zero and any store
// failure as zero usage (fail open).
func (s *TokenBudgetService) usage(ctx context.Context, key string) int64 {
	val, err := s.st.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Warn().Err(err).Str("key", key).Msg("token usage read failed, assuming zero")
		}
		return 0
	}
	n, _ := strconv.ParseInt(val, 10, 64)
	return n
}

func clampInt64(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

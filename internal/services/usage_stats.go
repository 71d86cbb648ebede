package services

import (
	"context"
	"sort"

	"github.com/novylist/backend/internal/config"
)

// FeatureUsage is one feature's slice of the monthly token budget.
type FeatureUsage struct {
	Budget    int64 `json:"budget"`
	Used      int64 `json:"used"`
	Remaining int64 `json:"remaining"`
}

// UserUsageStats is the read-only aggregate view shown to end users:
// request quota, dollar budgets, token slices, and recent spend.
type UserUsageStats struct {
	RateLimit   *RateLimitStatus        `json:"rate_limit"`
	Budget      *BudgetStatus           `json:"budget"`
	Features    map[string]FeatureUsage `json:"features"`
	TotalTokens FeatureUsage            `json:"total_tokens"`
	RecentCosts []CostRecord            `json:"recent_costs"`
}

// UsageStatsService composes the three trackers into the reporting surface.
type UsageStatsService struct {
	cfg        *config.GovernanceConfig
	rateLimits *RateLimitService
	tokens     *TokenBudgetService
	costs      *CostService
}

func NewUsageStatsService(cfg *config.GovernanceConfig, rateLimits *RateLimitService, tokens *TokenBudgetService, costs *CostService) *UsageStatsService {
	return &UsageStatsService{
		cfg:        cfg,
		rateLimits: rateLimits,
		tokens:     tokens,
		costs:      costs,
	}
}

// GetUserUsageStats assembles the usage view for one user. Reads only;
// nothing is consumed.
func (s *UsageStatsService) GetUserUsageStats(ctx context.Context, userID, tier string) *UserUsageStats {
	stats := &UserUsageStats{
		RateLimit: s.rateLimits.Check(ctx, userID, tier),
		Budget:    s.costs.CheckBudget(ctx, userID, tier, 0),
		Features:  make(map[string]FeatureUsage),
	}

	// Stable iteration keeps the JSON output deterministic for the UI.
	features := make([]string, 0, len(s.cfg.FeatureLimits))
	for feature := range s.cfg.FeatureLimits {
		features = append(features, feature)
	}
	sort.Strings(features)

	for _, feature := range features {
		tb := s.tokens.Check(ctx, userID, tier, feature, 0)
		stats.Features[feature] = FeatureUsage{
			Budget:    tb.FeatureBudget,
			Used:      tb.FeatureUsed,
			Remaining: tb.FeatureRemaining,
		}
		stats.TotalTokens = FeatureUsage{
			Budget:    tb.TotalBudget,
			Used:      tb.TotalUsed,
			Remaining: tb.TotalRemaining,
		}
	}

	stats.RecentCosts = s.costs.RecentCosts(ctx, userID, 10)
	return stats
}

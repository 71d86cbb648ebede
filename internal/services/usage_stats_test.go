package services

import (
	"context"
	"testing"

	"github.com/novylist/backend/internal/config"
	"github.com/novylist/backend/internal/store"
)

func newStatsFixture() (*UsageStatsService, *RateLimitService, *TokenBudgetService, *CostService) {
	cfg := testGovConfig()
	st := store.NewMemoryStore()
	rates := NewRateLimitService(cfg, st)
	tokens := NewTokenBudgetService(cfg, st)
	costs := NewCostService(cfg, st)
	return NewUsageStatsService(cfg, rates, tokens, costs), rates, tokens, costs
}

func TestUsageStats_FreshUser(t *testing.T) {
	svc, _, _, _ := newStatsFixture()

	stats := svc.GetUserUsageStats(context.Background(), "user-1", config.TierFree)

	if stats.RateLimit.Remaining != 20 {
		t.Errorf("rate limit remaining = %d, want 20", stats.RateLimit.Remaining)
	}
	if stats.Budget.DailyUsage != 0 {
		t.Errorf("DailyUsage = %g, want 0", stats.Budget.DailyUsage)
	}
	if len(stats.Features) != 4 {
		t.Fatalf("features = %d, want the 4 configured slices", len(stats.Features))
	}
	wc := stats.Features[config.FeatureWritingContinuation]
	if wc.Budget != 70_000 || wc.Remaining != 70_000 {
		t.Errorf("writingContinuation = %+v, want full 70000 slice", wc)
	}
	if stats.TotalTokens.Budget != 100_000 {
		t.Errorf("TotalTokens.Budget = %d, want 100000", stats.TotalTokens.Budget)
	}
	if len(stats.RecentCosts) != 0 {
		t.Errorf("RecentCosts = %d, want empty", len(stats.RecentCosts))
	}
}

func TestUsageStats_ReflectsActivity(t *testing.T) {
	svc, rates, tokens, costs := newStatsFixture()
	ctx := context.Background()

	rates.Consume(ctx, "user-1", config.TierStandard)
	rates.Consume(ctx, "user-1", config.TierStandard)
	tokens.Record(ctx, "user-1", config.TierStandard, config.FeaturePlotAnalysis, 12_000)
	costs.RecordCost(ctx, "user-1", config.TierStandard, config.FeaturePlotAnalysis, "gpt-3.5-turbo", 500, 500)

	stats := svc.GetUserUsageStats(ctx, "user-1", config.TierStandard)

	if stats.RateLimit.Remaining != 98 {
		t.Errorf("rate limit remaining = %d, want 98", stats.RateLimit.Remaining)
	}
	pa := stats.Features[config.FeaturePlotAnalysis]
	if pa.Used != 12_000 {
		t.Errorf("plotAnalysis used = %d, want 12000", pa.Used)
	}
	if pa.Remaining != 38_000 {
		t.Errorf("plotAnalysis remaining = %d, want 38000", pa.Remaining)
	}
	if stats.TotalTokens.Used != 12_000 {
		t.Errorf("TotalTokens.Used = %d, want 12000", stats.TotalTokens.Used)
	}
	if !approxEqual(stats.Budget.DailyUsage, 0.00175) {
		t.Errorf("DailyUsage = %g, want 0.00175", stats.Budget.DailyUsage)
	}
	if len(stats.RecentCosts) != 1 {
		t.Errorf("RecentCosts = %d, want 1", len(stats.RecentCosts))
	}
}

func TestUsageStats_ReadOnly(t *testing.T) {
	svc, rates, _, _ := newStatsFixture()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		svc.GetUserUsageStats(ctx, "user-1", config.TierFree)
	}

	if rl := rates.Check(ctx, "user-1", config.TierFree); rl.Remaining != 20 {
		t.Errorf("remaining = %d after stats reads, want untouched 20", rl.Remaining)
	}
}

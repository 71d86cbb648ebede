package services

import (
	"context"
	"testing"

	"github.com/novylist/backend/internal/config"
	"github.com/novylist/backend/internal/store"
)

func TestTokenBudget_FreshUserHasFullBudget(t *testing.T) {
	svc := NewTokenBudgetService(testGovConfig(), store.NewMemoryStore())

	st := svc.Check(context.Background(), "user-1", config.TierFree, config.FeatureWritingContinuation, 500)

	if !st.HasSufficientBudget {
		t.Error("fresh user should have sufficient budget")
	}
	if st.TotalBudget != 100_000 {
		t.Errorf("TotalBudget = %d, expected 100000", st.TotalBudget)
	}
	if st.FeatureBudget != 70_000 {
		t.Errorf("FeatureBudget = %d, expected 70000 (70%% slice)", st.FeatureBudget)
	}
	if st.TotalRemaining != 100_000 || st.FeatureRemaining != 70_000 {
		t.Errorf("remaining = %d/%d, expected untouched budgets", st.TotalRemaining, st.FeatureRemaining)
	}
}

func TestTokenBudget_FeatureSliceCeiling(t *testing.T) {
	svc := NewTokenBudgetService(testGovConfig(), store.NewMemoryStore())
	ctx := context.Background()

	// Saturate the writingContinuation slice (70,000 of the 100,000 total).
	svc.Record(ctx, "user-1", config.TierFree, config.FeatureWritingContinuation, 70_000)

	st := svc.Check(ctx, "user-1", config.TierFree, config.FeatureWritingContinuation, 1)
	if st.HasSufficientBudget {
		t.Error("feature slice exhausted, expected insufficient budget")
	}
	if st.FeatureRemaining != 0 {
		t.Errorf("FeatureRemaining = %d, expected 0", st.FeatureRemaining)
	}
	// Total budget is only 70% consumed; the feature ceiling alone rejects.
	if st.TotalRemaining != 30_000 {
		t.Errorf("TotalRemaining = %d, expected 30000", st.TotalRemaining)
	}

	// A different feature still has its own slice.
	other := svc.Check(ctx, "user-1", config.TierFree, config.FeaturePlotAnalysis, 1)
	if !other.HasSufficientBudget {
		t.Error("other features should still have budget")
	}
}

func TestTokenBudget_TotalCeilingIndependent(t *testing.T) {
	svc := NewTokenBudgetService(testGovConfig(), store.NewMemoryStore())
	ctx := context.Background()

	// Drain most of the total through one feature. An unrecognized feature
	// falls back to the 25% default slice (25,000), which now exceeds the
	// 20,000 left in the total, so the total ceiling is the one that binds.
	svc.Record(ctx, "user-1", config.TierFree, config.FeatureWritingContinuation, 80_000)

	st := svc.Check(ctx, "user-1", config.TierFree, "sceneSummary", 22_000)
	if st.HasSufficientBudget {
		t.Error("22000 exceeds the 20000 total remaining, expected rejection")
	}
	if st.FeatureRemaining != 25_000 {
		t.Errorf("FeatureRemaining = %d, expected untouched 25000 slice", st.FeatureRemaining)
	}
	if st.TotalRemaining != 20_000 {
		t.Errorf("TotalRemaining = %d, expected 20000", st.TotalRemaining)
	}

	st = svc.Check(ctx, "user-1", config.TierFree, "sceneSummary", 18_000)
	if !st.HasSufficientBudget {
		t.Error("18000 fits both ceilings, expected admission")
	}
}

func TestTokenBudget_PremiumExemption(t *testing.T) {
	svc := NewTokenBudgetService(testGovConfig(), store.NewMemoryStore())
	ctx := context.Background()

	// Pre-seed usage far beyond any budget.
	svc.Record(ctx, "vip", config.TierPremium, config.FeatureWritingContinuation, 5_000_000)

	st := svc.Check(ctx, "vip", config.TierPremium, config.FeatureWritingContinuation, 10_000)
	if !st.HasSufficientBudget {
		t.Error("premium tier must never be hard blocked")
	}
	if st.FeatureUsed != 5_000_000 {
		t.Errorf("FeatureUsed = %d, usage must still be tracked", st.FeatureUsed)
	}
	if st.FeatureRemaining != 0 || st.TotalRemaining != 0 {
		t.Error("remaining values clamp at zero for reporting")
	}
}

func TestTokenBudget_UnknownFeatureDefaultFraction(t *testing.T) {
	svc := NewTokenBudgetService(testGovConfig(), store.NewMemoryStore())

	st := svc.Check(context.Background(), "user-1", config.TierFree, "somethingNew", 100)
	if st.FeatureBudget != 25_000 {
		t.Errorf("FeatureBudget = %d, expected 25000 (default 0.25 fraction)", st.FeatureBudget)
	}
}

func TestTokenBudget_RecordUpdatesBothCounters(t *testing.T) {
	svc := NewTokenBudgetService(testGovConfig(), store.NewMemoryStore())
	ctx := context.Background()

	svc.Record(ctx, "user-1", config.TierStandard, config.FeaturePlotAnalysis, 1_200)
	st := svc.Record(ctx, "user-1", config.TierStandard, config.FeaturePlotAnalysis, 800)

	if st.FeatureUsed != 2_000 {
		t.Errorf("FeatureUsed = %d, expected 2000", st.FeatureUsed)
	}
	if st.TotalUsed != 2_000 {
		t.Errorf("TotalUsed = %d, expected 2000", st.TotalUsed)
	}

	// Another feature shares the total but not the slice.
	other := svc.Record(ctx, "user-1", config.TierStandard, config.FeatureDialogueEnhancement, 500)
	if other.FeatureUsed != 500 {
		t.Errorf("FeatureUsed = %d, expected 500", other.FeatureUsed)
	}
	if other.TotalUsed != 2_500 {
		t.Errorf("TotalUsed = %d, expected 2500", other.TotalUsed)
	}
}

func TestTokenBudget_FailOpenOnStoreError(t *testing.T) {
	svc := NewTokenBudgetService(testGovConfig(), failingStore{})

	st := svc.Check(context.Background(), "user-1", config.TierFree, config.FeatureWritingContinuation, 50_000)
	if !st.HasSufficientBudget {
		t.Error("store failure must fail open: zero usage assumed")
	}
	if st.TotalUsed != 0 || st.FeatureUsed != 0 {
		t.Error("fail open reads as zero usage")
	}
}

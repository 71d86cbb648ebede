package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/novylist/backend/internal/config"
	"github.com/novylist/backend/internal/store"
	"github.com/novylist/backend/pkg/logger"
)

const (
	costDetailTTL  = 90 * 24 * time.Hour
	costDailyTTL   = 24 * time.Hour
	costMonthlyTTL = 31 * 24 * time.Hour
	costHistoryMax = 100
)

// CostEstimate is the dollar cost of a call, input and output priced
// independently from the per-model rate table.
type CostEstimate struct {
	Model        string  `json:"model"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	InputCost    float64 `json:"input_cost"`
	OutputCost   float64 `json:"output_cost"`
	TotalCost    float64 `json:"total_cost"`
}

// BudgetStatus reports a user's dollar spend against the daily and monthly
// ceilings. Remaining values are clamped at zero.
type BudgetStatus struct {
	HasExceededLimit bool    `json:"has_exceeded_limit"`
	DailyLimit       float64 `json:"daily_limit"`
	MonthlyLimit     float64 `json:"monthly_limit"`
	DailyUsage       float64 `json:"daily_usage"`
	MonthlyUsage     float64 `json:"monthly_usage"`
	DailyRemaining   float64 `json:"daily_remaining"`
	MonthlyRemaining float64 `json:"monthly_remaining"`
}

// CostRecord is the immutable detail record written for every completed
// call. It is referenced from a capped per-user history list; both expire
// after 90 days.
type CostRecord struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Tier         string    `json:"tier"`
	FeatureType  string    `json:"feature_type"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	InputCost    float64   `json:"input_cost"`
	OutputCost   float64   `json:"output_cost"`
	TotalCost    float64   `json:"total_cost"`
	CreatedAt    time.Time `json:"created_at"`
}

// CostService estimates and records the dollar cost of AI calls. Spend
// counters are bucketed by UTC calendar day and month.
type CostService struct {
	cfg *config.GovernanceConfig
	st  store.Store
	now func() time.Time
}

func NewCostService(cfg *config.GovernanceConfig, st store.Store) *CostService {
	return &CostService{cfg: cfg, st: st, now: time.Now}
}

// Estimate computes the cost of a call. Pure function; unknown models are
// priced at the cheapest general-purpose model's rates.
func (s *CostService) Estimate(model string, inputTokens, outputTokens int) CostEstimate {
	rates := s.cfg.ModelCostFor(model)
	inputCost := float64(inputTokens) / 1000 * rates.InputCostPer1K
	outputCost := float64(outputTokens) / 1000 * rates.OutputCostPer1K

	return CostEstimate{
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		InputCost:    inputCost,
		OutputCost:   outputCost,
		TotalCost:    inputCost + outputCost,
	}
}

// SelectModel resolves the model for a tier/feature pair. Premium gets the
// top-capability model for the two story-analysis features and the mid-tier
// model otherwise; free and standard always get the cheapest model.
func (s *CostService) SelectModel(tier, feature string) string {
	if tier != config.TierPremium {
		return "gpt-3.5-turbo"
	}
	switch feature {
	case config.FeatureCharacterDevelopment, config.FeaturePlotAnalysis:
		return "gpt-4"
	default:
		return "gpt-3.5-turbo-16k"
	}
}

// CheckBudget decides whether an estimated cost fits the caller's daily and
// monthly dollar budgets. Premium is tracked but never blocked.
func (s *CostService) CheckBudget(ctx context.Context, userID, tier string, estimatedCost float64) *BudgetStatus {
	t := s.cfg.Tier(tier)
	now := s.now().UTC()

	daily := s.usage(ctx, s.dailyKey(tier, userID, "", now))
	monthly := s.usage(ctx, s.monthlyKey(tier, userID, "", now))

	return &BudgetStatus{
		HasExceededLimit: tier != config.TierPremium &&
			(daily+estimatedCost > t.DailyCostLimit || monthly+estimatedCost > t.MonthlyCostLimit),
		DailyLimit:       t.DailyCostLimit,
		MonthlyLimit:     t.MonthlyCostLimit,
		DailyUsage:       daily,
		MonthlyUsage:     monthly,
		DailyRemaining:   clampFloat(t.DailyCostLimit - daily),
		MonthlyRemaining: clampFloat(t.MonthlyCostLimit - monthly),
	}
}

// RecordCost computes the actual cost from provider-reported token counts,
// bumps the daily/monthly counters (user-level and per-feature), and writes
// the immutable detail record plus its history reference. Called only after
// a successful upstream call.
func (s *CostService) RecordCost(ctx context.Context, userID, tier, feature, model string, inputTokens, outputTokens int) *CostRecord {
	est := s.Estimate(model, inputTokens, outputTokens)
	now := s.now().UTC()

	s.addSpend(ctx, s.dailyKey(tier, userID, "", now), est.TotalCost, costDailyTTL)
	s.addSpend(ctx, s.monthlyKey(tier, userID, "", now), est.TotalCost, costMonthlyTTL)
	s.addSpend(ctx, s.dailyKey(tier, userID, feature, now), est.TotalCost, costDailyTTL)
	s.addSpend(ctx, s.monthlyKey(tier, userID, feature, now), est.TotalCost, costMonthlyTTL)

	rec := &CostRecord{
		ID:           uuid.NewString(),
		UserID:       userID,
		Tier:         tier,
		FeatureType:  feature,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		InputCost:    est.InputCost,
		OutputCost:   est.OutputCost,
		TotalCost:    est.TotalCost,
		CreatedAt:    now,
	}

	s.appendHistory(ctx, rec)
	return rec
}

// RecentCosts returns up to limit of the user's most recent detail records,
// newest first. Expired detail records are skipped silently.
func (s *CostService) RecentCosts(ctx context.Context, userID string, limit int) []CostRecord {
	if limit <= 0 || limit > costHistoryMax {
		limit = costHistoryMax
	}

	ids, err := s.st.LRange(ctx, historyKey(userID), 0, int64(limit)-1)
	if err != nil {
		logger.Warn().Err(err).Str("user_id", userID).Msg("cost history read failed")
		return []CostRecord{}
	}

	records := make([]CostRecord, 0, len(ids))
	for _, id := range ids {
		val, err := s.st.Get(ctx, detailKey(id))
		if err != nil {
			continue
		}
		var rec CostRecord
		if err := json.Unmarshal([]byte(val), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records
}

func (s *CostService) addSpend(ctx context.Context, key string, amount float64, ttl time.Duration) {
	if _, err := s.st.IncrByFloat(ctx, key, amount); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("cost counter increment failed")
		return
	}
	if err := s.st.Expire(ctx, key, ttl); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("failed to set cost counter expiry")
	}
}

func (s *CostService) appendHistory(ctx context.Context, rec *CostRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		logger.Error().Err(err).Msg("failed to marshal cost record")
		return
	}

	if err := s.st.Set(ctx, detailKey(rec.ID), string(data), costDetailTTL); err != nil {
		logger.Warn().Err(err).Str("record_id", rec.ID).Msg("failed to persist cost detail record")
		return
	}

	key := historyKey(rec.UserID)
	if err := s.st.LPush(ctx, key, rec.ID); err != nil {
		logger.Warn().Err(err).Str("user_id", rec.UserID).Msg("failed to append cost history")
		return
	}
	if err := s.st.LTrim(ctx, key, 0, costHistoryMax-1); err != nil {
		logger.Warn().Err(err).Str("user_id", rec.UserID).Msg("failed to trim cost history")
	}
	if err := s.st.Expire(ctx, key, costDetailTTL); err != nil {
		logger.Warn().Err(err).Str("user_id", rec.UserID).Msg("failed to set cost history expiry")
	}
}

// usage reads a spend counter; missing keys and store failures both read as
// zero spend (fail open).
func (s *CostService) usage(ctx context.Context, key string) float64 {
	val, err := s.st.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Warn().Err(err).Str("key", key).Msg("cost counter read failed, assuming zero")
		}
		return 0
	}
	f, _ := strconv.ParseFloat(val, 64)
	return f
}

// dailyKey buckets by UTC calendar day. An empty feature yields the
// user-level counter.
func (s *CostService) dailyKey(tier, userID, feature string, now time.Time) string {
	day := now.Format("2006-01-02")
	if feature == "" {
		return fmt.Sprintf("cost:%s:%s:daily:%s", tier, userID, day)
	}
	return fmt.Sprintf("cost:%s:%s:%s:daily:%s", tier, userID, feature, day)
}

// monthlyKey buckets by UTC calendar month.
func (s *CostService) monthlyKey(tier, userID, feature string, now time.Time) string {
	month := now.Format("2006-01")
	if feature == "" {
		return fmt.Sprintf("cost:%s:%s:monthly:%s", tier, userID, month)
	}
	return fmt.Sprintf("cost:%s:%s:%s:monthly:%s", tier, userID, feature, month)
}

func detailKey(id string) string {
	return "cost:detail:" + id
}

func historyKey(userID string) string {
	return "cost:history:" + userID
}

func clampFloat(f float64) float64 {
	if f < 0 {
		return 0
	}
	return f
}

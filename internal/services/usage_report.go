package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/novylist/backend/internal/models"
)

// UsageReportService persists archived AI calls and serves the admin usage
// dashboards from the relational store.
type UsageReportService struct {
	db *gorm.DB
}

func NewUsageReportService(db *gorm.DB) *UsageReportService {
	return &UsageReportService{db: db}
}

// Archive writes one completed call into the durable log. Used as the
// archive queue's processor.
func (s *UsageReportService) Archive(_ context.Context, task *ArchiveTask) error {
	return s.db.Create(&models.AICallLog{
		UserID:           task.UserID,
		Tier:             task.Tier,
		FeatureType:      task.FeatureType,
		Model:            task.Model,
		PromptTokens:     task.PromptTokens,
		CompletionTokens: task.CompletionTokens,
		TotalTokens:      task.PromptTokens + task.CompletionTokens,
		InputCost:        task.InputCost,
		OutputCost:       task.OutputCost,
		TotalCost:        task.TotalCost,
		LatencyMs:        task.LatencyMs,
		CreatedAt:        task.CalledAt,
	}).Error
}

// GlobalStats holds aggregated AI usage across all users.
type GlobalStats struct {
	TotalCalls       int64   `json:"total_calls"`
	TotalTokens      int64   `json:"total_tokens"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalCost        float64 `json:"total_cost"`
	AvgLatencyMs     float64 `json:"avg_latency_ms"`
}

// GetStats returns aggregated usage for the given date range (inclusive,
// YYYY-MM-DD; empty means unbounded).
func (s *UsageReportService) GetStats(startDate, endDate string) (*GlobalStats, error) {
	query := s.db.Model(&models.AICallLog{})
	if startDate != "" {
		query = query.Where("created_at >= ?", startDate)
	}
	if endDate != "" {
		query = query.Where("created_at <= ?", endDate+" 23:59:59")
	}

	var stats GlobalStats
	err := query.Select(
		"COUNT(*) as total_calls, " +
			"COALESCE(SUM(total_tokens), 0) as total_tokens, " +
			"COALESCE(SUM(prompt_tokens), 0) as prompt_tokens, " +
			"COALESCE(SUM(completion_tokens), 0) as completion_tokens, " +
			"COALESCE(SUM(total_cost), 0) as total_cost, " +
			"COALESCE(AVG(latency_ms), 0) as avg_latency_ms",
	).Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// FeatureUsageRow holds usage grouped by feature type and model.
type FeatureUsageRow struct {
	FeatureType  string  `json:"feature_type"`
	Model        string  `json:"model"`
	Calls        int     `json:"calls"`
	TotalTokens  int     `json:"total_tokens"`
	TotalCost    float64 `json:"total_cost"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// GetFeatureBreakdown returns usage grouped by feature and model.
func (s *UsageReportService) GetFeatureBreakdown(startDate, endDate string) ([]FeatureUsageRow, error) {
	query := s.db.Model(&models.AICallLog{})
	if startDate != "" {
		query = query.Where("created_at >= ?", startDate)
	}
	if endDate != "" {
		query = query.Where("created_at <= ?", endDate+" 23:59:59")
	}

	var results []FeatureUsageRow
	err := query.Select(
		"feature_type, model, " +
			"COUNT(*) as calls, " +
			"COALESCE(SUM(total_tokens), 0) as total_tokens, " +
			"COALESCE(SUM(total_cost), 0) as total_cost, " +
			"COALESCE(AVG(latency_ms), 0) as avg_latency_ms",
	).Group("feature_type, model").Order("calls DESC").Scan(&results).Error
	if err != nil {
		return nil, err
	}

	if results == nil {
		results = []FeatureUsageRow{}
	}
	return results, nil
}

// CleanupBefore deletes archived calls older than the given time.
func (s *UsageReportService) CleanupBefore(before time.Time) (int64, error) {
	result := s.db.Where("created_at < ?", before).Delete(&models.AICallLog{})
	return result.RowsAffected, result.Error
}

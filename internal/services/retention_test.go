package services

import (
	"context"
	"testing"
	"time"

	"github.com/novylist/backend/internal/config"
)

func TestRetention_DefaultDays(t *testing.T) {
	s := NewRetentionScheduler(nil, 0)
	if s.retentionDays != 90 {
		t.Errorf("retentionDays = %d, expected default 90", s.retentionDays)
	}

	s = NewRetentionScheduler(nil, 30)
	if s.retentionDays != 30 {
		t.Errorf("retentionDays = %d, expected 30", s.retentionDays)
	}
}

func TestRetention_RunPrunesOldRows(t *testing.T) {
	reports := NewUsageReportService(newReportDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	reports.Archive(ctx, archiveTask("1", config.FeatureWritingContinuation, "gpt-3.5-turbo", 100, 100, 0.001, now.AddDate(0, 0, -100)))
	reports.Archive(ctx, archiveTask("1", config.FeatureWritingContinuation, "gpt-3.5-turbo", 100, 100, 0.001, now))

	s := NewRetentionScheduler(reports, 90)
	s.run()

	stats, err := reports.GetStats("", "")
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.TotalCalls != 1 {
		t.Errorf("TotalCalls = %d, expected old row pruned", stats.TotalCalls)
	}
}

func TestRetention_StartStop(t *testing.T) {
	reports := NewUsageReportService(newReportDB(t))
	s := NewRetentionScheduler(reports, 90)

	s.Start()
	s.Stop()
	// Stop on a never-started scheduler is also safe.
	NewRetentionScheduler(reports, 90).Stop()
}

package services

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/novylist/backend/pkg/logger"
)

// RetentionScheduler prunes the archived call log nightly so the durable
// archive matches the 90-day lifetime of the store-side detail records.
type RetentionScheduler struct {
	reports       *UsageReportService
	retentionDays int
	cronScheduler *cron.Cron
}

func NewRetentionScheduler(reports *UsageReportService, retentionDays int) *RetentionScheduler {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &RetentionScheduler{
		reports:       reports,
		retentionDays: retentionDays,
	}
}

// Start schedules the nightly cleanup at 03:00.
func (s *RetentionScheduler) Start() {
	s.cronScheduler = cron.New()
	if _, err := s.cronScheduler.AddFunc("0 3 * * *", s.run); err != nil {
		logger.Errorf("[Retention] failed to schedule cleanup: %v", err)
		return
	}
	s.cronScheduler.Start()
	logger.Infof("[Retention] cleanup scheduled daily at 03:00, retention %d days", s.retentionDays)
}

// Stop halts the scheduler.
func (s *RetentionScheduler) Stop() {
	if s.cronScheduler != nil {
		s.cronScheduler.Stop()
	}
}

func (s *RetentionScheduler) run() {
	before := time.Now().AddDate(0, 0, -s.retentionDays)
	deleted, err := s.reports.CleanupBefore(before)
	if err != nil {
		logger.Errorf("[Retention] cleanup failed: %v", err)
		return
	}
	if deleted > 0 {
		logger.Infof("[Retention] deleted %d archived calls older than %s", deleted, before.Format("2006-01-02"))
	}
}

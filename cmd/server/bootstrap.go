package main

import (
	"github.com/novylist/backend/internal/config"
	"github.com/novylist/backend/internal/handlers"
	"github.com/novylist/backend/internal/models"
	"github.com/novylist/backend/internal/services"
	"github.com/novylist/backend/internal/store"
	"github.com/novylist/backend/internal/utils"
	"github.com/novylist/backend/pkg/logger"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	kv           store.Store
	archiveQueue services.TaskQueue
	worker       *services.Worker
	retention    *services.RetentionScheduler
	authHandler  *handlers.AuthHandler
	aiHandler    *handlers.AIHandler
	usageHandler *handlers.UsageHandler
	adminHandler *handlers.AdminHandler
}

// bootstrap initializes all application dependencies: database, governance
// store, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	// Initialize database
	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	// Governance store: Redis when enabled, in-process otherwise.
	var kv store.Store
	if cfg.Redis.Enabled {
		rs, err := store.NewRedisStore(&cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable, governance counters falling back to in-memory store")
			kv = store.NewMemoryStore()
		} else {
			logger.Infof("Governance store connected to Redis at %s", cfg.Redis.Addr)
			kv = rs
		}
	} else {
		logger.Infof("Governance store running in-memory (Redis disabled)")
		kv = store.NewMemoryStore()
	}

	gov := &cfg.Governance
	rateLimits := services.NewRateLimitService(gov, kv)
	tokens := services.NewTokenBudgetService(gov, kv)
	costs := services.NewCostService(gov, kv)
	statsService := services.NewUsageStatsService(gov, rateLimits, tokens, costs)
	reports := services.NewUsageReportService(models.GetDB())

	// Archive queue: async via Redis when available, in-process otherwise.
	archiveQueue := services.InitTaskQueue(cfg)
	if syncQueue, ok := archiveQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(reports.Archive)
	}

	var worker *services.Worker
	if cfg.Redis.Enabled {
		worker = services.NewWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(reports.Archive)
			worker.Start()
		}
	}

	completion := services.NewCompletionService(
		rateLimits, tokens, costs,
		services.NewCompletionClient(&cfg.OpenAI),
		archiveQueue,
	)

	retention := services.NewRetentionScheduler(reports, cfg.Governance.RetentionDays)
	retention.Start()

	authService := services.NewAuthService(models.GetDB(), &cfg.JWT)
	authHandler := handlers.NewAuthHandler(authService)
	if err := authHandler.CreateAdminIfNotExists(); err != nil {
		logger.Warn().Err(err).Msg("Failed to create admin user")
	}

	return &appServices{
		kv:           kv,
		archiveQueue: archiveQueue,
		worker:       worker,
		retention:    retention,
		authHandler:  authHandler,
		aiHandler:    handlers.NewAIHandler(completion),
		usageHandler: handlers.NewUsageHandler(statsService, costs),
		adminHandler: handlers.NewAdminHandler(reports, rateLimits, authService),
	}
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.retention.Stop()

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.archiveQueue != nil {
		s.archiveQueue.Close()
	}
	if rs, ok := s.kv.(*store.RedisStore); ok {
		rs.Close()
	}
	logger.Info().Msg("All services stopped")
}

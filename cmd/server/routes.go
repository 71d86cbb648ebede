package main

import (
	"github.com/gin-gonic/gin"

	"github.com/novylist/backend/internal/middleware"
	"github.com/novylist/backend/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	// Middleware
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS())

	// In-process limiter shields the public auth endpoints. The per-user AI
	// quota is enforced by the governance layer, not here.
	authLimiter := middleware.NewRateLimiter(5, 10)

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "novylist"})
	})

	// API routes
	api := r.Group("/api")
	{
		// Auth routes (public, rate limited)
		auth := api.Group("/auth", authLimiter.Middleware())
		{
			auth.POST("/register", svc.authHandler.Register)
			auth.POST("/login", svc.authHandler.Login)
		}

		// Protected routes
		protected := api.Group("")
		protected.Use(middleware.AuthRequired())
		{
			// Auth
			protected.GET("/auth/me", svc.authHandler.GetCurrentUser)
			protected.POST("/auth/logout", svc.authHandler.Logout)

			// AI completion and usage
			protected.POST("/ai/complete", svc.aiHandler.Complete)
			protected.GET("/ai/usage", svc.usageHandler.GetUsage)
			protected.GET("/ai/usage/history", svc.usageHandler.GetHistory)
		}

		// Admin only routes
		admin := api.Group("/admin")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
		{
			admin.GET("/ai/stats", svc.adminHandler.GetStats)
			admin.GET("/ai/breakdown", svc.adminHandler.GetFeatureBreakdown)
			admin.POST("/users/:id/rate-limit/reset", svc.adminHandler.ResetRateLimit)
			admin.PUT("/users/:id/tier", svc.adminHandler.UpdateTier)
		}
	}
}

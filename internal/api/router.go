// Package api wires together all HTTP routes of the Assessment API.
//
// Route grouping:
//   - Tenant routes (sessions, results, templates, usage) authenticate with an
//     organization API key and are served both at the root and under /api/v1.
//   - Admin routes (/admin) onboard organizations and issue keys. They require a
//     platform admin JWT and never accept tenant API keys.
//   - /health, /ready and /version are unauthenticated.
package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/assessment-platform/assessment-api/internal/api/admin"
	"github.com/assessment-platform/assessment-api/internal/api/results"
	"github.com/assessment-platform/assessment-api/internal/api/sessions"
	"github.com/assessment-platform/assessment-api/internal/api/templates"
	"github.com/assessment-platform/assessment-api/internal/api/usage"
	"github.com/assessment-platform/assessment-api/internal/archive"
	"github.com/assessment-platform/assessment-api/internal/assessment"
	"github.com/assessment-platform/assessment-api/internal/audit"
	"github.com/assessment-platform/assessment-api/internal/config"
	"github.com/assessment-platform/assessment-api/internal/crypto"
	"github.com/assessment-platform/assessment-api/internal/db/repositories"
	"github.com/assessment-platform/assessment-api/internal/jobs"
	"github.com/assessment-platform/assessment-api/internal/middleware"
	"github.com/assessment-platform/assessment-api/internal/ratelimit"
	"github.com/assessment-platform/assessment-api/internal/storage"
)

// Version is reported by GET /version. cmd/server overrides it at startup.
var Version = "dev"

// secretCipherIterations is the PBKDF2 work factor for the webhook secret key.
const secretCipherIterations = 600_000

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	sweeper  *jobs.SessionSweeper
	ipGuard  *middleware.IPGuard
	archiver *archive.Archiver
	auditor  *audit.MultiShipper
	redis    *redis.Client
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown(ctx context.Context) {
	slog.Info("stopping background services")
	if bg.sweeper != nil {
		bg.sweeper.Stop()
	}
	if bg.ipGuard != nil {
		bg.ipGuard.Stop()
	}
	if bg.archiver != nil {
		if err := bg.archiver.Wait(ctx); err != nil {
			slog.Warn("result snapshots still pending at shutdown", "error", err)
		}
	}
	if bg.auditor != nil {
		if err := bg.auditor.Close(); err != nil {
			slog.Warn("failed to close audit shippers", "error", err)
		}
	}
	if bg.redis != nil {
		if err := bg.redis.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices, error) {
	sqlxDB := sqlx.NewDb(db, "postgres")
	bg := &BackgroundServices{}

	apiKeyRepo := repositories.NewAPIKeyRepository(sqlxDB)
	orgRepo := repositories.NewOrganizationRepository(sqlxDB)
	usageRepo := repositories.NewUsageRepository(sqlxDB)
	sessionRepo := repositories.NewSessionRepository(sqlxDB)
	resultRepo := repositories.NewResultRepository(sqlxDB)

	if cfg.Redis.Enabled() {
		bg.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var limiter ratelimit.Limiter
	switch cfg.RateLimiting.Backend {
	case "redis":
		if bg.redis == nil {
			return nil, nil, errors.New("rate_limiting.backend=redis requires redis.addr")
		}
		limiter = ratelimit.NewRedisLimiter(bg.redis, cfg.RateLimiting.Window, "assess:rl:")
	default:
		limiter = ratelimit.NewPostgresLimiter(sqlxDB, cfg.RateLimiting.Window)
	}
	slog.Info("rate limiter initialized", "backend", cfg.RateLimiting.Backend, "window", cfg.RateLimiting.Window)

	var cipher *crypto.SecretCipher
	if cfg.Auth.EncryptionKey != "" {
		c, err := crypto.DeriveSecretCipher(cfg.Auth.EncryptionKey, crypto.DefaultSalt, secretCipherIterations)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize webhook secret cipher: %w", err)
		}
		cipher = c
	} else {
		slog.Warn("auth.encryption_key is not set; webhooks of organizations with a signing secret will not be delivered")
	}

	svc := assessment.NewService(sqlxDB, cfg).WithSecretCipher(cipher)

	var archiveStore storage.Storage
	if cfg.Archive.Enabled {
		store, err := storage.NewStorage(&cfg.Archive.Storage)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize archive storage: %w", err)
		}
		archiveStore = store
		bg.archiver = archive.New(store, cfg.Archive.Prefix, resultRepo)
		svc = svc.WithArchiver(bg.archiver)
		slog.Info("result archive enabled", "backend", cfg.Archive.Storage.DefaultBackend)
	}

	if cfg.Jobs.SessionSweeper.Enabled {
		bg.sweeper = jobs.NewSessionSweeper(sessionRepo, cfg.Jobs.SessionSweeper.Schedule, cfg.Sessions.RecoveryGrace)
		if err := bg.sweeper.Start(); err != nil {
			return nil, nil, fmt.Errorf("failed to start session sweeper: %w", err)
		}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.UsageLogger(usageRepo))
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.LoggerMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig(cfg.Security.TLS.Enabled)))
	router.Use(middleware.CORSMiddleware(cfg.Security.CORS))

	if cfg.RateLimiting.IPGuard.Enabled {
		guardCfg := middleware.IPGuardConfigFrom(cfg.RateLimiting.IPGuard)
		if bg.redis != nil {
			router.Use(middleware.IPGuardMiddleware(middleware.NewRedisIPGuard(bg.redis, guardCfg)))
		} else {
			bg.ipGuard = middleware.NewIPGuard(guardCfg)
			router.Use(middleware.IPGuardMiddleware(bg.ipGuard))
		}
	}

	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db, archiveStore))
	router.GET("/version", versionHandler())

	gate := middleware.NewGate(apiKeyRepo, orgRepo, usageRepo, limiter, cfg.Auth.APIKeys.DefaultRateLimit)
	sessionHandlers := sessions.NewHandlers(svc)
	resultHandlers := results.NewHandlers(svc)
	templateHandlers := templates.NewHandlers(svc)
	usageHandler := usage.NewHandler(usageRepo)

	tenantRoutes := func(g *gin.RouterGroup) {
		g.Use(gate.Authenticate())

		g.POST("/sessions", gate.SessionQuota(), sessionHandlers.CreateHandler())
		g.POST("/sessions/:token", sessionHandlers.SubmitHandler())
		g.GET("/sessions/:token", sessionHandlers.StateHandler())
		g.POST("/sessions/:token/complete", sessionHandlers.CompleteHandler())
		g.POST("/sessions/:token/manage", sessionHandlers.ManageHandler())

		// analytics before :session_id so the literal segment wins
		g.GET("/results", resultHandlers.ListHandler())
		g.GET("/results/analytics", resultHandlers.AnalyticsHandler())
		g.GET("/results/:session_id", resultHandlers.GetHandler())
		g.GET("/results/:session_id/archive", resultHandlers.ArchiveHandler())

		g.GET("/templates", templateHandlers.ListHandler())
		g.POST("/templates", templateHandlers.CreateHandler())
		g.GET("/templates/:id", templateHandlers.GetHandler())
		g.PUT("/templates/:id", templateHandlers.UpdateHandler())
		g.DELETE("/templates/:id", templateHandlers.DeleteHandler())

		g.GET("/usage", usageHandler.ReportHandler())
	}
	tenantRoutes(router.Group(""))
	tenantRoutes(router.Group("/api/v1"))

	auditor, err := audit.New(cfg.Audit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize audit trail: %w", err)
	}
	bg.auditor = auditor
	orgHandlers := admin.NewOrganizationHandlers(orgRepo, cipher, auditor)
	keyHandlers := admin.NewAPIKeyHandlers(apiKeyRepo, orgRepo, cfg.Auth.APIKeys.Prefix, auditor)

	adminGroup := router.Group("/admin")
	adminGroup.Use(middleware.AdminAuth())
	{
		adminGroup.GET("/organizations", orgHandlers.ListOrganizationsHandler())
		adminGroup.POST("/organizations", orgHandlers.CreateOrganizationHandler())
		adminGroup.GET("/organizations/:id", orgHandlers.GetOrganizationHandler())
		adminGroup.PUT("/organizations/:id", orgHandlers.UpdateOrganizationHandler())
		adminGroup.GET("/organizations/:id/apikeys", keyHandlers.ListAPIKeysHandler())
		adminGroup.POST("/organizations/:id/apikeys", keyHandlers.CreateAPIKeyHandler())
		adminGroup.DELETE("/apikeys/:id", keyHandlers.DeleteAPIKeyHandler())
	}

	return router, bg, nil
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// readinessHandler also probes the archive store when archiving is enabled, so a
// readiness gate fails while snapshots would error. store may be nil.
func readinessHandler(db *sql.DB, store storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		if store != nil {
			if _, err := store.Exists(c.Request.Context(), ".readiness-probe"); err != nil {
				checks["archive"] = "unhealthy"
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"ready":  false,
					"checks": checks,
					"error":  "archive storage not ready",
				})
				return
			}
			checks["archive"] = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/punch-attendance-api/internal/handler"
	"github.com/noah-isme/punch-attendance-api/internal/middleware"
	"github.com/noah-isme/punch-attendance-api/internal/models"
	"github.com/noah-isme/punch-attendance-api/pkg/config"
	"github.com/noah-isme/punch-attendance-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/punch-attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/punch-attendance-api/pkg/middleware/requestid"
)

func newRouter(cfg *config.Config, logr *zap.Logger, deps dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics))

	metricsHandler := handler.NewMetricsHandler(deps.metrics)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(deps.auth)
	resetHandler := handler.NewPasswordResetHandler(deps.reset)
	userHandler := handler.NewUserHandler(deps.user)
	batchHandler := handler.NewBatchHandler(deps.batch)
	punchHandler := handler.NewPunchHandler(deps.punch, deps.export)
	locationHandler := handler.NewLocationHandler(deps.location)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.WithResponseMeta())

	limited := middleware.RateLimit(deps.throttle, cfg.RateLimit.PerMinute, logr)
	auth := api.Group("/auth")
	auth.POST("/login", limited, authHandler.Login)
	auth.POST("/refresh", limited, authHandler.Refresh)
	auth.POST("/forgot-password", limited, resetHandler.Request)
	auth.POST("/verify-reset", limited, resetHandler.Verify)
	auth.POST("/reset-password", limited, resetHandler.Reset)

	secured := api.Group("")
	secured.Use(middleware.JWT(deps.auth))

	secured.POST("/auth/logout", authHandler.Logout)
	secured.POST("/auth/change-password", authHandler.ChangePassword)
	secured.GET("/auth/me", authHandler.Me)

	admin := middleware.RequireRoles(models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleMentor)
	student := middleware.RequireRoles(models.RoleStudent)

	users := secured.Group("/users")
	users.GET("", admin, userHandler.List)
	users.POST("", admin, userHandler.Create)
	users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), middleware.Self), userHandler.Get)
	users.PATCH("/:id", admin, userHandler.Update)

	batches := secured.Group("/batches", staff)
	batches.GET("", batchHandler.List)
	batches.GET("/:id", batchHandler.Get)
	batches.GET("/:id/students", batchHandler.Students)

	punches := secured.Group("/punches")
	punches.POST("", student, punchHandler.Submit)
	punches.GET("", punchHandler.List)
	punches.GET("/pending", staff, punchHandler.Pending)
	punches.GET("/export", staff, middleware.Audit(deps.users, logr, models.AuditActionPunchExport, "punch_request"), punchHandler.Export)
	punches.GET("/:id", punchHandler.Get)
	punches.POST("/:id/decision", middleware.RequireRoles(models.RoleMentor), punchHandler.Process)

	locations := secured.Group("/locations")
	locations.POST("", student, locationHandler.Record)
	locations.GET("/latest", locationHandler.Latest)
	locations.GET("/history", locationHandler.History)

	secured.GET("/system/metrics", admin, metricsHandler.Snapshot)

	return r
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/punch-attendance-api/api/swagger"
	"github.com/noah-isme/punch-attendance-api/internal/repository"
	"github.com/noah-isme/punch-attendance-api/internal/service"
	"github.com/noah-isme/punch-attendance-api/pkg/cache"
	"github.com/noah-isme/punch-attendance-api/pkg/config"
	"github.com/noah-isme/punch-attendance-api/pkg/database"
	"github.com/noah-isme/punch-attendance-api/pkg/jobs"
	"github.com/noah-isme/punch-attendance-api/pkg/logger"
	"github.com/noah-isme/punch-attendance-api/pkg/mailer"
)

// @title Punch Attendance API
// @version 1.0.0
// @description Geotagged student punches, mentor approval and password reset by emailed code.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db, logr); err != nil {
			return err
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, running without cache and throttling", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close() //nolint:errcheck
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	mail := mailer.New(cfg.Mail, logr)
	defer mail.Close() //nolint:errcheck

	mailQueue := jobs.NewQueue("mail", jobs.QueueConfig{
		Workers:    cfg.Mail.Workers,
		BufferSize: 256,
		MaxRetries: cfg.Mail.Retries,
		RetryDelay: 2 * time.Second,
		JobTimeout: 30 * time.Second,
		OnResult:   service.MailResultHook(metrics, logr),
		Logger:     logr,
	})
	mailQueue.Register(service.JobTypeMail, service.MailJobHandler(mail))
	// Stopped by the deferred Stop, after the server has shut down.
	mailQueue.Start(context.Background())
	defer mailQueue.Stop()

	deps := buildServices(cfg, logr, db, redisClient, metrics, validate, mailQueue)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(cfg, logr, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type dependencies struct {
	metrics  *service.MetricsService
	users    *repository.UserRepository
	throttle *repository.ThrottleRepository
	auth     *service.AuthService
	user     *service.UserService
	batch    *service.BatchService
	punch    *service.PunchService
	location *service.LocationService
	reset    *service.PasswordResetService
	export   *service.ExportService
}

func buildServices(cfg *config.Config, logr *zap.Logger, db *sqlx.DB, redisClient *redis.Client, metrics *service.MetricsService, validate *validator.Validate, queue *jobs.Queue) dependencies {
	userRepo := repository.NewUserRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	punchRepo := repository.NewPunchRepository(db)
	locationRepo := repository.NewLocationRepository(db)
	otpRepo := repository.NewOTPRepository(db)
	throttle := repository.NewThrottleRepository(redisClient, "throttle")

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, "punch", logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Locations.CacheTTL, logr, cfg.Locations.CacheEnabled)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "punch-attendance-api",
	})
	batchSvc := service.NewBatchService(batchRepo, userRepo, logr)
	punchSvc := service.NewPunchService(punchRepo, userRepo, batchSvc, userRepo, metrics, validate, logr)
	notifier := service.NewNotificationService(queue, logr)

	return dependencies{
		metrics:  metrics,
		users:    userRepo,
		throttle: throttle,
		auth:     authSvc,
		user:     service.NewUserService(userRepo, batchRepo, validate, logr),
		batch:    batchSvc,
		punch:    punchSvc,
		location: service.NewLocationService(locationRepo, userRepo, cacheSvc, cfg.Locations.CacheTTL, metrics, validate, logr),
		reset: service.NewPasswordResetService(otpRepo, userRepo, throttle, notifier, metrics, validate, logr, service.PasswordResetConfig{
			CodeLength:    cfg.OTP.Length,
			TTL:           cfg.OTP.TTL,
			MaxAttempts:   cfg.OTP.MaxAttempts,
			RequestLimit:  cfg.OTP.RequestLimit,
			RequestWindow: cfg.OTP.RequestWindow,
		}),
		export: service.NewExportService(punchSvc, nil, nil, logr),
	}
}

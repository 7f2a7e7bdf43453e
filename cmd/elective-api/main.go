package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	netmail "net/mail"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/elective-api/api/swagger"
	"github.com/noah-isme/elective-api/internal/handler"
	"github.com/noah-isme/elective-api/internal/repository"
	"github.com/noah-isme/elective-api/internal/service"
	"github.com/noah-isme/elective-api/pkg/cache"
	"github.com/noah-isme/elective-api/pkg/config"
	"github.com/noah-isme/elective-api/pkg/database"
	"github.com/noah-isme/elective-api/pkg/logger"
	mailer "github.com/noah-isme/elective-api/pkg/mail"
	corsmiddleware "github.com/noah-isme/elective-api/pkg/middleware/cors"
	"github.com/noah-isme/elective-api/pkg/realtime"
	"github.com/noah-isme/elective-api/pkg/storage"
)

// @title Elective Course Selection API
// @version 1.0.0
// @description Seat-limited elective selection for students with administration, rosters and live seat counts
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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
		logr.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		repos  stores
		checks []handler.ReadinessCheck
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logr.Warn("using in-memory store; data is lost on restart")
		repos = memoryStores()
	default:
		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer db.Close()
		if cfg.Database.AutoMigrate {
			if err := database.RunMigrations(db.DB, logr); err != nil {
				return err
			}
		}
		repos = postgresStores(db)
		checks = append(checks, handler.ReadinessCheck{Name: "database", Check: db.PingContext})
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		checks = append(checks, handler.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	}

	hub := realtime.NewHub(logr.Named("realtime"))
	go hub.Run(ctx)
	publisher := livePublisher(ctx, redisClient, hub, cfg.Realtime.Channel, logr)

	metrics := service.NewMetricsService(hub.ClientCount)
	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Courses.CacheTTL, logr, redisClient != nil)

	archive, err := storage.NewLocalStorage(cfg.Rosters.StorageDir)
	if err != nil {
		return fmt.Errorf("roster storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Rosters.SignedURLSecret, cfg.Rosters.SignedURLTTL)

	validate := validator.New()
	authSvc := service.NewAuthService(repos.students, repos.admins, repos.audit, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	if err := authSvc.EnsureAdmin(ctx, cfg.Bootstrap.AdminUsername, cfg.Bootstrap.AdminPassword); err != nil {
		return err
	}

	notifications := service.NewNotificationService(repos.outbox, newMailer(cfg.Mail, logr), archive, signer, metrics, logr.Named("notifications"), service.NotificationConfig{
		Workers:       cfg.Notifications.Workers,
		MaxRetries:    cfg.Notifications.MaxRetries,
		RetryDelay:    cfg.Notifications.RetryDelay,
		AttachPDF:     cfg.Notifications.AttachPDF,
		PublicBaseURL: cfg.PublicBaseURL,
		APIPrefix:     cfg.APIPrefix,
	})
	notifications.Start(ctx)
	defer notifications.Stop()

	studentSvc := service.NewStudentService(repos.students, repos.courses, publisher, cacheSvc, validate, logr)
	courseSvc := service.NewCourseService(repos.courses, repos.students, publisher, cacheSvc, validate, logr)
	seatSvc := service.NewSeatService(repos.seats, repos.students, repos.courses, repos.audit, publisher, notifications, cacheSvc, metrics, logr.Named("seats"))
	promotionSvc := service.NewPromotionService(repos.promotions, publisher, cacheSvc, metrics, validate, logr)
	reconcileSvc := service.NewReconcileService(repos.reconcile, repos.courses, publisher, cacheSvc, logr.Named("reconcile"))
	exportSvc := service.NewExportService(courseSvc, logr)
	auditSvc := service.NewAuditLogService(repos.audit)

	origins := corsmiddleware.NewOrigins(cfg.CORS.AllowedOrigins)
	router := newRouter(cfg, logr, handlers{
		auth:      handler.NewAuthHandler(authSvc),
		students:  handler.NewStudentHandler(studentSvc, courseSvc),
		courses:   handler.NewCourseHandler(courseSvc, seatSvc, exportSvc),
		batches:   handler.NewBatchHandler(promotionSvc),
		reconcile: handler.NewReconcileHandler(reconcileSvc),
		auditLogs: handler.NewAuditLogHandler(auditSvc),
		rosters:   handler.NewRosterHandler(notifications),
		live:      handler.NewLiveHandler(hub, realtime.NewUpgrader(origins.Allows), logr.Named("live")),
		metrics:   handler.NewMetricsHandler(metrics, checks...),
	}, authSvc, repos.audit, metrics)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// livePublisher fans updates out through Redis when it is available so every
// instance's clients see them; otherwise the local hub is used directly.
func livePublisher(ctx context.Context, client *redis.Client, hub *realtime.Hub, channel string, logr *zap.Logger) realtime.Publisher {
	if client == nil {
		return hub
	}
	go func() {
		if err := realtime.RunRelay(ctx, client, channel, hub, logr.Named("relay")); err != nil && ctx.Err() == nil {
			logr.Error("realtime relay stopped", zap.Error(err))
		}
	}()
	return realtime.NewRedisPublisher(client, channel)
}

func newMailer(cfg config.MailConfig, logr *zap.Logger) mailer.Mailer {
	if cfg.Provider == config.MailProviderSendgrid && cfg.SendgridAPIKey != "" {
		return mailer.NewSendgridMailer(cfg.SendgridAPIKey, netmail.Address{Name: cfg.FromName, Address: cfg.FromAddress})
	}
	return mailer.NewLogMailer(logr.Named("mail"))
}

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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/room-scheduler-api/api/swagger"
	"github.com/noah-isme/room-scheduler-api/internal/handler"
	internalmiddleware "github.com/noah-isme/room-scheduler-api/internal/middleware"
	"github.com/noah-isme/room-scheduler-api/internal/repository"
	"github.com/noah-isme/room-scheduler-api/internal/service"
	"github.com/noah-isme/room-scheduler-api/migrations"
	"github.com/noah-isme/room-scheduler-api/pkg/cache"
	"github.com/noah-isme/room-scheduler-api/pkg/config"
	"github.com/noah-isme/room-scheduler-api/pkg/database"
	"github.com/noah-isme/room-scheduler-api/pkg/jobs"
	"github.com/noah-isme/room-scheduler-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/room-scheduler-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/room-scheduler-api/pkg/middleware/requestid"
	"github.com/noah-isme/room-scheduler-api/pkg/qrcode"
	"github.com/noah-isme/room-scheduler-api/pkg/storage"
)

// @title Room Scheduler API
// @version 1.0.0
// @description Room booking and schedule display service
// @BasePath /api/v1
// @schemes http

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database, logr)
	if err != nil {
		logr.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db, migrations.FS, logr); err != nil {
			logr.Fatal("database migration failed", zap.Error(err))
		}
	}

	redisClient, err := cache.NewRedis(cfg.Redis, cfg.Cache)
	if err != nil {
		logr.Warn("redis unavailable, schedule cache disabled", zap.Error(err))
		redisClient = nil
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	loc := cfg.Location()
	now := func() time.Time { return time.Now().In(loc) }
	validate := validator.New()
	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.ScheduleTTL, logr, cfg.Cache.Enabled && redisClient != nil)

	departmentRepo := repository.NewDepartmentRepository(db)
	roomRepo := repository.NewRoomRepository(db)
	reservationRepo := repository.NewReservationRepository(db)

	departmentSvc := service.NewDepartmentService(departmentRepo, cacheSvc, validate, logr)
	roomSvc := service.NewRoomService(roomRepo, departmentRepo, reservationRepo,
		qrcode.NewGenerator(cfg.QRCode.FrontendURL, cfg.QRCode.Size),
		cacheSvc, cfg.Cache.ScheduleTTL, validate, logr, now)
	reservationSvc := service.NewReservationService(reservationRepo, cacheSvc, metrics, validate, logr, now)

	handlers := handler.Handlers{
		Departments: handler.NewDepartmentHandler(departmentSvc),
		Rooms:       handler.NewRoomHandler(roomSvc),
		Schedules:   handler.NewScheduleHandler(reservationSvc),
	}

	var exportQueue *jobs.Queue
	if cfg.Exports.Enabled {
		exportQueue, handlers.Exports, err = startExports(ctx, cfg, db, roomRepo, reservationRepo, metrics, validate, logr, now)
		if err != nil {
			logr.Fatal("export pipeline failed to start", zap.Error(err))
		}
	}

	tokens := service.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	var writeGuard gin.HandlerFunc
	if cfg.Auth.RequireAuthForWrites {
		writeGuard = internalmiddleware.RequireActor()
	}

	ops := handler.NewMetricsHandler(metrics, db)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics, "/metrics"))

	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/metrics", ops.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.WithResponseMeta(), internalmiddleware.Actor(tokens))
	handler.Register(api, handlers, writeGuard)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "timezone", loc.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
	if exportQueue != nil {
		exportQueue.Stop()
	}
}

func startExports(
	ctx context.Context,
	cfg *config.Config,
	db *sqlx.DB,
	rooms *repository.RoomRepository,
	reservations *repository.ReservationRepository,
	metrics *service.MetricsService,
	validate *validator.Validate,
	logr *zap.Logger,
	now func() time.Time,
) (*jobs.Queue, *handler.ExportHandler, error) {
	store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return nil, nil, err
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	var worker *service.ScheduleExportWorker
	queue := jobs.NewQueue("schedule-exports", func(ctx context.Context, job jobs.Job) error {
		return worker.Handle(ctx, job)
	}, jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
		RetryDelay: 2 * time.Second,
		Logger:     logr,
		OnExhausted: func(job jobs.Job, err error) {
			worker.Exhausted(job, err)
		},
	})

	exportSvc := service.NewScheduleExportService(
		repository.NewScheduleExportRepository(db),
		rooms,
		queue,
		store,
		signer,
		service.ScheduleExportConfig{
			APIPrefix:       cfg.APIPrefix,
			ResultTTL:       cfg.Exports.SignedURLTTL,
			CleanupInterval: cfg.Exports.CleanupInterval,
		},
		validate,
		logr,
		now,
	)
	worker = service.NewScheduleExportWorker(exportSvc, reservations, metrics)

	queue.Start(ctx)
	exportSvc.RecoverPendingJobs(ctx)
	exportSvc.StartCleanup(ctx)
	return queue, handler.NewExportHandler(exportSvc), nil
}

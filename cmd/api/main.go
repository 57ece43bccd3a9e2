package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/config"
	"github.com/noah-isme/gema-exam-api/internal/database"
	"github.com/noah-isme/gema-exam-api/internal/handler"
	"github.com/noah-isme/gema-exam-api/internal/lifecycle"
	"github.com/noah-isme/gema-exam-api/internal/middleware"
	"github.com/noah-isme/gema-exam-api/internal/models"
	"github.com/noah-isme/gema-exam-api/internal/repository"
	"github.com/noah-isme/gema-exam-api/internal/router"
	"github.com/noah-isme/gema-exam-api/internal/service"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger = logger.With().Str("service", cfg.AppName).Str("env", cfg.AppEnv).Logger()

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(&models.Exam{}, &models.ExamTransition{}, &models.ActivityLog{}); err != nil {
			logger.Fatal().Err(err).Msg("failed to migrate database")
		}
	}

	redisClient, err := database.ConnectRedis(context.Background(), cfg.RedisURL, cfg.AppName)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("nats unavailable, exam events stay on redis")
	}
	if natsConn != nil {
		defer natsConn.Drain()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	validate := validator.New(validator.WithRequiredStructEnabled())
	clock := lifecycle.SystemClock()

	examRepo := repository.NewExamRepository(db)
	transitionRepo := repository.NewExamTransitionRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	activityService := service.NewActivityService(activityRepo, logger)
	examCache := service.NewExamRecordCache(redisClient, cfg.ExamCacheTTL, logger)
	eventService := service.NewExamEventService(redisClient, natsConn, cfg.EventChannel, logger)
	eventService.Start(ctx)

	lifecycleService := service.NewExamLifecycleService(service.ExamLifecycleDependencies{
		Exams:       examRepo,
		Transitions: transitionRepo,
		Activity:    activityService,
		Cache:       examCache,
		Events:      eventService,
		Clock:       clock,
	}, logger)
	actionService := service.NewExamActionService(lifecycleService, examRepo, validate, clock, logger)
	authoringService := service.NewExamAuthoringService(examRepo, validate, activityService, clock, logger)
	availabilityService := service.NewExamAvailabilityService(examRepo, examCache, clock, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		DB:                    db,
		Redis:                 redisClient,
		ExamAdminHandler:      handler.NewExamAdminHandler(actionService, lifecycleService, logger),
		ExamAuthorHandler:     handler.NewExamAuthorHandler(authoringService, actionService, logger),
		ExamStudentHandler:    handler.NewExamStudentHandler(availabilityService, logger),
		ExamBoardHandler:      handler.NewExamBoardHandler(eventService, logger),
		ActivityHandler:       handler.NewActivityHandler(activityService, logger),
		JWTMiddleware:         middleware.JWTProtected(cfg.JWTSecret),
		IdempotencyMiddleware: middleware.Idempotency(redisClient, cfg.IdempotencyTTL, logger),
		RateLimitMiddleware:   middleware.RateLimit("admin-exams", cfg.AdminRateLimit, cfg.AdminRateWindow),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, cfg.ShutdownTimeout, logger)
}

func waitForShutdown(app *fiber.App, timeout time.Duration, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}

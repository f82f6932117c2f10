package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/japanesestudent/listening-service/internal/cache"
	"github.com/japanesestudent/listening-service/internal/config"
	"github.com/japanesestudent/listening-service/internal/database"
	"github.com/japanesestudent/listening-service/internal/handlers"
	"github.com/japanesestudent/listening-service/internal/logger"
	"github.com/japanesestudent/listening-service/internal/maintenance"
	"github.com/japanesestudent/listening-service/internal/middlewares"
	"github.com/japanesestudent/listening-service/internal/probe"
	"github.com/japanesestudent/listening-service/internal/quizgen"
	"github.com/japanesestudent/listening-service/internal/repositories"
	"github.com/japanesestudent/listening-service/internal/services"
	"github.com/japanesestudent/listening-service/internal/storage"
	"github.com/japanesestudent/listening-service/internal/tasks"
	"github.com/japanesestudent/listening-service/internal/transcription"
	"go.uber.org/zap"
)

const version = "1.0.0"

// syncMargin is added to upstream timeouts when sizing the deadlines of synchronous routes
const syncMargin = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v\n", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level); err != nil {
		log.Fatalf("Failed to initialize logger: %v\n", err)
	}
	defer logger.Sync()

	logger.Logger.Info("Starting Listening Service")

	ctx := context.Background()

	// Connect to database
	db, err := database.Connect(cfg.DSN(), logger.Logger)
	if err != nil {
		logger.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	if err := database.RunMigrations(db); err != nil {
		logger.Logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	logger.Logger.Info("Migrations completed")

	// Connect to Redis only when a component needs it
	var redisClient *redis.Client
	if cfg.Cache.Backend == config.CacheBackendRedis || cfg.Pipeline.TaskBackend == config.TaskBackendAsynq {
		redisClient, err = database.ConnectRedis(ctx, cfg.Redis, logger.Logger)
		if err != nil {
			logger.Logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
	}

	appCache, err := cache.New(cfg.Cache, redisClient)
	if err != nil {
		logger.Logger.Fatal("Failed to initialize cache", zap.Error(err))
	}

	// Initialize media store
	store, err := storage.New(ctx, cfg.Storage, logger.Logger)
	if err != nil {
		logger.Logger.Fatal("Failed to initialize media store", zap.Error(err))
	}
	defer store.Close()

	// Initialize external clients
	prober := probe.NewProber(cfg.Probe.FFprobePath, cfg.Probe.ScratchDir, logger.Logger)
	transcriber := transcription.NewClient(cfg.Transcription.URL, cfg.Transcription.Timeout, logger.Logger)
	generator := quizgen.NewClient(cfg.LLM, logger.Logger)

	// Initialize repositories
	audioRepo := repositories.NewAudioRepository(db)
	quizRepo := repositories.NewQuizRepository(db)
	runRepo := repositories.NewPipelineRunRepository(db)

	// Initialize job dispatcher
	var dispatcher tasks.Dispatcher
	var localDispatcher *tasks.LocalDispatcher
	switch cfg.Pipeline.TaskBackend {
	case config.TaskBackendAsynq:
		dispatcher = tasks.NewAsynqDispatcher(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Pipeline.TaskTimeout, logger.Logger)
	default:
		localDispatcher = tasks.NewLocalDispatcher(logger.Logger)
		dispatcher = localDispatcher
	}

	// Initialize services
	pipelineService := services.NewPipelineService(
		audioRepo,
		quizRepo,
		runRepo,
		store,
		prober,
		transcriber,
		generator,
		dispatcher,
		appCache,
		services.PipelineOptions{CountEach: cfg.Pipeline.CountEach, ItemDelay: cfg.Pipeline.ItemDelay},
		logger.Logger,
	)
	if localDispatcher != nil {
		localDispatcher.HandleFunc(tasks.TypeProcessAudio, pipelineService.HandleProcessAudio)
	}
	audioService := services.NewAudioService(audioRepo, quizRepo, store, appCache, cfg.Cache.TTL, logger.Logger)
	quizService := services.NewQuizService(quizRepo, audioRepo, appCache, logger.Logger)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db, version, logger.Logger)
	audioHandler := handlers.NewAudioHandler(audioService, pipelineService, logger.Logger)
	generateTimeout := time.Duration(services.MaxGenerateCount)*(cfg.LLM.Timeout+cfg.Pipeline.ItemDelay) + syncMargin
	quizHandler := handlers.NewQuizHandler(quizService, pipelineService, generateTimeout, logger.Logger)
	transcriptHandler := handlers.NewTranscriptHandler(pipelineService, transcriber, cfg.Transcription.Timeout+syncMargin, logger.Logger)

	// Start maintenance scheduler
	var purger maintenance.CachePurger
	if memoryCache, ok := appCache.(*cache.MemoryCache); ok {
		purger = memoryCache
	}
	scheduler, err := maintenance.NewScheduler(cfg.Maintenance.Schedule, cfg.Maintenance.RunRetention, runRepo, purger, logger.Logger)
	if err != nil {
		logger.Logger.Fatal("Failed to create maintenance scheduler", zap.Error(err))
	}
	scheduler.Start()

	// Setup router
	r := chi.NewRouter()

	// Global middlewares
	r.Use(middlewares.RequestIDMiddleware)
	r.Use(middlewares.LoggerMiddleware(logger.Logger))
	r.Use(middlewares.RecoveryMiddleware(logger.Logger))
	r.Use(middlewares.CORSMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(httprate.LimitByIP(100, time.Minute))
	r.Use(middlewares.RequestSizeLimitMiddleware(handlers.MaxRequestSize))

	// Local media is served by the API itself
	if cfg.Storage.Backend == config.StorageBackendLocal {
		fileServer := http.StripPrefix(storage.UploadsPath, http.FileServer(http.Dir(cfg.Storage.UploadDir)))
		r.Handle(storage.UploadsPath+"*", fileServer)
	}

	// Routes
	r.Route("/api", func(r chi.Router) {
		healthHandler.RegisterRoutes(r)
		audioHandler.RegisterRoutes(r, quizHandler.RegisterAudioRoutes, transcriptHandler.RegisterAudioRoutes)
		quizHandler.RegisterRoutes(r)
		transcriptHandler.RegisterRoutes(r)
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Logger.Info("Server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("storage", store.Backend()),
			zap.String("tasks", cfg.Pipeline.TaskBackend),
			zap.String("cache", cfg.Cache.Backend),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	scheduler.Stop()

	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Error("Pipeline jobs did not finish in time", zap.Error(err))
	}

	logger.Logger.Info("Server exited")
}

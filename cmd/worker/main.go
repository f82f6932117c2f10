package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/japanesestudent/listening-service/internal/cache"
	"github.com/japanesestudent/listening-service/internal/config"
	"github.com/japanesestudent/listening-service/internal/database"
	"github.com/japanesestudent/listening-service/internal/logger"
	"github.com/japanesestudent/listening-service/internal/probe"
	"github.com/japanesestudent/listening-service/internal/quizgen"
	"github.com/japanesestudent/listening-service/internal/repositories"
	"github.com/japanesestudent/listening-service/internal/services"
	"github.com/japanesestudent/listening-service/internal/storage"
	"github.com/japanesestudent/listening-service/internal/tasks"
	"github.com/japanesestudent/listening-service/internal/transcription"
	"go.uber.org/zap"
)

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

	logger.Logger.Info("Starting Listening Pipeline Worker")

	if cfg.Pipeline.TaskBackend != config.TaskBackendAsynq {
		logger.Logger.Warn("TASK_BACKEND is not asynq, the API runs pipeline jobs in process and this worker will stay idle",
			zap.String("task_backend", cfg.Pipeline.TaskBackend))
	}

	ctx := context.Background()

	// Connect to database
	db, err := database.Connect(cfg.DSN(), logger.Logger)
	if err != nil {
		logger.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Connect to Redis
	rdb, err := database.ConnectRedis(ctx, cfg.Redis, logger.Logger)
	if err != nil {
		logger.Logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer rdb.Close()

	var cacheClient *redis.Client
	if cfg.Cache.Backend == config.CacheBackendRedis {
		cacheClient = rdb
	}
	// memory cache entries live in the API process
	if cfg.Cache.Backend == config.CacheBackendMemory {
		cfg.Cache.Backend = config.CacheBackendNone
	}
	appCache, err := cache.New(cfg.Cache, cacheClient)
	if err != nil {
		logger.Logger.Fatal("Failed to initialize cache", zap.Error(err))
	}

	// Initialize media store
	store, err := storage.New(ctx, cfg.Storage, logger.Logger)
	if err != nil {
		logger.Logger.Fatal("Failed to initialize media store", zap.Error(err))
	}
	defer store.Close()

	// Initialize repositories and pipeline
	audioRepo := repositories.NewAudioRepository(db)
	quizRepo := repositories.NewQuizRepository(db)
	runRepo := repositories.NewPipelineRunRepository(db)

	pipelineService := services.NewPipelineService(
		audioRepo,
		quizRepo,
		runRepo,
		store,
		probe.NewProber(cfg.Probe.FFprobePath, cfg.Probe.ScratchDir, logger.Logger),
		transcription.NewClient(cfg.Transcription.URL, cfg.Transcription.Timeout, logger.Logger),
		quizgen.NewClient(cfg.LLM, logger.Logger),
		nil,
		appCache,
		services.PipelineOptions{CountEach: cfg.Pipeline.CountEach, ItemDelay: cfg.Pipeline.ItemDelay},
		logger.Logger,
	)

	// Create Asynq server
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				tasks.QueuePipeline: 1,
			},
		},
	)

	// Register task handlers
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeProcessAudio, tasks.AsynqHandler(pipelineService.HandleProcessAudio))

	// Start worker
	go func() {
		if err := srv.Run(mux); err != nil {
			logger.Logger.Fatal("Failed to start worker", zap.Error(err))
		}
	}()

	logger.Logger.Info("Worker started")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Logger.Info("Shutting down worker...")
	srv.Shutdown()
	logger.Logger.Info("Worker exited")
}

package main

import (
	"context"
	"log"

	"github.com/hibiken/asynq"

	"multimodal-rag-platform/internal/ai"
	"multimodal-rag-platform/internal/config"
	"multimodal-rag-platform/internal/logger"
	"multimodal-rag-platform/internal/queue"
	"multimodal-rag-platform/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer mongoClient.Disconnect(context.Background())
	db := mongoClient.Database(cfg.DBName)

	geminiClient, err := ai.NewGeminiClient(cfg)
	if err != nil {
		log.Fatal("Failed to initialize Gemini client:", err)
	}
	defer geminiClient.Close()

	extractor := services.NewExtractor(cfg.FullDocumentDigest)
	chunker := services.NewSemanticChunker(geminiClient, cfg.BreakpointPercentile)
	store := services.NewVectorStore(db, geminiClient, cfg)
	ingestion := services.NewIngestionService(extractor, chunker, store, db)

	maintenance := services.NewMaintenanceService(db)
	maintenance.Start()
	defer maintenance.Stop()

	redisOpt := asynqRedisOpt(cfg)
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			// Ingestion holds a document-conversion engine that is not safe
			// for concurrent use, so batches run one at a time per worker.
			Concurrency: 1,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(ingestion)
	mux := asynq.NewServeMux()
	processor.RegisterHandlers(mux)

	logger.Info("starting worker", "redis", redisOpt.Addr)
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}

func asynqRedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	if opt, err := asynq.ParseRedisURI(cfg.RedisURL); err == nil {
		if clientOpt, ok := opt.(asynq.RedisClientOpt); ok {
			return clientOpt
		}
	}
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

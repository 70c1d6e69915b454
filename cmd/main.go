package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"multimodal-rag-platform/internal/ai"
	"multimodal-rag-platform/internal/config"
	"multimodal-rag-platform/internal/logger"
	"multimodal-rag-platform/internal/telemetry"
	"multimodal-rag-platform/middleware"
	"multimodal-rag-platform/routes"
	"multimodal-rag-platform/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	if cfg.TracingEnabled {
		shutdown, err := telemetry.InitTracer("multimodal-rag-platform", cfg.OTLPEndpoint)
		if err != nil {
			logger.Warn("tracing disabled", "error", err)
		} else {
			defer shutdown()
		}
	}

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()
	db := mongoClient.Database(cfg.DBName)

	// Redis backs the rate limiter, the answer cache and the ingestion queue.
	// The API stays up without it; those features just switch off.
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		logger.Warn("redis unavailable, rate limiting and caching disabled", "error", err)
		rdb = nil
	}

	geminiClient, err := ai.NewGeminiClient(cfg)
	if err != nil {
		log.Fatal("Failed to initialize Gemini client:", err)
	}
	defer geminiClient.Close()

	extractor := services.NewExtractor(cfg.FullDocumentDigest)
	chunker := services.NewSemanticChunker(geminiClient, cfg.BreakpointPercentile)
	store := services.NewVectorStore(db, geminiClient, cfg)
	ingestion := services.NewIngestionService(extractor, chunker, store, db)
	retrieval := services.NewRetrievalService(store, geminiClient, rdb,
		time.Duration(cfg.AnswerCacheTTLSeconds)*time.Second)

	var queueClient *asynq.Client
	if rdb != nil {
		queueClient = asynq.NewClient(asynqRedisOpt(cfg))
		defer queueClient.Close()
	}

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddlewareWithOrigins(cfg.CORSOrigins))
	if cfg.TracingEnabled {
		router.Use(middleware.TracingMiddleware())
		router.Use(middleware.EnrichTrace())
	}
	if rdb != nil {
		router.Use(middleware.RateLimitMiddleware(rdb, cfg))
	}

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Multimodal RAG API is running!"})
	})
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	routes.RegisterChatbotRoutes(router, cfg, db, ingestion, queueClient)
	routes.RegisterAskRoutes(router, retrieval)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("server exited")
}

// asynqRedisOpt mirrors the redis connection settings for the queue client.
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

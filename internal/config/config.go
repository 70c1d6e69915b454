package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI    string
	DBName      string
	Port        string
	GinMode     string
	CORSOrigins []string

	// Uploads and on-disk artifacts
	BaseStorageDir      string // root of {base}/users/{user_id}/{chatbot_id}/documents
	MaxFileSize         int64
	SyncProcessingLimit int64 // batches above this byte size are ingested asynchronously

	// Redis Configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// Gemini
	GeminiAPIKey      string
	GeminiModel       string
	GeminiTier        string
	ImageCaptionModel string // vision model used to caption image records before embedding

	// Embeddings
	GoogleEmbeddingsModel string

	// MongoDB Vector Search
	VectorSearchEnabled bool
	VectorIndexName     string
	VectorDimensions    int

	// Semantic chunking
	BreakpointPercentile float64
	FullDocumentDigest   bool

	// Retrieval
	AnswerCacheTTLSeconds int

	// Observability
	OTLPEndpoint   string
	TracingEnabled bool
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017/multimodal_rag"),
		DBName:      getEnv("DB_NAME", "multimodal_rag"),
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:4200,http://localhost:3000"), ","),

		BaseStorageDir:      getEnv("BASE_STORAGE_DIR", "./uploads"),
		MaxFileSize:         getEnvInt64("MAX_FILE_SIZE", 104857600),        // 100MB per upload
		SyncProcessingLimit: getEnvInt64("SYNC_PROCESSING_LIMIT", 20971520), // 20MB sync ingestion limit

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiTier:        getEnv("GEMINI_TIER", "free"),
		ImageCaptionModel: getEnv("IMAGE_CAPTION_MODEL", "gemini-2.0-flash"),

		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),

		VectorSearchEnabled: getEnvBool("MONGODB_VECTOR_ENABLED", false),
		VectorIndexName:     getEnv("MONGODB_VECTOR_INDEX", "vector_chunks_index"),
		VectorDimensions:    getEnvInt("VECTOR_DIM", 768),

		BreakpointPercentile: getEnvFloat64("BREAKPOINT_PERCENTILE", 95),
		FullDocumentDigest:   getEnvBool("FULL_DOCUMENT_DIGEST", true),

		AnswerCacheTTLSeconds: getEnvInt("ANSWER_CACHE_TTL", 300),

		OTLPEndpoint:   getEnv("OTLP_ENDPOINT", "localhost:4317"),
		TracingEnabled: getEnvBool("TRACING_ENABLED", false),
	}

	// Validate required fields
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}

	if cfg.BreakpointPercentile <= 0 || cfg.BreakpointPercentile > 100 {
		return nil, fmt.Errorf("BREAKPOINT_PERCENTILE must be in (0, 100], got %v", cfg.BreakpointPercentile)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

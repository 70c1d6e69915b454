package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"multimodal-rag-platform/internal/logger"
	"multimodal-rag-platform/models"
)

const retrievalK = 5

const answerSystemPrompt = `You are a visual AI assistant. Analyze both the TEXT CONTEXT and IMAGES to answer the question.
Pay special attention to visual details in images. When asked about something related to images.
Use ONLY the provided context to answer the question.
If the answer is not contained in the context, respond with: "I don't know."`

// chunkSearcher is the read side of the vector store.
type chunkSearcher interface {
	Search(ctx context.Context, query string, tenant models.Tenant, contentType string, k int) ([]models.SearchResult, error)
}

// answerGenerator produces the final answer from a prompt plus image files.
// *ai.GeminiClient satisfies it.
type answerGenerator interface {
	GenerateAnswer(ctx context.Context, prompt string, imagePaths []string) (string, error)
}

// RetrievalService composes answers: top-k text and image matches for the
// tenant, one multimodal prompt, one generation call. Its correctness is
// relaying retrieved context faithfully; it adds no ranking of its own.
type RetrievalService struct {
	store    chunkSearcher
	llm      answerGenerator
	cache    *redis.Client
	cacheTTL time.Duration
}

// NewRetrievalService wires the composer. cache may be nil; caching is an
// optimization, never a dependency.
func NewRetrievalService(store chunkSearcher, llm answerGenerator, cache *redis.Client, cacheTTL time.Duration) *RetrievalService {
	return &RetrievalService{
		store:    store,
		llm:      llm,
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

// Ask answers a query within one tenant's corpus. Identical recent queries
// are served from the answer cache; every cache failure falls through to a
// full retrieval, never to an error.
func (rs *RetrievalService) Ask(ctx context.Context, query string, tenant models.Tenant, includeImages bool) (*models.Answer, error) {
	cacheKey := answerCacheKey(query, tenant, includeImages)
	if cached := rs.cacheGet(ctx, cacheKey); cached != nil {
		return cached, nil
	}

	textHits, err := rs.store.Search(ctx, query, tenant, models.ContentTypeText, retrievalK)
	if err != nil {
		return nil, fmt.Errorf("text retrieval failed: %w", err)
	}

	var imagePaths []string
	if includeImages {
		imageHits, err := rs.store.Search(ctx, query, tenant, models.ContentTypeImage, retrievalK)
		if err != nil {
			return nil, fmt.Errorf("image retrieval failed: %w", err)
		}
		imagePaths = resolveImagePaths(imageHits)
	}

	prompt := buildAnswerPrompt(textContext(textHits), query, len(imagePaths) > 0)
	result, err := rs.llm.GenerateAnswer(ctx, prompt, imagePaths)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	answer := &models.Answer{
		Result: result,
		Sources: models.AnswerSources{
			Text:   textSources(textHits),
			Images: imagePaths,
		},
	}
	rs.cacheSet(ctx, cacheKey, answer)
	return answer, nil
}

func textContext(hits []models.SearchResult) string {
	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		parts = append(parts, h.Chunk.Content)
	}
	return strings.Join(parts, "\n\n")
}

func textSources(hits []models.SearchResult) []models.TextSource {
	sources := make([]models.TextSource, 0, len(hits))
	for _, h := range hits {
		meta := map[string]string{
			"source":       h.Chunk.Source,
			"element_kind": h.Chunk.ElementKind,
		}
		if h.Chunk.Page > 0 {
			meta["page"] = strconv.Itoa(h.Chunk.Page)
		}
		for k, v := range h.Chunk.Metadata {
			meta[k] = v
		}
		sources = append(sources, models.TextSource{Content: h.Chunk.Content, Metadata: meta})
	}
	return sources
}

// resolveImagePaths keeps only hits whose image file still exists on disk.
// Records can outlive their artifacts when storage is cleaned out-of-band.
func resolveImagePaths(hits []models.SearchResult) []string {
	var paths []string
	for _, h := range hits {
		if h.Chunk.URI == "" {
			continue
		}
		if _, err := os.Stat(h.Chunk.URI); err != nil {
			logger.Warn("indexed image missing on disk", "uri", h.Chunk.URI)
			continue
		}
		paths = append(paths, h.Chunk.URI)
	}
	return paths
}

func buildAnswerPrompt(context, question string, hasImages bool) string {
	var sb strings.Builder
	sb.WriteString(answerSystemPrompt)
	sb.WriteString("\n\n")
	if hasImages {
		sb.WriteString("ANALYZE THESE IMAGES CAREFULLY:\n\n")
	}
	sb.WriteString("TEXT CONTEXT:\n")
	sb.WriteString(context)
	sb.WriteString("\n\nQUESTION:\n")
	sb.WriteString(question)
	sb.WriteString("\n\nAnswer based on ALL available information:")
	return sb.String()
}

func answerCacheKey(query string, tenant models.Tenant, includeImages bool) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%t", tenant.UserID, tenant.ChatbotID, query, includeImages)))
	return "answer:" + hex.EncodeToString(sum[:])
}

func (rs *RetrievalService) cacheGet(ctx context.Context, key string) *models.Answer {
	if rs.cache == nil {
		return nil
	}
	raw, err := rs.cache.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warn("answer cache read failed", "error", err)
		}
		return nil
	}
	var answer models.Answer
	if err := json.Unmarshal(raw, &answer); err != nil {
		logger.Warn("answer cache entry corrupt", "error", err)
		return nil
	}
	return &answer
}

func (rs *RetrievalService) cacheSet(ctx context.Context, key string, answer *models.Answer) {
	if rs.cache == nil || rs.cacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(answer)
	if err != nil {
		return
	}
	if err := rs.cache.Set(ctx, key, raw, rs.cacheTTL).Err(); err != nil {
		logger.Warn("answer cache write failed", "error", err)
	}
}

package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"multimodal-rag-platform/internal/config"
	"multimodal-rag-platform/internal/logger"
	"multimodal-rag-platform/models"
)

// Embedder is the full embedding surface the store depends on. Image
// embedding works caption-first: the vision model describes the image and the
// caption's text embedding is stored, so text queries and image records share
// one vector space.
type Embedder interface {
	TextEmbedder
	EmbedImage(ctx context.Context, path string) (caption string, vector []float32, err error)
}

// VectorStore is the only layer that touches the vector index, and the only
// place tenant isolation is enforced. Every read and write carries the
// user_id + chatbot_id + content_type filter; nothing above this layer can
// reach another tenant's records. The index is append-only.
type VectorStore struct {
	collection    *mongo.Collection
	embedder      Embedder
	searchEnabled bool
	indexName     string
}

func NewVectorStore(db *mongo.Database, embedder Embedder, cfg *config.Config) *VectorStore {
	return &VectorStore{
		collection:    db.Collection(config.CollectionVectorChunks),
		embedder:      embedder,
		searchEnabled: cfg.VectorSearchEnabled,
		indexName:     cfg.VectorIndexName,
	}
}

// StoreChunks embeds and appends text-modality chunks for one tenant.
// An empty batch is a no-op, not an error. Embedding failure aborts the batch
// before any write so a partial batch is never half-indexed ahead of it.
func (vs *VectorStore) StoreChunks(ctx context.Context, chunks []models.Chunk, tenant models.Tenant) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	if err := validateTenant(tenant); err != nil {
		return 0, err
	}

	now := time.Now()
	docs := make([]interface{}, 0, len(chunks))
	for i, c := range chunks {
		vec, err := vs.embedder.EmbedText(ctx, c.Content)
		if err != nil {
			return 0, fmt.Errorf("failed to embed chunk %d from %s: %w", i+1, c.Source, err)
		}
		docs = append(docs, models.VectorChunk{
			ID:          uuid.New().String(),
			UserID:      tenant.UserID,
			ChatbotID:   tenant.ChatbotID,
			ContentType: models.ContentTypeText,
			Content:     c.Content,
			Source:      c.Source,
			ElementKind: c.ElementKind,
			Page:        c.Page,
			LocalPath:   c.LocalPath,
			Vector:      vec,
			Metadata:    flattenMetadata(c.Metadata),
			CreatedAt:   now,
		})
	}

	if _, err := vs.collection.InsertMany(ctx, docs); err != nil {
		return 0, fmt.Errorf("failed to store chunks: %w", err)
	}

	logger.Info("stored text chunks",
		"user_id", tenant.UserID, "chatbot_id", tenant.ChatbotID, "count", len(docs))
	return len(docs), nil
}

// StoreImages captions, embeds and appends image-modality records. A failure
// on one image skips that image rather than aborting the rest; the skipped
// paths are returned so the caller can report them.
func (vs *VectorStore) StoreImages(ctx context.Context, paths []string, tenant models.Tenant) (stored int, skipped []string, err error) {
	if len(paths) == 0 {
		return 0, nil, nil
	}
	if err := validateTenant(tenant); err != nil {
		return 0, nil, err
	}

	batch := uuid.New().String()[:8]
	now := time.Now()
	var docs []interface{}

	for i, path := range paths {
		caption, vec, err := vs.embedder.EmbedImage(ctx, path)
		if err != nil {
			logger.Warn("failed to embed image, skipping",
				"path", path, "user_id", tenant.UserID, "error", err)
			skipped = append(skipped, path)
			continue
		}
		docs = append(docs, models.VectorChunk{
			// Sequence is unique within this batch only; the batch suffix
			// keeps _id collision-free across re-ingests of the same files.
			ID:          fmt.Sprintf("img_%s_%s_%d_%s", tenant.UserID, tenant.ChatbotID, i+1, batch),
			UserID:      tenant.UserID,
			ChatbotID:   tenant.ChatbotID,
			ContentType: models.ContentTypeImage,
			Content:     caption,
			Source:      filepath.Base(path),
			URI:         path,
			Caption:     caption,
			Vector:      vec,
			CreatedAt:   now,
		})
	}

	if len(docs) == 0 {
		return 0, skipped, nil
	}
	if _, err := vs.collection.InsertMany(ctx, docs); err != nil {
		return 0, skipped, fmt.Errorf("failed to store images: %w", err)
	}

	logger.Info("stored image records",
		"user_id", tenant.UserID, "chatbot_id", tenant.ChatbotID,
		"count", len(docs), "skipped", len(skipped))
	return len(docs), skipped, nil
}

// Search returns up to k records of one modality for one tenant, most similar
// first. Non-positive k is clamped to 1. A tenant with no matching records
// gets an empty result, never an error.
func (vs *VectorStore) Search(ctx context.Context, query string, tenant models.Tenant, contentType string, k int) ([]models.SearchResult, error) {
	if err := validateTenant(tenant); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 1
	}

	queryVec, err := vs.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	filter := tenantFilter(tenant, contentType)
	if vs.searchEnabled {
		return vs.searchAtlas(ctx, queryVec, filter, k)
	}
	return vs.searchCosineScan(ctx, queryVec, filter, k)
}

// searchAtlas runs a $vectorSearch aggregation with the tenant filter pushed
// into the index lookup itself.
func (vs *VectorStore) searchAtlas(ctx context.Context, queryVec []float32, filter bson.M, k int) ([]models.SearchResult, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.M{
			"index":         vs.indexName,
			"path":          "vector",
			"queryVector":   queryVec,
			"numCandidates": k * 20,
			"limit":         k,
			"filter":        filter,
		}}},
		{{Key: "$addFields", Value: bson.M{
			"search_score": bson.M{"$meta": "vectorSearchScore"},
		}}},
	}

	cursor, err := vs.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		models.VectorChunk `bson:",inline"`
		SearchScore        float64 `bson:"search_score"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}

	results := make([]models.SearchResult, 0, len(rows))
	for _, row := range rows {
		// Atlas reports cosine similarity normalized into (0,1].
		results = append(results, models.SearchResult{
			Chunk:    row.VectorChunk,
			Distance: 1 - row.SearchScore,
		})
	}
	return results, nil
}

// searchCosineScan fetches the tenant's records and ranks them in process.
// Tenant corpora are small enough that a filtered scan stays cheap, and it
// keeps local and test deployments off Atlas.
func (vs *VectorStore) searchCosineScan(ctx context.Context, queryVec []float32, filter bson.M, k int) ([]models.SearchResult, error) {
	cursor, err := vs.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tenant records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []models.VectorChunk
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode tenant records: %w", err)
	}

	return rankByDistance(queryVec, records, k), nil
}

// rankByDistance orders records by cosine distance to the query vector and
// keeps the closest k. Pure function, shared by the fallback path and tests.
func rankByDistance(queryVec []float32, records []models.VectorChunk, k int) []models.SearchResult {
	results := make([]models.SearchResult, 0, len(records))
	for _, r := range records {
		results = append(results, models.SearchResult{
			Chunk:    r,
			Distance: 1 - cosineSimilarity(queryVec, r.Vector),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}

func tenantFilter(tenant models.Tenant, contentType string) bson.M {
	return bson.M{
		"user_id":      tenant.UserID,
		"chatbot_id":   tenant.ChatbotID,
		"content_type": contentType,
	}
}

func validateTenant(tenant models.Tenant) error {
	if tenant.UserID == "" || tenant.ChatbotID == "" {
		return fmt.Errorf("tenant scope incomplete: user_id=%q chatbot_id=%q", tenant.UserID, tenant.ChatbotID)
	}
	return nil
}

// flattenMetadata keeps only values representable as flat scalars and renders
// them to strings. Anything else (slices, maps, structs, nil) is dropped
// rather than failing the store.
func flattenMetadata(meta map[string]interface{}) map[string]string {
	if len(meta) == 0 {
		return nil
	}
	flat := make(map[string]string, len(meta))
	for key, value := range meta {
		switch v := value.(type) {
		case string:
			flat[key] = v
		case bool:
			flat[key] = strconv.FormatBool(v)
		case int:
			flat[key] = strconv.Itoa(v)
		case int32:
			flat[key] = strconv.FormatInt(int64(v), 10)
		case int64:
			flat[key] = strconv.FormatInt(v, 10)
		case float32:
			flat[key] = strconv.FormatFloat(float64(v), 'g', -1, 32)
		case float64:
			flat[key] = strconv.FormatFloat(v, 'g', -1, 64)
		}
	}
	if len(flat) == 0 {
		return nil
	}
	return flat
}

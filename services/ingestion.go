package services

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"multimodal-rag-platform/internal/config"
	"multimodal-rag-platform/internal/logger"
	"multimodal-rag-platform/models"
	"multimodal-rag-platform/utils"
)

// chunkStore is the slice of the vector store the orchestrator drives.
type chunkStore interface {
	StoreChunks(ctx context.Context, chunks []models.Chunk, tenant models.Tenant) (int, error)
	StoreImages(ctx context.Context, paths []string, tenant models.Tenant) (stored int, skipped []string, err error)
}

// batchChunker re-groups one batch of extracted chunks.
type batchChunker interface {
	ChunkBatch(ctx context.Context, chunks []models.Chunk) ([]models.Chunk, error)
}

// IngestionService drives one upload batch through classify, extract, chunk
// and store. Files are processed sequentially; the shared extraction engine
// is not safe for concurrent use within a batch.
type IngestionService struct {
	extractor *Extractor
	chunker   batchChunker
	store     chunkStore
	documents *mongo.Collection
}

func NewIngestionService(extractor *Extractor, chunker batchChunker, store chunkStore, db *mongo.Database) *IngestionService {
	svc := &IngestionService{
		extractor: extractor,
		chunker:   chunker,
		store:     store,
	}
	if db != nil {
		svc.documents = db.Collection(config.CollectionDocuments)
	}
	return svc
}

// SupportedFormats lists the document extensions this pipeline can ingest.
func (s *IngestionService) SupportedFormats() []string {
	return s.extractor.SupportedFormats()
}

// IngestDirectory processes every recognized file in dir for one tenant.
// A malformed file is recorded in the report and the batch continues;
// embedding or index unavailability fails the whole batch. Re-running over
// the same directory appends duplicate records, the index has no dedup.
func (s *IngestionService) IngestDirectory(ctx context.Context, dir string, tenant models.Tenant) (*models.IngestReport, error) {
	report := &models.IngestReport{
		UserID:    tenant.UserID,
		ChatbotID: tenant.ChatbotID,
	}

	documents, images := ClassifyUploads(dir)
	if len(documents) == 0 && len(images) == 0 {
		logger.Info("nothing to ingest", "dir", dir, "user_id", tenant.UserID)
		return report, nil
	}

	var batch []models.Chunk
	imagePaths := append([]string(nil), images...)

	for _, path := range documents {
		out, err := s.extractor.Extract(path, filepath.Dir(path))
		if err != nil {
			logger.Warn("file failed extraction",
				"path", path, "user_id", tenant.UserID, "error", err)
			report.AddFailure(path, err)
			s.recordDocument(ctx, tenant, path, nil, 0, err)
			continue
		}
		batch = append(batch, out.Chunks...)
		imagePaths = append(imagePaths, out.Images...)
		report.SucceededFiles = append(report.SucceededFiles, path)
		s.recordDocument(ctx, tenant, path, out.Chunks, len(out.Images), nil)
	}

	if len(batch) > 0 {
		chunked, err := s.chunker.ChunkBatch(ctx, batch)
		if err != nil {
			return report, err
		}
		stored, err := s.store.StoreChunks(ctx, chunked, tenant)
		if err != nil {
			return report, err
		}
		report.TextChunks = stored
	}

	if len(imagePaths) > 0 {
		stored, skipped, err := s.store.StoreImages(ctx, imagePaths, tenant)
		if err != nil {
			return report, err
		}
		report.ImagesStored = stored
		for _, path := range skipped {
			report.AddFailure(path, errImageNotIndexed)
		}
	}

	logger.Info("ingestion batch done",
		"user_id", tenant.UserID, "chatbot_id", tenant.ChatbotID,
		"files_ok", len(report.SucceededFiles), "files_failed", len(report.FailedFiles),
		"text_chunks", report.TextChunks, "images", report.ImagesStored)

	return report, nil
}

var errImageNotIndexed = errors.New("image could not be captioned and indexed")

// recordDocument writes the per-file provenance record. The rendered text is
// kept as a compressed digest so content survives upload-directory cleanup.
// Provenance is best-effort; a write failure is logged, not propagated.
func (s *IngestionService) recordDocument(ctx context.Context, tenant models.Tenant, path string, chunks []models.Chunk, imageCount int, extractErr error) {
	if s.documents == nil {
		return
	}

	doc := models.IngestedDocument{
		UserID:     tenant.UserID,
		ChatbotID:  tenant.ChatbotID,
		Filename:   filepath.Base(path),
		Path:       path,
		Status:     models.StatusCompleted,
		ChunkCount: len(chunks),
		ImageCount: imageCount,
		IngestedAt: time.Now(),
	}

	if extractErr != nil {
		doc.Status = models.StatusFailed
		doc.Error = extractErr.Error()
	} else if text := renderDocumentText(chunks); text != "" {
		digest, algorithm, err := utils.CompressText(text)
		if err != nil {
			logger.Warn("failed to compress document digest", "path", path, "error", err)
		} else {
			doc.Digest = digest
			doc.Compression = string(algorithm)
		}
	}

	if _, err := s.documents.InsertOne(ctx, doc); err != nil {
		logger.Warn("failed to record ingested document", "path", path, "error", err)
	}
}

func renderDocumentText(chunks []models.Chunk) string {
	var parts []string
	for _, c := range chunks {
		if c.ElementKind == models.ElementText || c.ElementKind == models.ElementTable {
			parts = append(parts, c.Content)
		}
	}
	return joinNonEmpty(parts, "\n\n")
}

func joinNonEmpty(parts []string, sep string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += sep
		}
		out += p
	}
	return out
}

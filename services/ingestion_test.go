package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"multimodal-rag-platform/models"
)

type identityChunker struct{}

func (identityChunker) ChunkBatch(_ context.Context, chunks []models.Chunk) ([]models.Chunk, error) {
	return chunks, nil
}

type fakeStore struct {
	chunks     []models.Chunk
	images     []string
	tenant     models.Tenant
	skipImages []string
	failChunks error
}

func (f *fakeStore) StoreChunks(_ context.Context, chunks []models.Chunk, tenant models.Tenant) (int, error) {
	if f.failChunks != nil {
		return 0, f.failChunks
	}
	f.chunks = append(f.chunks, chunks...)
	f.tenant = tenant
	return len(chunks), nil
}

func (f *fakeStore) StoreImages(_ context.Context, paths []string, tenant models.Tenant) (int, []string, error) {
	stored := 0
	var skipped []string
	for _, p := range paths {
		skip := false
		for _, s := range f.skipImages {
			if s == p {
				skip = true
			}
		}
		if skip {
			skipped = append(skipped, p)
			continue
		}
		f.images = append(f.images, p)
		stored++
	}
	f.tenant = tenant
	return stored, skipped, nil
}

func newTestIngestion(store chunkStore) *IngestionService {
	return NewIngestionService(NewExtractor(false), identityChunker{}, store, nil)
}

func TestIngestDirectoryHappyPath(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "notes.txt"), "Alpha paragraph.\n\nBeta paragraph.")
	writeFile(t, filepath.Join(dir, "photo.png"), "not-a-real-png") // classifier only looks at extension

	store := &fakeStore{}
	tenant := models.Tenant{UserID: "u1", ChatbotID: "b1"}

	report, err := newTestIngestion(store).IngestDirectory(context.Background(), dir, tenant)
	if err != nil {
		t.Fatalf("IngestDirectory() error: %v", err)
	}

	if report.TextChunks != 2 {
		t.Errorf("text chunks = %d, want 2", report.TextChunks)
	}
	if report.ImagesStored != 1 {
		t.Errorf("images stored = %d, want 1", report.ImagesStored)
	}
	if len(report.SucceededFiles) != 1 || filepath.Base(report.SucceededFiles[0]) != "notes.txt" {
		t.Errorf("succeeded files = %v", report.SucceededFiles)
	}
	if len(report.FailedFiles) != 0 {
		t.Errorf("failed files = %v", report.FailedFiles)
	}
	if store.tenant != tenant {
		t.Errorf("store saw tenant %+v", store.tenant)
	}
}

func TestIngestDirectoryAbsorbsPerFileFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "good.txt"), "Readable content.")
	writeFile(t, filepath.Join(dir, "broken.docx"), "this is not a zip archive")

	store := &fakeStore{}
	report, err := newTestIngestion(store).IngestDirectory(context.Background(), dir,
		models.Tenant{UserID: "u1", ChatbotID: "b1"})
	if err != nil {
		t.Fatalf("IngestDirectory() error: %v", err)
	}

	if len(report.FailedFiles) != 1 || filepath.Base(report.FailedFiles[0].Path) != "broken.docx" {
		t.Fatalf("failed files = %v", report.FailedFiles)
	}
	if report.FailedFiles[0].Reason == "" {
		t.Error("failure reason is empty")
	}
	if report.TextChunks != 1 {
		t.Errorf("good file contributed %d chunks, want 1", report.TextChunks)
	}
}

func TestIngestDirectoryEmpty(t *testing.T) {
	store := &fakeStore{}
	report, err := newTestIngestion(store).IngestDirectory(context.Background(), t.TempDir(),
		models.Tenant{UserID: "u1", ChatbotID: "b1"})
	if err != nil {
		t.Fatalf("IngestDirectory() error: %v", err)
	}
	if report.TextChunks != 0 || report.ImagesStored != 0 || len(report.FailedFiles) != 0 {
		t.Errorf("empty dir report = %+v", report)
	}
	if len(store.chunks) != 0 || len(store.images) != 0 {
		t.Error("store was called for an empty directory")
	}
}

func TestIngestDirectoryStoreFailureIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "notes.txt"), "Some content.")

	store := &fakeStore{failChunks: errors.New("index unavailable")}
	_, err := newTestIngestion(store).IngestDirectory(context.Background(), dir,
		models.Tenant{UserID: "u1", ChatbotID: "b1"})
	if err == nil {
		t.Fatal("expected store failure to propagate")
	}
}

func TestIngestDirectorySkippedImagesReported(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.jpg")
	writeFile(t, bad, "x")
	writeFile(t, filepath.Join(dir, "ok.png"), "x")

	store := &fakeStore{skipImages: []string{bad}}
	report, err := newTestIngestion(store).IngestDirectory(context.Background(), dir,
		models.Tenant{UserID: "u1", ChatbotID: "b1"})
	if err != nil {
		t.Fatalf("IngestDirectory() error: %v", err)
	}

	if report.ImagesStored != 1 {
		t.Errorf("images stored = %d, want 1", report.ImagesStored)
	}
	if len(report.FailedFiles) != 1 || report.FailedFiles[0].Path != bad {
		t.Errorf("failed files = %v", report.FailedFiles)
	}
}

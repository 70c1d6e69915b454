package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"multimodal-rag-platform/internal/config"
	"multimodal-rag-platform/internal/logger"
	"multimodal-rag-platform/models"
)

// failedDocumentRetention is how long failed provenance records are kept for
// debugging before the nightly sweep removes them. Completed records are kept
// forever; their digest is the durable copy of the content.
const failedDocumentRetention = 30 * 24 * time.Hour

// MaintenanceService runs the worker's periodic housekeeping.
type MaintenanceService struct {
	documents *mongo.Collection
	scheduler *gocron.Scheduler
}

func NewMaintenanceService(db *mongo.Database) *MaintenanceService {
	return &MaintenanceService{
		documents: db.Collection(config.CollectionDocuments),
		scheduler: gocron.NewScheduler(time.UTC),
	}
}

// Start schedules the nightly sweep and returns immediately.
func (m *MaintenanceService) Start() {
	m.scheduler.Every(1).Day().At("03:00").Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := m.PruneFailedDocuments(ctx); err != nil {
			logger.Error("maintenance sweep failed", "error", err)
		}
	})
	m.scheduler.StartAsync()
	logger.Info("maintenance scheduler started")
}

func (m *MaintenanceService) Stop() {
	m.scheduler.Stop()
}

// PruneFailedDocuments removes failed provenance records older than the
// retention window.
func (m *MaintenanceService) PruneFailedDocuments(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-failedDocumentRetention)
	res, err := m.documents.DeleteMany(ctx, bson.M{
		"status":      models.StatusFailed,
		"ingested_at": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return 0, err
	}
	if res.DeletedCount > 0 {
		logger.Info("pruned failed document records", "count", res.DeletedCount)
	}
	return res.DeletedCount, nil
}

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"multimodal-rag-platform/internal/logger"
	"multimodal-rag-platform/models"
)

const TaskIngestDocuments = "ingest:documents"

// IngestPayload identifies one deferred ingestion batch. The upload directory
// already holds the files; the worker re-walks it on its own schedule.
type IngestPayload struct {
	UserID    string `json:"user_id"`
	ChatbotID string `json:"chatbot_id"`
	Directory string `json:"directory"`
}

// NewIngestTask enqueues a batch that exceeded the synchronous processing
// limit. Re-running an ingestion appends duplicate chunks, so retries are
// kept low and left to the operator beyond that.
func NewIngestTask(userID, chatbotID, directory string) (*asynq.Task, error) {
	payload, err := json.Marshal(IngestPayload{
		UserID:    userID,
		ChatbotID: chatbotID,
		Directory: directory,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIngestDocuments,
		payload,
		asynq.MaxRetry(2),
		asynq.Timeout(30*time.Minute),
		asynq.Queue("critical"),
	), nil
}

// Ingestor runs one upload batch end to end. Implemented by
// services.IngestionService.
type Ingestor interface {
	IngestDirectory(ctx context.Context, dir string, tenant models.Tenant) (*models.IngestReport, error)
}

// TaskProcessor hosts the worker-side handlers.
type TaskProcessor struct {
	ingestor Ingestor
}

func NewTaskProcessor(ingestor Ingestor) *TaskProcessor {
	return &TaskProcessor{ingestor: ingestor}
}

func (p *TaskProcessor) HandleIngest(ctx context.Context, t *asynq.Task) error {
	var payload IngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	logger.Info("worker ingesting batch",
		"user_id", payload.UserID, "chatbot_id", payload.ChatbotID, "dir", payload.Directory)

	report, err := p.ingestor.IngestDirectory(ctx, payload.Directory, models.Tenant{
		UserID:    payload.UserID,
		ChatbotID: payload.ChatbotID,
	})
	if err != nil {
		logger.Error("worker ingestion failed",
			"user_id", payload.UserID, "chatbot_id", payload.ChatbotID, "error", err)
		return err
	}

	logger.Info("worker ingestion done",
		"user_id", payload.UserID, "chatbot_id", payload.ChatbotID,
		"files_ok", len(report.SucceededFiles), "files_failed", len(report.FailedFiles),
		"text_chunks", report.TextChunks, "images", report.ImagesStored)
	return nil
}

// RegisterHandlers binds task types to handlers on an asynq mux.
func (p *TaskProcessor) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskIngestDocuments, p.HandleIngest)
}

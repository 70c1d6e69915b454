package routes

import (
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"multimodal-rag-platform/internal/config"
	"multimodal-rag-platform/internal/logger"
	"multimodal-rag-platform/internal/queue"
	"multimodal-rag-platform/models"
	"multimodal-rag-platform/services"
	"multimodal-rag-platform/utils"
)

// RegisterChatbotRoutes wires chatbot creation and listing. queueClient may
// be nil, in which case every batch is ingested synchronously.
func RegisterChatbotRoutes(router *gin.Engine, cfg *config.Config, db *mongo.Database, ingestion *services.IngestionService, queueClient *asynq.Client) {
	chatbots := db.Collection(config.CollectionChatbots)

	router.POST("/chatbots", handleCreateChatbot(cfg, chatbots, ingestion, queueClient))
	router.GET("/chatbots", handleListChatbots(chatbots))
}

// handleCreateChatbot accepts a multipart form (name, user_id, files[]),
// creates the chatbot record, lands the uploads under the tenant's document
// directory and ingests them. Small batches are processed in-request; larger
// ones are handed to the worker queue.
func handleCreateChatbot(cfg *config.Config, chatbots *mongo.Collection, ingestion *services.IngestionService, queueClient *asynq.Client) gin.HandlerFunc {
	supported := make(map[string]bool)
	for _, ext := range ingestion.SupportedFormats() {
		supported[ext] = true
	}

	return func(c *gin.Context) {
		if err := c.Request.ParseMultipartForm(cfg.MaxFileSize); err != nil {
			utils.RespondWithBadRequest(c, "Invalid multipart form or file too large", nil)
			return
		}

		name := strings.TrimSpace(c.PostForm("name"))
		userID := strings.TrimSpace(c.PostForm("user_id"))
		if name == "" || userID == "" {
			utils.RespondWithBadRequest(c, "Fields 'name' and 'user_id' are required", nil)
			return
		}

		files := c.Request.MultipartForm.File["files"]
		if len(files) == 0 {
			utils.RespondWithBadRequest(c, "At least one file is required", nil)
			return
		}

		bot := models.Chatbot{
			UserID:    userID,
			Name:      name,
			CreatedAt: time.Now(),
		}
		res, err := chatbots.InsertOne(c.Request.Context(), bot)
		if err != nil {
			logger.Error("failed to create chatbot", "user_id", userID, "error", err)
			utils.RespondWithInternalError(c, "Failed to create chatbot", nil)
			return
		}
		chatbotID := res.InsertedID.(primitive.ObjectID).Hex()

		uploadDir := filepath.Join(cfg.BaseStorageDir, "users", userID, chatbotID, "documents")
		if err := os.MkdirAll(uploadDir, 0755); err != nil {
			utils.RespondWithInternalError(c, "Failed to create upload directory", nil)
			return
		}

		saved, rejected, batchBytes := saveUploads(c, files, uploadDir, cfg.MaxFileSize, supported)
		if len(saved) == 0 {
			utils.RespondWithBadRequest(c, "No uploaded file could be saved", rejected)
			return
		}

		tenant := models.Tenant{UserID: userID, ChatbotID: chatbotID}

		// Large batches would hold the request open for the full extraction
		// and embedding run; those go to the worker.
		if queueClient != nil && batchBytes > cfg.SyncProcessingLimit {
			task, err := queue.NewIngestTask(userID, chatbotID, uploadDir)
			if err == nil {
				if _, err = queueClient.EnqueueContext(c.Request.Context(), task); err == nil {
					c.JSON(http.StatusAccepted, gin.H{
						"chatbot_id":     chatbotID,
						"name":           name,
						"saved_files":    saved,
						"rejected_files": rejected,
						"status":         "queued",
					})
					return
				}
			}
			// Queue unavailable: fall back to in-request processing rather
			// than losing the batch.
			logger.Warn("failed to enqueue ingestion, processing synchronously",
				"user_id", userID, "chatbot_id", chatbotID, "error", err)
		}

		report, err := ingestion.IngestDirectory(c.Request.Context(), uploadDir, tenant)
		if err != nil {
			logger.Error("ingestion failed",
				"user_id", userID, "chatbot_id", chatbotID, "error", err)
			utils.RespondWithInternalError(c, "Ingestion failed", err.Error())
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"chatbot_id":     chatbotID,
			"name":           name,
			"saved_files":    saved,
			"rejected_files": rejected,
			"status":         "completed",
			"report":         report,
		})
	}
}

func handleListChatbots(chatbots *mongo.Collection) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.Query("user_id"))
		if userID == "" {
			utils.RespondWithBadRequest(c, "Query parameter 'user_id' is required", nil)
			return
		}

		cursor, err := chatbots.Find(c.Request.Context(), bson.M{"user_id": userID},
			options.Find().SetSort(bson.M{"created_at": -1}))
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list chatbots", nil)
			return
		}
		defer cursor.Close(c.Request.Context())

		bots := []models.Chatbot{}
		if err := cursor.All(c.Request.Context(), &bots); err != nil {
			utils.RespondWithInternalError(c, "Failed to decode chatbots", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{"chatbots": bots})
	}
}

// saveUploads lands multipart files on disk. Path-traversal names, unsupported
// extensions, image uploads with a non-image declared content type and
// oversized files are rejected individually instead of failing the whole
// request.
func saveUploads(c *gin.Context, files []*multipart.FileHeader, dir string, maxSize int64, supported map[string]bool) (saved, rejected []string, totalBytes int64) {
	for _, fh := range files {
		name := filepath.Base(fh.Filename)
		if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
			rejected = append(rejected, fh.Filename)
			continue
		}
		isImage := services.IsImagePath(name)
		if !isImage && !supported[strings.ToLower(filepath.Ext(name))] {
			logger.Warn("upload with unsupported extension", "filename", name)
			rejected = append(rejected, name)
			continue
		}
		if isImage && !utils.IsValidImageType(fh.Header.Get("Content-Type")) {
			logger.Warn("image upload with unexpected content type",
				"filename", name, "content_type", fh.Header.Get("Content-Type"))
			rejected = append(rejected, name)
			continue
		}
		if fh.Size > maxSize {
			logger.Warn("upload exceeds size limit", "filename", name, "size", fh.Size)
			rejected = append(rejected, name)
			continue
		}
		if err := c.SaveUploadedFile(fh, filepath.Join(dir, name)); err != nil {
			logger.Warn("failed to save upload", "filename", name, "error", err)
			rejected = append(rejected, name)
			continue
		}
		saved = append(saved, name)
		totalBytes += fh.Size
	}
	return saved, rejected, totalBytes
}

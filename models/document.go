package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Ingestion status values for IngestedDocument.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// IngestedDocument is the per-file provenance record written after
// extraction. Digest holds the compressed full rendered text of the file so
// the raw content survives even if the upload directory is wiped.
type IngestedDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	UserID      string             `bson:"user_id"`
	ChatbotID   string             `bson:"chatbot_id"`
	Filename    string             `bson:"filename"`
	Path        string             `bson:"path"`
	Status      string             `bson:"status"`
	Error       string             `bson:"error,omitempty"`
	ChunkCount  int                `bson:"chunk_count"`
	ImageCount  int                `bson:"image_count"`
	Digest      []byte             `bson:"digest,omitempty"`
	Compression string             `bson:"compression,omitempty"`
	IngestedAt  time.Time          `bson:"ingested_at"`
}

package models

import "time"

// Element kinds produced by the document extractor. A chunk's kind decides
// how it is rendered into the vector index and which side artifacts exist.
const (
	ElementText         = "text"
	ElementTable        = "table"
	ElementPicture      = "picture"
	ElementFullDocument = "full_document"
)

// Content type tags distinguishing the two retrieval pools.
const (
	ContentTypeText  = "text"
	ContentTypeImage = "image"
)

// Tenant scopes all stored content and all retrieval filters.
// It is attached at store time only; extraction is tenant-agnostic.
type Tenant struct {
	UserID    string
	ChatbotID string
}

// Chunk is one unit of retrievable content produced by extraction.
// Content holds raw prose, a markdown-rendered table, or an image-reference
// placeholder. Source is immutable provenance back to the uploaded file.
type Chunk struct {
	Content     string
	Source      string
	ElementKind string
	Page        int                    // 0 when the format has no page/slide locator
	LocalPath   string                 // extracted picture PNG or exported table CSV
	Metadata    map[string]interface{} // extra metadata; only flat scalars survive storage
}

// VectorChunk is the denormalized record stored in the vector_chunks
// collection. Keeping one collection for both modalities (distinguished by
// content_type) lets a single compound index serve every tenant filter.
type VectorChunk struct {
	ID          string            `bson:"_id"`
	UserID      string            `bson:"user_id"`
	ChatbotID   string            `bson:"chatbot_id"`
	ContentType string            `bson:"content_type"`
	Content     string            `bson:"content"`
	Source      string            `bson:"source,omitempty"`
	ElementKind string            `bson:"element_kind,omitempty"`
	Page        int               `bson:"page,omitempty"`
	LocalPath   string            `bson:"local_path,omitempty"`
	URI         string            `bson:"uri,omitempty"`     // image records: path to the image bytes
	Caption     string            `bson:"caption,omitempty"` // image records: generated caption that was embedded
	Vector      []float32         `bson:"vector"`
	Metadata    map[string]string `bson:"metadata,omitempty"`
	CreatedAt   time.Time         `bson:"created_at"`
}

// SearchResult is one ranked hit from the vector store, most similar first.
// Distance is 1 - cosine similarity, so it is non-decreasing across a result set.
type SearchResult struct {
	Chunk    VectorChunk
	Distance float64
}

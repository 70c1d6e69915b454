package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Chatbot is one tenant-scoped bot created through the upload endpoint.
// Its hex ObjectID is the chatbot half of the (user_id, chatbot_id) tenant key.
type Chatbot struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    string             `bson:"user_id" json:"user_id"`
	Name      string             `bson:"name" json:"name"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

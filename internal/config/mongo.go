package config

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names used by the pipeline.
const (
	CollectionChatbots     = "chatbots"
	CollectionVectorChunks = "vector_chunks"
	CollectionDocuments    = "documents"
)

func ConnectMongoDB(cfg *Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	// Test connection
	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	// Create indexes
	err = createIndexes(client, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to create indexes: %v", err)
	}

	return client, nil
}

func createIndexes(client *mongo.Client, dbName string) error {
	db := client.Database(dbName)

	// Chatbots collection indexes
	chatbotsCollection := db.Collection(CollectionChatbots)
	chatbotIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
		},
	}
	_, err := chatbotsCollection.Indexes().CreateMany(context.Background(), chatbotIndexes)
	if err != nil {
		return err
	}

	// Vector chunks: the compound index backs every tenant-filtered search,
	// for both the $vectorSearch pre-filter and the cosine fallback fetch.
	vectorCollection := db.Collection(CollectionVectorChunks)
	vectorIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "chatbot_id", Value: 1},
				{Key: "content_type", Value: 1},
			},
		},
		{
			Keys: bson.D{{Key: "source", Value: 1}},
		},
	}
	_, err = vectorCollection.Indexes().CreateMany(context.Background(), vectorIndexes)
	if err != nil {
		return err
	}

	// Ingested documents provenance records
	documentsCollection := db.Collection(CollectionDocuments)
	documentIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "chatbot_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "ingested_at", Value: -1}},
		},
	}
	_, err = documentsCollection.Indexes().CreateMany(context.Background(), documentIndexes)
	if err != nil {
		return err
	}

	return nil
}

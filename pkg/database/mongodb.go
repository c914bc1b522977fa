package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

// Connect establishes a connection to MongoDB. The database named in the URI
// wins over defaultDB.
func Connect(ctx context.Context, mongoURI, defaultDB string) (*mongo.Database, error) {
	cs, err := connstring.ParseAndValidate(mongoURI)
	if err != nil {
		return nil, fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	dbName := cs.Database
	if dbName == "" {
		dbName = defaultDB
	}
	slog.Info("connected to MongoDB", "database", dbName)

	db := client.Database(dbName)
	if err := createIndexes(ctx, db); err != nil {
		slog.Warn("failed to create indexes", "error", err)
	}

	return db, nil
}

// createIndexes creates the indexes the repositories rely on
func createIndexes(ctx context.Context, db *mongo.Database) error {
	sparseUnique := options.Index().SetUnique(true).SetSparse(true)

	userIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "twitch_id", Value: 1}}, Options: sparseUnique},
		{Keys: bson.D{{Key: "discord_id", Value: 1}}, Options: sparseUnique},
		{Keys: bson.D{{Key: "moderator", Value: 1}}},
	}
	if _, err := db.Collection("users").Indexes().CreateMany(ctx, userIndexes); err != nil {
		return fmt.Errorf("users: %w", err)
	}

	quoteIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "content", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "created", Value: -1}}},
	}
	if _, err := db.Collection("quotes").Indexes().CreateMany(ctx, quoteIndexes); err != nil {
		return fmt.Errorf("quotes: %w", err)
	}

	return nil
}

// Disconnect closes the MongoDB connection
func Disconnect(client *mongo.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}

	slog.Info("disconnected from MongoDB")
	return nil
}

// Health checks the database connection health
func Health(ctx context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return db.Client().Ping(ctx, nil)
}

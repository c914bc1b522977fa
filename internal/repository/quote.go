package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"companion-api/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type QuoteRepository struct {
	collection *mongo.Collection
	counters   *mongo.Collection
}

func NewQuoteRepository(db *mongo.Database) *QuoteRepository {
	return &QuoteRepository{
		collection: db.Collection("quotes"),
		counters:   db.Collection("counters"),
	}
}

// Create stores a quote under the next sequential id
func (r *QuoteRepository) Create(ctx context.Context, quote *models.Quote) (*models.Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	id, err := r.nextID(ctx)
	if err != nil {
		return nil, err
	}

	quote.ID = id
	if quote.CreatedAt.IsZero() {
		quote.CreatedAt = time.Now().UTC()
	}

	if _, err := r.collection.InsertOne(ctx, quote); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("quote: %w", ErrDuplicate)
		}
		return nil, err
	}
	return quote, nil
}

// FindByID returns a single quote
func (r *QuoteRepository) FindByID(ctx context.Context, id int64) (*models.Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var quote models.Quote
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&quote)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("quote %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &quote, nil
}

func (r *QuoteRepository) nextID(ctx context.Context) (int64, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := r.counters.FindOneAndUpdate(ctx, bson.M{"_id": "quotes"}, bson.M{"$inc": bson.M{"seq": 1}}, opts).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate quote id: %w", err)
	}
	return counter.Seq, nil
}

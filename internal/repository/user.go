package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"companion-api/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type UserRepository struct {
	collection *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{
		collection: db.Collection("users"),
	}
}

// Create inserts a user, assigning an id when none is set
func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	now := time.Now().UTC()
	if user.ID == 0 {
		user.ID = models.GenerateUserID(now)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}

	if _, err := r.collection.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("user: %w", ErrDuplicate)
		}
		return nil, err
	}
	return user, nil
}

// FindByID looks a user up by its decimal id
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	uid, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("user %q: %w", id, ErrNotFound)
	}
	return r.findOne(ctx, bson.M{"_id": uid})
}

// FindByTwitchID looks a user up by Twitch account id
func (r *UserRepository) FindByTwitchID(ctx context.Context, twitchID int64) (*models.User, error) {
	return r.findOne(ctx, bson.M{"twitch_id": twitchID})
}

// UpsertTwitch makes sure a user exists for twitchID and adds points to it.
// The balance never drops below zero.
func (r *UserRepository) UpsertTwitch(ctx context.Context, twitchID, points int64) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	now := time.Now().UTC()
	// _id is immutable, so the guard only ever writes it on insert
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"_id":       bson.M{"$ifNull": bson.A{"$_id", models.GenerateUserID(now)}},
			"moderator": bson.M{"$ifNull": bson.A{"$moderator", false}},
			"created":   bson.M{"$ifNull": bson.A{"$created", now}},
			"points": bson.M{"$max": bson.A{
				int64(0),
				bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$points", int64(0)}}, points}},
			}},
		}}},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var user models.User
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"twitch_id": twitchID}, update, opts).Decode(&user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var user models.User
	err := r.collection.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("user: %w", ErrNotFound)
		}
		return nil, err
	}
	return &user, nil
}

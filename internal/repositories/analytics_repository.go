package repositories

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/anonto42/reviewinn/backend/internal/domain"
	"github.com/anonto42/reviewinn/backend/internal/models"
)

// AnalyticsRepository keeps view rollups per (content_type, content_id).
type AnalyticsRepository interface {
	RecordView(ctx context.Context, contentType string, contentID uint, at time.Time, uniqueUser bool) error
	Get(ctx context.Context, contentType string, contentID uint) (*models.ViewAnalytics, error)
}

// MongoAnalyticsRepository implements AnalyticsRepository for MongoDB
type MongoAnalyticsRepository struct {
	collection *mongo.Collection
}

// NewMongoAnalyticsRepository creates a new MongoAnalyticsRepository
func NewMongoAnalyticsRepository(db *mongo.Database) *MongoAnalyticsRepository {
	return &MongoAnalyticsRepository{collection: db.Collection("view_analytics")}
}

// EnsureIndexes creates the unique rollup key.
func (r *MongoAnalyticsRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "content_type", Value: 1}, {Key: "content_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// RecordView upserts the rollup with $inc so concurrent writers never lose counts.
func (r *MongoAnalyticsRepository) RecordView(ctx context.Context, contentType string, contentID uint, at time.Time, uniqueUser bool) error {
	inc := bson.M{"total_views": 1, "daily." + models.DayKey(at): 1}
	if uniqueUser {
		inc["unique_users"] = 1
	}
	update := bson.M{
		"$inc": inc,
		"$max": bson.M{"last_view_at": at},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"content_type": contentType, "content_id": contentID},
		update,
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *MongoAnalyticsRepository) Get(ctx context.Context, contentType string, contentID uint) (*models.ViewAnalytics, error) {
	var out models.ViewAnalytics
	err := r.collection.FindOne(ctx, bson.M{"content_type": contentType, "content_id": contentID}).Decode(&out)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

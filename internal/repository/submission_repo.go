package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"astapp/internal/model"
)

// SubmissionRepository stores graded submissions
type SubmissionRepository interface {
	Create(ctx context.Context, rec *model.SubmissionRecord) error
	GetByID(ctx context.Context, id string) (*model.SubmissionRecord, error)
	// ListByApp returns records newest first; limit <= 0 means no limit
	ListByApp(ctx context.Context, appID string, limit int) ([]*model.SubmissionRecord, error)
}

type submissionRepository struct {
	collection *mongo.Collection
}

// NewSubmissionRepository creates the MongoDB submission store
func NewSubmissionRepository(db *mongo.Database) SubmissionRepository {
	return &submissionRepository{
		collection: db.Collection("submissions"),
	}
}

func (r *submissionRepository) Create(ctx context.Context, rec *model.SubmissionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := r.collection.InsertOne(ctx, rec)
	return err
}

func (r *submissionRepository) GetByID(ctx context.Context, id string) (*model.SubmissionRecord, error) {
	var rec model.SubmissionRecord
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *submissionRepository) ListByApp(ctx context.Context, appID string, limit int) ([]*model.SubmissionRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := r.collection.Find(ctx, bson.M{"appId": appID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var recs []*model.SubmissionRecord
	if err = cursor.All(ctx, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

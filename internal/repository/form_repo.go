package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"astapp/internal/model"
)

// FormRepo handles MongoDB operations for stored forms
type FormRepo interface {
	Save(ctx context.Context, doc *model.FormDocument) error
	GetByID(ctx context.Context, appID string) (*model.FormDocument, error)
	GetByCreatorID(ctx context.Context, creatorID string) ([]*model.FormDocument, error)
	Delete(ctx context.Context, appID string) error
}

type formRepo struct {
	collection *mongo.Collection
}

// NewFormRepo creates a new form repository
func NewFormRepo(db *mongo.Database) FormRepo {
	return &formRepo{
		collection: db.Collection("forms"),
	}
}

// Save inserts or replaces the form keyed by its app id. CreatedAt is kept
// from the first save.
func (r *formRepo) Save(ctx context.Context, doc *model.FormDocument) error {
	now := time.Now()
	doc.UpdatedAt = now

	update := bson.M{
		"$set": bson.M{
			"creatorId": doc.CreatorID,
			"astText":   doc.ASTText,
			"updatedAt": now,
		},
		"$setOnInsert": bson.M{"createdAt": now},
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": doc.AppID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return err
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	return nil
}

func (r *formRepo) GetByID(ctx context.Context, appID string) (*model.FormDocument, error) {
	var doc model.FormDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": appID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *formRepo) GetByCreatorID(ctx context.Context, creatorID string) ([]*model.FormDocument, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"creatorId": creatorID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []*model.FormDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *formRepo) Delete(ctx context.Context, appID string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": appID})
	return err
}

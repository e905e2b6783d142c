package mongodb

import (
	"context"
	"fmt"
	"time"

	"lcsec_server/core/domain"
	"lcsec_server/core/port/out"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection name per model namespace. The same message classified by both
// backends is stored twice, once per collection, without being a duplicate
// of itself.
const collectionPrefix = "predictions_"

// PredictionAdapter implements out.PredictionRepository using MongoDB.
type PredictionAdapter struct {
	db *mongo.Database
}

// NewPredictionAdapter creates a new MongoDB prediction adapter.
func NewPredictionAdapter(db *mongo.Database) *PredictionAdapter {
	return &PredictionAdapter{db: db}
}

// EnsureIndexes creates lookup indexes for every model namespace.
// The message index is deliberately NOT unique: duplicate suppression is the
// orchestrator's check-then-insert protocol, and the concurrent-duplicate
// race window is an accepted property of that design.
func (a *PredictionAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "message", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "timestamp", Value: -1}},
		},
	}

	for _, model := range []domain.ModelKind{domain.ModelBert, domain.ModelNaiveBayes} {
		if _, err := a.collection(model).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("failed to create indexes for %s: %w", model, err)
		}
	}
	return nil
}

func (a *PredictionAdapter) collection(model domain.ModelKind) *mongo.Collection {
	return a.db.Collection(collectionPrefix + string(model))
}

// =============================================================================
// Document Model
// =============================================================================

// predictionDocument represents the MongoDB document structure. The
// timestamp is stored as an ISO-8601 string, matching the exported review
// format.
type predictionDocument struct {
	Message    string  `bson:"message"`
	Prediction string  `bson:"prediction"`
	Confidence float64 `bson:"confidence"`
	Model      string  `bson:"model"`
	Timestamp  string  `bson:"timestamp"`
}

func toDocument(p *domain.Prediction) *predictionDocument {
	return &predictionDocument{
		Message:    p.Message,
		Prediction: string(p.Label),
		Confidence: p.Confidence,
		Model:      string(p.Model),
		Timestamp:  p.Timestamp.UTC().Format(time.RFC3339),
	}
}

func toPrediction(doc *predictionDocument) (*domain.Prediction, error) {
	model, err := domain.ParseModelKind(doc.Model)
	if err != nil {
		return nil, err
	}

	ts, err := time.Parse(time.RFC3339, doc.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse timestamp: %w", err)
	}

	return &domain.Prediction{
		Message:    doc.Message,
		Label:      domain.Label(doc.Prediction),
		Confidence: doc.Confidence,
		Model:      model,
		Timestamp:  ts,
	}, nil
}

// =============================================================================
// Operations
// =============================================================================

// Exists reports whether a record with exactly this message text is already
// persisted in the model's namespace. Exact string match, case-sensitive.
func (a *PredictionAdapter) Exists(ctx context.Context, model domain.ModelKind, message string) (bool, error) {
	filter := bson.M{"message": message}

	err := a.collection(model).FindOne(ctx, filter, options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return false, nil
		}
		return false, fmt.Errorf("failed to check for existing prediction: %w", err)
	}
	return true, nil
}

// Insert persists a new prediction record.
func (a *PredictionAdapter) Insert(ctx context.Context, prediction *domain.Prediction) error {
	_, err := a.collection(prediction.Model).InsertOne(ctx, toDocument(prediction))
	if err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}
	return nil
}

// List retrieves persisted predictions for a model namespace, newest first.
func (a *PredictionAdapter) List(ctx context.Context, model domain.ModelKind, limit, offset int) ([]*domain.Prediction, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}
	if offset > 0 {
		findOpts.SetSkip(int64(offset))
	}

	cursor, err := a.collection(model).Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions: %w", err)
	}
	defer cursor.Close(ctx)

	var predictions []*domain.Prediction
	for cursor.Next(ctx) {
		var doc predictionDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode prediction: %w", err)
		}

		prediction, err := toPrediction(&doc)
		if err != nil {
			return nil, fmt.Errorf("failed to convert prediction: %w", err)
		}
		predictions = append(predictions, prediction)
	}

	return predictions, nil
}

// Count returns the number of persisted records in a model namespace.
func (a *PredictionAdapter) Count(ctx context.Context, model domain.ModelKind) (int64, error) {
	count, err := a.collection(model).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count predictions: %w", err)
	}
	return count, nil
}

// Interface compliance
var _ out.PredictionRepository = (*PredictionAdapter)(nil)

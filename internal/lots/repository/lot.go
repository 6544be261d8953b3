package repository

import (
	"context"
	"errors"
	"fmt"
	lotserrors "smartpark/internal/lots/errors"
	"smartpark/pkg/config"
	mongotx "smartpark/pkg/db/mongo"
	"smartpark/pkg/model"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Lots"
)

type mongoLotRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

type LotRepository interface {
	Create(ctx context.Context, lot *model.Lot) error
	FindByID(ctx context.Context, id string) (*model.Lot, error)
	FindAll(ctx context.Context, limit int, offset int64) ([]*model.Lot, error)
	Count(ctx context.Context) (int64, error)
	Update(ctx context.Context, id string, updates *model.LotUpdate) error
	Delete(ctx context.Context, id string) error

	ReserveSlot(ctx context.Context, id string) error
	ReleaseSlot(ctx context.Context, id string) (bool, error)
	SetCapacity(ctx context.Context, id string, capacity int) error

	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

func NewMongoLotRepository(cfg *config.Config) LotRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoLotRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoLotRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	remaining := time.Until(deadline)
	if remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}

func (r *mongoLotRepository) Create(ctx context.Context, lot *model.Lot) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	lot.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	result, err := r.collection.InsertOne(ctx, lot)
	if err != nil {
		return fmt.Errorf("failed to create lot: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		lot.ID = oid.Hex()
	}

	return nil
}

func (r *mongoLotRepository) FindByID(ctx context.Context, id string) (*model.Lot, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", lotserrors.ErrInvalidID, id)
	}

	var lot model.Lot
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&lot)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", lotserrors.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to find lot: %w", err)
	}
	return &lot, nil
}

func (r *mongoLotRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Lot, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetLimit(int64(limit)).
		SetSkip(offset).
		SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query lots: %w", err)
	}
	defer cursor.Close(ctx)

	var lots []*model.Lot
	if err = cursor.All(ctx, &lots); err != nil {
		return nil, fmt.Errorf("failed to decode lots: %w", err)
	}

	return lots, nil
}

func (r *mongoLotRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count lots: %w", err)
	}
	return count, nil
}

func (r *mongoLotRepository) Update(ctx context.Context, id string, updates *model.LotUpdate) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", lotserrors.ErrInvalidID, id)
	}

	set := bson.M{}
	if updates.Name != "" {
		set["name"] = updates.Name
	}
	if updates.City != "" {
		set["city"] = updates.City
	}
	if updates.PricePerHour != nil {
		set["price_per_hour"] = *updates.PricePerHour
	}
	if len(set) == 0 {
		return nil
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objectID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update lot: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", lotserrors.ErrNotFound, id)
	}

	return nil
}

func (r *mongoLotRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", lotserrors.ErrInvalidID, id)
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": objectID})
	if err != nil {
		return fmt.Errorf("failed to delete lot: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", lotserrors.ErrNotFound, id)
	}

	return nil
}

// ReserveSlot decrements the available counter only when it is positive. The
// filter and the $inc run as one document update, so two concurrent reserves
// can never both consume the last slot.
func (r *mongoLotRepository) ReserveSlot(ctx context.Context, id string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", lotserrors.ErrInvalidID, id)
	}

	filter := bson.M{
		"_id":             objectID,
		"available_slots": bson.M{"$gt": 0},
	}
	update := bson.M{"$inc": bson.M{"available_slots": -1}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to reserve slot: %w", err)
	}
	if result.MatchedCount == 0 {
		exists, err := r.exists(ctx, objectID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: %s", lotserrors.ErrNotFound, id)
		}
		return fmt.Errorf("%w: %s", lotserrors.ErrNoCapacity, id)
	}

	return nil
}

// ReleaseSlot increments the available counter, clamped at capacity. Returns
// false when the counter was already full and nothing changed.
func (r *mongoLotRepository) ReleaseSlot(ctx context.Context, id string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, fmt.Errorf("%w: %s", lotserrors.ErrInvalidID, id)
	}

	filter := bson.M{
		"_id":   objectID,
		"$expr": bson.M{"$lt": bson.A{"$available_slots", "$capacity"}},
	}
	update := bson.M{"$inc": bson.M{"available_slots": 1}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to release slot: %w", err)
	}
	if result.MatchedCount == 0 {
		exists, err := r.exists(ctx, objectID)
		if err != nil {
			return false, err
		}
		if !exists {
			return false, fmt.Errorf("%w: %s", lotserrors.ErrNotFound, id)
		}
		return false, nil
	}

	return true, nil
}

// SetCapacity rebases the available counter so active reservations are
// preserved: available = newCapacity - active. The $expr filter rejects the
// update when active reservations exceed the new capacity.
func (r *mongoLotRepository) SetCapacity(ctx context.Context, id string, capacity int) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", lotserrors.ErrInvalidID, id)
	}

	active := bson.M{"$subtract": bson.A{"$capacity", "$available_slots"}}
	filter := bson.M{
		"_id":   objectID,
		"$expr": bson.M{"$lte": bson.A{active, capacity}},
	}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"available_slots": bson.M{"$subtract": bson.A{capacity, active}},
			"capacity":        capacity,
		}}},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to set lot capacity: %w", err)
	}
	if result.MatchedCount == 0 {
		exists, err := r.exists(ctx, objectID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: %s", lotserrors.ErrNotFound, id)
		}
		return fmt.Errorf("%w: %s", lotserrors.ErrCapacityBelowActive, id)
	}

	return nil
}

func (r *mongoLotRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}

func (r *mongoLotRepository) exists(ctx context.Context, objectID primitive.ObjectID) (bool, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": objectID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check lot existence: %w", err)
	}
	return count > 0, nil
}

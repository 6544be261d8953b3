package repository

import (
	"context"
	"fmt"
	"smartpark/pkg/config"
	"smartpark/pkg/model"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Messages"

	bookingsCollection = "Bookings"
)

type mongoMessageRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

type MessageRepository interface {
	Insert(ctx context.Context, msg *model.Message) error
	FindByBooking(ctx context.Context, bookingID string, limit int, offset int64) ([]*model.Message, error)
	CountByBooking(ctx context.Context, bookingID string) (int64, error)
	MarkRead(ctx context.Context, bookingID, principalID string) (int64, error)
	CountUnread(ctx context.Context, bookingID, principalID, principalRole string) (int64, error)
	ActiveChatSummaries(ctx context.Context, adminID string) ([]*model.ChatSummary, error)
}

func NewMongoMessageRepository(cfg *config.Config) MessageRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoMessageRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

func (r *mongoMessageRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
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

func (r *mongoMessageRepository) Insert(ctx context.Context, msg *model.Message) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	msg.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	result, err := r.collection.InsertOne(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		msg.ID = oid.Hex()
	}
	return nil
}

// FindByBooking returns a booking's messages in send order: created_at
// ascending with the per-booking sequence as tie-break.
func (r *mongoMessageRepository) FindByBooking(ctx context.Context, bookingID string, limit int, offset int64) ([]*model.Message, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "seq", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, bson.M{"booking_id": bookingID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find messages for booking [%s]: %w", bookingID, err)
	}
	defer cursor.Close(ctx)

	var messages []*model.Message
	if err = cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}

	return messages, nil
}

func (r *mongoMessageRepository) CountByBooking(ctx context.Context, bookingID string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{"booking_id": bookingID})
	if err != nil {
		return 0, fmt.Errorf("failed to count messages for booking [%s]: %w", bookingID, err)
	}
	return count, nil
}

// MarkRead adds the principal to read_by on every message in the booking.
// $addToSet makes repeated calls no-ops.
func (r *mongoMessageRepository) MarkRead(ctx context.Context, bookingID, principalID string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.UpdateMany(ctx,
		bson.M{"booking_id": bookingID},
		bson.M{"$addToSet": bson.M{"read_by": principalID}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read for booking [%s]: %w", bookingID, err)
	}

	return result.ModifiedCount, nil
}

// CountUnread counts messages sent by the other role that the principal has
// not read yet.
func (r *mongoMessageRepository) CountUnread(ctx context.Context, bookingID, principalID, principalRole string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"booking_id":  bookingID,
		"sender_role": bson.M{"$ne": principalRole},
		"read_by":     bson.M{"$ne": principalID},
	}

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages for booking [%s]: %w", bookingID, err)
	}
	return count, nil
}

// ActiveChatSummaries builds the admin overview in one aggregation: messages
// are joined to their booking, kept only for confirmed bookings on the
// admin's lots, then grouped per booking with the unread-from-users count.
func (r *mongoMessageRepository) ActiveChatSummaries(ctx context.Context, adminID string) ([]*model.ChatSummary, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$lookup", Value: bson.M{
			"from": bookingsCollection,
			"let":  bson.M{"bid": bson.M{"$toObjectId": "$booking_id"}},
			"pipeline": bson.A{
				bson.M{"$match": bson.M{"$expr": bson.M{"$and": bson.A{
					bson.M{"$eq": bson.A{"$_id", "$$bid"}},
					bson.M{"$eq": bson.A{"$status", model.BookingConfirmed}},
					bson.M{"$eq": bson.A{"$lot_owner", adminID}},
				}}}},
			},
			"as": "booking",
		}}},
		{{Key: "$match", Value: bson.M{"booking": bson.M{"$ne": bson.A{}}}}},
		{{Key: "$sort", Value: bson.D{
			{Key: "booking_id", Value: 1},
			{Key: "created_at", Value: 1},
			{Key: "seq", Value: 1},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":             "$booking_id",
			"last_message":    bson.M{"$last": "$text"},
			"last_created_at": bson.M{"$last": "$created_at"},
			"unread_for_admin": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$and": bson.A{
					bson.M{"$eq": bson.A{"$sender_role", model.RoleUser}},
					bson.M{"$not": bson.A{bson.M{"$in": bson.A{adminID, bson.M{"$ifNull": bson.A{"$read_by", bson.A{}}}}}}},
				}},
				1,
				0,
			}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "last_created_at", Value: -1}}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate active chats for admin [%s]: %w", adminID, err)
	}
	defer cursor.Close(ctx)

	var summaries []*model.ChatSummary
	if err = cursor.All(ctx, &summaries); err != nil {
		return nil, fmt.Errorf("failed to decode chat summaries: %w", err)
	}

	return summaries, nil
}
